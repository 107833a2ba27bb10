package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"

	"github.com/opentrusty/tenantgate/internal/observability/logger"
	"github.com/opentrusty/tenantgate/internal/onboarding"
)

const (
	flagDeferred = "profile_deferred"
	hintTimezone = "tz"
	hintLanguage = "lang"
	hintCountry  = "country"
)

// FlagStore keeps browser-session scoped flags in a signed cookie. The
// cookie has no Max-Age, so the browser drops it when its session ends.
type FlagStore struct {
	store *sessions.CookieStore
	name  string
}

// NewFlagStore creates a flag store signing cookies with secret
func NewFlagStore(secret []byte, name string, cfg SessionConfig) *FlagStore {
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		Domain:   cfg.CookieDomain,
		MaxAge:   0,
		Secure:   cfg.CookieSecure,
		HttpOnly: true,
		SameSite: cfg.CookieSameSite,
	}
	return &FlagStore{store: store, name: name}
}

// session returns the flag session; a tampered or stale cookie yields a fresh one
func (f *FlagStore) session(r *http.Request) *sessions.Session {
	sess, err := f.store.Get(r, f.name)
	if err != nil {
		var scErr securecookie.Error
		if errors.As(err, &scErr) && scErr.IsDecode() {
			slog.WarnContext(r.Context(), "flag cookie invalid, using fresh session", logger.Error(err))
		} else {
			slog.ErrorContext(r.Context(), "flag cookie read failed", logger.Error(err))
		}
	}
	return sess
}

// Deferred reports whether the signed-in actor chose to complete the
// profile later. The flag only counts for the actor that set it.
func (f *FlagStore) Deferred(r *http.Request) bool {
	actorID := GetUserID(r.Context())
	v, _ := f.session(r).Values[flagDeferred].(string)
	return actorID != "" && v == actorID
}

// SetDeferred stores the defer flag for the signed-in actor, or clears it
func (f *FlagStore) SetDeferred(w http.ResponseWriter, r *http.Request, deferred bool) error {
	sess := f.session(r)
	actorID := GetUserID(r.Context())
	if deferred && actorID != "" {
		sess.Values[flagDeferred] = actorID
	} else {
		delete(sess.Values, flagDeferred)
	}
	return sess.Save(r, w)
}

// ResetDeferred drops any defer flag left by an earlier login
func (f *FlagStore) ResetDeferred(w http.ResponseWriter, r *http.Request) error {
	sess := f.session(r)
	if _, ok := sess.Values[flagDeferred]; !ok {
		return nil
	}
	delete(sess.Values, flagDeferred)
	return sess.Save(r, w)
}

// Hints returns the client hints captured at registration
func (f *FlagStore) Hints(r *http.Request) onboarding.Hints {
	sess := f.session(r)
	return onboarding.Hints{
		Timezone: getString(sess, hintTimezone),
		Language: getString(sess, hintLanguage),
		Country:  getString(sess, hintCountry),
	}
}

// SetHints stores the client hints
func (f *FlagStore) SetHints(w http.ResponseWriter, r *http.Request, h onboarding.Hints) error {
	sess := f.session(r)
	sess.Values[hintTimezone] = h.Timezone
	sess.Values[hintLanguage] = h.Language
	sess.Values[hintCountry] = h.Country
	return sess.Save(r, w)
}

// Clear expires the flag cookie
func (f *FlagStore) Clear(w http.ResponseWriter, r *http.Request) error {
	sess := f.session(r)
	sess.Values = map[interface{}]interface{}{}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

func getString(s *sessions.Session, key string) string {
	if v, ok := s.Values[key].(string); ok {
		return v
	}
	return ""
}
