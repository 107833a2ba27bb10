// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/opentrusty/tenantgate/internal/audit"
	"github.com/opentrusty/tenantgate/internal/locale"
	"github.com/opentrusty/tenantgate/internal/observability/logger"
	"github.com/opentrusty/tenantgate/internal/onboarding"
)

// LangCookie holds the explicit language choice
const LangCookie = "lang"

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.Route(routePattern(r)),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// SessionMiddleware resolves the session cookie into the request context.
// Requests without a valid session continue anonymously.
func (h *Handler) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := h.getSessionFromCookie(r)
		if sessionID == "" {
			next.ServeHTTP(w, r)
			return
		}

		sess, err := h.sessionService.Get(r.Context(), sessionID)
		if err != nil {
			h.clearSessionCookie(w)
			next.ServeHTTP(w, r)
			return
		}

		if err := h.sessionService.Refresh(r.Context(), sessionID); err != nil {
			slog.ErrorContext(r.Context(), "failed to refresh session", logger.Error(err))
		}

		ctx := context.WithValue(r.Context(), userIDKey, sess.UserID)
		ctx = context.WithValue(ctx, sessionIDKey, sess.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects anonymous requests
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserID(r.Context()) == "" {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GateMiddleware applies the onboarding gate. Redirects are 302s; a failed
// profile read is a 500.
func (h *Handler) GateMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actorID := GetUserID(r.Context())
		req := onboarding.Request{
			ActorID:  actorID,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
		}
		if actorID != "" {
			req.Deferred = h.flags.Deferred(r)
		}

		d, err := h.gate.Evaluate(r.Context(), req)
		if err != nil {
			slog.ErrorContext(r.Context(), "onboarding gate failed",
				logger.UserID(actorID),
				logger.Path(r.URL.Path),
				logger.Error(err),
			)
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}

		if !d.Allowed() {
			slog.DebugContext(r.Context(), "onboarding gate redirect",
				logger.UserID(actorID),
				logger.GateOutcome(string(d.Outcome)),
				logger.Location(d.Location),
			)
			if d.Outcome == onboarding.OutcomeRevoked {
				h.auditLogger.Log(r.Context(), audit.Event{
					Type:      audit.TypeGateDenied,
					ActorID:   actorID,
					Resource:  r.URL.Path,
					IPAddress: getIPAddress(r),
					UserAgent: r.UserAgent(),
					Metadata:  map[string]any{audit.AttrReason: string(d.Outcome)},
				})
			}
			http.Redirect(w, r, d.Location, http.StatusFound)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// LocaleMiddleware negotiates the response language from the lang cookie,
// then the profile, then Accept-Language.
func (h *Handler) LocaleMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cookie, preferred string
		if c, err := r.Cookie(LangCookie); err == nil {
			cookie = c.Value
		}
		if cookie == "" {
			if actorID := GetUserID(r.Context()); actorID != "" {
				if p, err := h.profileService.Get(r.Context(), actorID); err == nil {
					preferred = p.Locale
				}
			}
		}

		loc := locale.Resolve(cookie, preferred, r.Header.Get("Accept-Language"))
		w.Header().Set("Content-Language", loc)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), localeKey, loc)))
	})
}

// CSRFMiddleware protects against Cross-Site Request Forgery for state-changing requests.
// We enforce a custom header 'X-CSRF-Token'.
func CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions || r.Method == http.MethodTrace {
			next.ServeHTTP(w, r)
			return
		}

		// Cross-site forms cannot set custom headers
		if r.Header.Get("X-CSRF-Token") == "" {
			slog.WarnContext(r.Context(), "missing CSRF token header", "method", r.Method, "path", r.URL.Path)
			respondError(w, http.StatusForbidden, "CSRF protection: X-CSRF-Token header is required for state-changing operations")
			return
		}

		next.ServeHTTP(w, r)
	})
}
