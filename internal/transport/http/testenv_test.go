package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opentrusty/tenantgate/internal/audit"
	"github.com/opentrusty/tenantgate/internal/identity"
	"github.com/opentrusty/tenantgate/internal/mail"
	"github.com/opentrusty/tenantgate/internal/membership"
	"github.com/opentrusty/tenantgate/internal/onboarding"
	"github.com/opentrusty/tenantgate/internal/profile"
	"github.com/opentrusty/tenantgate/internal/session"
	"github.com/opentrusty/tenantgate/internal/tenant"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// memStore backs users, profiles, tenants and sessions in memory
type memStore struct {
	mu       sync.Mutex
	users    map[string]*identity.User
	creds    map[string]string
	profiles map[string]*profile.Profile
	tenants  map[string]*tenant.Tenant
	sessions map[string]*session.Session
	failRead bool
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[string]*identity.User{},
		creds:    map[string]string{},
		profiles: map[string]*profile.Profile{},
		tenants:  map[string]*tenant.Tenant{},
		sessions: map[string]*session.Session{},
	}
}

func (m *memStore) Create(_ context.Context, u *identity.User, c *identity.Credentials, p *profile.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return identity.ErrUserAlreadyExists
		}
	}
	cu := *u
	m.users[u.ID] = &cu
	if c != nil {
		m.creds[u.ID] = c.PasswordHash
	}
	cp := *p
	m.profiles[u.ID] = &cp
	return nil
}

func (m *memStore) GetByID(_ context.Context, id string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	cu := *u
	return &cu, nil
}

func (m *memStore) GetByEmail(_ context.Context, email string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cu := *u
			return &cu, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (m *memStore) UpdateLockout(_ context.Context, userID string, attempts int, lockedUntil *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.FailedLoginAttempts = attempts
		u.LockedUntil = lockedUntil
	}
	return nil
}

func (m *memStore) GetCredentials(_ context.Context, userID string) (*identity.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.creds[userID]
	if !ok {
		return nil, identity.ErrNoCredentials
	}
	return &identity.Credentials{UserID: userID, PasswordHash: h}, nil
}

func (m *memStore) SetPassword(_ context.Context, userID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[userID] = hash
	return nil
}

func (m *memStore) GetByActorID(_ context.Context, actorID string) (*profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRead {
		return nil, errors.New("database unavailable")
	}
	p, ok := m.profiles[actorID]
	if !ok {
		return nil, profile.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) Update(_ context.Context, p *profile.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.ActorID]; !ok {
		return profile.ErrProfileNotFound
	}
	cp := *p
	m.profiles[p.ActorID] = &cp
	return nil
}

func (m *memStore) ListByTenant(_ context.Context, tenantID string) ([]*profile.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*profile.Member
	for id, p := range m.profiles {
		if p.Tenant() == tenantID {
			out = append(out, &profile.Member{Profile: *p, Email: m.users[id].Email})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *memStore) AttachMember(_ context.Context, p *profile.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.profiles[p.ActorID]
	if !ok || stored.HasTenant() {
		return profile.ErrAlreadyAttached
	}
	cp := *p
	m.profiles[p.ActorID] = &cp
	return nil
}

func (m *memStore) setFailRead(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRead = fail
}

// memTenants implements tenant.Repository over the shared store
type memTenants struct{ m *memStore }

func (r memTenants) CreateWithAdmin(_ context.Context, t *tenant.Tenant, adminActorID string, joinedAt time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.profiles[adminActorID]
	if !ok {
		return profile.ErrProfileNotFound
	}
	if p.HasTenant() {
		return tenant.ErrAlreadyAttached
	}
	ct := *t
	r.m.tenants[t.ID] = &ct
	tid := t.ID
	p.TenantID = &tid
	p.Role = profile.RoleAdmin
	p.JoinedAt = &joinedAt
	p.Active = true
	return nil
}

func (r memTenants) GetByID(_ context.Context, id string) (*tenant.Tenant, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	t, ok := r.m.tenants[id]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	ct := *t
	return &ct, nil
}

func (r memTenants) Update(_ context.Context, t *tenant.Tenant) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.tenants[t.ID]; !ok {
		return tenant.ErrTenantNotFound
	}
	ct := *t
	r.m.tenants[t.ID] = &ct
	return nil
}

// memSessions implements session.Repository over the shared store
type memSessions struct{ m *memStore }

func (r memSessions) Create(_ context.Context, s *session.Session) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cs := *s
	r.m.sessions[s.ID] = &cs
	return nil
}

func (r memSessions) Get(_ context.Context, id string) (*session.Session, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	cs := *s
	return &cs, nil
}

func (r memSessions) Touch(_ context.Context, id string, t time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.sessions[id]
	if !ok {
		return session.ErrSessionNotFound
	}
	s.LastSeenAt = t
	return nil
}

func (r memSessions) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.sessions, id)
	return nil
}

func (r memSessions) DeleteByUserID(_ context.Context, userID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for id, s := range r.m.sessions {
		if s.UserID == userID {
			delete(r.m.sessions, id)
		}
	}
	return nil
}

func (r memSessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for id, s := range r.m.sessions {
		if s.IsExpired(now) {
			delete(r.m.sessions, id)
			n++
		}
	}
	return n, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

// recordingNotifier keeps the invitations it was handed
type recordingNotifier struct {
	mu   sync.Mutex
	sent []mail.Invitation
}

func (n *recordingNotifier) Notify(_ context.Context, inv mail.Invitation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, inv)
	return nil
}

func (n *recordingNotifier) last(t *testing.T) mail.Invitation {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent)
	return n.sent[len(n.sent)-1]
}

type testEnv struct {
	store    *memStore
	notifier *recordingNotifier
	sessions *session.Service
	server   *httptest.Server
}

func newTestEnv(t *testing.T, pingErr error) *testEnv {
	t.Helper()

	store := newMemStore()
	al := audit.NewSlogLoggerWith(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ids := identity.NewService(store, identity.NewPasswordHasher(1024, 1, 1, 16, 32), al, 5, 15*time.Minute)
	tenants := tenant.NewService(memTenants{store}, al)
	sessions := session.NewService(memSessions{store}, 24*time.Hour, 30*time.Minute)
	notifier := &recordingNotifier{}
	urls := onboarding.DefaultURLs()

	members := membership.NewService(membership.Options{
		Identities: ids,
		Profiles:   store,
		Tenants:    memTenants{store},
		Notifier:   notifier,
		Tokens:     membership.NewInviteTokens(testSecret, 72*time.Hour),
		BaseURL:    "http://tenantgate.test",
		Audit:      al,
	})

	cookieCfg := SessionConfig{
		CookieName:     "tenantgate_session",
		CookiePath:     "/",
		CookieHTTPOnly: true,
		CookieSameSite: http.SameSiteLaxMode,
	}

	h := NewHandler(Services{
		Identity:   ids,
		Sessions:   sessions,
		Profiles:   profile.NewService(store, al),
		Tenants:    tenants,
		Onboarding: onboarding.NewService(store, tenants, al, nil),
		Membership: members,
		Gate:       onboarding.NewGate(store, urls, nil, nil),
		URLs:       urls,
		Audit:      al,
		DB:         stubPinger{err: pingErr},
	}, NewFlagStore([]byte(testSecret), "tenantgate_flags", cookieCfg), cookieCfg)

	srv := httptest.NewServer(NewRouter(h, NewRateLimiter(1000, 1000, time.Minute), RouterConfig{}))
	t.Cleanup(srv.Close)

	return &testEnv{store: store, notifier: notifier, sessions: sessions, server: srv}
}

// browser is one cookie-carrying client that does not follow redirects
type browser struct {
	t      *testing.T
	env    *testEnv
	client *http.Client
}

func (e *testEnv) browser(t *testing.T) *browser {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{
		t:   t,
		env: e,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

type response struct {
	Code     int
	Location string
	Body     map[string]any
	Cookies  []*http.Cookie
}

func (b *browser) do(method, path string, body any) response {
	b.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(b.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, b.env.server.URL+path, reader)
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", "test")

	res, err := b.client.Do(req)
	require.NoError(b.t, err)
	defer res.Body.Close()

	out := response{Code: res.StatusCode, Location: res.Header.Get("Location"), Cookies: res.Cookies()}
	raw, _ := io.ReadAll(res.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out.Body)
	}
	return out
}

func (b *browser) get(path string) response { return b.do(http.MethodGet, path, nil) }

func (b *browser) post(path string, body any) response { return b.do(http.MethodPost, path, body) }

func (b *browser) put(path string, body any) response { return b.do(http.MethodPut, path, body) }

// register signs up a fresh actor and returns its ID
func (b *browser) register(email string) string {
	b.t.Helper()
	res := b.post("/api/v1/auth/register", map[string]string{
		"email":    email,
		"password": "correct-horse-battery",
		"timezone": "Europe/Brussels",
		"language": "nl",
		"country":  "BE",
	})
	require.Equal(b.t, http.StatusCreated, res.Code, res.Body)
	return res.Body["user_id"].(string)
}

// onboard registers and completes both wizard steps
func (b *browser) onboard(email, org string) string {
	b.t.Helper()
	actorID := b.register(email)
	res := b.post("/api/v1/onboarding/profile", map[string]string{
		"display_name": "Test User",
		"timezone":     "Europe/Brussels",
	})
	require.Equal(b.t, http.StatusOK, res.Code, res.Body)
	res = b.post("/api/v1/onboarding/workspace", map[string]string{"organization": org})
	require.Equal(b.t, http.StatusCreated, res.Code, res.Body)
	return actorID
}

// pathOf strips scheme and host from an absolute link
func pathOf(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.EscapedPath()
}
