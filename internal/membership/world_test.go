package membership

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/opentrusty/tenantgate/internal/audit"
	"github.com/opentrusty/tenantgate/internal/identity"
	"github.com/opentrusty/tenantgate/internal/mail"
	"github.com/opentrusty/tenantgate/internal/profile"
	"github.com/opentrusty/tenantgate/internal/tenant"
)

// world is an in-memory backing store for users, profiles and tenants.
type world struct {
	mu       sync.Mutex
	users    map[string]*identity.User
	creds    map[string]string
	profiles map[string]*profile.Profile
	tenants  map[string]*tenant.Tenant
	updates  int

	// beforeAttach runs ahead of AttachMember's write, outside the lock
	beforeAttach func()
}

func newWorld() *world {
	return &world{
		users:    map[string]*identity.User{},
		creds:    map[string]string{},
		profiles: map[string]*profile.Profile{},
		tenants:  map[string]*tenant.Tenant{},
	}
}

// identity.UserRepository

func (w *world) Create(_ context.Context, u *identity.User, c *identity.Credentials, p *profile.Profile) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, existing := range w.users {
		if existing.Email == u.Email {
			return identity.ErrUserAlreadyExists
		}
	}
	cu := *u
	w.users[u.ID] = &cu
	if c != nil {
		w.creds[u.ID] = c.PasswordHash
	}
	cp := *p
	cp.CreatedAt = u.CreatedAt
	w.profiles[u.ID] = &cp
	return nil
}

func (w *world) GetByID(_ context.Context, id string) (*identity.User, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	u, ok := w.users[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	cu := *u
	return &cu, nil
}

func (w *world) GetByEmail(_ context.Context, email string) (*identity.User, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, u := range w.users {
		if u.Email == email {
			cu := *u
			return &cu, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (w *world) UpdateLockout(_ context.Context, userID string, attempts int, lockedUntil *time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if u, ok := w.users[userID]; ok {
		u.FailedLoginAttempts = attempts
		u.LockedUntil = lockedUntil
	}
	return nil
}

func (w *world) GetCredentials(_ context.Context, userID string) (*identity.Credentials, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	h, ok := w.creds[userID]
	if !ok {
		return nil, identity.ErrNoCredentials
	}
	return &identity.Credentials{UserID: userID, PasswordHash: h}, nil
}

func (w *world) SetPassword(_ context.Context, userID, hash string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.creds[userID] = hash
	return nil
}

// profile.Repository

func (w *world) GetByActorID(_ context.Context, actorID string) (*profile.Profile, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.profiles[actorID]
	if !ok {
		return nil, profile.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (w *world) Update(_ context.Context, p *profile.Profile) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.profiles[p.ActorID]; !ok {
		return profile.ErrProfileNotFound
	}
	cp := *p
	w.profiles[p.ActorID] = &cp
	w.updates++
	return nil
}

func (w *world) ListByTenant(_ context.Context, tenantID string) ([]*profile.Member, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []*profile.Member
	for id, p := range w.profiles {
		if p.Tenant() == tenantID {
			out = append(out, &profile.Member{Profile: *p, Email: w.users[id].Email})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (w *world) AttachMember(_ context.Context, p *profile.Profile) error {
	if w.beforeAttach != nil {
		w.beforeAttach()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	stored, ok := w.profiles[p.ActorID]
	if !ok || stored.HasTenant() {
		return profile.ErrAlreadyAttached
	}
	cp := *p
	w.profiles[p.ActorID] = &cp
	w.updates++
	return nil
}

// tenant.Repository, exposed through tenantRepo to avoid method clashes

type tenantRepo struct{ w *world }

func (r tenantRepo) CreateWithAdmin(_ context.Context, t *tenant.Tenant, adminActorID string, joinedAt time.Time) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	p, ok := r.w.profiles[adminActorID]
	if !ok {
		return profile.ErrProfileNotFound
	}
	if p.HasTenant() {
		return tenant.ErrAlreadyAttached
	}
	ct := *t
	r.w.tenants[t.ID] = &ct
	tid := t.ID
	p.TenantID = &tid
	p.Role = profile.RoleAdmin
	p.JoinedAt = &joinedAt
	p.Active = true
	return nil
}

func (r tenantRepo) GetByID(_ context.Context, id string) (*tenant.Tenant, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	t, ok := r.w.tenants[id]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	ct := *t
	return &ct, nil
}

func (r tenantRepo) Update(_ context.Context, t *tenant.Tenant) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	ct := *t
	r.w.tenants[t.ID] = &ct
	return nil
}

// snapshot returns a copy of the stored profile
func (w *world) snapshot(actorID string) profile.Profile {
	w.mu.Lock()
	defer w.mu.Unlock()
	return *w.profiles[actorID]
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, inv mail.Invitation) error {
	args := m.Called(ctx, inv)
	return args.Error(0)
}

const testSecret = "0123456789abcdef0123456789abcdef"

type fixture struct {
	world      *world
	identities *identity.Service
	tenants    *tenant.Service
	notifier   *mockNotifier
	tokens     *InviteTokens
	svc        *Service
}

func newFixture() *fixture {
	w := newWorld()
	al := audit.NewSlogLogger()
	hasher := identity.NewPasswordHasher(1024, 1, 1, 16, 32)
	ids := identity.NewService(w, hasher, al, 5, 15*time.Minute)
	tokens := NewInviteTokens(testSecret, 72*time.Hour)
	n := new(mockNotifier)
	tenants := tenant.NewService(tenantRepo{w}, al)

	svc := NewService(Options{
		Identities: ids,
		Profiles:   w,
		Tenants:    tenantRepo{w},
		Notifier:   n,
		Tokens:     tokens,
		BaseURL:    "https://app.example.com/",
		Audit:      al,
	})
	return &fixture{world: w, identities: ids, tenants: tenants, notifier: n, tokens: tokens, svc: svc}
}

// adminOf registers email, creates a workspace and returns the fresh admin profile
func (f *fixture) adminOf(ctx context.Context, email, org string) *profile.Profile {
	u, _, err := f.identities.Register(ctx, identity.Registration{Email: email, Password: "correct-horse"})
	if err != nil {
		panic(err)
	}
	if _, err := f.tenants.CreateForAdmin(ctx, u.ID, org); err != nil {
		panic(err)
	}
	p, _ := f.world.GetByActorID(ctx, u.ID)
	return p
}
