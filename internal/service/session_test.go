package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/equipedash/equipe-dash-go/internal/domain"
	"github.com/equipedash/equipe-dash-go/internal/port"
	"github.com/equipedash/equipe-dash-go/internal/service"

	"go.uber.org/zap"
)

// --- Fakes ---

type fakeAuth struct {
	identity   *port.AuthIdentity
	session    *port.AuthSession
	sessionErr error
	signUpErr  error

	mu         sync.Mutex
	signOutTok string
}

func (f *fakeAuth) SignUp(_ context.Context, email, _ string, metadata map[string]any) (*port.AuthIdentity, error) {
	if f.signUpErr != nil {
		return nil, f.signUpErr
	}
	id := &port.AuthIdentity{ID: "auth-" + email, Email: email}
	if v, ok := metadata["name"].(string); ok {
		id.Name = v
	}
	if v, ok := metadata["role"].(string); ok {
		id.Role = v
	}
	return id, nil
}

func (f *fakeAuth) SignInWithPassword(_ context.Context, email, _ string) (*port.AuthSession, error) {
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	if f.session != nil {
		return f.session, nil
	}
	return &port.AuthSession{
		AccessToken: "token-" + email,
		ExpiresIn:   3600,
		Identity:    port.AuthIdentity{ID: "auth-" + email, Email: email},
	}, nil
}

func (f *fakeAuth) SignOut(_ context.Context, accessToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOutTok = accessToken
	return nil
}

func (f *fakeAuth) GetSession(_ context.Context, _ string) (*port.AuthIdentity, error) {
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	return f.identity, nil
}

type fakeUserStore struct {
	mu      sync.Mutex
	users   map[string]*domain.UserProfile
	creates int
	getErr  error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*domain.UserProfile)}
}

func (f *fakeUserStore) ListUsers(_ context.Context) ([]domain.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.UserProfile, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out, nil
}

func (f *fakeUserStore) GetUser(_ context.Context, id string) (*domain.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserStore) CreateUser(_ context.Context, u *domain.UserProfile) (*domain.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	cp := *u
	f.users[u.ID] = &cp
	return &cp, nil
}

func (f *fakeUserStore) UpdateUser(_ context.Context, id string, fields map[string]any) error {
	return nil
}

// --- Tests ---

func TestResolveProfile_ProvisionsOnFirstLogin(t *testing.T) {
	users := newFakeUserStore()
	m := service.NewSessionManager(&fakeAuth{}, users, zap.NewNop())

	profile, err := m.ResolveProfile(context.Background(), &port.AuthIdentity{
		ID:    "auth-1",
		Email: "carlos.souza@example.com",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if profile.Role != domain.RoleAgent {
		t.Errorf("provisioned profile must default to AGENT, got %s", profile.Role)
	}
	if profile.Name != "carlos.souza" {
		t.Errorf("expected name from email local part, got %q", profile.Name)
	}
	if users.creates != 1 {
		t.Errorf("expected exactly one profile insert, got %d", users.creates)
	}
}

func TestResolveProfile_PrefersMetadataName(t *testing.T) {
	users := newFakeUserStore()
	m := service.NewSessionManager(&fakeAuth{}, users, zap.NewNop())

	profile, err := m.ResolveProfile(context.Background(), &port.AuthIdentity{
		ID:    "auth-1",
		Email: "carlos@example.com",
		Name:  "Carlos Souza",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if profile.Name != "Carlos Souza" {
		t.Errorf("expected metadata name, got %q", profile.Name)
	}
}

func TestResolveProfile_ExistingProfileNotRecreated(t *testing.T) {
	users := newFakeUserStore()
	users.users["auth-1"] = &domain.UserProfile{
		ID:   "auth-1",
		Name: "Ana",
		Role: domain.RoleSupervisor,
	}
	m := service.NewSessionManager(&fakeAuth{}, users, zap.NewNop())

	profile, err := m.ResolveProfile(context.Background(), &port.AuthIdentity{
		ID:    "auth-1",
		Email: "ana@example.com",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if profile.Role != domain.RoleSupervisor {
		t.Errorf("existing role must be preserved, got %s", profile.Role)
	}
	if users.creates != 0 {
		t.Errorf("expected no insert for an existing profile, got %d", users.creates)
	}
}

func TestResolveProfile_LookupFailure(t *testing.T) {
	users := newFakeUserStore()
	users.getErr = errors.New("timeout")
	m := service.NewSessionManager(&fakeAuth{}, users, zap.NewNop())

	_, err := m.ResolveProfile(context.Background(), &port.AuthIdentity{ID: "auth-1"})
	var perr *domain.ErrProfileResolution
	if !errors.As(err, &perr) {
		t.Fatalf("expected ErrProfileResolution, got %v", err)
	}
}

func TestSignup_KeepsChosenRole(t *testing.T) {
	users := newFakeUserStore()
	m := service.NewSessionManager(&fakeAuth{}, users, zap.NewNop())

	err := m.Signup(context.Background(), "Ana", "ana@example.com", "s3cret", domain.RoleSupervisor, "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	stored := users.users["auth-ana@example.com"]
	if stored == nil {
		t.Fatal("expected profile row inserted at signup")
	}
	if stored.Role != domain.RoleSupervisor {
		t.Errorf("signup must keep the chosen role, got %s", stored.Role)
	}
}

func TestSignup_RejectsUnknownRole(t *testing.T) {
	m := service.NewSessionManager(&fakeAuth{}, newFakeUserStore(), zap.NewNop())

	err := m.Signup(context.Background(), "Ana", "ana@example.com", "s3cret", domain.Role("ADMIN"), "")
	var verr *domain.ErrValidation
	if !errors.As(err, &verr) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestStart_EmptyTokenSettlesAnonymous(t *testing.T) {
	m := service.NewSessionManager(&fakeAuth{}, newFakeUserStore(), zap.NewNop())

	if m.State() != service.StateLoading {
		t.Fatalf("expected loading before Start, got %s", m.State())
	}

	m.Start(context.Background(), "")
	if m.State() != service.StateAnonymous {
		t.Errorf("expected anonymous, got %s", m.State())
	}
	if m.CurrentUser() != nil {
		t.Error("expected no current user when anonymous")
	}
}

func TestStart_RecoveryFailureSettlesAnonymous(t *testing.T) {
	auth := &fakeAuth{sessionErr: errors.New("token expired")}
	m := service.NewSessionManager(auth, newFakeUserStore(), zap.NewNop())

	m.Start(context.Background(), "stale-token")
	if m.State() != service.StateAnonymous {
		t.Errorf("expected anonymous after failed recovery, got %s", m.State())
	}
}

func TestStart_RecoversSession(t *testing.T) {
	auth := &fakeAuth{identity: &port.AuthIdentity{ID: "auth-1", Email: "ana@example.com", Name: "Ana"}}
	users := newFakeUserStore()
	m := service.NewSessionManager(auth, users, zap.NewNop())

	var transitions []service.SessionState
	var mu sync.Mutex
	stop := m.OnAuthStateChange(func(s service.SessionState, _ *domain.UserProfile) {
		mu.Lock()
		transitions = append(transitions, s)
		mu.Unlock()
	})
	defer stop()

	m.Start(context.Background(), "tok-abc")
	if m.State() != service.StateAuthenticated {
		t.Fatalf("expected authenticated, got %s", m.State())
	}
	if got := m.CurrentUser(); got == nil || got.ID != "auth-1" {
		t.Errorf("expected resolved profile, got %+v", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != 1 || transitions[0] != service.StateAuthenticated {
		t.Errorf("expected one authenticated transition, got %v", transitions)
	}
}

func TestLogin_ReturnsCallerProfileWithoutTouchingManagerState(t *testing.T) {
	auth := &fakeAuth{}
	users := newFakeUserStore()
	m := service.NewSessionManager(auth, users, zap.NewNop())
	m.Start(context.Background(), "")

	sess, profile, err := m.Login(context.Background(), "ana@example.com", "s3cret")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if sess.AccessToken != "token-ana@example.com" {
		t.Errorf("expected session passed through, got %+v", sess)
	}
	if profile == nil || profile.ID != "auth-ana@example.com" {
		t.Fatalf("expected the caller's resolved profile, got %+v", profile)
	}
	if users.creates != 1 {
		t.Errorf("expected first login to provision the profile, got %d inserts", users.creates)
	}

	// The manager serves every user of the process; one caller logging
	// in must not become its current identity.
	if m.State() != service.StateAnonymous {
		t.Errorf("manager state must be untouched by a login, got %s", m.State())
	}
	if m.CurrentUser() != nil {
		t.Errorf("manager must not adopt a caller's profile, got %+v", m.CurrentUser())
	}
}

func TestLogin_ConcurrentUsersKeepTheirOwnProfiles(t *testing.T) {
	auth := &fakeAuth{}
	m := service.NewSessionManager(auth, newFakeUserStore(), zap.NewNop())

	_, alice, err := m.Login(context.Background(), "alice@example.com", "pw")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	_, bob, err := m.Login(context.Background(), "bob@example.com", "pw")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if alice.Email != "alice@example.com" || bob.Email != "bob@example.com" {
		t.Errorf("each login must resolve its own caller, got %q and %q", alice.Email, bob.Email)
	}
}

func TestLogout_RevokesOnlyTheCallersToken(t *testing.T) {
	auth := &fakeAuth{}
	m := service.NewSessionManager(auth, newFakeUserStore(), zap.NewNop())

	aliceSess, _, err := m.Login(context.Background(), "alice@example.com", "pw")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, _, err := m.Login(context.Background(), "bob@example.com", "pw"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Alice signs out after Bob logged in; her token, not his, must be
	// the one revoked.
	if err := m.Logout(context.Background(), aliceSess.AccessToken); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	auth.mu.Lock()
	revoked := auth.signOutTok
	auth.mu.Unlock()
	if revoked != "token-alice@example.com" {
		t.Errorf("expected alice's token revoked, got %q", revoked)
	}
}

func TestLogout_RejectsEmptyToken(t *testing.T) {
	m := service.NewSessionManager(&fakeAuth{}, newFakeUserStore(), zap.NewNop())

	err := m.Logout(context.Background(), "")
	var uerr *domain.ErrUnauthorized
	if !errors.As(err, &uerr) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestOnAuthStateChange_StopIsIdempotent(t *testing.T) {
	m := service.NewSessionManager(&fakeAuth{}, newFakeUserStore(), zap.NewNop())

	calls := 0
	stop := m.OnAuthStateChange(func(service.SessionState, *domain.UserProfile) { calls++ })
	stop()
	stop()

	m.Start(context.Background(), "")
	if calls != 0 {
		t.Errorf("expected no callbacks after stop, got %d", calls)
	}
}
