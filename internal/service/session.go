// Package service holds the application services: session/identity
// management, event and notification rules, the group goal and the
// performance derivations.
package service

import (
	"context"
	"sync"

	"github.com/equipedash/equipe-dash-go/internal/domain"
	"github.com/equipedash/equipe-dash-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var sessionTracer = otel.Tracer("service/session")

// SessionState is the lifecycle of the identity manager.
type SessionState string

const (
	StateLoading       SessionState = "loading"
	StateAuthenticated SessionState = "authenticated"
	StateAnonymous     SessionState = "anonymous"
)

// SessionManager bridges the raw auth identity to the application's
// UserProfile. It starts in the loading state until an existing
// session has been recovered (or ruled out); after that first
// resolution, auth events re-resolve the profile internally without
// re-exposing loading, which keeps consumers from flickering on token
// refresh.
//
// The state held here is the process's own session (the one recovered
// at startup). Login and Logout serve individual callers: many users
// share one server, so their tokens live in their requests, never in
// the manager.
type SessionManager struct {
	auth   port.AuthGateway
	users  port.UserStore
	logger *zap.Logger

	mu      sync.RWMutex
	state   SessionState
	current *domain.UserProfile

	listenerID int
	listeners  map[int]func(SessionState, *domain.UserProfile)
}

// NewSessionManager creates the manager in the loading state.
func NewSessionManager(auth port.AuthGateway, users port.UserStore, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		auth:      auth,
		users:     users,
		logger:    logger,
		state:     StateLoading,
		listeners: make(map[int]func(SessionState, *domain.UserProfile)),
	}
}

// Start attempts to recover the session behind accessToken. An empty
// token or a failed resolution settles the manager as anonymous; it
// never retries indefinitely.
func (m *SessionManager) Start(ctx context.Context, accessToken string) {
	ctx, span := sessionTracer.Start(ctx, "SessionManager.Start")
	defer span.End()

	if accessToken == "" {
		m.transition(StateAnonymous, nil)
		return
	}

	identity, err := m.auth.GetSession(ctx, accessToken)
	if err != nil {
		m.logger.Warn("session: recovery failed, starting anonymous", zap.Error(err))
		m.transition(StateAnonymous, nil)
		return
	}

	profile, err := m.ResolveProfile(ctx, identity)
	if err != nil {
		m.logger.Warn("session: profile resolution failed, starting anonymous", zap.Error(err))
		m.transition(StateAnonymous, nil)
		return
	}

	m.transition(StateAuthenticated, profile)
}

// ResolveProfile maps an auth identity to its UserProfile row,
// provisioning one on the identity's first-ever login: role AGENT,
// name from signup metadata or the email's local part, photo from the
// metadata avatar when present. This is the only place profile rows
// are created outside explicit signup.
func (m *SessionManager) ResolveProfile(ctx context.Context, identity *port.AuthIdentity) (*domain.UserProfile, error) {
	ctx, span := sessionTracer.Start(ctx, "SessionManager.ResolveProfile")
	defer span.End()
	span.SetAttributes(attribute.String("identity.id", identity.ID))

	existing, err := m.users.GetUser(ctx, identity.ID)
	if err != nil {
		return nil, &domain.ErrProfileResolution{IdentityID: identity.ID, Err: err}
	}
	if existing != nil {
		return existing, nil
	}

	name := identity.Name
	if name == "" {
		name = domain.NameFromEmail(identity.Email)
	}

	created, err := m.users.CreateUser(ctx, &domain.UserProfile{
		ID:       identity.ID,
		Email:    identity.Email,
		Name:     name,
		Role:     domain.RoleAgent,
		PhotoURL: identity.PhotoURL,
	})
	if err != nil {
		return nil, &domain.ErrProfileResolution{IdentityID: identity.ID, Err: err}
	}

	m.logger.Info("session: provisioned profile on first login",
		zap.String("user_id", created.ID),
		zap.String("name", created.Name),
	)
	return created, nil
}

// Signup registers a new auth identity with name and role embedded as
// metadata, then explicitly inserts the matching profile row with the
// chosen role. Duplicate email and weak-password policy live in the
// auth backend.
func (m *SessionManager) Signup(ctx context.Context, name, email, password string, role domain.Role, photoURL string) error {
	ctx, span := sessionTracer.Start(ctx, "SessionManager.Signup")
	defer span.End()

	if !domain.ValidRole(role) {
		return &domain.ErrValidation{Field: "role", Message: "must be SUPERVISOR or AGENT"}
	}

	metadata := map[string]any{
		"name": name,
		"role": string(role),
	}
	if photoURL != "" {
		metadata["avatar_url"] = photoURL
	}

	identity, err := m.auth.SignUp(ctx, email, password, metadata)
	if err != nil {
		return err
	}

	if _, err := m.users.CreateUser(ctx, &domain.UserProfile{
		ID:       identity.ID,
		Email:    email,
		Name:     name,
		Role:     role,
		PhotoURL: photoURL,
	}); err != nil {
		return err
	}

	m.logger.Info("session: user signed up",
		zap.String("user_id", identity.ID),
		zap.String("role", string(role)),
	)
	return nil
}

// Login delegates to the auth backend and, on success, resolves the
// caller's profile. The session with its tokens and the profile are
// returned to the HTTP layer; concurrent logins by different users do
// not observe each other, so manager state is left untouched.
func (m *SessionManager) Login(ctx context.Context, email, password string) (*port.AuthSession, *domain.UserProfile, error) {
	ctx, span := sessionTracer.Start(ctx, "SessionManager.Login")
	defer span.End()

	sess, err := m.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}

	profile, err := m.ResolveProfile(ctx, &sess.Identity)
	if err != nil {
		return nil, nil, err
	}

	return sess, profile, nil
}

// Logout revokes the caller's own access token, and only that token.
func (m *SessionManager) Logout(ctx context.Context, accessToken string) error {
	ctx, span := sessionTracer.Start(ctx, "SessionManager.Logout")
	defer span.End()

	if accessToken == "" {
		return &domain.ErrUnauthorized{Message: "no session to revoke"}
	}
	return m.auth.SignOut(ctx, accessToken)
}

// OnAuthStateChange registers a standing listener for state
// transitions. The returned stop function is idempotent.
func (m *SessionManager) OnAuthStateChange(fn func(SessionState, *domain.UserProfile)) func() {
	m.mu.Lock()
	m.listenerID++
	id := m.listenerID
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// CurrentUser returns the resolved profile, or nil when anonymous or
// still loading.
func (m *SessionManager) CurrentUser() *domain.UserProfile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// State returns the current lifecycle state.
func (m *SessionManager) State() SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *SessionManager) transition(state SessionState, profile *domain.UserProfile) {
	m.mu.Lock()
	m.state = state
	m.current = profile
	fns := make([]func(SessionState, *domain.UserProfile), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(state, profile)
	}
}
