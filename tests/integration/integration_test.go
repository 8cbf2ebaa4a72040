// End-to-end tests: the full router wired to real services,
// repositories and the Supabase client, talking to an in-process fake
// of the Supabase REST and auth APIs.
package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/equipedash/equipe-dash-go/internal/domain"
	"github.com/equipedash/equipe-dash-go/internal/handler"
	"github.com/equipedash/equipe-dash-go/internal/infra/cache"
	"github.com/equipedash/equipe-dash-go/internal/infra/observability"
	"github.com/equipedash/equipe-dash-go/internal/infra/resilience"
	"github.com/equipedash/equipe-dash-go/internal/infra/supabase"
	"github.com/equipedash/equipe-dash-go/internal/repository"
	"github.com/equipedash/equipe-dash-go/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const jwtSecret = "integration-test-secret"

// fakeSupabase emulates the slices of PostgREST and GoTrue the
// application touches: users, events and notifications tables plus
// password login. State lives in memory per test.
type fakeSupabase struct {
	mu            sync.Mutex
	users         map[string]domain.UserProfile
	events        map[string]domain.Event
	notifications map[string]domain.Notification
	eventSeq      int

	passwords map[string]string // email -> password
}

func newFakeSupabase() *fakeSupabase {
	return &fakeSupabase{
		users:         make(map[string]domain.UserProfile),
		events:        make(map[string]domain.Event),
		notifications: make(map[string]domain.Notification),
		passwords:     make(map[string]string),
	}
}

func (f *fakeSupabase) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", f.handleLogin)
	mux.HandleFunc("/rest/v1/users", f.handleUsers)
	mux.HandleFunc("/rest/v1/events", f.handleEvents)
	mux.HandleFunc("/rest/v1/notifications", f.handleNotifications)
	mux.HandleFunc("/rest/v1/group_meta", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	})
	return mux
}

func (f *fakeSupabase) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	json.NewDecoder(r.Body).Decode(&creds)

	f.mu.Lock()
	stored, known := f.passwords[creds.Email]
	f.mu.Unlock()
	if !known || stored != creds.Password {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error_description": "Invalid login credentials"}`))
		return
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "auth-" + creds.Email,
		"email": creds.Email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, _ := token.SignedString([]byte(jwtSecret))

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{
		"access_token": %q,
		"refresh_token": "ref-1",
		"expires_in": 3600,
		"user": {"id": %q, "email": %q, "user_metadata": {}}
	}`, signed, "auth-"+creds.Email, creds.Email)
}

func eqParam(r *http.Request, name string) string {
	return strings.TrimPrefix(r.URL.Query().Get(name), "eq.")
}

func (f *fakeSupabase) handleUsers(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		var out []domain.UserProfile
		id := eqParam(r, "id")
		for _, u := range f.users {
			if id != "" && u.ID != id {
				continue
			}
			out = append(out, u)
		}
		if out == nil {
			out = []domain.UserProfile{}
		}
		json.NewEncoder(w).Encode(out)
	case http.MethodPost:
		var u domain.UserProfile
		json.NewDecoder(r.Body).Decode(&u)
		f.users[u.ID] = u
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode([]domain.UserProfile{u})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeSupabase) handleEvents(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		id := eqParam(r, "id")
		category := eqParam(r, "category")
		assignedTo := eqParam(r, "assigned_to")
		var out []domain.Event
		for _, ev := range f.events {
			if id != "" && ev.ID != id {
				continue
			}
			if category != "" && string(ev.Category) != category {
				continue
			}
			if assignedTo != "" && ev.AssignedTo != assignedTo {
				continue
			}
			out = append(out, ev)
		}
		if out == nil {
			out = []domain.Event{}
		}
		json.NewEncoder(w).Encode(out)
	case http.MethodPost:
		var ev domain.Event
		json.NewDecoder(r.Body).Decode(&ev)
		f.eventSeq++
		ev.ID = fmt.Sprintf("ev-%d", f.eventSeq)
		ev.CreatedAt = time.Now().UTC().Format(time.RFC3339)
		f.events[ev.ID] = ev
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode([]domain.Event{ev})
	case http.MethodDelete:
		delete(f.events, eqParam(r, "id"))
		w.WriteHeader(http.StatusNoContent)
	case http.MethodPatch:
		id := eqParam(r, "id")
		ev, ok := f.events[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var fields map[string]any
		json.NewDecoder(r.Body).Decode(&fields)
		if v, ok := fields["status"].(string); ok {
			ev.Status = domain.EventStatus(v)
		}
		if v, ok := fields["title"].(string); ok {
			ev.Title = v
		}
		f.events[id] = ev
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeSupabase) handleNotifications(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		out := make([]domain.Notification, 0, len(f.notifications))
		for _, n := range f.notifications {
			out = append(out, n)
		}
		json.NewEncoder(w).Encode(out)
	case http.MethodPost:
		var n domain.Notification
		json.NewDecoder(r.Body).Decode(&n)
		n.ID = fmt.Sprintf("not-%d", len(f.notifications)+1)
		f.notifications[n.ID] = n
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode([]domain.Notification{n})
	case http.MethodDelete:
		delete(f.notifications, eqParam(r, "id"))
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type stubFeed struct{}

func (stubFeed) OnTableChange(string, func()) (func(), error) { return func() {}, nil }

// newTestApp wires the full application against the fake backend and
// returns the router.
func newTestApp(t *testing.T, fake *fakeSupabase) http.Handler {
	t.Helper()

	backend := httptest.NewServer(fake.handler())
	t.Cleanup(backend.Close)

	logger := zap.NewNop()
	cfg := resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond}
	client := supabase.NewClient(backend.Client(), backend.URL, "anon-key", "",
		resilience.NewCircuitBreaker("integration"), cfg, observability.NewMetrics(), logger)

	opts := repository.Options{
		Metrics:  observability.NewMetrics(),
		Logger:   logger,
		Bulkhead: resilience.NewBulkhead(4),
	}
	events := repository.NewEvents(client, stubFeed{}, opts)
	users := repository.NewUsers(client, stubFeed{}, opts)
	notifications := repository.NewNotifications(client, stubFeed{}, opts)
	meta := repository.NewGroupMeta(client, stubFeed{}, opts)

	sessions := service.NewSessionManager(client, client, logger)

	return handler.NewRouter(handler.Deps{
		Sessions:      sessions,
		Events:        service.NewEventService(events, logger),
		Notifications: service.NewNotificationService(notifications, logger),
		Meta:          service.NewMetaService(meta, events, logger),
		Performance:   service.NewPerformanceService(events, users),
		Users:         users,
		Streamer:      handler.NewStreamer(events, users, notifications, meta, logger),
		ProfileCache:  cache.New[*domain.UserProfile](time.Minute),
		JWTSecret:     jwtSecret,
		Metrics:       observability.NewMetrics(),
		Logger:        logger,
	})
}

func signToken(t *testing.T, sub, email string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(jwtSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func do(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// An agent logs activities of different categories and the calendar
// filter separates them.
func TestCalendarFlow(t *testing.T) {
	fake := newFakeSupabase()
	fake.users["ag-1"] = domain.UserProfile{ID: "ag-1", Name: "Carlos", Role: domain.RoleAgent}
	router := newTestApp(t, fake)
	token := signToken(t, "ag-1", "carlos@example.com")

	for _, category := range []string{"visita", "reuniao"} {
		rec := do(t, router, http.MethodPost, "/v1/events", token, map[string]any{
			"title":      "Atividade " + category,
			"category":   category,
			"start_date": "2026-03-10T09:00:00Z",
			"end_date":   "2026-03-10T10:00:00Z",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("create %s: expected 201, got %d: %s", category, rec.Code, rec.Body.String())
		}
	}

	rec := do(t, router, http.MethodGet, "/v1/events?category=visita", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var visitas []domain.Event
	json.Unmarshal(rec.Body.Bytes(), &visitas)
	if len(visitas) != 1 || visitas[0].Category != domain.CategoryVisita {
		t.Errorf("expected exactly the visita event, got %+v", visitas)
	}

	// Mark it done and check it feeds the performance aggregate.
	rec = do(t, router, http.MethodPatch, "/v1/events/"+visitas[0].ID, token, map[string]any{"status": "realizado"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, router, http.MethodGet, "/v1/performance/team", token, nil)
	var summary service.TeamSummary
	json.Unmarshal(rec.Body.Bytes(), &summary)
	if summary.Total != 2 || summary.ByStatus.Realizado != 1 {
		t.Errorf("unexpected team summary: %+v", summary)
	}
}

// Only supervisors manage announcements; agents read them.
func TestNotificationPolicy(t *testing.T) {
	fake := newFakeSupabase()
	fake.users["sup-1"] = domain.UserProfile{ID: "sup-1", Name: "Ana", Role: domain.RoleSupervisor}
	fake.users["ag-1"] = domain.UserProfile{ID: "ag-1", Name: "Carlos", Role: domain.RoleAgent}
	router := newTestApp(t, fake)

	supToken := signToken(t, "sup-1", "ana@example.com")
	agentToken := signToken(t, "ag-1", "carlos@example.com")

	rec := do(t, router, http.MethodPost, "/v1/notifications", supToken, map[string]any{
		"title": "Reunião geral",
		"body":  "Sexta às 10h",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created domain.Notification
	json.Unmarshal(rec.Body.Bytes(), &created)

	rec = do(t, router, http.MethodGet, "/v1/notifications", agentToken, nil)
	var listed []domain.Notification
	json.Unmarshal(rec.Body.Bytes(), &listed)
	if len(listed) != 1 {
		t.Errorf("agents must see announcements, got %v", listed)
	}

	rec = do(t, router, http.MethodDelete, "/v1/notifications/"+created.ID, agentToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for an agent delete, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodDelete, "/v1/notifications/"+created.ID, supToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 for a supervisor delete, got %d", rec.Code)
	}
}

// Logging in with an identity that has no profile row yet provisions
// exactly one AGENT profile named after the email's local part.
func TestFirstLoginProvisioning(t *testing.T) {
	fake := newFakeSupabase()
	fake.passwords["bia.santos@example.com"] = "s3cret"
	router := newTestApp(t, fake)

	rec := do(t, router, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":    "bia.santos@example.com",
		"password": "s3cret",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var login struct {
		AccessToken string              `json:"access_token"`
		User        *domain.UserProfile `json:"user"`
	}
	json.Unmarshal(rec.Body.Bytes(), &login)
	if login.AccessToken == "" {
		t.Fatal("expected an access token")
	}
	if login.User == nil || login.User.Role != domain.RoleAgent || login.User.Name != "bia.santos" {
		t.Errorf("unexpected provisioned profile: %+v", login.User)
	}

	fake.mu.Lock()
	stored, ok := fake.users["auth-bia.santos@example.com"]
	count := len(fake.users)
	fake.mu.Unlock()
	if !ok || count != 1 {
		t.Fatalf("expected exactly one provisioned profile row, got %d", count)
	}
	if stored.Role != domain.RoleAgent {
		t.Errorf("expected AGENT role stored, got %s", stored.Role)
	}

	// The issued token works against protected routes and a second
	// login does not create a second row.
	rec = do(t, router, http.MethodGet, "/v1/auth/session", login.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected the issued token accepted, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":    "bia.santos@example.com",
		"password": "s3cret",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("second login failed: %d", rec.Code)
	}
	fake.mu.Lock()
	count = len(fake.users)
	fake.mu.Unlock()
	if count != 1 {
		t.Errorf("expected the existing profile reused, got %d rows", count)
	}
}

// Bad credentials surface as 401 from the auth backend, not a generic
// failure.
func TestLoginRejectsBadCredentials(t *testing.T) {
	fake := newFakeSupabase()
	fake.passwords["ana@example.com"] = "correct"
	router := newTestApp(t, fake)

	rec := do(t, router, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":    "ana@example.com",
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
}

// A backend outage on a read surfaces as a gateway error, not a
// generic 500.
func TestBackendOutageMapsToGateway(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "db down", http.StatusInternalServerError)
	}))
	t.Cleanup(backend.Close)

	logger := zap.NewNop()
	cfg := resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond}
	client := supabase.NewClient(backend.Client(), backend.URL, "anon-key", "",
		resilience.NewCircuitBreaker("outage"), cfg, observability.NewMetrics(), logger)

	opts := repository.Options{Metrics: observability.NewMetrics(), Logger: logger}
	events := repository.NewEvents(client, stubFeed{}, opts)
	users := repository.NewUsers(client, stubFeed{}, opts)
	notifications := repository.NewNotifications(client, stubFeed{}, opts)
	meta := repository.NewGroupMeta(client, stubFeed{}, opts)

	profileCache := cache.New[*domain.UserProfile](time.Minute)
	profileCache.Set("ag-1", &domain.UserProfile{ID: "ag-1", Role: domain.RoleAgent})

	router := handler.NewRouter(handler.Deps{
		Sessions:      service.NewSessionManager(client, client, logger),
		Events:        service.NewEventService(events, logger),
		Notifications: service.NewNotificationService(notifications, logger),
		Meta:          service.NewMetaService(meta, events, logger),
		Performance:   service.NewPerformanceService(events, users),
		Users:         users,
		Streamer:      handler.NewStreamer(events, users, notifications, meta, logger),
		ProfileCache:  profileCache,
		JWTSecret:     jwtSecret,
		Metrics:       observability.NewMetrics(),
		Logger:        logger,
	})

	token := signToken(t, "ag-1", "carlos@example.com")
	rec := do(t, router, http.MethodGet, "/v1/events", token, nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502 while the backend is down, got %d: %s", rec.Code, rec.Body.String())
	}
}
