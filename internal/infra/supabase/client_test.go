package supabase_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/equipedash/equipe-dash-go/internal/domain"
	"github.com/equipedash/equipe-dash-go/internal/infra/observability"
	"github.com/equipedash/equipe-dash-go/internal/infra/resilience"
	"github.com/equipedash/equipe-dash-go/internal/infra/supabase"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.Handler) (*supabase.Client, *httptest.Server) {
	t.Helper()
	client, srv, _ := newTestClientWithMetrics(t, handler)
	return client, srv
}

func newTestClientWithMetrics(t *testing.T, handler http.Handler) (*supabase.Client, *httptest.Server, *observability.Metrics) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	metrics := observability.NewMetrics()
	cfg := resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond}
	client := supabase.NewClient(srv.Client(), srv.URL, "anon-key", "",
		resilience.NewCircuitBreaker("test"), cfg, metrics, zap.NewNop())
	return client, srv, metrics
}

// counterValue reads one labeled counter out of the registry.
func counterValue(t *testing.T, metrics *observability.Metrics, name, labelValue string) float64 {
	t.Helper()
	families, err := metrics.Registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetValue() == labelValue {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestListEvents_QueryConstruction(t *testing.T) {
	var gotPath, gotQuery, gotAPIKey, gotAuth string

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAPIKey = r.Header.Get("apikey")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"ev-1","title":"Visita ao cliente","category":"visita","status":"planejado","start_date":"2026-03-10T09:00:00Z","end_date":"2026-03-10T10:00:00Z"}]`))
	}))

	events, err := client.ListEvents(context.Background(), domain.EventFilter{
		AssignedTo: "user-1",
		Category:   domain.CategoryVisita,
		StartDate:  "2026-03-01",
		EndDate:    "2026-03-31",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(events) != 1 || events[0].ID != "ev-1" {
		t.Errorf("expected one decoded event, got %+v", events)
	}

	if gotPath != "/rest/v1/events" {
		t.Errorf("expected path /rest/v1/events, got %s", gotPath)
	}
	for _, want := range []string{
		"order=start_date.asc",
		"assigned_to=eq.user-1",
		"category=eq.visita",
		"start_date=gte.2026-03-01",
		"end_date=lte.2026-03-31",
	} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("expected query to contain %q, got %s", want, gotQuery)
		}
	}
	if gotAPIKey != "anon-key" {
		t.Errorf("expected apikey header, got %q", gotAPIKey)
	}
	if gotAuth != "Bearer anon-key" {
		t.Errorf("expected anon bearer, got %q", gotAuth)
	}
}

func TestListEvents_RemoteFailure(t *testing.T) {
	client, _, metrics := newTestClientWithMetrics(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"permission denied"}`, http.StatusForbidden)
	}))

	_, err := client.ListEvents(context.Background(), domain.EventFilter{})
	var qerr *domain.ErrRemoteQuery
	if !errors.As(err, &qerr) {
		t.Fatalf("expected ErrRemoteQuery, got %v", err)
	}
	if qerr.Table != "events" {
		t.Errorf("expected table events, got %s", qerr.Table)
	}
	if got := counterValue(t, metrics, "dash_remote_errors_total", "postgrest"); got < 1 {
		t.Errorf("expected the backend failure counted, got %v", got)
	}
}

func TestCreateEvent_ReturnsRepresentation(t *testing.T) {
	var gotPrefer string
	var gotBody map[string]any

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		gotPrefer = r.Header.Get("Prefer")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`[{"id":"ev-new","title":"Cobrança","category":"cobranca","status":"planejado","created_at":"2026-03-01T12:00:00Z"}]`))
	}))

	created, err := client.CreateEvent(context.Background(), &domain.Event{
		Title:    "Cobrança",
		Category: domain.CategoryCobranca,
		Status:   domain.StatusPlanejado,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if created.ID != "ev-new" {
		t.Errorf("expected server-assigned id, got %q", created.ID)
	}
	if gotPrefer != "return=representation" {
		t.Errorf("expected return=representation, got %q", gotPrefer)
	}
	if _, present := gotBody["id"]; present {
		t.Error("insert payload must not carry a client-chosen id")
	}
}

func TestUpdateEvent_StripsImmutableColumns(t *testing.T) {
	var gotQuery string
	var gotBody map[string]any

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH, got %s", r.Method)
		}
		gotQuery = r.URL.RawQuery
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))

	err := client.UpdateEvent(context.Background(), "ev-1", map[string]any{
		"id":         "other-id",
		"created_at": "1999-01-01T00:00:00Z",
		"status":     "realizado",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if gotQuery != "id=eq.ev-1" {
		t.Errorf("expected id=eq.ev-1, got %s", gotQuery)
	}
	if _, present := gotBody["id"]; present {
		t.Error("id must not be patchable")
	}
	if _, present := gotBody["created_at"]; present {
		t.Error("created_at must not be patchable")
	}
	if gotBody["status"] != "realizado" {
		t.Errorf("expected status patched, got %v", gotBody["status"])
	}
	if _, present := gotBody["updated_at"]; !present {
		t.Error("expected updated_at to be stamped")
	}
}

func TestDeleteEvent(t *testing.T) {
	var gotMethod, gotQuery string

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := client.DeleteEvent(context.Background(), "ev-1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if gotMethod != http.MethodDelete || gotQuery != "id=eq.ev-1" {
		t.Errorf("expected DELETE id=eq.ev-1, got %s %s", gotMethod, gotQuery)
	}
}

func TestGetUser_Missing(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))

	user, err := client.GetUser(context.Background(), "user-missing")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user != nil {
		t.Errorf("expected nil for missing profile, got %+v", user)
	}
}

func TestGetGroupMeta_Unwritten(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))

	meta, err := client.GetGroupMeta(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if meta != nil {
		t.Errorf("expected nil before the goal is first written, got %+v", meta)
	}
}

func TestUpsertGroupMeta_MergesOnConflict(t *testing.T) {
	var gotPrefer string
	var gotBody map[string]any

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPrefer = r.Header.Get("Prefer")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`[{"id":"meta_principal","numeric_value":5000}]`))
	}))

	meta, err := client.UpsertGroupMeta(context.Background(), 5000, "sup-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if meta.NumericValue != 5000 {
		t.Errorf("expected numeric_value 5000, got %v", meta.NumericValue)
	}
	if !strings.Contains(gotPrefer, "resolution=merge-duplicates") {
		t.Errorf("expected upsert Prefer header, got %q", gotPrefer)
	}
	if gotBody["id"] != domain.GroupMetaID {
		t.Errorf("expected fixed id %q, got %v", domain.GroupMetaID, gotBody["id"])
	}
}
