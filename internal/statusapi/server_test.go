package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/omnifm/omnifm-bot/internal/middleware"
	"github.com/omnifm/omnifm-bot/internal/session"
	"github.com/omnifm/omnifm-bot/types"
)

type fakeSessions struct {
	id       string
	statuses []session.Status
}

func (f *fakeSessions) AgentID() string            { return f.id }
func (f *fakeSessions) Statuses() []session.Status { return f.statuses }

type fakeCatalog struct {
	stations   []types.Station
	defaultKey string
	preset     types.QualityPreset
}

func (f *fakeCatalog) All() []types.Station               { return f.stations }
func (f *fakeCatalog) DefaultKey() string                 { return f.defaultKey }
func (f *fakeCatalog) QualityPreset() types.QualityPreset { return f.preset }

func newTestServer() (*Server, *http.ServeMux) {
	agents := []Agent{
		{
			Sessions: &fakeSessions{id: "agent-1", statuses: []session.Status{
				{GroupID: "100000000000000001", State: session.StatePlaying, StationKey: "jazz"},
				{GroupID: "100000000000000002", State: session.StateIdle},
			}},
			InviteURL: "https://example.com/invite/1",
		},
		{Sessions: &fakeSessions{id: "agent-2"}},
	}
	catalog := &fakeCatalog{
		stations: []types.Station{
			{Key: "jazz", Name: "Jazz FM", URL: "https://upstream.example.com/jazz"},
			{Key: "lounge", Name: "Lounge", RequiredTier: types.TierPro},
		},
		defaultKey: "jazz",
		preset:     types.QualityMedium,
	}
	srv := NewServer(agents, catalog, nil)
	mux := http.NewServeMux()
	srv.Register(mux)
	return srv, mux
}

func get(t *testing.T, mux *http.ServeMux, path string, into any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET %s: expected 200, got %d", path, rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("GET %s: invalid JSON: %v", path, err)
	}
}

func TestHealthCounts(t *testing.T) {
	_, mux := newTestServer()

	var payload healthPayload
	get(t, mux, "/api/health", &payload)

	if payload.Status != "ok" {
		t.Errorf("expected ok status, got %q", payload.Status)
	}
	if payload.Agents != 2 || payload.Sessions != 2 || payload.Playing != 1 {
		t.Errorf("unexpected counts: %+v", payload)
	}
}

func TestAgentsListsSessions(t *testing.T) {
	_, mux := newTestServer()

	var payload []agentPayload
	get(t, mux, "/api/agents", &payload)

	if len(payload) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(payload))
	}
	if payload[0].AgentID != "agent-1" || len(payload[0].Sessions) != 2 {
		t.Errorf("unexpected first agent: %+v", payload[0])
	}
	if payload[0].InviteURL != "https://example.com/invite/1" {
		t.Errorf("invite url missing: %+v", payload[0])
	}
	if payload[1].Sessions == nil {
		t.Error("agents with no sessions must serialize an empty list, not null")
	}
}

func TestStationsHideUpstreamURLs(t *testing.T) {
	_, mux := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/stations", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "upstream.example.com") {
		t.Errorf("stream URLs must not be exposed, body: %s", rec.Body.String())
	}

	var payload stationsPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if payload.DefaultStationKey != "jazz" || payload.QualityPreset != types.QualityMedium {
		t.Errorf("unexpected catalog header: %+v", payload)
	}
	if len(payload.Stations) != 2 || payload.Stations[1].RequiredTier != types.TierPro {
		t.Errorf("unexpected stations: %+v", payload.Stations)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	_, mux := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for POST, got %d", rec.Code)
	}
}

func TestCommandBridgeRoutesByAgent(t *testing.T) {
	srv, mux := newTestServer()

	var got types.Command
	srv.RegisterCommandBridge(mux, map[string]middleware.Handler{
		"agent-1": func(_ context.Context, cmd types.Command) types.Reply {
			got = cmd
			return types.Reply{OK: true, Message: "done"}
		},
	})

	body := `{"name":"play","agentId":"agent-1","guildId":"100000000000000001","stationKey":"jazz"}`
	req := httptest.NewRequest(http.MethodPost, "/api/commands", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if got.Name != "play" || got.StationKey != "jazz" {
		t.Errorf("handler saw wrong command: %+v", got)
	}
	var reply types.Reply
	if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil || !reply.OK || reply.Message != "done" {
		t.Errorf("unexpected reply: %s (err %v)", rec.Body, err)
	}
}

type fakeUsage struct {
	counts map[string]int64
	err    error
	group  string
}

func (f *fakeUsage) CommandCounts(groupID string, _ time.Time) (map[string]int64, error) {
	f.group = groupID
	return f.counts, f.err
}

func TestUsageAggregates(t *testing.T) {
	srv, mux := newTestServer()
	usage := &fakeUsage{counts: map[string]int64{"play": 12, "stop": 3}}
	srv.RegisterUsage(mux, usage)

	var payload usagePayload
	get(t, mux, "/api/usage/100000000000000001?days=30", &payload)

	if usage.group != "100000000000000001" {
		t.Errorf("queried guild = %q", usage.group)
	}
	if payload.Days != 30 || payload.Counts["play"] != 12 || payload.Counts["stop"] != 3 {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestUsageRejectsBadInput(t *testing.T) {
	srv, mux := newTestServer()
	srv.RegisterUsage(mux, &fakeUsage{err: errors.New("pool closed")})

	cases := []struct {
		name string
		path string
		code int
	}{
		{"bad guild id", "/api/usage/nope", http.StatusBadRequest},
		{"days out of range", "/api/usage/100000000000000001?days=365", http.StatusBadRequest},
		{"store failure", "/api/usage/100000000000000001", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			if rec.Code != tc.code {
				t.Errorf("expected %d, got %d", tc.code, rec.Code)
			}
		})
	}
}

func TestCommandBridgeRejectsBadInput(t *testing.T) {
	srv, mux := newTestServer()
	srv.RegisterCommandBridge(mux, map[string]middleware.Handler{})

	cases := []struct {
		name string
		body string
		code int
	}{
		{"bad json", "{not json", http.StatusBadRequest},
		{"bad guild id", `{"name":"play","agentId":"agent-1","guildId":"nope"}`, http.StatusBadRequest},
		{"unknown agent", `{"name":"play","agentId":"agent-9","guildId":"100000000000000001"}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/commands", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			if rec.Code != tc.code {
				t.Errorf("expected %d, got %d", tc.code, rec.Code)
			}
		})
	}
}
