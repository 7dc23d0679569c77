// Package statusapi exposes the orchestrator's public status surface.
package statusapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/omnifm/omnifm-bot/internal/session"
	"github.com/omnifm/omnifm-bot/types"
)

// SessionSource is the per-agent status surface the API reads.
type SessionSource interface {
	AgentID() string
	Statuses() []session.Status
}

// Agent pairs a supervisor with its public metadata.
type Agent struct {
	Sessions  SessionSource
	InviteURL string
}

// CatalogSource is the global station catalog surface the API reads.
type CatalogSource interface {
	All() []types.Station
	DefaultKey() string
	QualityPreset() types.QualityPreset
}

type Server struct {
	agents    []Agent
	catalog   CatalogSource
	startedAt time.Time
	log       *slog.Logger
}

func NewServer(agents []Agent, catalog CatalogSource, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{agents: agents, catalog: catalog, startedAt: time.Now(), log: log}
}

// Register mounts the API routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/agents", s.handleAgents)
	mux.HandleFunc("GET /api/stations", s.handleStations)
}

type healthPayload struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"startedAt"`
	UptimeSec int64     `json:"uptimeSec"`
	Agents    int       `json:"agents"`
	Sessions  int       `json:"sessions"`
	Playing   int       `json:"playing"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	payload := healthPayload{
		Status:    "ok",
		StartedAt: s.startedAt.UTC(),
		UptimeSec: int64(time.Since(s.startedAt) / time.Second),
		Agents:    len(s.agents),
	}
	for _, agent := range s.agents {
		statuses := agent.Sessions.Statuses()
		payload.Sessions += len(statuses)
		for _, st := range statuses {
			if st.State == session.StatePlaying {
				payload.Playing++
			}
		}
	}
	s.writeJSON(w, payload)
}

type agentPayload struct {
	AgentID   string           `json:"agentId"`
	InviteURL string           `json:"inviteUrl,omitempty"`
	Sessions  []session.Status `json:"sessions"`
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	payload := make([]agentPayload, 0, len(s.agents))
	for _, agent := range s.agents {
		statuses := agent.Sessions.Statuses()
		if statuses == nil {
			statuses = []session.Status{}
		}
		payload = append(payload, agentPayload{
			AgentID:   agent.Sessions.AgentID(),
			InviteURL: agent.InviteURL,
			Sessions:  statuses,
		})
	}
	s.writeJSON(w, payload)
}

type stationPayload struct {
	Key          string     `json:"key"`
	Name         string     `json:"name"`
	RequiredTier types.Tier `json:"requiredTier,omitempty"`
}

type stationsPayload struct {
	DefaultStationKey string              `json:"defaultStationKey,omitempty"`
	QualityPreset     types.QualityPreset `json:"qualityPreset"`
	Stations          []stationPayload    `json:"stations"`
}

// handleStations lists the global catalog without stream URLs; upstream
// addresses stay server-side.
func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	all := s.catalog.All()
	payload := stationsPayload{
		DefaultStationKey: s.catalog.DefaultKey(),
		QualityPreset:     s.catalog.QualityPreset(),
		Stations:          make([]stationPayload, 0, len(all)),
	}
	for _, st := range all {
		payload.Stations = append(payload.Stations, stationPayload{
			Key:          st.Key,
			Name:         st.Name,
			RequiredTier: st.RequiredTier,
		})
	}
	s.writeJSON(w, payload)
}

func (s *Server) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warn("status response write failed", "error", err)
	}
}
