package statusapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/omnifm/omnifm-bot/types"
)

// UsageSource aggregates recorded command usage. Backed by the audit store;
// the route is only mounted when one is configured.
type UsageSource interface {
	CommandCounts(groupID string, since time.Time) (map[string]int64, error)
}

const defaultUsageDays = 7

type usagePayload struct {
	GroupID string           `json:"guildId"`
	Days    int              `json:"days"`
	Counts  map[string]int64 `json:"counts"`
}

// RegisterUsage mounts the per-guild command usage aggregate.
func (s *Server) RegisterUsage(mux *http.ServeMux, usage UsageSource) {
	mux.HandleFunc("GET /api/usage/{guild}", func(w http.ResponseWriter, r *http.Request) {
		groupID := r.PathValue("guild")
		if !types.IsSnowflake(groupID) {
			http.Error(w, "invalid guild id", http.StatusBadRequest)
			return
		}

		days := defaultUsageDays
		if raw := r.URL.Query().Get("days"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > 90 {
				http.Error(w, "days must be 1-90", http.StatusBadRequest)
				return
			}
			days = n
		}

		counts, err := usage.CommandCounts(groupID, time.Now().Add(-time.Duration(days)*24*time.Hour))
		if err != nil {
			s.log.Warn("usage query failed", "guild", groupID, "error", err)
			http.Error(w, "usage unavailable", http.StatusInternalServerError)
			return
		}
		if counts == nil {
			counts = map[string]int64{}
		}
		s.writeJSON(w, usagePayload{GroupID: groupID, Days: days, Counts: counts})
	})
}
