package statusapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/omnifm/omnifm-bot/internal/middleware"
	"github.com/omnifm/omnifm-bot/types"
)

const maxCommandBody = 16 << 10

// RegisterCommandBridge mounts the inbound command endpoint. The platform
// edge (the piece speaking the chat platform's own protocol) POSTs decoded
// commands here; routing is by agent id, and the reply is returned verbatim
// so the edge can relay it to the caller.
func (s *Server) RegisterCommandBridge(mux *http.ServeMux, routes map[string]middleware.Handler) {
	mux.HandleFunc("POST /api/commands", func(w http.ResponseWriter, r *http.Request) {
		var cmd types.Command
		body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBody))
		if err != nil || json.Unmarshal(body, &cmd) != nil {
			http.Error(w, "invalid command payload", http.StatusBadRequest)
			return
		}
		if !types.IsSnowflake(cmd.GroupID) {
			http.Error(w, "invalid guild id", http.StatusBadRequest)
			return
		}

		handler, ok := routes[cmd.AgentID]
		if !ok {
			http.Error(w, "unknown agent", http.StatusNotFound)
			return
		}

		reply := handler(r.Context(), cmd)
		s.writeJSON(w, reply)
	})
}
