package store

import (
	"log/slog"
	"sync"
	"time"

	"github.com/omnifm/omnifm-bot/types"
)

// SnapshotStore persists the last-known channel/station/volume per
// (agent, group) so restarted agents can resume where they left off. The
// document is agent id → group id → snapshot.
type SnapshotStore struct {
	mu   sync.Mutex
	file *jsonFile
	log  *slog.Logger
	now  func() time.Time
}

func NewSnapshotStore(path string, log *slog.Logger) *SnapshotStore {
	if log == nil {
		log = slog.Default()
	}
	return &SnapshotStore{
		file: newJSONFile(path, true, log),
		log:  log,
		now:  time.Now,
	}
}

func (s *SnapshotStore) load() map[string]map[string]types.Snapshot {
	doc := map[string]map[string]types.Snapshot{}
	if err := s.file.Load(&doc); err != nil {
		s.log.Warn("snapshot load failed, starting empty", "error", err)
		doc = map[string]map[string]types.Snapshot{}
	}
	return doc
}

func (s *SnapshotStore) save(doc map[string]map[string]types.Snapshot) {
	if err := s.file.Save(doc); err != nil {
		s.log.Warn("snapshot save failed", "error", err)
	}
}

// Put records a snapshot for (agent, group). Snapshots missing a station or
// channel are pruned instead, a session with nothing playing has nothing worth
// resuming.
func (s *SnapshotStore) Put(agentID, groupID string, snap types.Snapshot) {
	if snap.StationKey == "" || snap.ChannelID == "" {
		s.Clear(agentID, groupID)
		return
	}
	snap.SavedAt = s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.load()
	agent := doc[agentID]
	if agent == nil {
		agent = map[string]types.Snapshot{}
		doc[agentID] = agent
	}
	agent[groupID] = snap
	s.save(doc)
}

// Get returns the stored snapshot for (agent, group), if any.
func (s *SnapshotStore) Get(agentID, groupID string) (types.Snapshot, bool) {
	s.mu.Lock()
	doc := s.load()
	s.mu.Unlock()
	snap, exists := doc[agentID][groupID]
	return snap, exists
}

// Agent returns every stored snapshot for one agent keyed by group id.
func (s *SnapshotStore) Agent(agentID string) map[string]types.Snapshot {
	s.mu.Lock()
	doc := s.load()
	s.mu.Unlock()
	out := map[string]types.Snapshot{}
	for groupID, snap := range doc[agentID] {
		out[groupID] = snap
	}
	return out
}

// Clear removes the (agent, group) snapshot, dropping the agent entry when it
// becomes empty.
func (s *SnapshotStore) Clear(agentID, groupID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.load()
	agent, exists := doc[agentID]
	if !exists {
		return
	}
	if _, exists := agent[groupID]; !exists {
		return
	}
	delete(agent, groupID)
	if len(agent) == 0 {
		delete(doc, agentID)
	}
	s.save(doc)
}
