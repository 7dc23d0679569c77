package session

import (
	"context"
	"sync"
	"time"

	"github.com/omnifm/omnifm-bot/internal/voice"
	"github.com/omnifm/omnifm-bot/types"
)

// State is the lifecycle of one (agent, group) voice session.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StatePlaying      State = "playing"
	StatePaused       State = "paused"
	StateReconnecting State = "reconnecting"
)

// streamPlayer is the slice of voice.Player the session drives.
type streamPlayer interface {
	Play(ctx context.Context, conn voice.Conn, streamURL string, preset types.QualityPreset) error
	Pause() bool
	Resume() bool
	Stop()
	State() voice.PlayerState
	SetVolume(v int) int
	Volume() int
	OnIdle(fn func())
}

// Session holds the live handles and last-known playback facts for one
// (agent, group) pair. Connection and player handles are owned exclusively by
// the session; commands serialize on cmdMu.
type Session struct {
	groupID string
	player  streamPlayer

	// cmdMu serializes start/stop/pause/resume/setvolume for the pair.
	cmdMu sync.Mutex

	// mu guards the fields below. Held briefly, never across dials.
	mu                 sync.Mutex
	state              State
	conn               voice.Conn
	currentStationKey  string
	currentStationName string
	lastChannelID      string
	volume             int
	startCancel        context.CancelFunc
	reconnects         int
	lastReconnectAt    time.Time
	lastStreamErrorAt  time.Time
}

func newSession(groupID string, player streamPlayer) *Session {
	return &Session{
		groupID: groupID,
		player:  player,
		state:   StateIdle,
		volume:  100,
	}
}

// Status is a point-in-time view of a session for status surfaces.
type Status struct {
	GroupID         string    `json:"guildId"`
	State           State     `json:"state"`
	StationKey      string    `json:"stationKey,omitempty"`
	StationName     string    `json:"stationName,omitempty"`
	ChannelID       string    `json:"channelId,omitempty"`
	Volume          int       `json:"volume"`
	Reconnects      int       `json:"reconnects"`
	LastReconnectAt time.Time `json:"lastReconnectAt,omitzero"`
	LastStreamError time.Time `json:"lastStreamErrorAt,omitzero"`
}

func (s *Session) status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		GroupID:         s.groupID,
		State:           s.state,
		StationKey:      s.currentStationKey,
		StationName:     s.currentStationName,
		ChannelID:       s.lastChannelID,
		Volume:          s.volume,
		Reconnects:      s.reconnects,
		LastReconnectAt: s.lastReconnectAt,
		LastStreamError: s.lastStreamErrorAt,
	}
}

func (s *Session) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// snapshot captures the persistable part of the session. Zero station or
// channel means "nothing to resume".
func (s *Session) snapshot() types.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.Snapshot{
		ChannelID:   s.lastChannelID,
		StationKey:  s.currentStationKey,
		StationName: s.currentStationName,
		Volume:      s.volume,
	}
}
