package session

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/omnifm/omnifm-bot/internal/voice"
	"github.com/omnifm/omnifm-bot/types"
)

const (
	// defaultConnectTimeout bounds the wait for a dialed connection to go ready.
	defaultConnectTimeout = 20 * time.Second
	// defaultRecoveryWindow bounds each wait for a dropped connection to
	// re-enter signalling or connecting. One attempt; no retry loop.
	defaultRecoveryWindow = 5 * time.Second
)

// TierSource resolves a group's effective tier profile.
type TierSource interface {
	GetTierConfig(groupID string) types.TierConfig
	EffectiveTier(groupID string) types.Tier
}

// StationResolver maps station keys to playable feeds under a tier ceiling.
type StationResolver interface {
	Resolve(groupID, requestedKey string, ceiling types.Tier) (types.Station, error)
	QualityPreset() types.QualityPreset
}

// SnapshotSink persists per-(agent,group) resume state.
type SnapshotSink interface {
	Put(agentID, groupID string, snap types.Snapshot)
	Clear(agentID, groupID string)
}

// Supervisor owns every voice session of one agent: one state machine per
// group, lazily created, never shared across agents.
type Supervisor struct {
	agentID   string
	dialer    voice.Dialer
	tiers     TierSource
	stations  StationResolver
	snapshots SnapshotSink
	log       *slog.Logger

	// newPlayer, streamInfo and the timeouts are swapped by tests.
	newPlayer      func() streamPlayer
	streamInfo     func(ctx context.Context, rawURL string) voice.StreamMeta
	connectTimeout time.Duration
	recoveryWindow time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSupervisor(agentID string, dialer voice.Dialer, tiers TierSource, stations StationResolver, snapshots SnapshotSink, client *http.Client, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("agent", agentID)
	return &Supervisor{
		agentID:        agentID,
		dialer:         dialer,
		tiers:          tiers,
		stations:       stations,
		snapshots:      snapshots,
		log:            log,
		newPlayer: func() streamPlayer { return voice.NewPlayer(client, log) },
		streamInfo: func(ctx context.Context, rawURL string) voice.StreamMeta {
			return voice.FetchStreamInfo(ctx, client, rawURL)
		},
		connectTimeout: defaultConnectTimeout,
		recoveryWindow: defaultRecoveryWindow,
		sessions:       make(map[string]*Session),
	}
}

func (sv *Supervisor) session(groupID string) *Session {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	sess, ok := sv.sessions[groupID]
	if !ok {
		sess = newSession(groupID, sv.newPlayer())
		sess.player.OnIdle(func() { sv.handleFeedEnd(sess) })
		sv.sessions[groupID] = sess
	}
	return sess
}

// Start connects to the caller's voice channel if needed, resolves the
// requested station under the group's tier ceiling, and begins playback.
// An empty stationKey resolves the default station. The returned station is
// what actually plays.
func (sv *Supervisor) Start(ctx context.Context, groupID, channelID, stationKey string) (types.Station, error) {
	if channelID == "" {
		return types.Station{}, types.ErrNoVoiceChannel
	}
	sess := sv.session(groupID)
	sess.cmdMu.Lock()
	defer sess.cmdMu.Unlock()

	conn, err := sv.ensureConnected(ctx, sess, channelID)
	if err != nil {
		return types.Station{}, err
	}

	// Station resolution failures must not disturb whatever is playing.
	station, err := sv.stations.Resolve(groupID, stationKey, sv.tiers.EffectiveTier(groupID))
	if err != nil {
		return types.Station{}, err
	}

	if err := sess.player.Play(ctx, conn, station.URL, sv.stations.QualityPreset()); err != nil {
		sess.mu.Lock()
		sess.lastStreamErrorAt = time.Now()
		if sess.state == StateConnecting {
			sess.state = StateConnected
		}
		sess.mu.Unlock()
		return types.Station{}, err
	}

	// The feed's own ICY name wins over the catalog entry when it has one.
	stationName := station.Name
	if meta := sv.streamInfo(ctx, station.URL); meta.Name != "" {
		stationName = meta.Name
	}

	sess.mu.Lock()
	sess.state = StatePlaying
	sess.currentStationKey = station.Key
	sess.currentStationName = stationName
	sess.lastChannelID = channelID
	sess.mu.Unlock()

	sv.persist(sess)
	sv.log.Info("playback started", "guild", groupID, "station", station.Key, "channel", channelID)
	return station, nil
}

// ensureConnected reuses a live connection to the same channel, or tears the
// old one down and dials fresh. Caller holds cmdMu.
func (sv *Supervisor) ensureConnected(ctx context.Context, sess *Session, channelID string) (voice.Conn, error) {
	sess.mu.Lock()
	conn := sess.conn
	sess.mu.Unlock()

	if conn != nil && conn.ChannelID() == channelID && conn.State() != voice.StateDestroyed && conn.State() != voice.StateDisconnected {
		return conn, nil
	}
	if conn != nil {
		sess.player.Stop()
		_ = conn.Close()
		sess.mu.Lock()
		sess.conn = nil
		sess.mu.Unlock()
	}

	dialCtx, cancel := context.WithCancel(ctx)
	sess.mu.Lock()
	sess.state = StateConnecting
	sess.startCancel = cancel
	sess.mu.Unlock()
	defer func() {
		cancel()
		sess.mu.Lock()
		sess.startCancel = nil
		sess.mu.Unlock()
	}()

	fresh, err := sv.dialer.Dial(dialCtx, sess.groupID, channelID)
	if err != nil {
		sess.mu.Lock()
		sess.state = StateIdle
		sess.mu.Unlock()
		if dialCtx.Err() != nil {
			return nil, types.ErrConnectTimeout
		}
		return nil, err
	}
	if err := voice.WaitForState(dialCtx, fresh, sv.connectTimeout, voice.StateReady); err != nil {
		_ = fresh.Close()
		sess.mu.Lock()
		sess.state = StateIdle
		sess.mu.Unlock()
		return nil, types.ErrConnectTimeout
	}

	sess.mu.Lock()
	sess.conn = fresh
	sess.state = StateConnected
	sess.lastChannelID = channelID
	sess.mu.Unlock()

	go sv.watch(sess, fresh)
	return fresh, nil
}

// watch follows one connection's state changes until it is destroyed,
// translating transport drops into the recovery path.
func (sv *Supervisor) watch(sess *Session, conn voice.Conn) {
	for state := range conn.StateChanges() {
		if state == voice.StateDisconnected {
			sv.handleDisconnect(sess, conn)
		}
	}
	// Channel closed: connection destroyed. Nothing to do unless it is
	// still the session's live handle.
	sess.mu.Lock()
	stale := sess.conn == conn
	if stale {
		sess.conn = nil
	}
	sess.mu.Unlock()
}

// handleDisconnect gives the transport one chance to recover: a bounded wait
// for it to fall back into signalling or connecting, then a bounded wait to
// come ready again. No retry loop; an unrecovered drop lands the session in
// Idle with its snapshot cleared.
func (sv *Supervisor) handleDisconnect(sess *Session, conn voice.Conn) {
	sess.mu.Lock()
	if sess.conn != conn {
		sess.mu.Unlock()
		return
	}
	wasPlaying := sess.state == StatePlaying
	sess.state = StateReconnecting
	sess.reconnects++
	sess.lastReconnectAt = time.Now()
	sess.mu.Unlock()

	sv.log.Warn("voice transport dropped", "guild", sess.groupID)

	ctx := context.Background()
	err := voice.WaitForState(ctx, conn, sv.recoveryWindow, voice.StateSignalling, voice.StateConnecting)
	if err == nil {
		err = voice.WaitForState(ctx, conn, sv.connectTimeout, voice.StateReady)
	}
	if err == nil {
		sess.mu.Lock()
		if sess.conn == conn {
			if wasPlaying {
				sess.state = StatePlaying
			} else {
				sess.state = StateConnected
			}
		}
		sess.mu.Unlock()
		sv.log.Info("voice transport recovered", "guild", sess.groupID)
		return
	}

	sess.player.Stop()
	_ = conn.Close()
	sess.mu.Lock()
	if sess.conn == conn {
		sess.conn = nil
		sess.state = StateIdle
		sess.currentStationKey = ""
		sess.currentStationName = ""
	}
	sess.mu.Unlock()
	sv.snapshots.Clear(sv.agentID, sess.groupID)
	sv.log.Warn("voice transport lost, session idled", "guild", sess.groupID)
}

// handleFeedEnd runs when a feed ends on its own. The connection stays up;
// the session drops back to Connected with nothing to resume.
func (sv *Supervisor) handleFeedEnd(sess *Session) {
	sess.mu.Lock()
	if sess.state != StatePlaying && sess.state != StatePaused {
		sess.mu.Unlock()
		return
	}
	sess.state = StateConnected
	sess.currentStationKey = ""
	sess.currentStationName = ""
	sess.mu.Unlock()

	sv.persist(sess)
	sv.log.Info("feed ended", "guild", sess.groupID)
}

// Pause gates playback. Tolerant: pausing a session that is not playing
// reports false without error.
func (sv *Supervisor) Pause(groupID string) bool {
	sess := sv.session(groupID)
	sess.cmdMu.Lock()
	defer sess.cmdMu.Unlock()

	if !sess.player.Pause() {
		return false
	}
	sess.mu.Lock()
	sess.state = StatePaused
	sess.mu.Unlock()
	sv.persist(sess)
	return true
}

// Resume reopens playback. Tolerant like Pause.
func (sv *Supervisor) Resume(groupID string) bool {
	sess := sv.session(groupID)
	sess.cmdMu.Lock()
	defer sess.cmdMu.Unlock()

	if !sess.player.Resume() {
		return false
	}
	sess.mu.Lock()
	sess.state = StatePlaying
	sess.mu.Unlock()
	sv.persist(sess)
	return true
}

// Stop tears the session down to Idle. Idempotent; also cancels an in-flight
// Start so half-open connections are not leaked.
func (sv *Supervisor) Stop(groupID string) {
	sess := sv.session(groupID)

	sess.mu.Lock()
	if cancel := sess.startCancel; cancel != nil {
		cancel()
	}
	sess.mu.Unlock()

	sess.cmdMu.Lock()
	defer sess.cmdMu.Unlock()

	sess.player.Stop()
	sess.mu.Lock()
	conn := sess.conn
	sess.conn = nil
	sess.state = StateIdle
	sess.currentStationKey = ""
	sess.currentStationName = ""
	sess.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	sv.snapshots.Clear(sv.agentID, groupID)
}

// SetVolume clamps and applies the volume, persisting it with the snapshot.
func (sv *Supervisor) SetVolume(groupID string, v int) int {
	sess := sv.session(groupID)
	sess.cmdMu.Lock()
	defer sess.cmdMu.Unlock()

	applied := sess.player.SetVolume(v)
	sess.mu.Lock()
	sess.volume = applied
	sess.mu.Unlock()
	sv.persist(sess)
	return applied
}

// Status reports one group's session view.
func (sv *Supervisor) Status(groupID string) Status {
	return sv.session(groupID).status()
}

// Statuses reports every live session sorted by group id.
func (sv *Supervisor) Statuses() []Status {
	sv.mu.Lock()
	sessions := make([]*Session, 0, len(sv.sessions))
	for _, sess := range sv.sessions {
		sessions = append(sessions, sess)
	}
	sv.mu.Unlock()

	out := make([]Status, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	return out
}

// AgentID identifies the agent this supervisor belongs to.
func (sv *Supervisor) AgentID() string { return sv.agentID }

// Shutdown stops every session. Used on process exit; snapshots are kept so
// the next start can resume.
func (sv *Supervisor) Shutdown() {
	sv.mu.Lock()
	sessions := make([]*Session, 0, len(sv.sessions))
	for _, sess := range sv.sessions {
		sessions = append(sessions, sess)
	}
	sv.mu.Unlock()

	for _, sess := range sessions {
		sess.cmdMu.Lock()
		sess.player.Stop()
		sess.mu.Lock()
		conn := sess.conn
		sess.conn = nil
		sess.state = StateIdle
		sess.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		sess.cmdMu.Unlock()
	}
}

func (sv *Supervisor) persist(sess *Session) {
	sv.snapshots.Put(sv.agentID, sess.groupID, sess.snapshot())
}
