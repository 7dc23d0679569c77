package voice

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultDialTimeout = 10 * time.Second
	heartbeatInterval  = 30 * time.Second
	writeWait          = 5 * time.Second
	stateBuffer        = 16
)

// GatewayDialer opens websocket voice connections against the platform voice
// gateway. One dialer is shared by every session of one agent.
type GatewayDialer struct {
	Endpoint string // wss://... base, joined with /voice
	Token    string
	Log      *slog.Logger
}

func NewGatewayDialer(endpoint, token string, log *slog.Logger) *GatewayDialer {
	if log == nil {
		log = slog.Default()
	}
	return &GatewayDialer{Endpoint: endpoint, Token: token, Log: log}
}

type clientJoin struct {
	Op        string `json:"op"`
	GuildID   string `json:"guildId"`
	ChannelID string `json:"channelId"`
	Token     string `json:"token"`
}

type serverFrame struct {
	Op     string `json:"op"`
	State  string `json:"state,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (d *GatewayDialer) Dial(ctx context.Context, groupID, channelID string) (Conn, error) {
	target, err := url.JoinPath(d.Endpoint, "voice")
	if err != nil {
		return nil, fmt.Errorf("voice gateway endpoint: %w", err)
	}

	dialer := &websocket.Dialer{HandshakeTimeout: defaultDialTimeout}
	ws, resp, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("voice gateway dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("voice gateway dial: %w", err)
	}

	c := &gatewayConn{
		ws:        ws,
		groupID:   groupID,
		channelID: channelID,
		log:       d.Log.With("guild", groupID, "channel", channelID),
		states:    make(chan ConnState, stateBuffer),
		done:      make(chan struct{}),
	}
	c.state.Store(string(StateSignalling))

	if err := c.sendJSON(clientJoin{Op: "join", GuildID: groupID, ChannelID: channelID, Token: d.Token}); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("voice gateway join: %w", err)
	}

	go c.readLoop()
	go c.heartbeatLoop()
	return c, nil
}

type gatewayConn struct {
	ws        *websocket.Conn
	groupID   string
	channelID string
	log       *slog.Logger

	state     atomic.Value // string(ConnState)
	states    chan ConnState
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}
}

func (c *gatewayConn) State() ConnState {
	return ConnState(c.state.Load().(string))
}

func (c *gatewayConn) StateChanges() <-chan ConnState { return c.states }
func (c *gatewayConn) ChannelID() string              { return c.channelID }
func (c *gatewayConn) GroupID() string                { return c.groupID }

func (c *gatewayConn) SendFrame(frame []byte) error {
	if c.closed.Load() {
		return fmt.Errorf("voice connection is closed")
	}
	if c.State() != StateReady {
		return fmt.Errorf("voice connection not ready")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.BinaryMessage, frame)
}

func (c *gatewayConn) sendJSON(v any) error {
	if c.closed.Load() {
		return fmt.Errorf("voice connection is closed")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

func (c *gatewayConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		_ = c.ws.Close()
	})
	<-c.done
	return nil
}

func (c *gatewayConn) setState(next ConnState) {
	prev := c.State()
	if prev == next || prev == StateDestroyed {
		return
	}
	c.state.Store(string(next))
	select {
	case c.states <- next:
	default:
		// A stalled consumer must not block the read loop.
	}
}

func (c *gatewayConn) readLoop() {
	defer func() {
		c.setState(StateDestroyed)
		close(c.states)
		close(c.done)
	}()

	for {
		var frame serverFrame
		if err := c.ws.ReadJSON(&frame); err != nil {
			if !c.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("voice gateway read failed", "error", err)
			}
			c.setState(StateDisconnected)
			return
		}
		switch frame.Op {
		case "state":
			c.applyRemoteState(frame.State)
		case "disconnect":
			c.log.Info("voice gateway disconnect", "reason", frame.Reason)
			c.setState(StateDisconnected)
		}
	}
}

func (c *gatewayConn) applyRemoteState(raw string) {
	switch ConnState(raw) {
	case StateSignalling, StateConnecting, StateReady, StateDisconnected:
		c.setState(ConnState(raw))
	}
}

func (c *gatewayConn) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

var _ Dialer = (*GatewayDialer)(nil)
