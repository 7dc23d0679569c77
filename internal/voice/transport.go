package voice

import (
	"context"
	"time"

	"github.com/omnifm/omnifm-bot/types"
)

// ConnState is the lifecycle of one voice transport connection.
type ConnState string

const (
	StateSignalling   ConnState = "signalling"
	StateConnecting   ConnState = "connecting"
	StateReady        ConnState = "ready"
	StateDisconnected ConnState = "disconnected"
	StateDestroyed    ConnState = "destroyed"
)

// Conn is one live voice connection to a channel. Implementations emit every
// state change on the StateChanges channel until the connection is destroyed,
// at which point the channel is closed.
type Conn interface {
	State() ConnState
	StateChanges() <-chan ConnState
	ChannelID() string
	GroupID() string
	// SendFrame ships one encoded audio frame. Only valid in StateReady.
	SendFrame(frame []byte) error
	Close() error
}

// Dialer opens voice connections. The production implementation speaks the
// platform voice gateway over websocket; tests substitute fakes.
type Dialer interface {
	Dial(ctx context.Context, groupID, channelID string) (Conn, error)
}

// WaitForState blocks until the connection reaches one of the wanted states or
// the timeout elapses. The current state counts: a connection already in a
// wanted state returns immediately.
func WaitForState(ctx context.Context, conn Conn, timeout time.Duration, wanted ...ConnState) error {
	isWanted := func(s ConnState) bool {
		for _, w := range wanted {
			if s == w {
				return true
			}
		}
		return false
	}
	if isWanted(conn.State()) {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case state, ok := <-conn.StateChanges():
			if !ok {
				if isWanted(StateDestroyed) {
					return nil
				}
				return types.ErrConnectTimeout
			}
			if isWanted(state) {
				return nil
			}
		case <-timer.C:
			return types.ErrConnectTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
