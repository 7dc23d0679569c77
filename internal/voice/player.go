package voice

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/omnifm/omnifm-bot/types"
)

// PlayerState is the playback status of one session's player.
type PlayerState string

const (
	PlayerIdle    PlayerState = "idle"
	PlayerPlaying PlayerState = "playing"
	PlayerPaused  PlayerState = "paused"
)

const (
	frameSize     = 3840 // 20ms of 48kHz stereo s16le
	frameInterval = 20 * time.Millisecond
)

// BitrateForPreset maps a quality preset to the transcode bitrate. The custom
// preset passes the feed through untouched.
func BitrateForPreset(preset types.QualityPreset) (bitrate string, transcode bool) {
	switch preset {
	case types.QualityLow:
		return "96k", true
	case types.QualityMedium:
		return "128k", true
	case types.QualityHigh:
		return "192k", true
	default:
		return "", false
	}
}

// Player pumps one remote feed into one voice connection. It owns the fetch
// goroutine; Play replaces any running feed, Pause/Resume gate frame delivery
// without touching the upstream fetch, Stop tears everything down.
type Player struct {
	log    *slog.Logger
	client *http.Client

	mu      sync.Mutex
	state   PlayerState
	volume  int
	cancel  context.CancelFunc
	pauseCh chan bool
	onIdle  func()
}

func NewPlayer(client *http.Client, log *slog.Logger) *Player {
	if log == nil {
		log = slog.Default()
	}
	return &Player{
		log:    log,
		client: client,
		state:  PlayerIdle,
		volume: 100,
	}
}

// OnIdle registers a callback fired when a feed ends on its own (upstream
// closed or errored). Not fired on explicit Stop.
func (p *Player) OnIdle(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onIdle = fn
}

func (p *Player) State() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// SetVolume clamps to 0..100 and applies immediately to the running feed.
func (p *Player) SetVolume(v int) int {
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	p.mu.Lock()
	p.volume = v
	p.mu.Unlock()
	return v
}

// Play fetches the feed, probes its framing, and starts pumping frames into
// conn. A fetch or probe failure is ErrStreamUnavailable and leaves the
// previous playback stopped but the connection untouched.
func (p *Player) Play(ctx context.Context, conn Conn, streamURL string, preset types.QualityPreset) error {
	body, _, err := FetchStream(ctx, p.client, streamURL)
	if err != nil {
		return err
	}
	kind, reader, err := ProbeStream(body)
	if err != nil {
		_ = body.Close()
		return err
	}

	bitrate, transcode := BitrateForPreset(preset)
	p.log.Info("starting playback",
		"container", string(kind), "transcode", transcode, "bitrate", bitrate)

	p.stopLocked(false)

	runCtx, cancel := context.WithCancel(context.Background())
	pauseCh := make(chan bool, 1)

	p.mu.Lock()
	p.cancel = cancel
	p.pauseCh = pauseCh
	p.state = PlayerPlaying
	p.mu.Unlock()

	go p.pump(runCtx, conn, body, reader, pauseCh)
	return nil
}

// Pause gates frame delivery. A no-op unless currently playing.
func (p *Player) Pause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != PlayerPlaying {
		return false
	}
	p.state = PlayerPaused
	select {
	case p.pauseCh <- true:
	default:
	}
	return true
}

// Resume reopens frame delivery. A no-op unless currently paused.
func (p *Player) Resume() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != PlayerPaused {
		return false
	}
	p.state = PlayerPlaying
	select {
	case p.pauseCh <- false:
	default:
	}
	return true
}

// Stop tears down the running feed. Idempotent.
func (p *Player) Stop() {
	p.stopLocked(true)
}

func (p *Player) stopLocked(markIdle bool) {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.pauseCh = nil
	if markIdle {
		p.state = PlayerIdle
	}
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (p *Player) pump(ctx context.Context, conn Conn, body io.Closer, reader io.Reader, pauseCh chan bool) {
	defer body.Close()

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	frame := make([]byte, frameSize)
	paused := false

	finish := func(natural bool) {
		p.mu.Lock()
		running := p.pauseCh == pauseCh
		if running {
			p.state = PlayerIdle
			p.cancel = nil
			p.pauseCh = nil
		}
		onIdle := p.onIdle
		p.mu.Unlock()
		if natural && running && onIdle != nil {
			onIdle()
		}
	}

	for {
		select {
		case <-ctx.Done():
			finish(false)
			return
		case paused = <-pauseCh:
		case <-ticker.C:
			if paused {
				continue
			}
			n, err := io.ReadFull(reader, frame)
			if n > 0 {
				if sendErr := conn.SendFrame(frame[:n]); sendErr != nil {
					// Transport loss is surfaced through the connection
					// state machine, not the player.
					finish(false)
					return
				}
			}
			if err != nil {
				if err != io.ErrUnexpectedEOF {
					p.log.Info("stream ended", "error", err)
				}
				finish(err == io.EOF || err == io.ErrUnexpectedEOF)
				return
			}
		}
	}
}
