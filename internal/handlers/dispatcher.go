package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/omnifm/omnifm-bot/internal/i18n"
	"github.com/omnifm/omnifm-bot/internal/messages"
	"github.com/omnifm/omnifm-bot/internal/session"
	"github.com/omnifm/omnifm-bot/store"
	"github.com/omnifm/omnifm-bot/types"
)

const listPageSize = 10

// Sessions is the playback surface the dispatcher drives. The session
// supervisor implements it.
type Sessions interface {
	Start(ctx context.Context, groupID, channelID, stationKey string) (types.Station, error)
	Pause(groupID string) bool
	Resume(groupID string) bool
	Stop(groupID string)
	SetVolume(groupID string, v int) int
	Status(groupID string) session.Status
	AgentID() string
}

// Entitlements is the license surface the dispatcher consults.
type Entitlements interface {
	Get(groupID string) (types.License, bool)
	EffectiveTier(groupID string) types.Tier
	GetTierConfig(groupID string) types.TierConfig
}

// Catalog is the tier-gated station lookup surface.
type Catalog interface {
	Visible(groupID string, ceiling types.Tier) []types.Station
	FallbackChain(groupID, currentKey string, ceiling types.Tier) []types.Station
}

// CustomCatalog is the per-group custom station surface.
type CustomCatalog interface {
	Add(groupID, key, name, url string) (types.Station, error)
	Remove(groupID, key string) (bool, error)
	List(groupID string) []types.Station
}

// Dispatcher turns inbound commands into replies. It owns no state beyond
// wiring; all durable state lives in the stores and the supervisor.
type Dispatcher struct {
	sessions  Sessions
	licenses  Entitlements
	catalog   Catalog
	custom    CustomCatalog
	lang      i18n.Lang
	log       *slog.Logger
	startedAt time.Time
}

func NewDispatcher(sessions Sessions, licenses Entitlements, catalog Catalog, custom CustomCatalog, lang i18n.Lang, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		sessions:  sessions,
		licenses:  licenses,
		catalog:   catalog,
		custom:    custom,
		lang:      lang,
		log:       log,
		startedAt: time.Now(),
	}
}

// Dispatch routes one command. It satisfies middleware.Handler.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd types.Command) types.Reply {
	switch store.NormalizeCommand(cmd.Name) {
	case "play":
		return d.play(ctx, cmd)
	case "pause":
		return d.pause(cmd)
	case "resume":
		return d.resume(cmd)
	case "stop":
		d.sessions.Stop(cmd.GroupID)
		return types.Reply{OK: true, Message: messages.Stopped(d.lang)}
	case "setvolume":
		return d.setVolume(cmd)
	case "stations":
		return d.stations(cmd)
	case "list":
		return d.list(cmd)
	case "now":
		return d.now(cmd)
	case "status":
		return d.status(cmd)
	case "health":
		return d.health(cmd)
	case "diag":
		return d.diag(cmd)
	case "addstation":
		return d.addStation(cmd)
	case "removestation":
		return d.removeStation(cmd)
	case "mystations":
		return d.myStations(cmd)
	}
	return types.Reply{OK: false, Message: messages.ErrorDefault(d.lang)}
}

func (d *Dispatcher) play(ctx context.Context, cmd types.Command) types.Reply {
	station, err := d.sessions.Start(ctx, cmd.GroupID, cmd.VoiceChannelID, cmd.StationKey)
	if err == nil {
		return types.Reply{OK: true, Message: messages.NowPlaying(d.lang, station.Name)}
	}

	var tierErr *types.TierRequiredError
	switch {
	case errors.Is(err, types.ErrNoVoiceChannel):
		return types.Reply{OK: false, Message: messages.NeedVoiceChannel(d.lang)}
	case errors.Is(err, types.ErrStationNotFound):
		return types.Reply{OK: false, Message: messages.UnknownStation(d.lang, cmd.StationKey)}
	case errors.As(err, &tierErr):
		return types.Reply{OK: false, Message: messages.StationRequiresTier(d.lang, tierErr.Required)}
	case errors.Is(err, types.ErrConnectTimeout):
		return types.Reply{OK: false, Message: messages.ConnectFailed(d.lang)}
	case errors.Is(err, types.ErrStreamUnavailable):
		return d.playFallback(ctx, cmd)
	}

	d.log.Error("play failed", "guild", cmd.GroupID, "error", err)
	return types.Reply{OK: false, Message: messages.ErrorDefault(d.lang)}
}

// playFallback retries once with the next station from the fallback chain.
// A second failure tears the session down.
func (d *Dispatcher) playFallback(ctx context.Context, cmd types.Command) types.Reply {
	ceiling := d.licenses.EffectiveTier(cmd.GroupID)
	chain := d.catalog.FallbackChain(cmd.GroupID, cmd.StationKey, ceiling)
	if len(chain) > 0 {
		fallback := chain[0]
		d.log.Warn("stream unavailable, trying fallback",
			"guild", cmd.GroupID, "requested", cmd.StationKey, "fallback", fallback.Key)
		if _, err := d.sessions.Start(ctx, cmd.GroupID, cmd.VoiceChannelID, fallback.Key); err == nil {
			return types.Reply{OK: true, Message: messages.StreamFellBack(d.lang, fallback.Name)}
		}
	}
	d.sessions.Stop(cmd.GroupID)
	return types.Reply{OK: false, Message: messages.StreamFailed(d.lang)}
}

func (d *Dispatcher) pause(cmd types.Command) types.Reply {
	if !d.sessions.Pause(cmd.GroupID) {
		return types.Reply{OK: true, Message: messages.NothingToPause(d.lang)}
	}
	return types.Reply{OK: true, Message: messages.Paused(d.lang)}
}

func (d *Dispatcher) resume(cmd types.Command) types.Reply {
	if !d.sessions.Resume(cmd.GroupID) {
		return types.Reply{OK: true, Message: messages.NothingToResume(d.lang)}
	}
	return types.Reply{OK: true, Message: messages.Resumed(d.lang)}
}

func (d *Dispatcher) setVolume(cmd types.Command) types.Reply {
	if cmd.Volume < 0 || cmd.Volume > 100 {
		return types.Reply{OK: false, Message: messages.VolumeInvalid(d.lang)}
	}
	applied := d.sessions.SetVolume(cmd.GroupID, cmd.Volume)
	return types.Reply{OK: true, Message: messages.VolumeSet(d.lang, applied)}
}

func (d *Dispatcher) visible(groupID string) []types.Station {
	return d.catalog.Visible(groupID, d.licenses.EffectiveTier(groupID))
}

func (d *Dispatcher) stations(cmd types.Command) types.Reply {
	return types.Reply{OK: true, Message: messages.StationList(d.lang, d.visible(cmd.GroupID))}
}

func (d *Dispatcher) list(cmd types.Command) types.Reply {
	page := 1
	if len(cmd.Args) > 0 {
		if n, err := strconv.Atoi(cmd.Args[0]); err == nil && n > 0 {
			page = n
		}
	}

	all := d.visible(cmd.GroupID)
	if len(all) == 0 {
		return types.Reply{OK: true, Message: messages.NoStations(d.lang)}
	}

	totalPages := (len(all) + listPageSize - 1) / listPageSize
	if page > totalPages {
		page = totalPages
	}
	start := (page - 1) * listPageSize
	end := start + listPageSize
	if end > len(all) {
		end = len(all)
	}
	return types.Reply{OK: true, Message: messages.StationPage(d.lang, page, totalPages, all[start:end])}
}

func (d *Dispatcher) now(cmd types.Command) types.Reply {
	st := d.sessions.Status(cmd.GroupID)
	if st.StationKey == "" {
		return types.Reply{OK: true, Message: messages.NothingPlaying(d.lang)}
	}
	name := st.StationName
	if name == "" {
		name = st.StationKey
	}
	return types.Reply{OK: true, Message: messages.NowPlaying(d.lang, name)}
}

func (d *Dispatcher) status(cmd types.Command) types.Reply {
	st := d.sessions.Status(cmd.GroupID)
	return types.Reply{OK: true, Message: messages.StatusReport(
		d.lang, d.sessions.AgentID(), string(st.State), st.StationKey, st.ChannelID,
		st.Volume, time.Since(d.startedAt))}
}

func (d *Dispatcher) health(cmd types.Command) types.Reply {
	st := d.sessions.Status(cmd.GroupID)
	return types.Reply{OK: true, Message: messages.HealthReport(
		d.lang, d.sessions.AgentID(), st.Reconnects, st.LastReconnectAt, st.LastStreamError)}
}

func (d *Dispatcher) diag(cmd types.Command) types.Reply {
	cfg := d.licenses.GetTierConfig(cmd.GroupID)
	var lic *types.License
	if l, ok := d.licenses.Get(cmd.GroupID); ok {
		lic = &l
	}
	return types.Reply{OK: true, Message: messages.DiagReport(d.lang, cfg, lic, time.Now())}
}

func (d *Dispatcher) addStation(cmd types.Command) types.Reply {
	if !types.TierAtLeast(d.licenses.EffectiveTier(cmd.GroupID), types.TierUltimate) {
		return types.Reply{OK: false, Message: messages.CustomStationsRequireUltimate(d.lang)}
	}
	if len(cmd.Args) < 2 {
		return types.Reply{OK: false, Message: messages.StationInvalid(d.lang)}
	}
	name, url := cmd.Args[0], cmd.Args[1]

	station, err := d.custom.Add(cmd.GroupID, cmd.StationKey, name, url)
	if err == nil {
		return types.Reply{OK: true, Message: messages.StationAdded(d.lang, station.Key)}
	}
	switch {
	case errors.Is(err, types.ErrDuplicateStation):
		return types.Reply{OK: false, Message: messages.StationDuplicate(d.lang, cmd.StationKey)}
	case errors.Is(err, types.ErrQuotaExceeded):
		return types.Reply{OK: false, Message: messages.StationQuotaReached(d.lang, store.MaxCustomStationsPerGroup)}
	default:
		return types.Reply{OK: false, Message: messages.StationInvalid(d.lang)}
	}
}

func (d *Dispatcher) removeStation(cmd types.Command) types.Reply {
	removed, err := d.custom.Remove(cmd.GroupID, cmd.StationKey)
	if err != nil {
		return types.Reply{OK: false, Message: messages.StationInvalid(d.lang)}
	}
	if !removed {
		return types.Reply{OK: false, Message: messages.StationNotRemoved(d.lang, cmd.StationKey)}
	}
	return types.Reply{OK: true, Message: messages.StationRemoved(d.lang, cmd.StationKey)}
}

func (d *Dispatcher) myStations(cmd types.Command) types.Reply {
	return types.Reply{OK: true, Message: messages.StationList(d.lang, d.custom.List(cmd.GroupID))}
}
