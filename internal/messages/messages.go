package messages

import (
	"fmt"
	"strings"
	"time"

	"github.com/omnifm/omnifm-bot/internal/i18n"
	"github.com/omnifm/omnifm-bot/types"
)

func pick(lang i18n.Lang, en, de string) string {
	if lang == i18n.DE {
		return de
	}
	return en
}

func NowPlaying(lang i18n.Lang, name string) string {
	return pick(lang,
		fmt.Sprintf("Now playing: %s", name),
		fmt.Sprintf("Spielt jetzt: %s", name))
}

func NowPlayingMeta(lang i18n.Lang, name, meta string) string {
	if strings.TrimSpace(meta) == "" {
		return NowPlaying(lang, name)
	}
	return pick(lang,
		fmt.Sprintf("Now playing: %s (%s)", name, meta),
		fmt.Sprintf("Spielt jetzt: %s (%s)", name, meta))
}

func Paused(lang i18n.Lang) string {
	return pick(lang, "Playback paused.", "Wiedergabe pausiert.")
}

func NothingToPause(lang i18n.Lang) string {
	return pick(lang, "Nothing is playing.", "Es läuft gerade nichts.")
}

func Resumed(lang i18n.Lang) string {
	return pick(lang, "Playback resumed.", "Wiedergabe fortgesetzt.")
}

func NothingToResume(lang i18n.Lang) string {
	return pick(lang, "Nothing is paused.", "Es ist nichts pausiert.")
}

func Stopped(lang i18n.Lang) string {
	return pick(lang, "Stopped and left the channel.", "Gestoppt und Channel verlassen.")
}

func VolumeSet(lang i18n.Lang, v int) string {
	return pick(lang,
		fmt.Sprintf("Volume set to %d%%.", v),
		fmt.Sprintf("Lautstärke auf %d%% gesetzt.", v))
}

func NeedVoiceChannel(lang i18n.Lang) string {
	return pick(lang,
		"You need to be in a voice channel.",
		"Du musst in einem Voice-Channel sein.")
}

func ConnectFailed(lang i18n.Lang) string {
	return pick(lang,
		"Could not join the voice channel.",
		"Konnte dem Voice-Channel nicht beitreten.")
}

func UnknownStation(lang i18n.Lang, key string) string {
	return pick(lang,
		fmt.Sprintf("Unknown station: %s", key),
		fmt.Sprintf("Unbekannte Station: %s", key))
}

func StationRequiresTier(lang i18n.Lang, required types.Tier) string {
	name := types.ConfigForTier(required).Name
	return pick(lang,
		fmt.Sprintf("This station requires the %s plan.", name),
		fmt.Sprintf("Diese Station benötigt den %s-Plan.", name))
}

func StreamFailed(lang i18n.Lang) string {
	return pick(lang,
		"The stream could not be loaded. Try again or pick another station.",
		"Der Stream konnte nicht geladen werden. Versuch es erneut oder wähle eine andere Station.")
}

func StreamFellBack(lang i18n.Lang, name string) string {
	return pick(lang,
		fmt.Sprintf("The requested stream was unavailable; playing %s instead.", name),
		fmt.Sprintf("Der gewünschte Stream war nicht erreichbar; spiele stattdessen %s.", name))
}

func PermissionDenied(lang i18n.Lang) string {
	return pick(lang,
		"You are not allowed to use this command here.",
		"Du darfst diesen Befehl hier nicht verwenden.")
}

func StationAdded(lang i18n.Lang, key string) string {
	return pick(lang,
		fmt.Sprintf("Custom station %s added.", key),
		fmt.Sprintf("Custom-Station %s hinzugefügt.", key))
}

func StationRemoved(lang i18n.Lang, key string) string {
	return pick(lang,
		fmt.Sprintf("Station %s removed.", key),
		fmt.Sprintf("Station %s entfernt.", key))
}

func StationNotRemoved(lang i18n.Lang, key string) string {
	return pick(lang,
		fmt.Sprintf("No station named %s.", key),
		fmt.Sprintf("Keine Station namens %s.", key))
}

func StationQuotaReached(lang i18n.Lang, max int) string {
	return pick(lang,
		fmt.Sprintf("Limit reached: at most %d custom stations per server.", max),
		fmt.Sprintf("Limit erreicht: maximal %d Custom-Stationen pro Server.", max))
}

func StationInvalid(lang i18n.Lang) string {
	return pick(lang,
		"Invalid station: check the key (a-z, 0-9, - and _) and the http(s) URL.",
		"Ungültige Station: prüfe den Key (a-z, 0-9, - und _) und die http(s)-URL.")
}

func StationDuplicate(lang i18n.Lang, key string) string {
	return pick(lang,
		fmt.Sprintf("A station named %s already exists.", key),
		fmt.Sprintf("Eine Station namens %s existiert bereits.", key))
}

func CustomStationsRequireUltimate(lang i18n.Lang) string {
	return pick(lang,
		"Custom stations require the Ultimate plan.",
		"Custom-Stationen benötigen den Ultimate-Plan.")
}

func NothingPlaying(lang i18n.Lang) string {
	return pick(lang, "Nothing is playing right now.", "Gerade läuft nichts.")
}

func VolumeInvalid(lang i18n.Lang) string {
	return pick(lang,
		"Volume must be between 0 and 100.",
		"Lautstärke muss zwischen 0 und 100 liegen.")
}

func NoStations(lang i18n.Lang) string {
	return pick(lang, "No stations available.", "Keine Stationen verfügbar.")
}

func ErrorDefault(lang i18n.Lang) string {
	return pick(lang, "Something went wrong. Try again.", "Etwas ist schiefgelaufen. Versuch es erneut.")
}

func StationList(lang i18n.Lang, stations []types.Station) string {
	if len(stations) == 0 {
		return NoStations(lang)
	}
	var b strings.Builder
	b.WriteString(pick(lang, "Available stations:\n", "Verfügbare Stationen:\n"))
	for _, s := range stations {
		if s.Custom {
			fmt.Fprintf(&b, "- %s: %s %s\n", s.Key, s.Name, pick(lang, "(custom)", "(eigene)"))
		} else {
			fmt.Fprintf(&b, "- %s: %s\n", s.Key, s.Name)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// StationPage renders one page of the catalog with a page footer.
func StationPage(lang i18n.Lang, page, totalPages int, stations []types.Station) string {
	if len(stations) == 0 {
		return NoStations(lang)
	}
	body := StationList(lang, stations)
	footer := pick(lang,
		fmt.Sprintf("Page %d/%d", page, totalPages),
		fmt.Sprintf("Seite %d/%d", page, totalPages))
	return body + "\n" + footer
}

func StatusReport(lang i18n.Lang, agentID, state, stationKey, channelID string, volume int, uptime time.Duration) string {
	if stationKey == "" {
		stationKey = "-"
	}
	if channelID == "" {
		channelID = "-"
	}
	uptimeSec := int(uptime / time.Second)
	return pick(lang,
		fmt.Sprintf("Agent: %s\nState: %s\nStation: %s\nChannel: %s\nVolume: %d%%\nUptime: %ds",
			agentID, state, stationKey, channelID, volume, uptimeSec),
		fmt.Sprintf("Agent: %s\nStatus: %s\nStation: %s\nChannel: %s\nLautstärke: %d%%\nLaufzeit: %ds",
			agentID, state, stationKey, channelID, volume, uptimeSec))
}

func HealthReport(lang i18n.Lang, agentID string, reconnects int, lastReconnect, lastStreamError time.Time) string {
	fmtTime := func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.UTC().Format(time.RFC3339)
	}
	return pick(lang,
		fmt.Sprintf("Agent: %s\nReconnects: %d\nLast reconnect: %s\nLast stream error: %s",
			agentID, reconnects, fmtTime(lastReconnect), fmtTime(lastStreamError)),
		fmt.Sprintf("Agent: %s\nReconnects: %d\nLetzter Reconnect: %s\nLetzter Stream-Fehler: %s",
			agentID, reconnects, fmtTime(lastReconnect), fmtTime(lastStreamError)))
}

// DiagReport summarizes the group's plan. lic is nil for unlicensed groups.
func DiagReport(lang i18n.Lang, cfg types.TierConfig, lic *types.License, now time.Time) string {
	expiry := pick(lang, "no active license", "keine aktive Lizenz")
	if lic != nil && !lic.Expired(now) {
		expiry = pick(lang,
			fmt.Sprintf("expires %s (%d days left)", lic.ExpiresAt.UTC().Format("2006-01-02"), lic.RemainingDays(now)),
			fmt.Sprintf("läuft ab am %s (%d Tage übrig)", lic.ExpiresAt.UTC().Format("2006-01-02"), lic.RemainingDays(now)))
	}
	return pick(lang,
		fmt.Sprintf("Plan: %s\nBitrate: %s\nAgents: %d\nCustom stations: %v\n%s",
			cfg.Name, cfg.Bitrate, cfg.MaxAgents, cfg.CustomStations, expiry),
		fmt.Sprintf("Plan: %s\nBitrate: %s\nAgents: %d\nCustom-Stationen: %v\n%s",
			cfg.Name, cfg.Bitrate, cfg.MaxAgents, cfg.CustomStations, expiry))
}

func StatusLine(lang i18n.Lang, state, stationName string, volume int) string {
	if stationName == "" {
		return pick(lang,
			fmt.Sprintf("State: %s, volume %d%%.", state, volume),
			fmt.Sprintf("Status: %s, Lautstärke %d%%.", state, volume))
	}
	return pick(lang,
		fmt.Sprintf("State: %s, station %s, volume %d%%.", state, stationName, volume),
		fmt.Sprintf("Status: %s, Station %s, Lautstärke %d%%.", state, stationName, volume))
}
