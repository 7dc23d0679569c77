package store

import (
	"sort"

	"github.com/omnifm/omnifm-bot/types"
)

// Registry layers the global catalog and a group's custom catalog behind one
// tier-gated lookup surface.
type Registry struct {
	Global *StationStore
	Custom *CustomStationStore
}

func NewRegistry(global *StationStore, custom *CustomStationStore) *Registry {
	return &Registry{Global: global, Custom: custom}
}

// QualityPreset exposes the global catalog's transcode preset.
func (r *Registry) QualityPreset() types.QualityPreset {
	return r.Global.QualityPreset()
}

// Visible returns every station the given tier may play in a group, global
// catalog first, custom catalog after.
func (r *Registry) Visible(groupID string, ceiling types.Tier) []types.Station {
	var out []types.Station
	for _, station := range r.Global.All() {
		if types.TierAtLeast(ceiling, station.RequiredTier) {
			out = append(out, station)
		}
	}
	if types.TierAtLeast(ceiling, types.TierUltimate) {
		out = append(out, r.Custom.List(groupID)...)
	}
	return out
}

// Resolve maps an optional requested key to a playable station. With no key it
// returns the global default when tier-permitted, else the first visible
// station. With a key it returns exactly that station or fails: an unknown key
// is ErrStationNotFound, a known but gated key is a TierRequiredError. It
// never substitutes another station for an explicit request.
func (r *Registry) Resolve(groupID, requestedKey string, ceiling types.Tier) (types.Station, error) {
	if requestedKey == "" {
		visible := r.Visible(groupID, ceiling)
		if defaultKey := r.Global.DefaultKey(); defaultKey != "" {
			for _, station := range visible {
				if !station.Custom && station.Key == defaultKey {
					return station, nil
				}
			}
		}
		if len(visible) == 0 {
			return types.Station{}, types.ErrStationNotFound
		}
		return visible[0], nil
	}

	if station, exists := r.Global.Get(requestedKey); exists {
		if !types.TierAtLeast(ceiling, station.RequiredTier) {
			return types.Station{}, &types.TierRequiredError{Required: station.RequiredTier}
		}
		return station, nil
	}
	if station, exists := r.Custom.Get(groupID, requestedKey); exists {
		if !types.TierAtLeast(ceiling, types.TierUltimate) {
			return types.Station{}, &types.TierRequiredError{Required: types.TierUltimate}
		}
		return station, nil
	}
	return types.Station{}, types.ErrStationNotFound
}

// FallbackChain lists the stations to try after currentKey fails, in order:
// the configured fallback chain, the default, then any remaining visible
// station. Only tier-permitted global stations are candidates.
func (r *Registry) FallbackChain(groupID, currentKey string, ceiling types.Tier) []types.Station {
	permitted := map[string]types.Station{}
	for _, station := range r.Global.All() {
		if types.TierAtLeast(ceiling, station.RequiredTier) {
			permitted[station.Key] = station
		}
	}

	var chain []types.Station
	seen := map[string]struct{}{currentKey: {}}
	push := func(key string) {
		if _, done := seen[key]; done {
			return
		}
		if station, ok := permitted[key]; ok {
			seen[key] = struct{}{}
			chain = append(chain, station)
		}
	}

	for _, key := range r.Global.FallbackKeys() {
		push(key)
	}
	push(r.Global.DefaultKey())

	rest := make([]string, 0, len(permitted))
	for key := range permitted {
		rest = append(rest, key)
	}
	sort.Strings(rest)
	for _, key := range rest {
		push(key)
	}
	return chain
}
