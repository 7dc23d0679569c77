package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/omnifm/omnifm-bot/types"
)

func newTestStationStore(t *testing.T) *StationStore {
	t.Helper()
	return NewStationStore(filepath.Join(t.TempDir(), "stations.json"), nil)
}

func seedStations(t *testing.T, s *StationStore) {
	t.Helper()
	for _, st := range []struct {
		key, name, url string
		tier           types.Tier
	}{
		{"jazz", "Smooth Jazz", "https://stream.example.com/jazz", types.TierFree},
		{"rock", "Classic Rock", "https://stream.example.com/rock", types.TierFree},
		{"lounge", "Lounge HQ", "https://stream.example.com/lounge", types.TierPro},
	} {
		if _, err := s.Add(st.key, st.name, st.url, st.tier); err != nil {
			t.Fatalf("seed %s: %v", st.key, err)
		}
	}
}

func TestStationKeyNormalization(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Jazz FM", "jazzfm"},
		{"  ROCK-24/7  ", "rock247"},
		{"___", ""},
		{"lofi_beats", "lofibeats"},
	}
	for _, tc := range cases {
		if got := NormalizeGlobalKey(tc.in); got != tc.want {
			t.Errorf("NormalizeGlobalKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStationAddAndRemove(t *testing.T) {
	s := newTestStationStore(t)
	seedStations(t, s)

	if len(s.All()) != 3 {
		t.Fatalf("len(All) = %d, want 3", len(s.All()))
	}
	// First added station becomes the default.
	if got := s.DefaultKey(); got != "jazz" {
		t.Errorf("default = %s, want jazz", got)
	}

	existed, err := s.Remove("jazz")
	if err != nil || !existed {
		t.Fatalf("remove: existed=%v err=%v", existed, err)
	}
	// Default is repaired to a surviving station.
	if got := s.DefaultKey(); got == "jazz" || got == "" {
		t.Errorf("default after removal = %q", got)
	}

	existed, err = s.Remove("jazz")
	if err != nil || existed {
		t.Errorf("second remove: existed=%v err=%v", existed, err)
	}
}

func TestStationAddValidation(t *testing.T) {
	s := newTestStationStore(t)
	if _, err := s.Add("!!!", "Name", "https://x.example.com", types.TierFree); !errors.Is(err, types.ErrInvalidStationKey) {
		t.Errorf("bad key err = %v", err)
	}
	if _, err := s.Add("ok", "", "https://x.example.com", types.TierFree); !errors.Is(err, types.ErrInvalidStationURL) {
		t.Errorf("empty name err = %v", err)
	}
	if _, err := s.Add("ok", "Name", "ftp://x.example.com", types.TierFree); !errors.Is(err, types.ErrInvalidStationURL) {
		t.Errorf("bad scheme err = %v", err)
	}
}

func TestSetFallbackChain(t *testing.T) {
	s := newTestStationStore(t)
	seedStations(t, s)

	if err := s.SetFallbackChain([]string{"rock", "jazz", "rock"}); err != nil {
		t.Fatalf("SetFallbackChain: %v", err)
	}
	chain := s.FallbackKeys()
	if len(chain) != 2 || chain[0] != "rock" || chain[1] != "jazz" {
		t.Errorf("chain = %v, want [rock jazz]", chain)
	}

	if err := s.SetFallbackChain([]string{"rock", "ghost"}); !errors.Is(err, types.ErrStationNotFound) {
		t.Errorf("unknown key err = %v", err)
	}
	// A failed update leaves the previous chain in place.
	if chain := s.FallbackKeys(); len(chain) != 2 {
		t.Errorf("chain after failed update = %v", chain)
	}
}

func TestSetDefault(t *testing.T) {
	s := newTestStationStore(t)
	seedStations(t, s)

	if err := s.SetDefault("rock"); err != nil {
		t.Fatal(err)
	}
	if got := s.DefaultKey(); got != "rock" {
		t.Errorf("default = %s, want rock", got)
	}
	if err := s.SetDefault("ghost"); !errors.Is(err, types.ErrStationNotFound) {
		t.Errorf("unknown default err = %v", err)
	}
}

func TestSetQualityPreset(t *testing.T) {
	s := newTestStationStore(t)
	if err := s.SetQualityPreset("high"); err != nil {
		t.Fatal(err)
	}
	if got := s.QualityPreset(); got != types.QualityHigh {
		t.Errorf("preset = %s, want high", got)
	}
	if err := s.SetQualityPreset("ludicrous"); err == nil {
		t.Error("expected error for invalid preset")
	}
}

func TestNextFallback(t *testing.T) {
	s := newTestStationStore(t)
	seedStations(t, s)
	if err := s.SetFallbackChain([]string{"lounge", "rock"}); err != nil {
		t.Fatal(err)
	}

	if got := s.NextFallback("jazz"); got != "lounge" {
		t.Errorf("NextFallback(jazz) = %s, want lounge", got)
	}
	if got := s.NextFallback("lounge"); got != "rock" {
		t.Errorf("NextFallback(lounge) = %s, want rock", got)
	}
}

func TestNormalizeStationsDocumentRepairsReferences(t *testing.T) {
	raw := map[string]any{
		"stations": map[string]any{
			"Jazz!": map[string]any{"name": "Jazz", "url": "https://j.example.com"},
			"ghost": map[string]any{"name": "", "url": "https://g.example.com"},
		},
		"defaultStationKey": "missing",
		"fallbackKeys":      []any{"jazz", "missing", "jazz"},
		"qualityPreset":     "TURBO",
	}
	doc := normalizeStationsDocument(raw)
	if len(doc.Stations) != 1 {
		t.Fatalf("stations = %v", doc.Stations)
	}
	if doc.DefaultStationKey != "jazz" {
		t.Errorf("default repaired to %q, want jazz", doc.DefaultStationKey)
	}
	if len(doc.FallbackKeys) != 1 || doc.FallbackKeys[0] != "jazz" {
		t.Errorf("fallbackKeys = %v, want [jazz]", doc.FallbackKeys)
	}
	if doc.QualityPreset != string(types.QualityCustom) {
		t.Errorf("preset = %s, want custom", doc.QualityPreset)
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	global := NewStationStore(filepath.Join(dir, "stations.json"), nil)
	custom := NewCustomStationStore(filepath.Join(dir, "custom-stations.json"), nil)
	seedStations(t, global)
	return NewRegistry(global, custom)
}

func TestRegistryResolveDefault(t *testing.T) {
	r := newTestRegistry(t)

	station, err := r.Resolve(permGroupID, "", types.TierFree)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if station.Key != "jazz" {
		t.Errorf("resolved %s, want default jazz", station.Key)
	}
}

func TestRegistryResolveTierGating(t *testing.T) {
	r := newTestRegistry(t)

	if _, err := r.Resolve(permGroupID, "lounge", types.TierFree); err == nil {
		t.Fatal("free tier must not resolve a pro station")
	} else {
		var tierErr *types.TierRequiredError
		if !errors.As(err, &tierErr) || tierErr.Required != types.TierPro {
			t.Errorf("err = %v, want TierRequiredError{pro}", err)
		}
	}

	station, err := r.Resolve(permGroupID, "lounge", types.TierPro)
	if err != nil {
		t.Fatalf("pro tier resolve: %v", err)
	}
	if station.Key != "lounge" {
		t.Errorf("resolved %s, want lounge", station.Key)
	}
}

func TestRegistryResolveUnknownKeyNeverSubstitutes(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.Resolve(permGroupID, "ghost", types.TierUltimate); !errors.Is(err, types.ErrStationNotFound) {
		t.Errorf("err = %v, want ErrStationNotFound", err)
	}
}

func TestRegistryResolveCustomRequiresUltimate(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.Custom.Add(permGroupID, "mystation", "Mine", "https://radio.example.org/live"); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Resolve(permGroupID, "mystation", types.TierPro); err == nil {
		t.Fatal("pro tier must not resolve a custom station")
	}
	station, err := r.Resolve(permGroupID, "mystation", types.TierUltimate)
	if err != nil {
		t.Fatalf("ultimate resolve: %v", err)
	}
	if !station.Custom || station.RequiredTier != types.TierUltimate {
		t.Errorf("station = %+v", station)
	}
}

func TestRegistryVisible(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.Custom.Add(permGroupID, "mystation", "Mine", "https://radio.example.org/live"); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		tier types.Tier
		want int
	}{
		{types.TierFree, 2},
		{types.TierPro, 3},
		{types.TierUltimate, 4},
	}
	for _, tc := range cases {
		if got := len(r.Visible(permGroupID, tc.tier)); got != tc.want {
			t.Errorf("Visible(%s) = %d stations, want %d", tc.tier, got, tc.want)
		}
	}
}

func TestRegistryFallbackChain(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Global.SetFallbackChain([]string{"lounge", "rock"}); err != nil {
		t.Fatal(err)
	}

	chain := r.FallbackChain(permGroupID, "jazz", types.TierFree)
	// lounge is pro-gated, so the free chain starts at rock, then other
	// visible stations except the current one.
	if len(chain) != 1 || chain[0].Key != "rock" {
		t.Errorf("free chain = %+v, want [rock]", chain)
	}

	chain = r.FallbackChain(permGroupID, "jazz", types.TierPro)
	if len(chain) != 2 || chain[0].Key != "lounge" || chain[1].Key != "rock" {
		t.Errorf("pro chain = %+v, want [lounge rock]", chain)
	}
}
