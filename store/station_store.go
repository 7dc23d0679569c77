package store

import (
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/omnifm/omnifm-bot/types"
)

var globalKeyStrip = regexp.MustCompile(`[^a-z0-9]`)

// NormalizeGlobalKey reduces a raw key to the global-catalog charset.
func NormalizeGlobalKey(raw string) string {
	return globalKeyStrip.ReplaceAllString(strings.ToLower(strings.TrimSpace(raw)), "")
}

func validStreamURL(raw string) bool {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

type stationRecord struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	RequiredTier string `json:"requiredTier,omitempty"`
}

type stationsDocument struct {
	DefaultStationKey string                   `json:"defaultStationKey"`
	Stations          map[string]stationRecord `json:"stations"`
	Locked            bool                     `json:"locked"`
	QualityPreset     string                   `json:"qualityPreset"`
	FallbackKeys      []string                 `json:"fallbackKeys"`
}

// StationStore owns the global station catalog document.
type StationStore struct {
	mu   sync.Mutex
	file *jsonFile
	log  *slog.Logger
}

func NewStationStore(path string, log *slog.Logger) *StationStore {
	if log == nil {
		log = slog.Default()
	}
	return &StationStore{
		file: newJSONFile(path, true, log),
		log:  log,
	}
}

func (s *StationStore) load() *stationsDocument {
	raw := map[string]any{}
	if err := s.file.Load(&raw); err != nil {
		s.log.Warn("station catalog load failed, starting empty", "error", err)
	}
	return normalizeStationsDocument(raw)
}

// normalizeStationsDocument sanitizes keys, drops records missing a name or
// URL, coerces bad tiers to free, and repairs default/fallback references so
// every pointer in the document targets an existing station.
func normalizeStationsDocument(raw map[string]any) *stationsDocument {
	doc := &stationsDocument{
		Stations:      map[string]stationRecord{},
		QualityPreset: string(types.QualityCustom),
		FallbackKeys:  []string{},
	}

	rawStations, _ := raw["stations"].(map[string]any)
	for rawKey, rawValue := range rawStations {
		key := NormalizeGlobalKey(rawKey)
		entry, _ := rawValue.(map[string]any)
		name, _ := entry["name"].(string)
		streamURL, _ := entry["url"].(string)
		name = strings.TrimSpace(name)
		streamURL = strings.TrimSpace(streamURL)
		if key == "" || name == "" || streamURL == "" {
			continue
		}
		tier, _ := entry["requiredTier"].(string)
		doc.Stations[key] = stationRecord{
			Name:         name,
			URL:          streamURL,
			RequiredTier: string(types.ParseTier(tier)),
		}
	}

	if locked, ok := raw["locked"].(bool); ok {
		doc.Locked = locked
	}
	if preset, ok := raw["qualityPreset"].(string); ok {
		if parsed, valid := types.ParseQualityPreset(preset); valid {
			doc.QualityPreset = string(parsed)
		}
	}

	defaultKey := ""
	if rawDefault, ok := raw["defaultStationKey"].(string); ok {
		defaultKey = NormalizeGlobalKey(rawDefault)
	}
	if _, exists := doc.Stations[defaultKey]; exists {
		doc.DefaultStationKey = defaultKey
	} else {
		doc.DefaultStationKey = firstStationKey(doc.Stations)
	}

	rawFallback, _ := raw["fallbackKeys"].([]any)
	seen := map[string]struct{}{}
	for _, item := range rawFallback {
		rawKey, _ := item.(string)
		key := NormalizeGlobalKey(rawKey)
		if key == "" {
			continue
		}
		if _, exists := doc.Stations[key]; !exists {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		doc.FallbackKeys = append(doc.FallbackKeys, key)
	}
	return doc
}

func firstStationKey(stations map[string]stationRecord) string {
	keys := make([]string, 0, len(stations))
	for key := range stations {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

func (s *StationStore) save(doc *stationsDocument) {
	if err := s.file.Save(doc); err != nil {
		s.log.Warn("station catalog save failed", "error", err)
	}
}

func (r stationRecord) toStation(key string) types.Station {
	return types.Station{
		Key:          key,
		Name:         r.Name,
		URL:          r.URL,
		RequiredTier: types.ParseTier(r.RequiredTier),
	}
}

// Add inserts or replaces a global station.
func (s *StationStore) Add(key, name, rawURL string, requiredTier types.Tier) (types.Station, error) {
	key = NormalizeGlobalKey(key)
	name = strings.TrimSpace(name)
	if key == "" {
		return types.Station{}, types.ErrInvalidStationKey
	}
	if name == "" || !validStreamURL(rawURL) {
		return types.Station{}, types.ErrInvalidStationURL
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.load()
	doc.Stations[key] = stationRecord{
		Name:         truncate(name, 100),
		URL:          strings.TrimSpace(rawURL),
		RequiredTier: string(types.ParseTier(string(requiredTier))),
	}
	if doc.DefaultStationKey == "" {
		doc.DefaultStationKey = key
	}
	s.save(doc)
	return doc.Stations[key].toStation(key), nil
}

// Remove drops a station and scrubs it from the default and fallback chain.
func (s *StationStore) Remove(key string) (bool, error) {
	key = NormalizeGlobalKey(key)
	if key == "" {
		return false, types.ErrInvalidStationKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.load()
	if _, exists := doc.Stations[key]; !exists {
		return false, nil
	}
	delete(doc.Stations, key)
	doc.FallbackKeys = removeID(doc.FallbackKeys, key)
	if doc.DefaultStationKey == key {
		doc.DefaultStationKey = firstStationKey(doc.Stations)
	}
	s.save(doc)
	return true, nil
}

// All returns every global station sorted by key.
func (s *StationStore) All() []types.Station {
	s.mu.Lock()
	doc := s.load()
	s.mu.Unlock()

	out := make([]types.Station, 0, len(doc.Stations))
	for key, record := range doc.Stations {
		out = append(out, record.toStation(key))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Get looks a station up regardless of tier gating.
func (s *StationStore) Get(key string) (types.Station, bool) {
	key = NormalizeGlobalKey(key)
	s.mu.Lock()
	doc := s.load()
	s.mu.Unlock()
	record, exists := doc.Stations[key]
	if !exists {
		return types.Station{}, false
	}
	return record.toStation(key), true
}

func (s *StationStore) DefaultKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load().DefaultStationKey
}

func (s *StationStore) FallbackKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.load().FallbackKeys...)
}

func (s *StationStore) QualityPreset() types.QualityPreset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.QualityPreset(s.load().QualityPreset)
}

// SetDefault points the default at an existing station.
func (s *StationStore) SetDefault(key string) error {
	key = NormalizeGlobalKey(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.load()
	if _, exists := doc.Stations[key]; !exists {
		return types.ErrStationNotFound
	}
	doc.DefaultStationKey = key
	s.save(doc)
	return nil
}

// SetFallbackChain replaces the fallback order. Every key must exist;
// duplicates collapse to first occurrence.
func (s *StationStore) SetFallbackChain(keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.load()

	chain := make([]string, 0, len(keys))
	seen := map[string]struct{}{}
	for _, raw := range keys {
		key := NormalizeGlobalKey(raw)
		if key == "" {
			return types.ErrInvalidStationKey
		}
		if _, exists := doc.Stations[key]; !exists {
			return types.ErrStationNotFound
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		chain = append(chain, key)
	}
	doc.FallbackKeys = chain
	s.save(doc)
	return nil
}

func (s *StationStore) SetQualityPreset(preset string) error {
	parsed, valid := types.ParseQualityPreset(preset)
	if !valid {
		return types.ErrInvalidStationKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.load()
	doc.QualityPreset = string(parsed)
	s.save(doc)
	return nil
}

// NextFallback picks the first fallback-chain station different from
// currentKey, then the default, then any other station. Empty when nothing
// else exists.
func (s *StationStore) NextFallback(currentKey string) string {
	currentKey = NormalizeGlobalKey(currentKey)
	s.mu.Lock()
	doc := s.load()
	s.mu.Unlock()

	for _, key := range doc.FallbackKeys {
		if key != currentKey {
			return key
		}
	}
	if doc.DefaultStationKey != "" && doc.DefaultStationKey != currentKey {
		return doc.DefaultStationKey
	}
	keys := make([]string, 0, len(doc.Stations))
	for key := range doc.Stations {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if key != currentKey {
			return key
		}
	}
	return ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
