package store

import (
	"log/slog"
	"net"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/omnifm/omnifm-bot/types"
)

// MaxCustomStationsPerGroup bounds the per-group custom catalog.
const MaxCustomStationsPerGroup = 50

var customKeyStrip = regexp.MustCompile(`[^a-z0-9_-]`)

// NormalizeCustomKey reduces a raw key to [a-z0-9_-] and caps it at 40 runes.
func NormalizeCustomKey(raw string) string {
	key := customKeyStrip.ReplaceAllString(strings.ToLower(strings.TrimSpace(raw)), "")
	if len(key) > 40 {
		key = key[:40]
	}
	return key
}

type customStationRecord struct {
	Name    string    `json:"name"`
	URL     string    `json:"url"`
	AddedAt time.Time `json:"addedAt"`
}

// CustomStationStore owns the per-group custom station document, a map of
// group id to key→record.
type CustomStationStore struct {
	mu   sync.Mutex
	file *jsonFile
	log  *slog.Logger
	now  func() time.Time
}

func NewCustomStationStore(path string, log *slog.Logger) *CustomStationStore {
	if log == nil {
		log = slog.Default()
	}
	return &CustomStationStore{
		file: newJSONFile(path, true, log),
		log:  log,
		now:  time.Now,
	}
}

func (s *CustomStationStore) load() map[string]map[string]customStationRecord {
	doc := map[string]map[string]customStationRecord{}
	if err := s.file.Load(&doc); err != nil {
		s.log.Warn("custom station load failed, starting empty", "error", err)
		doc = map[string]map[string]customStationRecord{}
	}
	return doc
}

func (s *CustomStationStore) save(doc map[string]map[string]customStationRecord) {
	if err := s.file.Save(doc); err != nil {
		s.log.Warn("custom station save failed", "error", err)
	}
}

// ValidateStreamURL enforces http(s), no embedded credentials, and a public
// host. Stations pointing at loopback or RFC1918 space would let a group probe
// the host network, so those are rejected outright.
func ValidateStreamURL(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", types.ErrInvalidStationURL
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", types.ErrInvalidStationURL
	}
	if parsed.User != nil {
		return "", types.ErrInvalidStationURL
	}
	if isPrivateOrLocalHost(parsed.Hostname()) {
		return "", types.ErrInvalidStationURL
	}
	return parsed.String(), nil
}

func isPrivateOrLocalHost(raw string) bool {
	hostname := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), ".")
	if hostname == "" || hostname == "localhost" || hostname == "0.0.0.0" {
		return true
	}
	for _, suffix := range []string{".local", ".internal", ".lan", ".home"} {
		if strings.HasSuffix(hostname, suffix) {
			return true
		}
	}

	ip := net.ParseIP(hostname)
	if ip == nil {
		return false
	}
	if v4 := ip.To4(); v4 != nil {
		octets := strings.Split(v4.String(), ".")
		a, _ := strconv.Atoi(octets[0])
		b, _ := strconv.Atoi(octets[1])
		switch {
		case a == 10, a == 127:
			return true
		case a == 169 && b == 254:
			return true
		case a == 172 && b >= 16 && b <= 31:
			return true
		case a == 192 && b == 168:
			return true
		case a == 100 && b >= 64 && b <= 127:
			return true
		}
		return false
	}
	return ip.IsLoopback() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() || ip.IsPrivate()
}

// Add validates and inserts a custom station for a group. The 51st insertion
// fails with ErrQuotaExceeded; duplicate keys fail with ErrDuplicateStation.
func (s *CustomStationStore) Add(groupID, key, name, rawURL string) (types.Station, error) {
	if !types.IsSnowflake(groupID) {
		return types.Station{}, types.ErrInvalidID
	}
	sanitized := NormalizeCustomKey(key)
	if sanitized == "" {
		return types.Station{}, types.ErrInvalidStationKey
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Station{}, types.ErrInvalidStationURL
	}
	cleanURL, err := ValidateStreamURL(rawURL)
	if err != nil {
		return types.Station{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.load()
	group := doc[groupID]
	if group == nil {
		group = map[string]customStationRecord{}
		doc[groupID] = group
	}
	if _, exists := group[sanitized]; exists {
		return types.Station{}, types.ErrDuplicateStation
	}
	if len(group) >= MaxCustomStationsPerGroup {
		return types.Station{}, types.ErrQuotaExceeded
	}

	record := customStationRecord{
		Name:    truncate(name, 100),
		URL:     cleanURL,
		AddedAt: s.now().UTC(),
	}
	group[sanitized] = record
	s.save(doc)
	return record.toStation(sanitized), nil
}

// Remove drops a station from a group. Reports whether it existed.
func (s *CustomStationStore) Remove(groupID, key string) (bool, error) {
	if !types.IsSnowflake(groupID) {
		return false, types.ErrInvalidID
	}
	sanitized := NormalizeCustomKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.load()
	group := doc[groupID]
	if _, exists := group[sanitized]; !exists {
		return false, nil
	}
	delete(group, sanitized)
	if len(group) == 0 {
		delete(doc, groupID)
	}
	s.save(doc)
	return true, nil
}

// List returns a group's custom stations sorted by key. Custom stations are
// always gated at the ultimate tier.
func (s *CustomStationStore) List(groupID string) []types.Station {
	s.mu.Lock()
	doc := s.load()
	s.mu.Unlock()

	group := doc[groupID]
	out := make([]types.Station, 0, len(group))
	for key, record := range group {
		out = append(out, record.toStation(key))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Get looks up a single custom station for a group.
func (s *CustomStationStore) Get(groupID, key string) (types.Station, bool) {
	s.mu.Lock()
	doc := s.load()
	s.mu.Unlock()

	record, exists := doc[groupID][NormalizeCustomKey(key)]
	if !exists {
		return types.Station{}, false
	}
	return record.toStation(NormalizeCustomKey(key)), true
}

func (s *CustomStationStore) Count(groupID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.load()[groupID])
}

// Clear drops every custom station for a group.
func (s *CustomStationStore) Clear(groupID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.load()
	if _, exists := doc[groupID]; !exists {
		return
	}
	delete(doc, groupID)
	s.save(doc)
}

func (r customStationRecord) toStation(key string) types.Station {
	return types.Station{
		Key:          key,
		Name:         r.Name,
		URL:          r.URL,
		RequiredTier: types.TierUltimate,
		AddedAt:      r.AddedAt,
		Custom:       true,
	}
}
