package store

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/omnifm/omnifm-bot/types"
)

// maxLedgerEntries bounds the processed-session/event maps. Oldest entries by
// processedAt are evicted once the bound is exceeded.
const maxLedgerEntries = 5000

type licenseDocument struct {
	Licenses          map[string]licenseRecord     `json:"licenses"`
	ProcessedSessions map[string]types.LedgerEntry `json:"processedSessions"`
	ProcessedEvents   map[string]types.LedgerEntry `json:"processedEvents"`
}

// licenseRecord is the loose on-disk shape. Legacy documents carry tier values
// and timestamps in assorted states; normalization happens on every load and
// is never written back until the next explicit save.
type licenseRecord struct {
	Tier           string     `json:"tier"`
	ActivatedAt    time.Time  `json:"activatedAt,omitzero"`
	ExpiresAt      time.Time  `json:"expiresAt,omitzero"`
	DurationMonths int        `json:"durationMonths,omitempty"`
	ActivatedBy    string     `json:"activatedBy,omitempty"`
	Note           string     `json:"note,omitempty"`
	UpgradedAt     *time.Time `json:"upgradedAt,omitempty"`
	UpgradedFrom   string     `json:"upgradedFrom,omitempty"`
}

func (r licenseRecord) toLicense() types.License {
	lic := types.License{
		Tier:           types.ParseTier(r.Tier),
		ActivatedAt:    r.ActivatedAt,
		ExpiresAt:      r.ExpiresAt,
		DurationMonths: r.DurationMonths,
		ActivatedBy:    r.ActivatedBy,
		Note:           r.Note,
		UpgradedAt:     r.UpgradedAt,
	}
	if r.UpgradedFrom != "" {
		lic.UpgradedFrom = types.ParseTier(r.UpgradedFrom)
	}
	return lic
}

func recordFromLicense(lic types.License) licenseRecord {
	rec := licenseRecord{
		Tier:           string(lic.Tier),
		ActivatedAt:    lic.ActivatedAt,
		ExpiresAt:      lic.ExpiresAt,
		DurationMonths: lic.DurationMonths,
		ActivatedBy:    lic.ActivatedBy,
		Note:           lic.Note,
		UpgradedAt:     lic.UpgradedAt,
	}
	if lic.UpgradedFrom != "" {
		rec.UpgradedFrom = string(lic.UpgradedFrom)
	}
	return rec
}

// LicenseStore owns the entitlement document. Every operation re-loads from
// disk so external tools mutating the same file stay visible; the store mutex
// serializes read-modify-write cycles within this process.
type LicenseStore struct {
	mu   sync.Mutex
	file *jsonFile
	log  *slog.Logger
	now  func() time.Time
}

func NewLicenseStore(path string, log *slog.Logger) *LicenseStore {
	if log == nil {
		log = slog.Default()
	}
	return &LicenseStore{
		file: newJSONFile(path, true, log),
		log:  log,
		now:  time.Now,
	}
}

func (s *LicenseStore) load() *licenseDocument {
	doc := &licenseDocument{}
	if err := s.file.Load(doc); err != nil {
		s.log.Warn("license store load failed, starting empty", "error", err)
	}
	if doc.Licenses == nil {
		doc.Licenses = map[string]licenseRecord{}
	}
	if doc.ProcessedSessions == nil {
		doc.ProcessedSessions = map[string]types.LedgerEntry{}
	}
	if doc.ProcessedEvents == nil {
		doc.ProcessedEvents = map[string]types.LedgerEntry{}
	}
	return doc
}

// save trims the ledgers before writing. Write failures degrade to "change
// not persisted": they are logged, not fatal.
func (s *LicenseStore) save(doc *licenseDocument) {
	doc.ProcessedSessions = trimLedger(doc.ProcessedSessions)
	doc.ProcessedEvents = trimLedger(doc.ProcessedEvents)
	if err := s.file.Save(doc); err != nil {
		s.log.Warn("license store save failed", "error", err)
	}
}

func trimLedger(entries map[string]types.LedgerEntry) map[string]types.LedgerEntry {
	if len(entries) <= maxLedgerEntries {
		return entries
	}
	type keyed struct {
		id    string
		entry types.LedgerEntry
	}
	all := make([]keyed, 0, len(entries))
	for id, e := range entries {
		all = append(all, keyed{id, e})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].entry.ProcessedAt.After(all[j].entry.ProcessedAt)
	})
	out := make(map[string]types.LedgerEntry, maxLedgerEntries)
	for _, k := range all[:maxLedgerEntries] {
		out[k.id] = k.entry
	}
	return out
}

// Get returns the stored record for a group, expired or not.
func (s *LicenseStore) Get(groupID string) (types.License, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.load().Licenses[groupID]
	if !ok {
		return types.License{}, false
	}
	return rec.toLicense(), true
}

// EffectiveTier resolves a group's tier: free when no record exists or the
// record has expired.
func (s *LicenseStore) EffectiveTier(groupID string) types.Tier {
	lic, ok := s.Get(groupID)
	if !ok || lic.Expired(s.now()) {
		return types.TierFree
	}
	return lic.Tier
}

// GetTierConfig returns the static profile for a group's effective tier.
func (s *LicenseStore) GetTierConfig(groupID string) types.TierConfig {
	return types.ConfigForTier(s.EffectiveTier(groupID))
}

// AddOrRenew extends an unexpired same-tier license by whole calendar months,
// or creates a fresh record dated from now.
func (s *LicenseStore) AddOrRenew(groupID string, tier types.Tier, months int, activatedBy, note string) (types.License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.load()
	lic, err := s.addOrRenewLocked(doc, groupID, tier, months, activatedBy, note)
	if err != nil {
		return types.License{}, err
	}
	s.save(doc)
	return lic, nil
}

func (s *LicenseStore) addOrRenewLocked(doc *licenseDocument, groupID string, tier types.Tier, months int, activatedBy, note string) (types.License, error) {
	if !types.IsPaidTier(string(tier)) {
		return types.License{}, types.ErrInvalidTier
	}
	if months < 1 {
		return types.License{}, types.ErrInvalidDuration
	}
	if !types.IsSnowflake(groupID) {
		return types.License{}, types.ErrInvalidID
	}
	now := s.now()

	lic := types.License{
		Tier:           tier,
		ActivatedAt:    now,
		ExpiresAt:      now.AddDate(0, months, 0),
		DurationMonths: months,
		ActivatedBy:    activatedBy,
		Note:           note,
	}
	if existing, ok := doc.Licenses[groupID]; ok {
		current := existing.toLicense()
		if current.Tier == tier && !current.Expired(now) {
			lic = current
			lic.ExpiresAt = current.ExpiresAt.AddDate(0, months, 0)
			lic.DurationMonths = current.DurationMonths + months
			lic.ActivatedBy = activatedBy
			if note != "" {
				lic.Note = note
			}
		}
	}

	doc.Licenses[groupID] = recordFromLicense(lic)
	return lic, nil
}

// Upgrade switches an active license to a different paid tier. The expiry is
// preserved; only the tier changes, with the previous tier recorded.
func (s *LicenseStore) Upgrade(groupID string, newTier types.Tier) (types.License, error) {
	if !types.IsPaidTier(string(newTier)) {
		return types.License{}, types.ErrInvalidTier
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.load()
	now := s.now()

	rec, ok := doc.Licenses[groupID]
	if !ok {
		return types.License{}, types.ErrNoActiveLicense
	}
	lic := rec.toLicense()
	if lic.Expired(now) {
		return types.License{}, types.ErrNoActiveLicense
	}
	if lic.Tier == newTier {
		return lic, nil
	}

	lic.UpgradedFrom = lic.Tier
	lic.UpgradedAt = &now
	lic.Tier = newTier
	doc.Licenses[groupID] = recordFromLicense(lic)
	s.save(doc)
	return lic, nil
}

// Remove deletes a group's record and reports whether one existed.
func (s *LicenseStore) Remove(groupID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.load()
	if _, ok := doc.Licenses[groupID]; !ok {
		return false
	}
	delete(doc.Licenses, groupID)
	s.save(doc)
	return true
}

// List returns all records keyed by group id.
func (s *LicenseStore) List() map[string]types.License {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.load()
	out := make(map[string]types.License, len(doc.Licenses))
	for id, rec := range doc.Licenses {
		out[id] = rec.toLicense()
	}
	return out
}

// CalculateUpgradePrice prorates the daily-rate difference between the current
// tier and newTier over the remaining whole days of the term. It returns nil
// when no active license exists, when newTier is not strictly more expensive,
// or when no days remain.
func (s *LicenseStore) CalculateUpgradePrice(groupID string, newTier types.Tier) *types.UpgradeQuote {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.load()
	now := s.now()

	rec, ok := doc.Licenses[groupID]
	if !ok {
		return nil
	}
	lic := rec.toLicense()
	if lic.Expired(now) {
		return nil
	}

	oldPPM := types.ConfigForTier(lic.Tier).PricePerMonth
	newPPM := types.ConfigForTier(newTier).PricePerMonth
	diff := newPPM - oldPPM
	if diff <= 0 {
		return nil
	}
	daysLeft := lic.RemainingDays(now)
	if daysLeft <= 0 {
		return nil
	}

	cost := (diff*int64(daysLeft) + 29) / 30 // ceil(diff * days / 30)
	return &types.UpgradeQuote{
		OldTier:     lic.Tier,
		NewTier:     newTier,
		DaysLeft:    daysLeft,
		UpgradeCost: cost,
		ExpiresAt:   lic.ExpiresAt,
	}
}

// --- Idempotency ledgers ---

func (s *LicenseStore) IsSessionProcessed(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.load().ProcessedSessions[sessionID]
	return ok
}

func (s *LicenseStore) MarkSessionProcessed(sessionID string, meta map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.load()
	doc.ProcessedSessions[sessionID] = types.LedgerEntry{ProcessedAt: s.now(), Meta: meta}
	s.save(doc)
}

func (s *LicenseStore) IsEventProcessed(eventID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.load().ProcessedEvents[eventID]
	return ok
}

func (s *LicenseStore) MarkEventProcessed(eventID string, meta map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.load()
	doc.ProcessedEvents[eventID] = types.LedgerEntry{ProcessedAt: s.now(), Meta: meta}
	s.save(doc)
}

// Grant is one externally-triggered purchase or renewal to apply.
type Grant struct {
	GroupID     string
	Tier        types.Tier
	Months      int
	ActivatedBy string
	Note        string
}

// ApplyGrantOnce applies a grant and stamps both ledgers in one atomic
// read-modify-write. Replayed deliveries of the same external transaction
// (event id, or checkout session id when non-empty) become no-ops after the
// first application.
func (s *LicenseStore) ApplyGrantOnce(eventID, sessionID string, meta map[string]string, g Grant) (types.License, bool, error) {
	if eventID == "" {
		return types.License{}, false, fmt.Errorf("event id must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.load()
	if _, ok := doc.ProcessedEvents[eventID]; ok {
		return types.License{}, false, nil
	}
	if sessionID != "" {
		if _, ok := doc.ProcessedSessions[sessionID]; ok {
			return types.License{}, false, nil
		}
	}

	lic, err := s.addOrRenewLocked(doc, g.GroupID, g.Tier, g.Months, g.ActivatedBy, g.Note)
	if err != nil {
		return types.License{}, false, err
	}

	now := s.now()
	doc.ProcessedEvents[eventID] = types.LedgerEntry{ProcessedAt: now, Meta: meta}
	if sessionID != "" {
		doc.ProcessedSessions[sessionID] = types.LedgerEntry{ProcessedAt: now, Meta: meta}
	}
	s.save(doc)
	return lic, true, nil
}
