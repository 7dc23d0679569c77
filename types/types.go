package types

import (
	"regexp"
	"time"
)

// License is one group's entitlement record. An expired record is kept for
// history and counts as TierFree; it is never deleted implicitly.
type License struct {
	Tier           Tier       `json:"tier"`
	ActivatedAt    time.Time  `json:"activatedAt"`
	ExpiresAt      time.Time  `json:"expiresAt"`
	DurationMonths int        `json:"durationMonths"`
	ActivatedBy    string     `json:"activatedBy"`
	Note           string     `json:"note,omitempty"`
	UpgradedAt     *time.Time `json:"upgradedAt,omitempty"`
	UpgradedFrom   Tier       `json:"upgradedFrom,omitempty"`
}

func (l License) Expired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}

// RemainingDays returns the whole days left on the license term, rounded up.
func (l License) RemainingDays(now time.Time) int {
	diff := l.ExpiresAt.Sub(now)
	if diff <= 0 {
		return 0
	}
	days := int(diff / (24 * time.Hour))
	if diff%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// LedgerEntry marks an external transaction id as already applied.
type LedgerEntry struct {
	ProcessedAt time.Time         `json:"processedAt"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// UpgradeQuote is the prorated cost of switching an active license to a
// higher-priced tier for the remainder of its term.
type UpgradeQuote struct {
	OldTier     Tier      `json:"oldTier"`
	NewTier     Tier      `json:"newTier"`
	DaysLeft    int       `json:"daysLeft"`
	UpgradeCost int64     `json:"upgradeCost"` // cents
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Rule holds the allow/deny role sets for one command in one group.
// A role id never appears in both sets.
type Rule struct {
	AllowRoleIDs []string `json:"allowRoleIds"`
	DenyRoleIDs  []string `json:"denyRoleIds"`
}

func (r Rule) Empty() bool {
	return len(r.AllowRoleIDs) == 0 && len(r.DenyRoleIDs) == 0
}

type Verdict struct {
	Managed    bool     `json:"managed"`
	Configured bool     `json:"configured"`
	Allowed    bool     `json:"allowed"`
	Reason     string   `json:"reason"`
	MatchedIDs []string `json:"matchedRoleIds,omitempty"`
}

const (
	ReasonNotManaged    = "not_managed"
	ReasonOpen          = "open"
	ReasonDeny          = "deny"
	ReasonAllow         = "allow"
	ReasonAllowRequired = "allow_required"
)

// Station is one named remote audio feed.
type Station struct {
	Key          string    `json:"key"`
	Name         string    `json:"name"`
	URL          string    `json:"url"`
	RequiredTier Tier      `json:"requiredTier,omitempty"`
	AddedAt      time.Time `json:"addedAt,omitzero"`
	Custom       bool      `json:"custom,omitempty"`
}

type QualityPreset string

const (
	QualityLow    QualityPreset = "low"
	QualityMedium QualityPreset = "medium"
	QualityHigh   QualityPreset = "high"
	QualityCustom QualityPreset = "custom"
)

func ParseQualityPreset(s string) (QualityPreset, bool) {
	switch QualityPreset(s) {
	case QualityLow, QualityMedium, QualityHigh, QualityCustom:
		return QualityPreset(s), true
	default:
		return QualityCustom, false
	}
}

// Snapshot is the per-(agent,group) restart record of the last playing feed.
type Snapshot struct {
	ChannelID   string    `json:"channelId"`
	StationKey  string    `json:"stationKey"`
	StationName string    `json:"stationName,omitempty"`
	Volume      int       `json:"volume"`
	SavedAt     time.Time `json:"savedAt"`
}

// Command is one inbound user action delivered by the platform dispatcher.
type Command struct {
	Name           string   `json:"name"`
	AgentID        string   `json:"agentId"`
	GroupID        string   `json:"guildId"`
	CallerID       string   `json:"callerId"`
	CallerRoleIDs  []string `json:"callerRoleIds,omitempty"`
	VoiceChannelID string   `json:"voiceChannelId,omitempty"`
	StationKey     string   `json:"stationKey,omitempty"`
	Volume         int      `json:"volume,omitempty"`
	Args           []string `json:"args,omitempty"`
}

// Reply is the structured outcome of a dispatched command. Dispatch never
// panics or errors across the platform boundary; failures become messages.
type Reply struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// UsageEvent is one dispatched command recorded by the audit sink.
type UsageEvent struct {
	EventID    string
	AgentID    string
	GroupID    string
	CallerID   string
	Command    string
	StationKey string
	Allowed    bool
	Reason     string
	OccurredAt time.Time
}

var snowflakeRe = regexp.MustCompile(`^\d{17,22}$`)

// IsSnowflake reports whether v is a platform-issued numeric id (17-22 digits).
func IsSnowflake(v string) bool {
	return snowflakeRe.MatchString(v)
}
