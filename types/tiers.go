package types

import (
	"strings"
	"time"
)

type Tier string

const (
	TierFree     Tier = "free"
	TierPro      Tier = "pro"
	TierUltimate Tier = "ultimate"
)

// TierOrder lists tiers from lowest to highest entitlement.
var TierOrder = []Tier{TierFree, TierPro, TierUltimate}

type TierConfig struct {
	Tier              Tier          `json:"tier"`
	Name              string        `json:"name"`
	Bitrate           string        `json:"bitrate"`
	BitrateKbps       int           `json:"bitrateKbps"`
	ReconnectInterval time.Duration `json:"reconnectIntervalMs"`
	MaxAgents         int           `json:"maxAgents"`
	PricePerMonth     int64         `json:"pricePerMonth"` // cents
	CustomStations    bool          `json:"customStations"`
	CommandRules      bool          `json:"commandRules"`
}

var tierConfigs = map[Tier]TierConfig{
	TierFree: {
		Tier:              TierFree,
		Name:              "Free",
		Bitrate:           "64k",
		BitrateKbps:       64,
		ReconnectInterval: 5000 * time.Millisecond,
		MaxAgents:         2,
		PricePerMonth:     0,
	},
	TierPro: {
		Tier:              TierPro,
		Name:              "Pro",
		Bitrate:           "128k",
		BitrateKbps:       128,
		ReconnectInterval: 1500 * time.Millisecond,
		MaxAgents:         8,
		PricePerMonth:     299,
		CommandRules:      true,
	},
	TierUltimate: {
		Tier:              TierUltimate,
		Name:              "Ultimate",
		Bitrate:           "320k",
		BitrateKbps:       320,
		ReconnectInterval: 400 * time.Millisecond,
		MaxAgents:         16,
		PricePerMonth:     499,
		CustomStations:    true,
		CommandRules:      true,
	},
}

// ParseTier coerces unknown or malformed values to TierFree.
func ParseTier(s string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierPro:
		return TierPro
	case TierUltimate:
		return TierUltimate
	default:
		return TierFree
	}
}

func IsPaidTier(s string) bool {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	return t == TierPro || t == TierUltimate
}

func ConfigForTier(t Tier) TierConfig {
	cfg, ok := tierConfigs[t]
	if !ok {
		return tierConfigs[TierFree]
	}
	return cfg
}

func tierRank(t Tier) int {
	for i, candidate := range TierOrder {
		if candidate == t {
			return i
		}
	}
	return 0
}

// TierAtLeast reports whether current grants the entitlements of minimum.
func TierAtLeast(current, minimum Tier) bool {
	return tierRank(current) >= tierRank(minimum)
}
