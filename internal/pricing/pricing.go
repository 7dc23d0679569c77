package pricing

import (
	"fmt"
	"strings"

	"github.com/omnifm/omnifm-bot/types"
)

// yearlyMonthsCharged: every complete block of 12 months is billed as 10.
const yearlyMonthsCharged = 10

// Price returns the total in cents for a tier over the given term. Complete
// 12-month blocks get the yearly discount; remainder months bill at the full
// monthly rate. Free and unknown tiers always price at 0.
func Price(tier types.Tier, months int) int64 {
	ppm := types.ConfigForTier(types.ParseTier(string(tier))).PricePerMonth
	if ppm == 0 || months < 1 {
		return 0
	}
	blocks := int64(months / 12)
	remainder := int64(months % 12)
	return ppm * (blocks*yearlyMonthsCharged + remainder)
}

// PerMonth returns the monthly rate in cents.
func PerMonth(tier types.Tier) int64 {
	return types.ConfigForTier(types.ParseTier(string(tier))).PricePerMonth
}

// FormatEUR renders cents as a user-facing euro amount.
func FormatEUR(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d,%02d EUR", sign, cents/100, cents%100)
}

// Overview is a compact pricing summary for status surfaces and CLIs.
func Overview() string {
	var b strings.Builder
	for _, tier := range types.TierOrder {
		cfg := types.ConfigForTier(tier)
		fmt.Fprintf(&b, "%s: %s/month (%s audio, up to %d agents)\n",
			cfg.Name, FormatEUR(cfg.PricePerMonth), cfg.Bitrate, cfg.MaxAgents)
	}
	fmt.Fprintf(&b, "Yearly: pay %d months for 12\n", yearlyMonthsCharged)
	return b.String()
}
