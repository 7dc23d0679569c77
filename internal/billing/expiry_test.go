package billing

import (
	"context"
	"testing"
	"time"

	"github.com/omnifm/omnifm-bot/types"
)

type fakeLicenses struct {
	licenses map[string]types.License
}

func (f *fakeLicenses) List() map[string]types.License { return f.licenses }

type fakeExpiryNotifier struct {
	warnings []string
}

func (f *fakeExpiryNotifier) LicenseExpiringSoon(_ context.Context, groupID string, _ types.License, _ int) {
	f.warnings = append(f.warnings, groupID)
}

func expiryHarness(t *testing.T, licenses map[string]types.License, now time.Time) (*ExpiryWatcher, *fakeExpiryNotifier) {
	t.Helper()
	notifier := &fakeExpiryNotifier{}
	w := NewExpiryWatcher(&fakeLicenses{licenses: licenses}, notifier, nil)
	w.now = func() time.Time { return now }
	return w, notifier
}

func TestSweepWarnsInsideWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w, notifier := expiryHarness(t, map[string]types.License{
		"100000000000000001": {Tier: types.TierPro, ExpiresAt: now.Add(3 * 24 * time.Hour)},
		"100000000000000002": {Tier: types.TierUltimate, ExpiresAt: now.Add(60 * 24 * time.Hour)},
		"100000000000000003": {Tier: types.TierPro, ExpiresAt: now.Add(-time.Hour)},
	}, now)

	if got := w.Sweep(context.Background()); got != 1 {
		t.Fatalf("Sweep = %d warnings, want 1", got)
	}
	if len(notifier.warnings) != 1 || notifier.warnings[0] != "100000000000000001" {
		t.Errorf("warnings = %v", notifier.warnings)
	}
}

func TestSweepWarnsOncePerTerm(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expires := now.Add(5 * 24 * time.Hour)
	licenses := map[string]types.License{
		"100000000000000001": {Tier: types.TierPro, ExpiresAt: expires},
	}
	w, notifier := expiryHarness(t, licenses, now)

	w.Sweep(context.Background())
	if got := w.Sweep(context.Background()); got != 0 {
		t.Errorf("repeat Sweep = %d warnings, want 0", got)
	}
	if len(notifier.warnings) != 1 {
		t.Fatalf("warnings = %v", notifier.warnings)
	}

	// A renewal moves ExpiresAt and re-arms the warning for the new term.
	licenses["100000000000000001"] = types.License{Tier: types.TierPro, ExpiresAt: now.Add(370 * 24 * time.Hour)}
	w.now = func() time.Time { return now.Add(365 * 24 * time.Hour) }
	if got := w.Sweep(context.Background()); got != 1 {
		t.Errorf("post-renewal Sweep = %d warnings, want 1", got)
	}
}
