package billing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/omnifm/omnifm-bot/types"
)

// LicenseLister enumerates every stored license. The license store
// implements it.
type LicenseLister interface {
	List() map[string]types.License
}

// ExpiryNotifier receives expiry warnings for licenses inside the window.
type ExpiryNotifier interface {
	LicenseExpiringSoon(ctx context.Context, groupID string, lic types.License, daysLeft int)
}

const (
	defaultExpiryWarnDays = 7
	defaultSweepInterval  = 6 * time.Hour
)

// ExpiryWatcher periodically scans the license store and warns the admin chat
// when a license enters its expiry window. Each license term is warned about
// once; a renewal moves ExpiresAt and arms the warning again.
type ExpiryWatcher struct {
	licenses LicenseLister
	notify   ExpiryNotifier
	warnDays int
	log      *slog.Logger

	// now is swapped by tests.
	now func() time.Time

	mu     sync.Mutex
	warned map[string]time.Time // group id -> ExpiresAt already warned for
}

func NewExpiryWatcher(licenses LicenseLister, notify ExpiryNotifier, log *slog.Logger) *ExpiryWatcher {
	if log == nil {
		log = slog.Default()
	}
	return &ExpiryWatcher{
		licenses: licenses,
		notify:   notify,
		warnDays: defaultExpiryWarnDays,
		log:      log,
		now:      time.Now,
		warned:   make(map[string]time.Time),
	}
}

// Run sweeps immediately and then on a fixed interval until ctx is done.
func (w *ExpiryWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(defaultSweepInterval)
	defer ticker.Stop()

	w.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep walks the store once and returns how many warnings were sent.
// Already-expired licenses are skipped; the activation path reports those.
func (w *ExpiryWatcher) Sweep(ctx context.Context) int {
	now := w.now()
	sent := 0
	for groupID, lic := range w.licenses.List() {
		if lic.Expired(now) {
			continue
		}
		daysLeft := lic.RemainingDays(now)
		if daysLeft > w.warnDays {
			continue
		}
		if w.alreadyWarned(groupID, lic.ExpiresAt) {
			continue
		}
		w.notify.LicenseExpiringSoon(ctx, groupID, lic, daysLeft)
		w.log.Info("license expiry warning sent", "guild", groupID, "daysLeft", daysLeft)
		sent++
	}
	return sent
}

func (w *ExpiryWatcher) alreadyWarned(groupID string, expiresAt time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if prev, ok := w.warned[groupID]; ok && prev.Equal(expiresAt) {
		return true
	}
	w.warned[groupID] = expiresAt
	return false
}
