package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/omnifm/omnifm-bot/store"
	"github.com/omnifm/omnifm-bot/types"
)

const maxWebhookBody = 64 << 10

// Grants is the license application surface. The license store implements it.
type Grants interface {
	ApplyGrantOnce(eventID, sessionID string, meta map[string]string, g store.Grant) (types.License, bool, error)
}

// Notifier receives activation events after a grant is applied. Nil disables
// notifications.
type Notifier interface {
	LicenseActivated(ctx context.Context, groupID string, lic types.License)
}

// Webhook handles Stripe checkout events and turns completed paid sessions
// into license grants. Replays of the same event or checkout session are
// absorbed by the store's idempotency ledgers.
type Webhook struct {
	grants Grants
	notify Notifier
	secret string
	log    *slog.Logger
}

func NewWebhook(grants Grants, notify Notifier, signingSecret string, log *slog.Logger) *Webhook {
	if log == nil {
		log = slog.Default()
	}
	return &Webhook{grants: grants, notify: notify, secret: signingSecret, log: log}
}

func (w *Webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(rw, "read failed", http.StatusBadRequest)
		return
	}

	event, err := w.parseEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		w.log.Warn("webhook rejected", "error", err)
		http.Error(rw, "invalid payload", http.StatusBadRequest)
		return
	}

	if event.Type != "checkout.session.completed" &&
		event.Type != "checkout.session.async_payment_succeeded" {
		writeReceived(rw)
		return
	}

	var session stripe.CheckoutSession
	if event.Data == nil {
		http.Error(rw, "invalid payload", http.StatusBadRequest)
		return
	}
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		w.log.Warn("webhook session unmarshal failed", "event", event.ID, "error", err)
		http.Error(rw, "invalid payload", http.StatusBadRequest)
		return
	}

	if !sessionPaid(&session) {
		w.log.Info("webhook session not paid, ignoring",
			"event", event.ID, "session", session.ID, "paymentStatus", session.PaymentStatus)
		writeReceived(rw)
		return
	}

	grant, meta, err := grantFromSession(&session)
	if err != nil {
		// A malformed session will never become valid on retry. Ack it.
		w.log.Warn("webhook session unusable", "event", event.ID, "session", session.ID, "error", err)
		writeReceived(rw)
		return
	}

	eventID := event.ID
	if eventID == "" {
		eventID = uuid.NewString()
	}

	lic, applied, err := w.grants.ApplyGrantOnce(eventID, session.ID, meta, grant)
	if err != nil {
		w.log.Error("license grant failed", "event", eventID, "guild", grant.GroupID, "error", err)
		http.Error(rw, "grant failed", http.StatusInternalServerError)
		return
	}
	if !applied {
		w.log.Info("webhook replay ignored", "event", eventID, "session", session.ID)
		writeReceived(rw)
		return
	}

	w.log.Info("license activated via checkout",
		"guild", grant.GroupID, "tier", grant.Tier, "months", grant.Months, "event", eventID)
	if w.notify != nil {
		w.notify.LicenseActivated(r.Context(), grant.GroupID, lic)
	}
	writeReceived(rw)
}

// parseEvent verifies the Stripe signature when a signing secret is
// configured; without one (local testing) the payload is trusted as-is.
func (w *Webhook) parseEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	if w.secret != "" {
		// Payload shape is pinned by our own parsing below, so an API
		// version drift on Stripe's side must not drop paid sessions.
		return webhook.ConstructEventWithOptions(payload, sigHeader, w.secret,
			webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	}
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return stripe.Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return event, nil
}

func sessionPaid(s *stripe.CheckoutSession) bool {
	return s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
		s.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired
}

// grantFromSession maps checkout metadata to a license grant. The guild id
// rides in client_reference_id (preferred) or metadata.guild_id, the plan in
// metadata.tier, the duration in metadata.months.
func grantFromSession(s *stripe.CheckoutSession) (store.Grant, map[string]string, error) {
	groupID := strings.TrimSpace(s.ClientReferenceID)
	if groupID == "" {
		groupID = strings.TrimSpace(s.Metadata["guild_id"])
	}
	if !types.IsSnowflake(groupID) {
		return store.Grant{}, nil, fmt.Errorf("missing or invalid guild id %q", groupID)
	}

	tier := types.ParseTier(s.Metadata["tier"])
	if !types.IsPaidTier(string(tier)) {
		return store.Grant{}, nil, fmt.Errorf("tier %q is not purchasable", s.Metadata["tier"])
	}

	months := 1
	if raw := strings.TrimSpace(s.Metadata["months"]); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return store.Grant{}, nil, fmt.Errorf("invalid months %q", raw)
		}
		months = n
	}

	meta := map[string]string{
		"guildId": groupID,
		"tier":    string(tier),
		"months":  strconv.Itoa(months),
	}
	grant := store.Grant{
		GroupID:     groupID,
		Tier:        tier,
		Months:      months,
		ActivatedBy: "stripe-checkout",
		Note:        fmt.Sprintf("checkout session %s", s.ID),
	}
	return grant, meta, nil
}

func writeReceived(rw http.ResponseWriter) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte(`{"received":true}`))
}
