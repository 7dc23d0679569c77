package config

import (
	"os"
	"strconv"
	"strings"
)

// Settings carries the orchestrator-level knobs read from the environment.
// Agent identities are loaded separately via LoadAgents.
type Settings struct {
	DataDir             string
	StatusAddr          string
	Language            string
	VoiceGatewayURL     string
	StripeWebhookSecret string
	TelegramAdminToken  string
	TelegramAdminChatID int64
	PostgresAuditDSN    string
}

// LoadSettings reads orchestrator settings with deploy-friendly defaults.
func LoadSettings() Settings {
	chatID, _ := strconv.ParseInt(strings.TrimSpace(os.Getenv("TELEGRAM_ADMIN_CHAT_ID")), 10, 64)
	return Settings{
		DataDir:             envOr("OMNIFM_DATA_DIR", "data"),
		StatusAddr:          envOr("STATUS_ADDR", ":8080"),
		Language:            envOr("BOT_LANG", "en"),
		VoiceGatewayURL:     envOr("VOICE_GATEWAY_URL", "wss://gateway.discord.gg"),
		StripeWebhookSecret: strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")),
		TelegramAdminToken:  strings.TrimSpace(os.Getenv("TELEGRAM_ADMIN_TOKEN")),
		TelegramAdminChatID: chatID,
		PostgresAuditDSN:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
