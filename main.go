// OmniFM orchestrator: runs every configured radio agent, the status API,
// the inbound command bridge and the billing webhook in one process.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/omnifm/omnifm-bot/internal/billing"
	"github.com/omnifm/omnifm-bot/internal/config"
	"github.com/omnifm/omnifm-bot/internal/handlers"
	"github.com/omnifm/omnifm-bot/internal/i18n"
	"github.com/omnifm/omnifm-bot/internal/middleware"
	"github.com/omnifm/omnifm-bot/internal/notify"
	"github.com/omnifm/omnifm-bot/internal/session"
	"github.com/omnifm/omnifm-bot/internal/statusapi"
	"github.com/omnifm/omnifm-bot/internal/voice"
	"github.com/omnifm/omnifm-bot/store"
)

func main() {
	if err := config.LoadEnvFile(".env"); err != nil {
		slog.Error("env file load failed", "error", err)
		os.Exit(1)
	}
	settings := config.LoadSettings()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(log)

	agents, err := config.LoadAgents()
	if err != nil {
		log.Error("agent configuration invalid", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(settings.DataDir, 0o755); err != nil {
		log.Error("data dir unavailable", "dir", settings.DataDir, "error", err)
		os.Exit(1)
	}

	licenses := store.NewLicenseStore(filepath.Join(settings.DataDir, "licenses.json"), log)
	perms := store.NewPermissionStore(filepath.Join(settings.DataDir, "permissions.json"), log)
	global := store.NewStationStore(filepath.Join(settings.DataDir, "stations.json"), log)
	custom := store.NewCustomStationStore(filepath.Join(settings.DataDir, "custom-stations.json"), log)
	snapshots := store.NewSnapshotStore(filepath.Join(settings.DataDir, "snapshots.json"), log)
	registry := store.NewRegistry(global, custom)

	lang := i18n.Parse(settings.Language)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var auditSink middleware.UsageRecorder
	var auditStore *store.PostgresStore
	if settings.PostgresAuditDSN != "" {
		pg, err := store.NewPostgresStore(rootCtx, settings.PostgresAuditDSN)
		if err != nil {
			log.Error("audit store unavailable", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		auditSink = pg
		auditStore = pg
		log.Info("command audit enabled")
	}

	notifier, err := notify.NewTelegram(settings.TelegramAdminToken, settings.TelegramAdminChatID, log)
	if err != nil {
		log.Error("notifier setup failed", "error", err)
		os.Exit(1)
	}

	// No client timeout: radio streams are open-ended reads. Dial and TLS
	// handshake limits come from the default transport.
	streamClient := &http.Client{}

	routes := make(map[string]middleware.Handler, len(agents))
	supervisors := make([]*session.Supervisor, 0, len(agents))
	apiAgents := make([]statusapi.Agent, 0, len(agents))

	for _, agent := range agents {
		dialer := voice.NewGatewayDialer(settings.VoiceGatewayURL, agent.Token, log)
		sv := session.NewSupervisor(agent.ID, dialer, licenses, registry, snapshots, streamClient, log)
		dispatcher := handlers.NewDispatcher(sv, licenses, registry, custom, lang, log)

		routes[agent.ID] = middleware.Chain(dispatcher.Dispatch,
			middleware.Recover(log, lang),
			middleware.Permission(perms, lang),
			middleware.Audit(auditSink, log),
		)
		supervisors = append(supervisors, sv)
		apiAgents = append(apiAgents, statusapi.Agent{Sessions: sv, InviteURL: agent.InviteURL()})
		log.Info("agent configured", "agent", agent.ID, "name", agent.Name)
	}

	go resumeSnapshots(rootCtx, supervisors, snapshots, log)

	mux := http.NewServeMux()
	api := statusapi.NewServer(apiAgents, global, log)
	api.Register(mux)
	api.RegisterCommandBridge(mux, routes)
	if auditStore != nil {
		api.RegisterUsage(mux, auditStore)
	}

	var activationNotify billing.Notifier
	if notifier != nil {
		activationNotify = notifier
		go billing.NewExpiryWatcher(licenses, notifier, log).Run(rootCtx)
	}
	mux.Handle("POST /webhook/stripe", billing.NewWebhook(licenses, activationNotify, settings.StripeWebhookSecret, log))

	srv := &http.Server{
		Addr:              settings.StatusAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("http listening", "addr", settings.StatusAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	for _, sv := range supervisors {
		sv.Shutdown()
	}
	log.Info("stopped")
}

// resumeSnapshots restarts the sessions that were playing when the previous
// process exited. Failures only log; a dead station must not block startup.
func resumeSnapshots(ctx context.Context, supervisors []*session.Supervisor, snapshots *store.SnapshotStore, log *slog.Logger) {
	for _, sv := range supervisors {
		for groupID, snap := range snapshots.Agent(sv.AgentID()) {
			if ctx.Err() != nil {
				return
			}
			if _, err := sv.Start(ctx, groupID, snap.ChannelID, snap.StationKey); err != nil {
				log.Warn("session resume failed",
					"agent", sv.AgentID(), "guild", groupID, "station", snap.StationKey, "error", err)
				continue
			}
			sv.SetVolume(groupID, snap.Volume)
			log.Info("session resumed", "agent", sv.AgentID(), "guild", groupID, "station", snap.StationKey)
		}
	}
}
