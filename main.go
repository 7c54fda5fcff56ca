// Command pinvote is a Slack bot that pins thread parents on request, either at once or after
// enough people approve with a reaction.
// It:
//   - Loads configuration and initializes structured logging.
//   - Optionally connects to Postgres and migrates the pin history schema.
//   - Connects to Slack over Socket Mode and routes events to the vote/pin logic.
//   - Runs the session expiry sweep in the background.
//   - Exposes /healthz, /readyz, /status, /pins and /metrics over HTTP.
//
// Shutdown is graceful on SIGINT/SIGTERM: the listener drains in-flight events and the sweep
// job stops before the process exits.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/pinvote/bot"
	"github.com/onnwee/pinvote/chat"
	"github.com/onnwee/pinvote/config"
	"github.com/onnwee/pinvote/db"
	"github.com/onnwee/pinvote/pin"
	"github.com/onnwee/pinvote/server"
	"github.com/onnwee/pinvote/slackapi"
	"github.com/onnwee/pinvote/telemetry"
	"github.com/onnwee/pinvote/vote"
)

var version = "dev"

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Tracing is optional; it requires OTEL_EXPORTER_OTLP_ENDPOINT
	shutdownTracing, err := telemetry.InitTracing("pinvote", version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slackClient := slackapi.New(cfg.BotToken, cfg.AppToken)
	idCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	selfID, err := slackClient.Identify(idCtx)
	cancel()
	if err != nil {
		slog.Error("slack auth.test failed", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("authenticated with slack", slog.String("bot_user", selfID))

	var (
		database *sql.DB
		history  *db.PinHistory
	)
	execOpts := []pin.Option{}
	if cfg.HistoryEnabled() {
		database, err = db.Connect(ctx, cfg.DBDsn)
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		slog.Info("running database migrations", slog.String("component", "db_migrate"))
		if err := db.Migrate(database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
		history = db.NewPinHistory(database)
		execOpts = append(execOpts, pin.WithRecorder(history))
	} else {
		slog.Info("pin history disabled (DB_DSN not set)")
	}

	store := vote.NewStore()
	executor := pin.NewExecutor(slackClient, pin.NewCooldown(cfg.PinCooldown), execOpts...)
	router := bot.New(slackClient, executor, store, bot.Options{
		SelfID:           selfID,
		ConfirmCap:       cfg.ConfirmCap,
		ApproveEmoji:     cfg.ApproveEmoji,
		RejectEmoji:      cfg.RejectEmoji,
		SessionMaxAge:    cfg.SessionMaxAge,
		SweepInterval:    cfg.SweepInterval,
		NotifyPinFailure: cfg.NotifyPinFailure,
	})
	listener := chat.NewListener(slackClient.API(), router)

	slog.Info("starting workers",
		slog.Int("confirm_cap", cfg.ConfirmCap),
		slog.Duration("pin_cooldown", cfg.PinCooldown),
		slog.Duration("session_max_age", cfg.SessionMaxAge),
		slog.Bool("history", history != nil))

	var (
		wg     sync.WaitGroup
		failed atomic.Bool
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		router.StartSweepJob(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := listener.Run(ctx); err != nil {
			slog.Error("chat listener exited with error", slog.Any("err", err))
			failed.Store(true)
			stop()
		}
	}()

	deps := server.Deps{
		Store:     store,
		Connected: listener.Connected,
		Settings: server.Settings{
			ConfirmCap:       cfg.ConfirmCap,
			PinCooldown:      cfg.PinCooldown,
			SessionMaxAge:    cfg.SessionMaxAge,
			SweepInterval:    cfg.SweepInterval,
			ApproveEmoji:     cfg.ApproveEmoji,
			RejectEmoji:      cfg.RejectEmoji,
			NotifyPinFailure: cfg.NotifyPinFailure,
		},
	}
	if history != nil {
		deps.History = history
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(ctx, cfg.HTTPAddr, server.NewMux(deps)); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
	wg.Wait()
	slog.Info("shutdown complete", slog.Int("open_sessions_dropped", store.Len()))
	if failed.Load() {
		shutdownTracing()
		os.Exit(1)
	}
}

// setupLogging configures the default slog logger from LOG_LEVEL and LOG_FORMAT.
// Defaults: level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}
