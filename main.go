// Command cat-video-bot runs the white Persian cat video bot.
// It:
//   - Loads configuration and initializes structured logging.
//   - Opens the rate limit store (JSON file, Postgres or Redis).
//   - Starts the Telegram and/or Twitch chat transports that accept /cat and /status.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /metrics and /tasks/{id}.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/cat-video-bot/bot"
	"github.com/onnwee/cat-video-bot/chat"
	"github.com/onnwee/cat-video-bot/config"
	"github.com/onnwee/cat-video-bot/db"
	"github.com/onnwee/cat-video-bot/minimax"
	"github.com/onnwee/cat-video-bot/ratelimit"
	"github.com/onnwee/cat-video-bot/server"
	"github.com/onnwee/cat-video-bot/task"
	"github.com/onnwee/cat-video-bot/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
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
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("cat-video-bot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open rate limit store", slog.String("backend", cfg.RateLimitBackend), slog.Any("err", err))
		os.Exit(1)
	}
	defer closeStore()
	limiter := ratelimit.New(ctx, store, ratelimit.WithWindow(cfg.RateLimitWindow))

	client := &minimax.Client{
		APIKey:     cfg.MinimaxAPIKey,
		GroupID:    cfg.MinimaxGroupID,
		BaseURL:    cfg.MinimaxBaseURL,
		Model:      cfg.MinimaxModel,
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
		Images:     minimax.NewReferenceImages(cfg.AssetsDir, cfg.ReferenceImages, time.Now().UnixNano()),
	}
	tasks := task.New(client, task.WithPollInterval(cfg.PollInterval))
	commands := bot.New(ctx, limiter, tasks)
	admins := chat.AdminFunc(cfg.IsAdmin)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx, cfg.HTTPAddr, server.Deps{
			Tasks:      tasks,
			Checks:     []server.ReadinessCheck{{Name: "rate_limit_store", Check: limiter.Ping}},
			AdminToken: cfg.AdminToken,
		})
	})
	if cfg.TelegramToken != "" {
		tg, err := chat.NewTelegram(cfg.TelegramToken, commands, admins)
		if err != nil {
			slog.Error("telegram init failed", slog.Any("err", err))
			os.Exit(1)
		}
		g.Go(func() error { return tg.Run(gctx) })
	} else {
		slog.Info("telegram transport disabled (TELEGRAM_TOKEN not set)")
	}
	if err := cfg.ValidateTwitchReady(); err == nil {
		tw := chat.NewTwitch(chat.TwitchConfig{
			Channel:    cfg.TwitchChannel,
			Username:   cfg.TwitchBotUsername,
			OAuthToken: cfg.TwitchOAuthToken,
			Admins:     admins,
		}, commands)
		g.Go(func() error { return tw.Run(gctx) })
	} else {
		slog.Info("twitch transport disabled", slog.Any("reason", err))
	}

	slog.Info("bot started", slog.String("backend", cfg.RateLimitBackend), slog.Duration("poll_interval", cfg.PollInterval))
	if err := g.Wait(); err != nil {
		slog.Error("bot stopped with error", slog.Any("err", err))
		stop()
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

// openStore builds the configured rate limit store and a func releasing its connections.
func openStore(ctx context.Context, cfg *config.Config) (ratelimit.Store, func(), error) {
	switch cfg.RateLimitBackend {
	case config.BackendPostgres:
		database, err := db.Connect(ctx, cfg.DBDsn)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx, database); err != nil {
			_ = database.Close()
			return nil, nil, err
		}
		return &ratelimit.PostgresStore{DB: database}, func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}, nil
	case config.BackendRedis:
		rdb, err := ratelimit.NewRedisClient(ratelimit.RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			return nil, nil, err
		}
		return &ratelimit.RedisStore{Client: rdb}, func() {
			if err := rdb.Close(); err != nil {
				slog.Error("failed to close redis", slog.Any("err", err))
			}
		}, nil
	default:
		return &ratelimit.FileStore{Path: cfg.RateLimitFile}, func() {}, nil
	}
}
