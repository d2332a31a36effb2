// Tiny Agents - Telegram Mini App server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/tinyagents/internal/agent"
	"github.com/ashureev/tinyagents/internal/api"
	"github.com/ashureev/tinyagents/internal/catalog"
	"github.com/ashureev/tinyagents/internal/config"
	"github.com/ashureev/tinyagents/internal/credits"
	"github.com/ashureev/tinyagents/internal/health"
	"github.com/ashureev/tinyagents/internal/identity"
	"github.com/ashureev/tinyagents/internal/middleware"
	"github.com/ashureev/tinyagents/internal/miniapp"
	"github.com/ashureev/tinyagents/internal/store"
	"github.com/ashureev/tinyagents/internal/stream"
	"github.com/ashureev/tinyagents/internal/telegram"
	"github.com/ashureev/tinyagents/internal/version"
	"github.com/ashureev/tinyagents/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "version", version.Get())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Initialize services.
	cat := catalog.Default()
	agentSvc := agent.NewServiceWithProcessor(agent.Placeholder{}, logger)
	creditSvc := credits.NewService(repo, cfg.Telegram.BotUsername)
	sessions := miniapp.NewManager(cat, agentSvc)
	conns := stream.NewConnManager()
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute)

	page, err := web.NewPage(cat, cfg.BackgroundColor)
	if err != nil {
		slog.Error("Failed to load Mini App page", "error", err)
		os.Exit(1)
	}

	// Initialize handlers.
	baseHandler := api.NewHandler(sessions, creditSvc, limiter)
	miniAppHandler := api.NewMiniAppHandler(baseHandler)
	healthHandler := api.NewHealthHandler(repo)
	wsHandler := stream.NewWebSocketHandler(sessions, conns, limiter, cfg.FrontendURL, cfg.IsDevelopment())

	var bot *telegram.Bot
	if cfg.BotEnabled() {
		client := telegram.NewClient(cfg.Telegram.APIURL, cfg.Telegram.BotToken, nil)
		bot = telegram.NewBot(client, cat, agentSvc, creditSvc, telegram.BotOptions{
			Secret:         cfg.Telegram.WebhookSecret,
			EnforceCredits: cfg.Credits.Enforced,
			Limiter:        limiter,
		})
		slog.Info("Telegram bot enabled", "bot", cfg.Telegram.BotUsername, "credits_enforced", cfg.Credits.Enforced)
	} else {
		slog.Info("Telegram bot disabled (TELEGRAM_BOT_TOKEN not set); init data is read unverified")
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))

	// Public routes.
	healthHandler.RegisterHealth(r)
	r.Handle("/static/*", web.StaticHandler())
	if bot != nil {
		r.Post("/telegram/webhook", bot.ServeHTTP)
	}

	// Mini App routes resolve the caller from init data or the anonymous cookie.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(identity.Options{
			BotToken: cfg.Telegram.BotToken,
			MaxAge:   cfg.Telegram.InitDataMaxAge,
			Repo:     repo,
			IsDev:    cfg.IsDevelopment(),
		}))
		r.Get("/", page.ServeHTTP)
		miniAppHandler.RegisterRoutes(r)
		r.Get("/ws/chat", wsHandler.ServeHTTP)
	})

	// Create server.
	// WebSocket streams are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start background workers.
	sessions.StartSweeper(ctx, cfg.SessionTTL)
	limiter.StartEviction(ctx)

	var healthSrv *health.Server
	if cfg.GRPCHealthAddr != "" {
		healthSrv = health.NewServer(repo, 0)
		go healthSrv.Run(ctx)
		go func() {
			if err := healthSrv.ListenAndServe(cfg.GRPCHealthAddr); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	if healthSrv != nil {
		healthSrv.Stop()
	}
	conns.CloseAll()
	sessions.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}
