package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sponsoai/dealdesk/internal/addon"
	"github.com/sponsoai/dealdesk/internal/auth"
	"github.com/sponsoai/dealdesk/internal/config"
	"github.com/sponsoai/dealdesk/internal/deals"
	"github.com/sponsoai/dealdesk/internal/extract"
	"github.com/sponsoai/dealdesk/internal/metrics"
	"github.com/sponsoai/dealdesk/internal/oauth"
	"github.com/sponsoai/dealdesk/internal/ratelimit"
	"github.com/sponsoai/dealdesk/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Embeds the migration files INTO the go bin

//go:embed migrations/*.sql
var migrationsDir embed.FS

func main() {
	// Load config first so we can set log level
	cfg, err := config.LoadConfig()
	if err != nil {
		// Fallback logger before config is available
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}

	// Include source location in log entries at debug level only.
	addSrc := cfg.LogLevel == slog.LevelDebug

	// Set up slog to output as json with configured level
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     cfg.LogLevel,
		AddSource: addSrc,
	})))

	// Cancel ctx on SIGINT/SIGTERM; run() shuts down when ctx is done.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run() is a separate func so deferred closes always execute before os.Exit.
	if err := run(ctx, cfg, nil); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// run holds all server logic and returns error instead of calling os.Exit,
// so deferred resource cleanup (ps.Close, cache.Close) always runs.
// Shuts down when ctx is cancelled (signal handling is the caller's concern).
// If ready is non-nil, the server's base URL is sent on it once the listener is bound.
func run(ctx context.Context, cfg *config.Config, ready chan<- string) error {
	// Create new postgres store, return errors if any
	ps, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to set up postgres store: %w", err)
	}
	// Close at end of run func
	defer ps.Close()

	// Run database migrations
	migrationsFS, err := fs.Sub(migrationsDir, "migrations")
	if err != nil {
		return fmt.Errorf("failed to access embedded migrations: %w", err)
	}
	if err := ps.Migrate(ctx, migrationsFS); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Extraction cache is optional; no REDIS_URL means every request hits the model.
	var cache extract.Cache = store.NoopCache{}
	if cfg.RedisURL != "" {
		rc, err := store.NewRedisCache(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to set up redis cache: %w", err)
		}
		defer rc.Close()
		cache = rc
	}

	// Google verifier fetches the OIDC discovery doc at startup; only wire it
	// when a client ID is configured so offline deploys still boot.
	var gv oauth.Verifier
	if cfg.GoogleClientID != "" {
		gv, err = oauth.NewGoogleVerifier(ctx, cfg.GoogleClientID)
		if err != nil {
			return fmt.Errorf("failed to set up google verifier: %w", err)
		}
	}

	secrets := addon.NewSecrets(cfg.AddonSecret, cfg.AddonSecretPrevious)
	ti := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	ex := &extract.Extractor{
		Model: extract.NewGeminiModel(cfg.GeminiAPIKey),
		Cache: cache,
	}

	ah := auth.AuthHandler{PS: ps, TI: ti, GV: gv}
	dh := deals.DealHandler{PS: ps, EX: ex, Secrets: secrets, AdminToken: cfg.AdminToken}

	metrics.Register()
	rl := ratelimit.New(cfg.RateMax, cfg.RateWindow)

	// Bind listener; ":0" picks a free port (useful in tests).
	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	server := &http.Server{Handler: buildRouter(&ah, &dh, rl, cfg.CORSOrigin)}

	// Start server in a goroutine; run() continues past this.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("dealdesk listening", "addr", ln.Addr().String())
		// Send error only if server stops for a reason other than explicit shutdown.
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Signal readiness to caller (used by tests; nil in production).
	if ready != nil {
		ready <- "http://" + ln.Addr().String()
	}

	// Wait for server error or shutdown signal from ctx.
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// buildRouter wires all routes and middleware.
// Called from run() and from smoke tests.
func buildRouter(ah *auth.AuthHandler, dh *deals.DealHandler, rl *ratelimit.Limiter, corsOrigin string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(rl.Middleware)
	if corsOrigin != "" {
		r.Use(corsMiddleware(corsOrigin))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/auth/signup", ah.Signup)
	r.Post("/auth/signin", ah.Signin)
	r.Post("/auth/google-login", ah.GoogleLogin)

	// Signed channel: authenticated by HMAC headers, not bearer tokens.
	r.Post("/deals/addon", dh.CreateFromAddon)

	// Operator-only; 404s unless ADMIN_TOKEN is configured.
	r.Post("/internal/addon-secret/rotate", dh.RotateSecret)

	// Authentication required routes
	r.Group(func(r chi.Router) {
		r.Use(ah.RequireAuth)
		r.Post("/deals", dh.Create)
		r.Get("/deals", dh.List)
		r.Patch("/deals/{id}", dh.Update)
		r.Delete("/deals/{id}", dh.Delete)
	})

	return r
}

// corsMiddleware allows the configured web app origin. Preflights get an
// empty 204; actual responses carry the allow headers for the browser.
func corsMiddleware(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
