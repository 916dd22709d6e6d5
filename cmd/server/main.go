/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the motor insurance API server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env and environment, apply command-line overrides
  2. Initialize SQLite store (and Redis sequencer when REDIS_ADDR is set)
  3. Register Prometheus metrics
  4. Create engine services, seed preset policies if asked
  5. Start the expiry scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port          HTTP server port (overrides PORT)
  -db            SQLite database path (overrides DB_PATH)
                 Use ":memory:" for in-memory database
  -env           Path of a .env file (default: .env, optional)
  -issue-token   Print a token for role[:customer_id] and exit
  -token-ttl     Lifetime of an issued token (default: 24h)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for an in-flight run)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close store connections
  5. Exit

EXAMPLES:
  # Run with file database
  JWT_SECRET=... ./server -db="./data/insurance.db"

  # Issue an admin token
  JWT_SECRET=... ./server -issue-token=admin

  # Issue a customer token
  JWT_SECRET=... ./server -issue-token=customer:3f0c...

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/motor-insurance/api"
	"github.com/warp/motor-insurance/config"
	"github.com/warp/motor-insurance/factory"
	"github.com/warp/motor-insurance/insurance"
	"github.com/warp/motor-insurance/metrics"
	"github.com/warp/motor-insurance/store/redisseq"
	"github.com/warp/motor-insurance/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	port := flag.Int("port", 0, "HTTP server port (overrides PORT)")
	dbPath := flag.String("db", "", "SQLite database path (overrides DB_PATH)")
	envFile := flag.String("env", ".env", "Path of an optional .env file")
	issueToken := flag.String("issue-token", "", "Print a token for role[:customer_id] and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of an issued token")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	auth := api.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer)
	if *issueToken != "" {
		return printToken(auth, *issueToken, *tokenTTL)
	}

	ctx := context.Background()

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	opts := []insurance.Option{insurance.WithMetrics(m)}

	// Optional Redis sequencer
	if cfg.RedisAddr != "" {
		seq, err := redisseq.New(ctx, cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("initialize sequencer: %w", err)
		}
		defer seq.Close()
		if err := seedSequencer(ctx, store, seq); err != nil {
			return err
		}
		opts = append(opts, insurance.WithSequencer(seq))
		logger.Info("using redis sequencer")
	}

	// Initialize handler
	handler := api.NewHandler(store, logger, opts...)

	if cfg.SeedPolicies {
		if err := seedPolicies(ctx, handler); err != nil {
			logger.Warn("failed to seed policies", "error", err)
		}
	}

	// Scheduler
	scheduler := api.NewExpiryScheduler(handler.Lifecycle, logger)
	scheduler.CheckInterval = cfg.SweepInterval
	scheduler.ReminderWindow = cfg.ReminderWindow
	handler.Scheduler = scheduler
	scheduler.Start()

	// Create router
	router := api.NewRouter(handler, auth, api.RouterOptions{
		AllowedOrigins: cfg.CORSOrigins,
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "db", cfg.DBPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		scheduler.Stop()
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("shutting down server")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// printToken issues a token for spec "role" or "customer:<customer_id>".
func printToken(auth *api.Authenticator, spec string, ttl time.Duration) error {
	role, customerID, _ := strings.Cut(spec, ":")
	caller := insurance.Caller{
		CallerID:   "cli-" + uuid.NewString(),
		Role:       insurance.Role(role),
		CustomerID: customerID,
	}
	token, err := auth.IssueToken(caller, ttl)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	if _, err := auth.Verify(token); err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Println(token)
	return nil
}

// seedSequencer raises every Redis counter to the SQL counter so codes
// minted before the switch are never reissued. The SQL counters are only
// read, so restarts do not burn values.
func seedSequencer(ctx context.Context, store *sqlite.Store, seq *redisseq.Sequencer) error {
	for _, name := range insurance.Counters {
		floor, err := store.CurrentSequence(ctx, name)
		if err != nil {
			return fmt.Errorf("read counter %s: %w", name, err)
		}
		if err := seq.Seed(ctx, name, floor); err != nil {
			return err
		}
	}
	return nil
}

// seedPolicies creates the preset catalog when no policy exists yet.
func seedPolicies(ctx context.Context, h *api.Handler) error {
	page, err := h.Catalog.ListPolicies(ctx, insurance.System, insurance.PolicyFilter{}, insurance.ListQuery{Limit: 1})
	if err != nil {
		return err
	}
	if page.Info.TotalRecords > 0 {
		return nil
	}
	for _, preset := range factory.Presets() {
		in, err := h.PolicyFactory.ParsePolicy(preset)
		if err != nil {
			return err
		}
		policy, err := h.Catalog.CreatePolicy(ctx, insurance.System, in)
		if err != nil {
			return err
		}
		h.Logger.Info("seeded policy", "code", policy.Code, "name", policy.Name)
	}
	return nil
}
