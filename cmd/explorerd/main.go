package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/marbledata/explorer/pkg/interpreter"
	"github.com/marbledata/explorer/pkg/logger"
	"github.com/marbledata/explorer/pkg/metrics"
	"github.com/marbledata/explorer/pkg/server"
	"github.com/marbledata/explorer/pkg/session"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultAddr        = "0.0.0.0:8000"
	defaultMetricsAddr = "0.0.0.0:9090"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	addrFlag := flag.String("addr", defaultAddr, "Address to listen on for the API")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "Address to listen on for prometheus metrics (empty to disable)")
	verboseFlag := flag.Bool("verbose", false, "Enable verbose (debug) logging")
	backendTimeoutFlag := flag.Duration("backend-timeout", 30*time.Second, "Timeout for language backend requests")
	sessionMaxAgeFlag := flag.Duration("session-max-age", 24*time.Hour, "Idle age after which in-memory sessions are evicted")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 10*time.Second, "Maximum time to wait for graceful shutdown")

	flag.Parse()

	// Best effort: a missing .env file is not an error.
	_ = godotenv.Load()

	log := logger.New(*verboseFlag)
	server.Version = version

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			Release:          version,
			TracesSampleRate: 0.1,
		}); err != nil {
			log.Warn("failed to initialize sentry, continuing without it", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := buildStore(ctx, log)
	if err != nil {
		return err
	}
	defer closeStore()

	interp := buildInterpreter(*backendTimeoutFlag, log)

	sessions := session.NewManager(interp, store, clockwork.NewRealClock(), *sessionMaxAgeFlag, log)
	sessions.StartCleanup(ctx)

	srv := server.NewServer(*addrFlag, sessions, log)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)

	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		g.Go(func() error {
			listener, err := net.Listen("tcp", *metricsAddrFlag)
			if err != nil {
				return fmt.Errorf("metrics listener: %w", err)
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			metricsSrv := &http.Server{Handler: mux}
			go func() {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), *shutdownTimeoutFlag)
				defer cancel()
				_ = metricsSrv.Shutdown(shutdownCtx)
			}()
			if err := metricsSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), *shutdownTimeoutFlag)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	log.Info("explorer shut down")
	return nil
}

// buildInterpreter selects the language backend when an API key is present,
// falling back to deterministic pattern matching otherwise.
func buildInterpreter(timeout time.Duration, log *slog.Logger) interpreter.Interpreter {
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		client := interpreter.NewAnthropicClient(anthropic.ModelClaude3_5HaikuLatest, 1024, log)
		log.Info("language backend enabled", "model", anthropic.ModelClaude3_5HaikuLatest)
		return interpreter.NewLLMInterpreter(client, timeout, log)
	}
	log.Info("no API key configured, using pattern-matching interpreter only")
	return interpreter.NewFallbackInterpreter()
}

// buildStore selects PostgreSQL persistence when POSTGRES_DB is configured,
// otherwise sessions live in process memory only.
func buildStore(ctx context.Context, log *slog.Logger) (session.Store, func(), error) {
	if os.Getenv("POSTGRES_DB") == "" {
		log.Info("no PostgreSQL configured, sessions are in-memory only")
		return session.NewMemoryStore(), func() {}, nil
	}

	cfg := session.PostgresConfig{
		Host:     envOr("POSTGRES_HOST", "localhost"),
		Port:     envOr("POSTGRES_PORT", "5432"),
		Database: os.Getenv("POSTGRES_DB"),
		Username: os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		SSLMode:  os.Getenv("POSTGRES_SSLMODE"),
	}

	if err := session.Migrate(cfg, log); err != nil {
		return nil, nil, err
	}

	store, err := session.NewPostgresStore(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
