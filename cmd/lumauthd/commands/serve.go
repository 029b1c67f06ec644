package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hnrobert/lumauth/internal/authclient"
	"github.com/hnrobert/lumauth/internal/config"
	"github.com/hnrobert/lumauth/internal/hostfs"
	"github.com/hnrobert/lumauth/internal/logger"
	"github.com/hnrobert/lumauth/internal/privdrop"
	"github.com/hnrobert/lumauth/internal/server"
	"github.com/hnrobert/lumauth/internal/session"
	"github.com/hnrobert/lumauth/internal/session/persist"
	"github.com/hnrobert/lumauth/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the login service",
	Long: `Start the login service.

serve must start as root: it spawns the privileged worker, then switches to
privileges.user before opening session storage or accepting connections.

Examples:
  lumauthd serve --config /etc/lumauth/config.yaml
  LUMAUTH_LOGGING_LEVEL=DEBUG lumauthd serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// ErrWorkerLost is returned by serve when the worker fault ended the
// service; a supervisor is expected to restart it.
var ErrWorkerLost = errors.New("authentication worker lost")

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := initLogger(cfg); err != nil {
		return err
	}
	defer logger.Close()
	logger.Info("lumauthd starting", "version", Version, "config", configSource(cfgFile))

	// The worker must be forked while the process still has its privileges.
	proc, err := worker.Spawn(worker.SpawnConfig{
		Args:   workerArgs(cfg.Auth, cfg.Logging),
		Stderr: os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("spawn worker: %w", err)
	}
	logger.Info("worker spawned", "pid", proc.Pid())

	if err := dropPrivileges(cfg); err != nil {
		_ = proc.Kill()
		_ = proc.Close()
		return err
	}

	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	client, err := authclient.New(proc, authclient.Config{
		Timeout:        cfg.Auth.ResponseTimeout,
		CacheTimeout:   cfg.Auth.CacheTimeout,
		HashIterations: cfg.Auth.HashIterations,
		StopTimeout:    cfg.Auth.WorkerStopTimeout,
		Metrics:        newAuthMetrics(reg),
	})
	if err != nil {
		_ = proc.Kill()
		_ = proc.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := persist.Open(ctx, persistConfig(cfg))
	if err != nil {
		_ = client.Stop()
		return fmt.Errorf("open session persistence: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Warn("close session persistence", "error", err)
		}
	}()

	store, err := session.NewStore(ctx, session.Config{Timeout: cfg.Session.Timeout}, backend,
		session.WithMetrics(newSessionMetrics(reg)))
	if err != nil {
		_ = client.Stop()
		return err
	}
	logger.Info("sessions restored", "count", store.Len(), "persistence", cfg.Session.Persistence.Type)
	go store.Run(ctx, cfg.Session.CleanInterval)

	srv, err := server.New(server.Config{
		ListenAddr: cfg.Server.Listen,
		CookieName: cfg.Server.CookieName,
		JWTSecret:  cfg.Server.JWTSecret,
		TokenTTL:   cfg.Server.TokenTTL,
	}, client, store)
	if err != nil {
		_ = store.Stop(ctx)
		_ = client.Stop()
		return err
	}

	serverErr := make(chan error, 2)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Listen)
		serverErr <- srv.ListenAndServe()
	}()

	var metricsSrv *http.Server
	if reg != nil {
		metricsSrv = &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("metrics listening", "addr", cfg.Metrics.Listen)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	workerExited, runErr := awaitShutdown(sigChan, client, proc, serverErr)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	// The HTTP shutdown may have used up shutdownCtx.
	storeCtx, storeCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer storeCancel()
	if err := store.Stop(storeCtx); err != nil {
		logger.Error("session store stop", "error", err)
	}
	if err := client.Stop(); err != nil {
		logger.Warn("worker stop", "error", err)
	}

	if err := client.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrWorkerLost, err)
	}
	if workerExited {
		return fmt.Errorf("%w: exited with %v", ErrWorkerLost, proc.Wait())
	}
	if runErr == nil {
		logger.Info("lumauthd stopped")
	}
	return runErr
}

type workerWatch interface {
	Exited() <-chan struct{}
	Wait() error
	Pid() int
}

type clientWatch interface {
	Done() <-chan struct{}
	Err() error
}

// awaitShutdown blocks until serve has to stop. workerExited reports a worker
// that died without the client noticing a fault first.
func awaitShutdown(sigs <-chan os.Signal, client clientWatch, proc workerWatch, serverErr <-chan error) (workerExited bool, runErr error) {
	select {
	case sig := <-sigs:
		logger.Info("shutdown signal received", "signal", sig.String())
	case <-client.Done():
		logger.Error("authentication worker lost, shutting down", "error", client.Err())
	case <-proc.Exited():
		logger.Error("authentication worker exited, shutting down", "pid", proc.Pid(), "status", proc.Wait())
		workerExited = true
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", "error", err)
			runErr = err
		}
	}
	return workerExited, runErr
}

func initLogger(cfg *config.Config) error {
	return logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
		Dir:    cfg.Logging.Dir,
	})
}

func dropPrivileges(cfg *config.Config) error {
	if cfg.Privileges.User == "" {
		logger.Warn("privileges.user not set, server keeps its current identity")
		return nil
	}
	id, err := privdrop.Lookup(hostfs.Root(cfg.Auth.HostRoot), cfg.Privileges.User, cfg.Privileges.Group)
	if err != nil {
		return fmt.Errorf("resolve privileges: %w", err)
	}
	if err := privdrop.Drop(id); err != nil {
		if errors.Is(err, privdrop.ErrNotRoot) || errors.Is(err, privdrop.ErrUnsupported) {
			logger.Warn("privilege drop skipped", "identity", id.String(), "reason", err)
			return nil
		}
		return fmt.Errorf("drop privileges to %s: %w", id, err)
	}
	logger.Info("privileges dropped", "identity", id.String())
	return nil
}

func persistConfig(cfg *config.Config) persist.Config {
	p := cfg.Session.Persistence
	return persist.Config{
		Type: p.Type,
		Path: p.Path,
		Redis: persist.RedisConfig{
			Addr:     p.Redis.Addr,
			Password: p.Redis.Password,
			DB:       p.Redis.DB,
			Key:      p.Redis.Key,
		},
	}
}

// Metrics constructors return nil when metrics are disabled; both metric
// types are nil-safe.
func newAuthMetrics(reg *prometheus.Registry) *authclient.Metrics {
	if reg == nil {
		return nil
	}
	return authclient.NewMetrics(reg)
}

func newSessionMetrics(reg *prometheus.Registry) *session.Metrics {
	if reg == nil {
		return nil
	}
	return session.NewMetrics(reg)
}

func configSource(path string) string {
	if path != "" {
		return path
	}
	if _, err := os.Stat(config.DefaultPath); err == nil {
		return config.DefaultPath
	}
	return "defaults"
}
