package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/NK-639/ALHS-Backend/internal/api"
	"github.com/NK-639/ALHS-Backend/internal/api/handlers"
	"github.com/NK-639/ALHS-Backend/internal/archive"
	"github.com/NK-639/ALHS-Backend/internal/cache"
	"github.com/NK-639/ALHS-Backend/internal/compiler"
	"github.com/NK-639/ALHS-Backend/internal/health"
	"github.com/NK-639/ALHS-Backend/internal/health/checks"
	"github.com/NK-639/ALHS-Backend/internal/orchestrator"
	"github.com/NK-639/ALHS-Backend/internal/shutdown"
	"github.com/NK-639/ALHS-Backend/internal/shutdown/hooks"
	"github.com/NK-639/ALHS-Backend/internal/tasks"
	"github.com/NK-639/ALHS-Backend/pkg/logging"
	"github.com/NK-639/ALHS-Backend/pkg/metrics"
)

var (
	// serverPort is the port to listen on
	serverPort int
	// serverHost is the host to bind to
	serverHost string
	// archivePath is the run archive database path
	archivePath string
	// cacheBackend selects the compilation cache backend
	cacheBackend string
	// cacheRedisURL is the redis endpoint for the redis cache backend
	cacheRedisURL string
	// queueRedisAddr enables the background task queue when set
	queueRedisAddr string
	// logLevel is the minimum log level
	logLevel string
	// logFormat is the log output format
	logFormat string
)

// newServerCmd creates the server command.
func newServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server.

The server exposes protocol compilation, run orchestration, the device
registry, the run archive, health probes and Prometheus metrics. With
--queue-redis it also runs the background task worker for protocol
precompilation and archive pruning.`,
		Example: `  alhs server
  alhs server --port 3000 --archive /var/lib/alhs/runs.db
  alhs server --cache redis --cache-redis redis://localhost:6379/0
  alhs server --dry-run`,
		RunE: runServer,
	}

	cmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "port to listen on")
	cmd.Flags().StringVar(&serverHost, "host", "localhost", "host to bind to")
	cmd.Flags().StringVar(&archivePath, "archive", "alhs.db", "run archive database path")
	cmd.Flags().StringVar(&cacheBackend, "cache", "memory", "compilation cache backend (memory|redis)")
	cmd.Flags().StringVar(&cacheRedisURL, "cache-redis", "redis://localhost:6379/0", "redis URL for the redis cache backend")
	cmd.Flags().StringVar(&queueRedisAddr, "queue-redis", "", "redis address enabling the background task queue")
	cmd.Flags().StringVar(&moonrakerURL, "moonraker", "http://localhost:7125", "Moonraker controller URL")
	cmd.Flags().StringVar(&moonrakerAPIKey, "api-key", "", "controller API key")
	cmd.Flags().BoolVar(&runDry, "dry-run", false, "use the built-in simulator instead of real hardware")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug|info|warn|error)")
	cmd.Flags().StringVar(&logFormat, "log-format", "json", "log format (json|text)")

	return cmd
}

func runServer(cmd *cobra.Command, args []string) error {
	logger := logging.New(logging.Config{Level: logLevel, Format: logFormat})
	logger.SetDefault()

	metricsReg := metrics.NewRegistry(metrics.DefaultConfig())
	metrics.SetGlobal(metricsReg)

	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	cacheCfg := cache.DefaultConfig()
	cacheCfg.Type = cacheBackend
	cacheCfg.URL = cacheRedisURL
	store, err := cache.New(cacheCfg)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	arch, err := archive.Open(archive.Config{Path: archivePath})
	if err != nil {
		store.Close()
		return fmt.Errorf("archive: %w", err)
	}

	ctrl, err := newController(cmd)
	if err != nil {
		arch.Close()
		store.Close()
		return err
	}

	comp := compiler.New(registry, compiler.DefaultConfig(), compiler.WithCache(store))
	orch := orchestrator.New(ctrl, orchestrator.DefaultConfig())
	handler := handlers.NewHandler(comp, orch, registry, arch, slog.Default())

	healthReg := health.NewRegistry(Version)
	healthReg.Register(checks.NewCacheChecker(store))
	healthReg.Register(checks.NewArchiveChecker(arch))
	healthReg.Register(checks.NewControllerChecker(ctrl))
	healthReg.Register(checks.NewDiskChecker(archivePath))
	healthReg.Register(checks.NewMemoryChecker())

	router := api.NewRouterWithConfig(handler, api.RouterConfig{
		Health:  health.NewHandler(healthReg),
		Metrics: metricsReg,
		Version: Version,
	})

	addr := fmt.Sprintf("%s:%d", serverHost, serverPort)
	server := api.NewServer(router, addr)

	manager := shutdown.NewManager(shutdown.DefaultConfig(), slog.Default())
	manager.RegisterHook(hooks.ActiveRunShutdown(func() hooks.AbortableRun {
		if run := orch.Active(); run != nil && !run.State().Terminal() {
			return run
		}
		return nil
	}))
	manager.RegisterHook(hooks.HTTPServerShutdown(server))
	manager.RegisterHook(hooks.ControllerShutdown(ctrl))
	manager.RegisterHook(hooks.ArchiveShutdown(arch))
	manager.RegisterHook(hooks.CacheShutdown("cache", store))

	if queueRedisAddr != "" {
		queueCfg := tasks.DefaultConfig()
		queueCfg.RedisAddr = queueRedisAddr

		queue := tasks.New(queueCfg)
		queue.Handle(tasks.TypeCompileProtocol, tasks.NewCompileHandler(comp).ProcessTask)
		queue.Handle(tasks.TypeArchivePrune, tasks.NewPruneHandler(arch).ProcessTask)

		prune, err := tasks.NewPruneTask(tasks.DefaultRetention)
		if err != nil {
			return fmt.Errorf("prune task: %w", err)
		}
		if _, err := queue.Schedule("0 3 * * *", prune); err != nil {
			return fmt.Errorf("schedule prune: %w", err)
		}

		if err := queue.Start(); err != nil {
			return fmt.Errorf("task queue: %w", err)
		}
		manager.RegisterHook(hooks.QueueShutdown(queue))
		slog.Info("task queue started", "redis", queueRedisAddr)
	}

	done := manager.ListenForSignals()

	slog.Info("server listening", "addr", addr, "devices", len(registry.List()))
	fmt.Fprintf(cmd.OutOrStdout(), "Server listening on %s\n", addr)

	if err := server.Start(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	fmt.Fprintln(cmd.OutOrStdout(), "Server stopped")
	return nil
}
