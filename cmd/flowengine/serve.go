package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/JineeshTS/GanakysPortal-sub004/internal/engine"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/loader"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/logging"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/metrics"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/notify"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/slamonitor"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/store"
	"github.com/JineeshTS/GanakysPortal-sub004/pkg/mcp"
)

const seedActor = "system"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server over stdio",
	Long: `Run the engine as an MCP server on stdin/stdout.

Settings (settings.json key / environment variable):
  db_path               FLOWENGINE_DB_PATH
  log_level             FLOWENGINE_LOG_LEVEL
  metrics_addr          FLOWENGINE_METRICS_ADDR (empty disables the exporter)
  redis_addr            FLOWENGINE_REDIS_ADDR (empty disables redis fan-out)
  redis_channel         FLOWENGINE_REDIS_CHANNEL
  sla_schedule          FLOWENGINE_SLA_SCHEDULE
  definition_cache_ttl  FLOWENGINE_DEFINITION_CACHE_TTL
  definition_cache_size FLOWENGINE_DEFINITION_CACHE_SIZE
  conflict_retries      FLOWENGINE_CONFLICT_RETRIES
  notify_workers        FLOWENGINE_NOTIFY_WORKERS
  definitions_dir       FLOWENGINE_DEFINITIONS_DIR`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	// stdout carries the MCP protocol, so logs always go to stderr.
	logger := logging.New(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer s.Close()

	ttl, _ := cfg.cacheTTL()
	defs := store.NewCachedDefinitions(s, cfg.DefinitionCacheSize, ttl)

	hub := notify.NewMemoryHub()
	sinks := notify.Fanout{hub}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		sinks = append(sinks, notify.NewRedisSink(rdb,
			notify.WithChannel(cfg.RedisChannel),
			notify.WithLogger(logger)))
	}
	dispatcher := notify.NewDispatcher(sinks, notify.DispatcherConfig{
		Workers: cfg.NotifyWorkers,
		Logger:  logger,
	})
	defer dispatcher.Close()

	eng, err := engine.New(s, engine.Config{
		Definitions:    defs,
		Resolver:       groupResolver(cfg.GroupAssignees),
		Sink:           dispatcher,
		TracerProvider: otel.GetTracerProvider(),
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	if cfg.DefinitionsDir != "" {
		res, err := loader.Seed(ctx, eng, cfg.DefinitionsDir, seedActor, logger)
		if err != nil {
			return fmt.Errorf("seed definitions: %w", err)
		}
		logger.Info("definitions seeded", "registered", len(res.Registered), "unchanged", len(res.Unchanged))
	}

	monitor, err := slamonitor.New(s, slamonitor.Config{
		Schedule: cfg.SLASchedule,
		Sink:     dispatcher,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	flow := mcp.NewFlowServer(mcp.FlowServerDeps{
		Engine: eng,
		Retry:  retryPolicy(cfg.ConflictRetries),
		Logger: logger,
	})
	notifier := mcp.NewMCPNotifier(flow.MCPServer(), flow.Sessions())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defs.StartEviction(gctx)
		return nil
	})

	if err := monitor.Start(gctx); err != nil {
		return err
	}
	defer monitor.Stop()

	g.Go(func() error {
		return forward(gctx, hub, notifier, logger)
	})

	if cfg.MetricsAddr != "" {
		exporter := metrics.NewExporter(cfg.MetricsAddr)
		g.Go(func() error {
			if err := exporter.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics exporter: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return exporter.Shutdown(shutdownCtx)
		})
		logger.Info("metrics exporter listening", "addr", cfg.MetricsAddr)
	}

	g.Go(func() error {
		defer stop()
		logger.Info("flowengine serving on stdio", "version", version, "db", cfg.DBPath)
		return flow.Serve(gctx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// forward relays every hub notification to connected MCP sessions until ctx ends.
func forward(ctx context.Context, hub *notify.MemoryHub, sink notify.Sink, logger *slog.Logger) error {
	ch, cancel, err := hub.Subscribe(ctx, notify.Filter{})
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-ch:
			if !ok {
				return nil
			}
			if err := sink.Publish(ctx, n); err != nil {
				logger.Debug("session notification skipped", "type", n.Type, "error", err)
			}
		}
	}
}

func groupResolver(routes map[string]string) engine.AssigneeResolver {
	if len(routes) == 0 {
		return nil
	}
	return engine.AssigneeResolverFunc(func(_ context.Context, groupID string, _ *store.Instance) (string, error) {
		return routes[groupID], nil
	})
}

func retryPolicy(retries int) engine.RetryPolicy {
	p := engine.DefaultRetryPolicy()
	p.MaxRetries = uint64(retries)
	return p
}
