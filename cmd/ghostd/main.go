// Command ghostd is the Ghost daemon: it owns the Cache, Bus, and
// ProcessManager for a GHOST_INSTALL root, answering SystemCommands from
// every registered ghost, grounded on the teacher's internal/daemon +
// cmd/bd/daemon_server.go wiring.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jlabarca/ghost/internal/bus"
	"github.com/jlabarca/ghost/internal/cache"
	"github.com/jlabarca/ghost/internal/connection"
	"github.com/jlabarca/ghost/internal/data"
	"github.com/jlabarca/ghost/internal/diagnostics"
	"github.com/jlabarca/ghost/internal/ghost"
	"github.com/jlabarca/ghost/internal/ghostconfig"
	"github.com/jlabarca/ghost/internal/ghosttypes"
	"github.com/jlabarca/ghost/internal/processmanager"
)

var (
	configPath string
	foreground bool
)

var rootCmd = &cobra.Command{
	Use:   "ghostd",
	Short: "Ghost daemon: supervises registered processes over the bus",
	RunE:  runDaemon,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to ghost.yaml")
	rootCmd.Flags().BoolVar(&foreground, "foreground", true, "accepted for compatibility; ghostd always runs in the foreground")
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("ghostd exited with an error")
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := ghostconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	lockPath := filepath.Join(cfg.InstallRoot, "daemon.lock")
	if diagnostics.IsDaemonProcessRunning(lockPath) {
		return fmt.Errorf("ghostd already running (lock held at %s)", lockPath)
	}
	if err := os.MkdirAll(cfg.InstallRoot, 0o755); err != nil {
		return fmt.Errorf("create install root: %w", err)
	}
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open daemon lock: %w", err)
	}
	defer lockFile.Close()
	if _, err := lockFile.WriteString(fmt.Sprintf("%d\n", os.Getpid())); err != nil {
		log.Warn().Err(err).Msg("failed to record pid in daemon lock")
	}

	c, err := buildContext(cfg)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("error during shutdown")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startEvt, _ := ghosttypes.ProcessEvent{Type: ghosttypes.EventDaemonStarted}.ToSystemEvent("ghostd")
	_ = c.Bus.Publish(ctx, "ghost:events", startEvt, 0)
	log.Info().Str("install_root", cfg.InstallRoot).Str("cache_backend", cfg.CacheBackend).Str("bus_backend", cfg.BusBackend).Msg("ghostd started")

	c.Conn.StartReporting(ctx)

	err = c.Manager.Run(ctx)

	stopEvt, _ := ghosttypes.ProcessEvent{Type: ghosttypes.EventDaemonStopping}.ToSystemEvent("ghostd")
	_ = c.Bus.Publish(context.Background(), "ghost:events", stopEvt, 0)
	log.Info().Msg("ghostd stopping")
	return err
}

// buildContext wires Cache → Bus → ProcessManager → Connection(DaemonSelf)
// per cfg's backend selection, per SPEC_FULL.md's service-container
// REDESIGN FLAG (no package-level singletons).
func buildContext(cfg ghostconfig.Config) (*ghost.Context, error) {
	var c cache.Cache
	switch cfg.CacheBackend {
	case "disk":
		diskCache, err := cache.NewDisk(filepath.Join(cfg.InstallRoot, "cache"))
		if err != nil {
			return nil, fmt.Errorf("init disk cache: %w", err)
		}
		c = diskCache
	case "redis":
		redisCache, err := cache.DialRedis(cfg.RedisConnection)
		if err != nil {
			return nil, fmt.Errorf("init redis cache: %w", err)
		}
		c = redisCache
	default:
		c = cache.NewMemory()
	}

	var b bus.Bus
	switch cfg.BusBackend {
	case "remote":
		b = bus.NewRemote(goredis.NewClient(&goredis.Options{Addr: cfg.RedisConnection}))
	default:
		b = bus.NewLocal(c)
	}

	var store data.IData
	if cfg.PostgresConnection != "" {
		var kvClient *goredis.Client
		if cfg.RedisConnection != "" {
			kvClient = goredis.NewClient(&goredis.Options{Addr: cfg.RedisConnection})
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		core, err := data.NewCore(ctx, cfg.PostgresConnection, kvClient)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("init data core: %w", err)
		}
		var encKey []byte
		if cfg.EnableEncryption {
			encKey = []byte(cfg.EncryptionKey)
		}
		var l1 cache.Cache
		if cfg.UseL1Cache {
			l1 = c
		}
		store, err = data.Build(data.Config{
			EncryptionKey:       encKey,
			Cache:               l1,
			DisableResilient:    !cfg.EnableRetry,
			DisableInstrumented: !cfg.EnableMetrics,
		}, core)
		if err != nil {
			return nil, fmt.Errorf("build data stack: %w", err)
		}
	}

	manager := processmanager.New(b)

	conn := connection.New(connection.Options{
		DaemonSelf:        true,
		Bus:               b,
		EnableDiagnostics: cfg.Process.EnableDiagnostics,
		EnableFallback:    cfg.Process.EnableFallback,
		ProcessInfo:       ghosttypes.ProcessInfo{ID: "ghostd", Metadata: ghosttypes.ProcessMetadata{Name: "ghostd", Type: ghosttypes.ProcessTypeDaemon}},
	})

	return &ghost.Context{
		Config:  cfg,
		Cache:   c,
		Bus:     b,
		Data:    store,
		Manager: manager,
		Conn:    conn,
	}, nil
}
