// Command ghost is the thin CLI client: every subcommand opens a
// non-DaemonSelf Connection, sends one SystemCommand, prints the
// CommandResponse, and exits, grounded on cmd/bd's command-per-file
// Cobra layout.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jlabarca/ghost/internal/bus"
	"github.com/jlabarca/ghost/internal/cache"
	"github.com/jlabarca/ghost/internal/connection"
	"github.com/jlabarca/ghost/internal/ghostconfig"
	"github.com/jlabarca/ghost/internal/ghosttypes"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ghost",
	Short: "Talk to a running ghostd over the bus",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to ghost.yaml")
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// dial builds a short-lived Connection for a single request/response
// round trip: no heartbeat/metrics/reconnect loops, just a Bus plus
// SendCommand's own responseChannel-subscribe-and-wait.
func dial() (*connection.Connection, func(), error) {
	cfg, err := ghostconfig.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	var b bus.Bus
	switch cfg.BusBackend {
	case "remote":
		client, dialErr := dialRemoteClient(cfg.RedisConnection)
		if dialErr != nil {
			return nil, nil, dialErr
		}
		b = bus.NewRemote(client)
	default:
		b = bus.NewLocal(cache.NewMemory())
	}

	conn := connection.New(connection.Options{
		Bus:         b,
		ProcessInfo: ghosttypes.ProcessInfo{ID: "ghost-cli", Metadata: ghosttypes.ProcessMetadata{Name: "ghost-cli", Type: ghosttypes.ProcessTypeApp}},
	})
	cleanup := func() { _ = conn.Dispose() }
	return conn, cleanup, nil
}

func sendCommand(cmdType ghosttypes.CommandType, targetID string) (ghosttypes.CommandResponse, error) {
	conn, cleanup, err := dial()
	if err != nil {
		return ghosttypes.CommandResponse{}, err
	}
	defer cleanup()

	ctx, cancel := ghostContextWithTimeout()
	defer cancel()

	resp := conn.SendCommand(ctx, ghosttypes.SystemCommand{
		CommandType:     cmdType,
		TargetProcessID: targetID,
	})
	if !resp.Success {
		return resp, fmt.Errorf("%s", resp.Error)
	}
	return resp, nil
}
