// Command wosim-server runs the headless world server: the tick loop,
// the listener accepting game connections, and the prometheus metrics
// endpoint (§6 CLI surface: "serve and create on the headless
// server").
package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wosim-go/wosim/internal/config"
	"github.com/wosim-go/wosim/internal/obs"
	"github.com/wosim-go/wosim/internal/sim"
)

var configPath string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "wosim-server:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wosim-server",
		Short:         "Headless wosim world server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a server config.toml")
	root.AddCommand(serveCmd(), createCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Open the world database and serve connections until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServer(configPath)
			if err != nil {
				return err
			}
			log := obs.NewLogger(obs.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
			metrics := obs.NewMetrics()

			world, err := sim.NewWorld(cfg, log, metrics)
			if err != nil {
				return fmt.Errorf("opening world: %w", err)
			}
			defer world.Close()

			ln, err := net.Listen("tcp", cfg.ListenAddr)
			if err != nil {
				return fmt.Errorf("listening on %s: %w", cfg.ListenAddr, err)
			}
			defer ln.Close()

			go func() {
				if err := obs.Serve(cfg.MetricsAddr); err != nil {
					log.Warn().Err(err).Msg("metrics server stopped")
				}
			}()

			go func() {
				if err := world.Accept(ln); err != nil {
					log.Debug().Err(err).Msg("listener stopped")
				}
			}()

			log.Info().Str("addr", cfg.ListenAddr).Str("db", cfg.DatabasePath).Msg("serving")

			stop := make(chan struct{})
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sig
				close(stop)
			}()
			return world.Run(stop)
		},
	}
}

func createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Initialize a fresh world database without serving it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServer(configPath)
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.DatabasePath); err == nil {
				return fmt.Errorf("%s already exists", cfg.DatabasePath)
			} else if !errors.Is(err, os.ErrNotExist) {
				return err
			}

			log := obs.NewLogger(obs.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
			world, err := sim.NewWorld(cfg, log, obs.NewMetrics())
			if err != nil {
				return err
			}
			defer world.Close()
			fmt.Println("created", cfg.DatabasePath)
			return nil
		},
	}
}
