package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/gridwire/internal/capture"
	"github.com/danmuck/gridwire/internal/circuit"
	"github.com/danmuck/gridwire/internal/logging"
	"github.com/danmuck/gridwire/internal/observability"
	"github.com/danmuck/gridwire/internal/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func serveCmd(root *rootOptions) *cobra.Command {
	var listen, admin, capturePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a circuit endpoint with the admin HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, codec, err := loadCodec(root.configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.ListenAddr = listen
			}
			if cmd.Flags().Changed("admin") {
				cfg.AdminAddr = admin
			}
			if capturePath != "" {
				cfg.CapturePath = capturePath
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if root.logLevel == "" {
				level, _ := logging.ParseLevel(cfg.LogLevel)
				zerolog.SetGlobalLevel(level)
			}
			observability.RegisterMetrics()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := []circuit.Option{circuit.WithNode(cfg.Node)}
			var store *capture.Store
			if cfg.CapturePath != "" {
				store, err = capture.Open(cfg.CapturePath)
				if err != nil {
					return err
				}
				defer store.Close()
				opts = append(opts, circuit.WithCapture(store, cfg.CaptureBucket))
			}

			endpoint, err := circuit.Listen(cfg.Circuit(), codec, opts...)
			if err != nil {
				return err
			}
			defer endpoint.Close()

			errCh := make(chan error, 2)
			running := 1
			go func() { errCh <- endpoint.Serve(ctx) }()

			if strings.TrimSpace(cfg.AdminAddr) != "" {
				srvOpts := server.Options{
					Node:        cfg.Node,
					Addr:        cfg.AdminAddr,
					CorsOrigins: cfg.CorsOrigins,
					Codec:       codec,
					Peers:       endpoint.Peers(),
				}
				if store != nil {
					srvOpts.Captures = store
				}
				running++
				go func() { errCh <- server.New(srvOpts).Serve(ctx) }()
			}

			log.Info().
				Str("node", cfg.Node).
				Str("circuit", endpoint.Addr().String()).
				Str("admin", cfg.AdminAddr).
				Int("messages", codec.Registry().Len()).
				Msg("gridwire serving")

			var firstErr error
			for i := 0; i < running; i++ {
				if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
					if firstErr == nil {
						firstErr = err
					}
					stop()
				}
			}
			log.Info().Msg("gridwire stopped")
			return firstErr
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "circuit UDP address (overrides config)")
	cmd.Flags().StringVar(&admin, "admin", "", "admin HTTP address, empty disables (overrides config)")
	cmd.Flags().StringVar(&capturePath, "capture", "", "capture database path (overrides config)")
	return cmd
}
