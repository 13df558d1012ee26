package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/danmuck/gridwire/internal/circuit"
	"github.com/danmuck/gridwire/internal/protocol"
	"github.com/spf13/cobra"
)

func pingCmd(root *rootOptions) *cobra.Command {
	var timeout time.Duration
	var pingID uint8
	cmd := &cobra.Command{
		Use:   "ping <host:port>",
		Short: "Send StartPingCheck and wait for CompletePingCheck",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, codec, err := loadCodec(root.configPath)
			if err != nil {
				return err
			}
			to, err := net.ResolveUDPAddr("udp", args[0])
			if err != nil {
				return err
			}
			cfg := circuit.DefaultConfig()
			cfg.ListenAddr = ":0"
			cfg.RespondToPings = false
			endpoint, err := circuit.Listen(cfg, codec, circuit.WithNode("gridwire-ping"))
			if err != nil {
				return err
			}
			defer endpoint.Close()

			replies := make(chan *protocol.Message, 1)
			if err := endpoint.Handle("CompletePingCheck", func(_ context.Context, _ *net.UDPAddr, m *protocol.Message) error {
				if m.Get("PingID", 0, "PingID").Uint() == uint64(pingID) {
					select {
					case replies <- m:
					default:
					}
				}
				return nil
			}); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			go func() { _ = endpoint.Serve(ctx) }()

			ping, err := codec.Registry().New("StartPingCheck")
			if err != nil {
				return err
			}
			if err := ping.Set("PingID", 0, "PingID", protocol.U8(pingID)); err != nil {
				return err
			}
			start := time.Now()
			if _, err := endpoint.Send(ctx, to, ping); err != nil {
				return err
			}
			select {
			case reply := <-replies:
				fmt.Fprintf(cmd.OutOrStdout(), "reply from %s seq=%d ping_id=%d time=%s\n",
					to, reply.Header.Sequence, pingID, time.Since(start).Round(time.Microsecond))
				return nil
			case <-ctx.Done():
				return fmt.Errorf("no reply from %s within %s", to, timeout)
			}
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "reply timeout")
	cmd.Flags().Uint8Var(&pingID, "id", 1, "PingID to send")
	return cmd
}
