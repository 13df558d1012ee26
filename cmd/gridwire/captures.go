package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/danmuck/gridwire/internal/capture"
	"github.com/danmuck/gridwire/internal/protocol"
	"github.com/spf13/cobra"
)

func capturesCmd(root *rootOptions) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "captures",
		Short: "Read datagrams recorded by serve",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "capture database (defaults to capture_path from config)")

	open := func() (*capture.Store, *protocol.Codec, string, error) {
		cfg, codec, err := loadCodec(root.configPath)
		if err != nil {
			return nil, nil, "", err
		}
		path := dbPath
		if path == "" {
			path = cfg.CapturePath
		}
		if path == "" {
			return nil, nil, "", fmt.Errorf("no capture database: set --db or capture_path")
		}
		store, err := capture.Open(path)
		if err != nil {
			return nil, nil, "", err
		}
		return store, codec, cfg.CaptureBucket, nil
	}

	var limit int
	list := &cobra.Command{
		Use:   "list [bucket]",
		Short: "List buckets, or the newest records of one bucket",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, codec, _, err := open()
			if err != nil {
				return err
			}
			defer store.Close()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer tw.Flush()

			if len(args) == 0 {
				buckets, err := store.Buckets()
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "BUCKET\tRECORDS")
				for _, b := range buckets {
					fmt.Fprintf(tw, "%s\t%d\n", b.Name, b.Records)
				}
				return nil
			}
			entries, err := store.List(args[0], limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "ID\tAT\tDIR\tREMOTE\tBYTES\tMESSAGE")
			for _, e := range entries {
				var name string
				if m, err := codec.Decode(e.Raw); err == nil {
					name = m.Name()
				} else {
					name = "!" + protocol.Reason(err)
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n",
					e.ID, e.At.Format(time.RFC3339Nano), e.Direction, e.Remote, len(e.Raw), name)
			}
			return nil
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "newest records to show, 0 for all")

	show := &cobra.Command{
		Use:   "show <bucket> <id>",
		Short: "Decode one captured datagram",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[1])
			}
			store, codec, _, err := open()
			if err != nil {
				return err
			}
			defer store.Close()
			e, err := store.Get(args[0], id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "#%d %s %s %s\n%s\n", e.ID, e.At.Format(time.RFC3339Nano), e.Direction, e.Remote, hex.Dump(e.Raw))
			m, err := codec.Decode(e.Raw)
			if err != nil {
				return fmt.Errorf("decode (%s): %w", protocol.Reason(err), err)
			}
			_, err = fmt.Fprint(out, m.String())
			return err
		},
	}
	cmd.AddCommand(list, show)
	return cmd
}
