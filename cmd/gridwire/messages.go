package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/danmuck/gridwire/internal/protocol"
	"github.com/spf13/cobra"
)

func messagesCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "messages [name]",
		Short: "List loaded message types, or show one layout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, codec, err := loadCodec(root.configPath)
			if err != nil {
				return err
			}
			reg := codec.Registry()
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				d, ok := reg.ByName(args[0])
				if !ok {
					return fmt.Errorf("%w: %s", protocol.ErrUnknownMessageType, args[0])
				}
				printLayout(cmd, d)
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tKEY\tTRUST\tENCODING\tBLOCKS")
			for _, d := range reg.List() {
				trust, enc := "NotTrusted", "Unencoded"
				if d.Trusted {
					trust = "Trusted"
				}
				if d.ZeroCoded {
					enc = "Zerocoded"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", d.Name, d.Key(), trust, enc, len(d.Blocks))
			}
			return tw.Flush()
		},
	}
}

func printLayout(cmd *cobra.Command, d *protocol.Descriptor) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s trusted=%t zerocoded=%t deprecated=%t\n", d, d.Trusted, d.ZeroCoded, d.Deprecated)
	for i := range d.Blocks {
		b := &d.Blocks[i]
		repeat := b.Repeat.String()
		if b.Repeat == protocol.RepeatMultiple {
			repeat = fmt.Sprintf("%s %d", repeat, b.Count)
		}
		fmt.Fprintf(out, "  [%s] %s (%s)\n", b.Name, repeat, b.Shape())
		for _, f := range b.Fields {
			fmt.Fprintf(out, "    %s\n", f)
		}
	}
}
