package main

import (
	"fmt"
	"os"

	"github.com/danmuck/gridwire/internal/protocol/catalog"
	"github.com/danmuck/gridwire/internal/protocol/template"
	"github.com/spf13/cobra"
)

func templateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Inspect message template files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Parse a template and build its registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			t, err := template.Parse(f)
			if err != nil {
				return err
			}
			reg, err := t.Registry()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: version %s, %d messages ok\n", args[0], t.Version, reg.Len())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "dump [path]",
		Short: "Write the embedded template to stdout or path",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_, err := fmt.Fprint(cmd.OutOrStdout(), catalog.Source())
				return err
			}
			return os.WriteFile(args[0], []byte(catalog.Source()), 0o644)
		},
	})
	return cmd
}
