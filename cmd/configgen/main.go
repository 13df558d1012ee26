package main

import (
	"fmt"
	"os"

	"github.com/danmuck/gridwire/internal/config"
	"github.com/danmuck/gridwire/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const defaultPath = "cmd/gridwire/config.toml"

func newRootCmd() *cobra.Command {
	var output, input string
	var validate, force bool
	cmd := &cobra.Command{
		Use:           "configgen",
		Short:         "Write or validate a gridwire config.toml",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.ConfigureRuntime()
			if validate {
				path := input
				if path == "" {
					path = defaultPath
				}
				if _, err := config.Load(path); err != nil {
					return err
				}
				log.Info().Str("path", path).Msg("validated gridwire config")
				return nil
			}
			target := output
			if target == "" {
				target = defaultPath
			}
			if err := config.WriteTemplate(target, force); err != nil {
				return err
			}
			log.Info().Str("path", target).Msg("wrote gridwire config template")
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path for config template")
	cmd.Flags().BoolVar(&validate, "validate", false, "validate an existing config file")
	cmd.Flags().StringVarP(&input, "input", "i", "", "config path for validation")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing config file")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "configgen: %v\n", err)
		os.Exit(1)
	}
}
