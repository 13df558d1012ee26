package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/danmuck/gridwire/internal/protocol"
	"github.com/danmuck/gridwire/internal/server"
	"github.com/spf13/cobra"
)

func decodeCmd(root *rootOptions) *cobra.Command {
	var file string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "decode [hex...]",
		Short: "Decode one datagram given as hex arguments, hex on stdin, or a raw --file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, codec, err := loadCodec(root.configPath)
			if err != nil {
				return err
			}
			raw, err := readDatagram(cmd.InOrStdin(), file, args)
			if err != nil {
				return err
			}
			m, err := codec.Decode(raw)
			if err != nil {
				return fmt.Errorf("decode (%s): %w", protocol.Reason(err), err)
			}
			out := cmd.OutOrStdout()
			if !asJSON {
				_, err := fmt.Fprint(out, m.String())
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(server.DescribeMessage(m))
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read raw datagram bytes from file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print a JSON summary")
	return cmd
}

func readDatagram(stdin io.Reader, file string, args []string) ([]byte, error) {
	if file != "" {
		return os.ReadFile(file)
	}
	if len(args) > 0 {
		text := ""
		for _, a := range args {
			text += a + " "
		}
		return server.ParseHex(text)
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return nil, err
	}
	return server.ParseHex(string(data))
}
