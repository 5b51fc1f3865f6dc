package main

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pipelined.dev/avpipe"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			switch format {
			case "toml":
				data, err = toml.Marshal(ctx.cfg)
			case "yaml":
				data, err = yaml.Marshal(ctx.cfg)
			default:
				return fmt.Errorf("format %q: %w", format, avpipe.ErrInvalid)
			}
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "toml", "Output format: toml or yaml")
	return cmd
}
