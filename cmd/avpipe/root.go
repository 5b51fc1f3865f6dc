package main

import (
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pipelined.dev/avpipe"
	"pipelined.dev/avpipe/config"
	"pipelined.dev/avpipe/log"
	"pipelined.dev/avpipe/metric"
)

type commandContext struct {
	configPath string
	logLevel   string
	stats      bool

	cfg    *config.Config
	logger *logrus.Logger
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "avpipe",
		Short:         "Run media pipe graphs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.load(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if ctx.stats {
				fmt.Fprintln(cmd.OutOrStdout(), renderStats())
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configPath, "config", "c", "", "Configuration file path (toml or yaml)")
	rootCmd.PersistentFlags().StringVar(&ctx.logLevel, "log-level", "", "Log level, overrides configuration")
	rootCmd.PersistentFlags().BoolVar(&ctx.stats, "stats", false, "Print pipe counters after the run")

	rootCmd.AddCommand(newPlayCommand(ctx))
	rootCmd.AddCommand(newEncodeCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}

// load reads configuration and sets up the logger.
func (c *commandContext) load(cmd *cobra.Command) error {
	cfg := config.Default()
	c.logger = log.GetLogger()
	c.logger.SetOutput(cmd.ErrOrStderr())
	if c.configPath != "" {
		loaded, err := config.Load(c.configPath)
		if err != nil {
			return err
		}
		cfg = *loaded
		if err := log.ParseLevel(c.logger, cfg.Logging.Level); err != nil {
			return err
		}
	}
	c.cfg = &cfg
	return log.ParseLevel(c.logger, c.logLevel)
}

// probe returns the probe for pipes of the command.
func (c *commandContext) probe(command string) avpipe.Probe {
	entry := logrus.NewEntry(c.logger).WithField("command", command)
	return avpipe.Chain(metric.Probe(), log.Probe(entry))
}

func renderStats() string {
	all := metric.GetAll()
	sigs := make([]string, 0, len(all))
	for sig := range all {
		sigs = append(sigs, string(sig))
	}
	slices.Sort(sigs)

	counters := []string{
		metric.ReadyCounter,
		metric.DeadCounter,
		metric.AliveCounter,
		metric.LogCounter,
		metric.ErrorCounter,
		metric.NeedOutputCounter,
	}
	headers := append([]string{"Signature"}, counters...)
	aligns := []columnAlignment{alignLeft}
	rows := make([][]string, 0, len(sigs))
	for _, sig := range sigs {
		values := all[avpipe.Signature(sig)]
		row := []string{sig}
		for _, counter := range counters {
			v, ok := values[counter]
			if !ok {
				v = "0"
			}
			row = append(row, v)
		}
		rows = append(rows, row)
	}
	for range counters {
		aligns = append(aligns, alignRight)
	}
	return renderTable(headers, rows, aligns)
}
