package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"pipelined.dev/avpipe"
	"pipelined.dev/avpipe/flow"
	"pipelined.dev/avpipe/play"
)

func newPlayCommand(ctx *commandContext) *cobra.Command {
	var (
		latencies     []time.Duration
		outputLatency time.Duration
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Negotiate latency of play subpipes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(latencies) == 0 {
				return fmt.Errorf("at least one --latency is required: %w", avpipe.ErrInvalid)
			}
			if !cmd.Flags().Changed("output-latency") {
				outputLatency = time.Duration(ctx.cfg.Play.OutputLatency)
			}
			out, err := runPlay(ctx, latencies, outputLatency)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().DurationSliceVarP(&latencies, "latency", "l", nil, "Input latency of every subpipe")
	cmd.Flags().DurationVar(&outputLatency, "output-latency", play.DefaultOutputLatency, "Output latency of the play pipe")
	return cmd
}

// runPlay allocates a play pipe with a subpipe per input latency and
// renders the latency every sink ended up with.
func runPlay(ctx *commandContext, latencies []time.Duration, outputLatency time.Duration) (string, error) {
	probe := ctx.probe("play")
	p, err := avpipe.AllocVoid(play.NewManager(), probe)
	if err != nil {
		return "", fmt.Errorf("alloc play: %w", err)
	}
	defer p.Release()
	if err := play.ChangeOutputLatency(p, outputLatency); err != nil {
		return "", fmt.Errorf("set output latency: %w", err)
	}

	subMgr, err := p.SubManager()
	if err != nil {
		return "", err
	}
	subs := make([]*avpipe.Pipe, 0, len(latencies))
	sinks := make([]*sink, 0, len(latencies))
	defer func() {
		for i := range subs {
			subs[i].Release()
			sinks[i].pipe.Release()
		}
	}()
	for _, latency := range latencies {
		sub, err := avpipe.AllocVoid(subMgr, probe)
		if err != nil {
			return "", fmt.Errorf("alloc play sub: %w", err)
		}
		s := newSink(probe, nil)
		subs = append(subs, sub)
		sinks = append(sinks, s)
		if err := sub.SetOutput(s.pipe); err != nil {
			return "", err
		}
		def := flow.NewDef("sound.s16.")
		def.SetLatency(latency)
		if err := sub.SetFlowDef(def); err != nil {
			return "", fmt.Errorf("set sub flow def: %w", err)
		}
	}

	input, total, err := play.Latency(p)
	if err != nil {
		return "", err
	}
	rows := make([][]string, 0, len(sinks)+1)
	for i, s := range sinks {
		received := "-"
		if s.def != nil {
			received = s.def.Latency().String()
		}
		rows = append(rows, []string{strconv.Itoa(i), latencies[i].String(), received})
	}
	rows = append(rows, []string{"total", input.String(), total.String()})
	return renderTable(
		[]string{"Sub", "Input", "Latency"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight},
	), nil
}
