package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"pipelined.dev/avpipe"
	"pipelined.dev/avpipe/config"
	"pipelined.dev/avpipe/fenc"
	"pipelined.dev/avpipe/flow"
	"pipelined.dev/avpipe/wavenc"
)

// chunk is the duration of a generated sound buffer.
const chunk = 20 * time.Millisecond

type toneOptions struct {
	out       string
	duration  time.Duration
	rate      uint64
	channels  uint64
	frequency float64
	bitDepth  int
}

func newEncodeCommand(ctx *commandContext) *cobra.Command {
	opts := toneOptions{}
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode a generated tone into a wav file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.out == "" {
				return fmt.Errorf("--out is required: %w", avpipe.ErrInvalid)
			}
			written, err := runEncode(ctx, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", written, opts.out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Output wav file")
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", time.Second, "Duration of the tone")
	cmd.Flags().Uint64Var(&opts.rate, "rate", 48000, "Sample rate")
	cmd.Flags().Uint64Var(&opts.channels, "channels", 2, "Number of channels")
	cmd.Flags().Float64Var(&opts.frequency, "frequency", 440, "Tone frequency in Hz")
	cmd.Flags().IntVar(&opts.bitDepth, "bit-depth", 16, "Output bit depth")
	return cmd
}

// runEncode feeds a tone through a frontend encoder backed by the wav
// encoder and writes the resulting file.
func runEncode(ctx *commandContext, opts toneOptions) (int, error) {
	if opts.rate == 0 || opts.channels == 0 || opts.duration <= 0 {
		return 0, fmt.Errorf("rate, channels and duration must be positive: %w", avpipe.ErrInvalid)
	}
	switch opts.bitDepth {
	case 16, 24, 32:
	default:
		return 0, fmt.Errorf("bit depth %d: %w", opts.bitDepth, avpipe.ErrInvalid)
	}
	file, err := os.Create(opts.out)
	if err != nil {
		return 0, fmt.Errorf("create output: %w", err)
	}
	defer file.Close()

	m := fenc.NewManager()
	defer avpipe.ReleaseManager(m)
	if err := m.SetBackend(fenc.Generic, wavenc.NewManager()); err != nil {
		return 0, err
	}

	probe := ctx.probe("encode")
	s := newSink(probe, file)
	defer s.pipe.Release()

	p, err := avpipe.AllocFlow(m, probe, flow.NewDef(wavenc.OutFlow))
	if err != nil {
		return 0, fmt.Errorf("alloc encoder: %w", err)
	}
	released := false
	defer func() {
		if !released {
			p.Release()
		}
	}()

	// only options apply to generic backends.
	tuning := config.Encoder{Options: ctx.cfg.Encoder.Options}
	if err := tuning.Apply(p); err != nil {
		return 0, err
	}
	if err := p.SetOption(wavenc.OptionBitDepth, strconv.Itoa(opts.bitDepth)); err != nil {
		return 0, fmt.Errorf("set bit depth: %w", err)
	}
	if err := p.SetOutput(s.pipe); err != nil {
		return 0, err
	}
	def := flow.NewDef(wavenc.ExpectedFlow)
	def.SetSound(opts.rate, opts.channels)
	if err := p.SetFlowDef(def); err != nil {
		return 0, fmt.Errorf("set encoder flow def: %w", err)
	}

	for pts := time.Duration(0); pts < opts.duration; pts += chunk {
		b := flow.NewBlock(tone(opts, pts, min(chunk, opts.duration-pts)))
		b.SetPTS(pts)
		p.Input(b)
	}

	// the file is written when the encoder drains.
	p.Release()
	released = true
	if s.err != nil {
		return s.written, s.err
	}
	return s.written, nil
}

// tone generates interleaved s16le samples of a sine starting at pts.
func tone(opts toneOptions, pts, d time.Duration) []byte {
	start := uint64(pts) * opts.rate / uint64(time.Second)
	frames := uint64(d) * opts.rate / uint64(time.Second)
	block := make([]byte, 0, frames*opts.channels*2)
	for i := start; i < start+frames; i++ {
		v := int16(math.MaxInt16 / 2 * math.Sin(2*math.Pi*opts.frequency*float64(i)/float64(opts.rate)))
		for c := uint64(0); c < opts.channels; c++ {
			block = binary.LittleEndian.AppendUint16(block, uint16(v))
		}
	}
	return block
}
