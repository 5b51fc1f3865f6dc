package h264

import "time"

type (
	// Reconfigure applies current params to the opened encoder.
	Reconfigure struct{}

	// SetDefault resets params to codec defaults.
	SetDefault struct{}

	// SetDefaultPreset applies preset and tune.
	SetDefaultPreset struct {
		Preset string
		Tune   string
	}

	// SetProfile enforces profile.
	SetProfile struct {
		Profile string
	}

	// SetSpeedControlLatency sets speed control latency.
	SetSpeedControlLatency struct {
		Latency time.Duration
	}
)

// Name returns command name.
func (*Reconfigure) Name() string { return "x264_reconfig" }

// Name returns command name.
func (*SetDefault) Name() string { return "x264_set_default" }

// Name returns command name.
func (*SetDefaultPreset) Name() string { return "x264_set_default_preset" }

// Name returns command name.
func (*SetProfile) Name() string { return "x264_set_profile" }

// Name returns command name.
func (*SetSpeedControlLatency) Name() string { return "x264_set_sc_latency" }
