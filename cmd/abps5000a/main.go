// Command abps5000a is a thin configuration layer over
// internal/digitizer, wiring the shared session state machine against
// a stub "PicoScope 5000A" vendor device (spec §4.9 — vendor SDK
// integration is out of scope, only the Device boundary itself is
// implemented). It is the second of the two digitizer frontends that
// demonstrate the same session skeleton against different hardware,
// here one that also reports a single digital gate alongside samples.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"abcd.dev/abcd/internal/abcdlog"
	"abcd.dev/abcd/internal/config"
	"abcd.dev/abcd/internal/digitizer"
	"abcd.dev/abcd/internal/events"
	"abcd.dev/abcd/internal/statemachine"
	"abcd.dev/abcd/internal/transport"
)

// stubDevice is a minimal synthetic PicoScope 5000A device: each fetch
// yields one 32-sample capture for the next enabled channel (a short
// ramp, a steeper ramp, then a flat baseline) plus one digital gate
// channel that is high during the steeper ramp, exercising the
// multi-gate path of wire.Waveform that abad2's stub never touches.
type stubDevice struct {
	channels []digitizer.ChannelConfig
	next     int
	seq      uint64
}

func (d *stubDevice) Open(context.Context) error { return nil }

func (d *stubDevice) ConfigureChannels(_ context.Context, cfg []digitizer.ChannelConfig) error {
	d.channels = cfg
	return nil
}

func (d *stubDevice) Start(context.Context) error { return nil }
func (d *stubDevice) Close(context.Context) error { return nil }

func (d *stubDevice) Poll(context.Context) (bool, error) {
	for len(d.channels) > 0 {
		if d.channels[d.next%len(d.channels)].Enable {
			return true, nil
		}
		d.next++
	}
	return false, nil
}

func (d *stubDevice) FetchSamples(context.Context) (digitizer.RawCapture, error) {
	ch := d.channels[d.next%len(d.channels)]
	d.next++
	d.seq++

	const n = 32
	samples := make([]int16, n)
	gate := make([]int16, n)
	for i := range samples {
		switch {
		case i < 4:
			samples[i] = int16(-8000 + i*500)
			gate[i] = 0
		case i < 12:
			samples[i] = int16(-6000 + (i-4)*750)
			gate[i] = 1
		default:
			samples[i] = -6000
			gate[i] = 0
		}
	}
	return digitizer.RawCapture{
		Timestamp: d.seq,
		Channel:   uint8(ch.Channel),
		Samples:   samples,
		Gates:     [][]int16{gate},
	}, nil
}

type abps5000aConfig struct {
	Endpoints       config.Endpoints          `yaml:"endpoints"`
	Channels        []digitizer.ChannelConfig `yaml:"channels"`
	EventsBufferMax int                       `yaml:"events_buffer_max_size"`
	PublishInterval time.Duration             `yaml:"publish_interval"`
	StatusInterval  time.Duration             `yaml:"status_interval"`
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	logLevel := flag.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flag.Parse()

	logger := abcdlog.NewFromLevelString(os.Stderr, "abps5000a", *logLevel)

	cfgPath, err := config.FindConfig(*configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	var cfg abps5000aConfig
	if err := config.ReadYAML(cfgPath, &cfg); err != nil {
		logger.Error("load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = 5 * time.Second
	}
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = time.Second
	}

	ctx, cancel := statemachine.WithTerminationSignals(context.Background())
	defer cancel()

	status := &digitizer.Status{
		Module: "abps5000a",
		Logger: logger,
		Bus:    events.New(),
		Device: &stubDevice{},
		NewSocket: func(kind transport.Kind, endpoint string) (*transport.Socket, error) {
			switch kind {
			case transport.KindPub:
				return transport.NewPub(ctx, endpoint)
			case transport.KindPull:
				return transport.NewPull(ctx, endpoint)
			default:
				return nil, nil
			}
		},
		DataEndpoint:    cfg.Endpoints.DataPublish,
		StatusEndpoint:  cfg.Endpoints.StatusPublish,
		CommandEndpoint: cfg.Endpoints.CommandsPull,
		LoadConfig: func() (digitizer.Config, error) {
			return digitizer.Config{
				Channels:        cfg.Channels,
				EventsBufferMax: cfg.EventsBufferMax,
				PublishInterval: cfg.PublishInterval,
				StatusInterval:  cfg.StatusInterval,
			}, nil
		},
	}

	rt := statemachine.New(digitizer.BuildStates(), digitizer.StateStop)
	if err := rt.Run(ctx, status, digitizer.StateCreateContext); err != nil && ctx.Err() == nil {
		logger.Error("abps5000a stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("abps5000a stopped")
}
