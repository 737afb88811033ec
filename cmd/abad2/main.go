// Command abad2 is a thin configuration layer over internal/digitizer,
// wiring the shared session state machine against a stub "ABAD2"
// vendor device (spec §4.9 — vendor SDK integration is out of scope,
// only the Device boundary itself is implemented).
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

// stubDevice is a minimal synthetic ABAD2 device: each fetch produces
// one 16-sample sawtooth capture for the next enabled channel, cycling
// through the enabled channels, just often enough to exercise
// add_to_buffer/publish_events.
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
	samples := make([]int16, 16)
	for i := range samples {
		samples[i] = int16((i%8)*1000 - 4000)
	}
	return digitizer.RawCapture{Timestamp: d.seq, Channel: uint8(ch.Channel), Samples: samples}, nil
}

type abad2Config struct {
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

	logger := abcdlog.NewFromLevelString(os.Stderr, "abad2", *logLevel)

	cfgPath, err := config.FindConfig(*configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	var cfg abad2Config
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
		Module: "abad2",
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
		logger.Error("abad2 stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("abad2 stopped")
}
