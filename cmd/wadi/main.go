// Command wadi bridges the binary waveform stream to JSON for
// lightweight consumers, per spec §4.11.
package main

import (
	"context"
	"flag"
	"os"

	"abcd.dev/abcd/internal/abcdlog"
	"abcd.dev/abcd/internal/bridge"
	"abcd.dev/abcd/internal/config"
	"abcd.dev/abcd/internal/events"
	"abcd.dev/abcd/internal/statemachine"
	"abcd.dev/abcd/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	logLevel := flag.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flag.Parse()

	logger := abcdlog.NewFromLevelString(os.Stderr, "wadi", *logLevel)

	cfgPath, err := config.FindConfig(*configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	var endpoints config.Endpoints
	if err := config.ReadYAML(cfgPath, &struct {
		Endpoints *config.Endpoints `yaml:"endpoints"`
	}{Endpoints: &endpoints}); err != nil {
		logger.Error("load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	if len(endpoints.DataSubscribe) == 0 {
		logger.Error("config: endpoints.data_subscribe must list at least one waveform source")
		os.Exit(1)
	}

	ctx, cancel := statemachine.WithTerminationSignals(context.Background())
	defer cancel()

	bus := events.New()
	status := &bridge.Status{
		Module: events.SourceWadi,
		Logger: logger,
		Bus:    bus,
		NewSocket: func(kind transport.Kind, endpoint string) (*transport.Socket, error) {
			switch kind {
			case transport.KindSub:
				return transport.NewSub(ctx, endpoint)
			case transport.KindPub:
				return transport.NewPub(ctx, endpoint)
			default:
				return nil, nil
			}
		},
		InputEndpoint:  endpoints.DataSubscribe[0],
		OutputEndpoint: endpoints.DataPublish,
	}

	rt := statemachine.New(bridge.BuildStates(), bridge.StateStop)
	if err := rt.Run(ctx, status, bridge.StateCreateContext); err != nil && ctx.Err() == nil {
		logger.Error("wadi stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("wadi stopped")
}
