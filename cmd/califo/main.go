// Command califo is the ABCD peak-fitter control loop: it scale-
// corrects and republishes every PSD event, and periodically fits a
// Gaussian-plus-exponential peak per channel to re-derive that scale
// factor (spec §4.10).
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"abcd.dev/abcd/internal/abcdlog"
	"abcd.dev/abcd/internal/config"
	"abcd.dev/abcd/internal/events"
	"abcd.dev/abcd/internal/fitter"
	"abcd.dev/abcd/internal/statemachine"
	"abcd.dev/abcd/internal/transport"
	"abcd.dev/abcd/internal/wire"
)

const (
	stateCreateContext uint32 = iota + 1
	stateCreateSockets
	stateBuildController
	stateReceiveCommands
	stateReceiveEvents
	stateTick

	stateTransportError
	stateParseError

	stateCloseSockets
	stateDestroyContext
	stateStop
)

// channelConfig is the YAML shape of one channel's fit configuration.
type channelConfig struct {
	Channel              int           `yaml:"channel"`
	TargetMu             float64       `yaml:"target_mu"`
	PeakTolerance        float64       `yaml:"peak_tolerance"`
	BackgroundIterations int           `yaml:"background_iterations"`
	SmoothingWindow      int           `yaml:"smoothing_window"`
	PolynomialOrder      int           `yaml:"polynomial_order"`
	MaxIterations        int           `yaml:"max_iterations"`
	AccumulationWindow   time.Duration `yaml:"accumulation_window"`
	HistogramBins        int           `yaml:"histogram_bins"`
	HistogramMin         float64       `yaml:"histogram_min"`
	HistogramMax         float64       `yaml:"histogram_max"`
	SnapshotExpiration   time.Duration `yaml:"snapshot_expiration"`
}

type califoConfig struct {
	Endpoints config.Endpoints `yaml:"endpoints"`
	Channels  []channelConfig  `yaml:"channels"`
	WarmUp    time.Duration    `yaml:"warm_up"`
	TickEvery time.Duration    `yaml:"tick_every"`
}

type status struct {
	logger *slog.Logger
	bus    *events.Bus

	dataSock   *transport.Socket
	cmdSock    *transport.Socket
	statusSock *transport.Socket
	outSock    *transport.Socket

	cfg        califoConfig
	controller *fitter.Controller

	eventsSub <-chan events.Event

	lastTick time.Time
	lastErr  error
}

func (s *status) fail(next uint32, err error) uint32 {
	s.lastErr = err
	s.bus.Publish(events.Event{Timestamp: time.Now(), Source: events.SourceCalifo, Kind: events.KindError, Data: map[string]any{"message": err.Error()}})
	s.logger.Error("califo error", "error", err)
	return next
}

func actionCreateContext(_ context.Context, s *status) uint32 {
	s.eventsSub = s.bus.Subscribe(64)
	s.bus.Publish(events.Event{Timestamp: time.Now(), Source: events.SourceCalifo, Kind: events.KindStarted})
	return stateCreateSockets
}

// forwardEvents republishes whatever lifecycle/fit events queued on
// the bus under events_califo, the wire counterpart to the
// in-process Bus (spec §6).
func (s *status) forwardEvents() error {
	for _, e := range events.Drain(s.eventsSub) {
		if err := transport.SendJSON(s.statusSock, "events_califo", e); err != nil {
			return err
		}
	}
	return nil
}

func actionCreateSockets(ctx context.Context, s *status) uint32 {
	dataSock, err := transport.NewSub(ctx, s.cfg.Endpoints.DataSubscribe[0])
	if err != nil {
		return s.fail(stateTransportError, err)
	}
	s.dataSock = dataSock

	cmdSock, err := transport.NewPull(ctx, s.cfg.Endpoints.CommandsPull)
	if err != nil {
		return s.fail(stateTransportError, err)
	}
	s.cmdSock = cmdSock

	statusSock, err := transport.NewPub(ctx, s.cfg.Endpoints.StatusPublish)
	if err != nil {
		return s.fail(stateTransportError, err)
	}
	s.statusSock = statusSock

	outSock, err := transport.NewPub(ctx, s.cfg.Endpoints.DataPublish)
	if err != nil {
		return s.fail(stateTransportError, err)
	}
	s.outSock = outSock

	return stateBuildController
}

func actionBuildController(_ context.Context, s *status) uint32 {
	params := make([]fitter.ChannelParams, len(s.cfg.Channels))
	for i, c := range s.cfg.Channels {
		params[i] = fitter.ChannelParams{
			Channel:       c.Channel,
			TargetMu:      c.TargetMu,
			PeakTolerance: c.PeakTolerance,
			Background: fitter.BackgroundConfig{
				Iterations:      c.BackgroundIterations,
				SmoothingWindow: c.SmoothingWindow,
				PolynomialOrder: c.PolynomialOrder,
			},
			MaxIterations:      c.MaxIterations,
			AccumulationWindow: c.AccumulationWindow,
			HistogramBins:      c.HistogramBins,
			HistogramMin:       c.HistogramMin,
			HistogramMax:       c.HistogramMax,
			SnapshotExpiration: c.SnapshotExpiration,
		}
	}
	s.controller = fitter.NewController(params, s.cfg.WarmUp, time.Now(), s.bus)
	s.lastTick = time.Now()
	return stateReceiveCommands
}

func actionReceiveCommands(_ context.Context, s *status) uint32 {
	frame, ok, err := s.cmdSock.ReceiveFramed(false)
	if err != nil {
		return s.fail(stateTransportError, err)
	}
	if !ok {
		return stateReceiveEvents
	}
	quit, err := fitter.Dispatch(frame.Payload)
	if err != nil {
		s.logger.Warn("califo: bad command", "error", err)
		return stateParseError
	}
	if quit {
		return stateCloseSockets
	}
	return stateReceiveEvents
}

func actionReceiveEvents(_ context.Context, s *status) uint32 {
	frame, ok, err := s.dataSock.ReceiveFramed(true)
	if err != nil {
		return s.fail(stateTransportError, err)
	}
	if ok {
		decoded := wire.DecodePSDEvents(frame.Payload)
		now := time.Now()
		out := make([]wire.PSDEvent, len(decoded))
		for i, e := range decoded {
			qshort, qlong := s.controller.ProcessEvent(now, fitter.Event{Channel: int(e.Channel), Qshort: e.Qshort, Qlong: e.Qlong})
			out[i] = e
			out[i].Qshort = uint16(qshort)
			out[i].Qlong = uint16(qlong)
		}
		if len(out) > 0 {
			payload := wire.EncodePSDEvents(out)
			topic := transport.BuildDataTopic("data_abcd_events", 0, len(payload))
			if err := s.outSock.SendFramed(topic, payload); err != nil {
				return s.fail(stateTransportError, err)
			}
		}
	}
	return stateTick
}

func actionTick(_ context.Context, s *status) uint32 {
	now := time.Now()
	if now.Sub(s.lastTick) < s.cfg.TickEvery {
		return stateReceiveCommands
	}
	s.lastTick = now
	s.controller.Tick(now)

	if err := transport.SendJSON(s.statusSock, "status_califo", map[string]any{
		"module": "califo", "timestamp": now.Format(time.RFC3339),
	}); err != nil {
		return s.fail(stateTransportError, err)
	}
	if err := s.forwardEvents(); err != nil {
		return s.fail(stateTransportError, err)
	}
	return stateReceiveCommands
}

func actionTransportError(_ context.Context, s *status) uint32 { return stateCloseSockets }
func actionParseError(_ context.Context, s *status) uint32     { return stateReceiveEvents }

func actionCloseSockets(_ context.Context, s *status) uint32 {
	if s.eventsSub != nil {
		s.bus.Unsubscribe(s.eventsSub)
	}
	for _, sock := range []*transport.Socket{s.dataSock, s.cmdSock, s.statusSock, s.outSock} {
		if sock != nil {
			sock.Close()
		}
	}
	return stateDestroyContext
}

func actionDestroyContext(_ context.Context, s *status) uint32 { return stateStop }

func actionStop(_ context.Context, s *status) uint32 {
	s.bus.Publish(events.Event{Timestamp: time.Now(), Source: events.SourceCalifo, Kind: events.KindStopped})
	return stateStop
}

func buildStates() []statemachine.State[status] {
	return []statemachine.State[status]{
		{ID: stateCreateContext, Description: "create_context", Action: actionCreateContext},
		{ID: stateCreateSockets, Description: "create_sockets", Action: actionCreateSockets},
		{ID: stateBuildController, Description: "build_controller", Action: actionBuildController},
		{ID: stateReceiveCommands, Description: "receive_commands", Action: actionReceiveCommands},
		{ID: stateReceiveEvents, Description: "receive_events", Action: actionReceiveEvents},
		{ID: stateTick, Description: "tick", Action: actionTick},
		{ID: stateTransportError, Description: "transport_error", Action: actionTransportError},
		{ID: stateParseError, Description: "parse_error", Action: actionParseError},
		{ID: stateCloseSockets, Description: "close_sockets", Action: actionCloseSockets},
		{ID: stateDestroyContext, Description: "destroy_context", Action: actionDestroyContext},
		{ID: stateStop, Description: "stop", Action: actionStop},
	}
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	logLevel := flag.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flag.Parse()

	logger := abcdlog.NewFromLevelString(os.Stderr, "califo", *logLevel)

	cfgPath, err := config.FindConfig(*configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	var cfg califoConfig
	if err := config.ReadYAML(cfgPath, &cfg); err != nil {
		logger.Error("load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	if cfg.TickEvery <= 0 {
		cfg.TickEvery = time.Second
	}

	ctx, cancel := statemachine.WithTerminationSignals(context.Background())
	defer cancel()

	s := &status{logger: logger, bus: events.New(), cfg: cfg}
	rt := statemachine.New(buildStates(), stateStop)
	if err := rt.Run(ctx, s, stateCreateContext); err != nil && ctx.Err() == nil {
		logger.Error("califo stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("califo stopped")
}
