// Command spec is the ABCD spectrum builder: per-channel qlong and
// (qlong, psd) histograms over the PSD event stream, with optional
// exponential time decay (spec §4.7).
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
	"abcd.dev/abcd/internal/spectrum"
	"abcd.dev/abcd/internal/statemachine"
	"abcd.dev/abcd/internal/transport"
	"abcd.dev/abcd/internal/wire"
)

const (
	stateCreateContext uint32 = iota + 1
	stateCreateSockets
	stateReadConfig
	stateReceiveCommands
	stateReceiveEvents
	statePublishHistograms

	stateTransportError
	stateParseError

	stateCloseSockets
	stateDestroyContext
	stateStop
)

type specConfig struct {
	Endpoints      config.Endpoints       `yaml:"endpoints"`
	Shape          spectrum.ChannelShape  `yaml:"shape"`
	DecayEnabled   bool                   `yaml:"decay_enabled"`
	Tau            float64                `yaml:"tau"`
	FloorCount     float64                `yaml:"floor_count"`
	StatusInterval time.Duration          `yaml:"status_interval"`
}

type status struct {
	logger *slog.Logger
	bus    *events.Bus

	dataSock   *transport.Socket
	cmdSock    *transport.Socket
	statusSock *transport.Socket
	histSock   *transport.Socket

	cfg     specConfig
	builder *spectrum.Builder

	eventsSub <-chan events.Event

	msgID       int
	lastPublish time.Time
	lastErr     error
}

func (s *status) publishEvent(kind string, data map[string]any) {
	s.bus.Publish(events.Event{Timestamp: time.Now(), Source: events.SourceSpec, Kind: kind, Data: data})
}

func (s *status) fail(next uint32, err error) uint32 {
	s.lastErr = err
	s.publishEvent(events.KindError, map[string]any{"message": err.Error()})
	s.logger.Error("spec error", "error", err)
	return next
}

func actionCreateContext(_ context.Context, s *status) uint32 {
	s.eventsSub = s.bus.Subscribe(64)
	s.publishEvent(events.KindStarted, nil)
	return stateCreateSockets
}

// forwardEvents republishes whatever lifecycle/error events queued on
// the bus under events_spec, the wire counterpart to the in-process
// Bus (spec §6).
func (s *status) forwardEvents() error {
	for _, e := range events.Drain(s.eventsSub) {
		if err := transport.SendJSON(s.statusSock, "events_spec", e); err != nil {
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

	histSock, err := transport.NewPub(ctx, s.cfg.Endpoints.DataPublish)
	if err != nil {
		return s.fail(stateTransportError, err)
	}
	s.histSock = histSock

	return stateReadConfig
}

func actionReadConfig(_ context.Context, s *status) uint32 {
	s.builder = spectrum.NewBuilder(s.cfg.Shape)
	s.builder.DecayEnabled = s.cfg.DecayEnabled
	s.builder.Tau = s.cfg.Tau
	s.builder.FloorCount = s.cfg.FloorCount
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
	quit, err := spectrum.Dispatch(s.builder, frame.Payload)
	if err != nil {
		s.logger.Warn("spec: bad command", "error", err)
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
		for _, e := range wire.DecodePSDEvents(frame.Payload) {
			s.builder.Fill(spectrum.Event{Channel: int(e.Channel), Qshort: float64(e.Qshort), Qlong: float64(e.Qlong)})
		}
	}
	return statePublishHistograms
}

func actionPublishHistograms(_ context.Context, s *status) uint32 {
	now := time.Now()
	if now.Sub(s.lastPublish) < s.cfg.StatusInterval {
		return stateReceiveCommands
	}
	elapsed := now.Sub(s.lastPublish).Seconds()
	s.lastPublish = now
	s.msgID++

	channels := make(map[int]map[string]any, len(s.builder.Channels()))
	for ch, c := range s.builder.Channels() {
		channels[ch] = map[string]any{
			"qlong":     c.Qlong.Counts(),
			"qlong_psd": c.QlongPSD.Counts(),
			"psd_bins_x": c.QlongPSD.BinsX(),
			"psd_bins_y": c.QlongPSD.BinsY(),
			"partial":   c.Partial,
			"total":     c.Total,
		}
	}
	if err := transport.SendJSON(s.histSock, "data_spec_histograms", channels); err != nil {
		return s.fail(stateTransportError, err)
	}

	if err := transport.SendJSON(s.statusSock, "status_spec", map[string]any{
		"module": "spec", "timestamp": now.Format(time.RFC3339), "msg_ID": s.msgID, "channels": len(s.builder.Channels()),
	}); err != nil {
		return s.fail(stateTransportError, err)
	}
	if err := s.forwardEvents(); err != nil {
		return s.fail(stateTransportError, err)
	}

	s.builder.ResetPartials()
	s.builder.DecayAll(elapsed)
	return stateReceiveCommands
}

func actionTransportError(_ context.Context, s *status) uint32 { return stateCloseSockets }
func actionParseError(_ context.Context, s *status) uint32     { return stateReceiveEvents }

func actionCloseSockets(_ context.Context, s *status) uint32 {
	if s.eventsSub != nil {
		s.bus.Unsubscribe(s.eventsSub)
	}
	for _, sock := range []*transport.Socket{s.dataSock, s.cmdSock, s.statusSock, s.histSock} {
		if sock != nil {
			sock.Close()
		}
	}
	return stateDestroyContext
}

func actionDestroyContext(_ context.Context, s *status) uint32 { return stateStop }

func actionStop(_ context.Context, s *status) uint32 {
	s.publishEvent(events.KindStopped, nil)
	return stateStop
}

func buildStates() []statemachine.State[status] {
	return []statemachine.State[status]{
		{ID: stateCreateContext, Description: "create_context", Action: actionCreateContext},
		{ID: stateCreateSockets, Description: "create_sockets", Action: actionCreateSockets},
		{ID: stateReadConfig, Description: "read_config", Action: actionReadConfig},
		{ID: stateReceiveCommands, Description: "receive_commands", Action: actionReceiveCommands},
		{ID: stateReceiveEvents, Description: "receive_events", Action: actionReceiveEvents},
		{ID: statePublishHistograms, Description: "publish_histograms", Action: actionPublishHistograms},
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

	logger := abcdlog.NewFromLevelString(os.Stderr, "spec", *logLevel)

	cfgPath, err := config.FindConfig(*configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	var cfg specConfig
	if err := config.ReadYAML(cfgPath, &cfg); err != nil {
		logger.Error("load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = 5 * time.Second
	}

	ctx, cancel := statemachine.WithTerminationSignals(context.Background())
	defer cancel()

	s := &status{logger: logger, bus: events.New(), cfg: cfg}
	rt := statemachine.New(buildStates(), stateStop)
	if err := rt.Run(ctx, s, stateCreateContext); err != nil && ctx.Err() == nil {
		logger.Error("spec stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("spec stopped")
}
