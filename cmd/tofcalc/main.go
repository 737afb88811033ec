// Command tofcalc is the ABCD time-of-flight builder: it matches PSD
// events between a reference channel set and a window-configured
// active channel set, accumulating four histograms per active
// channel (spec §4.6).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"abcd.dev/abcd/internal/abcdlog"
	"abcd.dev/abcd/internal/coincidence"
	"abcd.dev/abcd/internal/config"
	"abcd.dev/abcd/internal/events"
	"abcd.dev/abcd/internal/histogram"
	"abcd.dev/abcd/internal/statemachine"
	"abcd.dev/abcd/internal/transport"
)

const (
	stateCreateContext uint32 = iota + 1
	stateCreateSockets
	stateBuildMatcher
	stateReceiveCommands
	stateReceiveEvents
	statePublishHistograms

	stateTransportError
	stateParseError

	stateCloseSockets
	stateDestroyContext
	stateStop
)

// windowConfig is the YAML shape of one active channel's ToF window
// and the axis ranges for its histograms.
type windowConfig struct {
	MinToF    float64 `yaml:"min_tof"`
	MaxToF    float64 `yaml:"max_tof"`
	ToFBins   int     `yaml:"tof_bins"`
	EBins     int     `yaml:"e_bins"`
	EMin      float64 `yaml:"e_min"`
	EMax      float64 `yaml:"e_max"`
}

type tofcalcConfig struct {
	Endpoints         config.Endpoints        `yaml:"endpoints"`
	ReferenceChannels []int                   `yaml:"reference_channels"`
	ActiveChannels    map[int]windowConfig    `yaml:"active_channels"`
	NsPerSample       float64                 `yaml:"ns_per_sample"`
	StatusInterval    time.Duration           `yaml:"status_interval"`
}

type status struct {
	logger *slog.Logger
	bus    *events.Bus

	dataSock   *transport.Socket
	cmdSock    *transport.Socket
	statusSock *transport.Socket
	histSock   *transport.Socket

	cfg     tofcalcConfig
	windows map[int]windowConfig
	matcher *coincidence.Matcher

	eventsSub <-chan events.Event

	msgID       int
	lastPublish time.Time
	lastErr     error
}

func (s *status) publishEvent(kind string, data map[string]any) {
	s.bus.Publish(events.Event{Timestamp: time.Now(), Source: events.SourceTofcalc, Kind: kind, Data: data})
}

func (s *status) fail(next uint32, err error) uint32 {
	s.lastErr = err
	s.publishEvent(events.KindError, map[string]any{"message": err.Error()})
	s.logger.Error("tofcalc error", "error", err)
	return next
}

func actionCreateContext(_ context.Context, s *status) uint32 {
	s.eventsSub = s.bus.Subscribe(64)
	s.publishEvent(events.KindStarted, nil)
	return stateCreateSockets
}

// forwardEvents republishes whatever lifecycle/error events queued on
// the bus under events_tofcalc, the wire counterpart to the
// in-process Bus (spec §6).
func (s *status) forwardEvents() error {
	for _, e := range events.Drain(s.eventsSub) {
		if err := transport.SendJSON(s.statusSock, "events_tofcalc", e); err != nil {
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

	return stateBuildMatcher
}

func actionBuildMatcher(_ context.Context, s *status) uint32 {
	s.windows = s.cfg.ActiveChannels
	windows := make(map[int]coincidence.Window, len(s.cfg.ActiveChannels))
	for ch, w := range s.cfg.ActiveChannels {
		windows[ch] = coincidence.Window{MinToF: w.MinToF, MaxToF: w.MaxToF}
	}

	s.matcher = coincidence.New(coincidence.Config{
		ReferenceChannels: s.cfg.ReferenceChannels,
		ActiveChannels:    windows,
		NsPerSample:       s.cfg.NsPerSample,
	}, func(ch int) *coincidence.ChannelHistograms {
		w := s.windows[ch]
		return &coincidence.ChannelHistograms{
			ToF:    histogram.NewH1(w.ToFBins, w.MinToF, w.MaxToF),
			E:      histogram.NewH1(w.EBins, w.EMin, w.EMax),
			EvsToF: histogram.NewH2(w.ToFBins, w.MinToF, w.MaxToF, w.EBins, w.EMin, w.EMax),
			EvsE:   histogram.NewH2(w.EBins, w.EMin, w.EMax, w.EBins, w.EMin, w.EMax),
		}
	})
	return stateReceiveCommands
}

// command is the `{msg_ID, command, arguments}` shape of spec §6,
// narrowed to the two operations tofcalc recognizes.
type command struct {
	MsgID     int             `json:"msg_ID"`
	Command   string          `json:"command"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type resetArguments struct {
	Channel json.RawMessage `json:"channel"`
}

func dispatchCommand(m *coincidence.Matcher, raw []byte) (quit bool, err error) {
	var cmd command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return false, fmt.Errorf("tofcalc: decode command: %w", err)
	}
	switch cmd.Command {
	case "reset":
		var args resetArguments
		if len(cmd.Arguments) > 0 {
			if err := json.Unmarshal(cmd.Arguments, &args); err != nil {
				return false, fmt.Errorf("tofcalc: decode reset arguments: %w", err)
			}
		}
		var asAll string
		if json.Unmarshal(args.Channel, &asAll) == nil && asAll == "all" {
			m.ResetAll()
			return false, nil
		}
		var ch int
		if len(args.Channel) > 0 {
			if err := json.Unmarshal(args.Channel, &ch); err != nil {
				return false, fmt.Errorf("tofcalc: channel selector must be an int or \"all\": %w", err)
			}
			m.ResetChannel(ch)
		} else {
			m.ResetAll()
		}
		return false, nil
	case "quit":
		return true, nil
	default:
		return false, fmt.Errorf("tofcalc: unrecognized command %q", cmd.Command)
	}
}

func actionReceiveCommands(_ context.Context, s *status) uint32 {
	frame, ok, err := s.cmdSock.ReceiveFramed(false)
	if err != nil {
		return s.fail(stateTransportError, err)
	}
	if !ok {
		return stateReceiveEvents
	}
	quit, err := dispatchCommand(s.matcher, frame.Payload)
	if err != nil {
		s.logger.Warn("tofcalc: bad command", "error", err)
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
		s.matcher.MatchPayload(frame.Payload)
	}
	return statePublishHistograms
}

func actionPublishHistograms(_ context.Context, s *status) uint32 {
	now := time.Now()
	if now.Sub(s.lastPublish) < s.cfg.StatusInterval {
		return stateReceiveCommands
	}
	s.lastPublish = now
	s.msgID++

	channels := make(map[int]map[string]any, len(s.matcher.ActiveChannels()))
	for _, ch := range s.matcher.ActiveChannels() {
		h := s.matcher.Histograms(ch)
		channels[ch] = map[string]any{
			"tof":     h.ToF.Counts(),
			"e":       h.E.Counts(),
			"ev_tof":  h.EvsToF.Counts(),
			"ev_e":    h.EvsE.Counts(),
		}
	}
	if err := transport.SendJSON(s.histSock, "data_tofcalc_histograms", channels); err != nil {
		return s.fail(stateTransportError, err)
	}

	if err := transport.SendJSON(s.statusSock, "status_tofcalc", map[string]any{
		"module": "tofcalc", "timestamp": now.Format(time.RFC3339), "msg_ID": s.msgID,
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
		{ID: stateBuildMatcher, Description: "build_matcher", Action: actionBuildMatcher},
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

	logger := abcdlog.NewFromLevelString(os.Stderr, "tofcalc", *logLevel)

	cfgPath, err := config.FindConfig(*configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	var cfg tofcalcConfig
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
		logger.Error("tofcalc stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("tofcalc stopped")
}
