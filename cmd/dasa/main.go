// Command dasa is the ABCD stream recorder: it subscribes to the
// events and waveforms topics and writes whichever streams the current
// recording session has enabled, plus a SQLite catalog of past
// sessions (spec §4.8).
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
	"abcd.dev/abcd/internal/recorder"
	"abcd.dev/abcd/internal/statemachine"
	"abcd.dev/abcd/internal/transport"
)

const (
	stateCreateContext uint32 = iota + 1
	stateCreateSockets
	stateOpenCatalog
	stateReceiveCommands
	stateReceiveData
	statePublishStatus

	stateTransportError
	stateCatalogError

	stateCloseSockets
	stateDestroyContext
	stateStop
)

// dasaConfig is the YAML shape dasa reads at startup.
type dasaConfig struct {
	Endpoints     config.Endpoints `yaml:"endpoints"`
	RecordingDir  string           `yaml:"recording_dir"`
	CatalogPath   string           `yaml:"catalog_path"`
	StatusInterval time.Duration   `yaml:"status_interval"`
}

type status struct {
	logger *slog.Logger
	bus    *events.Bus

	dataSock   *transport.Socket
	cmdSock    *transport.Socket
	statusSock *transport.Socket

	cfg      dasaConfig
	rec      *recorder.Recorder
	catalog  *recorder.Catalog
	sessionStart time.Time

	eventsSub <-chan events.Event

	msgID             int
	lastStatusPublish time.Time
	lastErr           error
}

func (s *status) publishEvent(kind string, data map[string]any) {
	s.bus.Publish(events.Event{Timestamp: time.Now(), Source: events.SourceDasa, Kind: kind, Data: data})
}

func (s *status) fail(next uint32, err error) uint32 {
	s.lastErr = err
	s.publishEvent(events.KindError, map[string]any{"message": err.Error()})
	s.logger.Error("dasa error", "error", err)
	return next
}

func actionCreateContext(_ context.Context, s *status) uint32 {
	s.eventsSub = s.bus.Subscribe(64)
	s.publishEvent(events.KindStarted, nil)
	return stateCreateSockets
}

// forwardEvents drains whatever lifecycle/error events accumulated on
// the bus since the last publish and republishes them under
// events_dasa, the wire counterpart to the in-process Bus (spec §6).
func (s *status) forwardEvents() error {
	for _, e := range events.Drain(s.eventsSub) {
		if err := transport.SendJSON(s.statusSock, "events_dasa", e); err != nil {
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

	return stateOpenCatalog
}

func actionOpenCatalog(_ context.Context, s *status) uint32 {
	cat, err := recorder.OpenCatalog(s.cfg.CatalogPath)
	if err != nil {
		return s.fail(stateCatalogError, err)
	}
	s.catalog = cat
	s.rec = recorder.New(s.cfg.RecordingDir)
	return stateReceiveCommands
}

func actionReceiveCommands(ctx context.Context, s *status) uint32 {
	frame, ok, err := s.cmdSock.ReceiveFramed(false)
	if err != nil {
		return s.fail(stateTransportError, err)
	}
	if !ok {
		return stateReceiveData
	}

	action, fileName, enable, err := recorder.Dispatch(frame.Payload)
	if err != nil {
		s.logger.Warn("dasa: bad command", "error", err)
		return stateReceiveData
	}

	switch action {
	case recorder.ActionStart:
		now := time.Now()
		if err := s.rec.Start(fileName, enable, now); err != nil {
			s.logger.Warn("dasa: start rejected", "error", err)
			return stateReceiveData
		}
		s.sessionStart = now
		s.publishEvent(events.KindRecordingStarted, map[string]any{
			"file_name": fileName, "events": enable.Events, "waveforms": enable.Waveforms, "raw": enable.Raw,
		})
	case recorder.ActionStop:
		var stoppedFile string
		if sess := s.rec.Active(); sess != nil {
			stoppedFile = sess.FileName
		}
		counts, err := s.rec.Stop()
		if err != nil {
			s.logger.Warn("dasa: stop rejected", "error", err)
			return stateReceiveData
		}
		entry := recorder.CatalogEntry{
			FileName:       stoppedFile,
			StartedAt:      s.sessionStart,
			StoppedAt:      time.Now(),
			EventsBytes:    counts[recorder.StreamEvents],
			WaveformsBytes: counts[recorder.StreamWaveforms],
			RawBytes:       counts[recorder.StreamRaw],
		}
		if err := s.catalog.Record(ctx, entry); err != nil {
			s.logger.Error("dasa: catalog record failed", "error", err)
		}
		s.publishEvent(events.KindRecordingStopped, map[string]any{
			"file_name": entry.FileName, "events_bytes": entry.EventsBytes, "waveforms_bytes": entry.WaveformsBytes, "raw_bytes": entry.RawBytes,
		})
	case recorder.ActionQuit:
		return stateCloseSockets
	}
	return stateReceiveData
}

func actionReceiveData(_ context.Context, s *status) uint32 {
	frame, ok, err := s.dataSock.ReceiveFramed(true)
	if err != nil {
		return s.fail(stateTransportError, err)
	}
	if ok {
		if err := s.rec.WriteFrame(frame.Topic, frame.Payload); err != nil && err != recorder.ErrNotRecording {
			s.logger.Error("dasa: write frame failed", "error", err)
		}
	}
	return statePublishStatus
}

func actionPublishStatus(_ context.Context, s *status) uint32 {
	now := time.Now()
	if now.Sub(s.lastStatusPublish) < s.cfg.StatusInterval {
		return stateReceiveCommands
	}
	s.lastStatusPublish = now
	s.msgID++

	recording := s.rec.Active() != nil
	payload := map[string]any{
		"module": "dasa", "timestamp": now.Format(time.RFC3339), "msg_ID": s.msgID, "recording": recording,
	}
	if recording {
		s.rec.Flush()
	}
	if err := transport.SendJSON(s.statusSock, "status_abcd", payload); err != nil {
		return s.fail(stateTransportError, err)
	}
	if err := s.forwardEvents(); err != nil {
		return s.fail(stateTransportError, err)
	}
	return stateReceiveCommands
}

func actionTransportError(_ context.Context, s *status) uint32 { return stateCloseSockets }
func actionCatalogError(_ context.Context, s *status) uint32   { return stateCloseSockets }

func actionCloseSockets(_ context.Context, s *status) uint32 {
	if s.eventsSub != nil {
		s.bus.Unsubscribe(s.eventsSub)
	}
	if s.rec != nil && s.rec.Active() != nil {
		s.rec.Stop()
	}
	if s.catalog != nil {
		s.catalog.Close()
	}
	for _, sock := range []*transport.Socket{s.dataSock, s.cmdSock, s.statusSock} {
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
		{ID: stateOpenCatalog, Description: "open_catalog", Action: actionOpenCatalog},
		{ID: stateReceiveCommands, Description: "receive_commands", Action: actionReceiveCommands},
		{ID: stateReceiveData, Description: "receive_data", Action: actionReceiveData},
		{ID: statePublishStatus, Description: "publish_status", Action: actionPublishStatus},
		{ID: stateTransportError, Description: "transport_error", Action: actionTransportError},
		{ID: stateCatalogError, Description: "catalog_error", Action: actionCatalogError},
		{ID: stateCloseSockets, Description: "close_sockets", Action: actionCloseSockets},
		{ID: stateDestroyContext, Description: "destroy_context", Action: actionDestroyContext},
		{ID: stateStop, Description: "stop", Action: actionStop},
	}
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	logLevel := flag.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flag.Parse()

	logger := abcdlog.NewFromLevelString(os.Stderr, "dasa", *logLevel)

	cfgPath, err := config.FindConfig(*configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	var cfg dasaConfig
	if err := config.ReadYAML(cfgPath, &cfg); err != nil {
		logger.Error("load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = 5 * time.Second
	}
	if cfg.RecordingDir == "" {
		cfg.RecordingDir = "."
	}
	if cfg.CatalogPath == "" {
		cfg.CatalogPath = "dasa_catalog.db"
	}

	ctx, cancel := statemachine.WithTerminationSignals(context.Background())
	defer cancel()

	s := &status{logger: logger, bus: events.New(), cfg: cfg}
	rt := statemachine.New(buildStates(), stateStop)
	if err := rt.Run(ctx, s, stateCreateContext); err != nil && ctx.Err() == nil {
		logger.Error("dasa stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("dasa stopped")
}
