// Command fifo is the ABCD FIFO query responder: it retains the raw
// event/waveform stream in a timestamped binary FIFO and answers
// synchronous range queries over REQ/REP (spec §4.5).
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
	"abcd.dev/abcd/internal/config"
	"abcd.dev/abcd/internal/events"
	"abcd.dev/abcd/internal/fifo"
	"abcd.dev/abcd/internal/statemachine"
	"abcd.dev/abcd/internal/transport"
)

const (
	stateCreateContext uint32 = iota + 1
	stateCreateSockets
	stateReceiveCommands
	stateReceiveData
	stateReceiveQuery
	statePublishStatus

	stateTransportError
	stateQueryError

	stateCloseSockets
	stateDestroyContext
	stateStop
)

type fifoConfig struct {
	Endpoints      config.Endpoints `yaml:"endpoints"`
	Expiration     time.Duration    `yaml:"expiration"`
	StatusInterval time.Duration    `yaml:"status_interval"`
}

type status struct {
	logger *slog.Logger
	bus    *events.Bus

	dataSock   *transport.Socket
	cmdSock    *transport.Socket
	statusSock *transport.Socket
	querySock  *transport.Socket

	cfg   fifoConfig
	queue *fifo.FIFO

	eventsSub <-chan events.Event

	msgID             int
	lastStatusPublish time.Time
	lastErr           error
}

func (s *status) publishEvent(kind string, data map[string]any) {
	s.bus.Publish(events.Event{Timestamp: time.Now(), Source: events.SourceFifo, Kind: kind, Data: data})
}

func (s *status) fail(next uint32, err error) uint32 {
	s.lastErr = err
	s.publishEvent(events.KindError, map[string]any{"message": err.Error()})
	s.logger.Error("fifo error", "error", err)
	return next
}

func actionCreateContext(_ context.Context, s *status) uint32 {
	s.eventsSub = s.bus.Subscribe(64)
	s.publishEvent(events.KindStarted, nil)
	return stateCreateSockets
}

// forwardEvents republishes whatever lifecycle/error events queued on
// the bus under events_fifo, the wire counterpart to the in-process
// Bus (spec §6).
func (s *status) forwardEvents() error {
	for _, e := range events.Drain(s.eventsSub) {
		if err := transport.SendJSON(s.statusSock, "events_fifo", e); err != nil {
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

	querySock, err := transport.NewRep(ctx, s.cfg.Endpoints.QueryReply)
	if err != nil {
		return s.fail(stateTransportError, err)
	}
	s.querySock = querySock

	s.queue = fifo.New(s.cfg.Expiration)
	return stateReceiveCommands
}

// command is the `{msg_ID, command, arguments}` shape of spec §6,
// narrowed to "quit" — fifo has no configuration to reset or
// reconfigure at runtime.
type command struct {
	Command string `json:"command"`
}

func actionReceiveCommands(_ context.Context, s *status) uint32 {
	frame, ok, err := s.cmdSock.ReceiveFramed(false)
	if err != nil {
		return s.fail(stateTransportError, err)
	}
	if !ok {
		return stateReceiveData
	}
	var cmd command
	if err := json.Unmarshal(frame.Payload, &cmd); err != nil {
		s.logger.Warn("fifo: bad command", "error", err)
		return stateReceiveData
	}
	if cmd.Command == "quit" {
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
		s.queue.Push(frame.Payload)
	}
	return stateReceiveQuery
}

// queryRequest is the REQ payload: an ISO-8601 range with mandatory
// offset (spec Open Question (b): bare "Z"-suffixed input is parsed by
// time.RFC3339 only, never a looser layout).
type queryRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type queryResponse struct {
	Count   int      `json:"count"`
	Size    int      `json:"size"`
	Entries [][]byte `json:"entries,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func actionReceiveQuery(_ context.Context, s *status) uint32 {
	frame, ok, err := s.querySock.ReceiveFramed(false)
	if err != nil {
		return s.fail(stateTransportError, err)
	}
	if !ok {
		return statePublishStatus
	}

	var req queryRequest
	if err := json.Unmarshal(frame.Payload, &req); err != nil {
		return s.replyError(err)
	}
	from, err := time.Parse(time.RFC3339, req.From)
	if err != nil {
		return s.replyError(fmt.Errorf("fifo: \"from\" must be RFC3339 with explicit offset: %w", err))
	}
	to, err := time.Parse(time.RFC3339, req.To)
	if err != nil {
		return s.replyError(fmt.Errorf("fifo: \"to\" must be RFC3339 with explicit offset: %w", err))
	}

	s.queue.Update()
	entries := s.queue.GetData(from, to)
	resp := queryResponse{Count: len(entries), Entries: entries}
	for _, e := range entries {
		resp.Size += len(e)
	}
	if err := transport.SendJSON(s.querySock, "", resp); err != nil {
		return s.fail(stateTransportError, err)
	}
	return statePublishStatus
}

func (s *status) replyError(err error) uint32 {
	s.logger.Warn("fifo: bad query", "error", err)
	if sendErr := transport.SendJSON(s.querySock, "", queryResponse{Error: err.Error()}); sendErr != nil {
		return s.fail(stateTransportError, sendErr)
	}
	return stateQueryError
}

func actionPublishStatus(_ context.Context, s *status) uint32 {
	now := time.Now()
	if now.Sub(s.lastStatusPublish) < s.cfg.StatusInterval {
		return stateReceiveCommands
	}
	s.lastStatusPublish = now
	s.msgID++

	s.queue.Update()
	if err := transport.SendJSON(s.statusSock, "status_fifo", map[string]any{
		"module": "fifo", "timestamp": now.Format(time.RFC3339), "msg_ID": s.msgID,
		"count": s.queue.Count(), "size": s.queue.Size(),
	}); err != nil {
		return s.fail(stateTransportError, err)
	}
	if err := s.forwardEvents(); err != nil {
		return s.fail(stateTransportError, err)
	}
	return stateReceiveCommands
}

func actionTransportError(_ context.Context, s *status) uint32 { return stateCloseSockets }
func actionQueryError(_ context.Context, s *status) uint32     { return statePublishStatus }

func actionCloseSockets(_ context.Context, s *status) uint32 {
	if s.eventsSub != nil {
		s.bus.Unsubscribe(s.eventsSub)
	}
	for _, sock := range []*transport.Socket{s.dataSock, s.cmdSock, s.statusSock, s.querySock} {
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
		{ID: stateReceiveCommands, Description: "receive_commands", Action: actionReceiveCommands},
		{ID: stateReceiveData, Description: "receive_data", Action: actionReceiveData},
		{ID: stateReceiveQuery, Description: "receive_query", Action: actionReceiveQuery},
		{ID: statePublishStatus, Description: "publish_status", Action: actionPublishStatus},
		{ID: stateTransportError, Description: "transport_error", Action: actionTransportError},
		{ID: stateQueryError, Description: "query_error", Action: actionQueryError},
		{ID: stateCloseSockets, Description: "close_sockets", Action: actionCloseSockets},
		{ID: stateDestroyContext, Description: "destroy_context", Action: actionDestroyContext},
		{ID: stateStop, Description: "stop", Action: actionStop},
	}
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	logLevel := flag.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flag.Parse()

	logger := abcdlog.NewFromLevelString(os.Stderr, "fifo", *logLevel)

	cfgPath, err := config.FindConfig(*configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	var cfg fifoConfig
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
		logger.Error("fifo stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("fifo stopped")
}
