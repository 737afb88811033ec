package bridge

import (
	"context"
	"log/slog"

	"abcd.dev/abcd/internal/events"
	"abcd.dev/abcd/internal/statemachine"
	"abcd.dev/abcd/internal/transport"
)

// State ids for wadi's graph (spec §4.11): create_context →
// create_sockets → bind/connect → receive_waveform ⇄ publish_json,
// with a 9xx error state and a clean shutdown tail.
const (
	StateCreateContext uint32 = iota + 1
	StateCreateSockets
	StateConnect
	StateReceiveWaveform
	StatePublishJSON

	StateTransportError

	StateCloseSockets
	StateDestroyContext
	StateStop
)

// Status is the mutable process state threaded through wadi's actions.
type Status struct {
	Module string
	Logger *slog.Logger
	Bus    *events.Bus

	InputSock  *transport.Socket
	OutputSock *transport.Socket

	InputEndpoint  string
	OutputEndpoint string

	NewSocket func(kind transport.Kind, endpoint string) (*transport.Socket, error)

	// pending holds every waveform decoded from one received frame by
	// receive_waveform, awaiting publish_json, which publishes them all
	// in one step, matching the "receive_waveform ⇄ publish_json"
	// alternation spec §4.11 describes.
	pending []JSONWaveform

	LastErr error
}

func (s *Status) publishEvent(kind string, data map[string]any) {
	if s.Bus == nil {
		return
	}
	s.Bus.Publish(events.Event{Source: s.Module, Kind: kind, Data: data})
}

func (s *Status) fail(err error) uint32 {
	s.LastErr = err
	s.publishEvent(events.KindError, map[string]any{"message": err.Error()})
	if s.Logger != nil {
		s.Logger.Error("wadi error", "error", err)
	}
	return StateTransportError
}

func actionCreateContext(_ context.Context, s *Status) uint32 {
	s.publishEvent(events.KindStarted, nil)
	return StateCreateSockets
}

func actionCreateSockets(ctx context.Context, s *Status) uint32 {
	in, err := s.NewSocket(transport.KindSub, s.InputEndpoint)
	if err != nil {
		return s.fail(err)
	}
	s.InputSock = in

	out, err := s.NewSocket(transport.KindPub, s.OutputEndpoint)
	if err != nil {
		return s.fail(err)
	}
	s.OutputSock = out
	return StateConnect
}

// actionConnect is a no-op pass-through: internal/transport's NewSub
// and NewPub fold the connect/bind step into socket construction, so
// there is nothing left to do once create_sockets succeeds.
func actionConnect(_ context.Context, s *Status) uint32 {
	return StateReceiveWaveform
}

func actionReceiveWaveform(_ context.Context, s *Status) uint32 {
	frame, ok, err := s.InputSock.ReceiveFramed(true)
	if err != nil {
		return s.fail(err)
	}
	if !ok {
		return StateReceiveWaveform
	}
	s.pending = Translate(frame.Payload)
	if len(s.pending) == 0 {
		return StateReceiveWaveform
	}
	return StatePublishJSON
}

func actionPublishJSON(_ context.Context, s *Status) uint32 {
	for _, w := range s.pending {
		if err := transport.SendJSON(s.OutputSock, "data_wadi_waveforms", w); err != nil {
			s.pending = nil
			return s.fail(err)
		}
	}
	s.pending = nil
	return StateReceiveWaveform
}

func actionTransportError(_ context.Context, s *Status) uint32 {
	return StateCloseSockets
}

func actionCloseSockets(_ context.Context, s *Status) uint32 {
	if s.InputSock != nil {
		s.InputSock.Close()
	}
	if s.OutputSock != nil {
		s.OutputSock.Close()
	}
	return StateDestroyContext
}

func actionDestroyContext(_ context.Context, s *Status) uint32 {
	return StateStop
}

func actionStop(_ context.Context, s *Status) uint32 {
	s.publishEvent(events.KindStopped, nil)
	return StateStop
}

// BuildStates returns wadi's full state table of plain action
// functions that receive *Status from Runtime.Run, the same pattern
// internal/digitizer.BuildStates uses.
func BuildStates() []statemachine.State[Status] {
	return []statemachine.State[Status]{
		{ID: StateCreateContext, Description: "create_context", Action: actionCreateContext},
		{ID: StateCreateSockets, Description: "create_sockets", Action: actionCreateSockets},
		{ID: StateConnect, Description: "connect", Action: actionConnect},
		{ID: StateReceiveWaveform, Description: "receive_waveform", Action: actionReceiveWaveform},
		{ID: StatePublishJSON, Description: "publish_json", Action: actionPublishJSON},

		{ID: StateTransportError, Description: "transport_error", Action: actionTransportError},

		{ID: StateCloseSockets, Description: "close_sockets", Action: actionCloseSockets},
		{ID: StateDestroyContext, Description: "destroy_context", Action: actionDestroyContext},
		{ID: StateStop, Description: "stop", Action: actionStop},
	}
}
