package digitizer

import (
	"context"
	"encoding/json"
	"fmt"

	"abcd.dev/abcd/internal/events"
	"abcd.dev/abcd/internal/transport"
)

// actionCreateContext corresponds to spec §4.9's create_context state.
// A zmq4 context is implicit in the context.Context already threaded
// through every action by statemachine.Runtime, so this state only
// marks process entry and moves on.
func actionCreateContext(_ context.Context, s *Status) uint32 {
	s.publishEvent(events.KindStarted, nil)
	return StateCreateSockets
}

func actionCreateSockets(_ context.Context, s *Status) uint32 {
	if s.NewSocket == nil {
		s.fail("transport", fmt.Errorf("digitizer: no socket constructor configured"))
		return StateCommunicationError
	}

	dataSock, err := s.NewSocket(transport.KindPub, s.DataEndpoint)
	if err != nil {
		s.fail("transport", err)
		return StateCommunicationError
	}
	statusSock, err := s.NewSocket(transport.KindPub, s.StatusEndpoint)
	if err != nil {
		dataSock.Close()
		s.fail("transport", err)
		return StateCommunicationError
	}
	cmdSock, err := s.NewSocket(transport.KindPull, s.CommandEndpoint)
	if err != nil {
		dataSock.Close()
		statusSock.Close()
		s.fail("transport", err)
		return StateCommunicationError
	}

	s.DataSock = dataSock
	s.StatusSock = statusSock
	s.CommandSock = cmdSock
	return StateBind
}

// actionBind is a no-op pass-through: NewPub/NewPull already bind
// their endpoint at construction time (internal/transport), so "bind"
// here only advances the graph, matching how the pub/pull constructors
// fold create+bind into one call.
func actionBind(_ context.Context, s *Status) uint32 {
	return StateReadConfig
}

func actionReadConfig(_ context.Context, s *Status) uint32 {
	if s.LoadConfig == nil {
		s.fail("configuration", fmt.Errorf("digitizer: no config loader configured"))
		return StateConfigureError
	}
	cfg, err := s.LoadConfig()
	if err != nil {
		s.fail("configuration", err)
		return StateConfigureError
	}
	s.Config = cfg
	s.StatusInterval = cfg.StatusInterval
	return StateCreateDigitizer
}

func actionCreateDigitizer(ctx context.Context, s *Status) uint32 {
	if err := s.Device.Open(ctx); err != nil {
		s.fail("device", err)
		return StateDigitizerError
	}
	return StateConfigureDigitizer
}

func actionConfigureDigitizer(ctx context.Context, s *Status) uint32 {
	if err := s.Device.ConfigureChannels(ctx, s.Config.Channels); err != nil {
		s.fail("configuration", err)
		return StateConfigureError
	}
	return StateAllocateMemory
}

func actionAllocateMemory(_ context.Context, s *Status) uint32 {
	s.Buf = NewBuffer(s.Config.EventsBufferMax, s.Config.PublishInterval, s.now())
	return StatePublishStatus
}

func actionPublishStatus(_ context.Context, s *Status) uint32 {
	if err := publishStatusFrame(s); err != nil {
		s.fail("transport", err)
		return StateCommunicationError
	}
	return StateReceiveCommands
}

func publishStatusFrame(s *Status) error {
	s.MsgID++
	payload := map[string]any{
		"module":  s.Module,
		"msg_ID":  s.MsgID,
		"acquiring": s.Acquiring,
	}
	if err := transport.SendJSON(s.StatusSock, "status_"+s.Module, payload); err != nil {
		return err
	}
	s.LastStatusPublish = s.now()
	return nil
}

func actionReceiveCommands(_ context.Context, s *Status) uint32 {
	var cmd Command
	ok, err := transport.ReceiveJSON(s.CommandSock, &cmd)
	if err != nil {
		s.fail("parse", err)
		return StateParseError
	}
	if !ok {
		if s.now().Sub(s.LastStatusPublish) >= s.StatusInterval {
			return StatePublishStatus
		}
		return StateReceiveCommands
	}

	switch cmd.Command {
	case "start":
		s.Acquiring = true
		return StateStartAcquisition
	case "reconfigure":
		return StateReadConfig
	case "off", "quit":
		return StateCloseSockets
	default:
		return StateReceiveCommands
	}
}

func actionStartAcquisition(ctx context.Context, s *Status) uint32 {
	if err := s.Device.Start(ctx); err != nil {
		s.fail("device", err)
		return StateAcquisitionError
	}
	return StateAcquisitionReceiveCommands
}

func actionAcquisitionReceiveCommands(_ context.Context, s *Status) uint32 {
	var cmd Command
	ok, err := transport.ReceiveJSON(s.CommandSock, &cmd)
	if err != nil {
		s.fail("parse", err)
		return StateParseError
	}
	if ok {
		switch cmd.Command {
		case "stop":
			return StateStopPublishEvents
		case "quit":
			return StateStopPublishEvents
		}
	}
	return StateAddToBuffer
}

func actionAddToBuffer(ctx context.Context, s *Status) uint32 {
	ready, err := s.Device.Poll(ctx)
	if err != nil {
		s.fail("acquisition", err)
		return StateAcquisitionError
	}
	if ready {
		raw, err := s.Device.FetchSamples(ctx)
		if err != nil {
			s.fail("acquisition", err)
			return StateAcquisitionError
		}
		s.Buf.Append(ConvertCapture(raw))
	}

	if s.Buf.ShouldPublish() {
		return StatePublishEvents
	}
	return StateAcquisitionPublishStatus
}

func actionPublishEvents(_ context.Context, s *Status) uint32 {
	payload := s.Buf.Drain()
	topic := transport.BuildDataTopic("data_abcd_waveforms", 0, len(payload))
	if err := s.DataSock.SendFramed(topic, payload); err != nil {
		s.fail("transport", err)
		return StateCommunicationError
	}
	return StateAcquisitionPublishStatus
}

func actionAcquisitionPublishStatus(_ context.Context, s *Status) uint32 {
	if s.now().Sub(s.LastStatusPublish) >= s.StatusInterval {
		if err := publishStatusFrame(s); err != nil {
			s.fail("transport", err)
			return StateCommunicationError
		}
	}
	return StateAcquisitionReceiveCommands
}

func actionStopPublishEvents(_ context.Context, s *Status) uint32 {
	if s.Buf.Len() > 0 {
		payload := s.Buf.Drain()
		topic := transport.BuildDataTopic("data_abcd_waveforms", 0, len(payload))
		_ = s.DataSock.SendFramed(topic, payload) // best-effort final flush
	}
	return StateStopAcquisition
}

func actionStopAcquisition(ctx context.Context, s *Status) uint32 {
	s.Acquiring = false
	s.publishEvent(events.KindStopped, map[string]any{"phase": "acquisition"})
	return StateReceiveCommands
}

// actionRestartDestroyDigitizer and actionRestartCreateDigitizer
// implement spec §4.9's "restart sub-graph": destroy and recreate the
// device without losing the transport context, per §7's recovery
// policy for acquisition errors.
func actionRestartDestroyDigitizer(ctx context.Context, s *Status) uint32 {
	_ = s.Device.Close(ctx)
	return StateRestartCreateDigitizer
}

func actionRestartCreateDigitizer(ctx context.Context, s *Status) uint32 {
	if err := s.Device.Open(ctx); err != nil {
		s.fail("device", err)
		return StateDigitizerError
	}
	if err := s.Device.ConfigureChannels(ctx, s.Config.Channels); err != nil {
		s.fail("configuration", err)
		return StateConfigureError
	}
	return StateReceiveCommands
}

// makeErrorAction builds a 9xx error-state action: publish an error
// event under kind, then route to next, per spec §7's "every error
// transition emits an error event ... before returning."
func makeErrorAction(kind string, next uint32) func(context.Context, *Status) uint32 {
	return func(_ context.Context, s *Status) uint32 {
		if s.LastErr != nil {
			s.publishEvent(events.KindError, map[string]any{"kind": kind, "message": s.LastErr.Error()})
		}
		return next
	}
}

func actionCloseSockets(_ context.Context, s *Status) uint32 {
	if s.DataSock != nil {
		s.DataSock.Close()
	}
	if s.StatusSock != nil {
		s.StatusSock.Close()
	}
	if s.CommandSock != nil {
		s.CommandSock.Close()
	}
	return StateDestroyContext
}

func actionDestroyContext(ctx context.Context, s *Status) uint32 {
	if s.Device != nil {
		_ = s.Device.Close(ctx)
	}
	return StateStop
}

func actionStop(_ context.Context, s *Status) uint32 {
	s.publishEvent(events.KindStopped, map[string]any{"phase": "process"})
	return StateStop
}

// Command mirrors spec §6's command JSON shape for digitizer modules.
type Command struct {
	MsgID     int             `json:"msg_ID"`
	Command   string          `json:"command"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}
