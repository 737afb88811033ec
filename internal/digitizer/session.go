package digitizer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"abcd.dev/abcd/internal/events"
	"abcd.dev/abcd/internal/statemachine"
	"abcd.dev/abcd/internal/transport"
)

// State ids for the digitizer session graph of spec §4.9:
// create_context → create_sockets → bind → read_config →
// create_digitizer → configure_digitizer → allocate_memory →
// publish_status ⇄ receive_commands, with an acquisition inner loop
// and a restart sub-graph for acquisition errors.
const (
	StateCreateContext uint32 = iota + 1
	StateCreateSockets
	StateBind
	StateReadConfig
	StateCreateDigitizer
	StateConfigureDigitizer
	StateAllocateMemory
	StatePublishStatus
	StateReceiveCommands

	StateStartAcquisition
	StateAcquisitionReceiveCommands
	StateAddToBuffer
	StatePublishEvents
	StateAcquisitionPublishStatus

	StateStopPublishEvents
	StateStopAcquisition

	StateRestartDestroyDigitizer
	StateRestartCreateDigitizer

	StateCommunicationError
	StateConfigureError
	StateDigitizerError
	StateAcquisitionError
	StateParseError

	StateCloseSockets
	StateDestroyContext
	StateStop
)

// Config is what read_config populates a Status from.
type Config struct {
	Channels        []ChannelConfig
	EventsBufferMax int
	PublishInterval time.Duration
	StatusInterval  time.Duration
}

// Status is the mutable process state threaded through every action of
// a digitizer session's state graph (spec §4.2's "status value passed
// by mutable reference").
type Status struct {
	Module string
	Logger *slog.Logger
	Bus    *events.Bus

	Device      Device
	DataSock    *transport.Socket
	StatusSock  *transport.Socket
	CommandSock *transport.Socket

	DataEndpoint    string
	StatusEndpoint  string
	CommandEndpoint string

	NewSocket func(kind transport.Kind, endpoint string) (*transport.Socket, error)
	LoadConfig func() (Config, error)

	Config Config
	Buf    *Buffer

	MsgID int

	LastStatusPublish time.Time
	StatusInterval    time.Duration

	Acquiring bool
	LastErr   error

	nowFunc func() time.Time
}

func (s *Status) now() time.Time {
	if s.nowFunc != nil {
		return s.nowFunc()
	}
	return time.Now()
}

func (s *Status) publishEvent(kind string, data map[string]any) {
	if s.Bus == nil {
		return
	}
	s.Bus.Publish(events.Event{Timestamp: s.now(), Source: s.Module, Kind: kind, Data: data})
}

func (s *Status) fail(kind string, err error) {
	s.LastErr = err
	s.publishEvent(events.KindError, map[string]any{"message": err.Error()})
	if s.Logger != nil {
		s.Logger.Error("digitizer error", "kind", kind, "error", err)
	}
}

// BuildStates returns the full digitizer state table described above.
// The actions are plain functions; the state-machine runtime is generic
// over the status type and hands every action the same *Status the
// caller constructs and passes to Runtime.Run.
func BuildStates() []statemachine.State[Status] {
	return []statemachine.State[Status]{
		{ID: StateCreateContext, Description: "create_context", Action: actionCreateContext},
		{ID: StateCreateSockets, Description: "create_sockets", Action: actionCreateSockets},
		{ID: StateBind, Description: "bind", Action: actionBind},
		{ID: StateReadConfig, Description: "read_config", Action: actionReadConfig},
		{ID: StateCreateDigitizer, Description: "create_digitizer", Action: actionCreateDigitizer},
		{ID: StateConfigureDigitizer, Description: "configure_digitizer", Action: actionConfigureDigitizer},
		{ID: StateAllocateMemory, Description: "allocate_memory", Action: actionAllocateMemory},
		{ID: StatePublishStatus, Description: "publish_status", Action: actionPublishStatus},
		{ID: StateReceiveCommands, Description: "receive_commands", Action: actionReceiveCommands},

		{ID: StateStartAcquisition, Description: "start_acquisition", Action: actionStartAcquisition},
		{ID: StateAcquisitionReceiveCommands, Description: "acquisition_receive_commands", Action: actionAcquisitionReceiveCommands},
		{ID: StateAddToBuffer, Description: "add_to_buffer", Action: actionAddToBuffer},
		{ID: StatePublishEvents, Description: "publish_events", Action: actionPublishEvents},
		{ID: StateAcquisitionPublishStatus, Description: "acquisition_publish_status", Action: actionAcquisitionPublishStatus},

		{ID: StateStopPublishEvents, Description: "stop_publish_events", Action: actionStopPublishEvents},
		{ID: StateStopAcquisition, Description: "stop_acquisition", Action: actionStopAcquisition},

		{ID: StateRestartDestroyDigitizer, Description: "restart_destroy_digitizer", Action: actionRestartDestroyDigitizer},
		{ID: StateRestartCreateDigitizer, Description: "restart_create_digitizer", Action: actionRestartCreateDigitizer},

		{ID: StateCommunicationError, Description: "communication_error", Action: makeErrorAction("communication_error", StateCloseSockets)},
		{ID: StateConfigureError, Description: "configure_error", Action: makeErrorAction("configure_error", StateRestartDestroyDigitizer)},
		{ID: StateDigitizerError, Description: "digitizer_error", Action: makeErrorAction("digitizer_error", StateRestartDestroyDigitizer)},
		{ID: StateAcquisitionError, Description: "acquisition_error", Action: makeErrorAction("acquisition_error", StateRestartDestroyDigitizer)},
		{ID: StateParseError, Description: "parse_error", Action: makeErrorAction("parse_error", StateReceiveCommands)},

		{ID: StateCloseSockets, Description: "close_sockets", Action: actionCloseSockets},
		{ID: StateDestroyContext, Description: "destroy_context", Action: actionDestroyContext},
		{ID: StateStop, Description: "stop", Action: actionStop},
	}
}
