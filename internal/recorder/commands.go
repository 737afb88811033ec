package recorder

import (
	"encoding/json"
	"fmt"
)

// Command is the JSON shape every command-socket message carries
// (spec §6).
type Command struct {
	MsgID     int             `json:"msg_ID"`
	Command   string          `json:"command"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// startArguments is the `arguments` shape for dasa's `start` command.
type startArguments struct {
	FileName string `json:"file_name"`
	Enable   struct {
		Events    bool `json:"events"`
		Waveforms bool `json:"waveforms"`
		Raw       bool `json:"raw"`
	} `json:"enable"`
}

// Action reports what Dispatch decided.
type Action int

const (
	ActionNone Action = iota
	ActionStart
	ActionStop
	ActionQuit
)

// Dispatch decodes one command. For "start" it also returns the file
// name and enabled streams; callers apply the decision by calling
// Recorder.Start/Stop themselves (Dispatch does not hold a *Recorder
// so it stays test-friendly without a running session).
func Dispatch(raw []byte) (action Action, fileName string, enable Enable, err error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return ActionNone, "", Enable{}, fmt.Errorf("recorder: decode command: %w", err)
	}

	switch cmd.Command {
	case "start":
		var args startArguments
		if err := json.Unmarshal(cmd.Arguments, &args); err != nil {
			return ActionNone, "", Enable{}, fmt.Errorf("recorder: decode start arguments: %w", err)
		}
		return ActionStart, args.FileName, Enable{
			Events:    args.Enable.Events,
			Waveforms: args.Enable.Waveforms,
			Raw:       args.Enable.Raw,
		}, nil

	case "stop":
		return ActionStop, "", Enable{}, nil

	case "quit":
		return ActionQuit, "", Enable{}, nil

	default:
		return ActionNone, "", Enable{}, fmt.Errorf("recorder: unrecognized command %q", cmd.Command)
	}
}
