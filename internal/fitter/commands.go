package fitter

import (
	"encoding/json"
	"fmt"
)

// Command is the JSON shape every command-socket message carries
// (spec §6): `{msg_ID, command, arguments?}`. califo's command set is
// just lifecycle control; channel configuration is read once at
// startup (spec §6 lists no califo-specific runtime command).
type Command struct {
	MsgID     int             `json:"msg_ID"`
	Command   string          `json:"command"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Dispatch decodes one command. quit reports whether the process
// should unwind toward close_sockets/destroy_context.
func Dispatch(raw []byte) (quit bool, err error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return false, fmt.Errorf("califo: decode command: %w", err)
	}
	switch cmd.Command {
	case "quit":
		return true, nil
	default:
		return false, fmt.Errorf("califo: unrecognized command %q", cmd.Command)
	}
}
