package spectrum

import (
	"encoding/json"
	"fmt"
)

// Command is the JSON shape every command-socket message carries
// (spec §6): `{msg_ID, command, arguments?}`.
type Command struct {
	MsgID     int             `json:"msg_ID"`
	Command   string          `json:"command"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ChannelSelector decodes either a single channel id or the literal
// string "all", the shape of reset{channel} arguments in spec §4.7.
type ChannelSelector struct {
	All     bool
	Channel int
}

// UnmarshalJSON accepts either a JSON number or the string "all".
func (s *ChannelSelector) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		if asString != "all" {
			return fmt.Errorf("spectrum: channel selector %q is not \"all\"", asString)
		}
		s.All = true
		return nil
	}
	var asInt int
	if err := json.Unmarshal(data, &asInt); err != nil {
		return fmt.Errorf("spectrum: channel selector must be an int or \"all\": %w", err)
	}
	s.Channel = asInt
	return nil
}

// ResetArguments is the `arguments` shape for a `reset` command.
type ResetArguments struct {
	Channel ChannelSelector `json:"channel"`
}

// ReconfigureArguments is the `arguments` shape for a `reconfigure`
// command.
type ReconfigureArguments struct {
	Config ChannelShape `json:"config"`
}

// Dispatch decodes one command and applies it to b. quit reports
// whether the command was "quit" (the caller is responsible for
// unwinding its state machine toward close_sockets/destroy_context).
func Dispatch(b *Builder, raw []byte) (quit bool, err error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return false, fmt.Errorf("spectrum: decode command: %w", err)
	}

	switch cmd.Command {
	case "reset":
		var args ResetArguments
		if len(cmd.Arguments) > 0 {
			if err := json.Unmarshal(cmd.Arguments, &args); err != nil {
				return false, fmt.Errorf("spectrum: decode reset arguments: %w", err)
			}
		}
		if args.Channel.All {
			b.ResetAll()
		} else {
			b.ResetChannel(args.Channel.Channel)
		}
		return false, nil

	case "reconfigure":
		var args ReconfigureArguments
		if err := json.Unmarshal(cmd.Arguments, &args); err != nil {
			return false, fmt.Errorf("spectrum: decode reconfigure arguments: %w", err)
		}
		b.Reconfigure(args.Config)
		return false, nil

	case "quit":
		return true, nil

	default:
		return false, fmt.Errorf("spectrum: unrecognized command %q", cmd.Command)
	}
}
