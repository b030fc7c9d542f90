package ipc

import (
	"encoding/json"

	"focusift/internal/event"
	"focusift/internal/feedback"
)

const SocketPath = "/tmp/focusift.sock"

// Command represents a command sent over the socket
type Command struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// Response represents a response sent back over the socket
type Response struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewCommand encodes args into a Command. A nil args leaves Args empty.
func NewCommand(name string, args interface{}) (Command, error) {
	cmd := Command{Name: name}
	if args == nil {
		return cmd, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return cmd, err
	}
	cmd.Args = raw
	return cmd, nil
}

// DecodeArgs unmarshals the command arguments into out. Missing args leave
// out untouched.
func (c Command) DecodeArgs(out interface{}) error {
	if len(c.Args) == 0 {
		return nil
	}
	return json.Unmarshal(c.Args, out)
}

// DecodeData unmarshals the response payload into out.
func (r Response) DecodeData(out interface{}) error {
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, out)
}

// --- Command Argument Structs ---

type StartSessionArgs struct {
	Minutes string `json:"minutes"` // raw user input, validated by the daemon
}

// StopSessionArgs - No arguments needed

type SetVisibilityArgs struct {
	Hidden bool `json:"hidden"`
}

type RecordFeedbackArgs struct {
	Technique string `json:"technique"`
	Liked     bool   `json:"liked"`
}

type ListTechniquesArgs struct {
	Category string `json:"category,omitempty"`
	Level    string `json:"level,omitempty"`
}

// --- Command Names (Constants) ---

const (
	CmdPing           = "ping"
	CmdStartSession   = "start_session"
	CmdStopSession    = "stop_session"
	CmdSetVisibility  = "set_visibility"
	CmdGetStatus      = "get_status"
	CmdRecordFeedback = "record_feedback"
	CmdListTechniques = "list_techniques"
	CmdGetFocus       = "get_focus"
)

// --- Response Data ---

type StatusData = event.Status

type FeedbackData struct {
	Technique string         `json:"technique"`
	Entry     feedback.Entry `json:"entry"`
}

// FocusData is the foreground window as the visibility source sees it.
type FocusData struct {
	App    string `json:"app"`
	Title  string `json:"title"`
	Hidden bool   `json:"hidden"`
}
