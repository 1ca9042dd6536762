// Package event defines the learning events observed by the terminal: command
// executions, AI-assistant interactions and errors. Events are immutable once
// recorded and are journaled as tagged JSON objects, one per line.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Type is the journal tag of an event.
type Type string

const (
	TypeCommand     Type = "Command"
	TypeInteraction Type = "Interaction"
	TypeError       Type = "Error"
)

// ErrUnknownType is returned when decoding an event with an unrecognized tag.
var ErrUnknownType = errors.New("unknown event type")

// Event is the closed set of learning events. Only the types in this package
// implement it; consumers switch exhaustively over *CommandEvent,
// *InteractionEvent and *ErrorEvent.
type Event interface {
	Type() Type
	Time() time.Time
	sealed()
}

// CommandEvent records one executed command.
type CommandEvent struct {
	Command    string    `json:"command"`
	Output     string    `json:"output,omitempty"`
	ExitCode   int       `json:"exit_code"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
	WorkingDir string    `json:"working_dir,omitempty"`
}

// InteractionEvent records one question/answer exchange with the assistant.
type InteractionEvent struct {
	Query      string    `json:"query"`
	Response   string    `json:"response"`
	WasHelpful bool      `json:"was_helpful"`
	Timestamp  time.Time `json:"timestamp"`
}

// ErrorEvent records an error surfaced to the user.
type ErrorEvent struct {
	Error     string    `json:"error"`
	Command   string    `json:"command,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (*CommandEvent) Type() Type     { return TypeCommand }
func (*InteractionEvent) Type() Type { return TypeInteraction }
func (*ErrorEvent) Type() Type       { return TypeError }

func (e *CommandEvent) Time() time.Time     { return e.Timestamp }
func (e *InteractionEvent) Time() time.Time { return e.Timestamp }
func (e *ErrorEvent) Time() time.Time       { return e.Timestamp }

func (*CommandEvent) sealed()     {}
func (*InteractionEvent) sealed() {}
func (*ErrorEvent) sealed()       {}

// Succeeded reports whether the command exited with status zero.
func (e *CommandEvent) Succeeded() bool { return e.ExitCode == 0 }

// Marshal encodes an event as a flat JSON object with a "type" tag, e.g.
// {"type":"Command","command":"ls",...}.
func Marshal(e Event) ([]byte, error) {
	var body any
	switch ev := e.(type) {
	case *CommandEvent:
		body = struct {
			Type Type `json:"type"`
			*CommandEvent
		}{TypeCommand, ev}
	case *InteractionEvent:
		body = struct {
			Type Type `json:"type"`
			*InteractionEvent
		}{TypeInteraction, ev}
	case *ErrorEvent:
		body = struct {
			Type Type `json:"type"`
			*ErrorEvent
		}{TypeError, ev}
	default:
		return nil, fmt.Errorf("marshal %T: %w", e, ErrUnknownType)
	}
	return json.Marshal(body)
}

// Unmarshal decodes a tagged JSON object produced by Marshal.
func Unmarshal(data []byte) (Event, error) {
	var tag struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, err
	}

	var ev Event
	switch tag.Type {
	case TypeCommand:
		ev = &CommandEvent{}
	case TypeInteraction:
		ev = &InteractionEvent{}
	case TypeError:
		ev = &ErrorEvent{}
	default:
		return nil, fmt.Errorf("%q: %w", tag.Type, ErrUnknownType)
	}
	if err := json.Unmarshal(data, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Commands returns the command events in events, preserving order.
func Commands(events []Event) []*CommandEvent {
	var cmds []*CommandEvent
	for _, e := range events {
		if c, ok := e.(*CommandEvent); ok {
			cmds = append(cmds, c)
		}
	}
	return cmds
}
