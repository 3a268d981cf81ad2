// Package live defines the bidirectional conversational transport used by a
// voice session: microphone audio and camera frames go up, synthesized speech,
// interruption notices and tool calls come down.
//
// A [Session] delivers everything it receives on a single ordered [Event]
// channel, so speech chunks reach the consumer in arrival order. The channel is
// closed when the session ends; a remote close or failure is announced by one
// final EventClose or EventError before that. Locally closed sessions close the
// channel without a terminal event.
//
// Implementations live in sub-packages (gemini, openai) and must be safe for
// concurrent use.
package live

import (
	"context"
	"errors"

	"github.com/quilang-hardware/hardy/pkg/audio"
	"github.com/quilang-hardware/hardy/pkg/video"
)

var (
	// ErrSessionClosed is returned by Send methods after the session has ended.
	ErrSessionClosed = errors.New("live: session closed")

	// ErrUnsupported is returned when the transport cannot carry a kind of input.
	ErrUnsupported = errors.New("live: not supported by transport")
)

// ToolDefinition describes a tool offered to the agent.
type ToolDefinition struct {
	Name        string
	Description string

	// Parameters is a JSON Schema object describing the arguments. Nil means
	// the tool takes no arguments.
	Parameters map[string]any
}

// ToolCall is one invocation requested by the agent.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult answers exactly one ToolCall, correlated by ID.
type ToolResult struct {
	ID      string
	Name    string
	Payload map[string]any
}

// Config is the initial configuration of a session.
type Config struct {
	// Model overrides the provider's default model when non-empty.
	Model string

	// Voice is the prebuilt voice name used for speech output.
	Voice string

	// Instructions is the system prompt that defines the assistant persona.
	Instructions string

	// Tools is the full tool schema offered for the session.
	Tools []ToolDefinition
}

// EventType classifies an [Event].
type EventType int

const (
	// EventOpen is delivered once the remote end has acknowledged the session.
	EventOpen EventType = iota

	// EventAudio carries one chunk of 24 kHz mono PCM16 speech.
	EventAudio

	// EventInterrupted reports that the agent stopped speaking because the user
	// started talking.
	EventInterrupted

	// EventToolCall carries one or more tool invocations.
	EventToolCall

	// EventClose reports a clean remote close. Terminal.
	EventClose

	// EventError reports a transport or protocol failure. Terminal.
	EventError
)

// String returns the human-readable name of the event type.
func (t EventType) String() string {
	switch t {
	case EventOpen:
		return "open"
	case EventAudio:
		return "audio"
	case EventInterrupted:
		return "interrupted"
	case EventToolCall:
		return "tool_call"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one message from the transport.
type Event struct {
	Type EventType

	// Audio is set for EventAudio.
	Audio []byte

	// ToolCalls is set for EventToolCall.
	ToolCalls []ToolCall

	// Err is set for EventError.
	Err error
}

// Session is an open conversational session.
type Session interface {
	// Events returns the ordered event stream. The same channel is returned on
	// every call.
	Events() <-chan Event

	// SendAudio streams one block of microphone audio.
	SendAudio(frame audio.AudioFrame) error

	// SendVideoFrame streams one still frame. Transports without vision return
	// ErrUnsupported.
	SendVideoFrame(frame video.Frame) error

	// SendToolResult answers a ToolCall.
	SendToolResult(result ToolResult) error

	// Close ends the session and releases the connection. Idempotent.
	Close() error
}

// Provider opens sessions against a remote conversational agent.
type Provider interface {
	// Open dials the agent and sends cfg. It returns once the request is on the
	// wire; EventOpen follows on the session's event stream. ctx bounds the
	// dial only.
	Open(ctx context.Context, cfg Config) (Session, error)

	// Name identifies the provider in logs and metrics.
	Name() string
}
