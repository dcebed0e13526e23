package xmodem

import (
	"io"
	"time"
)

// Callbacks provides hooks for XMODEM transfer events.
// All callbacks are optional - nil callbacks use default behavior.
type Callbacks struct {
	// OnTransferStart is called once the sender has answered the handshake.
	OnTransferStart func(name string)

	// OnProgress is called periodically while blocks are accepted.
	// transferred: bytes delivered to the sink so far
	// total: always 0, XMODEM does not announce a size
	// rate: transfer rate in bytes per second
	OnProgress func(name string, transferred, total int64, rate float64)

	// OnTransferComplete is called after EOT has been acknowledged.
	OnTransferComplete func(name string, bytesTransferred int64, duration time.Duration)

	// OnError is called when a transfer ends with an error.
	// context: description of where the error occurred
	OnError func(err error, context string)

	// OnEvent is called for protocol events (debugging/logging).
	OnEvent func(event Event)

	// OnFileCreate is called when creating the destination file.
	// If nil, uses os.Create.
	OnFileCreate func(filename string) (io.Writer, error)
}

// Event represents a protocol event for logging/debugging.
type Event struct {
	Type      EventType
	Message   string
	Block     byte
	Timestamp time.Time
}

// EventType categorizes protocol events.
type EventType int

const (
	EventHandshake EventType = iota
	EventControlSent
	EventPacketAccepted
	EventPacketRejected
	EventNoise
	EventComplete
	EventCancelled
)

func (t EventType) String() string {
	switch t {
	case EventHandshake:
		return "handshake"
	case EventControlSent:
		return "control sent"
	case EventPacketAccepted:
		return "packet accepted"
	case EventPacketRejected:
		return "packet rejected"
	case EventNoise:
		return "noise"
	case EventComplete:
		return "complete"
	case EventCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// defaultCallbacks returns a set of callbacks with no-op implementations.
func defaultCallbacks() *Callbacks {
	return &Callbacks{
		OnTransferStart:    func(string) {},
		OnProgress:         func(string, int64, int64, float64) {},
		OnTransferComplete: func(string, int64, time.Duration) {},
		OnError:            func(error, string) {},
		OnEvent:            func(Event) {},
		OnFileCreate:       nil, // Use default
	}
}

// mergeCallbacks merges user callbacks with defaults.
// User callbacks override defaults, nil callbacks use defaults.
func mergeCallbacks(user *Callbacks) *Callbacks {
	result := defaultCallbacks()
	if user == nil {
		return result
	}
	if user.OnTransferStart != nil {
		result.OnTransferStart = user.OnTransferStart
	}
	if user.OnProgress != nil {
		result.OnProgress = user.OnProgress
	}
	if user.OnTransferComplete != nil {
		result.OnTransferComplete = user.OnTransferComplete
	}
	if user.OnError != nil {
		result.OnError = user.OnError
	}
	if user.OnEvent != nil {
		result.OnEvent = user.OnEvent
	}
	result.OnFileCreate = user.OnFileCreate
	return result
}
