package agentloop

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventKind names one step of a session's lifecycle.
type EventKind string

// Session lifecycle.
const (
	EventSessionStart EventKind = "session_start"
	EventSessionEnd   EventKind = "session_end"
	EventUserInput    EventKind = "user_input"
)

// One turn: optional compaction, then rounds of model call and actions.
const (
	EventSummarizationStart EventKind = "summarization_start"
	EventSummarizationEnd   EventKind = "summarization_end"
	EventModelCallStart     EventKind = "model_call_start"
	EventModelCallEnd       EventKind = "model_call_end"
	EventActionStart        EventKind = "action_start"
	EventActionEnd          EventKind = "action_end"
)

// Conditions worth surfacing to the host.
const (
	EventTurnLimit     EventKind = "turn_limit"
	EventLoopDetection EventKind = "loop_detection"
	EventWarning       EventKind = "warning"
	EventError         EventKind = "error"
)

const defaultEventBuffer = 256

// SessionEvent is one observation of the loop, delivered on Session.Events.
type SessionEvent struct {
	Kind      EventKind              `json:"kind"`
	Timestamp time.Time              `json:"timestamp"`
	SessionID string                 `json:"session_id"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventEmitter publishes events on a buffered channel without ever blocking
// the loop: when the buffer is full the event is counted and discarded.
type EventEmitter struct {
	sessionID string
	ch        chan SessionEvent
	dropped   atomic.Int64

	mu     sync.Mutex
	closed bool
}

// NewEventEmitter creates an emitter. A non-positive bufferSize selects the
// default of 256.
func NewEventEmitter(sessionID string, bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = defaultEventBuffer
	}
	return &EventEmitter{sessionID: sessionID, ch: make(chan SessionEvent, bufferSize)}
}

// Emit publishes an event. After Close it does nothing.
func (e *EventEmitter) Emit(kind EventKind, data map[string]interface{}) {
	ev := SessionEvent{Kind: kind, Timestamp: time.Now(), SessionID: e.sessionID, Data: data}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	select {
	case e.ch <- ev:
	default:
		e.dropped.Add(1)
	}
}

// Dropped reports how many events were discarded on a full buffer.
func (e *EventEmitter) Dropped() int { return int(e.dropped.Load()) }

// Events returns the receive side of the channel.
func (e *EventEmitter) Events() <-chan SessionEvent { return e.ch }

// Close closes the channel. Further calls are no-ops.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.ch)
}
