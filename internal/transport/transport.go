package transport

import (
	"context"
	"encoding/json"
)

// Handler receives a decoded event payload. Handlers run on the
// transport's read goroutine and must not block.
type Handler func(payload json.RawMessage)

// Transport is the single long-lived bidirectional connection the chat
// core talks through. Registration is idempotent: On replaces any
// handler already registered for the event.
type Transport interface {
	Connect(ctx context.Context) error
	Emit(event string, payload interface{}) error
	On(event string, handler Handler)
	Off(event string)
	Close() error
}

// Envelope is the wire frame: a named event plus its JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}
