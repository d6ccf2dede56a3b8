package store_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"pharmadeal-chat/internal/domain/chat"
	"pharmadeal-chat/internal/transport"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory Transport. Tests inject server pushes
// with Fire and inspect what the store emitted.
type fakeTransport struct {
	mu       sync.Mutex
	handlers map[string]transport.Handler
	emitted  []emittedEvent
	closed   bool
}

type emittedEvent struct {
	Event   string
	Payload interface{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]transport.Handler)}
}

func (f *fakeTransport) Connect(context.Context) error { return nil }

func (f *fakeTransport) Emit(event string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = append(f.emitted, emittedEvent{Event: event, Payload: payload})
	return nil
}

func (f *fakeTransport) On(event string, handler transport.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = handler
}

func (f *fakeTransport) Off(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, event)
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Fire delivers a server event to the registered handler, like the
// read pump would.
func (f *fakeTransport) Fire(t *testing.T, event string, payload interface{}) {
	t.Helper()
	f.mu.Lock()
	handler := f.handlers[event]
	f.mu.Unlock()
	if handler == nil {
		return
	}

	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		raw = data
	}
	handler(raw)
}

func (f *fakeTransport) emittedNamed(event string) []emittedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emittedEvent
	for _, e := range f.emitted {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeTransport) handlerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

// MockHistory is a testify mock of the history client.
type MockHistory struct {
	mock.Mock
}

func (m *MockHistory) ResolveRoom(ctx context.Context, user1, user2, targetID, targetType string) (string, error) {
	args := m.Called(user1, user2, targetID, targetType)
	return args.String(0), args.Error(1)
}

func (m *MockHistory) FetchHistory(ctx context.Context, roomID string) ([]chat.Message, error) {
	args := m.Called(roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]chat.Message), args.Error(1)
}

func (m *MockHistory) FetchUserRooms(ctx context.Context, userID string) ([]chat.RoomRecord, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]chat.RoomRecord), args.Error(1)
}

func (m *MockHistory) FetchRoom(ctx context.Context, roomID string) (*chat.RoomDetail, error) {
	args := m.Called(roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chat.RoomDetail), args.Error(1)
}
