// Package store is the single authoritative holder of client chat
// state. It reconciles events arriving over the transport with
// REST-fetched history, applies optimistic updates for user actions,
// and persists a snapshot on every mutation. All chat state flows
// through this store; the presentation layer only reads it.
package store

import (
	"context"
	"sync"

	"pharmadeal-chat/internal/cache"
	"pharmadeal-chat/internal/domain/chat"
	"pharmadeal-chat/internal/history"
	"pharmadeal-chat/internal/transport"
	pharma_errors "pharmadeal-chat/pkg/errors"

	"go.uber.org/zap"
)

// Store synchronizes rooms, per-room message lists and unread counters
// against the messaging server. Mutations are serialized by one mutex,
// standing in for the UI thread of the original event model: handler
// callbacks and user-initiated operations may interleave, but never
// race.
type Store struct {
	mu sync.Mutex

	selfID    string
	transport transport.Transport
	history   history.Client
	cache     cache.Snapshotter
	log       *zap.Logger

	rooms            []chat.Room
	messages         map[string][]chat.Message
	activeRoomID     string
	totalUnreadRooms int
	roomClosed       bool
	widgetOpen       bool

	// pendingHistory marks an active room whose history has not been
	// fetched yet; the chatRoom confirmation event resolves it.
	pendingHistory bool

	loading   bool
	lastErr   error
	connected bool

	onChange func()
}

// State is a point-in-time copy of the store for the presentation
// layer. Slices and maps are copies; mutating them has no effect.
type State struct {
	Rooms            []chat.Room
	ActiveRoomID     string
	Messages         map[string][]chat.Message
	TotalUnreadRooms int
	IsRoomClosed     bool
	WidgetOpen       bool
	Loading          bool
	Err              error
}

// New creates a store for the given user and rehydrates it from the
// snapshot cache. No connection is made until InitializeSocket or the
// first StartChat.
func New(selfID string, t transport.Transport, h history.Client, c cache.Snapshotter, log *zap.Logger) *Store {
	s := &Store{
		selfID:    selfID,
		transport: t,
		history:   h,
		cache:     c,
		log:       log,
		messages:  make(map[string][]chat.Message),
	}
	s.restore()
	return s
}

// SetOnChange registers a callback invoked after every state change,
// outside the store lock. The presentation layer re-reads State from
// it.
func (s *Store) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// State returns a copy of the current chat state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms := make([]chat.Room, len(s.rooms))
	copy(rooms, s.rooms)

	messages := make(map[string][]chat.Message, len(s.messages))
	for roomID, list := range s.messages {
		cp := make([]chat.Message, len(list))
		copy(cp, list)
		messages[roomID] = cp
	}

	return State{
		Rooms:            rooms,
		ActiveRoomID:     s.activeRoomID,
		Messages:         messages,
		TotalUnreadRooms: s.totalUnreadRooms,
		IsRoomClosed:     s.roomClosed,
		WidgetOpen:       s.widgetOpen,
		Loading:          s.loading,
		Err:              s.lastErr,
	}
}

// ActiveMessages returns a copy of the active room's message list.
func (s *Store) ActiveMessages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.messages[s.activeRoomID]
	cp := make([]chat.Message, len(list))
	copy(cp, list)
	return cp
}

// SetWidgetOpen records whether the floating widget is open. The flag
// is part of the persisted snapshot.
func (s *Store) SetWidgetOpen(open bool) {
	s.mu.Lock()
	s.widgetOpen = open
	s.persistLocked()
	s.mu.Unlock()
	s.notifyChange()
}

// InitializeSocket registers all event handlers and connects the
// transport. Handlers are deregistered first so re-initialization
// never leaves duplicates behind. Safe to call more than once; only
// the first successful call dials.
func (s *Store) InitializeSocket(ctx context.Context) error {
	if s.selfID == "" {
		return pharma_errors.ErrUnauthenticated
	}

	s.registerHandlers()

	s.mu.Lock()
	alreadyConnected := s.connected
	s.mu.Unlock()
	if alreadyConnected {
		return nil
	}

	if err := s.transport.Connect(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

// Disconnect tears the store down: all handlers deregistered, the
// transport closed, every piece of chat state dropped. Used on logout.
func (s *Store) Disconnect() {
	s.deregisterHandlers()

	if err := s.transport.Close(); err != nil {
		s.log.Warn("transport close failed", zap.Error(err))
	}

	s.mu.Lock()
	s.rooms = nil
	s.messages = make(map[string][]chat.Message)
	s.activeRoomID = ""
	s.totalUnreadRooms = 0
	s.roomClosed = false
	s.pendingHistory = false
	s.loading = false
	s.lastErr = nil
	s.connected = false
	s.mu.Unlock()

	if err := s.cache.Clear(); err != nil {
		s.log.Warn("snapshot clear failed", zap.Error(err))
	}
	s.notifyChange()
}

// restore rehydrates persisted state at construction time.
func (s *Store) restore() {
	snap, err := s.cache.Load()
	if err != nil {
		s.log.Warn("snapshot load failed", zap.Error(err))
		return
	}
	if snap == nil {
		return
	}

	s.rooms = snap.Rooms
	if snap.Messages != nil {
		s.messages = snap.Messages
	}
	s.activeRoomID = snap.ActiveRoomID
	s.totalUnreadRooms = snap.TotalUnreadRooms
	s.widgetOpen = snap.WidgetOpen
}

// persistLocked writes the snapshot. Caller holds the lock.
func (s *Store) persistLocked() {
	snap := &cache.Snapshot{
		Rooms:            s.rooms,
		ActiveRoomID:     s.activeRoomID,
		Messages:         s.messages,
		TotalUnreadRooms: s.totalUnreadRooms,
		WidgetOpen:       s.widgetOpen,
	}
	if err := s.cache.Save(snap); err != nil {
		s.log.Warn("snapshot save failed", zap.Error(err))
	}
}

func (s *Store) notifyChange() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// roomIndexLocked returns the index of a room, or -1.
func (s *Store) roomIndexLocked(roomID string) int {
	for i := range s.rooms {
		if s.rooms[i].ID == roomID {
			return i
		}
	}
	return -1
}

// recomputeUnreadLocked maintains the badge invariant: the total is
// the number of rooms with unread messages, not a sum of counters.
func (s *Store) recomputeUnreadLocked() {
	total := 0
	for i := range s.rooms {
		if s.rooms[i].UnreadCount > 0 {
			total++
		}
	}
	s.totalUnreadRooms = total
}
