package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pharmadeal-chat/internal/domain/chat"
	pharma_errors "pharmadeal-chat/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StartChat resolves (or creates) the room for this user pair and
// anchor, makes it the active room and tells the server to join both
// sockets. History is not fetched here; it arrives with the chatRoom
// confirmation event or an explicit SelectChat.
func (s *Store) StartChat(ctx context.Context, otherID, anchorID, anchorType string, otherUser chat.UserInfo) (string, error) {
	if s.selfID == "" {
		return "", pharma_errors.ErrUnauthenticated
	}

	s.setLoading(true)

	roomID, err := s.history.ResolveRoom(ctx, s.selfID, otherID, anchorID, anchorType)
	if err != nil {
		s.setError(fmt.Errorf("resolve room: %w", err))
		return "", err
	}

	if err := s.InitializeSocket(ctx); err != nil {
		s.setError(err)
		return "", err
	}

	if err := s.transport.Emit(chat.EventStartChat, chat.StartChatPayload{
		UserID:      s.selfID,
		OtherUserID: otherID,
		TargetID:    anchorID,
		TargetType:  anchorType,
	}); err != nil {
		s.log.Warn("startChat emit failed", zap.Error(err))
	}

	s.mu.Lock()
	if s.roomIndexLocked(roomID) < 0 {
		room := chat.Room{
			ID:           roomID,
			ParticipantA: s.selfID,
			ParticipantB: otherID,
			OtherUser:    otherUser,
			UpdatedAt:    time.Now(),
		}
		if anchorID != "" {
			room.Anchor = &chat.Anchor{Type: anchorType, ID: anchorID}
		}
		s.rooms = append([]chat.Room{room}, s.rooms...)
	}
	s.activeRoomID = roomID
	s.roomClosed = false
	s.pendingHistory = true
	s.loading = false
	s.lastErr = nil
	s.persistLocked()
	s.mu.Unlock()
	s.notifyChange()

	return roomID, nil
}

// SendMessage appends an optimistic temp message to the active room
// and emits it. The UI sees the send immediately; the server's
// newMessage event later replaces the temp entry in place. There is no
// retry: a lost emit leaves the temp message until a reconnect resync.
func (s *Store) SendMessage(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return pharma_errors.ErrEmptyMessage
	}

	s.mu.Lock()
	roomID := s.activeRoomID
	if roomID == "" {
		s.mu.Unlock()
		return pharma_errors.ErrNoActiveRoom
	}

	now := time.Now()
	temp := chat.Message{
		ID:        "temp-" + uuid.NewString(),
		ClientID:  uuid.NewString(),
		Content:   text,
		SenderID:  s.selfID,
		SentAt:    now,
		Timestamp: chat.FormatTimestamp(now),
		IsOwn:     true,
		Status:    chat.MessageStatusSent,
		Temp:      true,
	}
	s.messages[roomID] = append(s.messages[roomID], temp)
	s.persistLocked()
	s.mu.Unlock()
	s.notifyChange()

	if err := s.transport.Emit(chat.EventSendMessage, chat.SendMessagePayload{
		RoomID:   roomID,
		SenderID: s.selfID,
		Text:     text,
	}); err != nil {
		s.log.Warn("sendMessage emit failed", zap.Error(err))
	}
	return nil
}

// SelectChat makes a room active: joins it, marks it seen, replaces
// its message list with server history and refreshes its closed
// status. The unread counter is zeroed optimistically before any
// network response; the server's roomMarkedAsSeen event is idempotent
// with that.
func (s *Store) SelectChat(ctx context.Context, room chat.Room) error {
	s.mu.Lock()
	previous := s.activeRoomID
	s.activeRoomID = room.ID
	s.roomClosed = false
	s.pendingHistory = false
	s.loading = true
	if i := s.roomIndexLocked(room.ID); i >= 0 {
		s.rooms[i].UnreadCount = 0
	}
	s.recomputeUnreadLocked()
	s.persistLocked()
	s.mu.Unlock()
	s.notifyChange()

	if previous != "" && previous != room.ID {
		s.emit(chat.EventLeaveRoom, chat.JoinRoomPayload{RoomID: previous, UserID: s.selfID})
	}
	s.emit(chat.EventJoinRoom, chat.JoinRoomPayload{RoomID: room.ID, UserID: s.selfID})
	s.emit(chat.EventMarkRoomAsSeen, chat.JoinRoomPayload{RoomID: room.ID, UserID: s.selfID})

	// History replace and closed-status fetch are independent; both
	// are last-write-wins on their own fields.
	messages, err := s.history.FetchHistory(ctx, room.ID)
	if err != nil {
		s.setError(fmt.Errorf("fetch history: %w", err))
		return err
	}
	for i := range messages {
		messages[i].IsOwn = messages[i].SenderID == s.selfID
	}

	closed := false
	if detail, err := s.history.FetchRoom(ctx, room.ID); err != nil {
		// Fails open: an unknown closed status never blocks typing.
		s.log.Warn("room detail fetch failed", zap.String("room_id", room.ID), zap.Error(err))
	} else {
		closed = detail.IsClosed
	}

	s.mu.Lock()
	s.messages[room.ID] = messages
	if s.activeRoomID == room.ID {
		s.roomClosed = closed
	}
	s.loading = false
	s.lastErr = nil
	s.persistLocked()
	s.mu.Unlock()
	s.notifyChange()
	return nil
}

// LoadUserChats fetches the full room snapshot and wholesale-replaces
// the room list. This is the resynchronization primitive: initial
// load, transport reconnect, and any structural push the client
// cannot apply incrementally all funnel here.
func (s *Store) LoadUserChats(ctx context.Context) error {
	if s.selfID == "" {
		return pharma_errors.ErrUnauthenticated
	}

	s.setLoading(true)

	records, err := s.history.FetchUserRooms(ctx, s.selfID)
	if err != nil {
		s.setError(fmt.Errorf("fetch rooms: %w", err))
		return err
	}

	rooms := make([]chat.Room, 0, len(records))
	for _, rec := range records {
		rooms = append(rooms, rec.ToRoom(s.selfID))
	}

	s.mu.Lock()
	s.rooms = rooms
	s.recomputeUnreadLocked()
	s.loading = false
	s.lastErr = nil
	s.persistLocked()
	s.mu.Unlock()
	s.notifyChange()
	return nil
}

func (s *Store) emit(event string, payload interface{}) {
	if err := s.transport.Emit(event, payload); err != nil {
		s.log.Warn("emit failed", zap.String("event", event), zap.Error(err))
	}
}

func (s *Store) setLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	s.lastErr = nil
	s.mu.Unlock()
	s.notifyChange()
}

func (s *Store) setError(err error) {
	s.mu.Lock()
	s.loading = false
	s.lastErr = err
	s.mu.Unlock()
	s.notifyChange()
}
