package store

import (
	"context"
	"encoding/json"

	"pharmadeal-chat/internal/domain/chat"

	"go.uber.org/zap"
)

// serverEvents are all events the store consumes. Teardown walks this
// list to deregister.
var serverEvents = []string{
	chat.EventNewMessage,
	chat.EventChatRoom,
	chat.EventUnreadCountUpdated,
	chat.EventMessageSeen,
	chat.EventRoomMarkedAsSeen,
	chat.EventLastMessageUpdated,
	chat.EventNewChatRoom,
	chat.EventRoomClosed,
	chat.EventConnect,
	chat.EventDisconnect,
	chat.EventError,
}

// registerHandlers deregisters and re-registers every handler, so a
// re-initialization after reconnect never stacks duplicates.
func (s *Store) registerHandlers() {
	s.deregisterHandlers()

	s.transport.On(chat.EventNewMessage, s.handleNewMessage)
	s.transport.On(chat.EventChatRoom, s.handleChatRoom)
	s.transport.On(chat.EventUnreadCountUpdated, s.handleUnreadCountUpdated)
	s.transport.On(chat.EventMessageSeen, s.handleMessageSeen)
	s.transport.On(chat.EventRoomMarkedAsSeen, s.handleRoomMarkedAsSeen)
	s.transport.On(chat.EventLastMessageUpdated, s.handleLastMessageUpdated)
	s.transport.On(chat.EventNewChatRoom, s.handleNewChatRoom)
	s.transport.On(chat.EventRoomClosed, s.handleRoomClosed)
	s.transport.On(chat.EventConnect, s.handleConnect)
	s.transport.On(chat.EventDisconnect, s.handleDisconnect)
	s.transport.On(chat.EventError, s.handleTransportError)
}

func (s *Store) deregisterHandlers() {
	for _, event := range serverEvents {
		s.transport.Off(event)
	}
}

// handleNewMessage reconciles an incoming message. For the sender's
// own echo, the last matching temp message is replaced in place rather
// than appended; the heuristic assumes one in-flight send per room.
// The room's list preview is refreshed whether or not the room is
// active.
func (s *Store) handleNewMessage(raw json.RawMessage) {
	var p chat.NewMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		s.log.Warn("bad newMessage payload", zap.Error(err))
		return
	}

	status := p.Status
	if status == "" {
		status = chat.MessageStatusSent
	}
	confirmed := chat.Message{
		ID:        p.MessageID,
		Content:   p.Text,
		SenderID:  p.SenderID,
		SentAt:    p.SentAt,
		Timestamp: chat.FormatTimestamp(p.SentAt),
		IsOwn:     p.SenderID == s.selfID,
		Status:    status,
	}

	s.mu.Lock()
	if i := s.roomIndexLocked(p.RoomID); i >= 0 {
		s.rooms[i].LastMessage = &chat.LastMessage{Text: p.Text, SentAt: p.SentAt}
		s.rooms[i].UpdatedAt = p.SentAt
	}

	list := s.messages[p.RoomID]
	for i := range list {
		if list[i].ID == p.MessageID {
			// Redelivery of a message we already hold.
			s.persistLocked()
			s.mu.Unlock()
			s.notifyChange()
			return
		}
	}
	replaced := false
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Temp && list[i].Content == p.Text && list[i].SenderID == p.SenderID {
			list[i] = confirmed
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, confirmed)
	}
	s.messages[p.RoomID] = list
	s.persistLocked()
	s.mu.Unlock()
	s.notifyChange()
}

// handleChatRoom is the join/creation confirmation. If the active room
// is still waiting for its history, fetch it now.
func (s *Store) handleChatRoom(raw json.RawMessage) {
	var p chat.ChatRoomPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		s.log.Warn("bad chatRoom payload", zap.Error(err))
		return
	}

	s.mu.Lock()
	pending := s.pendingHistory && s.activeRoomID == p.RoomID
	if pending {
		s.pendingHistory = false
	}
	s.mu.Unlock()
	if !pending {
		return
	}

	go func() {
		messages, err := s.history.FetchHistory(context.Background(), p.RoomID)
		if err != nil {
			s.log.Warn("confirmed-room history fetch failed", zap.String("room_id", p.RoomID), zap.Error(err))
			return
		}
		for i := range messages {
			messages[i].IsOwn = messages[i].SenderID == s.selfID
		}

		s.mu.Lock()
		// A send racing the confirmation must survive the replace,
		// unless the fetched history already carries it.
		for _, m := range s.messages[p.RoomID] {
			if m.Temp && !containsMessage(messages, m.Content, m.SenderID) {
				messages = append(messages, m)
			}
		}
		s.messages[p.RoomID] = messages
		s.persistLocked()
		s.mu.Unlock()
		s.notifyChange()
	}()
}

// handleUnreadCountUpdated is the authoritative per-room counter.
func (s *Store) handleUnreadCountUpdated(raw json.RawMessage) {
	var p chat.UnreadCountPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		s.log.Warn("bad unreadCountUpdated payload", zap.Error(err))
		return
	}

	s.mu.Lock()
	if i := s.roomIndexLocked(p.RoomID); i >= 0 {
		s.rooms[i].UnreadCount = p.UnreadCount
	}
	s.recomputeUnreadLocked()
	s.persistLocked()
	s.mu.Unlock()
	s.notifyChange()
}

func (s *Store) handleMessageSeen(raw json.RawMessage) {
	var p chat.MessageSeenPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		s.log.Warn("bad messageSeen payload", zap.Error(err))
		return
	}

	s.mu.Lock()
	list := s.messages[p.RoomID]
	for i := range list {
		if list[i].ID == p.MessageID {
			list[i].Status = chat.MessageStatusRead
			break
		}
	}
	s.persistLocked()
	s.mu.Unlock()
	s.notifyChange()
}

// handleRoomMarkedAsSeen is the server's confirmation of SelectChat's
// optimistic zeroing; applying it twice is harmless.
func (s *Store) handleRoomMarkedAsSeen(raw json.RawMessage) {
	var p chat.RoomMarkedAsSeenPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		s.log.Warn("bad roomMarkedAsSeen payload", zap.Error(err))
		return
	}

	s.mu.Lock()
	if i := s.roomIndexLocked(p.RoomID); i >= 0 {
		s.rooms[i].UnreadCount = 0
	}
	list := s.messages[p.RoomID]
	for i := range list {
		list[i].Status = chat.MessageStatusRead
	}
	s.recomputeUnreadLocked()
	s.persistLocked()
	s.mu.Unlock()
	s.notifyChange()
}

func (s *Store) handleLastMessageUpdated(raw json.RawMessage) {
	var p chat.LastMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		s.log.Warn("bad lastMessageUpdated payload", zap.Error(err))
		return
	}

	s.mu.Lock()
	if i := s.roomIndexLocked(p.RoomID); i >= 0 {
		s.rooms[i].LastMessage = &chat.LastMessage{Text: p.Text, SentAt: p.SentAt}
		s.rooms[i].UpdatedAt = p.SentAt
	}
	s.persistLocked()
	s.mu.Unlock()
	s.notifyChange()
}

// handleNewChatRoom prepends a freshly created room. A payload without
// a room id is treated as a signal to resynchronize rather than guess.
func (s *Store) handleNewChatRoom(raw json.RawMessage) {
	var rec chat.RoomRecord
	if err := json.Unmarshal(raw, &rec); err != nil || rec.ID == "" {
		s.log.Info("partial newChatRoom push, resyncing room list")
		go func() {
			if err := s.LoadUserChats(context.Background()); err != nil {
				s.log.Warn("resync failed", zap.Error(err))
			}
		}()
		return
	}

	s.mu.Lock()
	if s.roomIndexLocked(rec.ID) < 0 {
		s.rooms = append([]chat.Room{rec.ToRoom(s.selfID)}, s.rooms...)
	}
	s.recomputeUnreadLocked()
	s.persistLocked()
	s.mu.Unlock()
	s.notifyChange()
}

func (s *Store) handleRoomClosed(raw json.RawMessage) {
	var p chat.RoomClosedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		s.log.Warn("bad roomClosed payload", zap.Error(err))
		return
	}

	s.mu.Lock()
	changed := s.activeRoomID == p.RoomID
	if changed {
		s.roomClosed = true
	}
	s.persistLocked()
	s.mu.Unlock()
	if changed {
		s.notifyChange()
	}
}

// handleConnect is the sole recovery mechanism after a dropped
// connection: a full room-list reload plus a re-join of the active
// room. No per-message gap filling happens here.
func (s *Store) handleConnect(json.RawMessage) {
	s.mu.Lock()
	s.connected = true
	active := s.activeRoomID
	s.mu.Unlock()

	go func() {
		if err := s.LoadUserChats(context.Background()); err != nil {
			s.log.Warn("reconnect resync failed", zap.Error(err))
		}
		if active != "" {
			s.emit(chat.EventJoinRoom, chat.JoinRoomPayload{RoomID: active, UserID: s.selfID})
		}
	}()
}

func containsMessage(list []chat.Message, content, senderID string) bool {
	for i := range list {
		if list[i].Content == content && list[i].SenderID == senderID {
			return true
		}
	}
	return false
}

func (s *Store) handleDisconnect(json.RawMessage) {
	s.log.Info("transport disconnected")
}

func (s *Store) handleTransportError(json.RawMessage) {
	s.log.Warn("transport error")
}
