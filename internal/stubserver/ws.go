package stubserver

import (
	"encoding/json"
	"net/http"
	"time"

	"pharmadeal-chat/internal/domain/chat"
	"pharmadeal-chat/internal/transport"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func jsonMarshal(v interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	return json.RawMessage(data), err
}

func (s *Server) serveWS(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId required"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	cl := &client{userID: userID, conn: conn, joined: make(map[string]bool)}
	s.mu.Lock()
	s.clients[userID] = cl
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.clients[userID] == cl {
			delete(s.clients, userID)
		}
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		var env transport.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		s.handleEvent(cl, env)
	}
}

func (s *Server) handleEvent(cl *client, env transport.Envelope) {
	switch env.Event {
	case chat.EventStartChat:
		var p chat.StartChatPayload
		if json.Unmarshal(env.Data, &p) != nil {
			return
		}
		s.mu.Lock()
		room := s.ensureRoomLocked(p.UserID, p.OtherUserID, p.TargetID, p.TargetType)
		cl.joined[room.id] = true
		other := s.clients[p.OtherUserID]
		var otherRecord chat.RoomRecord
		if other != nil {
			otherRecord = room.record(p.OtherUserID)
		}
		s.mu.Unlock()
		cl.send(chat.EventChatRoom, chat.ChatRoomPayload{RoomID: room.id})
		if other != nil {
			other.send(chat.EventNewChatRoom, otherRecord)
		}

	case chat.EventJoinRoom:
		var p chat.JoinRoomPayload
		if json.Unmarshal(env.Data, &p) != nil {
			return
		}
		s.mu.Lock()
		cl.joined[p.RoomID] = true
		s.mu.Unlock()
		cl.send(chat.EventChatRoom, chat.ChatRoomPayload{RoomID: p.RoomID})

	case chat.EventLeaveRoom:
		var p chat.JoinRoomPayload
		if json.Unmarshal(env.Data, &p) != nil {
			return
		}
		s.mu.Lock()
		delete(cl.joined, p.RoomID)
		s.mu.Unlock()

	case chat.EventSendMessage:
		s.handleSendMessage(env.Data)

	case chat.EventMarkRoomAsSeen:
		s.handleMarkRoomAsSeen(env.Data)
	}
}

func (s *Server) handleSendMessage(data json.RawMessage) {
	var p chat.SendMessagePayload
	if json.Unmarshal(data, &p) != nil {
		return
	}

	s.mu.Lock()
	room, ok := s.rooms[p.RoomID]
	if !ok || room.closed {
		s.mu.Unlock()
		return
	}

	msg := storedMessage{
		ID:     uuid.NewString(),
		Text:   p.Text,
		SentAt: time.Now(),
		Sender: senderSnippet{ID: p.SenderID, FullName: p.SenderID},
	}
	room.messages = append(room.messages, msg)
	room.updatedAt = msg.SentAt

	type delivery struct {
		cl     *client
		unread int
	}
	var recipients []delivery
	for _, participant := range room.participants {
		cl, online := s.clients[participant.ID]
		if participant.ID != p.SenderID && !(online && cl.joined[room.id]) {
			room.unread[participant.ID]++
		}
		if online {
			recipients = append(recipients, delivery{cl: cl, unread: room.unread[participant.ID]})
		}
	}
	s.mu.Unlock()

	payload := chat.NewMessagePayload{
		MessageID: msg.ID,
		RoomID:    p.RoomID,
		SenderID:  p.SenderID,
		Text:      p.Text,
		SentAt:    msg.SentAt,
		Status:    chat.MessageStatusSent,
	}
	preview := chat.LastMessagePayload{RoomID: p.RoomID, Text: p.Text, SentAt: msg.SentAt}
	for _, d := range recipients {
		d.cl.send(chat.EventNewMessage, payload)
		d.cl.send(chat.EventLastMessageUpdated, preview)
		if d.cl.userID != p.SenderID {
			d.cl.send(chat.EventUnreadCountUpdated, chat.UnreadCountPayload{
				RoomID:      p.RoomID,
				UnreadCount: d.unread,
			})
		}
	}
}

func (s *Server) handleMarkRoomAsSeen(data json.RawMessage) {
	var p chat.JoinRoomPayload
	if json.Unmarshal(data, &p) != nil {
		return
	}

	s.mu.Lock()
	room, ok := s.rooms[p.RoomID]
	if !ok {
		s.mu.Unlock()
		return
	}
	room.unread[p.UserID] = 0
	var sender, reader *client
	reader = s.clients[p.UserID]
	for _, participant := range room.participants {
		if participant.ID != p.UserID {
			sender = s.clients[participant.ID]
		}
	}
	s.mu.Unlock()

	seen := chat.RoomMarkedAsSeenPayload{RoomID: p.RoomID}
	if reader != nil {
		reader.send(chat.EventRoomMarkedAsSeen, seen)
	}
	if sender != nil {
		sender.send(chat.EventRoomMarkedAsSeen, seen)
	}
}

// CloseRoom marks a room closed and notifies both participants. Test
// hook for the room lifecycle.
func (s *Server) CloseRoom(roomID string) {
	s.mu.Lock()
	room, ok := s.rooms[roomID]
	if !ok {
		s.mu.Unlock()
		return
	}
	room.closed = true
	var online []*client
	for _, participant := range room.participants {
		if cl, found := s.clients[participant.ID]; found {
			online = append(online, cl)
		}
	}
	s.mu.Unlock()

	for _, cl := range online {
		cl.send(chat.EventRoomClosed, chat.RoomClosedPayload{RoomID: roomID})
	}
}
