// Package stubserver is an in-process chat server speaking the same
// REST and event protocol as the production messaging service. It
// exists for integration tests and local development; it is not a
// server design, just enough behavior for a client to talk to.
package stubserver

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"pharmadeal-chat/internal/domain/chat"
	"pharmadeal-chat/internal/transport"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type storedMessage struct {
	ID     string        `json:"id"`
	Text   string        `json:"text"`
	SentAt time.Time     `json:"sentAt"`
	Sender senderSnippet `json:"sender"`
}

type senderSnippet struct {
	ID              string `json:"id"`
	FullName        string `json:"fullName"`
	ProfilePhotoURL string `json:"profilePhotoUrl"`
}

type roomState struct {
	id           string
	participants []chat.UserInfo
	anchor       *chat.Anchor
	messages     []storedMessage
	unread       map[string]int
	closed       bool
	updatedAt    time.Time
}

type client struct {
	userID string
	conn   *websocket.Conn
	mu     sync.Mutex
	joined map[string]bool
}

func (c *client) send(event string, payload interface{}) error {
	env := transport.Envelope{Event: event}
	if payload != nil {
		data, err := jsonMarshal(payload)
		if err != nil {
			return err
		}
		env.Data = data
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(env)
}

// Server holds rooms, messages and live sockets in memory.
type Server struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu        sync.Mutex
	rooms     map[string]*roomState
	pairIndex map[string]string
	clients   map[string]*client
}

// New creates an empty stub server.
func New(log *zap.Logger) *Server {
	return &Server{
		log:       log,
		upgrader:  websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		rooms:     make(map[string]*roomState),
		pairIndex: make(map[string]string),
		clients:   make(map[string]*client),
	}
}

// Handler returns the combined REST + websocket handler.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	api := r.Group("/api/v1/chat")
	api.GET("/room-id", s.resolveRoom)
	api.GET("/room/:roomId/messages", s.roomMessages)
	api.GET("/room/:roomId", s.roomDetail)
	api.GET("/user/:userId/rooms", s.userRooms)

	r.GET("/ws", s.serveWS)
	return r
}

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	return http.ListenAndServe(addr, s.Handler())
}

// pairKey identifies a room by its unordered participant pair + anchor.
func pairKey(user1, user2, targetID, targetType string) string {
	users := []string{user1, user2}
	sort.Strings(users)
	return fmt.Sprintf("%s|%s|%s|%s", users[0], users[1], targetType, targetID)
}

func (s *Server) resolveRoom(c *gin.Context) {
	user1 := c.Query("user1")
	user2 := c.Query("user2")
	targetID := c.Query("targetId")
	targetType := c.Query("targetType")
	if user1 == "" || user2 == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user1 and user2 required"})
		return
	}

	s.mu.Lock()
	room := s.ensureRoomLocked(user1, user2, targetID, targetType)
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"chatRoomId": room.id})
}

// ensureRoomLocked resolves or creates the room for a pair + anchor.
func (s *Server) ensureRoomLocked(user1, user2, targetID, targetType string) *roomState {
	key := pairKey(user1, user2, targetID, targetType)
	if id, ok := s.pairIndex[key]; ok {
		return s.rooms[id]
	}

	room := &roomState{
		id: uuid.NewString(),
		participants: []chat.UserInfo{
			{ID: user1, FullName: user1},
			{ID: user2, FullName: user2},
		},
		unread:    make(map[string]int),
		updatedAt: time.Now(),
	}
	if targetID != "" {
		room.anchor = &chat.Anchor{Type: targetType, ID: targetID}
	}
	s.pairIndex[key] = room.id
	s.rooms[room.id] = room
	return room
}

func (s *Server) roomMessages(c *gin.Context) {
	s.mu.Lock()
	room, ok := s.rooms[c.Param("roomId")]
	if !ok {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	messages := make([]storedMessage, len(room.messages))
	copy(messages, room.messages)
	s.mu.Unlock()

	c.JSON(http.StatusOK, messages)
}

func (s *Server) roomDetail(c *gin.Context) {
	s.mu.Lock()
	room, ok := s.rooms[c.Param("roomId")]
	if !ok {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	detail := chat.RoomDetail{ID: room.id, IsClosed: room.closed}
	s.mu.Unlock()

	c.JSON(http.StatusOK, detail)
}

func (s *Server) userRooms(c *gin.Context) {
	userID := c.Param("userId")

	s.mu.Lock()
	var records []chat.RoomRecord
	for _, room := range s.rooms {
		if !room.hasParticipant(userID) {
			continue
		}
		records = append(records, room.record(userID))
	}
	s.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"chatRooms": records},
	})
}

func (r *roomState) hasParticipant(userID string) bool {
	for _, p := range r.participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

func (r *roomState) record(forUser string) chat.RoomRecord {
	rec := chat.RoomRecord{
		ID:           r.id,
		Participants: r.participants,
		Anchor:       r.anchor,
		UnreadCount:  r.unread[forUser],
		UpdatedAt:    r.updatedAt,
	}
	if n := len(r.messages); n > 0 {
		last := r.messages[n-1]
		rec.LastMessage = &chat.LastMessage{Text: last.Text, SentAt: last.SentAt}
	}
	return rec
}
