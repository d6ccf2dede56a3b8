package chat

import "time"

// Event names exchanged over the persistent connection.
// Client to server:
const (
	EventStartChat      = "startChat"
	EventSendMessage    = "sendMessage"
	EventJoinRoom       = "joinRoom"
	EventLeaveRoom      = "leaveRoom"
	EventMarkRoomAsSeen = "markRoomAsSeen"
)

// Server to client:
const (
	EventNewMessage         = "newMessage"
	EventChatRoom           = "chatRoom"
	EventUnreadCountUpdated = "unreadCountUpdated"
	EventMessageSeen        = "messageSeen"
	EventRoomMarkedAsSeen   = "roomMarkedAsSeen"
	EventLastMessageUpdated = "lastMessageUpdated"
	EventNewChatRoom        = "newChatRoom"
	EventRoomClosed         = "roomClosed"
)

// Transport-level lifecycle events:
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
	EventError      = "error"
)

// StartChatPayload asks the server to ensure both sockets are joined
// to the resolved room.
type StartChatPayload struct {
	UserID      string `json:"userId"`
	OtherUserID string `json:"otherUserId"`
	TargetID    string `json:"targetId,omitempty"`
	TargetType  string `json:"targetType,omitempty"`
}

// SendMessagePayload carries an outbound chat line.
type SendMessagePayload struct {
	RoomID   string `json:"roomId"`
	SenderID string `json:"senderId"`
	Text     string `json:"text"`
}

// JoinRoomPayload subscribes this user's socket to a room. The same
// shape is used for leaveRoom and markRoomAsSeen.
type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// NewMessagePayload is the server's confirmation/broadcast of a message.
type NewMessagePayload struct {
	MessageID string    `json:"messageId"`
	RoomID    string    `json:"roomId"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text"`
	SentAt    time.Time `json:"sentAt"`
	Status    string    `json:"status,omitempty"`
}

// ChatRoomPayload confirms a room join/creation.
type ChatRoomPayload struct {
	RoomID string `json:"roomId"`
}

// UnreadCountPayload is the authoritative per-room unread counter.
type UnreadCountPayload struct {
	RoomID      string `json:"roomId"`
	UnreadCount int    `json:"unreadCount"`
}

// MessageSeenPayload flips a single message to read.
type MessageSeenPayload struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
}

// RoomMarkedAsSeenPayload confirms an entire room was seen.
type RoomMarkedAsSeenPayload struct {
	RoomID string `json:"roomId"`
}

// LastMessagePayload refreshes a room's list preview.
type LastMessagePayload struct {
	RoomID string    `json:"roomId"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sentAt"`
}

// RoomClosedPayload signals the counterpart or server closed the room.
type RoomClosedPayload struct {
	RoomID string `json:"roomId"`
}
