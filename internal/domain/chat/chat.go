package chat

import (
	"time"
)

// Anchor types a room can be attached to
const (
	AnchorTypeDeal     = "deal"
	AnchorTypePharmacy = "pharmacy"
)

// Message delivery states
const (
	MessageStatusSent = "sent"
	MessageStatusRead = "read"
)

// Anchor is the marketplace object a conversation is attached to.
// It is informational only; the chat core never mutates it.
type Anchor struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	Price string `json:"price,omitempty"`
	Name  string `json:"name,omitempty"`
}

// UserInfo is a denormalized display snapshot of a chat participant.
type UserInfo struct {
	ID              string `json:"id"`
	FullName        string `json:"fullName"`
	ProfilePhotoURL string `json:"profilePhotoUrl,omitempty"`
	Role            string `json:"role,omitempty"`
}

// LastMessage is the list-preview snapshot of a room's most recent message.
type LastMessage struct {
	Text   string    `json:"text"`
	SentAt time.Time `json:"sentAt"`
}

// Room is a conversation between exactly two participants, optionally
// anchored to a deal or a pharmacy listing.
type Room struct {
	ID           string       `json:"id"`
	ParticipantA string       `json:"participantA"`
	ParticipantB string       `json:"participantB"`
	Anchor       *Anchor      `json:"anchor,omitempty"`
	OtherUser    UserInfo     `json:"otherUser"`
	LastMessage  *LastMessage `json:"lastMessage,omitempty"`
	UnreadCount  int          `json:"unreadCount"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// OtherParticipant returns the participant that is not selfID.
// The "other party" is always derived, never stored as a fixed role.
func (r *Room) OtherParticipant(selfID string) string {
	if r.ParticipantA == selfID {
		return r.ParticipantB
	}
	return r.ParticipantA
}

// Message is one chat line. A message starts out as a client-generated
// temporary entry (Temp=true) and is replaced in place once the server
// confirms it.
type Message struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"clientId,omitempty"`
	Content   string    `json:"content"`
	SenderID  string    `json:"senderId"`
	SentAt    time.Time `json:"sentAt"`
	Timestamp string    `json:"timestamp"`
	IsOwn     bool      `json:"isOwn"`
	Status    string    `json:"status"`
	Temp      bool      `json:"temp,omitempty"`
}

// FormatTimestamp renders a message time the way the thread view shows it.
func FormatTimestamp(t time.Time) string {
	return t.Local().Format("15:04")
}
