package chat

import "time"

// RoomRecord is the server's wire shape for a room, as returned by the
// rooms snapshot endpoint and pushed in newChatRoom events.
type RoomRecord struct {
	ID           string       `json:"id"`
	Participants []UserInfo   `json:"participants"`
	Anchor       *Anchor      `json:"anchor,omitempty"`
	LastMessage  *LastMessage `json:"lastMessage,omitempty"`
	UnreadCount  int          `json:"unreadCount"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// ToRoom transforms a server room record into the client Room shape.
// The other party is whichever participant is not selfID.
func (r RoomRecord) ToRoom(selfID string) Room {
	room := Room{
		ID:          r.ID,
		Anchor:      r.Anchor,
		LastMessage: r.LastMessage,
		UnreadCount: r.UnreadCount,
		UpdatedAt:   r.UpdatedAt,
	}
	for _, p := range r.Participants {
		if p.ID == selfID {
			room.ParticipantA = p.ID
		} else {
			room.ParticipantB = p.ID
			room.OtherUser = p
		}
	}
	return room
}

// RoomDetail is the wire shape of the single-room detail endpoint.
type RoomDetail struct {
	ID       string `json:"id"`
	IsClosed bool   `json:"isClosed"`
}
