// Package cache persists the chat snapshot between client sessions.
// The snapshot is written on every store mutation and read back once
// at store construction; writes are last-write-wins with no
// cross-process coordination.
package cache

import (
	"pharmadeal-chat/internal/domain/chat"
)

// Snapshot is the persisted chat state. Transient fields (loading,
// error) are never part of it.
type Snapshot struct {
	Rooms            []chat.Room               `json:"chats"`
	ActiveRoomID     string                    `json:"activeChat,omitempty"`
	Messages         map[string][]chat.Message `json:"messages"`
	TotalUnreadRooms int                       `json:"totalUnreadCount"`
	WidgetOpen       bool                      `json:"isWidgetOpen"`
}

// Snapshotter loads and stores chat snapshots.
type Snapshotter interface {
	// Load returns the stored snapshot, or nil when there is none.
	Load() (*Snapshot, error)
	Save(snap *Snapshot) error
	Clear() error
}
