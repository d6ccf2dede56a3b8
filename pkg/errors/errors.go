package pharma_errors

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrUnauthenticated  = errors.New("no authenticated user")
	ErrNoActiveRoom     = errors.New("no active chat room")
	ErrEmptyMessage     = errors.New("message is empty")
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTransportClosed  = errors.New("transport closed")
	ErrNotConnected     = errors.New("transport not connected")
	ErrCacheUnavailable = errors.New("cache unavailable")
)

// NowPtr returns a pointer to current time
func NowPtr() *time.Time {
	now := time.Now()
	return &now
}
