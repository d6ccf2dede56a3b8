// Package history is the request/response side of chat: room
// lookup-or-create, message history and the per-user room snapshot.
// The server is the source of truth for past messages; the client
// never fabricates history.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"pharmadeal-chat/internal/domain/chat"
)

// Client is the chat REST surface the synchronization store depends on.
type Client interface {
	ResolveRoom(ctx context.Context, user1, user2, targetID, targetType string) (string, error)
	FetchHistory(ctx context.Context, roomID string) ([]chat.Message, error)
	FetchUserRooms(ctx context.Context, userID string) ([]chat.RoomRecord, error)
	FetchRoom(ctx context.Context, roomID string) (*chat.RoomDetail, error)
}

// HTTPClient talks to the chat API with bearer authentication.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a history client for the given API base URL.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type messageRecord struct {
	ID     string    `json:"id"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sentAt"`
	Sender struct {
		ID              string `json:"id"`
		FullName        string `json:"fullName"`
		ProfilePhotoURL string `json:"profilePhotoUrl"`
	} `json:"sender"`
}

type roomIDResponse struct {
	ChatRoomID string `json:"chatRoomId"`
}

// userRoomsResponse is the wrapped form of the rooms endpoint. The
// endpoint may also return a bare array; FetchUserRooms accepts both.
type userRoomsResponse struct {
	Success bool `json:"success"`
	Data    struct {
		ChatRooms []chat.RoomRecord `json:"chatRooms"`
	} `json:"data"`
}

// ResolveRoom looks up or creates the room for a participant pair and
// anchor. Idempotent: the same pair and anchor always resolve to the
// same room id.
func (c *HTTPClient) ResolveRoom(ctx context.Context, user1, user2, targetID, targetType string) (string, error) {
	q := url.Values{}
	q.Set("user1", user1)
	q.Set("user2", user2)
	if targetID != "" {
		q.Set("targetId", targetID)
		q.Set("targetType", targetType)
	}

	var resp roomIDResponse
	if err := c.getJSON(ctx, "/api/v1/chat/room-id?"+q.Encode(), &resp); err != nil {
		return "", err
	}
	return resp.ChatRoomID, nil
}

// FetchHistory returns a room's messages in server order, mapped to
// the client Message shape. Historical messages default to read.
func (c *HTTPClient) FetchHistory(ctx context.Context, roomID string) ([]chat.Message, error) {
	var records []messageRecord
	if err := c.getJSON(ctx, "/api/v1/chat/room/"+url.PathEscape(roomID)+"/messages", &records); err != nil {
		return nil, err
	}

	messages := make([]chat.Message, 0, len(records))
	for _, rec := range records {
		messages = append(messages, chat.Message{
			ID:        rec.ID,
			Content:   rec.Text,
			SenderID:  rec.Sender.ID,
			SentAt:    rec.SentAt,
			Timestamp: chat.FormatTimestamp(rec.SentAt),
			Status:    chat.MessageStatusRead,
		})
	}
	return messages, nil
}

// FetchUserRooms returns the full room snapshot for a user. Both
// response shapes the server has shipped are normalized.
func (c *HTTPClient) FetchUserRooms(ctx context.Context, userID string) ([]chat.RoomRecord, error) {
	body, err := c.get(ctx, "/api/v1/chat/user/"+url.PathEscape(userID)+"/rooms")
	if err != nil {
		return nil, err
	}

	var bare []chat.RoomRecord
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare, nil
	}

	var wrapped userRoomsResponse
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode rooms response: %w", err)
	}
	return wrapped.Data.ChatRooms, nil
}

// FetchRoom returns the room detail, used to learn whether the room
// has been closed.
func (c *HTTPClient) FetchRoom(ctx context.Context, roomID string) (*chat.RoomDetail, error) {
	var detail chat.RoomDetail
	if err := c.getJSON(ctx, "/api/v1/chat/room/"+url.PathEscape(roomID), &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (c *HTTPClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP error! status: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out interface{}) error {
	body, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}
