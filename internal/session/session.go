// Package session holds the persisted client session written at login
// time. One typed schema replaces any ad-hoc parsing of whatever the
// login flow happened to store.
package session

import (
	"encoding/json"
	"fmt"
	"os"

	"pharmadeal-chat/internal/domain/chat"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the persisted login state this client operates under.
type Session struct {
	UserID  string        `json:"userId"`
	Token   string        `json:"token"`
	Profile chat.UserInfo `json:"profile"`
}

// Load reads the session file written at login.
func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session file: %w", err)
	}
	if s.UserID == "" && s.Token != "" {
		s.UserID = userIDFromToken(s.Token)
	}
	return &s, nil
}

// Save writes the session file. Called by the login flow, not by the
// chat core.
func Save(path string, s *Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// userIDFromToken recovers the user id from the bearer token claims.
// The client is not the token's verifier, so the parse is unverified;
// the server rejects a forged token on the first request anyway.
func userIDFromToken(token string) string {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return ""
	}
	if id, ok := claims["user_id"].(string); ok && id != "" {
		return id
	}
	if sub, err := claims.GetSubject(); err == nil {
		return sub
	}
	return ""
}
