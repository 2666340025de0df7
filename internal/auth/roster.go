package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrUnauthorized = errors.New("unauthorized")

// Roster is a read-only mapping of opaque tokens to the display name each
// token is bound to. It is built once at startup and passed to the HTTP
// layer; nothing mutates it at runtime.
type Roster struct {
	tokens map[string]string
}

// defaultTokens is the built-in roster used when TOKENS_FILE is not set.
var defaultTokens = map[string]string{
	"DEV_TEAM_KEY_2025": "Administrator",
	"TEACHER_KEY":       "Tran Hung",
	"11247188":          "Nguyen Thi Thuy Linh",
	"11247205":          "Vu Kim Minh",
	"11247218":          "Pham Mai Phuong",
	"user_guest":        "Guest User 1",
}

// NewRoster builds a roster from an explicit token map.
func NewRoster(tokens map[string]string) *Roster {
	m := make(map[string]string, len(tokens))
	for k, v := range tokens {
		m[k] = v
	}
	return &Roster{tokens: m}
}

// LoadRoster reads a JSON token map from path, or returns the built-in
// roster when path is empty.
func LoadRoster(path string) (*Roster, error) {
	if path == "" {
		return NewRoster(defaultTokens), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tokens file: %w", err)
	}

	var tokens map[string]string
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("failed to parse tokens file: %w", err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("tokens file %s contains no tokens", path)
	}

	return NewRoster(tokens), nil
}

// Verify checks that the token is known and returns its bound display name.
func (r *Roster) Verify(token string) (string, error) {
	name, ok := r.tokens[token]
	if !ok {
		return "", ErrUnauthorized
	}
	return name, nil
}

// VerifyName checks the token and that the supplied name matches the name
// the token is bound to (case and surrounding-space insensitive). It
// returns the official bound name on success.
func (r *Roster) VerifyName(token, name string) (string, error) {
	owner, err := r.Verify(token)
	if err != nil {
		return "", err
	}

	if !strings.EqualFold(strings.TrimSpace(name), strings.TrimSpace(owner)) {
		return "", fmt.Errorf("%w: name mismatch, token belongs to %s", ErrUnauthorized, owner)
	}

	return owner, nil
}
