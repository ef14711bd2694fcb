package ledger

import (
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	tokenPrefix = "lg"

	// TokenPrefix marks modal custom ids owned by the ledger.
	TokenPrefix = tokenPrefix + ":"

	ActionEdit = "edit"

	// Discord rejects custom ids longer than this.
	maxCustomIDLen = 100
)

var tokenActions = map[string]bool{ActionEdit: true}

var keyEncoding = base64.RawURLEncoding

// Token is carried in the custom id of the edit modal and binds the
// submission back to the display message it was opened from. The channel
// comes from the interaction delivering the token.
type Token struct {
	Action      string
	CategoryKey string
	MessageID   string
}

func (t Token) Encode() (string, error) {
	if !tokenActions[t.Action] {
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidToken, t.Action)
	}
	if t.CategoryKey == "" || !isSnowflake(t.MessageID) {
		return "", fmt.Errorf("%w: empty category or bad message id", ErrInvalidToken)
	}
	s := strings.Join([]string{
		tokenPrefix,
		t.Action,
		keyEncoding.EncodeToString([]byte(t.CategoryKey)),
		t.MessageID,
	}, ":")
	if len(s) > maxCustomIDLen {
		return "", fmt.Errorf("%w: %d chars exceeds custom id limit", ErrInvalidToken, len(s))
	}
	return s, nil
}

// ParseToken is the exact inverse of Encode.
func ParseToken(s string) (Token, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 || parts[0] != tokenPrefix {
		return Token{}, fmt.Errorf("%w: %q", ErrInvalidToken, s)
	}
	if !tokenActions[parts[1]] {
		return Token{}, fmt.Errorf("%w: unknown action %q", ErrInvalidToken, parts[1])
	}
	key, err := keyEncoding.DecodeString(parts[2])
	if err != nil || len(key) == 0 {
		return Token{}, fmt.Errorf("%w: bad category segment %q", ErrInvalidToken, parts[2])
	}
	if !isSnowflake(parts[3]) {
		return Token{}, fmt.Errorf("%w: bad message id %q", ErrInvalidToken, parts[3])
	}
	return Token{Action: parts[1], CategoryKey: string(key), MessageID: parts[3]}, nil
}

func isSnowflake(s string) bool {
	if s == "" || len(s) > 20 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
