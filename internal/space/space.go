// Package space manages collaboration spaces and the messages posted to
// them.
package space

import (
	"errors"
	"strings"
	"time"

	"parley.org/internal/auth"
)

var (
	ErrNotFound      = errors.New("space: not found")
	ErrInvalidInput  = errors.New("space: invalid input")
	ErrAlreadyExists = errors.New("space: already exists")
)

const (
	maxSpaceNameLength = 255
	maxMessageLength   = 1024
)

// Space is a collaboration room. The owner receives the full permission
// set when the space is created.
type Space struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

// Message is a single post inside a space.
type Message struct {
	ID        int64     `json:"id"`
	SpaceID   int64     `json:"space_id"`
	Author    string    `json:"author"`
	Text      string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func validSpaceName(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && len(name) <= maxSpaceNameLength
}

func validMessageText(text string) bool {
	return strings.TrimSpace(text) != "" && len(text) <= maxMessageLength
}

func validMember(userID string, perms auth.Perms) bool {
	return auth.ValidUsername(userID) && perms.Valid()
}
