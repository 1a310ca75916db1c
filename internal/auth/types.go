package auth

import (
	"regexp"
	"time"
)

// User is a registered principal. The identifier doubles as the token
// subject and the permission-record key.
type User struct {
	ID           string
	PasswordHash string
	CreatedAt    time.Time
}

// usernamePattern bounds principal identifiers: letter first, then up to
// 29 letters or digits.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9]{0,29}$`)

// ValidUsername reports whether id is an acceptable principal identifier.
func ValidUsername(id string) bool {
	return usernamePattern.MatchString(id)
}
