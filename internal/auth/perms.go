package auth

import "strings"

// Perms is a permission set over {read, write, delete} encoded as a
// compact string of the characters "r", "w" and "d".
type Perms string

// FullPerms is granted to a space owner at creation.
const FullPerms Perms = "rwd"

// Allows reports whether every permission in required is present: a
// superset check, not equality, so "rwd" satisfies a "w" requirement.
// The empty requirement is always satisfied.
func (p Perms) Allows(required Perms) bool {
	for _, c := range required {
		if !strings.ContainsRune(string(p), c) {
			return false
		}
	}
	return true
}

// Valid reports whether p is a non-empty subset of "rwd" with no
// duplicate characters.
func (p Perms) Valid() bool {
	if p == "" || len(p) > len(FullPerms) {
		return false
	}
	seen := map[rune]bool{}
	for _, c := range p {
		if !strings.ContainsRune(string(FullPerms), c) || seen[c] {
			return false
		}
		seen[c] = true
	}
	return true
}
