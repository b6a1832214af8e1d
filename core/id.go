package core

import "github.com/google/uuid"

func newID() string {
	return uuid.NewString()
}

// shortID abbreviates a uuid for filenames and branch names.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
