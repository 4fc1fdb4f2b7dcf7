package storage

import (
	"strings"

	"github.com/google/uuid"
)

// generateID generates a new UUID
func generateID() string {
	return uuid.New().String()
}

// List cursors pair the sort timestamp with the row id, so pagination walks
// the same (created_at, id) ordering the queries sort by. Ids are random
// UUIDs and carry no ordering of their own.
func encodeCursor(createdAt, id string) string {
	return createdAt + "|" + id
}

func decodeCursor(cursor string) (createdAt, id string, ok bool) {
	createdAt, id, ok = strings.Cut(cursor, "|")
	if createdAt == "" || id == "" {
		return "", "", false
	}
	return createdAt, id, true
}
