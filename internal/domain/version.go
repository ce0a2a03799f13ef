package domain

import "fmt"

// VersionToken is the cheap change marker of the backing store: the largest
// thought and connection identifiers assigned so far. Both components only
// grow.
type VersionToken struct {
	MaxThoughtID    int64 `json:"max_thought_id"`
	MaxConnectionID int64 `json:"max_connection_id"`
}

// NewerThan reports whether either component strictly increased relative to
// prev.
func (v VersionToken) NewerThan(prev VersionToken) bool {
	return v.MaxThoughtID > prev.MaxThoughtID || v.MaxConnectionID > prev.MaxConnectionID
}

func (v VersionToken) String() string {
	return fmt.Sprintf("(%d,%d)", v.MaxThoughtID, v.MaxConnectionID)
}
