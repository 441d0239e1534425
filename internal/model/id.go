package model

import "github.com/oklog/ulid/v2"

// NewID returns a new ULID string. Task identities are ULIDs so that
// history listings sort by creation time.
func NewID() string {
	return ulid.Make().String()
}

// ValidID reports whether s is a well-formed task identity.
func ValidID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
