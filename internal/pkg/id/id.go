package id

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// New generates a new ULID string for user and session partition keys.
// ULIDs sort by creation time; session tokens are generated separately
// and never derived from these IDs.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
