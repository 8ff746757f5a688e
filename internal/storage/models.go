package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User maps an opaque codeword credential to a caller.
type User struct {
	Codeword  string
	Name      string
	CreatedAt time.Time
}

// Interaction records one handled message and its reply.
type Interaction struct {
	ID        string
	Caller    string
	Message   string
	Response  string
	Action    string
	CreatedAt time.Time
}
