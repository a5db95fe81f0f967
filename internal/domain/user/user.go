package user

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("user: not found")

type ID string

// User is the read model the messaging core needs about a participant.
// Account management lives in the identity service; only the profile fields
// rendered alongside conversations are resolved here.
type User struct {
	ID          ID
	DisplayName string
	AvatarURL   string
}

// Directory resolves users owned by the identity service.
type Directory interface {
	ByID(ctx context.Context, id ID) (*User, error)
}
