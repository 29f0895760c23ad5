package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User is Goban's canonical security principal.
// PasswordHash carries the Argon2id PHC string; it must never reach a client.
type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// CreateUserInput describes a registration request. The password is hashed by
// the caller; this layer only persists the encoded hash.
type CreateUserInput struct {
	Username     string
	PasswordHash string
	Now          time.Time
}

// Store is the user persistence boundary.
type Store interface {
	// CreateUser inserts a new user. A duplicate username yields a
	// ConflictError with Field "username".
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	// GetByUsername fetches a user by exact username. Missing users yield a
	// NotFoundError.
	GetByUsername(ctx context.Context, username string) (User, error)
}
