package auth

import "context"

// UserStore is the user directory.
type UserStore interface {
	// Create inserts u and fills ID and timestamps. Returns ErrAlreadyExists on a taken username.
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id int64) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
}

// RevocationStore keeps revoked tokens until their natural expiry.
type RevocationStore interface {
	// Add blacklists token. Adding a token twice is a no-op.
	Add(ctx context.Context, token string) error
	IsRevoked(ctx context.Context, token string) (bool, error)
	// PurgeExpired deletes entries whose expiry has passed and returns how many went.
	PurgeExpired(ctx context.Context) (int64, error)
}
