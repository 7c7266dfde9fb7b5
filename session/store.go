package session

import "context"

// Storage keys for the persisted session. No other component reads or writes
// these keys.
const (
	TokenKey = "mychefai.session.token"
	UserKey  = "mychefai.session.user"
)

// Store is the durable key-value storage used to persist a session across
// process restarts. Get reports found=false for an absent key rather than an
// error.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
