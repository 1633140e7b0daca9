package sessions

import "context"

// Repo persists the session record so a restarted client can resume it.
// Implementations store the Codec's encoding and never interpret it.
type Repo interface {
	// Load returns errors.ErrSessionNotFound when nothing is stored under key
	Load(ctx context.Context, key string) ([]byte, error)

	// Save replaces whatever is stored under key
	Save(ctx context.Context, key string, data []byte) error

	// Delete is a no-op for a missing key
	Delete(ctx context.Context, key string) error
}
