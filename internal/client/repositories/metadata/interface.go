package metadata

import "context"

// Well-known metadata keys.
const (
	KeyDeviceID    = "device_id"
	KeyDeviceName  = "device_name"
	KeyLastSyncAt  = "last_sync_at"
	KeyAccessToken = "access_token"
)

// Repository is a small key/value store for scalar client state: the device
// identity, the last successful sync timestamp and the session token.
type Repository interface {
	// Get returns the value for key, or nil when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
