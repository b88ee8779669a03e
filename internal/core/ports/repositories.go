package ports

import "context"

// KVStore is the string key-value capability persistence code is written
// against. Get reports found=false for a missing key rather than an error.
type KVStore interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
