package cache

import (
	"context"
	"fmt"
)

// PredictionKey addresses one stored prediction.
// Hash is the hex sha256 of the normalized selection.
type PredictionKey struct {
	VersionID string
	Hash      string
}

// String converts the structured key into the final string used in Redis/map.
func (k PredictionKey) String() string {
	// predict:<VERSION_ID>:<HASH_HEX>
	return fmt.Sprintf("predict:%s:%s", k.VersionID, k.Hash)
}

// PredictionStore is the memo table behind the predictor.
// Implemented by memory store (single process) and Redis store (shared).
//
// Entries are write-once: PutIfAbsent never replaces an existing value,
// and nothing removes entries during normal operation.
type PredictionStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// PutIfAbsent stores value under key unless key is already present.
	// It returns the value now held for key and whether this call inserted it.
	PutIfAbsent(ctx context.Context, key string, value []byte) ([]byte, bool, error)
	Len(ctx context.Context) (int, error)
}
