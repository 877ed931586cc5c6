/*
store.go - Persistence interface for policy records and overrides

PURPOSE:
  Defines the interface between the settlement engine and whatever holds
  its externally settable state. The engine only needs a key-value store
  of JSON records and a way to hear about changes made elsewhere.

KEY INTERFACES:
  KVStore:    Get / Put / Delete / List by key prefix
  ChangeFeed: Cross-process "key changed" notifications

KEY CONVENTION:
  Keys are slash-separated namespaces:
    policy/allowance
    policy/travel_expense
    policy/counting_mode
    override/<educationId_instructorId_role>

IMPLEMENTATIONS:
  - generic/store/memory.go: In-memory for testing and dev (also a ChangeFeed)
  - store/sqlite: SQLite kv_records table
  - store/redis: Redis strings + pub/sub ChangeFeed
  - store/postgres: PostgreSQL kv_records table

SEE ALSO:
  - policy/store.go: Policy service built on KVStore
  - settlement/override.go: Override store built on KVStore
*/
package generic

import "context"

// =============================================================================
// KV STORE - Interface for keyed JSON records
// =============================================================================

// KVStore persists opaque values under string keys.
type KVStore interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put creates or replaces the value for key.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all entries whose key starts with prefix.
	List(ctx context.Context, prefix string) (map[string][]byte, error)
}

// =============================================================================
// CHANGE FEED - Cross-process change notification
// =============================================================================

// ChangeFeed broadcasts changed keys to every subscriber, including other
// processes sharing the same backend.
type ChangeFeed interface {
	// Publish announces that key changed.
	Publish(ctx context.Context, key string) error

	// Changes streams changed keys until ctx is canceled.
	Changes(ctx context.Context) (<-chan string, error)
}
