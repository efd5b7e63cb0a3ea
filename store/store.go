package store

import "context"

// Store persists serialized session snapshots keyed by prefix and key. The
// debugger writes a full snapshot after every command, so any Store
// implementation makes sessions survive a process restart.
type Store interface {
	Get(ctx context.Context, prefix, key string) ([]byte, error)
	Set(ctx context.Context, prefix, key string, value []byte) error
	/**
	 * Remove a prefix and key
	 * removing an unexists prefix + key would NOT return error
	 */
	Remove(ctx context.Context, prefix, key string) error

	List(ctx context.Context, prefix string, iterator func(key string) bool) error
}
