package types

import (
	"context"

	"github.com/mcuadros/go-defaults"
)

func NewDebugOptions() *DebugOptions {
	opts := &DebugOptions{Ctx: context.Background()}
	defaults.SetDefaults(opts)
	return opts
}

type DebugOptions struct {
	/**
	 * Base lifecycle context for the engine. Work the engine starts on its
	 * own initiative (ReloadSessions, ContinueAll) runs under it, and
	 * closing the engine cancels it.
	 */
	Ctx context.Context
	/**
	 * default: 10000
	 * Continue gives up and fails the session once this many nodes have
	 * been visited in one command. It is the safeguard against cyclic
	 * flows that never reach a terminal node.
	 */
	MaxNodeVisits int `default:"10000"`
	/**
	 * default: false, only set it to true when doing testing or developing.
	 */
	MemStore bool `default:"false"`
	/**
	 * default: 16
	 * Upper bound on sessions resumed concurrently by ContinueAll.
	 */
	MaxSessionConcurrency int `default:"16"`

	// PostgreSQL store configuration.
	// If both MemStore and PostgresConfig are set, PostgresConfig takes precedence.
	PostgresConfig *PostgresConfig
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // disable, require, verify-ca, verify-full
}

type DebugOption func(*DebugOptions)

func WithContext(ctx context.Context) DebugOption {
	return func(opts *DebugOptions) {
		opts.Ctx = ctx
	}
}

func SetMaxNodeVisits(limit int) DebugOption {
	return func(opts *DebugOptions) {
		opts.MaxNodeVisits = limit
	}
}

func SetMaxSessionConcurrency(concurrency int) DebugOption {
	return func(opts *DebugOptions) {
		opts.MaxSessionConcurrency = concurrency
	}
}

func EnableMemStore() DebugOption {
	return func(opts *DebugOptions) {
		opts.MemStore = true
	}
}

// WithPostgresConfig configures the engine to persist snapshots in PostgreSQL
func WithPostgresConfig(config *PostgresConfig) DebugOption {
	return func(opts *DebugOptions) {
		opts.PostgresConfig = config
	}
}
