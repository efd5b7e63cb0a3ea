package flowdebug

import (
	"context"

	"github.com/juju/errors"

	"github.com/robostep/flowdebug/runtime"
	"github.com/robostep/flowdebug/session"
	"github.com/robostep/flowdebug/store"
	"github.com/robostep/flowdebug/store/mem"
	"github.com/robostep/flowdebug/store/postgres"
	"github.com/robostep/flowdebug/types"
)

// Debugger is the command surface for interactive flow debugging: create a
// session over a compiled flow, then drive it one node at a time. Every
// command persists the full session snapshot, so a Debugger built over a
// durable store resumes its sessions after a crash.
type Debugger interface {
	Start(ctx context.Context, nodes []types.NodeDefinition, breakpoints []string) (*session.Session, *types.Event, error)
	Step(ctx context.Context, sessionID string) (*session.Session, *types.Event, error)
	Continue(ctx context.Context, sessionID string) (*session.Session, *types.Event, error)
	Stop(ctx context.Context, sessionID string) (*session.Session, *types.Event, error)

	Variables(ctx context.Context, sessionID, nodeID string) (types.Data, error)
	GetSession(ctx context.Context, sessionID string) (*session.Session, error)
	Remove(ctx context.Context, sessionID string) error

	ReloadSessions() ([]string, error)
	ContinueAll() map[string]error
	Close()
}

// NewDebugger creates a debugger driving nodes through the given executor,
// with the snapshot store selected by the options
func NewDebugger(exec types.NodeExecutor, opts ...types.DebugOption) (Debugger, error) {
	if exec == nil {
		return nil, errors.BadRequestf("node executor is nil")
	}

	options := types.NewDebugOptions()
	for _, opt := range opts {
		opt(options)
	}

	var s store.Store
	var err error

	// PostgresConfig takes precedence over MemStore
	if options.PostgresConfig != nil {
		pgConfig := &postgres.Config{
			Host:     options.PostgresConfig.Host,
			Port:     options.PostgresConfig.Port,
			User:     options.PostgresConfig.User,
			Password: options.PostgresConfig.Password,
			Database: options.PostgresConfig.Database,
			SSLMode:  options.PostgresConfig.SSLMode,
		}

		s, err = postgres.NewPostgresStore(pgConfig)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to create PostgreSQL store")
		}
	} else if options.MemStore {
		s = mem.NewMemStore()
	} else {
		// Default to mem store if not specified
		s = mem.NewMemStore()
	}

	return runtime.NewEngine(s, exec, options), nil
}
