package runtime

import (
	"context"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/robostep/flowdebug/graph"
	"github.com/robostep/flowdebug/session"
	"github.com/robostep/flowdebug/store"
	"github.com/robostep/flowdebug/types"
	"github.com/robostep/flowdebug/utils"
)

const (
	SessionPath = "/session/"
)

/**
 * Engine is the store-backed convenience layer over the pure session
 * commands. The state machine itself is stateless: every command takes the
 * prior snapshot and returns a new one. Engine adds what a long-running
 * caller wants on top of that: it keeps the latest snapshot per session id,
 * persists every transition, and can reload the whole set after a restart.
 *
 * Each session is driven under its own lock; independent sessions never
 * contend. The lock is held across the adapter call on purpose - a session
 * must only ever be driven by one caller at a time.
 */
type Engine struct {
	store store.Store
	exec  types.NodeExecutor
	opts  *types.DebugOptions

	// ctx is derived from the options' base context; work the engine starts
	// on its own initiative runs under it, and Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	wp *workerpool.WorkerPool

	mu      sync.Mutex
	handles map[string]*sessionHandle
}

type sessionHandle struct {
	mu   sync.Mutex
	snap *session.Session
}

func NewEngine(s store.Store, exec types.NodeExecutor, opts *types.DebugOptions) *Engine {
	if opts == nil {
		opts = types.NewDebugOptions()
	}
	base := opts.Ctx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)
	return &Engine{
		store:   s,
		exec:    exec,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		wp:      workerpool.New(opts.MaxSessionConcurrency),
		handles: make(map[string]*sessionHandle),
	}
}

// Start compiles the node list into a flow graph, creates a paused session
// and persists its first snapshot.
func (e *Engine) Start(ctx context.Context, nodes []types.NodeDefinition, breakpoints []string) (*session.Session, *types.Event, error) {
	flow, err := graph.New(nodes)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}

	snap, ev, err := session.Start(flow, breakpoints, e.opts)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	if err := e.save(ctx, snap); err != nil {
		return nil, nil, errors.Trace(err)
	}

	e.mu.Lock()
	e.handles[snap.SessionID] = &sessionHandle{snap: snap}
	e.mu.Unlock()

	out, err := snap.Clone()
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	return out, ev, nil
}

// Step advances the session by exactly one node.
func (e *Engine) Step(ctx context.Context, sessionID string) (*session.Session, *types.Event, error) {
	return e.apply(ctx, sessionID, func(prior *session.Session) (*session.Session, *types.Event, error) {
		return session.Step(ctx, prior, e.exec)
	})
}

// Continue resumes the session until a breakpoint or a terminal outcome.
func (e *Engine) Continue(ctx context.Context, sessionID string) (*session.Session, *types.Event, error) {
	return e.apply(ctx, sessionID, func(prior *session.Session) (*session.Session, *types.Event, error) {
		return session.Continue(ctx, prior, e.exec)
	})
}

// Stop freezes the session; stopping a terminal session is a no-op.
func (e *Engine) Stop(ctx context.Context, sessionID string) (*session.Session, *types.Event, error) {
	return e.apply(ctx, sessionID, func(prior *session.Session) (*session.Session, *types.Event, error) {
		return session.Stop(prior)
	})
}

// Variables returns the node's local bindings, or the global scope when
// nodeID is empty.
func (e *Engine) Variables(ctx context.Context, sessionID, nodeID string) (types.Data, error) {
	h, err := e.handle(ctx, sessionID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return session.Variables(h.snap, nodeID), nil
}

// GetSession returns the latest snapshot for the session id. The snapshot is
// a copy owned by the caller; mutating it does not affect the session.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*session.Session, error) {
	h, err := e.handle(ctx, sessionID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	snap, err := h.snap.Clone()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return snap, nil
}

// Remove discards a session and its persisted snapshot.
func (e *Engine) Remove(ctx context.Context, sessionID string) error {
	e.mu.Lock()
	delete(e.handles, sessionID)
	e.mu.Unlock()
	return errors.Trace(e.store.Remove(ctx, SessionPath, sessionID))
}

// ReloadSessions loads every persisted session from the store, reattaching
// the ones not already held. It returns the ids now available. The load runs
// under the engine's base context.
func (e *Engine) ReloadSessions() ([]string, error) {
	ids := make([]string, 0)
	err := e.store.List(e.ctx, SessionPath, func(sessionID string) bool {
		ids = append(ids, sessionID)
		return true
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	for _, sessionID := range ids {
		if _, err := e.handle(e.ctx, sessionID); err != nil {
			log.Errorf("failed to reload session %s: %v", sessionID, err)
		}
	}
	return ids, nil
}

// ContinueAll resumes every live non-terminal session on the worker pool and
// waits for all of them. The per-session error (nil on success) is keyed by
// session id. Each resume runs under the engine's base context, so closing
// the engine cancels resumes still in flight.
func (e *Engine) ContinueAll() map[string]error {
	e.mu.Lock()
	handles := utils.CloneMap(e.handles)
	e.mu.Unlock()

	ids := make([]string, 0, len(handles))
	for _, sessionID := range utils.SortedKeys(handles) {
		h := handles[sessionID]
		h.mu.Lock()
		terminal := h.snap.State.Terminal()
		h.mu.Unlock()
		if !terminal {
			ids = append(ids, sessionID)
		}
	}

	var (
		wg     sync.WaitGroup
		retMu  sync.Mutex
		result = make(map[string]error, len(ids))
	)
	for _, sessionID := range ids {
		sessionID := sessionID
		wg.Add(1)
		e.wp.Submit(func() {
			defer wg.Done()
			_, _, err := e.Continue(e.ctx, sessionID)
			retMu.Lock()
			result[sessionID] = err
			retMu.Unlock()
		})
	}
	wg.Wait()
	return result
}

// Close cancels the engine's base context, waits for in-flight pool work and
// releases the pool. Sessions stay persisted; a new engine over the same
// store picks them up via ReloadSessions.
func (e *Engine) Close() {
	e.cancel()
	e.wp.StopWait()
}

func (e *Engine) apply(ctx context.Context, sessionID string,
	command func(*session.Session) (*session.Session, *types.Event, error)) (*session.Session, *types.Event, error) {
	h, err := e.handle(ctx, sessionID)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	next, ev, err := command(h.snap)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	if err := e.save(ctx, next); err != nil {
		return nil, nil, errors.Trace(err)
	}
	h.snap = next

	// callers own what they receive; the handle keeps its own copy
	out, err := next.Clone()
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	return out, ev, nil
}

func (e *Engine) handle(ctx context.Context, sessionID string) (*sessionHandle, error) {
	e.mu.Lock()
	if h, exists := e.handles[sessionID]; exists {
		e.mu.Unlock()
		return h, nil
	}
	e.mu.Unlock()

	snap, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, errors.Trace(err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if h, exists := e.handles[sessionID]; exists {
		return h, nil
	}
	h := &sessionHandle{snap: snap}
	e.handles[sessionID] = h
	return h, nil
}

func (e *Engine) save(ctx context.Context, snap *session.Session) error {
	b, err := snap.Serialize()
	if err != nil {
		return errors.Trace(err)
	}
	if err := e.store.Set(ctx, SessionPath, snap.SessionID, b); err != nil {
		log.Errorf("failed to persist session %s: %v", snap.SessionID, err)
		return errors.Trace(err)
	}
	return nil
}

func (e *Engine) load(ctx context.Context, sessionID string) (*session.Session, error) {
	b, err := e.store.Get(ctx, SessionPath, sessionID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if b == nil {
		return nil, errors.NotFoundf("session: %s", sessionID)
	}
	snap, err := session.Deserialize(b)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return snap, nil
}
