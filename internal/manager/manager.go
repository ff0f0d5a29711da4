// Package manager coordinates build submissions for serve mode: a bounded
// queue in front of a small worker pool, and an in-memory ledger of every
// build this process has accepted. Builds are heavyweight subprocess
// pipelines, so admission control lives here, not in the HTTP layer.
package manager

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"edgeforge/internal/orchestrator"
	"edgeforge/internal/registry"
	"edgeforge/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxQueueDepth = 8
	defaultWorkers       = 1
)

// Builder runs builds and plans. *orchestrator.Orchestrator satisfies it;
// tests substitute a fake.
type Builder interface {
	ExecuteWithID(ctx context.Context, id string, req types.BuildRequest) (*types.BuildRecord, error)
	Plan(req types.BuildRequest) (*orchestrator.Plan, error)
}

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Builder       Builder
	PackageRoot   string
	MaxQueueDepth int
	Workers       int
	Log           zerolog.Logger
}

type queuedBuild struct {
	id  string
	req types.BuildRequest
}

type Manager struct {
	mu      sync.RWMutex
	builds  map[string]*types.BuildRecord
	order   []string // submission order, oldest first
	stopped bool

	builder     Builder
	packageRoot string
	log         zerolog.Logger

	queue  chan queuedBuild
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}
}

// New constructs a Manager with package defaults.
func New(builder Builder, packageRoot string, log zerolog.Logger) *Manager {
	return NewWithConfig(ManagerConfig{Builder: builder, PackageRoot: packageRoot, Log: log})
}

// NewWithConfig constructs a Manager and starts its workers.
func NewWithConfig(cfg ManagerConfig) *Manager {
	depth := cfg.MaxQueueDepth
	if depth <= 0 {
		depth = defaultMaxQueueDepth
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		builds:      make(map[string]*types.BuildRecord),
		builder:     cfg.Builder,
		packageRoot: cfg.PackageRoot,
		log:         cfg.Log,
		queue:       make(chan queuedBuild, depth),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	m.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go m.worker()
	}
	go func() {
		m.wg.Wait()
		close(m.done)
	}()
	return m
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for qb := range m.queue {
		rec, err := m.builder.ExecuteWithID(m.ctx, qb.id, qb.req)
		if err != nil {
			ev := m.log.Error().Str("build_id", qb.id)
			if stage, ok := orchestrator.FailedStage(err); ok {
				ev = ev.Str("stage", string(stage))
			}
			if tail := orchestrator.StderrTail(err); tail != "" {
				ev = ev.Str("stderr_tail", tail)
			}
			ev.Err(err).Msg("build failed")
		}
		if rec == nil {
			continue
		}
		m.mu.Lock()
		m.builds[qb.id] = rec
		m.mu.Unlock()
	}
}

// Submit validates and enqueues a build. The returned record is the
// pending snapshot clients poll against; it carries the final build id.
func (m *Manager) Submit(req types.BuildRequest) (*types.BuildRecord, error) {
	if strings.TrimSpace(req.ModelSource) == "" {
		return nil, ErrValidation("model_source is required")
	}
	if req.Task == "" {
		return nil, ErrValidation("task is required")
	}
	name := orchestrator.DeriveModelName(req)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return nil, ErrTooBusy()
	}
	if id, active := m.activeLocked(name, req.Quant); active {
		return nil, ErrBuildConflict(name, req.Quant, id)
	}

	rec := &types.BuildRecord{
		ID:          orchestrator.NewBuildID(),
		ModelName:   name,
		Quant:       req.Quant,
		Task:        req.Task,
		State:       types.StatePending,
		SubmittedAt: time.Now().UTC(),
	}
	select {
	case m.queue <- queuedBuild{id: rec.ID, req: req}:
	default:
		return nil, ErrTooBusy()
	}
	m.builds[rec.ID] = rec
	m.order = append(m.order, rec.ID)

	snapshot := *rec
	return &snapshot, nil
}

// activeLocked reports whether a non-terminal build exists for the pair.
func (m *Manager) activeLocked(model, quant string) (string, bool) {
	for id, rec := range m.builds {
		if rec.ModelName != model || rec.Quant != quant {
			continue
		}
		if rec.State != types.StatePackaged && rec.State != types.StateFailed {
			return id, true
		}
	}
	return "", false
}

// Get returns a copy of one build record.
func (m *Manager) Get(id string) (*types.BuildRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.builds[id]
	if !ok {
		return nil, ErrBuildNotFound(id)
	}
	snapshot := *rec
	return &snapshot, nil
}

// List returns copies of all build records, newest submission first.
func (m *Manager) List() []types.BuildRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.BuildRecord, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		out = append(out, *m.builds[m.order[i]])
	}
	return out
}

// Counts returns (active, total) build counts for readiness and metrics.
func (m *Manager) Counts() (int, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	active := 0
	for _, rec := range m.builds {
		if rec.State != types.StatePackaged && rec.State != types.StateFailed {
			active++
		}
	}
	return active, len(m.builds)
}

// Plan delegates a dry run to the builder; nothing is queued.
func (m *Manager) Plan(req types.BuildRequest) (*orchestrator.Plan, error) {
	return m.builder.Plan(req)
}

// Packages lists the sealed packages under the package root.
func (m *Manager) Packages() ([]types.PackageRecord, error) {
	return registry.LoadDir(m.packageRoot, m.log)
}

// Ready reports whether the manager accepts submissions.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.stopped
}

// Close stops admission and waits for in-flight builds. When ctx expires
// first, running builds are cancelled and Close waits for the workers to
// observe it.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		<-m.done
		return nil
	}
	m.stopped = true
	close(m.queue)
	m.mu.Unlock()

	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		m.cancel()
		<-m.done
		return ctx.Err()
	}
}
