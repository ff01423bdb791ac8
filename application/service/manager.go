// Package service provides application layer services that orchestrate the
// discovery core: the search manager owning both vector indexes, the query
// planner, the response shaper, and the search facade.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kpath-ai/kpath/domain/registry"
	"github.com/kpath-ai/kpath/domain/search"
)

// State is the build lifecycle state of the search manager.
type State string

// Manager states.
const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateReady         State = "ready"
	StateRebuilding    State = "rebuilding"
	StateFailed        State = "failed"
)

// Snapshot names under the index directory.
const (
	servicesSnapshot = "services"
	toolsSnapshot    = "tools"
)

const (
	// DefaultBatchSize is the number of texts embedded per batch during a
	// rebuild.
	DefaultBatchSize = 64

	// embedConcurrency bounds how many batches embed in parallel.
	embedConcurrency = 4
)

// Fitter is the optional corpus-fitting hook of an embedding backend. The
// lexical backend must be fitted on the full document corpus before it can
// embed; the manager fits it at the start of every full rebuild.
type Fitter interface {
	Fit(ctx context.Context, documents []string) error
}

// Status is a point-in-time snapshot of the manager's state.
type Status struct {
	state        State
	serviceCount int
	toolCount    int
	model        string
	dim          int
	lastBuiltAt  time.Time
	lastError    string
}

// State returns the lifecycle state.
func (s Status) State() State { return s.state }

// Built reports whether both indexes are queryable.
func (s Status) Built() bool {
	return s.state == StateReady || s.state == StateRebuilding
}

// ServiceCount returns the live service index size.
func (s Status) ServiceCount() int { return s.serviceCount }

// ToolCount returns the live tool index size.
func (s Status) ToolCount() int { return s.toolCount }

// Model returns the embedding model name.
func (s Status) Model() string { return s.model }

// Dim returns the embedding dimension.
func (s Status) Dim() int { return s.dim }

// LastBuiltAt returns when the last successful full rebuild finished.
func (s Status) LastBuiltAt() time.Time { return s.lastBuiltAt }

// LastError returns the last rebuild error, empty when none.
func (s Status) LastError() string { return s.lastError }

// buildFuture is the coalescing handle of an in-flight rebuild. A second
// rebuild request while one is running waits on the same future.
type buildFuture struct {
	done chan struct{}
	err  error
}

// Manager owns the two live vector indexes and their snapshots. It is the
// only component that mutates them; queries read through atomic snapshots
// and are never blocked by a rebuild.
type Manager struct {
	reader    registry.Reader
	embedder  search.Embedder
	fitter    Fitter
	store     search.SnapshotStore
	newIndex  func() search.Index
	batchSize int
	metrics   *Metrics
	logger    *slog.Logger

	mu          sync.Mutex
	state       State
	services    search.Index
	tools       search.Index
	inflight    *buildFuture
	lastBuiltAt time.Time
	lastErr     error

	// buildMu serializes index writers: rebuilds and incremental
	// mutations are mutually exclusive per index pair.
	buildMu sync.Mutex
}

// NewManager creates a Manager. fitter may be nil for backends that need no
// corpus fitting; metrics may be nil.
func NewManager(
	reader registry.Reader,
	embedder search.Embedder,
	fitter Fitter,
	store search.SnapshotStore,
	newIndex func() search.Index,
	batchSize int,
	metrics *Metrics,
	logger *slog.Logger,
) *Manager {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		reader:    reader,
		embedder:  embedder,
		fitter:    fitter,
		store:     store,
		newIndex:  newIndex,
		batchSize: batchSize,
		metrics:   metrics,
		logger:    logger,
		state:     StateUninitialized,
	}
}

// Start attempts to restore both indexes from snapshots. On success the
// manager transitions to Ready; on a missing or incompatible snapshot it
// stays in Loading and schedules a background full rebuild. Queries issued
// before the rebuild completes get an IndexNotReady error.
func (m *Manager) Start(ctx context.Context) error {
	model := m.embedder.Identifier()

	svcIdx, svcBuiltAt, svcErr := m.store.Load(servicesSnapshot, model)
	toolIdx, _, toolErr := m.store.Load(toolsSnapshot, model)

	if svcErr == nil && toolErr == nil {
		m.mu.Lock()
		m.services = svcIdx
		m.tools = toolIdx
		m.state = StateReady
		m.lastBuiltAt = svcBuiltAt
		m.mu.Unlock()

		m.metrics.SetIndexSize(servicesSnapshot, svcIdx.Size())
		m.metrics.SetIndexSize(toolsSnapshot, toolIdx.Size())
		m.logger.Info("index snapshots restored",
			"services", svcIdx.Size(),
			"tools", toolIdx.Size(),
			"model", model.String(),
			"built_at", svcBuiltAt,
		)
		return nil
	}

	reason := svcErr
	if reason == nil {
		reason = toolErr
	}
	m.logger.Warn("index snapshots unusable, scheduling rebuild", "reason", reason)

	m.mu.Lock()
	m.state = StateLoading
	m.mu.Unlock()

	go func() {
		if err := m.BuildAll(context.Background()); err != nil {
			m.logger.Error("background rebuild failed", "error", err)
		}
	}()
	return nil
}

// BuildAll rebuilds both indexes from the registry and persists snapshots.
// Idempotent. Concurrent callers coalesce onto the rebuild already in
// flight and share its outcome.
func (m *Manager) BuildAll(ctx context.Context) error {
	m.mu.Lock()
	if f := m.inflight; f != nil {
		m.mu.Unlock()
		select {
		case <-f.done:
			return f.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f := &buildFuture{done: make(chan struct{})}
	m.inflight = f
	if m.state == StateReady {
		m.state = StateRebuilding
	} else {
		m.state = StateLoading
	}
	m.mu.Unlock()

	err := m.rebuildAll(ctx)

	m.mu.Lock()
	m.inflight = nil
	if err != nil {
		m.lastErr = err
		// The prior indexes, if any, remain authoritative after a failed
		// rebuild.
		if m.services != nil && m.tools != nil {
			m.state = StateReady
		} else {
			m.state = StateFailed
		}
	} else {
		m.lastErr = nil
		m.state = StateReady
		m.lastBuiltAt = time.Now().UTC()
	}
	m.mu.Unlock()

	f.err = err
	close(f.done)
	return err
}

// rebuildAll builds fresh indexes off to the side, persists them, then
// atomically publishes both. Readers continue on the prior indexes until
// the swap.
func (m *Manager) rebuildAll(ctx context.Context) error {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()

	started := time.Now()

	services, err := m.reader.ActiveServices(ctx)
	if err != nil {
		return fmt.Errorf("read active services: %w", err)
	}
	tools, err := m.reader.ActiveTools(ctx)
	if err != nil {
		return fmt.Errorf("read active tools: %w", err)
	}

	svcTexts := make([]string, len(services))
	for i, svc := range services {
		svcTexts[i] = search.ComposeService(svc)
	}
	toolTexts := make([]string, len(tools))
	for i, tool := range tools {
		toolTexts[i] = search.ComposeTool(tool)
	}

	if m.fitter != nil {
		docs := make([]string, 0, len(svcTexts)+len(toolTexts))
		docs = append(docs, svcTexts...)
		docs = append(docs, toolTexts...)
		if err := m.fitter.Fit(ctx, docs); err != nil {
			return fmt.Errorf("fit embedding backend: %w", err)
		}
	}

	svcVecs, err := m.embedAll(ctx, svcTexts)
	if err != nil {
		return err
	}
	toolVecs, err := m.embedAll(ctx, toolTexts)
	if err != nil {
		return err
	}

	svcIdx := m.newIndex()
	for i, svc := range services {
		entry := search.NewEntry(svc.ID(), svcVecs[i], servicePayload(svc))
		if err := svcIdx.Add(entry); err != nil {
			return fmt.Errorf("index service %d: %w", svc.ID(), err)
		}
	}
	toolIdx := m.newIndex()
	for i, tool := range tools {
		payload := search.NewToolPayload(tool.Name(), tool.Description(), tool.ServiceID())
		if err := toolIdx.Add(search.NewEntry(tool.ID(), toolVecs[i], payload)); err != nil {
			return fmt.Errorf("index tool %d: %w", tool.ID(), err)
		}
	}

	builtAt := time.Now().UTC()
	if err := m.store.Save(servicesSnapshot, svcIdx, builtAt); err != nil {
		return fmt.Errorf("persist services snapshot: %w", err)
	}
	if err := m.store.Save(toolsSnapshot, toolIdx, builtAt); err != nil {
		return fmt.Errorf("persist tools snapshot: %w", err)
	}

	m.mu.Lock()
	m.services = svcIdx
	m.tools = toolIdx
	m.mu.Unlock()

	m.metrics.SetIndexSize(servicesSnapshot, svcIdx.Size())
	m.metrics.SetIndexSize(toolsSnapshot, toolIdx.Size())
	m.metrics.ObserveRebuild()
	m.logger.Info("indexes rebuilt",
		"services", svcIdx.Size(),
		"tools", toolIdx.Size(),
		"model", m.embedder.Identifier().String(),
		"duration", time.Since(started),
	)
	return nil
}

// RebuildServices rebuilds only the services index.
func (m *Manager) RebuildServices(ctx context.Context) error {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()

	services, err := m.reader.ActiveServices(ctx)
	if err != nil {
		return fmt.Errorf("read active services: %w", err)
	}
	texts := make([]string, len(services))
	for i, svc := range services {
		texts[i] = search.ComposeService(svc)
	}
	vecs, err := m.embedAll(ctx, texts)
	if err != nil {
		return err
	}

	idx := m.newIndex()
	for i, svc := range services {
		if err := idx.Add(search.NewEntry(svc.ID(), vecs[i], servicePayload(svc))); err != nil {
			return fmt.Errorf("index service %d: %w", svc.ID(), err)
		}
	}
	if err := m.store.Save(servicesSnapshot, idx, time.Now().UTC()); err != nil {
		return fmt.Errorf("persist services snapshot: %w", err)
	}

	m.mu.Lock()
	m.services = idx
	m.mu.Unlock()
	m.metrics.SetIndexSize(servicesSnapshot, idx.Size())
	return nil
}

// RebuildTools rebuilds only the tools index.
func (m *Manager) RebuildTools(ctx context.Context) error {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()

	tools, err := m.reader.ActiveTools(ctx)
	if err != nil {
		return fmt.Errorf("read active tools: %w", err)
	}
	texts := make([]string, len(tools))
	for i, tool := range tools {
		texts[i] = search.ComposeTool(tool)
	}
	vecs, err := m.embedAll(ctx, texts)
	if err != nil {
		return err
	}

	idx := m.newIndex()
	for i, tool := range tools {
		payload := search.NewToolPayload(tool.Name(), tool.Description(), tool.ServiceID())
		if err := idx.Add(search.NewEntry(tool.ID(), vecs[i], payload)); err != nil {
			return fmt.Errorf("index tool %d: %w", tool.ID(), err)
		}
	}
	if err := m.store.Save(toolsSnapshot, idx, time.Now().UTC()); err != nil {
		return fmt.Errorf("persist tools snapshot: %w", err)
	}

	m.mu.Lock()
	m.tools = idx
	m.mu.Unlock()
	m.metrics.SetIndexSize(toolsSnapshot, idx.Size())
	return nil
}

// UpsertService re-reads one service from the registry and replaces its
// index entry. A service that no longer resolves (deleted or deactivated)
// is removed, cascading to its tools. Waits out any rebuild in flight.
func (m *Manager) UpsertService(ctx context.Context, id int64) error {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()

	svcIdx, _, err := m.liveIndexes()
	if err != nil {
		return err
	}

	svc, err := m.reader.Service(ctx, id)
	if errors.Is(err, registry.ErrNotFound) {
		return m.deleteServiceLocked(id)
	}
	if err != nil {
		return fmt.Errorf("read service %d: %w", id, err)
	}

	vecs, err := m.embedder.Embed(ctx, []string{search.ComposeService(svc)})
	if err != nil {
		return err
	}
	if err := svcIdx.Replace(search.NewEntry(id, vecs[0], servicePayload(svc))); err != nil {
		return fmt.Errorf("replace service %d: %w", id, err)
	}

	m.metrics.SetIndexSize(servicesSnapshot, svcIdx.Size())
	return m.store.Save(servicesSnapshot, svcIdx, time.Now().UTC())
}

// UpsertTool re-reads one tool from the registry and replaces its index
// entry. A tool that no longer resolves is removed. Waits out any rebuild
// in flight.
func (m *Manager) UpsertTool(ctx context.Context, id int64) error {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()

	_, toolIdx, err := m.liveIndexes()
	if err != nil {
		return err
	}

	tool, err := m.reader.Tool(ctx, id)
	if errors.Is(err, registry.ErrNotFound) {
		return m.deleteToolLocked(id)
	}
	if err != nil {
		return fmt.Errorf("read tool %d: %w", id, err)
	}

	vecs, err := m.embedder.Embed(ctx, []string{search.ComposeTool(tool)})
	if err != nil {
		return err
	}
	payload := search.NewToolPayload(tool.Name(), tool.Description(), tool.ServiceID())
	if err := toolIdx.Replace(search.NewEntry(id, vecs[0], payload)); err != nil {
		return fmt.Errorf("replace tool %d: %w", id, err)
	}

	m.metrics.SetIndexSize(toolsSnapshot, toolIdx.Size())
	return m.store.Save(toolsSnapshot, toolIdx, time.Now().UTC())
}

// DeleteService removes a service from the index and cascades to its tools.
// Waits out any rebuild in flight.
func (m *Manager) DeleteService(_ context.Context, id int64) error {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()
	return m.deleteServiceLocked(id)
}

// deleteServiceLocked requires buildMu to be held.
func (m *Manager) deleteServiceLocked(id int64) error {
	svcIdx, toolIdx, err := m.liveIndexes()
	if err != nil {
		return err
	}

	svcIdx.Remove(id)
	for _, entry := range toolIdx.Entries() {
		if entry.Payload().ParentID() == id {
			toolIdx.Remove(entry.ID())
		}
	}

	m.metrics.SetIndexSize(servicesSnapshot, svcIdx.Size())
	m.metrics.SetIndexSize(toolsSnapshot, toolIdx.Size())
	now := time.Now().UTC()
	if err := m.store.Save(servicesSnapshot, svcIdx, now); err != nil {
		return err
	}
	return m.store.Save(toolsSnapshot, toolIdx, now)
}

// DeleteTool removes a single tool from the index. Idempotent. Waits out
// any rebuild in flight.
func (m *Manager) DeleteTool(_ context.Context, id int64) error {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()
	return m.deleteToolLocked(id)
}

// deleteToolLocked requires buildMu to be held.
func (m *Manager) deleteToolLocked(id int64) error {
	_, toolIdx, err := m.liveIndexes()
	if err != nil {
		return err
	}
	toolIdx.Remove(id)
	m.metrics.SetIndexSize(toolsSnapshot, toolIdx.Size())
	return m.store.Save(toolsSnapshot, toolIdx, time.Now().UTC())
}

// SearchServices searches the services index.
func (m *Manager) SearchServices(_ context.Context, query []float32, k int) ([]search.Hit, error) {
	idx, err := m.readyIndex(servicesSnapshot)
	if err != nil {
		return nil, err
	}
	return idx.Search(query, k), nil
}

// SearchTools searches the tools index.
func (m *Manager) SearchTools(_ context.Context, query []float32, k int) ([]search.Hit, error) {
	idx, err := m.readyIndex(toolsSnapshot)
	if err != nil {
		return nil, err
	}
	return idx.Search(query, k), nil
}

// ServiceEntry returns the live index entry for a service id, if present.
func (m *Manager) ServiceEntry(id int64) (search.Entry, bool) {
	m.mu.Lock()
	idx := m.services
	m.mu.Unlock()
	if idx == nil {
		return search.Entry{}, false
	}
	return idx.Get(id)
}

// Status returns a point-in-time snapshot of the manager's state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		state:       m.state,
		model:       m.embedder.Identifier().Name(),
		dim:         m.embedder.Identifier().Dim(),
		lastBuiltAt: m.lastBuiltAt,
	}
	if m.services != nil {
		st.serviceCount = m.services.Size()
	}
	if m.tools != nil {
		st.toolCount = m.tools.Size()
	}
	if m.lastErr != nil {
		st.lastError = m.lastErr.Error()
	}
	return st
}

// liveIndexes returns both indexes regardless of size, erroring only when
// they have not been created yet.
func (m *Manager) liveIndexes() (search.Index, search.Index, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.services == nil || m.tools == nil {
		return nil, nil, search.ErrIndexNotReady(fmt.Sprintf("index state is %s", m.state))
	}
	return m.services, m.tools, nil
}

// readyIndex returns the named index when it is queryable: the manager is
// Ready or Rebuilding (pre-rebuild snapshot serves) and the index is
// non-empty.
func (m *Manager) readyIndex(name string) (search.Index, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var idx search.Index
	if name == servicesSnapshot {
		idx = m.services
	} else {
		idx = m.tools
	}
	if idx == nil || (m.state != StateReady && m.state != StateRebuilding) {
		return nil, search.ErrIndexNotReady(fmt.Sprintf("index state is %s", m.state))
	}
	if idx.Size() == 0 {
		return nil, search.ErrIndexNotReady("index is empty")
	}
	return idx, nil
}

// embedAll embeds texts in batches, a bounded number in parallel, and
// reassembles the vectors in input order.
func (m *Manager) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for start := 0; start < len(texts); start += m.batchSize {
		end := min(start+m.batchSize, len(texts))
		g.Go(func() error {
			vecs, err := m.embedder.Embed(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed batch at %d: %w", start, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embed batch at %d: got %d vectors for %d texts", start, len(vecs), end-start)
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// servicePayload projects a service record into its index payload.
func servicePayload(svc registry.Service) search.Payload {
	caps := make([]search.CapabilityTag, 0, len(svc.Capabilities()))
	for _, c := range svc.Capabilities() {
		caps = append(caps, search.NewCapabilityTag(c.Name(), c.Description()))
	}
	return search.NewServicePayload(svc.Name(), svc.Description(), svc.Domains(), caps)
}
