package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kpath-ai/kpath/domain/search"
)

// DefaultQueryTimeout bounds end-to-end query execution.
const DefaultQueryTimeout = 30 * time.Second

// Facade is the entry layer of the discovery core: request validation,
// dispatch to the planner, shaping, telemetry. It emits one structured log
// record per query.
type Facade struct {
	planner *Planner
	shaper  Shaper
	manager *Manager
	metrics *Metrics
	logger  *slog.Logger
	timeout time.Duration
}

// NewFacade creates a Facade. metrics may be nil; timeout <= 0 falls back
// to DefaultQueryTimeout.
func NewFacade(
	planner *Planner,
	shaper Shaper,
	manager *Manager,
	metrics *Metrics,
	logger *slog.Logger,
	timeout time.Duration,
) *Facade {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &Facade{
		planner: planner,
		shaper:  shaper,
		manager: manager,
		metrics: metrics,
		logger:  logger,
		timeout: timeout,
	}
}

// Search validates and executes one query, returning the shaped envelope.
// Errors are always *search.Error values.
func (f *Facade) Search(ctx context.Context, callerID string, q search.Query) (Envelope, error) {
	if err := q.Validate(); err != nil {
		serr := search.Classify(err)
		f.observe(callerID, q, Envelope{}, 0, serr)
		return Envelope{}, serr
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	results, err := f.planner.Search(ctx, q)
	elapsed := time.Since(start)
	if err != nil {
		serr := search.Classify(err)
		f.observe(callerID, q, Envelope{}, elapsed, serr)
		return Envelope{}, serr
	}

	envelope, err := f.shaper.Shape(ctx, q, results, elapsed)
	if err != nil {
		serr := search.Classify(err)
		f.observe(callerID, q, Envelope{}, elapsed, serr)
		return Envelope{}, serr
	}

	f.observe(callerID, q, envelope, elapsed, nil)
	return envelope, nil
}

// Similar returns the services most similar to an existing one, excluding
// the service itself.
func (f *Facade) Similar(ctx context.Context, callerID string, serviceID int64, limit int) (Envelope, error) {
	if limit <= 0 {
		limit = search.DefaultLimit
	}
	if limit > search.MaxLimit {
		limit = search.MaxLimit
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	q := search.NewQuery(fmt.Sprintf("similar:%d", serviceID), search.WithLimit(limit))

	start := time.Now()
	results, err := f.planner.Similar(ctx, serviceID, limit)
	elapsed := time.Since(start)
	if err != nil {
		serr := search.Classify(err)
		f.observe(callerID, q, Envelope{}, elapsed, serr)
		return Envelope{}, serr
	}

	envelope, err := f.shaper.Shape(ctx, q, results, elapsed)
	if err != nil {
		serr := search.Classify(err)
		f.observe(callerID, q, Envelope{}, elapsed, serr)
		return Envelope{}, serr
	}

	f.observe(callerID, q, envelope, elapsed, nil)
	return envelope, nil
}

// Status returns the manager's state snapshot.
func (f *Facade) Status() Status {
	return f.manager.Status()
}

// TriggerRebuild starts a background full rebuild and returns immediately.
// Concurrent triggers coalesce onto the rebuild already in flight.
func (f *Facade) TriggerRebuild() {
	go func() {
		if err := f.manager.BuildAll(context.Background()); err != nil {
			f.logger.Error("triggered rebuild failed", "error", err)
		}
	}()
}

// ToolDetails returns the full projection of one tool.
func (f *Facade) ToolDetails(ctx context.Context, id int64) (map[string]any, error) {
	out, err := f.shaper.ToolDetails(ctx, id)
	if err != nil {
		return nil, search.Classify(err)
	}
	return out, nil
}

// ToolSchema returns the schemas of one tool.
func (f *Facade) ToolSchema(ctx context.Context, id int64) (map[string]any, error) {
	out, err := f.shaper.ToolSchema(ctx, id)
	if err != nil {
		return nil, search.Classify(err)
	}
	return out, nil
}

// ToolExamples returns the example calls of one tool.
func (f *Facade) ToolExamples(ctx context.Context, id int64) (map[string]any, error) {
	out, err := f.shaper.ToolExamples(ctx, id)
	if err != nil {
		return nil, search.Classify(err)
	}
	return out, nil
}

// ToolSummary returns the summary of one tool.
func (f *Facade) ToolSummary(ctx context.Context, id int64) (map[string]any, error) {
	out, err := f.shaper.ToolSummary(ctx, id)
	if err != nil {
		return nil, search.Classify(err)
	}
	return out, nil
}

// observe emits the per-query structured log record and metrics.
func (f *Facade) observe(callerID string, q search.Query, envelope Envelope, elapsed time.Duration, serr *search.Error) {
	status := "ok"
	attrs := []any{
		"caller_id", callerID,
		"mode", string(q.Mode()),
		"response_mode", string(q.ResponseMode()),
		"limit", q.Limit(),
		"total_results", envelope.TotalResults,
		"search_time_ms", elapsed.Milliseconds(),
	}
	if serr != nil {
		status = string(serr.Code())
		attrs = append(attrs, "error", serr.Error())
		f.logger.Warn("search query failed", attrs...)
	} else {
		f.logger.Info("search query", attrs...)
	}
	f.metrics.ObserveQuery(string(q.Mode()), status, elapsed)
}
