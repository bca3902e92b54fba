// Package engine orchestrates the per-event detection pipeline: normalize,
// enrich, evaluate, score, suppress, emit. One engine instance serves all
// tenants; isolation happens through tenant-scoped state keys and a
// per-tenant worker cap.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stratuswatch/detect-engine/internal/catalog"
	"github.com/stratuswatch/detect-engine/internal/config"
	"github.com/stratuswatch/detect-engine/internal/contextprov"
	"github.com/stratuswatch/detect-engine/internal/correlation"
	"github.com/stratuswatch/detect-engine/internal/emitter"
	"github.com/stratuswatch/detect-engine/internal/metrics"
	"github.com/stratuswatch/detect-engine/internal/models"
	"github.com/stratuswatch/detect-engine/internal/normalizer"
	"github.com/stratuswatch/detect-engine/internal/suppression"
	"github.com/stratuswatch/detect-engine/pkg/logging"
)

var (
	// ErrBackpressure signals that the tenant's worker capacity is
	// exhausted and the batch must be retried later.
	ErrBackpressure = errors.New("tenant worker capacity exhausted")

	// ErrBatchTooLarge signals a batch above the configured size bound.
	ErrBatchTooLarge = errors.New("batch exceeds maximum size")
)

// Engine evaluates event batches against the active rule catalog.
type Engine struct {
	cfg config.EngineConfig
	log *logging.Logger

	mu      sync.RWMutex
	catalog *catalog.Catalog

	norm     *normalizer.Normalizer
	provider contextprov.Provider
	states   *correlation.MatchStateStore
	registry *correlation.Registry
	dedupe   suppression.Store
	emitter  *emitter.Emitter

	tenantMu    sync.Mutex
	tenantSlots map[string]chan struct{}

	evalErrors atomic.Int64
}

// New wires an Engine from its collaborators.
func New(cfg config.EngineConfig, cat *catalog.Catalog, provider contextprov.Provider, dedupe suppression.Store, em *emitter.Emitter, log *logging.Logger) *Engine {
	if log == nil {
		log = logging.Default()
	}
	states := correlation.NewMatchStateStore(cfg.RetentionEvents)
	defaultWindow := time.Duration(cfg.CorrelationTimeWindowSecs) * time.Second

	return &Engine{
		cfg:         cfg,
		log:         log,
		catalog:     cat,
		norm:        normalizer.New(time.Duration(cfg.MaxEventAgeSeconds) * time.Second),
		provider:    provider,
		states:      states,
		registry:    correlation.NewRegistry(states, cfg.AllowFindingsWithoutContext, defaultWindow),
		dedupe:      dedupe,
		emitter:     em,
		tenantSlots: make(map[string]chan struct{}),
	}
}

// Catalog returns the current rule catalog snapshot.
func (e *Engine) Catalog() *catalog.Catalog {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.catalog
}

// ReplaceCatalog swaps in a new catalog snapshot. In-flight batches keep
// evaluating against the snapshot they started with.
func (e *Engine) ReplaceCatalog(cat *catalog.Catalog) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.catalog = cat
}

// ProcessBatch evaluates the batch across worker routines, one worker per
// event, capped per tenant. The whole batch is rejected for size violations
// or tenant backpressure; individual malformed events are rejected per event.
func (e *Engine) ProcessBatch(ctx context.Context, req *models.EventBatchRequest) (*models.EventBatchResponse, error) {
	if len(req.Events) == 0 {
		return &models.EventBatchResponse{Results: []models.EventResult{}}, nil
	}
	if e.cfg.MaxBatchSize > 0 && len(req.Events) > e.cfg.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d events, limit %d", ErrBatchTooLarge, len(req.Events), e.cfg.MaxBatchSize)
	}

	slots := e.slotsFor(req.TenantID)

	// Batch admission: a tenant with every worker slot busy is rejected
	// outright so the caller retries, instead of queueing unbounded work.
	// The admission slot is consumed by the first worker.
	select {
	case slots <- struct{}{}:
	default:
		metrics.BackpressureRejections.WithLabelValues(req.TenantID).Inc()
		return nil, ErrBackpressure
	}
	slotHeld := true

	start := time.Now()
	defer func() {
		metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	}()

	cat := e.Catalog()
	cache := contextprov.NewCache(e.provider)
	budget := newFindingBudget(e.cfg.MaxFindingsPerRequest)

	// Duplicate IDs are screened on the dispatch path so workers see a
	// fixed event set.
	seen := make(map[string]bool, len(req.Events))
	results := make([]models.EventResult, len(req.Events))

	var wg sync.WaitGroup
	for i := range req.Events {
		raw := &req.Events[i]

		if raw.EventID != "" && seen[raw.EventID] {
			metrics.EventsTotal.WithLabelValues(models.EventStatusRejected).Inc()
			metrics.EventsRejected.WithLabelValues(models.RejectReasonDuplicate).Inc()
			results[i] = models.EventResult{
				EventID: raw.EventID,
				Status:  rejectedStatus(models.RejectReasonDuplicate),
			}
			continue
		}
		seen[raw.EventID] = true

		if !slotHeld {
			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
				wg.Wait()
				return nil, ctx.Err()
			}
		}
		slotHeld = false

		wg.Add(1)
		go func(i int, raw *models.RawEvent) {
			defer wg.Done()
			defer func() { <-slots }()
			results[i] = e.processEvent(ctx, raw, req.TenantID, cat, cache, budget)
		}(i, raw)
	}
	wg.Wait()

	return &models.EventBatchResponse{Results: results}, nil
}

func (e *Engine) processEvent(ctx context.Context, raw *models.RawEvent, tenantID string, cat *catalog.Catalog, cache *contextprov.Cache, budget *findingBudget) models.EventResult {
	event, err := e.norm.Normalize(raw, tenantID)
	if err != nil {
		reason := models.RejectReasonMalformed
		var rejection *normalizer.RejectionError
		if errors.As(err, &rejection) {
			reason = rejection.Reason
		}
		metrics.EventsTotal.WithLabelValues(models.EventStatusRejected).Inc()
		metrics.EventsRejected.WithLabelValues(reason).Inc()
		return models.EventResult{
			EventID: raw.EventID,
			Status:  rejectedStatus(reason),
		}
	}
	metrics.EventsTotal.WithLabelValues(models.EventStatusAccepted).Inc()

	result := models.EventResult{
		EventID: event.EventID,
		Status:  models.EventStatusAccepted,
	}

	rules := cat.Active(event.EventType)
	if len(rules) == 0 {
		return result
	}

	snapshot := e.fetchContext(ctx, event, rules, cache)

	for _, rule := range rules {
		if !snapshot.HasAll(rule.RequiredContext) && !e.cfg.AllowFindingsWithoutContext {
			// Missing context never produces a false positive.
			continue
		}

		match, err := e.registry.Evaluate(ctx, rule, event, snapshot)
		if err != nil {
			// One broken rule must not poison the rest of the batch.
			e.evalErrors.Add(1)
			metrics.EvaluationErrors.Inc()
			e.log.WarnContext(ctx, "rule evaluation failed",
				logging.RuleID(rule.RuleID),
				logging.EventID(event.EventID),
				logging.Error(err))
			result.RuleErrors = append(result.RuleErrors, fmt.Sprintf("%s: %v", rule.RuleID, err))
			continue
		}
		if match == nil {
			continue
		}

		entityKey := rule.EntityKey(event.AssetID, event.IdentityID)
		dedupeKey := suppression.DedupeKey(rule.RuleID, rule.Version, entityKey)

		reason := suppression.Reason(rule, event, snapshot)

		// The budget bounds emission only. Evaluation above still runs for
		// every rule so sequence buffers keep observing events.
		if reason == "" && !budget.tryConsume() {
			e.log.DebugContext(ctx, "finding budget exhausted",
				logging.RuleID(rule.RuleID),
				logging.EventID(event.EventID))
			continue
		}

		if reason == "" {
			duplicate, err := e.dedupe.CheckAndRecord(ctx, dedupeKey, rule.DedupeWindow())
			if err != nil {
				result.RuleErrors = append(result.RuleErrors, fmt.Sprintf("%s: dedupe check: %v", rule.RuleID, err))
				continue
			}
			if duplicate {
				reason = models.SuppressReasonDedupe
			}
		}

		if reason != "" {
			decision, err := e.emitter.Suppress(ctx, rule.RuleID, event, dedupeKey, reason)
			if err != nil {
				result.RuleErrors = append(result.RuleErrors, fmt.Sprintf("%s: record suppression: %v", rule.RuleID, err))
				continue
			}
			result.Suppressed = append(result.Suppressed, *decision)
			continue
		}

		window := rule.TimeWindow(time.Duration(e.cfg.CorrelationTimeWindowSecs) * time.Second)
		finding, err := e.emitter.Emit(ctx, match, event, snapshot, dedupeKey, window)
		if err != nil {
			result.RuleErrors = append(result.RuleErrors, fmt.Sprintf("%s: emit: %v", rule.RuleID, err))
			continue
		}
		result.Findings = append(result.Findings, finding)
	}

	return result
}

// fetchContext pulls one snapshot per asset/identity pair covering the
// union of the rules' required keys. Provider failures degrade to a nil
// snapshot; the missing-context policy then decides per rule.
func (e *Engine) fetchContext(ctx context.Context, event *models.NormalizedEvent, rules []*catalog.RuleDefinition, cache *contextprov.Cache) *models.ContextSnapshot {
	keySet := make(map[string]bool)
	var needed []string
	for _, rule := range rules {
		for _, key := range rule.RequiredContext {
			if !keySet[key] {
				keySet[key] = true
				needed = append(needed, key)
			}
		}
	}
	if len(needed) == 0 {
		return nil
	}

	start := time.Now()
	snapshot, err := cache.GetContext(ctx, event.AssetID, event.IdentityID, needed)
	metrics.ContextFetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ContextFetchErrors.Inc()
		e.log.WarnContext(ctx, "context fetch failed",
			logging.AssetID(event.AssetID),
			logging.EventID(event.EventID),
			logging.Error(err))
		return nil
	}
	return snapshot
}

// slotsFor returns the tenant's worker slot channel, creating it on first
// use. Channel capacity is the tenant's concurrent worker cap.
func (e *Engine) slotsFor(tenantID string) chan struct{} {
	e.tenantMu.Lock()
	defer e.tenantMu.Unlock()

	slots, ok := e.tenantSlots[tenantID]
	if !ok {
		capacity := e.cfg.MaxWorkersPerTenant
		if capacity <= 0 {
			capacity = 16
		}
		slots = make(chan struct{}, capacity)
		e.tenantSlots[tenantID] = slots
	}
	return slots
}

// Diagnostics is a point-in-time view of engine shared state.
type Diagnostics struct {
	ActiveRules        int   `json:"active_rules"`
	MatchStateBuffers  int   `json:"match_state_buffers"`
	SuppressionEntries int   `json:"suppression_entries"`
	EvaluationErrors   int64 `json:"evaluation_errors"`
}

// Diagnostics reports buffer and error counters for the diagnostics API.
func (e *Engine) Diagnostics(ctx context.Context) Diagnostics {
	size, err := e.dedupe.Size(ctx)
	if err != nil {
		size = -1
	}
	return Diagnostics{
		ActiveRules:        e.Catalog().Len(),
		MatchStateBuffers:  e.states.ActiveBuffers(),
		SuppressionEntries: size,
		EvaluationErrors:   e.evalErrors.Load(),
	}
}

// RunSweeper periodically drops quiet match-state buffers and refreshes
// the shared-state gauges until the context is cancelled.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			maxAge := e.Catalog().MaxDedupeWindow()
			if window := time.Duration(e.cfg.CorrelationTimeWindowSecs) * time.Second; window > maxAge {
				maxAge = window
			}
			e.states.Sweep(now, maxAge)

			if mem, ok := e.dedupe.(*suppression.MemoryStore); ok {
				mem.Sweep()
			}

			metrics.MatchStateBuffers.Set(float64(e.states.ActiveBuffers()))
			if size, err := e.dedupe.Size(ctx); err == nil {
				metrics.SuppressionEntries.Set(float64(size))
			}
		}
	}
}

// findingBudget bounds how many findings one batch may emit. Workers for
// the same batch share it, so consumption is a CAS loop.
type findingBudget struct {
	remaining atomic.Int64
	unbounded bool
}

func newFindingBudget(max int) *findingBudget {
	b := &findingBudget{unbounded: max <= 0}
	b.remaining.Store(int64(max))
	return b
}

func (b *findingBudget) tryConsume() bool {
	if b.unbounded {
		return true
	}
	for {
		cur := b.remaining.Load()
		if cur <= 0 {
			return false
		}
		if b.remaining.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

func rejectedStatus(reason string) string {
	return models.EventStatusRejected + ":" + reason
}
