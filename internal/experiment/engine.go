package experiment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/truecheckia/splitkit/internal/logger"
	"github.com/truecheckia/splitkit/internal/sink"
)

const defaultCacheSize = 50000

// Engine assigns visitors to experiment variants and records exposures
// and results.
type Engine struct {
	registry  *Registry
	results   ResultStore
	sink      sink.Sink
	hasher    Hasher
	logger    *zap.Logger
	now       func() time.Time
	cacheSize int

	mu    sync.RWMutex
	cache map[string]Assignment
}

type Option func(*Engine)

func WithHasher(h Hasher) Option            { return func(e *Engine) { e.hasher = h } }
func WithResults(rs ResultStore) Option     { return func(e *Engine) { e.results = rs } }
func WithSink(s sink.Sink) Option           { return func(e *Engine) { e.sink = s } }
func WithLogger(l *zap.Logger) Option       { return func(e *Engine) { e.logger = logger.OrNop(l) } }
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithCacheSize bounds the in-memory assignment cache. When full the cache
// is dropped; cookies still hold every visitor's variant.
func WithCacheSize(n int) Option { return func(e *Engine) { e.cacheSize = n } }

func NewEngine(registry *Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:  registry,
		sink:      sink.Nop{},
		hasher:    FNVHasher{},
		logger:    zap.NewNop(),
		now:       time.Now,
		cacheSize: defaultCacheSize,
		cache:     make(map[string]Assignment),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Registry() *Registry { return e.registry }

// SessionID returns the visitor's session id, creating and persisting a
// new one on first use.
func (e *Engine) SessionID(v Visitor) string {
	if v.Jar != nil {
		if id, err := v.Jar.Get(SessionCookie); err == nil && id != "" {
			return id
		}
	}

	id := uuid.NewString()
	if v.Jar != nil {
		if err := v.Jar.Set(SessionCookie, id, CookieMaxAge); err != nil {
			e.logger.Warn("failed to persist session cookie", zap.Error(err))
		}
	}
	return id
}

func cacheKey(experimentID, identity string) string {
	return experimentID + ":" + identity
}

// GetAssignment returns the visitor's variant for experimentID, assigning
// one if needed. It returns nil when the experiment is unknown, not
// running, filtered out by its conditions, or the visitor falls outside
// the traffic allocation.
func (e *Engine) GetAssignment(ctx context.Context, v Visitor, experimentID, userID string) *Assignment {
	sessionID := e.SessionID(v)
	identity := userID
	if identity == "" {
		identity = sessionID
	}
	key := cacheKey(experimentID, identity)

	e.mu.RLock()
	cached, ok := e.cache[key]
	e.mu.RUnlock()
	if ok {
		return &cached
	}

	exp, ok := e.registry.Get(experimentID)
	if !ok {
		return nil
	}

	if a, ok := e.fromCookie(v, exp, sessionID, userID); ok {
		e.remember(key, a)
		return &a
	}

	if exp.Status != StatusRunning || len(exp.Variants) == 0 {
		return nil
	}
	if !matchAll(exp.Conditions, v) {
		return nil
	}
	if bucket(e.hasher, sessionID) >= exp.TrafficAllocation {
		return nil
	}

	variant := e.pickVariant(exp, sessionID)
	a := Assignment{
		ExperimentID: exp.ID,
		SessionID:    sessionID,
		UserID:       userID,
		VariantID:    variant.ID,
		AssignedAt:   e.now(),
	}
	e.remember(key, a)

	if v.Jar != nil {
		if err := v.Jar.Set(AssignmentCookie(exp.ID), variant.ID, CookieMaxAge); err != nil {
			e.logger.Warn("failed to persist assignment cookie",
				zap.String("experiment", exp.ID), zap.Error(err))
		}
	}

	e.logger.Debug("assigned variant",
		zap.String("experiment", exp.ID),
		zap.String("variant", variant.ID),
		zap.String("session", sessionID))
	return &a
}

func (e *Engine) fromCookie(v Visitor, exp *Experiment, sessionID, userID string) (Assignment, bool) {
	if v.Jar == nil {
		return Assignment{}, false
	}
	variantID, err := v.Jar.Get(AssignmentCookie(exp.ID))
	if err != nil || variantID == "" {
		return Assignment{}, false
	}
	if _, ok := exp.Variant(variantID); !ok {
		return Assignment{}, false
	}
	return Assignment{
		ExperimentID: exp.ID,
		SessionID:    sessionID,
		UserID:       userID,
		VariantID:    variantID,
		AssignedAt:   e.now(),
	}, true
}

// pickVariant walks the cumulative weights; a rounding gap falls back to
// the first variant.
func (e *Engine) pickVariant(exp *Experiment, sessionID string) Variant {
	b := bucket(e.hasher, sessionID+"_variant")
	cumulative := 0
	for _, v := range exp.Variants {
		cumulative += v.Weight
		if b < cumulative {
			return v
		}
	}
	return exp.Variants[0]
}

func (e *Engine) remember(key string, a Assignment) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cacheSize > 0 && len(e.cache) >= e.cacheSize {
		e.cache = make(map[string]Assignment)
	}
	e.cache[key] = a
}

// TrackExposure records that the visitor saw their variant. Only the first
// exposure per assignment is recorded.
func (e *Engine) TrackExposure(ctx context.Context, v Visitor, experimentID, userID string) {
	a := e.GetAssignment(ctx, v, experimentID, userID)
	if a == nil || a.Exposed {
		return
	}

	identity := userID
	if identity == "" {
		identity = a.SessionID
	}
	a.Exposed = true
	e.remember(cacheKey(experimentID, identity), *a)

	e.sink.Track(ctx, sink.Event{
		Name:     "experiment_exposure",
		ClientID: a.SessionID,
		UserID:   userID,
		Params: map[string]any{
			"experiment_id": experimentID,
			"variant_id":    a.VariantID,
		},
		Timestamp: e.now(),
	})
	e.appendResult(ctx, Result{
		ExperimentID: experimentID,
		VariantID:    a.VariantID,
		SessionID:    a.SessionID,
		Metric:       MetricExposure,
		Value:        1,
		RecordedAt:   e.now(),
	})
}

// TrackResult records a metric observation for the visitor's variant.
func (e *Engine) TrackResult(ctx context.Context, v Visitor, experimentID, userID, metric string, value float64) {
	a := e.GetAssignment(ctx, v, experimentID, userID)
	if a == nil {
		return
	}

	e.sink.Track(ctx, sink.Event{
		Name:     "experiment_result",
		ClientID: a.SessionID,
		UserID:   userID,
		Params: map[string]any{
			"experiment_id": experimentID,
			"variant_id":    a.VariantID,
			"metric":        metric,
			"value":         value,
		},
		Timestamp: e.now(),
	})
	e.appendResult(ctx, Result{
		ExperimentID: experimentID,
		VariantID:    a.VariantID,
		SessionID:    a.SessionID,
		Metric:       metric,
		Value:        value,
		RecordedAt:   e.now(),
	})
}

func (e *Engine) appendResult(ctx context.Context, r Result) {
	if e.results == nil {
		return
	}
	if err := e.results.AppendResult(ctx, r); err != nil {
		e.logger.Warn("failed to store experiment result",
			zap.String("experiment", r.ExperimentID), zap.Error(err))
	}
}

// GetConfig returns the configuration of the visitor's variant. Visitors
// outside the experiment get the control configuration and ok is false.
func (e *Engine) GetConfig(ctx context.Context, v Visitor, experimentID, userID string) (cfg VariantConfig, ok bool) {
	exp, found := e.registry.Get(experimentID)
	if !found {
		return nil, false
	}

	if a := e.GetAssignment(ctx, v, experimentID, userID); a != nil {
		if variant, found := exp.Variant(a.VariantID); found {
			return variant.Config, true
		}
	}
	if control, found := exp.Control(); found {
		return control.Config, false
	}
	return nil, false
}

func (e *Engine) IsInExperiment(ctx context.Context, v Visitor, experimentID, userID string) bool {
	return e.GetAssignment(ctx, v, experimentID, userID) != nil
}

func (e *Engine) IsInVariant(ctx context.Context, v Visitor, experimentID, variantID, userID string) bool {
	a := e.GetAssignment(ctx, v, experimentID, userID)
	return a != nil && a.VariantID == variantID
}

// Stats summarizes stored results for an experiment against its target
// metric.
func (e *Engine) Stats(ctx context.Context, experimentID string) ([]VariantStats, error) {
	exp, ok := e.registry.Get(experimentID)
	if !ok {
		return nil, ErrUnknownExperiment
	}
	if e.results == nil {
		return Summarize(exp, nil, exp.TargetMetric), nil
	}
	if q, ok := e.results.(StatsQuerier); ok {
		stats, err := q.VariantStats(ctx, experimentID, exp.TargetMetric)
		if err != nil {
			return nil, err
		}
		return orderStats(exp, stats), nil
	}
	results, err := e.results.Results(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	return Summarize(exp, results, exp.TargetMetric), nil
}
