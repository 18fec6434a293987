package experiment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/truecheckia/splitkit/internal/logger"
	"github.com/truecheckia/splitkit/internal/storage"
)

// ExperimentsKey is the storage key holding the serialized definitions.
const ExperimentsKey = "truecheckia_experiments"

// Registry holds experiment definitions, in registration order.
type Registry struct {
	mu          sync.RWMutex
	experiments map[string]*Experiment
	order       []string
	storage     storage.Storage
	logger      *zap.Logger
}

// NewRegistry creates a registry persisted to st. A nil st keeps
// definitions in memory only.
func NewRegistry(st storage.Storage, l *zap.Logger) *Registry {
	return &Registry{
		experiments: make(map[string]*Experiment),
		storage:     st,
		logger:      logger.OrNop(l),
	}
}

// Load merges the persisted definitions into the registry.
func (r *Registry) Load(ctx context.Context) error {
	if r.storage == nil {
		return nil
	}

	var saved []Experiment
	err := storage.GetJSON(ctx, r.storage, ExperimentsKey, &saved)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load experiments: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range saved {
		r.put(saved[i])
	}
	return nil
}

// Register stores or overwrites exp by id. Persistence failures are
// logged and the in-memory definition is kept.
func (r *Registry) Register(ctx context.Context, exp Experiment) {
	r.mu.Lock()
	r.put(exp)
	r.mu.Unlock()

	r.persist(ctx)
}

func (r *Registry) put(exp Experiment) {
	if _, exists := r.experiments[exp.ID]; !exists {
		r.order = append(r.order, exp.ID)
	}
	cp := exp
	r.experiments[exp.ID] = &cp
}

func (r *Registry) persist(ctx context.Context) {
	if r.storage == nil {
		return
	}
	if err := storage.SetJSON(ctx, r.storage, ExperimentsKey, r.List()); err != nil {
		r.logger.Warn("failed to persist experiments", zap.Error(err))
	}
}

// Get returns a copy of the experiment.
func (r *Registry) Get(id string) (*Experiment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exp, ok := r.experiments[id]
	if !ok {
		return nil, false
	}
	cp := *exp
	return &cp, true
}

// GetByName returns the first experiment with the given name.
func (r *Registry) GetByName(name string) (*Experiment, bool) {
	for _, exp := range r.List() {
		if exp.Name == name {
			return &exp, true
		}
	}
	return nil, false
}

// List returns all experiments in registration order.
func (r *Registry) List() []Experiment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Experiment, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.experiments[id])
	}
	return out
}

// Running returns the experiments whose status is running.
func (r *Registry) Running() []Experiment {
	var out []Experiment
	for _, exp := range r.List() {
		if exp.Status == StatusRunning {
			out = append(out, exp)
		}
	}
	return out
}

// SetStatus changes the lifecycle status of an experiment.
func (r *Registry) SetStatus(ctx context.Context, id string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}

	r.mu.Lock()
	exp, ok := r.experiments[id]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownExperiment
	}
	exp.Status = status
	r.mu.Unlock()

	r.persist(ctx)
	return nil
}

// DeclareWinner completes the experiment with variantID as the winner.
func (r *Registry) DeclareWinner(ctx context.Context, id, variantID string) error {
	r.mu.Lock()
	exp, ok := r.experiments[id]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownExperiment
	}
	if _, found := exp.Variant(variantID); !found {
		r.mu.Unlock()
		return fmt.Errorf("experiment %s has no variant %q", id, variantID)
	}
	exp.Status = StatusCompleted
	exp.WinnerVariant = variantID
	r.mu.Unlock()

	r.persist(ctx)
	return nil
}
