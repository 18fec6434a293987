package experiment

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/truecheckia/splitkit/internal/storage"
)

// VariantStats summarizes the results of one variant.
type VariantStats struct {
	VariantID   string
	Exposures   int     // distinct exposed sessions
	Conversions int     // distinct sessions with the metric
	Value       float64 // sum of metric values
}

// ResultStore persists experiment results.
type ResultStore interface {
	AppendResult(ctx context.Context, r Result) error
	Results(ctx context.Context, experimentID string) ([]Result, error)
}

// StatsQuerier is implemented by result stores that aggregate in place.
type StatsQuerier interface {
	VariantStats(ctx context.Context, experimentID, metric string) ([]VariantStats, error)
}

// ResultsKey names the storage key holding the results of experimentID.
func ResultsKey(experimentID string) string {
	return "experiment_results_" + experimentID
}

// StorageResults keeps results as a JSON array per experiment in a
// key/value Storage.
type StorageResults struct {
	mu      sync.Mutex
	storage storage.Storage
}

func NewStorageResults(st storage.Storage) *StorageResults {
	return &StorageResults{storage: st}
}

func (s *StorageResults) AppendResult(ctx context.Context, r Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	results, err := s.load(ctx, r.ExperimentID)
	if err != nil {
		return err
	}
	results = append(results, r)
	return storage.SetJSON(ctx, s.storage, ResultsKey(r.ExperimentID), results)
}

func (s *StorageResults) Results(ctx context.Context, experimentID string) ([]Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, experimentID)
}

func (s *StorageResults) load(ctx context.Context, experimentID string) ([]Result, error) {
	var results []Result
	err := storage.GetJSON(ctx, s.storage, ResultsKey(experimentID), &results)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return results, err
}

// Summarize folds results into per-variant stats, ordered as the
// experiment's variants. An empty metric counts every non-exposure result
// as a conversion.
func Summarize(exp *Experiment, results []Result, metric string) []VariantStats {
	type acc struct {
		exposed   map[string]bool
		converted map[string]bool
		value     float64
	}
	byVariant := make(map[string]*acc)
	get := func(id string) *acc {
		a, ok := byVariant[id]
		if !ok {
			a = &acc{exposed: map[string]bool{}, converted: map[string]bool{}}
			byVariant[id] = a
		}
		return a
	}

	for _, r := range results {
		a := get(r.VariantID)
		switch {
		case r.Metric == MetricExposure:
			a.exposed[r.SessionID] = true
		case metric == "" || r.Metric == metric:
			a.converted[r.SessionID] = true
			a.value += r.Value
		}
	}

	var order []string
	if exp != nil {
		for _, v := range exp.Variants {
			order = append(order, v.ID)
		}
	}
	seen := make(map[string]bool, len(order))
	for _, id := range order {
		seen[id] = true
	}
	var extra []string
	for id := range byVariant {
		if !seen[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)

	out := make([]VariantStats, 0, len(order))
	for _, id := range order {
		a := get(id)
		out = append(out, VariantStats{
			VariantID:   id,
			Exposures:   len(a.exposed),
			Conversions: len(a.converted),
			Value:       a.value,
		})
	}
	return out
}

// orderStats arranges stats in variant order, adding empty rows for
// variants without results.
func orderStats(exp *Experiment, stats []VariantStats) []VariantStats {
	byID := make(map[string]VariantStats, len(stats))
	for _, vs := range stats {
		byID[vs.VariantID] = vs
	}

	out := make([]VariantStats, 0, len(stats))
	for _, v := range exp.Variants {
		vs, ok := byID[v.ID]
		if !ok {
			vs = VariantStats{VariantID: v.ID}
		}
		out = append(out, vs)
		delete(byID, v.ID)
	}
	for _, vs := range stats {
		if _, ok := byID[vs.VariantID]; ok {
			out = append(out, vs)
		}
	}
	return out
}
