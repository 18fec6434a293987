package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/truecheckia/splitkit/internal/attribution"
	"github.com/truecheckia/splitkit/internal/catalog"
	"github.com/truecheckia/splitkit/internal/config"
	"github.com/truecheckia/splitkit/internal/experiment"
	"github.com/truecheckia/splitkit/internal/funnel"
	"github.com/truecheckia/splitkit/internal/sink"
	"github.com/truecheckia/splitkit/internal/store"
)

// withStore opens the database, executes the function, and handles cleanup.
func withStore(fn func(*store.SQLiteStore) error) error {
	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

// services bundles what commands need on top of the store.
type services struct {
	store       *store.SQLiteStore
	registry    *experiment.Registry
	engine      *experiment.Engine
	funnels     *funnel.Analyzer
	attribution *attribution.Analyzer
}

// withServices opens the store and wires the experiment engine and the
// analyzers from the loaded configuration.
func withServices(ctx context.Context, fn func(*services) error) error {
	return withStore(func(s *store.SQLiteStore) error {
		svc, err := newServices(ctx, s, sink.Nop{})
		if err != nil {
			return err
		}
		return fn(svc)
	})
}

func newServices(ctx context.Context, s *store.SQLiteStore, sk sink.Sink) (*services, error) {
	reg := experiment.NewRegistry(s, log)
	if err := reg.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load experiments: %w", err)
	}
	seedExperiments(ctx, reg, cfg)

	engine := experiment.NewEngine(reg,
		experiment.WithHasher(cfg.HasherImpl()),
		experiment.WithResults(s),
		experiment.WithSink(sk),
		experiment.WithLogger(log),
	)

	return &services{
		store:       s,
		registry:    reg,
		engine:      engine,
		funnels:     newFunnels(cfg),
		attribution: newAttribution(cfg),
	}, nil
}

// seedExperiments registers configured and catalog experiments the
// registry does not know yet. Stored experiments keep their status, and a
// configured experiment shadows the catalog one with the same id.
func seedExperiments(ctx context.Context, reg *experiment.Registry, c *config.Config) {
	for _, exp := range append(append([]experiment.Experiment{}, c.Experiments...), catalog.Experiments()...) {
		if _, ok := reg.Get(exp.ID); !ok {
			reg.Register(ctx, exp)
		}
	}
}

func newFunnels(c *config.Config) *funnel.Analyzer {
	a := funnel.NewAnalyzer()
	a.RegisterDefaults()
	for _, def := range c.Funnels {
		a.Register(def)
	}
	return a
}

func newAttribution(c *config.Config) *attribution.Analyzer {
	if len(c.ConversionEvents) == 0 {
		return attribution.NewAnalyzer()
	}
	return attribution.NewAnalyzer(attribution.WithConversionEvents(c.ConversionEvents...))
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetHeader(header)
	t.SetAutoFormatHeaders(false)
	t.SetBorder(false)
	t.SetColumnSeparator(" ")
	t.SetHeaderLine(false)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	return t
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}
