package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/truecheckia/splitkit/internal/config"
	"github.com/truecheckia/splitkit/internal/experiment"
	"github.com/truecheckia/splitkit/internal/server"
	"github.com/truecheckia/splitkit/internal/sink"
	"github.com/truecheckia/splitkit/internal/storage"
	"github.com/truecheckia/splitkit/internal/store"
	"github.com/truecheckia/splitkit/internal/tracking"
)

var port int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the splitkit HTTP server.

The server provides:
  - Assignment, exposure, event and attribution endpoints for the site
  - Dashboard API for results, funnels and attribution
  - Health check endpoint

The config file is watched; experiment and funnel changes apply without
a restart.

Example:
  splitkit serve --port 8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides the config file)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if port != 0 {
		cfg.Port = port
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withStore(func(s *store.SQLiteStore) error {
		sk := buildSink(cfg.Analytics)
		defer sk.Close()

		svc, err := newServices(ctx, s, sk)
		if err != nil {
			return err
		}

		visitors, closeVisitors, err := visitorStorage(s)
		if err != nil {
			return err
		}
		defer closeVisitors()

		metrics := tracking.DefaultMetrics()
		for name, events := range cfg.Metrics {
			metrics[name] = events
		}
		tracker := tracking.NewTracker(svc.engine,
			tracking.WithJourneys(s),
			tracking.WithSink(sk),
			tracking.WithLogger(log),
			tracking.WithMetrics(metrics),
		)

		srv := server.New(server.Options{
			Engine:      svc.engine,
			Tracker:     tracker,
			Funnels:     svc.funnels,
			Attribution: svc.attribution,
			Journeys:    s,
			Visitors:    visitors,
			Database:    s,
			Logger:      log,
			Port:        cfg.Port,
			TokenFile:   getTokenFilePath(),
		})
		fmt.Fprintf(cmd.OutOrStdout(), "\nsplitkit running on http://localhost:%d\n", cfg.Port)
		fmt.Fprintf(cmd.OutOrStdout(), "Dashboard API: http://localhost:%d/dashboard/api/experiments?token=%s\n\n", cfg.Port, srv.Token())

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Run(ctx) })

		if _, err := os.Stat(configPath); err == nil {
			w, err := config.NewWatcher(configPath, func(c *config.Config) { applyConfig(ctx, svc, c) }, log)
			if err != nil {
				log.Warn("config hot reload disabled", zap.Error(err))
			} else {
				g.Go(func() error { return w.Run(ctx) })
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			log.Warn("cannot stat config file", zap.String("path", configPath), zap.Error(err))
		}

		return g.Wait()
	})
}

// applyConfig pushes experiment and funnel definitions from a reloaded
// config into the running services. Other settings need a restart.
func applyConfig(ctx context.Context, svc *services, c *config.Config) {
	for _, exp := range c.Experiments {
		svc.registry.Register(ctx, exp)
	}
	for _, def := range c.Funnels {
		svc.funnels.Register(def)
	}
	log.Info("applied config",
		zap.Int("experiments", len(c.Experiments)),
		zap.Int("funnels", len(c.Funnels)))
}

// buildSink fans events out to every configured collector. Network sinks
// are wrapped in an async dispatcher so requests never wait on them.
func buildSink(a config.Analytics) sink.Sink {
	asyncOpts := []sink.AsyncOption{
		sink.WithQueueSize(a.QueueSize),
		sink.WithRateLimit(a.RateLimit, a.Burst),
		sink.WithAsyncLogger(log),
	}

	var sinks sink.Multi
	if a.GA4 != nil {
		sinks = append(sinks, sink.NewAsync(sink.NewGA4(*a.GA4), asyncOpts...))
	}
	if a.PostHog != nil {
		sinks = append(sinks, sink.NewAsync(sink.NewPostHog(*a.PostHog), asyncOpts...))
	}
	if a.LogEvents {
		sinks = append(sinks, sink.Log{Logger: log})
	}
	if len(sinks) == 0 {
		return sink.Nop{}
	}
	return sinks
}

// visitorStorage returns Redis when configured, else the SQLite key/value
// table.
func visitorStorage(s *store.SQLiteStore) (storage.Storage, func(), error) {
	if cfg.RedisURL == "" {
		return s, func() {}, nil
	}
	r, err := storage.NewRedisFromURL(cfg.RedisURL, experiment.CookieMaxAge)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info("visitor state in redis")
	return r, func() { r.Close() }, nil
}

// getTokenFilePath returns the path to the token file
func getTokenFilePath() string {
	// Store token file alongside the database
	dir := filepath.Dir(cfg.DBPath)
	return filepath.Join(dir, ".splitkit-token")
}
