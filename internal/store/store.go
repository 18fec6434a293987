// Package store is the durable SQLite backend: visitor key/value state,
// experiment results and recorded journeys.
package store

import (
	"github.com/truecheckia/splitkit/internal/experiment"
	"github.com/truecheckia/splitkit/internal/journey"
	"github.com/truecheckia/splitkit/internal/storage"
)

// Store defines everything the service persists.
type Store interface {
	storage.Storage
	experiment.ResultStore
	journey.Store

	// Lifecycle
	Close() error
}

var _ Store = (*SQLiteStore)(nil)
