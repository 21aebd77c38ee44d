// Package app wires the domain services to their storage dependencies.
package app

import (
	"time"

	"github.com/shelfwise/library-service/internal/app/metrics"
	"github.com/shelfwise/library-service/internal/app/services/auth"
	"github.com/shelfwise/library-service/internal/app/services/catalog"
	"github.com/shelfwise/library-service/internal/app/services/loans"
	"github.com/shelfwise/library-service/internal/app/storage"
	"github.com/shelfwise/library-service/internal/app/storage/memory"
	"github.com/shelfwise/library-service/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil fields default to the
// in-memory implementation.
type Stores struct {
	Store      storage.Store
	UnitOfWork storage.UnitOfWork
}

// Options carries the non-storage settings the services need.
type Options struct {
	AuthSecret []byte
	TokenTTL   time.Duration
}

// Application ties the domain services together.
type Application struct {
	log *logger.Logger

	Catalog *catalog.Service
	Loans   *loans.Service
	Auth    *auth.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) *Application {
	if log == nil {
		log = logger.NewDefault("app")
	}

	if stores.Store == nil || stores.UnitOfWork == nil {
		mem := memory.New()
		if stores.Store == nil {
			stores.Store = mem
		}
		if stores.UnitOfWork == nil {
			stores.UnitOfWork = mem
		}
	}

	return &Application{
		log:     log,
		Catalog: catalog.New(stores.Store, stores.UnitOfWork, log.WithField("service", "catalog")),
		Loans:   loans.New(stores.Store, stores.UnitOfWork, metrics.LoanRecorder{}, log.WithField("service", "loans")),
		Auth:    auth.New(stores.Store, opts.AuthSecret, opts.TokenTTL, log.WithField("service", "auth")),
	}
}
