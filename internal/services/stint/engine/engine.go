// Package engine is the session runtime: scoped variable writes, condition
// evaluation, action execution, and stage progression for running stints.
//
// The engine holds no in-process locks. All shared mutable state lives in the
// backing store, which is relied upon for per-record atomic read and write.
// Multiple hands of one stint may call in concurrently.
package engine

import (
	"context"
	"log"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/convening.space/internal/services/stint/content"
	"github.com/louisbranch/convening.space/internal/services/stint/evalcache"
	"github.com/louisbranch/convening.space/internal/services/stint/script"
	"github.com/louisbranch/convening.space/internal/services/stint/storage"
)

// Payment is one payout dispatched to the ledger.
type Payment struct {
	StintID      string
	HandID       string
	ActionStepID string
	Amount       float64
	CurrencyCode string
}

// Ledger dispatches payments. Calls are fire-and-forget at every call site:
// failures are logged as runtime log records and never surfaced.
type Ledger interface {
	Pay(ctx context.Context, payment Payment) error
}

// DataPoint is one save_data export forwarded to the analytical sink.
type DataPoint struct {
	StintID      string
	TeamID       string
	ModuleID     string
	HandID       string
	ActionStepID string
	Values       map[string]any
	RecordedAt   time.Time
}

// Sink receives save_data exports.
type Sink interface {
	SaveData(ctx context.Context, point DataPoint) error
}

// Engine coordinates one catalog's runtime against a store.
type Engine struct {
	catalog *content.Catalog
	store   storage.Store
	script  script.Engine
	cache   evalcache.Cache
	ledger  Ledger
	sink    Sink
	logger  *log.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// Options carries optional collaborators.
type Options struct {
	// Cache backs condition evaluation; nil disables caching.
	Cache evalcache.Cache
	// Ledger receives pay_hands payouts; nil turns payment dispatch into a
	// logged no-op.
	Ledger Ledger
	// Sink receives save_data exports; nil drops them after the local
	// snapshot record is written.
	Sink   Sink
	Logger *log.Logger
	Now    func() time.Time
}

// New creates an engine for one catalog.
func New(catalog *content.Catalog, store storage.Store, scriptEngine script.Engine, opts Options) *Engine {
	e := &Engine{
		catalog: catalog,
		store:   store,
		script:  scriptEngine,
		cache:   opts.Cache,
		ledger:  opts.Ledger,
		sink:    opts.Sink,
		logger:  opts.Logger,
		tracer:  otel.Tracer("stint.engine"),
		now:     opts.Now,
	}
	if e.logger == nil {
		e.logger = log.New(os.Stdout, "stint: ", log.LstdFlags)
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}
