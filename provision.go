package tablemap

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// future is a single-assignment cell shared by every caller of one key.
type future struct {
	done    chan struct{}
	existed bool
	err     error
}

func (f *future) wait(ctx context.Context) (bool, error) {
	select {
	case <-f.done:
		return f.existed, f.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

type tableKey struct{ db, table string }

type indexKey struct{ db, table, index string }

// Provisioner lazily creates databases, tables and indexes and remembers the
// outcome for the lifetime of the process. For each key at most one
// provisioning request is issued, however many callers race for it.
//
// Objects dropped behind the provisioner's back are not detected again.
type Provisioner struct {
	driver SchemaDriver
	logger *slog.Logger

	mu        sync.Mutex
	databases map[string]*future
	tables    map[tableKey]*future
	indexes   map[indexKey]*future
}

// NewProvisioner creates a Provisioner over driver. A nil logger discards
// log output.
func NewProvisioner(driver SchemaDriver, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Provisioner{
		driver:    driver,
		logger:    logger,
		databases: make(map[string]*future),
		tables:    make(map[tableKey]*future),
		indexes:   make(map[indexKey]*future),
	}
}

// claim returns the cell for key, installing a fresh one if none exists.
// owner is true for exactly one caller per key.
func claim[K comparable](mu *sync.Mutex, cells map[K]*future, key K) (f *future, owner bool) {
	mu.Lock()
	defer mu.Unlock()
	if f, ok := cells[key]; ok {
		return f, false
	}
	f = &future{done: make(chan struct{})}
	cells[key] = f
	return f, true
}

// settle runs fn detached from the caller's cancellation, so a caller that
// gives up does not poison the cell for everyone else.
func (p *Provisioner) settle(ctx context.Context, f *future, fn func(context.Context) (bool, error)) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer close(f.done)
		f.existed, f.err = fn(ctx)
	}()
}

// EnsureDatabase makes sure db exists. It reports whether the database was
// already present.
func (p *Provisioner) EnsureDatabase(ctx context.Context, db string) (bool, error) {
	f, owner := claim(&p.mu, p.databases, db)
	if owner {
		p.settle(ctx, f, func(ctx context.Context) (bool, error) {
			names, err := p.driver.ListDatabases(ctx)
			if err != nil {
				return false, &ProvisioningError{Object: "database", Name: db, Err: err}
			}
			if slices.Contains(names, db) {
				return true, nil
			}
			p.logger.DebugContext(ctx, "creating database", "db", db)
			if err := p.driver.CreateDatabase(ctx, db); err != nil {
				return false, &ProvisioningError{Object: "database", Name: db, Err: err}
			}
			return false, nil
		})
	}
	return f.wait(ctx)
}

// EnsureTable makes sure ref's database and table exist. It reports whether
// the table was already present.
func (p *Provisioner) EnsureTable(ctx context.Context, ref TableRef) (bool, error) {
	f, owner := claim(&p.mu, p.tables, tableKey{ref.DB, ref.Table})
	if owner {
		p.settle(ctx, f, func(ctx context.Context) (bool, error) {
			if _, err := p.EnsureDatabase(ctx, ref.DB); err != nil {
				return false, err
			}
			names, err := p.driver.ListTables(ctx, ref.DB)
			if err != nil {
				return false, &ProvisioningError{Object: "table", Name: ref.String(), Err: err}
			}
			if slices.Contains(names, ref.Table) {
				return true, nil
			}
			p.logger.DebugContext(ctx, "creating table", "db", ref.DB, "table", ref.Table)
			if err := p.driver.CreateTable(ctx, ref); err != nil {
				return false, &ProvisioningError{Object: "table", Name: ref.String(), Err: err}
			}
			return false, nil
		})
	}
	return f.wait(ctx)
}

// EnsureIndex makes sure a secondary index on field index exists on ref and
// has finished building. It reports whether the index was already present.
func (p *Provisioner) EnsureIndex(ctx context.Context, ref TableRef, index string) (bool, error) {
	f, owner := claim(&p.mu, p.indexes, indexKey{ref.DB, ref.Table, index})
	if owner {
		p.settle(ctx, f, func(ctx context.Context) (bool, error) {
			name := ref.String() + "." + index
			if _, err := p.EnsureTable(ctx, ref); err != nil {
				return false, err
			}
			names, err := p.driver.ListIndexes(ctx, ref)
			if err != nil {
				return false, &ProvisioningError{Object: "index", Name: name, Err: err}
			}
			existed := slices.Contains(names, index)
			if !existed {
				p.logger.DebugContext(ctx, "creating index", "db", ref.DB, "table", ref.Table, "index", index)
				if err := p.driver.CreateIndex(ctx, ref, index); err != nil {
					return false, &ProvisioningError{Object: "index", Name: name, Err: err}
				}
			}
			if err := p.driver.WaitIndex(ctx, ref, index); err != nil {
				return false, &ProvisioningError{Object: "index", Name: name, Err: err}
			}
			return existed, nil
		})
	}
	return f.wait(ctx)
}
