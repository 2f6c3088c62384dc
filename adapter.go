package tablemap

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Options are per-call settings. Zero fields fall back to the adapter Config.
type Options struct {
	DB         string     // Target database
	With       []string   // Relations to eager-load; "a.b" loads b on the records of a
	Operators  Operators  // Per-call operator overrides
	InsertOpts NativeOpts // Native insert options
	UpdateOpts NativeOpts // Native update options
	DeleteOpts NativeOpts // Native delete options
	RunOpts    NativeOpts // Native read options
	Raw        *bool      // Return an envelope instead of plain data

	op string
}

// Op returns the lifecycle stage currently running, e.g. "beforeCreate".
func (o *Options) Op() string {
	if o == nil {
		return ""
	}
	return o.op
}

// sub derives the options of a dependent relation query.
func (o *Options) sub(with []string) *Options {
	c := *o
	c.With = with
	c.Raw = Bool(false)
	c.op = ""
	return &c
}

// Bool returns a pointer to v, for Options.Raw.
func Bool(v bool) *bool { return &v }

// Result is the outcome of an operation. Unless the raw option is set only
// Data is populated.
type Result[T any] struct {
	Data    T
	Created int
	Found   int
	Updated int
	Native  *WriteResult
}

// Adapter runs CRUD operations for mappers against a Driver, provisioning
// schema on first use and eager-loading relations on reads.
type Adapter struct {
	driver      Driver
	config      Config
	hooks       Hooks
	logger      *slog.Logger
	provisioner *Provisioner
	resolver    *Resolver
}

// New creates an Adapter over driver.
func New(driver Driver, opts ...func(*Config)) *Adapter {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DB == "" {
		cfg.DB = DefaultDB
	}
	if cfg.Logger == nil {
		cfg.Logger = newLogger(cfg.Debug)
	}

	a := &Adapter{
		driver: driver,
		config: cfg,
		hooks:  cfg.Hooks.withDefaults(cfg.Logger),
		logger: cfg.Logger,
	}
	a.provisioner = cfg.Provisioner
	if a.provisioner == nil {
		a.provisioner = NewProvisioner(driver, cfg.Logger)
	}
	a.resolver = newResolver(a, cfg.Logger)
	return a
}

// Provisioner returns the adapter's schema cache.
func (a *Adapter) Provisioner() *Provisioner { return a.provisioner }

// Config returns a copy of the adapter configuration.
func (a *Adapter) Config() Config { return a.config }

func (a *Adapter) options(opts *Options) *Options {
	if opts == nil {
		return &Options{}
	}
	c := *opts
	return &c
}

func (a *Adapter) db(opts *Options) string {
	if opts.DB != "" {
		return opts.DB
	}
	return a.config.DB
}

func (a *Adapter) ref(m *Mapper, opts *Options) TableRef {
	return TableRef{DB: a.db(opts), Table: m.TableName(), Key: m.IDAttribute}
}

func (a *Adapter) raw(opts *Options) bool {
	if opts.Raw != nil {
		return *opts.Raw
	}
	return a.config.Raw
}

// native merges adapter defaults with per-call options; a per-call map
// replaces the default one.
func native(defaults, call NativeOpts) NativeOpts {
	if call != nil {
		return call.clone()
	}
	return defaults.clone()
}

func (a *Adapter) dbg(ctx context.Context, op string, ref TableRef, args ...any) {
	a.logger.DebugContext(ctx, op, append([]any{"db", ref.DB, "table", ref.Table}, args...)...)
}

func (a *Adapter) compile(ctx context.Context, q *Query, opts *Options) (*Plan, error) {
	plan, err := Compile(q, opts.Operators, a.config.Operators)
	if err != nil {
		return nil, err
	}
	if len(plan.Skipped) > 0 {
		a.logger.DebugContext(ctx, "skipped unknown operators", "operators", plan.Skipped)
	}
	return plan, nil
}

// ensureRead provisions the table of m and, for every requested relation
// resolved through a foreign key on the related table, that table's index.
func (a *Adapter) ensureRead(ctx context.Context, m *Mapper, opts *Options) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := a.provisioner.EnsureTable(gctx, a.ref(m, opts))
		return err
	})
	for _, def := range m.Relations {
		if ok, _ := requested(def, opts.With); !ok || def.Strategy() != StrategyForeignKey {
			continue
		}
		related := def.Related()
		if related == nil {
			continue
		}
		g.Go(func() error {
			_, err := a.provisioner.EnsureIndex(gctx, a.ref(related, opts), def.ForeignKey)
			return err
		})
	}
	return g.Wait()
}

func (a *Adapter) ensureTable(ctx context.Context, ref TableRef) error {
	_, err := a.provisioner.EnsureTable(ctx, ref)
	return err
}

// Create inserts one record.
func (a *Adapter) Create(ctx context.Context, m *Mapper, props Record, opts *Options) (*Result[Record], error) {
	opts = a.options(opts)
	ref := a.ref(m, opts)
	if props == nil {
		props = Record{}
	}
	if err := a.ensureTable(ctx, ref); err != nil {
		return nil, err
	}

	opts.op = "beforeCreate"
	in, err := a.hooks.BeforeCreate(ctx, m, props, opts)
	if err != nil {
		return nil, err
	}
	if in == nil {
		in = props
	}

	opts.op = "create"
	a.dbg(ctx, opts.op, ref)
	insertOpts := native(a.config.InsertOpts, opts.InsertOpts)
	insertOpts[OptReturnChanges] = true
	wr, err := a.driver.Insert(ctx, ref, []Record{in}, insertOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", ref, err)
	}
	if err := wr.err(opts.op); err != nil {
		return nil, err
	}

	var record Record
	if values := wr.NewValues(); len(values) > 0 {
		record = values[0]
	}

	opts.op = "afterCreate"
	out, err := a.hooks.AfterCreate(ctx, m, props, opts, record)
	if err != nil {
		return nil, err
	}
	if out != nil {
		record = out
	}

	res := &Result[Record]{Data: record}
	if a.raw(opts) {
		res.Native = wr
		if record != nil {
			res.Created = 1
		}
	}
	return res, nil
}

// CreateMany inserts several records.
func (a *Adapter) CreateMany(ctx context.Context, m *Mapper, props []Record, opts *Options) (*Result[[]Record], error) {
	opts = a.options(opts)
	ref := a.ref(m, opts)
	if err := a.ensureTable(ctx, ref); err != nil {
		return nil, err
	}

	opts.op = "beforeCreateMany"
	in, err := a.hooks.BeforeCreateMany(ctx, m, props, opts)
	if err != nil {
		return nil, err
	}
	if in == nil {
		in = props
	}

	opts.op = "createMany"
	a.dbg(ctx, opts.op, ref, "count", len(in))
	insertOpts := native(a.config.InsertOpts, opts.InsertOpts)
	insertOpts[OptReturnChanges] = true
	wr, err := a.driver.Insert(ctx, ref, in, insertOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", ref, err)
	}
	if err := wr.err(opts.op); err != nil {
		return nil, err
	}
	records := wr.NewValues()

	opts.op = "afterCreateMany"
	out, err := a.hooks.AfterCreateMany(ctx, m, props, opts, records)
	if err != nil {
		return nil, err
	}
	if out != nil {
		records = out
	}

	res := &Result[[]Record]{Data: records}
	if a.raw(opts) {
		res.Native = wr
		res.Created = len(records)
	}
	return res, nil
}

// Find reads one record by primary key and eager-loads the relations named in
// opts.With. A missing record yields nil Data and no error.
func (a *Adapter) Find(ctx context.Context, m *Mapper, id any, opts *Options) (*Result[Record], error) {
	opts = a.options(opts)
	ref := a.ref(m, opts)
	if err := a.ensureRead(ctx, m, opts); err != nil {
		return nil, err
	}

	opts.op = "beforeFind"
	if err := a.hooks.BeforeFind(ctx, m, id, opts); err != nil {
		return nil, err
	}

	opts.op = "find"
	a.dbg(ctx, opts.op, ref, "id", id)
	record, err := a.driver.Get(ctx, ref, id, native(a.config.RunOpts, opts.RunOpts))
	if err != nil {
		return nil, fmt.Errorf("failed to get %v from %s: %w", id, ref, err)
	}

	if record != nil {
		if err := a.resolver.Load(ctx, m, []Record{record}, true, opts); err != nil {
			return nil, err
		}
	}

	opts.op = "afterFind"
	out, err := a.hooks.AfterFind(ctx, m, id, opts, record)
	if err != nil {
		return nil, err
	}
	if out != nil {
		record = out
	}

	res := &Result[Record]{Data: record}
	if a.raw(opts) && record != nil {
		res.Found = 1
	}
	return res, nil
}

// FindAll reads the records selected by q and eager-loads the relations named
// in opts.With.
func (a *Adapter) FindAll(ctx context.Context, m *Mapper, q *Query, opts *Options) (*Result[[]Record], error) {
	opts = a.options(opts)
	ref := a.ref(m, opts)
	if q == nil {
		q = NewQuery()
	}
	if err := a.ensureRead(ctx, m, opts); err != nil {
		return nil, err
	}

	opts.op = "beforeFindAll"
	if err := a.hooks.BeforeFindAll(ctx, m, q, opts); err != nil {
		return nil, err
	}

	opts.op = "findAll"
	a.dbg(ctx, opts.op, ref)
	plan, err := a.compile(ctx, q, opts)
	if err != nil {
		return nil, err
	}
	records, err := a.driver.Scan(ctx, ref, plan, native(a.config.RunOpts, opts.RunOpts))
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", ref, err)
	}

	if err := a.resolver.Load(ctx, m, records, false, opts); err != nil {
		return nil, err
	}

	opts.op = "afterFindAll"
	out, err := a.hooks.AfterFindAll(ctx, m, q, opts, records)
	if err != nil {
		return nil, err
	}
	if out != nil {
		records = out
	}
	if records == nil {
		records = []Record{}
	}

	res := &Result[[]Record]{Data: records}
	if a.raw(opts) {
		res.Found = len(records)
	}
	return res, nil
}

// Update merges props into the record with the given primary key. It fails
// with ErrNotFound when no such record exists.
func (a *Adapter) Update(ctx context.Context, m *Mapper, id any, props Record, opts *Options) (*Result[Record], error) {
	opts = a.options(opts)
	ref := a.ref(m, opts)
	if props == nil {
		props = Record{}
	}
	if err := a.ensureTable(ctx, ref); err != nil {
		return nil, err
	}

	opts.op = "beforeUpdate"
	in, err := a.hooks.BeforeUpdate(ctx, m, id, props, opts)
	if err != nil {
		return nil, err
	}
	if in == nil {
		in = props
	}

	opts.op = "update"
	a.dbg(ctx, opts.op, ref, "id", id)
	updateOpts := native(a.config.UpdateOpts, opts.UpdateOpts)
	updateOpts[OptReturnChanges] = true
	wr, err := a.driver.Update(ctx, ref, id, in, updateOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to update %v in %s: %w", id, ref, err)
	}
	if err := wr.err(opts.op); err != nil {
		return nil, err
	}
	values := wr.NewValues()
	if len(values) == 0 {
		return nil, &NotFoundError{Table: ref.String(), ID: id}
	}
	record := values[0]

	opts.op = "afterUpdate"
	out, err := a.hooks.AfterUpdate(ctx, m, id, props, opts, record)
	if err != nil {
		return nil, err
	}
	if out != nil {
		record = out
	}

	res := &Result[Record]{Data: record}
	if a.raw(opts) {
		res.Native = wr
		res.Updated = 1
	}
	return res, nil
}

// UpdateAll merges props into every record selected by q.
func (a *Adapter) UpdateAll(ctx context.Context, m *Mapper, props Record, q *Query, opts *Options) (*Result[[]Record], error) {
	opts = a.options(opts)
	ref := a.ref(m, opts)
	if props == nil {
		props = Record{}
	}
	if q == nil {
		q = NewQuery()
	}
	if err := a.ensureTable(ctx, ref); err != nil {
		return nil, err
	}

	opts.op = "beforeUpdateAll"
	in, err := a.hooks.BeforeUpdateAll(ctx, m, props, q, opts)
	if err != nil {
		return nil, err
	}
	if in == nil {
		in = props
	}

	opts.op = "updateAll"
	a.dbg(ctx, opts.op, ref)
	plan, err := a.compile(ctx, q, opts)
	if err != nil {
		return nil, err
	}
	updateOpts := native(a.config.UpdateOpts, opts.UpdateOpts)
	updateOpts[OptReturnChanges] = true
	wr, err := a.driver.UpdateWhere(ctx, ref, plan, in, updateOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", ref, err)
	}
	if err := wr.err(opts.op); err != nil {
		return nil, err
	}
	records := wr.NewValues()

	opts.op = "afterUpdateAll"
	out, err := a.hooks.AfterUpdateAll(ctx, m, props, q, opts, records)
	if err != nil {
		return nil, err
	}
	if out != nil {
		records = out
	}

	res := &Result[[]Record]{Data: records}
	if a.raw(opts) {
		res.Native = wr
		res.Updated = len(records)
	}
	return res, nil
}

// UpdateMany writes back full records, matched by primary key. Records
// without a primary key are ignored.
func (a *Adapter) UpdateMany(ctx context.Context, m *Mapper, records []Record, opts *Options) (*Result[[]Record], error) {
	opts = a.options(opts)
	ref := a.ref(m, opts)

	keyed := make([]Record, 0, len(records))
	for _, r := range records {
		if m.ID(r) != nil {
			keyed = append(keyed, r)
		}
	}
	if err := a.ensureTable(ctx, ref); err != nil {
		return nil, err
	}

	opts.op = "beforeUpdateMany"
	in, err := a.hooks.BeforeUpdateMany(ctx, m, keyed, opts)
	if err != nil {
		return nil, err
	}
	if in == nil {
		in = keyed
	}

	opts.op = "updateMany"
	a.dbg(ctx, opts.op, ref, "count", len(in))
	insertOpts := native(a.config.InsertOpts, opts.InsertOpts)
	insertOpts[OptReturnChanges] = true
	insertOpts[OptConflict] = ConflictUpdate
	wr, err := a.driver.Insert(ctx, ref, in, insertOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert into %s: %w", ref, err)
	}
	if err := wr.err(opts.op); err != nil {
		return nil, err
	}
	updated := wr.NewValues()

	opts.op = "afterUpdateMany"
	out, err := a.hooks.AfterUpdateMany(ctx, m, keyed, opts, updated)
	if err != nil {
		return nil, err
	}
	if out != nil {
		updated = out
	}

	res := &Result[[]Record]{Data: updated}
	if a.raw(opts) {
		res.Native = wr
		res.Updated = len(updated)
	}
	return res, nil
}

// Destroy deletes the record with the given primary key. The write result is
// returned only when the raw option is set.
func (a *Adapter) Destroy(ctx context.Context, m *Mapper, id any, opts *Options) (*WriteResult, error) {
	opts = a.options(opts)
	ref := a.ref(m, opts)
	if err := a.ensureTable(ctx, ref); err != nil {
		return nil, err
	}

	opts.op = "beforeDestroy"
	if err := a.hooks.BeforeDestroy(ctx, m, id, opts); err != nil {
		return nil, err
	}

	opts.op = "destroy"
	a.dbg(ctx, opts.op, ref, "id", id)
	wr, err := a.driver.Delete(ctx, ref, id, native(a.config.DeleteOpts, opts.DeleteOpts))
	if err != nil {
		return nil, fmt.Errorf("failed to delete %v from %s: %w", id, ref, err)
	}
	if err := wr.err(opts.op); err != nil {
		return nil, err
	}

	opts.op = "afterDestroy"
	out, err := a.hooks.AfterDestroy(ctx, m, id, opts, wr)
	if err != nil {
		return nil, err
	}
	if out != nil {
		wr = out
	}

	if a.raw(opts) {
		return wr, nil
	}
	return nil, nil
}

// DestroyAll deletes every record selected by q. The write result is
// returned only when the raw option is set.
func (a *Adapter) DestroyAll(ctx context.Context, m *Mapper, q *Query, opts *Options) (*WriteResult, error) {
	opts = a.options(opts)
	ref := a.ref(m, opts)
	if q == nil {
		q = NewQuery()
	}
	if err := a.ensureTable(ctx, ref); err != nil {
		return nil, err
	}

	opts.op = "beforeDestroyAll"
	if err := a.hooks.BeforeDestroyAll(ctx, m, q, opts); err != nil {
		return nil, err
	}

	opts.op = "destroyAll"
	a.dbg(ctx, opts.op, ref)
	plan, err := a.compile(ctx, q, opts)
	if err != nil {
		return nil, err
	}
	wr, err := a.driver.DeleteWhere(ctx, ref, plan, native(a.config.DeleteOpts, opts.DeleteOpts))
	if err != nil {
		return nil, fmt.Errorf("failed to delete from %s: %w", ref, err)
	}
	if err := wr.err(opts.op); err != nil {
		return nil, err
	}

	opts.op = "afterDestroyAll"
	out, err := a.hooks.AfterDestroyAll(ctx, m, q, opts, wr)
	if err != nil {
		return nil, err
	}
	if out != nil {
		wr = out
	}

	if a.raw(opts) {
		return wr, nil
	}
	return nil, nil
}

// findOne and findMany serve the dependent queries of the resolver.
func (a *Adapter) findOne(ctx context.Context, m *Mapper, id any, opts *Options) (Record, error) {
	res, err := a.Find(ctx, m, id, opts)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

func (a *Adapter) findMany(ctx context.Context, m *Mapper, q *Query, opts *Options) ([]Record, error) {
	res, err := a.FindAll(ctx, m, q, opts)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}
