package tablemock

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nisimpson/tablemap"
)

// Driver operation names, as counted by MemoryDriver.Calls.
const (
	OpListDatabases  = "ListDatabases"
	OpCreateDatabase = "CreateDatabase"
	OpListTables     = "ListTables"
	OpCreateTable    = "CreateTable"
	OpListIndexes    = "ListIndexes"
	OpCreateIndex    = "CreateIndex"
	OpWaitIndex      = "WaitIndex"
	OpScan           = "Scan"
	OpGet            = "Get"
	OpInsert         = "Insert"
	OpUpdate         = "Update"
	OpUpdateWhere    = "UpdateWhere"
	OpDelete         = "Delete"
	OpDeleteWhere    = "DeleteWhere"
)

// ScanCall records one Scan request.
type ScanCall struct {
	Ref  tablemap.TableRef
	Plan *tablemap.Plan
}

type memTable struct {
	rows    []tablemap.Record
	indexes []string
}

func (t *memTable) find(key string, id any) int {
	return slices.IndexFunc(t.rows, func(r tablemap.Record) bool {
		return tablemap.Equal(r[key], id)
	})
}

// MemoryDriver is an in-memory tablemap.Driver. Databases and tables behave
// like a real store: a table can only be created in an existing database and
// an index only on an existing table. Every call is counted and scans are
// recorded so tests can assert on the queries an adapter issues.
type MemoryDriver struct {
	// FailWith, when set, is consulted before every operation; a non-nil
	// error is returned as the operation's failure.
	FailWith func(op string, ref tablemap.TableRef) error

	// SchemaDelay is slept before every Create call, widening the window in
	// which concurrent provisioning requests can race.
	SchemaDelay time.Duration

	mu    sync.Mutex
	dbs   map[string]map[string]*memTable
	calls map[string]int
	scans []ScanCall
}

var _ tablemap.Driver = (*MemoryDriver)(nil)

// NewMemoryDriver creates an empty in-memory store.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{
		dbs:   make(map[string]map[string]*memTable),
		calls: make(map[string]int),
	}
}

// Calls returns how many times op was invoked.
func (d *MemoryDriver) Calls(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// Scans returns the recorded Scan requests in call order.
func (d *MemoryDriver) Scans() []ScanCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.scans)
}

// ScansOf returns the recorded Scan requests against table.
func (d *MemoryDriver) ScansOf(table string) []ScanCall {
	var out []ScanCall
	for _, s := range d.Scans() {
		if s.Ref.Table == table {
			out = append(out, s)
		}
	}
	return out
}

// Reset clears the call counters and recorded scans; stored data is kept.
func (d *MemoryDriver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = make(map[string]int)
	d.scans = nil
}

// Seed stores records directly, creating the database and table as needed.
// Existing records with the same key are replaced.
func (d *MemoryDriver) Seed(ref tablemap.TableRef, records ...tablemap.Record) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tables, ok := d.dbs[ref.DB]
	if !ok {
		tables = make(map[string]*memTable)
		d.dbs[ref.DB] = tables
	}
	t, ok := tables[ref.Table]
	if !ok {
		t = &memTable{}
		tables[ref.Table] = t
	}
	for _, r := range records {
		r = tablemap.CloneRecord(r)
		if i := t.find(ref.Key, r[ref.Key]); i >= 0 {
			t.rows[i] = r
			continue
		}
		t.rows = append(t.rows, r)
	}
}

// Rows returns copies of every record stored in ref, in insertion order.
func (d *MemoryDriver) Rows(ref tablemap.TableRef) []tablemap.Record {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.dbs[ref.DB][ref.Table]
	if !ok {
		return nil
	}
	out := make([]tablemap.Record, len(t.rows))
	for i, r := range t.rows {
		out[i] = tablemap.CloneRecord(r)
	}
	return out
}

func (d *MemoryDriver) enter(op string, ref tablemap.TableRef) error {
	d.mu.Lock()
	d.calls[op]++
	d.mu.Unlock()

	if d.FailWith != nil {
		return d.FailWith(op, ref)
	}
	return nil
}

func (d *MemoryDriver) pause(ctx context.Context) error {
	if d.SchemaDelay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d.SchemaDelay):
		return nil
	}
}

// table returns the table behind ref. The caller holds d.mu.
func (d *MemoryDriver) table(ref tablemap.TableRef) (*memTable, error) {
	tables, ok := d.dbs[ref.DB]
	if !ok {
		return nil, fmt.Errorf("database %q does not exist", ref.DB)
	}
	t, ok := tables[ref.Table]
	if !ok {
		return nil, fmt.Errorf("table %q does not exist", ref.String())
	}
	return t, nil
}

// ListDatabases implements tablemap.SchemaDriver.
func (d *MemoryDriver) ListDatabases(ctx context.Context) ([]string, error) {
	if err := d.enter(OpListDatabases, tablemap.TableRef{}); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	names := make([]string, 0, len(d.dbs))
	for name := range d.dbs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// CreateDatabase implements tablemap.SchemaDriver.
func (d *MemoryDriver) CreateDatabase(ctx context.Context, db string) error {
	if err := d.enter(OpCreateDatabase, tablemap.TableRef{DB: db}); err != nil {
		return err
	}
	if err := d.pause(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.dbs[db]; !ok {
		d.dbs[db] = make(map[string]*memTable)
	}
	return nil
}

// ListTables implements tablemap.SchemaDriver.
func (d *MemoryDriver) ListTables(ctx context.Context, db string) ([]string, error) {
	if err := d.enter(OpListTables, tablemap.TableRef{DB: db}); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	tables, ok := d.dbs[db]
	if !ok {
		return nil, fmt.Errorf("database %q does not exist", db)
	}
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// CreateTable implements tablemap.SchemaDriver.
func (d *MemoryDriver) CreateTable(ctx context.Context, ref tablemap.TableRef) error {
	if err := d.enter(OpCreateTable, ref); err != nil {
		return err
	}
	if err := d.pause(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	tables, ok := d.dbs[ref.DB]
	if !ok {
		return fmt.Errorf("database %q does not exist", ref.DB)
	}
	if _, ok := tables[ref.Table]; !ok {
		tables[ref.Table] = &memTable{}
	}
	return nil
}

// ListIndexes implements tablemap.SchemaDriver.
func (d *MemoryDriver) ListIndexes(ctx context.Context, ref tablemap.TableRef) ([]string, error) {
	if err := d.enter(OpListIndexes, ref); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	t, err := d.table(ref)
	if err != nil {
		return nil, err
	}
	return slices.Clone(t.indexes), nil
}

// CreateIndex implements tablemap.SchemaDriver.
func (d *MemoryDriver) CreateIndex(ctx context.Context, ref tablemap.TableRef, index string) error {
	if err := d.enter(OpCreateIndex, ref); err != nil {
		return err
	}
	if err := d.pause(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	t, err := d.table(ref)
	if err != nil {
		return err
	}
	if !slices.Contains(t.indexes, index) {
		t.indexes = append(t.indexes, index)
	}
	return nil
}

// WaitIndex implements tablemap.SchemaDriver. Indexes are ready as soon as
// they exist.
func (d *MemoryDriver) WaitIndex(ctx context.Context, ref tablemap.TableRef, index string) error {
	if err := d.enter(OpWaitIndex, ref); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	t, err := d.table(ref)
	if err != nil {
		return err
	}
	if !slices.Contains(t.indexes, index) {
		return fmt.Errorf("index %q does not exist on %s", index, ref)
	}
	return nil
}

// Scan implements tablemap.Driver.
func (d *MemoryDriver) Scan(ctx context.Context, ref tablemap.TableRef, plan *tablemap.Plan, opts tablemap.NativeOpts) ([]tablemap.Record, error) {
	if err := d.enter(OpScan, ref); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.scans = append(d.scans, ScanCall{Ref: ref, Plan: plan})
	t, err := d.table(ref)
	if err != nil {
		return nil, err
	}
	return plan.Apply(clones(t.rows)), nil
}

// Get implements tablemap.Driver.
func (d *MemoryDriver) Get(ctx context.Context, ref tablemap.TableRef, id any, opts tablemap.NativeOpts) (tablemap.Record, error) {
	if err := d.enter(OpGet, ref); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	t, err := d.table(ref)
	if err != nil {
		return nil, err
	}
	if i := t.find(ref.Key, id); i >= 0 {
		return tablemap.CloneRecord(t.rows[i]), nil
	}
	return nil, nil
}

// Insert implements tablemap.Driver. Records without a primary key get a
// generated UUID.
func (d *MemoryDriver) Insert(ctx context.Context, ref tablemap.TableRef, records []tablemap.Record, opts tablemap.NativeOpts) (*tablemap.WriteResult, error) {
	if err := d.enter(OpInsert, ref); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	t, err := d.table(ref)
	if err != nil {
		return nil, err
	}

	wr := &tablemap.WriteResult{}
	for _, rec := range records {
		rec = tablemap.CloneRecord(rec)
		if rec == nil {
			rec = tablemap.Record{}
		}
		if rec[ref.Key] == nil {
			rec[ref.Key] = uuid.NewString()
			wr.GeneratedKeys = append(wr.GeneratedKeys, rec[ref.Key])
		}

		i := t.find(ref.Key, rec[ref.Key])
		var old tablemap.Record
		if i >= 0 {
			old = t.rows[i]
			switch opts.String(tablemap.OptConflict) {
			case tablemap.ConflictUpdate:
				rec = merged(old, rec)
			case tablemap.ConflictReplace:
			default:
				wr.Fail("Duplicate primary key `%s`: %v", ref.Key, rec[ref.Key])
				continue
			}
		}

		switch {
		case old == nil:
			t.rows = append(t.rows, rec)
			wr.Inserted++
		case sameRecord(old, rec):
			wr.Unchanged++
		default:
			t.rows[i] = rec
			wr.Replaced++
		}
		if opts.Bool(tablemap.OptReturnChanges) {
			wr.Changes = append(wr.Changes, tablemap.Change{
				OldVal: tablemap.CloneRecord(old),
				NewVal: tablemap.CloneRecord(rec),
			})
		}
	}
	return wr, nil
}

// Update implements tablemap.Driver.
func (d *MemoryDriver) Update(ctx context.Context, ref tablemap.TableRef, id any, props tablemap.Record, opts tablemap.NativeOpts) (*tablemap.WriteResult, error) {
	if err := d.enter(OpUpdate, ref); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	t, err := d.table(ref)
	if err != nil {
		return nil, err
	}
	return t.update(ref.Key, id, props, opts.Bool(tablemap.OptReturnChanges)), nil
}

func (t *memTable) update(key string, id any, props tablemap.Record, changes bool) *tablemap.WriteResult {
	wr := &tablemap.WriteResult{}
	i := t.find(key, id)
	if i < 0 {
		wr.Skipped++
		return wr
	}

	old := t.rows[i]
	rec := merged(old, props)
	rec[key] = old[key]
	if sameRecord(old, rec) {
		wr.Unchanged++
	} else {
		t.rows[i] = rec
		wr.Replaced++
	}
	if changes {
		wr.Changes = append(wr.Changes, tablemap.Change{
			OldVal: tablemap.CloneRecord(old),
			NewVal: tablemap.CloneRecord(rec),
		})
	}
	return wr
}

// UpdateWhere implements tablemap.Driver.
func (d *MemoryDriver) UpdateWhere(ctx context.Context, ref tablemap.TableRef, plan *tablemap.Plan, props tablemap.Record, opts tablemap.NativeOpts) (*tablemap.WriteResult, error) {
	if err := d.enter(OpUpdateWhere, ref); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	t, err := d.table(ref)
	if err != nil {
		return nil, err
	}
	wr := &tablemap.WriteResult{}
	for _, r := range plan.Apply(clones(t.rows)) {
		wr.Merge(t.update(ref.Key, r[ref.Key], props, opts.Bool(tablemap.OptReturnChanges)))
	}
	return wr, nil
}

// Delete implements tablemap.Driver.
func (d *MemoryDriver) Delete(ctx context.Context, ref tablemap.TableRef, id any, opts tablemap.NativeOpts) (*tablemap.WriteResult, error) {
	if err := d.enter(OpDelete, ref); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	t, err := d.table(ref)
	if err != nil {
		return nil, err
	}
	return t.delete(ref.Key, id, opts.Bool(tablemap.OptReturnChanges)), nil
}

func (t *memTable) delete(key string, id any, changes bool) *tablemap.WriteResult {
	wr := &tablemap.WriteResult{}
	i := t.find(key, id)
	if i < 0 {
		wr.Skipped++
		return wr
	}
	old := t.rows[i]
	t.rows = slices.Delete(t.rows, i, i+1)
	wr.Deleted++
	if changes {
		wr.Changes = append(wr.Changes, tablemap.Change{OldVal: old})
	}
	return wr
}

// DeleteWhere implements tablemap.Driver.
func (d *MemoryDriver) DeleteWhere(ctx context.Context, ref tablemap.TableRef, plan *tablemap.Plan, opts tablemap.NativeOpts) (*tablemap.WriteResult, error) {
	if err := d.enter(OpDeleteWhere, ref); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	t, err := d.table(ref)
	if err != nil {
		return nil, err
	}
	wr := &tablemap.WriteResult{}
	for _, r := range plan.Apply(clones(t.rows)) {
		wr.Merge(t.delete(ref.Key, r[ref.Key], opts.Bool(tablemap.OptReturnChanges)))
	}
	return wr, nil
}

func clones(rows []tablemap.Record) []tablemap.Record {
	out := make([]tablemap.Record, len(rows))
	for i, r := range rows {
		out[i] = tablemap.CloneRecord(r)
	}
	return out
}

func merged(old, props tablemap.Record) tablemap.Record {
	out := tablemap.CloneRecord(old)
	for k, v := range props {
		out[k] = v
	}
	return out
}

func sameRecord(a, b tablemap.Record) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		w, ok := b[k]
		if !ok || !tablemap.Equal(v, w) {
			return false
		}
	}
	return true
}
