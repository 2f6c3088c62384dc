package tablemap

import (
	"context"
	"fmt"
)

// Native option keys understood by the bundled drivers.
const (
	OptReturnChanges  = "returnChanges"  // bool: report old and new values of written rows
	OptConflict       = "conflict"       // string: "error" (default), "update" or "replace"
	OptConsistentRead = "consistentRead" // bool: strongly consistent reads
)

// Conflict strategies for inserts.
const (
	ConflictError   = "error"
	ConflictUpdate  = "update"
	ConflictReplace = "replace"
)

// TableRef addresses a table and names its primary-key field.
type TableRef struct {
	DB    string
	Table string
	Key   string
}

func (t TableRef) String() string {
	return t.DB + "." + t.Table
}

// NativeOpts are driver options passed through untouched by the adapter.
type NativeOpts map[string]any

// Bool returns the boolean option key, or false.
func (o NativeOpts) Bool(key string) bool {
	v, _ := o[key].(bool)
	return v
}

// String returns the string option key, or "".
func (o NativeOpts) String(key string) string {
	v, _ := o[key].(string)
	return v
}

func (o NativeOpts) clone() NativeOpts {
	out := make(NativeOpts, len(o)+1)
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Change holds the before and after image of one written row.
type Change struct {
	OldVal Record
	NewVal Record
}

// WriteResult is the store's report of a write. Errors counts rows that
// failed; FirstError carries the first failure message.
type WriteResult struct {
	Inserted      int
	Replaced      int
	Unchanged     int
	Skipped       int
	Deleted       int
	Errors        int
	FirstError    string
	GeneratedKeys []any
	Changes       []Change
}

// NewValues returns the non-nil new images of the result's changes.
func (w *WriteResult) NewValues() []Record {
	if w == nil {
		return nil
	}
	out := make([]Record, 0, len(w.Changes))
	for _, c := range w.Changes {
		if c.NewVal != nil {
			out = append(out, c.NewVal)
		}
	}
	return out
}

// Fail records a row failure.
func (w *WriteResult) Fail(format string, args ...any) {
	if w.Errors == 0 {
		w.FirstError = fmt.Sprintf(format, args...)
	}
	w.Errors++
}

// Merge adds the counters and changes of other into w.
func (w *WriteResult) Merge(other *WriteResult) {
	if other == nil {
		return
	}
	w.Inserted += other.Inserted
	w.Replaced += other.Replaced
	w.Unchanged += other.Unchanged
	w.Skipped += other.Skipped
	w.Deleted += other.Deleted
	if w.Errors == 0 {
		w.FirstError = other.FirstError
	}
	w.Errors += other.Errors
	w.GeneratedKeys = append(w.GeneratedKeys, other.GeneratedKeys...)
	w.Changes = append(w.Changes, other.Changes...)
}

func (w *WriteResult) err(op string) error {
	if w == nil || w.Errors == 0 {
		return nil
	}
	msg := w.FirstError
	if msg == "" {
		msg = "unknown store error"
	}
	return &NativeError{Op: op, Errors: w.Errors, Message: msg}
}

// SchemaDriver creates and lists schema objects. Create calls must succeed
// when the object already exists.
type SchemaDriver interface {
	ListDatabases(ctx context.Context) ([]string, error)
	CreateDatabase(ctx context.Context, db string) error
	ListTables(ctx context.Context, db string) ([]string, error)
	CreateTable(ctx context.Context, ref TableRef) error
	ListIndexes(ctx context.Context, ref TableRef) ([]string, error)
	CreateIndex(ctx context.Context, ref TableRef, index string) error
	// WaitIndex blocks until the index has finished building.
	WaitIndex(ctx context.Context, ref TableRef, index string) error
}

// Driver is the native table store.
type Driver interface {
	SchemaDriver

	// Scan returns the records selected by plan, sorted and paginated.
	Scan(ctx context.Context, ref TableRef, plan *Plan, opts NativeOpts) ([]Record, error)
	// Get returns the record with the given primary key, or nil.
	Get(ctx context.Context, ref TableRef, id any, opts NativeOpts) (Record, error)
	Insert(ctx context.Context, ref TableRef, records []Record, opts NativeOpts) (*WriteResult, error)
	// Update merges props into the record with the given primary key. A
	// missing record yields a result without changes.
	Update(ctx context.Context, ref TableRef, id any, props Record, opts NativeOpts) (*WriteResult, error)
	UpdateWhere(ctx context.Context, ref TableRef, plan *Plan, props Record, opts NativeOpts) (*WriteResult, error)
	Delete(ctx context.Context, ref TableRef, id any, opts NativeOpts) (*WriteResult, error)
	DeleteWhere(ctx context.Context, ref TableRef, plan *Plan, opts NativeOpts) (*WriteResult, error)
}
