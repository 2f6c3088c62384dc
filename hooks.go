package tablemap

import (
	"context"
	"log/slog"
)

// Hooks are the lifecycle extension points of the adapter. Before hooks may
// return a replacement input and after hooks a replacement output; returning
// nil keeps the original. An error aborts the operation.
type Hooks struct {
	BeforeCreate     func(ctx context.Context, m *Mapper, props Record, opts *Options) (Record, error)
	AfterCreate      func(ctx context.Context, m *Mapper, props Record, opts *Options, record Record) (Record, error)
	BeforeCreateMany func(ctx context.Context, m *Mapper, props []Record, opts *Options) ([]Record, error)
	AfterCreateMany  func(ctx context.Context, m *Mapper, props []Record, opts *Options, records []Record) ([]Record, error)
	BeforeFind       func(ctx context.Context, m *Mapper, id any, opts *Options) error
	AfterFind        func(ctx context.Context, m *Mapper, id any, opts *Options, record Record) (Record, error)
	BeforeFindAll    func(ctx context.Context, m *Mapper, q *Query, opts *Options) error
	AfterFindAll     func(ctx context.Context, m *Mapper, q *Query, opts *Options, records []Record) ([]Record, error)
	BeforeUpdate     func(ctx context.Context, m *Mapper, id any, props Record, opts *Options) (Record, error)
	AfterUpdate      func(ctx context.Context, m *Mapper, id any, props Record, opts *Options, record Record) (Record, error)
	BeforeUpdateAll  func(ctx context.Context, m *Mapper, props Record, q *Query, opts *Options) (Record, error)
	AfterUpdateAll   func(ctx context.Context, m *Mapper, props Record, q *Query, opts *Options, records []Record) ([]Record, error)
	BeforeUpdateMany func(ctx context.Context, m *Mapper, records []Record, opts *Options) ([]Record, error)
	AfterUpdateMany  func(ctx context.Context, m *Mapper, records []Record, opts *Options, updated []Record) ([]Record, error)
	BeforeDestroy    func(ctx context.Context, m *Mapper, id any, opts *Options) error
	AfterDestroy     func(ctx context.Context, m *Mapper, id any, opts *Options, result *WriteResult) (*WriteResult, error)
	BeforeDestroyAll func(ctx context.Context, m *Mapper, q *Query, opts *Options) error
	AfterDestroyAll  func(ctx context.Context, m *Mapper, q *Query, opts *Options, result *WriteResult) (*WriteResult, error)
}

// trace logs a hook invocation the way every default hook does.
func trace(ctx context.Context, logger *slog.Logger, m *Mapper, opts *Options) {
	logger.DebugContext(ctx, "hook", "op", opts.Op(), "mapper", m.Name)
}

func nopRecord(l *slog.Logger) func(context.Context, *Mapper, *Options) (Record, error) {
	return func(ctx context.Context, m *Mapper, opts *Options) (Record, error) {
		trace(ctx, l, m, opts)
		return nil, nil
	}
}

func nopRecords(l *slog.Logger) func(context.Context, *Mapper, *Options) ([]Record, error) {
	return func(ctx context.Context, m *Mapper, opts *Options) ([]Record, error) {
		trace(ctx, l, m, opts)
		return nil, nil
	}
}

func nopResult(l *slog.Logger) func(context.Context, *Mapper, *Options) (*WriteResult, error) {
	return func(ctx context.Context, m *Mapper, opts *Options) (*WriteResult, error) {
		trace(ctx, l, m, opts)
		return nil, nil
	}
}

func nopErr(l *slog.Logger) func(context.Context, *Mapper, *Options) error {
	return func(ctx context.Context, m *Mapper, opts *Options) error {
		trace(ctx, l, m, opts)
		return nil
	}
}

// withDefaults fills every nil slot with a no-op that emits a debug trace.
func (h Hooks) withDefaults(l *slog.Logger) Hooks {
	rec, recs, res, e := nopRecord(l), nopRecords(l), nopResult(l), nopErr(l)

	if h.BeforeCreate == nil {
		h.BeforeCreate = func(ctx context.Context, m *Mapper, _ Record, o *Options) (Record, error) { return rec(ctx, m, o) }
	}
	if h.AfterCreate == nil {
		h.AfterCreate = func(ctx context.Context, m *Mapper, _ Record, o *Options, _ Record) (Record, error) { return rec(ctx, m, o) }
	}
	if h.BeforeCreateMany == nil {
		h.BeforeCreateMany = func(ctx context.Context, m *Mapper, _ []Record, o *Options) ([]Record, error) { return recs(ctx, m, o) }
	}
	if h.AfterCreateMany == nil {
		h.AfterCreateMany = func(ctx context.Context, m *Mapper, _ []Record, o *Options, _ []Record) ([]Record, error) {
			return recs(ctx, m, o)
		}
	}
	if h.BeforeFind == nil {
		h.BeforeFind = func(ctx context.Context, m *Mapper, _ any, o *Options) error { return e(ctx, m, o) }
	}
	if h.AfterFind == nil {
		h.AfterFind = func(ctx context.Context, m *Mapper, _ any, o *Options, _ Record) (Record, error) { return rec(ctx, m, o) }
	}
	if h.BeforeFindAll == nil {
		h.BeforeFindAll = func(ctx context.Context, m *Mapper, _ *Query, o *Options) error { return e(ctx, m, o) }
	}
	if h.AfterFindAll == nil {
		h.AfterFindAll = func(ctx context.Context, m *Mapper, _ *Query, o *Options, _ []Record) ([]Record, error) {
			return recs(ctx, m, o)
		}
	}
	if h.BeforeUpdate == nil {
		h.BeforeUpdate = func(ctx context.Context, m *Mapper, _ any, _ Record, o *Options) (Record, error) { return rec(ctx, m, o) }
	}
	if h.AfterUpdate == nil {
		h.AfterUpdate = func(ctx context.Context, m *Mapper, _ any, _ Record, o *Options, _ Record) (Record, error) {
			return rec(ctx, m, o)
		}
	}
	if h.BeforeUpdateAll == nil {
		h.BeforeUpdateAll = func(ctx context.Context, m *Mapper, _ Record, _ *Query, o *Options) (Record, error) {
			return rec(ctx, m, o)
		}
	}
	if h.AfterUpdateAll == nil {
		h.AfterUpdateAll = func(ctx context.Context, m *Mapper, _ Record, _ *Query, o *Options, _ []Record) ([]Record, error) {
			return recs(ctx, m, o)
		}
	}
	if h.BeforeUpdateMany == nil {
		h.BeforeUpdateMany = func(ctx context.Context, m *Mapper, _ []Record, o *Options) ([]Record, error) { return recs(ctx, m, o) }
	}
	if h.AfterUpdateMany == nil {
		h.AfterUpdateMany = func(ctx context.Context, m *Mapper, _ []Record, o *Options, _ []Record) ([]Record, error) {
			return recs(ctx, m, o)
		}
	}
	if h.BeforeDestroy == nil {
		h.BeforeDestroy = func(ctx context.Context, m *Mapper, _ any, o *Options) error { return e(ctx, m, o) }
	}
	if h.AfterDestroy == nil {
		h.AfterDestroy = func(ctx context.Context, m *Mapper, _ any, o *Options, _ *WriteResult) (*WriteResult, error) {
			return res(ctx, m, o)
		}
	}
	if h.BeforeDestroyAll == nil {
		h.BeforeDestroyAll = func(ctx context.Context, m *Mapper, _ *Query, o *Options) error { return e(ctx, m, o) }
	}
	if h.AfterDestroyAll == nil {
		h.AfterDestroyAll = func(ctx context.Context, m *Mapper, _ *Query, o *Options, _ *WriteResult) (*WriteResult, error) {
			return res(ctx, m, o)
		}
	}
	return h
}
