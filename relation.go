package tablemap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
)

// finder runs the dependent reads issued while resolving relations.
type finder interface {
	findOne(ctx context.Context, m *Mapper, id any, opts *Options) (Record, error)
	findMany(ctx context.Context, m *Mapper, q *Query, opts *Options) ([]Record, error)
}

// attachment is one value destined for a parent's local field.
type attachment struct {
	record Record
	value  any
}

// Resolver eager-loads relations onto parent records.
type Resolver struct {
	finder finder
	logger *slog.Logger
}

func newResolver(f finder, logger *slog.Logger) *Resolver {
	return &Resolver{finder: f, logger: logger}
}

// requested reports whether def is named in with, either directly (by
// relation name or local field) or as the head of a dotted path. The tails
// of matching paths are returned for the dependent query.
func requested(def RelationDefinition, with []string) (bool, []string) {
	var (
		found  bool
		nested []string
		names  = []string{def.RelationName(), def.LocalField}
	)
	for _, w := range with {
		for _, name := range names {
			if w == name {
				found = true
				break
			}
			if rest, ok := strings.CutPrefix(w, name+"."); ok {
				found = true
				nested = append(nested, rest)
				break
			}
		}
	}
	return found, nested
}

// Load resolves every relation of m requested in opts.With and attaches the
// results to records. Relations are fetched concurrently; the first failure
// cancels the rest and leaves records untouched. single selects the
// one-record query forms used by Find.
func (r *Resolver) Load(ctx context.Context, m *Mapper, records []Record, single bool, opts *Options) error {
	if len(records) == 0 || opts == nil || len(opts.With) == 0 {
		return nil
	}

	type job struct {
		def  RelationDefinition
		sub  *Options
		atts []attachment
	}
	var jobs []*job
	for _, def := range m.Relations {
		if ok, nested := requested(def, opts.With); ok {
			jobs = append(jobs, &job{def: def, sub: opts.sub(nested)})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, j := range jobs {
		g.Go(func() error {
			r.logger.DebugContext(gctx, "loading relation", "mapper", m.Name, "relation", j.def.RelationName(), "kind", j.def.Kind.String())
			atts, err := r.resolve(gctx, m, j.def, records, single, j.sub)
			if err != nil {
				return &RelationError{Mapper: m.Name, Relation: j.def.RelationName(), Err: err}
			}
			j.atts = atts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Records are plain maps, so attachments are applied only once every
	// task has finished.
	for _, j := range jobs {
		for _, a := range j.atts {
			a.record[j.def.LocalField] = a.value
		}
	}
	return nil
}

func (r *Resolver) resolve(ctx context.Context, m *Mapper, def RelationDefinition, records []Record, single bool, opts *Options) ([]attachment, error) {
	related := def.Related()
	if related == nil {
		return nil, fmt.Errorf("%w: relation %q has no related mapper", ErrInvalidMapper, def.LocalField)
	}

	switch def.Strategy() {
	case StrategyBelongsTo:
		return r.belongsTo(ctx, def, related, records, single, opts)
	case StrategyForeignKey:
		return r.byForeignKey(ctx, m, def, related, records, single, opts)
	case StrategyLocalKeys:
		return r.byLocalKeys(ctx, def, related, records, opts)
	case StrategyForeignKeys:
		return r.byForeignKeys(ctx, m, def, related, records, single, opts)
	}
	return nil, fmt.Errorf("%w: relation %q has an invalid key configuration", ErrInvalidMapper, def.LocalField)
}

func (r *Resolver) belongsTo(ctx context.Context, def RelationDefinition, related *Mapper, records []Record, single bool, opts *Options) ([]attachment, error) {
	if single {
		parent := records[0]
		key := parent[def.ForeignKey]
		if key == nil {
			return nil, nil
		}
		item, err := r.finder.findOne(ctx, related, key, opts)
		if err != nil || item == nil {
			return nil, err
		}
		return []attachment{{record: parent, value: item}}, nil
	}

	keys := make([]any, 0, len(records))
	for _, parent := range records {
		keys = append(keys, parent[def.ForeignKey])
	}
	keys = dedupe(keys)
	if len(keys) == 0 {
		return nil, nil
	}

	items, err := r.finder.findMany(ctx, related, NewQuery().And(related.IDAttribute, OpIn, keys), opts)
	if err != nil {
		return nil, err
	}
	byID := make(map[any]Record, len(items))
	for _, item := range items {
		id := normalize(related.ID(item))
		if _, ok := byID[id]; !ok {
			byID[id] = item
		}
	}

	var atts []attachment
	for _, parent := range records {
		if item, ok := byID[normalize(parent[def.ForeignKey])]; ok && parent[def.ForeignKey] != nil {
			atts = append(atts, attachment{record: parent, value: item})
		}
	}
	return atts, nil
}

// attachMany produces one attachment per parent; hasOne relations take the
// first match and stay unset when nothing matched.
func attachMany(def RelationDefinition, parents []Record, matched func(Record) []Record) []attachment {
	atts := make([]attachment, 0, len(parents))
	for _, parent := range parents {
		items := matched(parent)
		if def.Kind == KindHasOne {
			if len(items) > 0 {
				atts = append(atts, attachment{record: parent, value: items[0]})
			}
			continue
		}
		if items == nil {
			items = []Record{}
		}
		atts = append(atts, attachment{record: parent, value: items})
	}
	return atts
}

func none(Record) []Record { return nil }

func parentIDs(m *Mapper, records []Record) []any {
	ids := make([]any, 0, len(records))
	for _, parent := range records {
		ids = append(ids, m.ID(parent))
	}
	return dedupe(ids)
}

func (r *Resolver) byForeignKey(ctx context.Context, m *Mapper, def RelationDefinition, related *Mapper, records []Record, single bool, opts *Options) ([]attachment, error) {
	ids := parentIDs(m, records)
	if len(ids) == 0 {
		return attachMany(def, records, none), nil
	}

	if single {
		items, err := r.finder.findMany(ctx, related, NewQuery().Equal(def.ForeignKey, ids[0]), opts)
		if err != nil {
			return nil, err
		}
		return attachMany(def, records, func(Record) []Record { return items }), nil
	}

	items, err := r.finder.findMany(ctx, related, NewQuery().And(def.ForeignKey, OpIn, ids), opts)
	if err != nil {
		return nil, err
	}
	groups := make(map[any][]Record)
	for _, item := range items {
		key := normalize(item[def.ForeignKey])
		groups[key] = append(groups[key], item)
	}
	return attachMany(def, records, func(parent Record) []Record {
		return groups[normalize(m.ID(parent))]
	}), nil
}

func (r *Resolver) byLocalKeys(ctx context.Context, def RelationDefinition, related *Mapper, records []Record, opts *Options) ([]attachment, error) {
	perParent := make([][]any, len(records))
	var union []any
	for i, parent := range records {
		perParent[i] = toList(parent[def.LocalKeys])
		union = append(union, perParent[i]...)
	}
	union = dedupe(union)
	if len(union) == 0 {
		return attachMany(def, records, none), nil
	}

	items, err := r.finder.findMany(ctx, related, NewQuery().And(related.IDAttribute, OpIn, union), opts)
	if err != nil {
		return nil, err
	}

	atts := make([]attachment, 0, len(records))
	for i, parent := range records {
		matched := []Record{}
		for _, item := range items {
			if containsValue(perParent[i], related.ID(item)) {
				matched = append(matched, item)
			}
		}
		atts = append(atts, attachment{record: parent, value: matched})
	}
	return atts, nil
}

func (r *Resolver) byForeignKeys(ctx context.Context, m *Mapper, def RelationDefinition, related *Mapper, records []Record, single bool, opts *Options) ([]attachment, error) {
	ids := parentIDs(m, records)
	if len(ids) == 0 {
		return attachMany(def, records, none), nil
	}

	q := NewQuery().And(def.ForeignKeys, OpIsectNotEmpty, ids)
	if single {
		q = NewQuery().And(def.ForeignKeys, OpContains, ids[0])
	}
	items, err := r.finder.findMany(ctx, related, q, opts)
	if err != nil {
		return nil, err
	}

	// Each related record is matched on its own list of parent keys.
	return attachMany(def, records, func(parent Record) []Record {
		id := m.ID(parent)
		var matched []Record
		for _, item := range items {
			if containsValue(toList(item[def.ForeignKeys]), id) {
				matched = append(matched, item)
			}
		}
		return matched
	}), nil
}
