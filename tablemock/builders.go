package tablemock

import (
	"github.com/nisimpson/tablemap"
)

// RecordOption is a functional option for configuring records during building.
type RecordOption func(*RecordBuilder)

// RecordBuilder builds test records with both fluent and functional APIs.
type RecordBuilder struct {
	key    string
	fields tablemap.Record
}

// NewRecord creates a new record builder with the given options applied. The
// primary key field defaults to "id".
func NewRecord(opts ...RecordOption) *RecordBuilder {
	b := &RecordBuilder{key: "id", fields: tablemap.Record{}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns a copy of the configured record.
func (b *RecordBuilder) Build() tablemap.Record {
	return tablemap.CloneRecord(b.fields)
}

// WithID sets the primary key.
func (b *RecordBuilder) WithID(id any) *RecordBuilder {
	WithID(id)(b)
	return b
}

// WithKey renames the primary key field, moving any id already set.
func (b *RecordBuilder) WithKey(field string) *RecordBuilder {
	WithKey(field)(b)
	return b
}

// With sets a field.
func (b *RecordBuilder) With(field string, value any) *RecordBuilder {
	WithField(field, value)(b)
	return b
}

// WithFields sets several fields.
func (b *RecordBuilder) WithFields(fields tablemap.Record) *RecordBuilder {
	WithFields(fields)(b)
	return b
}

// WithRef sets a foreign key to the primary key of a related record.
func (b *RecordBuilder) WithRef(field string, related tablemap.Record) *RecordBuilder {
	WithRef(field, related)(b)
	return b
}

// WithKeys sets field to a list of related ids.
func (b *RecordBuilder) WithKeys(field string, ids ...any) *RecordBuilder {
	WithKeys(field, ids...)(b)
	return b
}

// Functional Options

// WithID sets the primary key.
func WithID(id any) RecordOption {
	return func(b *RecordBuilder) {
		b.fields[b.key] = id
	}
}

// WithKey renames the primary key field.
func WithKey(field string) RecordOption {
	return func(b *RecordBuilder) {
		if id, ok := b.fields[b.key]; ok {
			delete(b.fields, b.key)
			b.fields[field] = id
		}
		b.key = field
	}
}

// WithField sets a field.
func WithField(field string, value any) RecordOption {
	return func(b *RecordBuilder) {
		b.fields[field] = value
	}
}

// WithFields sets several fields.
func WithFields(fields tablemap.Record) RecordOption {
	return func(b *RecordBuilder) {
		for k, v := range fields {
			b.fields[k] = v
		}
	}
}

// WithRef sets a foreign key to the "id" of a related record.
func WithRef(field string, related tablemap.Record) RecordOption {
	return func(b *RecordBuilder) {
		b.fields[field] = related["id"]
	}
}

// WithKeys sets field to a list of related ids.
func WithKeys(field string, ids ...any) RecordOption {
	return func(b *RecordBuilder) {
		b.fields[field] = append([]any{}, ids...)
	}
}

// Records builds n records, calling fn with each builder and its index.
func Records(n int, fn func(i int, b *RecordBuilder)) []tablemap.Record {
	out := make([]tablemap.Record, 0, n)
	for i := range n {
		b := NewRecord()
		fn(i, b)
		out = append(out, b.Build())
	}
	return out
}
