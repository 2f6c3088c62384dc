package tablemap

import (
	"fmt"

	"github.com/go-openapi/inflect"
)

// RelationKind identifies the association type of a RelationDefinition.
type RelationKind int

const (
	KindBelongsTo RelationKind = iota + 1
	KindHasOne
	KindHasMany
)

func (k RelationKind) String() string {
	switch k {
	case KindBelongsTo:
		return "belongsTo"
	case KindHasOne:
		return "hasOne"
	case KindHasMany:
		return "hasMany"
	default:
		return fmt.Sprintf("RelationKind(%d)", int(k))
	}
}

// Strategy is the closed set of ways a relation can be resolved. Every
// valid RelationDefinition maps onto exactly one Strategy.
type Strategy int

const (
	// StrategyBelongsTo reads a foreign key off the parent and fetches the
	// related record by its primary key.
	StrategyBelongsTo Strategy = iota + 1
	// StrategyForeignKey selects related records whose foreign key equals
	// the parent's primary key (hasOne and hasMany).
	StrategyForeignKey
	// StrategyLocalKeys reads a list of related primary keys off the parent.
	StrategyLocalKeys
	// StrategyForeignKeys selects related records whose list of parent keys
	// contains the parent's primary key.
	StrategyForeignKeys
)

// RelationDefinition describes one association of a Mapper. Exactly one of
// ForeignKey, LocalKeys or ForeignKeys is set, depending on Kind.
type RelationDefinition struct {
	Kind        RelationKind
	Name        string         // Relation name; defaults to the related mapper's name
	LocalField  string         // Field on the parent that receives related data
	ForeignKey  string         // belongsTo: field on the parent; hasOne/hasMany: field on the related record
	LocalKeys   string         // hasMany: field on the parent listing related primary keys
	ForeignKeys string         // hasMany: field on the related record listing parent primary keys
	Related     func() *Mapper // Related mapper, deferred so mappers may reference each other
}

// BelongsTo declares that the parent holds foreignKey, a reference to a
// record of the related mapper, attached under localField.
func BelongsTo(localField, foreignKey string, related func() *Mapper) RelationDefinition {
	return RelationDefinition{Kind: KindBelongsTo, LocalField: localField, ForeignKey: foreignKey, Related: related}
}

// HasOne declares that a single related record points back at the parent
// through foreignKey.
func HasOne(localField, foreignKey string, related func() *Mapper) RelationDefinition {
	return RelationDefinition{Kind: KindHasOne, LocalField: localField, ForeignKey: foreignKey, Related: related}
}

// HasMany declares that related records point back at the parent through
// foreignKey.
func HasMany(localField, foreignKey string, related func() *Mapper) RelationDefinition {
	return RelationDefinition{Kind: KindHasMany, LocalField: localField, ForeignKey: foreignKey, Related: related}
}

// HasManyLocalKeys declares that the parent lists related primary keys in
// localKeys. The field may hold a list or a map whose keys are the ids.
func HasManyLocalKeys(localField, localKeys string, related func() *Mapper) RelationDefinition {
	return RelationDefinition{Kind: KindHasMany, LocalField: localField, LocalKeys: localKeys, Related: related}
}

// HasManyForeignKeys declares that each related record lists the primary
// keys of its parents in foreignKeys.
func HasManyForeignKeys(localField, foreignKeys string, related func() *Mapper) RelationDefinition {
	return RelationDefinition{Kind: KindHasMany, LocalField: localField, ForeignKeys: foreignKeys, Related: related}
}

// Named returns a copy of the definition with an explicit relation name.
func (d RelationDefinition) Named(name string) RelationDefinition {
	d.Name = name
	return d
}

// Strategy returns the resolution strategy for the definition, or zero if
// the definition is inconsistent.
func (d RelationDefinition) Strategy() Strategy {
	keys := 0
	for _, k := range []string{d.ForeignKey, d.LocalKeys, d.ForeignKeys} {
		if k != "" {
			keys++
		}
	}
	if keys != 1 {
		return 0
	}

	switch d.Kind {
	case KindBelongsTo:
		if d.ForeignKey != "" {
			return StrategyBelongsTo
		}
	case KindHasOne:
		if d.ForeignKey != "" {
			return StrategyForeignKey
		}
	case KindHasMany:
		switch {
		case d.ForeignKey != "":
			return StrategyForeignKey
		case d.LocalKeys != "":
			return StrategyLocalKeys
		case d.ForeignKeys != "":
			return StrategyForeignKeys
		}
	}
	return 0
}

// RelationName returns the name the relation is requested by.
func (d RelationDefinition) RelationName() string {
	if d.Name != "" {
		return d.Name
	}
	if d.Related != nil {
		if m := d.Related(); m != nil {
			return m.Name
		}
	}
	return d.LocalField
}

func (d RelationDefinition) validate() error {
	if d.LocalField == "" {
		return fmt.Errorf("%w: %s relation has no local field", ErrInvalidMapper, d.Kind)
	}
	if d.Related == nil {
		return fmt.Errorf("%w: relation %q has no related mapper", ErrInvalidMapper, d.LocalField)
	}
	if d.Strategy() == 0 {
		return fmt.Errorf("%w: relation %q of kind %s has an invalid key configuration", ErrInvalidMapper, d.LocalField, d.Kind)
	}
	return nil
}

// Mapper binds an entity to its table, primary key and relations. A Mapper is
// read-only once built and may be shared by concurrent calls.
type Mapper struct {
	Name        string
	Table       string
	IDAttribute string
	Relations   []RelationDefinition
}

// WithTable overrides the table name derived from the mapper name.
func WithTable(table string) func(*Mapper) {
	return func(m *Mapper) { m.Table = table }
}

// WithIDAttribute sets the primary-key field. The default is "id".
func WithIDAttribute(field string) func(*Mapper) {
	return func(m *Mapper) { m.IDAttribute = field }
}

// WithRelations appends relation definitions to the mapper.
func WithRelations(defs ...RelationDefinition) func(*Mapper) {
	return func(m *Mapper) { m.Relations = append(m.Relations, defs...) }
}

// NewMapper builds and validates a Mapper.
func NewMapper(name string, opts ...func(*Mapper)) (*Mapper, error) {
	m := &Mapper{Name: name, IDAttribute: "id"}
	for _, opt := range opts {
		opt(m)
	}
	m.Relations = append([]RelationDefinition(nil), m.Relations...)

	if m.Name == "" && m.Table == "" {
		return nil, fmt.Errorf("%w: mapper needs a name or a table", ErrInvalidMapper)
	}
	if m.IDAttribute == "" {
		return nil, fmt.Errorf("%w: mapper %q has no id attribute", ErrInvalidMapper, name)
	}
	for _, def := range m.Relations {
		if err := def.validate(); err != nil {
			return nil, fmt.Errorf("mapper %q: %w", name, err)
		}
	}
	return m, nil
}

// MustMapper is like NewMapper but panics on error.
func MustMapper(name string, opts ...func(*Mapper)) *Mapper {
	m, err := NewMapper(name, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

// TableName returns the mapper's table, defaulting to the snake_case form of
// its name.
func (m *Mapper) TableName() string {
	if m.Table != "" {
		return m.Table
	}
	return inflect.Underscore(m.Name)
}

// ID returns the primary key of r.
func (m *Mapper) ID(r Record) any {
	if r == nil {
		return nil
	}
	return r[m.IDAttribute]
}
