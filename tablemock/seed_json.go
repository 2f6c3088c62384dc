package tablemock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nisimpson/tablemap"
)

// JSONAPIDocument represents the root structure of a JSON:API document, as an
// array of primary resources.
type JSONAPIDocument []JSONAPIResource

// JSONAPIResource represents a single resource in JSON:API format.
type JSONAPIResource struct {
	Type          string                         `json:"type"`
	ID            string                         `json:"id"`
	Attributes    map[string]any                 `json:"attributes,omitempty"`
	Relationships map[string]JSONAPIRelationship `json:"relationships,omitempty"`
}

// JSONAPIRelationship represents a relationship in JSON:API format.
type JSONAPIRelationship struct {
	Data json.RawMessage `json:"data"` // JSONAPIResourceIdentifier, []JSONAPIResourceIdentifier, or null
}

// JSONAPIResourceIdentifier represents a resource identifier in JSON:API format.
type JSONAPIResourceIdentifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Seeder persists fixtures through an Adapter, so tables are provisioned the
// same way application code provisions them.
type Seeder struct {
	adapter *tablemap.Adapter
	mappers map[string]*tablemap.Mapper
}

// NewSeeder creates a seeder. Resource types are matched to mappers by name.
func NewSeeder(adapter *tablemap.Adapter, mappers ...*tablemap.Mapper) *Seeder {
	s := &Seeder{adapter: adapter, mappers: make(map[string]*tablemap.Mapper, len(mappers))}
	for _, m := range mappers {
		s.mappers[m.Name] = m
	}
	return s
}

// Seed creates records of mapper m.
func (s *Seeder) Seed(ctx context.Context, m *tablemap.Mapper, records ...tablemap.Record) ([]tablemap.Record, error) {
	res, err := s.adapter.CreateMany(ctx, m, records, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to seed %s: %w", m.Name, err)
	}
	return res.Data, nil
}

type seedKey struct{ typ, id string }

// SeedFromJSON converts test data from a JSON:API formatted reader into
// records and persists them. Relationships are stored through the key fields
// of the matching mapper relation: a belongsTo sets the foreign key on the
// resource, a localKeys hasMany sets the id list on the resource, and
// foreign-key relations set the key on the related resources, which must be
// part of the same document. Returns the number of records saved.
func (s *Seeder) SeedFromJSON(ctx context.Context, r io.Reader) (int, error) {
	var document JSONAPIDocument
	if err := json.NewDecoder(r).Decode(&document); err != nil {
		return 0, fmt.Errorf("failed to parse JSON document: %w", err)
	}

	records := make(map[seedKey]tablemap.Record, len(document))
	for i, resource := range document {
		m, err := s.mapperFor(resource.Type, resource.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to convert resource at index %d: %w", i, err)
		}
		rec := tablemap.Record{}
		for k, v := range resource.Attributes {
			rec[k] = v
		}
		rec[m.IDAttribute] = resource.ID
		records[seedKey{resource.Type, resource.ID}] = rec
	}

	for _, resource := range document {
		if err := s.link(resource, records); err != nil {
			return 0, fmt.Errorf("failed to link %s %s: %w", resource.Type, resource.ID, err)
		}
	}

	count := 0
	for _, resource := range document {
		m := s.mappers[resource.Type]
		if _, err := s.Seed(ctx, m, records[seedKey{resource.Type, resource.ID}]); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (s *Seeder) mapperFor(typ, id string) (*tablemap.Mapper, error) {
	if typ == "" {
		return nil, fmt.Errorf("resource missing required 'type' field")
	}
	if id == "" {
		return nil, fmt.Errorf("resource missing required 'id' field")
	}
	m, ok := s.mappers[typ]
	if !ok {
		return nil, fmt.Errorf("no mapper registered for type %q", typ)
	}
	return m, nil
}

func (s *Seeder) link(resource JSONAPIResource, records map[seedKey]tablemap.Record) error {
	m := s.mappers[resource.Type]
	rec := records[seedKey{resource.Type, resource.ID}]

	for name, rel := range resource.Relationships {
		def, ok := relation(m, name)
		if !ok {
			return fmt.Errorf("mapper %s has no relation %q", m.Name, name)
		}
		ids, err := identifiers(rel.Data)
		if err != nil {
			return fmt.Errorf("relationship %q: %w", name, err)
		}

		switch def.Strategy() {
		case tablemap.StrategyBelongsTo:
			if len(ids) > 1 {
				return fmt.Errorf("relationship %q: belongsTo takes a single identifier", name)
			}
			for _, id := range ids {
				rec[def.ForeignKey] = id.ID
			}
		case tablemap.StrategyLocalKeys:
			keys := make([]any, 0, len(ids))
			for _, id := range ids {
				keys = append(keys, id.ID)
			}
			rec[def.LocalKeys] = keys
		case tablemap.StrategyForeignKey, tablemap.StrategyForeignKeys:
			for _, id := range ids {
				child, ok := records[seedKey{id.Type, id.ID}]
				if !ok {
					return fmt.Errorf("relationship %q: %s %s is not in the document", name, id.Type, id.ID)
				}
				if def.Strategy() == tablemap.StrategyForeignKey {
					child[def.ForeignKey] = resource.ID
					continue
				}
				list, _ := child[def.ForeignKeys].([]any)
				child[def.ForeignKeys] = append(list, resource.ID)
			}
		default:
			return fmt.Errorf("relationship %q has an invalid key configuration", name)
		}
	}
	return nil
}

func relation(m *tablemap.Mapper, name string) (tablemap.RelationDefinition, bool) {
	for _, def := range m.Relations {
		if def.RelationName() == name || def.LocalField == name {
			return def, true
		}
	}
	return tablemap.RelationDefinition{}, false
}

// identifiers decodes relationship data, which may be null, a single
// identifier or an array of identifiers.
func identifiers(data json.RawMessage) ([]JSONAPIResourceIdentifier, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var ids []JSONAPIResourceIdentifier
	if data[0] == '[' {
		if err := json.Unmarshal(data, &ids); err != nil {
			return nil, fmt.Errorf("failed to parse resource identifiers: %w", err)
		}
	} else {
		var id JSONAPIResourceIdentifier
		if err := json.Unmarshal(data, &id); err != nil {
			return nil, fmt.Errorf("failed to parse resource identifier: %w", err)
		}
		ids = []JSONAPIResourceIdentifier{id}
	}

	for i, id := range ids {
		if id.Type == "" {
			return nil, fmt.Errorf("resource identifier %d missing required 'type' field", i)
		}
		if id.ID == "" {
			return nil, fmt.Errorf("resource identifier %d missing required 'id' field", i)
		}
	}
	return ids, nil
}
