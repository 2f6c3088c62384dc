package tablemock

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/nisimpson/tablemap"
)

type seedFixture struct {
	driver                  *MemoryDriver
	seeder                  *Seeder
	user, post, role, group *tablemap.Mapper
}

func newSeedFixture() *seedFixture {
	f := &seedFixture{driver: NewMemoryDriver()}
	self := func(m **tablemap.Mapper) func() *tablemap.Mapper {
		return func() *tablemap.Mapper { return *m }
	}

	f.user = tablemap.MustMapper("user", tablemap.WithRelations(
		tablemap.HasMany("posts", "userId", self(&f.post)),
		tablemap.HasManyLocalKeys("roles", "roleIds", self(&f.role)),
		tablemap.HasManyForeignKeys("groups", "memberIds", self(&f.group)),
	))
	f.post = tablemap.MustMapper("post", tablemap.WithRelations(
		tablemap.BelongsTo("author", "userId", self(&f.user)).Named("author"),
	))
	f.role = tablemap.MustMapper("role")
	f.group = tablemap.MustMapper("group")

	adapter := tablemap.New(f.driver, tablemap.WithLogger(slog.New(slog.DiscardHandler)))
	f.seeder = NewSeeder(adapter, f.user, f.post, f.role, f.group)
	return f
}

func (f *seedFixture) row(m *tablemap.Mapper, id string) tablemap.Record {
	ref := tablemap.TableRef{DB: tablemap.DefaultDB, Table: m.TableName(), Key: m.IDAttribute}
	for _, r := range f.driver.Rows(ref) {
		if r[m.IDAttribute] == id {
			return r
		}
	}
	return nil
}

const blogDocument = `[
	{
		"type": "user",
		"id": "u1",
		"attributes": {"name": "ada"},
		"relationships": {
			"posts": {"data": [{"type": "post", "id": "p1"}, {"type": "post", "id": "p2"}]},
			"roles": {"data": [{"type": "role", "id": "r1"}, {"type": "role", "id": "r2"}]},
			"groups": {"data": [{"type": "group", "id": "g1"}]}
		}
	},
	{
		"type": "user",
		"id": "u2",
		"attributes": {"name": "bob"},
		"relationships": {
			"groups": {"data": [{"type": "group", "id": "g1"}]},
			"roles": {"data": null}
		}
	},
	{"type": "post", "id": "p1", "attributes": {"title": "first"}},
	{"type": "post", "id": "p2", "attributes": {"title": "second"}},
	{
		"type": "post",
		"id": "p3",
		"attributes": {"title": "third"},
		"relationships": {"author": {"data": {"type": "user", "id": "u2"}}}
	},
	{"type": "role", "id": "r1"},
	{"type": "role", "id": "r2"},
	{"type": "group", "id": "g1", "attributes": {"size": 2}}
]`

func TestSeedFromJSON(t *testing.T) {
	f := newSeedFixture()
	ctx := context.Background()

	n, err := f.seeder.SeedFromJSON(ctx, strings.NewReader(blogDocument))
	if err != nil {
		t.Fatalf("SeedFromJSON failed: %v", err)
	}
	if n != 8 {
		t.Errorf("expected 8 records, got %d", n)
	}

	t.Run("attributes", func(t *testing.T) {
		u1 := f.row(f.user, "u1")
		if u1["name"] != "ada" {
			t.Errorf("expected ada, got %v", u1["name"])
		}
		if f.row(f.group, "g1")["size"] != float64(2) {
			t.Errorf("expected size 2, got %v", f.row(f.group, "g1")["size"])
		}
	})

	t.Run("foreign key", func(t *testing.T) {
		for _, id := range []string{"p1", "p2"} {
			if got := f.row(f.post, id)["userId"]; got != "u1" {
				t.Errorf("%s: expected userId u1, got %v", id, got)
			}
		}
	})

	t.Run("belongs to", func(t *testing.T) {
		if got := f.row(f.post, "p3")["userId"]; got != "u2" {
			t.Errorf("expected userId u2, got %v", got)
		}
	})

	t.Run("local keys", func(t *testing.T) {
		keys, _ := f.row(f.user, "u1")["roleIds"].([]any)
		if len(keys) != 2 || keys[0] != "r1" || keys[1] != "r2" {
			t.Errorf("expected [r1 r2], got %v", keys)
		}
		keys, ok := f.row(f.user, "u2")["roleIds"].([]any)
		if !ok || len(keys) != 0 {
			t.Errorf("expected an empty key list for null data, got %v", f.row(f.user, "u2")["roleIds"])
		}
	})

	t.Run("foreign keys", func(t *testing.T) {
		members, _ := f.row(f.group, "g1")["memberIds"].([]any)
		if len(members) != 2 {
			t.Errorf("expected 2 members, got %v", members)
		}
	})
}

func TestSeedFromJSONErrors(t *testing.T) {
	tests := []struct {
		name     string
		document string
		contains string
	}{
		{"malformed", `{`, "failed to parse JSON document"},
		{"unknown type", `[{"type": "comment", "id": "c1"}]`, `no mapper registered for type "comment"`},
		{"missing id", `[{"type": "user"}]`, "missing required 'id' field"},
		{"missing type", `[{"id": "u1"}]`, "missing required 'type' field"},
		{
			"unknown relation",
			`[{"type": "user", "id": "u1", "relationships": {"likes": {"data": []}}}]`,
			`mapper user has no relation "likes"`,
		},
		{
			"child outside document",
			`[{"type": "user", "id": "u1", "relationships": {"posts": {"data": [{"type": "post", "id": "p9"}]}}}]`,
			"post p9 is not in the document",
		},
		{
			"many parents",
			`[{"type": "post", "id": "p1", "relationships": {"author": {"data": [{"type": "user", "id": "u1"}, {"type": "user", "id": "u2"}]}}}]`,
			"belongsTo takes a single identifier",
		},
		{
			"identifier without type",
			`[{"type": "post", "id": "p1", "relationships": {"author": {"data": {"id": "u1"}}}}]`,
			"resource identifier 0 missing required 'type' field",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSeedFixture()
			n, err := f.seeder.SeedFromJSON(context.Background(), strings.NewReader(tt.document))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("expected error containing %q, got %v", tt.contains, err)
			}
			if n != 0 {
				t.Errorf("expected nothing to be saved, got %d", n)
			}
		})
	}
}

func TestSeederSeed(t *testing.T) {
	f := newSeedFixture()

	records, err := f.seeder.Seed(context.Background(), f.role,
		NewRecord(WithID("r1"), WithField("name", "admin")).Build(),
		NewRecord(WithField("name", "guest")).Build(),
	)
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[1]["id"] == nil {
		t.Error("expected a generated key")
	}

	_, err = f.seeder.Seed(context.Background(), f.role, tablemap.Record{"id": "r1"})
	if err == nil || !strings.Contains(err.Error(), "failed to seed role") {
		t.Errorf("expected a duplicate key error, got %v", err)
	}
}
