package tablemap_test

import (
	"log/slog"
	"testing"

	"github.com/nisimpson/tablemap"
	"github.com/nisimpson/tablemap/tablemock"
)

// blog wires a small schema touching every relation strategy.
type blog struct {
	user, post, comment, profile, role, group *tablemap.Mapper
}

func newBlog() *blog {
	b := &blog{}
	b.user = tablemap.MustMapper("user", tablemap.WithRelations(
		tablemap.HasMany("posts", "userId", func() *tablemap.Mapper { return b.post }),
		tablemap.HasOne("profile", "userId", func() *tablemap.Mapper { return b.profile }),
		tablemap.HasManyLocalKeys("roles", "roleIds", func() *tablemap.Mapper { return b.role }),
		tablemap.HasManyForeignKeys("groups", "memberIds", func() *tablemap.Mapper { return b.group }),
	))
	b.post = tablemap.MustMapper("post", tablemap.WithRelations(
		tablemap.BelongsTo("user", "userId", func() *tablemap.Mapper { return b.user }),
		tablemap.HasMany("comments", "postId", func() *tablemap.Mapper { return b.comment }),
	))
	b.comment = tablemap.MustMapper("comment", tablemap.WithRelations(
		tablemap.BelongsTo("post", "postId", func() *tablemap.Mapper { return b.post }),
	))
	b.profile = tablemap.MustMapper("profile")
	b.role = tablemap.MustMapper("role")
	b.group = tablemap.MustMapper("group")
	return b
}

// ref addresses m in the default database.
func ref(m *tablemap.Mapper) tablemap.TableRef {
	return tablemap.TableRef{DB: tablemap.DefaultDB, Table: m.TableName(), Key: m.IDAttribute}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newAdapter(t *testing.T, opts ...func(*tablemap.Config)) (*tablemap.Adapter, *tablemock.MemoryDriver) {
	t.Helper()
	driver := tablemock.NewMemoryDriver()
	opts = append([]func(*tablemap.Config){tablemap.WithLogger(quietLogger())}, opts...)
	return tablemap.New(driver, opts...), driver
}

// seedBlog stores a fixed data set and clears the driver's counters.
func seedBlog(driver *tablemock.MemoryDriver, b *blog) {
	driver.Seed(ref(b.user),
		tablemap.Record{"id": "u1", "name": "ada", "roleIds": []any{"r1", "r2"}},
		tablemap.Record{"id": "u2", "name": "bob", "roleIds": map[string]any{"r2": true, "r3": true}},
		tablemap.Record{"id": "u3", "name": "cy"},
	)
	driver.Seed(ref(b.post),
		tablemap.Record{"id": "p1", "userId": "u1", "title": "first"},
		tablemap.Record{"id": "p2", "userId": "u1", "title": "second"},
		tablemap.Record{"id": "p3", "userId": "u2", "title": "third"},
		tablemap.Record{"id": "p4", "title": "orphan"},
		tablemap.Record{"id": "p5", "userId": "ghost", "title": "dangling"},
	)
	driver.Seed(ref(b.comment),
		tablemap.Record{"id": "c1", "postId": "p1"},
		tablemap.Record{"id": "c2", "postId": "p1"},
		tablemap.Record{"id": "c3", "postId": "p2"},
	)
	driver.Seed(ref(b.profile), tablemap.Record{"id": "pr1", "userId": "u1", "bio": "math"})
	driver.Seed(ref(b.role),
		tablemap.Record{"id": "r1", "name": "admin"},
		tablemap.Record{"id": "r2", "name": "editor"},
		tablemap.Record{"id": "r3", "name": "viewer"},
	)
	driver.Seed(ref(b.group),
		tablemap.Record{"id": "g1", "memberIds": []any{"u1", "u2"}},
		tablemap.Record{"id": "g2", "memberIds": []any{"u2"}},
		tablemap.Record{"id": "g3", "memberIds": []any{"u9"}},
	)
	driver.Reset()
}

func recordIDs(records []tablemap.Record) []any {
	out := make([]any, len(records))
	for i, r := range records {
		out[i] = r["id"]
	}
	return out
}
