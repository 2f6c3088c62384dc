// Package tablemap is a record adapter over table stores. It compiles
// declarative queries into native filters, provisions databases, tables and
// secondary indexes on first use, and eager-loads relations between mappers.
//
// # Key Concepts
//
// A Mapper binds an entity name to its table, primary key and relations.
// Records are untyped maps. A Driver is the native store; DynamoDriver runs
// on the AWS SDK for Go v2 DynamoDB client and tablemock.MemoryDriver keeps
// tables in memory for tests.
//
// With the DynamoDB driver a database is a table-name namespace:
//   - physical table: <db>.<table>
//   - hash key: the mapper's id attribute
//   - secondary index on a foreign key: <field>-index
//
// # Basic Usage
//
//	user := tablemap.MustMapper("user")
//	post := tablemap.MustMapper("post", tablemap.WithRelations(
//	    tablemap.BelongsTo("user", "userId", func() *tablemap.Mapper { return user }),
//	))
//
//	driver, err := tablemap.NewDynamoDriverFromEnv(ctx)
//	adapter := tablemap.New(driver, tablemap.WithDB("app"))
//
//	created, err := adapter.Create(ctx, user, tablemap.Record{"name": "ada"}, nil)
//	posts, err := adapter.FindAll(ctx, post,
//	    tablemap.NewQuery().Equal("userId", created.Data["id"]).Sort("createdAt", tablemap.SortDescending),
//	    &tablemap.Options{With: []string{"user"}})
//
// # Querying
//
// The where clause is a left fold: each condition is AND-ed with everything
// before it, or OR-ed when its operator carries a "|" prefix. Operators are
// looked up per call, then per adapter, then in the built-in table.
//
//	q, err := tablemap.QueryFromMap(map[string]any{
//	    "age":     map[string]any{">": 20, "|==": 0},
//	    "orderBy": []any{[]any{"age", "desc"}},
//	    "limit":   10,
//	})
//
// # Relations
//
// belongsTo, hasOne and hasMany relations are resolved with one query per
// relation however many parents are loaded. hasMany may also be keyed by a
// list of ids on the parent (localKeys) or on the child (foreignKeys).
// Nested relations are requested with dotted paths such as "posts.comments".
package tablemap
