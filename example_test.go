package tablemap_test

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nisimpson/tablemap"
	"github.com/nisimpson/tablemap/tablemock"
)

func Example() {
	var user, post *tablemap.Mapper
	user = tablemap.MustMapper("user", tablemap.WithRelations(
		tablemap.HasMany("posts", "userId", func() *tablemap.Mapper { return post }),
	))
	post = tablemap.MustMapper("post", tablemap.WithRelations(
		tablemap.BelongsTo("author", "userId", func() *tablemap.Mapper { return user }),
	))

	adapter := tablemap.New(tablemock.NewMemoryDriver(),
		tablemap.WithDB("blog"),
		tablemap.WithLogger(slog.New(slog.DiscardHandler)),
	)
	ctx := context.Background()

	if _, err := adapter.Create(ctx, user, tablemap.Record{"id": "u1", "name": "ada"}, nil); err != nil {
		fmt.Println(err)
		return
	}
	_, err := adapter.CreateMany(ctx, post, []tablemap.Record{
		{"id": "p1", "userId": "u1", "title": "Notes on the engine"},
		{"id": "p2", "userId": "u1", "title": "Sketch of the analytical engine"},
	}, nil)
	if err != nil {
		fmt.Println(err)
		return
	}

	res, err := adapter.Find(ctx, user, "u1", &tablemap.Options{With: []string{"posts"}})
	if err != nil {
		fmt.Println(err)
		return
	}
	for _, p := range res.Data["posts"].([]tablemap.Record) {
		fmt.Println(p["title"])
	}
	// Output:
	// Notes on the engine
	// Sketch of the analytical engine
}

func ExampleQueryFromMap() {
	q, err := tablemap.QueryFromMap(map[string]any{
		"where": map[string]any{
			"age": map[string]any{">": 30, "|==": 0},
		},
		"orderBy": []any{[]any{"age", "desc"}},
		"limit":   2,
	})
	if err != nil {
		fmt.Println(err)
		return
	}

	plan, _ := tablemap.Compile(q)
	records := plan.Apply([]tablemap.Record{
		{"name": "ada", "age": 36},
		{"name": "bob", "age": 0},
		{"name": "cy", "age": 21},
		{"name": "eve", "age": 41},
	})
	for _, r := range records {
		fmt.Println(r["name"])
	}
	// Output:
	// eve
	// ada
}

func ExampleAdapter_FindAll() {
	adapter := tablemap.New(tablemock.NewMemoryDriver(), tablemap.WithLogger(slog.New(slog.DiscardHandler)))
	task := tablemap.MustMapper("task")
	ctx := context.Background()

	_, _ = adapter.CreateMany(ctx, task, []tablemap.Record{
		{"id": 1, "done": true, "tags": []any{"home"}},
		{"id": 2, "done": false, "tags": []any{"work", "urgent"}},
		{"id": 3, "done": false, "tags": []any{"home", "urgent"}},
	}, nil)

	q := tablemap.NewQuery().
		Equal("done", false).
		And("tags", tablemap.OpContains, "urgent").
		Sort("id", tablemap.SortDescending)

	res, err := adapter.FindAll(ctx, task, q, &tablemap.Options{Raw: tablemap.Bool(true)})
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("found", res.Found)
	for _, r := range res.Data {
		fmt.Println(r["id"])
	}
	// Output:
	// found 2
	// 3
	// 2
}

func ExampleAdapter_Destroy() {
	adapter := tablemap.New(tablemock.NewMemoryDriver(), tablemap.WithLogger(slog.New(slog.DiscardHandler)))
	session := tablemap.MustMapper("session")
	ctx := context.Background()

	_, _ = adapter.Create(ctx, session, tablemap.Record{"id": "s1"}, nil)

	wr, _ := adapter.Destroy(ctx, session, "s1", &tablemap.Options{Raw: tablemap.Bool(true)})
	fmt.Println("deleted", wr.Deleted)

	wr, _ = adapter.Destroy(ctx, session, "s1", &tablemap.Options{Raw: tablemap.Bool(true)})
	fmt.Println("skipped", wr.Skipped)
	// Output:
	// deleted 1
	// skipped 1
}
