package assert

import (
	"fmt"
	"testing"

	"github.com/nisimpson/tablemap"
)

// spy records failures instead of failing the enclosing test.
type spy struct {
	testing.TB
	failures []string
}

func (s *spy) Helper() {}

func (s *spy) Error(args ...any) { s.failures = append(s.failures, fmt.Sprint(args...)) }

func (s *spy) Errorf(format string, args ...any) {
	s.failures = append(s.failures, fmt.Sprintf(format, args...))
}

var posts = []tablemap.Record{
	{"id": "p1", "userId": "u1", "views": 3, "user": tablemap.Record{"id": "u1"}},
	{"id": "p2", "userId": "u1", "views": 7.0, "user": tablemap.Record{"id": "u1"}},
	{"id": "p3", "userId": "u1", "views": 9, "user": tablemap.Record{"id": "u1"}},
}

func TestRecordsAssertion(t *testing.T) {
	Records(t, posts).
		HasCount(3).
		IsNotEmpty().
		ContainsID("id", "p2").
		HasIDs("id", "p1", "p2", "p3").
		AllHave("userId", "u1").
		NoneHave("deletedAt").
		OrderedBy("views", false).
		Each(func(r *RecordAssertion) { r.HasRelation("user") })

	Records(t, nil).IsEmpty()
}

func TestRecordsAssertionFailures(t *testing.T) {
	tests := []struct {
		name   string
		assert func(testing.TB)
	}{
		{"count", func(tb testing.TB) { Records(tb, posts).HasCount(2) }},
		{"empty", func(tb testing.TB) { Records(tb, nil).IsNotEmpty() }},
		{"missing id", func(tb testing.TB) { Records(tb, posts).ContainsID("id", "p9") }},
		{"ids", func(tb testing.TB) { Records(tb, posts).HasIDs("id", "p1", "p3", "p2") }},
		{"order", func(tb testing.TB) { Records(tb, posts).OrderedBy("views", true) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &spy{TB: t}
			tt.assert(s)
			if len(s.failures) == 0 {
				t.Error("expected the assertion to fail")
			}
		})
	}
}

func TestRecordAssertion(t *testing.T) {
	user := tablemap.Record{
		"id":      "u1",
		"age":     36,
		"profile": tablemap.Record{"bio": "math"},
		"posts":   posts[:2],
	}

	Record(t, user).
		Exists().
		HasField("age", 36.0).
		LacksField("deletedAt").
		HasRelation("profile").
		HasMany("posts", 2)

	Record(t, user).Related("profile").HasField("bio", "math")
	Record(t, user).RelatedMany("posts").HasIDs("id", "p1", "p2")
	Record(t, nil).IsNil()

	s := &spy{TB: t}
	Record(s, user).HasField("name", "ada").HasMany("profile", 1).HasRelation("posts")
	if len(s.failures) != 3 {
		t.Errorf("expected 3 failures, got %v", s.failures)
	}
}

func TestWriteResultAssertion(t *testing.T) {
	wr := &tablemap.WriteResult{Inserted: 1, Replaced: 2, Deleted: 3, Skipped: 4}

	WriteResult(t, wr).
		HasInserted(1).
		HasReplaced(2).
		HasDeleted(3).
		HasSkipped(4).
		HasNoErrors()

	wr.Fail("duplicate primary key")
	s := &spy{TB: t}
	WriteResult(s, wr).HasNoErrors()
	if len(s.failures) != 1 {
		t.Errorf("expected 1 failure, got %v", s.failures)
	}
}
