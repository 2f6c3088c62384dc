// Package assert provides fluent assertion utilities for testing tablemap
// records and write results. It makes tests more readable and maintainable by
// providing expressive assertion methods.
//
// # Usage
//
//	import "github.com/nisimpson/tablemap/tablemock/assert"
//
//	// Assert on records
//	assert.Records(t, res.Data).
//		HasCount(3).
//		ContainsID("id", "p1").
//		AllHave("userId", "u1").
//		OrderedBy("age", true)
//
//	// Assert on a single record and its relations
//	assert.Record(t, post).
//		HasField("title", "hello").
//		HasRelation("user").
//		HasMany("comments", 2)
//
//	// Assert on write results
//	assert.WriteResult(t, wr).
//		HasDeleted(2).
//		HasNoErrors()
package assert

import (
	"testing"

	"github.com/nisimpson/tablemap"
)

// RecordsAssertion provides fluent assertions for a list of records.
type RecordsAssertion struct {
	t       testing.TB
	records []tablemap.Record
}

// Records creates a new RecordsAssertion.
func Records(t testing.TB, records []tablemap.Record) *RecordsAssertion {
	t.Helper()
	return &RecordsAssertion{t: t, records: records}
}

// HasCount asserts that the collection has the expected count.
func (a *RecordsAssertion) HasCount(expected int) *RecordsAssertion {
	a.t.Helper()
	if len(a.records) != expected {
		a.t.Errorf("expected %d records, got %d", expected, len(a.records))
	}
	return a
}

// IsEmpty asserts that the collection is empty.
func (a *RecordsAssertion) IsEmpty() *RecordsAssertion {
	a.t.Helper()
	return a.HasCount(0)
}

// IsNotEmpty asserts that the collection is not empty.
func (a *RecordsAssertion) IsNotEmpty() *RecordsAssertion {
	a.t.Helper()
	if len(a.records) == 0 {
		a.t.Error("expected records to not be empty")
	}
	return a
}

// ContainsID asserts that a record has field key equal to id.
func (a *RecordsAssertion) ContainsID(key string, id any) *RecordsAssertion {
	a.t.Helper()
	for _, r := range a.records {
		if tablemap.Equal(r[key], id) {
			return a
		}
	}
	a.t.Errorf("expected to find record with %s=%v", key, id)
	return a
}

// HasIDs asserts that the records' key fields equal ids, in order.
func (a *RecordsAssertion) HasIDs(key string, ids ...any) *RecordsAssertion {
	a.t.Helper()
	if len(a.records) != len(ids) {
		a.t.Errorf("expected ids %v, got %d records", ids, len(a.records))
		return a
	}
	for i, r := range a.records {
		if !tablemap.Equal(r[key], ids[i]) {
			a.t.Errorf("expected record %d to have %s=%v, got %v", i, key, ids[i], r[key])
		}
	}
	return a
}

// AllHave asserts that every record has field equal to value.
func (a *RecordsAssertion) AllHave(field string, value any) *RecordsAssertion {
	a.t.Helper()
	for i, r := range a.records {
		if !tablemap.Equal(r[field], value) {
			a.t.Errorf("expected record %d to have %s=%v, got %v", i, field, value, r[field])
		}
	}
	return a
}

// NoneHave asserts that no record has field set.
func (a *RecordsAssertion) NoneHave(field string) *RecordsAssertion {
	a.t.Helper()
	for i, r := range a.records {
		if _, ok := r[field]; ok {
			a.t.Errorf("expected record %d to not have field %s", i, field)
		}
	}
	return a
}

// OrderedBy asserts that the records are sorted on field.
func (a *RecordsAssertion) OrderedBy(field string, descending bool) *RecordsAssertion {
	a.t.Helper()
	for i := 1; i < len(a.records); i++ {
		c := tablemap.Compare(a.records[i-1][field], a.records[i][field])
		if (descending && c < 0) || (!descending && c > 0) {
			a.t.Errorf("records %d and %d are out of order on %s", i-1, i, field)
		}
	}
	return a
}

// Each runs a record assertion for every record.
func (a *RecordsAssertion) Each(fn func(*RecordAssertion)) *RecordsAssertion {
	a.t.Helper()
	for _, r := range a.records {
		fn(Record(a.t, r))
	}
	return a
}

// RecordAssertion provides fluent assertions for a single record.
type RecordAssertion struct {
	t      testing.TB
	record tablemap.Record
}

// Record creates a new RecordAssertion.
func Record(t testing.TB, record tablemap.Record) *RecordAssertion {
	t.Helper()
	return &RecordAssertion{t: t, record: record}
}

// Exists asserts that the record is not nil.
func (a *RecordAssertion) Exists() *RecordAssertion {
	a.t.Helper()
	if a.record == nil {
		a.t.Error("expected record to exist")
	}
	return a
}

// IsNil asserts that there is no record.
func (a *RecordAssertion) IsNil() *RecordAssertion {
	a.t.Helper()
	if a.record != nil {
		a.t.Errorf("expected no record, got %v", a.record)
	}
	return a
}

// HasField asserts that field equals value.
func (a *RecordAssertion) HasField(field string, value any) *RecordAssertion {
	a.t.Helper()
	v, ok := a.record[field]
	if !ok {
		a.t.Errorf("expected record to have field %s", field)
		return a
	}
	if !tablemap.Equal(v, value) {
		a.t.Errorf("expected %s=%v, got %v", field, value, v)
	}
	return a
}

// LacksField asserts that field is not set.
func (a *RecordAssertion) LacksField(field string) *RecordAssertion {
	a.t.Helper()
	if v, ok := a.record[field]; ok {
		a.t.Errorf("expected record to not have field %s, got %v", field, v)
	}
	return a
}

// HasRelation asserts that a single related record is attached under field.
func (a *RecordAssertion) HasRelation(field string) *RecordAssertion {
	a.t.Helper()
	if _, ok := a.record[field].(tablemap.Record); !ok {
		a.t.Errorf("expected %s to hold a related record, got %T", field, a.record[field])
	}
	return a
}

// HasMany asserts that n related records are attached under field.
func (a *RecordAssertion) HasMany(field string, n int) *RecordAssertion {
	a.t.Helper()
	related, ok := a.record[field].([]tablemap.Record)
	if !ok {
		a.t.Errorf("expected %s to hold related records, got %T", field, a.record[field])
		return a
	}
	if len(related) != n {
		a.t.Errorf("expected %d related records under %s, got %d", n, field, len(related))
	}
	return a
}

// Related returns an assertion over the single related record under field.
func (a *RecordAssertion) Related(field string) *RecordAssertion {
	a.t.Helper()
	related, _ := a.record[field].(tablemap.Record)
	return Record(a.t, related)
}

// RelatedMany returns an assertion over the related records under field.
func (a *RecordAssertion) RelatedMany(field string) *RecordsAssertion {
	a.t.Helper()
	related, _ := a.record[field].([]tablemap.Record)
	return Records(a.t, related)
}

// WriteResultAssertion provides fluent assertions for a write result.
type WriteResultAssertion struct {
	t  testing.TB
	wr *tablemap.WriteResult
}

// WriteResult creates a new WriteResultAssertion.
func WriteResult(t testing.TB, wr *tablemap.WriteResult) *WriteResultAssertion {
	t.Helper()
	if wr == nil {
		t.Fatal("expected a write result, got nil")
	}
	return &WriteResultAssertion{t: t, wr: wr}
}

// HasInserted asserts the inserted count.
func (a *WriteResultAssertion) HasInserted(n int) *WriteResultAssertion {
	a.t.Helper()
	if a.wr.Inserted != n {
		a.t.Errorf("expected %d inserted, got %d", n, a.wr.Inserted)
	}
	return a
}

// HasReplaced asserts the replaced count.
func (a *WriteResultAssertion) HasReplaced(n int) *WriteResultAssertion {
	a.t.Helper()
	if a.wr.Replaced != n {
		a.t.Errorf("expected %d replaced, got %d", n, a.wr.Replaced)
	}
	return a
}

// HasDeleted asserts the deleted count.
func (a *WriteResultAssertion) HasDeleted(n int) *WriteResultAssertion {
	a.t.Helper()
	if a.wr.Deleted != n {
		a.t.Errorf("expected %d deleted, got %d", n, a.wr.Deleted)
	}
	return a
}

// HasSkipped asserts the skipped count.
func (a *WriteResultAssertion) HasSkipped(n int) *WriteResultAssertion {
	a.t.Helper()
	if a.wr.Skipped != n {
		a.t.Errorf("expected %d skipped, got %d", n, a.wr.Skipped)
	}
	return a
}

// HasNoErrors asserts that no row failed.
func (a *WriteResultAssertion) HasNoErrors() *WriteResultAssertion {
	a.t.Helper()
	if a.wr.Errors != 0 {
		a.t.Errorf("expected no errors, got %d: %s", a.wr.Errors, a.wr.FirstError)
	}
	return a
}
