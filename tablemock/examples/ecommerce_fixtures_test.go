package examples

import (
	"log/slog"

	"github.com/nisimpson/tablemap"
	"github.com/nisimpson/tablemap/tablemock"
)

// store wires the mappers of a small shop: customers place orders, and every
// order lists the products it contains.
type store struct {
	customer, order, product *tablemap.Mapper
}

func newStore() *store {
	s := &store{}
	s.customer = tablemap.MustMapper("customer", tablemap.WithRelations(
		tablemap.HasMany("orders", "customerId", func() *tablemap.Mapper { return s.order }),
	))
	s.order = tablemap.MustMapper("order", tablemap.WithRelations(
		tablemap.BelongsTo("customer", "customerId", func() *tablemap.Mapper { return s.customer }),
		tablemap.HasManyLocalKeys("products", "productIds", func() *tablemap.Mapper { return s.product }),
	))
	s.product = tablemap.MustMapper("product", tablemap.WithRelations(
		tablemap.HasManyForeignKeys("orders", "productIds", func() *tablemap.Mapper { return s.order }),
	))
	return s
}

func (s *store) adapter() (*tablemap.Adapter, *tablemock.MemoryDriver) {
	driver := tablemock.NewMemoryDriver()
	return tablemap.New(driver, tablemap.WithDB("shop"), tablemap.WithLogger(slog.New(slog.DiscardHandler))), driver
}

func QuickProduct(id, category string, price float64) tablemap.Record {
	return tablemock.NewRecord(
		tablemock.WithID(id),
		tablemock.WithField("category", category),
		tablemock.WithField("price", price),
	).Build()
}

func QuickCustomer(id, name string) tablemap.Record {
	return tablemock.NewRecord().WithID(id).With("name", name).Build()
}

func QuickOrder(id string, customer tablemap.Record, products ...tablemap.Record) tablemap.Record {
	ids := make([]any, 0, len(products))
	for _, p := range products {
		ids = append(ids, p["id"])
	}
	return tablemock.NewRecord(
		tablemock.WithID(id),
		tablemock.WithRef("customerId", customer),
		tablemock.WithKeys("productIds", ids...),
	).Build()
}

const catalog = `[
	{"type": "customer", "id": "C1", "attributes": {"name": "ada"},
	 "relationships": {"orders": {"data": [{"type": "order", "id": "O1"}, {"type": "order", "id": "O2"}]}}},
	{"type": "customer", "id": "C2", "attributes": {"name": "bob"}},
	{"type": "order", "id": "O1",
	 "relationships": {"products": {"data": [{"type": "product", "id": "P1"}, {"type": "product", "id": "P2"}]}}},
	{"type": "order", "id": "O2",
	 "relationships": {"products": {"data": [{"type": "product", "id": "P2"}]}}},
	{"type": "order", "id": "O3",
	 "relationships": {"customer": {"data": {"type": "customer", "id": "C2"}},
	                   "products": {"data": [{"type": "product", "id": "P3"}]}}},
	{"type": "product", "id": "P1", "attributes": {"category": "electronics", "price": 299}},
	{"type": "product", "id": "P2", "attributes": {"category": "books", "price": 25}},
	{"type": "product", "id": "P3", "attributes": {"category": "books", "price": 40}}
]`
