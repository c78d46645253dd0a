package definition

import (
	"sync"
	"testing"

	"github.com/pitabwire/gridview/model"
)

func testDefs() []model.DomainDefinition {
	return []model.DomainDefinition{
		{
			Domain:   "orders",
			Version:  "1.0.0",
			Checksum: "abc123",
			Tables: []model.TableDefinition{
				{ID: "orders.list", Title: "Orders"},
				{ID: "orders.archive", Title: "Archived Orders"},
			},
		},
		{
			Domain:   "customers",
			Version:  "1.0.0",
			Checksum: "def456",
			Tables: []model.TableDefinition{
				{ID: "customers.list", Title: "Customers"},
			},
		},
	}
}

func TestRegistry_GetDomain(t *testing.T) {
	r := NewRegistry(testDefs())

	d, ok := r.GetDomain("orders")
	if !ok {
		t.Fatal("GetDomain(orders) not found")
	}
	if len(d.Tables) != 2 {
		t.Errorf("Tables = %d, want 2", len(d.Tables))
	}
	if _, ok := r.GetDomain("unknown"); ok {
		t.Error("GetDomain(unknown) should return false")
	}
}

func TestRegistry_GetTable(t *testing.T) {
	r := NewRegistry(testDefs())

	table, ok := r.GetTable("customers.list")
	if !ok {
		t.Fatal("GetTable(customers.list) not found")
	}
	if table.Title != "Customers" {
		t.Errorf("Title = %q, want Customers", table.Title)
	}
	if got := r.TableDomain("customers.list"); got != "customers" {
		t.Errorf("TableDomain() = %q, want customers", got)
	}
	if _, ok := r.GetTable("missing"); ok {
		t.Error("GetTable(missing) should return false")
	}
}

func TestRegistry_AllTables_sortedByID(t *testing.T) {
	r := NewRegistry(testDefs())

	tables := r.AllTables()
	want := []string{"customers.list", "orders.archive", "orders.list"}
	if len(tables) != len(want) {
		t.Fatalf("AllTables() = %d tables, want %d", len(tables), len(want))
	}
	for i, id := range want {
		if tables[i].ID != id {
			t.Errorf("tables[%d] = %q, want %q", i, tables[i].ID, id)
		}
	}
	if r.TableCount() != 3 {
		t.Errorf("TableCount() = %d, want 3", r.TableCount())
	}
}

func TestRegistry_Replace(t *testing.T) {
	r := NewRegistry(testDefs())
	before := r.Checksum()

	r.Replace([]model.DomainDefinition{{Domain: "billing", Checksum: "zzz", Tables: []model.TableDefinition{{ID: "invoices"}}}})

	if _, ok := r.GetTable("orders.list"); ok {
		t.Error("orders.list should be gone after Replace")
	}
	if _, ok := r.GetTable("invoices"); !ok {
		t.Error("invoices should be present after Replace")
	}
	if r.Checksum() == before {
		t.Error("Checksum should change after Replace")
	}
}

func TestRegistry_Checksum_orderIndependent(t *testing.T) {
	defs := testDefs()
	a := NewRegistry(defs)
	b := NewRegistry([]model.DomainDefinition{defs[1], defs[0]})
	if a.Checksum() != b.Checksum() {
		t.Error("Checksum should not depend on definition order")
	}
}

func TestRegistry_ConcurrentReadWrite(t *testing.T) {
	r := NewRegistry(testDefs())

	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			for range 100 {
				r.GetTable("orders.list")
				r.AllTables()
				r.Checksum()
			}
		})
	}
	wg.Go(func() {
		for range 10 {
			r.Replace(testDefs())
		}
	})
	wg.Wait()
}
