package definition

import (
	"os"
	"path/filepath"
	"testing"
)

const ordersYAML = `domain: orders
version: 1.0.0
tables:
  - id: orders.list
    title: Orders
    capabilities: ["orders:table:view"]
    schema: "orders#Order"
    columns:
      - {field: id, label: ID, type: number, sortable: true}
      - {field: customer, label: Customer, type: text, sortable: true, searchable: true}
      - {field: amount, label: Amount, type: number, sortable: true}
      - {field: status, label: Status, type: status, status_map: {paid: success, open: warning}}
      - {field: placed, label: Placed, type: date, sortable: true}
    filters:
      - {field: status, label: Status, kind: set, dynamic: true}
      - {field: amount, label: Amount, kind: range}
      - {field: placed, label: Placed, kind: range}
    default_sort: placed
    sort_dir: desc
    page_size: 20
    page_size_options: [10, 20, 50]
    data_source:
      type: inline
      records:
        - {id: 1, customer: Ahmet, amount: 120.5, status: paid, placed: "2024-03-01"}
        - {id: 2, customer: Zeynep, amount: 40, status: open, placed: "2024-03-04"}
`

const customersYAML = `domain: customers
version: 2.1.0
tables:
  - id: customers.list
    title: Customers
    capabilities: ["customers:table:view"]
    columns:
      - {field: name, label: Name, type: text, sortable: true}
      - {field: active, label: Active, type: boolean}
    filters:
      - {field: active, label: Active, kind: boolean}
    data_source:
      type: file
      path: customers.json
`

// writeDefinitions writes files (relative path -> body) under a fresh
// directory and returns it.
func writeDefinitions(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	return dir
}
