package definition

import (
	"path/filepath"
	"testing"

	"github.com/pitabwire/gridview/model"
)

func TestLoader_LoadFile(t *testing.T) {
	dir := writeDefinitions(t, map[string]string{"orders.yaml": ordersYAML})
	path := filepath.Join(dir, "orders.yaml")

	def, err := NewLoader().LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if def.Domain != "orders" || def.Version != "1.0.0" {
		t.Errorf("Domain/Version = %q/%q", def.Domain, def.Version)
	}
	if len(def.Tables) != 1 {
		t.Fatalf("Tables = %d, want 1", len(def.Tables))
	}
	table := def.Tables[0]
	if table.ID != "orders.list" {
		t.Errorf("Table.ID = %q, want orders.list", table.ID)
	}
	if len(table.Columns) != 5 || len(table.Filters) != 3 {
		t.Errorf("columns/filters = %d/%d, want 5/3", len(table.Columns), len(table.Filters))
	}
	if table.DataSource.Type != model.SourceInline || len(table.DataSource.Records) != 2 {
		t.Errorf("DataSource = %+v", table.DataSource)
	}
	if table.Columns[3].StatusMap["paid"] != "success" {
		t.Errorf("status map = %v", table.Columns[3].StatusMap)
	}
	if def.Checksum == "" {
		t.Error("Checksum should not be empty")
	}
	if def.SourceFile != path {
		t.Errorf("SourceFile = %q", def.SourceFile)
	}
}

func TestLoader_LoadFile_not_found(t *testing.T) {
	if _, err := NewLoader().LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("LoadFile() with missing file should return error")
	}
}

func TestLoader_LoadFile_invalid_yaml(t *testing.T) {
	dir := writeDefinitions(t, map[string]string{"bad.yaml": "domain: [orders"})
	if _, err := NewLoader().LoadFile(filepath.Join(dir, "bad.yaml")); err == nil {
		t.Fatal("LoadFile() with invalid YAML should return error")
	}
}

func TestLoader_LoadFile_unknown_key(t *testing.T) {
	dir := writeDefinitions(t, map[string]string{"typo.yaml": "domain: orders\nversion: 1\ntabels: []\n"})
	if _, err := NewLoader().LoadFile(filepath.Join(dir, "typo.yaml")); err == nil {
		t.Fatal("LoadFile() with unknown key should return error")
	}
}

func TestLoader_LoadAll(t *testing.T) {
	dir := writeDefinitions(t, map[string]string{
		"orders.yaml":          ordersYAML,
		"nested/customers.yml": customersYAML,
		"README.md":            "# not a definition",
		"empty.yaml":           "",
	})

	defs, err := NewLoader().LoadAll([]string{dir})
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("LoadAll() returned %d definitions, want 2", len(defs))
	}
}

func TestLoader_LoadAll_invalid_dir(t *testing.T) {
	if _, err := NewLoader().LoadAll([]string{filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Fatal("LoadAll() with missing directory should return error")
	}
}

func TestLoader_LoadAll_invalid_yaml(t *testing.T) {
	dir := writeDefinitions(t, map[string]string{"bad.yaml": "tables: {"})
	if _, err := NewLoader().LoadAll([]string{dir}); err == nil {
		t.Fatal("LoadAll() with invalid YAML should return error")
	}
}

func TestParse_checksumDeterministic(t *testing.T) {
	a, _ := Parse([]byte(ordersYAML))
	b, _ := Parse([]byte(ordersYAML))
	c, _ := Parse([]byte(customersYAML))
	if a.Checksum != b.Checksum {
		t.Error("Checksum should be deterministic")
	}
	if a.Checksum == c.Checksum {
		t.Error("different documents should have different checksums")
	}
}
