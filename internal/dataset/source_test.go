package dataset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pitabwire/gridview/model"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestInlineSource_Load(t *testing.T) {
	src := NewInlineSource([]map[string]any{
		{"id": 1, "name": "Ada"},
		{"id": 2, "name": "Grace"},
	})

	records, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if n, _ := records[1]["id"].Num(); n != 2 {
		t.Errorf("records[1].id = %v, want 2", records[1]["id"])
	}
}

func TestFileSource_Load_json(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "orders.json", `[{"id": 1, "customer": "Acme", "tags": ["a", "b"]}]`)

	src := NewFileSource(dir, "orders.json")
	if src.Path() != filepath.Join(dir, "orders.json") {
		t.Errorf("Path() = %q", src.Path())
	}
	records, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	if s, _ := records[0]["customer"].Str(); s != "Acme" {
		t.Errorf("customer = %v, want Acme", records[0]["customer"])
	}
	if items, ok := records[0]["tags"].ListVal(); !ok || len(items) != 2 {
		t.Errorf("tags = %v, want a two-item list", records[0]["tags"])
	}
}

func TestFileSource_Load_yaml(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "customers.yaml", "- id: 7\n  name: Globex\n- id: 8\n  name: Initech\n")

	records, err := NewFileSource("/elsewhere", path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if s, _ := records[1]["name"].Str(); s != "Initech" {
		t.Errorf("name = %v, want Initech", records[1]["name"])
	}
}

func TestFileSource_Load_errors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.json", `{"not": "a list"}`)

	if _, err := NewFileSource(dir, "missing.json").Load(context.Background()); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := NewFileSource(dir, "broken.json").Load(context.Background()); err == nil {
		t.Error("expected error for non-list JSON")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewFileSource(dir, "broken.json").Load(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Load(cancelled) error = %v, want context.Canceled", err)
	}
}

// fakeRows serves fixed rows through the pgx.Rows interface.
type fakeRows struct {
	fields []pgconn.FieldDescription
	rows   [][]any
	pos    int
}

func newFakeRows(columns []string, rows ...[]any) *fakeRows {
	fields := make([]pgconn.FieldDescription, len(columns))
	for i, c := range columns {
		fields[i] = pgconn.FieldDescription{Name: c}
	}
	return &fakeRows{fields: fields, rows: rows}
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return r.fields }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Values() ([]any, error) {
	return r.rows[r.pos-1], nil
}

func (r *fakeRows) Scan(dest ...any) error {
	if len(dest) == 1 {
		if rs, ok := dest[0].(pgx.RowScanner); ok {
			return rs.ScanRow(r)
		}
	}
	return errors.New("fakeRows: unsupported scan")
}

type fakeQuerier struct {
	rows  pgx.Rows
	err   error
	calls int
	query func(ctx context.Context) (pgx.Rows, error)
}

func (q *fakeQuerier) Query(ctx context.Context, _ string, _ ...any) (pgx.Rows, error) {
	q.calls++
	if q.query != nil {
		return q.query(ctx)
	}
	return q.rows, q.err
}

func TestPgSource_Load(t *testing.T) {
	id := [16]byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0, 0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0}
	db := &fakeQuerier{rows: newFakeRows(
		[]string{"id", "customer", "amount", "note"},
		[]any{id, "Acme", int64(120), nil},
	)}

	records, err := NewPgSource(db, "SELECT * FROM orders", nil).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	rec := records[0]
	if s, _ := rec["id"].Str(); s != "12345678-9abc-def0-1234-56789abcdef0" {
		t.Errorf("id = %v", rec["id"])
	}
	if n, _ := rec["amount"].Num(); n != 120 {
		t.Errorf("amount = %v, want 120", rec["amount"])
	}
	if !rec["note"].IsNull() {
		t.Errorf("note = %v, want null", rec["note"])
	}
}

func TestPgSource_Load_queryError(t *testing.T) {
	db := &fakeQuerier{err: errors.New("connection refused")}
	if _, err := NewPgSource(db, "SELECT 1", nil).Load(context.Background()); err == nil {
		t.Fatal("expected query error")
	}
}

func TestNormalizePgValue(t *testing.T) {
	var price pgtype.Numeric
	if err := price.Scan("19.5"); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	if got := normalizePgValue(price); got != 19.5 {
		t.Errorf("numeric = %v, want 19.5", got)
	}
	if got := normalizePgValue(pgtype.Numeric{}); got != nil {
		t.Errorf("invalid numeric = %v, want nil", got)
	}
	if got := normalizePgValue([]byte("raw")); got != "raw" {
		t.Errorf("bytes = %v, want raw", got)
	}
	list, ok := normalizePgValue([]any{[]byte("a"), int32(1)}).([]any)
	if !ok || list[0] != "a" || list[1] != int32(1) {
		t.Errorf("list = %#v", list)
	}
	if got := model.FromAny(normalizePgValue(int16(3))); got.Kind() != model.KindNumber {
		t.Errorf("int16 kind = %v, want number", got.Kind())
	}
}
