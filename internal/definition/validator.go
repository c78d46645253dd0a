package definition

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/pitabwire/gridview/internal/schema"
	"github.com/pitabwire/gridview/model"
)

// VError describes a single validation error in a definition.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

const defaultMaxPageSize = 500

// Validator validates definitions structurally, referentially, and against
// OpenAPI record schemas.
type Validator struct {
	maxPageSize int
}

// NewValidator creates a new Validator. A maxPageSize of zero uses 500.
func NewValidator(maxPageSize int) *Validator {
	if maxPageSize <= 0 {
		maxPageSize = defaultMaxPageSize
	}
	return &Validator{maxPageSize: maxPageSize}
}

// Validate checks all definitions. The index may be nil to skip schema checks.
func (v *Validator) Validate(defs []model.DomainDefinition, index *schema.Index) []VError {
	var errs []VError
	seen := make(map[string]string)
	for i, def := range defs {
		prefix := fmt.Sprintf("definitions[%d]", i)
		errs = append(errs, v.validateDomain(prefix, def, index)...)

		for j, t := range def.Tables {
			if t.ID == "" {
				continue
			}
			if other, dup := seen[t.ID]; dup {
				errs = append(errs, VError{
					Path:    fmt.Sprintf("%s.tables[%d].id", prefix, j),
					Code:    "DUPLICATE_ID",
					Message: fmt.Sprintf("table %q already declared in domain %q", t.ID, other),
				})
				continue
			}
			seen[t.ID] = def.Domain
		}
	}
	return errs
}

func (v *Validator) validateDomain(prefix string, def model.DomainDefinition, index *schema.Index) []VError {
	var errs []VError

	if def.Domain == "" {
		errs = append(errs, VError{Path: prefix + ".domain", Code: "REQUIRED", Message: "domain is required"})
	}
	if def.Version == "" {
		errs = append(errs, VError{Path: prefix + ".version", Code: "REQUIRED", Message: "version is required"})
	}
	if len(def.Tables) == 0 {
		errs = append(errs, VError{Path: prefix + ".tables", Code: "REQUIRED", Message: "at least one table is required"})
	}

	for i, t := range def.Tables {
		tp := fmt.Sprintf("%s.tables[%d]", prefix, i)
		errs = append(errs, v.validateTable(tp, t, def.Domain, index)...)
	}
	return errs
}

var validColumnTypes = map[string]bool{
	model.ColumnText: true, model.ColumnNumber: true, model.ColumnBoolean: true,
	model.ColumnDate: true, model.ColumnList: true, model.ColumnStatus: true,
}

var validSourceTypes = map[string]bool{
	model.SourceInline: true, model.SourceFile: true, model.SourcePostgres: true,
}

func (v *Validator) validateTable(prefix string, t model.TableDefinition, domain string, index *schema.Index) []VError {
	var errs []VError

	if t.ID == "" {
		errs = append(errs, VError{Path: prefix + ".id", Code: "REQUIRED", Message: "id is required"})
	}
	if t.Title == "" {
		errs = append(errs, VError{Path: prefix + ".title", Code: "REQUIRED", Message: "title is required"})
	}

	if domain != "" {
		for _, c := range t.Capabilities {
			if c != "*" && !strings.HasPrefix(c, domain+":") {
				errs = append(errs, VError{
					Path:    prefix + ".capabilities",
					Code:    "NAMESPACE_MISMATCH",
					Message: fmt.Sprintf("capability %q does not match domain %q", c, domain),
				})
			}
		}
	}

	if len(t.Columns) == 0 {
		errs = append(errs, VError{Path: prefix + ".columns", Code: "REQUIRED", Message: "at least one column is required"})
	}
	fields := make(map[string]bool, len(t.Columns))
	for i, c := range t.Columns {
		cp := fmt.Sprintf("%s.columns[%d]", prefix, i)
		if c.Field == "" {
			errs = append(errs, VError{Path: cp + ".field", Code: "REQUIRED", Message: "field is required"})
		} else if fields[c.Field] {
			errs = append(errs, VError{Path: cp + ".field", Code: "DUPLICATE_ID", Message: fmt.Sprintf("column %q declared twice", c.Field)})
		}
		fields[c.Field] = true
		if c.Type != "" && !validColumnTypes[c.Type] {
			errs = append(errs, VError{Path: cp + ".type", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid column type %q", c.Type)})
		}
	}

	for i, f := range t.Filters {
		fp := fmt.Sprintf("%s.filters[%d]", prefix, i)
		if f.Field == "" {
			errs = append(errs, VError{Path: fp + ".field", Code: "REQUIRED", Message: "field is required"})
		} else if !fields[f.Field] {
			errs = append(errs, VError{Path: fp + ".field", Code: "REF_NOT_FOUND", Message: fmt.Sprintf("column %q not found", f.Field)})
		}
		if _, err := model.ParseFilterKind(f.Kind); err != nil {
			errs = append(errs, VError{Path: fp + ".kind", Code: "INVALID_ENUM", Message: err.Error()})
		}
	}

	errs = append(errs, v.validateSort(prefix, t)...)
	errs = append(errs, v.validatePaging(prefix, t)...)

	if t.Collation != "" {
		if _, err := language.Parse(t.Collation); err != nil {
			errs = append(errs, VError{Path: prefix + ".collation", Code: "INVALID_VALUE", Message: fmt.Sprintf("invalid language tag %q", t.Collation)})
		}
	}

	errs = append(errs, validateDataSource(prefix+".data_source", t.DataSource)...)

	if index != nil && t.Schema != "" {
		errs = append(errs, validateSchema(prefix, t, index)...)
	}

	return errs
}

func (v *Validator) validateSort(prefix string, t model.TableDefinition) []VError {
	var errs []VError
	if t.DefaultSort != "" {
		col, ok := t.Column(t.DefaultSort)
		switch {
		case !ok:
			errs = append(errs, VError{Path: prefix + ".default_sort", Code: "REF_NOT_FOUND", Message: fmt.Sprintf("column %q not found", t.DefaultSort)})
		case !col.Sortable:
			errs = append(errs, VError{Path: prefix + ".default_sort", Code: "NOT_SORTABLE", Message: fmt.Sprintf("column %q is not sortable", t.DefaultSort)})
		}
	}
	switch strings.ToLower(t.SortDir) {
	case "", "asc", "ascending", "desc", "descending":
	default:
		errs = append(errs, VError{Path: prefix + ".sort_dir", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid sort direction %q", t.SortDir)})
	}
	return errs
}

func (v *Validator) validatePaging(prefix string, t model.TableDefinition) []VError {
	var errs []VError
	if t.PageSize < 0 || t.PageSize > v.maxPageSize {
		errs = append(errs, VError{Path: prefix + ".page_size", Code: "RANGE", Message: fmt.Sprintf("page_size must be 0-%d", v.maxPageSize)})
	}
	for _, n := range t.PageSizeOptions {
		if n < 1 || n > v.maxPageSize {
			errs = append(errs, VError{Path: prefix + ".page_size_options", Code: "RANGE", Message: fmt.Sprintf("page size option %d must be 1-%d", n, v.maxPageSize)})
		}
	}
	if t.PageSize > 0 && len(t.PageSizeOptions) > 0 && !slices.Contains(t.PageSizeOptions, t.PageSize) {
		errs = append(errs, VError{Path: prefix + ".page_size", Code: "INVALID_VALUE", Message: fmt.Sprintf("page_size %d is not one of page_size_options", t.PageSize)})
	}
	return errs
}

func validateDataSource(prefix string, ds model.DataSourceDefinition) []VError {
	var errs []VError
	switch {
	case ds.Type == "":
		errs = append(errs, VError{Path: prefix + ".type", Code: "REQUIRED", Message: "type is required"})
	case !validSourceTypes[ds.Type]:
		errs = append(errs, VError{Path: prefix + ".type", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid data source type %q", ds.Type)})
	case ds.Type == model.SourceFile && ds.Path == "":
		errs = append(errs, VError{Path: prefix + ".path", Code: "REQUIRED", Message: "path is required for file sources"})
	case ds.Type == model.SourcePostgres && ds.Query == "":
		errs = append(errs, VError{Path: prefix + ".query", Code: "REQUIRED", Message: "query is required for postgres sources"})
	}
	if ds.CacheTTL != "" {
		if d, err := time.ParseDuration(ds.CacheTTL); err != nil || d < 0 {
			errs = append(errs, VError{Path: prefix + ".cache_ttl", Code: "INVALID_VALUE", Message: fmt.Sprintf("invalid cache_ttl %q", ds.CacheTTL)})
		}
	}
	return errs
}

// compatible reports whether a declared column type can hold values of the
// schema property type.
func compatible(column, property string) bool {
	if column == "" || column == property {
		return true
	}
	return column == model.ColumnStatus && property == model.ColumnText
}

func validateSchema(prefix string, t model.TableDefinition, index *schema.Index) []VError {
	types, ok := index.FieldTypes(t.Schema)
	if !ok {
		return []VError{{Path: prefix + ".schema", Code: "SCHEMA_NOT_FOUND", Message: fmt.Sprintf("schema %q not found", t.Schema)}}
	}
	var errs []VError
	for i, c := range t.Columns {
		if c.Field == "" {
			continue
		}
		cp := fmt.Sprintf("%s.columns[%d]", prefix, i)
		prop, ok := types[c.Field]
		if !ok {
			errs = append(errs, VError{Path: cp + ".field", Code: "FIELD_NOT_FOUND", Message: fmt.Sprintf("field %q not in schema %q", c.Field, t.Schema)})
			continue
		}
		if !compatible(c.Type, prop) {
			errs = append(errs, VError{Path: cp + ".type", Code: "TYPE_MISMATCH", Message: fmt.Sprintf("column type %q does not match schema type %q", c.Type, prop)})
		}
	}
	return errs
}
