package model

// DomainDefinition is the root structure of a definition file. Each file
// declares the tables of one domain.
type DomainDefinition struct {
	Domain  string            `yaml:"domain"  json:"domain"`
	Version string            `yaml:"version" json:"version"`
	Tables  []TableDefinition `yaml:"tables"  json:"tables"`

	// Checksum is computed at load time and not part of the YAML.
	Checksum string `yaml:"-" json:"-"`
	// SourceFile records the originating file path.
	SourceFile string `yaml:"-" json:"-"`
}

// Data source types.
const (
	SourceInline   = "inline"
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

// Column types.
const (
	ColumnText    = "text"
	ColumnNumber  = "number"
	ColumnBoolean = "boolean"
	ColumnDate    = "date"
	ColumnList    = "list"
	ColumnStatus  = "status"
)

// TableDefinition describes one browsable table: its columns, its filter
// controls, its default view state and where its records come from.
type TableDefinition struct {
	ID              string               `yaml:"id"                json:"id"`
	Title           string               `yaml:"title"             json:"title"`
	Description     string               `yaml:"description"       json:"description,omitempty"`
	Capabilities    []string             `yaml:"capabilities"      json:"capabilities"`
	Columns         []ColumnDefinition   `yaml:"columns"           json:"columns"`
	Filters         []FilterDefinition   `yaml:"filters"           json:"filters,omitempty"`
	DefaultSort     string               `yaml:"default_sort"      json:"default_sort,omitempty"`
	SortDir         string               `yaml:"sort_dir"          json:"sort_dir,omitempty"`
	PageSize        int                  `yaml:"page_size"         json:"page_size,omitempty"`
	PageSizeOptions []int                `yaml:"page_size_options" json:"page_size_options,omitempty"`
	Collation       string               `yaml:"collation"         json:"collation,omitempty"`
	Schema          string               `yaml:"schema"            json:"schema,omitempty"`
	DataSource      DataSourceDefinition `yaml:"data_source"       json:"data_source"`
}

// Column returns the column for field, if declared.
func (t *TableDefinition) Column(field string) (ColumnDefinition, bool) {
	for _, c := range t.Columns {
		if c.Field == field {
			return c, true
		}
	}
	return ColumnDefinition{}, false
}

// Filter returns the filter control for field, if declared.
func (t *TableDefinition) Filter(field string) (FilterDefinition, bool) {
	for _, f := range t.Filters {
		if f.Field == field {
			return f, true
		}
	}
	return FilterDefinition{}, false
}

// SearchFields returns the fields free-text search inspects. Columns marked
// searchable win; with none marked every declared column is searched.
func (t *TableDefinition) SearchFields() []string {
	var marked, all []string
	for _, c := range t.Columns {
		all = append(all, c.Field)
		if c.Searchable {
			marked = append(marked, c.Field)
		}
	}
	if len(marked) > 0 {
		return marked
	}
	return all
}

// ColumnDefinition describes a table column.
type ColumnDefinition struct {
	Field      string            `yaml:"field"      json:"field"`
	Label      string            `yaml:"label"      json:"label"`
	Type       string            `yaml:"type"       json:"type"`
	Sortable   bool              `yaml:"sortable"   json:"sortable,omitempty"`
	Searchable bool              `yaml:"searchable" json:"searchable,omitempty"`
	Format     string            `yaml:"format"     json:"format,omitempty"`
	Width      string            `yaml:"width"      json:"width,omitempty"`
	StatusMap  map[string]string `yaml:"status_map" json:"status_map,omitempty"`
}

// FilterDefinition describes a filter control on a table.
type FilterDefinition struct {
	Field   string         `yaml:"field"   json:"field"`
	Label   string         `yaml:"label"   json:"label"`
	Kind    string         `yaml:"kind"    json:"kind"`
	Options []StaticOption `yaml:"options" json:"options,omitempty"`
	// Dynamic filters offer the distinct values present in the data.
	Dynamic bool `yaml:"dynamic" json:"dynamic,omitempty"`
	Default any  `yaml:"default" json:"default,omitempty"`
}

// StaticOption is a label/value pair for dropdowns and filters.
type StaticOption struct {
	Label string `yaml:"label" json:"label"`
	Value string `yaml:"value" json:"value"`
}

// DataSourceDefinition describes where a table's records come from.
type DataSourceDefinition struct {
	Type    string           `yaml:"type"      json:"type"`
	Records []map[string]any `yaml:"records"   json:"records,omitempty"`
	Path    string           `yaml:"path"      json:"path,omitempty"`
	Query   string           `yaml:"query"     json:"query,omitempty"`
	Args    []any            `yaml:"args"      json:"args,omitempty"`
	// CacheTTL is a Go duration string. Empty uses the configured default;
	// "0s" disables caching for the table.
	CacheTTL string `yaml:"cache_ttl" json:"cache_ttl,omitempty"`
}
