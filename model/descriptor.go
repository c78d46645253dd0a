package model

// TableSummary is one entry of the table catalogue.
type TableSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Domain      string `json:"domain"`
}

// TableDescriptor is the resolved table metadata sent to the frontend.
type TableDescriptor struct {
	ID              string             `json:"id"`
	Title           string             `json:"title"`
	Description     string             `json:"description,omitempty"`
	Columns         []ColumnDescriptor `json:"columns"`
	Filters         []FilterDescriptor `json:"filters,omitempty"`
	DataEndpoint    string             `json:"data_endpoint"`
	ViewsEndpoint   string             `json:"views_endpoint"`
	DefaultSort     SortDirective      `json:"default_sort"`
	PageSize        int                `json:"page_size"`
	PageSizeOptions []int              `json:"page_size_options"`
	CanRefresh      bool               `json:"can_refresh"`
}

// ColumnDescriptor describes a visible table column.
type ColumnDescriptor struct {
	Field     string            `json:"field"`
	Label     string            `json:"label"`
	Type      string            `json:"type"`
	Sortable  bool              `json:"sortable"`
	Format    string            `json:"format,omitempty"`
	Width     string            `json:"width,omitempty"`
	StatusMap map[string]string `json:"status_map,omitempty"`
}

// FilterDescriptor describes a resolved filter control.
type FilterDescriptor struct {
	Field           string             `json:"field"`
	Label           string             `json:"label"`
	Kind            FilterKind         `json:"kind"`
	Options         []OptionDescriptor `json:"options,omitempty"`
	OptionsEndpoint string             `json:"options_endpoint,omitempty"`
	Default         any                `json:"default,omitempty"`
}

// OptionDescriptor is a resolved option for dropdowns and filters.
type OptionDescriptor struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Count int    `json:"count,omitempty"`
}

// DataParams carries the stateless view request for a table data call.
type DataParams struct {
	Query    string
	Sort     string
	SortDir  string
	Page     int
	PageSize int
	Filters  FilterState
}

// DataResponse is the standardized data response for a computed page.
type DataResponse struct {
	Data DataPayload    `json:"data"`
	Meta map[string]any `json:"meta,omitempty"`
}

// DataPayload contains the items and pagination of a computed page.
type DataPayload struct {
	Items      []Record `json:"items"`
	TotalCount int      `json:"total_count"`
	TotalPages int      `json:"total_pages"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
}

// NewDataPayload copies a pipeline result into its response form.
func NewDataPayload(res PageResult) DataPayload {
	items := res.Items
	if items == nil {
		items = []Record{}
	}
	return DataPayload{
		Items:      items,
		TotalCount: res.TotalCount,
		TotalPages: res.TotalPages,
		Page:       res.Page,
		PageSize:   res.PageSize,
	}
}

// OptionsResponse is the response of a filter options endpoint.
type OptionsResponse struct {
	Data OptionsPayload `json:"data"`
}

// OptionsPayload contains the filter options.
type OptionsPayload struct {
	Options []OptionDescriptor `json:"options"`
}

// ViewOwner scopes a view to the tenant and subject that opened it.
type ViewOwner struct {
	TenantID  string `json:"tenant_id"`
	SubjectID string `json:"subject_id"`
}

// ViewDescriptor is the state of an open view plus its current page.
type ViewDescriptor struct {
	ID      string      `json:"id"`
	TableID string      `json:"table_id"`
	State   ViewState   `json:"state"`
	Data    DataPayload `json:"data"`
}

// View event types.
const (
	EventSearch       = "search"
	EventSetFilter    = "set_filter"
	EventRemoveFilter = "remove_filter"
	EventClearFilters = "clear_filters"
	EventSort         = "sort"
	EventToggleSort   = "toggle_sort"
	EventPage         = "page"
	EventPageSize     = "page_size"
)

// ViewEvent is one user interaction forwarded to an open view. Which fields
// are read depends on Type.
type ViewEvent struct {
	Type      string        `json:"type"`
	Text      string        `json:"text,omitempty"`
	Filter    *FilterSpec   `json:"filter,omitempty"`
	Field     string        `json:"field,omitempty"`
	Direction SortDirection `json:"direction,omitempty"`
	Page      int           `json:"page,omitempty"`
	PageSize  int           `json:"page_size,omitempty"`
}

// ViewEventsRequest is the body of an events call. Events apply in order.
type ViewEventsRequest struct {
	Events []ViewEvent `json:"events"`
}
