package transport

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/gridview/internal/tables"
	"github.com/pitabwire/gridview/model"
)

type tableListResponse struct {
	Data []model.TableSummary `json:"data"`
}

func handleListTables(provider *tables.TableProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caps := CapabilitiesFrom(r.Context())
		summaries := provider.ListTables(caps)
		if summaries == nil {
			summaries = []model.TableSummary{}
		}
		WriteJSON(w, http.StatusOK, tableListResponse{Data: summaries})
	}
}

func handleGetTable(provider *tables.TableProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caps := CapabilitiesFrom(r.Context())
		desc, err := provider.GetTable(caps, chi.URLParam(r, "tableId"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, desc)
	}
}

func handleGetTableData(provider *tables.TableProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caps := CapabilitiesFrom(r.Context())

		filters, err := parseFilters(r)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		q := r.URL.Query()
		params := model.DataParams{
			Query:    q.Get("q"),
			Sort:     q.Get("sort"),
			SortDir:  q.Get("sort_dir"),
			Page:     queryInt(r, "page", 0),
			PageSize: queryInt(r, "page_size", 0),
			Filters:  filters,
		}

		data, err := provider.GetTableData(r.Context(), caps, chi.URLParam(r, "tableId"), params)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, data)
	}
}

func handleGetFilterOptions(provider *tables.TableProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caps := CapabilitiesFrom(r.Context())
		resp, err := provider.GetFilterOptions(r.Context(), caps,
			chi.URLParam(r, "tableId"),
			chi.URLParam(r, "field"),
			r.URL.Query().Get("q"),
		)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func handleRefreshTable(provider *tables.TableProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caps := CapabilitiesFrom(r.Context())
		if err := provider.Refresh(r.Context(), caps, chi.URLParam(r, "tableId")); err != nil {
			WriteError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// queryInt extracts an integer query param with a default.
func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// parseFilters reads filter query parameters into a FilterState:
//
//	filter[status]=paid                 exact or declared kind
//	filter[status]=paid&filter[status]=new   set of values
//	filter[amount][from]=10&filter[amount][to]=20   range
//	filter[name][kind]=text             explicit kind
func parseFilters(r *http.Request) (model.FilterState, error) {
	filters := make(model.FilterState)
	for key, values := range r.URL.Query() {
		rest, ok := strings.CutPrefix(key, "filter[")
		if !ok || len(values) == 0 {
			continue
		}
		field, part, ok := strings.Cut(rest, "]")
		if !ok || field == "" {
			return nil, model.NewBadRequestError("malformed filter parameter " + strconv.Quote(key))
		}

		spec := filters[field]
		spec.Key = field
		switch part {
		case "":
			if len(values) == 1 {
				spec.Value = model.String(values[0])
			} else {
				spec.Values = make([]model.Value, len(values))
				for i, v := range values {
					spec.Values[i] = model.String(v)
				}
			}
		case "[from]", "[start]":
			spec.Start = model.String(values[0])
		case "[to]", "[end]":
			spec.End = model.String(values[0])
		case "[kind]":
			spec.Kind = model.FilterKind(values[0])
		default:
			return nil, model.NewBadRequestError("malformed filter parameter " + strconv.Quote(key))
		}
		filters[field] = spec
	}
	return filters, nil
}
