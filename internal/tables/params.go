package tables

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/pitabwire/gridview/model"
)

// StateFromParams builds the view state of a stateless data request: the
// table's initial state overridden by every parameter that is set.
func (p *TableProvider) StateFromParams(t model.TableDefinition, params model.DataParams) (model.ViewState, error) {
	state := p.InitialState(t)
	var details []model.FieldError

	state.SearchText = params.Query

	if params.Sort != "" {
		d := model.SortDirective{Key: params.Sort, Direction: model.ParseSortDirection(params.SortDir)}
		if fe := CheckSort(t, d.Key); fe != nil {
			details = append(details, *fe)
		} else {
			state.Sort = d.Normalize()
		}
	} else if params.SortDir != "" && state.Sort.Key != "" {
		state.Sort.Direction = model.ParseSortDirection(params.SortDir)
	}

	for key, spec := range params.Filters {
		spec.Key = key
		resolved, fe := ResolveFilter(t, spec)
		if fe != nil {
			details = append(details, *fe)
			continue
		}
		if resolved.Active() {
			state.Filters[key] = resolved
		} else {
			delete(state.Filters, key)
		}
	}

	if params.PageSize != 0 {
		if fe := p.CheckPageSize(params.PageSize); fe != nil {
			details = append(details, *fe)
		} else {
			state.Page.Size = params.PageSize
		}
	}
	if params.Page > 0 {
		state.Page.Index = params.Page
	}

	if len(details) > 0 {
		slices.SortFunc(details, func(a, b model.FieldError) int {
			return cmp.Compare(a.Field, b.Field)
		})
		return model.ViewState{}, model.NewValidationError(details)
	}
	return state, nil
}

// CheckSort verifies that key names a sortable column of t. An empty key
// clears the sort and is always accepted.
func CheckSort(t model.TableDefinition, key string) *model.FieldError {
	if key == "" {
		return nil
	}
	col, ok := t.Column(key)
	if !ok {
		return &model.FieldError{Field: "sort", Code: model.ErrUnknownField, Message: fmt.Sprintf("unknown column %q", key)}
	}
	if !col.Sortable {
		return &model.FieldError{Field: "sort", Code: model.ErrFieldNotSortable, Message: fmt.Sprintf("column %q is not sortable", key)}
	}
	return nil
}

// CheckPageSize verifies that size lies between 1 and the configured maximum.
func (p *TableProvider) CheckPageSize(size int) *model.FieldError {
	if size < 1 || size > p.views.MaxPageSize {
		return &model.FieldError{
			Field:   "page_size",
			Code:    "RANGE",
			Message: fmt.Sprintf("page_size must be between 1 and %d", p.views.MaxPageSize),
		}
	}
	return nil
}

// ResolveFilter checks that spec targets a declared column and fills in the
// filter kind when the caller left it empty: the declared filter's kind if
// there is one, otherwise range for start/end payloads, set for multiple
// values and exact for the rest.
func ResolveFilter(t model.TableDefinition, spec model.FilterSpec) (model.FilterSpec, *model.FieldError) {
	field := "filter[" + spec.Key + "]"
	if _, ok := t.Column(spec.Key); !ok {
		return spec, &model.FieldError{Field: field, Code: model.ErrUnknownField, Message: fmt.Sprintf("unknown column %q", spec.Key)}
	}
	if spec.Kind != "" {
		kind, err := model.ParseFilterKind(string(spec.Kind))
		if err != nil {
			return spec, &model.FieldError{Field: field, Code: "INVALID_ENUM", Message: err.Error()}
		}
		spec.Kind = kind
		return spec, nil
	}

	if def, ok := t.Filter(spec.Key); ok {
		spec.Kind, _ = model.ParseFilterKind(def.Kind)
	} else {
		switch {
		case !spec.Start.IsNull() || !spec.End.IsNull():
			spec.Kind = model.FilterRange
		case len(spec.Values) > 0:
			spec.Kind = model.FilterSet
		default:
			spec.Kind = model.FilterExact
		}
	}

	// A single value sent to a set filter is a one-member set.
	if spec.Kind == model.FilterSet && len(spec.Values) == 0 && !spec.Value.IsNull() {
		spec.Values = spec.Members()
		spec.Value = model.Null()
	}
	// Several values sent to a scalar filter keep the first.
	if spec.Kind != model.FilterSet && spec.Kind != model.FilterRange && spec.Value.IsNull() && len(spec.Values) > 0 {
		spec.Value = spec.Values[0]
		spec.Values = nil
	}
	return spec, nil
}
