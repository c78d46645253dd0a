package tables

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/pitabwire/gridview/internal/view"
	"github.com/pitabwire/gridview/model"
)

// GetFilterOptions returns the options of a filter control: its static
// options followed, for dynamic filters, by the distinct values present in
// the table's data with their record counts. A non-empty query keeps only
// options whose label contains it, ignoring case.
func (p *TableProvider) GetFilterOptions(
	ctx context.Context,
	caps model.CapabilitySet,
	tableID, field, query string,
) (model.OptionsResponse, error) {
	t, err := p.Table(caps, tableID)
	if err != nil {
		return model.OptionsResponse{}, err
	}
	def, ok := t.Filter(field)
	if !ok {
		return model.OptionsResponse{}, model.NewNotFoundError(
			fmt.Sprintf("table %q has no filter on %q", tableID, field),
		)
	}

	options := make([]model.OptionDescriptor, 0, len(def.Options))
	static := make(map[string]bool, len(def.Options))
	for _, opt := range def.Options {
		options = append(options, model.OptionDescriptor{Label: opt.Label, Value: opt.Value})
		static[opt.Value] = true
	}

	if def.Dynamic {
		records, err := p.datasets.RecordsFor(ctx, t)
		if err != nil {
			return model.OptionsResponse{}, err
		}
		for _, opt := range distinctValues(records, field) {
			if !static[opt.Value] {
				options = append(options, opt)
			}
		}
	}

	return model.OptionsResponse{
		Data: model.OptionsPayload{Options: filterOptions(options, query)},
	}, nil
}

// distinctValues counts the distinct non-blank values of field. List
// values contribute each element. The result is ordered by value.
func distinctValues(records []model.Record, field string) []model.OptionDescriptor {
	counts := make(map[string]int)
	for _, r := range records {
		v := view.Get(r, field)
		if items, ok := v.ListVal(); ok {
			seen := make(map[string]bool, len(items))
			for _, item := range items {
				if text := item.Text(); text != "" && !seen[text] {
					seen[text] = true
					counts[text]++
				}
			}
			continue
		}
		if text := v.Text(); text != "" {
			counts[text]++
		}
	}

	options := make([]model.OptionDescriptor, 0, len(counts))
	for value, n := range counts {
		options = append(options, model.OptionDescriptor{Label: value, Value: value, Count: n})
	}
	slices.SortFunc(options, func(a, b model.OptionDescriptor) int {
		return cmp.Compare(a.Value, b.Value)
	})
	return options
}

// filterOptions filters options by query (case-insensitive match on label).
func filterOptions(options []model.OptionDescriptor, query string) []model.OptionDescriptor {
	if query == "" {
		return options
	}

	q := strings.ToLower(query)
	filtered := []model.OptionDescriptor{}
	for _, opt := range options {
		if strings.Contains(strings.ToLower(opt.Label), q) {
			filtered = append(filtered, opt)
		}
	}
	return filtered
}
