package dataset

import (
	"strings"

	"github.com/pitabwire/gridview/model"
)

// Decoder types raw record values by declared column type so that sorting
// and range filters compare numbers and instants instead of text.
type Decoder struct {
	kinds map[string]model.Kind
}

// columnKinds maps column types to the value kind they decode to. Text,
// status and list columns keep whatever the source produced.
var columnKinds = map[string]model.Kind{
	model.ColumnNumber:  model.KindNumber,
	model.ColumnBoolean: model.KindBool,
	model.ColumnDate:    model.KindTime,
}

// NewDecoder builds a decoder from schema field types overlaid with the
// table's column types. Either may be empty.
func NewDecoder(table model.TableDefinition, schemaTypes map[string]string) *Decoder {
	kinds := make(map[string]model.Kind)
	for field, typ := range schemaTypes {
		if k, ok := columnKinds[typ]; ok && !strings.Contains(field, ".") {
			kinds[field] = k
		}
	}
	for _, c := range table.Columns {
		if k, ok := columnKinds[c.Type]; ok && !strings.Contains(c.Field, ".") {
			kinds[c.Field] = k
		} else {
			delete(kinds, c.Field)
		}
	}
	return &Decoder{kinds: kinds}
}

// Decode returns records with typed fields coerced. Values that do not
// parse are kept as they are. Records needing no change are returned
// as-is, so decoding already-typed records does not allocate.
func (d *Decoder) Decode(records []model.Record) []model.Record {
	if len(d.kinds) == 0 {
		return records
	}
	out := make([]model.Record, len(records))
	for i, rec := range records {
		out[i] = d.decodeRecord(rec)
	}
	return out
}

func (d *Decoder) decodeRecord(rec model.Record) model.Record {
	var copied model.Record
	for field, kind := range d.kinds {
		v, ok := rec[field]
		if !ok || v.IsNull() || v.Kind() == kind {
			continue
		}
		typed, ok := v.Coerce(kind)
		if !ok {
			continue
		}
		if copied == nil {
			copied = make(model.Record, len(rec))
			for k, val := range rec {
				copied[k] = val
			}
		}
		copied[field] = typed
	}
	if copied == nil {
		return rec
	}
	return copied
}
