package model

// Record is one row flowing through a view. Records are treated as
// read-only by every stage of the pipeline.
type Record map[string]Value

// RecordFromMap converts a decoded map into a Record.
func RecordFromMap(m map[string]any) Record {
	if m == nil {
		return nil
	}
	r := make(Record, len(m))
	for k, v := range m {
		r[k] = FromAny(v)
	}
	return r
}

// RecordsFromMaps converts a slice of decoded maps into Records.
func RecordsFromMaps(items []map[string]any) []Record {
	out := make([]Record, len(items))
	for i, m := range items {
		out[i] = RecordFromMap(m)
	}
	return out
}

// ToMap returns r as a plain map suitable for encoding.
func (r Record) ToMap() map[string]any {
	if r == nil {
		return nil
	}
	m := make(map[string]any, len(r))
	for k, v := range r {
		m[k] = v.Interface()
	}
	return m
}
