// Package schema loads OpenAPI documents and indexes their component
// schemas so table definitions can be checked against, and records typed
// by, a declared record shape.
package schema

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/pitabwire/gridview/model"
)

const componentPrefix = "#/components/schemas/"

// SpecSource describes an OpenAPI document to load. Name defaults to the
// file name without extension.
type SpecSource struct {
	Name string
	Path string
}

// Index is an in-memory index of component schemas keyed by "spec#Name".
type Index struct {
	schemas map[string]*openapi3.Schema
}

// NewIndex creates an empty schema index.
func NewIndex() *Index {
	return &Index{schemas: make(map[string]*openapi3.Schema)}
}

// SourcesFromDir builds spec sources for files relative to dir.
func SourcesFromDir(dir string, files []string) []SpecSource {
	out := make([]SpecSource, 0, len(files))
	for _, f := range files {
		path := f
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, f)
		}
		out = append(out, SpecSource{Path: path})
	}
	return out
}

func schemaKey(spec, name string) string {
	return spec + "#" + name
}

// Load parses OpenAPI documents and indexes every component schema.
func (idx *Index) Load(specs []SpecSource) error {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	for _, src := range specs {
		name := src.Name
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(src.Path), filepath.Ext(src.Path))
		}

		doc, err := loader.LoadFromFile(src.Path)
		if err != nil {
			return fmt.Errorf("schema: loading %s (%s): %w", name, src.Path, err)
		}
		if err := doc.Validate(context.Background()); err != nil {
			return fmt.Errorf("schema: validating %s: %w", name, err)
		}
		if doc.Components == nil {
			continue
		}
		for schemaName, ref := range doc.Components.Schemas {
			if ref == nil || ref.Value == nil {
				continue
			}
			idx.schemas[schemaKey(name, schemaName)] = ref.Value
		}
	}
	return nil
}

// Len returns the number of indexed schemas.
func (idx *Index) Len() int {
	return len(idx.schemas)
}

// Refs returns all indexed schema references, sorted.
func (idx *Index) Refs() []string {
	refs := make([]string, 0, len(idx.schemas))
	for k := range idx.schemas {
		refs = append(refs, k)
	}
	sort.Strings(refs)
	return refs
}

// normalizeRef accepts "spec#Name" and "spec#/components/schemas/Name".
func normalizeRef(ref string) string {
	spec, name, ok := strings.Cut(ref, "#")
	if !ok {
		return ref
	}
	return schemaKey(spec, strings.TrimPrefix(name, componentPrefix))
}

// Schema returns the component schema for ref.
func (idx *Index) Schema(ref string) (*openapi3.Schema, bool) {
	s, ok := idx.schemas[normalizeRef(ref)]
	return s, ok
}

// FieldTypes maps the properties of the schema at ref to column types.
// Nested object properties are flattened to dotted paths.
func (idx *Index) FieldTypes(ref string) (map[string]string, bool) {
	s, ok := idx.Schema(ref)
	if !ok {
		return nil, false
	}
	out := make(map[string]string)
	collectFields(out, "", s, 0)
	return out, true
}

const maxDepth = 8

func collectFields(out map[string]string, prefix string, s *openapi3.Schema, depth int) {
	if depth > maxDepth {
		return
	}
	for name, ref := range s.Properties {
		if ref == nil || ref.Value == nil {
			continue
		}
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		prop := ref.Value
		if prop.Type.Is(openapi3.TypeObject) && len(prop.Properties) > 0 {
			collectFields(out, path, prop, depth+1)
			continue
		}
		out[path] = ColumnType(prop)
	}
}

// ColumnType maps an OpenAPI schema to the column type used to decode and
// compare its values.
func ColumnType(s *openapi3.Schema) string {
	switch {
	case s.Type.Is(openapi3.TypeString):
		if s.Format == "date-time" || s.Format == "date" {
			return model.ColumnDate
		}
		return model.ColumnText
	case s.Type.Is(openapi3.TypeNumber), s.Type.Is(openapi3.TypeInteger):
		return model.ColumnNumber
	case s.Type.Is(openapi3.TypeBoolean):
		return model.ColumnBoolean
	case s.Type.Is(openapi3.TypeArray):
		return model.ColumnList
	default:
		return model.ColumnText
	}
}
