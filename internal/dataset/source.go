// Package dataset loads the records behind a table from its declared data
// source, types them by column, and caches them between pipeline runs.
package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/gridview/model"
)

// Source produces the full record set of one table.
type Source interface {
	Load(ctx context.Context) ([]model.Record, error)
}

// InlineSource serves records embedded in the table definition.
type InlineSource struct {
	records []map[string]any
}

// NewInlineSource creates a source over definition-embedded records.
func NewInlineSource(records []map[string]any) *InlineSource {
	return &InlineSource{records: records}
}

// Load returns the embedded records.
func (s *InlineSource) Load(_ context.Context) ([]model.Record, error) {
	return model.RecordsFromMaps(s.records), nil
}

// FileSource reads a JSON array or YAML list of objects from disk. The file
// is re-read on every load; caching is the provider's job.
type FileSource struct {
	path string
}

// NewFileSource creates a file source. Relative paths resolve against baseDir.
func NewFileSource(baseDir, path string) *FileSource {
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}
	return &FileSource{path: path}
}

// Path returns the resolved file path.
func (s *FileSource) Path() string {
	return s.path
}

// Load reads and parses the file. The format follows the extension: .json
// is JSON, anything else is parsed as YAML.
func (s *FileSource) Load(ctx context.Context) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}

	var rows []map[string]any
	if strings.EqualFold(filepath.Ext(s.path), ".json") {
		err = json.Unmarshal(data, &rows)
	} else {
		err = yaml.Unmarshal(data, &rows)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.path, err)
	}
	return model.RecordsFromMaps(rows), nil
}
