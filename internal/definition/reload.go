package definition

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pitabwire/gridview/internal/observability"
	"github.com/pitabwire/gridview/internal/schema"
)

// Reloader re-reads definition directories and swaps the registry snapshot
// when the new set validates. A failed reload keeps the current snapshot.
type Reloader struct {
	Loader      *Loader
	Validator   *Validator
	Index       *schema.Index
	Registry    *Registry
	Directories []string
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// Reload loads, validates and publishes the definitions.
func (r *Reloader) Reload() error {
	defs, err := r.Loader.LoadAll(r.Directories)
	if err != nil {
		r.Metrics.RecordDefinitionReload("failure")
		return fmt.Errorf("definition reload: %w", err)
	}

	if verrs := r.Validator.Validate(defs, r.Index); len(verrs) > 0 {
		r.Metrics.RecordDefinitionReload("failure")
		joined := make([]error, len(verrs))
		for i, ve := range verrs {
			joined[i] = ve
		}
		return fmt.Errorf("definition reload: %w", errors.Join(joined...))
	}

	previous := r.Registry.Checksum()
	r.Registry.Replace(defs)
	r.Metrics.RecordDefinitionReload("success")
	r.Metrics.SetTablesLoaded(r.Registry.TableCount())

	if r.Logger != nil {
		r.Logger.Info("definitions reloaded",
			zap.Int("tables", r.Registry.TableCount()),
			zap.Bool("changed", previous != r.Registry.Checksum()),
		)
	}
	return nil
}
