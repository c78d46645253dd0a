package definition

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/pitabwire/gridview/model"
)

// snapshot is an immutable collection of all definitions indexed by ID.
type snapshot struct {
	domains  map[string]model.DomainDefinition
	tables   map[string]model.TableDefinition
	owners   map[string]string // table ID -> domain
	tableIDs []string
	checksum string
}

// Registry is a read-optimized, thread-safe store of all loaded definitions.
// It uses atomic pointer swap for lock-free concurrent reads.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given definitions.
func NewRegistry(defs []model.DomainDefinition) *Registry {
	r := &Registry{}
	r.Replace(defs)
	return r
}

// Replace atomically swaps the registry contents with a new snapshot built
// from the given definitions. Later definitions win on duplicate table IDs;
// the validator rejects such sets before they get here.
func (r *Registry) Replace(defs []model.DomainDefinition) {
	s := &snapshot{
		domains: make(map[string]model.DomainDefinition, len(defs)),
		tables:  make(map[string]model.TableDefinition),
		owners:  make(map[string]string),
	}

	var checksumParts []string

	for _, def := range defs {
		s.domains[def.Domain] = def
		checksumParts = append(checksumParts, def.Checksum)

		for _, t := range def.Tables {
			if _, seen := s.tables[t.ID]; !seen {
				s.tableIDs = append(s.tableIDs, t.ID)
			}
			s.tables[t.ID] = t
			s.owners[t.ID] = def.Domain
		}
	}
	sort.Strings(s.tableIDs)

	sort.Strings(checksumParts)
	combined := strings.Join(checksumParts, ":")
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))

	r.snap.Store(s)
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// GetDomain returns the domain definition with the given ID.
func (r *Registry) GetDomain(domainID string) (model.DomainDefinition, bool) {
	d, ok := r.current().domains[domainID]
	return d, ok
}

// GetTable returns the table definition with the given ID.
func (r *Registry) GetTable(tableID string) (model.TableDefinition, bool) {
	t, ok := r.current().tables[tableID]
	return t, ok
}

// TableDomain returns the domain that declares the given table.
func (r *Registry) TableDomain(tableID string) string {
	return r.current().owners[tableID]
}

// AllTables returns all table definitions ordered by ID.
func (r *Registry) AllTables() []model.TableDefinition {
	s := r.current()
	out := make([]model.TableDefinition, 0, len(s.tableIDs))
	for _, id := range s.tableIDs {
		out = append(out, s.tables[id])
	}
	return out
}

// AllDomains returns all domain definitions.
func (r *Registry) AllDomains() []model.DomainDefinition {
	s := r.current()
	defs := make([]model.DomainDefinition, 0, len(s.domains))
	for _, d := range s.domains {
		defs = append(defs, d)
	}
	return defs
}

// TableCount returns the number of loaded tables.
func (r *Registry) TableCount() int {
	return len(r.current().tableIDs)
}

// Checksum returns the combined checksum of all loaded definitions.
func (r *Registry) Checksum() string {
	return r.current().checksum
}
