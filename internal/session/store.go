// Package session keeps open views: server-side view state that the
// frontend changes one event at a time.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/pitabwire/gridview/internal/view"
	"github.com/pitabwire/gridview/model"
)

// View is one open view of a table. Its controller is only touched with
// the view locked.
type View struct {
	ID        string
	TableID   string
	Owner     model.ViewOwner
	CreatedAt time.Time

	mu         sync.Mutex
	controller *view.Controller
}

// NewView creates a view around controller.
func NewView(id, tableID string, owner model.ViewOwner, controller *view.Controller) *View {
	return &View{
		ID:         id,
		TableID:    tableID,
		Owner:      owner,
		CreatedAt:  time.Now().UTC(),
		controller: controller,
	}
}

// Store holds open views. Views are scoped to their owner: a view opened by
// one tenant and subject is invisible to everyone else.
type Store interface {
	// Put adds a view. Returns VIEW_LIMIT_REACHED when the store or the
	// owner is at capacity.
	Put(ctx context.Context, v *View) error

	// Get returns the owner's view and marks it used. Returns
	// VIEW_NOT_FOUND for unknown, foreign or idle-expired views. Expired
	// views stay in the store until the next Sweep.
	Get(ctx context.Context, owner model.ViewOwner, viewID string) (*View, error)

	// Delete removes the owner's view.
	Delete(ctx context.Context, owner model.ViewOwner, viewID string) error

	// Sweep removes views idle for longer than the idle TTL and returns
	// how many it removed.
	Sweep(ctx context.Context) int

	// Len returns the number of views held.
	Len() int
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	idleTTL       time.Duration
	maxViews      int
	maxPerSubject int
	now           func() time.Time

	mu      sync.Mutex
	views   map[string]*entry
	byOwner map[model.ViewOwner]int
}

type entry struct {
	view     *View
	lastUsed time.Time
}

// NewMemoryStore creates a memory store. A zero idleTTL keeps views until
// they are closed; zero limits mean unlimited.
func NewMemoryStore(idleTTL time.Duration, maxViews, maxPerSubject int) *MemoryStore {
	return &MemoryStore{
		idleTTL:       idleTTL,
		maxViews:      maxViews,
		maxPerSubject: maxPerSubject,
		now:           time.Now,
		views:         make(map[string]*entry),
		byOwner:       make(map[model.ViewOwner]int),
	}
}

// Put adds a view. Idle views still count against the limits until they
// are swept.
func (s *MemoryStore) Put(_ context.Context, v *View) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxViews > 0 && len(s.views) >= s.maxViews {
		return model.NewViewLimitError()
	}
	if s.maxPerSubject > 0 && s.byOwner[v.Owner] >= s.maxPerSubject {
		return model.NewViewLimitError()
	}

	s.views[v.ID] = &entry{view: v, lastUsed: s.now()}
	s.byOwner[v.Owner]++
	return nil
}

// Get returns the owner's view.
func (s *MemoryStore) Get(_ context.Context, owner model.ViewOwner, viewID string) (*View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.views[viewID]
	if !ok || e.view.Owner != owner {
		return nil, model.NewViewNotFoundError(viewID)
	}
	now := s.now()
	if s.expired(e, now) {
		return nil, model.NewViewNotFoundError(viewID)
	}
	e.lastUsed = now
	return e.view, nil
}

// Delete removes the owner's view.
func (s *MemoryStore) Delete(_ context.Context, owner model.ViewOwner, viewID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.views[viewID]
	if !ok || e.view.Owner != owner {
		return model.NewViewNotFoundError(viewID)
	}
	s.removeLocked(viewID)
	return nil
}

// Sweep removes idle views.
func (s *MemoryStore) Sweep(_ context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now())
}

// Len returns the number of views held, including idle ones not yet swept.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.views)
}

func (s *MemoryStore) expired(e *entry, now time.Time) bool {
	return s.idleTTL > 0 && now.Sub(e.lastUsed) > s.idleTTL
}

// sweepLocked must be called with mu held.
func (s *MemoryStore) sweepLocked(now time.Time) int {
	n := 0
	for id, e := range s.views {
		if s.expired(e, now) {
			s.removeLocked(id)
			n++
		}
	}
	return n
}

func (s *MemoryStore) removeLocked(viewID string) {
	e := s.views[viewID]
	delete(s.views, viewID)
	if s.byOwner[e.view.Owner] <= 1 {
		delete(s.byOwner, e.view.Owner)
	} else {
		s.byOwner[e.view.Owner]--
	}
}
