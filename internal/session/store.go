// Package session holds the documents loaded in this process together with
// their page selections.
package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spherical/pagesnap/internal/domain"
)

// Entry is a document to be added to the store. PageCount is taken from the
// handle and every page starts out selected.
type Entry struct {
	ID          string
	DisplayName string
	Handle      domain.Document
}

// DocumentSnapshot is a point-in-time copy of an entry.
type DocumentSnapshot struct {
	ID          string
	DisplayName string
	Handle      domain.Document
	PageCount   int
	Selected    []int // ascending
}

type entry struct {
	id        string
	name      string
	handle    domain.Document
	pageCount int
	selected  map[int]struct{}
	release   sync.Once
}

func (e *entry) inRange(page int) bool {
	return page >= 1 && page <= e.pageCount
}

func (e *entry) selectAll() {
	e.selected = make(map[int]struct{}, e.pageCount)
	for p := 1; p <= e.pageCount; p++ {
		e.selected[p] = struct{}{}
	}
}

func (e *entry) snapshot() DocumentSnapshot {
	pages := make([]int, 0, len(e.selected))
	for p := range e.selected {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return DocumentSnapshot{
		ID:          e.id,
		DisplayName: e.name,
		Handle:      e.handle,
		PageCount:   e.pageCount,
		Selected:    pages,
	}
}

// Store is the ordered, in-memory set of loaded documents.
type Store struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*entry
	logger  *domain.Logger
}

// New creates an empty store
func New() *Store {
	return &Store{
		entries: make(map[string]*entry),
		logger:  domain.DefaultLogger().WithPrefix("session"),
	}
}

// Add appends entries in order. Nothing is added if any ID or display name
// is already taken or the handle reports no pages.
func (s *Store) Add(entries ...Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make(map[string]struct{}, len(s.entries)+len(entries))
	for _, e := range s.entries {
		names[e.name] = struct{}{}
	}
	ids := make(map[string]struct{}, len(entries))

	added := make([]*entry, 0, len(entries))
	for _, in := range entries {
		if in.Handle == nil {
			return domain.ValidationError(fmt.Sprintf("entry %q has no document", in.DisplayName), nil)
		}
		if _, dup := s.entries[in.ID]; dup {
			return domain.ValidationError(fmt.Sprintf("duplicate document id %q", in.ID), nil)
		}
		if _, dup := ids[in.ID]; dup {
			return domain.ValidationError(fmt.Sprintf("duplicate document id %q", in.ID), nil)
		}
		if _, dup := names[in.DisplayName]; dup {
			return domain.ValidationError(fmt.Sprintf("duplicate display name %q", in.DisplayName), nil)
		}
		pages := in.Handle.PageCount()
		if pages <= 0 {
			return domain.ValidationError(fmt.Sprintf("document %q has no pages", in.DisplayName), nil)
		}
		ids[in.ID] = struct{}{}
		names[in.DisplayName] = struct{}{}

		e := &entry{id: in.ID, name: in.DisplayName, handle: in.Handle, pageCount: pages}
		e.selectAll()
		added = append(added, e)
	}

	for _, e := range added {
		s.entries[e.id] = e
		s.order = append(s.order, e.id)
	}
	return nil
}

// withEntry runs fn under the write lock when id exists.
func (s *Store) withEntry(id string, fn func(e *entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		fn(e)
	}
}

// TogglePage flips one page's membership. Unknown ids and out-of-range pages
// are ignored.
func (s *Store) TogglePage(id string, page int) {
	s.withEntry(id, func(e *entry) {
		if !e.inRange(page) {
			return
		}
		if _, ok := e.selected[page]; ok {
			delete(e.selected, page)
		} else {
			e.selected[page] = struct{}{}
		}
	})
}

// SelectAll selects every page of a document.
func (s *Store) SelectAll(id string) {
	s.withEntry(id, func(e *entry) { e.selectAll() })
}

// ClearSelection deselects every page of a document.
func (s *Store) ClearSelection(id string) {
	s.withEntry(id, func(e *entry) { e.selected = make(map[int]struct{}) })
}

// InvertSelection replaces the selection with its complement in [1, PageCount].
func (s *Store) InvertSelection(id string) {
	s.withEntry(id, func(e *entry) {
		next := make(map[int]struct{}, e.pageCount-len(e.selected))
		for p := 1; p <= e.pageCount; p++ {
			if _, ok := e.selected[p]; !ok {
				next[p] = struct{}{}
			}
		}
		e.selected = next
	})
}

// SetSelection replaces the selection. Pages outside [1, PageCount] are dropped.
func (s *Store) SetSelection(id string, pages []int) {
	s.withEntry(id, func(e *entry) {
		next := make(map[int]struct{}, len(pages))
		for _, p := range pages {
			if e.inRange(p) {
				next[p] = struct{}{}
			}
		}
		e.selected = next
	})
}

// Remove deletes an entry and releases its document. It reports whether an
// entry was removed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
		for i, oid := range s.order {
			if oid == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	s.releaseEntry(e)
	return true
}

func (s *Store) releaseEntry(e *entry) {
	e.release.Do(func() {
		if err := e.handle.Release(); err != nil {
			s.logger.Warn("failed to release %s: %v", e.name, err)
		}
	})
}

// TotalSelectedPages sums the selection sizes of all entries.
func (s *Store) TotalSelectedPages() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, e := range s.entries {
		total += len(e.selected)
	}
	return total
}

// Get returns a copy of one entry.
func (s *Store) Get(id string) (DocumentSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return DocumentSnapshot{}, false
	}
	return e.snapshot(), true
}

// Entries returns copies of all entries in display order.
func (s *Store) Entries() []DocumentSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]DocumentSnapshot, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id].snapshot())
	}
	return out
}

// Snapshot freezes the current entries and selections for one export batch.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{Documents: s.Entries()}
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// IDs returns the ids in display order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Names returns the display names in display order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.order))
	for _, id := range s.order {
		names = append(names, s.entries[id].name)
	}
	return names
}

// Close removes every entry and releases its document.
func (s *Store) Close() {
	s.mu.Lock()
	released := make([]*entry, 0, len(s.order))
	for _, id := range s.order {
		released = append(released, s.entries[id])
	}
	s.entries = make(map[string]*entry)
	s.order = nil
	s.mu.Unlock()

	for _, e := range released {
		s.releaseEntry(e)
	}
}

// Snapshot is an immutable view of the session taken at batch start.
type Snapshot struct {
	Documents []DocumentSnapshot
}

// TotalSelected returns the number of selected pages across documents.
func (s Snapshot) TotalSelected() int {
	n := 0
	for _, d := range s.Documents {
		n += len(d.Selected)
	}
	return n
}

// Find returns the document with the given id.
func (s Snapshot) Find(id string) (DocumentSnapshot, bool) {
	for _, d := range s.Documents {
		if d.ID == id {
			return d, true
		}
	}
	return DocumentSnapshot{}, false
}
