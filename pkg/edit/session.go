package edit

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/matst80/slask-grid/pkg/catalog"
	"github.com/matst80/slask-grid/pkg/sorting"
	"github.com/matst80/slask-grid/pkg/types"
)

const defaultPageSize = 50

// Session is one operator's working copy of the grid. Edits stay private to
// the session until committed. Every command takes the session lock, commands
// arriving while a commit is in flight wait for it to finish.
type Session struct {
	mu         sync.Mutex
	Id         string
	source     types.SnapshotSource
	committer  types.Committer
	sorter     *sorting.Sorter
	catalog    *catalog.Catalog
	filters    *types.Filters
	tracker    *Tracker
	sortField  string
	sortDir    sorting.Direction
	openRecord types.RecordId
	rev        uint64
}

func NewSession(id string, source types.SnapshotSource, committer types.Committer, sorter *sorting.Sorter) *Session {
	s := &Session{
		Id:        id,
		source:    source,
		committer: committer,
		sorter:    sorter,
	}
	s.rebuildLocked()
	return s
}

func (s *Session) rebuildLocked() {
	previous := s.filters
	s.catalog = catalog.New(s.source.Snapshot())
	s.tracker = NewTracker(s.catalog)
	s.filters = reapplyFilters(previous, s.catalog.Registry)
	if s.sortField != "" && !s.sortableLocked(s.sortField) {
		s.sortField = ""
	}
}

// reapplyFilters carries selections over to a freshly loaded grid. Groups
// that no longer exist fall away, token sets are kept as they are since the
// values they name may well still be in the data.
func reapplyFilters(previous *types.Filters, reg *types.Registry) *types.Filters {
	next := types.NewFilters(reg)
	if previous == nil {
		return next
	}
	for name, entry := range previous.Attributes {
		if reg.HasAttribute(name) && !entry.HasAll() {
			next.Apply(name, entry.Concrete())
		}
	}
	if !previous.Flags.HasAll() {
		kept := make([]string, 0)
		for _, name := range previous.Flags.Concrete() {
			if reg.HasFlag(name) {
				kept = append(kept, name)
			}
		}
		next.Apply(types.FlagGroup, kept)
	}
	return next
}

func (s *Session) sortableLocked(field string) bool {
	switch field {
	case types.FieldDescription:
		return true
	case types.FieldPrice:
		return s.catalog.Layout.HasPrice()
	}
	return s.catalog.Registry.HasAttribute(field)
}

// Rev distinguishes renderings of the session. It moves on every state
// changing command, cached responses are keyed on it.
func (s *Session) Rev() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rev
}

// SetFilter replaces the token set of one filter group.
func (s *Session) SetFilter(name string, tokens []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rev++
	return s.filters.Apply(name, tokens)
}

// SetSort selects the single sort criterion. An empty field restores grid
// order.
func (s *Session) SetSort(field string, dir sorting.Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if field != "" && !s.sortableLocked(field) {
		return fmt.Errorf("%w: %s", catalog.ErrUnknownField, field)
	}
	s.rev++
	s.sortField = field
	s.sortDir = dir
	return nil
}

type RecordView struct {
	*types.Record
	Changed []string `json:"changed,omitempty"`
}

type GridPage struct {
	Records  []RecordView `json:"records"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"pageSize"`
	Pending  int          `json:"pending"`
}

// Grid returns one page of the filtered, sorted working grid.
func (s *Session) Grid(page, size int) *GridPage {
	s.mu.Lock()
	defer s.mu.Unlock()
	visible := s.catalog.Visible(s.filters)
	if s.sortField != "" {
		s.sorter.Sort(visible, s.sortField, s.sortDir)
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if page < 0 {
		page = 0
	}
	result := &GridPage{
		Records:  []RecordView{},
		Total:    len(visible),
		Page:     page,
		PageSize: size,
		Pending:  s.tracker.Count(),
	}
	start := page * size
	if start >= len(visible) {
		return result
	}
	for _, rec := range visible[start:min(start+size, len(visible))] {
		result.Records = append(result.Records, RecordView{Record: rec, Changed: s.catalog.ChangedFields(rec)})
	}
	return result
}

type FacetOption struct {
	Value   string `json:"value"`
	Count   int    `json:"count"`
	Enabled bool   `json:"enabled"`
}

type FacetGroup struct {
	Name     string        `json:"name"`
	Selected []string      `json:"selected"`
	Options  []FacetOption `json:"options"`
}

// Facets returns every filter group with its current selection and the
// options still backed by the visible result set. The All token never shows
// up as an option, it is always selectable.
func (s *Session) Facets() []FacetGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	av := s.catalog.Availability(s.catalog.Match(s.filters))
	reg := s.catalog.Registry
	groups := make([]FacetGroup, 0, len(reg.Attributes)+1)
	for _, name := range reg.Attributes {
		counts := av.Attributes[name]
		group := FacetGroup{Name: name, Selected: s.filters.Attributes[name].Tokens()}
		for _, value := range reg.Options(name) {
			count := counts[value]
			group.Options = append(group.Options, FacetOption{Value: value, Count: count, Enabled: count > 0})
		}
		groups = append(groups, group)
	}
	if len(reg.Flags) > 0 {
		group := FacetGroup{Name: types.FlagGroup, Selected: s.filters.Flags.Tokens()}
		for _, name := range reg.Flags {
			count := av.Flags[name]
			group.Options = append(group.Options, FacetOption{Value: name, Count: count, Enabled: count > 0})
		}
		groups = append(groups, group)
	}
	return groups
}

type RecordDetail struct {
	*types.Record
	Changed  []string            `json:"changed,omitempty"`
	Original map[string]string   `json:"original,omitempty"`
	Options  map[string][]string `json:"options"`
}

// OpenRecord marks a record as being edited and returns its detail view:
// the loaded value of every field that currently differs, and per attribute
// the selectable values for the edit form (known options plus the record's
// current value when it is not a known one).
func (s *Session) OpenRecord(id types.RecordId) (*RecordDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.catalog.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", catalog.ErrUnknownRecord, id)
	}
	s.openRecord = id
	detail := &RecordDetail{Record: rec, Changed: s.catalog.ChangedFields(rec)}
	if len(detail.Changed) > 0 {
		detail.Original = make(map[string]string, len(detail.Changed))
		for _, field := range detail.Changed {
			value, _ := rec.BaselineValue(field)
			detail.Original[field] = value
		}
	}
	reg := s.catalog.Registry
	detail.Options = make(map[string][]string, len(reg.Attributes))
	for _, name := range reg.Attributes {
		known := reg.Options(name)
		current := rec.Attributes[name]
		if current != "" && !slices.Contains(known, current) {
			known = append(append(make([]string, 0, len(known)+1), known...), current)
		}
		detail.Options[name] = known
	}
	return detail, nil
}

// EditField records a single field edit on the working copy.
func (s *Session) EditField(id types.RecordId, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rev++
	return s.tracker.RecordEdit(id, field, value)
}

func (s *Session) ChangeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Count()
}

// Commit flattens the pending set and hands it to the committer. On success
// the session reloads the latest grid, keeping filters and sort. On failure
// every pending edit stays in place for another attempt.
func (s *Session) Commit(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tuples := s.tracker.Flatten()
	if len(tuples) == 0 {
		return 0, ErrNoPendingChanges
	}
	if err := s.committer.CommitChanges(ctx, tuples); err != nil {
		return 0, fmt.Errorf("commit of %d changes failed: %w", len(tuples), err)
	}
	s.rev++
	s.rebuildLocked()
	return len(tuples), nil
}

// Reset throws away every pending edit and restores the values the session
// was loaded with. Filters and sort stay.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rev++
	return s.tracker.RevertAll()
}

// Refresh swaps the working copy for the latest grid. Pending edits are
// dropped, filter groups that survive the reload are reapplied.
func (s *Session) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rev++
	s.rebuildLocked()
}

// Export writes the working grid, pending edits included, in the upload
// format.
func (s *Session) Export(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.catalog.Visible(types.NewFilters(s.catalog.Registry))
	return catalog.WriteGrid(w, &types.BootstrapData{Layout: s.catalog.Layout, Records: records})
}
