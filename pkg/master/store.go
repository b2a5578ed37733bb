package master

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/matst80/slask-grid/pkg/catalog"
	"github.com/matst80/slask-grid/pkg/sorting"
	"github.com/matst80/slask-grid/pkg/types"
)

const snapshotFile = "grid.json.gz"

// ChangeListener gets told about accepted grid mutations, after the store has
// applied and persisted them.
type ChangeListener interface {
	GridCommitted(changes []types.ChangeTuple)
	GridReplaced(generation uint64)
	PricesLowered(changes []types.PriceChange)
}

// MultiListener fans a change out to several listeners.
type MultiListener []ChangeListener

func (m MultiListener) GridCommitted(changes []types.ChangeTuple) {
	for _, l := range m {
		l.GridCommitted(changes)
	}
}

func (m MultiListener) GridReplaced(generation uint64) {
	for _, l := range m {
		l.GridReplaced(generation)
	}
}

func (m MultiListener) PricesLowered(changes []types.PriceChange) {
	for _, l := range m {
		l.PricesLowered(changes)
	}
}

// Store holds the canonical grid. Sessions edit private copies and commit
// back through it, the store is the only writer of the persisted snapshot.
type Store struct {
	mu            sync.RWMutex
	data          *types.BootstrapData
	reg           *types.Registry
	byId          map[types.RecordId]*types.Record
	generation    uint64
	storage       types.StorageProvider
	ChangeHandler ChangeListener
}

func NewStore(storage types.StorageProvider) *Store {
	return &Store{
		data:    &types.BootstrapData{},
		reg:     types.NewRegistry(&types.GridLayout{}, nil),
		byId:    map[types.RecordId]*types.Record{},
		storage: storage,
	}
}

// Load restores the last persisted grid. A missing snapshot leaves the store
// empty.
func (s *Store) Load() error {
	data := &types.BootstrapData{}
	if err := s.storage.LoadGzippedJson(data, snapshotFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installLocked(data)
	return nil
}

func (s *Store) installLocked(data *types.BootstrapData) {
	s.data = data
	s.reg = types.NewRegistry(&data.Layout, data.Records)
	s.byId = make(map[types.RecordId]*types.Record, len(data.Records))
	for _, rec := range data.Records {
		s.byId[rec.Id] = rec
	}
	s.generation++
}

func (s *Store) persistLocked() error {
	if s.storage == nil {
		return nil
	}
	return s.storage.SaveGzippedJson(s.data, snapshotFile)
}

// Snapshot returns a deep copy of the current grid, safe to index and edit.
func (s *Store) Snapshot() *types.BootstrapData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone()
}

// Generation counts grid mutations, a snapshot taken at one generation is
// stale as soon as the counter moves.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.Records)
}

func (s *Store) Layout() types.GridLayout {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Layout
}

// CommitChanges validates and applies a batch of field changes. The batch is
// all or nothing, one bad tuple rejects the whole commit.
func (s *Store) CommitChanges(ctx context.Context, changes []types.ChangeTuple) error {
	if len(changes) == 0 {
		return nil
	}
	s.mu.Lock()
	for _, ch := range changes {
		if _, ok := s.byId[ch.Id]; !ok {
			s.mu.Unlock()
			return fmt.Errorf("%w: %d", catalog.ErrUnknownRecord, ch.Id)
		}
		if !s.reg.IsEditableField(ch.Field) {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", catalog.ErrUnknownField, ch.Field)
		}
		if ch.Field == types.FieldPrice && !catalog.ValidPrice(ch.Value) {
			s.mu.Unlock()
			return fmt.Errorf("invalid price %q for record %d", ch.Value, ch.Id)
		}
	}
	lowered := make([]types.PriceChange, 0)
	for _, ch := range changes {
		rec := s.byId[ch.Id]
		switch ch.Field {
		case types.FieldDescription:
			rec.Description = ch.Value
		case types.FieldPrice:
			next := catalog.NormalizePrice(ch.Value)
			if isLowered(rec.Price, next) {
				lowered = append(lowered, types.PriceChange{
					Id:          rec.Id,
					Description: rec.Description,
					OldPrice:    rec.Price,
					NewPrice:    next,
				})
			}
			rec.Price = next
		default:
			rec.Attributes[ch.Field] = ch.Value
		}
	}
	s.reg = types.NewRegistry(&s.data.Layout, s.data.Records)
	s.generation++
	err := s.persistLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if s.ChangeHandler != nil {
		s.ChangeHandler.GridCommitted(changes)
		if len(lowered) > 0 {
			s.ChangeHandler.PricesLowered(lowered)
		}
	}
	return nil
}

func isLowered(previous, next string) bool {
	if previous == "" || next == "" {
		return false
	}
	if !catalog.ValidPrice(previous) || !catalog.ValidPrice(next) {
		return false
	}
	return sorting.PriceValue(next) < sorting.PriceValue(previous)
}

// Replace swaps the whole grid for a newly uploaded file. Every session built
// on the previous grid is stale after this.
func (s *Store) Replace(r io.Reader) error {
	data, err := catalog.ParseGrid(r)
	if err != nil {
		return err
	}
	return s.Install(data)
}

// Install makes a previously saved grid the current one.
func (s *Store) Install(data *types.BootstrapData) error {
	s.mu.Lock()
	s.installLocked(data)
	generation := s.generation
	err := s.persistLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if s.ChangeHandler != nil {
		s.ChangeHandler.GridReplaced(generation)
	}
	return nil
}

// Export writes the canonical grid in the upload format.
func (s *Store) Export(w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return catalog.WriteGrid(w, s.data)
}
