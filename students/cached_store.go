package students

import (
	"context"
	"fmt"
	"sync"

	"github.com/liamcoop/studentrisk/fairness"
	"github.com/liamcoop/studentrisk/features"
	"github.com/liamcoop/studentrisk/internal/logger"
)

// CachedStore wraps a Store and serves its labeled students as a fairness
// dataset. Writes through the wrapper invalidate the cached dataset.
type CachedStore struct {
	Store
	cache DatasetCache

	// generation counts invalidations. A dataset read under an older
	// generation is returned but never cached.
	mu         sync.Mutex
	generation uint64
}

func NewCachedStore(store Store, cache DatasetCache) *CachedStore {
	return &CachedStore{Store: store, cache: cache}
}

func (s *CachedStore) Put(ctx context.Context, st *Student) error {
	defer s.invalidate()
	return s.Store.Put(ctx, st)
}

func (s *CachedStore) PutMany(ctx context.Context, students []*Student) error {
	defer s.invalidate()
	return s.Store.PutMany(ctx, students)
}

func (s *CachedStore) DeleteAll(ctx context.Context) error {
	defer s.invalidate()
	return s.Store.DeleteAll(ctx)
}

func (s *CachedStore) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.cache.Invalidate()
}

func (s *CachedStore) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// setIfCurrent caches ds unless a write invalidated the store after gen was
// read.
func (s *CachedStore) setIfCurrent(gen uint64, ds *fairness.Dataset) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != gen {
		return false
	}
	s.cache.Set(ds)
	return true
}

// Dataset implements fairness.Source. An empty store has no metrics data.
// Stored records are validated like live input; a record that fails is
// reported as a *fairness.RecordError.
func (s *CachedStore) Dataset(ctx context.Context) (*fairness.Dataset, error) {
	if ds := s.cache.Get(); ds != nil {
		return ds, nil
	}

	gen := s.currentGeneration()
	labeled, err := s.Store.ListLabeled(ctx)
	if err != nil {
		return nil, err
	}
	if len(labeled) == 0 {
		return nil, fairness.ErrMetricsDataUnavailable
	}

	examples := make([]fairness.Example, len(labeled))
	for i, st := range labeled {
		rec, err := features.ParseStudentRecord(st.Record())
		if err != nil {
			return nil, &fairness.RecordError{Row: i, Err: fmt.Errorf("student %s: %w", st.RollNo, err)}
		}
		examples[i] = fairness.Example{Record: rec, Target: *st.Target}
	}
	ds := fairness.NewDataset(examples)
	if !s.setIfCurrent(gen, ds) {
		logger.Debug("store changed while loading the reference dataset, not caching it")
	}

	logger.Debug("reference dataset loaded from store", "size", ds.Len())
	return ds, nil
}
