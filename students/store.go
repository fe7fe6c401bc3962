package students

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/liamcoop/studentrisk/features"
)

// Store persists student records.
type Store interface {
	// Get returns the student with the roll number or ErrStudentNotFound.
	Get(ctx context.Context, rollNo string) (*Student, error)

	// Put inserts or replaces one student.
	Put(ctx context.Context, s *Student) error

	// PutMany inserts or replaces students atomically.
	PutMany(ctx context.Context, students []*Student) error

	// DeleteAll removes every student.
	DeleteAll(ctx context.Context) error

	// ListLabeled returns students with a known outcome ordered by roll number.
	ListLabeled(ctx context.Context) ([]*Student, error)
}

// InMemoryStore implements Store with a map. Safe for concurrent use.
type InMemoryStore struct {
	students map[string]*Student
	mu       sync.RWMutex
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{students: make(map[string]*Student)}
}

func (s *InMemoryStore) Get(ctx context.Context, rollNo string) (*Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.students[rollNo]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStudentNotFound, rollNo)
	}
	return cloneStudent(st), nil
}

// Put keeps the original CreatedAt when replacing a student.
func (s *InMemoryStore) Put(ctx context.Context, st *Student) error {
	if err := validateStudent(st); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(st, time.Now())
	return nil
}

func (s *InMemoryStore) PutMany(ctx context.Context, students []*Student) error {
	for _, st := range students {
		if err := validateStudent(st); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, st := range students {
		s.put(st, now)
	}
	return nil
}

func (s *InMemoryStore) put(st *Student, now time.Time) {
	c := cloneStudent(st)
	c.CreatedAt = now
	if existing, ok := s.students[st.RollNo]; ok {
		c.CreatedAt = existing.CreatedAt
	}
	c.UpdatedAt = now
	s.students[st.RollNo] = c
}

func (s *InMemoryStore) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students = make(map[string]*Student)
	return nil
}

func (s *InMemoryStore) ListLabeled(ctx context.Context) ([]*Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Student
	for _, st := range s.students {
		if st.Labeled() {
			out = append(out, cloneStudent(st))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RollNo < out[j].RollNo })
	return out, nil
}

func cloneStudent(st *Student) *Student {
	c := *st
	c.Attributes = make(features.Record, len(st.Attributes))
	for k, v := range st.Attributes {
		c.Attributes[k] = v
	}
	if st.Target != nil {
		c.Target = labelPtr(*st.Target)
	}
	return &c
}
