package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"threatrelay/pkg/models"
)

// ErrNotFound reports a missing schedule.
var ErrNotFound = errors.New("schedule not found")

// Store persists schedules. The poller is the only writer of execution
// timestamps; operators mutate IsActive and Frequency through Update.
type Store interface {
	Insert(ctx context.Context, s *models.Schedule) error
	Get(ctx context.Context, id string) (*models.Schedule, error)
	List(ctx context.Context, activeOnly bool) ([]*models.Schedule, error)
	Update(ctx context.Context, s *models.Schedule) error
	Delete(ctx context.Context, id string) error

	// Due returns active schedules with NextExecution at or before now.
	Due(ctx context.Context, now time.Time) ([]*models.Schedule, error)

	// Advance writes the post-firing timestamps for one schedule.
	Advance(ctx context.Context, id string, last, next time.Time) error

	Close() error
}

// MemoryStore is an in-process schedule store for tests and single-node
// use.
type MemoryStore struct {
	mu        sync.RWMutex
	schedules map[string]models.Schedule
}

// NewMemoryStore creates an empty in-memory schedule store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{schedules: make(map[string]models.Schedule)}
}

// Insert adds a schedule.
func (s *MemoryStore) Insert(ctx context.Context, sched *models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sched.ID] = *sched
	return nil
}

// Get returns one schedule by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sched, ok := s.schedules[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sched, nil
}

// List returns schedules, optionally only active ones, ordered by ID.
func (s *MemoryStore) List(ctx context.Context, activeOnly bool) ([]*models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		if activeOnly && !sched.IsActive {
			continue
		}
		copied := sched
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Update replaces a schedule.
func (s *MemoryStore) Update(ctx context.Context, sched *models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[sched.ID]; !ok {
		return ErrNotFound
	}
	s.schedules[sched.ID] = *sched
	return nil
}

// Delete removes a schedule.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[id]; !ok {
		return ErrNotFound
	}
	delete(s.schedules, id)
	return nil
}

// Due returns active schedules whose NextExecution has arrived.
func (s *MemoryStore) Due(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Schedule
	for _, sched := range s.schedules {
		if sched.Due(now) {
			copied := sched
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Advance writes post-firing timestamps.
func (s *MemoryStore) Advance(ctx context.Context, id string, last, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[id]
	if !ok {
		return ErrNotFound
	}
	sched.LastExecution = last
	sched.NextExecution = next
	sched.UpdatedAt = last
	s.schedules[id] = sched
	return nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
