package store

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/chartloom-cli/internal/analysis"
)

// ErrNotFound is returned for unknown or evicted dataset ids.
var ErrNotFound = errors.New("dataset not found")

// Dataset is one uploaded and classified table.
type Dataset struct {
	ID         string
	Filename   string
	Table      *analysis.Table
	Kinds      analysis.ColumnKinds
	Defaults   analysis.Defaults
	UploadedAt time.Time

	lastUsed time.Time
}

// Options bounds the store. Zero values disable the limit.
type Options struct {
	Capacity int
	TTL      time.Duration
	Logger   *slog.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Store keeps datasets in memory keyed by generated ids. It is safe for
// concurrent use. When full, the least recently used dataset is evicted.
type Store struct {
	mu      sync.Mutex
	opt     Options
	entries map[string]*Dataset
	// OnEvict, when set, is called after each eviction with the reason
	// ("capacity" or "expired"). It runs with the store lock held.
	OnEvict func(reason string)
}

// New creates an empty store.
func New(opt Options) *Store {
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.DiscardHandler)
	}
	return &Store{opt: opt, entries: map[string]*Dataset{}}
}

// Add stores an already classified table under a new id.
func (s *Store) Add(filename string, t *analysis.Table, kinds analysis.ColumnKinds) *Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.opt.Now()
	s.sweepLocked(now)
	if s.opt.Capacity > 0 {
		for len(s.entries) >= s.opt.Capacity {
			s.evictOldestLocked()
		}
	}
	d := &Dataset{
		ID:         uuid.NewString(),
		Filename:   filename,
		Table:      t,
		Kinds:      kinds,
		Defaults:   analysis.SelectDefaults(kinds),
		UploadedAt: now,
		lastUsed:   now,
	}
	s.entries[d.ID] = d
	s.opt.Logger.Debug("dataset stored", "id", d.ID, "file", filename, "rows", t.Rows(), "cols", t.Cols())
	return d
}

// Get returns the dataset and marks it as recently used.
func (s *Store) Get(id string) (*Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	now := s.opt.Now()
	if s.expired(d, now) {
		s.removeLocked(id, "expired")
		return nil, ErrNotFound
	}
	d.lastUsed = now
	return d, nil
}

// Delete removes a dataset. It reports ErrNotFound for unknown ids.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return ErrNotFound
	}
	delete(s.entries, id)
	return nil
}

// List returns all live datasets, oldest upload first.
func (s *Store) List() []*Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(s.opt.Now())
	out := make([]*Dataset, 0, len(s.entries))
	for _, d := range s.entries {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UploadedAt.Before(out[j].UploadedAt)
	})
	return out
}

// Len returns the number of stored datasets, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep evicts expired datasets and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.opt.Now())
}

func (s *Store) expired(d *Dataset, now time.Time) bool {
	return s.opt.TTL > 0 && now.Sub(d.lastUsed) > s.opt.TTL
}

func (s *Store) sweepLocked(now time.Time) int {
	n := 0
	for id, d := range s.entries {
		if s.expired(d, now) {
			s.removeLocked(id, "expired")
			n++
		}
	}
	return n
}

func (s *Store) evictOldestLocked() {
	var oldest *Dataset
	for _, d := range s.entries {
		if oldest == nil || d.lastUsed.Before(oldest.lastUsed) {
			oldest = d
		}
	}
	if oldest != nil {
		s.removeLocked(oldest.ID, "capacity")
	}
}

func (s *Store) removeLocked(id, reason string) {
	delete(s.entries, id)
	s.opt.Logger.Info("dataset evicted", "id", id, "reason", reason)
	if s.OnEvict != nil {
		s.OnEvict(reason)
	}
}
