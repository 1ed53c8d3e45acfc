package report

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ricesearch/fairrank/internal/config"
	apperrors "github.com/ricesearch/fairrank/internal/pkg/errors"
)

// DefaultListLimit is used when List is called without a positive limit.
const DefaultListLimit = 20

// Store keeps reports.
type Store interface {
	// Save stores a report under its ID.
	Save(ctx context.Context, r *Report) error

	// Get returns a report by ID.
	Get(ctx context.Context, id string) (*Report, error)

	// List returns up to limit report summaries, newest first.
	List(ctx context.Context, limit int) ([]Summary, error)

	// Close releases resources.
	Close() error
}

// NewStore creates a store based on configuration.
func NewStore(cfg config.StoreConfig) (Store, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemoryStore(cfg.MaxItems, cfg.TTL), nil
	case "redis":
		return NewRedisStore(cfg)
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}

func notFound(id string) error {
	return apperrors.NotFoundError("report").WithDetail("id", id)
}

// MemoryStore is an in-process store. It keeps at most maxItems reports,
// dropping the oldest first.
type MemoryStore struct {
	mu       sync.RWMutex
	reports  map[string]*Report
	order    []string // oldest first
	maxItems int
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore creates a memory store. maxItems <= 0 means unbounded and
// ttl <= 0 means reports never expire.
func NewMemoryStore(maxItems int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		reports:  make(map[string]*Report),
		maxItems: maxItems,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Save stores a report.
func (s *MemoryStore) Save(ctx context.Context, r *Report) error {
	if r == nil || r.ID == "" {
		return apperrors.ValidationError("report must have an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reports[r.ID]; !exists {
		s.order = append(s.order, r.ID)
	}
	s.reports[r.ID] = r

	if s.maxItems > 0 {
		for len(s.order) > s.maxItems {
			delete(s.reports, s.order[0])
			s.order = s.order[1:]
		}
	}
	return nil
}

// Get returns a report by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reports[id]
	if !ok || s.expired(r) {
		return nil, notFound(id)
	}
	return r, nil
}

// List returns report summaries, newest first.
func (s *MemoryStore) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]Summary, 0, min(limit, len(s.reports)))
	for _, r := range s.reports {
		if !s.expired(r) {
			summaries = append(summaries, r.Summary())
		}
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	if len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) expired(r *Report) bool {
	return s.ttl > 0 && s.now().Sub(r.CreatedAt) > s.ttl
}
