package customer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps customers in process memory. It backs local runs without
// DATABASE_URL and the tests.
type MemoryStore struct {
	mu      sync.RWMutex
	byBrand map[string][]Customer
	emails  map[string]map[string]int // brand -> email -> index into byBrand
	now     func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byBrand: make(map[string][]Customer),
		emails:  make(map[string]map[string]int),
		now:     time.Now,
	}
}

func (s *MemoryStore) FindByEmail(ctx context.Context, brandID, email string) (*Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.emails[brandID][email]
	if !ok {
		return nil, ErrNotFound
	}
	c := s.byBrand[brandID][idx]
	return &c, nil
}

func (s *MemoryStore) ExistingEmails(ctx context.Context, brandID string, emails []string) (map[string]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := make(map[string]bool)
	for _, e := range emails {
		if _, ok := s.emails[brandID][e]; ok {
			found[e] = true
		}
	}
	return found, nil
}

func (s *MemoryStore) Create(ctx context.Context, c *Customer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.emails[c.BrandID][c.Email]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, c.Email)
	}
	if s.emails[c.BrandID] == nil {
		s.emails[c.BrandID] = make(map[string]int)
	}

	now := s.now()
	c.ID = uuid.NewString()
	c.CreatedAt = now
	c.UpdatedAt = now

	s.emails[c.BrandID][c.Email] = len(s.byBrand[c.BrandID])
	s.byBrand[c.BrandID] = append(s.byBrand[c.BrandID], *c)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, brandID string) ([]Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Customer, len(s.byBrand[brandID]))
	copy(out, s.byBrand[brandID])
	return out, nil
}
