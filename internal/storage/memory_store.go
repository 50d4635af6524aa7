package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/cab-pooling/internal/models"
)

// MemoryStore keeps all entities in process memory. Atomically runs
// against a deep copy of the state and swaps it in only when the
// closure succeeds, so a failed scope leaves nothing behind. Scopes are
// serialized by a single mutex, which also gives them isolation.
type MemoryStore struct {
	mu    sync.Mutex
	cabs  map[string]*models.Cab
	rides map[string]*models.RideRequest
	pools map[string]*models.RidePool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cabs:  make(map[string]*models.Cab),
		rides: make(map[string]*models.RideRequest),
		pools: make(map[string]*models.RidePool),
	}
}

func (m *MemoryStore) Atomically(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memTx{
		cabs:  cloneCabs(m.cabs),
		rides: cloneRides(m.rides),
		pools: clonePools(m.pools),
	}
	if err := fn(tx); err != nil {
		return err
	}
	m.cabs, m.rides, m.pools = tx.cabs, tx.rides, tx.pools
	return nil
}

func (m *MemoryStore) CreateCab(ctx context.Context, c *models.Cab) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	return m.Atomically(ctx, func(tx Tx) error { return tx.SaveCab(ctx, c) })
}

func (m *MemoryStore) CreateRide(ctx context.Context, r *models.RideRequest) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now()
	r.CreatedAt, r.UpdatedAt = now, now
	return m.Atomically(ctx, func(tx Tx) error { return tx.SaveRide(ctx, r) })
}

func (m *MemoryStore) GetRide(ctx context.Context, id string) (*models.RideRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, fmt.Errorf("ride %s: %w", id, ErrNotFound)
	}
	return cloneRide(r), nil
}

func (m *MemoryStore) ListPools(ctx context.Context) ([]*models.RidePool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.RidePool, 0, len(m.pools))
	for _, p := range m.pools {
		out = append(out, clonePool(p))
	}
	sortPools(out)
	return out, nil
}

// memTx operates on the copied state; commit is the map swap in
// Atomically. Gets hand out copies so only Save makes a change stick.
type memTx struct {
	cabs  map[string]*models.Cab
	rides map[string]*models.RideRequest
	pools map[string]*models.RidePool
}

func (t *memTx) GetCab(ctx context.Context, id string) (*models.Cab, error) {
	c, ok := t.cabs[id]
	if !ok {
		return nil, fmt.Errorf("cab %s: %w", id, ErrNotFound)
	}
	return cloneCab(c), nil
}

func (t *memTx) GetRide(ctx context.Context, id string) (*models.RideRequest, error) {
	r, ok := t.rides[id]
	if !ok {
		return nil, fmt.Errorf("ride %s: %w", id, ErrNotFound)
	}
	return cloneRide(r), nil
}

func (t *memTx) GetPool(ctx context.Context, id string) (*models.RidePool, error) {
	p, ok := t.pools[id]
	if !ok {
		return nil, fmt.Errorf("pool %s: %w", id, ErrNotFound)
	}
	return clonePool(p), nil
}

func (t *memTx) ListActivePools(ctx context.Context) ([]*models.RidePool, error) {
	out := make([]*models.RidePool, 0, len(t.pools))
	for _, p := range t.pools {
		if p.Status == models.PoolActive {
			out = append(out, clonePool(p))
		}
	}
	sortPools(out)
	return out, nil
}

func (t *memTx) FindAvailableCab(ctx context.Context) (*models.Cab, error) {
	avail := make([]*models.Cab, 0)
	for _, c := range t.cabs {
		if c.IsAvailable {
			avail = append(avail, c)
		}
	}
	if len(avail) == 0 {
		return nil, fmt.Errorf("available cab: %w", ErrNotFound)
	}
	sort.Slice(avail, func(i, j int) bool {
		if !avail[i].CreatedAt.Equal(avail[j].CreatedAt) {
			return avail[i].CreatedAt.Before(avail[j].CreatedAt)
		}
		return avail[i].ID < avail[j].ID
	})
	return cloneCab(avail[0]), nil
}

func (t *memTx) SaveCab(ctx context.Context, c *models.Cab) error {
	c.UpdatedAt = time.Now()
	t.cabs[c.ID] = cloneCab(c)
	return nil
}

func (t *memTx) SaveRide(ctx context.Context, r *models.RideRequest) error {
	r.UpdatedAt = time.Now()
	t.rides[r.ID] = cloneRide(r)
	return nil
}

func (t *memTx) SavePool(ctx context.Context, p *models.RidePool) error {
	p.UpdatedAt = time.Now()
	t.pools[p.ID] = clonePool(p)
	return nil
}

func sortPools(pools []*models.RidePool) {
	sort.Slice(pools, func(i, j int) bool {
		if !pools[i].CreatedAt.Equal(pools[j].CreatedAt) {
			return pools[i].CreatedAt.Before(pools[j].CreatedAt)
		}
		return pools[i].ID < pools[j].ID
	})
}

func cloneCab(c *models.Cab) *models.Cab {
	out := *c
	if c.CurrentPoolID != nil {
		id := *c.CurrentPoolID
		out.CurrentPoolID = &id
	}
	return &out
}

func cloneRide(r *models.RideRequest) *models.RideRequest {
	out := *r
	if r.PoolID != nil {
		id := *r.PoolID
		out.PoolID = &id
	}
	return &out
}

func clonePool(p *models.RidePool) *models.RidePool {
	out := *p
	out.Members = append([]string(nil), p.Members...)
	return &out
}

func cloneCabs(in map[string]*models.Cab) map[string]*models.Cab {
	out := make(map[string]*models.Cab, len(in))
	for k, v := range in {
		out[k] = cloneCab(v)
	}
	return out
}

func cloneRides(in map[string]*models.RideRequest) map[string]*models.RideRequest {
	out := make(map[string]*models.RideRequest, len(in))
	for k, v := range in {
		out[k] = cloneRide(v)
	}
	return out
}

func clonePools(in map[string]*models.RidePool) map[string]*models.RidePool {
	out := make(map[string]*models.RidePool, len(in))
	for k, v := range in {
		out[k] = clonePool(v)
	}
	return out
}
