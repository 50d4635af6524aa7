package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/example/cab-pooling/internal/geo"
	"github.com/example/cab-pooling/internal/lock"
	"github.com/example/cab-pooling/internal/models"
	"github.com/example/cab-pooling/internal/observability"
	"github.com/example/cab-pooling/internal/pricing"
	"github.com/example/cab-pooling/internal/routing"
	"github.com/example/cab-pooling/internal/storage"
)

// DefaultBaseDistanceKm is billed for a ride that never declared a
// base distance.
const DefaultBaseDistanceKm = 10.0

// EventPublisher receives pool lifecycle events after a successful
// commit. Publishing is best-effort.
type EventPublisher interface {
	Publish(ev models.PoolEvent) error
}

// Notifier pushes pool composition changes to the affected driver.
type Notifier interface {
	PoolUpdate(cabID string, u models.PoolUpdate) error
}

// Matcher assigns a pending ride to the active pool with the smallest
// incremental detour, or allocates a new pool from an available cab
// when none qualifies.
type Matcher struct {
	Store   storage.Store
	Locker  lock.Locker
	LockTTL time.Duration

	// BaseDistanceKm substitutes for rides without a stored base
	// distance. Zero means DefaultBaseDistanceKm.
	BaseDistanceKm float64

	Routing    routing.Client // optional road-distance client
	RouteCache *routing.Cache // optional distance cache
	Events     EventPublisher // optional
	Notify     Notifier       // optional
	Logger     *slog.Logger   // optional
}

// Match assigns the PENDING ride to a pool. Every read and write runs
// inside one atomic scope: either the ride, the pool, the cab and all
// sibling prices land together, or none of them do.
func (m *Matcher) Match(ctx context.Context, rideID string) (*models.RidePool, error) {
	start := time.Now()
	var (
		result  *models.RidePool
		created bool
	)
	err := m.Store.Atomically(ctx, func(tx storage.Tx) error {
		ride, err := tx.GetRide(ctx, rideID)
		if err != nil {
			return err
		}
		if ride.Status != models.RidePending {
			return fmt.Errorf("ride %s is %s: %w", rideID, ride.Status, ErrInvalidState)
		}

		best, minDetour, err := m.selectPool(ctx, tx, ride)
		if err != nil {
			return err
		}

		if best != nil {
			err := withPoolLock(ctx, m.Locker, best.ID, m.LockTTL, func() error {
				return m.joinPool(ctx, tx, best, ride, minDetour)
			})
			switch {
			case err == nil:
				result = best
				return nil
			case errors.Is(err, ErrLockContention):
				// Contention on the single best pool falls through to
				// allocating a fresh cab; candidates are not retried.
				observability.LockContentionTotal.Inc()
			default:
				return err
			}
		}

		pool, err := m.createPool(ctx, tx, ride)
		if err != nil {
			return err
		}
		result, created = pool, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.MatchesTotal.Inc()
	observability.MatchLatency.Observe(time.Since(start).Seconds())
	if created {
		observability.PoolsCreatedTotal.Inc()
		observability.PoolsActive.Inc()
	}
	m.afterMatch(rideID, result, created)
	return result, nil
}

// selectPool scans ACTIVE pools for the one adding the least detour
// that the ride's tolerance and the cab's remaining capacity admit.
func (m *Matcher) selectPool(ctx context.Context, tx storage.Tx, ride *models.RideRequest) (*models.RidePool, float64, error) {
	pools, err := tx.ListActivePools(ctx)
	if err != nil {
		return nil, 0, err
	}

	var best *models.RidePool
	minDetour := math.Inf(1)
	for _, p := range pools {
		cab, err := tx.GetCab(ctx, p.CabID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue // data anomaly, not the rider's problem
			}
			return nil, 0, err
		}
		if cab.SeatCapacity-p.TotalSeatsUsed < ride.SeatRequired {
			continue
		}
		if cab.LuggageCapacity-p.TotalLuggageUsed < ride.LuggageCount {
			continue
		}
		if len(p.Members) == 0 {
			// an empty ACTIVE pool violates invariants; skip defensively
			continue
		}
		last, err := tx.GetRide(ctx, p.Members[len(p.Members)-1])
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, 0, err
		}

		pickupDetour := m.distanceKm(last.Destination, ride.Source)
		rideDistance := m.distanceKm(ride.Source, ride.Destination)
		incrementalDetour := pickupDetour + rideDistance

		if incrementalDetour > ride.DetourToleranceKm {
			continue
		}
		if incrementalDetour < minDetour {
			minDetour = incrementalDetour
			best = p
		}
	}
	return best, minDetour, nil
}

func (m *Matcher) joinPool(ctx context.Context, tx storage.Tx, pool *models.RidePool, ride *models.RideRequest, detourKm float64) error {
	pool.Members = append(pool.Members, ride.ID)
	pool.TotalSeatsUsed += ride.SeatRequired
	pool.TotalLuggageUsed += ride.LuggageCount
	pool.EstimatedRouteDistanceKm += detourKm
	if err := tx.SavePool(ctx, pool); err != nil {
		return err
	}

	ride.Status = models.RideMatched
	ride.PoolID = &pool.ID
	if err := tx.SaveRide(ctx, ride); err != nil {
		return err
	}

	return repriceMembers(ctx, tx, pool, m.baseKm())
}

func (m *Matcher) createPool(ctx context.Context, tx storage.Tx, ride *models.RideRequest) (*models.RidePool, error) {
	cab, err := tx.FindAvailableCab(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoAvailableCab
		}
		return nil, err
	}

	pool := &models.RidePool{
		ID:                       uuid.NewString(),
		CabID:                    cab.ID,
		Members:                  []string{ride.ID},
		TotalSeatsUsed:           ride.SeatRequired,
		TotalLuggageUsed:         ride.LuggageCount,
		EstimatedRouteDistanceKm: m.distanceKm(ride.Source, ride.Destination),
		Status:                   models.PoolActive,
		CreatedAt:                time.Now(),
	}
	if err := tx.SavePool(ctx, pool); err != nil {
		return nil, err
	}

	cab.IsAvailable = false
	cab.CurrentPoolID = &pool.ID
	if err := tx.SaveCab(ctx, cab); err != nil {
		return nil, err
	}

	ride.Status = models.RideMatched
	ride.PoolID = &pool.ID
	ride.Price = pricing.Price(memberBaseKm(ride, m.baseKm()), 0, 1)
	if err := tx.SaveRide(ctx, ride); err != nil {
		return nil, err
	}
	return pool, nil
}

// afterMatch fans out the event and the driver notification once the
// scope has committed; both are best-effort.
func (m *Matcher) afterMatch(rideID string, pool *models.RidePool, created bool) {
	evType := models.EventRideMatched
	action := "joined"
	if created {
		evType = models.EventPoolCreated
	}
	if m.Events != nil {
		_ = m.Events.Publish(models.PoolEvent{
			Type:     evType,
			RideID:   rideID,
			PoolID:   pool.ID,
			CabID:    pool.CabID,
			PoolSize: len(pool.Members),
			At:       time.Now(),
		})
	}
	if m.Notify != nil {
		_ = m.Notify.PoolUpdate(pool.CabID, models.PoolUpdate{
			PoolID:           pool.ID,
			CabID:            pool.CabID,
			Action:           action,
			PoolSize:         len(pool.Members),
			TotalSeatsUsed:   pool.TotalSeatsUsed,
			TotalLuggageUsed: pool.TotalLuggageUsed,
		})
	}
	if m.Logger != nil {
		m.Logger.Info("ride matched", "ride_id", rideID, "pool_id", pool.ID, "pool_size", len(pool.Members), "new_pool", created)
	}
}

// distanceKm prefers the routing client when one is wired, falling
// back to great-circle distance.
func (m *Matcher) distanceKm(a, b models.Coord) float64 {
	if m.RouteCache != nil {
		if v, ok := m.RouteCache.Get(a, b); ok {
			return v
		}
	}
	if m.Routing != nil {
		if v, err := m.Routing.DistanceKm(a, b); err == nil {
			if m.RouteCache != nil {
				m.RouteCache.Set(a, b, v)
			}
			return v
		}
	}
	return geo.DistanceKm(a, b)
}

func (m *Matcher) baseKm() float64 {
	if m.BaseDistanceKm > 0 {
		return m.BaseDistanceKm
	}
	return DefaultBaseDistanceKm
}

// repriceMembers recomputes every member's fare at the pool's current
// size. Detour never enters the fare; it gates admission only.
func repriceMembers(ctx context.Context, tx storage.Tx, pool *models.RidePool, defaultBaseKm float64) error {
	size := len(pool.Members)
	for _, id := range pool.Members {
		member, err := tx.GetRide(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return err
		}
		member.Price = pricing.Price(memberBaseKm(member, defaultBaseKm), 0, size)
		if err := tx.SaveRide(ctx, member); err != nil {
			return err
		}
	}
	return nil
}

func memberBaseKm(r *models.RideRequest, fallback float64) float64 {
	if r.BaseDistanceKm > 0 {
		return r.BaseDistanceKm
	}
	return fallback
}
