// Concurrency tests for the pool engine; run with -race.
package pool

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/example/cab-pooling/internal/models"
)

func TestConcurrentMatchesHoldCapacityInvariant(t *testing.T) {
	ctx := context.Background()
	m, _, store, _ := newTestEngine()
	addCab(t, store, 4, 10)

	const riders = 6
	rideIDs := make([]string, 0, riders)
	for i := 0; i < riders; i++ {
		r := addRide(t, store, 1, 0, 10000, models.Coord{Lat: 0, Lng: 0.1}, models.Coord{})
		rideIDs = append(rideIDs, r.ID)
	}

	var wg sync.WaitGroup
	errs := make(chan error, riders)
	for _, id := range rideIDs {
		wg.Add(1)
		go func(rideID string) {
			defer wg.Done()
			_, err := m.Match(ctx, rideID)
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	matched := 0
	for err := range errs {
		if err == nil {
			matched++
			continue
		}
		if !errors.Is(err, ErrNoAvailableCab) && !errors.Is(err, ErrLockContention) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if matched == 0 {
		t.Fatal("no ride matched at all")
	}

	pools, err := store.ListPools(ctx)
	if err != nil {
		t.Fatalf("list pools: %v", err)
	}
	totalMembers := 0
	for _, p := range pools {
		if p.Status != models.PoolActive {
			continue
		}
		cab := getCab(t, store, p.CabID)
		if p.TotalSeatsUsed > cab.SeatCapacity {
			t.Fatalf("seat capacity exceeded: %d > %d", p.TotalSeatsUsed, cab.SeatCapacity)
		}
		if p.TotalLuggageUsed > cab.LuggageCapacity {
			t.Fatalf("luggage capacity exceeded: %d > %d", p.TotalLuggageUsed, cab.LuggageCapacity)
		}
		seats := 0
		for _, id := range p.Members {
			r, err := store.GetRide(ctx, id)
			if err != nil {
				t.Fatalf("get member: %v", err)
			}
			if r.Status != models.RideMatched || r.PoolID == nil || *r.PoolID != p.ID {
				t.Fatalf("member/back-reference diverged: %+v", r)
			}
			seats += r.SeatRequired
		}
		if seats != p.TotalSeatsUsed {
			t.Fatalf("totals inconsistent with members: %d != %d", seats, p.TotalSeatsUsed)
		}
		totalMembers += len(p.Members)
	}
	if totalMembers != matched {
		t.Fatalf("matched %d rides but pools hold %d members", matched, totalMembers)
	}
}

func TestConcurrentMatchVsCancel(t *testing.T) {
	ctx := context.Background()
	m, c, store, _ := newTestEngine()
	addCab(t, store, 4, 10)
	r1 := addRide(t, store, 1, 0, 10000, models.Coord{Lat: 0, Lng: 0.1}, models.Coord{})
	if _, err := m.Match(ctx, r1.ID); err != nil {
		t.Fatalf("match r1: %v", err)
	}
	r2 := addRide(t, store, 1, 0, 10000, models.Coord{Lat: 0.009, Lng: 0}, models.Coord{Lat: 0.027, Lng: 0})

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := m.Match(ctx, r2.ID)
		errs <- err
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- c.Cancel(ctx, r1.ID)
	}()
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil && !errors.Is(err, ErrLockContention) && !errors.Is(err, ErrNoAvailableCab) {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// whatever interleaving won, no pool may disagree with its members
	pools, _ := store.ListPools(ctx)
	for _, p := range pools {
		if p.Status != models.PoolActive {
			continue
		}
		seats := 0
		for _, id := range p.Members {
			r, err := store.GetRide(ctx, id)
			if err != nil {
				t.Fatalf("get member: %v", err)
			}
			seats += r.SeatRequired
		}
		if seats != p.TotalSeatsUsed {
			t.Fatalf("totals inconsistent: %d != %d", seats, p.TotalSeatsUsed)
		}
	}
}
