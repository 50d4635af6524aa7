package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/cab-pooling/internal/lock"
	"github.com/example/cab-pooling/internal/models"
	"github.com/example/cab-pooling/internal/storage"
)

type recordedEvents struct{ events []models.PoolEvent }

func (r *recordedEvents) Publish(ev models.PoolEvent) error {
	r.events = append(r.events, ev)
	return nil
}

func newTestEngine() (*Matcher, *Canceller, *storage.MemoryStore, *lock.MemoryLocker) {
	store := storage.NewMemoryStore()
	locker := lock.NewMemoryLocker()
	m := &Matcher{Store: store, Locker: locker}
	c := &Canceller{Store: store, Locker: locker}
	return m, c, store, locker
}

func addCab(t *testing.T, s storage.Store, seats, luggage int) *models.Cab {
	t.Helper()
	cab := &models.Cab{
		DriverName:      "driver",
		VehicleNumber:   "KA-05-" + time.Now().Format("150405.000000"),
		SeatCapacity:    seats,
		LuggageCapacity: luggage,
		IsAvailable:     true,
	}
	if err := s.CreateCab(context.Background(), cab); err != nil {
		t.Fatalf("create cab: %v", err)
	}
	return cab
}

func addRide(t *testing.T, s storage.Store, seats, luggage int, toleranceKm float64, src, dst models.Coord) *models.RideRequest {
	t.Helper()
	ride := &models.RideRequest{
		PassengerName:     "rider",
		PassengerPhone:    "9999",
		Source:            src,
		Destination:       dst,
		SeatRequired:      seats,
		LuggageCount:      luggage,
		DetourToleranceKm: toleranceKm,
		Status:            models.RidePending,
	}
	if err := s.CreateRide(context.Background(), ride); err != nil {
		t.Fatalf("create ride: %v", err)
	}
	return ride
}

func getCab(t *testing.T, s storage.Store, id string) *models.Cab {
	t.Helper()
	var cab *models.Cab
	err := s.Atomically(context.Background(), func(tx storage.Tx) error {
		var err error
		cab, err = tx.GetCab(context.Background(), id)
		return err
	})
	if err != nil {
		t.Fatalf("get cab: %v", err)
	}
	return cab
}

func getPool(t *testing.T, s storage.Store, id string) *models.RidePool {
	t.Helper()
	var p *models.RidePool
	err := s.Atomically(context.Background(), func(tx storage.Tx) error {
		var err error
		p, err = tx.GetPool(context.Background(), id)
		return err
	})
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	return p
}

func TestMatchAllocatesNewPool(t *testing.T) {
	ctx := context.Background()
	m, _, store, _ := newTestEngine()
	cab := addCab(t, store, 4, 6)
	r1 := addRide(t, store, 2, 1, 50, models.Coord{Lat: 0, Lng: 0.1}, models.Coord{})

	p, err := m.Match(ctx, r1.ID)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if p.CabID != cab.ID {
		t.Fatalf("expected cab %s, got %s", cab.ID, p.CabID)
	}
	if len(p.Members) != 1 || p.Members[0] != r1.ID {
		t.Fatalf("unexpected members %v", p.Members)
	}
	if p.TotalSeatsUsed != 2 || p.TotalLuggageUsed != 1 {
		t.Fatalf("unexpected totals seats=%d luggage=%d", p.TotalSeatsUsed, p.TotalLuggageUsed)
	}

	gotCab := getCab(t, store, cab.ID)
	if gotCab.IsAvailable || gotCab.CurrentPoolID == nil || *gotCab.CurrentPoolID != p.ID {
		t.Fatalf("cab not linked to pool: %+v", gotCab)
	}

	gotRide, err := store.GetRide(ctx, r1.ID)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	if gotRide.Status != models.RideMatched || gotRide.PoolID == nil {
		t.Fatalf("ride not matched: %+v", gotRide)
	}
	if gotRide.Price != 150 { // 50 + 10*10, no discount at pool size 1
		t.Fatalf("expected price 150, got %d", gotRide.Price)
	}
}

func TestMatchJoinsBestPoolAndRepricesEveryone(t *testing.T) {
	ctx := context.Background()
	m, _, store, _ := newTestEngine()
	addCab(t, store, 4, 6)
	r1 := addRide(t, store, 2, 1, 50, models.Coord{Lat: 0, Lng: 0.1}, models.Coord{})
	p1, err := m.Match(ctx, r1.ID)
	if err != nil {
		t.Fatalf("match r1: %v", err)
	}

	// pickup detour ~1km plus ride distance ~2km stays inside the 5km tolerance
	r2 := addRide(t, store, 1, 0, 5, models.Coord{Lat: 0.009, Lng: 0}, models.Coord{Lat: 0.027, Lng: 0})
	p2, err := m.Match(ctx, r2.ID)
	if err != nil {
		t.Fatalf("match r2: %v", err)
	}
	if p2.ID != p1.ID {
		t.Fatalf("expected r2 to join pool %s, got %s", p1.ID, p2.ID)
	}
	if len(p2.Members) != 2 || p2.TotalSeatsUsed != 3 || p2.TotalLuggageUsed != 1 {
		t.Fatalf("unexpected pool after join: %+v", p2)
	}

	for _, id := range []string{r1.ID, r2.ID} {
		r, err := store.GetRide(ctx, id)
		if err != nil {
			t.Fatalf("get ride: %v", err)
		}
		if r.Price != 135 { // 150 discounted 10% at pool size 2
			t.Fatalf("expected price 135 for %s, got %d", id, r.Price)
		}
	}
}

func TestMatchRespectsDetourTolerance(t *testing.T) {
	ctx := context.Background()
	m, _, store, _ := newTestEngine()
	addCab(t, store, 4, 6)
	r1 := addRide(t, store, 1, 0, 50, models.Coord{Lat: 0, Lng: 0.1}, models.Coord{})
	if _, err := m.Match(ctx, r1.ID); err != nil {
		t.Fatalf("match r1: %v", err)
	}

	// detour far beyond the 1km tolerance and no second cab
	r2 := addRide(t, store, 1, 0, 1, models.Coord{Lat: 1, Lng: 1}, models.Coord{Lat: 2, Lng: 2})
	_, err := m.Match(ctx, r2.ID)
	if !errors.Is(err, ErrNoAvailableCab) {
		t.Fatalf("expected ErrNoAvailableCab, got %v", err)
	}

	r, _ := store.GetRide(ctx, r2.ID)
	if r.Status != models.RidePending {
		t.Fatalf("failed match must leave ride pending, got %s", r.Status)
	}
}

func TestMatchRespectsCapacity(t *testing.T) {
	ctx := context.Background()
	m, _, store, _ := newTestEngine()
	addCab(t, store, 2, 2)
	r1 := addRide(t, store, 2, 1, 50, models.Coord{Lat: 0, Lng: 0.1}, models.Coord{})
	p1, err := m.Match(ctx, r1.ID)
	if err != nil {
		t.Fatalf("match r1: %v", err)
	}

	cab2 := addCab(t, store, 4, 4)
	r2 := addRide(t, store, 1, 0, 500, models.Coord{Lat: 0.009, Lng: 0}, models.Coord{Lat: 0.027, Lng: 0})
	p2, err := m.Match(ctx, r2.ID)
	if err != nil {
		t.Fatalf("match r2: %v", err)
	}
	if p2.ID == p1.ID {
		t.Fatal("full pool accepted a rider over seat capacity")
	}
	if p2.CabID != cab2.ID {
		t.Fatalf("expected second cab, got %s", p2.CabID)
	}
}

func TestMatchTwiceFailsInvalidState(t *testing.T) {
	ctx := context.Background()
	m, _, store, _ := newTestEngine()
	addCab(t, store, 4, 6)
	r1 := addRide(t, store, 1, 0, 50, models.Coord{Lat: 0, Lng: 0.1}, models.Coord{})
	p, err := m.Match(ctx, r1.ID)
	if err != nil {
		t.Fatalf("match: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := m.Match(ctx, r1.ID); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("rematch %d: expected ErrInvalidState, got %v", i, err)
		}
	}
	if got := getPool(t, store, p.ID); len(got.Members) != 1 {
		t.Fatalf("duplicate membership after rematch: %v", got.Members)
	}
}

func TestMatchNoCab(t *testing.T) {
	ctx := context.Background()
	m, _, store, _ := newTestEngine()
	r1 := addRide(t, store, 1, 0, 50, models.Coord{Lat: 0, Lng: 0.1}, models.Coord{})
	if _, err := m.Match(ctx, r1.ID); !errors.Is(err, ErrNoAvailableCab) {
		t.Fatalf("expected ErrNoAvailableCab, got %v", err)
	}
}

func TestMatchUnknownRide(t *testing.T) {
	m, _, _, _ := newTestEngine()
	if _, err := m.Match(context.Background(), "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMatchLockContentionFallsBackToNewPool(t *testing.T) {
	ctx := context.Background()
	m, _, store, locker := newTestEngine()
	addCab(t, store, 4, 6)
	r1 := addRide(t, store, 1, 0, 50, models.Coord{Lat: 0, Lng: 0.1}, models.Coord{})
	p1, err := m.Match(ctx, r1.ID)
	if err != nil {
		t.Fatalf("match r1: %v", err)
	}

	// another operation holds the best pool's lock
	if ok, _ := locker.Acquire(ctx, lock.PoolKey(p1.ID), time.Minute); !ok {
		t.Fatal("test lock acquire failed")
	}

	cab2 := addCab(t, store, 4, 4)
	r2 := addRide(t, store, 1, 0, 500, models.Coord{Lat: 0.009, Lng: 0}, models.Coord{Lat: 0.027, Lng: 0})
	p2, err := m.Match(ctx, r2.ID)
	if err != nil {
		t.Fatalf("match r2: %v", err)
	}
	if p2.ID == p1.ID {
		t.Fatal("joined a locked pool")
	}
	if p2.CabID != cab2.ID {
		t.Fatalf("expected fallback to cab2, got %s", p2.CabID)
	}
	if got := getPool(t, store, p1.ID); len(got.Members) != 1 {
		t.Fatalf("locked pool mutated: %v", got.Members)
	}
}

func TestMatchLockContentionNoSpareCab(t *testing.T) {
	ctx := context.Background()
	m, _, store, locker := newTestEngine()
	addCab(t, store, 4, 6)
	r1 := addRide(t, store, 1, 0, 50, models.Coord{Lat: 0, Lng: 0.1}, models.Coord{})
	p1, err := m.Match(ctx, r1.ID)
	if err != nil {
		t.Fatalf("match r1: %v", err)
	}
	if ok, _ := locker.Acquire(ctx, lock.PoolKey(p1.ID), time.Minute); !ok {
		t.Fatal("test lock acquire failed")
	}

	r2 := addRide(t, store, 1, 0, 500, models.Coord{Lat: 0.009, Lng: 0}, models.Coord{Lat: 0.027, Lng: 0})
	if _, err := m.Match(ctx, r2.ID); !errors.Is(err, ErrNoAvailableCab) {
		t.Fatalf("expected ErrNoAvailableCab, got %v", err)
	}
}

func TestMatchPublishesEvents(t *testing.T) {
	ctx := context.Background()
	m, _, store, _ := newTestEngine()
	rec := &recordedEvents{}
	m.Events = rec
	addCab(t, store, 4, 6)
	r1 := addRide(t, store, 1, 0, 50, models.Coord{Lat: 0, Lng: 0.1}, models.Coord{})
	if _, err := m.Match(ctx, r1.ID); err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(rec.events) != 1 || rec.events[0].Type != models.EventPoolCreated {
		t.Fatalf("unexpected events %v", rec.events)
	}

	r2 := addRide(t, store, 1, 0, 500, models.Coord{Lat: 0.009, Lng: 0}, models.Coord{Lat: 0.027, Lng: 0})
	if _, err := m.Match(ctx, r2.ID); err != nil {
		t.Fatalf("match r2: %v", err)
	}
	if len(rec.events) != 2 || rec.events[1].Type != models.EventRideMatched {
		t.Fatalf("unexpected events %v", rec.events)
	}
	if rec.events[1].PoolSize != 2 {
		t.Fatalf("expected pool size 2 in event, got %d", rec.events[1].PoolSize)
	}
}
