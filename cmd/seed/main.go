// Seed loads a handful of demo cabs and pending rides into postgres
// for local experimentation.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	_ "github.com/lib/pq"

	"github.com/example/cab-pooling/internal/models"
	"github.com/example/cab-pooling/internal/storage"
)

func main() {
	dsn := flag.String("dsn", os.Getenv("PG_DSN"), "postgres DSN")
	flag.Parse()
	if *dsn == "" {
		log.Fatal("PG_DSN or -dsn required")
	}

	store, err := storage.NewPostgresStore(*dsn)
	if err != nil {
		log.Fatalf("postgres connect: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	cabs := []*models.Cab{
		{DriverName: "Ramesh", VehicleNumber: "KA-01-AB-1234", SeatCapacity: 4, LuggageCapacity: 6, IsAvailable: true},
		{DriverName: "Suresh", VehicleNumber: "KA-02-CD-5678", SeatCapacity: 6, LuggageCapacity: 8, IsAvailable: true},
		{DriverName: "Mahesh", VehicleNumber: "KA-03-EF-9012", SeatCapacity: 4, LuggageCapacity: 4, IsAvailable: true},
	}
	for _, c := range cabs {
		if err := store.CreateCab(ctx, c); err != nil {
			log.Fatalf("seed cab %s: %v", c.VehicleNumber, err)
		}
		log.Printf("cab %s -> %s", c.VehicleNumber, c.ID)
	}

	rides := []*models.RideRequest{
		{PassengerName: "Asha", PassengerPhone: "9000000001", Source: models.Coord{Lat: 12.9716, Lng: 77.5946}, Destination: models.Coord{Lat: 12.9352, Lng: 77.6245}, SeatRequired: 2, LuggageCount: 1, DetourToleranceKm: 50, BaseDistanceKm: 10, Status: models.RidePending},
		{PassengerName: "Vikram", PassengerPhone: "9000000002", Source: models.Coord{Lat: 12.9344, Lng: 77.6260}, Destination: models.Coord{Lat: 12.9121, Lng: 77.6446}, SeatRequired: 1, LuggageCount: 0, DetourToleranceKm: 5, BaseDistanceKm: 8, Status: models.RidePending},
	}
	for _, r := range rides {
		if err := store.CreateRide(ctx, r); err != nil {
			log.Fatalf("seed ride %s: %v", r.PassengerName, err)
		}
		log.Printf("ride %s -> %s", r.PassengerName, r.ID)
	}

	log.Println("seed complete")
}
