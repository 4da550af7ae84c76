// Package storage implements the postgres repositories behind the core
// services. Row structs are kept separate from the domain models so nested
// coordinates can be flattened into columns.
package storage

import (
	"time"

	"github.com/example/parcelmatch/internal/models"
)

type packageRow struct {
	ID              string    `db:"id"`
	CustomerID      string    `db:"customer_id"`
	PickupLat       float64   `db:"pickup_lat"`
	PickupLon       float64   `db:"pickup_lon"`
	DeliveryLat     float64   `db:"delivery_lat"`
	DeliveryLon     float64   `db:"delivery_lon"`
	PickupAddress   string    `db:"pickup_address"`
	DeliveryAddress string    `db:"delivery_address"`
	SizeTier        string    `db:"size_tier"`
	PriceOffered    float64   `db:"price_offered"`
	WeightKg        float64   `db:"weight_kg"`
	Status          string    `db:"status"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r packageRow) toModel() models.Package {
	return models.Package{
		ID:              r.ID,
		CustomerID:      r.CustomerID,
		Pickup:          models.Coord{Lat: r.PickupLat, Lon: r.PickupLon},
		Delivery:        models.Coord{Lat: r.DeliveryLat, Lon: r.DeliveryLon},
		PickupAddress:   r.PickupAddress,
		DeliveryAddress: r.DeliveryAddress,
		SizeTier:        models.CapacityTier(r.SizeTier),
		PriceOffered:    r.PriceOffered,
		WeightKg:        r.WeightKg,
		Status:          models.PackageStatus(r.Status),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

type tripRow struct {
	ID                 string    `db:"id"`
	DriverID           string    `db:"driver_id"`
	OriginLat          float64   `db:"origin_lat"`
	OriginLon          float64   `db:"origin_lon"`
	DestinationLat     float64   `db:"destination_lat"`
	DestinationLon     float64   `db:"destination_lon"`
	OriginAddress      string    `db:"origin_address"`
	DestinationAddress string    `db:"destination_address"`
	DepartureTime      time.Time `db:"departure_time"`
	CapacityTier       string    `db:"capacity_tier"`
	Status             string    `db:"status"`
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

func (r tripRow) toModel() models.Trip {
	return models.Trip{
		ID:                 r.ID,
		DriverID:           r.DriverID,
		Origin:             models.Coord{Lat: r.OriginLat, Lon: r.OriginLon},
		Destination:        models.Coord{Lat: r.DestinationLat, Lon: r.DestinationLon},
		OriginAddress:      r.OriginAddress,
		DestinationAddress: r.DestinationAddress,
		DepartureTime:      r.DepartureTime,
		CapacityTier:       models.CapacityTier(r.CapacityTier),
		Status:             models.TripStatus(r.Status),
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

type bidRow struct {
	ID               string    `db:"id"`
	PackageID        string    `db:"package_id"`
	DriverID         string    `db:"driver_id"`
	TripID           *string   `db:"trip_id"`
	Amount           float64   `db:"amount"`
	Message          string    `db:"message"`
	Status           string    `db:"status"`
	CommissionAmount float64   `db:"commission_amount"`
	DriverEarnings   float64   `db:"driver_earnings"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (r bidRow) toModel() models.Bid {
	return models.Bid{
		ID:               r.ID,
		PackageID:        r.PackageID,
		DriverID:         r.DriverID,
		TripID:           r.TripID,
		Amount:           r.Amount,
		Message:          r.Message,
		Status:           models.BidStatus(r.Status),
		CommissionAmount: r.CommissionAmount,
		DriverEarnings:   r.DriverEarnings,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type driverRow struct {
	UserID          string  `db:"user_id"`
	Verified        bool    `db:"verified"`
	Rating          float64 `db:"rating"`
	TotalDeliveries int     `db:"total_deliveries"`
}

func (r driverRow) toModel() models.DriverProfile {
	return models.DriverProfile{
		UserID:          r.UserID,
		Verified:        r.Verified,
		Rating:          r.Rating,
		TotalDeliveries: r.TotalDeliveries,
	}
}

type walletRow struct {
	UserID           string    `db:"user_id"`
	AvailableBalance float64   `db:"available_balance"`
	ReservedBalance  float64   `db:"reserved_balance"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (r walletRow) toModel() models.Wallet {
	return models.Wallet{
		UserID:           r.UserID,
		AvailableBalance: r.AvailableBalance,
		ReservedBalance:  r.ReservedBalance,
		UpdatedAt:        r.UpdatedAt,
	}
}

type reservationRow struct {
	ID         string    `db:"id"`
	DriverID   string    `db:"driver_id"`
	TripID     *string   `db:"trip_id"`
	Amount     float64   `db:"amount"`
	Percentage float64   `db:"percentage"`
	Status     string    `db:"status"`
	ExpiresAt  time.Time `db:"expires_at"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r reservationRow) toModel() models.CommissionReservation {
	return models.CommissionReservation{
		ID:         r.ID,
		DriverID:   r.DriverID,
		TripID:     r.TripID,
		Amount:     r.Amount,
		Percentage: r.Percentage,
		Status:     models.ReservationStatus(r.Status),
		ExpiresAt:  r.ExpiresAt,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}
