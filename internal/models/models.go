package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// CapacityTier is the ordered size class used to gate package-to-trip
// eligibility. The order is SMALL < MEDIUM < LARGE < EXTRA_LARGE.
type CapacityTier string

const (
	TierSmall      CapacityTier = "SMALL"
	TierMedium     CapacityTier = "MEDIUM"
	TierLarge      CapacityTier = "LARGE"
	TierExtraLarge CapacityTier = "EXTRA_LARGE"
)

var tierRank = map[CapacityTier]int{
	TierSmall:      1,
	TierMedium:     2,
	TierLarge:      3,
	TierExtraLarge: 4,
}

// Rank returns the position of the tier in the size order, 0 for unknown tiers.
func (t CapacityTier) Rank() int { return tierRank[t] }

// Fits reports whether a trip with this capacity tier can carry a package
// of the given tier.
func (t CapacityTier) Fits(pkg CapacityTier) bool {
	return t.Rank() > 0 && pkg.Rank() > 0 && t.Rank() >= pkg.Rank()
}

func (t CapacityTier) Valid() bool { return t.Rank() > 0 }

type PackageStatus string

const (
	PackagePending   PackageStatus = "PENDING"
	PackageAccepted  PackageStatus = "ACCEPTED"
	PackageInTransit PackageStatus = "IN_TRANSIT"
	PackageDelivered PackageStatus = "DELIVERED"
	PackageFailed    PackageStatus = "FAILED"
	PackageCancelled PackageStatus = "CANCELLED"
)

type TripStatus string

const (
	TripScheduled  TripStatus = "SCHEDULED"
	TripInProgress TripStatus = "IN_PROGRESS"
	TripCompleted  TripStatus = "COMPLETED"
	TripCancelled  TripStatus = "CANCELLED"
)

type BidStatus string

const (
	BidPending   BidStatus = "PENDING"
	BidAccepted  BidStatus = "ACCEPTED"
	BidRejected  BidStatus = "REJECTED"
	BidCancelled BidStatus = "CANCELLED"
)

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "PENDING"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationReleased  ReservationStatus = "RELEASED"
)

type Package struct {
	ID              string        `json:"id"`
	CustomerID      string        `json:"customer_id"`
	Pickup          Coord         `json:"pickup"`
	Delivery        Coord         `json:"delivery"`
	PickupAddress   string        `json:"pickup_address"`
	DeliveryAddress string        `json:"delivery_address"`
	SizeTier        CapacityTier  `json:"size_tier"`
	PriceOffered    float64       `json:"price_offered"`
	WeightKg        float64       `json:"weight_kg"`
	Status          PackageStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

type Trip struct {
	ID                 string       `json:"id"`
	DriverID           string       `json:"driver_id"`
	Origin             Coord        `json:"origin"`
	Destination        Coord        `json:"destination"`
	OriginAddress      string       `json:"origin_address"`
	DestinationAddress string       `json:"destination_address"`
	DepartureTime      time.Time    `json:"departure_time"`
	CapacityTier       CapacityTier `json:"capacity_tier"`
	Status             TripStatus   `json:"status"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// Bid is a driver's offer to carry a specific package, optionally tied to
// one of the driver's scheduled trips. PENDING is the only non-terminal state.
type Bid struct {
	ID               string    `json:"id"`
	PackageID        string    `json:"package_id"`
	DriverID         string    `json:"driver_id"`
	TripID           *string   `json:"trip_id,omitempty"`
	Amount           float64   `json:"amount"`
	Message          string    `json:"message,omitempty"`
	Status           BidStatus `json:"status"`
	CommissionAmount float64   `json:"commission_amount"`
	DriverEarnings   float64   `json:"driver_earnings"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type DriverProfile struct {
	UserID          string  `json:"user_id"`
	Verified        bool    `json:"verified"`
	Rating          float64 `json:"rating"` // 0..5, 0 when unrated
	TotalDeliveries int     `json:"total_deliveries"`
}

type Wallet struct {
	UserID           string    `json:"user_id"`
	AvailableBalance float64   `json:"available_balance"`
	ReservedBalance  float64   `json:"reserved_balance"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CommissionReservation is a temporary hold of commission funds against a
// driver wallet. A PENDING reservation holds Amount against the wallet's
// reserved balance until confirmed, released, or swept after expiry.
type CommissionReservation struct {
	ID         string            `json:"id"`
	DriverID   string            `json:"driver_id"`
	TripID     *string           `json:"trip_id,omitempty"`
	Amount     float64           `json:"amount"`
	Percentage float64           `json:"percentage"`
	Status     ReservationStatus `json:"status"`
	ExpiresAt  time.Time         `json:"expires_at"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

type CommissionTransaction struct {
	ID            string    `json:"id"`
	DriverID      string    `json:"driver_id"`
	ReservationID string    `json:"reservation_id"`
	Amount        float64   `json:"amount"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// PackageTripMatch is the ephemeral output of a matching call. It is never
// persisted; callers consume it immediately, e.g. to suggest a bid.
type PackageTripMatch struct {
	PackageID             string    `json:"package_id"`
	TripID                string    `json:"trip_id"`
	DriverID              string    `json:"driver_id"`
	MatchScore            float64   `json:"match_score"`
	PickupDistanceKm      float64   `json:"pickup_distance_km"`
	DeliveryDistanceKm    float64   `json:"delivery_distance_km"`
	TimeCompatibility     float64   `json:"time_compatibility"`
	CapacityCompatible    bool      `json:"capacity_compatible"`
	RouteCompatibility    float64   `json:"route_compatibility"`
	EstimatedDeliveryTime time.Time `json:"estimated_delivery_time"`
}
