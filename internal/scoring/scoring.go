// Package scoring holds the pure compatibility heuristics between a package
// and a candidate trip. Nothing here performs I/O or returns an error; absent
// optional inputs degrade to neutral values.
package scoring

import (
	"time"

	"github.com/example/parcelmatch/internal/geo"
	"github.com/example/parcelmatch/internal/models"
)

// CapacityCompatible reports whether a trip of tripTier can carry a package
// of pkgTier on the SMALL<MEDIUM<LARGE<EXTRA_LARGE order.
func CapacityCompatible(pkgTier, tripTier models.CapacityTier) bool {
	return tripTier.Fits(pkgTier)
}

// TimeCompatibility scores how well an aging package lines up with a trip's
// imminence. Old packages matched to soon-departing trips score highest.
func TimeCompatibility(pkgCreatedAt, departure, now time.Time) float64 {
	age := now.Sub(pkgCreatedAt)
	untilDeparture := departure.Sub(now)
	switch {
	case age > 24*time.Hour && untilDeparture < 2*time.Hour:
		return 0.9
	case age > 12*time.Hour && untilDeparture < 6*time.Hour:
		return 0.7
	case untilDeparture > 24*time.Hour:
		return 0.5
	default:
		return 0.6
	}
}

// RouteCompatibility measures how little the package's pickup and delivery
// deviate from the trip's direct path: 1 - detour/tripDistance, clamped to
// [0,1]. A zero-length trip scores 0.
func RouteCompatibility(pkg models.Package, trip models.Trip) float64 {
	total := geo.Distance(trip.Origin, trip.Destination)
	if total <= 0 {
		return 0
	}
	pickupDetour := geo.Distance(trip.Origin, pkg.Pickup)
	deliveryDetour := geo.Distance(pkg.Delivery, trip.Destination)
	return clamp01(1 - (pickupDetour+deliveryDetour)/total)
}

// PriceCompatibility compares the customer's offered price to a rough
// expected cost for the trip length. Offers at or above the expectation
// score 1; lower offers scale down linearly.
func PriceCompatibility(offered, tripDistanceKm float64) float64 {
	if offered <= 0 {
		return 0
	}
	expected := basePrice + perKmPrice*tripDistanceKm
	if expected <= 0 {
		return 1
	}
	return clamp01(offered / expected)
}

const (
	basePrice  = 5.0
	perKmPrice = 0.5
)

// Inputs carries the precomputed sub-scores fed into a profile. Missing
// driver rating is represented as 0 and simply contributes nothing.
type Inputs struct {
	PickupDistanceKm   float64
	DeliveryDistanceKm float64
	MaxDistanceKm      float64
	Time               float64
	CapacityOK         bool
	Route              float64
	DriverRating       float64 // 0..5
	Price              float64 // 0..1
}

// distanceScore normalizes the mean of the pickup and delivery distances
// against the caller's search radius.
func (in Inputs) distanceScore() float64 {
	if in.MaxDistanceKm <= 0 {
		return 0
	}
	mean := (in.PickupDistanceKm + in.DeliveryDistanceKm) / 2
	return clamp01(1 - mean/in.MaxDistanceKm)
}

// BasicScore is the profile used for single-package and single-trip lookups:
// distance .30, time .25, capacity .20, route .15, rating .10.
func BasicScore(in Inputs) float64 {
	score := 0.30*in.distanceScore() +
		0.25*in.Time +
		0.15*in.Route +
		0.10*clamp01(in.DriverRating/5)
	if in.CapacityOK {
		score += 0.20
	}
	return clamp01(score)
}

// AdvancedScore is the profile used for global assignment. It adds price
// compatibility: distance .25, time .20, capacity .15, route .15,
// rating .15, price .10.
func AdvancedScore(in Inputs) float64 {
	score := 0.25*in.distanceScore() +
		0.20*in.Time +
		0.15*in.Route +
		0.15*clamp01(in.DriverRating/5) +
		0.10*clamp01(in.Price)
	if in.CapacityOK {
		score += 0.15
	}
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
