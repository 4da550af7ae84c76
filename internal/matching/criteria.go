package matching

import "github.com/example/parcelmatch/internal/models"

const (
	DefaultMaxDistanceKm   = 50.0
	DefaultTimeWindowHours = 24.0
	DefaultMinMatchScore   = 0.3
)

// Criteria bounds a matching call. Zero values fall back to the defaults
// above; CapacityRequired and MinDriverRating are optional extra filters.
type Criteria struct {
	MaxDistanceKm    float64              `json:"max_distance_km"`
	TimeWindowHours  float64              `json:"time_window_hours"`
	MinMatchScore    float64              `json:"min_match_score"`
	CapacityRequired *models.CapacityTier `json:"capacity_required,omitempty"`
	MinDriverRating  float64              `json:"min_driver_rating"`
}

func (c Criteria) withDefaults() Criteria {
	if c.MaxDistanceKm <= 0 {
		c.MaxDistanceKm = DefaultMaxDistanceKm
	}
	if c.TimeWindowHours <= 0 {
		c.TimeWindowHours = DefaultTimeWindowHours
	}
	if c.MinMatchScore <= 0 {
		c.MinMatchScore = DefaultMinMatchScore
	}
	return c
}
