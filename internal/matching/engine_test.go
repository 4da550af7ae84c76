package matching

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/parcelmatch/internal/apperr"
	"github.com/example/parcelmatch/internal/logging"
	"github.com/example/parcelmatch/internal/models"
)

type fakePackages struct {
	byID map[string]*models.Package
}

func (f *fakePackages) GetByID(ctx context.Context, id string) (*models.Package, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, apperr.NotFound(apperr.CodePackageNotFound, "package not found")
	}
	cp := *p
	return &cp, nil
}

func (f *fakePackages) ListOpen(ctx context.Context) ([]models.Package, error) {
	var out []models.Package
	for _, p := range f.byID {
		if p.Status == models.PackagePending {
			out = append(out, *p)
		}
	}
	return out, nil
}

type fakeTrips struct {
	byID map[string]*models.Trip
}

func (f *fakeTrips) GetByID(ctx context.Context, id string) (*models.Trip, error) {
	t, ok := f.byID[id]
	if !ok {
		return nil, apperr.NotFound(apperr.CodeTripNotFound, "trip not found")
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTrips) ListScheduledWithin(ctx context.Context, until time.Time) ([]models.Trip, error) {
	var out []models.Trip
	for _, t := range f.byID {
		if t.Status == models.TripScheduled && !t.DepartureTime.After(until) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTrips) ListScheduledByIDs(ctx context.Context, ids []string) ([]models.Trip, error) {
	var out []models.Trip
	for _, id := range ids {
		if t, ok := f.byID[id]; ok && t.Status == models.TripScheduled {
			out = append(out, *t)
		}
	}
	return out, nil
}

type fakeDrivers struct {
	byID map[string]*models.DriverProfile
}

func (f *fakeDrivers) GetProfile(ctx context.Context, userID string) (*models.DriverProfile, error) {
	d, ok := f.byID[userID]
	if !ok {
		return nil, apperr.NotFound(apperr.CodeDriverNotFound, "driver profile not found")
	}
	cp := *d
	return &cp, nil
}

type fakeIndex struct {
	ids []string
	err error
}

func (f *fakeIndex) Nearby(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]string, error) {
	return f.ids, f.err
}

func testEngine(pkgs *fakePackages, trips *fakeTrips, drivers *fakeDrivers, idx TripIndex) *Engine {
	return NewEngine(pkgs, trips, drivers, idx, logging.Discard())
}

func pendingPackage(id string, lat float64, price float64, tier models.CapacityTier) *models.Package {
	return &models.Package{
		ID:           id,
		CustomerID:   "cust-" + id,
		Pickup:       models.Coord{Lat: lat, Lon: 0},
		Delivery:     models.Coord{Lat: lat + 1, Lon: 0},
		SizeTier:     tier,
		PriceOffered: price,
		Status:       models.PackagePending,
		CreatedAt:    time.Now().Add(-time.Hour),
	}
}

func scheduledTrip(id, driverID string, originLat float64, tier models.CapacityTier, departsIn time.Duration) *models.Trip {
	return &models.Trip{
		ID:            id,
		DriverID:      driverID,
		Origin:        models.Coord{Lat: originLat, Lon: 0},
		Destination:   models.Coord{Lat: originLat + 1, Lon: 0},
		DepartureTime: time.Now().Add(departsIn),
		CapacityTier:  tier,
		Status:        models.TripScheduled,
	}
}

func TestFindMatchesForPackageOrdersByScore(t *testing.T) {
	pkgs := &fakePackages{byID: map[string]*models.Package{
		"pkg-1": pendingPackage("pkg-1", 0, 50, models.TierSmall),
	}}
	trips := &fakeTrips{byID: map[string]*models.Trip{
		// ~1km from the pickup.
		"trip-near": scheduledTrip("trip-near", "d1", 0.01, models.TierMedium, 2*time.Hour),
		// ~33km out, still inside the default radius.
		"trip-far": scheduledTrip("trip-far", "d2", 0.3, models.TierMedium, 2*time.Hour),
	}}
	drivers := &fakeDrivers{byID: map[string]*models.DriverProfile{
		"d1": {UserID: "d1", Verified: true, Rating: 4.5},
		"d2": {UserID: "d2", Verified: true, Rating: 4.0},
	}}

	e := testEngine(pkgs, trips, drivers, nil)
	res, err := e.FindMatchesForPackage(context.Background(), "pkg-1", Criteria{})
	require.NoError(t, err)
	require.Len(t, res.Matches, 2)
	assert.Equal(t, "trip-near", res.Matches[0].TripID)
	assert.Equal(t, "trip-far", res.Matches[1].TripID)
	assert.Greater(t, res.Matches[0].MatchScore, res.Matches[1].MatchScore)
	assert.True(t, res.Matches[0].CapacityCompatible)
	assert.True(t, res.Matches[0].EstimatedDeliveryTime.After(trips.byID["trip-near"].DepartureTime))
}

func TestFindMatchesForPackageFilters(t *testing.T) {
	pkgs := &fakePackages{byID: map[string]*models.Package{
		"pkg-1": pendingPackage("pkg-1", 0, 50, models.TierLarge),
	}}
	trips := &fakeTrips{byID: map[string]*models.Trip{
		"trip-small":    scheduledTrip("trip-small", "d1", 0.01, models.TierSmall, 2*time.Hour),
		"trip-departed": scheduledTrip("trip-departed", "d1", 0.01, models.TierLarge, -time.Hour),
		"trip-remote":   scheduledTrip("trip-remote", "d1", 5, models.TierLarge, 2*time.Hour),
		"trip-ok":       scheduledTrip("trip-ok", "d1", 0.02, models.TierLarge, 2*time.Hour),
	}}
	drivers := &fakeDrivers{byID: map[string]*models.DriverProfile{
		"d1": {UserID: "d1", Verified: true, Rating: 4.8},
	}}

	e := testEngine(pkgs, trips, drivers, nil)
	res, err := e.FindMatchesForPackage(context.Background(), "pkg-1", Criteria{})
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "trip-ok", res.Matches[0].TripID)
}

func TestFindMatchesForPackageMinRating(t *testing.T) {
	pkgs := &fakePackages{byID: map[string]*models.Package{
		"pkg-1": pendingPackage("pkg-1", 0, 50, models.TierSmall),
	}}
	trips := &fakeTrips{byID: map[string]*models.Trip{
		"trip-1": scheduledTrip("trip-1", "d1", 0.01, models.TierMedium, 2*time.Hour),
	}}
	drivers := &fakeDrivers{byID: map[string]*models.DriverProfile{
		"d1": {UserID: "d1", Verified: true, Rating: 3.0},
	}}

	e := testEngine(pkgs, trips, drivers, nil)
	res, err := e.FindMatchesForPackage(context.Background(), "pkg-1", Criteria{MinDriverRating: 4.0})
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
}

func TestFindMatchesForPackageErrors(t *testing.T) {
	pkgs := &fakePackages{byID: map[string]*models.Package{
		"pkg-settled": {ID: "pkg-settled", Status: models.PackageAccepted},
	}}
	e := testEngine(pkgs, &fakeTrips{byID: map[string]*models.Trip{}}, &fakeDrivers{byID: map[string]*models.DriverProfile{}}, nil)

	_, err := e.FindMatchesForPackage(context.Background(), "missing", Criteria{})
	assert.Equal(t, apperr.CodePackageNotFound, apperr.CodeOf(err))

	_, err = e.FindMatchesForPackage(context.Background(), "pkg-settled", Criteria{})
	assert.Equal(t, apperr.CodePackageNotAvailable, apperr.CodeOf(err))
}

func TestFindMatchesForTrip(t *testing.T) {
	pkgs := &fakePackages{byID: map[string]*models.Package{
		"pkg-1":    pendingPackage("pkg-1", 0.01, 40, models.TierSmall),
		"pkg-done": {ID: "pkg-done", Status: models.PackageDelivered},
	}}
	trips := &fakeTrips{byID: map[string]*models.Trip{
		"trip-1": scheduledTrip("trip-1", "d1", 0, models.TierMedium, 2*time.Hour),
	}}
	drivers := &fakeDrivers{byID: map[string]*models.DriverProfile{
		"d1": {UserID: "d1", Verified: true, Rating: 4.0},
	}}

	e := testEngine(pkgs, trips, drivers, nil)
	res, err := e.FindMatchesForTrip(context.Background(), "trip-1", Criteria{})
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "pkg-1", res.Matches[0].PackageID)

	trips.byID["trip-1"].Status = models.TripCompleted
	_, err = e.FindMatchesForTrip(context.Background(), "trip-1", Criteria{})
	assert.Equal(t, apperr.CodeTripNotAvailable, apperr.CodeOf(err))
}

func TestFindOptimalMatchesIsConflictFree(t *testing.T) {
	// Two packages with identical geometry compete for the same trips. The
	// pricier package wins the better trip; nothing is assigned twice.
	pkgs := &fakePackages{byID: map[string]*models.Package{
		"pkg-rich": pendingPackage("pkg-rich", 0, 100, models.TierSmall),
		"pkg-poor": pendingPackage("pkg-poor", 0, 50, models.TierSmall),
	}}
	trips := &fakeTrips{byID: map[string]*models.Trip{
		"trip-near": scheduledTrip("trip-near", "d1", 0.01, models.TierMedium, 2*time.Hour),
		"trip-far":  scheduledTrip("trip-far", "d2", 0.3, models.TierMedium, 2*time.Hour),
	}}
	drivers := &fakeDrivers{byID: map[string]*models.DriverProfile{
		"d1": {UserID: "d1", Verified: true, Rating: 4.5},
		"d2": {UserID: "d2", Verified: true, Rating: 4.5},
	}}

	e := testEngine(pkgs, trips, drivers, nil)
	res, err := e.FindOptimalMatches(context.Background(), Criteria{})
	require.NoError(t, err)
	require.Len(t, res.Matches, 2)

	byPkg := map[string]string{}
	seenTrips := map[string]bool{}
	for _, m := range res.Matches {
		byPkg[m.PackageID] = m.TripID
		assert.False(t, seenTrips[m.TripID], "trip %s assigned twice", m.TripID)
		seenTrips[m.TripID] = true
	}
	assert.Equal(t, "trip-near", byPkg["pkg-rich"])
	assert.Equal(t, "trip-far", byPkg["pkg-poor"])
}

func TestOptimalMatchingPrefersTrackRecord(t *testing.T) {
	// One package, two equally-placed trips: the driver with the better
	// rating and delivery history wins on priority.
	pkgs := &fakePackages{byID: map[string]*models.Package{
		"pkg-1": pendingPackage("pkg-1", 0, 50, models.TierSmall),
	}}
	trips := &fakeTrips{byID: map[string]*models.Trip{
		"trip-a": scheduledTrip("trip-a", "rookie", 0.01, models.TierMedium, 2*time.Hour),
		"trip-b": scheduledTrip("trip-b", "veteran", 0.01, models.TierMedium, 2*time.Hour),
	}}
	drivers := &fakeDrivers{byID: map[string]*models.DriverProfile{
		"rookie":  {UserID: "rookie", Verified: true, Rating: 4.0, TotalDeliveries: 2},
		"veteran": {UserID: "veteran", Verified: true, Rating: 5.0, TotalDeliveries: 400},
	}}

	e := testEngine(pkgs, trips, drivers, nil)
	res, err := e.FindOptimalMatchesWithML(context.Background(), Criteria{})
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "trip-b", res.Matches[0].TripID)
}

func TestCandidateTripsFallsBackWhenIndexFails(t *testing.T) {
	pkgs := &fakePackages{byID: map[string]*models.Package{
		"pkg-1": pendingPackage("pkg-1", 0, 50, models.TierSmall),
	}}
	trips := &fakeTrips{byID: map[string]*models.Trip{
		"trip-1": scheduledTrip("trip-1", "d1", 0.01, models.TierMedium, 2*time.Hour),
	}}
	drivers := &fakeDrivers{byID: map[string]*models.DriverProfile{
		"d1": {UserID: "d1", Verified: true, Rating: 4.0},
	}}

	e := testEngine(pkgs, trips, drivers, &fakeIndex{err: assert.AnError})
	res, err := e.FindMatchesForPackage(context.Background(), "pkg-1", Criteria{})
	require.NoError(t, err)
	assert.Len(t, res.Matches, 1)
}

func TestCandidateTripsUsesIndexHits(t *testing.T) {
	pkgs := &fakePackages{byID: map[string]*models.Package{
		"pkg-1": pendingPackage("pkg-1", 0, 50, models.TierSmall),
	}}
	trips := &fakeTrips{byID: map[string]*models.Trip{
		"trip-indexed": scheduledTrip("trip-indexed", "d1", 0.01, models.TierMedium, 2*time.Hour),
		"trip-other":   scheduledTrip("trip-other", "d1", 0.02, models.TierMedium, 2*time.Hour),
	}}
	drivers := &fakeDrivers{byID: map[string]*models.DriverProfile{
		"d1": {UserID: "d1", Verified: true, Rating: 4.0},
	}}

	e := testEngine(pkgs, trips, drivers, &fakeIndex{ids: []string{"trip-indexed"}})
	res, err := e.FindMatchesForPackage(context.Background(), "pkg-1", Criteria{})
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "trip-indexed", res.Matches[0].TripID)
}
