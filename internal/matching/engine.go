// Package matching computes package-trip compatibility and proposes
// conflict-free assignments. The engine is read-only: it never mutates bid,
// package, or trip state, so calls are safe to run concurrently and repeat.
package matching

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/parcelmatch/internal/apperr"
	"github.com/example/parcelmatch/internal/eta"
	"github.com/example/parcelmatch/internal/geo"
	"github.com/example/parcelmatch/internal/models"
	"github.com/example/parcelmatch/internal/observability"
	"github.com/example/parcelmatch/internal/scoring"
)

type PackageSource interface {
	GetByID(ctx context.Context, id string) (*models.Package, error)
	ListOpen(ctx context.Context) ([]models.Package, error)
}

type TripSource interface {
	GetByID(ctx context.Context, id string) (*models.Trip, error)
	ListScheduledWithin(ctx context.Context, until time.Time) ([]models.Trip, error)
	ListScheduledByIDs(ctx context.Context, ids []string) ([]models.Trip, error)
}

type DriverSource interface {
	GetProfile(ctx context.Context, userID string) (*models.DriverProfile, error)
}

// TripIndex is an optional geo prefilter (Redis GEO in production). A nil
// index or a failing lookup degrades to a full store scan.
type TripIndex interface {
	Nearby(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]string, error)
}

// Result is what a matching call hands back to its caller. Matches are
// ephemeral; nothing here is persisted.
type Result struct {
	Matches     []models.PackageTripMatch `json:"matches"`
	GeneratedAt time.Time                 `json:"generated_at"`
}

type Engine struct {
	packages  PackageSource
	trips     TripSource
	drivers   DriverSource
	tripIndex TripIndex
	etaClient eta.Client
	etaCache  *eta.Cache
	logger    *slog.Logger

	SpeedKmh    float64
	Concurrency int
	now         func() time.Time
}

func NewEngine(packages PackageSource, trips TripSource, drivers DriverSource, tripIndex TripIndex, logger *slog.Logger) *Engine {
	return &Engine{
		packages:    packages,
		trips:       trips,
		drivers:     drivers,
		tripIndex:   tripIndex,
		etaCache:    eta.NewCache(5 * time.Minute),
		logger:      logger,
		SpeedKmh:    30,
		Concurrency: 8,
		now:         time.Now,
	}
}

// SetETAClient plugs in a routing-engine duration client; without one the
// engine falls back to straight-line estimates.
func (e *Engine) SetETAClient(c eta.Client) { e.etaClient = c }

// FindMatchesForPackage returns scheduled trips compatible with one open
// package, best score first.
func (e *Engine) FindMatchesForPackage(ctx context.Context, packageID string, c Criteria) (*Result, error) {
	c = c.withDefaults()
	start := e.now()
	observability.MatchRuns.WithLabelValues("package").Inc()

	pkg, err := e.packages.GetByID(ctx, packageID)
	if err != nil {
		return nil, asMatchingErr(err)
	}
	if pkg.Status != models.PackagePending {
		return nil, apperr.BadRequest(apperr.CodePackageNotAvailable, "package is not open for matching")
	}

	trips, err := e.candidateTrips(ctx, pkg, c)
	if err != nil {
		return nil, apperr.Internal(apperr.CodeMatchingFailed, "candidate trip load failed", err)
	}

	now := e.now().UTC()
	profiles := e.profileCache()
	matches := make([]models.PackageTripMatch, 0, len(trips))
	for _, trip := range trips {
		m, ok := e.scorePair(ctx, *pkg, trip, profiles, c, now, false)
		if ok {
			matches = append(matches, m)
		}
	}
	sortByScore(matches)

	observability.MatchesFound.Add(float64(len(matches)))
	observability.MatchLatency.Observe(time.Since(start).Seconds())
	return &Result{Matches: matches, GeneratedAt: now}, nil
}

// FindMatchesForTrip is the symmetric lookup: open packages compatible with
// one scheduled trip.
func (e *Engine) FindMatchesForTrip(ctx context.Context, tripID string, c Criteria) (*Result, error) {
	c = c.withDefaults()
	start := e.now()
	observability.MatchRuns.WithLabelValues("trip").Inc()

	trip, err := e.trips.GetByID(ctx, tripID)
	if err != nil {
		return nil, asMatchingErr(err)
	}
	if trip.Status != models.TripScheduled {
		return nil, apperr.BadRequest(apperr.CodeTripNotAvailable, "trip is not open for matching")
	}

	pkgs, err := e.packages.ListOpen(ctx)
	if err != nil {
		return nil, apperr.Internal(apperr.CodeMatchingFailed, "open package load failed", err)
	}

	now := e.now().UTC()
	profiles := e.profileCache()
	matches := make([]models.PackageTripMatch, 0, len(pkgs))
	for _, pkg := range pkgs {
		m, ok := e.scorePair(ctx, pkg, *trip, profiles, c, now, false)
		if ok {
			matches = append(matches, m)
		}
	}
	sortByScore(matches)

	observability.MatchesFound.Add(float64(len(matches)))
	observability.MatchLatency.Observe(time.Since(start).Seconds())
	return &Result{Matches: matches, GeneratedAt: now}, nil
}

// FindOptimalMatches proposes a conflict-free assignment over the whole pool
// of open packages and scheduled trips: every surviving pair gets a priority
// and a single greedy pass commits pairs in priority order. This is a
// deliberate approximation, not an optimal bipartite matching.
func (e *Engine) FindOptimalMatches(ctx context.Context, c Criteria) (*Result, error) {
	return e.optimal(ctx, c, "optimal")
}

// FindOptimalMatchesWithML runs the same greedy pipeline today; it exists as
// the seam where a learned ranker replaces the hand-tuned priority.
func (e *Engine) FindOptimalMatchesWithML(ctx context.Context, c Criteria) (*Result, error) {
	return e.optimal(ctx, c, "optimal_ml")
}

type scoredPair struct {
	match    models.PackageTripMatch
	priority float64
}

func (e *Engine) optimal(ctx context.Context, c Criteria, mode string) (*Result, error) {
	c = c.withDefaults()
	start := e.now()
	observability.MatchRuns.WithLabelValues(mode).Inc()

	pkgs, err := e.packages.ListOpen(ctx)
	if err != nil {
		return nil, apperr.Internal(apperr.CodeOptimalMatchingFailed, "open package load failed", err)
	}
	now := e.now().UTC()
	trips, err := e.trips.ListScheduledWithin(ctx, now.Add(time.Duration(c.TimeWindowHours*float64(time.Hour))))
	if err != nil {
		return nil, apperr.Internal(apperr.CodeOptimalMatchingFailed, "scheduled trip load failed", err)
	}

	profiles := e.profileCache()
	var mu sync.Mutex
	pairs := make([]scoredPair, 0, len(pkgs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency())
	for _, pkg := range pkgs {
		pkg := pkg
		g.Go(func() error {
			local := make([]scoredPair, 0, 4)
			for _, trip := range trips {
				m, ok := e.scorePair(gctx, pkg, trip, profiles, c, now, true)
				if !ok {
					continue
				}
				prof := profiles.get(gctx, e, trip.DriverID)
				prio := m.MatchScore*100 +
					pkg.PriceOffered/100*10 +
					prof.Rating*5 +
					float64(prof.TotalDeliveries)/100*2
				local = append(local, scoredPair{match: m, priority: prio})
			}
			mu.Lock()
			pairs = append(pairs, local...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperr.Internal(apperr.CodeOptimalMatchingFailed, "pair scoring failed", err)
	}

	// Deterministic order before the greedy pass: priority descending, with
	// package/trip ids as a stable tie-break.
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].priority != pairs[j].priority {
			return pairs[i].priority > pairs[j].priority
		}
		if pairs[i].match.PackageID != pairs[j].match.PackageID {
			return pairs[i].match.PackageID < pairs[j].match.PackageID
		}
		return pairs[i].match.TripID < pairs[j].match.TripID
	})

	takenPkg := make(map[string]bool, len(pkgs))
	takenTrip := make(map[string]bool, len(trips))
	matches := make([]models.PackageTripMatch, 0, len(pairs))
	for _, p := range pairs {
		if takenPkg[p.match.PackageID] || takenTrip[p.match.TripID] {
			continue
		}
		takenPkg[p.match.PackageID] = true
		takenTrip[p.match.TripID] = true
		matches = append(matches, p.match)
	}

	observability.MatchesFound.Add(float64(len(matches)))
	observability.MatchLatency.Observe(time.Since(start).Seconds())
	return &Result{Matches: matches, GeneratedAt: now}, nil
}

// candidateTrips narrows the trip pool for one package, through the geo
// index when available.
func (e *Engine) candidateTrips(ctx context.Context, pkg *models.Package, c Criteria) ([]models.Trip, error) {
	until := e.now().UTC().Add(time.Duration(c.TimeWindowHours * float64(time.Hour)))
	if e.tripIndex != nil {
		ids, err := e.tripIndex.Nearby(ctx, pkg.Pickup.Lat, pkg.Pickup.Lon, c.MaxDistanceKm, 200)
		if err != nil {
			e.logger.Warn("trip index lookup failed, falling back to store scan", "error", err)
		} else if len(ids) > 0 {
			return e.trips.ListScheduledByIDs(ctx, ids)
		}
	}
	return e.trips.ListScheduledWithin(ctx, until)
}

// scorePair applies the hard filters and computes the sub-scores for one
// package-trip pair. ok is false when the pair is filtered out.
func (e *Engine) scorePair(ctx context.Context, pkg models.Package, trip models.Trip, profiles *profileCache, c Criteria, now time.Time, advanced bool) (models.PackageTripMatch, bool) {
	if trip.Status != models.TripScheduled || pkg.Status != models.PackagePending {
		return models.PackageTripMatch{}, false
	}
	if !scoring.CapacityCompatible(pkg.SizeTier, trip.CapacityTier) {
		return models.PackageTripMatch{}, false
	}
	if c.CapacityRequired != nil && !trip.CapacityTier.Fits(*c.CapacityRequired) {
		return models.PackageTripMatch{}, false
	}
	until := now.Add(time.Duration(c.TimeWindowHours * float64(time.Hour)))
	if trip.DepartureTime.Before(now) || trip.DepartureTime.After(until) {
		return models.PackageTripMatch{}, false
	}

	pickupDist := geo.Distance(trip.Origin, pkg.Pickup)
	deliveryDist := geo.Distance(pkg.Delivery, trip.Destination)
	if pickupDist > c.MaxDistanceKm || deliveryDist > c.MaxDistanceKm {
		return models.PackageTripMatch{}, false
	}

	prof := profiles.get(ctx, e, trip.DriverID)
	if c.MinDriverRating > 0 && prof.Rating < c.MinDriverRating {
		return models.PackageTripMatch{}, false
	}

	in := scoring.Inputs{
		PickupDistanceKm:   pickupDist,
		DeliveryDistanceKm: deliveryDist,
		MaxDistanceKm:      c.MaxDistanceKm,
		Time:               scoring.TimeCompatibility(pkg.CreatedAt, trip.DepartureTime, now),
		CapacityOK:         true,
		Route:              scoring.RouteCompatibility(pkg, trip),
		DriverRating:       prof.Rating,
	}
	var score float64
	if advanced {
		in.Price = scoring.PriceCompatibility(pkg.PriceOffered, geo.Distance(trip.Origin, trip.Destination))
		score = scoring.AdvancedScore(in)
	} else {
		score = scoring.BasicScore(in)
	}
	if score < c.MinMatchScore {
		return models.PackageTripMatch{}, false
	}

	return models.PackageTripMatch{
		PackageID:             pkg.ID,
		TripID:                trip.ID,
		DriverID:              trip.DriverID,
		MatchScore:            score,
		PickupDistanceKm:      pickupDist,
		DeliveryDistanceKm:    deliveryDist,
		TimeCompatibility:     in.Time,
		CapacityCompatible:    true,
		RouteCompatibility:    in.Route,
		EstimatedDeliveryTime: e.estimateDelivery(pkg, trip),
	}, true
}

// estimateDelivery projects arrival at the package's delivery point:
// departure plus approach and carry legs.
func (e *Engine) estimateDelivery(pkg models.Package, trip models.Trip) time.Time {
	approach := e.legSeconds(trip.Origin, pkg.Pickup)
	carry := e.legSeconds(pkg.Pickup, pkg.Delivery)
	return trip.DepartureTime.Add(time.Duration((approach + carry) * float64(time.Second)))
}

func (e *Engine) legSeconds(from, to models.Coord) float64 {
	if e.etaCache != nil {
		if v, ok := e.etaCache.Get(from, to); ok {
			return v
		}
	}
	if e.etaClient != nil {
		if v, err := e.etaClient.EstimateSeconds(from, to); err == nil {
			if e.etaCache != nil {
				e.etaCache.Set(from, to, v)
			}
			return v
		}
	}
	return eta.EstimateSeconds(from, to, e.SpeedKmh)
}

func (e *Engine) concurrency() int {
	if e.Concurrency <= 0 {
		return 4
	}
	return e.Concurrency
}

// asMatchingErr keeps typed business errors (not-found and friends) intact
// and folds raw store failures into MATCHING_FAILED.
func asMatchingErr(err error) error {
	if apperr.CodeOf(err) != apperr.CodeInternal {
		return err
	}
	return apperr.Internal(apperr.CodeMatchingFailed, "store lookup failed", err)
}

func sortByScore(matches []models.PackageTripMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MatchScore > matches[j].MatchScore
	})
}

// profileCache memoizes driver profile lookups for one matching call.
// A failed lookup degrades to a zero profile (rating 0).
type profileCache struct {
	mu    sync.Mutex
	cache map[string]models.DriverProfile
}

func (e *Engine) profileCache() *profileCache {
	return &profileCache{cache: make(map[string]models.DriverProfile)}
}

func (p *profileCache) get(ctx context.Context, e *Engine, driverID string) models.DriverProfile {
	p.mu.Lock()
	if prof, ok := p.cache[driverID]; ok {
		p.mu.Unlock()
		return prof
	}
	p.mu.Unlock()

	prof := models.DriverProfile{UserID: driverID}
	if loaded, err := e.drivers.GetProfile(ctx, driverID); err == nil {
		prof = *loaded
	}

	p.mu.Lock()
	p.cache[driverID] = prof
	p.mu.Unlock()
	return prof
}
