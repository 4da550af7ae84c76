package bids

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/parcelmatch/internal/apperr"
	"github.com/example/parcelmatch/internal/db"
	"github.com/example/parcelmatch/internal/logging"
	"github.com/example/parcelmatch/internal/models"
	"github.com/example/parcelmatch/internal/notify"
)

type fakeTx struct{}

func (t *fakeTx) Commit(ctx context.Context) error   { return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { return nil }
func (t *fakeTx) Exec(ctx context.Context, q string, args ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag("OK"), nil
}
func (t *fakeTx) Get(ctx context.Context, dest interface{}, q string, args ...interface{}) error {
	return nil
}
func (t *fakeTx) Select(ctx context.Context, dest interface{}, q string, args ...interface{}) error {
	return nil
}

type fakeDB struct{}

func (d *fakeDB) Get(ctx context.Context, dest interface{}, q string, args ...interface{}) error {
	return nil
}
func (d *fakeDB) Select(ctx context.Context, dest interface{}, q string, args ...interface{}) error {
	return nil
}
func (d *fakeDB) Exec(ctx context.Context, q string, args ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag("OK"), nil
}
func (d *fakeDB) BeginTx(ctx context.Context) (db.Tx, error) { return &fakeTx{}, nil }

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

func (f *fakePackages) GetByIDForUpdate(ctx context.Context, tx db.Tx, id string) (*models.Package, error) {
	return f.GetByID(ctx, id)
}

func (f *fakePackages) UpdateStatusTx(ctx context.Context, tx db.Tx, id string, status models.PackageStatus, at time.Time) error {
	p, ok := f.byID[id]
	if !ok {
		return apperr.NotFound(apperr.CodePackageNotFound, "package not found")
	}
	p.Status = status
	p.UpdatedAt = at
	return nil
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

func (f *fakeTrips) UpdateStatusTx(ctx context.Context, tx db.Tx, id string, status models.TripStatus, at time.Time) error {
	t, ok := f.byID[id]
	if !ok {
		return apperr.NotFound(apperr.CodeTripNotFound, "trip not found")
	}
	t.Status = status
	t.UpdatedAt = at
	return nil
}

type fakeBids struct {
	byID map[string]*models.Bid
}

func (f *fakeBids) Create(ctx context.Context, b *models.Bid) error {
	cp := *b
	f.byID[b.ID] = &cp
	return nil
}

func (f *fakeBids) GetByID(ctx context.Context, id string) (*models.Bid, error) {
	b, ok := f.byID[id]
	if !ok {
		return nil, apperr.NotFound(apperr.CodeBidNotFound, "bid not found")
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBids) GetByIDForUpdate(ctx context.Context, tx db.Tx, id string) (*models.Bid, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeBids) List(ctx context.Context, flt Filters) ([]models.Bid, error) {
	var out []models.Bid
	for _, b := range f.byID {
		if flt.PackageID != nil && b.PackageID != *flt.PackageID {
			continue
		}
		if flt.DriverID != nil && b.DriverID != *flt.DriverID {
			continue
		}
		if flt.Status != nil && b.Status != *flt.Status {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

func (f *fakeBids) Update(ctx context.Context, b *models.Bid) error {
	if _, ok := f.byID[b.ID]; !ok {
		return apperr.NotFound(apperr.CodeBidNotFound, "bid not found")
	}
	cp := *b
	f.byID[b.ID] = &cp
	return nil
}

func (f *fakeBids) UpdateStatusTx(ctx context.Context, tx db.Tx, id string, status models.BidStatus, at time.Time) error {
	b, ok := f.byID[id]
	if !ok {
		return apperr.NotFound(apperr.CodeBidNotFound, "bid not found")
	}
	b.Status = status
	b.UpdatedAt = at
	return nil
}

func (f *fakeBids) RejectSiblingsTx(ctx context.Context, tx db.Tx, packageID, exceptBidID string, at time.Time) error {
	for _, b := range f.byID {
		if b.PackageID == packageID && b.ID != exceptBidID && b.Status == models.BidPending {
			b.Status = models.BidRejected
			b.UpdatedAt = at
		}
	}
	return nil
}

func (f *fakeBids) HasPending(ctx context.Context, packageID, driverID string) (bool, error) {
	for _, b := range f.byID {
		if b.PackageID == packageID && b.DriverID == driverID && b.Status == models.BidPending {
			return true, nil
		}
	}
	return false, nil
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

type fakeNotifier struct {
	events []notify.Event
}

func (f *fakeNotifier) Publish(e notify.Event) { f.events = append(f.events, e) }

type fixture struct {
	svc      *Service
	packages *fakePackages
	trips    *fakeTrips
	bids     *fakeBids
	drivers  *fakeDrivers
	notifier *fakeNotifier
}

func newFixture() *fixture {
	f := &fixture{
		packages: &fakePackages{byID: map[string]*models.Package{
			"pkg-1": {ID: "pkg-1", CustomerID: "cust-1", Status: models.PackagePending, PriceOffered: 40},
		}},
		trips: &fakeTrips{byID: map[string]*models.Trip{
			"trip-1": {ID: "trip-1", DriverID: "driver-1", Status: models.TripScheduled},
		}},
		bids: &fakeBids{byID: map[string]*models.Bid{}},
		drivers: &fakeDrivers{byID: map[string]*models.DriverProfile{
			"driver-1":   {UserID: "driver-1", Verified: true, Rating: 4.5},
			"driver-2":   {UserID: "driver-2", Verified: true, Rating: 4.0},
			"unverified": {UserID: "unverified"},
			"cust-1":     {UserID: "cust-1", Verified: true},
		}},
		notifier: &fakeNotifier{},
	}
	f.svc = NewService(&fakeDB{}, f.packages, f.trips, f.bids, f.drivers, f.notifier, logging.Discard())
	return f
}

func TestCreateBidDerivesCommission(t *testing.T) {
	f := newFixture()

	bid, err := f.svc.CreateBid(context.Background(), CreateBidInput{
		PackageID: "pkg-1", DriverID: "driver-1", Amount: 33.33,
	})
	require.NoError(t, err)
	assert.Equal(t, models.BidPending, bid.Status)
	assert.Equal(t, 9.99, bid.CommissionAmount)
	assert.Equal(t, 23.33, bid.DriverEarnings)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, notify.EventBidReceived, f.notifier.events[0].Type)
	assert.Equal(t, "cust-1", f.notifier.events[0].CustomerID)
}

func TestCreateBidValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateBidInput
		code apperr.Code
	}{
		{"missing package", CreateBidInput{DriverID: "driver-1", Amount: 10}, apperr.CodeValidation},
		{"missing driver", CreateBidInput{PackageID: "pkg-1", Amount: 10}, apperr.CodeValidation},
		{"amount too low", CreateBidInput{PackageID: "pkg-1", DriverID: "driver-1", Amount: 0.5}, apperr.CodeValidation},
		{"amount too high", CreateBidInput{PackageID: "pkg-1", DriverID: "driver-1", Amount: 10001}, apperr.CodeValidation},
		{"unknown package", CreateBidInput{PackageID: "nope", DriverID: "driver-1", Amount: 10}, apperr.CodePackageNotFound},
		{"unverified driver", CreateBidInput{PackageID: "pkg-1", DriverID: "unverified", Amount: 10}, apperr.CodeDriverNotVerified},
		{"own package", CreateBidInput{PackageID: "pkg-1", DriverID: "cust-1", Amount: 10}, apperr.CodeInvalidBid},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := f.svc.CreateBid(ctx, c.in)
			require.Error(t, err)
			assert.Equal(t, c.code, apperr.CodeOf(err))
		})
	}
}

func TestCreateBidTripChecks(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	otherTrip := "trip-1"
	_, err := f.svc.CreateBid(ctx, CreateBidInput{
		PackageID: "pkg-1", DriverID: "driver-2", Amount: 10, TripID: &otherTrip,
	})
	assert.Equal(t, apperr.CodeInvalidTrip, apperr.CodeOf(err))

	f.trips.byID["trip-1"].Status = models.TripCompleted
	_, err = f.svc.CreateBid(ctx, CreateBidInput{
		PackageID: "pkg-1", DriverID: "driver-1", Amount: 10, TripID: &otherTrip,
	})
	assert.Equal(t, apperr.CodeTripNotAvailable, apperr.CodeOf(err))
}

func TestCreateBidRejectsDuplicate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.CreateBid(ctx, CreateBidInput{PackageID: "pkg-1", DriverID: "driver-1", Amount: 10})
	require.NoError(t, err)

	_, err = f.svc.CreateBid(ctx, CreateBidInput{PackageID: "pkg-1", DriverID: "driver-1", Amount: 12})
	assert.Equal(t, apperr.CodeDuplicateBid, apperr.CodeOf(err))
}

func TestAcceptBidSettlesPackage(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tripID := "trip-1"
	winner, err := f.svc.CreateBid(ctx, CreateBidInput{
		PackageID: "pkg-1", DriverID: "driver-1", Amount: 30, TripID: &tripID,
	})
	require.NoError(t, err)
	loser, err := f.svc.CreateBid(ctx, CreateBidInput{PackageID: "pkg-1", DriverID: "driver-2", Amount: 25})
	require.NoError(t, err)

	accepted, err := f.svc.AcceptBid(ctx, winner.ID, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, models.BidAccepted, accepted.Status)

	assert.Equal(t, models.BidAccepted, f.bids.byID[winner.ID].Status)
	assert.Equal(t, models.BidRejected, f.bids.byID[loser.ID].Status)
	assert.Equal(t, models.PackageAccepted, f.packages.byID["pkg-1"].Status)
	assert.Equal(t, models.TripInProgress, f.trips.byID["trip-1"].Status)

	last := f.notifier.events[len(f.notifier.events)-1]
	assert.Equal(t, notify.EventBidAccepted, last.Type)
}

func TestAcceptBidRequiresOwner(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	bid, err := f.svc.CreateBid(ctx, CreateBidInput{PackageID: "pkg-1", DriverID: "driver-1", Amount: 10})
	require.NoError(t, err)

	_, err = f.svc.AcceptBid(ctx, bid.ID, "somebody-else")
	assert.Equal(t, apperr.CodeUnauthorized, apperr.CodeOf(err))
}

func TestAcceptBidLoserSeesPackageGone(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.svc.CreateBid(ctx, CreateBidInput{PackageID: "pkg-1", DriverID: "driver-1", Amount: 30})
	require.NoError(t, err)
	second, err := f.svc.CreateBid(ctx, CreateBidInput{PackageID: "pkg-1", DriverID: "driver-2", Amount: 28})
	require.NoError(t, err)

	_, err = f.svc.AcceptBid(ctx, first.ID, "cust-1")
	require.NoError(t, err)

	// The sibling was flipped to REJECTED by the settlement.
	_, err = f.svc.AcceptBid(ctx, second.ID, "cust-1")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeBidNotPending, apperr.CodeOf(err))
}

func TestRejectBidAppendsReason(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	bid, err := f.svc.CreateBid(ctx, CreateBidInput{
		PackageID: "pkg-1", DriverID: "driver-1", Amount: 10, Message: "can pick up at noon",
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.RejectBid(ctx, bid.ID, "too expensive"))
	stored := f.bids.byID[bid.ID]
	assert.Equal(t, models.BidRejected, stored.Status)
	assert.Equal(t, "can pick up at noon | rejected: too expensive", stored.Message)
}

func TestUpdateBidRecomputesCommission(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	bid, err := f.svc.CreateBid(ctx, CreateBidInput{PackageID: "pkg-1", DriverID: "driver-1", Amount: 10})
	require.NoError(t, err)

	amount := 100.0
	updated, err := f.svc.UpdateBid(ctx, bid.ID, "driver-1", Patch{Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, 30.0, updated.CommissionAmount)
	assert.Equal(t, 70.0, updated.DriverEarnings)

	_, err = f.svc.UpdateBid(ctx, bid.ID, "driver-2", Patch{Amount: &amount})
	assert.Equal(t, apperr.CodeUnauthorized, apperr.CodeOf(err))
}

func TestCancelBidOnlyWhenPending(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	bid, err := f.svc.CreateBid(ctx, CreateBidInput{PackageID: "pkg-1", DriverID: "driver-1", Amount: 10})
	require.NoError(t, err)
	require.NoError(t, f.svc.CancelBid(ctx, bid.ID, "driver-1"))
	assert.Equal(t, models.BidCancelled, f.bids.byID[bid.ID].Status)

	err = f.svc.CancelBid(ctx, bid.ID, "driver-1")
	assert.Equal(t, apperr.CodeBidNotPending, apperr.CodeOf(err))
}

func TestDeliveryLifecycle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tripID := "trip-1"
	bid, err := f.svc.CreateBid(ctx, CreateBidInput{
		PackageID: "pkg-1", DriverID: "driver-1", Amount: 30, TripID: &tripID,
	})
	require.NoError(t, err)
	_, err = f.svc.AcceptBid(ctx, bid.ID, "cust-1")
	require.NoError(t, err)

	// Only the assigned driver may start.
	err = f.svc.StartDelivery(ctx, "pkg-1", "driver-2")
	assert.Equal(t, apperr.CodeUnauthorized, apperr.CodeOf(err))

	require.NoError(t, f.svc.StartDelivery(ctx, "pkg-1", "driver-1"))
	assert.Equal(t, models.PackageInTransit, f.packages.byID["pkg-1"].Status)

	// Cannot complete a delivery twice.
	require.NoError(t, f.svc.CompleteDelivery(ctx, "pkg-1", "driver-1"))
	assert.Equal(t, models.PackageDelivered, f.packages.byID["pkg-1"].Status)
	assert.Equal(t, models.TripCompleted, f.trips.byID["trip-1"].Status)

	err = f.svc.CompleteDelivery(ctx, "pkg-1", "driver-1")
	assert.Equal(t, apperr.CodePackageNotAvailable, apperr.CodeOf(err))

	last := f.notifier.events[len(f.notifier.events)-1]
	assert.Equal(t, notify.EventDeliveryCompleted, last.Type)
}
