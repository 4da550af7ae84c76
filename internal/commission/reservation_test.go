package commission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/parcelmatch/internal/apperr"
	"github.com/example/parcelmatch/internal/db"
	"github.com/example/parcelmatch/internal/logging"
	"github.com/example/parcelmatch/internal/models"
)

type fakeTx struct {
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error   { t.committed = true; return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { t.rolledBack = true; return nil }
func (t *fakeTx) Exec(ctx context.Context, q string, args ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag("OK"), nil
}
func (t *fakeTx) Get(ctx context.Context, dest interface{}, q string, args ...interface{}) error {
	return nil
}
func (t *fakeTx) Select(ctx context.Context, dest interface{}, q string, args ...interface{}) error {
	return nil
}

type fakeDB struct {
	txs []*fakeTx
}

func (d *fakeDB) Get(ctx context.Context, dest interface{}, q string, args ...interface{}) error {
	return nil
}
func (d *fakeDB) Select(ctx context.Context, dest interface{}, q string, args ...interface{}) error {
	return nil
}
func (d *fakeDB) Exec(ctx context.Context, q string, args ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag("OK"), nil
}
func (d *fakeDB) BeginTx(ctx context.Context) (db.Tx, error) {
	tx := &fakeTx{}
	d.txs = append(d.txs, tx)
	return tx, nil
}

type fakeWallets struct {
	wallets map[string]*models.Wallet
}

func (f *fakeWallets) Get(ctx context.Context, userID string) (*models.Wallet, error) {
	w, ok := f.wallets[userID]
	if !ok {
		return nil, apperr.NotFound(apperr.CodeWalletNotFound, "wallet not found")
	}
	cp := *w
	return &cp, nil
}

func (f *fakeWallets) ReserveTx(ctx context.Context, tx db.Tx, userID string, amount float64) (bool, error) {
	w, ok := f.wallets[userID]
	if !ok {
		return false, apperr.NotFound(apperr.CodeWalletNotFound, "wallet not found")
	}
	if w.ReservedBalance+amount > w.AvailableBalance {
		return false, nil
	}
	w.ReservedBalance += amount
	return true, nil
}

func (f *fakeWallets) UnreserveTx(ctx context.Context, tx db.Tx, userID string, amount float64) error {
	w, ok := f.wallets[userID]
	if !ok {
		return apperr.NotFound(apperr.CodeWalletNotFound, "wallet not found")
	}
	w.ReservedBalance -= amount
	if w.ReservedBalance < 0 {
		w.ReservedBalance = 0
	}
	return nil
}

type fakeReservations struct {
	byID    map[string]*models.CommissionReservation
	listErr error
}

func (f *fakeReservations) CreateTx(ctx context.Context, tx db.Tx, r *models.CommissionReservation) error {
	cp := *r
	f.byID[r.ID] = &cp
	return nil
}

func (f *fakeReservations) GetByID(ctx context.Context, id string) (*models.CommissionReservation, error) {
	r, ok := f.byID[id]
	if !ok {
		return nil, apperr.NotFound(apperr.CodeReservationNotFound, "reservation not found")
	}
	cp := *r
	return &cp, nil
}

func (f *fakeReservations) GetByIDForUpdate(ctx context.Context, tx db.Tx, id string) (*models.CommissionReservation, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeReservations) UpdateStatusTx(ctx context.Context, tx db.Tx, id string, status models.ReservationStatus, at time.Time) error {
	r, ok := f.byID[id]
	if !ok {
		return apperr.NotFound(apperr.CodeReservationNotFound, "reservation not found")
	}
	r.Status = status
	r.UpdatedAt = at
	return nil
}

func (f *fakeReservations) ListExpiredPending(ctx context.Context, before time.Time) ([]models.CommissionReservation, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.CommissionReservation
	for _, r := range f.byID {
		if r.Status == models.ReservationPending && r.ExpiresAt.Before(before) {
			out = append(out, *r)
		}
	}
	return out, nil
}

type fakeLedger struct {
	records []models.CommissionTransaction
}

func (f *fakeLedger) CreateTx(ctx context.Context, tx db.Tx, t *models.CommissionTransaction) error {
	f.records = append(f.records, *t)
	return nil
}

func newTestService(balance float64) (*Service, *fakeDB, *fakeWallets, *fakeReservations, *fakeLedger) {
	database := &fakeDB{}
	wallets := &fakeWallets{wallets: map[string]*models.Wallet{
		"driver-1": {UserID: "driver-1", AvailableBalance: balance},
	}}
	reservations := &fakeReservations{byID: map[string]*models.CommissionReservation{}}
	ledger := &fakeLedger{}
	svc := NewService(database, wallets, reservations, ledger, logging.Discard())
	return svc, database, wallets, reservations, ledger
}

func TestPreAuthorizeHoldsFunds(t *testing.T) {
	svc, database, wallets, reservations, _ := newTestService(100)

	res, err := svc.PreAuthorize(context.Background(), "driver-1", nil, 30)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationPending, res.Status)
	assert.Equal(t, 30.0, res.Amount)
	assert.Equal(t, Rate, res.Percentage)
	assert.WithinDuration(t, time.Now().Add(ReservationTTL), res.ExpiresAt, time.Minute)

	assert.Equal(t, 30.0, wallets.wallets["driver-1"].ReservedBalance)
	assert.Contains(t, reservations.byID, res.ID)
	require.Len(t, database.txs, 1)
	assert.True(t, database.txs[0].committed)
}

func TestPreAuthorizeInsufficientBalance(t *testing.T) {
	svc, database, wallets, reservations, _ := newTestService(20)

	_, err := svc.PreAuthorize(context.Background(), "driver-1", nil, 30)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInsufficientBalance, apperr.CodeOf(err))

	assert.Equal(t, 0.0, wallets.wallets["driver-1"].ReservedBalance)
	assert.Empty(t, reservations.byID)
	require.Len(t, database.txs, 1)
	assert.True(t, database.txs[0].rolledBack)
}

func TestPreAuthorizeUnknownWallet(t *testing.T) {
	svc, _, _, _, _ := newTestService(100)

	_, err := svc.PreAuthorize(context.Background(), "driver-2", nil, 10)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeWalletNotFound, apperr.CodeOf(err))
}

func TestPreAuthorizeValidation(t *testing.T) {
	svc, _, _, _, _ := newTestService(100)

	_, err := svc.PreAuthorize(context.Background(), "", nil, 10)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	_, err = svc.PreAuthorize(context.Background(), "driver-1", nil, 0)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestConfirmSettlesReservation(t *testing.T) {
	svc, _, wallets, reservations, ledger := newTestService(100)

	res, err := svc.PreAuthorize(context.Background(), "driver-1", nil, 30)
	require.NoError(t, err)

	require.NoError(t, svc.Confirm(context.Background(), res.ID))
	assert.Equal(t, models.ReservationConfirmed, reservations.byID[res.ID].Status)
	assert.Equal(t, 0.0, wallets.wallets["driver-1"].ReservedBalance)
	require.Len(t, ledger.records, 1)
	assert.Equal(t, res.ID, ledger.records[0].ReservationID)
	assert.Equal(t, "COMPLETED", ledger.records[0].Status)
	assert.Equal(t, 30.0, ledger.records[0].Amount)
}

func TestConfirmRequiresPending(t *testing.T) {
	svc, _, _, _, ledger := newTestService(100)

	res, err := svc.PreAuthorize(context.Background(), "driver-1", nil, 30)
	require.NoError(t, err)
	require.NoError(t, svc.Confirm(context.Background(), res.ID))

	err = svc.Confirm(context.Background(), res.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidReservation, apperr.CodeOf(err))
	assert.Len(t, ledger.records, 1)
}

func TestReleaseIsIdempotent(t *testing.T) {
	svc, _, wallets, reservations, _ := newTestService(100)

	res, err := svc.PreAuthorize(context.Background(), "driver-1", nil, 30)
	require.NoError(t, err)

	require.NoError(t, svc.Release(context.Background(), res.ID))
	assert.Equal(t, models.ReservationReleased, reservations.byID[res.ID].Status)
	assert.Equal(t, 0.0, wallets.wallets["driver-1"].ReservedBalance)

	// Releasing again must not touch the wallet twice.
	require.NoError(t, svc.Release(context.Background(), res.ID))
	assert.Equal(t, 0.0, wallets.wallets["driver-1"].ReservedBalance)
}

func TestReleaseRejectsConfirmed(t *testing.T) {
	svc, _, _, _, _ := newTestService(100)

	res, err := svc.PreAuthorize(context.Background(), "driver-1", nil, 30)
	require.NoError(t, err)
	require.NoError(t, svc.Confirm(context.Background(), res.ID))

	err = svc.Release(context.Background(), res.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidReservation, apperr.CodeOf(err))
}

func TestCleanupExpiredReleasesOldHolds(t *testing.T) {
	svc, _, wallets, reservations, _ := newTestService(100)

	res, err := svc.PreAuthorize(context.Background(), "driver-1", nil, 30)
	require.NoError(t, err)
	reservations.byID[res.ID].ExpiresAt = time.Now().Add(-time.Hour)

	fresh, err := svc.PreAuthorize(context.Background(), "driver-1", nil, 20)
	require.NoError(t, err)

	released := svc.CleanupExpired(context.Background())
	assert.Equal(t, 1, released)
	assert.Equal(t, models.ReservationReleased, reservations.byID[res.ID].Status)
	assert.Equal(t, models.ReservationPending, reservations.byID[fresh.ID].Status)
	assert.Equal(t, 20.0, wallets.wallets["driver-1"].ReservedBalance)
}

func TestCleanupExpiredSwallowsScanFailure(t *testing.T) {
	svc, _, _, reservations, _ := newTestService(100)
	reservations.listErr = errors.New("scan failed")

	assert.Equal(t, 0, svc.CleanupExpired(context.Background()))
}
