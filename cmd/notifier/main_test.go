package main

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/parcelmatch/internal/notify"
)

type fakePusher struct {
	calls int
	errs  []error
}

func (f *fakePusher) Push(driverID string, e notify.Event) error {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return nil
}

func TestPushWithRetryRecoversFromTransientFailure(t *testing.T) {
	p := &fakePusher{errs: []error{errors.New("write timeout")}}
	err := pushWithRetry(p, notify.Event{DriverID: "d1"}, 3, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 2, p.calls)
}

func TestPushWithRetryGivesUpAfterAttempts(t *testing.T) {
	down := errors.New("socket closed")
	p := &fakePusher{errs: []error{down, down, down}}
	err := pushWithRetry(p, notify.Event{DriverID: "d1"}, 3, time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, 3, p.calls)
}

func TestPushWithRetrySkipsDisconnectedDrivers(t *testing.T) {
	p := &fakePusher{errs: []error{notify.ErrNoSession}}
	err := pushWithRetry(p, notify.Event{DriverID: "d1"}, 3, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls)
}
