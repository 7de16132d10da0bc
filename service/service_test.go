package service

import (
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeDriver struct {
	sendouts int64
	sweeps   int64
	delay    atomic.Int64
	err      atomic.Bool
}

func (d *fakeDriver) Sendout(acceptableDelay time.Duration) (bool, error) {
	atomic.AddInt64(&d.sendouts, 1)
	d.delay.Store(int64(acceptableDelay))
	if d.err.Load() {
		return false, errors.New("node unreachable")
	}
	return true, nil
}

func (d *fakeDriver) UpdateOverdue() error {
	atomic.AddInt64(&d.sweeps, 1)
	return nil
}

func (d *fakeDriver) ReservedAmount() *big.Int { return new(big.Int) }

func (d *fakeDriver) RecipientsCount() int { return 0 }

type fakeBalances struct {
	queries int64
}

func (b *fakeBalances) GetTokenBalance() (*big.Int, error) {
	atomic.AddInt64(&b.queries, 1)
	return big.NewInt(1), nil
}

func (b *fakeBalances) GetGasBalance() (*big.Int, error) {
	return big.NewInt(2), nil
}

func TestServiceLoops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	driver := new(fakeDriver)
	balances := new(fakeBalances)
	svc := New(Config{
		SendoutInterval: 10 * time.Millisecond,
		OverdueInterval: 10 * time.Millisecond,
		BalanceInterval: 10 * time.Millisecond,
		AcceptableDelay: time.Hour,
	}, driver, balances)

	svc.Start()
	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&driver.sendouts) > 1 &&
			atomic.LoadInt64(&driver.sweeps) > 1 &&
			atomic.LoadInt64(&balances.queries) > 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(time.Hour), driver.delay.Load())

	// A failing sendout must not kill the loop.
	driver.err.Store(true)
	before := atomic.LoadInt64(&driver.sendouts)
	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&driver.sendouts) > before+1
	}, time.Second, 5*time.Millisecond)

	svc.Stop()
	stopped := atomic.LoadInt64(&driver.sendouts)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, atomic.LoadInt64(&driver.sendouts))
}

func TestConfigSanitize(t *testing.T) {
	assert.Equal(t, DefaultConfig, DefaultConfig.Sanitize())

	var zero Config
	fixed := zero.Sanitize()
	assert.Equal(t, DefaultConfig.SendoutInterval, fixed.SendoutInterval)
	assert.Equal(t, DefaultConfig.OverdueInterval, fixed.OverdueInterval)
	assert.Equal(t, DefaultConfig.BalanceInterval, fixed.BalanceInterval)
	// Zero delay means flush immediately and is kept as-is.
	assert.Equal(t, time.Duration(0), fixed.AcceptableDelay)

	neg := DefaultConfig
	neg.AcceptableDelay = -time.Second
	assert.Equal(t, DefaultConfig.AcceptableDelay, neg.Sanitize().AcceptableDelay)
}
