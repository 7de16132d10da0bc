package payments

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DavidLeeR/golem/core/types"
)

func TestEstimatorClip(t *testing.T) {
	payments := []*types.Payment{
		newQueuedPayment("a", 10, 1),
		newQueuedPayment("b", 20, 2),
		newQueuedPayment("c", 30, 3),
	}
	plenty := big.NewInt(1_000_000_000)

	tests := []struct {
		name         string
		tokenBalance *big.Int
		gasBalance   *big.Int
		gasAllowance uint64
		want         int
	}{
		{"all fit", plenty, plenty, 1_000_000, 3},
		{"token exact", big.NewInt(60), plenty, 1_000_000, 3},
		{"token one short", big.NewInt(59), plenty, 1_000_000, 2},
		{"token none", big.NewInt(9), plenty, 1_000_000, 0},
		{"gas exact for two", plenty, big.NewInt(testGasPrice * (testGasBatchBase + 2*testGasPer)), 1_000_000, 2},
		{"gas one wei short", plenty, big.NewInt(testGasPrice*(testGasBatchBase+2*testGasPer) - 1), 1_000_000, 1},
		{"allowance exact for one", plenty, plenty, testGasBatchBase + testGasPer, 1},
		{"allowance below base", plenty, plenty, testGasBatchBase, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est := newBatchEstimator(
				tt.tokenBalance, tt.gasBalance, big.NewInt(testGasPrice),
				tt.gasAllowance, testGasBatchBase, testGasPer,
			)
			assert.Equal(t, tt.want, est.Clip(payments))
		})
	}
}

func TestEstimatorClipEmpty(t *testing.T) {
	est := newBatchEstimator(new(big.Int), new(big.Int), big.NewInt(1), 0, testGasBatchBase, testGasPer)
	assert.Equal(t, 0, est.Clip(nil))
}
