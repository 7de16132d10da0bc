package payments

import (
	"math/big"

	"github.com/ethereum/go-ethereum/log"

	"github.com/DavidLeeR/golem/core/types"
)

// batchEstimator clips a candidate batch against the three scarce resources
// of a sendout: the token balance covering the transferred values, the
// gas-asset balance covering the transaction fee, and the share of the block
// gas limit a single batch may consume.
type batchEstimator struct {
	tokenBalance *big.Int
	gasBalance   *big.Int
	gasPrice     *big.Int
	gasAllowance uint64
	gasBase      uint64
	gasPer       uint64
}

func newBatchEstimator(tokenBalance, gasBalance, gasPrice *big.Int, gasAllowance, gasBase, gasPer uint64) *batchEstimator {
	return &batchEstimator{
		tokenBalance: tokenBalance,
		gasBalance:   gasBalance,
		gasPrice:     gasPrice,
		gasAllowance: gasAllowance,
		gasBase:      gasBase,
		gasPer:       gasPer,
	}
}

// Clip returns the length of the longest prefix of payments that fits all
// three resources.
func (e *batchEstimator) Clip(payments []*types.Payment) int {
	value := new(big.Int)
	for i, p := range payments {
		next := new(big.Int).Add(value, p.Value)
		if next.Cmp(e.tokenBalance) > 0 {
			log.Debug("Token balance exhausted", "payments", i, "balance", e.tokenBalance, "needed", next)
			return i
		}
		gas := e.gasBase + uint64(i+1)*e.gasPer
		if gas > e.gasAllowance {
			log.Debug("Block gas allowance exhausted", "payments", i, "allowance", e.gasAllowance, "needed", gas)
			return i
		}
		cost := new(big.Int).Mul(new(big.Int).SetUint64(gas), e.gasPrice)
		if cost.Cmp(e.gasBalance) > 0 {
			log.Debug("Gas balance exhausted", "payments", i, "balance", e.gasBalance, "needed", cost)
			return i
		}
		value = next
	}
	return len(payments)
}
