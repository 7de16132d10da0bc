package payments

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/DavidLeeR/golem/core/types"
)

// sentRegistry groups submitted-but-unconfirmed payments by the transaction
// hash of their batch, so a single receipt reconciles all members.
type sentRegistry struct {
	mu      sync.Mutex
	batches map[common.Hash][]*types.Payment
}

func newSentRegistry() *sentRegistry {
	return &sentRegistry{
		batches: make(map[common.Hash][]*types.Payment),
	}
}

// Add registers a submitted batch under its transaction hash.
func (r *sentRegistry) Add(tx common.Hash, batch []*types.Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.batches[tx] = batch
	MetricsInflightAdd(len(batch))
	log.Trace("sent batch registered", "tx", tx, "payments", len(batch))
}

// Take removes and returns the batch submitted under the given transaction
// hash.
func (r *sentRegistry) Take(tx common.Hash) ([]*types.Payment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch, exists := r.batches[tx]
	if exists {
		delete(r.batches, tx)
		MetricsInflightRemove(len(batch))
		log.Trace("sent batch taken", "tx", tx, "payments", len(batch))
	}
	return batch, exists
}

// Batches returns the number of unconfirmed batches.
func (r *sentRegistry) Batches() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.batches)
}

// Payments returns the number of payments across all unconfirmed batches.
func (r *sentRegistry) Payments() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, batch := range r.batches {
		count += len(batch)
	}
	return count
}

// TotalValue returns the sum of payment values across all unconfirmed
// batches.
func (r *sentRegistry) TotalValue() *big.Int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := new(big.Int)
	for _, batch := range r.batches {
		for _, p := range batch {
			total.Add(total, p.Value)
		}
	}
	return total
}
