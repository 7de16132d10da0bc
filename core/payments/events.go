package payments

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DavidLeeR/golem/core/types"
)

// NewPaymentEvent is posted when a payment obligation enters the queue.
type NewPaymentEvent struct {
	Payment *types.Payment
}

// BatchSentEvent is posted when a batch transfer has been submitted and its
// payments flipped to sent.
type BatchSentEvent struct {
	TxHash      common.Hash
	Payments    int
	Value       *big.Int
	ClosureTime uint64
}

// BatchConfirmedEvent is posted when a submitted batch has been reconciled
// against its receipt. Success reports the on-chain outcome; on failure the
// payments have been returned to the queue and Fee is nil.
type BatchConfirmedEvent struct {
	TxHash   common.Hash
	Payments int
	Success  bool
	Fee      *big.Int
}
