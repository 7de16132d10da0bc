package sci

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

const trackerPollInterval = 10 * time.Second

// receiptBackend is the chain access the receipt tracker needs.
type receiptBackend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// receiptTracker polls for receipts of watched transactions and fires the
// registered callbacks once the containing block is confirmed. Callbacks are
// one-shot and dispatched on their own goroutine.
type receiptTracker struct {
	mu      sync.Mutex
	backend receiptBackend
	confs   uint64
	subs    map[common.Hash][]func(*types.Receipt)

	quit chan struct{}
	wg   sync.WaitGroup
}

func newReceiptTracker(backend receiptBackend, confs uint64) *receiptTracker {
	t := &receiptTracker{
		backend: backend,
		confs:   confs,
		subs:    make(map[common.Hash][]func(*types.Receipt)),
		quit:    make(chan struct{}),
	}
	t.wg.Add(1)
	go t.loop()
	return t
}

func (t *receiptTracker) subscribe(tx common.Hash, cb func(*types.Receipt)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.subs[tx] = append(t.subs[tx], cb)
	log.Debug("Watching transaction", "tx", tx)
}

func (t *receiptTracker) stop() {
	close(t.quit)
	t.wg.Wait()
}

func (t *receiptTracker) loop() {
	defer t.wg.Done()

	ticker := time.NewTicker(trackerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.check()
		case <-t.quit:
			return
		}
	}
}

func (t *receiptTracker) check() {
	t.mu.Lock()
	pending := make([]common.Hash, 0, len(t.subs))
	for tx := range t.subs {
		pending = append(pending, tx)
	}
	t.mu.Unlock()

	if len(pending) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	head, err := t.backend.BlockNumber(ctx)
	if err != nil {
		log.Error("Failed to retrieve head block number", "err", err)
		return
	}
	for _, tx := range pending {
		receipt, err := t.backend.TransactionReceipt(ctx, tx)
		if err != nil {
			if !errors.Is(err, ethereum.NotFound) {
				log.Error("Failed to retrieve receipt", "tx", tx, "err", err)
			}
			continue
		}
		if receipt.BlockNumber == nil || receipt.BlockNumber.Uint64()+t.confs > head {
			continue
		}
		t.mu.Lock()
		cbs := t.subs[tx]
		delete(t.subs, tx)
		t.mu.Unlock()

		log.Debug("Transaction confirmed", "tx", tx, "block", receipt.BlockNumber, "status", receipt.Status)
		for _, cb := range cbs {
			t.wg.Add(1)
			go func(cb func(*types.Receipt)) {
				defer t.wg.Done()
				cb(receipt)
			}(cb)
		}
	}
}
