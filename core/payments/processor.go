package payments

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"

	"github.com/DavidLeeR/golem/core/paydb"
	"github.com/DavidLeeR/golem/core/types"
	"github.com/DavidLeeR/golem/params"
	"github.com/DavidLeeR/golem/sci"
)

// Errors
var (
	ErrDuplicateSubtask = errors.New("subtask already has a payment")
	ErrInvalidValue     = errors.New("payment value must be positive")
)

// Converter reports the state of the raw-token conversion gate. While a
// conversion is in flight no batches may be submitted.
type Converter interface {
	IsConverting() bool
	GetGateBalance() (*big.Int, error)
}

// Processor collects outbound payment obligations and settles them on chain
// as coalesced batch transfers. All mutating operations serialize on a single
// mutex; receipts arriving from the SCI are handed off to a dedicated worker
// so the SCI callback thread never blocks on store writes.
type Processor struct {
	mu sync.Mutex

	db   paydb.Database
	sci  sci.SmartContractsInterface
	conv Converter
	cfg  params.PaymentConfig

	now func() time.Time

	awaiting *awaitingSet
	inflight *sentRegistry

	confirmCh chan *ethtypes.Receipt
	quit      chan struct{}
	wg        sync.WaitGroup

	newPaymentFeed     event.Feed
	batchSentFeed      event.Feed
	batchConfirmedFeed event.Feed
	scope              event.SubscriptionScope
}

// NewProcessor creates a payment processor on top of the given record store
// and smart contract interface and starts its confirmation worker.
func NewProcessor(db paydb.Database, s sci.SmartContractsInterface, conv Converter, cfg params.PaymentConfig) *Processor {
	cfg = cfg.Sanitize()
	p := &Processor{
		db:        db,
		sci:       s,
		conv:      conv,
		cfg:       cfg,
		now:       time.Now,
		awaiting:  newAwaitingSet(),
		inflight:  newSentRegistry(),
		confirmCh: make(chan *ethtypes.Receipt, cfg.ConfirmQueueSize),
		quit:      make(chan struct{}),
	}
	p.wg.Add(1)
	go p.confirmLoop()
	return p
}

// Close terminates the confirmation worker and all event subscriptions.
func (p *Processor) Close() {
	p.scope.Close()
	close(p.quit)
	p.wg.Wait()
}

// Add enqueues a new payment obligation and returns its processed timestamp.
// The obligation is durably persisted before it becomes visible. No on-chain
// activity happens here.
func (p *Processor) Add(subtaskID string, payee common.Address, value *big.Int) (uint64, error) {
	if value == nil || value.Sign() <= 0 {
		return 0, ErrInvalidValue
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	exists, err := paydb.HasPayment(p.db, subtaskID)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateSubtask, subtaskID)
	}
	payment := types.NewPayment(subtaskID, payee, value, p.timestamp())
	if err := paydb.WritePayment(p.db, payment); err != nil {
		return 0, err
	}
	p.awaiting.Add(payment)
	p.newPaymentFeed.Send(NewPaymentEvent{Payment: payment.Copy()})
	log.Info("Enqueued payment", "subtask", subtaskID, "payee", payee, "value", value, "processedTs", payment.ProcessedTS)
	return payment.ProcessedTS, nil
}

// LoadFromDB rebuilds the in-memory state from the record store after a
// restart: queued payments re-enter the awaiting set and sent batches are
// re-registered with the SCI so their receipts are still reconciled.
func (p *Processor) LoadFromDB() error {
	p.mu.Lock()

	queued, err := paydb.ReadPaymentsByStatus(p.db, types.PaymentAwaiting, types.PaymentOverdue)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	for _, payment := range queued {
		p.awaiting.Add(payment)
	}
	sent, err := paydb.ReadPaymentsByStatus(p.db, types.PaymentSent)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	var (
		groups = make(map[common.Hash][]*types.Payment)
		order  []common.Hash
	)
	for _, payment := range sent {
		tx := payment.TxHash()
		if _, seen := groups[tx]; !seen {
			order = append(order, tx)
		}
		groups[tx] = append(groups[tx], payment)
	}
	for _, tx := range order {
		p.inflight.Add(tx, groups[tx])
	}
	p.mu.Unlock()

	for _, tx := range order {
		p.sci.OnTransactionConfirmed(tx, p.onConfirmed)
	}
	log.Info("Restored payment queue", "awaiting", len(queued), "inflightBatches", len(order), "inflightPayments", len(sent))
	return nil
}

// Sendout selects the oldest settleable payments, clips them against the
// available resources and submits them as a single batch transfer. It returns
// true iff a batch was submitted. A sendout is only due once the oldest
// queued payment has waited acceptableDelay; passing zero forces an immediate
// flush.
func (p *Processor) Sendout(acceptableDelay time.Duration) (bool, error) {
	defer MetricsSendoutCost(time.Now())

	if p.conv != nil && p.conv.IsConverting() {
		log.Info("Token conversion in progress, delaying sendout")
		return false, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot := p.awaiting.Sorted()
	if len(snapshot) == 0 {
		return false, nil
	}
	now := p.timestamp()
	deadline := snapshot[0].ProcessedTS + uint64(acceptableDelay/time.Second)
	if deadline > now {
		log.Debug("Next sendout not due yet", "in", deadline-now)
		return false, nil
	}
	// Only timestamps older than the closure hysteresis are settleable.
	var cutoff uint64
	if delay := uint64(p.cfg.ClosureTimeDelay / time.Second); now > delay {
		cutoff = now - delay
	}
	candidates := snapshot
	for i, payment := range snapshot {
		if payment.ProcessedTS > cutoff {
			candidates = snapshot[:i]
			break
		}
	}
	if len(candidates) == 0 {
		return false, nil
	}
	batch, closureTime, err := p.clipBatch(candidates)
	if err != nil {
		return false, err
	}
	if len(batch) == 0 {
		return false, nil
	}
	transfers := make([]sci.Payment, len(batch))
	total := new(big.Int)
	for i, payment := range batch {
		transfers[i] = sci.Payment{Payee: payment.Payee, Amount: payment.Value}
		total.Add(total, payment.Value)
	}
	txHash, err := p.sci.BatchTransfer(transfers, closureTime)
	if err != nil {
		// Nothing durable has changed, the next sendout retries identically.
		return false, fmt.Errorf("batch transfer failed: %w", err)
	}
	// Flip the whole batch to sent in one atomic store write, then mutate the
	// in-memory sets.
	sentAt := p.timestamp()
	updated := make([]*types.Payment, len(batch))
	for i, payment := range batch {
		updated[i] = payment.Copy()
		updated[i].MarkSent(txHash, sentAt)
	}
	if err := paydb.WritePayments(p.db, updated); err != nil {
		return false, fmt.Errorf("failed to persist sent batch %s: %w", txHash, err)
	}
	for i, payment := range batch {
		*payment = *updated[i]
		p.awaiting.Remove(payment.SubtaskID)
	}
	p.inflight.Add(txHash, batch)
	p.sci.OnTransactionConfirmed(txHash, p.onConfirmed)

	SubmittedPaymentMeter.Mark(int64(len(batch)))
	p.batchSentFeed.Send(BatchSentEvent{TxHash: txHash, Payments: len(batch), Value: total, ClosureTime: closureTime})
	log.Info("Submitted payment batch", "tx", txHash, "payments", len(batch), "value", total, "closureTime", closureTime)
	return true, nil
}

// clipBatch truncates the candidate list where the token balance, the gas
// balance or the block gas allowance runs out. If the truncation splits a
// processed-timestamp group, the whole group is excluded so the closure time
// boundary stays exact.
func (p *Processor) clipBatch(candidates []*types.Payment) ([]*types.Payment, uint64, error) {
	tokenBalance, err := p.sci.GetTokenBalance()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query token balance: %w", err)
	}
	gasBalance, err := p.sci.GetGasBalance()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query gas balance: %w", err)
	}
	gasPrice, err := p.sci.GetCurrentGasPrice()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query gas price: %w", err)
	}
	block, err := p.sci.GetLatestConfirmedBlock()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query latest block: %w", err)
	}
	MetricsBalances(tokenBalance, gasBalance)

	est := newBatchEstimator(
		tokenBalance, gasBalance, gasPrice,
		block.GasLimit/p.cfg.BlockGasLimitRatio,
		p.sci.GasBatchPaymentBase(), p.sci.GasPerPayment(),
	)
	n := est.Clip(candidates)
	batch := candidates[:n]
	if n < len(candidates) {
		// All-or-none per timestamp: drop the tail sharing the first excluded
		// payment's timestamp.
		cut := candidates[n].ProcessedTS
		for len(batch) > 0 && batch[len(batch)-1].ProcessedTS == cut {
			batch = batch[:len(batch)-1]
		}
		log.Info("Not all payments fit the batch", "candidates", len(candidates), "included", len(batch))
	}
	if len(batch) == 0 {
		return nil, 0, nil
	}
	return batch, batch[len(batch)-1].ProcessedTS, nil
}

// UpdateOverdue flags every queued payment past the payment deadline as
// overdue. Overdue payments stay in the awaiting set and remain eligible for
// batching.
func (p *Processor) UpdateOverdue() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var (
		now      = p.timestamp()
		deadline = uint64(p.cfg.PaymentDeadline / time.Second)
		stale    []*types.Payment
		updated  []*types.Payment
	)
	for _, payment := range p.awaiting.Payments() {
		if payment.Status != types.PaymentAwaiting {
			continue
		}
		if now > payment.ProcessedTS && now-payment.ProcessedTS > deadline {
			up := payment.Copy()
			up.MarkOverdue(now)
			stale = append(stale, payment)
			updated = append(updated, up)
		}
	}
	if len(updated) == 0 {
		return nil
	}
	if err := paydb.WritePayments(p.db, updated); err != nil {
		return fmt.Errorf("failed to persist overdue payments: %w", err)
	}
	for i, payment := range stale {
		*payment = *updated[i]
	}
	OverduePaymentMeter.Mark(int64(len(updated)))
	log.Warn("Payments overdue", "count", len(updated), "deadline", p.cfg.PaymentDeadline)
	return nil
}

// ReservedAmount returns the sum of all payment values not yet confirmed on
// chain; these funds must remain available to the processor.
func (p *Processor) ReservedAmount() *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return new(big.Int).Add(p.awaiting.TotalValue(), p.inflight.TotalValue())
}

// RecipientsCount returns the number of payments still awaiting submission.
func (p *Processor) RecipientsCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.awaiting.Len()
}

// SubscribeNewPaymentEvent registers a subscription of NewPaymentEvent.
func (p *Processor) SubscribeNewPaymentEvent(ch chan<- NewPaymentEvent) event.Subscription {
	return p.scope.Track(p.newPaymentFeed.Subscribe(ch))
}

// SubscribeBatchSentEvent registers a subscription of BatchSentEvent.
func (p *Processor) SubscribeBatchSentEvent(ch chan<- BatchSentEvent) event.Subscription {
	return p.scope.Track(p.batchSentFeed.Subscribe(ch))
}

// SubscribeBatchConfirmedEvent registers a subscription of
// BatchConfirmedEvent.
func (p *Processor) SubscribeBatchConfirmedEvent(ch chan<- BatchConfirmedEvent) event.Subscription {
	return p.scope.Track(p.batchConfirmedFeed.Subscribe(ch))
}

// onConfirmed is invoked from the SCI's callback thread; it hands the receipt
// to the confirmation worker.
func (p *Processor) onConfirmed(receipt *ethtypes.Receipt) {
	select {
	case p.confirmCh <- receipt:
	case <-p.quit:
	}
}

func (p *Processor) confirmLoop() {
	defer p.wg.Done()

	for {
		select {
		case receipt := <-p.confirmCh:
			if err := p.handleReceipt(receipt); err != nil {
				log.Error("Failed to reconcile batch receipt", "tx", receipt.TxHash, "err", err)
			}
		case <-p.quit:
			return
		}
	}
}

// handleReceipt reconciles a confirmed batch: on success its payments are
// flipped to confirmed with block metadata and their share of the fee, on
// failure they return to the queue for reselection. Store writes precede the
// in-memory set mutations.
func (p *Processor) handleReceipt(receipt *ethtypes.Receipt) error {
	defer MetricsConfirmCost(time.Now())

	p.mu.Lock()
	defer p.mu.Unlock()

	batch, ok := p.inflight.Take(receipt.TxHash)
	if !ok {
		log.Warn("Receipt for unknown batch", "tx", receipt.TxHash)
		return nil
	}
	now := p.timestamp()
	if receipt.Status == ethtypes.ReceiptStatusSuccessful {
		gasPrice, err := p.sci.GetTransactionGasPrice(receipt.TxHash)
		if err != nil {
			p.inflight.Add(receipt.TxHash, batch)
			return fmt.Errorf("failed to query transaction gas price: %w", err)
		}
		totalFee := new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), gasPrice)
		fee := new(big.Int).Div(totalFee, big.NewInt(int64(len(batch))))

		updated := make([]*types.Payment, len(batch))
		for i, payment := range batch {
			updated[i] = payment.Copy()
			updated[i].MarkConfirmed(receipt.BlockNumber.Uint64(), receipt.BlockHash, fee, now)
		}
		if err := paydb.WritePayments(p.db, updated); err != nil {
			p.inflight.Add(receipt.TxHash, batch)
			return fmt.Errorf("failed to persist confirmed batch: %w", err)
		}
		for i, payment := range batch {
			*payment = *updated[i]
		}
		ConfirmedPaymentMeter.Mark(int64(len(batch)))
		p.batchConfirmedFeed.Send(BatchConfirmedEvent{TxHash: receipt.TxHash, Payments: len(batch), Success: true, Fee: totalFee})
		log.Info("Payment batch confirmed", "tx", receipt.TxHash, "payments", len(batch), "block", receipt.BlockNumber, "fee", totalFee)
		return nil
	}
	updated := make([]*types.Payment, len(batch))
	for i, payment := range batch {
		updated[i] = payment.Copy()
		updated[i].MarkAwaiting(now)
	}
	if err := paydb.WritePayments(p.db, updated); err != nil {
		p.inflight.Add(receipt.TxHash, batch)
		return fmt.Errorf("failed to persist failed batch: %w", err)
	}
	for i, payment := range batch {
		*payment = *updated[i]
		p.awaiting.Add(payment)
	}
	FailedPaymentMeter.Mark(int64(len(batch)))
	p.batchConfirmedFeed.Send(BatchConfirmedEvent{TxHash: receipt.TxHash, Payments: len(batch), Success: false})
	log.Warn("Payment batch failed on chain, payments returned to queue", "tx", receipt.TxHash, "payments", len(batch))
	return nil
}

func (p *Processor) timestamp() uint64 {
	return uint64(p.now().Unix())
}
