package types

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// PaymentStatus is the settlement state of a payment record.
type PaymentStatus uint8

const (
	PaymentAwaiting PaymentStatus = iota + 1 // queued, not yet part of a submitted batch
	PaymentSent                              // included in a submitted, unconfirmed batch
	PaymentConfirmed                         // settled on chain
	PaymentOverdue                           // queued past the payment deadline, still eligible for batching
)

func (s PaymentStatus) String() string {
	switch s {
	case PaymentAwaiting:
		return "awaiting"
	case PaymentSent:
		return "sent"
	case PaymentConfirmed:
		return "confirmed"
	case PaymentOverdue:
		return "overdue"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

func (s PaymentStatus) MarshalText() ([]byte, error) {
	switch s {
	case PaymentAwaiting, PaymentSent, PaymentConfirmed, PaymentOverdue:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("invalid payment status %d", uint8(s))
	}
}

func (s *PaymentStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "awaiting":
		*s = PaymentAwaiting
	case "sent":
		*s = PaymentSent
	case "confirmed":
		*s = PaymentConfirmed
	case "overdue":
		*s = PaymentOverdue
	default:
		return fmt.Errorf("invalid payment status %q", text)
	}
	return nil
}

// PaymentDetails carries the on-chain association of a payment. Tx and
// BlockHash are hex encoded without a 0x prefix; empty means unset.
type PaymentDetails struct {
	Tx          string   `json:"tx,omitempty"`
	BlockNumber uint64   `json:"blockNumber,omitempty"`
	BlockHash   string   `json:"blockHash,omitempty"`
	Fee         *big.Int `json:"fee,omitempty"`
}

// Payment is a durable outbound payment obligation.
type Payment struct {
	SubtaskID   string
	Payee       common.Address
	Value       *big.Int
	ProcessedTS uint64
	Status      PaymentStatus
	Details     PaymentDetails
	CreatedTS   uint64
	ModifiedTS  uint64
}

// NewPayment constructs an awaiting payment with its processed timestamp
// pinned to now.
func NewPayment(subtaskID string, payee common.Address, value *big.Int, now uint64) *Payment {
	return &Payment{
		SubtaskID:   subtaskID,
		Payee:       payee,
		Value:       new(big.Int).Set(value),
		ProcessedTS: now,
		Status:      PaymentAwaiting,
		CreatedTS:   now,
		ModifiedTS:  now,
	}
}

// Copy returns a deep copy of the payment.
func (p *Payment) Copy() *Payment {
	cpy := *p
	if p.Value != nil {
		cpy.Value = new(big.Int).Set(p.Value)
	}
	if p.Details.Fee != nil {
		cpy.Details.Fee = new(big.Int).Set(p.Details.Fee)
	}
	return &cpy
}

// TxHash returns the associated transaction hash, or the zero hash if the
// payment has not been sent.
func (p *Payment) TxHash() common.Hash {
	if p.Details.Tx == "" {
		return common.Hash{}
	}
	return common.HexToHash(p.Details.Tx)
}

// MarkSent flips the payment into the sent state under the given transaction.
func (p *Payment) MarkSent(tx common.Hash, now uint64) {
	p.Status = PaymentSent
	p.Details.Tx = tx.Hex()[2:]
	p.ModifiedTS = now
}

// MarkConfirmed flips the payment into the confirmed state with its block
// association and settlement fee.
func (p *Payment) MarkConfirmed(blockNumber uint64, blockHash common.Hash, fee *big.Int, now uint64) {
	p.Status = PaymentConfirmed
	p.Details.BlockNumber = blockNumber
	p.Details.BlockHash = blockHash.Hex()[2:]
	p.Details.Fee = new(big.Int).Set(fee)
	p.ModifiedTS = now
}

// MarkAwaiting returns the payment to the queue, dropping its transaction
// association. Used when a submitted batch fails on chain.
func (p *Payment) MarkAwaiting(now uint64) {
	p.Status = PaymentAwaiting
	p.Details.Tx = ""
	p.ModifiedTS = now
}

// MarkOverdue flags the payment as past its settlement deadline.
func (p *Payment) MarkOverdue(now uint64) {
	p.Status = PaymentOverdue
	p.ModifiedTS = now
}

type paymentMarshaling struct {
	SubtaskID   string         `json:"subtask"`
	Payee       common.Address `json:"payee"`
	Value       *hexutil.Big   `json:"value"`
	ProcessedTS hexutil.Uint64 `json:"processedTs"`
	Status      PaymentStatus  `json:"status"`
	Details     paymentDetailsMarshaling `json:"details"`
	CreatedTS   hexutil.Uint64 `json:"createdTs"`
	ModifiedTS  hexutil.Uint64 `json:"modifiedTs"`
}

type paymentDetailsMarshaling struct {
	Tx          string         `json:"tx,omitempty"`
	BlockNumber hexutil.Uint64 `json:"blockNumber,omitempty"`
	BlockHash   string         `json:"blockHash,omitempty"`
	Fee         *hexutil.Big   `json:"fee,omitempty"`
}

func (p *Payment) MarshalJSON() ([]byte, error) {
	enc := paymentMarshaling{
		SubtaskID:   p.SubtaskID,
		Payee:       p.Payee,
		Value:       (*hexutil.Big)(p.Value),
		ProcessedTS: hexutil.Uint64(p.ProcessedTS),
		Status:      p.Status,
		Details: paymentDetailsMarshaling{
			Tx:          p.Details.Tx,
			BlockNumber: hexutil.Uint64(p.Details.BlockNumber),
			BlockHash:   p.Details.BlockHash,
			Fee:         (*hexutil.Big)(p.Details.Fee),
		},
		CreatedTS:  hexutil.Uint64(p.CreatedTS),
		ModifiedTS: hexutil.Uint64(p.ModifiedTS),
	}
	return json.Marshal(&enc)
}

func (p *Payment) UnmarshalJSON(input []byte) error {
	var dec paymentMarshaling
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	if dec.Value == nil {
		return fmt.Errorf("payment %q missing value", dec.SubtaskID)
	}
	p.SubtaskID = dec.SubtaskID
	p.Payee = dec.Payee
	p.Value = (*big.Int)(dec.Value)
	p.ProcessedTS = uint64(dec.ProcessedTS)
	p.Status = dec.Status
	p.Details = PaymentDetails{
		Tx:          dec.Details.Tx,
		BlockNumber: uint64(dec.Details.BlockNumber),
		BlockHash:   dec.Details.BlockHash,
		Fee:         (*big.Int)(dec.Details.Fee),
	}
	p.CreatedTS = uint64(dec.CreatedTS)
	p.ModifiedTS = uint64(dec.ModifiedTS)
	return nil
}
