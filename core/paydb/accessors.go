package paydb

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/DavidLeeR/golem/core/types"
)

// ReadPayment retrieves the payment stored under the given subtask id, or
// ErrNotFound if no such record exists.
func ReadPayment(db Database, subtaskID string) (*types.Payment, error) {
	data, err := db.Get(paymentKey(subtaskID))
	if err != nil {
		return nil, err
	}
	payment := new(types.Payment)
	if err := json.Unmarshal(data, payment); err != nil {
		return nil, fmt.Errorf("corrupt payment record %q: %w", subtaskID, err)
	}
	return payment, nil
}

// HasPayment reports whether a payment is stored under the given subtask id.
func HasPayment(db Database, subtaskID string) (bool, error) {
	return db.Has(paymentKey(subtaskID))
}

// WritePayment stores a single payment record.
func WritePayment(db Database, payment *types.Payment) error {
	data, err := json.Marshal(payment)
	if err != nil {
		return fmt.Errorf("failed to encode payment %q: %w", payment.SubtaskID, err)
	}
	return db.Put(paymentKey(payment.SubtaskID), data)
}

// WritePayments stores a set of payment records in a single atomic batch.
func WritePayments(db Database, payments []*types.Payment) error {
	batch := db.NewBatch()
	for _, payment := range payments {
		data, err := json.Marshal(payment)
		if err != nil {
			return fmt.Errorf("failed to encode payment %q: %w", payment.SubtaskID, err)
		}
		if err := batch.Put(paymentKey(payment.SubtaskID), data); err != nil {
			return err
		}
	}
	return batch.Write()
}

// DeletePayment removes the payment stored under the given subtask id.
func DeletePayment(db Database, subtaskID string) error {
	return db.Delete(paymentKey(subtaskID))
}

// ReadAllPayments retrieves every stored payment, ordered by creation
// timestamp with subtask id as the tie breaker.
func ReadAllPayments(db Database) ([]*types.Payment, error) {
	it := db.NewIterator(paymentPrefix)
	defer it.Release()

	var payments []*types.Payment
	for it.Next() {
		payment := new(types.Payment)
		if err := json.Unmarshal(it.Value(), payment); err != nil {
			return nil, fmt.Errorf("corrupt payment record %q: %w", it.Key(), err)
		}
		payments = append(payments, payment)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	sort.SliceStable(payments, func(i, j int) bool {
		if payments[i].CreatedTS != payments[j].CreatedTS {
			return payments[i].CreatedTS < payments[j].CreatedTS
		}
		return payments[i].SubtaskID < payments[j].SubtaskID
	})
	return payments, nil
}

// ReadPaymentsByStatus retrieves every stored payment whose status matches one
// of the given statuses, in ReadAllPayments order.
func ReadPaymentsByStatus(db Database, statuses ...types.PaymentStatus) ([]*types.Payment, error) {
	all, err := ReadAllPayments(db)
	if err != nil {
		return nil, err
	}
	var payments []*types.Payment
	for _, payment := range all {
		for _, status := range statuses {
			if payment.Status == status {
				payments = append(payments, payment)
				break
			}
		}
	}
	return payments, nil
}
