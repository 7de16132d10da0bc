package paydb

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DavidLeeR/golem/core/types"
)

func TestPaymentRoundtrip(t *testing.T) {
	db := NewMemoryDatabase()

	payment := types.NewPayment("subtask-1", common.HexToAddress("0xdeadbeef"), big.NewInt(12345), 1_000_000)
	payment.MarkSent(common.HexToHash("0xabcd"), 1_000_100)
	payment.MarkConfirmed(42, common.HexToHash("0xff01"), big.NewInt(777), 1_000_200)

	require.NoError(t, WritePayment(db, payment))
	stored, err := ReadPayment(db, "subtask-1")
	require.NoError(t, err)
	assert.Equal(t, payment, stored)
	assert.Equal(t, common.HexToHash("0xabcd").Hex()[2:], stored.Details.Tx)
	assert.Equal(t, common.HexToHash("0xff01").Hex()[2:], stored.Details.BlockHash)

	has, err := HasPayment(db, "subtask-1")
	require.NoError(t, err)
	assert.True(t, has)
	has, err = HasPayment(db, "subtask-2")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = ReadPayment(db, "subtask-2")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, DeletePayment(db, "subtask-1"))
	_, err = ReadPayment(db, "subtask-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadAllPaymentsOrder(t *testing.T) {
	db := NewMemoryDatabase()

	// Stored under lexicographic keys, read back in creation order.
	p1 := types.NewPayment("zz-first", common.HexToAddress("0x1"), big.NewInt(1), 100)
	p2 := types.NewPayment("aa-second", common.HexToAddress("0x2"), big.NewInt(2), 200)
	p3 := types.NewPayment("mm-tied", common.HexToAddress("0x3"), big.NewInt(3), 200)
	require.NoError(t, WritePayments(db, []*types.Payment{p2, p3, p1}))

	all, err := ReadAllPayments(db)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "zz-first", all[0].SubtaskID)
	// Ties on creation time break on subtask id.
	assert.Equal(t, "aa-second", all[1].SubtaskID)
	assert.Equal(t, "mm-tied", all[2].SubtaskID)
}

func TestReadPaymentsByStatus(t *testing.T) {
	db := NewMemoryDatabase()

	awaiting := types.NewPayment("a", common.HexToAddress("0x1"), big.NewInt(1), 100)
	sent := types.NewPayment("b", common.HexToAddress("0x2"), big.NewInt(2), 200)
	sent.MarkSent(common.HexToHash("0x01"), 300)
	overdue := types.NewPayment("c", common.HexToAddress("0x3"), big.NewInt(3), 300)
	overdue.MarkOverdue(400)
	require.NoError(t, WritePayments(db, []*types.Payment{awaiting, sent, overdue}))

	queued, err := ReadPaymentsByStatus(db, types.PaymentAwaiting, types.PaymentOverdue)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, "a", queued[0].SubtaskID)
	assert.Equal(t, "c", queued[1].SubtaskID)

	inflight, err := ReadPaymentsByStatus(db, types.PaymentSent)
	require.NoError(t, err)
	require.Len(t, inflight, 1)
	assert.Equal(t, "b", inflight[0].SubtaskID)

	none, err := ReadPaymentsByStatus(db, types.PaymentConfirmed)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCorruptPaymentRecord(t *testing.T) {
	db := NewMemoryDatabase()
	require.NoError(t, db.Put(paymentKey("broken"), []byte("{not json")))

	_, err := ReadPayment(db, "broken")
	assert.Error(t, err)
	_, err = ReadAllPayments(db)
	assert.Error(t, err)
}
