package payments

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DavidLeeR/golem/core/types"
)

func TestSentRegistry(t *testing.T) {
	reg := newSentRegistry()
	assert.Equal(t, 0, reg.Batches())
	assert.Equal(t, 0, reg.Payments())

	tx1 := common.HexToHash("0x01")
	tx2 := common.HexToHash("0x02")
	reg.Add(tx1, []*types.Payment{
		newQueuedPayment("a", 1, 100),
		newQueuedPayment("b", 2, 100),
	})
	reg.Add(tx2, []*types.Payment{
		newQueuedPayment("c", 4, 200),
	})
	assert.Equal(t, 2, reg.Batches())
	assert.Equal(t, 3, reg.Payments())
	assert.Zero(t, reg.TotalValue().Cmp(big.NewInt(7)))

	batch, ok := reg.Take(tx1)
	require.True(t, ok)
	require.Len(t, batch, 2)
	assert.Equal(t, "a", batch[0].SubtaskID)
	assert.Equal(t, 1, reg.Batches())
	assert.Zero(t, reg.TotalValue().Cmp(big.NewInt(4)))

	// A batch can only be taken once.
	_, ok = reg.Take(tx1)
	assert.False(t, ok)
	_, ok = reg.Take(common.HexToHash("0xff"))
	assert.False(t, ok)
}
