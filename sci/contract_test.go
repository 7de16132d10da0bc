package sci

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeBatchPayment(t *testing.T) {
	payee := common.HexToAddress("0x00112233445566778899aabbccddeeff00112233")
	packed, err := encodeBatchPayment(Payment{Payee: payee, Amount: big.NewInt(0x0102)})
	require.NoError(t, err)

	// 20 bytes of payee followed by the amount, big endian.
	assert.Equal(t, payee.Bytes(), packed[:20])
	want := make([]byte, 12)
	want[10] = 0x01
	want[11] = 0x02
	assert.Equal(t, want, packed[20:])
}

func TestEncodeBatchPaymentBounds(t *testing.T) {
	payee := common.HexToAddress("0x1")

	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(1))
	packed, err := encodeBatchPayment(Payment{Payee: payee, Amount: max})
	require.NoError(t, err)
	for _, b := range packed[20:] {
		assert.EqualValues(t, 0xff, b)
	}

	_, err = encodeBatchPayment(Payment{Payee: payee, Amount: new(big.Int).Lsh(big.NewInt(1), 96)})
	assert.Error(t, err)
	_, err = encodeBatchPayment(Payment{Payee: payee, Amount: big.NewInt(-1)})
	assert.Error(t, err)
	_, err = encodeBatchPayment(Payment{Payee: payee})
	assert.Error(t, err)
}

func TestEncodeBatch(t *testing.T) {
	batch, err := encodeBatch([]Payment{
		{Payee: common.HexToAddress("0x1"), Amount: big.NewInt(1)},
		{Payee: common.HexToAddress("0x2"), Amount: big.NewInt(2)},
	})
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.EqualValues(t, 1, batch[0][31])
	assert.EqualValues(t, 2, batch[1][31])

	_, err = encodeBatch([]Payment{{Payee: common.HexToAddress("0x1")}})
	assert.Error(t, err)
}

func TestContractABIs(t *testing.T) {
	// The methods the client binds against must exist in the parsed ABIs.
	for _, name := range []string{"balanceOf", "transfer"} {
		_, ok := tokenABI.Methods[name]
		assert.True(t, ok, "token ABI missing %s", name)
	}
	for _, name := range []string{"balanceOf", "batchTransfer", "getGateAddress", "openGate", "transferFromGate"} {
		_, ok := batchingTokenABI.Methods[name]
		assert.True(t, ok, "batching token ABI missing %s", name)
	}
}
