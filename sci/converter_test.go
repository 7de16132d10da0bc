package sci

import (
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gateCall struct {
	method string
	to     common.Address
	amount *big.Int
}

// fakeGateClient records conversion calls and captures the confirmation
// callbacks so tests can fire them manually.
type fakeGateClient struct {
	mu        sync.Mutex
	gate      common.Address
	balances  map[common.Address]*big.Int
	calls     []gateCall
	callbacks map[common.Hash]func(*types.Receipt)
	nextTx    byte
}

func newFakeGateClient() *fakeGateClient {
	return &fakeGateClient{
		balances:  make(map[common.Address]*big.Int),
		callbacks: make(map[common.Hash]func(*types.Receipt)),
	}
}

func (c *fakeGateClient) Address() common.Address {
	return common.HexToAddress("0x0e7e4a707")
}

func (c *fakeGateClient) GetGateAddress() (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gate, nil
}

func (c *fakeGateClient) newTx() common.Hash {
	c.nextTx++
	return common.BytesToHash([]byte{c.nextTx})
}

func (c *fakeGateClient) OpenGate() (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, gateCall{method: "openGate"})
	return c.newTx(), nil
}

func (c *fakeGateClient) TransferRawToken(to common.Address, amount *big.Int) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, gateCall{method: "transferRawToken", to: to, amount: new(big.Int).Set(amount)})
	return c.newTx(), nil
}

func (c *fakeGateClient) TransferFromGate() (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, gateCall{method: "transferFromGate"})
	return c.newTx(), nil
}

func (c *fakeGateClient) GetRawTokenBalance(addr common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if balance, ok := c.balances[addr]; ok {
		return new(big.Int).Set(balance), nil
	}
	return new(big.Int), nil
}

func (c *fakeGateClient) OnTransactionConfirmed(tx common.Hash, cb func(*types.Receipt)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks[tx] = cb
}

// confirm fires the callback registered for the most recent transaction.
func (c *fakeGateClient) confirm(t *testing.T, status uint64) {
	t.Helper()

	c.mu.Lock()
	tx := common.BytesToHash([]byte{c.nextTx})
	cb, ok := c.callbacks[tx]
	delete(c.callbacks, tx)
	c.mu.Unlock()
	require.True(t, ok, "no callback registered for %s", tx)
	cb(&types.Receipt{TxHash: tx, Status: status})
}

func (c *fakeGateClient) methods() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	methods := make([]string, len(c.calls))
	for i, call := range c.calls {
		methods[i] = call.method
	}
	return methods
}

func TestConvertOpensGateFirst(t *testing.T) {
	client := newFakeGateClient()
	conv := NewTokenConverter(client)
	require.False(t, conv.IsConverting())

	require.NoError(t, conv.Convert(big.NewInt(100)))
	assert.True(t, conv.IsConverting())
	assert.Equal(t, []string{"openGate"}, client.methods())

	// Gate opened on chain, funding follows.
	client.gate = common.HexToAddress("0x6a7e")
	client.confirm(t, types.ReceiptStatusSuccessful)
	assert.True(t, conv.IsConverting())
	assert.Equal(t, []string{"openGate", "transferRawToken"}, client.methods())
	assert.Equal(t, client.gate, client.calls[1].to)
	assert.Zero(t, client.calls[1].amount.Cmp(big.NewInt(100)))

	// Gate funded, sweep follows.
	client.confirm(t, types.ReceiptStatusSuccessful)
	assert.True(t, conv.IsConverting())
	assert.Equal(t, []string{"openGate", "transferRawToken", "transferFromGate"}, client.methods())

	// Sweep confirmed, conversion done.
	client.confirm(t, types.ReceiptStatusSuccessful)
	assert.False(t, conv.IsConverting())
}

func TestConvertWithExistingGate(t *testing.T) {
	client := newFakeGateClient()
	client.gate = common.HexToAddress("0x6a7e")
	conv := NewTokenConverter(client)

	require.NoError(t, conv.Convert(big.NewInt(50)))
	assert.Equal(t, []string{"transferRawToken"}, client.methods())
	assert.True(t, conv.IsConverting())
}

func TestConvertRejectsConcurrent(t *testing.T) {
	client := newFakeGateClient()
	client.gate = common.HexToAddress("0x6a7e")
	conv := NewTokenConverter(client)

	require.NoError(t, conv.Convert(big.NewInt(1)))
	assert.ErrorIs(t, conv.Convert(big.NewInt(2)), ErrConversionInProgress)

	// Once settled, a new conversion may start.
	client.confirm(t, types.ReceiptStatusSuccessful)
	client.confirm(t, types.ReceiptStatusSuccessful)
	client.confirm(t, types.ReceiptStatusSuccessful)
	require.False(t, conv.IsConverting())
	assert.NoError(t, conv.Convert(big.NewInt(2)))
}

func TestConvertStopsOnFailedStep(t *testing.T) {
	client := newFakeGateClient()
	client.gate = common.HexToAddress("0x6a7e")
	conv := NewTokenConverter(client)

	require.NoError(t, conv.Convert(big.NewInt(10)))
	client.confirm(t, types.ReceiptStatusFailed)
	assert.False(t, conv.IsConverting())
	// The sweep was never attempted.
	assert.Equal(t, []string{"transferRawToken"}, client.methods())
}

func TestGetGateBalance(t *testing.T) {
	client := newFakeGateClient()
	conv := NewTokenConverter(client)

	// No gate opened yet: nothing parked.
	balance, err := conv.GetGateBalance()
	require.NoError(t, err)
	assert.Zero(t, balance.Sign())

	gate := common.HexToAddress("0x6a7e")
	client.gate = gate
	client.balances[gate] = big.NewInt(1234)
	balance, err = conv.GetGateBalance()
	require.NoError(t, err)
	assert.Zero(t, balance.Cmp(big.NewInt(1234)))
}
