package payments

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessorEventFeeds(t *testing.T) {
	p, s, _, clock, _ := newTestProcessor(t)
	s.tokenBalance = ethers(1000)
	s.gasBalance = ethers(1000)

	newCh := make(chan NewPaymentEvent, 4)
	sentCh := make(chan BatchSentEvent, 4)
	confirmedCh := make(chan BatchConfirmedEvent, 4)
	defer p.SubscribeNewPaymentEvent(newCh).Unsubscribe()
	defer p.SubscribeBatchSentEvent(sentCh).Unsubscribe()
	defer p.SubscribeBatchConfirmedEvent(confirmedCh).Unsubscribe()

	clock.Set(100)
	_, err := p.Add("evt", common.HexToAddress("0xaa"), big.NewInt(7))
	require.NoError(t, err)
	ev := <-newCh
	assert.Equal(t, "evt", ev.Payment.SubtaskID)
	// The event carries a copy, mutating it must not leak back.
	ev.Payment.Value.SetInt64(99)
	assert.Zero(t, p.ReservedAmount().Cmp(big.NewInt(7)))

	clock.Set(10_000)
	sent, err := p.Sendout(0)
	require.NoError(t, err)
	require.True(t, sent)
	sentEv := <-sentCh
	assert.Equal(t, s.txHash, sentEv.TxHash)
	assert.Equal(t, 1, sentEv.Payments)
	assert.Equal(t, uint64(100), sentEv.ClosureTime)
	assert.Zero(t, sentEv.Value.Cmp(big.NewInt(7)))

	require.NoError(t, p.handleReceipt(failedReceipt(s.txHash)))
	confEv := <-confirmedCh
	assert.Equal(t, s.txHash, confEv.TxHash)
	assert.False(t, confEv.Success)
	assert.Nil(t, confEv.Fee)

	sent, err = p.Sendout(0)
	require.NoError(t, err)
	require.True(t, sent)
	<-sentCh
	require.NoError(t, p.handleReceipt(successReceipt(s.txHash, 1, 1000)))
	confEv = <-confirmedCh
	assert.True(t, confEv.Success)
	require.NotNil(t, confEv.Fee)
	assert.Zero(t, confEv.Fee.Cmp(new(big.Int).Mul(big.NewInt(1000), big.NewInt(testGasPrice))))
}
