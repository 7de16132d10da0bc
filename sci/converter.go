package sci

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

var ErrConversionInProgress = errors.New("token conversion already in progress")

// gateClient is the subset of the SCI client the converter drives.
type gateClient interface {
	Address() common.Address
	GetGateAddress() (common.Address, error)
	OpenGate() (common.Hash, error)
	TransferRawToken(to common.Address, amount *big.Int) (common.Hash, error)
	TransferFromGate() (common.Hash, error)
	GetRawTokenBalance(addr common.Address) (*big.Int, error)
	OnTransactionConfirmed(tx common.Hash, cb func(*types.Receipt))
}

// TokenConverter wraps the raw token into the batch-transferable one through
// the operator's personal gate: open the gate once, fund it with the raw
// token, then sweep it into the batching token. Each step is chained off the
// previous step's confirmation; while any step is in flight the converter
// reports IsConverting and the payment processor holds off sendouts.
type TokenConverter struct {
	mu       sync.Mutex
	client   gateClient
	gate     common.Address
	inflight int
}

func NewTokenConverter(client gateClient) *TokenConverter {
	return &TokenConverter{client: client}
}

// IsConverting reports whether a conversion step is awaiting confirmation.
func (c *TokenConverter) IsConverting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.inflight > 0
}

// GetGateBalance returns the raw token balance currently parked in the gate.
func (c *TokenConverter) GetGateBalance() (*big.Int, error) {
	c.mu.Lock()
	gate := c.gate
	c.mu.Unlock()

	if gate == (common.Address{}) {
		var err error
		if gate, err = c.client.GetGateAddress(); err != nil {
			return nil, err
		}
		if gate == (common.Address{}) {
			return new(big.Int), nil
		}
		c.mu.Lock()
		c.gate = gate
		c.mu.Unlock()
	}
	return c.client.GetRawTokenBalance(gate)
}

// Convert starts converting the given amount of the raw token. The conversion
// runs asynchronously; completion is observable through IsConverting.
func (c *TokenConverter) Convert(amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inflight > 0 {
		return ErrConversionInProgress
	}
	gate, err := c.client.GetGateAddress()
	if err != nil {
		return err
	}
	if gate == (common.Address{}) {
		tx, err := c.client.OpenGate()
		if err != nil {
			return err
		}
		c.inflight++
		c.client.OnTransactionConfirmed(tx, func(receipt *types.Receipt) {
			c.onGateOpened(receipt, amount)
		})
		log.Info("Opening conversion gate", "tx", tx)
		return nil
	}
	c.gate = gate
	return c.fundGate(amount)
}

func (c *TokenConverter) onGateOpened(receipt *types.Receipt, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inflight--
	if receipt.Status != types.ReceiptStatusSuccessful {
		log.Error("Opening conversion gate failed", "tx", receipt.TxHash)
		return
	}
	gate, err := c.client.GetGateAddress()
	if err != nil || gate == (common.Address{}) {
		log.Error("Failed to resolve opened gate", "err", err)
		return
	}
	c.gate = gate
	if err := c.fundGate(amount); err != nil {
		log.Error("Failed to fund conversion gate", "err", err)
	}
}

// fundGate moves the raw token into the gate. Callers hold the lock.
func (c *TokenConverter) fundGate(amount *big.Int) error {
	tx, err := c.client.TransferRawToken(c.gate, amount)
	if err != nil {
		return err
	}
	c.inflight++
	c.client.OnTransactionConfirmed(tx, c.onGateFunded)
	log.Info("Funding conversion gate", "tx", tx, "gate", c.gate, "amount", amount)
	return nil
}

func (c *TokenConverter) onGateFunded(receipt *types.Receipt) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inflight--
	if receipt.Status != types.ReceiptStatusSuccessful {
		log.Error("Funding conversion gate failed", "tx", receipt.TxHash)
		return
	}
	tx, err := c.client.TransferFromGate()
	if err != nil {
		log.Error("Failed to sweep conversion gate", "err", err)
		return
	}
	c.inflight++
	c.client.OnTransactionConfirmed(tx, c.onConverted)
	log.Info("Sweeping conversion gate", "tx", tx)
}

func (c *TokenConverter) onConverted(receipt *types.Receipt) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inflight--
	if receipt.Status != types.ReceiptStatusSuccessful {
		log.Error("Token conversion failed", "tx", receipt.TxHash)
		return
	}
	log.Info("Token conversion complete", "tx", receipt.TxHash)
}
