package sci

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Default gas accounting of the batching token contract. A batch transfer
// costs GasBatchPaymentBase plus GasPerPayment for every included payment.
const (
	DefaultGasPrice            = 1_000_000_000 // 1 gwei
	DefaultGasPerPayment       = 30_000
	DefaultGasBatchPaymentBase = 100_000
)

// Payment is a single transfer inside a batch: amount of the batching token
// sent to payee.
type Payment struct {
	Payee  common.Address
	Amount *big.Int
}

// Block is the subset of header data the payment processor consumes.
type Block struct {
	Number    uint64
	Hash      common.Hash
	GasLimit  uint64
	Timestamp uint64
}

// SmartContractsInterface is the on-chain capability set consumed by the
// payment processor. Balance getters refer to the operator account.
type SmartContractsInterface interface {
	// GetTokenBalance returns the operator's batching token balance in the
	// smallest unit.
	GetTokenBalance() (*big.Int, error)

	// GetGasBalance returns the operator's balance of the gas-paying asset.
	GetGasBalance() (*big.Int, error)

	// GetCurrentGasPrice returns the gas price to assume for cost estimation.
	GetCurrentGasPrice() (*big.Int, error)

	// GetLatestConfirmedBlock returns the newest block considered confirmed.
	GetLatestConfirmedBlock() (*Block, error)

	// GetLatestConfirmedBlockNumber returns the number of the newest block
	// considered confirmed.
	GetLatestConfirmedBlockNumber() (uint64, error)

	// GetBlockByNumber returns the block with the given number.
	GetBlockByNumber(number uint64) (*Block, error)

	// BatchTransfer submits a batch transfer carrying the given closure time
	// and returns the hash of the submitted transaction.
	BatchTransfer(payments []Payment, closureTime uint64) (common.Hash, error)

	// OnTransactionConfirmed registers a one-shot callback fired with the
	// receipt once the given transaction is confirmed.
	OnTransactionConfirmed(tx common.Hash, cb func(*types.Receipt))

	// GetTransactionGasPrice returns the gas price the given transaction was
	// executed with.
	GetTransactionGasPrice(tx common.Hash) (*big.Int, error)

	// Gas accounting constants of the deployed batching contract.
	GasPrice() *big.Int
	GasPerPayment() uint64
	GasBatchPaymentBase() uint64
}
