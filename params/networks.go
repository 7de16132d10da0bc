package params

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Payment network chain ids
var (
	MainnetChainId = big.NewInt(1)
	SepoliaChainId = big.NewInt(11_155_111)
	LocalChainId   = big.NewInt(1337)
)

var (
	MainnetPaymentNetwork = PaymentNetworkConfig{
		ChainID:       MainnetChainId,
		Token:         common.HexToAddress("0xa74476443119A942dE498590Fe1f2454d7D4aC0d"),
		BatchingToken: common.HexToAddress("0xA7dfb33234098c66FdE44907e918DAD70a3f211c"),
		RequiredConfs: 12,
	}
	SepoliaPaymentNetwork = PaymentNetworkConfig{
		ChainID:       SepoliaChainId,
		Token:         common.HexToAddress("0x2928aD7B7e29EC8F0fF6B4c6Ad9D1a77a3a66a97"),
		BatchingToken: common.HexToAddress("0x8F0fB0e2C6e9B46DdBD6A2A7D0130D3D4A8ED351"),
		RequiredConfs: 6,
	}
	LocalPaymentNetwork = PaymentNetworkConfig{
		ChainID:       LocalChainId,
		RequiredConfs: 1,
	}
	DefaultPaymentNetwork = PaymentNetworkConfig{
		RequiredConfs: 6,
	}
)

type PaymentNetworkConfig struct {
	ChainID *big.Int `json:"chainId"` // chainId identifies the target chain and is used for replay protection

	Token         common.Address `json:"token"`         // Raw token contract, convertible into the batching token
	BatchingToken common.Address `json:"batchingToken"` // Batch-transferable token contract used for settlement
	RequiredConfs uint64         `json:"requiredConfs"` // Blocks below head before a block counts as confirmed
}

func GetPaymentNetworkConfig(chainID *big.Int) *PaymentNetworkConfig {
	if chainID == nil {
		return nil
	}
	switch chainID.Int64() {
	case MainnetChainId.Int64():
		return &MainnetPaymentNetwork
	case SepoliaChainId.Int64():
		return &SepoliaPaymentNetwork
	case LocalChainId.Int64():
		return &LocalPaymentNetwork
	default:
		return &DefaultPaymentNetwork
	}
}
