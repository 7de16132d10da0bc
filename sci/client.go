package sci

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"

	"github.com/DavidLeeR/golem/params"
)

const requestTimeout = 10 * time.Second

// Client is the ethclient-backed implementation of SmartContractsInterface.
// It signs every transaction with the operator key and only reports blocks
// buried RequiredConfs below the head as confirmed.
type Client struct {
	ec      *ethclient.Client
	key     *ecdsa.PrivateKey
	addr    common.Address
	chainID *big.Int
	netCfg  *params.PaymentNetworkConfig

	opts     *bind.TransactOpts
	token    *bind.BoundContract
	batching *bind.BoundContract
	tracker  *receiptTracker

	gasPrice      *big.Int
	gasPerPayment uint64
	gasBatchBase  uint64
}

// NewClient dials the given endpoint and binds the token contracts of the
// network matching the remote chain id.
func NewClient(rawurl string, key *ecdsa.PrivateKey) (*Client, error) {
	ec, err := ethclient.Dial(rawurl)
	if err != nil {
		return nil, fmt.Errorf("failed to dial eth endpoint: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	chainID, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("failed to retrieve chain id: %w", err)
	}
	netCfg := params.GetPaymentNetworkConfig(chainID)
	if netCfg.BatchingToken == (common.Address{}) {
		ec.Close()
		return nil, fmt.Errorf("no batching token configured for chain %v", chainID)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	c := &Client{
		ec:            ec,
		key:           key,
		addr:          crypto.PubkeyToAddress(key.PublicKey),
		chainID:       chainID,
		netCfg:        netCfg,
		opts:          opts,
		token:         bind.NewBoundContract(netCfg.Token, tokenABI, ec, ec, ec),
		batching:      bind.NewBoundContract(netCfg.BatchingToken, batchingTokenABI, ec, ec, ec),
		gasPrice:      big.NewInt(DefaultGasPrice),
		gasPerPayment: DefaultGasPerPayment,
		gasBatchBase:  DefaultGasBatchPaymentBase,
	}
	c.tracker = newReceiptTracker(ec, netCfg.RequiredConfs)
	log.Info("Connected smart contract interface", "endpoint", rawurl, "chain", chainID, "operator", c.addr, "batchingToken", netCfg.BatchingToken)
	return c, nil
}

// Address returns the operator account address.
func (c *Client) Address() common.Address {
	return c.addr
}

// Close stops the receipt tracker and releases the underlying connection.
func (c *Client) Close() {
	c.tracker.stop()
	c.ec.Close()
}

func (c *Client) GetTokenBalance() (*big.Int, error) {
	return c.balanceOf(c.batching, c.addr)
}

// GetRawTokenBalance returns the raw (unwrapped) token balance of an account.
func (c *Client) GetRawTokenBalance(addr common.Address) (*big.Int, error) {
	return c.balanceOf(c.token, addr)
}

func (c *Client) balanceOf(contract *bind.BoundContract, addr common.Address) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", addr); err != nil {
		return nil, fmt.Errorf("balanceOf call failed: %w", err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (c *Client) GetGasBalance() (*big.Int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	return c.ec.BalanceAt(ctx, c.addr, nil)
}

func (c *Client) GetCurrentGasPrice() (*big.Int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	return c.ec.SuggestGasPrice(ctx)
}

func (c *Client) GetLatestConfirmedBlockNumber() (uint64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	head, err := c.ec.BlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	if head < c.netCfg.RequiredConfs {
		return 0, nil
	}
	return head - c.netCfg.RequiredConfs, nil
}

func (c *Client) GetLatestConfirmedBlock() (*Block, error) {
	number, err := c.GetLatestConfirmedBlockNumber()
	if err != nil {
		return nil, err
	}
	return c.GetBlockByNumber(number)
}

func (c *Client) GetBlockByNumber(number uint64) (*Block, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	header, err := c.ec.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, err
	}
	return &Block{
		Number:    header.Number.Uint64(),
		Hash:      header.Hash(),
		GasLimit:  header.GasLimit,
		Timestamp: header.Time,
	}, nil
}

func (c *Client) BatchTransfer(payments []Payment, closureTime uint64) (common.Hash, error) {
	packed, err := encodeBatch(payments)
	if err != nil {
		return common.Hash{}, err
	}
	tx, err := c.batching.Transact(c.opts, "batchTransfer", packed, closureTime)
	if err != nil {
		return common.Hash{}, fmt.Errorf("batchTransfer rejected: %w", err)
	}
	log.Info("Submitted batch transfer", "tx", tx.Hash(), "payments", len(payments), "closureTime", closureTime)
	return tx.Hash(), nil
}

func (c *Client) OnTransactionConfirmed(tx common.Hash, cb func(*types.Receipt)) {
	c.tracker.subscribe(tx, cb)
}

func (c *Client) GetTransactionGasPrice(hash common.Hash) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	tx, _, err := c.ec.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	return tx.GasPrice(), nil
}

func (c *Client) GasPrice() *big.Int {
	return new(big.Int).Set(c.gasPrice)
}

func (c *Client) GasPerPayment() uint64 {
	return c.gasPerPayment
}

func (c *Client) GasBatchPaymentBase() uint64 {
	return c.gasBatchBase
}

// GetGateAddress returns the operator's personal conversion gate, or the zero
// address if the gate has not been opened yet.
func (c *Client) GetGateAddress() (common.Address, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var out []interface{}
	if err := c.batching.Call(&bind.CallOpts{Context: ctx}, &out, "getGateAddress", c.addr); err != nil {
		return common.Address{}, fmt.Errorf("getGateAddress call failed: %w", err)
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// OpenGate deploys the operator's personal conversion gate.
func (c *Client) OpenGate() (common.Hash, error) {
	tx, err := c.batching.Transact(c.opts, "openGate")
	if err != nil {
		return common.Hash{}, fmt.Errorf("openGate rejected: %w", err)
	}
	return tx.Hash(), nil
}

// TransferRawToken moves the raw token, used to fund the gate before
// conversion.
func (c *Client) TransferRawToken(to common.Address, amount *big.Int) (common.Hash, error) {
	tx, err := c.token.Transact(c.opts, "transfer", to, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("transfer rejected: %w", err)
	}
	return tx.Hash(), nil
}

// TransferFromGate wraps the gate's raw token balance into the batching token.
func (c *Client) TransferFromGate() (common.Hash, error) {
	tx, err := c.batching.Transact(c.opts, "transferFromGate")
	if err != nil {
		return common.Hash{}, fmt.Errorf("transferFromGate rejected: %w", err)
	}
	return tx.Hash(), nil
}
