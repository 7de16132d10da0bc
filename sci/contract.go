package sci

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ABI fragments of the two token contracts the client talks to. The batching
// token wraps the raw token and adds batchTransfer plus the personal gate
// used for conversion.
const tokenABIJSON = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"payable":false,"stateMutability":"nonpayable","type":"function"}
]`

const batchingTokenABIJSON = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"payments","type":"bytes32[]"},{"name":"closureTime","type":"uint64"}],"name":"batchTransfer","outputs":[],"payable":false,"stateMutability":"nonpayable","type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"getGateAddress","outputs":[{"name":"","type":"address"}],"payable":false,"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[],"name":"openGate","outputs":[],"payable":false,"stateMutability":"nonpayable","type":"function"},
	{"constant":false,"inputs":[],"name":"transferFromGate","outputs":[],"payable":false,"stateMutability":"nonpayable","type":"function"}
]`

var (
	tokenABI         abi.ABI
	batchingTokenABI abi.ABI
)

func init() {
	var err error
	if tokenABI, err = abi.JSON(strings.NewReader(tokenABIJSON)); err != nil {
		panic(err)
	}
	if batchingTokenABI, err = abi.JSON(strings.NewReader(batchingTokenABIJSON)); err != nil {
		panic(err)
	}
}

// maxPaymentValue is the largest amount encodable in a packed batch payment:
// the value shares a bytes32 with the 20-byte payee address, leaving 96 bits.
var maxPaymentValue = new(big.Int).Lsh(big.NewInt(1), 96)

// encodeBatchPayment packs a single payment into the bytes32 wire format of
// batchTransfer: 20 bytes of payee address followed by the amount as a
// 12-byte big-endian integer.
func encodeBatchPayment(p Payment) ([32]byte, error) {
	var packed [32]byte
	if p.Amount == nil || p.Amount.Sign() < 0 {
		return packed, fmt.Errorf("invalid payment amount for %s", p.Payee)
	}
	if p.Amount.Cmp(maxPaymentValue) >= 0 {
		return packed, fmt.Errorf("payment amount for %s exceeds 96 bits", p.Payee)
	}
	copy(packed[:20], p.Payee.Bytes())
	p.Amount.FillBytes(packed[20:])
	return packed, nil
}

// encodeBatch packs a full batch for submission.
func encodeBatch(payments []Payment) ([][32]byte, error) {
	packed := make([][32]byte, len(payments))
	for i, p := range payments {
		var err error
		if packed[i], err = encodeBatchPayment(p); err != nil {
			return nil, err
		}
	}
	return packed, nil
}
