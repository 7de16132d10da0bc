package service

import (
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/cors"

	"github.com/DavidLeeR/golem/core/paydb"
	"github.com/DavidLeeR/golem/core/payments"
)

// PaymentAPI exposes processor introspection over JSON-RPC under the
// "payment" namespace.
type PaymentAPI struct {
	processor *payments.Processor
	db        paydb.Database
}

func NewPaymentAPI(processor *payments.Processor, db paydb.Database) *PaymentAPI {
	return &PaymentAPI{processor: processor, db: db}
}

// ReservedAmount returns the sum of all unconfirmed payment values.
func (api *PaymentAPI) ReservedAmount() *hexutil.Big {
	return (*hexutil.Big)(api.processor.ReservedAmount())
}

// RecipientsCount returns the number of payments awaiting submission.
func (api *PaymentAPI) RecipientsCount() int {
	return api.processor.RecipientsCount()
}

// RPCPayment is the wire representation of a payment record.
type RPCPayment struct {
	Subtask     string         `json:"subtask"`
	Payee       common.Address `json:"payee"`
	Value       *hexutil.Big   `json:"value"`
	Status      string         `json:"status"`
	ProcessedTs hexutil.Uint64 `json:"processedTs"`
	Tx          string         `json:"tx,omitempty"`
	BlockNumber hexutil.Uint64 `json:"blockNumber,omitempty"`
	Fee         *hexutil.Big   `json:"fee,omitempty"`
}

// Status returns the stored state of a single payment.
func (api *PaymentAPI) Status(subtaskID string) (*RPCPayment, error) {
	payment, err := paydb.ReadPayment(api.db, subtaskID)
	if err != nil {
		return nil, err
	}
	return &RPCPayment{
		Subtask:     payment.SubtaskID,
		Payee:       payment.Payee,
		Value:       (*hexutil.Big)(payment.Value),
		Status:      payment.Status.String(),
		ProcessedTs: hexutil.Uint64(payment.ProcessedTS),
		Tx:          payment.Details.Tx,
		BlockNumber: hexutil.Uint64(payment.Details.BlockNumber),
		Fee:         (*hexutil.Big)(payment.Details.Fee),
	}, nil
}

// NewRPC sets up the payment API over HTTP on the given address. The caller
// drives the returned server with Serve on the listener and shuts it down by
// closing it.
func NewRPC(addr string, corsDomains []string, api *PaymentAPI) (*http.Server, net.Listener, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName("payment", api); err != nil {
		return nil, nil, err
	}
	var handler http.Handler = srv
	if len(corsDomains) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: corsDomains,
			AllowedMethods: []string{http.MethodPost, http.MethodGet},
			AllowedHeaders: []string{"*"},
			MaxAge:         600,
		}).Handler(srv)
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}
	httpSrv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info("Payment RPC configured", "endpoint", listener.Addr(), "cors", corsDomains)
	return httpSrv, listener, nil
}
