package payments

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/metrics"
)

// metrics
var (
	// Queue depth
	AwaitingPaymentsGauge = metrics.NewRegisteredGauge("payments/awaiting", nil)
	InflightPaymentsGauge = metrics.NewRegisteredGauge("payments/inflight", nil)
	InflightBatchesGauge  = metrics.NewRegisteredGauge("payments/inflight/batches", nil)

	// Lifecycle counters
	SubmittedPaymentMeter = metrics.NewRegisteredMeter("payments/submitted", nil)
	ConfirmedPaymentMeter = metrics.NewRegisteredMeter("payments/confirmed", nil)
	FailedPaymentMeter    = metrics.NewRegisteredMeter("payments/failed", nil)
	OverduePaymentMeter   = metrics.NewRegisteredMeter("payments/overdue", nil)

	// Operator balances, in gwei so they fit a gauge
	TokenBalanceGauge = metrics.NewRegisteredGauge("payments/balance/token", nil)
	GasBalanceGauge   = metrics.NewRegisteredGauge("payments/balance/gas", nil)

	// Processing time
	SendoutTimer = metrics.NewRegisteredTimer("payments/sendout", nil)
	ConfirmTimer = metrics.NewRegisteredTimer("payments/confirm", nil)
)

var gwei = big.NewInt(1_000_000_000)

func MetricsSendoutCost(start time.Time) {
	SendoutTimer.Update(time.Since(start))
}

func MetricsConfirmCost(start time.Time) {
	ConfirmTimer.Update(time.Since(start))
}

func MetricsAwaitingInc(count int) {
	AwaitingPaymentsGauge.Inc(int64(count))
}

func MetricsAwaitingDec(count int) {
	AwaitingPaymentsGauge.Dec(int64(count))
}

func MetricsInflightAdd(payments int) {
	InflightPaymentsGauge.Inc(int64(payments))
	InflightBatchesGauge.Inc(1)
}

func MetricsInflightRemove(payments int) {
	InflightPaymentsGauge.Dec(int64(payments))
	InflightBatchesGauge.Dec(1)
}

// Operator balance update
func MetricsBalances(token, gas *big.Int) {
	if token != nil {
		TokenBalanceGauge.Update(new(big.Int).Div(token, gwei).Int64())
	}
	if gas != nil {
		GasBalanceGauge.Update(new(big.Int).Div(gas, gwei).Int64())
	}
}
