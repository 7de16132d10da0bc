package params

import (
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// DefaultPaymentConfig contains the default settings for the payment processor.
var DefaultPaymentConfig = PaymentConfig{
	PaymentMaxDelay:    time.Hour,
	PaymentDeadline:    24 * time.Hour,
	ClosureTimeDelay:   2 * time.Second,
	BlockGasLimitRatio: 2,
	ConfirmQueueSize:   64,
}

// PaymentConfig are the settings of the payment processor.
type PaymentConfig struct {
	PaymentMaxDelay  time.Duration // How long a payment may sit in the queue before a sendout becomes due
	PaymentDeadline  time.Duration // How long a payment may sit in the queue before it is flagged overdue
	ClosureTimeDelay time.Duration // Hysteresis before a processed timestamp is considered settleable

	BlockGasLimitRatio uint64 // Fraction of the block gas limit a single batch may consume (limit / ratio)
	ConfirmQueueSize   int    // Capacity of the receipt hand-off queue feeding the confirmation worker
}

// Sanitize checks the provided settings and returns a copy with any unreasonable
// values replaced by their defaults.
func (c PaymentConfig) Sanitize() PaymentConfig {
	conf := c
	if conf.PaymentMaxDelay <= 0 {
		log.Warn("Sanitizing invalid payment max delay", "provided", conf.PaymentMaxDelay, "updated", DefaultPaymentConfig.PaymentMaxDelay)
		conf.PaymentMaxDelay = DefaultPaymentConfig.PaymentMaxDelay
	}
	if conf.PaymentDeadline < conf.PaymentMaxDelay {
		log.Warn("Sanitizing payment deadline below max delay", "provided", conf.PaymentDeadline, "updated", DefaultPaymentConfig.PaymentDeadline)
		conf.PaymentDeadline = DefaultPaymentConfig.PaymentDeadline
	}
	if conf.ClosureTimeDelay < 0 {
		log.Warn("Sanitizing negative closure time delay", "provided", conf.ClosureTimeDelay, "updated", DefaultPaymentConfig.ClosureTimeDelay)
		conf.ClosureTimeDelay = DefaultPaymentConfig.ClosureTimeDelay
	}
	if conf.BlockGasLimitRatio == 0 {
		log.Warn("Sanitizing zero block gas limit ratio", "updated", DefaultPaymentConfig.BlockGasLimitRatio)
		conf.BlockGasLimitRatio = DefaultPaymentConfig.BlockGasLimitRatio
	}
	if conf.ConfirmQueueSize <= 0 {
		log.Warn("Sanitizing invalid confirm queue size", "provided", conf.ConfirmQueueSize, "updated", DefaultPaymentConfig.ConfirmQueueSize)
		conf.ConfirmQueueSize = DefaultPaymentConfig.ConfirmQueueSize
	}
	return conf
}
