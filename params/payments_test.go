package params

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPaymentConfigSanitize(t *testing.T) {
	sane := DefaultPaymentConfig.Sanitize()
	assert.Equal(t, DefaultPaymentConfig, sane)

	var zero PaymentConfig
	fixed := zero.Sanitize()
	assert.Equal(t, DefaultPaymentConfig.PaymentMaxDelay, fixed.PaymentMaxDelay)
	assert.Equal(t, DefaultPaymentConfig.PaymentDeadline, fixed.PaymentDeadline)
	assert.Equal(t, DefaultPaymentConfig.BlockGasLimitRatio, fixed.BlockGasLimitRatio)
	assert.Equal(t, DefaultPaymentConfig.ConfirmQueueSize, fixed.ConfirmQueueSize)

	// A deadline below the max delay is contradictory and gets reset.
	odd := DefaultPaymentConfig
	odd.PaymentDeadline = DefaultPaymentConfig.PaymentMaxDelay / 2
	assert.Equal(t, DefaultPaymentConfig.PaymentDeadline, odd.Sanitize().PaymentDeadline)

	// Zero closure hysteresis is a valid setting.
	flush := DefaultPaymentConfig
	flush.ClosureTimeDelay = 0
	assert.Equal(t, time.Duration(0), flush.Sanitize().ClosureTimeDelay)
	flush.ClosureTimeDelay = -time.Second
	assert.Equal(t, DefaultPaymentConfig.ClosureTimeDelay, flush.Sanitize().ClosureTimeDelay)
}

func TestGetPaymentNetworkConfig(t *testing.T) {
	assert.Nil(t, GetPaymentNetworkConfig(nil))
	assert.Equal(t, &MainnetPaymentNetwork, GetPaymentNetworkConfig(big.NewInt(1)))
	assert.Equal(t, &SepoliaPaymentNetwork, GetPaymentNetworkConfig(big.NewInt(11_155_111)))
	assert.Equal(t, &LocalPaymentNetwork, GetPaymentNetworkConfig(big.NewInt(1337)))
	assert.Equal(t, &DefaultPaymentNetwork, GetPaymentNetworkConfig(big.NewInt(424242)))
}
