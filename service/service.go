package service

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/DavidLeeR/golem/core/payments"
)

// DefaultConfig contains the default intervals of the periodic drivers.
var DefaultConfig = Config{
	SendoutInterval: 30 * time.Second,
	OverdueInterval: time.Minute,
	BalanceInterval: time.Minute,
	AcceptableDelay: time.Hour,
}

type Config struct {
	SendoutInterval time.Duration // How often to attempt a sendout
	OverdueInterval time.Duration // How often to sweep for overdue payments
	BalanceInterval time.Duration // How often to refresh operator balance telemetry
	AcceptableDelay time.Duration // Delay passed to each periodic sendout
}

// Sanitize replaces unreasonable intervals with their defaults.
func (c Config) Sanitize() Config {
	conf := c
	if conf.SendoutInterval <= 0 {
		log.Warn("Sanitizing invalid sendout interval", "provided", conf.SendoutInterval, "updated", DefaultConfig.SendoutInterval)
		conf.SendoutInterval = DefaultConfig.SendoutInterval
	}
	if conf.OverdueInterval <= 0 {
		log.Warn("Sanitizing invalid overdue interval", "provided", conf.OverdueInterval, "updated", DefaultConfig.OverdueInterval)
		conf.OverdueInterval = DefaultConfig.OverdueInterval
	}
	if conf.BalanceInterval <= 0 {
		log.Warn("Sanitizing invalid balance interval", "provided", conf.BalanceInterval, "updated", DefaultConfig.BalanceInterval)
		conf.BalanceInterval = DefaultConfig.BalanceInterval
	}
	if conf.AcceptableDelay < 0 {
		log.Warn("Sanitizing negative acceptable delay", "updated", DefaultConfig.AcceptableDelay)
		conf.AcceptableDelay = DefaultConfig.AcceptableDelay
	}
	return conf
}

// Driver is the payment processor surface the periodic service drives.
type Driver interface {
	Sendout(acceptableDelay time.Duration) (bool, error)
	UpdateOverdue() error
	ReservedAmount() *big.Int
	RecipientsCount() int
}

// Balances is the balance query surface used for telemetry.
type Balances interface {
	GetTokenBalance() (*big.Int, error)
	GetGasBalance() (*big.Int, error)
}

// Service runs the periodic drivers of the payment processor: the sendout
// loop, the overdue sweep and the balance telemetry refresh.
type Service struct {
	cfg      Config
	driver   Driver
	balances Balances

	ctx    context.Context
	cancel func()
	wg     sync.WaitGroup
}

func New(cfg Config, driver Driver, balances Balances) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:      cfg.Sanitize(),
		driver:   driver,
		balances: balances,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *Service) Start() {
	s.wg.Add(3)
	go s.sendoutLoop()
	go s.overdueLoop()
	go s.balanceLoop()
	log.Info("Payment service started", "sendoutInterval", s.cfg.SendoutInterval, "overdueInterval", s.cfg.OverdueInterval, "acceptableDelay", s.cfg.AcceptableDelay)
}

func (s *Service) Stop() {
	s.cancel()
	s.wg.Wait()
	log.Info("Payment service stopped")
}

func (s *Service) sendoutLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SendoutInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sent, err := s.driver.Sendout(s.cfg.AcceptableDelay)
			if err != nil {
				log.Error("Sendout failed", "err", err)
				continue
			}
			if sent {
				log.Debug("Sendout submitted a batch", "reserved", s.driver.ReservedAmount(), "recipients", s.driver.RecipientsCount())
			}
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Service) overdueLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.OverdueInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.driver.UpdateOverdue(); err != nil {
				log.Error("Overdue sweep failed", "err", err)
			}
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Service) balanceLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.BalanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			token, err := s.balances.GetTokenBalance()
			if err != nil {
				log.Error("Unable to get token balance", "err", err)
				continue
			}
			gas, err := s.balances.GetGasBalance()
			if err != nil {
				log.Error("Unable to get gas balance", "err", err)
				continue
			}
			payments.MetricsBalances(token, gas)
			log.Debug("Operator balances", "token", token, "gas", gas, "reserved", s.driver.ReservedAmount())
		case <-s.ctx.Done():
			return
		}
	}
}
