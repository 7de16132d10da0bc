package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"unicode"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/naoina/toml"
	"github.com/shirou/gopsutil/mem"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/DavidLeeR/golem/params"
	"github.com/DavidLeeR/golem/service"
)

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		if unicode.IsUpper(rune(field[0])) {
			log.Warn("Config contains unknown field", "section", rt.String(), "field", field)
		}
		return nil
	},
}

type golempayConfig struct {
	Payment params.PaymentConfig
	Service service.Config
}

func defaultConfig() golempayConfig {
	return golempayConfig{
		Payment: params.DefaultPaymentConfig,
		Service: service.DefaultConfig,
	}
}

func loadConfig(file string, cfg *golempayConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(f).Decode(cfg)
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}
	return nil
}

func makeConfig(ctx *cli.Context) (golempayConfig, error) {
	cfg := defaultConfig()
	if file := ctx.String(configFlag.Name); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			return cfg, err
		}
	}
	cfg.Payment = cfg.Payment.Sanitize()
	cfg.Service = cfg.Service.Sanitize()
	if !ctx.IsSet(configFlag.Name) || cfg.Service.AcceptableDelay == 0 {
		cfg.Service.AcceptableDelay = cfg.Payment.PaymentMaxDelay
	}
	return cfg, nil
}

func setupLogging(ctx *cli.Context) {
	var (
		output   io.Writer = os.Stderr
		usecolor           = isatty.IsTerminal(os.Stderr.Fd()) && os.Getenv("TERM") != "dumb"
	)
	if usecolor {
		output = colorable.NewColorableStderr()
	}
	if logfile := ctx.String(logFileFlag.Name); logfile != "" {
		output = &lumberjack.Logger{
			Filename:   logfile,
			MaxSize:    100, // MiB
			MaxBackups: 10,
			Compress:   true,
		}
		usecolor = false
	}
	level := log.FromLegacyLevel(ctx.Int(verbosityFlag.Name))
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(output, level, usecolor)))
}

// resolveDataDir returns the datadir flag value, defaulting to .golempay in
// the user's home directory.
func resolveDataDir(ctx *cli.Context) (string, error) {
	if dir := ctx.String(dataDirFlag.Name); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".golempay"), nil
}

// databaseCache returns the database cache size in megabytes, derived from
// system memory when the flag is left at zero.
func databaseCache(ctx *cli.Context) int {
	if cache := ctx.Int(cacheFlag.Name); cache > 0 {
		return cache
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		log.Warn("Failed to probe system memory, using minimal database cache", "err", err)
		return 16
	}
	// A third of system memory, capped so the daemon stays small.
	allowance := int(vm.Total / 1024 / 1024 / 3)
	if allowance > 1024 {
		allowance = 1024
	}
	if allowance < 16 {
		allowance = 16
	}
	log.Info("Derived database cache from system memory", "total", vm.Total, "cache", allowance)
	return allowance
}
