package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/DavidLeeR/golem/core/paydb"
	"github.com/DavidLeeR/golem/core/payments"
	"github.com/DavidLeeR/golem/sci"
	"github.com/DavidLeeR/golem/service"
)

var (
	app = &cli.App{
		Name:   "golempay",
		Usage:  "outbound payment settlement daemon",
		Action: runDaemon,
		Flags: []cli.Flag{
			dataDirFlag,
			dbEngineFlag,
			cacheFlag,
			ethURLFlag,
			keyFileFlag,
			httpAddrFlag,
			httpCorsFlag,
			configFlag,
			verbosityFlag,
			logFileFlag,
		},
		Commands: []*cli.Command{
			addCommand,
			listCommand,
		},
	}

	dataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for the payment database (default: ~/.golempay)",
	}
	dbEngineFlag = &cli.StringFlag{
		Name:  "db.engine",
		Usage: "Backing database implementation (leveldb, pebble, memory)",
		Value: "leveldb",
	}
	cacheFlag = &cli.IntFlag{
		Name:  "cache",
		Usage: "Database cache size in MiB (0 = derive from system memory)",
	}
	ethURLFlag = &cli.StringFlag{
		Name:  "eth.url",
		Usage: "Ethereum JSON-RPC endpoint",
		Value: "http://localhost:8545",
	}
	keyFileFlag = &cli.StringFlag{
		Name:  "keyfile",
		Usage: "File containing the operator's hex encoded private key (default: <datadir>/operator.key)",
	}
	httpAddrFlag = &cli.StringFlag{
		Name:  "http.addr",
		Usage: "Listen address of the payment RPC",
		Value: "127.0.0.1:8548",
	}
	httpCorsFlag = &cli.StringSliceFlag{
		Name:  "http.corsdomain",
		Usage: "Domains from which to accept cross origin RPC requests",
	}
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: 3,
	}
	logFileFlag = &cli.StringFlag{
		Name:  "log.file",
		Usage: "Write logs to a rotated file instead of stderr",
	}
)

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDaemon(ctx *cli.Context) error {
	setupLogging(ctx)

	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	datadir, err := resolveDataDir(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(datadir, 0700); err != nil {
		return err
	}
	db, err := paydb.Open(datadir, ctx.String(dbEngineFlag.Name), databaseCache(ctx))
	if err != nil {
		return err
	}
	defer db.Close()

	keyfile := ctx.String(keyFileFlag.Name)
	if keyfile == "" {
		keyfile = filepath.Join(datadir, "operator.key")
	}
	key, err := crypto.LoadECDSA(keyfile)
	if err != nil {
		return fmt.Errorf("failed to load operator key: %w", err)
	}
	client, err := sci.NewClient(ctx.String(ethURLFlag.Name), key)
	if err != nil {
		return err
	}
	defer client.Close()

	converter := sci.NewTokenConverter(client)
	processor := payments.NewProcessor(db, client, converter, cfg.Payment)
	defer processor.Close()

	if err := processor.LoadFromDB(); err != nil {
		return fmt.Errorf("failed to restore payment queue: %w", err)
	}
	svc := service.New(cfg.Service, processor, client)
	svc.Start()
	defer svc.Stop()

	api := service.NewPaymentAPI(processor, db)
	httpSrv, listener, err := service.NewRPC(ctx.String(httpAddrFlag.Name), ctx.StringSlice(httpCorsFlag.Name), api)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		if err := httpSrv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sig)

		select {
		case s := <-sig:
			log.Info("Shutting down", "signal", s)
		case <-gctx.Done():
		}
		return httpSrv.Close()
	})
	return g.Wait()
}
