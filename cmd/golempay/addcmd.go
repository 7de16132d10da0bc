package main

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/DavidLeeR/golem/core/paydb"
	"github.com/DavidLeeR/golem/core/types"
)

var (
	addCommand = &cli.Command{
		Action: doAdd,
		Name:   "add",
		Usage:  "Enqueue a payment obligation directly into the database",
		Flags: []cli.Flag{
			dataDirFlag,
			dbEngineFlag,
			verbosityFlag,
			subtaskFlag,
			payeeFlag,
			valueFlag,
		},
		Description: `
Writes an awaiting payment record into the payment database. Intended for
operator intervention while the daemon is stopped; a running daemon picks the
record up on its next restart.
`,
	}

	subtaskFlag = &cli.StringFlag{
		Name:  "subtask",
		Usage: "Subtask id of the obligation (default: random uuid)",
	}
	payeeFlag = &cli.StringFlag{
		Name:     "payee",
		Usage:    "Recipient address",
		Required: true,
	}
	valueFlag = &cli.StringFlag{
		Name:     "value",
		Usage:    "Amount in the token's smallest unit",
		Required: true,
	}
)

func doAdd(ctx *cli.Context) error {
	setupLogging(ctx)

	datadir, err := resolveDataDir(ctx)
	if err != nil {
		return err
	}
	db, err := paydb.Open(datadir, ctx.String(dbEngineFlag.Name), 16)
	if err != nil {
		return err
	}
	defer db.Close()

	subtask := ctx.String(subtaskFlag.Name)
	if subtask == "" {
		subtask = uuid.NewString()
	}
	if !common.IsHexAddress(ctx.String(payeeFlag.Name)) {
		return fmt.Errorf("invalid payee address %q", ctx.String(payeeFlag.Name))
	}
	payee := common.HexToAddress(ctx.String(payeeFlag.Name))
	value, ok := new(big.Int).SetString(ctx.String(valueFlag.Name), 10)
	if !ok || value.Sign() <= 0 {
		return fmt.Errorf("invalid value %q", ctx.String(valueFlag.Name))
	}
	exists, err := paydb.HasPayment(db, subtask)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("subtask %q already has a payment", subtask)
	}
	payment := types.NewPayment(subtask, payee, value, uint64(time.Now().Unix()))
	if err := paydb.WritePayment(db, payment); err != nil {
		return err
	}
	fmt.Printf("enqueued %s -> %s value %s processedTs %d\n", subtask, payee, value, payment.ProcessedTS)
	return nil
}
