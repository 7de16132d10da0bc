package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/DavidLeeR/golem/core/paydb"
	"github.com/DavidLeeR/golem/core/types"
)

var (
	listCommand = &cli.Command{
		Action: doList,
		Name:   "list",
		Usage:  "List payment records",
		Flags: []cli.Flag{
			dataDirFlag,
			dbEngineFlag,
			verbosityFlag,
			statusFlag,
		},
		Description: `
Prints the stored payment records as a table, optionally filtered by status
(awaiting, sent, confirmed, overdue).
`,
	}

	statusFlag = &cli.StringFlag{
		Name:  "status",
		Usage: "Only show payments with this status",
	}
)

func doList(ctx *cli.Context) error {
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

	var records []*types.Payment
	if filter := ctx.String(statusFlag.Name); filter != "" {
		var status types.PaymentStatus
		if err := status.UnmarshalText([]byte(filter)); err != nil {
			return err
		}
		records, err = paydb.ReadPaymentsByStatus(db, status)
	} else {
		records, err = paydb.ReadAllPayments(db)
	}
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Subtask", "Payee", "Value", "Status", "Processed", "Tx", "Fee"})
	for _, p := range records {
		fee := ""
		if p.Details.Fee != nil {
			fee = p.Details.Fee.String()
		}
		table.Append([]string{
			p.SubtaskID,
			p.Payee.Hex(),
			p.Value.String(),
			colorStatus(p.Status),
			time.Unix(int64(p.ProcessedTS), 0).UTC().Format(time.RFC3339),
			p.Details.Tx,
			fee,
		})
	}
	table.Render()
	fmt.Printf("%d payment(s)\n", len(records))
	return nil
}

func colorStatus(status types.PaymentStatus) string {
	switch status {
	case types.PaymentConfirmed:
		return color.GreenString(status.String())
	case types.PaymentSent:
		return color.CyanString(status.String())
	case types.PaymentOverdue:
		return color.RedString(status.String())
	default:
		return color.YellowString(status.String())
	}
}
