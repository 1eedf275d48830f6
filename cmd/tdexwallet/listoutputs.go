package main

import (
	"github.com/urfave/cli/v2"
)

var listoutputs = cli.Command{
	Name:   "listutxos",
	Usage:  "list the unspent outputs of the wallet",
	Flags:  []cli.Flag{nosyncFlag},
	Action: listOutputsAction,
}

type outputInfo struct {
	Outpoint      string `json:"outpoint"`
	Address       string `json:"address"`
	Amount        string `json:"amount"`
	Confirmations uint32 `json:"confirmations"`
	Reserved      bool   `json:"reserved"`
}

func listOutputsAction(ctx *cli.Context) error {
	w, cleanup, err := openWallet(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := maybeSync(ctx, w); err != nil {
		return err
	}

	tip := w.SyncStatus().Cursor.Height
	outputs := make([]outputInfo, 0)
	for _, o := range w.ListOutputs() {
		if o.IsSpent() {
			continue
		}
		outputs = append(outputs, outputInfo{
			Outpoint:      o.Key().String(),
			Address:       o.Address,
			Amount:        formatBtcAmount(o.Amount),
			Confirmations: o.Confirmations(tip),
			Reserved:      o.IsReserved(),
		})
	}
	printJSON(outputs)
	return nil
}
