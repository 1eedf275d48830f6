package main

import (
	"time"

	"github.com/urfave/cli/v2"
)

var history = cli.Command{
	Name:   "history",
	Usage:  "list the transactions of the wallet",
	Flags:  []cli.Flag{nosyncFlag},
	Action: historyAction,
}

type txInfo struct {
	TxID      string  `json:"txid"`
	Direction string  `json:"direction"`
	Amount    string  `json:"amount"`
	Fee       string  `json:"fee,omitempty"`
	Height    *uint32 `json:"height,omitempty"`
	Status    string  `json:"status"`
	Attempts  int     `json:"attempts,omitempty"`
	CreatedAt string  `json:"created_at"`
}

func historyAction(ctx *cli.Context) error {
	w, cleanup, err := openWallet(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := maybeSync(ctx, w); err != nil {
		return err
	}

	records, err := w.History(ctx.Context)
	if err != nil {
		return err
	}

	txs := make([]txInfo, 0, len(records))
	for _, r := range records {
		info := txInfo{
			TxID:      r.TxID,
			Direction: r.Direction.String(),
			Amount:    formatBtcAmount(r.Amount),
			Height:    r.Height,
			Status:    r.Status.String(),
			Attempts:  r.Attempts,
			CreatedAt: time.Unix(r.CreatedAt, 0).UTC().Format(time.RFC3339),
		}
		if r.Fee > 0 {
			info.Fee = formatBtcAmount(r.Fee)
		}
		txs = append(txs, info)
	}
	printJSON(txs)
	return nil
}
