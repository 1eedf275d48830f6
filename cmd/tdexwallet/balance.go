package main

import (
	"github.com/urfave/cli/v2"

	"github.com/tdex-network/tdex-wallet/internal/core/application"
	"github.com/tdex-network/tdex-wallet/internal/core/domain"
)

var nosyncFlag = &cli.BoolFlag{
	Name:  "nosync",
	Usage: "use the last synced state without polling the data source",
}

var balance = cli.Command{
	Name:   "balance",
	Usage:  "get the balance of the wallet",
	Flags:  []cli.Flag{nosyncFlag},
	Action: balanceAction,
}

func balanceAction(ctx *cli.Context) error {
	w, cleanup, err := openWallet(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := maybeSync(ctx, w); err != nil {
		return err
	}

	b := w.Balance()
	printJSON(map[string]interface{}{
		"spendable": formatBtcAmount(b.Spendable),
		"pending":   formatBtcAmount(b.Pending),
		"reserved":  formatBtcAmount(b.Reserved),
		"total":     formatBtcAmount(b.Total),
		"height":    w.SyncStatus().Cursor.Height,
	})
	return nil
}

// maybeSync syncs the wallet unless --nosync is set. A stalled sync is only
// logged so that the last synced state can still be shown.
func maybeSync(ctx *cli.Context, w *application.WalletState) error {
	if ctx.Bool(nosyncFlag.Name) {
		return nil
	}
	if _, err := w.Sync(ctx.Context); err != nil {
		if domain.KindOf(err) != domain.KindTransient {
			return err
		}
		warn(err, "sync failed, showing last synced state")
	}
	return nil
}
