package main

import (
	"github.com/urfave/cli/v2"
)

var syncwallet = cli.Command{
	Name:   "sync",
	Usage:  "sync the wallet with the chain",
	Action: syncAction,
}

var rescan = cli.Command{
	Name:  "rescan",
	Usage: "drop the sync progress and sync the wallet again from the given height",
	Flags: []cli.Flag{
		&cli.Uint64Flag{
			Name:     "height",
			Usage:    "the height to rescan from",
			Required: true,
		},
	},
	Action: rescanAction,
}

func syncAction(ctx *cli.Context) error {
	w, cleanup, err := openWallet(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := w.Sync(ctx.Context)
	if err != nil {
		return err
	}
	printJSON(result)
	return nil
}

func rescanAction(ctx *cli.Context) error {
	height := ctx.Uint64("height")
	if height > uint64(^uint32(0)) {
		return &invalidUsageError{ctx, ctx.Command.Name}
	}

	w, cleanup, err := openWallet(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := w.Rescan(ctx.Context, uint32(height))
	if err != nil {
		return err
	}
	printJSON(result)
	return nil
}
