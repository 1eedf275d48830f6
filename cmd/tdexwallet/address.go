package main

import (
	"github.com/urfave/cli/v2"

	"github.com/tdex-network/tdex-wallet/internal/core/domain"
)

var address = cli.Command{
	Name:  "address",
	Usage: "derive a new receiving address",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "change",
			Usage: "derive an address of the internal chain",
		},
		&cli.BoolFlag{
			Name:  "list",
			Usage: "list the addresses derived so far",
		},
	},
	Action: addressAction,
}

func addressAction(ctx *cli.Context) error {
	w, cleanup, err := openWallet(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if ctx.Bool("list") {
		addresses, err := w.Addresses()
		if err != nil {
			return err
		}
		printJSON(addresses)
		return nil
	}

	chain := uint32(domain.ExternalChain)
	if ctx.Bool("change") {
		chain = domain.InternalChain
	}
	addr, err := w.NewAddress(ctx.Context, chain)
	if err != nil {
		return err
	}
	printJSON(map[string]string{"address": addr})
	return nil
}
