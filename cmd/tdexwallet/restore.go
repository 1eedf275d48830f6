package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/tdex-network/tdex-wallet/internal/core/application"
)

var restore = cli.Command{
	Name:  "restore",
	Usage: "restore a wallet from its mnemonic and sync its history",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "mnemonic",
			Usage:    "the space separated mnemonic of the wallet",
			Required: true,
		},
		passwordFlag,
		&cli.StringFlag{
			Name:  "secret",
			Usage: "optional BIP39 passphrase protecting the mnemonic",
		},
		&cli.Uint64Flag{
			Name:  "birthday",
			Usage: "height of the chain before the first wallet tx",
		},
		&cli.BoolFlag{
			Name:  "nosync",
			Usage: "skip the initial sync",
		},
	},
	Action: restoreAction,
}

func restoreAction(ctx *cli.Context) error {
	birthday := ctx.Uint64("birthday")
	if birthday > uint64(^uint32(0)) {
		return &invalidUsageError{ctx, ctx.Command.Name}
	}

	manager, err := getWalletManager()
	if err != nil {
		return err
	}
	defer manager.CloseAll()

	password := ctx.String(passwordFlag.Name)
	if password == "" {
		if password, err = promptNewPassword(); err != nil {
			return err
		}
	}

	name := ctx.String(walletFlag.Name)
	w, err := manager.Restore(
		ctx.Context, name, strings.Fields(ctx.String("mnemonic")),
		application.CreateWalletOpts{
			Passphrase:     password,
			PaymentSecret:  ctx.String("secret"),
			BirthdayHeight: uint32(birthday),
		},
	)
	if err != nil {
		return err
	}
	fmt.Printf("Wallet %s restored\n", name)

	if ctx.Bool("nosync") {
		return nil
	}
	result, err := w.Sync(ctx.Context)
	if err != nil {
		return err
	}
	printJSON(result)
	return nil
}
