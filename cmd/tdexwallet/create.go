package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/tdex-network/tdex-wallet/internal/core/application"
)

var create = cli.Command{
	Name:  "create",
	Usage: "create a new wallet with a random mnemonic",
	Flags: []cli.Flag{
		passwordFlag,
		&cli.StringFlag{
			Name:  "secret",
			Usage: "optional BIP39 passphrase protecting the mnemonic",
		},
	},
	Action: createAction,
}

func createAction(ctx *cli.Context) error {
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
	w, mnemonic, err := manager.Create(ctx.Context, name, application.CreateWalletOpts{
		Passphrase:    password,
		PaymentSecret: ctx.String("secret"),
	})
	if err != nil {
		return err
	}

	printMnemonic(mnemonic)
	fmt.Printf(
		"Wallet %s created, synced from block %d\n",
		name, w.SyncStatus().Cursor.Height,
	)
	return nil
}
