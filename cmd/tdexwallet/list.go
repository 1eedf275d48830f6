package main

import (
	"github.com/urfave/cli/v2"
)

var list = cli.Command{
	Name:   "list",
	Usage:  "list the wallets of the datadir",
	Action: listAction,
}

func listAction(_ *cli.Context) error {
	manager, err := getWalletManager()
	if err != nil {
		return err
	}
	defer manager.CloseAll()

	names, err := manager.List()
	if err != nil {
		return err
	}
	printJSON(names)
	return nil
}
