package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

var verify = cli.Command{
	Name:   "unlock",
	Usage:  "check that the given password unlocks the wallet",
	Flags:  []cli.Flag{passwordFlag},
	Action: verifyAction,
}

func verifyAction(ctx *cli.Context) error {
	_, cleanup, err := openUnlockedWallet(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Println()
	fmt.Println("Wallet is unlocked")
	return nil
}
