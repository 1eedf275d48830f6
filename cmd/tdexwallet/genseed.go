package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/tdex-network/tdex-wallet/pkg/wallet"
)

var genseed = cli.Command{
	Name:  "genseed",
	Usage: "generate a mnemonic seed",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "entropy",
			Usage: "entropy size in bits, 128 for 12 words up to 256 for 24 words",
			Value: wallet.DefaultEntropySize,
		},
	},
	Action: genSeedAction,
}

func genSeedAction(ctx *cli.Context) error {
	mnemonic, err := wallet.NewMnemonic(wallet.NewMnemonicOpts{
		EntropySize: ctx.Int("entropy"),
	})
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(strings.Join(mnemonic, " "))

	return nil
}
