package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

var changepassword = cli.Command{
	Name:  "changepassword",
	Usage: "change the password used to encrypt the mnemonic",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "current_password",
			Usage: "the current password, prompted if empty",
		},
		&cli.StringFlag{
			Name:  "new_password",
			Usage: "the new password, prompted if empty",
		},
	},
	Action: changePasswordAction,
}

func changePasswordAction(ctx *cli.Context) error {
	w, cleanup, err := openWallet(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	current, err := getPassword(ctx, "current_password", "Current password: ")
	if err != nil {
		return err
	}
	newPassword := ctx.String("new_password")
	if newPassword == "" {
		if newPassword, err = promptNewPassword(); err != nil {
			return err
		}
	}

	if err := w.ChangePassphrase(ctx.Context, current, newPassword); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Password changed")
	return nil
}
