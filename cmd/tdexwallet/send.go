package main

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/urfave/cli/v2"

	"github.com/tdex-network/tdex-wallet/internal/config"
	"github.com/tdex-network/tdex-wallet/internal/core/domain"
)

var send = cli.Command{
	Name:  "send",
	Usage: "send funds to one or more addresses",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:     "to",
			Usage:    "recipient in the form <address>:<amount in BTC>, can be repeated",
			Required: true,
		},
		&cli.Uint64Flag{
			Name:  "fee-rate",
			Usage: "fee rate in sats per vbyte, defaults to the configured one",
		},
		passwordFlag,
	},
	Action: sendAction,
}

func sendAction(ctx *cli.Context) error {
	recipients, err := parseRecipients(ctx.StringSlice("to"))
	if err != nil {
		return err
	}
	feeRate := config.GetFeeRate()
	if rate := ctx.Uint64("fee-rate"); rate > 0 {
		feeRate = btcutil.Amount(rate) * 1000
	}

	w, cleanup, err := openUnlockedWallet(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := w.Sync(ctx.Context); err != nil {
		return err
	}

	result, err := w.Send(ctx.Context, recipients, feeRate)
	if err != nil {
		if errors.Is(err, domain.ErrBroadcastPending) && result != nil {
			fmt.Printf(
				"Broadcast of tx %s is pending, it will be retried at every sync\n",
				result.TxID,
			)
		}
		return err
	}

	resp := map[string]interface{}{
		"txid":   result.TxID,
		"amount": formatBtcAmount(result.Amount),
		"fee":    formatBtcAmount(result.Fee),
	}
	if result.Change != nil {
		resp["change"] = formatBtcAmount(result.Change.Amount)
		resp["change_address"] = result.Change.Address
	}
	printJSON(resp)
	return nil
}

func parseRecipients(args []string) ([]domain.Recipient, error) {
	recipients := make([]domain.Recipient, 0, len(args))
	for _, arg := range args {
		addr, amountStr, err := splitRecipient(arg)
		if err != nil {
			return nil, err
		}
		amount, err := parseBtcAmount(amountStr)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, domain.Recipient{
			Address: addr,
			Amount:  amount,
		})
	}
	return recipients, nil
}

func splitRecipient(arg string) (string, string, error) {
	for i := len(arg) - 1; i >= 0; i-- {
		if arg[i] == ':' {
			if i == 0 || i == len(arg)-1 {
				break
			}
			return arg[:i], arg[i+1:], nil
		}
	}
	return "", "", fmt.Errorf(
		"invalid recipient %q, must be in the form <address>:<amount>", arg,
	)
}
