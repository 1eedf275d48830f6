package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/tdex-network/tdex-wallet/internal/config"
	"github.com/tdex-network/tdex-wallet/internal/core/application"
	"github.com/tdex-network/tdex-wallet/internal/core/domain"
	"github.com/tdex-network/tdex-wallet/internal/infrastructure/datasource/esplora"
)

var (
	walletFlag = &cli.StringFlag{
		Name:    "wallet",
		Aliases: []string{"w"},
		Usage:   "name of the wallet to operate on",
		Value:   "default",
	}
	passwordFlag = &cli.StringFlag{
		Name:  "password",
		Usage: "the password used to encrypt the mnemonic, prompted if empty",
	}
)

func main() {
	app := cli.NewApp()

	app.Version = "0.1.0"
	app.Name = "tdexwallet"
	app.Usage = "Command line interface for a bitcoin P2WPKH wallet"
	app.Flags = []cli.Flag{walletFlag}
	app.Before = func(_ *cli.Context) error {
		if err := config.InitConfig(); err != nil {
			return err
		}
		log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))
		return nil
	}
	app.Commands = append(
		app.Commands,
		&genseed,
		&create,
		&restore,
		&list,
		&verify,
		&address,
		&balance,
		&listoutputs,
		&send,
		&history,
		&syncwallet,
		&rescan,
		&status,
		&changepassword,
		&daemon,
	)

	err := app.Run(os.Args)
	if err != nil {
		fatal(err)
	}
}

// getWalletManager returns the manager of the wallets of the datadir,
// connected to the configured esplora instance.
func getWalletManager() (*application.WalletManager, error) {
	source, err := esplora.NewService(esplora.Config{
		URL:            config.GetString(config.EsploraURLKey),
		Network:        config.GetNetwork(),
		RequestTimeout: config.GetDuration(config.RequestTimeoutKey),
		RateLimit:      config.GetInt(config.ExplorerRateLimitKey),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to connect to esplora: %w", err)
	}
	return config.GetAppConfig(source).WalletManager()
}

// openWallet opens the wallet selected with the global --wallet flag. The
// returned cleanup func closes all wallets.
func openWallet(ctx *cli.Context) (*application.WalletState, func(), error) {
	manager, err := getWalletManager()
	if err != nil {
		return nil, nil, err
	}
	w, err := manager.Open(ctx.String(walletFlag.Name))
	if err != nil {
		manager.CloseAll()
		return nil, nil, err
	}
	return w, manager.CloseAll, nil
}

// openUnlockedWallet is like openWallet but also unlocks the wallet with the
// password given with the --password flag or prompted.
func openUnlockedWallet(ctx *cli.Context) (*application.WalletState, func(), error) {
	w, cleanup, err := openWallet(ctx)
	if err != nil {
		return nil, nil, err
	}
	password, err := getPassword(ctx, passwordFlag.Name, "Password: ")
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if err := w.Unlock(password); err != nil {
		cleanup()
		return nil, nil, err
	}
	return w, cleanup, nil
}

func getPassword(ctx *cli.Context, flag, prompt string) (string, error) {
	if password := ctx.String(flag); password != "" {
		return password, nil
	}
	return promptPassword(prompt)
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("unable to read password: %w", err)
	}
	if len(password) <= 0 {
		return "", domain.ErrNullPassphrase
	}
	return string(password), nil
}

func promptNewPassword() (string, error) {
	password, err := promptPassword("New password: ")
	if err != nil {
		return "", err
	}
	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", errors.New("passwords do not match")
	}
	return password, nil
}

func printJSON(resp interface{}) {
	jsonBytes, err := json.MarshalIndent(resp, "", "\t")
	if err != nil {
		fmt.Println("unable to decode response: ", err)
		return
	}
	fmt.Println(string(jsonBytes))
}

func printMnemonic(mnemonic []string) {
	fmt.Println()
	fmt.Println(strings.Join(mnemonic, " "))
	fmt.Println()
	fmt.Println("Write down the mnemonic, it's the only way to recover the wallet")
}

func warn(err error, msg string) {
	_, _ = fmt.Fprintf(os.Stderr, "[tdexwallet] %s: %v\n", msg, err)
}

type invalidUsageError struct {
	ctx     *cli.Context
	command string
}

func (e *invalidUsageError) Error() string {
	return fmt.Sprintf("invalid usage of command %s", e.command)
}

func fatal(err error) {
	var e *invalidUsageError
	if errors.As(err, &e) {
		_ = cli.ShowCommandHelp(e.ctx, e.command)
	} else {
		_, _ = fmt.Fprintf(os.Stderr, "[tdexwallet] %s: %v\n", domain.KindOf(err), err)
	}
	os.Exit(1)
}
