package wallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// NewMasterKey returns the BIP32 root key for the given seed and network.
func NewMasterKey(seed []byte, params *chaincfg.Params) (*hdkeychain.ExtendedKey, error) {
	if len(seed) <= 0 {
		return nil, ErrNullSeed
	}
	if params == nil {
		return nil, ErrNullNetwork
	}
	return hdkeychain.NewMaster(seed, params)
}

// DeriveExtendedKey walks the given path starting from key. Intermediate
// private nodes are zeroed, the returned key is owned by the caller.
// Hardened steps require key to be private.
func DeriveExtendedKey(
	key *hdkeychain.ExtendedKey, path DerivationPath,
) (*hdkeychain.ExtendedKey, error) {
	if len(path) <= 0 {
		return nil, ErrNullDerivationPath
	}

	hdNode := key
	for i, step := range path {
		child, err := hdNode.Derive(step)
		if hdNode != key {
			hdNode.Zero()
		}
		if err != nil {
			return nil, fmt.Errorf(
				"%w: step %d of %s: %s", ErrInvalidDerivationPath, i, path, err,
			)
		}
		hdNode = child
	}
	return hdNode, nil
}

// P2WPKHScript returns the native segwit v0 output script paying to the hash
// of the given public key.
func P2WPKHScript(pubkey *btcec.PublicKey) ([]byte, error) {
	if pubkey == nil {
		return nil, ErrNullPubKey
	}
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(btcutil.Hash160(pubkey.SerializeCompressed())).
		Script()
}

// P2WPKHAddress returns the bech32 address of the given public key.
func P2WPKHAddress(
	pubkey *btcec.PublicKey, params *chaincfg.Params,
) (*btcutil.AddressWitnessPubKeyHash, error) {
	if pubkey == nil {
		return nil, ErrNullPubKey
	}
	if params == nil {
		return nil, ErrNullNetwork
	}
	return btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(pubkey.SerializeCompressed()), params,
	)
}

// ScriptFromAddress decodes the address for the given network and returns
// its output script.
func ScriptFromAddress(addr string, params *chaincfg.Params) ([]byte, error) {
	if params == nil {
		return nil, ErrNullNetwork
	}
	decoded, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return nil, err
	}
	if !decoded.IsForNet(params) {
		return nil, fmt.Errorf("address %s is not for network %s", addr, params.Name)
	}
	return txscript.PayToAddrScript(decoded)
}

// AddressFromScript returns the encoded address of a standard output script,
// or an empty string if the script has no address form.
func AddressFromScript(script []byte, params *chaincfg.Params) string {
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(script, params)
	if err != nil || len(addrs) != 1 {
		return ""
	}
	return addrs[0].EncodeAddress()
}

// NetworkByName returns the chain params for the given network name.
func NetworkByName(name string) (*chaincfg.Params, error) {
	switch name {
	case "mainnet", "bitcoin":
		return &chaincfg.MainNetParams, nil
	case "testnet3", "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", name)
	}
}
