package wallet

import (
	"github.com/btcsuite/btcd/wire"
)

const (
	// hash + index + sequence + empty scriptsig len
	p2wpkhInputBaseSize = 32 + 4 + 4 + 1
	// count + len|sig|sighash + len|pubkey
	p2wpkhWitnessSize = 1 + 73 + 34
)

// EstimateP2WPKHSpendSize estimates the virtual size of a transaction with
// nInputs P2WPKH inputs paying to the given output scripts. Signatures are
// accounted at their maximum DER length.
func EstimateP2WPKHSpendSize(nInputs int, outScripts [][]byte) int {
	baseSize := calcTxBaseSize(nInputs, outScripts)
	totalSize := baseSize + calcTxWitnessSize(nInputs)

	weight := baseSize*3 + totalSize
	vsize := (weight + 3) / 4

	return vsize
}

func calcTxBaseSize(nInputs int, outScripts [][]byte) int {
	outsSize := 0
	for _, script := range outScripts {
		// value + len + script
		outsSize += 8 + wire.VarIntSerializeSize(uint64(len(script))) + len(script)
	}

	// version + locktime
	return 4 + 4 +
		wire.VarIntSerializeSize(uint64(nInputs)) +
		wire.VarIntSerializeSize(uint64(len(outScripts))) +
		nInputs*p2wpkhInputBaseSize + outsSize
}

func calcTxWitnessSize(nInputs int) int {
	if nInputs <= 0 {
		return 0
	}
	// segwit marker + flag
	return 2 + nInputs*p2wpkhWitnessSize
}
