package txn

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// InputAddress reads the address an input spends from its signature script
// and witness. The second result is false when the scripts do not reveal it,
// for example for pay-to-pubkey spends, in which case callers look the
// previous output up instead.
func InputAddress(txIn *wire.TxIn, params *chaincfg.Params) (string, bool) {
	if isCoinbaseOutpoint(txIn.PreviousOutPoint) {
		return "", false
	}

	pushes, err := txscript.PushedData(txIn.SignatureScript)
	if err != nil {
		return "", false
	}

	// Nested segwit: the signature script is a single push of the program.
	if len(pushes) == 1 && len(txIn.Witness) > 0 && isWitnessProgram(pushes[0]) {
		addr, err := btcutil.NewAddressScriptHash(pushes[0], params)
		if err != nil {
			return "", false
		}
		return addr.EncodeAddress(), true
	}

	if len(txIn.SignatureScript) == 0 && len(txIn.Witness) > 0 {
		last := txIn.Witness[len(txIn.Witness)-1]
		if len(txIn.Witness) == 2 && isPubKey(last) {
			addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(last), params)
			if err != nil {
				return "", false
			}
			return addr.EncodeAddress(), true
		}
		if ok, _ := txscript.IsMultisigScript(last); ok {
			hash := chainhash.HashB(last)
			addr, err := btcutil.NewAddressWitnessScriptHash(hash, params)
			if err != nil {
				return "", false
			}
			return addr.EncodeAddress(), true
		}
		return "", false
	}

	if len(pushes) == 2 && isPubKey(pushes[1]) {
		addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pushes[1]), params)
		if err != nil {
			return "", false
		}
		return addr.EncodeAddress(), true
	}

	if len(pushes) >= 2 {
		redeem := pushes[len(pushes)-1]
		if ok, _ := txscript.IsMultisigScript(redeem); ok {
			addr, err := btcutil.NewAddressScriptHash(redeem, params)
			if err != nil {
				return "", false
			}
			return addr.EncodeAddress(), true
		}
	}
	return "", false
}

// OutputAddress returns the address an output pays to. Bare pay-to-pubkey
// outputs map to the pubkey's P2PKH address.
func OutputAddress(txOut *wire.TxOut, params *chaincfg.Params) (string, bool) {
	class, addrs, _, err := txscript.ExtractPkScriptAddrs(txOut.PkScript, params)
	if err != nil || len(addrs) != 1 {
		return "", false
	}
	switch class {
	case txscript.PubKeyTy:
		pk, ok := addrs[0].(*btcutil.AddressPubKey)
		if !ok {
			return "", false
		}
		return pk.AddressPubKeyHash().EncodeAddress(), true
	case txscript.PubKeyHashTy, txscript.ScriptHashTy,
		txscript.WitnessV0PubKeyHashTy, txscript.WitnessV0ScriptHashTy,
		txscript.WitnessV1TaprootTy:
		return addrs[0].EncodeAddress(), true
	}
	return "", false
}

// ScriptTypeForAddress returns the spending template implied by an address.
// Script-hash addresses are assumed to wrap a multisig script.
func ScriptTypeForAddress(address string, params *chaincfg.Params) ScriptType {
	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return Unknown
	}
	switch addr.(type) {
	case *btcutil.AddressPubKeyHash:
		return P2PKH
	case *btcutil.AddressWitnessPubKeyHash:
		return P2WPKH
	case *btcutil.AddressScriptHash:
		return P2SH
	case *btcutil.AddressWitnessScriptHash:
		return P2WSH
	}
	return Unknown
}

// PubKeyToAddress encodes the single-key address of type typ for pub.
func PubKeyToAddress(typ ScriptType, pub []byte, params *chaincfg.Params) (string, error) {
	hash := btcutil.Hash160(pub)
	var (
		addr btcutil.Address
		err  error
	)
	switch typ {
	case P2PKH:
		addr, err = btcutil.NewAddressPubKeyHash(hash, params)
	case P2WPKH:
		addr, err = btcutil.NewAddressWitnessPubKeyHash(hash, params)
	case P2WPKHP2SH:
		var program []byte
		program, err = txscript.NewScriptBuilder().AddOp(txscript.OP_0).AddData(hash).Script()
		if err == nil {
			addr, err = btcutil.NewAddressScriptHash(program, params)
		}
	default:
		return "", fmt.Errorf("%w: %s for a single key", ErrUnknownScriptType, typ)
	}
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

// RedeemScriptToAddress encodes the script-hash address of type typ for a
// multisig redeem script.
func RedeemScriptToAddress(typ ScriptType, redeem []byte, params *chaincfg.Params) (string, error) {
	var (
		addr btcutil.Address
		err  error
	)
	switch typ {
	case P2SH:
		addr, err = btcutil.NewAddressScriptHash(redeem, params)
	case P2WSH:
		addr, err = btcutil.NewAddressWitnessScriptHash(chainhash.HashB(redeem), params)
	case P2WSHP2SH:
		var program []byte
		program, err = txscript.NewScriptBuilder().AddOp(txscript.OP_0).AddData(chainhash.HashB(redeem)).Script()
		if err == nil {
			addr, err = btcutil.NewAddressScriptHash(program, params)
		}
	default:
		return "", fmt.Errorf("%w: %s for a redeem script", ErrUnknownScriptType, typ)
	}
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

// IsCoinbase reports whether msg is a block reward transaction.
func IsCoinbase(msg *wire.MsgTx) bool {
	return len(msg.TxIn) == 1 && isCoinbaseOutpoint(msg.TxIn[0].PreviousOutPoint)
}

// IsCoinstake reports whether msg is a proof-of-stake reward: its first
// output is empty and carries no value.
func IsCoinstake(msg *wire.MsgTx) bool {
	if IsCoinbase(msg) || len(msg.TxIn) == 0 || len(msg.TxOut) < 2 {
		return false
	}
	first := msg.TxOut[0]
	return first.Value == 0 && len(first.PkScript) == 0
}

// IsComplete reports whether every non-coinbase input carries a script or
// witness.
func IsComplete(msg *wire.MsgTx) bool {
	if IsCoinbase(msg) {
		return true
	}
	for _, txIn := range msg.TxIn {
		if len(txIn.SignatureScript) == 0 && len(txIn.Witness) == 0 {
			return false
		}
	}
	return true
}

// IsFinal reports whether every input of msg opted out of replacement.
func IsFinal(msg *wire.MsgTx) bool {
	for _, txIn := range msg.TxIn {
		if txIn.Sequence < wire.MaxTxInSequenceNum-1 {
			return false
		}
	}
	return true
}

func isCoinbaseOutpoint(op wire.OutPoint) bool {
	return op.Index == wire.MaxPrevOutIndex && op.Hash == (chainhash.Hash{})
}

func isPubKey(b []byte) bool {
	switch len(b) {
	case 33:
		return b[0] == 0x02 || b[0] == 0x03
	case 65:
		return b[0] == 0x04
	}
	return false
}

func isWitnessProgram(b []byte) bool {
	return (len(b) == 22 && b[0] == txscript.OP_0 && b[1] == txscript.OP_DATA_20) ||
		(len(b) == 34 && b[0] == txscript.OP_0 && b[1] == txscript.OP_DATA_32)
}
