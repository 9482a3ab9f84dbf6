package keystore

import (
	"fmt"

	"github.com/Maphikza/btc-wallet-ledger/lib/txn"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// keyFunc finds the private key a keystore holds for in, and the position
// of its public key among in.PubKeys. A nil key means the input is not ours.
type keyFunc func(in *txn.Input) (*btcec.PrivateKey, int, error)

func signWith(tx *txn.Tx, lookup keyFunc) error {
	msg, err := tx.MsgTx()
	if err != nil {
		return err
	}
	fetcher, err := tx.PrevOutFetcher()
	if err != nil {
		return err
	}
	hashes := txscript.NewTxSigHashes(msg, fetcher)

	for i, in := range tx.Inputs {
		if in.Signed() {
			continue
		}
		priv, pos, err := lookup(in)
		if err != nil {
			return err
		}
		if priv == nil {
			continue
		}
		if len(in.Signatures) != len(in.PubKeys) {
			sigs := make([][]byte, len(in.PubKeys))
			copy(sigs, in.Signatures)
			in.Signatures = sigs
		}
		if in.Signatures[pos] != nil {
			continue
		}
		sig, err := signInput(tx, msg, hashes, i, priv)
		if err != nil {
			return fmt.Errorf("failed to sign input %s: %w", in.Key(), err)
		}
		in.Signatures[pos] = sig
		if have, need := in.SignatureCount(); have >= need {
			if err := in.Finalize(); err != nil {
				return err
			}
		}
	}
	return nil
}

func signInput(tx *txn.Tx, msg *wire.MsgTx, hashes *txscript.TxSigHashes, idx int, priv *btcec.PrivateKey) ([]byte, error) {
	in := tx.Inputs[idx]
	switch in.ScriptType {
	case txn.P2PKH:
		pkScript, err := txn.PayToAddrScript(in.Address, tx.Params())
		if err != nil {
			return nil, err
		}
		return txscript.RawTxInSignature(msg, idx, pkScript, txscript.SigHashAll, priv)

	case txn.P2WPKH, txn.P2WPKHP2SH:
		program, err := txscript.NewScriptBuilder().
			AddOp(txscript.OP_0).
			AddData(btcutil.Hash160(priv.PubKey().SerializeCompressed())).
			Script()
		if err != nil {
			return nil, err
		}
		return txscript.RawTxInWitnessSignature(msg, hashes, idx, in.Value, program, txscript.SigHashAll, priv)

	case txn.P2SH:
		return txscript.RawTxInSignature(msg, idx, in.RedeemScript, txscript.SigHashAll, priv)

	case txn.P2WSH, txn.P2WSHP2SH:
		return txscript.RawTxInWitnessSignature(msg, hashes, idx, in.Value, in.RedeemScript, txscript.SigHashAll, priv)
	}
	return nil, fmt.Errorf("%w: %s", txn.ErrUnknownScriptType, in.ScriptType)
}
