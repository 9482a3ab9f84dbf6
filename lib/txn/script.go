package txn

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

const (
	dummySigLen    = 72
	dummyPubKeyLen = 33
)

// MultisigScript builds the m-of-n redeem script over pubkeys sorted
// lexicographically, and returns the keys in script order.
func MultisigScript(m int, pubKeys [][]byte) ([]byte, [][]byte, error) {
	sorted := make([][]byte, len(pubKeys))
	copy(sorted, pubKeys)
	slices.SortFunc(sorted, bytes.Compare)

	builder := txscript.NewScriptBuilder().AddInt64(int64(m))
	for _, pk := range sorted {
		if _, err := btcec.ParsePubKey(pk); err != nil {
			return nil, nil, fmt.Errorf("multisig pubkey: %w", err)
		}
		builder.AddData(pk)
	}
	builder.AddInt64(int64(len(sorted))).AddOp(txscript.OP_CHECKMULTISIG)
	script, err := builder.Script()
	if err != nil {
		return nil, nil, err
	}
	return script, sorted, nil
}

// Finalize assembles the signature script and witness from collected
// signatures. It fails when fewer than NumSig signatures are present.
func (in *Input) Finalize() error {
	have, need := in.SignatureCount()
	if have < need {
		return fmt.Errorf("%w: %s has %d of %d", ErrMissingSignatures, in.Key(), have, need)
	}
	sigs := make([][]byte, 0, need)
	for _, sig := range in.Signatures {
		if sig != nil && len(sigs) < need {
			sigs = append(sigs, sig)
		}
	}
	sigScript, witness, err := assemble(in.ScriptType, sigs, in.PubKeys, in.RedeemScript)
	if err != nil {
		return err
	}
	in.SigScript = sigScript
	in.Witness = witness
	return nil
}

func assemble(typ ScriptType, sigs, pubKeys [][]byte, redeem []byte) ([]byte, wire.TxWitness, error) {
	switch typ {
	case P2PKH:
		if len(sigs) == 0 || len(pubKeys) == 0 {
			return nil, nil, ErrMissingSignatures
		}
		script, err := txscript.NewScriptBuilder().AddData(sigs[0]).AddData(pubKeys[0]).Script()
		return script, nil, err

	case P2WPKH, P2WPKHP2SH:
		if len(sigs) == 0 || len(pubKeys) == 0 {
			return nil, nil, ErrMissingSignatures
		}
		witness := wire.TxWitness{sigs[0], pubKeys[0]}
		if typ == P2WPKH {
			return nil, witness, nil
		}
		program, err := txscript.NewScriptBuilder().
			AddOp(txscript.OP_0).
			AddData(btcutil.Hash160(pubKeys[0])).
			Script()
		if err != nil {
			return nil, nil, err
		}
		script, err := txscript.NewScriptBuilder().AddData(program).Script()
		return script, witness, err

	case P2SH:
		builder := txscript.NewScriptBuilder().AddOp(txscript.OP_0)
		for _, sig := range sigs {
			builder.AddData(sig)
		}
		script, err := builder.AddData(redeem).Script()
		return script, nil, err

	case P2WSH, P2WSHP2SH:
		witness := wire.TxWitness{nil}
		witness = append(witness, sigs...)
		witness = append(witness, redeem)
		if typ == P2WSH {
			return nil, witness, nil
		}
		program, err := txscript.NewScriptBuilder().
			AddOp(txscript.OP_0).
			AddData(chainhash.HashB(redeem)).
			Script()
		if err != nil {
			return nil, nil, err
		}
		script, err := txscript.NewScriptBuilder().AddData(program).Script()
		return script, witness, err
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrUnknownScriptType, typ)
}

// EstimatedSize returns the virtual size the transaction will have once
// fully signed.
func (t *Tx) EstimatedSize() (int64, error) {
	msg := wire.NewMsgTx(t.Version)
	msg.LockTime = t.LockTime
	for _, in := range t.Inputs {
		sigScript, witness := in.SigScript, in.Witness
		if !in.Signed() {
			var err error
			sigScript, witness, err = dummyScripts(in)
			if err != nil {
				return 0, err
			}
		}
		op := in.Outpoint()
		msg.AddTxIn(wire.NewTxIn(&op, sigScript, witness))
	}
	for _, out := range t.Outputs {
		pkScript, err := PayToAddrScript(out.Address, t.params)
		if err != nil {
			return 0, fmt.Errorf("output %s: %w", out.Address, err)
		}
		msg.AddTxOut(wire.NewTxOut(max(out.Value, 0), pkScript))
	}
	return VirtualSize(msg), nil
}

// VirtualSize computes the BIP141 virtual size of msg.
func VirtualSize(msg *wire.MsgTx) int64 {
	stripped := int64(msg.SerializeSizeStripped())
	total := int64(msg.SerializeSize())
	return (stripped*3 + total + 3) / 4
}

func dummyScripts(in *Input) ([]byte, wire.TxWitness, error) {
	typ := in.ScriptType
	if typ == Unknown || typ == "" {
		typ = P2PKH
	}

	pubKeys := in.PubKeys
	if len(pubKeys) == 0 {
		pubKeys = [][]byte{make([]byte, dummyPubKeyLen)}
	}
	need := max(in.NumSig, 1)
	sigs := make([][]byte, need)
	for i := range sigs {
		sigs[i] = make([]byte, dummySigLen)
	}

	redeem := in.RedeemScript
	if typ.IsMultisig() && len(redeem) == 0 {
		// n pubkeys, m and n opcodes plus OP_CHECKMULTISIG
		redeem = make([]byte, 3+len(pubKeys)*(dummyPubKeyLen+1))
	}
	return assemble(typ, sigs, pubKeys, redeem)
}

// Sort orders inputs and outputs per BIP69.
func (t *Tx) Sort() {
	slices.SortStableFunc(t.Inputs, func(a, b *Input) int {
		if c := compareHash(a.PrevHash, b.PrevHash); c != 0 {
			return c
		}
		switch {
		case a.PrevIndex < b.PrevIndex:
			return -1
		case a.PrevIndex > b.PrevIndex:
			return 1
		}
		return 0
	})

	scripts := make(map[string][]byte, len(t.Outputs))
	for _, out := range t.Outputs {
		if script, err := PayToAddrScript(out.Address, t.params); err == nil {
			scripts[out.Address] = script
		}
	}
	slices.SortStableFunc(t.Outputs, func(a, b Output) int {
		switch {
		case a.Value < b.Value:
			return -1
		case a.Value > b.Value:
			return 1
		}
		return bytes.Compare(scripts[a.Address], scripts[b.Address])
	})
}

// compareHash orders hashes by their displayed (byte-reversed) form.
func compareHash(a, b chainhash.Hash) int {
	for i := chainhash.HashSize - 1; i >= 0; i-- {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
