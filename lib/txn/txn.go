// Package txn holds the wallet-side transaction model: coins the wallet can
// spend, partially signed inputs, payment outputs and the conversions to and
// from wire transactions.
package txn

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

const (
	// SpendMax is the output value sentinel meaning "everything left after
	// the other outputs and the fee".
	SpendMax int64 = -1

	// SequenceFinal and SequenceRBF mirror the two sequence numbers the
	// builder emits.
	SequenceFinal = wire.MaxTxInSequenceNum
	SequenceRBF   = wire.MaxTxInSequenceNum - 2

	// DefaultVersion is used for every transaction the wallet builds.
	DefaultVersion = 2
)

var (
	ErrUnknownScriptType = errors.New("unknown script type")
	ErrMissingSignatures = errors.New("not enough signatures")
	ErrNegativeValue     = errors.New("negative output value")
	ErrBadOutpoint       = errors.New("malformed outpoint")
)

// ScriptType names the spending template of an input.
type ScriptType string

const (
	P2PKH      ScriptType = "p2pkh"
	P2WPKH     ScriptType = "p2wpkh"
	P2WPKHP2SH ScriptType = "p2wpkh-p2sh"
	P2SH       ScriptType = "p2sh"
	P2WSH      ScriptType = "p2wsh"
	P2WSHP2SH  ScriptType = "p2wsh-p2sh"
	Coinbase   ScriptType = "coinbase"
	Unknown    ScriptType = "unknown"
)

// IsSegwit reports whether inputs of this type commit to their amount.
func (s ScriptType) IsSegwit() bool {
	switch s {
	case P2WPKH, P2WPKHP2SH, P2WSH, P2WSHP2SH:
		return true
	}
	return false
}

// IsMultisig reports whether inputs of this type are spent through a
// multisig redeem script.
func (s ScriptType) IsMultisig() bool {
	switch s {
	case P2SH, P2WSH, P2WSHP2SH:
		return true
	}
	return false
}

// OutpointKey renders an outpoint the way the ledger keys its maps.
func OutpointKey(hash chainhash.Hash, index uint32) string {
	return hash.String() + ":" + strconv.FormatUint(uint64(index), 10)
}

// ParseOutpoint is the inverse of OutpointKey.
func ParseOutpoint(key string) (wire.OutPoint, error) {
	hashStr, indexStr, ok := strings.Cut(key, ":")
	if !ok {
		return wire.OutPoint{}, fmt.Errorf("%w: %q", ErrBadOutpoint, key)
	}
	hash, err := chainhash.NewHashFromStr(hashStr)
	if err != nil {
		return wire.OutPoint{}, fmt.Errorf("%w: %v", ErrBadOutpoint, err)
	}
	index, err := strconv.ParseUint(indexStr, 10, 32)
	if err != nil {
		return wire.OutPoint{}, fmt.Errorf("%w: %v", ErrBadOutpoint, err)
	}
	return wire.OutPoint{Hash: *hash, Index: uint32(index)}, nil
}

// Coin is an output the wallet may spend.
type Coin struct {
	Address   string
	Value     int64
	PrevHash  chainhash.Hash
	PrevIndex uint32
	Height    int32
	Coinbase  bool
}

// Outpoint returns the wire outpoint of the coin.
func (c Coin) Outpoint() wire.OutPoint {
	return wire.OutPoint{Hash: c.PrevHash, Index: c.PrevIndex}
}

// Key returns the ledger key of the coin's outpoint.
func (c Coin) Key() string {
	return OutpointKey(c.PrevHash, c.PrevIndex)
}

// Derivation locates a deterministic key on its branch.
type Derivation struct {
	Change bool
	Index  uint32
}

// Input is a coin being spent together with everything needed to sign it.
// PubKeys are kept in redeem-script order and Signatures is indexed the same
// way, with nil marking a missing signature.
type Input struct {
	Coin

	ScriptType   ScriptType
	Sequence     uint32
	PubKeys      [][]byte
	Derivation   *Derivation
	NumSig       int
	RedeemScript []byte
	Signatures   [][]byte

	SigScript []byte
	Witness   wire.TxWitness
}

// NewInput wraps a coin with the default sequence.
func NewInput(c Coin) *Input {
	return &Input{Coin: c, Sequence: SequenceRBF, ScriptType: Unknown}
}

// Signed reports whether the input carries a final script or witness.
func (in *Input) Signed() bool {
	return len(in.SigScript) > 0 || len(in.Witness) > 0
}

// SignatureCount returns how many signatures are present and required.
func (in *Input) SignatureCount() (int, int) {
	if in.Signed() {
		n := max(in.NumSig, 1)
		return n, n
	}
	have := 0
	for _, sig := range in.Signatures {
		if sig != nil {
			have++
		}
	}
	return have, max(in.NumSig, 1)
}

// StripSignatures drops partial and final signatures, keeping key metadata.
func (in *Input) StripSignatures() {
	in.SigScript = nil
	in.Witness = nil
	in.Signatures = make([][]byte, len(in.PubKeys))
}

// Output pays Value to Address. Value may be SpendMax while building.
type Output struct {
	Address string
	Value   int64
}

// Tx is a transaction under construction.
type Tx struct {
	Version  int32
	LockTime uint32
	Inputs   []*Input
	Outputs  []Output

	params *chaincfg.Params
}

// FromIO builds a transaction from inputs and outputs.
func FromIO(params *chaincfg.Params, inputs []*Input, outputs []Output, lockTime uint32) *Tx {
	outs := make([]Output, len(outputs))
	copy(outs, outputs)
	return &Tx{
		Version:  DefaultVersion,
		LockTime: lockTime,
		Inputs:   inputs,
		Outputs:  outs,
		params:   params,
	}
}

// FromMsgTx rebuilds a transaction from its wire form. Input addresses are
// filled when they can be read from the scripts; values are left zero and
// must be attached by the wallet.
func FromMsgTx(params *chaincfg.Params, msg *wire.MsgTx) *Tx {
	tx := &Tx{Version: msg.Version, LockTime: msg.LockTime, params: params}
	for _, txIn := range msg.TxIn {
		addr, _ := InputAddress(txIn, params)
		in := NewInput(Coin{
			Address:   addr,
			PrevHash:  txIn.PreviousOutPoint.Hash,
			PrevIndex: txIn.PreviousOutPoint.Index,
		})
		in.Sequence = txIn.Sequence
		in.SigScript = bytes.Clone(txIn.SignatureScript)
		if len(txIn.Witness) > 0 {
			in.Witness = make(wire.TxWitness, len(txIn.Witness))
			for i, item := range txIn.Witness {
				in.Witness[i] = bytes.Clone(item)
			}
		}
		tx.Inputs = append(tx.Inputs, in)
	}
	for _, txOut := range msg.TxOut {
		addr, _ := OutputAddress(txOut, params)
		tx.Outputs = append(tx.Outputs, Output{Address: addr, Value: txOut.Value})
	}
	return tx
}

// Params returns the network the transaction addresses belong to.
func (t *Tx) Params() *chaincfg.Params {
	return t.params
}

// PayToAddrScript returns the output script for an encoded address.
func PayToAddrScript(address string, params *chaincfg.Params) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return nil, err
	}
	if !addr.IsForNet(params) {
		return nil, fmt.Errorf("address %s is not for %s", address, params.Name)
	}
	return txscript.PayToAddrScript(addr)
}

// MsgTx serializes the transaction into its wire form.
func (t *Tx) MsgTx() (*wire.MsgTx, error) {
	msg := wire.NewMsgTx(t.Version)
	msg.LockTime = t.LockTime
	for _, in := range t.Inputs {
		op := in.Outpoint()
		txIn := wire.NewTxIn(&op, in.SigScript, in.Witness)
		txIn.Sequence = in.Sequence
		msg.AddTxIn(txIn)
	}
	for _, out := range t.Outputs {
		if out.Value < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNegativeValue, out.Address)
		}
		pkScript, err := PayToAddrScript(out.Address, t.params)
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", out.Address, err)
		}
		msg.AddTxOut(wire.NewTxOut(out.Value, pkScript))
	}
	return msg, nil
}

// TxID returns the transaction id, which ignores witness data.
func (t *Tx) TxID() (string, error) {
	msg, err := t.MsgTx()
	if err != nil {
		return "", err
	}
	return msg.TxHash().String(), nil
}

// InputValue sums the values of all inputs.
func (t *Tx) InputValue() int64 {
	var total int64
	for _, in := range t.Inputs {
		total += in.Value
	}
	return total
}

// OutputValue sums the values of all outputs, ignoring SpendMax sentinels.
func (t *Tx) OutputValue() int64 {
	var total int64
	for _, out := range t.Outputs {
		if out.Value > 0 {
			total += out.Value
		}
	}
	return total
}

// Fee is the difference between inputs and outputs.
func (t *Tx) Fee() int64 {
	return t.InputValue() - t.OutputValue()
}

// IsFinal reports whether every input opted out of replacement.
func (t *Tx) IsFinal() bool {
	for _, in := range t.Inputs {
		if in.Sequence < wire.MaxTxInSequenceNum-1 {
			return false
		}
	}
	return true
}

// IsComplete reports whether every input carries a final script.
func (t *Tx) IsComplete() bool {
	for _, in := range t.Inputs {
		if !in.Signed() {
			return false
		}
	}
	return true
}

// SignatureCount sums present and required signatures over all inputs.
func (t *Tx) SignatureCount() (int, int) {
	var have, need int
	for _, in := range t.Inputs {
		h, n := in.SignatureCount()
		have += h
		need += n
	}
	return have, need
}

// StripSignatures drops all signatures so the transaction can be re-signed.
func (t *Tx) StripSignatures() {
	for _, in := range t.Inputs {
		in.StripSignatures()
	}
}

// PrevOutFetcher returns the previous outputs needed by the signature hash.
func (t *Tx) PrevOutFetcher() (*txscript.MultiPrevOutFetcher, error) {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for _, in := range t.Inputs {
		pkScript, err := PayToAddrScript(in.Address, t.params)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", in.Key(), err)
		}
		fetcher.AddPrevOut(in.Outpoint(), wire.NewTxOut(in.Value, pkScript))
	}
	return fetcher, nil
}
