package network

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/checksum0/go-electrum/electrum"

	"github.com/Maphikza/btc-wallet-ledger/internal/logger"
	"github.com/Maphikza/btc-wallet-ledger/lib/ledger"
	"github.com/Maphikza/btc-wallet-ledger/lib/txn"
)

const requestTimeout = 30 * time.Second

// ElectrumConfig locates the Electrum server.
type ElectrumConfig struct {
	ServerAddr string
	UseSSL     bool
}

// ElectrumServer is a Server backed by an Electrum protocol connection.
type ElectrumServer struct {
	client *electrum.Client
	tip    atomic.Int32
}

// DialElectrum connects to the server and subscribes to new headers.
func DialElectrum(ctx context.Context, cfg ElectrumConfig) (*ElectrumServer, error) {
	var (
		client *electrum.Client
		err    error
	)
	if cfg.UseSSL {
		client, err = electrum.NewClientSSL(ctx, cfg.ServerAddr, &tls.Config{MinVersion: tls.VersionTLS12})
	} else {
		client, err = electrum.NewClientTCP(ctx, cfg.ServerAddr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.ServerAddr, err)
	}

	s := &ElectrumServer{client: client}
	headers, err := client.SubscribeHeaders(ctx)
	if err != nil {
		client.Shutdown()
		return nil, fmt.Errorf("failed to subscribe to headers: %w", err)
	}
	select {
	case first, ok := <-headers:
		if !ok {
			client.Shutdown()
			return nil, fmt.Errorf("header subscription closed")
		}
		s.tip.Store(first.Height)
	case <-ctx.Done():
		client.Shutdown()
		return nil, ctx.Err()
	}
	go func() {
		for h := range headers {
			s.tip.Store(h.Height)
			logger.Network.Debug().Int32("height", h.Height).Msg("New header")
		}
	}()
	return s, nil
}

// ScriptHash returns the Electrum script hash of an address: the sha256 of
// its output script, byte-reversed and hex encoded.
func ScriptHash(addr string, params *chaincfg.Params) (string, error) {
	pkScript, err := txn.PayToAddrScript(addr, params)
	if err != nil {
		return "", err
	}
	return chainhash.HashH(pkScript).String(), nil
}

func (s *ElectrumServer) AddressHistory(ctx context.Context, scriptHash string) ([]ledger.HistoryItem, map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	res, err := s.client.GetHistory(ctx, scriptHash)
	if err != nil {
		return nil, nil, fmt.Errorf("error fetching history: %w", err)
	}
	hist := make([]ledger.HistoryItem, 0, len(res))
	fees := make(map[string]int64)
	for _, r := range res {
		hist = append(hist, ledger.HistoryItem{TxID: r.Hash, Height: r.Height})
		if r.Fee > 0 {
			fees[r.Hash] = int64(r.Fee)
		}
	}
	return hist, fees, nil
}

func (s *ElectrumServer) Transaction(ctx context.Context, txid string) (*wire.MsgTx, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	raw, err := s.client.GetRawTransaction(ctx, txid)
	if err != nil {
		return nil, fmt.Errorf("error fetching transaction %s: %w", txid, err)
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	var msg wire.MsgTx
	if err := msg.Deserialize(bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("error decoding transaction %s: %w", txid, err)
	}
	if got := msg.TxHash().String(); got != txid {
		return nil, fmt.Errorf("server returned %s for %s", got, txid)
	}
	return &msg, nil
}

func (s *ElectrumServer) Header(ctx context.Context, height int32) (*wire.BlockHeader, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	res, err := s.client.GetBlockHeader(ctx, uint32(height))
	if err != nil {
		return nil, fmt.Errorf("error fetching header %d: %w", height, err)
	}
	b, err := hex.DecodeString(res.Header)
	if err != nil {
		return nil, err
	}
	var hdr wire.BlockHeader
	if err := hdr.Deserialize(bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("error decoding header %d: %w", height, err)
	}
	return &hdr, nil
}

func (s *ElectrumServer) TxPosition(ctx context.Context, txid string, height int32) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	res, err := s.client.GetMerkleProof(ctx, txid, uint32(height))
	if err != nil {
		return 0, fmt.Errorf("error fetching merkle proof for %s: %w", txid, err)
	}
	return int(res.Position), nil
}

func (s *ElectrumServer) Tip(context.Context) (int32, error) {
	return s.tip.Load(), nil
}

func (s *ElectrumServer) Broadcast(ctx context.Context, msg *wire.MsgTx) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	var buf bytes.Buffer
	if err := msg.Serialize(&buf); err != nil {
		return "", err
	}
	return s.client.BroadcastTransaction(ctx, hex.EncodeToString(buf.Bytes()))
}

func (s *ElectrumServer) Close() {
	s.client.Shutdown()
}
