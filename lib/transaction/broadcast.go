package transaction

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/btcsuite/btcd/wire"

	"github.com/Maphikza/btc-wallet-ledger/internal/logger"
)

var ErrBroadcastFailed = errors.New("all broadcast endpoints failed")

// Endpoint is an HTTP API that accepts raw transactions.
type Endpoint struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
	// JSON wraps the hex in {"tx": ...} instead of posting it as text.
	JSON bool `mapstructure:"json"`
}

// Broadcaster posts a transaction to each endpoint until one accepts it. It
// is the fallback when the Electrum server refuses a broadcast.
type Broadcaster struct {
	Endpoints []Endpoint
	Client    *http.Client
}

func NewBroadcaster(endpoints []Endpoint) *Broadcaster {
	return &Broadcaster{
		Endpoints: endpoints,
		Client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Broadcast returns the txid reported by the first endpoint that accepts
// msg.
func (b *Broadcaster) Broadcast(ctx context.Context, msg *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := msg.Serialize(&buf); err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}
	txHex := hex.EncodeToString(buf.Bytes())
	txid := msg.TxHash().String()

	if len(b.Endpoints) == 0 {
		return "", fmt.Errorf("%w: no endpoints configured", ErrBroadcastFailed)
	}

	var errs []error
	for _, ep := range b.Endpoints {
		err := b.post(ctx, ep, txHex)
		if err == nil {
			logger.Builder.Info().Str("txid", txid).Str("endpoint", ep.Name).Msg("Transaction broadcast")
			return txid, nil
		}
		logger.Builder.Warn().Err(err).Str("endpoint", ep.Name).Msg("Broadcast failed, trying next endpoint")
		errs = append(errs, fmt.Errorf("%s: %w", ep.Name, err))
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("%w: %w", ErrBroadcastFailed, errors.Join(errs...))
}

func (b *Broadcaster) post(ctx context.Context, ep Endpoint, txHex string) error {
	body, contentType := txHex, "text/plain"
	if ep.JSON {
		raw, err := json.Marshal(map[string]string{"tx": txHex})
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		body, contentType = string(raw), "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := b.Client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}
