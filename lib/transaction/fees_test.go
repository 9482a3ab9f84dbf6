package transaction

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func TestFeePolicies(t *testing.T) {
	require.Equal(t, int64(500), FixedFee(500).Fee(1000))
	require.Equal(t, int64(500), StaticFeeRate(2000).Fee(250))
	require.Equal(t, int64(0), StaticFeeRate(999).Fee(1))
}

func TestMempoolSpaceFeeRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		_ = json.NewEncoder(w).Encode(FeeRecommendation{
			FastestFee: 20, HalfHourFee: 12, HourFee: 8, EconomyFee: 3, MinimumFee: 1,
		})
	}))
	defer srv.Close()

	src := NewMempoolSpace(srv.URL, PriorityHalfHour)
	rate, err := src.FeeRate(context.Background())
	require.NoError(t, err)
	require.Equal(t, StaticFeeRate(12000), rate)

	rec, err := src.Recommendation(context.Background())
	require.NoError(t, err)
	require.Equal(t, 20, rec.Rate(PriorityFastest))
	require.Equal(t, 8, rec.Rate(Priority(0)))
	require.Equal(t, 1, rec.Rate(PriorityMinimum))
}

func TestMempoolSpaceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewMempoolSpace(srv.URL, PriorityHour).FeeRate(context.Background())
	require.ErrorIs(t, err, ErrNoFeeEstimate)
}

func TestBroadcasterFallsBack(t *testing.T) {
	msg := wire.NewMsgTx(2)
	msg.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{0x07}, 1), nil, nil))
	msg.AddTxOut(wire.NewTxOut(1000, []byte{0x51}))

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rejected", http.StatusBadRequest)
	}))
	defer failing.Close()

	var got atomic.Value
	accepting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got.Store(body["tx"])
		_, _ = io.WriteString(w, "ok")
	}))
	defer accepting.Close()

	b := NewBroadcaster([]Endpoint{
		{Name: "first", URL: failing.URL},
		{Name: "second", URL: accepting.URL, JSON: true},
	})
	txid, err := b.Broadcast(context.Background(), msg)
	require.NoError(t, err)
	require.Equal(t, msg.TxHash().String(), txid)

	raw, err := hex.DecodeString(got.Load().(string))
	require.NoError(t, err)
	var decoded wire.MsgTx
	require.NoError(t, decoded.Deserialize(bytes.NewReader(raw)))
	require.Equal(t, msg.TxHash(), decoded.TxHash())

	_, err = NewBroadcaster([]Endpoint{{Name: "first", URL: failing.URL}}).Broadcast(context.Background(), msg)
	require.ErrorIs(t, err, ErrBroadcastFailed)

	_, err = NewBroadcaster(nil).Broadcast(context.Background(), msg)
	require.ErrorIs(t, err, ErrBroadcastFailed)
}
