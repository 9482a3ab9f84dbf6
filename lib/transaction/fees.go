package transaction

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DefaultMempoolURL is the recommended fees endpoint of mempool.space.
const DefaultMempoolURL = "https://mempool.space/api/v1/fees/recommended"

// FeePolicy prices a transaction by its virtual size.
type FeePolicy interface {
	Fee(vsize int64) int64
}

// FixedFee pays the same amount whatever the size.
type FixedFee int64

func (f FixedFee) Fee(int64) int64 {
	return int64(f)
}

// StaticFeeRate pays a rate in satoshis per 1000 virtual bytes.
type StaticFeeRate int64

func (r StaticFeeRate) Fee(vsize int64) int64 {
	return int64(r) * vsize / 1000
}

// MempoolSpace fetches recommended fee rates over HTTP. Callers fetch the
// rate before building so no request is made while wallet state is locked.
type MempoolSpace struct {
	URL      string
	Priority Priority
	Client   *http.Client
}

// NewMempoolSpace returns a source querying url, or mempool.space when url
// is empty.
func NewMempoolSpace(url string, p Priority) *MempoolSpace {
	if url == "" {
		url = DefaultMempoolURL
	}
	return &MempoolSpace{
		URL:      url,
		Priority: p,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Recommendation fetches the current recommended fees.
func (m *MempoolSpace) Recommendation(ctx context.Context) (FeeRecommendation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.URL, nil)
	if err != nil {
		return FeeRecommendation{}, err
	}
	resp, err := m.Client.Do(req)
	if err != nil {
		return FeeRecommendation{}, fmt.Errorf("%w: %v", ErrNoFeeEstimate, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return FeeRecommendation{}, fmt.Errorf("%w: status %d", ErrNoFeeEstimate, resp.StatusCode)
	}

	var feeRec FeeRecommendation
	if err := json.NewDecoder(resp.Body).Decode(&feeRec); err != nil {
		return FeeRecommendation{}, fmt.Errorf("%w: %v", ErrNoFeeEstimate, err)
	}
	return feeRec, nil
}

// FeeRate fetches the recommendation and converts the rate for m.Priority.
func (m *MempoolSpace) FeeRate(ctx context.Context) (StaticFeeRate, error) {
	feeRec, err := m.Recommendation(ctx)
	if err != nil {
		return 0, err
	}
	rate := feeRec.Rate(m.Priority)
	if rate <= 0 {
		return 0, ErrNoFeeEstimate
	}
	return StaticFeeRate(rate * 1000), nil
}
