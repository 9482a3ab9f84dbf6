package chainparams

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

func TestCoinbaseMaturity(t *testing.T) {
	require.Equal(t, MaturityBeforeFork, Mainnet.CoinbaseMaturity(1284399))
	require.Equal(t, MaturityAfterFork, Mainnet.CoinbaseMaturity(1284400))
	require.Equal(t, MaturityBeforeFork, Testnet.CoinbaseMaturity(100))
	require.Equal(t, MaturityAfterFork, Regtest.CoinbaseMaturity(0))
}

func TestByName(t *testing.T) {
	p, err := ByName("testnet")
	require.NoError(t, err)
	require.Same(t, Testnet, p)

	p, err = ByName("")
	require.NoError(t, err)
	require.Same(t, Mainnet, p)

	_, err = ByName("signet")
	require.Error(t, err)
}

func TestAddressRoundTrip(t *testing.T) {
	hash := make([]byte, 20)
	hash[0] = 7
	for _, p := range []*Params{Mainnet, Testnet, Regtest} {
		addr, err := btcutil.NewAddressPubKeyHash(hash, p.Net)
		require.NoError(t, err)

		decoded, err := btcutil.DecodeAddress(addr.EncodeAddress(), p.Net)
		require.NoError(t, err)
		require.Equal(t, addr.EncodeAddress(), decoded.EncodeAddress())

		wit, err := btcutil.NewAddressWitnessPubKeyHash(hash, p.Net)
		require.NoError(t, err)
		decoded, err = btcutil.DecodeAddress(wit.EncodeAddress(), p.Net)
		require.NoError(t, err)
		require.True(t, decoded.IsForNet(p.Net))
	}
}
