package wallet

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusWalletBalance      *prometheus.GaugeVec
	prometheusWalletTransactions *prometheus.GaugeVec
	prometheusWalletAddresses    *prometheus.GaugeVec
	prometheusWalletHeight       *prometheus.GaugeVec
	prometheusWalletLocalTx      prometheus.Counter

	// only init the metrics once
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusWalletBalance = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wallet_balance_sats",
			Help: "Wallet balance in satoshis",
		},
		[]string{
			"wallet",
			"state", // confirmed, unconfirmed or immature
		},
	)
	prometheusWalletTransactions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wallet_transactions",
			Help: "Number of transactions in the wallet ledger",
		},
		[]string{"wallet"},
	)
	prometheusWalletAddresses = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wallet_addresses",
			Help: "Number of addresses in the wallet",
		},
		[]string{"wallet"},
	)
	prometheusWalletHeight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wallet_local_height",
			Help: "Chain height last seen by the wallet",
		},
		[]string{"wallet"},
	)
	prometheusWalletLocalTx = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wallet_local_tx_total",
			Help: "Number of transactions created or added locally",
		},
	)
}

func recordLocalTx() {
	initPrometheusMetrics()
	prometheusWalletLocalTx.Inc()
}

// UpdateMetrics publishes the wallet's balance and sizes.
func (w *Wallet) UpdateMetrics() {
	initPrometheusMetrics()
	b := w.ledger.Balance(nil)
	prometheusWalletBalance.WithLabelValues(w.Name, "confirmed").Set(float64(b.Confirmed))
	prometheusWalletBalance.WithLabelValues(w.Name, "unconfirmed").Set(float64(b.Unconfirmed))
	prometheusWalletBalance.WithLabelValues(w.Name, "immature").Set(float64(b.Immature))
	prometheusWalletTransactions.WithLabelValues(w.Name).Set(float64(w.ledger.NumTransactions()))
	prometheusWalletAddresses.WithLabelValues(w.Name).Set(float64(len(w.account.Addresses())))
	prometheusWalletHeight.WithLabelValues(w.Name).Set(float64(w.ledger.LocalHeight()))
}
