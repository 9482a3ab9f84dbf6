package wallet

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
)

// HistoryRow is a history entry formatted for display.
type HistoryRow struct {
	TxID          string `json:"txid"`
	Date          string `json:"date"`
	Confirmations int32  `json:"confirmations"`
	Amount        string `json:"amount"`
	Balance       string `json:"balance"`
}

const pending = "pending"

// FormatHistory renders the wallet history with BTC amounts and RFC3339
// dates. Unknown amounts render as "?".
func (w *Wallet) FormatHistory(from, to int64) []HistoryRow {
	entries := w.History(from, to)
	rows := make([]HistoryRow, 0, len(entries))
	for _, e := range entries {
		date := pending
		if e.Timestamp > 0 {
			date = time.Unix(e.Timestamp, 0).UTC().Format(time.RFC3339)
		}
		rows = append(rows, HistoryRow{
			TxID:          e.TxID,
			Date:          date,
			Confirmations: e.Conf,
			Amount:        formatAmount(e.Delta.UnwrapOr(0), e.Delta.IsSome()),
			Balance:       formatAmount(e.Balance.UnwrapOr(0), e.Balance.IsSome()),
		})
	}
	return rows
}

// FormatAmount renders satoshis as BTC.
func FormatAmount(sats int64) string {
	return fmt.Sprintf("%.8f", btcutil.Amount(sats).ToBTC())
}

func formatAmount(sats int64, known bool) string {
	if !known {
		return "?"
	}
	return FormatAmount(sats)
}
