package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/Maphikza/btc-wallet-ledger/internal/ipc"
	"github.com/Maphikza/btc-wallet-ledger/internal/wallet"
)

type queryFunc func(w *wallet.Wallet, args []string) (interface{}, error)

// queries are the read-only commands a running sync process answers for
// other invocations.
var queries = map[string]queryFunc{
	"addresses": func(w *wallet.Wallet, _ []string) (interface{}, error) {
		return w.Addresses(), nil
	},
	"receive": func(w *wallet.Wallet, _ []string) (interface{}, error) {
		addr, ok := w.ReceivingAddress()
		if !ok {
			return nil, fmt.Errorf("wallet has no receiving addresses")
		}
		return addr, nil
	},
	"balance": func(w *wallet.Wallet, args []string) (interface{}, error) {
		b := w.Balance(args...)
		return map[string]string{
			"confirmed":   wallet.FormatAmount(b.Confirmed),
			"unconfirmed": wallet.FormatAmount(b.Unconfirmed),
			"immature":    wallet.FormatAmount(b.Immature),
			"total":       wallet.FormatAmount(b.Total()),
		}, nil
	},
	"history": func(w *wallet.Wallet, args []string) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("history takes from and to")
		}
		from, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return nil, err
		}
		to, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return nil, err
		}
		return w.FormatHistory(from, to), nil
	},
	"tx": func(w *wallet.Wallet, args []string) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("tx takes a txid")
		}
		info, err := w.TxInfo(args[0])
		if err != nil {
			return nil, err
		}
		result := map[string]interface{}{
			"txid":          info.TxID,
			"status":        info.Status.String(),
			"height":        info.Mined.Height,
			"confirmations": info.Mined.Conf,
			"can_broadcast": info.CanBroadcast,
			"can_bump":      info.CanBump,
		}
		info.Amount.WhenSome(func(v int64) { result["amount"] = wallet.FormatAmount(v) })
		info.Fee.WhenSome(func(v int64) { result["fee"] = wallet.FormatAmount(v) })
		return result, nil
	},
}

func socketPath() string {
	return filepath.Join(cfg.WalletDir, walletName+".sock")
}

// daemonRunning reports whether a sync process holds the wallet open.
func daemonRunning() bool {
	c, err := ipc.NewClient(socketPath())
	if err != nil {
		return false
	}
	c.Close()
	return true
}

// runQuery asks a running sync process first and opens the wallet itself
// otherwise.
func runQuery(name string, args []string) (json.RawMessage, error) {
	if c, err := ipc.NewClient(socketPath()); err == nil {
		defer c.Close()
		var out json.RawMessage
		if err := c.SendCommand(name, args, &out); err != nil {
			return nil, err
		}
		return out, nil
	}

	var out json.RawMessage
	err := withWallet(func(w *wallet.Wallet) error {
		result, err := queries[name](w, args)
		if err != nil {
			return err
		}
		out, err = json.Marshal(result)
		return err
	})
	return out, err
}

// serveQueries answers queries against w until the server is closed.
func serveQueries(w *wallet.Wallet) (*ipc.Server, error) {
	return ipc.NewServer(socketPath(), func(cmd ipc.Command) (interface{}, error) {
		q, ok := queries[cmd.Command]
		if !ok {
			return nil, fmt.Errorf("unknown command %q", cmd.Command)
		}
		return q(w, cmd.Args)
	})
}
