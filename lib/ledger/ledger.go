// Package ledger keeps the wallet's view of the transaction graph: which
// outputs belong to the wallet, which are spent and by whom, how deeply each
// transaction is confirmed, and the balances and history derived from that.
package ledger

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/Maphikza/btc-wallet-ledger/internal/logger"
	"github.com/Maphikza/btc-wallet-ledger/lib/chainparams"
	"github.com/btcsuite/btcd/wire"
	"github.com/rs/zerolog"
)

// Ownership tells the ledger which addresses belong to the wallet.
// Implementations must not call back into the ledger.
type Ownership interface {
	IsMine(addr string) bool
	Addresses() []string
}

// HeaderSource returns the timestamp of the best-chain header at height.
type HeaderSource interface {
	HeaderTimestamp(height int32) (int64, bool)
}

// Observer is notified about verification changes. Notifications are
// delivered after the ledger locks have been released.
type Observer interface {
	TxVerified(txid string, mined TxMined)
	TxDemoted(txid string)
}

// Store is the persistent key-value store the ledger saves into.
type Store interface {
	Get(key string, out interface{}) (bool, error)
	Put(key string, value interface{}) error
	Write() error
}

type nopObserver struct{}

func (nopObserver) TxVerified(string, TxMined) {}
func (nopObserver) TxDemoted(string)           {}

// Ledger is safe for concurrent use.
type Ledger struct {
	params *chainparams.Params
	owner  Ownership
	store  Store
	log    zerolog.Logger

	primary sync.Mutex
	graph   sync.Mutex
	token   sync.Mutex

	// primary
	verified   map[string]VerifiedInfo
	unverified map[string]int32
	history    map[string][]HistoryItem
	upToDate   bool

	// graph
	transactions map[string]*wire.MsgTx
	txi          map[string]map[string][]TxInput
	txo          map[string]map[string][]TxOutput
	txFees       map[string]int64
	prunedTxo    map[string]string
	spent        map[string]string
	localHistory map[string]map[string]struct{}

	// token
	tokenHistory map[string]json.RawMessage

	localHeight atomic.Int32

	observerMu sync.RWMutex
	observer   Observer
}

// New returns an empty ledger. Use Load to restore one from a store.
func New(params *chainparams.Params, owner Ownership, store Store) *Ledger {
	l := &Ledger{
		params:   params,
		owner:    owner,
		store:    store,
		log:      logger.Ledger,
		observer: nopObserver{},
	}
	l.reset()
	return l
}

func (l *Ledger) reset() {
	l.verified = make(map[string]VerifiedInfo)
	l.unverified = make(map[string]int32)
	l.history = make(map[string][]HistoryItem)
	l.transactions = make(map[string]*wire.MsgTx)
	l.txi = make(map[string]map[string][]TxInput)
	l.txo = make(map[string]map[string][]TxOutput)
	l.txFees = make(map[string]int64)
	l.prunedTxo = make(map[string]string)
	l.spent = make(map[string]string)
	l.localHistory = make(map[string]map[string]struct{})
	l.tokenHistory = make(map[string]json.RawMessage)
}

// SetObserver installs the verification observer.
func (l *Ledger) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	l.observerMu.Lock()
	l.observer = o
	l.observerMu.Unlock()
}

func (l *Ledger) notify() Observer {
	l.observerMu.RLock()
	defer l.observerMu.RUnlock()
	return l.observer
}

// Params returns the network parameters the ledger was built with.
func (l *Ledger) Params() *chainparams.Params {
	return l.params
}

// LocalHeight returns the last known chain height.
func (l *Ledger) LocalHeight() int32 {
	return l.localHeight.Load()
}

// SetLocalHeight records the chain height reported by the network.
func (l *Ledger) SetLocalHeight(h int32) {
	l.localHeight.Store(h)
}

// SetUpToDate flips the synchronized flag. Becoming up to date persists the
// ledger.
func (l *Ledger) SetUpToDate(upToDate bool) error {
	p := l.lockPrimary()
	l.upToDate = upToDate
	p.unlock()
	if upToDate {
		return l.Save(true)
	}
	return nil
}

// IsUpToDate reports whether the last synchronization round completed.
func (l *Ledger) IsUpToDate() bool {
	p := l.lockPrimary()
	defer p.unlock()
	return l.upToDate
}

func (l *Ledger) isMine(addr string) bool {
	return addr != "" && l.owner.IsMine(addr)
}
