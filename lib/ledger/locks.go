package ledger

// The ledger is guarded by three mutexes that must be taken in a fixed order:
// primary, then graph, then token. Guards make the order structural. A
// graphGuard can only be obtained from a primaryGuard and a tokenGuard only
// from a graphGuard, and helpers that touch guarded state take the guard
// they need as an argument.
//
//	primary: verified, unverified, history, upToDate
//	graph:   transactions, txi, txo, txFees, prunedTxo, spent, localHistory
//	token:   tokenHistory

type primaryGuard struct {
	l *Ledger
}

type graphGuard struct {
	l *Ledger
	p *primaryGuard
}

type tokenGuard struct {
	l *Ledger
	g *graphGuard
}

func (l *Ledger) lockPrimary() *primaryGuard {
	l.primary.Lock()
	return &primaryGuard{l: l}
}

func (p *primaryGuard) unlock() {
	p.l.primary.Unlock()
}

func (p *primaryGuard) lockGraph() *graphGuard {
	p.l.graph.Lock()
	return &graphGuard{l: p.l, p: p}
}

func (g *graphGuard) unlock() {
	g.l.graph.Unlock()
}

func (g *graphGuard) lockToken() *tokenGuard {
	g.l.token.Lock()
	return &tokenGuard{l: g.l, g: g}
}

func (t *tokenGuard) unlock() {
	t.l.token.Unlock()
}

// lockAll takes primary and graph together, the common case for anything
// that reads heights and the transaction graph at once. Callers release with
// the returned function.
func (l *Ledger) lockAll() (*graphGuard, func()) {
	p := l.lockPrimary()
	g := p.lockGraph()
	return g, func() {
		g.unlock()
		p.unlock()
	}
}
