package ledger

import "errors"

var (
	// ErrIncompleteTransaction is returned when a transaction is not fully
	// signed.
	ErrIncompleteTransaction = errors.New("incomplete transaction")

	// ErrUnrelatedTransaction is returned when no input or output of a
	// transaction touches the wallet.
	ErrUnrelatedTransaction = errors.New("transaction is unrelated to this wallet")

	// ErrNotWalletOwned is returned for local transactions that spend no
	// wallet coin.
	ErrNotWalletOwned = errors.New("local transaction does not spend wallet coins")

	// ErrConflictingHistory means two transactions already in the ledger
	// spend the same outpoint. It indicates a broken caller.
	ErrConflictingHistory = errors.New("found conflicting transactions already in wallet history")

	// ErrDesyncDetected is returned internally when the reconstructed history
	// does not add up to the current balance.
	ErrDesyncDetected = errors.New("history not synchronized")
)
