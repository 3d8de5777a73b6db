package types

import "math/big"

// Account tracks the payment-token balance held by an address. Allowances are
// stored under separate state keys rather than on the account record so the
// encoding stays RLP-friendly.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}

// CloneAccount returns a deep copy of the account with a non-nil balance.
func CloneAccount(acc *Account) *Account {
	if acc == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	clone := *acc
	if acc.Balance != nil {
		clone.Balance = new(big.Int).Set(acc.Balance)
	} else {
		clone.Balance = big.NewInt(0)
	}
	return &clone
}
