package state

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"sessionmarket/core/types"
)

var (
	// ErrInsufficientBalance is returned when a transfer exceeds the payer's
	// balance.
	ErrInsufficientBalance = errors.New("state: insufficient balance")
	// ErrInsufficientAllowance is returned when an escrow pull exceeds the
	// buyer's pre-authorization.
	ErrInsufficientAllowance = errors.New("state: insufficient allowance")
)

// EscrowVault returns the address holding escrow in flight. It is derived
// from a module tag rather than a key pair, so no one can sign for it.
func EscrowVault() [20]byte {
	hash := ethcrypto.Keccak256([]byte("sessionmarket/escrow-vault"))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

func accountKey(addr [20]byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr[:])
	return buf
}

func allowanceKey(owner, spender [20]byte) []byte {
	buf := make([]byte, len(allowancePrefix)+len(owner)+len(spender))
	copy(buf, allowancePrefix)
	copy(buf[len(allowancePrefix):], owner[:])
	copy(buf[len(allowancePrefix)+len(owner):], spender[:])
	return buf
}

// GetAccount loads the payment-token account for an address. Unknown
// addresses resolve to a zero-balance account.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	data := m.get(accountKey(addr))
	if len(data) == 0 {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	acc := new(types.Account)
	if err := rlp.DecodeBytes(data, acc); err != nil {
		return nil, err
	}
	return types.CloneAccount(acc), nil
}

// PutAccount persists the payment-token account for an address.
func (m *Manager) PutAccount(addr [20]byte, acc *types.Account) error {
	return m.put(accountKey(addr), types.CloneAccount(acc))
}

// BalanceOf returns the payment-token balance of an address.
func (m *Manager) BalanceOf(addr [20]byte) (*big.Int, error) {
	acc, err := m.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return acc.Balance, nil
}

// Mint credits freshly issued payment tokens to an address. Used only at
// bootstrap to seed dev allocations.
func (m *Manager) Mint(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: mint amount must be positive")
	}
	acc, err := m.GetAccount(addr)
	if err != nil {
		return err
	}
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	return m.PutAccount(addr, acc)
}

// Approve records a spending pre-authorization from owner to spender,
// replacing any previous value.
func (m *Manager) Approve(owner, spender [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: approve amount must be non-negative")
	}
	return m.put(allowanceKey(owner, spender), new(big.Int).Set(amount))
}

// Allowance returns the remaining pre-authorization from owner to spender.
func (m *Manager) Allowance(owner, spender [20]byte) (*big.Int, error) {
	data := m.get(allowanceKey(owner, spender))
	if len(data) == 0 {
		return big.NewInt(0), nil
	}
	value := new(big.Int)
	if err := rlp.DecodeBytes(data, value); err != nil {
		return nil, err
	}
	return value, nil
}

func (m *Manager) tokenTransfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: negative transfer amount")
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromAcc, err := m.GetAccount(from)
	if err != nil {
		return err
	}
	if fromAcc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toAcc, err := m.GetAccount(to)
	if err != nil {
		return err
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := m.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return m.PutAccount(to, toAcc)
}

// Ledger adapts the state-backed token accounts to the engine's payment
// ledger surface. Escrow pulls consume the buyer's pre-authorization to the
// vault address; payouts draw from the vault.
type Ledger struct {
	mgr *Manager
}

// NewLedger binds a payment ledger adapter to the manager.
func NewLedger(mgr *Manager) *Ledger {
	return &Ledger{mgr: mgr}
}

// TransferFrom pulls pre-authorized funds from the buyer into escrow custody.
func (l *Ledger) TransferFrom(from [20]byte, amount *big.Int) error {
	if l == nil || l.mgr == nil {
		return fmt.Errorf("state: ledger not configured")
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: transfer amount must be positive")
	}
	vault := EscrowVault()
	allowance, err := l.mgr.Allowance(from, vault)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := l.mgr.tokenTransfer(from, vault, amount); err != nil {
		return err
	}
	remaining := new(big.Int).Sub(allowance, amount)
	return l.mgr.Approve(from, vault, remaining)
}

// Transfer pays funds out of escrow custody.
func (l *Ledger) Transfer(to [20]byte, amount *big.Int) error {
	if l == nil || l.mgr == nil {
		return fmt.Errorf("state: ledger not configured")
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: transfer amount must be positive")
	}
	return l.mgr.tokenTransfer(EscrowVault(), to, amount)
}
