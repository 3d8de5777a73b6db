package state

import (
	"errors"
	"math/big"
	"testing"
)

func TestMintAndBalance(t *testing.T) {
	mgr := newTestManager()
	addr := testAddr(0x01)

	bal, err := mgr.BalanceOf(addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Sign() != 0 {
		t.Fatalf("fresh account balance: %s", bal)
	}
	if err := mgr.Mint(addr, big.NewInt(500)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := mgr.Mint(addr, big.NewInt(250)); err != nil {
		t.Fatalf("second mint: %v", err)
	}
	bal, err = mgr.BalanceOf(addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Cmp(big.NewInt(750)) != 0 {
		t.Fatalf("expected 750 after mints, got %s", bal)
	}

	if err := mgr.Mint(addr, big.NewInt(0)); err == nil {
		t.Fatalf("zero mint must be rejected")
	}
	if err := mgr.Mint(addr, nil); err == nil {
		t.Fatalf("nil mint must be rejected")
	}
}

func TestApproveAndAllowance(t *testing.T) {
	mgr := newTestManager()
	owner := testAddr(0x01)
	vault := EscrowVault()

	allowance, err := mgr.Allowance(owner, vault)
	if err != nil {
		t.Fatalf("allowance: %v", err)
	}
	if allowance.Sign() != 0 {
		t.Fatalf("fresh allowance: %s", allowance)
	}
	if err := mgr.Approve(owner, vault, big.NewInt(300)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	// Approve replaces, it does not accumulate.
	if err := mgr.Approve(owner, vault, big.NewInt(100)); err != nil {
		t.Fatalf("re-approve: %v", err)
	}
	allowance, err = mgr.Allowance(owner, vault)
	if err != nil {
		t.Fatalf("allowance: %v", err)
	}
	if allowance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected 100, got %s", allowance)
	}
	if err := mgr.Approve(owner, vault, big.NewInt(-1)); err == nil {
		t.Fatalf("negative approve must be rejected")
	}
}

func TestLedgerEscrowPullAndPayout(t *testing.T) {
	mgr := newTestManager()
	ledger := NewLedger(mgr)
	buyer := testAddr(0x02)
	seller := testAddr(0x01)
	vault := EscrowVault()

	if err := mgr.Mint(buyer, big.NewInt(1_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := mgr.Approve(buyer, vault, big.NewInt(250)); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if err := ledger.TransferFrom(buyer, big.NewInt(250)); err != nil {
		t.Fatalf("escrow pull: %v", err)
	}
	buyerBal, _ := mgr.BalanceOf(buyer)
	if buyerBal.Cmp(big.NewInt(750)) != 0 {
		t.Fatalf("buyer balance after pull: %s", buyerBal)
	}
	vaultBal, _ := mgr.BalanceOf(vault)
	if vaultBal.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("vault balance after pull: %s", vaultBal)
	}
	remaining, _ := mgr.Allowance(buyer, vault)
	if remaining.Sign() != 0 {
		t.Fatalf("allowance not consumed: %s", remaining)
	}

	if err := ledger.Transfer(seller, big.NewInt(250)); err != nil {
		t.Fatalf("payout: %v", err)
	}
	sellerBal, _ := mgr.BalanceOf(seller)
	if sellerBal.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("seller balance after payout: %s", sellerBal)
	}
	vaultBal, _ = mgr.BalanceOf(vault)
	if vaultBal.Sign() != 0 {
		t.Fatalf("vault not drained: %s", vaultBal)
	}
}

func TestLedgerRejectsOverdraw(t *testing.T) {
	mgr := newTestManager()
	ledger := NewLedger(mgr)
	buyer := testAddr(0x02)
	vault := EscrowVault()

	if err := mgr.Mint(buyer, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.TransferFrom(buyer, big.NewInt(50)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("no allowance: expected ErrInsufficientAllowance, got %v", err)
	}

	if err := mgr.Approve(buyer, vault, big.NewInt(500)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := ledger.TransferFrom(buyer, big.NewInt(200)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("overdraw: expected ErrInsufficientBalance, got %v", err)
	}
	// A failed pull must not burn the allowance.
	remaining, _ := mgr.Allowance(buyer, vault)
	if remaining.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("allowance changed on failed pull: %s", remaining)
	}

	if err := ledger.Transfer(buyer, big.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("empty vault payout: expected ErrInsufficientBalance, got %v", err)
	}
}

func TestEscrowVaultIsStable(t *testing.T) {
	if EscrowVault() != EscrowVault() {
		t.Fatalf("vault address not deterministic")
	}
	if EscrowVault() == ([20]byte{}) {
		t.Fatalf("vault address is zero")
	}
}
