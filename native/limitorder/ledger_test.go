package limitorder

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"swaplimit/storage"
)

func testOrder(owner common.Address) *Order {
	return &Order{
		Owner:        owner,
		TokenOut:     common.HexToAddress("0x0000000000000000000000000000000000120f46"),
		AmountIn:     big.NewInt(15_000_000),
		MinAmountOut: big.NewInt(1),
		TriggerPrice: big.NewInt(1_000),
		CreatedAt:    1_700_000_000,
		ExpiresAt:    1_700_003_600,
		Active:       true,
	}
}

func TestLedgerAppendAllocatesMonotonicIDs(t *testing.T) {
	ledger := NewLedger(storage.NewMemDB())
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")

	next, err := ledger.NextOrderID()
	if err != nil {
		t.Fatalf("next order id: %v", err)
	}
	if next != 1 {
		t.Fatalf("expected fresh ledger to start at 1, got %d", next)
	}

	for want := uint64(1); want <= 3; want++ {
		id, err := ledger.Append(testOrder(owner))
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if id != want {
			t.Fatalf("expected id %d, got %d", want, id)
		}
	}
	next, err = ledger.NextOrderID()
	if err != nil {
		t.Fatalf("next order id: %v", err)
	}
	if next != 4 {
		t.Fatalf("expected sequence at 4, got %d", next)
	}
}

func TestLedgerRoundTrip(t *testing.T) {
	ledger := NewLedger(storage.NewMemDB())
	owner := common.HexToAddress("0x2222222222222222222222222222222222222222")
	original := testOrder(owner)
	id, err := ledger.Append(original)
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	loaded, err := ledger.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Owner != owner || loaded.TokenOut != original.TokenOut {
		t.Fatalf("addresses did not survive the round trip")
	}
	if loaded.AmountIn.Cmp(original.AmountIn) != 0 || loaded.MinAmountOut.Cmp(original.MinAmountOut) != 0 || loaded.TriggerPrice.Cmp(original.TriggerPrice) != 0 {
		t.Fatalf("amounts did not survive the round trip")
	}
	if !loaded.Active || loaded.Executed {
		t.Fatalf("expected active, non-executed order, got %+v", loaded)
	}
	if loaded.CreatedAt != original.CreatedAt || loaded.ExpiresAt != original.ExpiresAt {
		t.Fatalf("timestamps did not survive the round trip")
	}
}

func TestLedgerGetUnknownID(t *testing.T) {
	ledger := NewLedger(storage.NewMemDB())
	if _, err := ledger.Get(42); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestLedgerUpdateRequiresExistingOrder(t *testing.T) {
	ledger := NewLedger(storage.NewMemDB())
	order := testOrder(common.HexToAddress("0x3333333333333333333333333333333333333333"))
	order.ID = 7
	if err := ledger.Update(order); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestLedgerOwnerIndex(t *testing.T) {
	ledger := NewLedger(storage.NewMemDB())
	alice := common.HexToAddress("0x4444444444444444444444444444444444444444")
	bob := common.HexToAddress("0x5555555555555555555555555555555555555555")

	for i := 0; i < 2; i++ {
		if _, err := ledger.Append(testOrder(alice)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if _, err := ledger.Append(testOrder(bob)); err != nil {
		t.Fatalf("append: %v", err)
	}

	aliceOrders, err := ledger.OrdersByOwner(alice)
	if err != nil {
		t.Fatalf("orders by owner: %v", err)
	}
	if len(aliceOrders) != 2 || aliceOrders[0] != 1 || aliceOrders[1] != 2 {
		t.Fatalf("unexpected owner index %v", aliceOrders)
	}
	bobOrders, err := ledger.OrdersByOwner(bob)
	if err != nil {
		t.Fatalf("orders by owner: %v", err)
	}
	if len(bobOrders) != 1 || bobOrders[0] != 3 {
		t.Fatalf("unexpected owner index %v", bobOrders)
	}
	empty, err := ledger.OrdersByOwner(common.HexToAddress("0x6666666666666666666666666666666666666666"))
	if err != nil {
		t.Fatalf("orders by owner: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no orders, got %v", empty)
	}
}

func TestLedgerBalances(t *testing.T) {
	ledger := NewLedger(storage.NewMemDB())

	escrowed, err := ledger.EscrowBalance()
	if err != nil {
		t.Fatalf("escrow balance: %v", err)
	}
	if escrowed.Sign() != 0 {
		t.Fatalf("expected zero starting escrow, got %s", escrowed)
	}

	if err := ledger.CreditEscrow(big.NewInt(500)); err != nil {
		t.Fatalf("credit escrow: %v", err)
	}
	if err := ledger.DebitEscrow(big.NewInt(200)); err != nil {
		t.Fatalf("debit escrow: %v", err)
	}
	escrowed, _ = ledger.EscrowBalance()
	if escrowed.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("expected escrow 300, got %s", escrowed)
	}

	if err := ledger.DebitEscrow(big.NewInt(400)); err == nil {
		t.Fatalf("expected underflow error")
	}

	if err := ledger.CreditFees(big.NewInt(10)); err != nil {
		t.Fatalf("credit fees: %v", err)
	}
	fees, _ := ledger.FeeBalance()
	if fees.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("expected fees 10, got %s", fees)
	}
}
