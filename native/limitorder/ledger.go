package limitorder

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"swaplimit/storage"
)

var (
	orderKeyPrefix = []byte("limitorder/order/")
	ownerKeyPrefix = []byte("limitorder/owner/")
	sequenceKey    = []byte("limitorder/seq")
	escrowKey      = []byte("limitorder/balance/escrow")
	feesKey        = []byte("limitorder/balance/fees")
)

// Ledger is the authoritative order store. Records are RLP encoded into the
// backing key-value database; ids come from a monotonic sequence that starts
// at 1 and is only advanced by committed creations.
type Ledger struct {
	db storage.Database
}

// NewLedger wraps the supplied database. The database handle is owned by the
// caller.
func NewLedger(db storage.Database) *Ledger {
	return &Ledger{db: db}
}

func orderKey(id uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return append(append([]byte{}, orderKeyPrefix...), buf[:]...)
}

func ownerKey(owner common.Address) []byte {
	return append(append([]byte{}, ownerKeyPrefix...), owner.Bytes()...)
}

// NextOrderID reports the id the next committed creation will receive.
func (l *Ledger) NextOrderID() (uint64, error) {
	raw, err := l.db.Get(sequenceKey)
	if errors.Is(err, storage.ErrNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("limitorder: load sequence: %w", err)
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("limitorder: corrupt sequence record")
	}
	return binary.BigEndian.Uint64(raw), nil
}

// Append persists a new order under the next free id, indexes it for its
// owner, and advances the sequence. The assigned id is written back into the
// order.
func (l *Ledger) Append(order *Order) (uint64, error) {
	if order == nil {
		return 0, fmt.Errorf("limitorder: nil order")
	}
	id, err := l.NextOrderID()
	if err != nil {
		return 0, err
	}
	order.ID = id
	if err := l.put(order); err != nil {
		return 0, err
	}
	ids, err := l.OrdersByOwner(order.Owner)
	if err != nil {
		return 0, err
	}
	ids = append(ids, id)
	encoded, err := rlp.EncodeToBytes(ids)
	if err != nil {
		return 0, fmt.Errorf("limitorder: encode owner index: %w", err)
	}
	if err := l.db.Put(ownerKey(order.Owner), encoded); err != nil {
		return 0, fmt.Errorf("limitorder: store owner index: %w", err)
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id+1)
	if err := l.db.Put(sequenceKey, buf[:]); err != nil {
		return 0, fmt.Errorf("limitorder: advance sequence: %w", err)
	}
	return id, nil
}

// Get loads an order snapshot. ErrOrderNotFound is returned for ids the
// sequence never allocated.
func (l *Ledger) Get(id uint64) (*Order, error) {
	raw, err := l.db.Get(orderKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("limitorder: load order %d: %w", id, err)
	}
	order := new(Order)
	if err := rlp.DecodeBytes(raw, order); err != nil {
		return nil, fmt.Errorf("limitorder: decode order %d: %w", id, err)
	}
	return order, nil
}

// Update rewrites an existing order record in place.
func (l *Ledger) Update(order *Order) error {
	if order == nil || order.ID == 0 {
		return fmt.Errorf("limitorder: update requires an allocated order")
	}
	if _, err := l.Get(order.ID); err != nil {
		return err
	}
	return l.put(order)
}

func (l *Ledger) put(order *Order) error {
	normalizeOrder(order)
	encoded, err := rlp.EncodeToBytes(order)
	if err != nil {
		return fmt.Errorf("limitorder: encode order: %w", err)
	}
	if err := l.db.Put(orderKey(order.ID), encoded); err != nil {
		return fmt.Errorf("limitorder: store order: %w", err)
	}
	return nil
}

// OrdersByOwner lists the ids of every order the owner ever created, oldest
// first. Cancelled and executed orders stay listed; history is never pruned.
func (l *Ledger) OrdersByOwner(owner common.Address) ([]uint64, error) {
	raw, err := l.db.Get(ownerKey(owner))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("limitorder: load owner index: %w", err)
	}
	var ids []uint64
	if err := rlp.DecodeBytes(raw, &ids); err != nil {
		return nil, fmt.Errorf("limitorder: decode owner index: %w", err)
	}
	return ids, nil
}

// EscrowBalance reports the native funds currently escrowed for active orders.
func (l *Ledger) EscrowBalance() (*big.Int, error) {
	return l.balance(escrowKey)
}

// FeeBalance reports the accumulated execution fees.
func (l *Ledger) FeeBalance() (*big.Int, error) {
	return l.balance(feesKey)
}

func (l *Ledger) balance(key []byte) (*big.Int, error) {
	raw, err := l.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("limitorder: load balance: %w", err)
	}
	return new(big.Int).SetBytes(raw), nil
}

func (l *Ledger) adjustBalance(key []byte, delta *big.Int) error {
	current, err := l.balance(key)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(current, delta)
	if next.Sign() < 0 {
		return fmt.Errorf("limitorder: balance underflow")
	}
	if err := l.db.Put(key, next.Bytes()); err != nil {
		return fmt.Errorf("limitorder: store balance: %w", err)
	}
	return nil
}

// CreditEscrow adds a freshly deposited amount to custody.
func (l *Ledger) CreditEscrow(amount *big.Int) error {
	return l.adjustBalance(escrowKey, cloneBigInt(amount))
}

// DebitEscrow releases custody funds on cancellation or execution.
func (l *Ledger) DebitEscrow(amount *big.Int) error {
	return l.adjustBalance(escrowKey, new(big.Int).Neg(cloneBigInt(amount)))
}

// CreditFees accrues the execution fee retained from a settled order.
func (l *Ledger) CreditFees(amount *big.Int) error {
	return l.adjustBalance(feesKey, cloneBigInt(amount))
}

// DebitFees withdraws accrued fees to the treasury.
func (l *Ledger) DebitFees(amount *big.Int) error {
	return l.adjustBalance(feesKey, new(big.Int).Neg(cloneBigInt(amount)))
}

func normalizeOrder(order *Order) {
	if order.AmountIn == nil {
		order.AmountIn = big.NewInt(0)
	}
	if order.MinAmountOut == nil {
		order.MinAmountOut = big.NewInt(0)
	}
	if order.TriggerPrice == nil {
		order.TriggerPrice = big.NewInt(0)
	}
}
