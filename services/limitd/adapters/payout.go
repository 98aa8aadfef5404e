package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// AuditPayoutSink records native currency leaving ledger custody: refunds on
// cancellation and fee withdrawals. Settlement of the transfer itself happens
// out of band by the treasury operator; the sink is the audit trail those
// transfers reconcile against.
type AuditPayoutSink struct {
	mu     sync.Mutex
	logger *slog.Logger
	total  *big.Int
	count  uint64
}

func NewAuditPayoutSink(logger *slog.Logger) *AuditPayoutSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditPayoutSink{logger: logger, total: big.NewInt(0)}
}

// Pay records one outbound payout.
func (s *AuditPayoutSink) Pay(_ context.Context, to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("adapters: payout recipient required")
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("adapters: payout amount must be positive")
	}
	s.mu.Lock()
	s.total = new(big.Int).Add(s.total, amount)
	s.count++
	seq := s.count
	s.mu.Unlock()
	s.logger.Info("payout recorded", "seq", seq, "to", to.Hex(), "amount", amount.String())
	return nil
}

// Total reports the cumulative amount paid out since startup.
func (s *AuditPayoutSink) Total() *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return new(big.Int).Set(s.total)
}
