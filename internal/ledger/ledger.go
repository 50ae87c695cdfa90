package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/gdprop/waterbill/internal/billing"
	"github.com/gdprop/waterbill/internal/metrics"
	"github.com/gdprop/waterbill/internal/storage"
	"github.com/google/uuid"
)

// ErrInvalidBill marks a bill that cannot be committed: no tenant, or a
// non-finite charge amount. Nothing is mutated for such a bill.
var ErrInvalidBill = errors.New("invalid bill")

// ErrPartialCommit is returned by CommitMany when at least one bill failed.
// Successful commits are NOT rolled back; the batch is best-effort and the
// overall status reports failure so the operator sees the itemized list.
var ErrPartialCommit = errors.New("one or more bill commits failed")

// tenantStripes serializes read-modify-write balance updates per tenant.
// Two commits, or a commit and a payment, against the same tenant must not
// race; unrelated tenants proceed concurrently.
const tenantStripes = 64

// Ledger applies accepted bills and payments to persistent tenant balances.
// Computation and commit are deliberately separate phases: the operator
// reviews computed bills before any balance changes.
type Ledger struct {
	store storage.Storage
	locks [tenantStripes]sync.Mutex
}

func New(st storage.Storage) *Ledger {
	return &Ledger{store: st}
}

func (l *Ledger) lock(tenantID uint) *sync.Mutex {
	return &l.locks[tenantID%tenantStripes]
}

// CommitOne applies one bill's new charges to its tenant's running balance
// and records the bill. Rejected without mutation when the bill has no
// tenant or a non-finite charge.
func (l *Ledger) CommitOne(ctx context.Context, bill billing.ComputedBill) error {
	if bill.TenantID == 0 {
		return fmt.Errorf("%w: missing tenant id for unit %s", ErrInvalidBill, bill.UnitNumber)
	}
	if math.IsNaN(bill.NewCharges) || math.IsInf(bill.NewCharges, 0) {
		return fmt.Errorf("%w: non-finite charges for unit %s", ErrInvalidBill, bill.UnitNumber)
	}

	mu := l.lock(bill.TenantID)
	mu.Lock()
	defer mu.Unlock()

	if err := l.store.AddToBalance(ctx, bill.TenantID, bill.NewCharges); err != nil {
		metrics.BillsCommittedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("apply charge for tenant %d: %w", bill.TenantID, err)
	}
	if err := l.store.CreateBill(ctx, storage.Bill{
		TenantID:    bill.TenantID,
		PeriodStart: bill.PeriodStart,
		PeriodEnd:   bill.PeriodEnd,
		CCFUsage:    bill.CCFUsage,
		TotalAmount: bill.TotalAmount,
		CreatedDate: time.Now().Format("2006-01-02"),
	}); err != nil {
		// The balance update already landed; record-keeping failure is
		// logged but does not undo the charge.
		log.Printf("ledger: bill record for tenant %d not saved: %v", bill.TenantID, err)
	}
	metrics.BillsCommittedTotal.WithLabelValues("ok").Inc()
	return nil
}

// CommitResult itemizes one bill's outcome within a batch commit.
type CommitResult struct {
	UnitNumber string `json:"unit_number"`
	TenantID   uint   `json:"tenant_id"`
	Error      string `json:"error,omitempty"`
}

// CommitMany applies CommitOne to each bill, continuing past failures.
// When any bill fails the returned error is ErrPartialCommit and the
// results itemize which bills were applied; applied commits stay applied.
func (l *Ledger) CommitMany(ctx context.Context, bills []billing.ComputedBill) ([]CommitResult, error) {
	results := make([]CommitResult, 0, len(bills))
	failed := false
	for _, b := range bills {
		res := CommitResult{UnitNumber: b.UnitNumber, TenantID: b.TenantID}
		if err := l.CommitOne(ctx, b); err != nil {
			res.Error = err.Error()
			failed = true
		}
		results = append(results, res)
	}
	if failed {
		return results, ErrPartialCommit
	}
	return results, nil
}

// RecordPayment appends a payment record and decrements the tenant's
// balance.
func (l *Ledger) RecordPayment(ctx context.Context, tenantID uint, amount float64, date string) (*storage.Payment, error) {
	if tenantID == 0 {
		return nil, fmt.Errorf("%w: missing tenant id", ErrInvalidBill)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, fmt.Errorf("%w: non-finite payment amount", ErrInvalidBill)
	}

	mu := l.lock(tenantID)
	mu.Lock()
	defer mu.Unlock()

	p := storage.Payment{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Amount:    amount,
		Date:      date,
		CreatedAt: time.Now(),
	}
	if err := l.store.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}
	if err := l.store.AddToBalance(ctx, tenantID, -amount); err != nil {
		return nil, fmt.Errorf("apply payment for tenant %d: %w", tenantID, err)
	}
	return &p, nil
}
