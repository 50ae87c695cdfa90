package ledger

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/gdprop/waterbill/internal/billing"
	"github.com/gdprop/waterbill/internal/storage"
)

func setup(t *testing.T) (*Ledger, *storage.MemoryStorage, uint) {
	t.Helper()
	ctx := context.Background()
	st := storage.NewMemory()
	if err := st.UpsertUnit(ctx, storage.Unit{UnitNumber: "484", Property: "Champion", Address: "484 S Champion Avenue"}); err != nil {
		t.Fatal(err)
	}
	unit, err := st.GetUnitByNumber(ctx, "484")
	if err != nil || unit == nil {
		t.Fatalf("unit: %v", err)
	}
	tenant, err := st.AssignTenant(ctx, unit.ID, "John Smith")
	if err != nil {
		t.Fatal(err)
	}
	if err := st.SetBalance(ctx, tenant.ID, 25.00); err != nil {
		t.Fatal(err)
	}
	return New(st), st, tenant.ID
}

func bill(tenantID uint, charges float64) billing.ComputedBill {
	return billing.ComputedBill{
		TenantID:    tenantID,
		TenantName:  "John Smith",
		UnitNumber:  "484",
		PeriodStart: "05/26/2025",
		PeriodEnd:   "06/24/2025",
		CCFUsage:    6.0,
		NewCharges:  charges,
		TotalAmount: 25.00 + charges,
	}
}

func balance(t *testing.T, st *storage.MemoryStorage, tenantID uint) float64 {
	t.Helper()
	tenant, err := st.GetTenant(context.Background(), tenantID)
	if err != nil || tenant == nil {
		t.Fatalf("tenant %d: %v", tenantID, err)
	}
	return tenant.CurrentBalance
}

func TestCommitOneAppliesCharges(t *testing.T) {
	l, st, tenantID := setup(t)

	if err := l.CommitOne(context.Background(), bill(tenantID, 80.50)); err != nil {
		t.Fatalf("CommitOne: %v", err)
	}
	if got := balance(t, st, tenantID); math.Abs(got-105.50) > 1e-9 {
		t.Errorf("balance = %v, want 105.50", got)
	}
}

func TestCommitOneRejectsInvalidBills(t *testing.T) {
	l, st, tenantID := setup(t)
	ctx := context.Background()

	cases := []struct {
		name string
		bill billing.ComputedBill
	}{
		{"no tenant", bill(0, 80.50)},
		{"nan charges", bill(tenantID, math.NaN())},
		{"inf charges", bill(tenantID, math.Inf(1))},
	}
	for _, c := range cases {
		err := l.CommitOne(ctx, c.bill)
		if !errors.Is(err, ErrInvalidBill) {
			t.Errorf("%s: err = %v, want ErrInvalidBill", c.name, err)
		}
	}
	// Nothing mutated.
	if got := balance(t, st, tenantID); got != 25.00 {
		t.Errorf("balance after rejected commits = %v, want 25.00", got)
	}
}

func TestCommitManyBestEffort(t *testing.T) {
	l, st, tenantID := setup(t)

	bills := []billing.ComputedBill{
		bill(tenantID, 10.00),
		bill(0, 20.00), // no tenant, must fail
		bill(tenantID, 30.00),
	}
	results, err := l.CommitMany(context.Background(), bills)
	if !errors.Is(err, ErrPartialCommit) {
		t.Fatalf("err = %v, want ErrPartialCommit", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if results[0].Error != "" || results[2].Error != "" {
		t.Errorf("good bills reported errors: %+v", results)
	}
	if results[1].Error == "" {
		t.Error("bad bill reported no error")
	}
	// The two good commits stay applied.
	if got := balance(t, st, tenantID); math.Abs(got-65.00) > 1e-9 {
		t.Errorf("balance = %v, want 65.00", got)
	}
}

func TestCommitManyAllGood(t *testing.T) {
	l, _, tenantID := setup(t)

	results, err := l.CommitMany(context.Background(), []billing.ComputedBill{
		bill(tenantID, 10.00),
		bill(tenantID, 20.00),
	})
	if err != nil {
		t.Fatalf("CommitMany: %v", err)
	}
	for _, r := range results {
		if r.Error != "" {
			t.Errorf("unexpected error: %+v", r)
		}
	}
}

func TestRecordPayment(t *testing.T) {
	l, st, tenantID := setup(t)
	ctx := context.Background()

	p, err := l.RecordPayment(ctx, tenantID, 15.00, "2025-06-24")
	if err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	if p.ID == "" {
		t.Error("payment has no id")
	}
	if got := balance(t, st, tenantID); math.Abs(got-10.00) > 1e-9 {
		t.Errorf("balance = %v, want 10.00", got)
	}

	payments, err := st.ListPayments(ctx, tenantID)
	if err != nil {
		t.Fatal(err)
	}
	if len(payments) != 1 || payments[0].Amount != 15.00 {
		t.Errorf("payments = %+v, want one 15.00 row", payments)
	}
}

func TestRecordPaymentValidation(t *testing.T) {
	l, _, tenantID := setup(t)
	ctx := context.Background()

	if _, err := l.RecordPayment(ctx, 0, 15.00, "2025-06-24"); !errors.Is(err, ErrInvalidBill) {
		t.Errorf("zero tenant: err = %v, want ErrInvalidBill", err)
	}
	if _, err := l.RecordPayment(ctx, tenantID, math.NaN(), "2025-06-24"); !errors.Is(err, ErrInvalidBill) {
		t.Errorf("nan amount: err = %v, want ErrInvalidBill", err)
	}
}
