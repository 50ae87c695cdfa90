package storage

import (
	"context"
	"testing"
)

func TestSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	for i := 0; i < 2; i++ {
		if err := Seed(ctx, st); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	units, err := st.ListUnits(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 14 {
		t.Errorf("units = %d, want 14", len(units))
	}
	rates, err := st.ListRates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rates) != 6 {
		t.Errorf("rates = %d, want 6", len(rates))
	}
}

func TestSeedDoesNotOverwriteRates(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()
	if err := Seed(ctx, st); err != nil {
		t.Fatal(err)
	}

	rates, _ := st.ListRates(ctx)
	if err := st.UpdateRate(ctx, rates[0].ID, 9.99); err != nil {
		t.Fatal(err)
	}
	if err := Seed(ctx, st); err != nil {
		t.Fatal(err)
	}

	rates, _ = st.ListRates(ctx)
	if rates[0].Rate != 9.99 {
		t.Errorf("operator edit lost on reseed: rate = %v, want 9.99", rates[0].Rate)
	}
}

func TestListUnitsOrdering(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()
	if err := Seed(ctx, st); err != nil {
		t.Fatal(err)
	}

	units, err := st.ListUnits(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(units); i++ {
		prev, cur := units[i-1], units[i]
		if prev.Property > cur.Property ||
			(prev.Property == cur.Property && prev.UnitNumber > cur.UnitNumber) {
			t.Fatalf("units out of order at %d: %s/%s before %s/%s",
				i, prev.Property, prev.UnitNumber, cur.Property, cur.UnitNumber)
		}
	}
}

func TestAssignTenantReplaces(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()
	if err := st.UpsertUnit(ctx, Unit{UnitNumber: "484", Property: "Champion"}); err != nil {
		t.Fatal(err)
	}
	unit, _ := st.GetUnitByNumber(ctx, "484")

	first, err := st.AssignTenant(ctx, unit.ID, "Alice Brown")
	if err != nil {
		t.Fatal(err)
	}
	second, err := st.AssignTenant(ctx, unit.ID, "Bob Green")
	if err != nil {
		t.Fatal(err)
	}

	if old, _ := st.GetTenant(ctx, first.ID); old != nil {
		t.Error("replaced tenant still present")
	}
	units, _ := st.ListUnits(ctx)
	if units[0].TenantName == nil || *units[0].TenantName != "Bob Green" {
		t.Errorf("unit tenant = %v, want Bob Green", units[0].TenantName)
	}
	if second.CurrentBalance != 0 {
		t.Errorf("new tenant balance = %v, want 0", second.CurrentBalance)
	}
}

func TestAssignTenantEmptyNameVacates(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()
	if err := st.UpsertUnit(ctx, Unit{UnitNumber: "484", Property: "Champion"}); err != nil {
		t.Fatal(err)
	}
	unit, _ := st.GetUnitByNumber(ctx, "484")

	if _, err := st.AssignTenant(ctx, unit.ID, "Alice Brown"); err != nil {
		t.Fatal(err)
	}
	vacated, err := st.AssignTenant(ctx, unit.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if vacated != nil {
		t.Errorf("vacating returned a tenant: %+v", vacated)
	}
	units, _ := st.ListUnits(ctx)
	if units[0].TenantID != nil {
		t.Error("unit still has a tenant after vacating")
	}
}

func TestUpsertUsageOverwrites(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()
	if err := st.UpsertUnit(ctx, Unit{UnitNumber: "484", Property: "Champion"}); err != nil {
		t.Fatal(err)
	}
	unit, _ := st.GetUnitByNumber(ctx, "484")

	if err := st.UpsertUsage(ctx, unit.ID, "2025-06-20", 100); err != nil {
		t.Fatal(err)
	}
	if err := st.UpsertUsage(ctx, unit.ID, "2025-06-20", 120); err != nil {
		t.Fatal(err)
	}

	if st.CountUsage() != 1 {
		t.Fatalf("usage count = %d, want 1", st.CountUsage())
	}
	rows, _ := st.QueryUsage(ctx, "2025-06-20", "2025-06-20")
	if len(rows) != 1 || rows[0].Gallons != 120 {
		t.Errorf("rows = %+v, want one row with 120 gallons", rows)
	}
}

func TestPurgeUsageStrictlyBefore(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()
	if err := st.UpsertUnit(ctx, Unit{UnitNumber: "484", Property: "Champion"}); err != nil {
		t.Fatal(err)
	}
	unit, _ := st.GetUnitByNumber(ctx, "484")

	for _, d := range []string{"2025-04-20", "2025-04-21", "2025-04-22"} {
		if err := st.UpsertUsage(ctx, unit.ID, d, 10); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := st.PurgeUsage(ctx, "2025-04-21")
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if st.CountUsage() != 2 {
		t.Errorf("remaining = %d, want 2 (cutoff date itself survives)", st.CountUsage())
	}
}
