package render

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"time"

	"github.com/gdprop/waterbill/internal/billing"
)

// Currency formats a raw amount to the two-decimal display form. This is
// the only place bill amounts are rounded; the engine's output is raw
// float64 all the way here.
func Currency(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

// Fields maps a computed bill onto the bill template's named text fields.
type Fields map[string]string

// Fill produces the template field values for one bill.
func Fill(bill billing.ComputedBill, now time.Time) Fields {
	return Fields{
		"NAME":        bill.TenantName,
		"ADDRESS":     bill.Address,
		"PERIOD":      fmt.Sprintf("%s - %s", bill.PeriodStart, bill.PeriodEnd),
		"DATE":        now.Format("1/2/2006"),
		"PREVIOUS":    Currency(bill.PreviousBalance),
		"NEW_CHARGES": Currency(bill.NewCharges),
		"TOTAL":       Currency(bill.TotalAmount),
		"DAYS":        fmt.Sprintf("%d", bill.BillingDays),
		"CCF":         fmt.Sprintf("%.2f", bill.CCFUsage),
		"WATER_RATE":  Currency(bill.WaterRate),
		"SEWER_RATE":  Currency(bill.SewerRate),
		"WATER_USAGE": Currency(bill.WaterUsage),
		"WATER_BASE":  Currency(bill.WaterBase),
		"STORM":       Currency(bill.Stormwater),
		"SEWER_USAGE": Currency(bill.SewerUsage),
		"SEWER_BASE":  Currency(bill.SewerBase),
		"RIVER":       Currency(bill.RiverFund),
	}
}

var unsafeNameRe = regexp.MustCompile(`[\s/]+`)

// Filename builds the per-bill document name, whitespace and slashes
// collapsed to underscores.
func Filename(bill billing.ComputedBill) string {
	name := unsafeNameRe.ReplaceAllString(bill.TenantName, "_")
	address := unsafeNameRe.ReplaceAllString(bill.Address, "_")
	period := unsafeNameRe.ReplaceAllString(
		fmt.Sprintf("%s-%s", bill.PeriodStart, bill.PeriodEnd), "_")
	return fmt.Sprintf("Water_Bill_%s_%s_%s.pdf", name, address, period)
}

// PDF renders one bill as a single-page PDF document.
func PDF(bill billing.ComputedBill, now time.Time) []byte {
	f := Fill(bill, now)
	lines := []string{
		"WATER BILL",
		"",
		"Name: " + f["NAME"],
		"Address: " + f["ADDRESS"],
		"Billing Period: " + f["PERIOD"],
		"Bill Date: " + f["DATE"],
		"Billing Days: " + f["DAYS"],
		"Usage (CCF): " + f["CCF"],
		"",
		fmt.Sprintf("Water Usage (%s / CCF): %s", f["WATER_RATE"], f["WATER_USAGE"]),
		fmt.Sprintf("Sewer Usage (%s / CCF): %s", f["SEWER_RATE"], f["SEWER_USAGE"]),
		"Water Base: " + f["WATER_BASE"],
		"Stormwater: " + f["STORM"],
		"Sewer Base: " + f["SEWER_BASE"],
		"Clean River Fund: " + f["RIVER"],
		"",
		"Previous Balance: " + f["PREVIOUS"],
		"New Charges: " + f["NEW_CHARGES"],
		"TOTAL DUE: " + f["TOTAL"],
	}
	return buildPDF(lines)
}

// ZipAll packs one PDF per bill into a single archive.
func ZipAll(bills []billing.ComputedBill, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, b := range bills {
		w, err := zw.Create(Filename(b))
		if err != nil {
			return nil, fmt.Errorf("zip entry for %s: %w", b.UnitNumber, err)
		}
		if _, err := w.Write(PDF(b, now)); err != nil {
			return nil, fmt.Errorf("zip write for %s: %w", b.UnitNumber, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
