package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/gdprop/waterbill/internal/billing"
)

// Sample is one dated per-unit gallons reading extracted from an export.
type Sample struct {
	UnitNumber string
	Date       string // YYYY-MM-DD
	Gallons    float64
}

// ParseResult is everything one export file yields: the billing period from
// the Total marker row (may be nil), per-unit gallons totals from that same
// row, and every dated daily sample.
type ParseResult struct {
	Property     string
	Period       *billing.Period
	PeriodTotals map[string]float64 // unit number -> gallons over the period
	Daily        []Sample
	Warnings     []string
}

const galColumnSuffix = " (gal)"

var dateCellRe = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)

// ParseCSV reads one property's usage export. Header row carries a date
// column ("Date (America/New_York)" or equivalent) plus one "<code> (gal)"
// column per unit. Rules:
//
//   - the row whose date cell contains "Total" is the period marker; its
//     unit cells are period totals
//   - "Property Total" rows and columns are ignored
//   - dated rows (M/D/YYYY) become daily samples
//   - codes outside the property's allowed set are dropped with a warning
//   - unparseable numeric cells are dropped for that cell only
func ParseCSV(r io.Reader, prop PropertyConfig) (*ParseResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	dateCol := -1
	type unitCol struct {
		index int
		unit  string
	}
	var unitCols []unitCol
	res := &ParseResult{
		Property:     prop.Name,
		PeriodTotals: make(map[string]float64),
	}

	for i, name := range header {
		name = strings.TrimSpace(name)
		if dateCol == -1 && strings.Contains(name, "Date") {
			dateCol = i
			continue
		}
		if !strings.HasSuffix(name, galColumnSuffix) {
			continue
		}
		code := strings.TrimSuffix(name, galColumnSuffix)
		if strings.Contains(code, "Property Total") {
			continue
		}
		unit, ok := prop.MapCode(code)
		if !ok {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("column %q does not belong to property %s, dropped", code, prop.Name))
			continue
		}
		unitCols = append(unitCols, unitCol{index: i, unit: unit})
	}
	if dateCol == -1 {
		return nil, fmt.Errorf("no date column in header %v", header)
	}

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if dateCol >= len(record) {
			continue
		}
		dateCell := strings.TrimSpace(record[dateCol])

		if strings.Contains(dateCell, "Property Total") {
			continue
		}
		if strings.Contains(dateCell, "Total") {
			// Period marker row. A malformed marker leaves the period
			// undetermined for this file; the totals are still usable.
			if p, ok := billing.ParsePeriodMarker(dateCell); ok {
				res.Period = p
			} else {
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("unrecognized Total marker %q", dateCell))
			}
			for _, uc := range unitCols {
				if uc.index >= len(record) {
					continue
				}
				if gallons, ok := parseGallons(record[uc.index]); ok {
					res.PeriodTotals[uc.unit] = gallons
				}
			}
			continue
		}

		if !dateCellRe.MatchString(dateCell) {
			continue
		}
		date, err := normalizeDate(dateCell)
		if err != nil {
			continue
		}
		for _, uc := range unitCols {
			if uc.index >= len(record) {
				continue
			}
			gallons, ok := parseGallons(record[uc.index])
			if !ok {
				continue
			}
			res.Daily = append(res.Daily, Sample{
				UnitNumber: uc.unit,
				Date:       date,
				Gallons:    gallons,
			})
		}
	}

	return res, nil
}

func parseGallons(cell string) (float64, bool) {
	cell = strings.TrimSpace(strings.ReplaceAll(cell, ",", ""))
	if cell == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// normalizeDate turns M/D/YYYY into YYYY-MM-DD, the storage key format.
func normalizeDate(cell string) (string, error) {
	parts := strings.Split(cell, "/")
	if len(parts) != 3 {
		return "", fmt.Errorf("bad date %q", cell)
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil {
		return "", err
	}
	day, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", err
	}
	year, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", err
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return "", fmt.Errorf("bad date %q", cell)
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), nil
}
