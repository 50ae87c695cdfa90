package ingest

import (
	"strings"
	"testing"
)

const championCSV = `Date (America/New_York),484 (gal),486 (gal),Property Total (gal)
6/20/2025,120,80,200
6/21/2025,"1,500",0,1500
6/22/2025,,95,95
6/23/2025,bad,40,40
Total 05/26/2025 - 06/24/2025,4488,2244,6732
Property Total,9999,9999,9999
`

func TestParseCSVDailySamples(t *testing.T) {
	prop, ok := GetProperty("Champion")
	if !ok {
		t.Fatal("Champion property not configured")
	}
	res, err := ParseCSV(strings.NewReader(championCSV), prop)
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}

	// 6/22 has an empty 484 cell and 6/23 an unparseable one; both drop
	// that cell only, keeping the 486 reading for the same day.
	want := map[string]float64{
		"484|2025-06-20": 120,
		"486|2025-06-20": 80,
		"484|2025-06-21": 1500,
		"486|2025-06-21": 0,
		"486|2025-06-22": 95,
		"486|2025-06-23": 40,
	}
	if len(res.Daily) != len(want) {
		t.Fatalf("got %d daily samples, want %d: %+v", len(res.Daily), len(want), res.Daily)
	}
	for _, s := range res.Daily {
		key := s.UnitNumber + "|" + s.Date
		g, ok := want[key]
		if !ok {
			t.Errorf("unexpected sample %s", key)
			continue
		}
		if s.Gallons != g {
			t.Errorf("sample %s = %v gallons, want %v", key, s.Gallons, g)
		}
	}
}

func TestParseCSVTotalMarker(t *testing.T) {
	prop, _ := GetProperty("Champion")
	res, err := ParseCSV(strings.NewReader(championCSV), prop)
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}

	if res.Period == nil {
		t.Fatal("period marker not parsed")
	}
	if got := res.Period.StartString(); got != "05/26/2025" {
		t.Errorf("period start = %s, want 05/26/2025", got)
	}
	if got := res.Period.EndString(); got != "06/24/2025" {
		t.Errorf("period end = %s, want 06/24/2025", got)
	}
	if res.PeriodTotals["484"] != 4488 {
		t.Errorf("484 total = %v, want 4488", res.PeriodTotals["484"])
	}
	if res.PeriodTotals["486"] != 2244 {
		t.Errorf("486 total = %v, want 2244", res.PeriodTotals["486"])
	}
	if _, ok := res.PeriodTotals["Property Total"]; ok {
		t.Error("Property Total column should be ignored")
	}
}

func TestParseCSVForeignColumnDropped(t *testing.T) {
	csv := "Date (America/New_York),484 (gal),999 (gal)\n6/20/2025,10,20\n"
	prop, _ := GetProperty("Champion")
	res, err := ParseCSV(strings.NewReader(csv), prop)
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected a warning for the foreign column")
	}
	for _, s := range res.Daily {
		if s.UnitNumber == "999" {
			t.Error("foreign column made it into samples")
		}
	}
}

func TestParseCSVNoDateColumn(t *testing.T) {
	prop, _ := GetProperty("Champion")
	if _, err := ParseCSV(strings.NewReader("foo,bar\n1,2\n"), prop); err == nil {
		t.Fatal("expected error for missing date column")
	}
}

func TestMatchProperty(t *testing.T) {
	cases := []struct {
		filename string
		want     string
		ok       bool
	}{
		{"champion_water_usage.csv", "Champion", true},
		{"532_barnett_export.csv", "532 Barnett", true},
		{"483-489_Barnett_June.csv", "Barnett", true},
		{"barnett.csv", "Barnett", true},
		{"CushingUnits.csv", "Cushing", true},
		{"elm_street.csv", "", false},
	}
	for _, c := range cases {
		p, ok := MatchProperty(c.filename)
		if ok != c.ok {
			t.Errorf("MatchProperty(%q) ok = %v, want %v", c.filename, ok, c.ok)
			continue
		}
		if ok && p.Name != c.want {
			t.Errorf("MatchProperty(%q) = %s, want %s", c.filename, p.Name, c.want)
		}
	}
}

func TestMapCodeRewrite(t *testing.T) {
	p, _ := GetProperty("532 Barnett")
	unit, ok := p.MapCode("A")
	if !ok || unit != "532A" {
		t.Errorf("MapCode(A) = %q, %v; want 532A, true", unit, ok)
	}
	if _, ok := p.MapCode("E"); ok {
		t.Error("code outside allowed set should not map")
	}

	c, _ := GetProperty("Cushing")
	unit, ok = c.MapCode("B")
	if !ok || unit != "CushingB" {
		t.Errorf("MapCode(B) = %q, %v; want CushingB, true", unit, ok)
	}
}
