package ingest

import (
	"encoding/json"
	"os"
	"strings"
)

// PropertyConfig describes how one property's export files are recognized
// and how their raw column codes map onto unit numbers. This replaces the
// scattered filename/allow-list string literals the original data entry
// workflow grew up with: one table, loaded once.
type PropertyConfig struct {
	// Name is the property identifier used on units ("Champion", ...).
	Name string `json:"name"`
	// FilenameMatch is checked in order against the uppercased filename;
	// the first property with a matching substring claims the file.
	FilenameMatch []string `json:"filenameMatch"`
	// AllowedCodes is the fixed set of raw column codes this property's
	// export may contain. Any other code is dropped with a warning.
	AllowedCodes []string `json:"allowedCodes"`
	// RewritePrefix, when non-empty, is prepended to the raw code to form
	// the unit number ("A" -> "532A").
	RewritePrefix string `json:"rewritePrefix,omitempty"`
}

const propertiesEnv = "WATERBILL_PROPERTIES_JSON"

func defaultProperties() []PropertyConfig {
	return []PropertyConfig{
		{
			Name:          "Champion",
			FilenameMatch: []string{"CHAMPION"},
			AllowedCodes:  []string{"484", "486"},
		},
		{
			Name:          "532 Barnett",
			FilenameMatch: []string{"532_BARNETT"},
			AllowedCodes:  []string{"A", "B", "C", "D"},
			RewritePrefix: "532",
		},
		{
			Name:          "Barnett",
			FilenameMatch: []string{"483-489_BARNETT", "BARNETT"},
			AllowedCodes:  []string{"483", "485", "487", "489"},
		},
		{
			Name:          "Cushing",
			FilenameMatch: []string{"CUSHING"},
			AllowedCodes:  []string{"A", "B", "C", "D"},
			RewritePrefix: "Cushing",
		},
	}
}

// Properties returns the property table, from WATERBILL_PROPERTIES_JSON when
// set and parseable, otherwise the built-in defaults.
func Properties() []PropertyConfig {
	raw := os.Getenv(propertiesEnv)
	if raw == "" {
		return defaultProperties()
	}
	var out []PropertyConfig
	if err := json.Unmarshal([]byte(raw), &out); err != nil || len(out) == 0 {
		return defaultProperties()
	}
	return out
}

// MatchProperty resolves a filename to its property. "532 Barnett" is listed
// before "Barnett" so the more specific substring wins; a bare BARNETT name
// that does not contain 532 still resolves to Barnett.
func MatchProperty(filename string) (PropertyConfig, bool) {
	upper := strings.ToUpper(filename)
	for _, p := range Properties() {
		for _, sub := range p.FilenameMatch {
			if strings.Contains(upper, strings.ToUpper(sub)) {
				return p, true
			}
		}
	}
	return PropertyConfig{}, false
}

// GetProperty looks a property up by name.
func GetProperty(name string) (PropertyConfig, bool) {
	for _, p := range Properties() {
		if p.Name == name {
			return p, true
		}
	}
	return PropertyConfig{}, false
}

// MapCode resolves a raw column code to a unit number. Codes outside the
// allowed set report ok=false and are dropped by callers (with a warning,
// never an error).
func (p PropertyConfig) MapCode(raw string) (string, bool) {
	code := strings.TrimSpace(raw)
	for _, allowed := range p.AllowedCodes {
		if code == allowed {
			return p.RewritePrefix + code, true
		}
	}
	return "", false
}
