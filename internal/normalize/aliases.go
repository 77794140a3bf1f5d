// Package normalize rewrites accepted raw records into canonical ledger
// entries: currency conversion, category alias resolution, vendor
// canonicalization and deterministic entry identity.
package normalize

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"finrep/internal/core"
)

// Aliases holds the configured category and vendor lookup tables. The tables
// are immutable during an ingestion run; reload between runs to pick up
// configuration changes.
type Aliases struct {
	categories map[string]core.Category
	vendors    map[string]string
}

// defaultCategoryAliases maps common source-system category hints onto the
// closed taxonomy. Canonical names map to themselves so sources that already
// emit taxonomy values pass through.
var defaultCategoryAliases = map[string]core.Category{
	"revenue":               core.CategoryRevenue,
	"sales":                 core.CategoryRevenue,
	"income":                core.CategoryRevenue,
	"cogs":                  core.CategoryCOGS,
	"cost of goods sold":    core.CategoryCOGS,
	"rent":                  core.CategoryOpexRent,
	"lease":                 core.CategoryOpexRent,
	"office space":          core.CategoryOpexRent,
	"payroll":               core.CategoryOpexPayroll,
	"salaries":              core.CategoryOpexPayroll,
	"wages":                 core.CategoryOpexPayroll,
	"marketing":             core.CategoryOpexMarketing,
	"advertising":           core.CategoryOpexMarketing,
	"promotion":             core.CategoryOpexMarketing,
	"software":              core.CategoryOpexSoftware,
	"saas":                  core.CategoryOpexSoftware,
	"subscription":          core.CategoryOpexSoftware,
	"license":               core.CategoryOpexSoftware,
	"travel":                core.CategoryOpexTravel,
	"hotel":                 core.CategoryOpexTravel,
	"flight":                core.CategoryOpexTravel,
	"office supplies":       core.CategoryOpexOffice,
	"stationery":            core.CategoryOpexOffice,
	"supplies":              core.CategoryOpexOffice,
	"utilities":             core.CategoryOpexUtilities,
	"electricity":           core.CategoryOpexUtilities,
	"internet":              core.CategoryOpexUtilities,
	"phone":                 core.CategoryOpexUtilities,
	"professional services": core.CategoryOpexProfessional,
	"legal":                 core.CategoryOpexProfessional,
	"accounting":            core.CategoryOpexProfessional,
	"consulting":            core.CategoryOpexProfessional,
	"insurance":             core.CategoryOpexOther,
	"equipment":             core.CategoryOpexOther,
	"training":              core.CategoryOpexOther,
	"tax":                   core.CategoryTax,
	"taxes":                 core.CategoryTax,
	"vat":                   core.CategoryTax,
	"other":                 core.CategoryOther,
	"misc":                  core.CategoryOther,
	"uncategorized":         core.CategoryOther,
}

// NewAliases builds a table from the compiled-in defaults plus optional JSON
// overlay files. Overlay entries win over defaults.
//
// Category file format: {"hint": "Opex:Rent", ...}; values must be taxonomy
// members. Vendor file format: {"spelling": "canonical-id", ...}.
func NewAliases(categoryFile, vendorFile string) (*Aliases, error) {
	a := &Aliases{
		categories: make(map[string]core.Category),
		vendors:    make(map[string]string),
	}
	for hint, cat := range defaultCategoryAliases {
		a.categories[hint] = cat
	}
	for _, cat := range core.Categories() {
		a.categories[categoryKey(string(cat))] = cat
	}

	if categoryFile != "" {
		overlay, err := loadJSONMap(categoryFile)
		if err != nil {
			return nil, fmt.Errorf("category aliases: %w", err)
		}
		for hint, name := range overlay {
			cat := core.Category(name)
			if !cat.Valid() {
				return nil, fmt.Errorf("category aliases: %q maps to unknown category %q", hint, name)
			}
			a.categories[categoryKey(hint)] = cat
		}
	}

	if vendorFile != "" {
		overlay, err := loadJSONMap(vendorFile)
		if err != nil {
			return nil, fmt.Errorf("vendor aliases: %w", err)
		}
		for spelling, id := range overlay {
			a.vendors[vendorKey(spelling)] = id
		}
	}

	return a, nil
}

// MustDefaults returns the compiled-in tables; it cannot fail because no
// files are read.
func MustDefaults() *Aliases {
	a, _ := NewAliases("", "")
	return a
}

// ResolveCategory maps a free-text category hint onto the taxonomy. A miss is
// reported, never silently invented: the caller quarantines the record.
func (a *Aliases) ResolveCategory(hint string) (core.Category, bool) {
	cat, ok := a.categories[categoryKey(hint)]
	return cat, ok
}

func loadJSONMap(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	out := make(map[string]string)
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, nil
}

func categoryKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
