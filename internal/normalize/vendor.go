package normalize

import (
	"strings"
	"unicode"
)

// CanonicalVendor folds free-text vendor spellings to one canonical id:
// case, whitespace and punctuation are normalized, then known aliases are
// applied. Distinct spellings of the same vendor must converge to one id or
// vendor-spend reports over/under-count.
//
// "Acme Inc." and "ACME  INC" both become "acme-inc". Returns "" for empty
// input (vendor is nullable on a ledger entry).
func (a *Aliases) CanonicalVendor(name string) string {
	key := vendorKey(name)
	if key == "" {
		return ""
	}
	if id, ok := a.vendors[key]; ok {
		return id
	}
	return strings.ReplaceAll(key, " ", "-")
}

// vendorKey lowercases, strips punctuation and collapses runs of whitespace.
func vendorKey(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.' || r == ',' || r == '&' || r == '/':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
