package models

import (
	"strings"
	"time"
)

// Symbol is a registered ticker. Administered outside this service; the sync
// engine only reads it.
type Symbol struct {
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name,omitempty"`
	Exchange  string    `json:"exchange,omitempty"`
	Active    bool      `json:"active"`
	FirstDate time.Time `json:"first_date,omitzero"`
	LastDate  time.Time `json:"last_date,omitzero"`
}

// RenameRecord maps an old identity to a new one at an effective date.
// new_symbol is globally unique in storage, which caps resolution at one hop.
type RenameRecord struct {
	OldSymbol     string    `json:"old_symbol"`
	NewSymbol     string    `json:"new_symbol"`
	EffectiveDate time.Time `json:"effective_date"`
}

// NormalizeSymbol canonicalizes a raw ticker string: uppercase, and a dot
// before a single trailing letter (a share class, e.g. "BRK.B") becomes a
// hyphen ("BRK-B"). Exchange suffixes like "BHP.AX" keep their dot. Patterns
// it does not recognize pass through unchanged apart from case and trimming.
func NormalizeSymbol(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if i := strings.LastIndexByte(s, '.'); i > 0 && i == len(s)-2 {
		c := s[i+1]
		if c >= 'A' && c <= 'Z' {
			s = s[:i] + "-" + s[i+1:]
		}
	}
	return s
}
