package models

import "time"

// ProviderBar is a raw daily bar as returned by the external provider,
// before validation. The merger turns these into PriceRows via NewPriceRow
// and drops the ones that fail.
type ProviderBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}
