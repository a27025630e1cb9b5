package model

import "time"

// Tick is a single trade observation from the exchange stream.
// Quantity is the traded base-asset amount; 0 when the source carries none
// (REST poll results have no quantity).
type Tick struct {
	Symbol    string
	Price     float64
	Quantity  float64
	Timestamp time.Time
}

// PricePoint is one raw price observation kept in the rolling price cache.
type PricePoint struct {
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// Candle is a one-minute OHLCV bar. QuoteVolume is the traded notional
// (price * quantity summed over the minute).
type Candle struct {
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	QuoteVolume float64   `json:"quote_volume"`
	MinuteStart time.Time `json:"minute_start"`
}

// VolumePoint is one completed minute's traded notional.
type VolumePoint struct {
	QuoteVolume float64
	MinuteStart time.Time
}
