package analyzer

import (
	"errors"
	"math"
	"time"

	"PriceSentinel/internal/feed"
	"PriceSentinel/internal/model"
)

// ErrInsufficientData is returned when a window holds too few samples to
// say anything. Callers must treat it as "no data", never as a zero result.
var ErrInsufficientData = errors.New("insufficient data in window")

// Analyzer derives volatility and volume statistics from the window store.
type Analyzer struct {
	store *feed.Store
	now   func() time.Time
}

// New creates an Analyzer over the given store.
func New(store *feed.Store) *Analyzer {
	return &Analyzer{store: store, now: time.Now}
}

// VolumeInfo compares the in-progress minute's quote volume against the
// average of completed minutes inside the window. Requires at least 2
// completed samples in the window.
func (a *Analyzer) VolumeInfo(symbol string, windowMinutes int) (*model.VolumeInfo, error) {
	current, ok := a.store.ActiveVolume(symbol)
	if !ok {
		return nil, ErrInsufficientData
	}

	cutoff := a.now().Add(-time.Duration(windowMinutes) * time.Minute)
	var sum float64
	var n int
	for _, p := range a.store.VolumeHistory(symbol) {
		if p.MinuteStart.Before(cutoff) {
			continue
		}
		sum += p.QuoteVolume
		n++
	}
	if n < 2 {
		return nil, ErrInsufficientData
	}
	avg := sum / float64(n)
	if avg == 0 {
		return nil, ErrInsufficientData
	}

	ratio := current / avg
	level := model.VolumeNormal
	switch {
	case ratio > 2:
		level = model.VolumeHigh
	case ratio < 0.5:
		level = model.VolumeLow
	}

	return &model.VolumeInfo{
		CurrentVolume: current,
		AverageVolume: avg,
		Ratio:         ratio,
		Level:         level,
	}, nil
}

// Volatility summarizes price movement over the last windowMinutes
// one-minute candles (the active candle included). Requires at least 2
// candles. Volume info is attached when available and omitted otherwise.
func (a *Analyzer) Volatility(symbol string, windowMinutes int) (*model.VolatilityAnalysis, error) {
	klines := a.store.Klines(symbol, windowMinutes)
	if len(klines) < 2 {
		return nil, ErrInsufficientData
	}
	first, last := klines[0], klines[len(klines)-1]
	if first.Open == 0 {
		return nil, ErrInsufficientData
	}

	high := math.Inf(-1)
	low := math.Inf(1)
	for _, k := range klines {
		if k.High > high {
			high = k.High
		}
		if k.Low < low {
			low = k.Low
		}
	}

	changePercent := (last.Close - first.Open) / first.Open * 100
	va := &model.VolatilityAnalysis{
		ChangePercent: changePercent,
		High:          high,
		Low:           low,
		Speed:         math.Abs(changePercent) / float64(len(klines)),
		CandleCount:   len(klines),
	}
	if vi, err := a.VolumeInfo(symbol, windowMinutes); err == nil {
		va.Volume = vi
	}
	return va, nil
}
