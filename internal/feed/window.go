package feed

import (
	"strings"
	"sync"
	"time"

	"PriceSentinel/internal/model"
)

const (
	maxClosedCandles = 60
	maxVolumePoints  = 30
)

// Store keeps per-symbol rolling market state built incrementally from
// ticks: the active (still-open) one-minute candle, a bounded history of
// closed candles and per-minute volume sums, and an age-pruned raw price
// cache. All mutation happens through Apply, which the feed client calls
// from its single ingest goroutine; reads may come from any goroutine.
type Store struct {
	mu     sync.RWMutex
	maxAge time.Duration
	series map[string]*series
	now    func() time.Time
}

type series struct {
	current float64
	active  *model.Candle
	closed  []model.Candle
	volumes []model.VolumePoint
	prices  []model.PricePoint
}

// NewStore creates a Store that prunes raw price points older than maxAge.
func NewStore(maxAge time.Duration) *Store {
	return &Store{
		maxAge: maxAge,
		series: make(map[string]*series),
		now:    time.Now,
	}
}

// Apply folds one tick into the symbol's state. When the tick opens a new
// minute, the previous active candle and its volume sum are finalized into
// their bounded histories first.
func (st *Store) Apply(t model.Tick) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s := st.series[key(t.Symbol)]
	if s == nil {
		s = &series{}
		st.series[key(t.Symbol)] = s
	}

	s.current = t.Price
	minute := t.Timestamp.Truncate(time.Minute)
	quote := t.Price * t.Quantity

	switch {
	case s.active == nil:
		s.active = newCandle(t.Price, quote, minute)
	case !minute.Equal(s.active.MinuteStart):
		s.closed = append(s.closed, *s.active)
		if len(s.closed) > maxClosedCandles {
			s.closed = s.closed[len(s.closed)-maxClosedCandles:]
		}
		s.volumes = append(s.volumes, model.VolumePoint{
			QuoteVolume: s.active.QuoteVolume,
			MinuteStart: s.active.MinuteStart,
		})
		if len(s.volumes) > maxVolumePoints {
			s.volumes = s.volumes[len(s.volumes)-maxVolumePoints:]
		}
		s.active = newCandle(t.Price, quote, minute)
	default:
		if t.Price > s.active.High {
			s.active.High = t.Price
		}
		if t.Price < s.active.Low {
			s.active.Low = t.Price
		}
		s.active.Close = t.Price
		s.active.QuoteVolume += quote
	}

	s.prices = append(s.prices, model.PricePoint{Price: t.Price, Timestamp: t.Timestamp})
	cutoff := t.Timestamp.Add(-st.maxAge)
	trim := 0
	for trim < len(s.prices) && s.prices[trim].Timestamp.Before(cutoff) {
		trim++
	}
	s.prices = s.prices[trim:]
}

func newCandle(price, quote float64, minute time.Time) *model.Candle {
	return &model.Candle{
		Open:        price,
		High:        price,
		Low:         price,
		Close:       price,
		QuoteVolume: quote,
		MinuteStart: minute,
	}
}

// Klines returns up to count most recent closed candles with the active
// candle appended, so callers always see the freshest (possibly
// incomplete) bar. Returns nil for unknown symbols.
func (st *Store) Klines(symbol string, count int) []model.Candle {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s := st.series[key(symbol)]
	if s == nil || s.active == nil {
		return nil
	}
	closed := s.closed
	if count < len(closed) {
		closed = closed[len(closed)-count:]
	}
	out := make([]model.Candle, 0, len(closed)+1)
	out = append(out, closed...)
	out = append(out, *s.active)
	return out
}

// VolumeHistory returns the completed minutes' volume points, oldest first.
func (st *Store) VolumeHistory(symbol string) []model.VolumePoint {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s := st.series[key(symbol)]
	if s == nil {
		return nil
	}
	out := make([]model.VolumePoint, len(s.volumes))
	copy(out, s.volumes)
	return out
}

// ActiveVolume returns the in-progress minute's quote volume.
func (st *Store) ActiveVolume(symbol string) (float64, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s := st.series[key(symbol)]
	if s == nil || s.active == nil {
		return 0, false
	}
	return s.active.QuoteVolume, true
}

// CurrentPrice returns the latest observed price for the symbol.
func (st *Store) CurrentPrice(symbol string) (float64, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s := st.series[key(symbol)]
	if s == nil || s.current == 0 {
		return 0, false
	}
	return s.current, true
}

// PriceHistory returns the raw price points observed within the last
// windowMinutes, oldest first.
func (st *Store) PriceHistory(symbol string, windowMinutes int) []model.PricePoint {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s := st.series[key(symbol)]
	if s == nil {
		return nil
	}
	cutoff := st.now().Add(-time.Duration(windowMinutes) * time.Minute)
	out := make([]model.PricePoint, 0, len(s.prices))
	for _, p := range s.prices {
		if !p.Timestamp.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

func key(symbol string) string {
	return strings.ToLower(symbol)
}
