package feed

import (
	"testing"
	"time"

	"PriceSentinel/internal/model"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func tick(price, qty float64, ts time.Time) model.Tick {
	return model.Tick{Symbol: "BTCUSDT", Price: price, Quantity: qty, Timestamp: ts}
}

func TestApplyBuildsActiveCandle(t *testing.T) {
	st := NewStore(time.Hour)
	st.Apply(tick(100, 1, base))
	st.Apply(tick(110, 2, base.Add(10*time.Second)))
	st.Apply(tick(95, 1, base.Add(20*time.Second)))
	st.Apply(tick(105, 1, base.Add(30*time.Second)))

	klines := st.Klines("BTCUSDT", 10)
	if len(klines) != 1 {
		t.Fatalf("expected 1 candle, got %d", len(klines))
	}
	k := klines[0]
	if k.Open != 100 || k.High != 110 || k.Low != 95 || k.Close != 105 {
		t.Errorf("unexpected OHLC: %+v", k)
	}
	wantVol := 100.0 + 220 + 95 + 105
	if k.QuoteVolume != wantVol {
		t.Errorf("quote volume = %v, want %v", k.QuoteVolume, wantVol)
	}

	if price, ok := st.CurrentPrice("btcusdt"); !ok || price != 105 {
		t.Errorf("current price = %v, %v", price, ok)
	}
}

func TestMinuteRollover(t *testing.T) {
	st := NewStore(time.Hour)
	st.Apply(tick(100, 1, base))
	st.Apply(tick(102, 1, base.Add(30*time.Second)))
	st.Apply(tick(105, 1, base.Add(time.Minute)))

	klines := st.Klines("BTCUSDT", 10)
	if len(klines) != 2 {
		t.Fatalf("expected 2 candles after rollover, got %d", len(klines))
	}
	if klines[0].Close != 102 {
		t.Errorf("closed candle close = %v, want 102", klines[0].Close)
	}
	if klines[1].Open != 105 {
		t.Errorf("new candle open = %v, want 105", klines[1].Open)
	}

	vols := st.VolumeHistory("BTCUSDT")
	if len(vols) != 1 {
		t.Fatalf("expected 1 volume point, got %d", len(vols))
	}
	if vols[0].QuoteVolume != 202 {
		t.Errorf("volume point = %v, want 202", vols[0].QuoteVolume)
	}

	if v, ok := st.ActiveVolume("BTCUSDT"); !ok || v != 105 {
		t.Errorf("active volume = %v, %v", v, ok)
	}
}

func TestHistoryBounds(t *testing.T) {
	st := NewStore(24 * time.Hour)
	for i := 0; i < 100; i++ {
		st.Apply(tick(100, 1, base.Add(time.Duration(i)*time.Minute)))
	}

	// 99 candles closed; only the most recent 60 survive.
	klines := st.Klines("BTCUSDT", 1000)
	if len(klines) != maxClosedCandles+1 {
		t.Errorf("klines = %d, want %d", len(klines), maxClosedCandles+1)
	}
	vols := st.VolumeHistory("BTCUSDT")
	if len(vols) != maxVolumePoints {
		t.Errorf("volume points = %d, want %d", len(vols), maxVolumePoints)
	}
}

func TestKlinesCount(t *testing.T) {
	st := NewStore(time.Hour)
	for i := 0; i < 10; i++ {
		st.Apply(tick(float64(100+i), 1, base.Add(time.Duration(i)*time.Minute)))
	}
	klines := st.Klines("BTCUSDT", 3)
	if len(klines) != 4 {
		t.Fatalf("expected 3 closed + 1 active, got %d", len(klines))
	}
	if klines[0].Open != 106 {
		t.Errorf("oldest returned candle open = %v, want 106", klines[0].Open)
	}
}

func TestPricePrune(t *testing.T) {
	st := NewStore(10 * time.Minute)
	st.Apply(tick(100, 1, base))
	st.Apply(tick(101, 1, base.Add(11*time.Minute)))

	st.now = func() time.Time { return base.Add(11 * time.Minute) }
	points := st.PriceHistory("BTCUSDT", 60)
	if len(points) != 1 {
		t.Fatalf("expected old point pruned, got %d points", len(points))
	}
	if points[0].Price != 101 {
		t.Errorf("surviving point = %v, want 101", points[0].Price)
	}
}

func TestPriceHistoryWindow(t *testing.T) {
	st := NewStore(time.Hour)
	st.Apply(tick(100, 1, base))
	st.Apply(tick(101, 1, base.Add(4*time.Minute)))
	st.Apply(tick(102, 1, base.Add(8*time.Minute)))

	st.now = func() time.Time { return base.Add(8 * time.Minute) }
	points := st.PriceHistory("BTCUSDT", 5)
	if len(points) != 2 {
		t.Fatalf("expected 2 points inside window, got %d", len(points))
	}
}

func TestUnknownSymbol(t *testing.T) {
	st := NewStore(time.Hour)
	if _, ok := st.CurrentPrice("ETHUSDT"); ok {
		t.Error("expected no price for unknown symbol")
	}
	if klines := st.Klines("ETHUSDT", 10); klines != nil {
		t.Errorf("expected nil klines, got %v", klines)
	}
}
