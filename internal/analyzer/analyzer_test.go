package analyzer

import (
	"errors"
	"math"
	"testing"
	"time"

	"PriceSentinel/internal/feed"
	"PriceSentinel/internal/model"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func apply(st *feed.Store, price, qty float64, ts time.Time) {
	st.Apply(model.Tick{Symbol: "BTCUSDT", Price: price, Quantity: qty, Timestamp: ts})
}

func TestVolatilityInsufficientData(t *testing.T) {
	st := feed.NewStore(time.Hour)
	an := New(st)

	if _, err := an.Volatility("BTCUSDT", 5); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("empty store: err = %v, want ErrInsufficientData", err)
	}

	apply(st, 100, 1, base)
	if _, err := an.Volatility("BTCUSDT", 5); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("single candle: err = %v, want ErrInsufficientData", err)
	}
}

func TestVolatilityMath(t *testing.T) {
	st := feed.NewStore(time.Hour)
	an := New(st)

	// Candle 1: open 100, runs up to 112. Candle 2: closes at 110.
	apply(st, 100, 1, base)
	apply(st, 112, 1, base.Add(30*time.Second))
	apply(st, 98, 1, base.Add(40*time.Second))
	apply(st, 110, 1, base.Add(time.Minute))

	va, err := an.Volatility("BTCUSDT", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(va.ChangePercent-10) > 1e-9 {
		t.Errorf("change percent = %v, want 10", va.ChangePercent)
	}
	if va.High != 112 || va.Low != 98 {
		t.Errorf("high/low = %v/%v, want 112/98", va.High, va.Low)
	}
	if va.CandleCount != 2 {
		t.Errorf("candle count = %d, want 2", va.CandleCount)
	}
	if math.Abs(va.Speed-5) > 1e-9 {
		t.Errorf("speed = %v, want 5", va.Speed)
	}
}

func TestVolatilityNegativeChange(t *testing.T) {
	st := feed.NewStore(time.Hour)
	an := New(st)

	apply(st, 200, 1, base)
	apply(st, 190, 1, base.Add(time.Minute))

	va, err := an.Volatility("BTCUSDT", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(va.ChangePercent-(-5)) > 1e-9 {
		t.Errorf("change percent = %v, want -5", va.ChangePercent)
	}
}

func TestVolumeInfoRequiresTwoSamples(t *testing.T) {
	st := feed.NewStore(time.Hour)
	an := New(st)
	an.now = func() time.Time { return base.Add(time.Minute) }

	// One closed minute only.
	apply(st, 100, 1, base)
	apply(st, 100, 1, base.Add(time.Minute))

	if _, err := an.VolumeInfo("BTCUSDT", 30); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("err = %v, want ErrInsufficientData", err)
	}
}

func TestVolumeClassification(t *testing.T) {
	tests := []struct {
		name      string
		activeQty float64
		want      model.VolumeLevel
		wantRatio float64
	}{
		{"high", 2.5, model.VolumeHigh, 2.5},
		{"low", 0.4, model.VolumeLow, 0.4},
		{"normal", 1.0, model.VolumeNormal, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := feed.NewStore(time.Hour)
			an := New(st)
			an.now = func() time.Time { return base.Add(2 * time.Minute) }

			// Two closed minutes, 100 quote volume each.
			apply(st, 100, 1, base)
			apply(st, 100, 1, base.Add(time.Minute))
			apply(st, 100, tt.activeQty, base.Add(2*time.Minute))

			vi, err := an.VolumeInfo("BTCUSDT", 30)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if vi.Level != tt.want {
				t.Errorf("level = %s, want %s", vi.Level, tt.want)
			}
			if math.Abs(vi.Ratio-tt.wantRatio) > 1e-9 {
				t.Errorf("ratio = %v, want %v", vi.Ratio, tt.wantRatio)
			}
		})
	}
}

func TestVolumeInfoWindowFilter(t *testing.T) {
	st := feed.NewStore(2 * time.Hour)
	an := New(st)
	an.now = func() time.Time { return base.Add(62 * time.Minute) }

	// Two old minutes fall outside a 5-minute window; only one recent
	// closed minute remains, which is not enough.
	apply(st, 100, 1, base)
	apply(st, 100, 1, base.Add(time.Minute))
	apply(st, 100, 1, base.Add(61*time.Minute))
	apply(st, 100, 1, base.Add(62*time.Minute))

	if _, err := an.VolumeInfo("BTCUSDT", 5); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("err = %v, want ErrInsufficientData", err)
	}
}
