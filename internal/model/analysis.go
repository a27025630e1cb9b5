package model

// VolumeLevel classifies the current minute's volume against recent history.
type VolumeLevel string

const (
	VolumeHigh   VolumeLevel = "high"   // ratio > 2
	VolumeLow    VolumeLevel = "low"    // ratio < 0.5
	VolumeNormal VolumeLevel = "normal"
)

// VolumeInfo compares the in-progress minute's traded notional with the
// average of completed minutes inside the requested window.
type VolumeInfo struct {
	CurrentVolume float64     `json:"current_volume"`
	AverageVolume float64     `json:"average_volume"`
	Ratio         float64     `json:"ratio"`
	Level         VolumeLevel `json:"level"`
}

// VolatilityAnalysis summarizes price movement over a candle window.
// Speed is percent per minute. Volume is nil when volume data is
// insufficient; it never gates anything.
type VolatilityAnalysis struct {
	ChangePercent float64     `json:"change_percent"`
	High          float64     `json:"high"`
	Low           float64     `json:"low"`
	Speed         float64     `json:"speed"`
	CandleCount   int         `json:"candle_count"`
	Volume        *VolumeInfo `json:"volume,omitempty"`
}
