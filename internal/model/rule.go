package model

import "time"

// RuleType identifies the evaluation semantics of an alert rule.
type RuleType string

const (
	RuleThresholdAbove RuleType = "threshold_above"
	RuleThresholdBelow RuleType = "threshold_below"
	RuleVolatility     RuleType = "volatility"
	RuleFibonacci      RuleType = "fibonacci"
	RuleRange          RuleType = "range"
)

// RuleStatus is the lifecycle state of a rule.
type RuleStatus string

const (
	StatusActive RuleStatus = "active"
	StatusPaused RuleStatus = "paused"
)

// RangeMode selects how a range rule fires.
type RangeMode string

const (
	RangeTouch    RangeMode = "touch"
	RangeBreakout RangeMode = "breakout"
)

// Rule is a user-defined alert rule. Parameter fields are only meaningful
// for the matching Type; unused ones stay zero. Status and LastTriggeredAt
// are the only fields the engine mutates (through the store).
type Rule struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Symbol string     `json:"symbol"`
	Type   RuleType   `json:"type"`
	Status RuleStatus `json:"status"`

	Threshold         float64   `json:"threshold,omitempty"`
	VolatilityWindow  int       `json:"volatility_window,omitempty"`
	VolatilityPercent float64   `json:"volatility_percent,omitempty"`
	StartPrice        float64   `json:"start_price,omitempty"`
	EndPrice          float64   `json:"end_price,omitempty"`
	UpperPrice        float64   `json:"upper_price,omitempty"`
	LowerPrice        float64   `json:"lower_price,omitempty"`
	RangeMode         RangeMode `json:"range_mode,omitempty"`
	ConfirmPercent    float64   `json:"confirm_percent,omitempty"`

	CooldownMinutes int  `json:"cooldown_minutes"`
	IsOneTime       bool `json:"is_one_time"`
	WithVolume      bool `json:"with_volume"`

	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
