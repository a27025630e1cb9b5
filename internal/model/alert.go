package model

import "time"

// Alert is a single rule firing, handed to the emitter exactly once per
// qualifying condition transition.
type Alert struct {
	RuleID    string
	RuleName  string
	Symbol    string
	Type      RuleType
	Price     float64
	Message   string
	Timestamp time.Time
}

// AlertRecord is a persisted alert as read back from history storage.
type AlertRecord struct {
	ID          string    `json:"id"`
	RuleID      string    `json:"rule_id"`
	RuleName    string    `json:"rule_name"`
	Symbol      string    `json:"symbol"`
	Type        RuleType  `json:"type"`
	Price       float64   `json:"current_price"`
	Message     string    `json:"message"`
	TriggeredAt time.Time `json:"triggered_at"`
}
