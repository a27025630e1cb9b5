package alert

import (
	"log"

	"PriceSentinel/internal/model"
)

// RuleStore is the slice of rule persistence the emitter needs.
type RuleStore interface {
	UpdateLastTriggeredNow(id string) error
	UpdateStatus(id string, status model.RuleStatus) error
}

// HistoryStore persists fired alerts.
type HistoryStore interface {
	AppendAlert(a *model.Alert) error
}

// Notifier delivers the outward push notification. The bool result is
// false when the notifier skipped the send (rate limit, not configured).
type Notifier interface {
	Send(title, content string) (bool, error)
}

// Broadcaster fans a payload out to live subscribers, best-effort.
type Broadcaster interface {
	Publish(v any)
}

// Emitter sequences what happens when a rule fires: history append,
// synchronous last-triggered update, push notification, live broadcast,
// and one-time pausing. Each step's failure is logged and isolated; none
// blocks the others or the evaluation loop.
type Emitter struct {
	rules       RuleStore
	history     HistoryStore
	notifier    Notifier
	broadcaster Broadcaster
}

// NewEmitter creates an Emitter. All collaborators are required.
func NewEmitter(rules RuleStore, history HistoryStore, n Notifier, b Broadcaster) *Emitter {
	return &Emitter{rules: rules, history: history, notifier: n, broadcaster: b}
}

// Emit handles one alert. The last-triggered write happens synchronously
// before anything slow: it is the authoritative cooldown gate, so a burst
// of ticks cannot double-fire a rule.
func (e *Emitter) Emit(rule *model.Rule, a *model.Alert) {
	if err := e.history.AppendAlert(a); err != nil {
		log.Printf("[ERROR] emitter: append history for rule %s: %v", a.RuleID, err)
	}

	if err := e.rules.UpdateLastTriggeredNow(a.RuleID); err != nil {
		log.Printf("[ERROR] emitter: update last_triggered_at for rule %s: %v", a.RuleID, err)
	}

	// Outbound push must never block ingestion.
	go func() {
		sent, err := e.notifier.Send(a.RuleName, a.Message)
		if err != nil {
			log.Printf("[WARN] emitter: notification for rule %q failed: %v", a.RuleName, err)
		} else if !sent {
			log.Printf("[INFO] emitter: notification for rule %q skipped", a.RuleName)
		}
	}()

	e.broadcaster.Publish(map[string]any{
		"type":      "alert",
		"ruleName":  a.RuleName,
		"message":   a.Message,
		"price":     a.Price,
		"timestamp": a.Timestamp.UnixMilli(),
	})

	if rule.IsOneTime {
		if err := e.rules.UpdateStatus(a.RuleID, model.StatusPaused); err != nil {
			log.Printf("[ERROR] emitter: pause one-time rule %s: %v", a.RuleID, err)
		} else {
			log.Printf("[INFO] emitter: one-time rule %q paused", a.RuleName)
		}
	}
}
