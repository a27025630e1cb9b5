package rules

import (
	"errors"
	"log"
	"math"
	"strings"
	"time"

	"PriceSentinel/internal/analyzer"
	"PriceSentinel/internal/model"
)

// fibLevels are the interior retracement ratios checked by fibonacci rules.
var fibLevels = []float64{0.236, 0.382, 0.5, 0.618, 0.786}

// fibTolerance is the band around a retracement level, as a fraction of
// the rule's price range.
const fibTolerance = 0.005

// touchTolerance is the band around a range boundary, as a fraction of
// that boundary.
const touchTolerance = 0.003

// annotationWindowMinutes is the volume-classification window used for
// range-rule message annotations (volatility rules use their own window).
const annotationWindowMinutes = 5

// Repository provides the active rule set in a stable order.
type Repository interface {
	FindActive() ([]model.Rule, error)
}

// Emitter receives every triggered alert.
type Emitter interface {
	Emit(rule *model.Rule, alert *model.Alert)
}

// Evaluator runs every active rule's state machine against each tick.
// OnTick is driven by the feed's single ingest goroutine, so rules are
// evaluated synchronously in repository order and per-symbol window state
// is never read concurrently with its own update.
type Evaluator struct {
	repo     Repository
	analyzer *analyzer.Analyzer
	emitter  Emitter
	states   *stateArena
	now      func() time.Time
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(repo Repository, an *analyzer.Analyzer, em Emitter) *Evaluator {
	return &Evaluator{
		repo:     repo,
		analyzer: an,
		emitter:  em,
		states:   newStateArena(),
		now:      time.Now,
	}
}

// OnTick evaluates all active rules against one tick. A failure in one
// rule is logged and never blocks the remaining rules.
func (e *Evaluator) OnTick(t model.Tick) {
	active, err := e.repo.FindActive()
	if err != nil {
		log.Printf("[ERROR] evaluator: load active rules: %v", err)
		return
	}

	for i := range active {
		r := &active[i]
		if !strings.EqualFold(r.Symbol, t.Symbol) {
			continue
		}
		if e.inCooldown(r) {
			continue
		}
		msg, triggered, err := e.check(r, t)
		if err != nil {
			log.Printf("[ERROR] evaluator: rule %q (%s): %v", r.Name, r.ID, err)
			continue
		}
		if !triggered {
			continue
		}
		log.Printf("[INFO] evaluator: rule %q triggered at %.2f", r.Name, t.Price)
		e.emitter.Emit(r, &model.Alert{
			RuleID:    r.ID,
			RuleName:  r.Name,
			Symbol:    strings.ToUpper(r.Symbol),
			Type:      r.Type,
			Price:     t.Price,
			Message:   msg,
			Timestamp: t.Timestamp,
		})
	}
}

// Forget drops the transient state of a deleted rule so the arena does
// not leak one entry per ever-created fibonacci/range rule.
func (e *Evaluator) Forget(ruleID string) {
	e.states.remove(ruleID)
}

func (e *Evaluator) inCooldown(r *model.Rule) bool {
	if r.LastTriggeredAt == nil || r.CooldownMinutes <= 0 {
		return false
	}
	return e.now().Sub(*r.LastTriggeredAt) < time.Duration(r.CooldownMinutes)*time.Minute
}

func (e *Evaluator) check(r *model.Rule, t model.Tick) (string, bool, error) {
	switch r.Type {
	case model.RuleThresholdAbove:
		if r.Threshold > 0 && t.Price >= r.Threshold {
			return msgThresholdAbove(r, t.Price), true, nil
		}
	case model.RuleThresholdBelow:
		if r.Threshold > 0 && t.Price <= r.Threshold {
			return msgThresholdBelow(r, t.Price), true, nil
		}
	case model.RuleVolatility:
		return e.checkVolatility(r, t)
	case model.RuleFibonacci:
		return e.checkFibonacci(r, t)
	case model.RuleRange:
		if r.UpperPrice == 0 || r.LowerPrice == 0 {
			return "", false, nil
		}
		if r.RangeMode == model.RangeBreakout {
			return e.checkRangeBreakout(r, t)
		}
		return e.checkRangeTouch(r, t)
	}
	return "", false, nil
}

func (e *Evaluator) checkVolatility(r *model.Rule, t model.Tick) (string, bool, error) {
	if r.VolatilityWindow <= 0 || r.VolatilityPercent <= 0 {
		return "", false, nil
	}
	va, err := e.analyzer.Volatility(r.Symbol, r.VolatilityWindow)
	if errors.Is(err, analyzer.ErrInsufficientData) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if math.Abs(va.ChangePercent) < r.VolatilityPercent {
		return "", false, nil
	}
	msg := msgVolatility(r, va, t.Price)
	if r.WithVolume {
		msg += volumeNote(va.Volume)
	}
	return msg, true, nil
}

func (e *Evaluator) checkFibonacci(r *model.Rule, t model.Tick) (string, bool, error) {
	if r.StartPrice == 0 || r.EndPrice == 0 || r.EndPrice == r.StartPrice {
		return "", false, nil
	}
	priceRange := r.EndPrice - r.StartPrice
	tolerance := fibTolerance * math.Abs(priceRange)
	for _, level := range fibLevels {
		levelPrice := r.EndPrice - priceRange*level
		if math.Abs(t.Price-levelPrice) > tolerance {
			continue
		}
		if e.states.levelFired(r.ID, level) {
			continue
		}
		e.states.markLevel(r.ID, level)
		return msgFibonacci(r, level, levelPrice, t.Price), true, nil
	}
	return "", false, nil
}

func (e *Evaluator) checkRangeTouch(r *model.Rule, t model.Tick) (string, bool, error) {
	last := e.states.lastZone(r.ID)
	e.states.setZone(r.ID, classifyZone(t.Price, r.UpperPrice, r.LowerPrice))

	var msg string
	switch {
	case math.Abs(t.Price-r.UpperPrice) <= r.UpperPrice*touchTolerance && last != zoneAbove:
		msg = msgRangeTouch(r, "上沿", r.UpperPrice, t.Price)
	case math.Abs(t.Price-r.LowerPrice) <= r.LowerPrice*touchTolerance && last != zoneBelow:
		msg = msgRangeTouch(r, "下沿", r.LowerPrice, t.Price)
	default:
		return "", false, nil
	}
	if r.WithVolume {
		msg += e.annotation(r.Symbol)
	}
	return msg, true, nil
}

func (e *Evaluator) checkRangeBreakout(r *model.Rule, t model.Tick) (string, bool, error) {
	upperOffset := r.UpperPrice * (1 + r.ConfirmPercent/100)
	lowerOffset := r.LowerPrice * (1 - r.ConfirmPercent/100)

	current := zoneInside
	switch {
	case t.Price > upperOffset:
		current = zoneAbove
	case t.Price < lowerOffset:
		current = zoneBelow
	}

	last := e.states.lastZone(r.ID)
	e.states.setZone(r.ID, current)
	if current == zoneInside || current == last {
		return "", false, nil
	}

	direction, offset := "上", upperOffset
	if current == zoneBelow {
		direction, offset = "下", lowerOffset
	}
	msg := msgRangeBreakout(r, direction, offset, t.Price)
	if r.WithVolume {
		msg += e.annotation(r.Symbol)
	}
	return msg, true, nil
}

func (e *Evaluator) annotation(symbol string) string {
	vi, err := e.analyzer.VolumeInfo(symbol, annotationWindowMinutes)
	if err != nil {
		return ""
	}
	return volumeNote(vi)
}
