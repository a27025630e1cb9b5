package rules

import "sync"

// zone locates a price relative to a range rule's raw boundaries.
type zone int

const (
	zoneUnknown zone = iota
	zoneInside
	zoneAbove
	zoneBelow
)

func classifyZone(price, upper, lower float64) zone {
	switch {
	case price > upper:
		return zoneAbove
	case price < lower:
		return zoneBelow
	default:
		return zoneInside
	}
}

// stateArena owns the transient per-rule evaluation state: fired
// retracement levels for fibonacci rules and the last observed zone for
// range rules. Entries are created lazily on first evaluation and live
// for the process lifetime unless remove is called (rule deleted).
type stateArena struct {
	mu    sync.Mutex
	fired map[string]map[float64]struct{}
	zones map[string]zone
}

func newStateArena() *stateArena {
	return &stateArena{
		fired: make(map[string]map[float64]struct{}),
		zones: make(map[string]zone),
	}
}

func (a *stateArena) levelFired(ruleID string, level float64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.fired[ruleID][level]
	return ok
}

func (a *stateArena) markLevel(ruleID string, level float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	levels := a.fired[ruleID]
	if levels == nil {
		levels = make(map[float64]struct{})
		a.fired[ruleID] = levels
	}
	levels[level] = struct{}{}
}

func (a *stateArena) lastZone(ruleID string) zone {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.zones[ruleID]
}

func (a *stateArena) setZone(ruleID string, z zone) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.zones[ruleID] = z
}

func (a *stateArena) remove(ruleID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.fired, ruleID)
	delete(a.zones, ruleID)
}
