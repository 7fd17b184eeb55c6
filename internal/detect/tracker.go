package detect

// State is where a single query attempt stands in the completion state machine.
type State int

const (
	StatePolling State = iota
	StateStableWithResults
	StateStableEmpty
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateStableWithResults:
		return "stable_with_results"
	case StateStableEmpty:
		return "stable_empty"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Tracker debounces per-tick extraction counts. A result set is considered
// stable once the same count has been seen on consecutive ticks.
type Tracker struct {
	stableTicks int
	emptyTicks  int

	seen      bool
	lastCount int
	run       int
	confirmed bool
	latest    []string
	best      []string
}

// NewTracker creates a tracker. Non-positive thresholds fall back to 2 and 3.
func NewTracker(stableTicks, emptyTicks int) *Tracker {
	if stableTicks <= 0 {
		stableTicks = 2
	}
	if emptyTicks <= 0 {
		emptyTicks = 3
	}
	return &Tracker{stableTicks: stableTicks, emptyTicks: emptyTicks}
}

// Observe feeds one settled tick into the tracker and returns the new state.
func (t *Tracker) Observe(sig Signals) State {
	count := len(sig.Addresses)
	t.latest = sig.Addresses

	if count == 0 && sig.ExplicitZero {
		t.confirmed = true
		return StateStableEmpty
	}

	if t.seen && count == t.lastCount {
		t.run++
	} else {
		t.seen = true
		t.lastCount = count
		t.run = 1
	}

	if count > 0 {
		t.best = sig.Addresses
		if t.run >= t.stableTicks {
			return StateStableWithResults
		}
		return StatePolling
	}
	if t.run >= t.emptyTicks {
		return StateStableEmpty
	}
	return StatePolling
}

// Latest is the address set from the most recent tick.
func (t *Tracker) Latest() []string { return t.latest }

// Best is the most recent non-empty address set, if any was seen.
func (t *Tracker) Best() []string { return t.best }

// Confirmed reports whether the page explicitly said there are no addresses.
func (t *Tracker) Confirmed() bool { return t.confirmed }
