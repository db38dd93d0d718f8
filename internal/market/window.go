package market

import "sync"

// DefaultWindowSize is the rolling history kept per symbol.
const DefaultWindowSize = 1000

// Window is a bounded rolling bar history for a single symbol, newest last.
// It is the per-symbol market context passed explicitly into the regime
// detector and feature extraction instead of shared process-wide state.
//
// Appends and reads may come from different goroutines (live feed vs decision
// loop); Bars returns a copied snapshot so readers never observe a mutation
// mid-scan.
type Window struct {
	mu       sync.RWMutex
	symbol   string
	capacity int
	bars     []Bar
}

// NewWindow creates an empty window for symbol with the given capacity.
// A capacity of zero or less falls back to DefaultWindowSize.
func NewWindow(symbol string, capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &Window{
		symbol:   symbol,
		capacity: capacity,
		bars:     make([]Bar, 0, capacity),
	}
}

// Symbol returns the symbol this window tracks.
func (w *Window) Symbol() string {
	return w.symbol
}

// Append adds a bar to the window, evicting the oldest when full.
func (w *Window) Append(bar Bar) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.bars) >= w.capacity {
		w.bars = w.bars[1:]
	}
	w.bars = append(w.bars, bar)
}

// Update replaces the newest bar in place, used while a live kline is still
// forming. Falls back to Append when the window is empty.
func (w *Window) Update(bar Bar) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.bars) == 0 {
		w.bars = append(w.bars, bar)
		return
	}
	if w.bars[len(w.bars)-1].OpenTime == bar.OpenTime {
		w.bars[len(w.bars)-1] = bar
		return
	}
	if len(w.bars) >= w.capacity {
		w.bars = w.bars[1:]
	}
	w.bars = append(w.bars, bar)
}

// Bars returns a snapshot copy of the current history, oldest first.
func (w *Window) Bars() []Bar {
	w.mu.RLock()
	defer w.mu.RUnlock()

	snapshot := make([]Bar, len(w.bars))
	copy(snapshot, w.bars)
	return snapshot
}

// Len returns the number of bars currently held.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.bars)
}

// Last returns the newest bar and whether one exists.
func (w *Window) Last() (Bar, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if len(w.bars) == 0 {
		return Bar{}, false
	}
	return w.bars[len(w.bars)-1], true
}
