package services

import (
	"sync"
	"time"
)

// DefaultHighlightWindow is how long an automated assignment stays highlighted.
const DefaultHighlightWindow = 3 * time.Second

// Highlighter schedules the clearing of transient row highlights. Re-marking a row
// restarts its window; StopAll discards every pending clear.
type Highlighter struct {
	window  time.Duration
	onClear func(header string)

	mu      sync.Mutex
	pending map[string]*highlightTimer
	stopped bool
}

type highlightTimer struct {
	timer *time.Timer
}

// NewHighlighter creates a highlighter that calls onClear(header) once the window
// of a marked row elapses. A non-positive window uses DefaultHighlightWindow.
func NewHighlighter(window time.Duration, onClear func(header string)) *Highlighter {
	if window <= 0 {
		window = DefaultHighlightWindow
	}
	return &Highlighter{
		window:  window,
		onClear: onClear,
		pending: map[string]*highlightTimer{},
	}
}

// Window returns the highlight duration.
func (h *Highlighter) Window() time.Duration {
	return h.window
}

// Mark starts (or restarts) the highlight window for header.
func (h *Highlighter) Mark(header string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	if prev, ok := h.pending[header]; ok {
		prev.timer.Stop()
	}

	ht := &highlightTimer{}
	ht.timer = time.AfterFunc(h.window, func() { h.fire(header, ht) })
	h.pending[header] = ht
}

func (h *Highlighter) fire(header string, ht *highlightTimer) {
	h.mu.Lock()
	if h.stopped || h.pending[header] != ht {
		// Replaced, cancelled or stopped while this callback was already scheduled.
		h.mu.Unlock()
		return
	}
	delete(h.pending, header)
	h.mu.Unlock()

	if h.onClear != nil {
		h.onClear(header)
	}
}

// Cancel drops the pending clear for header without calling onClear.
func (h *Highlighter) Cancel(header string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ht, ok := h.pending[header]; ok {
		ht.timer.Stop()
		delete(h.pending, header)
	}
}

// Reset cancels every pending clear but keeps the highlighter usable.
func (h *Highlighter) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopAllLocked()
}

// StopAll cancels every pending clear and rejects further marks.
func (h *Highlighter) StopAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopAllLocked()
	h.stopped = true
}

func (h *Highlighter) stopAllLocked() {
	for header, ht := range h.pending {
		ht.timer.Stop()
		delete(h.pending, header)
	}
}

// Pending returns the number of rows still highlighted.
func (h *Highlighter) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}
