package rtc

import "sync"

// hooks runs its handlers exactly once, on the first fire.
type hooks struct {
	mu       sync.Mutex
	fired    bool
	handlers []func()
}

func (h *hooks) add(fn func()) {
	h.mu.Lock()
	if h.fired {
		h.mu.Unlock()
		fn()
		return
	}
	h.handlers = append(h.handlers, fn)
	h.mu.Unlock()
}

// fire reports false if it already ran.
func (h *hooks) fire() bool {
	h.mu.Lock()
	if h.fired {
		h.mu.Unlock()
		return false
	}
	h.fired = true
	hs := h.handlers
	h.handlers = nil
	h.mu.Unlock()
	for _, fn := range hs {
		fn()
	}
	return true
}

func (h *hooks) done() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fired
}
