package registry

import "sync"

// Holder хранит текущий Registry и заменяет его целиком.
type Holder struct {
	mu      sync.RWMutex
	current *Registry
}

// NewHolder создаёт Holder с начальным реестром.
// Если r == nil, используется пустой реестр.
func NewHolder(r *Registry) *Holder {
	if r == nil {
		r = Empty()
	}
	return &Holder{current: r}
}

// Get возвращает текущий реестр.
func (h *Holder) Get() *Registry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Swap заменяет реестр и возвращает предыдущий.
func (h *Holder) Swap(r *Registry) *Registry {
	if r == nil {
		r = Empty()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.current
	h.current = r
	return prev
}
