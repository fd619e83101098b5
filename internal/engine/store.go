package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/tableflow/internal/domain"
)

// Store — хранилище переменных одного Subflow.
//
// Значения внутри Store неизменяемы: Put и Update всегда записывают
// новую копию, поэтому читатель, получивший переменную через Get,
// видит либо старое, либо новое значение целиком.
type Store struct {
	mu   sync.RWMutex
	vars map[string]*domain.Variable
}

// NewStore создаёт Store с копиями переданных переменных.
func NewStore(vars map[string]*domain.Variable) *Store {
	s := &Store{vars: make(map[string]*domain.Variable, len(vars))}
	for id, v := range vars {
		if v == nil {
			continue
		}
		c := v.Clone()
		if c.ID == "" {
			c.ID = id
		}
		s.vars[id] = c
	}
	return s
}

// Get возвращает переменную. Результат нельзя изменять.
func (s *Store) Get(id string) (*domain.Variable, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vars[id]
	return v, ok
}

// Has проверяет наличие переменной.
func (s *Store) Has(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// Put записывает копию переменной под её ID.
func (s *Store) Put(v *domain.Variable) {
	if v == nil || v.ID == "" {
		return
	}
	c := v.Clone()

	s.mu.Lock()
	s.vars[c.ID] = c
	s.mu.Unlock()
}

// Update клонирует переменную, передаёт клон в fn и записывает его обратно.
// Если fn возвращает ошибку, хранилище не меняется.
func (s *Store) Update(id string, fn func(v *domain.Variable) error) error {
	s.mu.RLock()
	current, ok := s.vars[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrVariableNotFound, id)
	}

	clone := current.Clone()
	if err := fn(clone); err != nil {
		return err
	}
	clone.ID = id

	s.mu.Lock()
	s.vars[id] = clone
	s.mu.Unlock()
	return nil
}

// Delete удаляет переменную.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.vars, id)
	s.mu.Unlock()
}

// IDs возвращает ID переменных в отсортированном порядке.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.vars))
	for id := range s.vars {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot возвращает текущие значения всех переменных.
// Сами значения разделяются со Store и не должны изменяться.
func (s *Store) Snapshot() map[string]*domain.Variable {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*domain.Variable, len(s.vars))
	for id, v := range s.vars {
		out[id] = v
	}
	return out
}
