package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/tableflow/internal/engine"
	"github.com/shaiso/tableflow/internal/telemetry"
)

// ManagerConfig — конфигурация Manager.
type ManagerConfig struct {
	// Registry возвращает текущий реестр. Вызывается при каждом init,
	// поэтому открытые сессии не видят последующих замен реестра.
	Registry func() engine.Registry

	MaxCallDepth int
	Logger       *slog.Logger
}

// Manager — открытые сессии по ID.
type Manager struct {
	registry func() engine.Registry
	maxDepth int
	logger   *slog.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Handle
}

// NewManager создаёт Manager.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry: cfg.Registry,
		maxDepth: cfg.MaxCallDepth,
		logger:   logger,
		sessions: make(map[uuid.UUID]*Handle),
	}
}

// Init открывает сессию для flow. Сессия в состоянии FAILED не сохраняется.
func (m *Manager) Init(ctx context.Context, flowID string) (*Handle, error) {
	var reg engine.Registry
	if m.registry != nil {
		reg = m.registry()
	}

	h, err := Init(ctx, Config{
		Registry:     reg,
		FlowID:       flowID,
		MaxCallDepth: m.maxDepth,
		Logger:       m.logger,
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[h.ID()] = h
	n := len(m.sessions)
	m.mu.Unlock()

	telemetry.SessionsActive.Set(float64(n))
	return h, nil
}

// Get возвращает открытую сессию.
func (m *Manager) Get(id uuid.UUID) (*Handle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return h, nil
}

// Run выполняет run в открытой сессии.
func (m *Manager) Run(ctx context.Context, id uuid.UUID, q Query) (*Result, error) {
	h, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return h.Run(ctx, q)
}

// Close закрывает и удаляет сессию.
func (m *Manager) Close(id uuid.UUID) error {
	m.mu.Lock()
	h, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	h.Close()
	telemetry.SessionsActive.Set(float64(n))
	return nil
}

// Sweep закрывает сессии, простаивающие дольше maxIdle.
// Возвращает число закрытых сессий.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	var idle []*Handle
	for id, h := range m.sessions {
		if h.LastUsed().Before(cutoff) {
			idle = append(idle, h)
			delete(m.sessions, id)
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	for _, h := range idle {
		h.Close()
	}
	if len(idle) > 0 {
		m.logger.Info("idle sessions closed", "count", len(idle))
	}
	telemetry.SessionsActive.Set(float64(n))
	return len(idle)
}

// CloseAll закрывает все сессии. Используется при остановке сервиса.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[uuid.UUID]*Handle)
	m.mu.Unlock()

	for _, h := range all {
		h.Close()
	}
	telemetry.SessionsActive.Set(0)
}

// Len возвращает число открытых сессий.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// IDs возвращает ID открытых сессий в порядке открытия.
func (m *Manager) IDs() []uuid.UUID {
	m.mu.RLock()
	handles := make([]*Handle, 0, len(m.sessions))
	for _, h := range m.sessions {
		handles = append(handles, h)
	}
	m.mu.RUnlock()

	sort.Slice(handles, func(i, j int) bool {
		return handles[i].CreatedAt().Before(handles[j].CreatedAt())
	})
	ids := make([]uuid.UUID, len(handles))
	for i, h := range handles {
		ids[i] = h.ID()
	}
	return ids
}
