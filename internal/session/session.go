package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/tableflow/internal/domain"
	"github.com/shaiso/tableflow/internal/engine"
	"github.com/shaiso/tableflow/internal/telemetry"
)

// Config — параметры init.
type Config struct {
	// Registry — неизменяемый реестр flows и шаблонов на время сессии.
	Registry engine.Registry

	// FlowID — вычисляемый flow.
	FlowID string

	// MaxCallDepth — глубина вложенных вызовов (default: engine.MaxCallDepth).
	MaxCallDepth int

	Logger *slog.Logger
}

// Query — запрос run.
type Query struct {
	// Subflow — вычисляемый Subflow. Пустой — главный.
	Subflow string `json:"subflow,omitempty"`

	// Set — новые значения переменных Subflow. Каждая заменяется целиком.
	Set []*domain.Variable `json:"set,omitempty"`

	// Changed — дополнительно помеченные изменёнными переменные.
	Changed []string `json:"changed,omitempty"`

	// Full — пересчитать все элементы независимо от изменений.
	Full bool `json:"full,omitempty"`
}

// Result — ответ run.
type Result struct {
	SessionID uuid.UUID                   `json:"session_id"`
	FlowID    string                      `json:"flow_id"`
	Pass      engine.PassResult           `json:"pass"`
	Errors    []string                    `json:"errors,omitempty"`
	Variables map[string]*domain.Variable `json:"variables"`
}

// Info — описание сессии для вызывающей стороны.
type Info struct {
	SessionID uuid.UUID           `json:"session_id"`
	FlowID    string              `json:"flow_id"`
	State     domain.SessionState `json:"state"`

	// Validation — проблемы структурной валидации flow, найденные при init.
	Validation string `json:"validation,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Handle — открытая сессия вычислителя одного Flow.
type Handle struct {
	id        uuid.UUID
	flowID    string
	createdAt time.Time
	logger    *slog.Logger

	mu         sync.Mutex
	state      domain.SessionState
	err        error
	ev         *engine.Evaluator
	validation error
	lastUsed   time.Time
}

// Init открывает сессию: строит Evaluator, выполняет структурную
// валидацию и первый полный проход главного Subflow.
//
// При ошибке возвращается Handle в состоянии FAILED вместе с ошибкой.
// Проблемы валидации не мешают init: они доступны через Validation.
func Init(ctx context.Context, cfg Config) (*Handle, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.FromContext(ctx)
	}

	now := time.Now()
	h := &Handle{
		id:        uuid.New(),
		flowID:    cfg.FlowID,
		createdAt: now,
		lastUsed:  now,
		state:     domain.SessionUninitialized,
	}
	h.logger = telemetry.WithFlowID(telemetry.WithSessionID(logger, h.id.String()), cfg.FlowID)

	if err := h.init(ctx, cfg); err != nil {
		h.mu.Lock()
		h.state = domain.SessionFailed
		h.err = err
		h.mu.Unlock()

		h.logger.Warn("session init failed", "error", err)
		return h, fmt.Errorf("%w: %v", ErrInitFailed, err)
	}

	h.logger.Info("session ready")
	return h, nil
}

func (h *Handle) init(ctx context.Context, cfg Config) error {
	ev, err := engine.NewEvaluator(engine.Config{
		Registry:     cfg.Registry,
		FlowID:       cfg.FlowID,
		Logger:       h.logger,
		MaxCallDepth: cfg.MaxCallDepth,
	})
	if err != nil {
		return err
	}

	validation := engine.Validate(cfg.Registry, ev.Flow())
	if validation != nil {
		h.logger.Warn("flow has structural problems", "error", validation)
	}

	if _, err := ev.Pass(ctx, "", nil); err != nil {
		return fmt.Errorf("initial pass: %w", err)
	}

	h.mu.Lock()
	h.ev = ev
	h.validation = validation
	h.state = domain.SessionReady
	h.mu.Unlock()
	return nil
}

// ID возвращает идентификатор сессии.
func (h *Handle) ID() uuid.UUID { return h.id }

// FlowID возвращает ID вычисляемого flow.
func (h *Handle) FlowID() string { return h.flowID }

// CreatedAt возвращает время открытия сессии.
func (h *Handle) CreatedAt() time.Time { return h.createdAt }

// State возвращает текущее состояние.
func (h *Handle) State() domain.SessionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Err возвращает ошибку init для сессии в состоянии FAILED.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Validation возвращает результат структурной валидации flow при init.
func (h *Handle) Validation() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.validation
}

// Info возвращает описание сессии.
func (h *Handle) Info() Info {
	h.mu.Lock()
	defer h.mu.Unlock()

	info := Info{
		SessionID: h.id,
		FlowID:    h.flowID,
		State:     h.state,
		CreatedAt: h.createdAt,
	}
	if h.validation != nil {
		info.Validation = h.validation.Error()
	}
	return info
}

// LastUsed возвращает время последнего run.
func (h *Handle) LastUsed() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastUsed
}

// Run применяет изменения из запроса и выполняет проход.
//
// Если Full или запрос ничего не меняет, проход полный. Иначе
// пересчитываются элементы, зависящие от Set и Changed.
// Запросы одной сессии выполняются строго по очереди.
func (h *Handle) Run(ctx context.Context, q Query) (*Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.state.CanRun() {
		return nil, fmt.Errorf("%w: state %s", ErrNotReady, h.state)
	}
	h.lastUsed = time.Now()

	subflow := q.Subflow
	if subflow == "" {
		subflow = h.ev.Flow().Main
	}

	if err := h.ev.SetAll(subflow, q.Set); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadQuery, err)
	}
	changed := make([]string, 0, len(q.Set)+len(q.Changed))
	for _, v := range q.Set {
		changed = append(changed, v.ID)
	}
	changed = append(changed, q.Changed...)
	if q.Full || len(changed) == 0 {
		changed = nil
	}

	pass, err := h.ev.Pass(ctx, subflow, changed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadQuery, err)
	}
	vars, err := h.ev.Variables(subflow)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadQuery, err)
	}

	res := &Result{
		SessionID: h.id,
		FlowID:    h.flowID,
		Pass:      pass,
		Variables: vars,
	}
	for _, e := range pass.Errors {
		res.Errors = append(res.Errors, e.Error())
	}

	h.logger.Debug("run completed", "subflow_id", subflow, "summary", pass.Summary())
	return res, nil
}

// Close закрывает сессию. Повторный Close ничего не делает.
func (h *Handle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == domain.SessionClosed {
		return
	}
	h.state = domain.SessionClosed
	h.ev = nil
	h.logger.Info("session closed")
}
