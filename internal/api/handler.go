package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/tableflow/internal/domain"
	"github.com/shaiso/tableflow/internal/registry"
	"github.com/shaiso/tableflow/internal/repo"
	"github.com/shaiso/tableflow/internal/session"
)

// DocumentStore — хранилище workflows, flows и шаблонов.
// Реализуется repo.DocumentRepo.
type DocumentStore interface {
	ListFlows(ctx context.Context) ([]repo.FlowRecord, error)
	GetFlow(ctx context.Context, id string) (*repo.FlowRecord, error)
	PutFlow(ctx context.Context, workflowID string, flow *domain.Flow) error
	DeleteFlow(ctx context.Context, id string) error

	ListWorkflows(ctx context.Context) ([]repo.WorkflowRecord, error)
	GetWorkflow(ctx context.Context, id string) (*repo.WorkflowRecord, error)
	PutWorkflow(ctx context.Context, wf *domain.Workflow) error
	DeleteWorkflow(ctx context.Context, id string) error

	ListTemplates(ctx context.Context) ([]repo.TemplateRecord, error)
	GetTemplate(ctx context.Context, id string) (*repo.TemplateRecord, error)
	PutTemplate(ctx context.Context, tpl *domain.Template) error
	DeleteTemplate(ctx context.Context, id string) error
}

// Sessions — сессии вычислителя, локальные или на воркере (mq.RPCClient).
type Sessions interface {
	Init(ctx context.Context, flowID string) (session.Info, error)
	Run(ctx context.Context, id uuid.UUID, q session.Query) (*session.Result, error)
	CloseSession(ctx context.Context, id uuid.UUID) error
}

// Reloader перестраивает реестр после записи в хранилище.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	store    DocumentStore
	sessions Sessions
	reloader Reloader
	registry *registry.Holder
	logger   *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Store    DocumentStore
	Sessions Sessions

	// Reloader — опционально; без него реестр не обновляется после записи.
	Reloader Reloader

	// Registry — текущий реестр для валидации загружаемых flows.
	Registry *registry.Holder

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	holder := cfg.Registry
	if holder == nil {
		holder = registry.NewHolder(nil)
	}
	return &Handler{
		store:    cfg.Store,
		sessions: cfg.Sessions,
		reloader: cfg.Reloader,
		registry: holder,
		logger:   logger,
	}
}

// reload перестраивает реестр после записи. Ошибка не отменяет запись.
func (h *Handler) reload(ctx context.Context) {
	if h.reloader == nil {
		return
	}
	if err := h.reloader.Reload(ctx); err != nil {
		h.logger.Warn("registry reload after write failed", "error", err)
	}
}

// LocalSessions возвращает Sessions поверх менеджера в том же процессе.
func LocalSessions(m *session.Manager) Sessions {
	return localSessions{m: m}
}

type localSessions struct {
	m *session.Manager
}

func (l localSessions) Init(ctx context.Context, flowID string) (session.Info, error) {
	h, err := l.m.Init(ctx, flowID)
	if err != nil {
		return session.Info{}, err
	}
	return h.Info(), nil
}

func (l localSessions) Run(ctx context.Context, id uuid.UUID, q session.Query) (*session.Result, error) {
	return l.m.Run(ctx, id, q)
}

func (l localSessions) CloseSession(_ context.Context, id uuid.UUID) error {
	return l.m.Close(id)
}
