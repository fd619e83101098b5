package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/tableflow/internal/domain"
	"github.com/shaiso/tableflow/internal/registry"
	"github.com/shaiso/tableflow/internal/telemetry"
)

// DocumentLoader загружает весь документ из хранилища.
type DocumentLoader interface {
	LoadDocument(ctx context.Context) (*domain.Document, error)
}

// Reloader перестраивает реестр из хранилища и заменяет его в Holder.
type Reloader struct {
	loader DocumentLoader
	holder *registry.Holder
	logger *slog.Logger
}

// NewReloader создаёт Reloader.
func NewReloader(loader DocumentLoader, holder *registry.Holder, logger *slog.Logger) *Reloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reloader{loader: loader, holder: holder, logger: logger}
}

// Reload загружает документ и атомарно заменяет реестр.
//
// При ошибке загрузки или сборки старый реестр остаётся на месте.
// Проблемы lock-записей только логируются.
func (r *Reloader) Reload(ctx context.Context) error {
	doc, err := r.loader.LoadDocument(ctx)
	if err != nil {
		telemetry.RegistryReloadsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("load document: %w", err)
	}

	reg, err := registry.New(doc)
	if err != nil {
		telemetry.RegistryReloadsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("build registry: %w", err)
	}

	if err := reg.CheckLocks(); err != nil {
		r.logger.Warn("registry lock problems", "error", err)
	}

	r.holder.Swap(reg)
	telemetry.RegistryReloadsTotal.WithLabelValues("ok").Inc()

	flows, templates, workflows := reg.Count()
	r.logger.Debug("registry reloaded",
		"flows", flows,
		"templates", templates,
		"workflows", workflows,
	)
	return nil
}
