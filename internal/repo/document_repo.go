package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/tableflow/internal/domain"
)

// Ошибки DocumentRepo. Ошибки драйвера приводятся к ним в dbError.
var (
	// ErrNotFound — workflow, flow или шаблон не найден.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — нарушена уникальность ID.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidState — запись нарушает ограничение целостности схемы.
	ErrInvalidState = errors.New("invalid state")
)

// dbError добавляет к ошибке запроса операцию и приводит ошибки
// PostgreSQL к ошибкам репозитория.
func dbError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return fmt.Errorf("%s: %w: %s", op, ErrAlreadyExists, pgErr.Detail)
		case strings.HasPrefix(pgErr.Code, "23"):
			return fmt.Errorf("%s: %w: %s", op, ErrInvalidState, pgErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// FlowRecord — сохранённый flow.
type FlowRecord struct {
	Flow       *domain.Flow
	WorkflowID string
	UpdatedAt  time.Time
}

// TemplateRecord — сохранённый шаблон.
type TemplateRecord struct {
	Template   *domain.Template
	WorkflowID string
	UpdatedAt  time.Time
}

// WorkflowRecord — сохранённый workflow без вложенных flows и шаблонов.
type WorkflowRecord struct {
	Workflow  *domain.Workflow
	UpdatedAt time.Time
}

// DocumentRepo — репозиторий workflows, flows и шаблонов.
type DocumentRepo struct {
	pool *pgxpool.Pool
}

// NewDocumentRepo создаёт новый DocumentRepo.
func NewDocumentRepo(pool *pgxpool.Pool) *DocumentRepo {
	return &DocumentRepo{pool: pool}
}

// execer — общее у пула и транзакции.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// --- Flows ---

// PutFlow создаёт или заменяет flow.
func (r *DocumentRepo) PutFlow(ctx context.Context, workflowID string, flow *domain.Flow) error {
	return putFlow(ctx, r.pool, workflowID, flow)
}

func putFlow(ctx context.Context, db execer, workflowID string, flow *domain.Flow) error {
	body, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("marshal flow: %w", err)
	}
	_, err = db.Exec(ctx, `
		INSERT INTO flows (id, workflow_id, body, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE
		SET workflow_id = EXCLUDED.workflow_id, body = EXCLUDED.body, updated_at = NOW()
	`, flow.ID, workflowID, body)
	if err != nil {
		return dbError("upsert flow", err)
	}
	return nil
}

// GetFlow возвращает flow по ID.
func (r *DocumentRepo) GetFlow(ctx context.Context, id string) (*FlowRecord, error) {
	var rec FlowRecord
	var body []byte
	err := r.pool.QueryRow(ctx, `
		SELECT body, workflow_id, updated_at
		FROM flows
		WHERE id = $1
	`, id).Scan(&body, &rec.WorkflowID, &rec.UpdatedAt)
	if err != nil {
		return nil, dbError("get flow", err)
	}
	if err := json.Unmarshal(body, &rec.Flow); err != nil {
		return nil, fmt.Errorf("unmarshal flow %s: %w", id, err)
	}
	return &rec, nil
}

// ListFlows возвращает все flows, упорядоченные по ID.
func (r *DocumentRepo) ListFlows(ctx context.Context) ([]FlowRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, body, workflow_id, updated_at
		FROM flows
		ORDER BY id
	`)
	if err != nil {
		return nil, dbError("list flows", err)
	}
	defer rows.Close()

	var out []FlowRecord
	for rows.Next() {
		var id string
		var body []byte
		var rec FlowRecord
		if err := rows.Scan(&id, &body, &rec.WorkflowID, &rec.UpdatedAt); err != nil {
			return nil, dbError("scan flow", err)
		}
		if err := json.Unmarshal(body, &rec.Flow); err != nil {
			return nil, fmt.Errorf("unmarshal flow %s: %w", id, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteFlow удаляет flow.
func (r *DocumentRepo) DeleteFlow(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "flows", id)
}

// --- Templates ---

// PutTemplate создаёт или заменяет шаблон.
func (r *DocumentRepo) PutTemplate(ctx context.Context, tpl *domain.Template) error {
	return putTemplate(ctx, r.pool, tpl)
}

func putTemplate(ctx context.Context, db execer, tpl *domain.Template) error {
	body, err := json.Marshal(tpl)
	if err != nil {
		return fmt.Errorf("marshal template: %w", err)
	}
	_, err = db.Exec(ctx, `
		INSERT INTO templates (id, workflow_id, body, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE
		SET workflow_id = EXCLUDED.workflow_id, body = EXCLUDED.body, updated_at = NOW()
	`, tpl.ID, tpl.Workflow, body)
	if err != nil {
		return dbError("upsert template", err)
	}
	return nil
}

// GetTemplate возвращает шаблон по ID.
func (r *DocumentRepo) GetTemplate(ctx context.Context, id string) (*TemplateRecord, error) {
	var rec TemplateRecord
	var body []byte
	err := r.pool.QueryRow(ctx, `
		SELECT body, workflow_id, updated_at
		FROM templates
		WHERE id = $1
	`, id).Scan(&body, &rec.WorkflowID, &rec.UpdatedAt)
	if err != nil {
		return nil, dbError("get template", err)
	}
	if err := json.Unmarshal(body, &rec.Template); err != nil {
		return nil, fmt.Errorf("unmarshal template %s: %w", id, err)
	}
	return &rec, nil
}

// ListTemplates возвращает все шаблоны, упорядоченные по ID.
func (r *DocumentRepo) ListTemplates(ctx context.Context) ([]TemplateRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, body, workflow_id, updated_at
		FROM templates
		ORDER BY id
	`)
	if err != nil {
		return nil, dbError("list templates", err)
	}
	defer rows.Close()

	var out []TemplateRecord
	for rows.Next() {
		var id string
		var body []byte
		var rec TemplateRecord
		if err := rows.Scan(&id, &body, &rec.WorkflowID, &rec.UpdatedAt); err != nil {
			return nil, dbError("scan template", err)
		}
		if err := json.Unmarshal(body, &rec.Template); err != nil {
			return nil, fmt.Errorf("unmarshal template %s: %w", id, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteTemplate удаляет шаблон.
func (r *DocumentRepo) DeleteTemplate(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "templates", id)
}

// --- Workflows ---

// PutWorkflow создаёт или заменяет workflow.
//
// Вложенные flows и шаблоны сохраняются отдельными записями с
// workflow_id, тело workflow хранится без них. Всё в одной транзакции.
func (r *DocumentRepo) PutWorkflow(ctx context.Context, wf *domain.Workflow) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return dbError("begin", err)
	}
	defer tx.Rollback(ctx)

	if err := putWorkflow(ctx, tx, wf); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return dbError("commit", err)
	}
	return nil
}

func putWorkflow(ctx context.Context, db execer, wf *domain.Workflow) error {
	meta := *wf
	meta.Flows = nil
	meta.Templates = nil

	body, err := json.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("marshal workflow: %w", err)
	}
	_, err = db.Exec(ctx, `
		INSERT INTO workflows (id, body, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE
		SET body = EXCLUDED.body, updated_at = NOW()
	`, wf.ID, body)
	if err != nil {
		return dbError("upsert workflow", err)
	}

	for id, f := range wf.Flows {
		if f == nil {
			continue
		}
		if f.ID == "" {
			c := *f
			c.ID = id
			f = &c
		}
		if err := putFlow(ctx, db, wf.ID, f); err != nil {
			return err
		}
	}
	for id, t := range wf.Templates {
		if t == nil {
			continue
		}
		c := *t
		if c.ID == "" {
			c.ID = id
		}
		c.Workflow = wf.ID
		if err := putTemplate(ctx, db, &c); err != nil {
			return err
		}
	}
	return nil
}

// GetWorkflow возвращает workflow по ID без вложенных flows и шаблонов.
func (r *DocumentRepo) GetWorkflow(ctx context.Context, id string) (*WorkflowRecord, error) {
	var rec WorkflowRecord
	var body []byte
	err := r.pool.QueryRow(ctx, `
		SELECT body, updated_at
		FROM workflows
		WHERE id = $1
	`, id).Scan(&body, &rec.UpdatedAt)
	if err != nil {
		return nil, dbError("get workflow", err)
	}
	if err := json.Unmarshal(body, &rec.Workflow); err != nil {
		return nil, fmt.Errorf("unmarshal workflow %s: %w", id, err)
	}
	return &rec, nil
}

// ListWorkflows возвращает все workflows, упорядоченные по ID.
func (r *DocumentRepo) ListWorkflows(ctx context.Context) ([]WorkflowRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, body, updated_at
		FROM workflows
		ORDER BY id
	`)
	if err != nil {
		return nil, dbError("list workflows", err)
	}
	defer rows.Close()

	var out []WorkflowRecord
	for rows.Next() {
		var id string
		var body []byte
		var rec WorkflowRecord
		if err := rows.Scan(&id, &body, &rec.UpdatedAt); err != nil {
			return nil, dbError("scan workflow", err)
		}
		if err := json.Unmarshal(body, &rec.Workflow); err != nil {
			return nil, fmt.Errorf("unmarshal workflow %s: %w", id, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteWorkflow удаляет workflow вместе с его flows и шаблонами.
func (r *DocumentRepo) DeleteWorkflow(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return dbError("begin", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return dbError("delete workflow", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM flows WHERE workflow_id = $1`, id); err != nil {
		return dbError("delete workflow flows", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM templates WHERE workflow_id = $1`, id); err != nil {
		return dbError("delete workflow templates", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return dbError("commit", err)
	}
	return nil
}

// --- Document ---

// LoadDocument собирает документ из всех таблиц.
// Flows и шаблоны с workflow_id вкладываются в свой workflow, если он есть.
func (r *DocumentRepo) LoadDocument(ctx context.Context) (*domain.Document, error) {
	workflows, err := r.ListWorkflows(ctx)
	if err != nil {
		return nil, err
	}
	flows, err := r.ListFlows(ctx)
	if err != nil {
		return nil, err
	}
	templates, err := r.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	return AssembleDocument(workflows, flows, templates), nil
}

// ImportDocument сохраняет документ целиком в одной транзакции.
func (r *DocumentRepo) ImportDocument(ctx context.Context, doc *domain.Document) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return dbError("begin", err)
	}
	defer tx.Rollback(ctx)

	for id, wf := range doc.Workflows {
		if wf == nil {
			continue
		}
		if wf.ID == "" {
			c := *wf
			c.ID = id
			wf = &c
		}
		if err := putWorkflow(ctx, tx, wf); err != nil {
			return err
		}
	}
	for id, f := range doc.Flows {
		if f == nil {
			continue
		}
		if f.ID == "" {
			c := *f
			c.ID = id
			f = &c
		}
		if err := putFlow(ctx, tx, "", f); err != nil {
			return err
		}
	}
	for id, t := range doc.Templates {
		if t == nil {
			continue
		}
		if t.ID == "" {
			c := *t
			c.ID = id
			t = &c
		}
		if err := putTemplate(ctx, tx, t); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return dbError("commit", err)
	}
	return nil
}

// AssembleDocument собирает документ из записей таблиц.
func AssembleDocument(workflows []WorkflowRecord, flows []FlowRecord, templates []TemplateRecord) *domain.Document {
	doc := &domain.Document{
		Workflows: make(map[string]*domain.Workflow, len(workflows)),
		Flows:     make(map[string]*domain.Flow),
		Templates: make(map[string]*domain.Template),
	}
	for _, rec := range workflows {
		if rec.Workflow == nil {
			continue
		}
		wf := *rec.Workflow
		wf.Flows = make(map[string]*domain.Flow)
		wf.Templates = make(map[string]*domain.Template)
		doc.Workflows[wf.ID] = &wf
	}
	for _, rec := range flows {
		if rec.Flow == nil {
			continue
		}
		if wf, ok := doc.Workflows[rec.WorkflowID]; ok {
			wf.Flows[rec.Flow.ID] = rec.Flow
			continue
		}
		doc.Flows[rec.Flow.ID] = rec.Flow
	}
	for _, rec := range templates {
		if rec.Template == nil {
			continue
		}
		if wf, ok := doc.Workflows[rec.WorkflowID]; ok {
			wf.Templates[rec.Template.ID] = rec.Template
			continue
		}
		doc.Templates[rec.Template.ID] = rec.Template
	}
	return doc
}

func (r *DocumentRepo) deleteByID(ctx context.Context, table, id string) error {
	result, err := r.pool.Exec(ctx, "DELETE FROM "+table+" WHERE id = $1", id)
	if err != nil {
		return dbError("delete from "+table, err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
