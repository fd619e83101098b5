package registry

import (
	"fmt"
	"sort"

	"github.com/shaiso/tableflow/internal/domain"
)

// Registry — неизменяемый индекс Flow, Template, Workflow и Contract по ID.
//
// Все методы безопасны для nil-получателя и для конкурентного чтения.
type Registry struct {
	flows     map[string]*domain.Flow
	flowOwner map[string]string
	templates map[string]*domain.Template
	workflows map[string]*domain.Workflow
	contracts map[string]*domain.Contract
}

// Empty возвращает пустой реестр.
func Empty() *Registry {
	return &Registry{
		flows:     make(map[string]*domain.Flow),
		flowOwner: make(map[string]string),
		templates: make(map[string]*domain.Template),
		workflows: make(map[string]*domain.Workflow),
		contracts: make(map[string]*domain.Contract),
	}
}

// New строит реестр из документа.
//
// Flow и Template, вложенные в Workflow, получают этот Workflow владельцем.
// Повторяющиеся ID — ошибка ErrDuplicateID.
func New(doc *domain.Document) (*Registry, error) {
	r := Empty()
	if doc == nil {
		return r, nil
	}

	for _, wfID := range sortedKeys(doc.Workflows) {
		wf := doc.Workflows[wfID]
		if wf == nil {
			continue
		}
		if wf.ID == "" {
			wf = withWorkflowID(wf, wfID)
		}
		if _, dup := r.workflows[wf.ID]; dup {
			return nil, fmt.Errorf("%w: workflow %s", ErrDuplicateID, wf.ID)
		}
		r.workflows[wf.ID] = wf

		for _, id := range sortedKeys(wf.Flows) {
			if err := r.addFlow(wf.Flows[id], id, wf.ID); err != nil {
				return nil, err
			}
		}
		for _, id := range sortedKeys(wf.Templates) {
			if err := r.addTemplate(wf.Templates[id], id, wf.ID); err != nil {
				return nil, err
			}
		}
		for _, id := range sortedKeys(wf.Contracts) {
			c := wf.Contracts[id]
			if c == nil {
				continue
			}
			if _, dup := r.contracts[id]; dup {
				return nil, fmt.Errorf("%w: contract %s", ErrDuplicateID, id)
			}
			r.contracts[id] = c
		}
	}

	for _, id := range sortedKeys(doc.Flows) {
		if err := r.addFlow(doc.Flows[id], id, ""); err != nil {
			return nil, err
		}
	}
	for _, id := range sortedKeys(doc.Templates) {
		if err := r.addTemplate(doc.Templates[id], id, ""); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *Registry) addFlow(f *domain.Flow, key, owner string) error {
	if f == nil {
		return nil
	}
	id := f.ID
	if id == "" {
		id = key
	}
	if _, dup := r.flows[id]; dup {
		return fmt.Errorf("%w: flow %s", ErrDuplicateID, id)
	}
	r.flows[id] = f
	r.flowOwner[id] = owner
	return nil
}

func (r *Registry) addTemplate(t *domain.Template, key, owner string) error {
	if t == nil {
		return nil
	}
	id := t.ID
	if id == "" {
		id = key
	}
	if _, dup := r.templates[id]; dup {
		return fmt.Errorf("%w: template %s", ErrDuplicateID, id)
	}
	if t.Workflow == "" && owner != "" {
		c := *t
		c.Workflow = owner
		t = &c
	}
	r.templates[id] = t
	return nil
}

// Flow возвращает flow по ID.
func (r *Registry) Flow(id string) (*domain.Flow, bool) {
	if r == nil {
		return nil, false
	}
	f, ok := r.flows[id]
	return f, ok && f != nil
}

// Template возвращает шаблон по ID.
func (r *Registry) Template(id string) (*domain.Template, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.templates[id]
	return t, ok && t != nil
}

// Workflow возвращает workflow по ID.
func (r *Registry) Workflow(id string) (*domain.Workflow, bool) {
	if r == nil {
		return nil, false
	}
	w, ok := r.workflows[id]
	return w, ok && w != nil
}

// Contract возвращает контракт по ID.
func (r *Registry) Contract(id string) (*domain.Contract, bool) {
	if r == nil {
		return nil, false
	}
	c, ok := r.contracts[id]
	return c, ok && c != nil
}

// FlowWorkflow возвращает ID workflow-владельца flow.
// Пустая строка для flow верхнего уровня.
func (r *Registry) FlowWorkflow(flowID string) string {
	if r == nil {
		return ""
	}
	return r.flowOwner[flowID]
}

// FlowIDs возвращает ID всех flows в отсортированном порядке.
func (r *Registry) FlowIDs() []string {
	if r == nil {
		return nil
	}
	return sortedKeys(r.flows)
}

// TemplateIDs возвращает ID всех шаблонов в отсортированном порядке.
func (r *Registry) TemplateIDs() []string {
	if r == nil {
		return nil
	}
	return sortedKeys(r.templates)
}

// WorkflowIDs возвращает ID всех workflows в отсортированном порядке.
func (r *Registry) WorkflowIDs() []string {
	if r == nil {
		return nil
	}
	return sortedKeys(r.workflows)
}

// Count возвращает число flows, шаблонов и workflows.
func (r *Registry) Count() (flows, templates, workflows int) {
	if r == nil {
		return 0, 0, 0
	}
	return len(r.flows), len(r.templates), len(r.workflows)
}

func withWorkflowID(wf *domain.Workflow, id string) *domain.Workflow {
	c := *wf
	c.ID = id
	return &c
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
