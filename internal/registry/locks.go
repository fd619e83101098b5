package registry

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-version"

	"github.com/shaiso/tableflow/internal/domain"
)

// CheckLocks проверяет, что у каждой зависимости flow, workflow и
// шаблона есть запись в lock с корректной семантической версией и что
// сама зависимость присутствует в реестре.
//
// Возвращает все проблемы одной ошибкой или nil.
func (r *Registry) CheckLocks() error {
	if r == nil {
		return nil
	}

	var merr *multierror.Error
	check := func(kind, owner string, deps []string, lock map[string]domain.LockEntry, exists func(string) bool) {
		for _, dep := range deps {
			if !exists(dep) {
				merr = multierror.Append(merr, fmt.Errorf("%s %s: %w: %s", kind, owner, ErrUnknownDependency, dep))
			}
			entry, ok := lock[dep]
			if !ok {
				merr = multierror.Append(merr, fmt.Errorf("%s %s: %w: %s", kind, owner, ErrMissingLock, dep))
				continue
			}
			if _, err := ParseVersion(entry.Version); err != nil {
				merr = multierror.Append(merr, fmt.Errorf("%s %s: dependency %s: %w", kind, owner, dep, err))
			}
		}
	}

	hasFlow := func(id string) bool { _, ok := r.Flow(id); return ok }
	hasTemplate := func(id string) bool { _, ok := r.Template(id); return ok }
	hasWorkflow := func(id string) bool { _, ok := r.Workflow(id); return ok }

	for _, id := range r.FlowIDs() {
		f := r.flows[id]
		check("flow", id, f.Flows, f.Lock, hasFlow)
	}
	for _, id := range r.WorkflowIDs() {
		w := r.workflows[id]
		check("workflow", id, w.Workflows, w.Lock, hasWorkflow)
	}
	for _, id := range r.TemplateIDs() {
		t := r.templates[id]
		check("template", id, t.Templates, t.Lock, hasTemplate)
	}

	return merr.ErrorOrNil()
}

// ParseVersion разбирает версию lock-записи ("v0.0.1", "1.2.3").
func ParseVersion(raw string) (*version.Version, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrBadVersion)
	}
	v, err := version.NewSemver(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrBadVersion, raw, err)
	}
	return v, nil
}

// Newer сообщает, новее ли версия a версии b. Некорректные версии не новее.
func Newer(a, b string) bool {
	va, err := ParseVersion(a)
	if err != nil {
		return false
	}
	vb, err := ParseVersion(b)
	if err != nil {
		return true
	}
	return va.GreaterThan(vb)
}
