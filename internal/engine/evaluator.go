package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/shaiso/tableflow/internal/domain"
	"github.com/shaiso/tableflow/internal/telemetry"
)

// MaxCallDepth — максимальная глубина вложенных вызовов function/subflow.
const MaxCallDepth = 16

// Config — параметры для создания Evaluator.
type Config struct {
	Registry     Registry
	FlowID       string
	Logger       *slog.Logger
	MaxCallDepth int
}

// Evaluator пересчитывает Subflow одного Flow.
//
// Проход строго следует order. Одновременно выполняется не более
// одного прохода; Set и Pass сериализуются.
type Evaluator struct {
	reg      Registry
	flow     *domain.Flow
	workflow string
	logger   *slog.Logger
	maxDepth int

	mu     sync.Mutex
	scopes map[string]*Scope
}

// NewEvaluator создаёт Evaluator для flow из реестра.
func NewEvaluator(cfg Config) (*Evaluator, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("%w: registry is nil", ErrFlowNotFound)
	}
	flow, ok := cfg.Registry.Flow(cfg.FlowID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFlowNotFound, cfg.FlowID)
	}
	if _, ok := flow.MainSubflow(); !ok {
		return nil, fmt.Errorf("%w: flow %s", ErrMainNotFound, cfg.FlowID)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	depth := cfg.MaxCallDepth
	if depth <= 0 {
		depth = MaxCallDepth
	}

	return &Evaluator{
		reg:      cfg.Registry,
		flow:     flow,
		workflow: cfg.Registry.FlowWorkflow(flow.ID),
		logger:   telemetry.WithFlowID(logger, flow.ID),
		maxDepth: depth,
		scopes:   make(map[string]*Scope),
	}, nil
}

// Flow возвращает вычисляемый flow.
func (e *Evaluator) Flow() *domain.Flow { return e.flow }

// PassResult — итог одного прохода.
type PassResult struct {
	SubflowID string `json:"subflow_id"`

	// Evaluated — пересчитанные элементы в порядке order.
	Evaluated []string `json:"evaluated"`

	// Skipped — элементы, входы которых не менялись.
	Skipped []string `json:"skipped,omitempty"`

	// Inert — элементы неизвестного типа.
	Inert []string `json:"inert,omitempty"`

	// Written — переменные, записанные за проход.
	Written []string `json:"written,omitempty"`

	// Calls — число выполненных вызовов function/subflow, включая вложенные.
	Calls int `json:"calls"`

	// Errors — локальные ошибки элементов.
	Errors []error `json:"-"`
}

// Err объединяет локальные ошибки прохода. nil, если ошибок нет.
func (r PassResult) Err() error {
	var merr *multierror.Error
	for _, err := range r.Errors {
		merr = multierror.Append(merr, err)
	}
	return merr.ErrorOrNil()
}

// frame — контекст вычисления одного Subflow.
type frame struct {
	flow     *domain.Flow
	workflow string
	subflow  *domain.Subflow
	scope    *Scope
	depth    int
}

// Set заменяет значение переменной Subflow целиком.
func (e *Evaluator) Set(subflowID string, v *domain.Variable) error {
	return e.SetAll(subflowID, []*domain.Variable{v})
}

// SetAll заменяет несколько переменных Subflow атомарно: если хотя бы
// одна не объявлена или имеет неверную форму, ни одна не записывается.
func (e *Evaluator) SetAll(subflowID string, vars []*domain.Variable) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	scope, sf, err := e.scopeLocked(subflowID)
	if err != nil {
		return err
	}
	for _, v := range vars {
		if v == nil || !sf.IsDeclared(v.ID) {
			id := ""
			if v != nil {
				id = v.ID
			}
			return fmt.Errorf("%w: %s in subflow %s", ErrUndeclaredVariable, id, subflowID)
		}
		if err := v.CheckShape(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrBadVariableShape, v.ID, err)
		}
	}
	for _, v := range vars {
		scope.Put(v)
	}
	return nil
}

// Variables возвращает текущие переменные Subflow.
func (e *Evaluator) Variables(subflowID string) (map[string]*domain.Variable, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	scope, _, err := e.scopeLocked(subflowID)
	if err != nil {
		return nil, err
	}
	return scope.Store().Snapshot(), nil
}

// Pass выполняет проход по Subflow.
//
// changed == nil означает полный пересчёт. Иначе пересчитываются только
// элементы, читающие хотя бы одну изменённую переменную; их выходы
// становятся изменёнными для следующих элементов.
//
// Ошибка возвращается, только если Subflow не найден. Локальные
// ошибки элементов собираются в PassResult.
func (e *Evaluator) Pass(ctx context.Context, subflowID string, changed []string) (PassResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if subflowID == "" {
		subflowID = e.flow.Main
	}
	scope, sf, err := e.scopeLocked(subflowID)
	if err != nil {
		return PassResult{}, err
	}

	start := time.Now()
	fr := &frame{flow: e.flow, workflow: e.workflow, subflow: sf, scope: scope}
	res := e.walk(ctx, fr, changed)

	telemetry.PassDuration.Observe(time.Since(start).Seconds())
	if len(res.Errors) > 0 {
		telemetry.PassesTotal.WithLabelValues("errors").Inc()
	} else {
		telemetry.PassesTotal.WithLabelValues("ok").Inc()
	}

	e.logger.Debug("pass completed",
		"subflow_id", subflowID,
		"evaluated", len(res.Evaluated),
		"skipped", len(res.Skipped),
		"inert", len(res.Inert),
		"errors", len(res.Errors),
		"duration", time.Since(start),
	)
	return res, nil
}

// scopeLocked возвращает постоянную область Subflow, создавая её при
// первом обращении. Область вложенного Subflow наследует область родителя.
func (e *Evaluator) scopeLocked(subflowID string) (*Scope, *domain.Subflow, error) {
	sf, ok := e.flow.Subflow(subflowID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrSubflowNotFound, subflowID)
	}
	if s, ok := e.scopes[subflowID]; ok {
		return s, sf, nil
	}

	var parent *Scope
	if sf.Parent != "" && sf.Parent != sf.ID {
		// Цепочка parent не должна зацикливаться; при цикле область остаётся корневой.
		if !e.parentCycle(sf) {
			p, _, err := e.scopeLocked(sf.Parent)
			if err == nil {
				parent = p
			}
		}
	}

	s := NewScope(sf.Variables, parent)
	e.scopes[subflowID] = s
	return s, sf, nil
}

func (e *Evaluator) parentCycle(sf *domain.Subflow) bool {
	seen := map[string]bool{sf.ID: true}
	for cur := sf.Parent; cur != ""; {
		if seen[cur] {
			return true
		}
		seen[cur] = true
		next, ok := e.flow.Subflow(cur)
		if !ok {
			return false
		}
		cur = next.Parent
	}
	return false
}

// walk обходит order Subflow во frame.
func (e *Evaluator) walk(ctx context.Context, fr *frame, changed []string) PassResult {
	res := PassResult{SubflowID: fr.subflow.ID}
	full := changed == nil
	dirty := make(map[string]bool, len(changed))
	for _, id := range changed {
		dirty[id] = true
	}
	logger := telemetry.WithSubflowID(e.logger, fr.subflow.ID)

	for _, elID := range fr.subflow.Order {
		el, ok := fr.subflow.Element(elID)
		if !ok {
			res.Errors = append(res.Errors, e.elementError(fr, elID, fmt.Errorf("%w: %s", ErrElementNotFound, elID)))
			continue
		}

		if _, unknown := el.Value.(*domain.UnknownValue); unknown || !el.Type.IsKnown() {
			res.Inert = append(res.Inert, el.ID)
			telemetry.InertElementsTotal.Inc()
			logger.Warn("element is inert", "element_id", el.ID, "type", el.Type)
			continue
		}

		reads, writes := elementDeps(el, fr.scope)
		if !full && !intersects(reads, dirty) {
			res.Skipped = append(res.Skipped, el.ID)
			continue
		}

		written := e.evalElement(ctx, fr, el, &res)
		res.Evaluated = append(res.Evaluated, el.ID)
		for _, id := range append(writes, written...) {
			if !dirty[id] {
				dirty[id] = true
				res.Written = append(res.Written, id)
			}
		}
		logger.Debug("element evaluated", "element_id", el.ID, "type", el.Type)
	}
	return res
}

// evalElement вычисляет один элемент и возвращает ID записанных переменных.
func (e *Evaluator) evalElement(ctx context.Context, fr *frame, el *domain.Element, res *PassResult) []string {
	switch v := el.Value.(type) {
	case *domain.InputValue, *domain.OutputValue, *domain.ParentValue:
		return nil

	case *domain.ChartValue:
		return nil

	case *domain.TableRef:
		variable, ok := fr.scope.Lookup(v.ID)
		if !ok {
			res.Errors = append(res.Errors, e.elementError(fr, el.ID, fmt.Errorf("%w: %s", ErrVariableNotFound, v.ID)))
			return nil
		}
		if err := variable.CheckShape(); err != nil {
			res.Errors = append(res.Errors, e.elementError(fr, el.ID, fmt.Errorf("%w: %v", ErrBadVariableShape, err)))
		}
		return nil

	case *domain.DecisionTable:
		return e.evalDecision(ctx, fr, el, v, res)

	case *domain.CallValue:
		switch el.Type {
		case domain.ElementFunction:
			return e.callFunction(ctx, fr, el, v, res)
		case domain.ElementSubflow:
			return e.callSubflow(ctx, fr, el, v, res)
		}
		res.Errors = append(res.Errors, e.elementError(fr, el.ID, fmt.Errorf("%w: call payload on %s element", ErrElementKind, el.Type)))
		return nil

	case *domain.UnknownValue:
		res.Inert = append(res.Inert, el.ID)
		return nil

	default:
		res.Errors = append(res.Errors, e.elementError(fr, el.ID, fmt.Errorf("%w: %T on %s element", ErrElementKind, el.Value, el.Type)))
		return nil
	}
}

// evalDecision вычисляет таблицу решений и записывает выходные таблицы.
func (e *Evaluator) evalDecision(ctx context.Context, fr *frame, el *domain.Element, dt *domain.DecisionTable, res *PassResult) []string {
	result := EvaluateDecision(dt, fr.scope)
	for _, err := range result.Errors {
		res.Errors = append(res.Errors, e.elementError(fr, el.ID, err))
	}

	for i := range result.Rows {
		row := &result.Rows[i]
		switch {
		case row.Matched < 0:
			telemetry.DecisionRowsTotal.WithLabelValues("fallback").Inc()
		case len(row.Deferred) > 0:
			telemetry.DecisionRowsTotal.WithLabelValues("deferred").Inc()
		default:
			telemetry.DecisionRowsTotal.WithLabelValues("matched").Inc()
		}
		if len(row.Deferred) == 0 {
			continue
		}

		bySubflow := make(map[string][]string)
		var order []string
		for _, col := range dt.Columns.Outputs {
			id, ok := row.Deferred[col]
			if !ok {
				continue
			}
			if _, seen := bySubflow[id]; !seen {
				order = append(order, id)
			}
			bySubflow[id] = append(bySubflow[id], col)
		}
		for _, id := range order {
			values, errs := e.invokeDecisionSubflow(ctx, fr, dt, id, row.Index, bySubflow[id], res)
			for _, err := range errs {
				res.Errors = append(res.Errors, e.elementError(fr, el.ID, err))
			}
			for col, v := range values {
				row.Values[col] = v
			}
		}
	}

	return e.writeDecisionOutputs(fr, el, dt, result, res)
}

// writeDecisionOutputs записывает результат в выходные таблицы (copy-on-write).
// Колонки без значения сохраняют прежнее значение строки.
func (e *Evaluator) writeDecisionOutputs(fr *frame, el *domain.Element, dt *domain.DecisionTable, result DecisionResult, res *PassResult) []string {
	var written []string
	n := len(result.Rows)

	for _, tableRef := range decisionOutputTables(dt) {
		current, ok := fr.scope.Resolve(tableRef)
		if !ok || current.Value == nil {
			res.Errors = append(res.Errors, e.elementError(fr, el.ID, fmt.Errorf("output: %w: %s", ErrTableNotFound, tableRef)))
			continue
		}

		next := current.Clone()
		rows := make([]domain.Row, n)
		for i := 0; i < n; i++ {
			if i < len(next.Value.Rows) && next.Value.Rows[i] != nil {
				rows[i] = next.Value.Rows[i]
			} else {
				rows[i] = next.Value.ZeroRow()
			}
		}

		for _, col := range dt.Columns.Outputs {
			h := dt.Headers.Outputs[col]
			if h.Table != tableRef {
				continue
			}
			target, ok := tableColumn(next.Value, h.Column)
			if !ok {
				res.Errors = append(res.Errors, e.elementError(fr, el.ID, fmt.Errorf("output %s: %w: %s.%s", col, ErrColumnNotFound, tableRef, h.Column)))
				continue
			}
			for i, row := range result.Rows {
				if v, ok := row.Values[col]; ok {
					rows[i][target] = v
				}
			}
		}

		if next.Type == domain.VariableRow && len(rows) > 1 {
			rows = rows[:1]
		}
		next.Value.Rows = rows
		fr.scope.Put(next)
		written = append(written, next.ID)
	}
	return written
}

// invokeDecisionSubflow вычисляет Decision Subflow для строки i и
// возвращает значения отложенных колонок.
//
// Входы Subflow связываются по позициям с различными входными таблицами
// решения, ограниченными строкой i. Выходы сопоставляются с выходными
// таблицами решения по позициям, колонки — по snake_case имени, затем
// по позиции.
func (e *Evaluator) invokeDecisionSubflow(ctx context.Context, fr *frame, dt *domain.DecisionTable, subflowID string, i int, columns []string, res *PassResult) (map[string]any, []error) {
	if fr.depth+1 > e.maxDepth {
		return nil, []error{fmt.Errorf("%w: decision subflow %s at depth %d", ErrCallDepth, subflowID, fr.depth+1)}
	}
	target, ok := fr.flow.Subflow(subflowID)
	if !ok {
		return nil, []error{fmt.Errorf("%w: %s", ErrSubflowNotFound, subflowID)}
	}
	sig, ok := DeriveSubflowSignature(target)
	if !ok {
		return nil, []error{fmt.Errorf("%w: %s has no signature", ErrSubflowNotFound, subflowID)}
	}

	inputs := decisionInputTables(dt)
	outputs := decisionOutputTables(dt)
	binding := Bind(inputs, outputs, sig)

	child := &frame{
		flow:     fr.flow,
		workflow: fr.workflow,
		subflow:  target,
		scope:    NewScope(target.Variables, fr.scope),
		depth:    fr.depth + 1,
	}

	var errs []error
	for _, p := range binding.Inputs {
		if !p.Bound() {
			continue
		}
		src, ok := fr.scope.Resolve(p.Caller)
		if !ok {
			errs = append(errs, fmt.Errorf("decision subflow %s input %s: %w", subflowID, p.Caller, ErrVariableNotFound))
			child.scope.Unbind(p.Target)
			continue
		}
		dst, _ := child.scope.Store().Get(p.Target)
		child.scope.Put(rebind(p.Target, restrictRow(src, i), dst))
	}
	for _, id := range binding.UnboundInputs {
		child.scope.Unbind(id)
	}

	telemetry.CallsTotal.WithLabelValues("decision").Inc()
	nested := e.walk(ctx, child, nil)
	res.Calls += 1 + nested.Calls
	res.Inert = append(res.Inert, nested.Inert...)
	errs = append(errs, nested.Errors...)

	values := make(map[string]any, len(columns))
	for _, col := range columns {
		h := dt.Headers.Outputs[col]
		pos := indexOf(outputs, h.Table)
		if pos < 0 || pos >= len(binding.Outputs) {
			errs = append(errs, fmt.Errorf("decision subflow %s: output %s has no position in signature", subflowID, col))
			continue
		}
		out, ok := child.scope.Lookup(binding.Outputs[pos].Target)
		if !ok || out.Value == nil {
			errs = append(errs, fmt.Errorf("decision subflow %s: output %s is absent", subflowID, binding.Outputs[pos].Target))
			continue
		}

		srcCol, ok := matchColumn(fr.scope, h, out.Value)
		if !ok {
			errs = append(errs, fmt.Errorf("decision subflow %s: %w for %s", subflowID, ErrColumnNotFound, col))
			continue
		}
		v := cellAt(out.Value, srcCol, 0)
		if coerced, ok := outputType(h, fr.scope).Coerce(v); ok {
			v = coerced
		}
		values[col] = v
	}
	return values, errs
}

// matchColumn ищет в src колонку для выходного заголовка h:
// сначала по snake_case имени колонки-получателя, затем по её позиции.
func matchColumn(tables Tables, h domain.OutputHeader, src *domain.Table) (string, bool) {
	dest, ok := tables.Table(h.Table)
	if !ok {
		return "", false
	}
	destCol, ok := tableColumn(dest, h.Column)
	if !ok {
		return "", false
	}
	if name := domain.SnakeCase(dest.Headers[destCol].Name); name != "" {
		for _, c := range src.Columns {
			if domain.SnakeCase(src.Headers[c].Name) == name {
				return c, true
			}
		}
	}
	if pos := dest.ColumnIndex(destCol); pos >= 0 && pos < len(src.Columns) {
		return src.Columns[pos], true
	}
	return "", false
}

// callFunction вызывает другой Flow через его публичную сигнатуру.
// Вызываемый flow вычисляется в изолированной области.
func (e *Evaluator) callFunction(ctx context.Context, fr *frame, el *domain.Element, call *domain.CallValue, res *PassResult) []string {
	if fr.depth+1 > e.maxDepth {
		res.Errors = append(res.Errors, e.elementError(fr, el.ID, fmt.Errorf("%w: function %s at depth %d", ErrCallDepth, call.ID, fr.depth+1)))
		return nil
	}
	binding, ok := ResolveFunction(e.reg, call)
	if !ok {
		res.Errors = append(res.Errors, e.elementError(fr, el.ID, fmt.Errorf("%w: %s", ErrFlowNotFound, call.ID)))
		return nil
	}
	targetFlow, _ := e.reg.Flow(call.ID)
	main, _ := targetFlow.MainSubflow()

	child := &frame{
		flow:     targetFlow,
		workflow: e.reg.FlowWorkflow(targetFlow.ID),
		subflow:  main,
		scope:    NewScope(main.Variables, nil),
		depth:    fr.depth + 1,
	}

	telemetry.CallsTotal.WithLabelValues("function").Inc()
	return e.call(ctx, fr, child, el, binding, res)
}

// callSubflow вызывает вложенный Subflow того же Flow.
// Область вызываемого Subflow наследует область вызывающего.
func (e *Evaluator) callSubflow(ctx context.Context, fr *frame, el *domain.Element, call *domain.CallValue, res *PassResult) []string {
	if fr.depth+1 > e.maxDepth {
		res.Errors = append(res.Errors, e.elementError(fr, el.ID, fmt.Errorf("%w: subflow %s at depth %d", ErrCallDepth, call.ID, fr.depth+1)))
		return nil
	}
	binding, ok := ResolveSubflow(fr.flow, call)
	if !ok {
		res.Errors = append(res.Errors, e.elementError(fr, el.ID, fmt.Errorf("%w: %s", ErrSubflowNotFound, call.ID)))
		return nil
	}
	target, _ := fr.flow.Subflow(call.ID)

	child := &frame{
		flow:     fr.flow,
		workflow: fr.workflow,
		subflow:  target,
		scope:    NewScope(target.Variables, fr.scope),
		depth:    fr.depth + 1,
	}

	telemetry.CallsTotal.WithLabelValues("subflow").Inc()
	return e.call(ctx, fr, child, el, binding, res)
}

// call связывает входы, вычисляет child и переносит выходы в fr.
// Отсутствующие аргументы удаляются из области child; отсутствующие
// выходы оставляют переменные вызывающей стороны без изменений.
func (e *Evaluator) call(ctx context.Context, fr, child *frame, el *domain.Element, binding Binding, res *PassResult) []string {
	for _, p := range binding.Inputs {
		if !p.Bound() {
			continue
		}
		src, ok := fr.scope.Lookup(p.Caller)
		if !ok || src.Value == nil {
			res.Errors = append(res.Errors, e.elementError(fr, el.ID, fmt.Errorf("input %s: %w", p.Caller, ErrVariableNotFound)))
			child.scope.Unbind(p.Target)
			continue
		}
		visible := &domain.Variable{ID: src.ID, Type: src.Type, Value: FilterTable(e.reg, src.Value, child.workflow)}
		dst, _ := child.scope.Store().Get(p.Target)
		child.scope.Put(rebind(p.Target, visible, dst))
	}
	for _, id := range binding.UnboundInputs {
		child.scope.Unbind(id)
	}

	nested := e.walk(ctx, child, nil)
	res.Calls += 1 + nested.Calls
	res.Inert = append(res.Inert, nested.Inert...)
	for _, err := range nested.Errors {
		res.Errors = append(res.Errors, e.elementError(fr, el.ID, err))
	}

	var written []string
	for _, p := range binding.Outputs {
		if !p.Bound() {
			continue
		}
		out, ok := child.scope.Lookup(p.Target)
		if !ok || out.Value == nil {
			continue
		}
		visible := &domain.Variable{ID: out.ID, Type: out.Type, Value: FilterTable(e.reg, out.Value, fr.workflow)}
		dst, _ := fr.scope.Lookup(p.Caller)
		fr.scope.Put(rebind(p.Caller, visible, dst))
		written = append(written, p.Caller)
	}
	return written
}

func (e *Evaluator) elementError(fr *frame, elementID string, err error) error {
	return &ElementError{SubflowID: fr.subflow.ID, ElementID: elementID, Err: err}
}

// restrictRow возвращает копию переменной только со строкой i.
// Таблица из одной строки транслируется.
func restrictRow(v *domain.Variable, i int) *domain.Variable {
	out := v.Clone()
	if out.Value == nil {
		return out
	}
	switch {
	case len(out.Value.Rows) == 1:
	case i < len(out.Value.Rows):
		out.Value.Rows = []domain.Row{out.Value.Rows[i]}
	default:
		out.Value.Rows = nil
	}
	if out.Type == domain.VariableTable || out.Type == domain.VariableSignature {
		out.Type = domain.VariableRow
	}
	if len(out.Value.Rows) == 0 {
		out.Value.Rows = []domain.Row{out.Value.ZeroRow()}
	}
	return out
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

// Summary — краткое текстовое описание результата прохода для логов и CLI.
func (r PassResult) Summary() string {
	return "evaluated=" + strconv.Itoa(len(r.Evaluated)) +
		" skipped=" + strconv.Itoa(len(r.Skipped)) +
		" inert=" + strconv.Itoa(len(r.Inert)) +
		" errors=" + strconv.Itoa(len(r.Errors))
}
