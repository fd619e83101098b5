package engine

import "github.com/shaiso/tableflow/internal/domain"

// VisibleColumns возвращает колонки шаблона, доступные читателю из
// workflow readerWorkflow: внутри владельца — visible и hidden,
// снаружи — только visible. Второе значение false, если шаблон не найден.
func VisibleColumns(reg Registry, templateID, readerWorkflow string) ([]string, bool) {
	tpl, ok := lookupTemplate(reg, templateID)
	if !ok {
		return nil, false
	}

	cols := append([]string(nil), tpl.Signature.Visible.Columns...)
	if readerWorkflow == tpl.Workflow {
		cols = append(cols, tpl.Signature.Hidden.Columns...)
	}
	return cols, true
}

// CanReference проверяет, может ли workflow ссылаться на шаблон.
// Скрытый шаблон доступен только внутри своего workflow.
func CanReference(reg Registry, templateID, readerWorkflow string) bool {
	tpl, ok := lookupTemplate(reg, templateID)
	if !ok {
		return false
	}
	return !tpl.IsHidden() || readerWorkflow == tpl.Workflow
}

// FilterTable оставляет читателю вне workflow-владельца только visible
// колонки шаблона таблицы и рекурсивно фильтрует встроенные шаблоны
// (template://<id>). Владелец видит таблицу целиком.
//
// Если фильтровать нечего или шаблон не найден, возвращается исходная таблица.
func FilterTable(reg Registry, table *domain.Table, readerWorkflow string) *domain.Table {
	if table == nil {
		return nil
	}

	allowed := allowedSet(reg, table.Template, readerWorkflow)
	embedded := false
	for _, c := range table.Columns {
		if _, ok := table.Headers[c].Type.TemplateID(); ok {
			embedded = true
			break
		}
	}
	if allowed == nil && !embedded {
		return table
	}

	out := &domain.Table{
		Name:     table.Name,
		Template: table.Template,
		Headers:  make(map[string]domain.Header),
		Rows:     make([]domain.Row, len(table.Rows)),
	}
	for _, c := range table.Columns {
		if _, ok := allowed[c]; allowed != nil && !ok {
			continue
		}
		out.Columns = append(out.Columns, c)
		if h, ok := table.Headers[c]; ok {
			out.Headers[c] = h
		}
	}

	for i, row := range table.Rows {
		r := make(domain.Row, len(out.Columns))
		for _, c := range out.Columns {
			v, ok := row[c]
			if !ok {
				continue
			}
			if tplID, ok := out.Headers[c].Type.TemplateID(); ok {
				v = filterEmbedded(reg, tplID, v, readerWorkflow, 0)
			}
			r[c] = v
		}
		out.Rows[i] = r
	}
	return out
}

// maxEmbedDepth ограничивает вложенность встроенных шаблонов.
const maxEmbedDepth = 32

// filterEmbedded фильтрует значение колонки, типизированной шаблоном.
// Значение — объект columnID → значение, либо список таких объектов.
func filterEmbedded(reg Registry, templateID string, value any, readerWorkflow string, depth int) any {
	if depth >= maxEmbedDepth {
		return value
	}
	tpl, ok := lookupTemplate(reg, templateID)
	if !ok {
		return value
	}

	switch v := value.(type) {
	case map[string]any:
		return filterObject(reg, tpl, v, readerWorkflow, depth+1)
	case domain.Row:
		return domain.Row(filterObject(reg, tpl, v, readerWorkflow, depth+1))
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = filterEmbedded(reg, templateID, item, readerWorkflow, depth+1)
		}
		return out
	default:
		return value
	}
}

func filterObject(reg Registry, tpl *domain.Template, obj map[string]any, readerWorkflow string, depth int) map[string]any {
	allowed := visibleSet(tpl, readerWorkflow)

	out := make(map[string]any, len(obj))
	for k, v := range obj {
		if _, ok := allowed[k]; allowed != nil && !ok {
			continue
		}
		if h, ok := templateHeader(tpl, k); ok {
			if nested, ok := h.Type.TemplateID(); ok {
				v = filterEmbedded(reg, nested, v, readerWorkflow, depth)
			}
		}
		out[k] = v
	}
	return out
}

func templateHeader(tpl *domain.Template, column string) (domain.Header, bool) {
	if h, ok := tpl.Signature.Visible.Headers[column]; ok {
		return h, true
	}
	h, ok := tpl.Signature.Hidden.Headers[column]
	return h, ok
}

// allowedSet возвращает visible колонки шаблона для читателя вне
// владельца. nil означает отсутствие ограничений.
func allowedSet(reg Registry, templateID, readerWorkflow string) map[string]struct{} {
	tpl, ok := lookupTemplate(reg, templateID)
	if !ok {
		return nil
	}
	return visibleSet(tpl, readerWorkflow)
}

func visibleSet(tpl *domain.Template, readerWorkflow string) map[string]struct{} {
	if readerWorkflow == tpl.Workflow {
		return nil
	}
	set := make(map[string]struct{}, len(tpl.Signature.Visible.Columns))
	for _, c := range tpl.Signature.Visible.Columns {
		set[c] = struct{}{}
	}
	return set
}

func lookupTemplate(reg Registry, templateID string) (*domain.Template, bool) {
	if reg == nil || templateID == "" {
		return nil, false
	}
	tpl, ok := reg.Template(templateID)
	if !ok || tpl == nil {
		return nil, false
	}
	return tpl, true
}
