package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mitchellh/copystructure"
)

// VariableType — тег варианта Variable.
type VariableType string

const (
	// VariableTable — таблица с произвольным числом строк.
	VariableTable VariableType = "table"

	// VariableRow — таблица ровно с одной строкой.
	VariableRow VariableType = "row"

	// VariableSignature — описание формы таблицы без строк.
	VariableSignature VariableType = "signature"
)

// IsKnown возвращает true для известных типов переменных.
func (t VariableType) IsKnown() bool {
	switch t {
	case VariableTable, VariableRow, VariableSignature:
		return true
	default:
		return false
	}
}

// Variable — именованное типизированное значение.
//
// Значения переменных никогда не изменяются на месте: мутатор
// клонирует переменную, правит клон и записывает его под тем же ID.
type Variable struct {
	ID    string       `json:"id"`
	Type  VariableType `json:"type"`
	Value *Table       `json:"value"`
}

// Clone возвращает глубокую копию переменной.
func (v *Variable) Clone() *Variable {
	if v == nil {
		return nil
	}
	return &Variable{
		ID:    v.ID,
		Type:  v.Type,
		Value: v.Value.Clone(),
	}
}

// CheckShape проверяет инвариант кардинальности для типа переменной.
func (v *Variable) CheckShape() error {
	if v == nil || v.Value == nil {
		return fmt.Errorf("variable has no value")
	}
	switch v.Type {
	case VariableRow:
		if len(v.Value.Rows) != 1 {
			return fmt.Errorf("row variable %s has %d rows, want exactly 1", v.ID, len(v.Value.Rows))
		}
	case VariableSignature:
		if len(v.Value.Rows) != 0 {
			return fmt.Errorf("signature variable %s has %d materialized rows", v.ID, len(v.Value.Rows))
		}
	case VariableTable:
	default:
		return fmt.Errorf("variable %s has unknown type %q", v.ID, v.Type)
	}
	return nil
}

// Row — одна строка таблицы: columnID → скалярное значение.
type Row map[string]any

// Header — метаданные колонки.
type Header struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Type ScalarType `json:"type"`
}

// Table — значение переменной table/row/signature.
type Table struct {
	// Name — отображаемое имя таблицы.
	Name string `json:"name"`

	// Template — ID шаблона, типизирующего таблицу (опционально).
	Template string `json:"template,omitempty"`

	// Columns — упорядоченный список ID колонок.
	Columns []string `json:"columns"`

	// Headers — метаданные колонок (columnID → Header).
	Headers map[string]Header `json:"headers"`

	// Rows — строки таблицы.
	Rows []Row `json:"rows,omitempty"`
}

// Clone возвращает глубокую копию таблицы.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	copied, err := copystructure.Copy(t)
	if err != nil {
		// copystructure не падает на map/slice/скалярах из JSON,
		// ручная копия нужна только для экзотических значений в Rows.
		return t.shallowClone()
	}
	return copied.(*Table)
}

func (t *Table) shallowClone() *Table {
	out := &Table{
		Name:     t.Name,
		Template: t.Template,
		Columns:  append([]string(nil), t.Columns...),
		Headers:  make(map[string]Header, len(t.Headers)),
		Rows:     make([]Row, len(t.Rows)),
	}
	for k, h := range t.Headers {
		out.Headers[k] = h
	}
	for i, row := range t.Rows {
		r := make(Row, len(row))
		for k, v := range row {
			r[k] = v
		}
		out.Rows[i] = r
	}
	return out
}

// Header возвращает заголовок колонки.
func (t *Table) Header(columnID string) (Header, bool) {
	if t == nil {
		return Header{}, false
	}
	h, ok := t.Headers[columnID]
	if !ok {
		for _, c := range t.Columns {
			if c == columnID {
				return Header{ID: columnID}, true
			}
		}
	}
	return h, ok
}

// ColumnIndex возвращает позицию колонки в Columns или -1.
func (t *Table) ColumnIndex(columnID string) int {
	if t == nil {
		return -1
	}
	for i, c := range t.Columns {
		if c == columnID {
			return i
		}
	}
	return -1
}

// ZeroRow возвращает строку из нулевых значений всех колонок.
func (t *Table) ZeroRow() Row {
	row := make(Row, len(t.Columns))
	for _, c := range t.Columns {
		row[c] = t.Headers[c].Type.Zero()
	}
	return row
}

// ScalarType — тип значения колонки.
//
// Кроме скаляров допускается встраивание шаблона: "template://<id>".
type ScalarType string

const (
	TypeNumber  ScalarType = "Number"
	TypeString  ScalarType = "String"
	TypeBoolean ScalarType = "Boolean"

	templateScheme = "template://"
)

// TemplateType строит тип колонки, встраивающий шаблон.
func TemplateType(templateID string) ScalarType {
	return ScalarType(templateScheme + templateID)
}

// TemplateID возвращает ID встроенного шаблона, если тип им является.
func (t ScalarType) TemplateID() (string, bool) {
	s := string(t)
	if !strings.HasPrefix(s, templateScheme) {
		return "", false
	}
	id := strings.TrimPrefix(s, templateScheme)
	return id, id != ""
}

// Zero возвращает нулевое значение типа.
func (t ScalarType) Zero() any {
	switch t {
	case TypeNumber:
		return float64(0)
	case TypeString:
		return ""
	case TypeBoolean:
		return false
	}
	if _, ok := t.TemplateID(); ok {
		return map[string]any{}
	}
	return nil
}

// Coerce приводит значение к типу колонки.
// Если привести нельзя, возвращает значение как есть и false.
func (t ScalarType) Coerce(v any) (any, bool) {
	switch t {
	case TypeNumber:
		if f, ok := ToNumber(v); ok {
			return f, true
		}
		return v, false
	case TypeString:
		switch s := v.(type) {
		case string:
			return s, true
		case nil:
			return "", true
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64), true
		default:
			return fmt.Sprint(s), true
		}
	case TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b, true
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(b))
			if err != nil {
				return v, false
			}
			return parsed, true
		}
		return v, false
	}
	return v, true
}

// ToNumber приводит скаляр к float64.
func ToNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
