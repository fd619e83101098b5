package engine

import (
	"path/filepath"
	"testing"

	"github.com/shaiso/tableflow/internal/domain"
	"github.com/shaiso/tableflow/internal/registry"
)

// loadRegistry читает документ из testdata и строит реестр.
func loadRegistry(t *testing.T, name string) *registry.Registry {
	t.Helper()

	doc, err := domain.LoadDocumentFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("load %s: %v", name, err)
	}
	reg, err := registry.New(doc)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

// numberTable строит табличную переменную с одной числовой колонкой.
func numberTable(id, name, col, colName string, values ...any) *domain.Variable {
	rows := make([]domain.Row, len(values))
	for i, v := range values {
		rows[i] = domain.Row{col: v}
	}
	return &domain.Variable{
		ID:   id,
		Type: domain.VariableTable,
		Value: &domain.Table{
			Name:    name,
			Columns: []string{col},
			Headers: map[string]domain.Header{col: {ID: col, Name: colName, Type: domain.TypeNumber}},
			Rows:    rows,
		},
	}
}

// cell возвращает значение колонки col в строке i переменной id.
func cell(t *testing.T, vars map[string]*domain.Variable, id, col string, i int) any {
	t.Helper()

	v, ok := vars[id]
	if !ok || v.Value == nil {
		t.Fatalf("variable %s not found", id)
	}
	if i >= len(v.Value.Rows) {
		t.Fatalf("variable %s has %d rows, want row %d", id, len(v.Value.Rows), i)
	}
	return v.Value.Rows[i][col]
}

// staticRegistry — Registry поверх map для тестов без документа.
type staticRegistry struct {
	flows     map[string]*domain.Flow
	templates map[string]*domain.Template
	owners    map[string]string
}

func (r staticRegistry) Flow(id string) (*domain.Flow, bool) {
	f, ok := r.flows[id]
	return f, ok
}

func (r staticRegistry) Template(id string) (*domain.Template, bool) {
	t, ok := r.templates[id]
	return t, ok
}

func (r staticRegistry) FlowWorkflow(flowID string) string {
	return r.owners[flowID]
}

// singleSubflowFlow строит flow из одного Subflow с заданными элементами.
// Элементы input (e0) и output (e1) добавляются автоматически.
func singleSubflowFlow(id string, inputs, outputs []string, elements []*domain.Element, vars ...*domain.Variable) *domain.Flow {
	sf := &domain.Subflow{
		ID:        id + "1",
		Name:      "Main",
		Input:     "e0",
		Output:    "e1",
		Elements:  map[string]*domain.Element{},
		Variables: map[string]*domain.Variable{},
	}
	sf.Elements["e0"] = &domain.Element{ID: "e0", Type: domain.ElementInput, Value: &domain.InputValue{Inputs: inputs}}
	sf.Elements["e1"] = &domain.Element{ID: "e1", Type: domain.ElementOutput, Value: &domain.OutputValue{Outputs: outputs}}

	sf.Order = append(sf.Order, "e0")
	for _, el := range elements {
		sf.Elements[el.ID] = el
		sf.Order = append(sf.Order, el.ID)
	}
	sf.Order = append(sf.Order, "e1")

	for _, v := range vars {
		sf.Variables[v.ID] = v
		sf.Declarations = append(sf.Declarations, v.ID)
	}

	return &domain.Flow{
		ID:       id,
		Main:     sf.ID,
		Subflows: map[string]*domain.Subflow{sf.ID: sf},
	}
}
