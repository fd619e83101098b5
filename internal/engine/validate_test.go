package engine

import (
	"errors"
	"testing"

	"github.com/shaiso/tableflow/internal/domain"
)

func TestValidate_ReferenceDocument(t *testing.T) {
	reg := loadRegistry(t, "hello_math.json")

	for _, id := range reg.FlowIDs() {
		flow, _ := reg.Flow(id)
		if err := Validate(reg, flow); err != nil {
			t.Errorf("flow %s: %v", id, err)
		}
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *domain.Flow)
		wantErr error
	}{
		{
			name:    "missing main",
			mutate:  func(f *domain.Flow) { f.Main = "nope" },
			wantErr: ErrMainNotFound,
		},
		{
			name: "subflow key mismatch",
			mutate: func(f *domain.Flow) {
				f.Subflows["other"] = f.Subflows["f1"]
			},
			wantErr: ErrSubflowIDMismatch,
		},
		{
			name: "input element of wrong kind",
			mutate: func(f *domain.Flow) {
				f.Subflows["f1"].Input = "e2"
			},
			wantErr: ErrElementKind,
		},
		{
			name: "order references unknown element",
			mutate: func(f *domain.Flow) {
				sf := f.Subflows["f1"]
				sf.Order = append(sf.Order, "ghost")
			},
			wantErr: ErrElementNotFound,
		},
		{
			name: "undeclared variable",
			mutate: func(f *domain.Flow) {
				f.Subflows["f1"].Elements["e2"].Value = &domain.TableRef{ID: "nowhere"}
			},
			wantErr: ErrUndeclaredVariable,
		},
		{
			name: "row variable with two rows",
			mutate: func(f *domain.Flow) {
				v := f.Subflows["f1"].Variables["x"]
				v.Type = domain.VariableRow
				v.Value.Rows = append(v.Value.Rows, domain.Row{"c": float64(2)})
			},
			wantErr: ErrBadVariableShape,
		},
		{
			name: "unknown parent",
			mutate: func(f *domain.Flow) {
				f.Subflows["f1"].Parent = "ghost"
			},
			wantErr: ErrParentNotFound,
		},
		{
			name: "unknown subflow target",
			mutate: func(f *domain.Flow) {
				f.Subflows["f1"].Elements["e2"] = &domain.Element{ID: "e2", Type: domain.ElementSubflow,
					Value: &domain.CallValue{ID: "ghost", Inputs: []string{"x"}, Outputs: []string{"y"}}}
			},
			wantErr: ErrSubflowNotFound,
		},
		{
			name: "unknown function target",
			mutate: func(f *domain.Flow) {
				f.Subflows["f1"].Elements["e2"] = &domain.Element{ID: "e2", Type: domain.ElementFunction,
					Value: &domain.CallValue{ID: "ghost", Inputs: []string{"x"}, Outputs: []string{"y"}}}
			},
			wantErr: ErrFlowNotFound,
		},
		{
			name: "unknown element type",
			mutate: func(f *domain.Flow) {
				f.Subflows["f1"].Elements["e2"] = &domain.Element{ID: "e2", Type: "widget", Value: &domain.UnknownValue{}}
			},
			wantErr: ErrUnknownElementType,
		},
		{
			name: "decision with bad expression",
			mutate: func(f *domain.Flow) {
				f.Subflows["f1"].Elements["e2"] = &domain.Element{ID: "e2", Type: domain.ElementDecision, Value: &domain.DecisionTable{
					Inputs:  []string{"x"},
					Outputs: []string{"y"},
					Columns: domain.DecisionColumns{Inputs: []string{"i"}, Outputs: []string{"o"}},
					Headers: domain.DecisionHeaders{
						Inputs:  map[string]domain.InputHeader{"i": {ID: "i", Table: "x", Column: "c"}},
						Outputs: map[string]domain.OutputHeader{"o": {ID: "o", Table: "y", Column: "c"}},
					},
					Rows: []domain.DecisionRow{{
						Inputs:  map[string]string{"i": "-"},
						Outputs: map[string]string{"o": "1 +"},
					}},
				}}
			},
			wantErr: ErrBadDecision,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := validFlow()
			tt.mutate(flow)
			reg := staticRegistry{flows: map[string]*domain.Flow{flow.ID: flow}}

			err := Validate(reg, flow)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_NilAndEmpty(t *testing.T) {
	if err := Validate(nil, nil); !errors.Is(err, ErrNilFlow) {
		t.Errorf("nil flow: %v", err)
	}
	if err := Validate(nil, &domain.Flow{}); !errors.Is(err, ErrEmptyFlowID) {
		t.Errorf("empty id: %v", err)
	}
	if err := Validate(nil, validFlow()); err != nil {
		t.Errorf("valid flow without registry: %v", err)
	}
}

func TestValidate_HiddenTemplate(t *testing.T) {
	flow := validFlow()
	flow.Subflows["f1"].Variables["x"].Value.Template = "secret"

	reg := staticRegistry{
		flows:     map[string]*domain.Flow{flow.ID: flow},
		templates: map[string]*domain.Template{"secret": {ID: "secret", Workflow: "vault"}},
		owners:    map[string]string{flow.ID: "public"},
	}
	if err := Validate(reg, flow); !errors.Is(err, ErrTemplateNotVisible) {
		t.Errorf("foreign workflow: %v, want ErrTemplateNotVisible", err)
	}

	reg.owners[flow.ID] = "vault"
	if err := Validate(reg, flow); err != nil {
		t.Errorf("owner workflow: %v", err)
	}
}

// validFlow — минимальный корректный flow: x → table → y.
func validFlow() *domain.Flow {
	return singleSubflowFlow("f", []string{"x"}, []string{"y"},
		[]*domain.Element{{ID: "e2", Type: domain.ElementTable, Value: &domain.TableRef{ID: "x"}}},
		numberTable("x", "X", "c", "C", float64(1)),
		numberTable("y", "Y", "c", "C", float64(0)),
	)
}
