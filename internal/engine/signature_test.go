package engine

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/shaiso/tableflow/internal/domain"
)

func TestDeriveFlowSignature(t *testing.T) {
	reg := loadRegistry(t, "hello_math.json")

	tests := []struct {
		name   string
		flowID string
		want   Signature
		wantOK bool
	}{
		{
			name:   "hello math",
			flowID: "a",
			want:   Signature{ID: "a", Main: "a1", Inputs: []string{"v2", "v7"}, Outputs: []string{"v4", "v10"}},
			wantOK: true,
		},
		{
			name:   "sum",
			flowID: "b",
			want:   Signature{ID: "b", Main: "b1", Inputs: []string{"b1v2", "b1v3"}, Outputs: []string{"b1v5"}},
			wantOK: true,
		},
		{name: "unknown flow", flowID: "zzz"},
		{name: "empty id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DeriveFlowSignature(reg, tt.flowID)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("signature mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// Сигнатура flow всегда совпадает со списками input/output главного Subflow.
func TestDeriveFlowSignature_MatchesMain(t *testing.T) {
	reg := loadRegistry(t, "hello_math.json")

	for _, id := range reg.FlowIDs() {
		flow, _ := reg.Flow(id)
		main, _ := flow.MainSubflow()
		in, _ := main.Element(main.Input)
		out, _ := main.Element(main.Output)

		sig, ok := DeriveFlowSignature(reg, id)
		if !ok {
			t.Fatalf("flow %s: no signature", id)
		}
		if diff := cmp.Diff(in.Value.(*domain.InputValue).Inputs, sig.Inputs); diff != "" {
			t.Errorf("flow %s inputs (-main +sig):\n%s", id, diff)
		}
		if diff := cmp.Diff(out.Value.(*domain.OutputValue).Outputs, sig.Outputs); diff != "" {
			t.Errorf("flow %s outputs (-main +sig):\n%s", id, diff)
		}
	}
}

func TestDeriveSubflowSignature_Invalid(t *testing.T) {
	tests := []struct {
		name string
		sf   *domain.Subflow
	}{
		{name: "nil"},
		{
			name: "missing input element",
			sf: &domain.Subflow{ID: "s", Input: "e0", Output: "e1", Elements: map[string]*domain.Element{
				"e1": {ID: "e1", Type: domain.ElementOutput, Value: &domain.OutputValue{Outputs: []string{"y"}}},
			}},
		},
		{
			name: "empty inputs",
			sf: &domain.Subflow{ID: "s", Input: "e0", Output: "e1", Elements: map[string]*domain.Element{
				"e0": {ID: "e0", Type: domain.ElementInput, Value: &domain.InputValue{}},
				"e1": {ID: "e1", Type: domain.ElementOutput, Value: &domain.OutputValue{Outputs: []string{"y"}}},
			}},
		},
		{
			name: "output element of wrong kind",
			sf: &domain.Subflow{ID: "s", Input: "e0", Output: "e1", Elements: map[string]*domain.Element{
				"e0": {ID: "e0", Type: domain.ElementInput, Value: &domain.InputValue{Inputs: []string{"x"}}},
				"e1": {ID: "e1", Type: domain.ElementTable, Value: &domain.TableRef{ID: "y"}},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if sig, ok := DeriveSubflowSignature(tt.sf); ok {
				t.Errorf("got signature %+v, want none", sig)
			}
		})
	}
}
