package engine

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/shaiso/tableflow/internal/domain"
)

func TestBind(t *testing.T) {
	sig := Signature{ID: "s", Main: "s", Inputs: []string{"t1", "t2"}, Outputs: []string{"o1"}}

	tests := []struct {
		name       string
		callerIn   []string
		callerOut  []string
		wantIn     []Pair
		wantOut    []Pair
		extraIn    []string
		extraOut   []string
		unboundIn  []string
		unboundOut []string
	}{
		{
			name:      "exact",
			callerIn:  []string{"a", "b"},
			callerOut: []string{"x"},
			wantIn:    []Pair{{"a", "t1"}, {"b", "t2"}},
			wantOut:   []Pair{{"x", "o1"}},
		},
		{
			name:      "missing argument",
			callerIn:  []string{"a", ""},
			callerOut: []string{"x"},
			wantIn:    []Pair{{"a", "t1"}, {"", "t2"}},
			wantOut:   []Pair{{"x", "o1"}},
			unboundIn: []string{"t2"},
		},
		{
			name:      "fewer arguments",
			callerIn:  []string{"a"},
			callerOut: []string{"x"},
			wantIn:    []Pair{{"a", "t1"}},
			wantOut:   []Pair{{"x", "o1"}},
			unboundIn: []string{"t2"},
		},
		{
			name:      "more arguments",
			callerIn:  []string{"a", "b", "c"},
			callerOut: []string{"x", "y"},
			wantIn:    []Pair{{"a", "t1"}, {"b", "t2"}},
			wantOut:   []Pair{{"x", "o1"}},
			extraIn:   []string{"c"},
			extraOut:  []string{"y"},
		},
		{
			name:       "no arguments",
			wantIn:     []Pair{},
			wantOut:    []Pair{},
			unboundIn:  []string{"t1", "t2"},
			unboundOut: []string{"o1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Bind(tt.callerIn, tt.callerOut, sig)

			if diff := cmp.Diff(tt.wantIn, b.Inputs); diff != "" {
				t.Errorf("Inputs (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantOut, b.Outputs); diff != "" {
				t.Errorf("Outputs (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.extraIn, b.ExtraCallerInputs); diff != "" {
				t.Errorf("ExtraCallerInputs (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.extraOut, b.ExtraCallerOutputs); diff != "" {
				t.Errorf("ExtraCallerOutputs (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.unboundIn, b.UnboundInputs); diff != "" {
				t.Errorf("UnboundInputs (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.unboundOut, b.UnboundOutputs); diff != "" {
				t.Errorf("UnboundOutputs (-want +got):\n%s", diff)
			}
			if n := min(len(tt.callerIn), len(sig.Inputs)); len(b.Inputs) != n {
				t.Errorf("len(Inputs) = %d, want min(m, n) = %d", len(b.Inputs), n)
			}
		})
	}
}

func TestResolveSubflow(t *testing.T) {
	reg := loadRegistry(t, "hello_math.json")
	flow, _ := reg.Flow("a")

	t.Run("one in one out called with two", func(t *testing.T) {
		b, ok := ResolveSubflow(flow, &domain.CallValue{ID: "a2", Inputs: []string{"v7", "v2"}, Outputs: []string{"v9"}})
		if !ok {
			t.Fatal("a2 did not resolve")
		}
		if diff := cmp.Diff([]Pair{{"v7", "a2v3"}}, b.Inputs); diff != "" {
			t.Errorf("Inputs (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"v2"}, b.ExtraCallerInputs); diff != "" {
			t.Errorf("ExtraCallerInputs (-want +got):\n%s", diff)
		}
	})

	t.Run("unknown subflow", func(t *testing.T) {
		if _, ok := ResolveSubflow(flow, &domain.CallValue{ID: "zz"}); ok {
			t.Error("unknown subflow resolved")
		}
	})

	t.Run("function", func(t *testing.T) {
		b, ok := ResolveFunction(reg, &domain.CallValue{ID: "b", Inputs: []string{"v4", ""}, Outputs: []string{"v6"}})
		if !ok {
			t.Fatal("b did not resolve")
		}
		if diff := cmp.Diff([]string{"b1v3"}, b.UnboundInputs); diff != "" {
			t.Errorf("UnboundInputs (-want +got):\n%s", diff)
		}
	})
}

func TestRebind(t *testing.T) {
	src := &domain.Variable{
		ID:   "src",
		Type: domain.VariableTable,
		Value: &domain.Table{
			Name:    "Source",
			Columns: []string{"s1", "s2"},
			Headers: map[string]domain.Header{
				"s1": {ID: "s1", Name: "A", Type: domain.TypeString},
				"s2": {ID: "s2", Name: "B", Type: domain.TypeString},
			},
			Rows: []domain.Row{{"s1": "7", "s2": "x"}, {"s1": "8", "s2": "y"}},
		},
	}

	t.Run("positional coercion", func(t *testing.T) {
		dst := numberTable("dst", "Target", "d1", "Value")
		got := rebind("dst", src, dst)

		if got.ID != "dst" || got.Value.Name != "Target" {
			t.Errorf("got %s %q, want dst \"Target\"", got.ID, got.Value.Name)
		}
		want := []domain.Row{{"d1": float64(7)}, {"d1": float64(8)}}
		if diff := cmp.Diff(want, got.Value.Rows); diff != "" {
			t.Errorf("rows (-want +got):\n%s", diff)
		}
	})

	t.Run("row target keeps one row", func(t *testing.T) {
		dst := numberTable("dst", "Target", "d1", "Value", float64(0))
		dst.Type = domain.VariableRow
		got := rebind("dst", src, dst)
		if err := got.CheckShape(); err != nil {
			t.Errorf("CheckShape: %v", err)
		}
	})

	t.Run("signature target takes source type", func(t *testing.T) {
		dst := numberTable("dst", "Target", "d1", "Value")
		dst.Type = domain.VariableSignature
		got := rebind("dst", src, dst)
		if got.Type != domain.VariableTable {
			t.Errorf("Type = %s, want table", got.Type)
		}
	})

	t.Run("no target shape", func(t *testing.T) {
		got := rebind("copy", src, nil)
		if got.ID != "copy" || len(got.Value.Rows) != 2 {
			t.Errorf("got %s with %d rows", got.ID, len(got.Value.Rows))
		}
		got.Value.Rows[0]["s1"] = "changed"
		if src.Value.Rows[0]["s1"] != "7" {
			t.Error("rebind aliased source rows")
		}
	})
}
