package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/shaiso/tableflow/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHelloMath(t *testing.T) *Evaluator {
	t.Helper()

	ev, err := NewEvaluator(Config{
		Registry: loadRegistry(t, "hello_math.json"),
		FlowID:   "a",
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	return ev
}

func TestEvaluator_FullPass(t *testing.T) {
	ev := newHelloMath(t)

	res, err := ev.Pass(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("Pass: %v", err)
	}

	wantOrder := []string{"e0", "e3", "e5", "e8", "e11", "e13", "e1"}
	if diff := cmp.Diff(wantOrder, res.Evaluated); diff != "" {
		t.Errorf("Evaluated (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"v4", "v6", "v9"}, res.Written); diff != "" {
		t.Errorf("Written (-want +got):\n%s", diff)
	}
	if res.Calls != 2 {
		t.Errorf("Calls = %d, want 2", res.Calls)
	}

	vars, err := ev.Variables("a1")
	if err != nil {
		t.Fatalf("Variables: %v", err)
	}
	if got := cell(t, vars, "v4", "v4h1", 0); got != float64(25) {
		t.Errorf("v4 = %v, want 25", got)
	}
	if got := cell(t, vars, "v9", "v9h1", 0); got != float64(42) {
		t.Errorf("v9 = %v, want 42", got)
	}

	// Второй аргумент функции b не задан: правая таблица отсутствует,
	// выход остаётся нулевым, а ошибка локальна для e5.
	if got := cell(t, vars, "v6", "v6h1", 0); got != float64(0) {
		t.Errorf("v6 = %v, want 0", got)
	}
	if len(res.Errors) == 0 {
		t.Fatal("expected local errors from function b")
	}
	for _, err := range res.Errors {
		var elErr *ElementError
		if !errors.As(err, &elErr) || elErr.ElementID != "e5" {
			t.Errorf("error not attributed to e5: %v", err)
		}
		if !errors.Is(err, ErrTableNotFound) {
			t.Errorf("error = %v, want ErrTableNotFound", err)
		}
	}
}

func TestEvaluator_DirtyPass(t *testing.T) {
	ev := newHelloMath(t)
	ctx := context.Background()

	if _, err := ev.Pass(ctx, "a1", nil); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if err := ev.Set("a1", numberTable("v2", "Input Table", "v2h1", "Value", float64(0))); err != nil {
		t.Fatalf("Set: %v", err)
	}

	res, err := ev.Pass(ctx, "a1", []string{"v2"})
	if err != nil {
		t.Fatalf("dirty pass: %v", err)
	}
	if diff := cmp.Diff([]string{"e3", "e5"}, res.Evaluated); diff != "" {
		t.Errorf("Evaluated (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"e0", "e8", "e11", "e13", "e1"}, res.Skipped); diff != "" {
		t.Errorf("Skipped (-want +got):\n%s", diff)
	}

	// Ноль уходит в Decision Subflow a3, который вычитает единицу.
	vars, _ := ev.Variables("a1")
	if got := cell(t, vars, "v4", "v4h1", 0); got != float64(-1) {
		t.Errorf("v4 = %v, want -1", got)
	}
	if got := cell(t, vars, "v9", "v9h1", 0); got != float64(42) {
		t.Errorf("v9 = %v, want 42 from the first pass", got)
	}
}

func TestEvaluator_NoChanges(t *testing.T) {
	ev := newHelloMath(t)

	res, err := ev.Pass(context.Background(), "a1", []string{})
	if err != nil {
		t.Fatalf("Pass: %v", err)
	}
	if len(res.Evaluated) != 0 {
		t.Errorf("Evaluated = %v, want none", res.Evaluated)
	}
	if len(res.Skipped) != 7 {
		t.Errorf("Skipped = %v, want all 7 elements", res.Skipped)
	}
}

func TestEvaluator_Set(t *testing.T) {
	ev := newHelloMath(t)

	tests := []struct {
		name    string
		sub     string
		v       *domain.Variable
		wantErr error
	}{
		{
			name:    "undeclared",
			sub:     "a1",
			v:       numberTable("zz", "Nope", "c", "C", float64(1)),
			wantErr: ErrUndeclaredVariable,
		},
		{
			name: "row with two rows",
			sub:  "a1",
			v: func() *domain.Variable {
				v := numberTable("v10", "Locked Row", "v10h1", "Pi", float64(1), float64(2))
				v.Type = domain.VariableRow
				return v
			}(),
			wantErr: ErrBadVariableShape,
		},
		{
			name:    "unknown subflow",
			sub:     "zz",
			v:       numberTable("v2", "Input Table", "v2h1", "Value", float64(1)),
			wantErr: ErrSubflowNotFound,
		},
		{
			name:    "nil variable",
			sub:     "a1",
			wantErr: ErrUndeclaredVariable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ev.Set(tt.sub, tt.v); !errors.Is(err, tt.wantErr) {
				t.Errorf("Set() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEvaluator_SetAllIsAtomic(t *testing.T) {
	ev := newHelloMath(t)

	before, err := ev.Variables("a1")
	if err != nil {
		t.Fatalf("Variables: %v", err)
	}
	want := before["v2"].Value.Rows[0]["v2h1"]

	err = ev.SetAll("a1", []*domain.Variable{
		numberTable("v2", "Input Table", "v2h1", "Value", float64(3)),
		numberTable("nope", "Nope", "c", "C", float64(1)),
	})
	if !errors.Is(err, ErrUndeclaredVariable) {
		t.Fatalf("SetAll() = %v, want ErrUndeclaredVariable", err)
	}

	after, err := ev.Variables("a1")
	if err != nil {
		t.Fatalf("Variables: %v", err)
	}
	if got := after["v2"].Value.Rows[0]["v2h1"]; got != want {
		t.Errorf("v2 = %v after rejected SetAll, want %v", got, want)
	}
}

func TestEvaluator_NestedSubflowSeesParent(t *testing.T) {
	ev := newHelloMath(t)

	res, err := ev.Pass(context.Background(), "a2", nil)
	if err != nil {
		t.Fatalf("Pass(a2): %v", err)
	}
	if len(res.Errors) != 0 {
		t.Errorf("unexpected errors: %v", res.Errors)
	}
	vars, err := ev.Variables("a2")
	if err != nil {
		t.Fatalf("Variables(a2): %v", err)
	}
	if got := cell(t, vars, "a2v4", "a2v4h1", 0); got != float64(42) {
		t.Errorf("a2v4 = %v, want 42", got)
	}
}

func TestEvaluator_InertElement(t *testing.T) {
	flow := singleSubflowFlow("f", []string{"x"}, []string{"x"},
		[]*domain.Element{
			{ID: "e2", Type: "sparkline", Value: &domain.UnknownValue{}},
			{ID: "e3", Type: domain.ElementTable, Value: &domain.TableRef{ID: "x"}},
		},
		numberTable("x", "X", "c", "C", float64(1)),
	)
	reg := staticRegistry{flows: map[string]*domain.Flow{"f": flow}}

	ev, err := NewEvaluator(Config{Registry: reg, FlowID: "f", Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	res, err := ev.Pass(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("Pass: %v", err)
	}
	if diff := cmp.Diff([]string{"e2"}, res.Inert); diff != "" {
		t.Errorf("Inert (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"e0", "e3", "e1"}, res.Evaluated); diff != "" {
		t.Errorf("Evaluated (-want +got):\n%s", diff)
	}
	if res.Err() != nil {
		t.Errorf("inert element produced error: %v", res.Err())
	}
}

func TestEvaluator_CallDepth(t *testing.T) {
	flow := singleSubflowFlow("loop", []string{"x"}, []string{"y"},
		[]*domain.Element{
			{ID: "e2", Type: domain.ElementSubflow, Value: &domain.CallValue{ID: "loop1", Inputs: []string{"x"}, Outputs: []string{"y"}}},
		},
		numberTable("x", "X", "c", "C", float64(1)),
		numberTable("y", "Y", "c", "C", float64(0)),
	)
	reg := staticRegistry{flows: map[string]*domain.Flow{"loop": flow}}

	ev, err := NewEvaluator(Config{Registry: reg, FlowID: "loop", Logger: quietLogger(), MaxCallDepth: 4})
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	res, err := ev.Pass(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("Pass: %v", err)
	}
	if !errors.Is(res.Err(), ErrCallDepth) {
		t.Errorf("Err() = %v, want ErrCallDepth", res.Err())
	}
	if res.Calls != 4 {
		t.Errorf("Calls = %d, want 4", res.Calls)
	}
}

func TestNewEvaluator_Errors(t *testing.T) {
	reg := loadRegistry(t, "hello_math.json")

	if _, err := NewEvaluator(Config{Registry: reg, FlowID: "zz"}); !errors.Is(err, ErrFlowNotFound) {
		t.Errorf("unknown flow: %v", err)
	}
	if _, err := NewEvaluator(Config{FlowID: "a"}); !errors.Is(err, ErrFlowNotFound) {
		t.Errorf("nil registry: %v", err)
	}

	broken := &domain.Flow{ID: "x", Main: "missing"}
	static := staticRegistry{flows: map[string]*domain.Flow{"x": broken}}
	if _, err := NewEvaluator(Config{Registry: static, FlowID: "x"}); !errors.Is(err, ErrMainNotFound) {
		t.Errorf("missing main: %v", err)
	}
}
