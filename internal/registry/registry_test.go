package registry

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/shaiso/tableflow/internal/domain"
)

func testDocument() *domain.Document {
	return &domain.Document{
		Workflows: map[string]*domain.Workflow{
			"w1": {
				ID:   "w1",
				Name: "Finance",
				Flows: map[string]*domain.Flow{
					"ledger": {ID: "ledger", Main: "ledger1"},
				},
				Templates: map[string]*domain.Template{
					"account": {ID: "account"},
				},
				Contracts: map[string]*domain.Contract{
					"c1": {ID: "c1", Inputs: []string{"x"}, Outputs: []string{"y"}},
				},
			},
		},
		Flows: map[string]*domain.Flow{
			"a": {ID: "a", Main: "a1", Flows: []string{"b"}, Lock: map[string]domain.LockEntry{
				"b": {ID: "b", Version: "v0.0.1"},
			}},
			"b": {ID: "b", Main: "b1"},
		},
		Templates: map[string]*domain.Template{
			"public": {ID: "public", Workflow: "w2"},
		},
	}
}

func TestNew(t *testing.T) {
	r, err := New(testDocument())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if diff := cmp.Diff([]string{"a", "b", "ledger"}, r.FlowIDs()); diff != "" {
		t.Errorf("FlowIDs (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"account", "public"}, r.TemplateIDs()); diff != "" {
		t.Errorf("TemplateIDs (-want +got):\n%s", diff)
	}

	if got := r.FlowWorkflow("ledger"); got != "w1" {
		t.Errorf("FlowWorkflow(ledger) = %q, want w1", got)
	}
	if got := r.FlowWorkflow("a"); got != "" {
		t.Errorf("FlowWorkflow(a) = %q, want empty", got)
	}

	tpl, ok := r.Template("account")
	if !ok || tpl.Workflow != "w1" {
		t.Errorf("Template(account) = %+v, %v; want owner w1", tpl, ok)
	}
	if _, ok := r.Contract("c1"); !ok {
		t.Error("contract c1 not indexed")
	}

	flows, templates, workflows := r.Count()
	if flows != 3 || templates != 2 || workflows != 1 {
		t.Errorf("Count() = %d, %d, %d; want 3, 2, 1", flows, templates, workflows)
	}
}

func TestNew_DoesNotMutateDocument(t *testing.T) {
	doc := testDocument()
	if _, err := New(doc); err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := doc.Workflows["w1"].Templates["account"].Workflow; got != "" {
		t.Errorf("document template owner changed to %q", got)
	}
}

func TestNew_Duplicate(t *testing.T) {
	doc := testDocument()
	doc.Flows["ledger"] = &domain.Flow{ID: "ledger", Main: "x"}

	if _, err := New(doc); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("New() = %v, want ErrDuplicateID", err)
	}
}

func TestNew_KeyFallback(t *testing.T) {
	doc := &domain.Document{Flows: map[string]*domain.Flow{"k": {Main: "k1"}}}

	r, err := New(doc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := r.Flow("k"); !ok {
		t.Error("flow without ID not indexed by key")
	}
}

func TestRegistry_NilSafe(t *testing.T) {
	var r *Registry

	if _, ok := r.Flow("a"); ok {
		t.Error("nil registry returned a flow")
	}
	if _, ok := r.Template("a"); ok {
		t.Error("nil registry returned a template")
	}
	if got := r.FlowWorkflow("a"); got != "" {
		t.Errorf("FlowWorkflow = %q", got)
	}
	if ids := r.FlowIDs(); ids != nil {
		t.Errorf("FlowIDs = %v", ids)
	}
	if err := r.CheckLocks(); err != nil {
		t.Errorf("CheckLocks = %v", err)
	}
}

func TestCheckLocks(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(doc *domain.Document)
		wantErr error
	}{
		{name: "valid", mutate: func(*domain.Document) {}},
		{
			name:    "missing lock",
			mutate:  func(doc *domain.Document) { doc.Flows["a"].Lock = nil },
			wantErr: ErrMissingLock,
		},
		{
			name: "bad version",
			mutate: func(doc *domain.Document) {
				doc.Flows["a"].Lock["b"] = domain.LockEntry{ID: "b", Version: "latest"}
			},
			wantErr: ErrBadVersion,
		},
		{
			name:    "unknown dependency",
			mutate:  func(doc *domain.Document) { delete(doc.Flows, "b") },
			wantErr: ErrUnknownDependency,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := testDocument()
			tt.mutate(doc)
			r, err := New(doc)
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			err = r.CheckLocks()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("CheckLocks() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckLocks() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewer(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"v0.0.2", "v0.0.1", true},
		{"v0.0.1", "v0.0.2", false},
		{"1.0.0", "v0.9.9", true},
		{"garbage", "v0.0.1", false},
		{"v0.0.1", "garbage", true},
	}
	for _, tt := range tests {
		t.Run(tt.a+">"+tt.b, func(t *testing.T) {
			if got := Newer(tt.a, tt.b); got != tt.want {
				t.Errorf("Newer(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestHolder(t *testing.T) {
	h := NewHolder(nil)
	if flows, _, _ := h.Get().Count(); flows != 0 {
		t.Fatalf("initial registry has %d flows", flows)
	}

	next, err := New(testDocument())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	prev := h.Swap(next)
	if flows, _, _ := prev.Count(); flows != 0 {
		t.Errorf("Swap returned registry with %d flows", flows)
	}
	if h.Get() != next {
		t.Error("Get did not return swapped registry")
	}
}
