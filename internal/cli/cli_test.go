package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/shaiso/tableflow/internal/domain"
)

// fakeAPI записывает запросы и отвечает заранее заданными телами.
type fakeAPI struct {
	mu       sync.Mutex
	requests []string
	bodies   map[string][]byte
}

func newFakeAPI(t *testing.T, routes map[string]func(w http.ResponseWriter, r *http.Request)) (*fakeAPI, *Client) {
	t.Helper()
	api := &fakeAPI{bodies: make(map[string][]byte)}

	mux := http.NewServeMux()
	for pattern, h := range routes {
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			var buf bytes.Buffer
			buf.ReadFrom(r.Body)
			key := r.Method + " " + r.URL.Path
			api.mu.Lock()
			api.requests = append(api.requests, key)
			api.bodies[key] = buf.Bytes()
			api.mu.Unlock()
			h(w, r)
		})
	}

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return api, NewClient(srv.URL)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func data(v any) map[string]any { return map[string]any{"data": v} }

func testOutput(jsonMode bool) (*Output, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	return newOutputTo(jsonMode, &stdout, &stderr), &stdout, &stderr
}

func TestClient_ListFlows(t *testing.T) {
	_, client := newFakeAPI(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /api/v1/flows": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"data":  []FlowSummary{{ID: "a", Name: "Hello, Math!", Main: "a1", Subflows: []string{"a1"}}},
				"total": 1,
			})
		},
	})

	flows, err := client.ListFlows()
	if err != nil {
		t.Fatalf("ListFlows: %v", err)
	}
	want := []FlowSummary{{ID: "a", Name: "Hello, Math!", Main: "a1", Subflows: []string{"a1"}}}
	if diff := cmp.Diff(want, flows); diff != "" {
		t.Errorf("flows mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_APIError(t *testing.T) {
	_, client := newFakeAPI(t, map[string]func(http.ResponseWriter, *http.Request){
		"PUT /api/v1/flows/{id}": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": map[string]any{
				"code":    "VALIDATION_FAILED",
				"message": "flow is invalid",
				"details": []string{"main subflow not found"},
			}})
		},
		"DELETE /api/v1/sessions/{id}": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
	})

	_, err := client.PutFlow("", &domain.Flow{ID: "x"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	want := &APIError{
		Status:  http.StatusUnprocessableEntity,
		Code:    "VALIDATION_FAILED",
		Message: "flow is invalid",
		Details: []string{"main subflow not found"},
	}
	if diff := cmp.Diff(want, apiErr); diff != "" {
		t.Errorf("APIError mismatch (-want +got):\n%s", diff)
	}

	err = client.CloseSession("s1")
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadGateway {
		t.Fatalf("err = %v, want HTTP 502", err)
	}
	if got := apiErr.Error(); got != "API error: HTTP 502" {
		t.Errorf("Error() = %q", got)
	}
}

func TestPushOrder(t *testing.T) {
	flows := map[string]*domain.Flow{
		"a": {ID: "a", Flows: []string{"c", "b"}},
		"b": {ID: "b", Flows: []string{"c"}},
		"c": {ID: "c"},
		"d": {ID: "d", Flows: []string{"external"}},
	}
	if diff := cmp.Diff([]string{"c", "b", "a", "d"}, pushOrder(flows)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	cyclic := map[string]*domain.Flow{
		"x": {ID: "x", Flows: []string{"y"}},
		"y": {ID: "y", Flows: []string{"x"}},
	}
	if got := pushOrder(cyclic); len(got) != 2 {
		t.Errorf("cyclic order = %v, want both flows", got)
	}
}

func TestFlowPush(t *testing.T) {
	ok := func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, data(map[string]any{}))
	}
	api, client := newFakeAPI(t, map[string]func(http.ResponseWriter, *http.Request){
		"PUT /api/v1/flows/{id}":     ok,
		"PUT /api/v1/workflows/{id}": ok,
		"PUT /api/v1/templates/{id}": ok,
	})

	path := filepath.Join(t.TempDir(), "doc.yaml")
	doc := `
workflows:
  w1:
    name: Budget
templates:
  t1:
    workflow: w1
    name: Rates
flows:
  a:
    main: a1
    flows: [b]
  b:
    main: b1
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, stderr := testOutput(false)
	cmd := NewFlowCmd(func() *Client { return client }, func() *Output { return out })
	cmd.SetArgs([]string{"push", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("push: %v", err)
	}

	want := []string{
		"PUT /api/v1/workflows/w1",
		"PUT /api/v1/templates/t1",
		"PUT /api/v1/flows/b",
		"PUT /api/v1/flows/a",
	}
	if diff := cmp.Diff(want, api.requests); diff != "" {
		t.Errorf("requests mismatch (-want +got):\n%s", diff)
	}

	var body struct {
		Flow *domain.Flow `json:"flow"`
	}
	if err := json.Unmarshal(api.bodies["PUT /api/v1/flows/a"], &body); err != nil {
		t.Fatal(err)
	}
	if body.Flow == nil || body.Flow.ID != "a" || body.Flow.Main != "a1" {
		t.Errorf("flow body = %+v", body.Flow)
	}
	if !strings.Contains(stderr.String(), "Flow pushed: a") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestFlowPush_PrintsDetails(t *testing.T) {
	_, client := newFakeAPI(t, map[string]func(http.ResponseWriter, *http.Request){
		"PUT /api/v1/flows/{id}": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": map[string]any{
				"code":    "VALIDATION_FAILED",
				"message": "flow is invalid",
				"details": []string{"flow a: main subflow \"zz\" not found"},
			}})
		},
	})

	path := filepath.Join(t.TempDir(), "doc.json")
	if err := os.WriteFile(path, []byte(`{"flows":{"a":{"main":"zz"}}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, stderr := testOutput(false)
	cmd := NewFlowCmd(func() *Client { return client }, func() *Output { return out })
	cmd.SetArgs([]string{"push", path})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	err := cmd.Execute()
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if !strings.Contains(stderr.String(), `main subflow "zz" not found`) {
		t.Errorf("stderr = %q, want details", stderr.String())
	}
}

func TestSessionRun(t *testing.T) {
	api, client := newFakeAPI(t, map[string]func(http.ResponseWriter, *http.Request){
		"POST /api/v1/sessions/{id}/run": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, data(RunResponse{
				SessionID: "s1",
				FlowID:    "a",
				Pass:      PassResponse{SubflowID: "a1", Evaluated: []string{"e3", "e5"}, Written: []string{"v4"}},
				Errors:    []string{"element e9: division by zero"},
				Variables: map[string]*domain.Variable{
					"v4": {ID: "v4", Type: domain.VariableTable, Value: &domain.Table{
						Name: "Output", Columns: []string{"v4h1"}, Rows: []domain.Row{{"v4h1": 16.0}},
					}},
				},
			}))
		},
	})

	setPath := filepath.Join(t.TempDir(), "set.yaml")
	set := `
- id: v2
  type: table
  value:
    name: Input Table
    columns: [v2h1]
    headers: {v2h1: {id: v2h1, name: Value, type: Number}}
    rows: [{v2h1: -4}]
`
	if err := os.WriteFile(setPath, []byte(set), 0o644); err != nil {
		t.Fatal(err)
	}

	out, stdout, stderr := testOutput(false)
	cmd := NewSessionCmd(func() *Client { return client }, func() *Output { return out })
	cmd.SetArgs([]string{"run", "s1", "--set", setPath, "--changed", "v2"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("run: %v", err)
	}

	var req RunRequest
	if err := json.Unmarshal(api.bodies["POST /api/v1/sessions/s1/run"], &req); err != nil {
		t.Fatal(err)
	}
	if len(req.Set) != 1 || req.Set[0].ID != "v2" || req.Set[0].Value.Rows[0]["v2h1"] != -4.0 {
		t.Errorf("set = %+v", req.Set)
	}
	if diff := cmp.Diff([]string{"v2"}, req.Changed); diff != "" {
		t.Errorf("changed mismatch (-want +got):\n%s", diff)
	}

	if !strings.Contains(stdout.String(), "v4") || !strings.Contains(stdout.String(), "true") {
		t.Errorf("stdout = %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "Error: element e9: division by zero") {
		t.Errorf("stderr = %q", stderr.String())
	}
	if !strings.Contains(stderr.String(), "Evaluated 2") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestValidateDocument(t *testing.T) {
	doc, err := domain.LoadDocumentFile("../engine/testdata/hello_math.json")
	if err != nil {
		t.Fatalf("LoadDocumentFile: %v", err)
	}

	reports, err := ValidateDocument(doc)
	if err != nil {
		t.Fatalf("ValidateDocument: %v", err)
	}
	want := []ValidationReport{{FlowID: "a"}, {FlowID: "b"}}
	if diff := cmp.Diff(want, reports); diff != "" {
		t.Errorf("reports mismatch (-want +got):\n%s", diff)
	}

	broken := &domain.Document{Flows: map[string]*domain.Flow{
		"x": {ID: "x", Main: "nope", Flows: []string{"y"}},
	}}
	reports, err = ValidateDocument(broken)
	if err != nil {
		t.Fatalf("ValidateDocument: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("reports = %+v, want flow report and lock report", reports)
	}
	if reports[0].FlowID != "x" || len(reports[0].Problems) == 0 {
		t.Errorf("flow report = %+v", reports[0])
	}
	if reports[1].FlowID != "" || len(reports[1].Problems) != 2 {
		t.Errorf("lock report = %+v, want unknown dependency and missing lock", reports[1])
	}
}

func TestValidateCmd_Fails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	if err := os.WriteFile(path, []byte(`{"flows":{"x":{"main":"nope"}}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	out, stdout, _ := testOutput(true)
	cmd := NewValidateCmd(func() *Output { return out })
	cmd.SetArgs([]string{path})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	if err := cmd.Execute(); !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("err = %v, want ErrInvalidDocument", err)
	}

	var reports []ValidationReport
	if err := json.Unmarshal(stdout.Bytes(), &reports); err != nil {
		t.Fatalf("stdout is not JSON: %v", err)
	}
	if len(reports) != 1 || reports[0].FlowID != "x" {
		t.Errorf("reports = %+v", reports)
	}
}

func TestOutput_Reports(t *testing.T) {
	out, stdout, stderr := testOutput(false)

	bad := out.Reports([]ValidationReport{
		{FlowID: "a"},
		{FlowID: "b", Problems: []string{"element e9: unknown table"}},
		{Problems: []string{"workflow w1: missing lock"}},
	})
	if bad != 2 {
		t.Errorf("bad = %d, want 2", bad)
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("stdout = %q, want header, underline and 3 rows", stdout.String())
	}
	if !strings.HasPrefix(lines[4], "-") {
		t.Errorf("empty flow id rendered as %q, want dash", lines[4])
	}
	want := "  b: element e9: unknown table\n  workflow w1: missing lock\n"
	if stderr.String() != want {
		t.Errorf("stderr = %q, want %q", stderr.String(), want)
	}
}
