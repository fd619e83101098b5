package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shaiso/tableflow/internal/domain"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// FlowSummary — элемент списка flows.
type FlowSummary struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Workflow  string   `json:"workflow,omitempty"`
	Main      string   `json:"main"`
	Subflows  []string `json:"subflows"`
	UpdatedAt string   `json:"updated_at"`
}

// FlowResponse — flow целиком.
type FlowResponse struct {
	Workflow  string       `json:"workflow,omitempty"`
	Flow      *domain.Flow `json:"flow"`
	UpdatedAt string       `json:"updated_at"`
}

// SignatureResponse — сигнатура flow.
type SignatureResponse struct {
	ID      string   `json:"id"`
	Main    string   `json:"main"`
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`
}

// SessionResponse — сессия вычислителя.
type SessionResponse struct {
	SessionID  string `json:"session_id"`
	FlowID     string `json:"flow_id"`
	State      string `json:"state"`
	Validation string `json:"validation,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// PassResponse — итог прохода.
type PassResponse struct {
	SubflowID string   `json:"subflow_id"`
	Evaluated []string `json:"evaluated"`
	Skipped   []string `json:"skipped,omitempty"`
	Inert     []string `json:"inert,omitempty"`
	Written   []string `json:"written,omitempty"`
	Calls     int      `json:"calls"`
}

// RunResponse — ответ run.
type RunResponse struct {
	SessionID string                      `json:"session_id"`
	FlowID    string                      `json:"flow_id"`
	Pass      PassResponse                `json:"pass"`
	Errors    []string                    `json:"errors,omitempty"`
	Variables map[string]*domain.Variable `json:"variables"`
}

// --- Request types ---

// RunRequest — запрос run.
type RunRequest struct {
	Subflow string             `json:"subflow,omitempty"`
	Set     []*domain.Variable `json:"set,omitempty"`
	Changed []string           `json:"changed,omitempty"`
	Full    bool               `json:"full,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string   `json:"code"`
		Message string   `json:"message"`
		Details []string `json:"details"`
	} `json:"error"`
}

// APIError — ошибка, возвращённая API.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details []string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Client — HTTP-клиент для tableflow API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Flows ---

// ListFlows возвращает все flows.
func (c *Client) ListFlows() ([]FlowSummary, error) {
	var flows []FlowSummary
	err := c.list("/api/v1/flows", nil, &flows)
	return flows, err
}

// GetFlow возвращает flow по ID.
func (c *Client) GetFlow(id string) (*FlowResponse, error) {
	var flow FlowResponse
	err := c.get("/api/v1/flows/"+url.PathEscape(id), &flow)
	return &flow, err
}

// PutFlow создаёт или заменяет flow.
func (c *Client) PutFlow(workflow string, flow *domain.Flow) (*FlowResponse, error) {
	body := map[string]any{"workflow": workflow, "flow": flow}
	var resp FlowResponse
	err := c.put("/api/v1/flows/"+url.PathEscape(flow.ID), body, &resp)
	return &resp, err
}

// DeleteFlow удаляет flow.
func (c *Client) DeleteFlow(id string) error {
	return c.delete("/api/v1/flows/" + url.PathEscape(id))
}

// GetSignature возвращает сигнатуру flow.
func (c *Client) GetSignature(id string) (*SignatureResponse, error) {
	var sig SignatureResponse
	err := c.get("/api/v1/flows/"+url.PathEscape(id)+"/signature", &sig)
	return &sig, err
}

// --- Workflows / Templates ---

// PutWorkflow создаёт или заменяет workflow с вложенными flows и шаблонами.
func (c *Client) PutWorkflow(wf *domain.Workflow) error {
	return c.put("/api/v1/workflows/"+url.PathEscape(wf.ID), map[string]any{"workflow": wf}, nil)
}

// PutTemplate создаёт или заменяет шаблон.
func (c *Client) PutTemplate(tpl *domain.Template) error {
	return c.put("/api/v1/templates/"+url.PathEscape(tpl.ID), map[string]any{"template": tpl}, nil)
}

// --- Sessions ---

// InitSession открывает сессию для flow.
func (c *Client) InitSession(flowID string) (*SessionResponse, error) {
	var s SessionResponse
	err := c.post("/api/v1/sessions", map[string]string{"flow_id": flowID}, &s)
	return &s, err
}

// RunSession выполняет run в сессии.
func (c *Client) RunSession(id string, req RunRequest) (*RunResponse, error) {
	var res RunResponse
	err := c.post("/api/v1/sessions/"+url.PathEscape(id)+"/run", req, &res)
	return &res, err
}

// CloseSession закрывает сессию.
func (c *Client) CloseSession(id string) error {
	return c.delete("/api/v1/sessions/" + url.PathEscape(id))
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode}
	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err == nil {
		apiErr.Code = er.Error.Code
		apiErr.Message = er.Error.Message
		apiErr.Details = er.Error.Details
	}
	return apiErr
}
