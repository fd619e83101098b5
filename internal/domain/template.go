package domain

// Template — переиспользуемая форма таблицы с разделением колонок
// на visible и hidden. Принадлежит Workflow.
type Template struct {
	ID       string `json:"id"`
	Workflow string `json:"workflow"`

	// Hidden — скрыт ли шаблон вне своего Workflow.
	// Отсутствие поля означает true.
	Hidden *bool `json:"hidden,omitempty"`

	Name          string   `json:"name,omitempty"`
	Description   string   `json:"description,omitempty"`
	Collaborators []string `json:"collaborators,omitempty"`

	// Templates — зависимости от других шаблонов (по порядку).
	Templates []string `json:"templates,omitempty"`

	Lock map[string]LockEntry `json:"lock,omitempty"`

	Signature TemplateSignature `json:"signature"`

	// Subflows — вспомогательные Subflow шаблона.
	Subflows map[string]*Subflow `json:"subflows,omitempty"`
}

// IsHidden возвращает значение флага hidden с учётом значения по умолчанию.
func (t *Template) IsHidden() bool {
	if t == nil || t.Hidden == nil {
		return true
	}
	return *t.Hidden
}

// TemplateSignature — колонки шаблона, разделённые по видимости.
type TemplateSignature struct {
	Visible TemplateColumns `json:"visible"`
	Hidden  TemplateColumns `json:"hidden"`
}

// TemplateColumns — упорядоченный список колонок и их заголовки.
type TemplateColumns struct {
	Columns []string          `json:"columns"`
	Headers map[string]Header `json:"headers,omitempty"`
}

// Contract — именованная сигнатура, опубликованная Workflow.
type Contract struct {
	ID      string   `json:"id"`
	Name    string   `json:"name,omitempty"`
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`
}

// Workflow — пространство имён для Flow, Template и Contract.
type Workflow struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	Collaborators []string `json:"collaborators,omitempty"`

	// Workflows — зависимые workflows (по порядку).
	Workflows []string             `json:"workflows,omitempty"`
	Lock      map[string]LockEntry `json:"lock,omitempty"`

	Flows     map[string]*Flow     `json:"flows,omitempty"`
	Templates map[string]*Template `json:"templates,omitempty"`
	Contracts map[string]*Contract `json:"contracts,omitempty"`
}
