package domain

// Flow — именованная вычислительная единица (аналог функции/модуля).
//
// Flow состоит из одного или нескольких Subflow. Subflow с ID Main
// определяет публичный контракт Flow (его Signature).
type Flow struct {
	// ID — уникальный идентификатор flow.
	ID string `json:"id"`

	// Main — ID главного Subflow (должен присутствовать в Subflows).
	Main string `json:"main"`

	// Name — отображаемое имя flow.
	Name string `json:"name,omitempty"`

	// Description — описание назначения flow.
	Description string `json:"description,omitempty"`

	// Collaborators — ID соавторов flow.
	Collaborators []string `json:"collaborators,omitempty"`

	// Flows — зависимые flows в алфавитном порядке.
	Flows []string `json:"flows,omitempty"`

	// Lock — зафиксированные версии зависимых flows.
	Lock map[string]LockEntry `json:"lock,omitempty"`

	// Subflows — все Subflow flow (subflowID → Subflow).
	// Связи parent/child хранятся как ID, а не как указатели.
	Subflows map[string]*Subflow `json:"subflows"`
}

// MainSubflow возвращает главный Subflow.
// Второе значение false, если Main не задан или не найден.
func (f *Flow) MainSubflow() (*Subflow, bool) {
	if f == nil || f.Main == "" {
		return nil, false
	}
	return f.Subflow(f.Main)
}

// Subflow возвращает Subflow по ID.
func (f *Flow) Subflow(id string) (*Subflow, bool) {
	if f == nil || id == "" {
		return nil, false
	}
	sf, ok := f.Subflows[id]
	if !ok || sf == nil {
		return nil, false
	}
	return sf, true
}

// Subflow — упорядоченная последовательность Element внутри Flow.
//
// Порядок вычисления задаётся Order. Переупорядочивание по
// зависимостям не выполняется: автор сам ставит производителей
// перед потребителями.
type Subflow struct {
	// ID — идентификатор Subflow.
	ID string `json:"id"`

	// Name — имя Subflow (для главного по соглашению "Main").
	Name string `json:"name,omitempty"`

	// Parent — ID родительского Subflow. Пустая строка для Main.
	Parent string `json:"parent"`

	// Input — ID элемента типа input.
	Input string `json:"input"`

	// Output — ID элемента типа output.
	Output string `json:"output"`

	// Order — порядок вычисления элементов.
	Order []string `json:"order"`

	// Elements — элементы Subflow (elementID → Element).
	Elements map[string]*Element `json:"elements"`

	// Declarations — объявленные переменные Subflow.
	Declarations []string `json:"declarations"`

	// Variables — переменные Subflow (variableID → Variable).
	Variables map[string]*Variable `json:"variables"`
}

// Element возвращает элемент по ID.
func (s *Subflow) Element(id string) (*Element, bool) {
	if s == nil || id == "" {
		return nil, false
	}
	el, ok := s.Elements[id]
	if !ok || el == nil {
		return nil, false
	}
	return el, true
}

// Variable возвращает переменную по ID.
func (s *Subflow) Variable(id string) (*Variable, bool) {
	if s == nil || id == "" {
		return nil, false
	}
	v, ok := s.Variables[id]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// IsDeclared проверяет, объявлена ли переменная в Subflow.
func (s *Subflow) IsDeclared(id string) bool {
	if s == nil {
		return false
	}
	for _, d := range s.Declarations {
		if d == id {
			return true
		}
	}
	_, ok := s.Variables[id]
	return ok
}

// LockEntry — зафиксированная версия зависимости (аналог lockfile).
type LockEntry struct {
	// ID — идентификатор зависимости.
	ID string `json:"id"`

	// Version — семантическая версия, например "v0.0.1".
	Version string `json:"version"`

	// Timestamp — время фиксации в формате YYYYMMDDhhmmss.
	Timestamp string `json:"timestamp,omitempty"`

	// Sum — контрольная сумма.
	Sum string `json:"sum,omitempty"`
}
