package domain

import "strings"

// SubflowScheme — префикс выражения, делегирующего случай Decision Subflow.
const SubflowScheme = "subflow://"

// DecisionTable — значение элемента decision.
//
// Строки проверяются по порядку, первая совпавшая выигрывает.
// Внутри строки условия всех входных колонок объединяются через AND.
type DecisionTable struct {
	// Name — отображаемое имя таблицы решений.
	Name string `json:"name"`

	// Inputs — таблицы-источники (по порядку).
	Inputs []string `json:"inputs"`

	// Outputs — таблицы-получатели (по порядку).
	Outputs []string `json:"outputs"`

	Columns DecisionColumns `json:"columns"`
	Headers DecisionHeaders `json:"headers"`

	// Rows — правила в порядке объявления.
	Rows []DecisionRow `json:"rows"`
}

// DecisionColumns — параллельные списки колонок входов и выходов.
type DecisionColumns struct {
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`
}

// DecisionHeaders — заголовки колонок входов и выходов.
type DecisionHeaders struct {
	Inputs  map[string]InputHeader  `json:"inputs"`
	Outputs map[string]OutputHeader `json:"outputs"`
}

// InputHeader связывает входную колонку таблицы решений с колонкой источника.
type InputHeader struct {
	ID     string `json:"id"`
	Table  string `json:"table"`
	Column string `json:"column"`

	// Conditions — список операторов через запятую, применяемых
	// к предикатам ячейки по позициям, например "=" или ">=,<".
	Conditions string `json:"conditions"`
}

// OutputHeader связывает выходную колонку с колонкой таблицы-получателя.
type OutputHeader struct {
	ID     string `json:"id"`
	Table  string `json:"table"`
	Column string `json:"column"`

	// Type — тип колонки-получателя. Если пуст, берётся из заголовка
	// таблицы-получателя.
	Type ScalarType `json:"type,omitempty"`
}

// DecisionRow — одно правило таблицы решений.
type DecisionRow struct {
	// Inputs — входная колонка → литерал условия ("-" и "*" совпадают всегда).
	Inputs map[string]string `json:"inputs"`

	// Outputs — выходная колонка → выражение или "subflow://<id>".
	Outputs map[string]string `json:"outputs"`
}

// IsWildcard проверяет, совпадает ли ячейка условия с любым значением.
func IsWildcard(cell string) bool {
	c := strings.TrimSpace(cell)
	return c == "-" || c == "*"
}

// SubflowRef извлекает ID Subflow из выражения "subflow://<id>".
func SubflowRef(expression string) (string, bool) {
	e := strings.TrimSpace(expression)
	if !strings.HasPrefix(e, SubflowScheme) {
		return "", false
	}
	id := strings.TrimPrefix(e, SubflowScheme)
	return id, id != ""
}
