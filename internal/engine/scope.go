package engine

import (
	"fmt"

	"github.com/shaiso/tableflow/internal/domain"
)

// Scope — область видимости переменных при вычислении Subflow.
//
// Чтение идёт сначала в локальный Store, затем в родительскую область.
// Запись всегда локальная. Unbind помечает переменную отсутствующей,
// и чтение по её ID не уходит в родителя.
type Scope struct {
	store  *Store
	parent *Scope
	absent map[string]struct{}
}

// NewScope создаёт область из копий переменных.
// parent может быть nil.
func NewScope(vars map[string]*domain.Variable, parent *Scope) *Scope {
	return &Scope{
		store:  NewStore(vars),
		parent: parent,
		absent: make(map[string]struct{}),
	}
}

// Store возвращает локальное хранилище.
func (s *Scope) Store() *Store { return s.store }

// Lookup ищет переменную по ID.
func (s *Scope) Lookup(id string) (*domain.Variable, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.store.Get(id); ok {
			return v, true
		}
		if _, gone := cur.absent[id]; gone {
			return nil, false
		}
	}
	return nil, false
}

// Resolve ищет переменную по ID или по snake_case имени таблицы.
func (s *Scope) Resolve(ref string) (*domain.Variable, bool) {
	if v, ok := s.Lookup(ref); ok {
		return v, true
	}
	for cur := s; cur != nil; cur = cur.parent {
		for _, id := range cur.store.IDs() {
			v, ok := cur.store.Get(id)
			if !ok || v.Value == nil {
				continue
			}
			if domain.SnakeCase(v.Value.Name) == ref {
				return v, true
			}
		}
	}
	return nil, false
}

// Table реализует Tables.
func (s *Scope) Table(ref string) (*domain.Table, bool) {
	v, ok := s.Resolve(ref)
	if !ok || v.Value == nil {
		return nil, false
	}
	return v.Value, true
}

// Put записывает переменную в локальное хранилище.
func (s *Scope) Put(v *domain.Variable) {
	if v == nil {
		return
	}
	delete(s.absent, v.ID)
	s.store.Put(v)
}

// Unbind удаляет переменную и скрывает одноимённые переменные родителя.
func (s *Scope) Unbind(id string) {
	if id == "" {
		return
	}
	s.store.Delete(id)
	s.absent[id] = struct{}{}
}

// Tables разрешает ссылки на таблицы по ID или snake_case имени.
type Tables interface {
	Table(ref string) (*domain.Table, bool)
}

// tableColumn находит колонку по ID или snake_case имени заголовка.
func tableColumn(t *domain.Table, ref string) (string, bool) {
	if t == nil {
		return "", false
	}
	if t.ColumnIndex(ref) >= 0 {
		return ref, true
	}
	for _, c := range t.Columns {
		if h, ok := t.Headers[c]; ok && domain.SnakeCase(h.Name) == ref {
			return c, true
		}
	}
	return "", false
}

// cellAt возвращает значение колонки в строке i.
// Таблица из одной строки транслируется на все индексы.
func cellAt(t *domain.Table, column string, i int) any {
	switch {
	case len(t.Rows) == 0:
		return nil
	case len(t.Rows) == 1:
		return t.Rows[0][column]
	case i < len(t.Rows):
		return t.Rows[i][column]
	default:
		return nil
	}
}

// rowEnv — окружение выражений для строки i.
type rowEnv struct {
	tables Tables
	row    int
}

func (e rowEnv) lookup(table, column string) (*domain.Table, string, error) {
	t, ok := e.tables.Table(table)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	col, ok := tableColumn(t, column)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s.%s", ErrColumnNotFound, table, column)
	}
	return t, col, nil
}

func (e rowEnv) Value(table, column string) (any, error) {
	t, col, err := e.lookup(table, column)
	if err != nil {
		return nil, err
	}
	return cellAt(t, col, e.row), nil
}

func (e rowEnv) Column(table, column string) ([]any, error) {
	t, col, err := e.lookup(table, column)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[col]
	}
	return out, nil
}
