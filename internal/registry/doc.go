// Package registry содержит реестр Flow, Template и Workflow.
//
// Registry строится один раз из Document и не изменяется: при правках
// авторов создаётся новый Registry, а Holder атомарно заменяет текущий.
// Сессии вычисления берут снимок из Holder при инициализации.
package registry
