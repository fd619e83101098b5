// Package engine содержит модель вычисления Flow/Subflow.
//
// Включает:
//   - signature.go  — вывод сигнатур Flow и Subflow
//   - store.go      — хранилище переменных с copy-on-write
//   - scope.go      — области видимости и разрешение ссылок по имени
//   - decision.go   — вычисление таблиц решений
//   - resolver.go   — позиционное связывание вызовов function/subflow
//   - visibility.go — фильтрация колонок по видимости шаблонов
//   - evaluator.go  — проход по order с отслеживанием изменений
//   - validate.go   — структурная валидация Flow
//
// Ошибки внутри прохода локальны: они собираются в PassResult и не
// прерывают вычисление остальных элементов.
package engine
