// Package cli реализует инструмент командной строки tableflow.
//
// # Обзор
//
// CLI — клиентская утилита для tableflow API. Работает через HTTP и не
// импортирует internal/api: типы ответов продублированы в client.go.
// Команда validate работает без API, на локальном реестре.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для tableflow API. Разбирает конверты ответов
// (data, data+total, error) и возвращает ошибки API как *APIError.
//
//	client := cli.NewClient("http://localhost:8080")
//	flows, err := client.ListFlows()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error/Detail) — в stderr:
//
//	tableflow flow list --json | jq .
//
// ## Commands
//
//   - flow: list, show, push, delete, signature
//   - session: init, run, close
//   - validate FILE
//
// Каждая группа создаётся фабричной функцией (NewFlowCmd и т.д.),
// принимающей clientFn и outputFn — замыкания для ленивого создания
// Client и Output после разбора PersistentFlags.
package cli
