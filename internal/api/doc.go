// Package api — HTTP API tableflow.
//
// Ресурсы:
//   - /api/v1/flows, /api/v1/workflows, /api/v1/templates — хранение документов;
//     flow проверяется engine.Validate перед сохранением, после записи
//     реестр перестраивается
//   - /api/v1/flows/{id}/signature — входы и выходы главного Subflow
//   - /api/v1/sessions — init, run и close сессий вычислителя
//
// Ответы: {"data": ...}, списки {"data": [...], "total": N},
// ошибки {"error": {"code": ..., "message": ..., "details": [...]}}.
package api
