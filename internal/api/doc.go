// Package api содержит admin HTTP API.
//
// Структура:
//   - handler.go       — Handler с DI (TaskStore, очередь, governors, scheduler, logger)
//   - routes.go        — регистрация маршрутов
//   - middleware.go    — middleware (request id, logging, recovery)
//   - response.go      — унифицированные JSON-ответы и обработка ошибок
//   - dto.go           — Data Transfer Objects (request/response)
//   - task_handler.go  — постановка task в очередь, просмотр tasks и runs
//   - ops_handler.go   — статистика, отложенные tasks, sweep, сброс счётчиков
//
// API не выполняет звонки: он только пишет task в TaskStore и публикует
// сообщение в топик режима.
package api
