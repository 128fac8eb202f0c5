// Package provider содержит провайдеров исходящих звонков и их выбор.
//
// # Провайдеры
//
// Три фиксированных варианта реализуют интерфейс Provider:
//   - hosted — REST API: создание звонка, затем опрос статуса до финального
//     состояния (queued → ringing → in-progress → ended)
//   - dispatch — явный dispatch голосового агента в новую комнату,
//     возвращает in_progress сразу после dispatch
//   - direct — синхронный звонок, ответ приходит после завершения разговора
//
// Итог разговора всегда возвращается как domain.CallResult. Ошибка
// возвращается только для инфраструктурных проблем (ErrUpstream,
// ErrStatusFetch).
//
// # Выбор провайдера
//
// Selector выбирает провайдера в порядке: явный "provider" в model config
// или data, "quality": "high" → direct, провайдер по умолчанию, затем первый
// провайдер из SelectionOrder, чей CanHandle принял data.
package provider
