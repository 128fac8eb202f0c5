package provider

import "errors"

// Ошибки провайдеров.
var (
	// ErrProviderSelection — ни один провайдер не может обработать данные.
	ErrProviderSelection = errors.New("no provider can handle the call")

	// ErrUnknownProvider — провайдер с таким kind не зарегистрирован.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrUpstream — upstream API недоступен или ответил ошибкой сервера.
	ErrUpstream = errors.New("upstream request failed")

	// ErrStatusFetch — не удалось получить статус звонка.
	ErrStatusFetch = errors.New("call status fetch failed")
)

// Тексты ошибок, которые попадают в CallResult.Error.
const (
	msgNoContactNumber     = "No Contact Number Found"
	msgInvalidNumber       = "Invalid phone number format"
	msgStatusFetchFailed   = "Failed to fetch call status after multiple retries"
	msgPollingTimeout      = "Failed to get call status: polling timeout after %s"
	msgEndedUnexpectedly   = "Call Ended Unexpectedly"
	msgFailedDuringRinging = "Call failed during ringing"
	msgDispatched          = "Provider call dispatched successfully"
)
