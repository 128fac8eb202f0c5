// Package retry классифицирует ошибки звонков в решение о повторе.
//
// Classify — чистая функция: текст ошибки и номер попытки
// однозначно определяют Decision.
package retry

import "strings"

// Action — что делать с task после ошибки.
type Action int

const (
	// RetryNow — увеличить retry_attempt, вернуть в pending и переотправить.
	RetryNow Action = iota

	// Hold — отметить failed с причиной; дальше решает внешний recovery.
	Hold

	// Fail — отметить failed окончательно.
	Fail
)

// String возвращает строковое представление Action.
func (a Action) String() string {
	switch a {
	case RetryNow:
		return "retry_now"
	case Hold:
		return "hold_for_recovery"
	case Fail:
		return "fail"
	default:
		return "unknown"
	}
}

// Причины решений.
const (
	ReasonMaxRetriesExceeded = "max_retries_exceeded"
	ReasonCustomerError      = "customer_error_needs_special_handling"
	ReasonAPIError           = "api_error_needs_status_fetch"
	ReasonRetryable          = "retryable_error"
	ReasonInvalidPhone       = "invalid_phone_number"
	ReasonException          = "exception_retry"
	ReasonNonRetryable       = "non_retryable_error"
)

// Decision — результат классификации.
type Decision struct {
	Action Action
	Reason string
}

// ShouldRequeue возвращает true, если сообщение нужно переотправить.
func (d Decision) ShouldRequeue() bool {
	return d.Action == RetryNow
}

// Исход звонка на стороне абонента: не ошибка кода.
var customerPatterns = []string{
	"did not answer",
	"customer-did-not-answer",
	"voicemail",
	"busy",
	"call rejected",
	"declined",
	"user busy",
	"not answered",
}

// Неоднозначные ошибки API: статус звонка неизвестен.
var apiPatterns = []string{
	"failed to get call status",
	"failed to fetch call",
	"api error",
	"connection error",
	"timeout",
	"network error",
}

// Временные ошибки провайдера.
var retryablePatterns = []string{
	"sip-480-temporarily-unavailable",
	"call.in-progress.error-sip-outbound-call-failed-to-connect",
	"rate-limit",
	"ratelimit",
	"too-many-requests",
	"temporarily-unavailable",
	"providerfault",
}

// Classify сопоставляет ошибку с решением. Правила применяются по порядку,
// первое совпавшее побеждает.
func Classify(errText string, attempt, maxRetries int) Decision {
	if attempt >= maxRetries-1 {
		return Decision{Action: Fail, Reason: ReasonMaxRetriesExceeded}
	}

	text := strings.ToLower(errText)
	switch {
	case containsAny(text, customerPatterns):
		return Decision{Action: Hold, Reason: ReasonCustomerError}
	case containsAny(text, apiPatterns):
		return Decision{Action: Hold, Reason: ReasonAPIError}
	case containsAny(text, retryablePatterns):
		return Decision{Action: RetryNow, Reason: ReasonRetryable}
	case strings.Contains(text, "invalid phone number"):
		return Decision{Action: Fail, Reason: ReasonInvalidPhone}
	case strings.Contains(text, "exception during processing"):
		return Decision{Action: RetryNow, Reason: ReasonException}
	default:
		return Decision{Action: Hold, Reason: ReasonNonRetryable}
	}
}

func containsAny(text string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
