package retry

import "testing"

// --- Classify Tests ---

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     string
		attempt int
		max     int
		action  Action
		reason  string
	}{
		{"sip 480", "sip-480-temporarily-unavailable", 0, 3, RetryNow, ReasonRetryable},
		{"rate limit", "Provider returned Rate-Limit", 0, 3, RetryNow, ReasonRetryable},
		{"provider fault", "call.in-progress.error-providerfault-transport", 0, 3, RetryNow, ReasonRetryable},
		{"invalid phone", "invalid phone number format", 0, 3, Fail, ReasonInvalidPhone},
		{"max retries", "anything at all", 2, 3, Fail, ReasonMaxRetriesExceeded},
		{"max retries wins over retryable", "sip-480-temporarily-unavailable", 2, 3, Fail, ReasonMaxRetriesExceeded},
		{"customer no answer", "customer did not answer", 0, 3, Hold, ReasonCustomerError},
		{"voicemail", "customer-ended-call: voicemail", 0, 3, Hold, ReasonCustomerError},
		{"busy", "User Busy", 0, 3, Hold, ReasonCustomerError},
		{"status fetch", "Failed to fetch call status after multiple retries", 0, 3, Hold, ReasonAPIError},
		{"poll timeout", "Failed to get call status: polling timeout after 30m0s", 0, 3, Hold, ReasonAPIError},
		{"exception", "Exception during processing: upstream: 502", 0, 3, RetryNow, ReasonException},
		{"unknown", "assistant-error", 0, 3, Hold, ReasonNonRetryable},
		{"empty", "", 0, 3, Hold, ReasonNonRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Classify(tt.err, tt.attempt, tt.max)
			if d.Action != tt.action || d.Reason != tt.reason {
				t.Errorf("Classify(%q, %d, %d) = {%s %s}, want {%s %s}",
					tt.err, tt.attempt, tt.max, d.Action, d.Reason, tt.action, tt.reason)
			}
		})
	}
}

func TestClassify_RuleOrder(t *testing.T) {
	// Исход абонента проверяется раньше временных ошибок.
	d := Classify("busy: sip-480-temporarily-unavailable", 0, 3)
	if d.Action != Hold || d.Reason != ReasonCustomerError {
		t.Errorf("expected customer hold, got %+v", d)
	}

	// Ошибка API проверяется раньше исключения.
	d = Classify("Exception during processing: network error", 0, 3)
	if d.Reason != ReasonAPIError {
		t.Errorf("expected api error hold, got %+v", d)
	}
}

func TestDecision_ShouldRequeue(t *testing.T) {
	if !(Decision{Action: RetryNow}).ShouldRequeue() {
		t.Error("RetryNow should requeue")
	}
	if (Decision{Action: Hold}).ShouldRequeue() || (Decision{Action: Fail}).ShouldRequeue() {
		t.Error("Hold/Fail must not requeue")
	}
}
