package domain

import "time"

// CallStatus — нормализованный итог вызова провайдера.
type CallStatus string

const (
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusInProgress CallStatus = "in_progress"
)

// TranscriptEntry — одна реплика разговора.
type TranscriptEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// CallResult — нормализованный результат звонка.
//
// Создаётся один раз провайдером и после этого не меняется.
type CallResult struct {
	Status        CallStatus        `json:"status"`
	CallID        string            `json:"call_id,omitempty"`
	Customer      string            `json:"customer,omitempty"`
	ContactNumber string            `json:"contact_number,omitempty"`
	Transcript    []TranscriptEntry `json:"transcript,omitempty"`
	RecordingURL  string            `json:"recording_url,omitempty"`
	CallStart     *time.Time        `json:"call_start,omitempty"`
	CallEnd       *time.Time        `json:"call_end,omitempty"`
	CallEndReason string            `json:"call_end_reason,omitempty"`
	CallSummary   string            `json:"call_summary,omitempty"`
	CallStatus    string            `json:"call_status,omitempty"`
	Duration      float64           `json:"duration,omitempty"`
	Cost          float64           `json:"cost,omitempty"`
	Error         string            `json:"error,omitempty"`
	Notes         string            `json:"notes,omitempty"`
	Data          map[string]any    `json:"data,omitempty"`
}

// FailedResult создаёт результат со статусом failed.
func FailedResult(contactNumber, errText string) *CallResult {
	return &CallResult{
		Status:        CallStatusFailed,
		ContactNumber: contactNumber,
		Error:         errText,
	}
}

// Output превращает результат в output map для TaskStore.
func (r *CallResult) Output() map[string]any {
	out := map[string]any{
		"status":          string(r.Status),
		"call_id":         r.CallID,
		"customer":        r.Customer,
		"contact_number":  r.ContactNumber,
		"recording_url":   r.RecordingURL,
		"call_end_reason": r.CallEndReason,
		"call_summary":    r.CallSummary,
		"call_status":     r.CallStatus,
		"duration":        r.Duration,
		"cost":            r.Cost,
	}

	transcript := make([]map[string]any, 0, len(r.Transcript))
	for _, e := range r.Transcript {
		entry := map[string]any{"role": e.Role, "content": e.Content}
		if !e.Timestamp.IsZero() {
			entry["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339)
		}
		transcript = append(transcript, entry)
	}
	out["transcript"] = transcript

	if r.CallStart != nil {
		out["call_start"] = r.CallStart.UTC().Format(time.RFC3339)
	}
	if r.CallEnd != nil {
		out["call_end"] = r.CallEnd.UTC().Format(time.RFC3339)
	}
	if r.Error != "" {
		out["error"] = r.Error
	}
	if r.Notes != "" {
		out["notes"] = r.Notes
	}
	if len(r.Data) > 0 {
		out["data"] = r.Data
	}
	return out
}
