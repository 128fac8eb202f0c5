package domain

// TaskMessage — сообщение очереди, по которому WorkerPool запускает звонок.
type TaskMessage struct {
	TaskID       string         `json:"task_id"`
	RunID        string         `json:"run_id,omitempty"`
	AgentID      string         `json:"agent_id,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	Instructions string         `json:"instructions,omitempty"`
	ModelConfig  map[string]any `json:"model_config,omitempty"`
	RetryAttempt int            `json:"retry_attempt"`
	BatchCount   int            `json:"batch_count,omitempty"`
}

// ContactNumber возвращает номер получателя.
func (m *TaskMessage) ContactNumber() string {
	return StringField(m.Data, "contact_number")
}

// Mode возвращает режим очереди по размеру пакета.
func (m *TaskMessage) Mode() Mode {
	return ModeForBatch(m.BatchCount)
}

// NextAttempt возвращает копию сообщения с увеличенным RetryAttempt.
func (m TaskMessage) NextAttempt() TaskMessage {
	m.RetryAttempt++
	return m
}
