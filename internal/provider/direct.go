package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shaiso/Callflow/internal/domain"
)

// DefaultDirectTimeout — сколько ждать завершения синхронного звонка.
const DefaultDirectTimeout = 15 * time.Minute

// DirectConfig — настройки direct-провайдера.
type DirectConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Direct — провайдер C.
//
// Синхронный звонок: запрос блокируется, пока upstream не вернёт
// завершённый разговор.
type Direct struct {
	cfg    DirectConfig
	api    *apiClient
	logger *slog.Logger
}

var _ Provider = (*Direct)(nil)

// NewDirect создаёт direct-провайдера.
func NewDirect(cfg DirectConfig) *Direct {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultDirectTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Direct{
		cfg:    cfg,
		api:    newAPIClient(cfg.BaseURL, cfg.APIKey, cfg.HTTPClient, cfg.Timeout),
		logger: cfg.Logger.With("provider", string(KindDirect)),
	}
}

func (d *Direct) Kind() Kind {
	return KindDirect
}

func (d *Direct) CanHandle(data map[string]any) bool {
	_, ok := data["contact_number"]
	return ok
}

// directCall — ответ upstream о завершённом звонке.
type directCall struct {
	Status          string         `json:"status"`
	CallID          string         `json:"call_id"`
	CallStatus      string         `json:"call_status"`
	Transcript      []directLine   `json:"transcript"`
	RecordingURL    string         `json:"recording_url"`
	StartedAt       *time.Time     `json:"started_at"`
	EndedAt         *time.Time     `json:"ended_at"`
	EndReason       string         `json:"end_reason"`
	Summary         string         `json:"summary"`
	Error           string         `json:"error"`
	AssistantNumber string         `json:"assistant_number"`
	Usage           map[string]any `json:"usage"`
	Cost            float64        `json:"cost"`
}

type directLine struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func (d *Direct) ExecuteCall(ctx context.Context, req *CallRequest) (*domain.CallResult, error) {
	data := callData(req)
	customer := contactName(data)
	number := domain.StringField(data, "contact_number")
	if number == "" {
		return failed("", customer, msgNoContactNumber), nil
	}

	log := d.logger.With("task_id", req.TaskID)
	log.Info("starting direct call")

	resp, err := d.api.do(ctx, http.MethodPost, "/calls", map[string]any{
		"agent_id":       req.AgentID,
		"task_id":        req.TaskID,
		"contact_number": number,
		"contact_name":   customer,
		"data":           data,
		"model_config":   req.ModelConfig,
		"call_type":      callType(req),
	})
	if err != nil {
		return nil, err
	}
	if resp.ServerError() {
		return nil, fmt.Errorf("%w: direct call: status %d: %s", ErrUpstream, resp.StatusCode, resp.Text())
	}
	if !resp.OK() {
		return failed(number, customer, errorMessage(resp)), nil
	}

	var call directCall
	if err := resp.Decode(&call); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	r := &domain.CallResult{
		Status:        domain.CallStatusCompleted,
		CallID:        call.CallID,
		Customer:      customer,
		ContactNumber: number,
		RecordingURL:  call.RecordingURL,
		CallStart:     call.StartedAt,
		CallEnd:       call.EndedAt,
		CallEndReason: call.EndReason,
		CallSummary:   call.Summary,
		CallStatus:    call.CallStatus,
		Cost:          call.Cost,
		Data: map[string]any{
			"call_type":        "outbound",
			"cost":             call.Cost,
			"type":             "outboundPhoneCall",
			"usage":            call.Usage,
			"assistant_number": call.AssistantNumber,
		},
	}
	if call.StartedAt != nil && call.EndedAt != nil {
		r.Duration = call.EndedAt.Sub(*call.StartedAt).Seconds()
	}
	for _, l := range call.Transcript {
		r.Transcript = append(r.Transcript, domain.TranscriptEntry{
			Role:      l.Role,
			Content:   l.Content,
			Timestamp: l.Timestamp,
		})
	}

	if call.Status == string(domain.CallStatusFailed) || (call.Error != "" && call.CallStatus == "failed") {
		r.Status = domain.CallStatusFailed
		r.Error = call.Error
		if r.Error == "" {
			r.Error = call.EndReason
		}
		r.Cost = 0
		r.Data["cost"] = 0
		r.Data["error"] = r.Error
	}

	log.Info("direct call finished", "status", r.Status, "call_id", r.CallID)
	return r, nil
}
