package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/shaiso/Callflow/internal/domain"
	"github.com/shaiso/Callflow/internal/phone"
)

// Значения по умолчанию hosted-провайдера.
const (
	DefaultMaxConcurrentCalls  = 10
	DefaultChannelWaitInterval = 10 * time.Second
	DefaultCheckRetryDelay     = 2 * time.Second
	DefaultCallMaxRetries      = 1
	DefaultCallRetryDelay      = 15 * time.Second
	DefaultPollInterval        = 20 * time.Second
	DefaultMaxPollDuration     = 30 * time.Minute
	DefaultStatusRetries       = 3
	DefaultStatusRetryDelay    = 2 * time.Second
)

// Статусы звонка upstream.
const (
	statusQueued     = "queued"
	statusRinging    = "ringing"
	statusInProgress = "in-progress"
	statusEnded      = "ended"
)

// sipCompletedReason — ended с этой причиной не финальный, опрос продолжается.
const sipCompletedReason = "call.in-progress.sip-completed-call"

// HostedConfig — настройки hosted-провайдера.
type HostedConfig struct {
	BaseURL       string
	APIKey        string
	PhoneNumberID string
	DefaultRegion string
	HTTPClient    *http.Client

	// MaxConcurrentCalls — порог активных звонков upstream, выше которого ждём.
	MaxConcurrentCalls  int
	ChannelWaitInterval time.Duration
	CheckRetryDelay     time.Duration

	// CallMaxRetries — сколько раз повторить создание звонка.
	CallMaxRetries int
	CallRetryDelay time.Duration

	PollInterval     time.Duration
	MaxPollDuration  time.Duration
	StatusRetries    int
	StatusRetryDelay time.Duration

	Logger *slog.Logger
}

func (c *HostedConfig) applyDefaults() {
	if c.MaxConcurrentCalls <= 0 {
		c.MaxConcurrentCalls = DefaultMaxConcurrentCalls
	}
	if c.ChannelWaitInterval <= 0 {
		c.ChannelWaitInterval = DefaultChannelWaitInterval
	}
	if c.CheckRetryDelay <= 0 {
		c.CheckRetryDelay = DefaultCheckRetryDelay
	}
	if c.CallMaxRetries <= 0 {
		c.CallMaxRetries = DefaultCallMaxRetries
	}
	if c.CallRetryDelay <= 0 {
		c.CallRetryDelay = DefaultCallRetryDelay
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxPollDuration <= 0 {
		c.MaxPollDuration = DefaultMaxPollDuration
	}
	if c.StatusRetries <= 0 {
		c.StatusRetries = DefaultStatusRetries
	}
	if c.StatusRetryDelay <= 0 {
		c.StatusRetryDelay = DefaultStatusRetryDelay
	}
	if c.DefaultRegion == "" {
		c.DefaultRegion = phone.DefaultRegion
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Hosted — провайдер A.
//
// Звонок создаётся через REST API, после чего статус опрашивается до
// финального состояния: queued → ringing → in-progress → ended.
type Hosted struct {
	cfg    HostedConfig
	api    *apiClient
	logger *slog.Logger
}

var _ Provider = (*Hosted)(nil)

// NewHosted создаёт hosted-провайдера.
func NewHosted(cfg HostedConfig) *Hosted {
	cfg.applyDefaults()
	return &Hosted{
		cfg:    cfg,
		api:    newAPIClient(cfg.BaseURL, cfg.APIKey, cfg.HTTPClient, 0),
		logger: cfg.Logger.With("provider", string(KindHosted)),
	}
}

func (h *Hosted) Kind() Kind {
	return KindHosted
}

func (h *Hosted) CanHandle(data map[string]any) bool {
	_, ok := data["contact_number"]
	return ok
}

// hostedCall — состояние звонка в upstream.
type hostedCall struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	EndedReason   string          `json:"endedReason"`
	StartedAt     *time.Time      `json:"startedAt"`
	EndedAt       *time.Time      `json:"endedAt"`
	RecordingURL  string          `json:"recordingUrl"`
	Summary       string          `json:"summary"`
	Cost          float64         `json:"cost"`
	PhoneNumberID string          `json:"phoneNumberId"`
	Messages      []hostedMessage `json:"messages"`
}

type hostedMessage struct {
	Role    string    `json:"role"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

func (h *Hosted) ExecuteCall(ctx context.Context, req *CallRequest) (*domain.CallResult, error) {
	data := callData(req)
	customer := contactName(data)

	raw := domain.StringField(data, "contact_number")
	if raw == "" {
		return failed("", customer, msgNoContactNumber), nil
	}
	number, err := phone.Normalize(raw, h.cfg.DefaultRegion)
	if err != nil {
		return failed(raw, customer, msgInvalidNumber), nil
	}

	log := h.logger.With("task_id", req.TaskID)

	if err := h.waitForChannel(ctx, log); err != nil {
		return nil, err
	}

	callID, rejected, err := h.createCall(ctx, log, req, data, number, customer)
	if err != nil {
		return nil, err
	}
	if rejected != nil {
		return rejected, nil
	}

	log.Info("call created", "call_id", callID)
	notify(ctx, req, "call.created")

	return h.poll(ctx, log, req, callID, customer, number)
}

// waitForChannel ждёт, пока число активных звонков upstream опустится
// ниже MaxConcurrentCalls.
func (h *Hosted) waitForChannel(ctx context.Context, log *slog.Logger) error {
	for {
		active, err := h.activeCalls(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("active calls check failed", "error", err)
			if err := sleep(ctx, h.cfg.CheckRetryDelay); err != nil {
				return err
			}
			continue
		}

		if active < h.cfg.MaxConcurrentCalls {
			return nil
		}

		log.Info("waiting for free channel",
			"active", active,
			"max", h.cfg.MaxConcurrentCalls,
		)
		if err := sleep(ctx, h.cfg.ChannelWaitInterval); err != nil {
			return err
		}
	}
}

func (h *Hosted) activeCalls(ctx context.Context) (int, error) {
	resp, err := h.api.do(ctx, http.MethodGet, "/call/concurrency", nil)
	if err != nil {
		return 0, err
	}
	if !resp.OK() {
		return 0, fmt.Errorf("%w: concurrency check: status %d", ErrUpstream, resp.StatusCode)
	}

	var body struct {
		Active int `json:"active"`
	}
	if err := resp.Decode(&body); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return body.Active, nil
}

// createCall создаёт звонок. Ответ 4xx (кроме 429) — отказ upstream,
// он возвращается как failed-результат без повторов.
func (h *Hosted) createCall(
	ctx context.Context,
	log *slog.Logger,
	req *CallRequest,
	data map[string]any,
	number, customer string,
) (string, *domain.CallResult, error) {
	body := map[string]any{
		"assistantId":   req.AgentID,
		"phoneNumberId": h.cfg.PhoneNumberID,
		"customer": map[string]any{
			"number": number,
			"name":   customer,
		},
		"metadata": map[string]any{
			"task_id":   req.TaskID,
			"call_type": callType(req),
		},
		"assistantOverrides": map[string]any{
			"variableValues": data,
			"model":          req.ModelConfig,
		},
	}

	var lastErr error
	for attempt := 0; attempt <= h.cfg.CallMaxRetries; attempt++ {
		if attempt > 0 {
			log.Warn("retrying call create",
				"attempt", attempt+1,
				"delay", h.cfg.CallRetryDelay,
				"error", lastErr,
			)
			if err := sleep(ctx, h.cfg.CallRetryDelay); err != nil {
				return "", nil, err
			}
		}

		resp, err := h.api.do(ctx, http.MethodPost, "/call", body)
		if err != nil {
			if ctx.Err() != nil {
				return "", nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		switch {
		case resp.OK():
			var created struct {
				ID string `json:"id"`
			}
			if err := resp.Decode(&created); err != nil || created.ID == "" {
				lastErr = fmt.Errorf("%w: create call: response without id", ErrUpstream)
				continue
			}
			return created.ID, nil, nil

		case resp.ServerError() || resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("%w: create call: status %d: %s", ErrUpstream, resp.StatusCode, resp.Text())

		default:
			msg := errorMessage(resp)
			log.Warn("call create rejected", "status", resp.StatusCode, "error", msg)
			return "", failed(number, customer, msg), nil
		}
	}

	return "", nil, lastErr
}

// poll опрашивает статус звонка до финального состояния.
func (h *Hosted) poll(
	ctx context.Context,
	log *slog.Logger,
	req *CallRequest,
	callID, customer, number string,
) (*domain.CallResult, error) {
	deadline := time.Now().Add(h.cfg.MaxPollDuration)
	var history []string

	for {
		if !time.Now().Before(deadline) {
			log.Warn("call polling timed out", "call_id", callID, "after", h.cfg.MaxPollDuration)
			r := failed(number, customer, fmt.Sprintf(msgPollingTimeout, h.cfg.MaxPollDuration))
			r.CallID = callID
			return r, nil
		}

		call, err := h.fetchStatus(ctx, log, callID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Error("call status fetch failed", "call_id", callID, "error", err)
			r := failed(number, customer, msgStatusFetchFailed)
			r.CallID = callID
			return r, nil
		}

		if len(history) == 0 || history[len(history)-1] != call.Status {
			log.Debug("call status changed", "call_id", callID, "status", call.Status)
			notify(ctx, req, "call."+call.Status)
		}
		history = append(history, call.Status)

		v := evaluate(history, call.EndedReason)
		if v.done {
			return h.buildResult(ctx, v, call, customer, number), nil
		}

		wait := min(h.cfg.PollInterval, time.Until(deadline))
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// verdict — решение автомата состояний по очередному статусу.
type verdict struct {
	done    bool
	status  domain.CallStatus
	errText string
}

// evaluate — автомат состояний звонка. history содержит все наблюдённые
// статусы, последний — текущий.
//
// Финальным считается только ended с причиной, отличной от
// sipCompletedReason. Итог определяется статусом, предшествовавшим
// первому ended: in-progress → completed, ringing → failed с причиной,
// иначе failed "Call Ended Unexpectedly".
func evaluate(history []string, endedReason string) verdict {
	if len(history) == 0 || history[len(history)-1] != statusEnded {
		return verdict{}
	}
	if endedReason == sipCompletedReason {
		return verdict{}
	}

	var prev string
	if first := slices.Index(history, statusEnded); first > 0 {
		prev = history[first-1]
	}

	switch prev {
	case statusInProgress:
		return verdict{done: true, status: domain.CallStatusCompleted}
	case statusRinging:
		reason := endedReason
		if reason == "" {
			reason = msgFailedDuringRinging
		}
		return verdict{done: true, status: domain.CallStatusFailed, errText: reason}
	default:
		return verdict{done: true, status: domain.CallStatusFailed, errText: msgEndedUnexpectedly}
	}
}

// fetchStatus получает состояние звонка. 5xx и сетевые ошибки повторяются
// StatusRetries раз, 4xx прекращает попытки сразу.
func (h *Hosted) fetchStatus(ctx context.Context, log *slog.Logger, callID string) (*hostedCall, error) {
	var lastErr error
	for attempt := 1; attempt <= h.cfg.StatusRetries; attempt++ {
		resp, err := h.api.do(ctx, http.MethodGet, "/call/"+url.PathEscape(callID), nil)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err

		case resp.OK():
			var call hostedCall
			if err := resp.Decode(&call); err != nil {
				lastErr = err
				break
			}
			return &call, nil

		case resp.ServerError():
			lastErr = fmt.Errorf("server error %d", resp.StatusCode)

		default:
			return nil, fmt.Errorf("%w: client error %d", ErrStatusFetch, resp.StatusCode)
		}

		log.Warn("call status fetch attempt failed",
			"call_id", callID,
			"attempt", attempt,
			"max", h.cfg.StatusRetries,
			"error", lastErr,
		)
		if attempt < h.cfg.StatusRetries {
			if err := sleep(ctx, h.cfg.StatusRetryDelay); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrStatusFetch, lastErr)
}

// assistantNumber возвращает исходящий номер звонка. Ошибки не критичны.
func (h *Hosted) assistantNumber(ctx context.Context, phoneNumberID string) string {
	if phoneNumberID == "" {
		return ""
	}
	resp, err := h.api.do(ctx, http.MethodGet, "/phone-number/"+url.PathEscape(phoneNumberID), nil)
	if err != nil || !resp.OK() {
		return ""
	}
	var body struct {
		Number string `json:"number"`
	}
	if resp.Decode(&body) != nil {
		return ""
	}
	return body.Number
}

func (h *Hosted) buildResult(ctx context.Context, v verdict, call *hostedCall, customer, number string) *domain.CallResult {
	cost := 0.0
	if v.status == domain.CallStatusCompleted {
		cost = call.Cost
	}

	r := &domain.CallResult{
		Status:        v.status,
		CallID:        call.ID,
		Customer:      customer,
		ContactNumber: number,
		RecordingURL:  call.RecordingURL,
		CallStart:     call.StartedAt,
		CallEnd:       call.EndedAt,
		CallEndReason: call.EndedReason,
		CallSummary:   call.Summary,
		CallStatus:    call.Status,
		Cost:          cost,
		Error:         v.errText,
		Data: map[string]any{
			"call_type":        "outbound",
			"cost":             cost,
			"type":             "outboundPhoneCall",
			"assistant_number": h.assistantNumber(ctx, call.PhoneNumberID),
		},
	}
	if v.errText != "" {
		r.Data["error"] = v.errText
	}
	if call.StartedAt != nil && call.EndedAt != nil {
		r.Duration = call.EndedAt.Sub(*call.StartedAt).Seconds()
	}
	for _, m := range call.Messages {
		r.Transcript = append(r.Transcript, domain.TranscriptEntry{
			Role:      m.Role,
			Content:   m.Message,
			Timestamp: m.Time,
		})
	}
	return r
}

// errorMessage достаёт текст ошибки из ответа upstream.
func errorMessage(resp *apiResponse) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := resp.Decode(&body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	if text := resp.Text(); text != "" {
		return text
	}
	return fmt.Sprintf("upstream rejected call with status %d", resp.StatusCode)
}

// IsInfrastructure проверяет, что ошибка провайдера инфраструктурная.
func IsInfrastructure(err error) bool {
	return errors.Is(err, ErrUpstream) || errors.Is(err, ErrStatusFetch)
}
