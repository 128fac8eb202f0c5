package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Callflow/internal/domain"
	"github.com/shaiso/Callflow/internal/phone"
)

// DefaultAgentName — имя агента для dispatch, если не задано.
const DefaultAgentName = "callflow-general-agent"

// DispatchConfig — настройки dispatch-провайдера.
type DispatchConfig struct {
	BaseURL    string
	APIKey     string
	AgentName  string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Dispatch — провайдер B.
//
// Создаёт явный dispatch голосового агента в новую комнату и сразу
// возвращает in_progress. Дальше звонок ведёт сам агент.
type Dispatch struct {
	cfg    DispatchConfig
	api    *apiClient
	logger *slog.Logger
}

var _ Provider = (*Dispatch)(nil)

// NewDispatch создаёт dispatch-провайдера.
func NewDispatch(cfg DispatchConfig) *Dispatch {
	if cfg.AgentName == "" {
		cfg.AgentName = DefaultAgentName
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatch{
		cfg:    cfg,
		api:    newAPIClient(cfg.BaseURL, cfg.APIKey, cfg.HTTPClient, 0),
		logger: cfg.Logger.With("provider", string(KindDispatch)),
	}
}

func (d *Dispatch) Kind() Kind {
	return KindDispatch
}

func (d *Dispatch) CanHandle(data map[string]any) bool {
	if _, ok := data["room"]; ok {
		return true
	}
	_, ok := data["room_name"]
	return ok
}

// RoomName генерирует уникальное имя комнаты: call_{последние 10 цифр}_{uuid8}.
func RoomName(contactNumber string) string {
	id := uuid.NewString()[:8]
	if digits := phone.LastDigits(contactNumber, 10); digits != "" {
		return fmt.Sprintf("call_%s_%s", digits, id)
	}
	return "call_" + id
}

func (d *Dispatch) ExecuteCall(ctx context.Context, req *CallRequest) (*domain.CallResult, error) {
	data := callData(req)
	data["task_id"] = req.TaskID

	customer := contactName(data)
	number := domain.StringField(data, "contact_number")
	room := RoomName(number)

	threadID := domain.StringField(data, "thread_id")
	if threadID == "" {
		threadID = req.TaskID
	}

	metadata, err := json.Marshal(map[string]any{
		"data":         data,
		"model_config": req.ModelConfig,
		"call_type":    callType(req),
	})
	if err != nil {
		return failed(number, customer, fmt.Sprintf("encode dispatch metadata: %v", err)), nil
	}

	log := d.logger.With("task_id", req.TaskID, "room", room)
	log.Info("creating agent dispatch", "agent_name", d.cfg.AgentName)

	resp, err := d.api.do(ctx, http.MethodPost, "/agent/dispatch", map[string]any{
		"agent_name": d.cfg.AgentName,
		"room":       room,
		"metadata":   string(metadata),
	})
	if err != nil {
		return nil, err
	}
	if resp.ServerError() {
		return nil, fmt.Errorf("%w: create dispatch: status %d: %s", ErrUpstream, resp.StatusCode, resp.Text())
	}
	if !resp.OK() {
		msg := errorMessage(resp)
		log.Warn("agent dispatch rejected", "status", resp.StatusCode, "error", msg)
		return failed(number, customer, msg), nil
	}

	log.Info("agent dispatch created")
	notify(ctx, req, "call.dispatched")

	return &domain.CallResult{
		Status:        domain.CallStatusInProgress,
		Customer:      customer,
		ContactNumber: number,
		CallEndReason: msgDispatched,
		Data: map[string]any{
			"call_type": "outbound",
			"cost":      0,
			"type":      "outbound",
			"thread_id": threadID,
			"room_name": room,
		},
	}, nil
}
