package provider

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/shaiso/Callflow/internal/domain"
)

// Kind — вариант провайдера.
type Kind string

const (
	// KindHosted — hosted REST API: звонок создаётся асинхронно, статус опрашивается.
	KindHosted Kind = "hosted"

	// KindDispatch — явный dispatch голосового агента в новую комнату.
	KindDispatch Kind = "dispatch"

	// KindDirect — синхронный звонок: upstream отвечает уже завершённым звонком.
	KindDirect Kind = "direct"
)

// SelectionOrder — порядок перебора провайдеров по CanHandle.
var SelectionOrder = []Kind{KindHosted, KindDirect, KindDispatch}

// String возвращает строковое представление Kind.
func (k Kind) String() string {
	return string(k)
}

// ParseKind парсит строку в Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindHosted, KindDispatch, KindDirect:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
}

// Kinds возвращает все варианты провайдеров.
func Kinds() []string {
	return []string{string(KindHosted), string(KindDispatch), string(KindDirect)}
}

// Callback получает промежуточные события звонка (смена статуса upstream).
type Callback func(ctx context.Context, taskID, event string)

// CallRequest — входные данные звонка.
type CallRequest struct {
	AgentID      string
	TaskID       string
	Data         map[string]any
	Instructions string
	ModelConfig  map[string]any
	Callback     Callback
	CallType     string
}

// Provider — интерфейс провайдера звонков.
//
// Итог самого звонка (не дозвонились, голосовая почта, неверный номер)
// возвращается как CallResult со статусом failed. Ошибка возвращается
// только для инфраструктурных проблем и оборачивает ErrUpstream или
// ErrStatusFetch.
type Provider interface {
	// Kind возвращает вариант провайдера.
	Kind() Kind

	// CanHandle проверяет, подходят ли данные task этому провайдеру.
	CanHandle(data map[string]any) bool

	// ExecuteCall выполняет звонок.
	ExecuteCall(ctx context.Context, req *CallRequest) (*domain.CallResult, error)
}

// DefaultObjective — цель звонка, если instructions не заданы.
const DefaultObjective = "Say hi, this is your voice assistant"

// callData копирует data и дополняет её objective и agent_id.
func callData(req *CallRequest) map[string]any {
	data := make(map[string]any, len(req.Data)+2)
	maps.Copy(data, req.Data)

	if req.Instructions != "" {
		data["objective"] = req.Instructions
	} else {
		data["objective"] = DefaultObjective
	}
	data["agent_id"] = req.AgentID
	return data
}

// contactName возвращает имя собеседника: contact_name, name или "User".
func contactName(data map[string]any) string {
	if v := domain.StringField(data, "contact_name"); v != "" {
		return v
	}
	if v := domain.StringField(data, "name"); v != "" {
		return v
	}
	return "User"
}

func callType(req *CallRequest) string {
	if req.CallType == "" {
		return "outbound"
	}
	return req.CallType
}

// notify вызывает callback, если он задан.
func notify(ctx context.Context, req *CallRequest, event string) {
	if req.Callback != nil {
		req.Callback(ctx, req.TaskID, event)
	}
}

// sleep ждёт d или отмены ctx.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// failed собирает CallResult со статусом failed и стандартными data-полями.
func failed(contactNumber, customer, errText string) *domain.CallResult {
	r := domain.FailedResult(contactNumber, errText)
	r.Customer = customer
	r.Data = map[string]any{
		"call_type": "outbound",
		"cost":      0,
		"type":      "outboundPhoneCall",
		"error":     errText,
	}
	return r
}
