package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Callflow/internal/domain"
)

const testNumber = "+919876543210"

// fakeProvider — провайдер с настраиваемым CanHandle.
type fakeProvider struct {
	kind    Kind
	handles func(map[string]any) bool
}

func (p *fakeProvider) Kind() Kind { return p.kind }

func (p *fakeProvider) CanHandle(data map[string]any) bool {
	if p.handles == nil {
		return false
	}
	return p.handles(data)
}

func (p *fakeProvider) ExecuteCall(context.Context, *CallRequest) (*domain.CallResult, error) {
	return &domain.CallResult{Status: domain.CallStatusCompleted}, nil
}

func hasKey(key string) func(map[string]any) bool {
	return func(data map[string]any) bool {
		_, ok := data[key]
		return ok
	}
}

// --- Registry Tests ---

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if r.Count() != 0 {
		t.Errorf("expected empty registry")
	}

	r.Register(&fakeProvider{kind: KindHosted})
	r.Register(&fakeProvider{kind: KindDirect})
	if r.Count() != 2 {
		t.Errorf("expected 2 providers, got %d", r.Count())
	}

	if _, err := r.Get(KindHosted); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := r.Get(KindDispatch); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}

	kinds := r.Kinds()
	if len(kinds) != 2 || kinds[0] != "direct" || kinds[1] != "hosted" {
		t.Errorf("unexpected kinds: %v", kinds)
	}
}

func TestParseKind(t *testing.T) {
	for _, s := range Kinds() {
		if _, err := ParseKind(s); err != nil {
			t.Errorf("ParseKind(%q): %v", s, err)
		}
	}
	if _, err := ParseKind("sms"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}
}

// --- Selector Tests ---

func TestSelector_Select(t *testing.T) {
	registry := NewRegistry(
		&fakeProvider{kind: KindHosted, handles: hasKey("contact_number")},
		&fakeProvider{kind: KindDirect, handles: hasKey("contact_number")},
		&fakeProvider{kind: KindDispatch, handles: hasKey("room")},
	)

	tests := []struct {
		name        string
		defaultKind Kind
		data        map[string]any
		modelConfig map[string]any
		want        Kind
		wantErr     error
	}{
		{
			name:        "override in model config",
			data:        map[string]any{"contact_number": testNumber},
			modelConfig: map[string]any{"provider": "dispatch"},
			want:        KindDispatch,
		},
		{
			name: "override in data",
			data: map[string]any{"contact_number": testNumber, "provider": "Direct"},
			want: KindDirect,
		},
		{
			name:        "unknown override",
			data:        map[string]any{"contact_number": testNumber},
			modelConfig: map[string]any{"provider": "carrier-pigeon"},
			wantErr:     ErrUnknownProvider,
		},
		{
			name:        "unknown override is a selection error",
			data:        map[string]any{"contact_number": testNumber},
			modelConfig: map[string]any{"provider": "carrier-pigeon"},
			wantErr:     ErrProviderSelection,
		},
		{
			name:        "high quality routes to direct",
			data:        map[string]any{"contact_number": testNumber},
			modelConfig: map[string]any{"quality": "high"},
			want:        KindDirect,
		},
		{
			name:        "environment default",
			defaultKind: KindDispatch,
			data:        map[string]any{"contact_number": testNumber},
			want:        KindDispatch,
		},
		{
			name: "first capable in order",
			data: map[string]any{"contact_number": testNumber},
			want: KindHosted,
		},
		{
			name: "room goes to dispatch",
			data: map[string]any{"room": "r1"},
			want: KindDispatch,
		},
		{
			name:    "nobody can handle",
			data:    map[string]any{"email": "a@b.c"},
			wantErr: ErrProviderSelection,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSelector(registry, tt.defaultKind)
			got, err := s.Select(tt.data, tt.modelConfig)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

// --- State Machine Tests ---

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		history    []string
		reason     string
		wantDone   bool
		wantStatus domain.CallStatus
		wantErr    string
	}{
		{"queued keeps polling", []string{"queued"}, "", false, "", ""},
		{"ringing keeps polling", []string{"queued", "ringing"}, "", false, "", ""},
		{"unknown keeps polling", []string{"forwarding"}, "", false, "", ""},
		{
			name:       "ended after in-progress completes",
			history:    []string{"queued", "ringing", "in-progress", "ended"},
			reason:     "customer-ended-call",
			wantDone:   true,
			wantStatus: domain.CallStatusCompleted,
		},
		{
			name:       "ended after ringing fails with reason",
			history:    []string{"queued", "ringing", "ended"},
			reason:     "customer-did-not-answer",
			wantDone:   true,
			wantStatus: domain.CallStatusFailed,
			wantErr:    "customer-did-not-answer",
		},
		{
			name:       "ended after ringing without reason",
			history:    []string{"ringing", "ended"},
			wantDone:   true,
			wantStatus: domain.CallStatusFailed,
			wantErr:    msgFailedDuringRinging,
		},
		{
			name:    "sip completed keeps polling",
			history: []string{"ringing", "in-progress", "ended"},
			reason:  sipCompletedReason,
		},
		{
			name:       "ended from queued is unexpected",
			history:    []string{"queued", "ended"},
			reason:     "assistant-error",
			wantDone:   true,
			wantStatus: domain.CallStatusFailed,
			wantErr:    msgEndedUnexpectedly,
		},
		{
			name:       "ended on first poll is unexpected",
			history:    []string{"ended"},
			reason:     "assistant-error",
			wantDone:   true,
			wantStatus: domain.CallStatusFailed,
			wantErr:    msgEndedUnexpectedly,
		},
		{
			name:       "outcome follows first ended",
			history:    []string{"ringing", "in-progress", "ended", "ended"},
			reason:     "customer-ended-call",
			wantDone:   true,
			wantStatus: domain.CallStatusCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := evaluate(tt.history, tt.reason)
			if v.done != tt.wantDone {
				t.Fatalf("done: expected %v, got %v", tt.wantDone, v.done)
			}
			if v.status != tt.wantStatus {
				t.Errorf("status: expected %q, got %q", tt.wantStatus, v.status)
			}
			if v.errText != tt.wantErr {
				t.Errorf("error: expected %q, got %q", tt.wantErr, v.errText)
			}
		})
	}
}

// --- Hosted Tests ---

// fakeHostedAPI — upstream hosted API с заранее заданной последовательностью ответов.
type fakeHostedAPI struct {
	mu sync.Mutex

	active      []int
	createCodes []int
	statuses    []hostedCall
	statusCodes []int

	activeCalls int
	createCalls int
	statusCalls int
	created     map[string]any
}

func (f *fakeHostedAPI) next(seq []int, i int, fallback int) int {
	if len(seq) == 0 {
		return fallback
	}
	if i >= len(seq) {
		return seq[len(seq)-1]
	}
	return seq[i]
}

func (f *fakeHostedAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/call/concurrency":
		n := f.next(f.active, f.activeCalls, 0)
		f.activeCalls++
		json.NewEncoder(w).Encode(map[string]any{"active": n})

	case r.Method == http.MethodPost && r.URL.Path == "/call":
		code := f.next(f.createCodes, f.createCalls, http.StatusCreated)
		f.createCalls++
		json.NewDecoder(r.Body).Decode(&f.created)
		w.WriteHeader(code)
		if code < 300 {
			json.NewEncoder(w).Encode(map[string]any{"id": "call-1"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"message": "upstream said no"})

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/call/"):
		i := f.statusCalls
		f.statusCalls++
		code := f.next(f.statusCodes, i, http.StatusOK)
		if code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		if len(f.statuses) == 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		call := f.statuses[min(i, len(f.statuses)-1)]
		json.NewEncoder(w).Encode(call)

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/phone-number/"):
		json.NewEncoder(w).Encode(map[string]any{"number": "+918000000000"})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// counts возвращает число обращений к каждому endpoint.
func (f *fakeHostedAPI) counts() (active, create, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeCalls, f.createCalls, f.statusCalls
}

func (f *fakeHostedAPI) createdBody() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

func newTestHosted(t *testing.T, api *fakeHostedAPI) *Hosted {
	t.Helper()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	return NewHosted(HostedConfig{
		BaseURL:             server.URL,
		APIKey:              "test-key",
		MaxConcurrentCalls:  2,
		ChannelWaitInterval: time.Millisecond,
		CheckRetryDelay:     time.Millisecond,
		CallMaxRetries:      1,
		CallRetryDelay:      time.Millisecond,
		PollInterval:        time.Millisecond,
		MaxPollDuration:     5 * time.Second,
		StatusRetries:       3,
		StatusRetryDelay:    time.Millisecond,
	})
}

func callRequest(data map[string]any) *CallRequest {
	return &CallRequest{
		AgentID: "agent-1",
		TaskID:  "task-1",
		Data:    data,
	}
}

func TestHosted_Completed(t *testing.T) {
	started := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	ended := started.Add(90 * time.Second)

	api := &fakeHostedAPI{
		active: []int{3, 1},
		statuses: []hostedCall{
			{ID: "call-1", Status: "queued"},
			{ID: "call-1", Status: "ringing"},
			{ID: "call-1", Status: "in-progress"},
			{
				ID:            "call-1",
				Status:        "ended",
				EndedReason:   "customer-ended-call",
				StartedAt:     &started,
				EndedAt:       &ended,
				Cost:          0.42,
				PhoneNumberID: "pn-1",
				Messages: []hostedMessage{
					{Role: "assistant", Message: "Hello"},
					{Role: "user", Message: "Hi"},
				},
			},
		},
	}
	h := newTestHosted(t, api)

	var events []string
	req := callRequest(map[string]any{"contact_number": testNumber, "name": "Asha"})
	req.Callback = func(_ context.Context, _ string, event string) {
		events = append(events, event)
	}

	res, err := h.ExecuteCall(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != domain.CallStatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", res.Status, res.Error)
	}
	if res.CallID != "call-1" || res.Customer != "Asha" || res.ContactNumber != testNumber {
		t.Errorf("unexpected identity fields: %+v", res)
	}
	if res.Duration != 90 {
		t.Errorf("expected duration 90, got %v", res.Duration)
	}
	if res.Cost != 0.42 {
		t.Errorf("expected cost 0.42, got %v", res.Cost)
	}
	if len(res.Transcript) != 2 {
		t.Errorf("expected 2 transcript entries, got %d", len(res.Transcript))
	}
	if res.Data["assistant_number"] != "+918000000000" {
		t.Errorf("expected assistant number, got %v", res.Data["assistant_number"])
	}

	if active, _, _ := api.counts(); active != 2 {
		t.Errorf("expected channel wait to check twice, got %d", active)
	}
	overrides, _ := api.createdBody()["assistantOverrides"].(map[string]any)
	values, _ := overrides["variableValues"].(map[string]any)
	if values["objective"] != DefaultObjective {
		t.Errorf("expected default objective, got %v", values["objective"])
	}
	if len(events) == 0 || events[0] != "call.created" {
		t.Errorf("unexpected events: %v", events)
	}
}

func TestHosted_FailedDuringRinging(t *testing.T) {
	api := &fakeHostedAPI{
		statuses: []hostedCall{
			{ID: "call-1", Status: "ringing"},
			{ID: "call-1", Status: "ended", EndedReason: "customer-did-not-answer", Cost: 0.1},
		},
	}
	h := newTestHosted(t, api)

	res, err := h.ExecuteCall(context.Background(), callRequest(map[string]any{"contact_number": testNumber}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != domain.CallStatusFailed {
		t.Fatalf("expected failed, got %s", res.Status)
	}
	if res.Error != "customer-did-not-answer" {
		t.Errorf("unexpected error text: %q", res.Error)
	}
	if res.Cost != 0 {
		t.Errorf("failed call should cost 0, got %v", res.Cost)
	}
}

func TestHosted_SipCompletedKeepsPolling(t *testing.T) {
	api := &fakeHostedAPI{
		statuses: []hostedCall{
			{ID: "call-1", Status: "in-progress"},
			{ID: "call-1", Status: "ended", EndedReason: sipCompletedReason},
			{ID: "call-1", Status: "ended", EndedReason: "customer-ended-call"},
		},
	}
	h := newTestHosted(t, api)

	res, err := h.ExecuteCall(context.Background(), callRequest(map[string]any{"contact_number": testNumber}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != domain.CallStatusCompleted {
		t.Errorf("expected completed, got %s", res.Status)
	}
	if _, _, polls := api.counts(); polls != 3 {
		t.Errorf("expected 3 status polls, got %d", polls)
	}
}

func TestHosted_StatusFetchExhausted(t *testing.T) {
	api := &fakeHostedAPI{
		statusCodes: []int{http.StatusBadGateway},
	}
	h := newTestHosted(t, api)

	res, err := h.ExecuteCall(context.Background(), callRequest(map[string]any{"contact_number": testNumber}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Error != msgStatusFetchFailed {
		t.Errorf("unexpected error text: %q", res.Error)
	}
	if _, _, polls := api.counts(); polls != 3 {
		t.Errorf("expected 3 fetch attempts on 5xx, got %d", polls)
	}
}

func TestHosted_StatusFetchClientErrorStops(t *testing.T) {
	api := &fakeHostedAPI{
		statusCodes: []int{http.StatusNotFound},
	}
	h := newTestHosted(t, api)

	res, _ := h.ExecuteCall(context.Background(), callRequest(map[string]any{"contact_number": testNumber}))
	if res == nil || res.Status != domain.CallStatusFailed {
		t.Fatalf("expected failed result, got %+v", res)
	}
	if _, _, polls := api.counts(); polls != 1 {
		t.Errorf("4xx must not be retried, got %d attempts", polls)
	}
}

func TestHosted_PollingTimeout(t *testing.T) {
	api := &fakeHostedAPI{
		statuses: []hostedCall{{ID: "call-1", Status: "ringing"}},
	}
	h := newTestHosted(t, api)
	h.cfg.MaxPollDuration = 20 * time.Millisecond

	res, err := h.ExecuteCall(context.Background(), callRequest(map[string]any{"contact_number": testNumber}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(res.Error, "Failed to get call status: polling timeout after") {
		t.Errorf("unexpected error text: %q", res.Error)
	}
}

func TestHosted_CreateRetriedThenUpstreamError(t *testing.T) {
	api := &fakeHostedAPI{
		createCodes: []int{http.StatusInternalServerError},
	}
	h := newTestHosted(t, api)

	_, err := h.ExecuteCall(context.Background(), callRequest(map[string]any{"contact_number": testNumber}))
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if _, creates, _ := api.counts(); creates != 2 {
		t.Errorf("expected 2 create attempts, got %d", creates)
	}
}

func TestHosted_CreateRejected(t *testing.T) {
	api := &fakeHostedAPI{
		createCodes: []int{http.StatusBadRequest},
	}
	h := newTestHosted(t, api)

	res, err := h.ExecuteCall(context.Background(), callRequest(map[string]any{"contact_number": testNumber}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != domain.CallStatusFailed || res.Error != "upstream said no" {
		t.Errorf("unexpected result: %+v", res)
	}
	if _, creates, _ := api.counts(); creates != 1 {
		t.Errorf("4xx create must not be retried, got %d", creates)
	}
}

func TestHosted_ContactValidation(t *testing.T) {
	h := newTestHosted(t, &fakeHostedAPI{})

	res, _ := h.ExecuteCall(context.Background(), callRequest(map[string]any{"name": "x"}))
	if res.Error != msgNoContactNumber {
		t.Errorf("expected %q, got %q", msgNoContactNumber, res.Error)
	}

	res, _ = h.ExecuteCall(context.Background(), callRequest(map[string]any{"contact_number": "12"}))
	if res.Error != msgInvalidNumber {
		t.Errorf("expected %q, got %q", msgInvalidNumber, res.Error)
	}
}

func TestHosted_ContextCancelled(t *testing.T) {
	api := &fakeHostedAPI{active: []int{100}}
	h := newTestHosted(t, api)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := h.ExecuteCall(ctx, callRequest(map[string]any{"contact_number": testNumber}))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

// --- Dispatch Tests ---

func TestRoomName(t *testing.T) {
	name := RoomName("+91 98765-43210")
	if !strings.HasPrefix(name, "call_9876543210_") || len(name) != len("call_9876543210_")+8 {
		t.Errorf("unexpected room name: %s", name)
	}

	if name := RoomName(""); !strings.HasPrefix(name, "call_") || len(name) != len("call_")+8 {
		t.Errorf("unexpected room name without number: %s", name)
	}
}

func TestDispatch_ExecuteCall(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/agent/dispatch" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing authorization header")
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewDispatch(DispatchConfig{BaseURL: server.URL, APIKey: "key", AgentName: "agent-x"})
	if !d.CanHandle(map[string]any{"room_name": "r"}) || d.CanHandle(map[string]any{"contact_number": testNumber}) {
		t.Error("unexpected CanHandle result")
	}

	res, err := d.ExecuteCall(context.Background(), callRequest(map[string]any{
		"contact_number": testNumber,
		"room":           "placeholder",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != domain.CallStatusInProgress {
		t.Errorf("expected in_progress, got %s", res.Status)
	}
	if res.CallEndReason != msgDispatched {
		t.Errorf("unexpected end reason: %q", res.CallEndReason)
	}
	if res.Data["thread_id"] != "task-1" {
		t.Errorf("expected thread_id fallback to task id, got %v", res.Data["thread_id"])
	}

	room, _ := got["room"].(string)
	if room != res.Data["room_name"] || !strings.HasPrefix(room, "call_9876543210_") {
		t.Errorf("unexpected room: %q", room)
	}
	if got["agent_name"] != "agent-x" {
		t.Errorf("unexpected agent name: %v", got["agent_name"])
	}

	var meta map[string]any
	if err := json.Unmarshal([]byte(got["metadata"].(string)), &meta); err != nil {
		t.Fatalf("metadata is not json: %v", err)
	}
	data, _ := meta["data"].(map[string]any)
	if data["task_id"] != "task-1" || data["agent_id"] != "agent-1" {
		t.Errorf("unexpected metadata data: %v", data)
	}
}

func TestDispatch_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	d := NewDispatch(DispatchConfig{BaseURL: server.URL})
	_, err := d.ExecuteCall(context.Background(), callRequest(map[string]any{"room": "r"}))
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("expected ErrUpstream, got %v", err)
	}
}

// --- Direct Tests ---

func TestDirect_ExecuteCall(t *testing.T) {
	tests := []struct {
		name       string
		response   map[string]any
		wantStatus domain.CallStatus
		wantErr    string
	}{
		{
			name: "completed",
			response: map[string]any{
				"status":      "completed",
				"call_id":     "d-1",
				"call_status": "completed",
				"started_at":  "2025-01-01T10:00:00Z",
				"ended_at":    "2025-01-01T10:01:00Z",
				"cost":        0.2,
				"transcript":  []map[string]any{{"role": "user", "content": "hi"}},
			},
			wantStatus: domain.CallStatusCompleted,
		},
		{
			name: "failed with error",
			response: map[string]any{
				"status":      "completed",
				"call_status": "failed",
				"error":       "user busy",
			},
			wantStatus: domain.CallStatusFailed,
			wantErr:    "user busy",
		},
		{
			name: "failed status uses end reason",
			response: map[string]any{
				"status":     "failed",
				"end_reason": "voicemail",
			},
			wantStatus: domain.CallStatusFailed,
			wantErr:    "voicemail",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/calls" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(tt.response)
			}))
			defer server.Close()

			d := NewDirect(DirectConfig{BaseURL: server.URL})
			res, err := d.ExecuteCall(context.Background(), callRequest(map[string]any{"contact_number": testNumber}))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Status != tt.wantStatus {
				t.Errorf("expected %s, got %s", tt.wantStatus, res.Status)
			}
			if res.Error != tt.wantErr {
				t.Errorf("expected error %q, got %q", tt.wantErr, res.Error)
			}
			if tt.wantStatus == domain.CallStatusCompleted && res.Duration != 60 {
				t.Errorf("expected duration 60, got %v", res.Duration)
			}
		})
	}
}

func TestDirect_MissingContactNumber(t *testing.T) {
	d := NewDirect(DirectConfig{BaseURL: "http://127.0.0.1:1"})
	res, err := d.ExecuteCall(context.Background(), callRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Error != msgNoContactNumber {
		t.Errorf("unexpected error text: %q", res.Error)
	}
}
