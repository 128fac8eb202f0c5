package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shaiso/Callflow/internal/domain"
	"github.com/shaiso/Callflow/internal/governor"
	"github.com/shaiso/Callflow/internal/mq"
	"github.com/shaiso/Callflow/internal/repo"
	"github.com/shaiso/Callflow/internal/scheduler"
	"github.com/shaiso/Callflow/internal/store"
	"github.com/shaiso/Callflow/internal/telemetry"
)

type testEnv struct {
	server *httptest.Server
	st     *store.Memory
	tasks  *repo.MemoryStore
	queue  *mq.Memory
	normal *governor.Governor
	bulk   *governor.Governor
	sched  *scheduler.Scheduler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		st:    store.NewMemory(),
		tasks: repo.NewMemoryStore(),
		queue: mq.NewMemory(),
	}
	env.normal = governor.New(env.st, governor.Config{Mode: domain.ModeNormal, DefaultCeiling: 5})
	env.bulk = governor.New(env.st, governor.Config{Mode: domain.ModeBulk, DefaultCeiling: 10})
	env.sched = scheduler.New(scheduler.Config{Store: env.st, Tasks: env.tasks, Queue: env.queue})

	h := NewHandler(Config{
		Tasks:     env.tasks,
		Queue:     env.queue,
		Store:     env.st,
		Governors: []*governor.Governor{env.normal, env.bulk},
		Collector: telemetry.NewCollector(env.st, telemetry.CollectorConfig{}),
		Deferrer:  env.sched,
		Providers: []string{"direct", "hosted"},
	})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	env.server = httptest.NewServer(mux)
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeData[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out struct {
		Data T `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out.Data
}

// --- Task Tests ---

func TestEnqueueTask(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/tasks", EnqueueTaskRequest{
		RunID: "run-1",
		Data:  map[string]any{"contact_number": "+91 98765 43210", "contact_name": "Asha"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	got := decodeData[EnqueueTaskResponse](t, resp)
	if got.TaskID == "" || got.Mode != domain.ModeNormal || got.Topic != domain.TopicNormal {
		t.Errorf("unexpected response %+v", got)
	}

	task, err := env.tasks.Get(context.Background(), got.TaskID)
	if err != nil {
		t.Fatalf("task should be stored: %v", err)
	}
	if task.Status != domain.TaskStatusPending {
		t.Errorf("expected pending, got %s", task.Status)
	}

	msgs := env.queue.Messages(domain.TopicNormal)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(msgs))
	}
	if msgs[0].ContactNumber() != "+919876543210" {
		t.Errorf("expected normalized number, got %q", msgs[0].ContactNumber())
	}
}

func TestEnqueueTask_BulkRouting(t *testing.T) {
	tests := []struct {
		name  string
		req   EnqueueTaskRequest
		topic string
	}{
		{"large batch", EnqueueTaskRequest{BatchCount: 6}, domain.TopicBulk},
		{"small batch", EnqueueTaskRequest{BatchCount: 5}, domain.TopicNormal},
		{"explicit mode", EnqueueTaskRequest{Mode: "BULK"}, domain.TopicBulk},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			tt.req.Data = map[string]any{"contact_number": "+919876543210"}

			resp := env.do(t, http.MethodPost, "/api/v1/tasks", tt.req)
			if resp.StatusCode != http.StatusCreated {
				t.Fatalf("expected 201, got %d", resp.StatusCode)
			}
			if env.queue.Len(tt.topic) != 1 {
				t.Errorf("expected message on %s", tt.topic)
			}
		})
	}
}

func TestEnqueueTask_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"invalid json", "not an object", http.StatusBadRequest},
		{"no number", EnqueueTaskRequest{Data: map[string]any{"name": "x"}}, http.StatusBadRequest},
		{"invalid number", EnqueueTaskRequest{Data: map[string]any{"contact_number": "12"}}, http.StatusUnprocessableEntity},
		{"unknown mode", EnqueueTaskRequest{Mode: "urgent", Data: map[string]any{"contact_number": "+919876543210"}}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			resp := env.do(t, http.MethodPost, "/api/v1/tasks", tt.body)
			if resp.StatusCode != tt.status {
				t.Errorf("expected %d, got %d", tt.status, resp.StatusCode)
			}
			if env.queue.Len(domain.TopicNormal) != 0 {
				t.Error("rejected request must not publish")
			}
		})
	}
}

func TestEnqueueTask_DuplicateID(t *testing.T) {
	env := newTestEnv(t)
	req := EnqueueTaskRequest{TaskID: "t1", Data: map[string]any{"contact_number": "+919876543210"}}

	if resp := env.do(t, http.MethodPost, "/api/v1/tasks", req); resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodPost, "/api/v1/tasks", req); resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %d", resp.StatusCode)
	}
}

func TestEnqueueTask_QueueUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.queue.Close()

	resp := env.do(t, http.MethodPost, "/api/v1/tasks", EnqueueTaskRequest{
		TaskID: "t1",
		Data:   map[string]any{"contact_number": "+919876543210"},
	})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	task, _ := env.tasks.Get(context.Background(), "t1")
	if task.Status != domain.TaskStatusFailed {
		t.Errorf("unpublished task should be failed, got %s", task.Status)
	}
}

func TestGetTask(t *testing.T) {
	env := newTestEnv(t)
	env.tasks.Create(context.Background(), &domain.Task{ID: "t1", RunID: "run-1"})

	resp := env.do(t, http.MethodGet, "/api/v1/tasks/t1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := decodeData[domain.Task](t, resp); got.ID != "t1" || got.Status != domain.TaskStatusPending {
		t.Errorf("unexpected task %+v", got)
	}

	if resp := env.do(t, http.MethodGet, "/api/v1/tasks/missing", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestGetRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.tasks.Create(ctx, &domain.Task{ID: "t1", RunID: "run-1"})
	env.tasks.Create(ctx, &domain.Task{ID: "t2", RunID: "run-1"})
	env.tasks.Create(ctx, &domain.Task{ID: "t3", RunID: "run-2"})

	resp := env.do(t, http.MethodGet, "/api/v1/runs/run-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	got := decodeData[RunResponse](t, resp)
	if got.Run.ID != "run-1" || len(got.Tasks) != 2 {
		t.Errorf("unexpected run %+v", got)
	}

	if resp := env.do(t, http.MethodGet, "/api/v1/runs/none", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

// --- Ops Tests ---

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.normal.Increment(ctx, "direct")
	env.bulk.Increment(ctx, "hosted")
	env.bulk.Increment(ctx, "hosted")
	env.tasks.Create(ctx, &domain.Task{ID: "t1"})

	resp := env.do(t, http.MethodGet, "/api/v1/stats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	got := decodeData[StatsResponse](t, resp)
	if len(got.Modes) != 2 {
		t.Fatalf("expected 2 modes, got %d", len(got.Modes))
	}
	if got.Modes[0].Counters["direct"] != 1 || got.Modes[1].Counters["hosted"] != 2 {
		t.Errorf("unexpected counters %+v", got.Modes)
	}
	if got.Modes[1].Ceilings["hosted"] != 10 {
		t.Errorf("expected bulk ceiling 10, got %d", got.Modes[1].Ceilings["hosted"])
	}
	if got.Modes[0].SLA != telemetry.DefaultSLANormal {
		t.Errorf("expected normal SLA %v, got %v", telemetry.DefaultSLANormal, got.Modes[0].SLA)
	}
	if got.Tasks[domain.TaskStatusPending] != 1 {
		t.Errorf("expected 1 pending task, got %v", got.Tasks)
	}
}

func TestScheduledAndSweep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.tasks.Create(ctx, &domain.Task{ID: "due"})
	env.tasks.Create(ctx, &domain.Task{ID: "later"})

	env.sched.Defer(ctx, domain.TaskMessage{TaskID: "due"}, domain.ModeNormal, time.Now().Add(-time.Minute))
	env.sched.Defer(ctx, domain.TaskMessage{TaskID: "later"}, domain.ModeBulk, time.Now().Add(time.Hour))

	resp := env.do(t, http.MethodGet, "/api/v1/scheduled", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	entries := decodeData[[]scheduler.Entry](t, resp)
	if len(entries) != 2 || entries[0].TaskID != "due" {
		t.Errorf("unexpected entries %+v", entries)
	}

	resp = env.do(t, http.MethodPost, "/api/v1/scheduled/sweep", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	got := decodeData[SweepResponse](t, resp)
	if got.Requeued != 1 || got.Remaining != 1 {
		t.Errorf("unexpected sweep result %+v", got)
	}
	if env.queue.Len(domain.TopicNormal) != 1 {
		t.Error("due task should be requeued")
	}

	if resp := env.do(t, http.MethodGet, "/api/v1/scheduled?limit=0", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid limit, got %d", resp.StatusCode)
	}
}

func TestResetCounters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.normal.Increment(ctx, "direct")
	env.bulk.Increment(ctx, "direct")

	resp := env.do(t, http.MethodPost, "/api/v1/counters/reset", ResetCountersRequest{Mode: "bulk"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if v, _ := env.bulk.Current(ctx, "direct"); v != 0 {
		t.Errorf("bulk counter should be reset, got %d", v)
	}
	if v, _ := env.normal.Current(ctx, "direct"); v != 1 {
		t.Errorf("normal counter must stay, got %d", v)
	}

	// пустое тело — все режимы
	resp = env.do(t, http.MethodPost, "/api/v1/counters/reset", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := decodeData[ResetCountersResponse](t, resp); len(got.Modes) != 2 {
		t.Errorf("expected both modes reset, got %+v", got)
	}
	if v, _ := env.normal.Current(ctx, "direct"); v != 0 {
		t.Errorf("normal counter should be reset, got %d", v)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	if resp := env.do(t, http.MethodGet, "/healthz", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	env.st.FailWith(errors.New("redis down"))
	if resp := env.do(t, http.MethodGet, "/healthz", nil); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
}

// --- Middleware Tests ---

func TestRequestID(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/v1/stats", nil)
	if resp.Header.Get(HeaderRequestID) == "" {
		t.Error("response should carry a generated request id")
	}

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/api/v1/tasks/none", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp2.Body.Close()
	if got := resp2.Header.Get(HeaderRequestID); got != "req-42" {
		t.Errorf("expected request id to be echoed, got %q", got)
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(NewHandler(Config{}).logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
