package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// TaskResponse — task из API.
type TaskResponse struct {
	ID                string         `json:"task_id"`
	RunID             string         `json:"run_id,omitempty"`
	AgentID           string         `json:"agent_id,omitempty"`
	Status            string         `json:"status"`
	RetryAttempt      int            `json:"retry_attempt"`
	Input             map[string]any `json:"input,omitempty"`
	Output            map[string]any `json:"output,omitempty"`
	Provider          string         `json:"provider,omitempty"`
	LastFailureReason string         `json:"last_failure_reason,omitempty"`
	ScheduledAt       string         `json:"scheduled_at,omitempty"`
	CreatedAt         string         `json:"created_at"`
	UpdatedAt         string         `json:"updated_at"`
}

// EnqueueResponse — результат постановки task.
type EnqueueResponse struct {
	TaskID string `json:"task_id"`
	RunID  string `json:"run_id,omitempty"`
	Mode   string `json:"mode"`
	Topic  string `json:"topic"`
}

// RunResponse — run вместе с tasks.
type RunResponse struct {
	Run struct {
		ID         string `json:"run_id"`
		Status     string `json:"status"`
		FinishedAt string `json:"finished_at,omitempty"`
		CreatedAt  string `json:"created_at"`
	} `json:"run"`
	Tasks []TaskResponse `json:"tasks"`
}

// LatencyStats — задержки режима.
type LatencyStats struct {
	Count   int           `json:"count"`
	Average time.Duration `json:"average"`
	P95     time.Duration `json:"p95"`
}

// ModeStats — состояние режима.
type ModeStats struct {
	Mode     string           `json:"mode"`
	Counters map[string]int64 `json:"counters"`
	Ceilings map[string]int   `json:"ceilings"`
	Latency  LatencyStats     `json:"latency"`
	SLA      time.Duration    `json:"sla"`
}

// StatsResponse — сводная статистика.
type StatsResponse struct {
	Tasks     map[string]int `json:"tasks,omitempty"`
	Modes     []ModeStats    `json:"modes"`
	Scheduled int64          `json:"scheduled"`
}

// ScheduledEntry — отложенная task.
type ScheduledEntry struct {
	TaskID  string `json:"task_id"`
	ReadyAt string `json:"ready_at"`
}

// SweepResponse — итог sweep.
type SweepResponse struct {
	Due       int   `json:"due"`
	Requeued  int   `json:"requeued"`
	Stale     int   `json:"stale"`
	Corrupt   int   `json:"corrupt"`
	Failed    int   `json:"failed"`
	Skipped   int   `json:"skipped"`
	Remaining int64 `json:"remaining"`
}

// ResetResponse — что было сброшено.
type ResetResponse struct {
	Modes     []string `json:"modes"`
	Providers []string `json:"providers"`
}

// --- Request types ---

// EnqueueRequest — постановка звонка в очередь.
type EnqueueRequest struct {
	TaskID       string         `json:"task_id,omitempty"`
	RunID        string         `json:"run_id,omitempty"`
	AgentID      string         `json:"agent_id,omitempty"`
	Data         map[string]any `json:"data"`
	Instructions string         `json:"instructions,omitempty"`
	ModelConfig  map[string]any `json:"model_config,omitempty"`
	BatchCount   int            `json:"batch_count,omitempty"`
	Mode         string         `json:"mode,omitempty"`
}

// ResetRequest — сброс счётчиков.
type ResetRequest struct {
	Mode      string   `json:"mode,omitempty"`
	Providers []string `json:"providers,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для admin API Callflow.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Tasks ---

// EnqueueTask создаёт task и ставит её в очередь.
func (c *Client) EnqueueTask(req EnqueueRequest) (*EnqueueResponse, error) {
	var resp EnqueueResponse
	err := c.post("/api/v1/tasks", req, &resp)
	return &resp, err
}

// GetTask возвращает task по ID.
func (c *Client) GetTask(id string) (*TaskResponse, error) {
	var task TaskResponse
	err := c.get("/api/v1/tasks/"+url.PathEscape(id), &task)
	return &task, err
}

// GetRun возвращает run и его tasks.
func (c *Client) GetRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.get("/api/v1/runs/"+url.PathEscape(id), &run)
	return &run, err
}

// --- Ops ---

// Stats возвращает сводную статистику.
func (c *Client) Stats() (*StatsResponse, error) {
	var stats StatsResponse
	err := c.get("/api/v1/stats", &stats)
	return &stats, err
}

// ListScheduled возвращает отложенные tasks.
func (c *Client) ListScheduled(limit int) ([]ScheduledEntry, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var entries []ScheduledEntry
	err := c.list("/api/v1/scheduled", params, &entries)
	return entries, err
}

// Sweep возвращает в очередь созревшие отложенные tasks.
func (c *Client) Sweep() (*SweepResponse, error) {
	var resp SweepResponse
	err := c.post("/api/v1/scheduled/sweep", nil, &resp)
	return &resp, err
}

// ResetCounters обнуляет счётчики провайдеров.
func (c *Client) ResetCounters(req ResetRequest) (*ResetResponse, error) {
	var resp ResetResponse
	err := c.post("/api/v1/counters/reset", req, &resp)
	return &resp, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
