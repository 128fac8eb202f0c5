package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 10 * 1024 * 1024 // 10 MB
)

// apiClient — JSON-клиент upstream API провайдера.
type apiClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func newAPIClient(baseURL, apiKey string, client *http.Client, timeout time.Duration) *apiClient {
	if client == nil {
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

// apiResponse — ответ upstream.
type apiResponse struct {
	StatusCode int
	Body       []byte
}

// OK возвращает true для 2xx.
func (r *apiResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// ServerError возвращает true для 5xx.
func (r *apiResponse) ServerError() bool {
	return r.StatusCode >= 500
}

// Decode парсит тело ответа в out.
func (r *apiResponse) Decode(out any) error {
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Text возвращает тело ответа строкой (обрезанной для логов и ошибок).
func (r *apiResponse) Text() string {
	const limit = 500
	s := strings.TrimSpace(string(r.Body))
	if len(s) > limit {
		s = s[:limit]
	}
	return s
}

// do выполняет запрос. Сетевые ошибки оборачиваются в ErrUpstream,
// HTTP-статус любого значения возвращается в apiResponse.
func (c *apiClient) do(ctx context.Context, method, path string, body any) (*apiResponse, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("serialize body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUpstream, method, path, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUpstream, err)
	}

	return &apiResponse{StatusCode: resp.StatusCode, Body: b}, nil
}
