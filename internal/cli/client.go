package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// --- Response types (дублируются из api, CLI не импортирует пакет api) ---

// CallResult — ответ flow-эндпоинта.
type CallResult struct {
	Success         bool         `json:"success"`
	Code            string       `json:"code"`
	Message         string       `json:"message"`
	Flow            string       `json:"flow,omitempty"`
	TraceID         string       `json:"trace_id"`
	FlowSummary     *CallSummary `json:"flow_summary,omitempty"`
	FinalOutput     any          `json:"final_output,omitempty"`
	DurationSeconds float64      `json:"duration_seconds,omitempty"`
	Timestamp       int64        `json:"timestamp"`
}

// CallSummary — сводка запуска из ответа.
type CallSummary struct {
	Steps        map[string]CallStep `json:"steps"`
	UsageSummary CallUsage           `json:"usage_summary"`
}

// CallStep — итог одного шага из ответа.
type CallStep struct {
	Name         string `json:"name"`
	Output       any    `json:"output"`
	TotalTokens  int    `json:"total_tokens"`
	RequestCount int    `json:"request_count"`
}

// CallUsage — суммарный расход запуска из ответа.
type CallUsage struct {
	TotalRequests int `json:"total_requests"`
	TotalTokens   int `json:"total_tokens"`
}

// ScheduleEntry — расписание из API.
type ScheduleEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CronExpr    string `json:"cron_expr,omitempty"`
	IntervalSec int    `json:"interval_sec,omitempty"`
	Flow        string `json:"flow"`
	Input       string `json:"input,omitempty"`
	NextRunAt   string `json:"next_run_at,omitempty"`
	LastRunAt   string `json:"last_run_at,omitempty"`
	LastRunID   string `json:"last_run_id,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// CreateScheduleRequest — создание расписания.
type CreateScheduleRequest struct {
	Name        string `json:"name"`
	CronExpr    string `json:"cron_expr,omitempty"`
	IntervalSec int    `json:"interval_sec,omitempty"`
	Flow        string `json:"flow"`
	Input       string `json:"input,omitempty"`
}

// Health — состояние сервера из /healthz.
type Health struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Version       string  `json:"version"`
	Endpoints     int     `json:"endpoints"`
}

// --- API response wrappers ---

type dataResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Total   int             `json:"total"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	TraceID string `json:"trace_id"`
}

// --- Client ---

// Client — HTTP-клиент для taskflow API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient создаёт клиент для API. Таймаут покрывает запрос целиком,
// включая ожидание запуска flow.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Call запускает flow по полному URL эндпоинта и возвращает итог.
func (c *Client) Call(url string, input any) (*CallResult, error) {
	resp, err := c.do(http.MethodPost, url, map[string]any{"input": input})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, apiError(resp.StatusCode, body)
	}

	var result CallResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

// Healthz возвращает состояние сервера.
func (c *Client) Healthz() (*Health, error) {
	resp, err := c.do(http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	var health Health
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &health, nil
}

// ListSchedules возвращает все расписания.
func (c *Client) ListSchedules() ([]ScheduleEntry, error) {
	var entries []ScheduleEntry
	if err := c.doData(http.MethodGet, c.baseURL+"/api/v1/schedules", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// CreateSchedule создаёт расписание.
func (c *Client) CreateSchedule(req CreateScheduleRequest) (*ScheduleEntry, error) {
	var entry ScheduleEntry
	if err := c.doData(http.MethodPost, c.baseURL+"/api/v1/schedules", req, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// DeleteSchedule удаляет расписание по ID.
func (c *Client) DeleteSchedule(id string) error {
	resp, err := c.do(http.MethodDelete, c.baseURL+"/api/v1/schedules/"+id, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return apiError(resp.StatusCode, body)
	}
	return nil
}

// --- HTTP helpers ---

func (c *Client) doData(method, url string, body any, result any) error {
	resp, err := c.do(method, url, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return apiError(resp.StatusCode, data)
	}

	var dr dataResponse
	if err := json.Unmarshal(data, &dr); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if result != nil && len(dr.Data) > 0 {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, url string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	return c.httpClient.Do(req)
}

// apiError преобразует тело ошибки API в error.
func apiError(status int, body []byte) error {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Code == "" {
		return fmt.Errorf("API error: HTTP %d", status)
	}
	if er.Details != nil {
		return fmt.Errorf("%s: %s (%v)", er.Code, er.Message, er.Details)
	}
	return fmt.Errorf("%s: %s", er.Code, er.Message)
}
