package steps

import (
	"bytes"
	"context"
	"crypto/tls"
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

// HTTPRunnable — встроенный runnable HTTP-запросов.
//
// Конфигурация берётся из extra-входов шага:
//
//	{
//	    "url": "https://api.example.com/data",   // или input шага
//	    "method": "POST",
//	    "headers": {"Authorization": "Bearer ..."},
//	    "body": {"data": "{{fetch.output}}"},
//	    "follow_redirects": true,
//	    "validate_ssl": true,
//	    "timeout_sec": 30
//	}
//
// Результат:
//
//	{
//	    "output": <body>,          // JSON распарсен, иначе строка
//	    "status_code": 200,
//	    "headers": {"Content-Type": "application/json", ...}
//	}
type HTTPRunnable struct {
	client *http.Client
}

// NewHTTPRunnable создаёт HTTP runnable с клиентом по умолчанию.
func NewHTTPRunnable() *HTTPRunnable {
	return &HTTPRunnable{
		client: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// RunInput выполняет HTTP-запрос. Если url не задан в extra, им
// считается input шага.
func (h *HTTPRunnable) RunInput(ctx context.Context, input string, extra map[string]any) (any, error) {
	cfg, err := parseHTTPConfig(input, extra)
	if err != nil {
		return nil, err
	}

	client := h.buildClient(cfg)
	req, err := buildHTTPRequest(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	return parseHTTPResponse(resp)
}

// httpConfig — распарсенная конфигурация HTTP-запроса.
type httpConfig struct {
	Method          string
	URL             string
	Headers         map[string]string
	Body            any
	FollowRedirects bool
	ValidateSSL     bool
	Timeout         time.Duration
}

func parseHTTPConfig(input string, extra map[string]any) (*httpConfig, error) {
	cfg := &httpConfig{
		Method:          configString(extra, "method"),
		URL:             configString(extra, "url"),
		Headers:         configStringMap(extra, "headers"),
		Body:            extra["body"],
		FollowRedirects: configBool(extra, "follow_redirects", true),
		ValidateSSL:     configBool(extra, "validate_ssl", true),
	}
	if sec := configInt(extra, "timeout_sec"); sec > 0 {
		cfg.Timeout = time.Duration(sec) * time.Second
	}

	if cfg.URL == "" {
		cfg.URL = strings.TrimSpace(input)
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: http: url is required", ErrInvalidConfig)
	}

	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	cfg.Method = strings.ToUpper(cfg.Method)

	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}
	return cfg, nil
}

func (h *HTTPRunnable) buildClient(cfg *httpConfig) *http.Client {
	timeout := defaultHTTPTimeout
	if cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}

	var checkRedirect func(*http.Request, []*http.Request) error
	if !cfg.FollowRedirects {
		checkRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &http.Client{
		Timeout:       timeout,
		CheckRedirect: checkRedirect,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.ValidateSSL},
		},
	}
}

func buildHTTPRequest(ctx context.Context, cfg *httpConfig) (*http.Request, error) {
	var bodyReader io.Reader
	if cfg.Body != nil {
		bodyBytes, err := serializeBody(cfg.Body)
		if err != nil {
			return nil, fmt.Errorf("serialize body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)

		if _, ok := cfg.Headers["Content-Type"]; !ok {
			cfg.Headers["Content-Type"] = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, bodyReader)
	if err != nil {
		return nil, err
	}
	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

func serializeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

func parseHTTPResponse(resp *http.Response) (map[string]any, error) {
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var body any
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(bodyBytes, &body); err != nil {
			body = string(bodyBytes)
		}
	} else {
		body = string(bodyBytes)
	}

	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return map[string]any{
		"output":      body,
		"status_code": resp.StatusCode,
		"headers":     headers,
	}, nil
}
