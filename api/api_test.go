package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/taskflow"
	"github.com/shaiso/taskflow/schedule"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// echoFlow собирает flow из одного шага, возвращающего вход.
func echoFlow(t *testing.T, name string) *taskflow.TaskFlow {
	t.Helper()

	flow, err := taskflow.New(taskflow.Config{Name: name, Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	err = flow.Register("echo", func(ctx context.Context, input string, extra map[string]any) (any, error) {
		return input, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := flow.Step(taskflow.StepConfig{Runnable: "echo"}); err != nil {
		t.Fatal(err)
	}
	return flow
}

func postJSON(t *testing.T, client *http.Client, url, apiKey, body string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func TestFlowEndpoint_Success(t *testing.T) {
	s := NewServer(Config{Logger: testLogger()})
	if err := s.RegisterFlow("/run/echo", "echo", echoFlow(t, "echo"), 0); err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, body := postJSON(t, ts.Client(), ts.URL+"/run/echo", "", `{"input": "ping"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var sr SuccessResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !sr.Success || sr.Code != CodeOK || sr.Message != "OK" {
		t.Errorf("unexpected response envelope: %+v", sr)
	}
	if sr.Flow != "echo" {
		t.Errorf("expected flow 'echo', got %q", sr.Flow)
	}
	if sr.FinalOutput != "ping" {
		t.Errorf("expected final_output 'ping', got %v", sr.FinalOutput)
	}
	if sr.TraceID == "" {
		t.Error("expected non-empty trace_id")
	}
	if got := resp.Header.Get("X-Trace-Id"); got != sr.TraceID {
		t.Errorf("header trace id %q does not match body %q", got, sr.TraceID)
	}
	if sr.FlowSummary == nil || len(sr.FlowSummary.Steps) != 1 {
		t.Errorf("expected flow summary with 1 step, got %+v", sr.FlowSummary)
	}
	if sr.Timestamp <= 0 {
		t.Errorf("expected positive timestamp, got %d", sr.Timestamp)
	}
}

func TestFlowEndpoint_ObjectInput(t *testing.T) {
	s := NewServer(Config{Logger: testLogger()})
	if err := s.RegisterFlow("/run/echo", "echo", echoFlow(t, "echo"), 0); err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	// Нестроковый вход сериализуется в JSON.
	resp, body := postJSON(t, ts.Client(), ts.URL+"/run/echo", "", `{"input": {"a": 1}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var sr SuccessResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		t.Fatal(err)
	}
	if sr.FinalOutput != `{"a":1}` {
		t.Errorf("expected serialized input as output, got %v", sr.FinalOutput)
	}
}

func TestFlowEndpoint_InvalidInput(t *testing.T) {
	s := NewServer(Config{Logger: testLogger()})
	if err := s.RegisterFlow("/run/echo", "echo", echoFlow(t, "echo"), 0); err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{name: "missing input", body: `{"other": 1}`, message: "Missing 'input' in request body."},
		{name: "null input", body: `{"input": null}`, message: "Missing 'input' in request body."},
		{name: "malformed body", body: `{`, message: "Invalid request body."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := postJSON(t, ts.Client(), ts.URL+"/run/echo", "", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", resp.StatusCode, body)
			}

			var er ErrorResponse
			if err := json.Unmarshal(body, &er); err != nil {
				t.Fatal(err)
			}
			if er.Success || er.Code != CodeInvalidInput {
				t.Errorf("unexpected error envelope: %+v", er)
			}
			if er.Message != tt.message {
				t.Errorf("expected message %q, got %q", tt.message, er.Message)
			}
			if er.Flow != "echo" || er.TraceID == "" {
				t.Errorf("expected flow and trace_id to be set: %+v", er)
			}
		})
	}
}

func TestFlowEndpoint_Auth(t *testing.T) {
	s := NewServer(Config{APIKey: "sekret", Logger: testLogger()})
	if err := s.RegisterFlow("/run/echo", "echo", echoFlow(t, "echo"), 0); err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	t.Run("missing key", func(t *testing.T) {
		resp, body := postJSON(t, ts.Client(), ts.URL+"/run/echo", "", `{"input": "x"}`)
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("expected 403, got %d: %s", resp.StatusCode, body)
		}

		var er ErrorResponse
		if err := json.Unmarshal(body, &er); err != nil {
			t.Fatal(err)
		}
		if er.Code != CodeAuthFailed || er.Message != "Invalid or missing API key." {
			t.Errorf("unexpected error: %+v", er)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		resp, _ := postJSON(t, ts.Client(), ts.URL+"/run/echo", "nope", `{"input": "x"}`)
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", resp.StatusCode)
		}
	})

	t.Run("correct key", func(t *testing.T) {
		resp, body := postJSON(t, ts.Client(), ts.URL+"/run/echo", "sekret", `{"input": "x"}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
		}
	})

	t.Run("healthz open without key", func(t *testing.T) {
		resp, err := ts.Client().Get(ts.URL + "/healthz")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", resp.StatusCode)
		}
	})
}

func TestFlowEndpoint_Timeout(t *testing.T) {
	flow, err := taskflow.New(taskflow.Config{Name: "slow", Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	err = flow.Register("sleep", func(ctx context.Context, input string, extra map[string]any) (any, error) {
		select {
		case <-time.After(2 * time.Second):
			return "done", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := flow.Step(taskflow.StepConfig{Runnable: "sleep"}); err != nil {
		t.Fatal(err)
	}

	s := NewServer(Config{Logger: testLogger()})
	if err := s.RegisterFlow("/run/slow", "slow", flow, 50*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	start := time.Now()
	resp, body := postJSON(t, ts.Client(), ts.URL+"/run/slow", "", `{"input": "x"}`)
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d: %s", resp.StatusCode, body)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took too long: %v", elapsed)
	}

	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil {
		t.Fatal(err)
	}
	if er.Code != CodeTimeout {
		t.Errorf("expected TIMEOUT, got %s", er.Code)
	}
	if !strings.Contains(er.Message, "timed out") {
		t.Errorf("unexpected message: %q", er.Message)
	}
}

func TestFlowEndpoint_RuntimeError(t *testing.T) {
	flow, err := taskflow.New(taskflow.Config{Name: "broken", Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	err = flow.Register("fail", func(ctx context.Context, input string, extra map[string]any) (any, error) {
		return nil, errors.New("boom")
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := flow.Step(taskflow.StepConfig{Runnable: "fail"}); err != nil {
		t.Fatal(err)
	}

	s := NewServer(Config{Logger: testLogger()})
	if err := s.RegisterFlow("/run/broken", "broken", flow, 0); err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, body := postJSON(t, ts.Client(), ts.URL+"/run/broken", "", `{"input": "x"}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", resp.StatusCode, body)
	}

	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil {
		t.Fatal(err)
	}
	if er.Code != CodeFlowRuntimeError || er.Message != "Flow runtime error" {
		t.Errorf("unexpected error: %+v", er)
	}
	details, _ := er.Details.(string)
	if !strings.Contains(details, "boom") {
		t.Errorf("expected details to mention the cause, got %v", er.Details)
	}
}

func TestRegisterFlow_Validation(t *testing.T) {
	s := NewServer(Config{Logger: testLogger()})
	flow := echoFlow(t, "echo")

	if err := s.RegisterFlow("no-slash", "echo", flow, 0); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("expected ErrInvalidPath, got %v", err)
	}
	if err := s.RegisterFlow("/run/echo", "echo", nil, 0); !errors.Is(err, ErrNilFlow) {
		t.Errorf("expected ErrNilFlow, got %v", err)
	}
	if err := s.RegisterFlow("/run/echo", "echo", flow, 0); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if err := s.RegisterFlow("/run/echo", "other", flow, 0); !errors.Is(err, ErrDuplicatePath) {
		t.Errorf("expected ErrDuplicatePath, got %v", err)
	}
}

func TestHealthz(t *testing.T) {
	s := NewServer(Config{Version: "1.2.3", Logger: testLogger()})
	if err := s.RegisterFlow("/run/echo", "echo", echoFlow(t, "echo"), 0); err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var health map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", health["status"])
	}
	if health["version"] != "1.2.3" {
		t.Errorf("expected version '1.2.3', got %v", health["version"])
	}
	if health["endpoints"] != float64(1) {
		t.Errorf("expected 1 endpoint, got %v", health["endpoints"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := NewServer(Config{Logger: testLogger()})
	if err := s.RegisterFlow("/run/echo", "echo", echoFlow(t, "echo"), 0); err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	// Один успешный запуск, чтобы счётчики появились в выдаче.
	if resp, body := postJSON(t, ts.Client(), ts.URL+"/run/echo", "", `{"input": "x"}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("run failed: %d: %s", resp.StatusCode, body)
	}

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, metric := range []string{
		"taskflow_flow_runs_total",
		"taskflow_flow_run_duration_seconds",
		"taskflow_flow_runs_in_flight",
	} {
		if !strings.Contains(text, metric) {
			t.Errorf("expected metrics output to contain %q", metric)
		}
	}
	if !strings.Contains(text, `flow="echo",status="success"`) {
		t.Error("expected success counter for flow 'echo'")
	}
}

func TestScheduleAPI(t *testing.T) {
	s := NewServer(Config{Logger: testLogger()})
	if err := s.RegisterFlow("/run/echo", "echo", echoFlow(t, "echo"), 0); err != nil {
		t.Fatal(err)
	}

	sched, err := schedule.New(schedule.Config{Flows: s.Flows(), Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	s.AttachScheduler(sched)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	var created string

	t.Run("create", func(t *testing.T) {
		resp, body := postJSON(t, ts.Client(), ts.URL+"/api/v1/schedules", "",
			`{"name": "nightly", "cron_expr": "0 3 * * *", "flow": "echo", "input": "daily"}`)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
		}

		var dr DataResponse
		if err := json.Unmarshal(body, &dr); err != nil {
			t.Fatal(err)
		}
		entry, ok := dr.Data.(map[string]any)
		if !ok {
			t.Fatalf("expected entry object, got %T", dr.Data)
		}
		created, _ = entry["id"].(string)
		if created == "" {
			t.Fatal("expected entry id")
		}
		if entry["flow"] != "echo" || entry["name"] != "nightly" {
			t.Errorf("unexpected entry: %v", entry)
		}
	})

	t.Run("create validation", func(t *testing.T) {
		tests := []struct {
			name string
			body string
		}{
			{name: "bad cron", body: `{"name": "x", "cron_expr": "nope", "flow": "echo"}`},
			{name: "unknown flow", body: `{"name": "x", "cron_expr": "0 3 * * *", "flow": "missing"}`},
			{name: "duplicate name", body: `{"name": "nightly", "cron_expr": "0 4 * * *", "flow": "echo"}`},
			{name: "no schedule", body: `{"name": "x", "flow": "echo"}`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				resp, body := postJSON(t, ts.Client(), ts.URL+"/api/v1/schedules", "", tt.body)
				if resp.StatusCode != http.StatusBadRequest {
					t.Fatalf("expected 400, got %d: %s", resp.StatusCode, body)
				}

				var er ErrorResponse
				if err := json.Unmarshal(body, &er); err != nil {
					t.Fatal(err)
				}
				if er.Code != CodeInvalidInput {
					t.Errorf("expected INVALID_INPUT, got %s", er.Code)
				}
			})
		}
	})

	t.Run("list", func(t *testing.T) {
		resp, err := ts.Client().Get(ts.URL + "/api/v1/schedules")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}

		var dr DataResponse
		if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
			t.Fatal(err)
		}
		if dr.Total != 1 {
			t.Errorf("expected total 1, got %d", dr.Total)
		}
	})

	t.Run("delete", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/schedules/"+created, nil)
		if err != nil {
			t.Fatal(err)
		}
		resp, err := ts.Client().Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", resp.StatusCode)
		}

		// Повторное удаление — 404.
		resp, err = ts.Client().Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404, got %d", resp.StatusCode)
		}
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := testLogger()
	handler := Chain(Trace(), Recovery(logger))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	var er ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &er); err != nil {
		t.Fatal(err)
	}
	if er.Code != CodeInternal {
		t.Errorf("expected INTERNAL, got %s", er.Code)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{header: "Bearer abc", token: "abc", ok: true},
		{header: "bearer abc", token: "abc", ok: true},
		{header: "Basic abc", ok: false},
		{header: "Bearer", ok: false},
		{header: "", ok: false},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		token, ok := bearerToken(r)
		if ok != tt.ok || token != tt.token {
			t.Errorf("header %q: expected (%q, %v), got (%q, %v)", tt.header, tt.token, tt.ok, token, ok)
		}
	}
}

func TestShortPreview(t *testing.T) {
	if got := shortPreview("hello", 10); got != "hello" {
		t.Errorf("expected 'hello', got %q", got)
	}
	if got := shortPreview(strings.Repeat("a", 20), 10); got != "aaaaaaa..." {
		t.Errorf("unexpected truncation: %q", got)
	}
	if got := shortPreview(map[string]any{"a": 1}, 100); got != `{"a":1}` {
		t.Errorf("expected JSON preview, got %q", got)
	}
	if got := shortPreview(fmt.Sprintf, 100); got != "<unserializable>" {
		t.Errorf("expected unserializable marker, got %q", got)
	}
}
