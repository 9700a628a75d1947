package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testOutput(jsonMode bool) (*Output, *bytes.Buffer, *bytes.Buffer) {
	var buf, errBuf bytes.Buffer
	return &Output{jsonMode: jsonMode, w: &buf, errW: &errBuf}, &buf, &errBuf
}

func writeDefinition(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flow.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write definition: %v", err)
	}
	return path
}

const validDefinition = `{
	"name": "demo",
	"steps": [
		{"runnable": "transform", "input": {"msg": "hello"}}
	]
}`

func TestOutput_Table(t *testing.T) {
	out, buf, _ := testOutput(false)

	out.Table([]string{"ID", "NAME"}, [][]string{{"1", "alpha"}, {"2", "beta"}})

	got := buf.String()
	for _, want := range []string{"ID", "NAME", "--", "alpha", "beta"} {
		if !strings.Contains(got, want) {
			t.Errorf("table output missing %q:\n%s", want, got)
		}
	}
}

func TestOutput_PrintJSONMode(t *testing.T) {
	out, buf, _ := testOutput(true)

	out.Print([]string{"ID"}, [][]string{{"1"}}, map[string]string{"id": "1"})

	var decoded map[string]string
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if decoded["id"] != "1" {
		t.Errorf("decoded = %v, want id=1", decoded)
	}
}

func TestOutput_KeyValue(t *testing.T) {
	out, buf, _ := testOutput(false)

	out.KeyValue([][2]string{{"STATUS", "ok"}, {"VERSION", "1.0"}})

	got := buf.String()
	if !strings.Contains(got, "STATUS") || !strings.Contains(got, "ok") {
		t.Errorf("key-value output = %q", got)
	}
}

func TestOutput_Messages(t *testing.T) {
	out, buf, errBuf := testOutput(false)

	out.Success("done")
	out.Error("boom")

	if buf.Len() != 0 {
		t.Errorf("messages leaked to stdout: %q", buf.String())
	}
	got := errBuf.String()
	if !strings.Contains(got, "done") || !strings.Contains(got, "Error: boom") {
		t.Errorf("stderr = %q", got)
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "hello", "hello"},
		{"multiline", "a\nb", "a b"},
		{"map", map[string]int{"n": 7}, `{"n":7}`},
		{"number", 3.5, "3.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatValue(tt.in); got != tt.want {
				t.Errorf("formatValue(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestClient_Call(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"success": true, "code": "OK", "message": "Flow executed successfully.",
			"flow": "demo", "trace_id": "t-1",
			"flow_summary": {
				"steps": {"a": {"name": "a", "output": "x", "total_tokens": 3, "request_count": 1}},
				"usage_summary": {"total_requests": 1, "total_tokens": 3}
			},
			"final_output": "x", "duration_seconds": 0.5, "timestamp": 1700000000000
		}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", time.Second)
	result, err := client.Call(srv.URL+"/api/v1/flows/demo", "hi")
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}

	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody["input"] != "hi" {
		t.Errorf("request body input = %v", gotBody["input"])
	}
	if result.Flow != "demo" || result.TraceID != "t-1" || result.FinalOutput != "x" {
		t.Errorf("result = %+v", result)
	}
	if result.FlowSummary == nil || result.FlowSummary.Steps["a"].TotalTokens != 3 {
		t.Errorf("flow summary = %+v", result.FlowSummary)
	}
}

func TestClient_CallAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusGatewayTimeout)
		io.WriteString(w, `{"success": false, "code": "TIMEOUT", "message": "Flow execution timed out after 30s.", "trace_id": "t-2", "timestamp": 1}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", time.Second)
	_, err := client.Call(srv.URL+"/api/v1/flows/demo", "hi")
	if err == nil {
		t.Fatal("Call() expected error")
	}
	if !strings.Contains(err.Error(), "TIMEOUT: Flow execution timed out") {
		t.Errorf("error = %v", err)
	}
}

func TestClient_CallNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "bad gateway")
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", time.Second)
	_, err := client.Call(srv.URL+"/run", "hi")
	if err == nil {
		t.Fatal("Call() expected error")
	}
	if !strings.Contains(err.Error(), "HTTP 502") {
		t.Errorf("error = %v", err)
	}
}

func TestClient_Healthz(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, `{"status": "ok", "uptime_seconds": 1.5, "version": "1.2.3", "endpoints": 2}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", time.Second)
	health, err := client.Healthz()
	if err != nil {
		t.Fatalf("Healthz() error: %v", err)
	}
	if health.Status != "ok" || health.Version != "1.2.3" || health.Endpoints != 2 {
		t.Errorf("health = %+v", health)
	}
}

func TestClient_Schedules(t *testing.T) {
	entry := `{"id": "s-1", "name": "nightly", "flow": "demo", "cron_expr": "0 3 * * *", "created_at": "2025-01-01T00:00:00Z"}`

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/schedules", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"success": true, "code": "OK", "message": "OK", "data": [`+entry+`], "total": 1, "trace_id": "t", "timestamp": 1}`)
	})
	mux.HandleFunc("POST /api/v1/schedules", func(w http.ResponseWriter, r *http.Request) {
		var req CreateScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"success": false, "code": "INVALID_INPUT", "message": "schedule: name is required", "trace_id": "t", "timestamp": 1}`)
			return
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"success": true, "code": "OK", "message": "Schedule created.", "data": `+entry+`, "total": 1, "trace_id": "t", "timestamp": 1}`)
	})
	mux.HandleFunc("DELETE /api/v1/schedules/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "s-1" {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"success": false, "code": "NOT_FOUND", "message": "Schedule not found.", "trace_id": "t", "timestamp": 1}`)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(srv.URL, "", time.Second)

	t.Run("list", func(t *testing.T) {
		schedules, err := client.ListSchedules()
		if err != nil {
			t.Fatalf("ListSchedules() error: %v", err)
		}
		if len(schedules) != 1 || schedules[0].ID != "s-1" || schedules[0].CronExpr != "0 3 * * *" {
			t.Errorf("schedules = %+v", schedules)
		}
	})

	t.Run("create", func(t *testing.T) {
		created, err := client.CreateSchedule(CreateScheduleRequest{Name: "nightly", Flow: "demo", CronExpr: "0 3 * * *"})
		if err != nil {
			t.Fatalf("CreateSchedule() error: %v", err)
		}
		if created.ID != "s-1" {
			t.Errorf("created = %+v", created)
		}
	})

	t.Run("create invalid", func(t *testing.T) {
		_, err := client.CreateSchedule(CreateScheduleRequest{Flow: "demo"})
		if err == nil || !strings.Contains(err.Error(), "INVALID_INPUT") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := client.DeleteSchedule("s-1"); err != nil {
			t.Errorf("DeleteSchedule() error: %v", err)
		}
		err := client.DeleteSchedule("missing")
		if err == nil || !strings.Contains(err.Error(), "NOT_FOUND") {
			t.Errorf("error = %v", err)
		}
	})
}

func TestValidateCmd(t *testing.T) {
	path := writeDefinition(t, validDefinition)

	out, buf, errBuf := testOutput(false)
	cmd := NewValidateCmd(func() *Output { return out })
	cmd.SetArgs([]string{path})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(errBuf.String(), "Definition is valid: demo") {
		t.Errorf("stderr = %q", errBuf.String())
	}
	if !strings.Contains(buf.String(), "transform") {
		t.Errorf("stdout = %q", buf.String())
	}
}

func TestValidateCmd_Invalid(t *testing.T) {
	path := writeDefinition(t, `{
		"name": "broken",
		"steps": [{"runnable": "transform", "depends_on": ["missing"]}]
	}`)

	out, _, _ := testOutput(false)
	cmd := NewValidateCmd(func() *Output { return out })
	cmd.SetArgs([]string{path})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "depends on unknown step") {
		t.Errorf("error = %v", err)
	}
}

func TestRunCmd(t *testing.T) {
	path := writeDefinition(t, validDefinition)

	out, buf, errBuf := testOutput(true)
	cmd := NewRunCmd(func() *Output { return out })
	cmd.SetArgs([]string{path, "--input", "hi"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(errBuf.String(), `Flow "demo" finished`) {
		t.Errorf("stderr = %q", errBuf.String())
	}

	var result struct {
		RunID  string `json:"run_id"`
		Output any    `json:"output"`
	}
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, buf.String())
	}
	if result.RunID == "" {
		t.Error("run_id is empty")
	}
	m, ok := result.Output.(map[string]any)
	if !ok || m["msg"] != "hello" {
		t.Errorf("output = %v", result.Output)
	}
}

func TestCallCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"success": true, "code": "OK", "message": "ok", "flow": "demo", "trace_id": "t", "final_output": "result text", "duration_seconds": 0.1, "timestamp": 1}`)
	}))
	defer srv.Close()

	out, buf, errBuf := testOutput(false)
	client := NewClient(srv.URL, "", time.Second)
	cmd := NewCallCmd(func() *Client { return client }, func() *Output { return out })
	cmd.SetArgs([]string{srv.URL + "/api/v1/flows/demo", "--input", "hi"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("call: %v", err)
	}
	if !strings.Contains(errBuf.String(), `Flow "demo" finished`) {
		t.Errorf("stderr = %q", errBuf.String())
	}
	if !strings.Contains(buf.String(), "result text") {
		t.Errorf("stdout = %q", buf.String())
	}
}

func TestCallCmd_RawInput(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		io.WriteString(w, `{"success": true, "code": "OK", "message": "ok", "trace_id": "t", "timestamp": 1}`)
	}))
	defer srv.Close()

	out, _, _ := testOutput(false)
	client := NewClient(srv.URL, "", time.Second)
	cmd := NewCallCmd(func() *Client { return client }, func() *Output { return out })
	cmd.SetArgs([]string{srv.URL + "/run", "--input", `{"a": 1}`, "--raw"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("call: %v", err)
	}
	m, ok := gotBody["input"].(map[string]any)
	if !ok || m["a"] != float64(1) {
		t.Errorf("input sent = %v", gotBody["input"])
	}
}
