package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/cjeanneret/PenGo/internal/logic/plot"
)

// ---------- ValidateJob ----------

func TestValidateJob_Valid(t *testing.T) {
	cases := []struct {
		name string
		j    Job
	}{
		{"amplitude", Job{"amplitude", 50, 20, 5}},
		{"contour_no_optimize", Job{"contour", 1, 0.5, 0}},
		{"max_boundary", Job{"shifted", 1000, 500, 600}},
		{"frequency", Job{"frequency", 80, 12.5, 0.5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateJob(tc.j); err != nil {
				t.Errorf("expected valid, got: %v", err)
			}
		})
	}
}

func TestValidateJob_Invalid(t *testing.T) {
	nan := math.NaN()
	cases := []struct {
		name string
		j    Job
	}{
		{"unknown_method", Job{"halftone", 50, 20, 5}},
		{"empty_method", Job{"", 50, 20, 5}},
		{"zero_lines", Job{"amplitude", 0, 20, 5}},
		{"too_many_lines", Job{"amplitude", 1001, 20, 5}},
		{"zero_velocity", Job{"amplitude", 50, 0, 5}},
		{"negative_velocity", Job{"amplitude", 50, -1, 5}},
		{"velocity_NaN", Job{"amplitude", 50, nan, 5}},
		{"velocity_+Inf", Job{"amplitude", 50, math.Inf(1), 5}},
		{"velocity_501", Job{"amplitude", 50, 501, 5}},
		{"optimize_negative", Job{"amplitude", 50, 20, -1}},
		{"optimize_NaN", Job{"amplitude", 50, 20, nan}},
		{"optimize_too_long", Job{"amplitude", 50, 20, 601}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateJob(tc.j); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

// ---------- Handler helpers ----------

func newTestHandlers(run RunFunc) *Handlers {
	staticFS := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html>test</html>")},
	}
	return NewHandlers(
		NewStatusBroadcaster(),
		run,
		func() plot.Progress {
			return plot.Progress{State: plot.Executing, Name: plot.Executing.String(), Path: 1, Paths: 4}
		},
		FormConfig{
			Method:          "amplitude",
			Lines:           50,
			Velocity:        20,
			OptimizeSeconds: 5,
		},
		staticFS,
	)
}

func noopRun(_ context.Context, _ Job) error {
	return nil
}

func validJobJSON() []byte {
	data, _ := json.Marshal(Job{"amplitude", 40, 20, 1})
	return data
}

// waitIdle waits for the job goroutine to clear the running flag.
func waitIdle(t *testing.T, h *Handlers) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Running() {
		if time.Now().After(deadline) {
			t.Fatal("job still running")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ---------- HandleRun ----------

func TestHandleRun_ValidPost(t *testing.T) {
	got := make(chan Job, 1)
	h := newTestHandlers(func(_ context.Context, j Job) error {
		got <- j
		return nil
	})
	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader(validJobJSON()))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.HandleRun(w, req)

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", w.Code, http.StatusAccepted)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "started" {
		t.Errorf("response status = %q, want \"started\"", resp["status"])
	}

	select {
	case j := <-got:
		if j.Lines != 40 || j.Method != "amplitude" {
			t.Errorf("job = %+v", j)
		}
	case <-time.After(time.Second):
		t.Fatal("job not started")
	}
	waitIdle(t, h)
}

func TestHandleRun_DefaultsFillMissingFields(t *testing.T) {
	got := make(chan Job, 1)
	h := newTestHandlers(func(_ context.Context, j Job) error {
		got <- j
		return nil
	})
	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(`{"method":"contour"}`))
	w := httptest.NewRecorder()

	h.HandleRun(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusAccepted, w.Body)
	}
	want := Job{Method: "contour", Lines: 50, Velocity: 20, OptimizeSeconds: 5}
	select {
	case j := <-got:
		if j != want {
			t.Errorf("job = %+v, want %+v", j, want)
		}
	case <-time.After(time.Second):
		t.Fatal("job not started")
	}
	waitIdle(t, h)
}

func TestHandleRun_GetMethodNotAllowed(t *testing.T) {
	h := newTestHandlers(noopRun)
	req := httptest.NewRequest(http.MethodGet, "/run", nil)
	w := httptest.NewRecorder()

	h.HandleRun(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleRun_InvalidJSON(t *testing.T) {
	h := newTestHandlers(noopRun)
	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader("not json"))
	w := httptest.NewRecorder()

	h.HandleRun(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleRun_InvalidJob(t *testing.T) {
	h := newTestHandlers(noopRun)
	data, _ := json.Marshal(Job{"amplitude", 0, 20, 5})
	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader(data))
	w := httptest.NewRecorder()

	h.HandleRun(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleRun_OversizedBody(t *testing.T) {
	h := newTestHandlers(noopRun)
	big := `{"method":"` + strings.Repeat("x", 2<<20) + `"}` // 2 MB
	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(big))
	w := httptest.NewRecorder()

	h.HandleRun(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d (oversized body)", w.Code, http.StatusBadRequest)
	}
}

func TestHandleRun_NilRun(t *testing.T) {
	h := newTestHandlers(nil)
	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader(validJobJSON()))
	w := httptest.NewRecorder()

	h.HandleRun(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleRun_ConcurrentJob(t *testing.T) {
	// Simulate a long-running plot
	started := make(chan struct{})
	blocking := make(chan struct{})
	slowRun := func(_ context.Context, _ Job) error {
		close(started)
		<-blocking
		return nil
	}

	h := newTestHandlers(slowRun)

	// First request starts the job
	req1 := httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader(validJobJSON()))
	w1 := httptest.NewRecorder()
	h.HandleRun(w1, req1)
	if w1.Code != http.StatusAccepted {
		t.Fatalf("first request: status = %d, want %d", w1.Code, http.StatusAccepted)
	}

	<-started

	// Second request should be rejected as already running
	req2 := httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader(validJobJSON()))
	w2 := httptest.NewRecorder()
	h.HandleRun(w2, req2)

	if w2.Code != http.StatusConflict {
		t.Errorf("concurrent request: status = %d, want %d", w2.Code, http.StatusConflict)
	}

	close(blocking) // unblock first job
	waitIdle(t, h)

	// Once idle, a new job is accepted.
	req3 := httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader(validJobJSON()))
	h.Run = noopRun
	w3 := httptest.NewRecorder()
	h.HandleRun(w3, req3)
	if w3.Code != http.StatusAccepted {
		t.Errorf("after completion: status = %d, want %d", w3.Code, http.StatusAccepted)
	}
	waitIdle(t, h)
}

func TestHandleRun_FailureIsBroadcast(t *testing.T) {
	h := newTestHandlers(func(_ context.Context, _ Job) error {
		return context.DeadlineExceeded
	})
	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader(validJobJSON()))
	h.HandleRun(httptest.NewRecorder(), req)

	select {
	case msg := <-ch:
		var evt StatusEvent
		if err := json.Unmarshal([]byte(msg), &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if evt.Level != "error" || !strings.Contains(evt.Msg, "Plot failed") {
			t.Errorf("event = %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
	waitIdle(t, h)
}

// ---------- HandleStop ----------

func TestHandleStop_CancelsJob(t *testing.T) {
	started := make(chan struct{})
	h := newTestHandlers(func(ctx context.Context, _ Job) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader(validJobJSON()))
	h.HandleRun(httptest.NewRecorder(), req)
	<-started

	w := httptest.NewRecorder()
	h.HandleStop(w, httptest.NewRequest(http.MethodPost, "/stop", nil))
	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", w.Code, http.StatusAccepted)
	}

	select {
	case msg := <-ch:
		var evt StatusEvent
		if err := json.Unmarshal([]byte(msg), &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if evt.Level != "warn" || evt.Msg != "Plot stopped" {
			t.Errorf("event = %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("job not cancelled")
	}
	waitIdle(t, h)
}

func TestHandleStop_NothingRunning(t *testing.T) {
	h := newTestHandlers(noopRun)
	w := httptest.NewRecorder()
	h.HandleStop(w, httptest.NewRequest(http.MethodPost, "/stop", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

// ---------- HandleConfig / HandleStatus ----------

func TestHandleConfig(t *testing.T) {
	h := newTestHandlers(noopRun)
	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	w := httptest.NewRecorder()

	h.HandleConfig(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var fc FormConfig
	if err := json.NewDecoder(w.Body).Decode(&fc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fc.Method != "amplitude" {
		t.Errorf("Method = %q, want amplitude", fc.Method)
	}
	if fc.Lines != 50 {
		t.Errorf("Lines = %d, want 50", fc.Lines)
	}
	if fc.Velocity != 20 {
		t.Errorf("Velocity = %v, want 20", fc.Velocity)
	}
	if len(fc.Methods) != len(Methods) {
		t.Errorf("Methods = %v, want %v", fc.Methods, Methods)
	}
}

func TestHandleStatus(t *testing.T) {
	h := newTestHandlers(noopRun)
	w := httptest.NewRecorder()
	h.HandleStatus(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	var st Status
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Running {
		t.Error("running = true, want false")
	}
	if st.Progress.Name != "executing" || st.Progress.Path != 1 || st.Progress.Paths != 4 {
		t.Errorf("progress = %+v", st.Progress)
	}
}

// ---------- ServeIndex ----------

func TestServeIndex(t *testing.T) {
	h := newTestHandlers(noopRun)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	h.ServeIndex(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/html; charset=utf-8", ct)
	}
	if !strings.Contains(w.Body.String(), "<html>") {
		t.Error("body should contain HTML content")
	}
}

func TestServeIndex_Missing(t *testing.T) {
	h := NewHandlers(NewStatusBroadcaster(), noopRun, nil, FormConfig{}, fstest.MapFS{})
	w := httptest.NewRecorder()
	h.ServeIndex(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ---------- Server ----------

func TestServer_Routes(t *testing.T) {
	s := NewServer(":0", NewStatusBroadcaster(), noopRun, nil, FormConfig{Method: "amplitude", Lines: 10, Velocity: 5})
	ts := httptest.NewServer(s.Mux())
	defer ts.Close()

	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/config", http.StatusOK},
		{http.MethodGet, "/status", http.StatusOK},
		{http.MethodGet, "/static/style.css", http.StatusOK},
		{http.MethodPost, "/stop", http.StatusConflict},
		{http.MethodGet, "/run", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.method+tc.path, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, ts.URL+tc.path, nil)
			if err != nil {
				t.Fatal(err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestServer_StatusStream(t *testing.T) {
	b := NewStatusBroadcaster()
	s := NewServer(":0", b, noopRun, nil, FormConfig{})
	ts := httptest.NewServer(s.Mux())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status/stream")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	if err != nil || line != ": connected\n" {
		t.Fatalf("first line = %q, %v", line, err)
	}

	// The subscription is registered before the first comment is flushed.
	b.BroadcastMsg("hello stream")
	for {
		line, err = r.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if strings.HasPrefix(line, "data: ") {
			break
		}
	}
	var evt StatusEvent
	if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &evt); err != nil {
		t.Fatalf("unmarshal %q: %v", line, err)
	}
	if evt.Msg != "hello stream" {
		t.Errorf("msg = %q", evt.Msg)
	}
}
