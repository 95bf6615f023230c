package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"math"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/cjeanneret/PenGo/internal/logic/plot"
)

// MaxRequestBytes bounds the body of POST /run.
const MaxRequestBytes = 1 << 20

// Methods lists the vectorization methods a job may ask for.
var Methods = []string{"amplitude", "frequency", "shifted", "contour"}

// Job holds plot parameters that can override config defaults.
type Job struct {
	Method          string  `json:"method"`
	Lines           int     `json:"lines"`
	Velocity        float64 `json:"velocity"`
	OptimizeSeconds float64 `json:"optimize_seconds"`
}

// ValidateJob checks that the job parameters are usable.
func ValidateJob(j Job) error {
	if !slices.Contains(Methods, j.Method) {
		return fmt.Errorf("method must be one of %v, got %q", Methods, j.Method)
	}
	if j.Lines < 1 || j.Lines > 1000 {
		return fmt.Errorf("lines must be between 1 and 1000, got %d", j.Lines)
	}
	if math.IsNaN(j.Velocity) || math.IsInf(j.Velocity, 0) || j.Velocity <= 0 || j.Velocity > 500 {
		return fmt.Errorf("velocity must be in (0, 500] mm/s, got %v", j.Velocity)
	}
	if math.IsNaN(j.OptimizeSeconds) || math.IsInf(j.OptimizeSeconds, 0) || j.OptimizeSeconds < 0 || j.OptimizeSeconds > 600 {
		return fmt.Errorf("optimize_seconds must be between 0 and 600, got %v", j.OptimizeSeconds)
	}
	return nil
}

// RunFunc runs a plot job. It is called from the POST /run handler in a
// goroutine and must return when ctx is cancelled.
type RunFunc func(ctx context.Context, job Job) error

// StatusFunc reports the state of the plot sequence.
type StatusFunc func() plot.Progress

// FormConfig holds default values for the job form (from config).
type FormConfig struct {
	Method          string   `json:"method"`
	Lines           int      `json:"lines"`
	Velocity        float64  `json:"velocity"`
	OptimizeSeconds float64  `json:"optimize_seconds"`
	Methods         []string `json:"methods"`
}

// Status is the body of GET /status.
type Status struct {
	Running  bool          `json:"running"`
	Progress plot.Progress `json:"progress"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster  *StatusBroadcaster
	Run          RunFunc
	Status       StatusFunc
	FormDefaults FormConfig
	runningMu    sync.Mutex
	running      bool
	cancel       context.CancelFunc
	staticFS     fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If run is nil, POST /run will return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, run RunFunc, status StatusFunc, formDefaults FormConfig, staticFS fs.FS) *Handlers {
	if formDefaults.Methods == nil {
		formDefaults.Methods = Methods
	}
	return &Handlers{
		Broadcaster:  broadcaster,
		Run:          run,
		Status:       status,
		FormDefaults: formDefaults,
		staticFS:     staticFS,
	}
}

// Running reports whether a job is in progress.
func (h *Handlers) Running() bool {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()
	return h.running
}

// HandleConfig returns the form default values (from config) as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.FormDefaults)
}

// HandleStatus returns whether a job runs and the plot state as JSON.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st := Status{Running: h.Running(), Progress: plot.Progress{Name: plot.Idle.String()}}
	if h.Status != nil {
		st.Progress = h.Status()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(st)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleRun handles POST /run to start a plot job.
func (h *Handlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	job := Job{
		Method:          h.FormDefaults.Method,
		Lines:           h.FormDefaults.Lines,
		Velocity:        h.FormDefaults.Velocity,
		OptimizeSeconds: h.FormDefaults.OptimizeSeconds,
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := ValidateJob(job); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.Run == nil {
		http.Error(w, "plotter not configured", http.StatusServiceUnavailable)
		return
	}

	h.runningMu.Lock()
	if h.running {
		h.runningMu.Unlock()
		http.Error(w, "plot already in progress", http.StatusConflict)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.running = true
	h.cancel = cancel
	h.runningMu.Unlock()

	// Run in goroutine; clear running when done
	go func() {
		defer func() {
			cancel()
			h.runningMu.Lock()
			h.running = false
			h.cancel = nil
			h.runningMu.Unlock()
		}()

		start := time.Now()
		switch err := h.Run(ctx, job); {
		case errors.Is(err, context.Canceled):
			h.Broadcaster.Broadcast("warn", "Plot stopped")
		case err != nil:
			h.Broadcaster.Broadcast("error", "Plot failed: "+err.Error())
			log.Printf("plot failed: %v", err)
		default:
			h.Broadcaster.Broadcast("info", fmt.Sprintf("Plot complete in %s", time.Since(start).Round(time.Second)))
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "started"})
}

// HandleStop handles POST /stop: the running job is cancelled, which
// lifts the pen and switches the motors off.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	h.runningMu.Lock()
	cancel := h.cancel
	h.runningMu.Unlock()
	if cancel == nil {
		http.Error(w, "no plot in progress", http.StatusConflict)
		return
	}
	cancel()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "stopping"})
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
