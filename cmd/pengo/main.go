package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/cjeanneret/PenGo/internal/config"
	"github.com/cjeanneret/PenGo/internal/debug"
	"github.com/cjeanneret/PenGo/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	var src source
	flag.StringVar(&src.image, "image", "", "vectorize this raster image")
	flag.StringVar(&src.svg, "svg", "", "import this SVG file")
	flag.StringVar(&src.load, "load", "", "load a trajectory saved with -dump (.cbor or .svg)")
	flag.StringVar(&src.pattern, "pattern", "", "draw a built-in pattern: test or rose")
	method := flag.String("method", "", "override vectorization method (amplitude, frequency, shifted, contour)")
	lines := flag.Int("lines", 0, "override number of scan lines (1-1000)")
	velocity := flag.Float64("velocity", 0, "override drawing speed in mm/s")
	optimize := flag.Duration("optimize", 0, "override travel optimization time, e.g. 10s")
	dumpPath := flag.String("dump", "", "save the trajectory (.cbor or .svg)")
	previewPath := flag.String("preview", "", "render the trajectory to a PNG file")
	noPlot := flag.Bool("no-plot", false, "stop after dump and preview")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Validate CLI overrides (only non-zero values are applied; zero means "use config default")
	overrides := web.Job{Method: *method, Lines: *lines, Velocity: *velocity, OptimizeSeconds: optimize.Seconds()}
	if err := validateCLIOverrides(overrides); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	if err := src.validate(webPort.port() > 0); err != nil {
		log.Fatalf("invalid input: %v", err)
	}

	// Apply CLI overrides to config
	applyOverrides(cfg, overrides)

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	if webPort.port() == 0 && *noPlot {
		if err := prepareOutputs(ctx, cfg, src, *dumpPath, *previewPath); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	m, err := newMachine(cfg)
	if err != nil {
		log.Fatalf("init hardware failed: %v", err)
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Printf("closing hardware failed: %v", err)
		}
	}()

	// Build runJob closure over hardware and base config
	runJob := func(ctx context.Context, job web.Job) error {
		jobCfg := applyOverridesToCopy(cfg, job)
		t, err := buildTrajectory(ctx, jobCfg, src)
		if err != nil {
			return err
		}
		return m.Plot(ctx, t, jobCfg)
	}

	if port := webPort.port(); port > 0 {
		webAddr := fmt.Sprintf(":%d", port)
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
		m.seq.OnProgress(broadcaster.BroadcastProgress)

		formDefaults := web.FormConfig{
			Method:          cfg.Vectorize.Method,
			Lines:           cfg.Vectorize.Lines,
			Velocity:        cfg.Plotter.VelocityMmS,
			OptimizeSeconds: cfg.Vectorize.OptimizeSeconds,
		}
		srv := web.NewServer(webAddr, broadcaster, runJob, m.seq.Progress, formDefaults)
		if err := srv.Run(ctx); err != nil {
			log.Fatalf("web server: %v", err)
		}
		return
	}

	{
		// Plot once with current config (already has CLI overrides applied)
		t, err := buildTrajectory(ctx, cfg, src)
		if err != nil {
			log.Fatalf("%v", err)
		}
		if err := writeOutputs(t, cfg, *dumpPath, *previewPath); err != nil {
			log.Fatalf("%v", err)
		}
		if err := m.Plot(ctx, t, cfg); err != nil {
			if errors.Is(err, context.Canceled) {
				log.Printf("plot interrupted")
				return
			}
			log.Fatalf("plot failed: %v", err)
		}
	}
}

// validateCLIOverrides checks that non-zero CLI overrides are within valid ranges.
// Zero values are ignored (they mean "use config default").
func validateCLIOverrides(o web.Job) error {
	if o.Method != "" {
		if _, err := methodOf(o.Method); err != nil {
			return err
		}
	}
	if o.Lines != 0 && (o.Lines < 1 || o.Lines > 1000) {
		return fmt.Errorf("lines must be between 1 and 1000, got %d", o.Lines)
	}
	if o.Velocity != 0 {
		if math.IsNaN(o.Velocity) || math.IsInf(o.Velocity, 0) || o.Velocity <= 0 || o.Velocity > 500 {
			return fmt.Errorf("velocity must be in (0, 500] mm/s, got %g", o.Velocity)
		}
	}
	if o.OptimizeSeconds < 0 || o.OptimizeSeconds > 600 {
		return fmt.Errorf("optimize must be between 0s and 10m, got %gs", o.OptimizeSeconds)
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Only non-zero override values are applied.
func applyOverrides(cfg *config.Config, o web.Job) {
	if o.Method != "" {
		cfg.Vectorize.Method = o.Method
	}
	if o.Lines > 0 {
		cfg.Vectorize.Lines = o.Lines
	}
	if o.Velocity > 0 {
		cfg.Plotter.VelocityMmS = o.Velocity
	}
	if o.OptimizeSeconds > 0 {
		cfg.Vectorize.OptimizeSeconds = o.OptimizeSeconds
	}
}

// applyOverridesToCopy returns a new config with overrides applied.
// Zero values in overrides mean "use base config".
func applyOverridesToCopy(baseCfg *config.Config, o web.Job) *config.Config {
	cfg := *baseCfg
	applyOverrides(&cfg, o)
	return &cfg
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }

// prepareOutputs builds the trajectory and writes the requested files
// without touching the hardware.
func prepareOutputs(ctx context.Context, cfg *config.Config, src source, dumpPath, previewPath string) error {
	t, err := buildTrajectory(ctx, cfg, src)
	if err != nil {
		return err
	}
	if dumpPath == "" && previewPath == "" {
		debug.Warn("-no-plot without -dump or -preview: nothing to do")
	}
	return writeOutputs(t, cfg, dumpPath, previewPath)
}
