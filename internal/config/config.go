package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/PenGo/internal/hw/limit"
	"github.com/cjeanneret/PenGo/internal/hw/pen"
	"github.com/cjeanneret/PenGo/internal/hw/stepper"
	"github.com/cjeanneret/PenGo/internal/logic/geometry"
	"github.com/cjeanneret/PenGo/internal/logic/kinematics"
)

// MaxConfigFileBytes bounds the size of a configuration file.
const MaxConfigFileBytes = 1 << 20

// ValidateConfigPath accepts only .yaml files inside a directory named
// "configs", without ".." components.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config path %q must be in a configs/ directory", path)
	}
	return nil
}

// RangeConfig is a closed interval in millimeters.
type RangeConfig struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

func (r RangeConfig) Range() geometry.Range { return geometry.Range{Min: r.Min, Max: r.Max} }

// PlotterConfig describes the machine geometry and motion timing.
type PlotterConfig struct {
	SeparationMm      float64     `yaml:"separation_mm"` // distance between the two anchors
	XRange            RangeConfig `yaml:"x_range"`       // drawing area, anchors at (0,0) and (separation,0), y down
	YRange            RangeConfig `yaml:"y_range"`
	VelocityMmS       float64     `yaml:"velocity_mm_s"`        // drawing speed
	MinSegmentDelayMs float64     `yaml:"min_segment_delay_ms"` // pause added between segments
	MoveDelayUs       int         `yaml:"move_delay_us"`        // step delay for pen-up moves
	PollIntervalMs    int         `yaml:"poll_interval_ms"`     // idle and switch polling
	FlipY             *bool       `yaml:"flip_y"`               // mirror drawings vertically (default true)
	StartXMm          float64     `yaml:"start_x_mm"`           // assumed pen position when homing is disabled
	StartYMm          float64     `yaml:"start_y_mm"`
}

// StepperConfig holds the configuration for a string motor.
type StepperConfig struct {
	Driver               string  `yaml:"driver"` // a4988 (default), tmc2130 or l9110
	StepPin              int     `yaml:"step_pin"`
	DirPin               int     `yaml:"dir_pin"`
	EnablePin            int     `yaml:"enable_pin"`     // ENABLE pin (BCM). 0 = not used. Active LOW.
	MicrostepPins        []int   `yaml:"microstep_pins"` // MS1..MS3
	CoilPins             []int   `yaml:"coil_pins"`      // l9110 inputs
	Sequence             string  `yaml:"sequence"`       // l9110: wave, two_phase or half_step
	StepsPerRev          int     `yaml:"steps_per_rev"`
	Microstepping        int     `yaml:"microstepping"`
	SpoolCircumferenceMm float64 `yaml:"spool_circumference_mm"`
	MmPerStep            float64 `yaml:"mm_per_step"` // overrides the spool calibration
	InvertDir            bool    `yaml:"invert_dir"`
	SoftStart            bool    `yaml:"soft_start"`
}

// Stepper returns the actuator configuration.
func (s StepperConfig) Stepper(name string) stepper.Config {
	return stepper.Config{
		Name:               name,
		Driver:             s.Driver,
		StepPin:            s.StepPin,
		DirPin:             s.DirPin,
		EnablePin:          s.EnablePin,
		MicrostepPins:      s.MicrostepPins,
		CoilPins:           s.CoilPins,
		Sequence:           s.Sequence,
		StepsPerRev:        s.StepsPerRev,
		Microstepping:      s.Microstepping,
		SpoolCircumference: s.SpoolCircumferenceMm,
		PerStep:            s.MmPerStep,
		InvertDir:          s.InvertDir,
		SoftStart:          s.SoftStart,
	}
}

// PenConfig describes the servo that lifts the pen.
type PenConfig struct {
	Pin         int     `yaml:"pin"`
	FreqHz      int     `yaml:"freq_hz"`
	LowDutyPct  float64 `yaml:"low_duty_pct"`  // duty at 0°
	HighDutyPct float64 `yaml:"high_duty_pct"` // duty at range_deg
	RangeDeg    float64 `yaml:"range_deg"`
	UpDeg       float64 `yaml:"up_deg"`
	DownDeg     float64 `yaml:"down_deg"`
	SettleMs    int     `yaml:"settle_ms"`
}

// SwitchConfig describes a limit switch.
type SwitchConfig struct {
	Pin     int    `yaml:"pin"`
	Contact string `yaml:"contact"` // NO or NC
	Load    int    `yaml:"load"`    // 1: switch to 3.3V, 0: switch to ground
}

// HomingConfig describes how the strings find their reference lengths.
type HomingConfig struct {
	Enabled     bool         `yaml:"enabled"`
	Left        SwitchConfig `yaml:"left"`
	Right       SwitchConfig `yaml:"right"`
	LeftHomeMm  float64      `yaml:"left_home_mm"`  // left string length when its switch triggers
	RightHomeMm float64      `yaml:"right_home_mm"` // right string length when its switch triggers
	Direction   int          `yaml:"direction"`     // -1 winds the strings in (default), +1 lets them out
	StepDelayUs int          `yaml:"step_delay_us"`
	MaxTravelMm float64      `yaml:"max_travel_mm"`
}

// VectorizeConfig holds the defaults used to turn an image into a drawing.
type VectorizeConfig struct {
	Method          string  `yaml:"method"` // amplitude, frequency, shifted or contour
	Lines           int     `yaml:"lines"`
	PixelsPerPeriod float64 `yaml:"pixels_per_period"`
	Gain            float64 `yaml:"gain"`
	Waveform        string  `yaml:"waveform"` // square or sawtooth
	Snake           *bool   `yaml:"snake"`    // default true
	Scans           int     `yaml:"scans"`    // shifted lines passes
	MaxImageSize    int     `yaml:"max_image_size"`
	DoGLarge        float64 `yaml:"dog_large"`
	DoGSmall        float64 `yaml:"dog_small"`
	DoGThreshold    float64 `yaml:"dog_threshold"`
	SobelThreshold  float64 `yaml:"sobel_threshold"` // 0 disables the Sobel filter
	MinBlobSize     int     `yaml:"min_blob_size"`
	Smooth          bool    `yaml:"smooth"`
	SmoothWindow    int     `yaml:"smooth_window"`
	SmoothOrder     int     `yaml:"smooth_order"`
	CleanMm         float64 `yaml:"clean_mm"`         // drop paths shorter than this after fitting
	OptimizeSeconds float64 `yaml:"optimize_seconds"` // travel optimization budget
	FrameMarginMm   float64 `yaml:"frame_margin_mm"`  // 0 = no frame
	FrameBracketMm  float64 `yaml:"frame_bracket_mm"` // > 0 draws corner brackets instead of a full frame
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel  int    `yaml:"debug_level"`  // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO    bool   `yaml:"mock_gpio"`    // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	GPIOBackend string `yaml:"gpio_backend"` // rpio (default) or periph
}

// Config aggregates all application configuration.
type Config struct {
	Plotter    PlotterConfig   `yaml:"plotter"`
	LeftMotor  StepperConfig   `yaml:"left_motor"`
	RightMotor StepperConfig   `yaml:"right_motor"`
	Pen        PenConfig       `yaml:"pen"`
	Homing     HomingConfig    `yaml:"homing"`
	Vectorize  VectorizeConfig `yaml:"vectorize"`
	Defaults   DefaultsConfig  `yaml:"defaults"`
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file is %d bytes, limit is %d", info.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	// Basic validation
	if cfg.Plotter.SeparationMm <= 0 {
		return nil, fmt.Errorf("plotter.separation_mm must be > 0")
	}
	if err := cfg.Plotter.VPlotter().Validate(); err != nil {
		return nil, err
	}
	for name, m := range map[string]StepperConfig{"left_motor": cfg.LeftMotor, "right_motor": cfg.RightMotor} {
		if _, err := stepper.Calibration(m.Stepper(name)); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	cfg.applyDefaults()

	if cfg.Plotter.VelocityMmS <= 0 || math.IsInf(cfg.Plotter.VelocityMmS, 0) {
		return nil, fmt.Errorf("plotter.velocity_mm_s must be > 0, got %v", cfg.Plotter.VelocityMmS)
	}
	if cfg.Defaults.DebugLevel < 0 || cfg.Defaults.DebugLevel > 4 {
		return nil, fmt.Errorf("debug_level must be between 0 and 4, got %d", cfg.Defaults.DebugLevel)
	}
	if cfg.Homing.Enabled {
		for name, s := range map[string]SwitchConfig{"left": cfg.Homing.Left, "right": cfg.Homing.Right} {
			if s.Pin <= 0 {
				return nil, fmt.Errorf("homing.%s.pin is required when homing is enabled", name)
			}
			if c := limit.Contact(s.Contact); c != limit.NormallyOpen && c != limit.NormallyClosed {
				return nil, fmt.Errorf("homing.%s.contact must be NO or NC, got %q", name, s.Contact)
			}
		}
		if cfg.Homing.LeftHomeMm <= 0 || cfg.Homing.RightHomeMm <= 0 {
			return nil, fmt.Errorf("homing.left_home_mm and homing.right_home_mm must be > 0")
		}
		v := cfg.Plotter.VPlotter()
		home, err := v.Meet(cfg.Homing.LeftHomeMm, cfg.Homing.RightHomeMm)
		if err != nil {
			return nil, fmt.Errorf("homing: %w", err)
		}
		if !v.Contains(home, 1e-6) {
			return nil, fmt.Errorf("homing position (%.1f, %.1f) is outside the drawing area", home.X, home.Y)
		}
	}
	if !cfg.Plotter.VPlotter().Contains(cfg.Plotter.Start(), 1e-6) {
		return nil, fmt.Errorf("plotter start position (%.1f, %.1f) is outside the drawing area", cfg.Plotter.StartXMm, cfg.Plotter.StartYMm)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	p := &c.Plotter
	if p.VelocityMmS == 0 {
		p.VelocityMmS = 20
	}
	if p.MoveDelayUs <= 0 {
		p.MoveDelayUs = 2000
	}
	if p.PollIntervalMs <= 0 {
		p.PollIntervalMs = 5
	}
	if p.FlipY == nil {
		p.FlipY = ptr(true)
	}
	if p.StartXMm == 0 && p.StartYMm == 0 {
		// Top center of the drawing area.
		p.StartXMm = (p.XRange.Min + p.XRange.Max) / 2
		p.StartYMm = p.YRange.Min
	}

	def := pen.DefaultServoConfig()
	if c.Pen.Pin <= 0 {
		c.Pen.Pin = def.Pin
	}
	if c.Pen.FreqHz <= 0 {
		c.Pen.FreqHz = def.FreqHz
	}
	if c.Pen.LowDutyPct == 0 && c.Pen.HighDutyPct == 0 {
		c.Pen.LowDutyPct, c.Pen.HighDutyPct = def.LowDuty, def.HighDuty
	}
	if c.Pen.RangeDeg <= 0 {
		c.Pen.RangeDeg = def.RangeDeg
	}
	if c.Pen.UpDeg == 0 && c.Pen.DownDeg == 0 {
		c.Pen.UpDeg, c.Pen.DownDeg = def.UpDeg, def.DownDeg
	}
	if c.Pen.SettleMs <= 0 {
		c.Pen.SettleMs = int(def.SettleFor / time.Millisecond)
	}

	h := &c.Homing
	if h.Direction == 0 {
		h.Direction = -1
	}
	if h.StepDelayUs <= 0 {
		h.StepDelayUs = 2000
	}
	if h.MaxTravelMm <= 0 {
		h.MaxTravelMm = 2 * p.SeparationMm
	}

	v := &c.Vectorize
	if v.Method == "" {
		v.Method = "amplitude"
	}
	if v.Lines <= 0 {
		v.Lines = 50
	}
	if v.PixelsPerPeriod <= 0 {
		v.PixelsPerPeriod = 4
	}
	if v.Gain == 0 {
		v.Gain = 1
	}
	if v.Waveform == "" {
		v.Waveform = "square"
	}
	if v.Snake == nil {
		v.Snake = ptr(true)
	}
	if v.Scans <= 0 {
		v.Scans = 3
	}
	if v.MaxImageSize <= 0 {
		v.MaxImageSize = 800
	}
	if v.DoGLarge == 0 && v.DoGSmall == 0 {
		v.DoGLarge, v.DoGSmall = 3, 1
	}
	if v.DoGThreshold == 0 {
		v.DoGThreshold = 3
	}
	if v.MinBlobSize <= 0 {
		v.MinBlobSize = 100
	}
	if v.SmoothWindow <= 0 {
		v.SmoothWindow = 7
	}
	if v.SmoothOrder <= 0 {
		v.SmoothOrder = 2
	}
}

func ptr[T any](v T) *T { return &v }

// VPlotter returns the machine geometry.
func (p PlotterConfig) VPlotter() kinematics.VPlotter {
	return kinematics.VPlotter{Separation: p.SeparationMm, XRange: p.XRange.Range(), YRange: p.YRange.Range()}
}

// Start returns the pen position assumed when homing is disabled.
func (p PlotterConfig) Start() geometry.Point { return geometry.Pt(p.StartXMm, p.StartYMm) }

// MinSegmentDelay returns the pause between segments.
func (p PlotterConfig) MinSegmentDelay() time.Duration {
	return time.Duration(p.MinSegmentDelayMs * float64(time.Millisecond))
}

// MoveDelay returns the step delay of pen-up moves.
func (p PlotterConfig) MoveDelay() time.Duration {
	return time.Duration(p.MoveDelayUs) * time.Microsecond
}

// PollInterval returns the idle polling period.
func (p PlotterConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMs) * time.Millisecond
}

// Servo returns the pen servo configuration.
func (p PenConfig) Servo() pen.ServoConfig {
	return pen.ServoConfig{
		Pin:       p.Pin,
		FreqHz:    p.FreqHz,
		LowDuty:   p.LowDutyPct,
		HighDuty:  p.HighDutyPct,
		RangeDeg:  p.RangeDeg,
		UpDeg:     p.UpDeg,
		DownDeg:   p.DownDeg,
		SettleFor: time.Duration(p.SettleMs) * time.Millisecond,
	}
}

// StepDelay returns the homing step delay.
func (h HomingConfig) StepDelay() time.Duration {
	return time.Duration(h.StepDelayUs) * time.Microsecond
}

// OptimizeTime returns the travel optimization budget.
func (v VectorizeConfig) OptimizeTime() time.Duration {
	return time.Duration(v.OptimizeSeconds * float64(time.Second))
}
