package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "default.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateConfigPath(path); err != nil {
		t.Errorf("expected valid path, got error: %v", err)
	}
}

func TestValidateConfigPath_PathTraversal(t *testing.T) {
	cases := []string{
		"../../etc/passwd",
		"configs/../../../etc/shadow",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for traversal path %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_WrongExtension(t *testing.T) {
	cases := []string{
		"configs/default.json",
		"configs/default.yml",
		"configs/default",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for extension in %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_NotInConfigsDir(t *testing.T) {
	cases := []string{
		"other/default.yaml",
		"/tmp/default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for path outside configs/ %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_EmptyPath(t *testing.T) {
	if err := ValidateConfigPath(""); err == nil {
		t.Error("expected error for empty path, got nil")
	}
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
draw_axis:
  enable_pin: 2
  dir_pin: 3
  clock_pin: 4
  max_speed: 128
  ramp_stretch: 1
tilt_axis:
  enable_pin: 15
  dir_pin: 17
  clock_pin: 18
  max_speed: 50
  ramp_stretch: 10
  scale_milli: 3110
turret_axis:
  enable_pin: 22
  dir_pin: 23
  clock_pin: 24
  max_speed: 100
  ramp_stretch: 12
  scale_milli: -3888
timing:
  tick_us: 200
  tick_error_us: 280
  home_after_ms: 5000
  power_down_after_ms: 8000
targeting:
  settle_span: 5
  fire_tolerance: 3
  cooldown_ms: 8000
shot:
  draw_steps: 875
  dwell_ticks: 150
link:
  listen_addr: ":7777"
hardware:
  peripheral_base: 0x3f000000
defaults:
  debug_level: 2
  mock_gpio: true
`

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TiltAxis.RampStretch != 10 {
		t.Errorf("tilt_axis.ramp_stretch = %d, want 10", cfg.TiltAxis.RampStretch)
	}
	if cfg.TurretAxis.ScaleMilli != -3888 {
		t.Errorf("turret_axis.scale_milli = %d, want -3888", cfg.TurretAxis.ScaleMilli)
	}
	if cfg.Hardware.PeripheralBase != 0x3f000000 {
		t.Errorf("peripheral_base = %#x, want 0x3f000000", cfg.Hardware.PeripheralBase)
	}
	if cfg.Shot.DrawSteps != 875 {
		t.Errorf("shot.draw_steps = %d, want 875", cfg.Shot.DrawSteps)
	}
	if !cfg.Defaults.MockGPIO {
		t.Error("mock_gpio should be true")
	}
	if cfg.Defaults.DebugLevel != 2 {
		t.Errorf("debug_level = %d, want 2", cfg.Defaults.DebugLevel)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	path := writeConfig(t, "defaults:\n  mock_gpio: true\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Default()
	want.Defaults.MockGPIO = true
	if *cfg != *want {
		t.Errorf("partial config should keep defaults:\n got %+v\nwant %+v", *cfg, *want)
	}
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("empty config should fall back to defaults, got: %v", err)
	}
	if cfg.Timing.TickUs != 200 {
		t.Errorf("tick_us = %d, want 200", cfg.Timing.TickUs)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"max_speed_zero", "tilt_axis:\n  max_speed: 0\n", "tilt_axis.max_speed"},
		{"max_speed_too_high", "draw_axis:\n  max_speed: 129\n", "draw_axis.max_speed"},
		{"ramp_stretch_zero", "turret_axis:\n  ramp_stretch: 0\n", "turret_axis.ramp_stretch"},
		{"pin_out_of_range", "draw_axis:\n  clock_pin: 40\n", "out of range"},
		{"duplicate_pin", "turret_axis:\n  clock_pin: 4\n", "already used"},
		{"tick_error_below_tick", "timing:\n  tick_error_us: 100\n", "tick_error_us"},
		{"power_down_before_home", "timing:\n  power_down_after_ms: 4000\n", "power_down_after_ms"},
		{"settle_span_zero", "targeting:\n  settle_span: 0\n", "settle_span"},
		{"draw_steps_zero", "shot:\n  draw_steps: 0\n", "draw_steps"},
		{"dwell_ticks_negative", "shot:\n  dwell_ticks: -1\n", "dwell_ticks"},
		{"empty_listen_addr", "link:\n  listen_addr: \"\"\n", "listen_addr"},
		{"debug_level_too_high", "defaults:\n  debug_level: 5\n", "debug_level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q should mention %q", err, tc.want)
			}
		})
	}
}

func TestLoad_FileTooLarge(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "big.yaml")
	data := make([]byte, MaxConfigFileBytes+1)
	for i := range data {
		data[i] = '#'
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for oversized config file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "{{{{invalid yaml!!!!")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	yaml := `
unknown_section:
  foo: bar
`
	path := writeConfig(t, yaml)
	_, err := Load(path)
	if err != nil {
		t.Errorf("unknown fields should be ignored, got error: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "configs", "nonexistent.yaml")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for nonexistent file, got nil")
	}
}

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default() should validate, got: %v", err)
	}
}

// ---------- Helper methods ----------

func TestConfig_Durations(t *testing.T) {
	cfg := Default()
	cases := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"tick", cfg.Tick(), 200 * time.Microsecond},
		{"home_after", cfg.HomeAfter(), 5 * time.Second},
		{"power_down_after", cfg.PowerDownAfter(), 8 * time.Second},
		{"cooldown", cfg.Cooldown(), 8 * time.Second},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s = %v, want %v", tc.name, tc.got, tc.want)
		}
	}
}

func TestLoad_ShippedConfig(t *testing.T) {
	path := filepath.Join("..", "..", "configs", "default.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%s): %v", path, err)
	}
	want := Default()
	want.Defaults.DebugLevel = 1
	if *cfg != *want {
		t.Errorf("shipped config differs from Default:\n got %+v\nwant %+v", cfg, want)
	}
}
