package debug

import (
	"bytes"
	"strings"
	"testing"
)

func captureOutput(t *testing.T, lvl int) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	Init(lvl)
	t.Cleanup(func() { Init(LevelOff) })
	return &buf
}

func TestInit_OffProducesNothing(t *testing.T) {
	buf := captureOutput(t, LevelOff)
	Info("hello %d", 1)
	Shot(1, 2, "stable")
	Trace("x")
	if buf.Len() != 0 {
		t.Errorf("level 0 should not log, got %q", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t, LevelLive)
	Info("info line")
	Live("live line")
	Verbose("verbose line")
	Trace("trace line")

	out := buf.String()
	if !strings.Contains(out, "[INFO] info line") {
		t.Errorf("missing info line in %q", out)
	}
	if !strings.Contains(out, "[LIVE] live line") {
		t.Errorf("missing live line in %q", out)
	}
	if strings.Contains(out, "verbose line") || strings.Contains(out, "trace line") {
		t.Errorf("level 2 leaked higher-level output: %q", out)
	}
}

func TestPrefix(t *testing.T) {
	buf := captureOutput(t, LevelInfo)
	Info("x")
	if !strings.HasPrefix(buf.String(), "[turretd] ") {
		t.Errorf("expected [turretd] prefix, got %q", buf.String())
	}
}

func TestOverrunAndGPIO(t *testing.T) {
	buf := captureOutput(t, LevelTrace)
	Overrun(312, 4)
	GPIO("set", 1<<4)

	out := buf.String()
	if !strings.Contains(out, "Tick too long: 312us (overruns=4)") {
		t.Errorf("unexpected overrun output: %q", out)
	}
	if !strings.Contains(out, "mask=0x000010") {
		t.Errorf("unexpected gpio output: %q", out)
	}
}

func TestIsEnabled(t *testing.T) {
	captureOutput(t, LevelVerbose)
	if !IsEnabled(LevelLive) {
		t.Error("live should be enabled at verbose level")
	}
	if IsEnabled(LevelTrace) {
		t.Error("trace should not be enabled at verbose level")
	}
	if Level() != LevelVerbose {
		t.Errorf("Level() = %d, want %d", Level(), LevelVerbose)
	}
}

func TestFmt(t *testing.T) {
	captureOutput(t, LevelOff)
	if got := Fmt("%d", 5); got != "" {
		t.Errorf("Fmt at level 0 = %q, want empty", got)
	}
	captureOutput(t, LevelInfo)
	if got := Fmt("%d", 5); got != "5" {
		t.Errorf("Fmt = %q, want 5", got)
	}
}
