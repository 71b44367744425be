package firing

import (
	"testing"

	"github.com/turretctl/turretd/internal/hw/gpio"
	"github.com/turretctl/turretd/internal/hw/stepper"
)

// fakeAxis jumps straight to its target.
type fakeAxis struct {
	pos     int
	target  int
	targets []int
}

func (a *fakeAxis) SetTarget(t int) {
	a.target = t
	a.targets = append(a.targets, t)
}
func (a *fakeAxis) Settled() bool { return a.pos == a.target }
func (a *fakeAxis) Position() int { return a.pos }
func (a *fakeAxis) arrive() { a.pos = a.target }

func TestSequence_Cycle(t *testing.T) {
	draw := &fakeAxis{}
	s := NewSequence(draw, 875, 150)

	if !s.Armed() {
		t.Fatal("new sequence should be armed")
	}
	if !s.Fire() {
		t.Fatal("Fire on armed sequence returned false")
	}
	if s.State() != Drawing || draw.target != 875 {
		t.Fatalf("after Fire: state %v, target %d", s.State(), draw.target)
	}
	if s.Fire() {
		t.Error("Fire while drawing should be refused")
	}

	// Still moving.
	s.Tick()
	if s.State() != Drawing {
		t.Fatalf("state = %v before arrival", s.State())
	}

	draw.arrive()
	s.Tick()
	if s.State() != Dwelling {
		t.Fatalf("state = %v, want dwelling", s.State())
	}

	for i := 1; i < 150; i++ {
		s.Tick()
		if s.State() != Dwelling {
			t.Fatalf("left dwelling after %d ticks", i)
		}
	}
	s.Tick()
	if s.State() != Retracting || draw.target != 0 {
		t.Fatalf("after dwell: state %v, target %d", s.State(), draw.target)
	}

	s.Tick()
	if s.State() != Retracting {
		t.Fatal("armed before retract finished")
	}
	draw.arrive()
	s.Tick()
	if !s.Armed() {
		t.Fatalf("state = %v, want armed", s.State())
	}
	if s.Shots() != 1 {
		t.Errorf("Shots = %d", s.Shots())
	}
	if len(draw.targets) != 2 {
		t.Errorf("draw targets = %v, want [875 0]", draw.targets)
	}
}

func TestSequence_TickWhileArmedIsNoop(t *testing.T) {
	draw := &fakeAxis{}
	s := NewSequence(draw, 875, 150)
	for i := 0; i < 10; i++ {
		s.Tick()
	}
	if !s.Armed() || len(draw.targets) != 0 {
		t.Errorf("state %v, targets %v", s.State(), draw.targets)
	}
}

// Drive a real axis through a full cycle, ticking the sequence only when the
// axis is quiescent.
func TestSequence_WithStepperAxis(t *testing.T) {
	drv := gpio.NewMockDriver(0)
	axis, err := stepper.NewAxis(drv, stepper.Config{
		Name: "draw", EnablePin: 2, DirPin: 3, ClockPin: 4, MaxSpeed: 128, RampStretch: 1,
	})
	if err != nil {
		t.Fatalf("NewAxis: %v", err)
	}
	s := NewSequence(axis, 875, 150)
	s.Fire()

	maxDrawn := 0
	for i := 0; i < 100000 && (s.Shots() == 0 || !s.Armed()); i++ {
		axis.Tick()
		maxDrawn = max(maxDrawn, axis.Position())
		if axis.Quiescent() {
			s.Tick()
		}
	}
	if !s.Armed() {
		t.Fatalf("cycle did not complete, state %v", s.State())
	}
	if maxDrawn != 875 {
		t.Errorf("max draw position = %d, want 875", maxDrawn)
	}
	if axis.Position() != 0 {
		t.Errorf("final position = %d, want 0", axis.Position())
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{
		Armed: "armed", Drawing: "drawing", Dwelling: "dwelling", Retracting: "retracting", State(9): "state(9)",
	} {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(s), got, want)
		}
	}
}
