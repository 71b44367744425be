// Package firing runs the draw, dwell and retract cycle of one shot.
package firing

import (
	"fmt"

	"github.com/turretctl/turretd/internal/debug"
)

// Axis is the part of the draw axis the sequence drives.
type Axis interface {
	SetTarget(target int)
	Settled() bool
	Position() int
}

// State is the phase of the shot cycle.
type State int

const (
	Armed      State = iota // ready to fire, draw axis at 0
	Drawing                 // pulling back to the release position
	Dwelling                // holding at the release position
	Retracting              // returning to 0
)

func (s State) String() string {
	switch s {
	case Armed:
		return "armed"
	case Drawing:
		return "drawing"
	case Dwelling:
		return "dwelling"
	case Retracting:
		return "retracting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Sequence moves the draw axis through one shot. Tick must only be called on
// ticks where every axis is quiescent, so a phase only advances once the
// previous move has finished.
type Sequence struct {
	draw       Axis
	drawSteps  int
	dwellTicks int

	state State
	wait  int
	shots int
}

func NewSequence(draw Axis, drawSteps, dwellTicks int) *Sequence {
	return &Sequence{
		draw:       draw,
		drawSteps:  drawSteps,
		dwellTicks: dwellTicks,
	}
}

// Fire starts a shot. It returns false, and does nothing, unless the sequence
// is armed.
func (s *Sequence) Fire() bool {
	if s.state != Armed {
		return false
	}
	s.draw.SetTarget(s.drawSteps)
	s.state = Drawing
	s.shots++
	debug.Verbose("Shot %d: drawing to %d", s.shots, s.drawSteps)
	return true
}

// Tick advances the cycle by one idle tick.
func (s *Sequence) Tick() {
	switch s.state {
	case Drawing:
		if s.draw.Settled() && s.draw.Position() == s.drawSteps {
			s.wait = s.dwellTicks
			s.state = Dwelling
		}
	case Dwelling:
		s.wait--
		if s.wait <= 0 {
			s.wait = 0
			s.draw.SetTarget(0)
			s.state = Retracting
			debug.Verbose("Shot %d: released, retracting", s.shots)
		}
	case Retracting:
		if s.draw.Settled() && s.draw.Position() == 0 {
			s.state = Armed
			debug.Verbose("Shot %d: armed", s.shots)
		}
	}
}

func (s *Sequence) State() State { return s.state }

// Armed reports whether a shot can be started.
func (s *Sequence) Armed() bool { return s.state == Armed }

// Shots returns the number of shots started since boot.
func (s *Sequence) Shots() int { return s.shots }
