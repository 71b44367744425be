package geometry

import (
	"github.com/turretctl/turretd/internal/config"
)

// StepsCalculator converts detector coordinates (0-1000 across the camera
// frame) to turret and tilt step targets. The scale factors are calibration
// constants of the rig, not derived from motor geometry.
type StepsCalculator struct {
	turretScaleMilli int
	tiltScaleMilli   int
}

// NewStepsCalculator creates a step calculator from configuration.
func NewStepsCalculator(cfg *config.Config) *StepsCalculator {
	return &StepsCalculator{
		turretScaleMilli: cfg.TurretAxis.ScaleMilli,
		tiltScaleMilli:   cfg.TiltAxis.ScaleMilli,
	}
}

// TurretStepsFromX converts a horizontal detector coordinate to turret steps.
// The reference rig turns 9.72 steps per degree through a 4:1 reduction, so
// the scale is negative: the camera image is mirrored relative to the turret.
func (s *StepsCalculator) TurretStepsFromX(x int) int {
	return x * s.turretScaleMilli / 1000
}

// TiltStepsFromY converts a vertical detector coordinate to tilt steps
// (31.1 steps per degree on the reference rig).
func (s *StepsCalculator) TiltStepsFromY(y int) int {
	return y * s.tiltScaleMilli / 1000
}
