package stepper

// NumRampSteps is the length of RampTable.
const NumRampSteps = 29

// RampTable is the acceleration profile shared by all axes, read forwards while
// accelerating and backwards while decelerating. Values are on the Speed scale:
// 128 means one tick per clock half-cycle, 1 means 256 ticks per step.
var RampTable = [NumRampSteps]int{
	25, 30, 35, 40, 45, 50, 55, 60, 65, 70,
	75, 80, 85, 90, 95, 100, 103, 106, 108, 110,
	112, 114, 116, 118, 120, 122, 124, 126, 128,
}

// rampLen is the number of steps an axis spends ramping from standstill to the
// top of the table.
func (a *Axis) rampLen() int {
	return NumRampSteps * a.rampStretch
}

// rampSpeed picks the speed for the next step: the acceleration entry for the
// steps taken so far, limited by the deceleration entry for the steps still to
// go so the final step runs at RampTable[0], then capped at MaxSpeed.
//
// With k steps taken the next step runs at RampTable[k/stretch]; with r steps
// remaining it runs at RampTable[(r-1)/stretch]. The two profiles mirror each
// other.
func (a *Axis) rampSpeed(remaining int) int {
	speed := RampTable[a.rampIndex/a.rampStretch]
	if remaining > 0 && remaining <= a.rampLen() {
		if down := RampTable[(remaining-1)/a.rampStretch]; down < speed {
			speed = down
		}
	}
	if speed > a.maxSpeed {
		speed = a.maxSpeed
	}
	return speed
}
