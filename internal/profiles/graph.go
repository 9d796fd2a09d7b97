package profiles

import "math"

// Interpolate performs piecewise-linear interpolation over a sorted
// (strictly ascending by TempC) set of points, clamping below the first
// point and above the last. points must have already
// passed Validate. Duty is rounded half-away-from-zero.
func Interpolate(points []GraphPoint, tempC float32) int {
	if len(points) == 0 {
		return 0
	}
	if tempC <= points[0].TempC {
		return points[0].Duty
	}
	last := points[len(points)-1]
	if tempC >= last.TempC {
		return last.Duty
	}

	for i := 0; i < len(points)-1; i++ {
		cur, next := points[i], points[i+1]
		if tempC == cur.TempC {
			return cur.Duty
		}
		if tempC > next.TempC {
			continue
		}
		ratio := float64(tempC-cur.TempC) / float64(next.TempC-cur.TempC)
		interpolated := float64(cur.Duty) + ratio*float64(next.Duty-cur.Duty)
		return roundHalfAwayFromZero(interpolated)
	}

	return last.Duty
}

func roundHalfAwayFromZero(v float64) int {
	if v >= 0 {
		return int(math.Floor(v + 0.5))
	}
	return int(math.Ceil(v - 0.5))
}
