package audio

import "math"

// volumeToPower maps a linear 0..1 volume onto the base-2 exponent used by effects.Volume.
// 1 is unity gain, 0.5 is -1 (half amplitude).
func volumeToPower(vol float64) float64 {
	if vol <= 0.01 {
		return -10 // Silent
	}
	return math.Log2(vol)
}

func clampVolume(vol float64) float64 {
	switch {
	case vol < 0:
		return 0
	case vol > 1:
		return 1
	}
	return vol
}
