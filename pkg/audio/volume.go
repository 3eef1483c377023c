package audio

import "math"

// volumeToPower maps a 0.0-1.0 volume to beep's base-2 power exponent.
// 1.0 is unity gain; values near zero are handled by the Silent flag.
func volumeToPower(vol float64) float64 {
	if vol <= 0.01 {
		return -10
	}
	return math.Log2(vol)
}
