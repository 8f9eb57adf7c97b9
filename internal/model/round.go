package model

import "math"

// Round3 rounds to three decimal places, used for scores and confidences.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// Round6 rounds to six decimal places, used for USD cost figures.
func Round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// Clamp01 clamps v into [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
