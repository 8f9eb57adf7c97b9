package experiment

import "math"

// wilsonInterval returns the Wilson score interval for a binomial success
// rate at the given confidence level, clamped to [0,1].
func wilsonInterval(successes, trials int, confidence float64) (lower, upper float64) {
	if trials == 0 {
		return 0, 0
	}

	pHat := float64(successes) / float64(trials)
	n := float64(trials)
	z := normQuantile((1 + confidence) / 2)

	denom := 1 + z*z/n
	center := (pHat + z*z/(2*n)) / denom
	margin := z * math.Sqrt((pHat*(1-pHat)+z*z/(4*n))/n) / denom

	return math.Max(0, center-margin), math.Min(1, center+margin)
}

// normQuantile is the standard normal inverse CDF via the error function
// inverse: Phi^-1(p) = sqrt(2) * erfinv(2p - 1).
func normQuantile(p float64) float64 {
	return math.Sqrt2 * math.Erfinv(2*p-1)
}

// chiSquareP runs a 2x2 chi-square contingency test (with Yates continuity
// correction, matching the usual 2x2 convention) on variant vs baseline
// success counts and returns the p-value.
func chiSquareP(successesA, trialsA, successesB, trialsB int) float64 {
	observed := [2][2]float64{
		{float64(successesA), float64(trialsA - successesA)},
		{float64(successesB), float64(trialsB - successesB)},
	}

	rowSums := [2]float64{
		observed[0][0] + observed[0][1],
		observed[1][0] + observed[1][1],
	}
	colSums := [2]float64{
		observed[0][0] + observed[1][0],
		observed[0][1] + observed[1][1],
	}
	total := rowSums[0] + rowSums[1]
	if total == 0 {
		return 1
	}

	chi2 := 0.0
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			expected := rowSums[i] * colSums[j] / total
			if expected == 0 {
				return 1
			}
			diff := math.Abs(observed[i][j]-expected) - 0.5
			if diff < 0 {
				diff = 0
			}
			chi2 += diff * diff / expected
		}
	}

	// Survival function of chi-square with one degree of freedom.
	return math.Erfc(math.Sqrt(chi2 / 2))
}
