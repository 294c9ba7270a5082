package reward

import "math"

// Compute returns the aura granted for a completion: base × debuff^failedCount.
// A debuff of 1.0 yields no decay; values in (0,1) decay repeat rewards
// exponentially. debuff <= 0 is treated as unset (1.0). Deterministic,
// no side effects.
func Compute(base float64, failedCount int, debuff float64) float64 {
	if failedCount < 0 {
		failedCount = 0
	}
	if debuff <= 0 {
		debuff = 1.0
	}
	return base * math.Pow(debuff, float64(failedCount))
}
