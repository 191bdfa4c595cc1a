package steps

import "math"

// CalibrateDifficulty maps mastery levels (0..100) onto a 1..10 question
// difficulty. With no mastery data it starts at 1.
func CalibrateDifficulty(levels []int) int {
	if len(levels) == 0 {
		return 1
	}
	sum := 0
	for _, l := range levels {
		sum += l
	}
	mean := float64(sum) / float64(len(levels))
	return clampInt(int(math.Round(mean/10))+1, 1, 10)
}
