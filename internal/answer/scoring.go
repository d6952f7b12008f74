package answer

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	MaxScore = 1000

	DefaultWindow = 30 * time.Second
)

var maxScore = decimal.NewFromInt(MaxScore)

// Score awards MaxScore to an instant correct answer, decreasing linearly to 0 at the end
// of the window. Incorrect answers score 0.
func Score(correct bool, elapsed, window time.Duration) int {
	if !correct {
		return 0
	}

	if window <= 0 {
		return MaxScore
	}

	// Elapsed time is counted in whole milliseconds, unless the window itself is shorter.
	unit := time.Millisecond
	if window < unit {
		unit = time.Nanosecond
	}

	ratio := decimal.NewFromInt(int64(elapsed / unit)).
		Div(decimal.NewFromInt(int64(window / unit)))

	switch {
	case ratio.IsNegative():
		ratio = decimal.Zero
	case ratio.GreaterThan(decimal.NewFromInt(1)):
		ratio = decimal.NewFromInt(1)
	}

	// Round is half away from zero, which is half-up for the positive penalty.
	penalty := ratio.Mul(maxScore).Round(0)

	return int(maxScore.Sub(penalty).IntPart())
}
