package calibrate

import (
	"math"

	"deskquant/derivs/internal/types"
)

// Weights turns traded volumes into the importance of each benchmark: its
// share of the total. Volumes must be finite and non-negative and at least
// one must be positive.
func Weights(volumes []float64) ([]float64, error) {
	if len(volumes) == 0 {
		return nil, types.ErrEmptyBasket
	}

	largest := 0.0
	for _, v := range volumes {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, types.NewValidationError("volume", v, "volume must be finite", types.ErrNegativeVolume)
		}
		if v < 0 {
			return nil, types.NewValidationError("volume", v, "volume must not be negative", types.ErrNegativeVolume)
		}
		largest = math.Max(largest, v)
	}

	if largest == 0 {
		return nil, types.ErrZeroTotalVolume
	}

	// scaled by the largest volume so the total cannot overflow
	w := make([]float64, len(volumes))
	total := 0.0
	for i, v := range volumes {
		w[i] = v / largest
		total += w[i]
	}
	for i := range w {
		w[i] /= total
	}
	return w, nil
}
