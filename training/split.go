package training

import (
	"math"

	rng "github.com/leesper/go_rng"

	"github.com/nvr-ai/go-firewatch/common"
)

// Split shuffles n sample indices and partitions them into training and validation sets.
//
// The validation set holds ceil(n * fraction) indices. Both sets must end up non-empty.
//
// Arguments:
//   - n: The number of samples.
//   - fraction: The validation share, in (0, 1).
//   - seed: Seed of the shuffle.
//
// Returns:
//   - []int: The training indices.
//   - []int: The validation indices.
//   - error: DatasetEmpty if either set would be empty.
func Split(n int, fraction float64, seed int64) ([]int, []int, error) {
	val := int(math.Ceil(float64(n) * fraction))
	if val <= 0 || val >= n {
		return nil, nil, common.Ef(common.KindDatasetEmpty, "training.Split",
			"%d samples cannot be split %.0f/%.0f", n, 100*(1-fraction), 100*fraction)
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	shuffle(rng.NewUniformGenerator(seed), order)

	return order[val:], order[:val], nil
}

// shuffle is a Fisher-Yates shuffle driven by r.
func shuffle(r *rng.UniformGenerator, idx []int) {
	for i := len(idx) - 1; i > 0; i-- {
		j := int(r.Int64n(int64(i + 1)))
		idx[i], idx[j] = idx[j], idx[i]
	}
}
