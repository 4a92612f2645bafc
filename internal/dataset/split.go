package dataset

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// SplitIndices shuffles 0..n-1 with a seeded source and returns train and
// test index sets. The test set holds ceil(n*testFraction) rows.
func SplitIndices(n int, testFraction float64, seed uint64) (train, test []int, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction must be in (0, 1), got %v", testFraction)
	}
	nTest := int(math.Ceil(float64(n) * testFraction))
	if nTest < 1 || n-nTest < 1 {
		return nil, nil, fmt.Errorf("cannot split %d rows with test fraction %v", n, testFraction)
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	perm := rng.Perm(n)
	return perm[nTest:], perm[:nTest], nil
}

// Split partitions the dataset into train and test subsets.
func (d *Dataset) Split(testFraction float64, seed uint64) (*Dataset, *Dataset, error) {
	trainIdx, testIdx, err := SplitIndices(d.Len(), testFraction, seed)
	if err != nil {
		return nil, nil, err
	}
	return d.subset(trainIdx), d.subset(testIdx), nil
}

func (d *Dataset) subset(idx []int) *Dataset {
	rows := make([]Transaction, len(idx))
	for i, j := range idx {
		rows[i] = d.rows[j]
	}
	return New(rows)
}
