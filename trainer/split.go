package trainer

import (
	"math/rand"

	"github.com/yearcast/go-yearcaster/models"
)

// SplitPolicy partitions n pairs into training and validation index sets
// given the held-out fraction. Policies return indices so the caller never
// reorders the underlying chronological pairs.
type SplitPolicy func(n int, fraction float64, rng *rand.Rand) (train, val []int)

// ContiguousTail reserves the last fraction of the pairs for validation,
// keeping both partitions chronological.
func ContiguousTail(n int, fraction float64, _ *rand.Rand) (train, val []int) {
	valLen := int(float64(n) * fraction)
	if valLen >= n {
		valLen = n - 1
	}
	cut := n - valLen
	train = indexRange(0, cut)
	val = indexRange(cut, n)
	return train, val
}

// Shuffled reserves a random fraction of the pairs for validation. Both
// partitions are returned in ascending index order so batch construction
// still walks the series chronologically.
func Shuffled(n int, fraction float64, rng *rand.Rand) (train, val []int) {
	valLen := int(float64(n) * fraction)
	if valLen >= n {
		valLen = n - 1
	}

	perm := rng.Perm(n)
	valSet := make(map[int]struct{}, valLen)
	for _, idx := range perm[:valLen] {
		valSet[idx] = struct{}{}
	}

	train = make([]int, 0, n-valLen)
	val = make([]int, 0, valLen)
	for i := 0; i < n; i++ {
		if _, held := valSet[i]; held {
			val = append(val, i)
			continue
		}
		train = append(train, i)
	}
	return train, val
}

// PolicyForFamily returns the default validation split policy of a model
// family. The recurrent family keeps its held-out windows contiguous at the
// end of the series; the dense family samples them.
func PolicyForFamily(family models.Family) SplitPolicy {
	if family == models.FamilySequenceMemory {
		return ContiguousTail
	}
	return Shuffled
}

func indexRange(start, end int) []int {
	out := make([]int, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, i)
	}
	return out
}
