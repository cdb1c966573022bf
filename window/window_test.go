package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yearcast/go-yearcaster/dataset"
)

func makeRows(n int) []dataset.Row {
	rows := make([]dataset.Row, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, dataset.Row{
			"year":       float64(2000 + i),
			"emigrants":  float64(i),
			"population": float64(100 + i),
		})
	}
	return rows
}

func TestBuildPairCount(t *testing.T) {
	for _, n := range []int{4, 7, 12} {
		for _, lookback := range []int{1, 3} {
			seqs, err := Build(makeRows(n), lookback, []string{"emigrants"}, "emigrants")
			require.Nil(t, err)
			require.Equal(t, n-lookback, len(seqs.X))
			require.Equal(t, n-lookback, len(seqs.Y))
			for _, win := range seqs.X {
				assert.Equal(t, lookback, len(win))
			}
		}
	}
}

func TestBuildContent(t *testing.T) {
	rows := makeRows(5)
	seqs, err := Build(rows, 3, []string{"emigrants", "population"}, "emigrants")
	require.Nil(t, err)

	require.Equal(t, 2, len(seqs.X))
	assert.Equal(t, [][]float64{{0, 100}, {1, 101}, {2, 102}}, seqs.X[0])
	assert.Equal(t, [][]float64{{1, 101}, {2, 102}, {3, 103}}, seqs.X[1])
	assert.Equal(t, []float64{3, 4}, seqs.Y)
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(makeRows(3), 3, []string{"emigrants"}, "emigrants")
	assert.ErrorIs(t, err, ErrNotEnoughRows)

	_, err = Build(makeRows(3), 0, []string{"emigrants"}, "emigrants")
	assert.ErrorIs(t, err, ErrNonPositiveLookback)
}
