package bisect_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/bisector/pkg/bisect"
)

func makeItems(n int) []string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf("item-%03d", i)
	}

	return items
}

// converge runs the searcher against a verdict that is bad for every index at
// or past boundary and returns the found index and the number of queries.
func converge(t *testing.T, s *bisect.Searcher, boundary int) (int, int) {
	t.Helper()

	queries := 0

	for !s.Done() {
		queries++
		s.SetStatus(s.Current() >= boundary)
		require.LessOrEqual(t, queries, s.Len(), "searcher failed to converge")
	}

	return s.Current(), queries
}

func TestSearcher_ConvergesToBoundary(t *testing.T) {
	t.Parallel()

	for n := 1; n <= 65; n++ {
		limit := int(math.Ceil(math.Log2(float64(n)))) + 1

		for boundary := range n {
			s, err := bisect.New(makeItems(n))
			require.NoError(t, err)

			found, queries := converge(t, s, boundary)

			assert.Equal(t, boundary, found, "n=%d", n)
			assert.LessOrEqual(t, queries, limit, "n=%d boundary=%d", n, boundary)
		}
	}
}

func TestSearcher_ExampleScenario(t *testing.T) {
	t.Parallel()

	s, err := bisect.New([]string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)

	// Testing c: bad set {a,b,c} contains c.
	assert.Equal(t, "c", s.GetNext())
	assert.False(t, s.SetStatus(true))

	// Testing b: bad set {a,b} is clean.
	assert.Equal(t, "b", s.GetNext())
	assert.True(t, s.SetStatus(false))

	assert.Equal(t, 2, s.Current())
	assert.Equal(t, "c", s.GetNext())
}

func TestSearcher_SingleItemIsDecided(t *testing.T) {
	t.Parallel()

	s, err := bisect.New([]string{"only"})
	require.NoError(t, err)

	assert.True(t, s.Done())
	assert.Equal(t, "only", s.GetNext())
	assert.True(t, s.SetStatus(false))
	assert.Equal(t, 0, s.Current())
}

func TestSearcher_Deterministic(t *testing.T) {
	t.Parallel()

	verdicts := []bool{false, true, false, true, true, false}

	run := func() []string {
		s, err := bisect.New(makeItems(40))
		require.NoError(t, err)

		var tested []string

		for _, v := range verdicts {
			tested = append(tested, s.GetNext())
			if s.SetStatus(v) {
				break
			}
		}

		return append(tested, s.GetNext())
	}

	assert.Equal(t, run(), run())
}

func TestSearcher_EmptyItems(t *testing.T) {
	t.Parallel()

	_, err := bisect.New(nil)
	require.ErrorIs(t, err, bisect.ErrEmptyItems)
}

func TestSearcher_Restore(t *testing.T) {
	t.Parallel()

	s, err := bisect.New(makeItems(10))
	require.NoError(t, err)

	s.SetStatus(true)
	saved := s.Window()

	resumed, err := bisect.New(makeItems(10))
	require.NoError(t, err)
	require.NoError(t, resumed.Restore(saved))

	assert.Equal(t, s.Current(), resumed.Current())

	tests := []struct {
		name   string
		window bisect.Window
	}{
		{"negative low", bisect.Window{Low: -1, High: 3}},
		{"low above high", bisect.Window{Low: 5, High: 4}},
		{"high out of range", bisect.Window{Low: 0, High: 10}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			restoreErr := resumed.Restore(tc.window)
			require.ErrorIs(t, restoreErr, bisect.ErrInvalidWindow)
		})
	}
}
