package entropy

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableOf(t *testing.T, markets map[string][]Record) AlignedTable {
	t.Helper()
	table, err := Align(markets, time.Hour)
	require.NoError(t, err)
	return table
}

func randomTable(t *testing.T, seed int64, markets, n int) AlignedTable {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	input := make(map[string][]Record, markets)
	common := make([]float64, n)
	for i := range common {
		common[i] = rng.NormFloat64()
	}
	for m := 0; m < markets; m++ {
		weight := rng.Float64()
		vals := make([]float64, n)
		for i := range vals {
			vals[i] = 0.5 + 0.05*(weight*common[i]+(1-weight)*rng.NormFloat64())
		}
		input[string(rune('A'+m))] = hourly(vals...)
	}
	return tableOf(t, input)
}

func TestCorrelateIdenticalSeries(t *testing.T) {
	table := tableOf(t, map[string][]Record{
		"KXA": hourly(0.1, 0.2, 0.3, 0.4),
		"KXB": hourly(0.1, 0.2, 0.3, 0.4),
	})

	raw := Correlate(table)
	ab, ok := raw.At("KXA", "KXB")
	require.True(t, ok)
	require.True(t, ab.Valid)
	assert.InDelta(t, 1.0, ab.Float, 1e-12)

	filtered := FilterMatrix(raw, DefaultNoiseThreshold)
	fab, _ := filtered.At("KXA", "KXB")
	assert.Equal(t, ab, fab)
	fba, _ := filtered.At("KXB", "KXA")
	assert.Equal(t, ab, fba)

	aa, _ := filtered.At("KXA", "KXA")
	bb, _ := filtered.At("KXB", "KXB")
	assert.Equal(t, Some(0), aa)
	assert.Equal(t, Some(0), bb)

	// the raw matrix keeps its true diagonal
	rawAA, _ := raw.At("KXA", "KXA")
	assert.InDelta(t, 1.0, rawAA.Float, 1e-12)
}

func TestCorrelateIsSymmetric(t *testing.T) {
	raw := Correlate(randomTable(t, 11, 6, 48))
	require.Equal(t, 6, raw.Size())
	for i := range raw.Cells {
		for j := range raw.Cells {
			assert.Equal(t, raw.Cells[i][j], raw.Cells[j][i])
		}
	}

	filtered := FilterMatrix(raw, DefaultNoiseThreshold)
	for i := range filtered.Cells {
		for j := range filtered.Cells {
			assert.Equal(t, filtered.Cells[i][j], filtered.Cells[j][i])
		}
	}
}

func TestFilterMatrixThreshold(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		raw := Correlate(randomTable(t, seed, 5, 36))
		for _, threshold := range []float64{0, DefaultNoiseThreshold, 0.6, 1.5} {
			filtered := FilterMatrix(raw, threshold)
			for i := range raw.Cells {
				assert.Equal(t, Some(0), filtered.Cells[i][i], "diagonal must be zero")
				for j := range raw.Cells {
					if i == j {
						continue
					}
					r := raw.Cells[i][j]
					f := filtered.Cells[i][j]
					require.True(t, r.Valid)
					if math.Abs(r.Float) < threshold {
						assert.Equal(t, Some(0), f)
					} else {
						assert.Equal(t, r, f)
					}
				}
			}
		}
	}
}

func TestFilterMatrixDoesNotMutateRaw(t *testing.T) {
	raw := Correlate(randomTable(t, 3, 4, 24))
	before := raw.clone()
	_ = FilterMatrix(raw, 0.9)
	assert.Equal(t, before, raw)
}

func TestCorrelateNoOverlapIsUndefined(t *testing.T) {
	late := make([]Record, 4)
	for i := range late {
		late[i] = Record{Timestamp: t0.Add(time.Duration(i+10) * time.Hour), Probability: prob(0.1 * float64(i+1))}
	}
	table := tableOf(t, map[string][]Record{
		"EARLY": hourly(0.1, 0.3, 0.2, 0.4),
		"LATE":  late,
	})

	raw := Correlate(table)
	v, _ := raw.At("EARLY", "LATE")
	assert.False(t, v.Valid)

	filtered := FilterMatrix(raw, DefaultNoiseThreshold)
	fv, _ := filtered.At("EARLY", "LATE")
	assert.False(t, fv.Valid, "no overlap must not collapse to a filtered zero")

	_, ok := ButterflyIndex(filtered)
	assert.False(t, ok)
}

func TestCorrelateFlatColumnIsUndefined(t *testing.T) {
	// cent prices whose mean does not round back to the price itself
	for _, flat := range []float64{0.5, 0.1, 0.07, 0.29, 0.33, 0.57, 0.61} {
		table := tableOf(t, map[string][]Record{
			"FLAT":   hourly(flat, flat, flat, flat, flat, flat, flat),
			"MOVING": hourly(0.1, 0.4, 0.2, 0.6, 0.3, 0.5, 0.35),
		})
		raw := Correlate(table)
		v, _ := raw.At("FLAT", "MOVING")
		assert.False(t, v.Valid, "flat=%v", flat)
		self, _ := raw.At("FLAT", "FLAT")
		assert.False(t, self.Valid, "flat=%v", flat)

		filtered := FilterMatrix(raw, DefaultNoiseThreshold)
		fv, _ := filtered.At("FLAT", "MOVING")
		assert.False(t, fv.Valid, "flat=%v must not read as a filtered zero", flat)
	}
}

func TestCorrelateFlatOverlapOnly(t *testing.T) {
	// the column moves overall but is constant where it overlaps the other one
	table := tableOf(t, map[string][]Record{
		"A": hourly(0.3, 0.9, 0.1, 0.1, 0.1, 0.1),
		"B": {
			{Timestamp: t0.Add(2 * time.Hour), Probability: prob(0.2)},
			{Timestamp: t0.Add(3 * time.Hour), Probability: prob(0.4)},
			{Timestamp: t0.Add(4 * time.Hour), Probability: prob(0.3)},
			{Timestamp: t0.Add(5 * time.Hour), Probability: prob(0.6)},
		},
	})
	raw := Correlate(table)
	v, _ := raw.At("A", "B")
	assert.False(t, v.Valid)
	self, _ := raw.At("A", "A")
	assert.True(t, self.Valid)
}

func TestCorrelateUsesPairwiseCompleteObservations(t *testing.T) {
	partial := hourly(0.1, 0.2, 0.3, 0.4, 0.5, 0.6)[2:]
	table := tableOf(t, map[string][]Record{
		"FULL":    hourly(0.9, 0.1, 0.3, 0.4, 0.5, 0.6),
		"PARTIAL": partial,
		"OTHER":   hourly(0.2, 0.8, 0.1, 0.9, 0.3, 0.7),
	})

	raw := Correlate(table)
	v, _ := raw.At("FULL", "PARTIAL")
	require.True(t, v.Valid)
	// identical over the four shared hours, despite FULL's noisy start
	assert.InDelta(t, 1.0, v.Float, 1e-12)
}

func TestButterflyIndex(t *testing.T) {
	m := CorrelationMatrix{
		Markets: []string{"A", "B", "C"},
		Cells: [][]Value{
			{Some(0), Some(0.4), Some(0.8)},
			{Some(0.4), Some(0), Undefined},
			{Some(0.8), Undefined, Some(0)},
		},
	}
	pair, ok := ButterflyIndex(m)
	require.True(t, ok)
	assert.Equal(t, EntanglementPair{MarketA: "A", MarketB: "C", Coefficient: 0.8}, pair)
}

func TestButterflyIndexTieBreaksRowMajor(t *testing.T) {
	table := tableOf(t, map[string][]Record{
		"C": hourly(0.1, 0.2, 0.3, 0.4),
		"B": hourly(0.1, 0.2, 0.3, 0.4),
		"A": hourly(0.1, 0.2, 0.3, 0.4),
	})
	res, err := Entangle(table, DefaultNoiseThreshold)
	require.NoError(t, err)
	require.NotNil(t, res.Pair)
	assert.Equal(t, "A", res.Pair.MarketA)
	assert.Equal(t, "B", res.Pair.MarketB)
}

func TestButterflyIndexIgnoresDiagonal(t *testing.T) {
	table := tableOf(t, map[string][]Record{
		"UP":   hourly(0.1, 0.2, 0.3, 0.4),
		"DOWN": hourly(0.4, 0.3, 0.2, 0.1),
	})
	res, err := Entangle(table, DefaultNoiseThreshold)
	require.NoError(t, err)
	require.NotNil(t, res.Pair)
	assert.Equal(t, "DOWN", res.Pair.MarketA)
	assert.Equal(t, "UP", res.Pair.MarketB)
	assert.InDelta(t, -1.0, res.Pair.Coefficient, 1e-12)
}

func TestEntangleSmallTables(t *testing.T) {
	res, err := Entangle(AlignedTable{}, DefaultNoiseThreshold)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Filtered.Size())
	assert.Nil(t, res.Pair)

	single := tableOf(t, map[string][]Record{"ONLY": hourly(0.1, 0.3, 0.2)})
	res, err = Entangle(single, DefaultNoiseThreshold)
	require.NoError(t, err)
	require.Equal(t, 1, res.Filtered.Size())
	assert.Equal(t, Some(0), res.Filtered.Cells[0][0])
	assert.Nil(t, res.Pair)
}

func TestEntangleRejectsBadThreshold(t *testing.T) {
	_, err := Entangle(AlignedTable{}, -0.1)
	assert.ErrorIs(t, err, ErrInvalidThreshold)
}
