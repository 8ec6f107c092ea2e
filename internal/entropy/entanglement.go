package entropy

import (
	"fmt"
	"math"
)

// DefaultNoiseThreshold is the |r| below which a correlation is zeroed.
const DefaultNoiseThreshold = 0.3

// CorrelationMatrix is a square, symmetric matrix indexed by Markets.
// An undefined cell means the pair had no usable overlap; a defined 0 in a
// filtered matrix means the correlation was too weak to keep.
type CorrelationMatrix struct {
	Markets []string  `json:"markets" yaml:"markets"`
	Cells   [][]Value `json:"cells" yaml:"cells"`
}

// Size returns the number of markets.
func (m CorrelationMatrix) Size() int {
	return len(m.Markets)
}

// At returns the cell for a pair of markets.
func (m CorrelationMatrix) At(a, b string) (Value, bool) {
	i, j := m.indexOf(a), m.indexOf(b)
	if i < 0 || j < 0 {
		return Undefined, false
	}
	return m.Cells[i][j], true
}

func (m CorrelationMatrix) indexOf(market string) int {
	for i, id := range m.Markets {
		if id == market {
			return i
		}
	}
	return -1
}

func (m CorrelationMatrix) clone() CorrelationMatrix {
	out := CorrelationMatrix{
		Markets: append([]string(nil), m.Markets...),
		Cells:   make([][]Value, len(m.Cells)),
	}
	for i, row := range m.Cells {
		out.Cells[i] = append([]Value(nil), row...)
	}
	return out
}

// EntanglementPair is the strongest off-diagonal correlation.
type EntanglementPair struct {
	MarketA     string  `json:"market_a" yaml:"market_a"`
	MarketB     string  `json:"market_b" yaml:"market_b"`
	Coefficient float64 `json:"coefficient" yaml:"coefficient"`
}

// Entanglement bundles the raw and filtered matrices with the butterfly pair.
type Entanglement struct {
	Threshold float64           `json:"threshold" yaml:"threshold"`
	Raw       CorrelationMatrix `json:"raw" yaml:"raw"`
	Filtered  CorrelationMatrix `json:"filtered" yaml:"filtered"`
	Pair      *EntanglementPair `json:"pair,omitempty" yaml:"pair,omitempty"`
}

// Correlate computes the Pearson correlation of every pair of columns using
// only the grid points where both columns are defined. The diagonal carries
// the true self-correlation.
func Correlate(table AlignedTable) CorrelationMatrix {
	n := len(table.Markets)
	m := CorrelationMatrix{
		Markets: append([]string(nil), table.Markets...),
		Cells:   make([][]Value, n),
	}
	for i := range m.Cells {
		m.Cells[i] = make([]Value, n)
	}

	for i := 0; i < n; i++ {
		ci := table.Columns[table.Markets[i]]
		for j := i; j < n; j++ {
			r := pearson(ci, table.Columns[table.Markets[j]])
			m.Cells[i][j] = r
			m.Cells[j][i] = r
		}
	}

	return m
}

// FilterMatrix returns a copy of raw with every |r| < threshold set to 0 and
// the diagonal set to 0. Undefined cells stay undefined.
func FilterMatrix(raw CorrelationMatrix, threshold float64) CorrelationMatrix {
	out := raw.clone()
	for i, row := range out.Cells {
		for j, v := range row {
			switch {
			case i == j:
				row[j] = Some(0)
			case v.Valid && math.Abs(v.Float) < threshold:
				row[j] = Some(0)
			}
		}
	}
	return out
}

// ButterflyIndex scans the off-diagonal cells in row-major order and returns
// the first maximum. ok is false when no off-diagonal cell is defined.
func ButterflyIndex(m CorrelationMatrix) (pair EntanglementPair, ok bool) {
	for i, row := range m.Cells {
		for j, v := range row {
			if i == j || !v.Valid {
				continue
			}
			if !ok || v.Float > pair.Coefficient {
				pair = EntanglementPair{
					MarketA:     m.Markets[i],
					MarketB:     m.Markets[j],
					Coefficient: v.Float,
				}
				ok = true
			}
		}
	}
	return pair, ok
}

// Entangle correlates the aligned table, filters weak links and extracts the
// butterfly pair.
func Entangle(table AlignedTable, threshold float64) (Entanglement, error) {
	if threshold < 0 || math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return Entanglement{}, fmt.Errorf("noise threshold %v: %w", threshold, ErrInvalidThreshold)
	}

	raw := Correlate(table)
	filtered := FilterMatrix(raw, threshold)
	result := Entanglement{Threshold: threshold, Raw: raw, Filtered: filtered}
	if pair, ok := ButterflyIndex(filtered); ok {
		result.Pair = &pair
	}
	return result, nil
}
