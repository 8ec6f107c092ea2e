package entropy

import "math"

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev returns the standard deviation of xs with ddof degrees of freedom
// removed from the denominator (0 for population, 1 for sample).
func stddev(xs []float64, ddof int) (float64, bool) {
	n := len(xs) - ddof
	if n <= 0 {
		return 0, false
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(n)), true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func constant(xs []float64) bool {
	for _, x := range xs[1:] {
		if x != xs[0] {
			return false
		}
	}
	return true
}

// pearson correlates xs and ys over the positions where both are defined.
func pearson(xs, ys []Value) Value {
	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}

	var a, b []float64
	for i := 0; i < n; i++ {
		if xs[i].Valid && ys[i].Valid {
			a = append(a, xs[i].Float)
			b = append(b, ys[i].Float)
		}
	}
	// a constant overlap has zero variance; rounding in the mean must not
	// turn it into a tiny defined spread
	if len(a) < 2 || constant(a) || constant(b) {
		return Undefined
	}

	ma, mb := mean(a), mean(b)
	var sab, saa, sbb float64
	for i := range a {
		da, db := a[i]-ma, b[i]-mb
		sab += da * db
		saa += da * da
		sbb += db * db
	}
	if saa == 0 || sbb == 0 {
		return Undefined
	}

	r := sab / math.Sqrt(saa*sbb)
	// rounding can push |r| a hair past 1
	return Some(math.Max(-1, math.Min(1, r)))
}
