package entropy

import "time"

var t0 = time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC)

func prob(f float64) *float64 {
	return &f
}

func hourly(values ...float64) []Record {
	records := make([]Record, len(values))
	for i, v := range values {
		records[i] = Record{Timestamp: t0.Add(time.Duration(i) * time.Hour), Probability: prob(v)}
	}
	return records
}

func values(floats ...float64) []Value {
	out := make([]Value, len(floats))
	for i, f := range floats {
		out[i] = Some(f)
	}
	return out
}
