package entropy

import (
	"encoding/json"
	"math"
)

// Value is an optional float64. The zero value is undefined.
type Value struct {
	Float float64
	Valid bool
}

// Undefined marks a position without enough data to produce a number.
var Undefined = Value{}

// Some wraps a defined value. Non-finite inputs collapse to Undefined.
func Some(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Undefined
	}
	return Value{Float: f, Valid: true}
}

// Get returns the value and whether it is defined.
func (v Value) Get() (float64, bool) {
	return v.Float, v.Valid
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.Float)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Undefined
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = Some(f)
	return nil
}

// MarshalYAML renders undefined values as null.
func (v Value) MarshalYAML() (interface{}, error) {
	if !v.Valid {
		return nil, nil
	}
	return v.Float, nil
}
