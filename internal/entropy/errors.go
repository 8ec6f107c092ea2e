package entropy

import "errors"

var (
	ErrNonMonotonic       = errors.New("timestamps are not strictly increasing")
	ErrMissingProbability = errors.New("record has no probability")
	ErrInvalidInterval    = errors.New("grid interval must be positive")
	ErrInvalidWindow      = errors.New("window must be at least 2")
	ErrInvalidThreshold   = errors.New("threshold out of range")
)
