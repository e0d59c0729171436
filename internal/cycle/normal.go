package cycle

import (
	"cmp"
	"encoding/json"
	"errors"
	"math"
	"strconv"
)

// ErrSubnormal is returned when a temperature is a subnormal float.
var ErrSubnormal = errors.New("floating number is subnormal")

// smallestNormal is the smallest positive normal float64 (2^-1022).
const smallestNormal = 0x1p-1022

// Normal is a float64 that is guaranteed not to be subnormal.
// The zero value holds 0, which is a valid normal value.
type Normal struct {
	v float64
}

// NewNormal validates v and wraps it. Returns ErrSubnormal for nonzero
// values smaller in magnitude than the smallest normal float64.
func NewNormal(v float64) (Normal, error) {
	if isSubnormal(v) {
		return Normal{}, ErrSubnormal
	}
	return Normal{v: v}, nil
}

// MustNormal is like NewNormal but panics on subnormal input.
// Intended for literals in tests and fixtures.
func MustNormal(v float64) Normal {
	n, err := NewNormal(v)
	if err != nil {
		panic(err)
	}
	return n
}

func isSubnormal(v float64) bool {
	a := math.Abs(v)
	return a != 0 && a < smallestNormal
}

// Float64 returns the wrapped value.
func (n Normal) Float64() float64 {
	return n.v
}

// Compare orders two values. NaN compares equal to NaN and below every
// number, so the ordering is total and safe for sorting.
func (n Normal) Compare(other Normal) int {
	return cmp.Compare(n.v, other.v)
}

func (n Normal) String() string {
	return strconv.FormatFloat(n.v, 'g', -1, 64)
}

func (n Normal) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.v)
}

// UnmarshalJSON rejects subnormal numbers so decoded readings stay valid.
func (n *Normal) UnmarshalJSON(data []byte) error {
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := NewNormal(v)
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}
