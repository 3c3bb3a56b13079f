package tensor

import (
	"fmt"

	"github.com/itohio/inferx/datum"
)

// Cast converts t to a new tensor of dtype dst, element by element. Casting
// between any two numeric dtypes is supported; casting to/from String or
// Bool is not (those conversions are op-specific, not a generic bitcast).
func (t *Tensor) Cast(dst datum.Type) (*Tensor, error) {
	if t.DataType() == dst {
		return t, nil
	}
	out, err := New(dst, t.shape)
	if err != nil {
		return nil, err
	}
	n := t.Size()
	for i := 0; i < n; i++ {
		if err := castElem(t.data, out.data, i); err != nil {
			return nil, fmt.Errorf("tensor: cast %v -> %v: %w", t.DataType(), dst, err)
		}
	}
	return out, nil
}

func castElem(src, dst any, i int) error {
	v, err := floatOf(src, i)
	if err != nil {
		return err
	}
	return setFloat(dst, i, v)
}

func floatOf(src any, i int) (float64, error) {
	switch s := src.(type) {
	case []float32:
		return float64(s[i]), nil
	case []float64:
		return s[i], nil
	case []int8:
		return float64(s[i]), nil
	case []int16:
		return float64(s[i]), nil
	case []int32:
		return float64(s[i]), nil
	case []int64:
		return float64(s[i]), nil
	case []uint8:
		return float64(s[i]), nil
	case []uint16:
		return float64(s[i]), nil
	default:
		return 0, fmt.Errorf("unsupported source dtype for cast")
	}
}

func setFloat(dst any, i int, v float64) error {
	switch d := dst.(type) {
	case []float32:
		d[i] = float32(v)
	case []float64:
		d[i] = v
	case []int8:
		d[i] = int8(v)
	case []int16:
		d[i] = int16(v)
	case []int32:
		d[i] = int32(v)
	case []int64:
		d[i] = int64(v)
	case []uint8:
		d[i] = uint8(v)
	case []uint16:
		d[i] = uint16(v)
	default:
		return fmt.Errorf("unsupported destination dtype for cast")
	}
	return nil
}
