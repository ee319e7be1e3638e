// Package tensor defines the tensor data model shared by the generators,
// the backend boundary, and the result validator: element types, shapes,
// tensor specs with polymorphic initial values, and materialized buffers.
package tensor

import (
	"math"

	"github.com/x448/float16"
)

// DType enumerates the supported tensor element types.
type DType int

const (
	InvalidDType DType = iota
	FP32
	FP16
	INT32
	INT8
)

// String returns the lowercase name used in generated artifacts.
func (d DType) String() string {
	switch d {
	case FP32:
		return "fp32"
	case FP16:
		return "fp16"
	case INT32:
		return "int32"
	case INT8:
		return "int8"
	default:
		return "invalid"
	}
}

// Size returns the element size in bytes.
func (d DType) Size() int {
	switch d {
	case FP32, INT32:
		return 4
	case FP16:
		return 2
	case INT8:
		return 1
	default:
		return 0
	}
}

// IsFloat reports whether the dtype is a floating-point family member.
func (d DType) IsFloat() bool {
	return d == FP32 || d == FP16
}

// IsInt reports whether the dtype is an integer family member.
func (d DType) IsInt() bool {
	return d == INT32 || d == INT8
}

// SameFamily reports whether two dtypes belong to the same numeric family.
// Used by the validator's dtype-promotion policy.
func (d DType) SameFamily(other DType) bool {
	return (d.IsFloat() && other.IsFloat()) || (d.IsInt() && other.IsInt())
}

// ParseDType parses the artifact-file spelling of a dtype.
func ParseDType(s string) (DType, bool) {
	switch s {
	case "fp32":
		return FP32, true
	case "fp16":
		return FP16, true
	case "int32":
		return INT32, true
	case "int8":
		return INT8, true
	default:
		return InvalidDType, false
	}
}

// Quantize rounds v to the nearest value representable in the dtype.
// Golden values and materialized inputs go through the same quantization
// so both sides of the comparison see identical representable values.
func (d DType) Quantize(v float64) float64 {
	switch d {
	case FP32:
		return float64(float32(v))
	case FP16:
		return float64(float16.Fromfloat32(float32(v)).Float32())
	case INT32:
		return float64(int32(math.RoundToEven(v)))
	case INT8:
		return float64(int8(math.RoundToEven(v)))
	default:
		return v
	}
}
