// Package validate implements tolerance-based comparison of executed tensor
// results against golden references.
package validate

import (
	"fmt"
	"math"

	"github.com/zhusy54/PTOTestingFramework/internal/tensor"
)

// Options configures result comparison.
type Options struct {
	// AbsTolerance and RelTolerance combine as
	// |actual-expected| <= AbsTolerance + RelTolerance*|expected|,
	// which keeps comparisons stable near zero where a pure relative
	// tolerance breaks down. Both must be non-negative.
	AbsTolerance float64
	RelTolerance float64

	// AllowDTypePromotion accepts dtype mismatches within the same numeric
	// family (e.g. fp16 actual vs fp32 expected). Default: strict fail.
	AllowDTypePromotion bool
}

// Verdict is the per-tensor comparison outcome.
type Verdict struct {
	Tensor     string
	Passed     bool
	ShapeOK    bool
	DTypeOK    bool
	MaxAbsDiff float64
	MaxRelDiff float64
	// FailedAt is the flat index of the first failing element, -1 if none.
	FailedAt int
	Detail   string
}

// Compare compares one actual buffer against its expected buffer.
// Shape mismatch fails immediately without any element comparison; dtype
// mismatch follows the promotion policy; otherwise comparison is
// element-wise under the combined tolerance law. Maximum observed absolute
// and relative deviations are recorded regardless of the verdict.
func Compare(actual, expected *tensor.Buffer, opts Options) Verdict {
	v := Verdict{Tensor: expected.Spec.Name, ShapeOK: true, DTypeOK: true, FailedAt: -1}

	if !actual.Spec.Shape.Equal(expected.Spec.Shape) {
		v.ShapeOK = false
		v.Detail = fmt.Sprintf("shape mismatch: actual %s, expected %s", actual.Spec.Shape, expected.Spec.Shape)
		return v
	}

	if actual.Spec.DType != expected.Spec.DType {
		if !opts.AllowDTypePromotion || !actual.Spec.DType.SameFamily(expected.Spec.DType) {
			v.DTypeOK = false
			v.Detail = fmt.Sprintf("dtype mismatch: actual %s, expected %s", actual.Spec.DType, expected.Spec.DType)
			return v
		}
	}

	if len(actual.Data) != len(expected.Data) {
		v.Detail = fmt.Sprintf("value count mismatch: actual holds %d values, expected %d", len(actual.Data), len(expected.Data))
		return v
	}

	v.Passed = true
	for i := range expected.Data {
		a, e := actual.Data[i], expected.Data[i]

		if math.IsNaN(a) || math.IsNaN(e) {
			v.MaxAbsDiff = math.Inf(1)
			v.MaxRelDiff = math.Inf(1)
			if v.Passed {
				v.Passed = false
				v.FailedAt = i
				v.Detail = fmt.Sprintf("NaN at element %d: actual %v, expected %v", i, a, e)
			}
			continue
		}

		absDiff := math.Abs(a - e)
		if absDiff > v.MaxAbsDiff {
			v.MaxAbsDiff = absDiff
		}
		if e != 0 {
			if rel := absDiff / math.Abs(e); rel > v.MaxRelDiff {
				v.MaxRelDiff = rel
			}
		} else if absDiff > 0 {
			// expected exactly zero: relative deviation is undefined, report +Inf
			v.MaxRelDiff = math.Inf(1)
		}

		if absDiff > opts.AbsTolerance+opts.RelTolerance*math.Abs(e) {
			if v.Passed {
				v.Passed = false
				v.FailedAt = i
				v.Detail = fmt.Sprintf("element %d: actual %v, expected %v, |diff| %v exceeds %v + %v*|expected|",
					i, a, e, absDiff, opts.AbsTolerance, opts.RelTolerance)
			}
		}
	}
	return v
}

// CompareAll compares every output tensor and returns the per-tensor
// verdicts keyed by name. The aggregate test verdict is the logical AND
// over all of them.
func CompareAll(actual, expected map[string]*tensor.Buffer, specs []tensor.Spec, opts Options) (map[string]Verdict, bool) {
	verdicts := make(map[string]Verdict)
	allPassed := true
	for _, s := range specs {
		if !s.IsOutput {
			continue
		}
		exp, ok := expected[s.Name]
		if !ok {
			verdicts[s.Name] = Verdict{Tensor: s.Name, FailedAt: -1, Detail: "expectation routine produced no value"}
			allPassed = false
			continue
		}
		act, ok := actual[s.Name]
		if !ok {
			verdicts[s.Name] = Verdict{Tensor: s.Name, FailedAt: -1, Detail: "backend produced no value"}
			allPassed = false
			continue
		}
		v := Compare(act, exp, opts)
		verdicts[s.Name] = v
		if !v.Passed {
			allPassed = false
		}
	}
	return verdicts, allPassed
}
