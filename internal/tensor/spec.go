package tensor

import (
	"github.com/zhusy54/PTOTestingFramework/internal/errors"
)

// initKind tags the InitValue variant.
type initKind int

const (
	initZero initKind = iota
	initScalar
	initLiteral
	initGenerator
)

// InitValue describes how a tensor is filled before execution.
// It is a tagged variant over {zero, scalar broadcast, dense literal,
// nullary generator}; the variant is resolved once at materialization time.
type InitValue struct {
	kind    initKind
	scalar  float64
	literal []float64
	gen     func() []float64
}

// Zero returns the default zero-fill init value.
func Zero() InitValue {
	return InitValue{kind: initZero}
}

// Scalar returns an init value broadcasting v to every element.
func Scalar(v float64) InitValue {
	return InitValue{kind: initScalar, scalar: v}
}

// Literal returns an init value copying the given dense array.
// The length must equal the spec's element count; checked at materialization.
func Literal(values []float64) InitValue {
	return InitValue{kind: initLiteral, literal: values}
}

// Generator returns an init value produced by invoking fn once per
// materialization. Deterministic only if fn is itself seeded.
func Generator(fn func() []float64) InitValue {
	return InitValue{kind: initGenerator, gen: fn}
}

// IsDeterministic reports whether two materializations are guaranteed
// bit-identical.
func (iv InitValue) IsDeterministic() bool {
	return iv.kind != initGenerator
}

// Spec declares one tensor of a test case.
type Spec struct {
	Name     string
	Shape    Shape
	DType    DType
	Init     InitValue
	IsOutput bool
}

// Validate checks the spec in isolation.
func (s Spec) Validate() error {
	if s.Name == "" {
		return errors.TensorSpec("", "tensor without a name")
	}
	if !s.Shape.Valid() {
		return errors.TensorSpec("", "tensor %q has invalid shape %v", s.Name, []int(s.Shape))
	}
	if s.DType == InvalidDType {
		return errors.TensorSpec("", "tensor %q has no dtype", s.Name)
	}
	return nil
}

// ResolveSpecs validates a test case's tensor declarations as a set:
// every spec well-formed, names unique, at least one output tensor.
func ResolveSpecs(test string, specs []Spec) error {
	if len(specs) == 0 {
		return errors.TensorSpec(test, "test case declares no tensors")
	}
	seen := make(map[string]bool, len(specs))
	hasOutput := false
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			pe := err.(*errors.PipelineError)
			pe.Test = test
			return pe
		}
		if seen[s.Name] {
			return errors.TensorSpec(test, "duplicate tensor name %q", s.Name)
		}
		seen[s.Name] = true
		if s.IsOutput {
			hasOutput = true
		}
	}
	if !hasOutput {
		return errors.TensorSpec(test, "test case declares no output tensor")
	}
	return nil
}
