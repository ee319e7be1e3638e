package codegen

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/zhusy54/PTOTestingFramework/internal/artifact"
	"github.com/zhusy54/PTOTestingFramework/internal/errors"
	"github.com/zhusy54/PTOTestingFramework/internal/tensor"
	"github.com/zhusy54/PTOTestingFramework/internal/testcase"
)

// Golden is the on-disk golden.json structure: the realized input values and
// the expected output values for one test, in tensor declaration order.
type Golden struct {
	TestName string         `json:"test_name"`
	Tensors  []GoldenTensor `json:"tensors"`
}

// GoldenTensor holds one tensor's reference values.
type GoldenTensor struct {
	Name   string    `json:"name"`
	Shape  []int     `json:"shape"`
	DType  string    `json:"dtype"`
	Kind   string    `json:"kind"`
	Values []float64 `json:"values"`
}

// GoldenGenerator runs the test's expectation routine over already
// materialized buffers and records both the inputs and the expected
// outputs. It never re-materializes: generators with random content are
// invoked exactly once per run, upstream, so the golden and the execution
// see the same values.
type GoldenGenerator struct{}

// NewGoldenGenerator returns a golden generator.
func NewGoldenGenerator() *GoldenGenerator {
	return &GoldenGenerator{}
}

// GenerateFrom runs the expectation routine on a copy of the buffers,
// writes golden.json, and returns the expected output buffers by name.
// The caller's buffers are never mutated.
func (g *GoldenGenerator) GenerateFrom(tc testcase.TestCase, specs []tensor.Spec, buffers map[string]*tensor.Buffer, dir string) (map[string]*tensor.Buffer, error) {
	work := make(map[string]*tensor.Buffer, len(buffers))
	for name, buf := range buffers {
		work[name] = buf.Clone()
	}

	if err := tc.ComputeExpected(work); err != nil {
		return nil, errors.Codegen(tc.Name(), "golden", err)
	}

	golden := &Golden{TestName: tc.Name()}
	expected := make(map[string]*tensor.Buffer)
	for _, s := range specs {
		kind := "input"
		// Inputs are recorded from the caller's buffers in case the
		// expectation routine scribbled on its inputs.
		values := buffers[s.Name].Data
		if s.IsOutput {
			kind = "output"
			values = work[s.Name].Data
			expected[s.Name] = work[s.Name]
		}
		golden.Tensors = append(golden.Tensors, GoldenTensor{
			Name:   s.Name,
			Shape:  append([]int(nil), s.Shape...),
			DType:  s.DType.String(),
			Kind:   kind,
			Values: append([]float64(nil), values...),
		})
	}

	data, err := json.MarshalIndent(golden, "", "  ")
	if err != nil {
		return nil, errors.Codegen(tc.Name(), "golden", err)
	}
	if err := os.WriteFile(filepath.Join(dir, artifact.GoldenFile), data, 0o644); err != nil {
		return nil, errors.Codegen(tc.Name(), "golden", err)
	}
	return expected, nil
}

// Generate materializes the specs and writes golden.json in one step.
// Returns the input buffers and the expected outputs.
func (g *GoldenGenerator) Generate(tc testcase.TestCase, specs []tensor.Spec, dir string) (buffers, expected map[string]*tensor.Buffer, err error) {
	buffers, err = tensor.MaterializeAll(tc.Name(), specs)
	if err != nil {
		return nil, nil, err
	}
	expected, err = g.GenerateFrom(tc, specs, buffers, dir)
	if err != nil {
		return nil, nil, err
	}
	return buffers, expected, nil
}

// LoadGolden reads golden.json back from a test directory.
func LoadGolden(dir string) (*Golden, error) {
	data, err := os.ReadFile(filepath.Join(dir, artifact.GoldenFile))
	if err != nil {
		return nil, err
	}
	var golden Golden
	if err := json.Unmarshal(data, &golden); err != nil {
		return nil, err
	}
	return &golden, nil
}

// Buffers converts a golden record back into tensor buffers, keyed by name.
// The standalone runner uses this to recover inputs and expectations from a
// pre-generated directory.
func (g *Golden) Buffers() (inputs, expected map[string]*tensor.Buffer, err error) {
	inputs = make(map[string]*tensor.Buffer)
	expected = make(map[string]*tensor.Buffer)
	for _, gt := range g.Tensors {
		dt, ok := tensor.ParseDType(gt.DType)
		if !ok {
			return nil, nil, errors.TensorSpec(g.TestName, "golden tensor %q has unknown dtype %q", gt.Name, gt.DType)
		}
		if want := tensor.Shape(gt.Shape).NumElements(); len(gt.Values) != want {
			return nil, nil, errors.TensorSpec(g.TestName, "golden tensor %q holds %d values, shape %s needs %d",
				gt.Name, len(gt.Values), tensor.Shape(gt.Shape), want)
		}
		buf := &tensor.Buffer{
			Spec: tensor.Spec{
				Name:     gt.Name,
				Shape:    tensor.Shape(gt.Shape),
				DType:    dt,
				IsOutput: gt.Kind == "output",
			},
			Data: append([]float64(nil), gt.Values...),
		}
		if buf.Spec.IsOutput {
			expected[gt.Name] = buf
		} else {
			inputs[gt.Name] = buf
		}
	}
	return inputs, expected, nil
}
