// Package cases holds the built-in test corpus: small tensor programs
// with known expectations, used by the run command and as templates for
// new tests.
package cases

import (
	"math/rand"

	"github.com/zhusy54/PTOTestingFramework/internal/ir"
	"github.com/zhusy54/PTOTestingFramework/internal/tensor"
	"github.com/zhusy54/PTOTestingFramework/internal/testcase"
)

// BuiltIn returns the built-in cases in execution order.
func BuiltIn() []testcase.TestCase {
	return []testcase.TestCase{
		TileAdd(),
		TileMul(),
		Matmul64(),
		CustomArrayInit(),
		TileAddPTOAS(),
	}
}

// ByName looks up a built-in case.
func ByName(name string) (testcase.TestCase, bool) {
	for _, tc := range BuiltIn() {
		if tc.Name() == name {
			return tc, true
		}
	}
	return nil, false
}

// Names lists the built-in case names in execution order.
func Names() []string {
	cases := BuiltIn()
	names := make([]string, len(cases))
	for i, tc := range cases {
		names[i] = tc.Name()
	}
	return names
}

// TileAdd sums two constant 128x128 FP32 tiles.
func TileAdd() testcase.TestCase {
	shape := tensor.Shape{128, 128}
	return &testcase.FuncCase{
		CaseName: "tile_add",
		TensorSpecs: []tensor.Spec{
			{Name: "a", Shape: shape, DType: tensor.FP32, Init: tensor.Scalar(2.0)},
			{Name: "b", Shape: shape, DType: tensor.FP32, Init: tensor.Scalar(3.0)},
			{Name: "c", Shape: shape, DType: tensor.FP32, IsOutput: true},
		},
		ProgramFn:  elementwiseProgram("tile_add", "add_kernel", shape, ir.OpAdd),
		ExpectedFn: elementwiseExpected(func(a, b float64) float64 { return a + b }),
	}
}

// TileMul multiplies a randomly initialized 64x64 FP32 tile by a constant
// one. The random content comes from a fixed-seed generator so reruns
// reproduce byte-identical goldens.
func TileMul() testcase.TestCase {
	shape := tensor.Shape{64, 64}
	return &testcase.FuncCase{
		CaseName: "tile_mul",
		TensorSpecs: []tensor.Spec{
			{Name: "a", Shape: shape, DType: tensor.FP32, Init: tensor.Generator(seededUniform(42, shape.NumElements()))},
			{Name: "b", Shape: shape, DType: tensor.FP32, Init: tensor.Scalar(2.0)},
			{Name: "c", Shape: shape, DType: tensor.FP32, IsOutput: true},
		},
		ProgramFn:  elementwiseProgram("tile_mul", "mul_kernel", shape, ir.OpMul),
		ExpectedFn: elementwiseExpected(func(a, b float64) float64 { return a * b }),
	}
}

// Matmul64 multiplies two 64x64 FP32 matrices on the cube core.
func Matmul64() testcase.TestCase {
	shape := tensor.Shape{64, 64}
	return &testcase.FuncCase{
		CaseName: "matmul_64x64",
		TensorSpecs: []tensor.Spec{
			{Name: "a", Shape: shape, DType: tensor.FP32, Init: tensor.Generator(seededUniform(7, shape.NumElements()))},
			{Name: "b", Shape: shape, DType: tensor.FP32, Init: tensor.Generator(seededUniform(11, shape.NumElements()))},
			{Name: "c", Shape: shape, DType: tensor.FP32, IsOutput: true},
		},
		ProgramFn: func() (*ir.Module, error) {
			return ir.NewModule("matmul_64x64").
				Kernel("matmul_kernel").
				Param("a", shape, tensor.FP32).
				Param("b", shape, tensor.FP32).
				Param("c", shape, tensor.FP32).
				Load("ta", "a").
				Load("tb", "b").
				Matmul("tc", "ta", "tb").
				Store("tc", "c").
				Done().
				Build(), nil
		},
		ExpectedFn: func(tensors map[string]*tensor.Buffer) error {
			a, b, c := tensors["a"], tensors["b"], tensors["c"]
			n := shape[0]
			for i := 0; i < n; i++ {
				for j := 0; j < n; j++ {
					var sum float64
					for k := 0; k < n; k++ {
						sum += a.Data[i*n+k] * b.Data[k*n+j]
					}
					c.Data[i*n+j] = sum
				}
			}
			return nil
		},
	}
}

// CustomArrayInit exercises the dense literal init path: a hand-written
// 4x4 array doubled elementwise.
func CustomArrayInit() testcase.TestCase {
	shape := tensor.Shape{4, 4}
	values := []float64{
		0.5, 1.5, 2.5, 3.5,
		-1.0, -2.0, -3.0, -4.0,
		10.0, 20.0, 30.0, 40.0,
		0.0, 0.25, 0.125, 100.0,
	}
	return &testcase.FuncCase{
		CaseName: "custom_array_init",
		TensorSpecs: []tensor.Spec{
			{Name: "a", Shape: shape, DType: tensor.FP32, Init: tensor.Literal(values)},
			{Name: "b", Shape: shape, DType: tensor.FP32, Init: tensor.Scalar(2.0)},
			{Name: "c", Shape: shape, DType: tensor.FP32, IsOutput: true},
		},
		ProgramFn:  elementwiseProgram("custom_array_init", "mul_kernel", shape, ir.OpMul),
		ExpectedFn: elementwiseExpected(func(a, b float64) float64 { return a * b }),
	}
}

// TileAddPTOAS is the tile add program pinned to the PTOAS strategy,
// overriding whatever the run was configured with.
func TileAddPTOAS() testcase.TestCase {
	strategy := ir.StrategyPTOAS
	tc := TileAdd().(*testcase.FuncCase)
	tc.CaseName = "tile_add_ptoas"
	tc.StrategyHint = &strategy
	tc.ProgramFn = elementwiseProgram("tile_add_ptoas", "add_kernel", tensor.Shape{128, 128}, ir.OpAdd)
	return tc
}

func elementwiseProgram(module, kernel string, shape tensor.Shape, opcode ir.Opcode) func() (*ir.Module, error) {
	return func() (*ir.Module, error) {
		fb := ir.NewModule(module).
			Kernel(kernel).
			Param("a", shape, tensor.FP32).
			Param("b", shape, tensor.FP32).
			Param("c", shape, tensor.FP32).
			Load("ta", "a").
			Load("tb", "b")
		switch opcode {
		case ir.OpMul:
			fb = fb.Mul("tc", "ta", "tb")
		default:
			fb = fb.Add("tc", "ta", "tb")
		}
		return fb.Store("tc", "c").Done().Build(), nil
	}
}

func elementwiseExpected(op func(a, b float64) float64) func(map[string]*tensor.Buffer) error {
	return func(tensors map[string]*tensor.Buffer) error {
		a, b, c := tensors["a"], tensors["b"], tensors["c"]
		for i := range c.Data {
			c.Data[i] = op(a.Data[i], b.Data[i])
		}
		return nil
	}
}

// seededUniform yields values in [-1, 1) from a fixed seed, fresh stream
// per invocation.
func seededUniform(seed int64, n int) func() []float64 {
	return func() []float64 {
		rng := rand.New(rand.NewSource(seed))
		out := make([]float64, n)
		for i := range out {
			out[i] = rng.Float64()*2 - 1
		}
		return out
	}
}
