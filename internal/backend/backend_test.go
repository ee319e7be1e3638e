package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhusy54/PTOTestingFramework/internal/codegen"
	"github.com/zhusy54/PTOTestingFramework/internal/environment"
	"github.com/zhusy54/PTOTestingFramework/internal/errors"
	"github.com/zhusy54/PTOTestingFramework/internal/ir"
	"github.com/zhusy54/PTOTestingFramework/internal/tensor"
	"github.com/zhusy54/PTOTestingFramework/internal/testcase"
	"github.com/zhusy54/PTOTestingFramework/internal/toolchain"
)

func elementwiseModule(name string, op ir.Opcode, shape tensor.Shape) *ir.Module {
	return &ir.Module{
		Name: name,
		Functions: []ir.Function{
			{
				Name: name + "_kernel",
				Kind: ir.InCore,
				Params: []ir.Param{
					{Name: "a", Shape: shape, DType: tensor.FP32},
					{Name: "b", Shape: shape, DType: tensor.FP32},
					{Name: "c", Shape: shape, DType: tensor.FP32},
				},
				Ops: []ir.Op{
					{Result: "ta", Opcode: ir.OpLoad, Args: []string{"a"}},
					{Result: "tb", Opcode: ir.OpLoad, Args: []string{"b"}},
					{Result: "tc", Opcode: op, Args: []string{"ta", "tb"}},
					{Opcode: ir.OpStore, Args: []string{"tc", "c"}},
				},
			},
		},
	}
}

func compileModule(t *testing.T, m *ir.Module, specs []tensor.Spec) *toolchain.Build {
	t.Helper()
	dir := t.TempDir()
	cfg := testcase.DefaultConfig()

	_, _, err := codegen.NewKernelGenerator().Generate(m, specs, cfg, ir.StrategyDefault, dir)
	require.NoError(t, err)
	require.NoError(t, codegen.NewOrchGenerator().Generate(m, specs, cfg, dir))
	require.NoError(t, codegen.NewConfigGenerator().Generate(m, specs, cfg, dir))

	build, err := (&toolchain.SimCompiler{}).Compile(context.Background(), m.Name, dir)
	require.NoError(t, err)
	return build
}

func materialize(t *testing.T, specs []tensor.Spec) map[string]*tensor.Buffer {
	t.Helper()
	buffers, err := tensor.MaterializeAll("test", specs)
	require.NoError(t, err)
	return buffers
}

func boundSimulator(t *testing.T, build *toolchain.Build) *Simulator {
	t.Helper()
	sim := &Simulator{}
	require.NoError(t, sim.Bind(build))
	require.NoError(t, sim.RegisterKernels())
	return sim
}

func TestSimulatorElementwiseAdd(t *testing.T) {
	shape := tensor.Shape{8, 8}
	specs := []tensor.Spec{
		{Name: "a", Shape: shape, DType: tensor.FP32, Init: tensor.Scalar(2.0)},
		{Name: "b", Shape: shape, DType: tensor.FP32, Init: tensor.Scalar(3.0)},
		{Name: "c", Shape: shape, DType: tensor.FP32, IsOutput: true},
	}
	build := compileModule(t, elementwiseModule("tile_add", ir.OpAdd, shape), specs)
	sim := boundSimulator(t, build)

	outputs, err := sim.Launch(context.Background(), materialize(t, specs))
	require.NoError(t, err)
	require.Contains(t, outputs, "c")
	for _, v := range outputs["c"].Data {
		assert.Equal(t, 5.0, v)
	}
}

func TestSimulatorMatmul(t *testing.T) {
	shape := tensor.Shape{2, 2}
	m := &ir.Module{
		Name: "matmul",
		Functions: []ir.Function{
			{
				Name: "matmul_kernel",
				Kind: ir.InCore,
				Params: []ir.Param{
					{Name: "a", Shape: shape, DType: tensor.FP32},
					{Name: "b", Shape: shape, DType: tensor.FP32},
					{Name: "c", Shape: shape, DType: tensor.FP32},
				},
				Ops: []ir.Op{
					{Result: "ta", Opcode: ir.OpLoad, Args: []string{"a"}},
					{Result: "tb", Opcode: ir.OpLoad, Args: []string{"b"}},
					{Result: "tc", Opcode: ir.OpMatmul, Args: []string{"ta", "tb"}},
					{Opcode: ir.OpStore, Args: []string{"tc", "c"}},
				},
			},
		},
	}
	specs := []tensor.Spec{
		{Name: "a", Shape: shape, DType: tensor.FP32, Init: tensor.Literal([]float64{1, 2, 3, 4})},
		{Name: "b", Shape: shape, DType: tensor.FP32, Init: tensor.Literal([]float64{5, 6, 7, 8})},
		{Name: "c", Shape: shape, DType: tensor.FP32, IsOutput: true},
	}
	build := compileModule(t, m, specs)
	sim := boundSimulator(t, build)

	outputs, err := sim.Launch(context.Background(), materialize(t, specs))
	require.NoError(t, err)
	assert.Equal(t, []float64{19, 22, 43, 50}, outputs["c"].Data)
}

func TestSimulatorBindRejectsShapeMismatch(t *testing.T) {
	shape := tensor.Shape{4, 4}
	specs := []tensor.Spec{
		{Name: "a", Shape: shape, DType: tensor.FP32, Init: tensor.Scalar(1.0)},
		{Name: "b", Shape: shape, DType: tensor.FP32, Init: tensor.Scalar(1.0)},
		{Name: "c", Shape: shape, DType: tensor.FP32, IsOutput: true},
	}
	build := compileModule(t, elementwiseModule("tile_add", ir.OpAdd, shape), specs)

	// Redeclare one tensor with a different shape than the kernel expects.
	build.Config.Tensors[0].Shape = []int{2, 2}

	err := (&Simulator{}).Bind(build)
	require.Error(t, err)
	pe, ok := err.(*errors.PipelineError)
	require.True(t, ok)
	assert.Equal(t, errors.KindBind, pe.Kind)
}

func TestSimulatorLaunchRejectsMissingBuffer(t *testing.T) {
	shape := tensor.Shape{4, 4}
	specs := []tensor.Spec{
		{Name: "a", Shape: shape, DType: tensor.FP32, Init: tensor.Scalar(1.0)},
		{Name: "b", Shape: shape, DType: tensor.FP32, Init: tensor.Scalar(1.0)},
		{Name: "c", Shape: shape, DType: tensor.FP32, IsOutput: true},
	}
	build := compileModule(t, elementwiseModule("tile_add", ir.OpAdd, shape), specs)
	sim := boundSimulator(t, build)

	buffers := materialize(t, specs)
	delete(buffers, "b")

	_, err := sim.Launch(context.Background(), buffers)
	require.Error(t, err)
	pe, ok := err.(*errors.PipelineError)
	require.True(t, ok)
	assert.Equal(t, errors.KindBind, pe.Kind)
}

func TestSimulatorLaunchHonorsDeadline(t *testing.T) {
	shape := tensor.Shape{4, 4}
	specs := []tensor.Spec{
		{Name: "a", Shape: shape, DType: tensor.FP32, Init: tensor.Scalar(1.0)},
		{Name: "b", Shape: shape, DType: tensor.FP32, Init: tensor.Scalar(1.0)},
		{Name: "c", Shape: shape, DType: tensor.FP32, IsOutput: true},
	}
	build := compileModule(t, elementwiseModule("tile_add", ir.OpAdd, shape), specs)
	sim := boundSimulator(t, build)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.Launch(ctx, materialize(t, specs))
	require.Error(t, err)
	pe, ok := err.(*errors.PipelineError)
	require.True(t, ok)
	assert.Equal(t, errors.KindTimeout, pe.Kind)
}

func TestSimulatorStoreQuantizesToOutputDType(t *testing.T) {
	shape := tensor.Shape{2, 2}
	specs := []tensor.Spec{
		{Name: "a", Shape: shape, DType: tensor.FP32, Init: tensor.Scalar(1.0001)},
		{Name: "b", Shape: shape, DType: tensor.FP32, Init: tensor.Scalar(0.0)},
		{Name: "c", Shape: shape, DType: tensor.FP16, IsOutput: true},
	}
	build := compileModule(t, elementwiseModule("half_add", ir.OpAdd, shape), specs)
	sim := boundSimulator(t, build)

	buffers := materialize(t, specs)
	stored := buffers["a"].Data[0]

	outputs, err := sim.Launch(context.Background(), buffers)
	require.NoError(t, err)
	got := outputs["c"].Data[0]
	assert.Equal(t, tensor.FP16.Quantize(stored), got)
	assert.NotEqual(t, stored, got)
}

// A launch driver returning fewer values than the declared shape must
// surface a runtime error, never a truncated buffer.
func TestDeviceCollectResultsRejectsShortValues(t *testing.T) {
	dir := t.TempDir()
	results := filepath.Join(dir, "results.json")
	require.NoError(t, os.WriteFile(results, []byte(`{"tensors":[{"name":"c","values":[1,2,3]}]}`), 0o644))

	d := &Device{build: &toolchain.Build{
		Dir: dir,
		Config: &codegen.BackendConfig{
			TestName: "tile_add",
			Tensors: []codegen.TensorLayout{
				{Name: "c", Shape: []int{2, 2}, DType: "fp32", Kind: "output"},
			},
		},
	}}

	_, err := d.collectResults("tile_add", results)
	require.Error(t, err)
	pe, ok := err.(*errors.PipelineError)
	require.True(t, ok)
	assert.Equal(t, errors.KindRuntime, pe.Kind)
	assert.Contains(t, pe.Message, "holds 3 values")
}

func TestDeviceBindRequiresBinary(t *testing.T) {
	d := &Device{Env: environment.Env{}}
	err := d.Bind(&toolchain.Build{Dir: t.TempDir(), Config: &codegen.BackendConfig{TestName: "tile_add"}})
	require.Error(t, err)
	pe, ok := err.(*errors.PipelineError)
	require.True(t, ok)
	assert.Equal(t, errors.KindBind, pe.Kind)
}

func TestForPlatform(t *testing.T) {
	env := environment.Env{}
	cfg := testcase.DefaultConfig()
	if _, ok := ForPlatform(cfg, env).(*Simulator); !ok {
		t.Fatal("simulated platform must use the simulator")
	}
	cfg.Platform = testcase.PlatformHardware
	if _, ok := ForPlatform(cfg, env).(*Device); !ok {
		t.Fatal("hardware platform must use the device runtime")
	}
}
