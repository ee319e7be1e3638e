package codegen

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhusy54/PTOTestingFramework/internal/artifact"
	"github.com/zhusy54/PTOTestingFramework/internal/errors"
	"github.com/zhusy54/PTOTestingFramework/internal/ir"
	"github.com/zhusy54/PTOTestingFramework/internal/tensor"
	"github.com/zhusy54/PTOTestingFramework/internal/testcase"
)

func addModule() *ir.Module {
	shape := tensor.Shape{4, 4}
	return &ir.Module{
		Name: "tile_add",
		Functions: []ir.Function{
			{
				Name: "add_kernel",
				Kind: ir.InCore,
				Params: []ir.Param{
					{Name: "a", Shape: shape, DType: tensor.FP32},
					{Name: "b", Shape: shape, DType: tensor.FP32},
					{Name: "c", Shape: shape, DType: tensor.FP32},
				},
				Ops: []ir.Op{
					{Result: "ta", Opcode: ir.OpLoad, Args: []string{"a"}},
					{Result: "tb", Opcode: ir.OpLoad, Args: []string{"b"}},
					{Result: "tc", Opcode: ir.OpAdd, Args: []string{"ta", "tb"}},
					{Opcode: ir.OpStore, Args: []string{"tc", "c"}},
				},
			},
		},
	}
}

func addSpecs() []tensor.Spec {
	shape := tensor.Shape{4, 4}
	return []tensor.Spec{
		{Name: "a", Shape: shape, DType: tensor.FP32, Init: tensor.Scalar(2.0)},
		{Name: "b", Shape: shape, DType: tensor.FP32, Init: tensor.Scalar(3.0)},
		{Name: "c", Shape: shape, DType: tensor.FP32, IsOutput: true},
	}
}

func addCase() *testcase.FuncCase {
	return &testcase.FuncCase{
		CaseName:    "tile_add",
		TensorSpecs: addSpecs(),
		ProgramFn:   func() (*ir.Module, error) { return addModule(), nil },
		ExpectedFn: func(tensors map[string]*tensor.Buffer) error {
			a, b, c := tensors["a"], tensors["b"], tensors["c"]
			for i := range c.Data {
				c.Data[i] = a.Data[i] + b.Data[i]
			}
			return nil
		},
	}
}

func TestKernelGeneratorWritesSourcesAndModule(t *testing.T) {
	dir := t.TempDir()
	cfg := testcase.DefaultConfig()

	optimized, kernels, err := NewKernelGenerator().Generate(addModule(), addSpecs(), cfg, ir.StrategyDefault, dir)
	require.NoError(t, err)
	require.Len(t, kernels, 1)
	assert.Equal(t, "add_kernel", kernels[0].Name)
	assert.Equal(t, "aiv", kernels[0].Core)

	src, err := os.ReadFile(filepath.Join(dir, kernels[0].Source))
	require.NoError(t, err)
	assert.Contains(t, string(src), "extern \"C\" __global__")
	assert.Contains(t, string(src), "add_kernel")
	assert.Contains(t, string(src), "block::add")

	if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(ModuleFile))); err != nil {
		t.Fatalf("loadable module not written: %v", err)
	}
	assert.Equal(t, "aiv", optimized.Functions[0].Core)
}

func TestKernelGeneratorDumpsPassSnapshots(t *testing.T) {
	dir := t.TempDir()
	cfg := testcase.DefaultConfig()
	cfg.DumpPasses = true

	_, _, err := NewKernelGenerator().Generate(addModule(), addSpecs(), cfg, ir.StrategyPTOAS, dir)
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, artifact.PassResultsDir))
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		assert.Regexp(t, `^\d{2}_.+\.ir$`, e.Name())
	}
}

func TestOrchGeneratorEmitsMarkerAndHeader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewOrchGenerator().Generate(addModule(), addSpecs(), testcase.DefaultConfig(), dir))

	src, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(artifact.OrchFile)))
	require.NoError(t, err)

	assert.True(t, HasCompletionMarker(src))
	assert.Contains(t, string(src), `#include "runtime.h"`)
	assert.Contains(t, string(src), "BuildTileAddGraph")
	assert.Contains(t, string(src), "extern \"C\" void add_kernel")
}

func TestEntryPointName(t *testing.T) {
	tests := []struct {
		module string
		want   string
	}{
		{"tile_add", "BuildTileAddGraph"},
		{"matmul", "BuildMatmulGraph"},
		{"custom-array-init", "BuildCustomArrayInitGraph"},
		{"tile_add_ptoas", "BuildTileAddPtoasGraph"},
	}
	for _, tt := range tests {
		if got := EntryPointName(tt.module); got != tt.want {
			t.Errorf("EntryPointName(%q) = %q, want %q", tt.module, got, tt.want)
		}
	}
}

func TestConfigGeneratorRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := testcase.DefaultConfig()
	cfg.DeviceID = 3

	require.NoError(t, NewConfigGenerator().Generate(addModule(), addSpecs(), cfg, dir))

	loaded, err := LoadBackendConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "tile_add", loaded.TestName)
	assert.Equal(t, "simulated", loaded.Platform)
	assert.Equal(t, 3, loaded.DeviceID)
	assert.Equal(t, artifact.OrchFile, loaded.Orchestration.Source)
	assert.Equal(t, "BuildTileAddGraph", loaded.Orchestration.Entry)
	require.Len(t, loaded.Kernels, 1)
	assert.Equal(t, 0, loaded.Kernels[0].FuncID)
	require.Len(t, loaded.Tensors, 3)
	assert.Equal(t, "output", loaded.Tensors[2].Kind)
	assert.Equal(t, 4*4*4, loaded.Tensors[0].Bytes)
}

func TestGoldenGeneratorComputesExpectedOutputs(t *testing.T) {
	dir := t.TempDir()
	buffers, expected, err := NewGoldenGenerator().Generate(addCase(), addSpecs(), dir)
	require.NoError(t, err)
	require.Contains(t, expected, "c")
	assert.Equal(t, 5.0, expected["c"].Data[0])

	golden, err := LoadGolden(dir)
	require.NoError(t, err)
	assert.Equal(t, "tile_add", golden.TestName)
	require.Len(t, golden.Tensors, 3)

	assert.Equal(t, "input", golden.Tensors[0].Kind)
	assert.Equal(t, 2.0, golden.Tensors[0].Values[0])
	assert.Equal(t, "output", golden.Tensors[2].Kind)
	assert.Equal(t, 5.0, golden.Tensors[2].Values[0])

	// Returned input buffers keep their pre-expectation values.
	assert.Equal(t, 2.0, buffers["a"].Data[0])
	assert.Equal(t, 3.0, buffers["b"].Data[0])
}

func TestGoldenBuffersSplitInputsFromExpected(t *testing.T) {
	dir := t.TempDir()
	_, _, err := NewGoldenGenerator().Generate(addCase(), addSpecs(), dir)
	require.NoError(t, err)

	golden, err := LoadGolden(dir)
	require.NoError(t, err)
	inputs, expected, err := golden.Buffers()
	require.NoError(t, err)

	assert.Len(t, inputs, 2)
	assert.Len(t, expected, 1)
	assert.Equal(t, 5.0, expected["c"].Data[0])
}

// A hand-edited golden whose value array disagrees with its shape must be
// rejected at load time, before any buffer reaches the validator.
func TestGoldenBuffersRejectShortValues(t *testing.T) {
	golden := &Golden{
		TestName: "tile_add",
		Tensors: []GoldenTensor{
			{Name: "c", Shape: []int{2, 2}, DType: "fp32", Kind: "output", Values: []float64{5, 5, 5}},
		},
	}

	_, _, err := golden.Buffers()
	require.Error(t, err)
	pe, ok := err.(*errors.PipelineError)
	require.True(t, ok)
	assert.Equal(t, errors.KindTensorSpec, pe.Kind)
	assert.Contains(t, pe.Message, "holds 3 values")
}

func TestGoldenGeneratorTagsExpectationFailure(t *testing.T) {
	tc := addCase()
	tc.ExpectedFn = func(map[string]*tensor.Buffer) error {
		return fmt.Errorf("reference model diverged")
	}

	_, _, err := NewGoldenGenerator().Generate(tc, tc.TensorSpecs, t.TempDir())
	require.Error(t, err)
	pe, ok := err.(*errors.PipelineError)
	require.True(t, ok)
	assert.Equal(t, errors.KindCodegen, pe.Kind)
	assert.Equal(t, "golden", pe.Stage)
}

// Each generator must produce its artifact without any other generator
// having run, so a failed or skipped stage never blocks the rest.
func TestGeneratorsRunIndependently(t *testing.T) {
	cfg := testcase.DefaultConfig()

	t.Run("golden without kernels", func(t *testing.T) {
		dir := t.TempDir()
		_, _, err := NewGoldenGenerator().Generate(addCase(), addSpecs(), dir)
		require.NoError(t, err)
		if _, statErr := os.Stat(filepath.Join(dir, artifact.KernelsDir)); !os.IsNotExist(statErr) {
			t.Fatal("golden generation must not touch the kernels directory")
		}
	})

	t.Run("config without kernels", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, NewConfigGenerator().Generate(addModule(), addSpecs(), cfg, dir))
		loaded, err := LoadBackendConfig(dir)
		require.NoError(t, err)
		assert.Len(t, loaded.Kernels, 1)
	})

	t.Run("orch without kernels", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, NewOrchGenerator().Generate(addModule(), addSpecs(), cfg, dir))
	})
}

// kernel_config.yaml and golden.json must list the same tensors in the
// same declaration order, or the backend and validator disagree on layout.
func TestConfigAndGoldenShareTensorLayout(t *testing.T) {
	dir := t.TempDir()
	cfg := testcase.DefaultConfig()
	specs := addSpecs()

	require.NoError(t, NewConfigGenerator().Generate(addModule(), specs, cfg, dir))
	_, _, err := NewGoldenGenerator().Generate(addCase(), specs, dir)
	require.NoError(t, err)

	loadedCfg, err := LoadBackendConfig(dir)
	require.NoError(t, err)
	golden, err := LoadGolden(dir)
	require.NoError(t, err)

	require.Equal(t, len(loadedCfg.Tensors), len(golden.Tensors))
	for i := range loadedCfg.Tensors {
		assert.Equal(t, loadedCfg.Tensors[i].Name, golden.Tensors[i].Name)
		assert.Equal(t, loadedCfg.Tensors[i].Kind, golden.Tensors[i].Kind)
		assert.Equal(t, loadedCfg.Tensors[i].Shape, golden.Tensors[i].Shape)
		assert.Equal(t, loadedCfg.Tensors[i].DType, golden.Tensors[i].DType)
	}
}
