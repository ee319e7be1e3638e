// Package codegen contains the four artifact generators of the test
// pipeline: kernel sources, the orchestration skeleton, the backend
// config, and the golden reference. Each generator is a pure function
// from (IR, tensor specs, config) to exactly one artifact; no generator
// depends on another's success, so a failure or a hand-edit in one stage
// never requires re-deriving the others.
package codegen

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/zhusy54/PTOTestingFramework/internal/artifact"
	"github.com/zhusy54/PTOTestingFramework/internal/ir"
	"github.com/zhusy54/PTOTestingFramework/internal/tensor"
	"github.com/zhusy54/PTOTestingFramework/internal/testcase"
)

// ModuleFile is the lowered module in loadable form, consumed by the
// simulator's compile step. Written next to the per-function sources.
const ModuleFile = "kernels/module.json"

// KernelInfo describes one generated kernel source file.
type KernelInfo struct {
	Name   string
	Core   string
	FuncID int
	Source string // path relative to the test directory
}

// KernelGenerator lowers a program through the frontend's pass pipeline
// and emits one source file per in-core function.
type KernelGenerator struct {
	passes *ir.PassManager
}

// NewKernelGenerator returns a kernel generator with a fresh pass manager.
func NewKernelGenerator() *KernelGenerator {
	return &KernelGenerator{passes: ir.NewPassManager()}
}

// Generate optimizes the module under the configured strategy and writes
// kernels/<core>/<name>.cpp per in-core function plus the loadable module
// file. With DumpPasses it also writes one numbered IR snapshot per pass
// under pass_results/.
func (g *KernelGenerator) Generate(m *ir.Module, specs []tensor.Spec, cfg testcase.Config, strategy ir.Strategy, dir string) (*ir.Module, []KernelInfo, error) {
	optimized, snapshots, err := g.passes.Run(m, strategy)
	if err != nil {
		return nil, nil, errors.Wrap(err, "pass pipeline")
	}

	if cfg.DumpPasses {
		passDir := filepath.Join(dir, artifact.PassResultsDir)
		if err := os.MkdirAll(passDir, 0o755); err != nil {
			return nil, nil, err
		}
		for _, snap := range snapshots {
			name := fmt.Sprintf("%02d_%s.ir", snap.Index, snap.PassName)
			if err := os.WriteFile(filepath.Join(passDir, name), []byte(snap.IR), 0o644); err != nil {
				return nil, nil, err
			}
		}
	}

	kernels := KernelManifest(optimized)
	for _, k := range kernels {
		path := filepath.Join(dir, k.Source)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, err
		}
		fn := findFunction(optimized, k.Name)
		if err := os.WriteFile(path, []byte(renderKernelSource(fn)), 0o644); err != nil {
			return nil, nil, err
		}
	}

	data, err := json.MarshalIndent(optimized, "", "  ")
	if err != nil {
		return nil, nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, filepath.FromSlash(ModuleFile)), data, 0o644); err != nil {
		return nil, nil, err
	}

	return optimized, kernels, nil
}

// KernelManifest derives the kernel listing straight from the IR, so the
// config and orchestration generators can build the same listing without
// depending on this generator having run.
func KernelManifest(m *ir.Module) []KernelInfo {
	var kernels []KernelInfo
	for _, f := range m.Kernels() {
		core := f.Core
		if core == "" {
			core = "aiv"
		}
		kernels = append(kernels, KernelInfo{
			Name:   f.Name,
			Core:   core,
			FuncID: len(kernels),
			Source: filepath.ToSlash(filepath.Join(artifact.KernelsDir, core, f.Name+".cpp")),
		})
	}
	return kernels
}

func findFunction(m *ir.Module, name string) ir.Function {
	for _, f := range m.Functions {
		if f.Name == name {
			return f
		}
	}
	return ir.Function{Name: name}
}

// renderKernelSource renders one in-core function as CCE C++ source.
// The body mirrors the IR op-by-op; the device toolchain compiles it,
// the simulator ignores it in favor of the loadable module file.
func renderKernelSource(f ir.Function) string {
	var b strings.Builder
	b.WriteString("// Generated kernel source. Do not edit.\n")
	b.WriteString("#include \"kernel_operator.h\"\n\n")

	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = fmt.Sprintf("__gm__ %s* %s", cppType(p.DType), p.Name)
	}
	fmt.Fprintf(&b, "extern \"C\" __global__ __%s__ void %s(%s) {\n", coreQualifier(f.Core), f.Name, strings.Join(params, ", "))
	for _, op := range f.Ops {
		if op.Result != "" {
			fmt.Fprintf(&b, "    auto %s = block::%s(%s);\n", op.Result, op.Opcode, strings.Join(op.Args, ", "))
		} else {
			fmt.Fprintf(&b, "    block::%s(%s);\n", op.Opcode, strings.Join(op.Args, ", "))
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func coreQualifier(core string) string {
	if core == "aic" {
		return "aicore"
	}
	return "vector"
}

func cppType(d tensor.DType) string {
	switch d {
	case tensor.FP16:
		return "half"
	case tensor.INT32:
		return "int32_t"
	case tensor.INT8:
		return "int8_t"
	default:
		return "float"
	}
}
