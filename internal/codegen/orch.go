package codegen

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/zhusy54/PTOTestingFramework/internal/artifact"
	"github.com/zhusy54/PTOTestingFramework/internal/ir"
	"github.com/zhusy54/PTOTestingFramework/internal/tensor"
	"github.com/zhusy54/PTOTestingFramework/internal/testcase"
)

// CompletionMarker is the fixed sentinel left in every generated
// orchestration skeleton where task-submission code belongs. It is a
// stable textual contract: the standalone runner greps for it verbatim to
// warn about skeletons that were never completed. Do not reword it.
const CompletionMarker = "// PTO-TEST: INSERT TASK SUBMISSION HERE"

var titleCaser = cases.Title(language.English)

// OrchGenerator emits the orchestration skeleton: declarations for every
// kernel entry point and a graph-builder function whose body is left for
// manual completion.
type OrchGenerator struct{}

// NewOrchGenerator returns an orchestration generator.
func NewOrchGenerator() *OrchGenerator {
	return &OrchGenerator{}
}

// Generate writes orchestration/orch.cpp for the module. The kernel
// listing is derived from the IR directly, independent of the kernel
// generator's success.
func (g *OrchGenerator) Generate(m *ir.Module, specs []tensor.Spec, cfg testcase.Config, dir string) error {
	orchDir := filepath.Join(dir, artifact.OrchDir)
	if err := os.MkdirAll(orchDir, 0o755); err != nil {
		return err
	}
	source := renderOrchSource(m, specs)
	return os.WriteFile(filepath.Join(dir, filepath.FromSlash(artifact.OrchFile)), []byte(source), 0o644)
}

// EntryPointName derives the exported graph-builder name from the module
// name: "tile_add" becomes "BuildTileAddGraph".
func EntryPointName(moduleName string) string {
	parts := strings.FieldsFunc(moduleName, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	var b strings.Builder
	b.WriteString("Build")
	for _, p := range parts {
		b.WriteString(titleCaser.String(p))
	}
	b.WriteString("Graph")
	return b.String()
}

func renderOrchSource(m *ir.Module, specs []tensor.Spec) string {
	var b strings.Builder
	b.WriteString("// Generated orchestration skeleton. Complete the task submission\n")
	b.WriteString("// section below before running on a device.\n")
	b.WriteString("#include \"runtime.h\"\n")
	b.WriteString("#include <iostream>\n\n")

	for _, k := range KernelManifest(m) {
		b.WriteString(kernelDeclaration(m, k))
	}

	fmt.Fprintf(&b, "\nextern \"C\" int %s(rt::Graph& graph) {\n", EntryPointName(m.Name))
	for _, s := range specs {
		kind := "input"
		if s.IsOutput {
			kind = "output"
		}
		fmt.Fprintf(&b, "    // tensor %s: %s %s (%s)\n", s.Name, s.DType, s.Shape, kind)
	}
	b.WriteString("\n    " + CompletionMarker + "\n\n")
	b.WriteString("    return 0;\n")
	b.WriteString("}\n")
	return b.String()
}

func kernelDeclaration(m *ir.Module, k KernelInfo) string {
	fn := findFunction(m, k.Name)
	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = fmt.Sprintf("__gm__ %s* %s", cppType(p.DType), p.Name)
	}
	return fmt.Sprintf("extern \"C\" void %s(%s); // func_id %d, core %s\n",
		k.Name, strings.Join(params, ", "), k.FuncID, k.Core)
}

// HasCompletionMarker reports whether an orchestration source still
// contains the manual-completion sentinel.
func HasCompletionMarker(source []byte) bool {
	return strings.Contains(string(source), CompletionMarker)
}
