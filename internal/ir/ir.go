// Package ir models the slice of the frontend's intermediate representation
// that the test pipeline needs to sequence: modules, functions, ops, and the
// optimization pass pipeline. The frontend compiler proper is an external
// collaborator; this package only carries its artifacts between stages.
package ir

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/zhusy54/PTOTestingFramework/internal/tensor"
)

// FunctionKind distinguishes compiled kernels from orchestration functions.
type FunctionKind int

const (
	// InCore functions compile to one kernel source file each.
	InCore FunctionKind = iota
	// Orchestration functions describe the task graph that launches kernels.
	Orchestration
)

// Opcode enumerates the tile-level operations the pipeline understands.
type Opcode string

const (
	OpLoad   Opcode = "load"
	OpStore  Opcode = "store"
	OpMove   Opcode = "move"
	OpAdd    Opcode = "add"
	OpSub    Opcode = "sub"
	OpMul    Opcode = "mul"
	OpDiv    Opcode = "div"
	OpMatmul Opcode = "matmul"
)

// Op is a single IR operation in SSA-ish form: Result = Opcode(Args...).
type Op struct {
	Result string
	Opcode Opcode
	Args   []string
}

// Param is a function parameter bound to a tensor.
type Param struct {
	Name  string
	Shape tensor.Shape
	DType tensor.DType
}

// Function is one IR function, either an in-core kernel or an orchestrator.
type Function struct {
	Name   string
	Kind   FunctionKind
	Core   string // target core ("aiv" or "aic"); kernels only
	Params []Param
	Ops    []Op
}

// Module is a whole tensor program.
type Module struct {
	Name      string
	Functions []Function
}

// Kernels returns the in-core functions in declaration order.
func (m *Module) Kernels() []Function {
	var out []Function
	for _, f := range m.Functions {
		if f.Kind == InCore {
			out = append(out, f)
		}
	}
	return out
}

// Validate checks that the module can be compiled at all.
func (m *Module) Validate() error {
	if m.Name == "" {
		return errors.New("module has no name")
	}
	if len(m.Kernels()) == 0 {
		return errors.Errorf("module %q has no in-core functions", m.Name)
	}
	seen := map[string]bool{}
	for _, f := range m.Functions {
		if seen[f.Name] {
			return errors.Errorf("module %q declares function %q twice", m.Name, f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// Dump renders the module in the textual form written by pass snapshots.
func (m *Module) Dump() string {
	var b strings.Builder
	fmt.Fprintf(&b, "module %s\n", m.Name)
	for _, f := range m.Functions {
		kind := "incore"
		if f.Kind == Orchestration {
			kind = "orchestration"
		}
		fmt.Fprintf(&b, "  func %s (%s", f.Name, kind)
		if f.Core != "" {
			fmt.Fprintf(&b, ", core=%s", f.Core)
		}
		b.WriteString(")\n")
		for _, p := range f.Params {
			fmt.Fprintf(&b, "    param %s: %s %s\n", p.Name, p.DType, p.Shape)
		}
		for _, op := range f.Ops {
			fmt.Fprintf(&b, "    %s = %s(%s)\n", op.Result, op.Opcode, strings.Join(op.Args, ", "))
		}
	}
	return b.String()
}

// Clone returns a deep copy of the module. Passes transform clones so a
// generator failure never leaves a half-rewritten module behind.
func (m *Module) Clone() *Module {
	out := &Module{Name: m.Name, Functions: make([]Function, len(m.Functions))}
	for i, f := range m.Functions {
		nf := f
		nf.Params = append([]Param(nil), f.Params...)
		nf.Ops = make([]Op, len(f.Ops))
		for j, op := range f.Ops {
			nop := op
			nop.Args = append([]string(nil), op.Args...)
			nf.Ops[j] = nop
		}
		out.Functions[i] = nf
	}
	return out
}
