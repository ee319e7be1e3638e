package ir

import (
	"github.com/zhusy54/PTOTestingFramework/internal/tensor"
)

// ModuleBuilder assembles a module from ordinary Go calls, so a test
// case's program supplier stays readable.
type ModuleBuilder struct {
	m Module
}

// NewModule starts a module with the given name.
func NewModule(name string) *ModuleBuilder {
	return &ModuleBuilder{m: Module{Name: name}}
}

// Kernel starts an in-core function.
func (b *ModuleBuilder) Kernel(name string) *FuncBuilder {
	return &FuncBuilder{module: b, fn: Function{Name: name, Kind: InCore}}
}

// Build returns the assembled module.
func (b *ModuleBuilder) Build() *Module {
	m := b.m
	return &m
}

// FuncBuilder assembles one function op by op.
type FuncBuilder struct {
	module *ModuleBuilder
	fn     Function
}

// Param declares a tensor-bound parameter.
func (fb *FuncBuilder) Param(name string, shape tensor.Shape, dt tensor.DType) *FuncBuilder {
	fb.fn.Params = append(fb.fn.Params, Param{Name: name, Shape: shape, DType: dt})
	return fb
}

// Load reads a parameter into a tile.
func (fb *FuncBuilder) Load(result, src string) *FuncBuilder {
	return fb.op(result, OpLoad, src)
}

// Move copies a tile.
func (fb *FuncBuilder) Move(result, src string) *FuncBuilder {
	return fb.op(result, OpMove, src)
}

// Add computes result = a + b elementwise.
func (fb *FuncBuilder) Add(result, a, b string) *FuncBuilder {
	return fb.op(result, OpAdd, a, b)
}

// Sub computes result = a - b elementwise.
func (fb *FuncBuilder) Sub(result, a, b string) *FuncBuilder {
	return fb.op(result, OpSub, a, b)
}

// Mul computes result = a * b elementwise.
func (fb *FuncBuilder) Mul(result, a, b string) *FuncBuilder {
	return fb.op(result, OpMul, a, b)
}

// Div computes result = a / b elementwise.
func (fb *FuncBuilder) Div(result, a, b string) *FuncBuilder {
	return fb.op(result, OpDiv, a, b)
}

// Matmul computes the matrix product of two 2-D tiles.
func (fb *FuncBuilder) Matmul(result, a, b string) *FuncBuilder {
	return fb.op(result, OpMatmul, a, b)
}

// Store writes a tile back to a parameter.
func (fb *FuncBuilder) Store(src, dst string) *FuncBuilder {
	fb.fn.Ops = append(fb.fn.Ops, Op{Opcode: OpStore, Args: []string{src, dst}})
	return fb
}

// Done closes the function and returns to the module.
func (fb *FuncBuilder) Done() *ModuleBuilder {
	fb.module.m.Functions = append(fb.module.m.Functions, fb.fn)
	return fb.module
}

func (fb *FuncBuilder) op(result string, opcode Opcode, args ...string) *FuncBuilder {
	fb.fn.Ops = append(fb.fn.Ops, Op{Result: result, Opcode: opcode, Args: args})
	return fb
}
