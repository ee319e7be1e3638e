package backend

import (
	"context"

	pkgerrors "github.com/pkg/errors"

	"github.com/zhusy54/PTOTestingFramework/internal/errors"
	"github.com/zhusy54/PTOTestingFramework/internal/ir"
	"github.com/zhusy54/PTOTestingFramework/internal/logging"
	"github.com/zhusy54/PTOTestingFramework/internal/tensor"
	"github.com/zhusy54/PTOTestingFramework/internal/toolchain"
)

// Simulator interprets the lowered module in-process. It exists to give
// the pipeline a real execution path without device access: every op the
// kernel generator can emit is evaluated here on the actual input values.
type Simulator struct {
	build   *toolchain.Build
	kernels []ir.Function
}

// value is one SSA temporary during interpretation.
type value struct {
	shape tensor.Shape
	data  []float64
}

func (s *Simulator) Bind(build *toolchain.Build) error {
	test := buildTest(build)
	if build.Module == nil {
		return errors.Bind(test, pkgerrors.Errorf("build carries no loadable module"))
	}

	declared := make(map[string]tensor.Shape, len(build.Config.Tensors))
	for _, t := range build.Config.Tensors {
		declared[t.Name] = tensor.Shape(t.Shape)
	}
	for _, fn := range build.Module.Kernels() {
		for _, p := range fn.Params {
			shape, ok := declared[p.Name]
			if !ok {
				return errors.Bind(test, pkgerrors.Errorf("kernel %s: parameter %q has no declared tensor", fn.Name, p.Name))
			}
			if len(p.Shape) > 0 && !shape.Equal(p.Shape) {
				return errors.Bind(test, pkgerrors.Errorf("kernel %s: parameter %q wants shape %s, tensor declares %s",
					fn.Name, p.Name, p.Shape, shape))
			}
		}
	}

	s.build = build
	return nil
}

func (s *Simulator) RegisterKernels() error {
	if s.build == nil {
		return errors.Bind("", pkgerrors.Errorf("no build bound"))
	}
	s.kernels = s.build.Module.Kernels()
	if len(s.kernels) == 0 {
		return errors.Bind(buildTest(s.build), pkgerrors.Errorf("module has no kernels to register"))
	}
	return nil
}

func (s *Simulator) Launch(ctx context.Context, tensors map[string]*tensor.Buffer) (map[string]*tensor.Buffer, error) {
	test := buildTest(s.build)
	if len(s.kernels) == 0 {
		return nil, errors.Bind(test, pkgerrors.Errorf("launch before kernel registration"))
	}

	for _, t := range s.build.Config.Tensors {
		if _, ok := tensors[t.Name]; !ok {
			return nil, errors.Bind(test, pkgerrors.Errorf("no buffer for tensor %q", t.Name))
		}
	}

	for _, fn := range s.kernels {
		if ctx.Err() != nil {
			return nil, errors.Timeout(test, "execution exceeded the wall-clock budget in kernel %s", fn.Name)
		}
		if err := s.runKernel(test, fn, tensors); err != nil {
			return nil, err
		}
	}

	outputs := make(map[string]*tensor.Buffer)
	for _, t := range s.build.Config.Tensors {
		if t.Kind == "output" {
			outputs[t.Name] = tensors[t.Name].Clone()
		}
	}
	log := logging.Stage(test, "execute")
	log.Debug().Int("outputs", len(outputs)).Msg("simulation finished")
	return outputs, nil
}

// runKernel interprets one in-core function op by op. Temporaries live in
// an SSA environment seeded from the parameter buffers.
func (s *Simulator) runKernel(test string, fn ir.Function, tensors map[string]*tensor.Buffer) error {
	env := make(map[string]value, len(fn.Params)+len(fn.Ops))
	for _, p := range fn.Params {
		buf := tensors[p.Name]
		env[p.Name] = value{shape: buf.Spec.Shape, data: buf.Data}
	}

	for _, op := range fn.Ops {
		switch op.Opcode {
		case ir.OpLoad, ir.OpMove:
			src, err := s.arg(test, fn, env, op, 0)
			if err != nil {
				return err
			}
			env[op.Result] = value{shape: src.shape, data: append([]float64(nil), src.data...)}

		case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv:
			out, err := s.elementwise(test, fn, env, op)
			if err != nil {
				return err
			}
			env[op.Result] = out

		case ir.OpMatmul:
			out, err := s.matmul(test, fn, env, op)
			if err != nil {
				return err
			}
			env[op.Result] = out

		case ir.OpStore:
			src, err := s.arg(test, fn, env, op, 0)
			if err != nil {
				return err
			}
			if len(op.Args) < 2 {
				return errors.Runtime(test, pkgerrors.Errorf("kernel %s: store needs a destination", fn.Name))
			}
			dst, ok := tensors[op.Args[1]]
			if !ok {
				return errors.Runtime(test, pkgerrors.Errorf("kernel %s: store to unknown tensor %q", fn.Name, op.Args[1]))
			}
			if len(src.data) != len(dst.Data) {
				return errors.Runtime(test, pkgerrors.Errorf("kernel %s: store of %d elements into %d-element tensor %q",
					fn.Name, len(src.data), len(dst.Data), op.Args[1]))
			}
			for i, v := range src.data {
				dst.Data[i] = dst.Spec.DType.Quantize(v)
			}

		default:
			return errors.Runtime(test, pkgerrors.Errorf("kernel %s: unsupported opcode %q", fn.Name, op.Opcode))
		}
	}
	return nil
}

func (s *Simulator) arg(test string, fn ir.Function, env map[string]value, op ir.Op, i int) (value, error) {
	if i >= len(op.Args) {
		return value{}, errors.Runtime(test, pkgerrors.Errorf("kernel %s: %s missing operand %d", fn.Name, op.Opcode, i))
	}
	v, ok := env[op.Args[i]]
	if !ok {
		return value{}, errors.Runtime(test, pkgerrors.Errorf("kernel %s: %s reads undefined value %q", fn.Name, op.Opcode, op.Args[i]))
	}
	return v, nil
}

func (s *Simulator) elementwise(test string, fn ir.Function, env map[string]value, op ir.Op) (value, error) {
	a, err := s.arg(test, fn, env, op, 0)
	if err != nil {
		return value{}, err
	}
	b, err := s.arg(test, fn, env, op, 1)
	if err != nil {
		return value{}, err
	}
	if len(a.data) != len(b.data) {
		return value{}, errors.Runtime(test, pkgerrors.Errorf("kernel %s: %s over mismatched sizes %d and %d",
			fn.Name, op.Opcode, len(a.data), len(b.data)))
	}

	out := value{shape: a.shape, data: make([]float64, len(a.data))}
	for i := range a.data {
		switch op.Opcode {
		case ir.OpAdd:
			out.data[i] = a.data[i] + b.data[i]
		case ir.OpSub:
			out.data[i] = a.data[i] - b.data[i]
		case ir.OpMul:
			out.data[i] = a.data[i] * b.data[i]
		case ir.OpDiv:
			out.data[i] = a.data[i] / b.data[i]
		}
	}
	return out, nil
}

func (s *Simulator) matmul(test string, fn ir.Function, env map[string]value, op ir.Op) (value, error) {
	a, err := s.arg(test, fn, env, op, 0)
	if err != nil {
		return value{}, err
	}
	b, err := s.arg(test, fn, env, op, 1)
	if err != nil {
		return value{}, err
	}
	if len(a.shape) != 2 || len(b.shape) != 2 || a.shape[1] != b.shape[0] {
		return value{}, errors.Runtime(test, pkgerrors.Errorf("kernel %s: matmul over incompatible shapes %s and %s",
			fn.Name, a.shape, b.shape))
	}

	m, k, n := a.shape[0], a.shape[1], b.shape[1]
	out := value{shape: tensor.Shape{m, n}, data: make([]float64, m*n)}
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var sum float64
			for x := 0; x < k; x++ {
				sum += a.data[i*k+x] * b.data[x*n+j]
			}
			out.data[i*n+j] = sum
		}
	}
	return out, nil
}

func buildTest(build *toolchain.Build) string {
	if build == nil || build.Config == nil {
		return ""
	}
	return build.Config.TestName
}

