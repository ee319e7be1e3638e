package tensor

import (
	"github.com/zhusy54/PTOTestingFramework/internal/errors"
)

// Buffer is a materialized tensor: a spec plus its concrete element values.
// Values are stored in float64 canonical form, already quantized to the
// spec's dtype so that generated goldens and executed results compare
// against identical representable values.
type Buffer struct {
	Spec Spec
	Data []float64
}

// Materialize resolves the spec's init value into a buffer.
// Zero/scalar/literal forms are deterministic; generator forms invoke the
// producer once per call.
func Materialize(s Spec) (*Buffer, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	n := s.Shape.NumElements()
	data := make([]float64, n)

	switch s.Init.kind {
	case initZero:
		// already zero-filled

	case initScalar:
		v := s.DType.Quantize(s.Init.scalar)
		for i := range data {
			data[i] = v
		}

	case initLiteral:
		if len(s.Init.literal) != n {
			return nil, errors.TensorSpec("", "tensor %q: literal init has %d elements, shape %s needs %d",
				s.Name, len(s.Init.literal), s.Shape, n)
		}
		for i, v := range s.Init.literal {
			data[i] = s.DType.Quantize(v)
		}

	case initGenerator:
		produced := s.Init.gen()
		if len(produced) != n {
			return nil, errors.TensorSpec("", "tensor %q: generator produced %d elements, shape %s needs %d",
				s.Name, len(produced), s.Shape, n)
		}
		for i, v := range produced {
			data[i] = s.DType.Quantize(v)
		}
	}

	return &Buffer{Spec: s, Data: data}, nil
}

// MaterializeAll materializes every spec, keyed by tensor name.
// Output tensors start zero-filled regardless of their init value.
func MaterializeAll(test string, specs []Spec) (map[string]*Buffer, error) {
	buffers := make(map[string]*Buffer, len(specs))
	for _, s := range specs {
		if s.IsOutput {
			s.Init = Zero()
		}
		buf, err := Materialize(s)
		if err != nil {
			pe := err.(*errors.PipelineError)
			pe.Test = test
			return nil, pe
		}
		buffers[s.Name] = buf
	}
	return buffers, nil
}

// Clone returns a deep copy of the buffer.
func (b *Buffer) Clone() *Buffer {
	data := make([]float64, len(b.Data))
	copy(data, b.Data)
	spec := b.Spec
	spec.Shape = b.Spec.Shape.Clone()
	return &Buffer{Spec: spec, Data: data}
}

// Fill overwrites every element with the dtype-quantized value.
func (b *Buffer) Fill(v float64) {
	q := b.Spec.DType.Quantize(v)
	for i := range b.Data {
		b.Data[i] = q
	}
}
