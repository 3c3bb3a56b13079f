// Package conv implements 1D convolution, including its pulsified
// (streaming) form. Shapes follow [batch, channels, length] and
// [outChannels, inChannels, kernelLen], matching the teacher's Conv1D
// layer convention.
package conv

import (
	"fmt"

	"github.com/itohio/inferx/dim"
	"github.com/itohio/inferx/fact"
	"github.com/itohio/inferx/op"
	"github.com/itohio/inferx/tensor"
)

// Conv1D computes a strided, optionally-padded 1D convolution of a
// [batch, inChannels, length] input against a
// [outChannels, inChannels, kernelLen] kernel, producing
// [batch, outChannels, outLen].
type Conv1D struct {
	InChannels, OutChannels, KernelLen, Stride, Pad int
}

func (c Conv1D) Name() string { return "Conv1D" }

// outLen computes the output length for an input of the given length,
// clamping the raw formula's result at zero via dim.Max before validating
// it — the same max(0, ...) guard conv_transpose.rs's output-shape
// formulas apply before a padding/stride combination is allowed to imply a
// negative window count.
func (c Conv1D) outLen(length int) (int, error) {
	raw := (length+2*c.Pad-c.KernelLen)/c.Stride + 1
	clamped, err := dim.Max(dim.Int(int64(raw)), dim.Int(0))
	if err != nil {
		return 0, err
	}
	outLen, _ := clamped.ToInt64()
	if outLen <= 0 {
		return 0, fmt.Errorf("conv: invalid output length %d (input length %d, kernel %d, pad %d, stride %d)",
			raw, length, c.KernelLen, c.Pad, c.Stride)
	}
	return int(outLen), nil
}

func (c Conv1D) EvalStateless(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(inputs) < 2 {
		return nil, fmt.Errorf("conv: Conv1D wants at least 2 inputs (x, kernel[, bias]), got %d", len(inputs))
	}
	x, kernel := inputs[0], inputs[1]
	var bias *tensor.Tensor
	if len(inputs) > 2 {
		bias = inputs[2]
	}

	xShape := x.Shape()
	if len(xShape) != 3 {
		return nil, fmt.Errorf("conv: Conv1D input must be 3D [batch, channels, length], got %v", xShape)
	}
	batch, length := xShape[0], xShape[2]
	outLen, err := c.outLen(length)
	if err != nil {
		return nil, err
	}

	out, err := tensor.New(x.DataType(), tensor.NewShape(batch, c.OutChannels, outLen))
	if err != nil {
		return nil, err
	}

	for b := 0; b < batch; b++ {
		for oc := 0; oc < c.OutChannels; oc++ {
			for ol := 0; ol < outLen; ol++ {
				sum := 0.0
				start := ol*c.Stride - c.Pad
				for ic := 0; ic < c.InChannels; ic++ {
					for k := 0; k < c.KernelLen; k++ {
						pos := start + k
						if pos < 0 || pos >= length {
							continue
						}
						sum += x.At(b, ic, pos) * kernel.At(oc, ic, k)
					}
				}
				if bias != nil {
					sum += bias.At(oc)
				}
				out.SetAt(sum, b, oc, ol)
			}
		}
	}
	return []*tensor.Tensor{out}, nil
}

func (c Conv1D) TypedFacts(inputs []fact.Typed) ([]fact.Typed, error) {
	if len(inputs) < 2 {
		return nil, fmt.Errorf("conv: Conv1D wants at least 2 inputs, got %d", len(inputs))
	}
	x := inputs[0]
	if len(x.Shape) != 3 {
		return nil, fmt.Errorf("conv: Conv1D input must be rank 3, got rank %d", len(x.Shape))
	}
	batch := x.Shape[0]
	length, ok := x.Shape[2].ToInt64()
	if !ok {
		return nil, fmt.Errorf("conv: Conv1D requires a concrete length axis")
	}
	outLen, err := c.outLen(int(length))
	if err != nil {
		return nil, err
	}
	shape := []dim.Dim{batch, dim.Int(int64(c.OutChannels)), dim.Int(int64(outLen))}
	return []fact.Typed{{DType: x.DType, Shape: shape}}, nil
}

// AxisAfter: the batch axis (0) passes straight through; channel (1) and
// length (2) axes are transformed by the convolution and do not pass
// through unchanged.
func (c Conv1D) AxisAfter(input, inputAxis int) (int, bool) {
	if input == 0 && inputAxis == 0 {
		return 0, true
	}
	return -1, false
}

// Pulsify rewrites Conv1D for streaming execution over the length axis
// (axis 2): each tick delivers Pulse new samples, and the op must retain
// KernelLen-1 trailing samples from the previous tick to compute the
// leading outputs of the new one. PulsifiedConv1D carries that ring-buffer
// state.
func (c Conv1D) Pulsify(axis, pulse int, inputs []fact.Pulsed) (op.Op, error) {
	if axis != 2 {
		return nil, fmt.Errorf("conv: Conv1D can only stream over axis 2 (length), got %d", axis)
	}
	if pulse < c.Stride {
		return nil, fmt.Errorf("conv: pulse length %d smaller than stride %d is not supported", pulse, c.Stride)
	}
	return PulsifiedConv1D{Conv1D: c, Pulse: pulse}, nil
}

func (c Conv1D) delay() int {
	return c.KernelLen - 1 - c.Pad
}

// PulsedFacts reports the PulsedFact for a pulsified Conv1D: TypedFacts'
// full, non-streaming output shape, with axis 2 streaming at the input's
// pulse length and Delay set to the number of leading output samples along
// that axis that must be discarded to align with the non-streaming
// semantics.
func (c Conv1D) PulsedFacts(inputs []fact.Pulsed) ([]fact.Pulsed, error) {
	if len(inputs) < 1 {
		return nil, fmt.Errorf("conv: Conv1D wants at least 1 input")
	}
	in := inputs[0]
	typed, err := c.TypedFacts([]fact.Typed{in.Typed})
	if err != nil {
		return nil, err
	}
	delay := c.delay()
	if delay < 0 {
		delay = 0
	}
	return []fact.Pulsed{{
		Normalized: fact.Normalized{Typed: typed[0]},
		Axis:       2,
		Pulse:      in.Pulse,
		Delay:      delay,
	}}, nil
}

// PulsifiedConv1D is Conv1D's streaming form: a ring buffer retains the
// KernelLen-1 most recent input samples per channel so each new pulse's
// leading outputs can see the trailing context from the previous one.
type PulsifiedConv1D struct {
	Conv1D
	Pulse int
}

func (p PulsifiedConv1D) Name() string { return "PulsifiedConv1D" }

// NewState allocates the per-run ring buffer: InChannels rows of
// KernelLen-1 zero-initialized history samples.
func (p PulsifiedConv1D) NewState() op.State {
	history := p.KernelLen - 1
	if history < 0 {
		history = 0
	}
	buf := make([][]float64, p.InChannels)
	for i := range buf {
		buf[i] = make([]float64, history)
	}
	return &Conv1DState{op: p, history: buf}
}

// Conv1DState is the mutable ring buffer a pulsified Conv1D carries across
// plan ticks.
type Conv1DState struct {
	op      PulsifiedConv1D
	history [][]float64
}

// Eval consumes one pulse's worth of input (and the kernel/bias constants)
// and produces that pulse's worth of output, sliding the ring buffer
// forward by Pulse samples per channel. The op parameter is unused: the
// state already closes over the PulsifiedConv1D that created it.
func (s *Conv1DState) Eval(_ op.Op, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(inputs) < 2 {
		return nil, fmt.Errorf("conv: PulsifiedConv1D wants at least 2 inputs, got %d", len(inputs))
	}
	x, kernel := inputs[0], inputs[1]
	var bias *tensor.Tensor
	if len(inputs) > 2 {
		bias = inputs[2]
	}
	xShape := x.Shape()
	if len(xShape) != 3 {
		return nil, fmt.Errorf("conv: PulsifiedConv1D input must be 3D, got %v", xShape)
	}
	batch, pulse := xShape[0], xShape[2]
	history := s.op.KernelLen - 1
	if history < 0 {
		history = 0
	}

	out, err := tensor.New(x.DataType(), tensor.NewShape(batch, s.op.OutChannels, pulse))
	if err != nil {
		return nil, err
	}

	window := history + pulse
	ext := make([][]float64, s.op.InChannels)
	for ic := 0; ic < s.op.InChannels; ic++ {
		ext[ic] = make([]float64, window)
		copy(ext[ic], s.history[ic])
		for b := 0; b < batch; b++ {
			for p := 0; p < pulse; p++ {
				ext[ic][history+p] = x.At(b, ic, p)
			}
		}
	}

	for b := 0; b < batch; b++ {
		for oc := 0; oc < s.op.OutChannels; oc++ {
			for ol := 0; ol < pulse; ol++ {
				sum := 0.0
				start := ol * s.op.Stride
				for ic := 0; ic < s.op.InChannels; ic++ {
					for k := 0; k < s.op.KernelLen; k++ {
						pos := start + k
						if pos < 0 || pos >= window {
							continue
						}
						sum += ext[ic][pos] * kernel.At(oc, ic, k)
					}
				}
				if bias != nil {
					sum += bias.At(oc)
				}
				out.SetAt(sum, b, oc, ol)
			}
		}
	}

	for ic := 0; ic < s.op.InChannels; ic++ {
		copy(s.history[ic], ext[ic][pulse:pulse+history])
	}

	return []*tensor.Tensor{out}, nil
}
