package onnx

import "github.com/itohio/inferx/tensor"

// Options configures a ParsingContext. Grounded on the teacher's
// x/marshaller/types.Option shape: a typed-target Apply interface rather
// than the untyped x/options.ApplyOptions closures, since this is the
// model/marshaller-adjacent surface the teacher itself configures that way.
type Options struct {
	// Strict, when true, makes Registry.Build fail a node whose attributes
	// include one a Constructor did not consume; when false, such an
	// attribute is ignored without a check — strict mode catches a silently-ignored parameter (e.g. an unsupported Conv
	// dilation) instead of quietly miscompiling the graph.
	Strict bool

	// Initializers holds the GraphProto-level constant tensors by name, so
	// a Constructor that needs a weight's concrete shape (e.g. Conv reading
	// its channel counts off the kernel tensor, which ONNX never puts in a
	// NodeProto attribute) can look it up by the node's input name.
	Initializers map[string]*tensor.Tensor
}

// Option mutates Options when applied.
type Option interface {
	Apply(*Options)
}

type optionFunc func(*Options)

func (f optionFunc) Apply(o *Options) { f(o) }

// WithStrict enables strict unused-attribute checking.
func WithStrict(strict bool) Option {
	return optionFunc(func(o *Options) { o.Strict = strict })
}

// WithInitializers supplies the graph's named constant tensors.
func WithInitializers(initializers map[string]*tensor.Tensor) Option {
	return optionFunc(func(o *Options) { o.Initializers = initializers })
}

// Initializer looks up a named constant tensor, if any was supplied via
// WithInitializers.
func (c *ParsingContext) Initializer(name string) (*tensor.Tensor, bool) {
	t, ok := c.opts.Initializers[name]
	return t, ok
}

// ParsingContext carries the options governing one model's NodeProto-to-Op
// construction pass.
type ParsingContext struct {
	opts Options
}

// NewParsingContext builds a ParsingContext from the given options.
func NewParsingContext(opts ...Option) *ParsingContext {
	ctx := &ParsingContext{}
	for _, o := range opts {
		if o != nil {
			o.Apply(&ctx.opts)
		}
	}
	return ctx
}
