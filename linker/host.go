package linker

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/composite-rt/composite/cgrf"
	"github.com/composite-rt/composite/errors"
	"github.com/composite-rt/composite/wit"
)

// uniformParams/uniformResults is the core wasm signature every Typed
// host function shares: (in_ptr, in_len, out_ptr, out_cap) -> i32
// (spec §4.5).
var (
	uniformParams  = []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}
	uniformResults = []api.ValueType{api.ValueTypeI32}
)

// negI32 is the caller-provides-output-buffer convention's generic
// failure return: any negative i32 signals the call did not produce a
// value (decode error, handler error, or out_cap too small).
const negI32 = uint64(0xFFFFFFFF)

// RawHostFn is a host function with an explicit core wasm signature
// the caller fully controls.
type RawHostFn struct {
	Fn      api.GoModuleFunc
	Params  []api.ValueType
	Results []api.ValueType
}

// TypedHostFn is a Value-to-Value host function, automatically wrapped
// to the uniform calling convention: the wrapper decodes the guest's
// input buffer as CGRF, calls Handler, and CGRF-encodes the result
// into the guest's output buffer (spec §4.5).
//
// InputType and OutputType, together with Namespace, declare the
// WIT signature of HostFn.Typed(input_type?, output_type?) (spec
// §3.4). When set, the wrapper decodes the input against InputType
// with cgrf.DecodeSchema instead of the structural cgrf.Decode, and
// validates the handler's result against OutputType the same way
// before it is written to the guest's output buffer. Either or both
// may be left nil for a schema-less binding.
type TypedHostFn struct {
	Handler    func(ctx context.Context, in cgrf.Value) (cgrf.Value, error)
	InputType  wit.Type
	OutputType wit.Type
	Namespace  *wit.Namespace
}

// HostFn is a single host function registration. Exactly one of Raw or
// Typed must be set (spec §3.4).
type HostFn struct {
	Raw   *RawHostFn
	Typed *TypedHostFn
}

func (t *TypedHostFn) build() api.GoModuleFunc {
	return api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
		inPtr := uint32(stack[0])
		inLen := uint32(stack[1])
		outPtr := uint32(stack[2])
		outCap := uint32(stack[3])

		mem := mod.Memory()
		raw, ok := mem.Read(inPtr, inLen)
		if !ok {
			stack[0] = negI32
			return
		}

		var inVal cgrf.Value
		var err error
		if t.InputType != nil && t.Namespace != nil {
			inVal, err = cgrf.DecodeSchema(raw, t.InputType, t.Namespace)
		} else {
			inVal, err = cgrf.Decode(raw)
		}
		if err != nil {
			stack[0] = negI32
			return
		}

		outVal, err := t.Handler(ctx, inVal)
		if err != nil {
			stack[0] = negI32
			return
		}

		encoded, err := cgrf.Encode(outVal)
		if err != nil || uint32(len(encoded)) > outCap {
			stack[0] = negI32
			return
		}
		if t.OutputType != nil && t.Namespace != nil {
			if _, err := cgrf.DecodeSchema(encoded, t.OutputType, t.Namespace); err != nil {
				stack[0] = negI32
				return
			}
		}

		if !mem.Write(outPtr, encoded) {
			stack[0] = negI32
			return
		}

		stack[0] = uint64(uint32(len(encoded)))
	})
}

// HostFunctionProvider supplies a set of host functions, keyed by full
// "namespace/path#funcname" registration path. Composing several
// providers under one Linker is how a host assembles its exposed
// surface from independently-developed pieces.
type HostFunctionProvider interface {
	HostFunctions() map[string]HostFn
}

// ProviderFunc adapts a plain function to HostFunctionProvider.
type ProviderFunc func() map[string]HostFn

func (f ProviderFunc) HostFunctions() map[string]HostFn { return f() }

// MultiProvider merges several providers into one. Later providers
// win on key collision, in slice order.
type MultiProvider []HostFunctionProvider

func (m MultiProvider) HostFunctions() map[string]HostFn {
	out := make(map[string]HostFn)
	for _, p := range m {
		for k, v := range p.HostFunctions() {
			out[k] = v
		}
	}
	return out
}

func hostFnSignature(fn HostFn) (api.GoModuleFunc, []api.ValueType, []api.ValueType, error) {
	switch {
	case fn.Raw != nil:
		return fn.Raw.Fn, fn.Raw.Params, fn.Raw.Results, nil
	case fn.Typed != nil:
		return fn.Typed.build(), uniformParams, uniformResults, nil
	default:
		return nil, nil, nil, errors.InvalidInput(errors.PhaseHost, "HostFn must set exactly one of Raw or Typed")
	}
}
