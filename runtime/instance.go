package runtime

import (
	"context"

	"github.com/composite-rt/composite/cgrf"
	"github.com/composite-rt/composite/engine"
	"github.com/composite-rt/composite/errors"
)

// Instance is one instantiation of a Module, with imports already
// resolved against the runtime's linker. Not safe for concurrent
// mutation: every CallWithValue writes and reads the same fixed
// input/output buffer region, and Instance holds no lock, so
// concurrent calls on one Instance are not serialized (spec §5).
type Instance struct {
	module *Module
	inst   *engine.Instance
	mem    *engine.Memory
}

// CallWithValue invokes the exported function name under the uniform
// calling convention (spec §4.7): encode in, write it at
// InputBufferOffset, invoke with (InputBufferOffset, in_len,
// OutputBufferOffset, OutputBufferCapacity), check the result is >= 0,
// read out_len bytes back, and decode them — schema-checked against
// the module's WIT export type if one was loaded, structurally
// otherwise.
func (i *Instance) CallWithValue(ctx context.Context, name string, in cgrf.Value) (cgrf.Value, error) {
	encoded, err := cgrf.Encode(in)
	if err != nil {
		return nil, err
	}
	if uint32(len(encoded)) > InputBufferCapacity {
		return nil, errors.LimitExceeded(errors.PhaseEncode, "input buffer", InputBufferCapacity, len(encoded))
	}
	if err := i.mem.EnsureSize(OutputBufferOffset + OutputBufferCapacity); err != nil {
		return nil, err
	}
	if err := i.mem.Write(InputBufferOffset, encoded); err != nil {
		return nil, err
	}

	results, err := i.inst.CallRaw(ctx, name,
		uint64(InputBufferOffset), uint64(len(encoded)),
		uint64(OutputBufferOffset), uint64(OutputBufferCapacity))
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, errors.InvalidData(errors.PhaseRuntime, nil, "exported function did not return a single i32")
	}

	outLen := int32(results[0])
	if outLen < 0 {
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindInvalidData, nil, "call "+name+" returned -1")
	}

	out, err := i.mem.Read(OutputBufferOffset, uint32(outLen))
	if err != nil {
		return nil, err
	}

	if t, ok := i.module.exportResultType(name); ok && i.module.witNS != nil {
		return cgrf.DecodeSchema(out, t, i.module.witNS)
	}
	return cgrf.Decode(out)
}

// CallWithValueInto is CallWithValue with an explicitly supplied
// output buffer capacity, for callers whose expected result exceeds
// OutputBufferCapacity (spec §7 "out-of-capacity MAY be retried with a
// larger caller-supplied buffer").
func (i *Instance) CallWithValueInto(ctx context.Context, name string, in cgrf.Value, outCap uint32) (cgrf.Value, error) {
	encoded, err := cgrf.Encode(in)
	if err != nil {
		return nil, err
	}
	if uint32(len(encoded)) > InputBufferCapacity {
		return nil, errors.LimitExceeded(errors.PhaseEncode, "input buffer", InputBufferCapacity, len(encoded))
	}
	if err := i.mem.EnsureSize(OutputBufferOffset + outCap); err != nil {
		return nil, err
	}
	if err := i.mem.Write(InputBufferOffset, encoded); err != nil {
		return nil, err
	}

	results, err := i.inst.CallRaw(ctx, name,
		uint64(InputBufferOffset), uint64(len(encoded)),
		uint64(OutputBufferOffset), uint64(outCap))
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, errors.InvalidData(errors.PhaseRuntime, nil, "exported function did not return a single i32")
	}
	outLen := int32(results[0])
	if outLen < 0 {
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindInvalidData, nil, "call "+name+" returned -1")
	}
	out, err := i.mem.Read(OutputBufferOffset, uint32(outLen))
	if err != nil {
		return nil, err
	}
	if t, ok := i.module.exportResultType(name); ok && i.module.witNS != nil {
		return cgrf.DecodeSchema(out, t, i.module.witNS)
	}
	return cgrf.Decode(out)
}

// Logs returns a snapshot of every line the guest has passed to
// host.log so far (spec §4.7).
func (i *Instance) Logs() []string {
	return i.module.runtime.logsFor(i.inst.Raw()).snapshot()
}

// Allocator returns the composite.Allocator backing this instance's
// host.alloc import, for host-side callers that want to place
// additional data in guest memory themselves.
func (i *Instance) Allocator() (*BumpAllocator, error) {
	return i.module.runtime.allocatorFor(i.inst.Raw())
}

// HasExport reports whether name is an exported function.
func (i *Instance) HasExport(name string) bool {
	return i.inst.HasExport(name)
}

// Memory returns the instance's linear memory.
func (i *Instance) Memory() *engine.Memory {
	return i.mem
}

// Close releases the instance. Close-failure logging happens at the
// engine.Instance layer this wraps.
func (i *Instance) Close(ctx context.Context) error {
	return i.inst.Close(ctx)
}
