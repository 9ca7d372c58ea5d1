package runtime

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero/api"

	"github.com/composite-rt/composite/engine"
	"github.com/composite-rt/composite/linker"
)

// Default buffer layout for CallWithValue (spec §4.5): a 16 KiB input
// buffer at offset 0, followed by a 32 KiB output buffer at 16 KiB.
// Guest heap allocation (BumpAllocator) starts immediately after, at
// 0xC000. A module's memory is grown to fit on first use if it starts
// out smaller.
const (
	InputBufferOffset    = 0
	InputBufferCapacity  = 16 * 1024
	OutputBufferOffset   = 16 * 1024
	OutputBufferCapacity = 32 * 1024
)

// logRing is the per-instance side buffer of host.log lines (spec
// §4.7, §6), capped so a runaway guest can't exhaust host memory.
type logRing struct {
	mu    sync.Mutex
	lines []string
}

const logRingMax = 1000

func (r *logRing) append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	if len(r.lines) > logRingMax {
		r.lines = r.lines[len(r.lines)-logRingMax:]
	}
}

func (r *logRing) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

// logsFor returns (creating if necessary) the log ring for the guest
// instance identified by mod.
func (r *Runtime) logsFor(mod api.Module) *logRing {
	v, _ := r.logs.LoadOrStore(mod, &logRing{})
	return v.(*logRing)
}

// allocatorFor returns (creating if necessary) the bump allocator for
// the guest instance identified by mod.
func (r *Runtime) allocatorFor(mod api.Module) (*BumpAllocator, error) {
	if v, ok := r.allocators.Load(mod); ok {
		return v.(*BumpAllocator), nil
	}
	alloc, err := newBumpAllocator(engine.WrapMemory(mod.Memory()))
	if err != nil {
		return nil, err
	}
	v, _ := r.allocators.LoadOrStore(mod, alloc)
	return v.(*BumpAllocator), nil
}

// registerBuiltins defines the "host" namespace's log and alloc
// functions every guest may import (spec §6). Bound once per Linker;
// per-instance state (the log ring, the bump pointer) is found through
// the calling module's identity at call time.
func (r *Runtime) registerBuiltins() error {
	logFn := api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
		ptr := uint32(stack[0])
		length := uint32(stack[1])
		data, ok := mod.Memory().Read(ptr, length)
		if !ok {
			return
		}
		r.logsFor(mod).append(string(data))
	})

	allocFn := api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
		size := uint32(stack[0])
		alloc, err := r.allocatorFor(mod)
		if err != nil {
			stack[0] = 0
			return
		}
		ptr, err := alloc.Alloc(size, 8)
		if err != nil {
			stack[0] = 0
			return
		}
		stack[0] = uint64(ptr)
	})

	if err := r.linker.Define("host#log", linker.HostFn{Raw: &linker.RawHostFn{
		Fn:      logFn,
		Params:  []api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
		Results: nil,
	}}); err != nil {
		return err
	}
	return r.linker.Define("host#alloc", linker.HostFn{Raw: &linker.RawHostFn{
		Fn:      allocFn,
		Params:  []api.ValueType{api.ValueTypeI32},
		Results: []api.ValueType{api.ValueTypeI32},
	}})
}
