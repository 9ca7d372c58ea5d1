package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"

	"github.com/composite-rt/composite"
	"github.com/composite-rt/composite/errors"
	"github.com/composite-rt/composite/linker"
)

// Config configures Engine creation.
type Config struct {
	// MemoryLimitPages bounds each instance's linear memory, in 64KiB
	// pages. 0 means wazero's default (65536 pages, 4GiB).
	MemoryLimitPages uint32

	// EnableThreads enables the WebAssembly threads proposal
	// (experimental): atomic memory operations and shared memory within
	// a guest module. Thread operations are guest-only; no host
	// function exposes them.
	EnableThreads bool
}

// Engine owns one wazero runtime. All modules compiled against it
// share its host module namespace.
type Engine struct {
	runtime wazero.Runtime
}

// New creates an Engine with default configuration.
func New(ctx context.Context) *Engine {
	return NewWithConfig(ctx, nil)
}

// NewWithConfig creates an Engine with the given configuration.
func NewWithConfig(ctx context.Context, cfg *Config) *Engine {
	rc := wazero.NewRuntimeConfig()
	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			rc = rc.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.EnableThreads {
			rc = rc.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
		}
	}
	return &Engine{runtime: wazero.NewRuntimeWithConfig(ctx, rc)}
}

// Runtime returns the underlying wazero runtime, for advanced callers
// (e.g. instantiating a linker.Linker's host modules before
// Module.Instantiate).
func (e *Engine) Runtime() wazero.Runtime {
	return e.runtime
}

// Close releases every resource the engine holds, including compiled
// modules and instantiated host modules.
func (e *Engine) Close(ctx context.Context) error {
	err := e.runtime.Close(ctx)
	if err != nil {
		Logger().Warn("failed to close wazero runtime", zap.Error(err))
	}
	return err
}

// Module is a compiled core WebAssembly module.
type Module struct {
	engine   *Engine
	compiled wazero.CompiledModule
	name     string
}

// LoadModule compiles wasmBytes. name becomes the instance name of
// every instantiation of the module; wazero refuses a second live
// instance under the same non-empty name, while an empty name leaves
// instances anonymous.
func (e *Engine) LoadModule(ctx context.Context, name string, wasmBytes []byte) (*Module, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Load("compile module", err)
	}
	return &Module{engine: e, compiled: compiled, name: name}, nil
}

// Close releases the compiled module.
func (m *Module) Close(ctx context.Context) error {
	err := m.compiled.Close(ctx)
	if err != nil {
		Logger().Warn("failed to close compiled module", zap.String("module", m.name), zap.Error(err))
	}
	return err
}

// Instantiate links lk's host functions into the engine's runtime (if
// not already done) and instantiates the module against them.
func (m *Module) Instantiate(ctx context.Context, lk *linker.Linker) (*Instance, error) {
	if lk != nil {
		if err := lk.Instantiate(ctx, m.engine.runtime); err != nil {
			return nil, err
		}
	}

	modConfig := wazero.NewModuleConfig().WithName(m.name)
	inst, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, modConfig)
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	i := &Instance{
		module:    m,
		instance:  inst,
		funcCache: make(map[string]api.Function),
	}
	if mem := inst.Memory(); mem != nil {
		i.memory = &Memory{mem: mem}
	}
	return i, nil
}

// Instance is one instantiation of a Module, with imports already
// resolved.
type Instance struct {
	module    *Module
	instance  api.Module
	memory    *Memory
	funcCache map[string]api.Function
	mu        sync.Mutex
}

// Memory returns the instance's linear memory, or nil if the module
// declares none.
func (i *Instance) Memory() *Memory {
	return i.memory
}

// Raw returns the underlying wazero api.Module, for callers that need
// to key per-instance host-side state (e.g. runtime's log ring) by
// instance identity.
func (i *Instance) Raw() api.Module {
	return i.instance
}

func (i *Instance) exportedFunc(name string) (api.Function, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if fn, ok := i.funcCache[name]; ok {
		return fn, nil
	}
	fn := i.instance.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "exported function", name)
	}
	i.funcCache[name] = fn
	return fn, nil
}

// CallRaw invokes an exported function with raw core wasm arguments
// and returns its raw core wasm results.
func (i *Instance) CallRaw(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	fn, err := i.exportedFunc(name)
	if err != nil {
		return nil, err
	}
	results, err := fn.Call(ctx, args...)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindInvalidData, err, fmt.Sprintf("call %s", name))
	}
	return results, nil
}

// HasExport reports whether name is an exported function.
func (i *Instance) HasExport(name string) bool {
	return i.instance.ExportedFunction(name) != nil
}

// Close releases the instance.
func (i *Instance) Close(ctx context.Context) error {
	err := i.instance.Close(ctx)
	if err != nil {
		Logger().Warn("failed to close instance", zap.String("module", i.module.name), zap.Error(err))
	}
	return err
}

// Memory is a bounds-checked view over one instance's linear memory,
// implementing the root composite package's Memory and MemorySizer
// interfaces.
type Memory struct {
	mem api.Memory
}

// WrapMemory adapts a raw wazero api.Memory (e.g. from a host
// function's calling api.Module) to the bounds-checked Memory view.
func WrapMemory(mem api.Memory) *Memory {
	return &Memory{mem: mem}
}

func (m *Memory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseRuntime, nil, int(offset), int(m.mem.Size()))
	}
	return data, nil
}

func (m *Memory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseRuntime, nil, int(offset), int(m.mem.Size()))
	}
	return nil
}

func (m *Memory) ReadU8(offset uint32) (uint8, error) {
	data, err := m.Read(offset, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

func (m *Memory) ReadU16(offset uint32) (uint16, error) {
	data, err := m.Read(offset, 2)
	if err != nil {
		return 0, err
	}
	return uint16(data[0]) | uint16(data[1])<<8, nil
}

func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	val, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseRuntime, nil, int(offset), int(m.mem.Size()))
	}
	return val, nil
}

func (m *Memory) ReadU64(offset uint32) (uint64, error) {
	val, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseRuntime, nil, int(offset), int(m.mem.Size()))
	}
	return val, nil
}

func (m *Memory) WriteU8(offset uint32, value uint8) error {
	return m.Write(offset, []byte{value})
}

func (m *Memory) WriteU16(offset uint32, value uint16) error {
	return m.Write(offset, []byte{byte(value), byte(value >> 8)})
}

func (m *Memory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseRuntime, nil, int(offset), int(m.mem.Size()))
	}
	return nil
}

func (m *Memory) WriteU64(offset uint32, value uint64) error {
	if !m.mem.WriteUint64Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseRuntime, nil, int(offset), int(m.mem.Size()))
	}
	return nil
}

// Size returns the memory's current size in bytes.
func (m *Memory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

// Grow extends the memory by deltaPages 64KiB pages, returning the
// previous size in pages. ok is false if growth would exceed the
// module's declared maximum.
func (m *Memory) Grow(deltaPages uint32) (previousPages uint32, ok bool) {
	return m.mem.Grow(deltaPages)
}

// EnsureSize grows the memory, if needed, until its size in bytes is
// at least n. Returns an error if growth fails (e.g. the module
// declares too small a maximum).
func (m *Memory) EnsureSize(n uint32) error {
	if m.Size() >= n {
		return nil
	}
	const pageSize = 65536
	deltaBytes := n - m.Size()
	deltaPages := deltaBytes / pageSize
	if deltaBytes%pageSize != 0 {
		deltaPages++
	}
	if _, ok := m.mem.Grow(deltaPages); !ok {
		return errors.LimitExceeded(errors.PhaseRuntime, "guest memory", int(n), int(m.Size()))
	}
	return nil
}

var (
	_ composite.Memory      = (*Memory)(nil)
	_ composite.MemorySizer = (*Memory)(nil)
)
