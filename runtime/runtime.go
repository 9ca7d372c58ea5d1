package runtime

import (
	"context"
	"sync"

	"go.uber.org/multierr"

	"github.com/composite-rt/composite/engine"
	"github.com/composite-rt/composite/errors"
	"github.com/composite-rt/composite/linker"
)

// Runtime owns one engine.Engine and one linker.Linker. It is safe
// for concurrent use; the Instances it produces are not (spec §5).
type Runtime struct {
	engine     *engine.Engine
	linker     *linker.Linker
	logs       sync.Map // api.Module -> *logRing
	allocators sync.Map // api.Module -> *BumpAllocator

	mu      sync.Mutex
	modules map[*Module]struct{} // loaded modules not yet closed individually
}

// New creates a Runtime with default engine and linker configuration,
// with the built-in host.log/host.alloc imports already registered.
func New(ctx context.Context) (*Runtime, error) {
	r := &Runtime{
		engine:  engine.New(ctx),
		linker:  linker.NewWithDefaults(),
		modules: make(map[*Module]struct{}),
	}
	if err := r.registerBuiltins(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runtime) trackModule(m *Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[m] = struct{}{}
}

func (r *Runtime) untrackModule(m *Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.modules, m)
}

// Close releases every resource the runtime holds: any Module loaded
// through it that the caller hasn't already closed individually
// (instances must still be closed first), then the underlying engine.
// Errors from each close are aggregated with multierr rather than
// stopping at the first failure, so one stuck module can't mask a
// failure closing the engine.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	pending := make([]*Module, 0, len(r.modules))
	for m := range r.modules {
		pending = append(pending, m)
	}
	r.modules = nil
	r.mu.Unlock()

	var err error
	for _, m := range pending {
		if closeErr := m.compiled.Close(ctx); closeErr != nil {
			err = multierr.Append(err, closeErr)
		}
	}
	if closeErr := r.engine.Close(ctx); closeErr != nil {
		err = multierr.Append(err, closeErr)
	}
	return err
}

// Linker returns the runtime's host function linker, so an embedder
// can register additional namespaced interfaces before loading a
// module that imports them.
func (r *Runtime) Linker() *linker.Linker {
	return r.linker
}

// RegisterProvider registers every function a provider supplies (spec
// §4.5 "Provider pattern"). Must be called before LoadModule for any
// module that imports these functions.
func (r *Runtime) RegisterProvider(p linker.HostFunctionProvider) error {
	return r.linker.RegisterProvider(p)
}

// LoadModule compiles wasmBytes as a core WebAssembly module. name
// becomes the module's instance name.
func (r *Runtime) LoadModule(ctx context.Context, name string, wasmBytes []byte) (*Module, error) {
	compiled, err := r.engine.LoadModule(ctx, name, wasmBytes)
	if err != nil {
		return nil, err
	}
	m := &Module{runtime: r, compiled: compiled}
	r.trackModule(m)
	return m, nil
}

// LoadModuleWithWIT is LoadModule plus a WIT+ world description, used
// to schema-check CallWithValue results against a declared export type
// instead of decoding structurally (spec §4.1, §4.3).
func (r *Runtime) LoadModuleWithWIT(ctx context.Context, name string, wasmBytes []byte, witText string) (*Module, error) {
	m, err := r.LoadModule(ctx, name, wasmBytes)
	if err != nil {
		return nil, err
	}
	if witText != "" {
		if err := m.parseWIT(witText); err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "parse WIT for module "+name)
		}
	}
	return m, nil
}
