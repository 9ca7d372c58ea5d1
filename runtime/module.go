package runtime

import (
	"context"

	"github.com/composite-rt/composite/engine"
	"github.com/composite-rt/composite/errors"
	"github.com/composite-rt/composite/wit"
)

// Module is a compiled core WebAssembly module, optionally paired with
// a parsed WIT+ world describing its imports and exports for
// schema-checked calls.
type Module struct {
	runtime  *Runtime
	compiled *engine.Module
	witFile  *wit.File
	witNS    *wit.Namespace
}

func (m *Module) parseWIT(src string) error {
	file, err := wit.ParseFile(src)
	if err != nil {
		return err
	}
	ns, err := wit.NewNamespace(file)
	if err != nil {
		return err
	}
	if err := wit.Resolve(file, ns); err != nil {
		return err
	}
	m.witFile = file
	m.witNS = ns
	return nil
}

// Close releases the compiled module and stops the runtime's Close from
// sweeping it a second time. Close-failure logging happens at the
// engine.Module layer this wraps.
func (m *Module) Close(ctx context.Context) error {
	m.runtime.untrackModule(m)
	return m.compiled.Close(ctx)
}

// Instantiate resolves the module's imports against the runtime's
// linker and returns a new Instance.
func (m *Module) Instantiate(ctx context.Context) (*Instance, error) {
	inst, err := m.compiled.Instantiate(ctx, m.runtime.linker)
	if err != nil {
		return nil, err
	}
	mem := inst.Memory()
	if mem == nil {
		return nil, errors.InvalidInput(errors.PhaseRuntime, "module declares no memory; CallWithValue requires one")
	}
	return &Instance{module: m, inst: inst, mem: mem}, nil
}

// exportResultType finds the WIT result type for a named export, if
// WIT definitions were loaded.
func (m *Module) exportResultType(name string) (wit.Type, bool) {
	if m.witFile == nil {
		return nil, false
	}
	for _, w := range m.witFile.Worlds {
		for _, e := range w.Exports {
			if e.Func != nil && e.Func.Name == name {
				return e.Func.Result, e.Func.Result != nil
			}
		}
	}
	for _, iface := range m.witFile.Interfaces {
		for _, f := range iface.Funcs {
			if f.Name == name {
				return f.Result, f.Result != nil
			}
		}
	}
	return nil, false
}
