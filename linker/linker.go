package linker

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"

	"github.com/composite-rt/composite/errors"
)

// Options configures a Linker.
type Options struct {
	// SemverMatching enables falling back to a newer compatible
	// namespace version when an exact version match isn't registered.
	SemverMatching bool
}

// DefaultOptions returns the default linker configuration.
func DefaultOptions() Options {
	return Options{SemverMatching: true}
}

// Linker holds the tree of host functions a guest module's imports
// are resolved against (spec §3.4). Thread-safe.
type Linker struct {
	root    *Namespace
	options Options
	mu      sync.RWMutex
}

// New creates a Linker with the given options.
func New(opts Options) *Linker {
	return &Linker{root: NewNamespace(), options: opts}
}

// NewWithDefaults creates a Linker with default options.
func NewWithDefaults() *Linker {
	return New(DefaultOptions())
}

// Options returns the linker's configuration.
func (l *Linker) Options() Options {
	return l.options
}

// Root returns the root namespace.
func (l *Linker) Root() *Namespace {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.root
}

// Namespace returns or creates a namespace by path, e.g.
// "myapp:api/v1@0.2.0".
func (l *Linker) Namespace(path string) *Namespace {
	l.mu.Lock()
	defer l.mu.Unlock()

	segments := parseNamespacePath(path)
	current := l.root
	for _, seg := range segments {
		name := seg.name
		if seg.version != nil {
			name += "@" + seg.version.String()
		}
		current = current.Instance(name)
	}
	return current
}

// Define registers fn at "namespace/path#funcname".
func (l *Linker) Define(path string, fn HostFn) error {
	nsPath, funcName, err := splitFuncPath(path)
	if err != nil {
		return err
	}
	handler, params, results, err := hostFnSignature(fn)
	if err != nil {
		return err
	}
	l.Namespace(nsPath).DefineFunc(funcName, handler, params, results)
	return nil
}

// RegisterProvider registers every function a provider supplies.
func (l *Linker) RegisterProvider(p HostFunctionProvider) error {
	for path, fn := range p.HostFunctions() {
		if err := l.Define(path, fn); err != nil {
			return fmt.Errorf("register %s: %w", path, err)
		}
	}
	return nil
}

// Resolve looks up a function by full path with semver matching if
// enabled.
func (l *Linker) Resolve(path string) *FuncDef {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.root.ResolveWithSemver(path, l.options.SemverMatching)
}

// Instantiate materializes every namespace holding at least one
// function as a wazero host module, named by its full namespace path.
// Must be called once per wazero.Runtime before instantiating a guest
// module that imports from it.
func (l *Linker) Instantiate(ctx context.Context, rt wazero.Runtime) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return instantiateNamespace(ctx, rt, l.root)
}

func instantiateNamespace(ctx context.Context, rt wazero.Runtime, ns *Namespace) error {
	funcs := ns.AllFuncs()
	if len(funcs) > 0 {
		name := ns.FullPath()
		if rt.Module(name) == nil {
			builder := rt.NewHostModuleBuilder(name)
			for _, f := range funcs {
				builder.NewFunctionBuilder().
					WithGoModuleFunction(f.Handler, f.ParamTypes, f.ResultTypes).
					Export(f.Name)
			}
			if _, err := builder.Instantiate(ctx); err != nil {
				return errors.Wrap(errors.PhaseLinking, errors.KindRegistration, err, "instantiate host module "+name)
			}
		}
	}
	for _, child := range ns.AllChildren() {
		if err := instantiateNamespace(ctx, rt, child); err != nil {
			return err
		}
	}
	return nil
}

// splitFuncPath splits "ns/path#funcname" into namespace and function
// parts.
func splitFuncPath(path string) (nsPath, funcName string, err error) {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '#' {
			return path[:i], path[i+1:], nil
		}
	}
	return "", "", errors.InvalidInput(errors.PhaseHost, fmt.Sprintf("invalid function path %q: missing '#' separator", path))
}
