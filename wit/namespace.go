package wit

import (
	"github.com/composite-rt/composite/errors"
)

// Namespace is the single file-level name table every Named(n) resolves
// against (spec §3.2, §4.2). It is built in one pass over the parsed
// TypeDefs, then used in a second pass to check every reference resolves -
// the same "build the index, then resolve symbolically" shape the
// teacher's type resolver uses for the Component Model's cumulative type
// index space, generalized here to names instead of integer indices.
type Namespace struct {
	defs map[string]TypeDef
}

// NewNamespace builds a namespace from a flat list of type definitions,
// including those nested inside interfaces. Duplicate names (including
// shadowing a top-level name from within an interface) are a hard error,
// per spec §4.2 ("unresolved names and accidental shadowing are errors").
func NewNamespace(file *File) (*Namespace, error) {
	ns := &Namespace{defs: make(map[string]TypeDef)}

	for _, d := range file.Types {
		if err := ns.define(d); err != nil {
			return nil, err
		}
	}
	for _, iface := range file.Interfaces {
		for _, d := range iface.Types {
			if err := ns.define(d); err != nil {
				return nil, err
			}
		}
	}

	return ns, nil
}

func (ns *Namespace) define(d TypeDef) error {
	name := d.DefName()
	if _, exists := ns.defs[name]; exists {
		return errors.New(errors.PhaseParse, errors.KindRegistration).
			Detail("duplicate or shadowed type name %q", name).
			Build()
	}
	ns.defs[name] = d
	return nil
}

// Lookup returns the TypeDef bound to name, if any.
func (ns *Namespace) Lookup(name string) (TypeDef, bool) {
	d, ok := ns.defs[name]
	return d, ok
}

// All returns the namespace's underlying name table, not a copy. Its
// iteration order is not defined.
func (ns *Namespace) All() map[string]TypeDef {
	return ns.defs
}

// Resolve validates that every Named(n) reachable from file resolves to a
// TypeDef in ns. It never inlines: cycles are permitted and preserved as
// name references. Errors are reported eagerly - the first unresolved
// name aborts the pass, matching spec §4.2 ("no best-effort
// continuation").
func Resolve(file *File, ns *Namespace) error {
	for _, d := range file.Types {
		if err := resolveTypeDef(d, ns); err != nil {
			return err
		}
	}
	for _, iface := range file.Interfaces {
		for _, d := range iface.Types {
			if err := resolveTypeDef(d, ns); err != nil {
				return err
			}
		}
		for _, f := range iface.Funcs {
			if err := resolveFunc(&f, ns); err != nil {
				return err
			}
		}
	}
	for _, w := range file.Worlds {
		for _, imp := range w.Imports {
			if imp.Func != nil {
				if err := resolveFunc(imp.Func, ns); err != nil {
					return err
				}
			}
		}
		for _, exp := range w.Exports {
			if exp.Func != nil {
				if err := resolveFunc(exp.Func, ns); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func resolveFunc(f *FuncDecl, ns *Namespace) error {
	for _, p := range f.Params {
		if err := resolveType(p.Type, ns, make(map[string]bool)); err != nil {
			return err
		}
	}
	if f.Result != nil {
		if err := resolveType(f.Result, ns, make(map[string]bool)); err != nil {
			return err
		}
	}
	return nil
}

func resolveTypeDef(d TypeDef, ns *Namespace) error {
	visiting := map[string]bool{d.DefName(): true}
	switch v := d.(type) {
	case *RecordDef:
		for _, f := range v.Fields {
			if err := resolveType(f.Type, ns, visiting); err != nil {
				return err
			}
		}
	case *VariantDef:
		for _, c := range v.Cases {
			if c.Payload != nil {
				if err := resolveType(c.Payload, ns, visiting); err != nil {
					return err
				}
			}
		}
	case *AliasDef:
		return resolveType(v.Target, ns, visiting)
	case *EnumDef, *FlagsDef:
		// no nested types
	}
	return nil
}

// resolveType walks t, checking every Named against ns. visiting tracks
// the chain of currently-being-resolved TypeDef names purely so a cyclic
// Named(n) -> ... -> Named(n) chain is recognized as "already known to
// resolve" rather than walked forever; it does not reject the cycle -
// cycles are permitted by spec §4.2.
func resolveType(t Type, ns *Namespace, visiting map[string]bool) error {
	switch v := t.(type) {
	case Named:
		if visiting[v.Name] {
			return nil
		}
		def, ok := ns.Lookup(v.Name)
		if !ok {
			return errors.UnresolvedName(errors.PhaseParse, v.Name)
		}
		visiting[v.Name] = true
		defer delete(visiting, v.Name)
		return resolveTypeDefInner(def, ns, visiting)
	case List:
		return resolveType(v.Elem, ns, visiting)
	case Option:
		return resolveType(v.Elem, ns, visiting)
	case Result:
		if v.Ok != nil {
			if err := resolveType(v.Ok, ns, visiting); err != nil {
				return err
			}
		}
		if v.Err != nil {
			return resolveType(v.Err, ns, visiting)
		}
		return nil
	case Tuple:
		for _, e := range v.Elems {
			if err := resolveType(e, ns, visiting); err != nil {
				return err
			}
		}
		return nil
	case SelfRef:
		return nil
	default:
		// primitives
		return nil
	}
}

func resolveTypeDefInner(d TypeDef, ns *Namespace, visiting map[string]bool) error {
	switch v := d.(type) {
	case *RecordDef:
		for _, f := range v.Fields {
			if err := resolveType(f.Type, ns, visiting); err != nil {
				return err
			}
		}
	case *VariantDef:
		for _, c := range v.Cases {
			if c.Payload != nil {
				if err := resolveType(c.Payload, ns, visiting); err != nil {
					return err
				}
			}
		}
	case *AliasDef:
		return resolveType(v.Target, ns, visiting)
	}
	return nil
}
