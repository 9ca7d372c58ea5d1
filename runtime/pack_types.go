package runtime

import (
	"context"
	"fmt"

	"github.com/composite-rt/composite/cgrf"
	"github.com/composite-rt/composite/errors"
)

// PackageMetadata is the decoded form of a guest's __pack_types export
// (spec §6): the list of named, typed functions it imports and
// exports, plus the interface hash each named interface was built
// against. The wire convention is a CGRF record with two list fields,
// "imports" and "exports", each holding records of {name: string,
// params: list<tuple<string, string>>, result: option<string>, hash:
// string} — parameter/result/hash entries are the type-desc's rendered
// name, not a parsed wit.Type, since the guest may be written in a
// language with no access to this module's wit package.
type PackageMetadata struct {
	Imports []FuncMetadata
	Exports []FuncMetadata
}

// FuncMetadata describes one imported or exported function as encoded
// by __pack_types.
type FuncMetadata struct {
	Name      string
	Hash      string
	Params    []ParamMetadata
	Result    string // empty if the function returns nothing
	HasResult bool
}

// ParamMetadata is one named, typed parameter in a FuncMetadata.
type ParamMetadata struct {
	Name string
	Type string
}

// ReadPackTypes calls the guest's __pack_types export, reads the CGRF
// blob it returns (ptr, len) for out of guest memory, and decodes it
// per the PackageMetadata convention.
func ReadPackTypes(ctx context.Context, i *Instance) (*PackageMetadata, error) {
	if !i.HasExport("__pack_types") {
		return nil, errors.NotFound(errors.PhaseRuntime, "export", "__pack_types")
	}
	results, err := i.inst.CallRaw(ctx, "__pack_types")
	if err != nil {
		return nil, err
	}
	if len(results) != 2 {
		return nil, errors.InvalidData(errors.PhaseRuntime, nil, "__pack_types must return (ptr, len)")
	}
	ptr := uint32(results[0])
	length := uint32(results[1])

	raw, err := i.mem.Read(ptr, length)
	if err != nil {
		return nil, err
	}
	val, err := cgrf.Decode(raw)
	if err != nil {
		return nil, err
	}
	return decodePackageMetadata(val)
}

func decodePackageMetadata(v cgrf.Value) (*PackageMetadata, error) {
	rec, ok := v.(cgrf.Record)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseDecode, nil, goTypeName(v), "record")
	}
	meta := &PackageMetadata{}
	for _, f := range rec.Fields {
		list, ok := f.Value.(cgrf.List)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseDecode, []string{f.Name}, goTypeName(f.Value), "list")
		}
		funcs, err := decodeFuncList(list, f.Name)
		if err != nil {
			return nil, err
		}
		switch f.Name {
		case "imports":
			meta.Imports = funcs
		case "exports":
			meta.Exports = funcs
		}
	}
	return meta, nil
}

func decodeFuncList(list cgrf.List, fieldName string) ([]FuncMetadata, error) {
	out := make([]FuncMetadata, 0, len(list.Items))
	for idx, elem := range list.Items {
		rec, ok := elem.(cgrf.Record)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseDecode, []string{fieldName, fmt.Sprintf("%d", idx)}, goTypeName(elem), "record")
		}
		fm, err := decodeFuncMetadata(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, fm)
	}
	return out, nil
}

func decodeFuncMetadata(rec cgrf.Record) (FuncMetadata, error) {
	var fm FuncMetadata
	for _, f := range rec.Fields {
		switch f.Name {
		case "name":
			s, ok := f.Value.(cgrf.String)
			if !ok {
				return fm, errors.TypeMismatch(errors.PhaseDecode, []string{"name"}, goTypeName(f.Value), "string")
			}
			fm.Name = string(s)
		case "hash":
			s, ok := f.Value.(cgrf.String)
			if !ok {
				return fm, errors.TypeMismatch(errors.PhaseDecode, []string{"hash"}, goTypeName(f.Value), "string")
			}
			fm.Hash = string(s)
		case "result":
			opt, ok := f.Value.(cgrf.Option)
			if !ok {
				return fm, errors.TypeMismatch(errors.PhaseDecode, []string{"result"}, goTypeName(f.Value), "option")
			}
			if opt.Inner != nil {
				s, ok := opt.Inner.(cgrf.String)
				if !ok {
					return fm, errors.TypeMismatch(errors.PhaseDecode, []string{"result"}, goTypeName(opt.Inner), "string")
				}
				fm.Result = string(s)
				fm.HasResult = true
			}
		case "params":
			list, ok := f.Value.(cgrf.List)
			if !ok {
				return fm, errors.TypeMismatch(errors.PhaseDecode, []string{"params"}, goTypeName(f.Value), "list")
			}
			for _, elem := range list.Items {
				tup, ok := elem.(cgrf.Tuple)
				if !ok || len(tup.Items) != 2 {
					return fm, errors.TypeMismatch(errors.PhaseDecode, []string{"params"}, goTypeName(elem), "tuple<string,string>")
				}
				name, ok1 := tup.Items[0].(cgrf.String)
				typ, ok2 := tup.Items[1].(cgrf.String)
				if !ok1 || !ok2 {
					return fm, errors.TypeMismatch(errors.PhaseDecode, []string{"params"}, "non-string tuple element", "string")
				}
				fm.Params = append(fm.Params, ParamMetadata{Name: string(name), Type: string(typ)})
			}
		}
	}
	return fm, nil
}

func goTypeName(v cgrf.Value) string {
	return fmt.Sprintf("%T", v)
}
