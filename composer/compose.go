package composer

import (
	"fmt"

	"github.com/composite-rt/composite/errors"
	"github.com/composite-rt/composite/wasm"
)

// Compose runs the full static composition algorithm (spec §4.6) and
// returns the merged module.
func Compose(c *Composer) (*wasm.Module, error) {
	p, err := buildPlan(c)
	if err != nil {
		return nil, err
	}

	merged := &wasm.Module{
		Types:    p.types,
		Imports:  p.imports,
		Funcs:    p.funcs,
		Tables:   p.tables,
		Memories: p.mems,
		Globals:  make([]wasm.Global, len(p.globals)),
		Data:     make([]wasm.DataSegment, len(p.data)),
		Elements: make([]wasm.Element, len(p.elems)),
		Code:     make([]wasm.FuncBody, len(p.funcBodies)),
	}

	for i, body := range p.funcBodies {
		rewritten, err := rewriteExpr(p.funcOwners[i], body.Code)
		if err != nil {
			return nil, err
		}
		merged.Code[i] = wasm.FuncBody{Locals: body.Locals, Code: rewritten}
	}

	for i, g := range p.globals {
		rewritten, err := rewriteExpr(p.globalOwners[i], g.Init)
		if err != nil {
			return nil, err
		}
		merged.Globals[i] = wasm.Global{Type: g.Type, Init: rewritten}
	}

	for i, d := range p.data {
		st := p.dataOwners[i]
		out := d
		if d.Flags != 1 { // passive segments (flag 1) carry no offset expr or memory index
			rewritten, err := rewriteExpr(st, d.Offset)
			if err != nil {
				return nil, err
			}
			out.Offset = rewritten
			newMem, err := mustRemap(st, wasm.KindMemory, d.MemIdx)
			if err != nil {
				return nil, err
			}
			out.MemIdx = newMem
			if newMem != 0 {
				out.Flags = 2 // promote the memidx-0 shorthand once memory 0 no longer means this module's memory 0
			}
		}
		merged.Data[i] = out
	}

	for i, e := range p.elems {
		st := p.elemOwners[i]
		out := e
		active := e.Flags == 0 || e.Flags == 2 || e.Flags == 4 || e.Flags == 6
		if active {
			rewritten, err := rewriteExpr(st, e.Offset)
			if err != nil {
				return nil, err
			}
			out.Offset = rewritten
			newTable, err := mustRemap(st, wasm.KindTable, e.TableIdx)
			if err != nil {
				return nil, err
			}
			out.TableIdx = newTable
			if newTable != 0 {
				switch e.Flags {
				case 0:
					out.Flags = 2
				case 4:
					out.Flags = 6
				}
			}
		}
		if len(e.FuncIdxs) > 0 {
			out.FuncIdxs = make([]uint32, len(e.FuncIdxs))
			for j, fn := range e.FuncIdxs {
				newFn, err := mustRemap(st, wasm.KindFunc, fn)
				if err != nil {
					return nil, err
				}
				out.FuncIdxs[j] = newFn
			}
		}
		if len(e.Exprs) > 0 {
			out.Exprs = make([][]byte, len(e.Exprs))
			for j, expr := range e.Exprs {
				rewritten, err := rewriteExpr(st, expr)
				if err != nil {
					return nil, err
				}
				out.Exprs[j] = rewritten
			}
		}
		merged.Elements[i] = out
	}

	var startCount int
	for _, st := range p.order {
		if st.mod.Start != nil {
			startCount++
			newIdx, err := mustRemap(st, wasm.KindFunc, *st.mod.Start)
			if err != nil {
				return nil, err
			}
			if startCount > 1 {
				return nil, errors.Unsupported(errors.PhaseCompose, "more than one input module declares a start function")
			}
			merged.Start = &newIdx
		}
	}

	for _, e := range c.Exports {
		provider := p.states[e.SourceModule]
		exp := findExport(provider.mod, e.InternalName)
		remap := provider.remapFor(exp.Kind)
		newIdx, ok := remap.get(exp.Idx)
		if !ok {
			return nil, errors.UnresolvedName(errors.PhaseCompose, fmt.Sprintf("%s.%s", e.SourceModule, e.InternalName))
		}
		merged.Exports = append(merged.Exports, wasm.Export{
			Name: e.PublicName,
			Kind: exp.Kind,
			Idx:  newIdx,
		})
	}

	return merged, nil
}
