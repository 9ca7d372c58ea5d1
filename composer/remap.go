package composer

import (
	"fmt"

	"github.com/composite-rt/composite/errors"
	"github.com/composite-rt/composite/wasm"
)

// idxMap remaps old per-module indices (imports-then-defined, as the
// module itself encodes them) to indices in the merged module's index
// space for one kind (func, table, memory, or global).
type idxMap map[uint32]uint32

func (m idxMap) get(old uint32) (uint32, bool) {
	v, ok := m[old]
	return v, ok
}

// moduleState is the per-module bookkeeping built up across the
// composer's index-renumbering phases.
type moduleState struct {
	name    string
	mod     *wasm.Module
	types   idxMap
	funcs   idxMap
	tables  idxMap
	mems    idxMap
	globals idxMap
	data    idxMap
	elems   idxMap

	// wiredFuncs etc record which old import indices are satisfied
	// internally rather than kept as merged-module imports.
	wiredFuncs   map[uint32]*Wire
	wiredTables  map[uint32]*Wire
	wiredMems    map[uint32]*Wire
	wiredGlobals map[uint32]*Wire
}

func newModuleState(nm NamedModule) *moduleState {
	return &moduleState{
		name:         nm.Name,
		mod:          nm.Module,
		types:        idxMap{},
		funcs:        idxMap{},
		tables:       idxMap{},
		mems:         idxMap{},
		globals:      idxMap{},
		data:         idxMap{},
		elems:        idxMap{},
		wiredFuncs:   map[uint32]*Wire{},
		wiredTables:  map[uint32]*Wire{},
		wiredMems:    map[uint32]*Wire{},
		wiredGlobals: map[uint32]*Wire{},
	}
}

func (s *moduleState) wiredFor(kind byte) map[uint32]*Wire {
	switch kind {
	case wasm.KindFunc:
		return s.wiredFuncs
	case wasm.KindTable:
		return s.wiredTables
	case wasm.KindMemory:
		return s.wiredMems
	case wasm.KindGlobal:
		return s.wiredGlobals
	default:
		return nil
	}
}

func (s *moduleState) remapFor(kind byte) idxMap {
	switch kind {
	case wasm.KindFunc:
		return s.funcs
	case wasm.KindTable:
		return s.tables
	case wasm.KindMemory:
		return s.mems
	case wasm.KindGlobal:
		return s.globals
	default:
		return nil
	}
}

// plan holds every module's remap tables plus the merged sections
// accumulated while building them.
type plan struct {
	states  map[string]*moduleState
	order   []*moduleState // load order
	imports []wasm.Import  // merged external imports, in assignment order
	types   []wasm.FuncType
	funcs   []uint32 // merged type indices, one per defined (non-import) function
	tables  []wasm.TableType
	mems    []wasm.MemoryType
	globals []wasm.Global
	data    []wasm.DataSegment
	elems   []wasm.Element

	// owner slices, parallel to funcs/globals/data/elems, identify
	// which module's remap tables to rewrite each entry's embedded
	// instructions/expressions through, in a pass run after every
	// index space (including wiring) is fully resolved.
	funcBodies  []wasm.FuncBody
	funcOwners  []*moduleState
	globalOwners []*moduleState
	dataOwners  []*moduleState
	elemOwners  []*moduleState
}

func buildPlan(c *Composer) (*plan, error) {
	if err := validateWires(c); err != nil {
		return nil, err
	}
	if err := checkAcyclic(c.Modules, c.Wires); err != nil {
		return nil, err
	}

	p := &plan{states: make(map[string]*moduleState, len(c.Modules))}
	for _, nm := range c.Modules {
		st := newModuleState(nm)
		p.states[nm.Name] = st
		p.order = append(p.order, st)
	}

	classifyWires(p, c.Wires)

	p.remapTypes()
	p.remapDataAndElem()
	p.remapImportedKind(wasm.KindFunc)
	p.remapImportedKind(wasm.KindTable)
	p.remapImportedKind(wasm.KindMemory)
	p.remapImportedKind(wasm.KindGlobal)
	p.remapDefinedKind(wasm.KindFunc)
	p.remapDefinedKind(wasm.KindTable)
	p.remapDefinedKind(wasm.KindMemory)
	p.remapDefinedKind(wasm.KindGlobal)

	if err := p.resolveWiring(); err != nil {
		return nil, err
	}
	return p, nil
}

// validateWires checks every Wire and ExportDecl references modules,
// imports, and exports that actually exist, with matching kinds.
func validateWires(c *Composer) error {
	byName := make(map[string]*wasm.Module, len(c.Modules))
	for _, nm := range c.Modules {
		if _, dup := byName[nm.Name]; dup {
			return errors.InvalidInput(errors.PhaseCompose, fmt.Sprintf("duplicate module name %q", nm.Name))
		}
		byName[nm.Name] = nm.Module
	}

	for _, w := range c.Wires {
		consumer, ok := byName[w.Consumer]
		if !ok {
			return errors.NotFound(errors.PhaseCompose, "consumer module", w.Consumer)
		}
		provider, ok := byName[w.Provider]
		if !ok {
			return errors.NotFound(errors.PhaseCompose, "provider module", w.Provider)
		}
		imp := findImport(consumer, w.ImportModule, w.ImportName)
		if imp == nil {
			return errors.NotFound(errors.PhaseCompose, fmt.Sprintf("import %q.%q on module %q", w.ImportModule, w.ImportName, w.Consumer), w.ImportName)
		}
		exp := findExport(provider, w.ExportName)
		if exp == nil {
			return errors.NotFound(errors.PhaseCompose, fmt.Sprintf("export on module %q", w.Provider), w.ExportName)
		}
		if imp.Desc.Kind != exp.Kind {
			return errors.InvalidInput(errors.PhaseCompose, fmt.Sprintf(
				"wire %s.%s -> %s.%s: kind mismatch", w.Consumer, w.ImportName, w.Provider, w.ExportName))
		}
	}

	for _, e := range c.Exports {
		mod, ok := byName[e.SourceModule]
		if !ok {
			return errors.NotFound(errors.PhaseCompose, "export source module", e.SourceModule)
		}
		if findExport(mod, e.InternalName) == nil {
			return errors.NotFound(errors.PhaseCompose, fmt.Sprintf("export on module %q", e.SourceModule), e.InternalName)
		}
	}
	return nil
}

func findImport(m *wasm.Module, modName, name string) *wasm.Import {
	for i := range m.Imports {
		if m.Imports[i].Module == modName && m.Imports[i].Name == name {
			return &m.Imports[i]
		}
	}
	return nil
}

func findExport(m *wasm.Module, name string) *wasm.Export {
	for i := range m.Exports {
		if m.Exports[i].Name == name {
			return &m.Exports[i]
		}
	}
	return nil
}

// classifyWires records, for every wired import, which old index of
// which kind it occupies in its consumer module.
func classifyWires(p *plan, wires []Wire) {
	for i := range wires {
		w := &wires[i]
		consumer := p.states[w.Consumer]
		imp := findImport(consumer.mod, w.ImportModule, w.ImportName)
		oldIdx := importRank(consumer.mod, imp)
		consumer.wiredFor(imp.Desc.Kind)[oldIdx] = w
	}
}

// importRank returns imp's 0-based index among imports of its own
// kind, i.e. its old index in that kind's index space.
func importRank(m *wasm.Module, imp *wasm.Import) uint32 {
	var rank uint32
	for i := range m.Imports {
		if &m.Imports[i] == imp {
			return rank
		}
		if m.Imports[i].Desc.Kind == imp.Desc.Kind {
			rank++
		}
	}
	return rank
}

func importsOfKind(m *wasm.Module, kind byte) []*wasm.Import {
	var out []*wasm.Import
	for i := range m.Imports {
		if m.Imports[i].Desc.Kind == kind {
			out = append(out, &m.Imports[i])
		}
	}
	return out
}

func (p *plan) remapTypes() {
	for _, st := range p.order {
		for i, ft := range st.mod.Types {
			newIdx := uint32(len(p.types))
			p.types = append(p.types, ft)
			st.types[uint32(i)] = newIdx
		}
	}
}

// remapDataAndElem assigns fresh merged indices to every data and
// element segment, in load order. Neither space has an import
// concept, so this is a single pass like remapTypes.
func (p *plan) remapDataAndElem() {
	for _, st := range p.order {
		for i := range st.mod.Data {
			st.data[uint32(i)] = uint32(len(p.data))
			p.data = append(p.data, st.mod.Data[i])
			p.dataOwners = append(p.dataOwners, st)
		}
		for i := range st.mod.Elements {
			st.elems[uint32(i)] = uint32(len(p.elems))
			p.elems = append(p.elems, st.mod.Elements[i])
			p.elemOwners = append(p.elemOwners, st)
		}
	}
}

// remapImportedKind is phase 4a: assign fresh merged indices to every
// external (non-wired) import of kind, across modules in load order.
func (p *plan) remapImportedKind(kind byte) {
	for _, st := range p.order {
		imports := importsOfKind(st.mod, kind)
		wired := st.wiredFor(kind)
		remap := st.remapFor(kind)
		for rank, imp := range imports {
			oldIdx := uint32(rank)
			if _, isWired := wired[oldIdx]; isWired {
				continue
			}
			newIdx := p.nextIdx(kind)
			remap[oldIdx] = newIdx
			p.appendMergedImport(st, kind, imp)
		}
	}
}

// remapDefinedKind is phase 4b: assign fresh merged indices to every
// defined (non-imported) item of kind, across modules in load order.
func (p *plan) remapDefinedKind(kind byte) {
	for _, st := range p.order {
		remap := st.remapFor(kind)
		numImported := countImportsOfKind(st.mod, kind)
		switch kind {
		case wasm.KindFunc:
			for i, typeIdx := range st.mod.Funcs {
				oldIdx := numImported + uint32(i)
				newIdx := p.nextIdx(kind)
				remap[oldIdx] = newIdx
				newTypeIdx, _ := st.types.get(typeIdx)
				p.funcs = append(p.funcs, newTypeIdx)
				p.funcBodies = append(p.funcBodies, st.mod.Code[i])
				p.funcOwners = append(p.funcOwners, st)
			}
		case wasm.KindTable:
			for i, t := range st.mod.Tables {
				oldIdx := numImported + uint32(i)
				remap[oldIdx] = p.nextIdx(kind)
				p.tables = append(p.tables, t)
			}
		case wasm.KindMemory:
			for i, mem := range st.mod.Memories {
				oldIdx := numImported + uint32(i)
				remap[oldIdx] = p.nextIdx(kind)
				p.mems = append(p.mems, mem)
			}
		case wasm.KindGlobal:
			for i, g := range st.mod.Globals {
				oldIdx := numImported + uint32(i)
				remap[oldIdx] = p.nextIdx(kind)
				p.globals = append(p.globals, g) // Init rewritten in a later pass
				p.globalOwners = append(p.globalOwners, st)
			}
		}
	}
}

func countImportsOfKind(m *wasm.Module, kind byte) uint32 {
	var n uint32
	for i := range m.Imports {
		if m.Imports[i].Desc.Kind == kind {
			n++
		}
	}
	return n
}

func (p *plan) nextIdx(kind byte) uint32 {
	switch kind {
	case wasm.KindFunc:
		return uint32(countImportKindSoFar(p.imports, kind) + len(p.funcs))
	case wasm.KindTable:
		return uint32(countImportKindSoFar(p.imports, kind) + len(p.tables))
	case wasm.KindMemory:
		return uint32(countImportKindSoFar(p.imports, kind) + len(p.mems))
	case wasm.KindGlobal:
		return uint32(countImportKindSoFar(p.imports, kind) + len(p.globals))
	default:
		return 0
	}
}

func countImportKindSoFar(imports []wasm.Import, kind byte) int {
	n := 0
	for i := range imports {
		if imports[i].Desc.Kind == kind {
			n++
		}
	}
	return n
}

func (p *plan) appendMergedImport(st *moduleState, kind byte, imp *wasm.Import) {
	merged := *imp
	if kind == wasm.KindFunc {
		newType, _ := st.types.get(imp.Desc.TypeIdx)
		merged.Desc.TypeIdx = newType
	}
	p.imports = append(p.imports, merged)
}

// resolveWiring fills in every wired import's remap entry by copying
// its provider's already-resolved export index, in an order where
// every provider a wire points to is resolved before its consumer
// (guaranteed by the DAG check already run).
func (p *plan) resolveWiring() error {
	order := topoOrderProvidersFirst(p)
	for _, st := range order {
		for _, kind := range []byte{wasm.KindFunc, wasm.KindTable, wasm.KindMemory, wasm.KindGlobal} {
			wired := st.wiredFor(kind)
			remap := st.remapFor(kind)
			for oldIdx, w := range wired {
				provider := p.states[w.Provider]
				exp := findExport(provider.mod, w.ExportName)
				providerRemap := provider.remapFor(exp.Kind)
				newIdx, ok := providerRemap.get(exp.Idx)
				if !ok {
					return errors.UnresolvedName(errors.PhaseCompose, fmt.Sprintf("%s.%s", w.Provider, w.ExportName))
				}
				remap[oldIdx] = newIdx
			}
		}
	}
	return nil
}

// topoOrderProvidersFirst returns modules ordered so that every
// provider precedes every module that wires against it.
func topoOrderProvidersFirst(p *plan) []*moduleState {
	edges := make(map[string][]string)
	for _, st := range p.order {
		for _, wired := range []map[uint32]*Wire{st.wiredFuncs, st.wiredTables, st.wiredMems, st.wiredGlobals} {
			for _, w := range wired {
				edges[st.name] = append(edges[st.name], w.Provider)
			}
		}
	}

	visited := make(map[string]bool, len(p.order))
	var out []*moduleState
	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		for _, dep := range edges[name] {
			visit(dep)
		}
		out = append(out, p.states[name])
	}
	for _, st := range p.order {
		visit(st.name)
	}
	return out
}
