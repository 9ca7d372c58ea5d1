package composer

import "github.com/composite-rt/composite/wasm"

// NamedModule is one input to a Composer: a core module identified by
// a name unique within the composition, used to address it from Wire
// and ExportDecl.
type NamedModule struct {
	Name   string
	Module *wasm.Module
}

// Wire maps one consumer module's import to a provider module's
// export (spec §3.5). ImportModule/ImportName must match the
// consumer's Import.Module/Import.Name exactly.
type Wire struct {
	Consumer     string
	ImportModule string
	ImportName   string
	Provider     string
	ExportName   string
}

// ExportDecl selects one merged export: PublicName is the name it
// gets in the merged module, SourceModule/InternalName identify the
// module and export name it's taken from.
type ExportDecl struct {
	PublicName   string
	SourceModule string
	InternalName string
}

// Composer holds the inputs to one static composition.
type Composer struct {
	Modules []NamedModule
	Wires   []Wire
	Exports []ExportDecl
}

// New creates an empty Composer.
func New() *Composer {
	return &Composer{}
}

// AddModule registers a named module.
func (c *Composer) AddModule(name string, m *wasm.Module) {
	c.Modules = append(c.Modules, NamedModule{Name: name, Module: m})
}

// AddWire registers a wire.
func (c *Composer) AddWire(w Wire) {
	c.Wires = append(c.Wires, w)
}

// AddExport registers a merged export.
func (c *Composer) AddExport(e ExportDecl) {
	c.Exports = append(c.Exports, e)
}
