package linker

import (
	"strings"
	"sync"

	"github.com/tetratelabs/wazero/api"
)

// Version is a semantic version used for namespace compatibility
// matching (spec §4.5's versioned interface paths).
type Version struct {
	Major uint32
	Minor uint32
	Patch uint32
}

// ParseVersion parses a version string like "0.2.0" or "0.2".
func ParseVersion(s string) (Version, bool) {
	if s == "" {
		return Version{}, false
	}

	var v Version
	parts := strings.Split(s, ".")
	if len(parts) < 1 || len(parts) > 3 {
		return Version{}, false
	}

	for i, p := range parts {
		if p == "" {
			return Version{}, false
		}
		var n uint32
		for _, c := range p {
			if c < '0' || c > '9' {
				return Version{}, false
			}
			if n > 429496729 || (n == 429496729 && c > '5') {
				return Version{}, false
			}
			n = n*10 + uint32(c-'0')
		}
		switch i {
		case 0:
			v.Major = n
		case 1:
			v.Minor = n
		case 2:
			v.Patch = n
		}
	}
	return v, true
}

// Compatible returns true if v can satisfy an import asking for want:
// same major version, and v is not older than want.
func (v Version) Compatible(want Version) bool {
	if v.Major != want.Major {
		return false
	}
	if v.Minor < want.Minor {
		return false
	}
	if v.Minor == want.Minor && v.Patch < want.Patch {
		return false
	}
	return true
}

// String returns "major.minor.patch".
func (v Version) String() string {
	return strings.Join([]string{
		uintToStr(v.Major),
		uintToStr(v.Minor),
		uintToStr(v.Patch),
	}, ".")
}

func uintToStr(n uint32) string {
	if n == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// FuncDef is a registered host function with its core wasm signature.
type FuncDef struct {
	Name        string
	Handler     api.GoModuleFunc
	ParamTypes  []api.ValueType
	ResultTypes []api.ValueType
}

// Namespace is a hierarchical, optionally-versioned node in the host
// function tree: a path segment like "myapp:api", "v1" or "v1@0.2.0".
type Namespace struct {
	version  *Version
	funcs    map[string]*FuncDef
	children map[string]*Namespace
	parent   *Namespace
	name     string
	mu       sync.RWMutex
}

// NewNamespace creates a root namespace.
func NewNamespace() *Namespace {
	return &Namespace{
		funcs:    make(map[string]*FuncDef),
		children: make(map[string]*Namespace),
	}
}

// Name returns this namespace's own path segment, unversioned.
func (ns *Namespace) Name() string {
	return ns.name
}

// Version returns this namespace's version, or nil if unversioned.
func (ns *Namespace) Version() *Version {
	return ns.version
}

// FullPath reconstructs the full dotted/slashed namespace path, e.g.
// "myapp:api/v1@0.2.0".
func (ns *Namespace) FullPath() string {
	if ns.parent == nil {
		return ns.name
	}
	parentPath := ns.parent.FullPath()
	suffix := ns.name
	if ns.version != nil {
		suffix += "@" + ns.version.String()
	}
	if parentPath == "" {
		return suffix
	}
	return parentPath + "/" + suffix
}

// Instance returns or creates a child namespace, parsing an optional
// "@version" suffix off name.
func (ns *Namespace) Instance(name string) *Namespace {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	parsedName, version := parseNameVersion(name)

	var key string
	if version != nil {
		key = parsedName + "@" + version.String()
	} else {
		key = parsedName
	}

	if child, ok := ns.children[key]; ok {
		return child
	}

	child := &Namespace{
		name:     parsedName,
		version:  version,
		funcs:    make(map[string]*FuncDef),
		children: make(map[string]*Namespace),
		parent:   ns,
	}
	ns.children[key] = child
	return child
}

// DefineFunc registers a host function in this namespace, overwriting
// any existing function of the same name.
func (ns *Namespace) DefineFunc(name string, fn api.GoModuleFunc, params, results []api.ValueType) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	ns.funcs[name] = &FuncDef{
		Name:        name,
		Handler:     fn,
		ParamTypes:  params,
		ResultTypes: results,
	}
}

// GetFunc returns a function by name, or nil if not found.
func (ns *Namespace) GetFunc(name string) *FuncDef {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.funcs[name]
}

// GetChild returns a child namespace by name, or nil if not found.
func (ns *Namespace) GetChild(name string) *Namespace {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.children[name]
}

// Resolve looks up "ns/path#func" with semver-compatible matching.
func (ns *Namespace) Resolve(path string) *FuncDef {
	return ns.ResolveWithSemver(path, true)
}

// ResolveExact looks up "ns/path#func" requiring an exact version match.
func (ns *Namespace) ResolveExact(path string) *FuncDef {
	return ns.ResolveWithSemver(path, false)
}

// ResolveWithSemver looks up "ns/path#func", optionally falling back to
// the newest semver-compatible namespace when no exact version match
// exists.
func (ns *Namespace) ResolveWithSemver(path string, semverMatching bool) *FuncDef {
	idx := strings.LastIndex(path, "#")
	if idx < 0 {
		return nil
	}
	nsPath := path[:idx]
	funcName := path[idx+1:]

	target := ns.resolveNamespace(nsPath, semverMatching)
	if target == nil {
		return nil
	}
	return target.GetFunc(funcName)
}

func (ns *Namespace) resolveNamespace(path string, semverMatching bool) *Namespace {
	if path == "" {
		return ns
	}

	segments := parseNamespacePath(path)
	current := ns

	for _, seg := range segments {
		current.mu.RLock()

		if child, ok := current.children[seg.name]; ok && seg.version == nil {
			current.mu.RUnlock()
			current = child
			continue
		}

		if seg.version != nil {
			versionedName := seg.name + "@" + seg.version.String()
			if child, ok := current.children[versionedName]; ok {
				current.mu.RUnlock()
				current = child
				continue
			}

			if semverMatching {
				var bestMatch *Namespace
				var bestVersion *Version
				for key, child := range current.children {
					if !strings.HasPrefix(key, seg.name+"@") {
						continue
					}
					if child.version != nil && child.version.Compatible(*seg.version) {
						if bestVersion == nil || child.version.Minor > bestVersion.Minor ||
							(child.version.Minor == bestVersion.Minor && child.version.Patch > bestVersion.Patch) {
							bestMatch = child
							bestVersion = child.version
						}
					}
				}
				if bestMatch != nil {
					current.mu.RUnlock()
					current = bestMatch
					continue
				}
			}
		}

		current.mu.RUnlock()
		return nil
	}

	return current
}

// AllFuncs returns a snapshot of every function defined directly in
// this namespace.
func (ns *Namespace) AllFuncs() map[string]*FuncDef {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	result := make(map[string]*FuncDef, len(ns.funcs))
	for k, v := range ns.funcs {
		result[k] = v
	}
	return result
}

// AllChildren returns a snapshot of every direct child namespace.
func (ns *Namespace) AllChildren() map[string]*Namespace {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	result := make(map[string]*Namespace, len(ns.children))
	for k, v := range ns.children {
		result[k] = v
	}
	return result
}

type pathSegment struct {
	version *Version
	name    string
}

// parseNamespacePath parses "myapp:api/v1@0.2.0" into segments,
// keeping the "ns:pkg" package prefix together with its first segment.
func parseNamespacePath(path string) []pathSegment {
	var segments []pathSegment

	colonIdx := strings.Index(path, ":")
	if colonIdx > 0 {
		slashIdx := strings.Index(path[colonIdx:], "/")
		if slashIdx > 0 {
			first := path[:colonIdx+slashIdx]
			segments = append(segments, parseSingleSegment(first))
			path = path[colonIdx+slashIdx+1:]
		} else {
			segments = append(segments, parseSingleSegment(path))
			return segments
		}
	}

	for _, part := range strings.Split(path, "/") {
		if part != "" {
			segments = append(segments, parseSingleSegment(part))
		}
	}

	return segments
}

func parseSingleSegment(s string) pathSegment {
	name, version := parseNameVersion(s)
	return pathSegment{name: name, version: version}
}

func parseNameVersion(s string) (string, *Version) {
	idx := strings.LastIndex(s, "@")
	if idx < 0 {
		return s, nil
	}
	name := s[:idx]
	versionStr := s[idx+1:]
	if v, ok := ParseVersion(versionStr); ok {
		return name, &v
	}
	return s, nil
}
