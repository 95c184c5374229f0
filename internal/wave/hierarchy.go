package wave

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// Scope is one level of the design hierarchy (module, task, function, ...).
type Scope struct {
	Name   string
	Kind   string
	Path   string
	Parent *Scope
	Scopes []*Scope
	Vars   []*Var
}

// Var is a declared variable. Several vars may share one signal ID.
type Var struct {
	Name  string
	Path  string
	Kind  string
	Width int
	Range string // declared bit select, e.g. "[31:0]"
	ID    string
	Scope *Scope
}

// Hierarchy is the scope tree of a waveform with a flat path index.
type Hierarchy struct {
	Top []*Scope

	byPath map[string]*Var
	vars   []*Var
}

func newHierarchy() *Hierarchy {
	return &Hierarchy{byPath: make(map[string]*Var)}
}

func joinPath(parent *Scope, name string) string {
	if parent == nil {
		return name
	}
	return parent.Path + "." + name
}

func (h *Hierarchy) addScope(parent *Scope, kind, name string) *Scope {
	s := &Scope{Name: name, Kind: kind, Path: joinPath(parent, name), Parent: parent}
	if parent == nil {
		h.Top = append(h.Top, s)
	} else {
		parent.Scopes = append(parent.Scopes, s)
	}
	return s
}

func (h *Hierarchy) addVar(parent *Scope, v *Var) {
	v.Scope = parent
	v.Path = joinPath(parent, v.Name)
	if parent != nil {
		parent.Vars = append(parent.Vars, v)
	}
	h.index(v.Path, v)
	// Array elements dumped as "rf_reg[3]" are also reachable as "rf_reg.[3]".
	if i := strings.IndexByte(v.Name, '['); i > 0 {
		h.index(joinPath(parent, v.Name[:i]+"."+v.Name[i:]), v)
	}
	h.vars = append(h.vars, v)
}

// index records path for v. First declaration wins when a dump repeats a path.
func (h *Hierarchy) index(path string, v *Var) {
	if _, dup := h.byPath[path]; !dup {
		h.byPath[path] = v
	}
}

// Lookup finds the variable at an exact dotted path.
func (h *Hierarchy) Lookup(path string) (*Var, bool) {
	v, ok := h.byPath[path]
	return v, ok
}

// Vars returns every declared variable in declaration order.
func (h *Hierarchy) Vars() []*Var {
	return h.vars
}

// Match lists the variables whose path matches a glob pattern. Path
// components are separated by '.', so "*" stays within one scope and "**"
// crosses scopes.
func (h *Hierarchy) Match(pattern string) ([]*Var, error) {
	g, err := glob.Compile(pattern, '.')
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	var out []*Var
	seen := make(map[*Var]bool)
	for path, v := range h.byPath {
		if !seen[v] && g.Match(path) {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

