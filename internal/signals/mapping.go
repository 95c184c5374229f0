package signals

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Mapping describes where a core's pc and register file live in a waveform.
//
//	name: ibex
//	pc: TOP.core.pc
//	gpr:
//	  template: TOP.core.rf.[{i}]
//	  count: 32
//	  bits: [0, 31]
//	extra:
//	  mcause: TOP.core.csr.mcause
type Mapping struct {
	Name  string            `yaml:"name"`
	PC    string            `yaml:"pc"`
	GPR   GPRMapping        `yaml:"gpr"`
	Extra map[string]string `yaml:"extra,omitempty"`
}

// GPRMapping locates the general-purpose registers. Template must contain
// "{i}", which is replaced by the register number.
type GPRMapping struct {
	Template string `yaml:"template"`
	Count    int    `yaml:"count"`
	// Bits is an optional inclusive [lo, hi] slice applied to every register.
	Bits []int `yaml:"bits,omitempty"`
}

// Path expands the template for register i.
func (g GPRMapping) Path(i int) string {
	return strings.ReplaceAll(g.Template, "{i}", strconv.Itoa(i))
}

// Validate reports every problem with the mapping at once.
func (m *Mapping) Validate() error {
	var errs []error
	if m.PC == "" {
		errs = append(errs, errors.New("pc: path is required"))
	}
	if !strings.Contains(m.GPR.Template, "{i}") {
		errs = append(errs, fmt.Errorf("gpr.template: %q has no {i} placeholder", m.GPR.Template))
	}
	if m.GPR.Count <= 0 || m.GPR.Count > GDBGPRCount {
		errs = append(errs, fmt.Errorf("gpr.count: %d out of range 1..%d", m.GPR.Count, GDBGPRCount))
	}
	if b := m.GPR.Bits; b != nil && (len(b) != 2 || b[0] < 0 || b[0] > b[1]) {
		errs = append(errs, fmt.Errorf("gpr.bits: %v is not a [lo, hi] range", b))
	}
	for name := range m.Extra {
		if name == "pc" || isGPRName(name) {
			errs = append(errs, fmt.Errorf("extra.%s: shadows a core signal", name))
		}
	}
	return errors.Join(errs...)
}

func isGPRName(name string) bool {
	if !strings.HasPrefix(name, "x") {
		return false
	}
	n, err := strconv.Atoi(name[1:])
	return err == nil && n >= 0 && n < GDBGPRCount
}

// ParseMapping decodes and validates a YAML mapping.
func ParseMapping(data []byte) (*Mapping, error) {
	var m Mapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse mapping: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mapping: %w", err)
	}
	return &m, nil
}

// LoadMapping reads a YAML mapping file.
func LoadMapping(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping: %w", err)
	}
	m, err := ParseMapping(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if m.Name == "" {
		m.Name = path
	}
	return m, nil
}

var builtins = map[string]Mapping{
	"ibex": {
		Name: "ibex",
		PC:   PCPath,
		GPR:  GPRMapping{Template: strings.Replace(gprPathFormat, "%d", "{i}", 1), Count: GDBGPRCount, Bits: []int{0, 31}},
	},
	"ibex-raw": {
		Name: "ibex-raw",
		PC:   PCPath,
		GPR:  GPRMapping{Template: strings.Replace(gprPathFormat, "%d", "{i}", 1), Count: plainGPRCount},
	},
}

// Builtin returns one of the compiled-in mappings: "ibex" matches
// GetGDBSignals and "ibex-raw" matches GetSignals.
func Builtin(name string) (*Mapping, error) {
	m, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown builtin mapping %q (have %s)", name, strings.Join(BuiltinNames(), ", "))
	}
	if m.GPR.Bits != nil {
		m.GPR.Bits = append([]int(nil), m.GPR.Bits...)
	}
	return &m, nil
}

// BuiltinNames lists the compiled-in mapping names.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveMapping looks up every signal a mapping names. Like GetSignals it
// returns the first failure and no partial result.
func ResolveMapping[S Slicer[S]](w Waveform[S], m *Mapping) (map[string]S, error) {
	out := make(map[string]S, m.GPR.Count+1+len(m.Extra))
	pc, err := lookup(w, "pc", m.PC)
	if err != nil {
		return nil, err
	}
	out["pc"] = pc
	for i := 0; i < m.GPR.Count; i++ {
		name := GPRName(i)
		sig, err := lookup(w, name, m.GPR.Path(i))
		if err != nil {
			return nil, err
		}
		if len(m.GPR.Bits) == 2 {
			if sig, err = sig.Slice(m.GPR.Bits[0], m.GPR.Bits[1]); err != nil {
				return nil, fmt.Errorf("slice %s: %w", name, err)
			}
		}
		out[name] = sig
	}
	extras := make([]string, 0, len(m.Extra))
	for name := range m.Extra {
		extras = append(extras, name)
	}
	sort.Strings(extras)
	for _, name := range extras {
		sig, err := lookup(w, name, m.Extra[name])
		if err != nil {
			return nil, err
		}
		out[name] = sig
	}
	return out, nil
}

// MissingSignalsError lists the core signals absent from a resolved map.
type MissingSignalsError struct {
	Missing []string
}

func (e *MissingSignalsError) Error() string {
	return "missing signals: " + strings.Join(e.Missing, ", ")
}

// RequireGDB checks that m holds everything a debugger needs: pc and
// x0..x31.
func RequireGDB[S any](m map[string]S) error {
	var missing []string
	if _, ok := m["pc"]; !ok {
		missing = append(missing, "pc")
	}
	for i := 0; i < GDBGPRCount; i++ {
		if _, ok := m[GPRName(i)]; !ok {
			missing = append(missing, GPRName(i))
		}
	}
	if len(missing) > 0 {
		return &MissingSignalsError{Missing: missing}
	}
	return nil
}
