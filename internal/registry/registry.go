// Package registry is the immutable opcode catalog injected at startup: a
// fixed set of port-typed node definitions the patch compiler renders
// against. It never interprets opcode semantics beyond rate/type metadata.
package registry

import (
	"fmt"
	"sort"

	"github.com/schollz/orchestron/internal/types"
)

// Port describes one input or output of an opcode definition.
type Port struct {
	ID            string
	Rate          types.Rate
	AcceptedRates []types.Rate
	Required      bool
	HasDefault    bool
	Default       types.ParamValue
}

// Opcode is one catalog entry: its ports, render template, and category.
type Opcode struct {
	Name       string
	Category   string
	Inputs     []Port
	Outputs    []Port
	Template   string   // references input ids and "out"/output ids as {placeholder}
	Expansion  []string // optional additional orchestra lines emitted after Template
	IsGenTable bool     // true for meta-opcodes that emit a score GEN line instead of an orchestra line
}

func (o Opcode) InputPort(id string) (Port, bool) {
	for _, p := range o.Inputs {
		if p.ID == id {
			return p, true
		}
	}
	return Port{}, false
}

func (o Opcode) OutputPort(id string) (Port, bool) {
	for _, p := range o.Outputs {
		if p.ID == id {
			return p, true
		}
	}
	return Port{}, false
}

// catalog is the fixed opcode set. Every name is unique, every port id
// within an opcode is unique, and every required input either has no
// default or a default that does not make omission ambiguous.
var catalog = []Opcode{
	{
		Name:     "const_k",
		Category: "source",
		Inputs: []Port{
			{ID: "value", Rate: types.RateInit, Required: false, HasDefault: true, Default: types.NumberParam(0)},
		},
		Outputs:  []Port{{ID: "out", Rate: types.RateControl}},
		Template: "{out} = {value}",
	},
	{
		Name:     "const_a",
		Category: "source",
		Inputs: []Port{
			{ID: "value", Rate: types.RateInit, Required: false, HasDefault: true, Default: types.NumberParam(0)},
		},
		Outputs:  []Port{{ID: "out", Rate: types.RateAudio}},
		Template: "{out} = {value}",
	},
	{
		Name:     "oscili",
		Category: "generator",
		Inputs: []Port{
			{ID: "amp", Rate: types.RateControl, AcceptedRates: []types.Rate{types.RateAudio}, Required: true},
			{ID: "freq", Rate: types.RateControl, AcceptedRates: []types.Rate{types.RateAudio}, Required: true},
			{ID: "ifn", Rate: types.RateInit, Required: true},
		},
		Outputs:  []Port{{ID: "out", Rate: types.RateAudio}},
		Template: "{out} oscili {amp}, {freq}, {ifn}",
	},
	{
		Name:     "outs",
		Category: "output",
		Inputs: []Port{
			{ID: "left", Rate: types.RateAudio, Required: true},
			{ID: "right", Rate: types.RateAudio, Required: true},
		},
		Template: "outs {left}, {right}",
	},
	{
		Name:     "iout",
		Category: "diagnostic",
		Inputs: []Port{
			{ID: "in", Rate: types.RateInit, Required: true},
		},
		Template: "iout {in}",
	},
	{
		Name:     "gen_soundfile",
		Category: "table",
		Inputs: []Port{
			{ID: "file", Rate: types.RateString, Required: true},
		},
		Outputs:    []Port{{ID: "ifn", Rate: types.RateFtable}},
		IsGenTable: true,
	},
	{
		Name:     "line",
		Category: "control",
		Inputs: []Port{
			{ID: "start", Rate: types.RateInit, Required: true},
			{ID: "dur", Rate: types.RateInit, Required: true},
			{ID: "end", Rate: types.RateInit, Required: true},
		},
		Outputs:  []Port{{ID: "out", Rate: types.RateControl}},
		Template: "{out} line {start}, {dur}, {end}",
	},
	{
		Name:     "moogladder",
		Category: "filter",
		Inputs: []Port{
			{ID: "ain", Rate: types.RateAudio, Required: true},
			{ID: "cutoff", Rate: types.RateControl, AcceptedRates: []types.Rate{types.RateAudio}, Required: true},
			{ID: "resonance", Rate: types.RateControl, Required: false, HasDefault: true, Default: types.NumberParam(0)},
		},
		Outputs:  []Port{{ID: "out", Rate: types.RateAudio}},
		Template: "{out} moogladder {ain}, {cutoff}, {resonance}",
	},
}

func init() {
	if err := Validate(); err != nil {
		panic(fmt.Sprintf("registry: invalid built-in catalog: %v", err))
	}
}

// Validate enforces the registry's guarantees: unique opcode names, unique
// port ids per opcode, unambiguous required-input defaults, and template
// placeholders that are exactly the union of input ids plus "out" for every
// declared output.
func Validate() error {
	seenNames := map[string]bool{}
	for _, op := range catalog {
		if seenNames[op.Name] {
			return fmt.Errorf("duplicate opcode name %q", op.Name)
		}
		seenNames[op.Name] = true

		seenPorts := map[string]bool{}
		for _, p := range op.Inputs {
			if seenPorts[p.ID] {
				return fmt.Errorf("opcode %q: duplicate input port id %q", op.Name, p.ID)
			}
			seenPorts[p.ID] = true
			if p.Required && p.HasDefault {
				return fmt.Errorf("opcode %q: required port %q carries a default, ambiguous on omission", op.Name, p.ID)
			}
		}
		for _, p := range op.Outputs {
			if seenPorts[p.ID] {
				return fmt.Errorf("opcode %q: output port id %q collides with an input", op.Name, p.ID)
			}
			seenPorts[p.ID] = true
		}

		if op.IsGenTable {
			continue // gen-table meta-opcodes emit score lines, not a templated orchestra line
		}
		if err := validateTemplate(op); err != nil {
			return err
		}
	}
	return nil
}

func validateTemplate(op Opcode) error {
	want := map[string]bool{}
	for _, p := range op.Inputs {
		want[p.ID] = true
	}
	for _, p := range op.Outputs {
		want[p.ID] = true
	}
	got := placeholdersIn(op.Template)
	for _, ph := range got {
		if !want[ph] {
			return fmt.Errorf("opcode %q: template references undeclared placeholder %q", op.Name, ph)
		}
		delete(want, ph)
	}
	// "out" may stand for a single unnamed output conventionally named "out";
	// everything else declared must appear.
	for id := range want {
		if id == "out" {
			continue
		}
		return fmt.Errorf("opcode %q: declared port %q never referenced by template", op.Name, id)
	}
	return nil
}

func placeholdersIn(template string) []string {
	var out []string
	i := 0
	for i < len(template) {
		if template[i] == '{' {
			j := i + 1
			for j < len(template) && template[j] != '}' {
				j++
			}
			if j < len(template) {
				out = append(out, template[i+1:j])
				i = j + 1
				continue
			}
		}
		i++
	}
	return out
}

// List returns every opcode definition, ordered by name for determinism.
func List() []Opcode {
	out := make([]Opcode, len(catalog))
	copy(out, catalog)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the opcode definition for name, or false if unknown.
func Lookup(name string) (Opcode, bool) {
	for _, op := range catalog {
		if op.Name == name {
			return op, true
		}
	}
	return Opcode{}, false
}

// Categories returns the distinct category tags present in the catalog, in
// first-seen order.
func Categories() []string {
	seen := map[string]bool{}
	var out []string
	for _, op := range catalog {
		if !seen[op.Category] {
			seen[op.Category] = true
			out = append(out, op.Category)
		}
	}
	return out
}
