package transport

import "github.com/schollz/orchestron/internal/registry"

// opcodeDefinition is the wire shape of one GET /opcodes entry: the
// registry's internal Port/Opcode structs carry template-rendering detail
// (Template, Expansion, IsGenTable) a UI has no use for, so this trims to
// what the visual editor actually needs to draw a node and validate wiring.
type opcodeDefinition struct {
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Inputs   []opcodePort      `json:"inputs"`
	Outputs  []opcodePort      `json:"outputs"`
}

type opcodePort struct {
	ID            string      `json:"id"`
	Rate          string      `json:"rate"`
	AcceptedRates []string    `json:"accepted_rates,omitempty"`
	Required      bool        `json:"required"`
	HasDefault    bool        `json:"has_default"`
}

func opcodeDefinitions() []opcodeDefinition {
	catalog := registry.List()
	out := make([]opcodeDefinition, len(catalog))
	for i, op := range catalog {
		out[i] = opcodeDefinition{
			Name:     op.Name,
			Category: op.Category,
			Inputs:   opcodePorts(op.Inputs),
			Outputs:  opcodePorts(op.Outputs),
		}
	}
	return out
}

func opcodePorts(ports []registry.Port) []opcodePort {
	out := make([]opcodePort, len(ports))
	for i, p := range ports {
		out[i] = opcodePort{
			ID:         p.ID,
			Rate:       p.Rate.String(),
			Required:   p.Required,
			HasDefault: p.HasDefault,
		}
		for _, r := range p.AcceptedRates {
			out[i].AcceptedRates = append(out[i].AcceptedRates, r.String())
		}
	}
	return out
}
