// Package compiler validates a patch's node/connection graph against the
// opcode registry and renders a self-contained orchestra+score document for
// the synthesis engine, per spec.md §4.4.
package compiler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/schollz/orchestron/internal/formula"
	"github.com/schollz/orchestron/internal/ratecompat"
	"github.com/schollz/orchestron/internal/registry"
	"github.com/schollz/orchestron/internal/types"
)

// Program is the rendered result of compiling one patch: an orchestra body
// (opcode lines, unwrapped by any instrument block) plus score lines for
// every GEN-table node.
type Program struct {
	Body       string
	ScoreLines []string
	VarNames   map[string]string // "<nodeID>:<portID>" -> engine variable name
}

// Catalog is the subset of the opcode registry the compiler depends on,
// narrowed to an interface so tests can substitute a fixture catalog.
type Catalog interface {
	Lookup(name string) (registry.Opcode, bool)
}

type defaultCatalog struct{}

func (defaultCatalog) Lookup(name string) (registry.Opcode, bool) { return registry.Lookup(name) }

// DefaultCatalog is the process-wide immutable opcode registry.
var DefaultCatalog Catalog = defaultCatalog{}

// ratePrefix assigns the deterministic per-rate variable prefix used by the
// naming scheme in spec.md §4.4 step 3.
func ratePrefix(r types.Rate) string {
	switch r {
	case types.RateInit:
		return "i"
	case types.RateControl:
		return "k"
	case types.RateAudio:
		return "a"
	case types.RateString:
		return "S"
	case types.RateFtable:
		return "f"
	default:
		return "x"
	}
}

type nodeIndex struct {
	node  types.Node
	order int // topological order position
}

// Compile validates patch against cat and, if valid, renders it. Any
// validation error is fatal for the compile; every collected diagnostic is
// returned together (never only the first). A nil Program accompanies a
// non-empty diagnostic list.
func Compile(patch types.Patch, cat Catalog) (*Program, []Diagnostic) {
	var diags []Diagnostic

	nodesByID := map[string]types.Node{}
	for _, n := range patch.Nodes {
		nodesByID[n.ID] = n
	}

	opcodes := map[string]registry.Opcode{}
	for _, n := range patch.Nodes {
		op, ok := cat.Lookup(n.OpcodeName)
		if !ok {
			diags = append(diags, Diagnostic{Kind: DiagUnknownOpcode, NodeID: n.ID, Message: fmt.Sprintf("unknown opcode %q", n.OpcodeName)})
			continue
		}
		opcodes[n.ID] = op
	}

	// connectionsBySink groups connections targeting the same (node,port).
	connectionsBySink := map[sinkKey][]types.Connection{}
	for _, c := range patch.Connections {
		connectionsBySink[sinkKey{c.ToNode, c.ToPort}] = append(connectionsBySink[sinkKey{c.ToNode, c.ToPort}], c)
	}

	// Validate connection endpoints, rate compatibility, and fan-in shape.
	for _, c := range patch.Connections {
		fromNode, ok := nodesByID[c.FromNode]
		if !ok {
			diags = append(diags, Diagnostic{Kind: DiagMissingInput, NodeID: c.ToNode, PortID: c.ToPort, Message: fmt.Sprintf("connection references unknown source node %q", c.FromNode)})
			continue
		}
		toNode, ok := nodesByID[c.ToNode]
		if !ok {
			diags = append(diags, Diagnostic{Kind: DiagMissingInput, NodeID: c.ToNode, PortID: c.ToPort, Message: fmt.Sprintf("connection references unknown sink node %q", c.ToNode)})
			continue
		}
		fromOp, ok := opcodes[fromNode.ID]
		if !ok {
			continue // already diagnosed as unknown-opcode
		}
		toOp, ok := opcodes[toNode.ID]
		if !ok {
			continue
		}
		srcPort, ok := fromOp.OutputPort(c.FromPort)
		if !ok {
			diags = append(diags, Diagnostic{Kind: DiagMissingInput, NodeID: c.FromNode, PortID: c.FromPort, Message: fmt.Sprintf("opcode %q has no output port %q", fromOp.Name, c.FromPort)})
			continue
		}
		sinkPort, ok := toOp.InputPort(c.ToPort)
		if !ok {
			diags = append(diags, Diagnostic{Kind: DiagMissingInput, NodeID: c.ToNode, PortID: c.ToPort, Message: fmt.Sprintf("opcode %q has no input port %q", toOp.Name, c.ToPort)})
			continue
		}
		if !ratecompat.Compatible(srcPort.Rate, sinkPort.Rate, sinkPort.AcceptedRates) {
			diags = append(diags, Diagnostic{
				Kind:    DiagRateMismatch,
				NodeID:  c.ToNode,
				PortID:  c.ToPort,
				Message: fmt.Sprintf("%s:%s (%s) cannot drive %s:%s (%s)", c.FromNode, c.FromPort, srcPort.Rate, c.ToNode, c.ToPort, sinkPort.Rate),
			})
		}
	}

	// Fan-in: a sink may carry more than one inbound connection only when a
	// formula is present (or the compiler treats it as an implicit sum).
	// Both shapes are legal; validate the formula grammar now so render-time
	// never encounters a bad formula.
	for key, conns := range connectionsBySink {
		if len(conns) <= 1 {
			continue
		}
		formulaText := ""
		for _, c := range conns {
			if c.Formula != "" {
				formulaText = c.Formula
				break
			}
		}
		if formulaText == "" {
			continue // implicit sum, nothing to validate
		}
		tokens := make([]string, len(conns))
		for i := range conns {
			tokens[i] = fmt.Sprintf("in%d", i+1)
		}
		if _, err := formula.Parse(formulaText, tokens); err != nil {
			diags = append(diags, Diagnostic{Kind: DiagFormulaError, NodeID: key.node, PortID: key.port, Message: err.Error()})
		}
	}

	// Required-input satisfaction and literal safety.
	for _, n := range patch.Nodes {
		op, ok := opcodes[n.ID]
		if !ok {
			continue
		}
		for _, port := range op.Inputs {
			conns := connectionsBySink[sinkKey{n.ID, port.ID}]
			_, hasParam := n.Params[port.ID]
			if len(conns) == 0 && !hasParam && !port.HasDefault && port.Required {
				diags = append(diags, Diagnostic{Kind: DiagMissingInput, NodeID: n.ID, PortID: port.ID, Message: fmt.Sprintf("required input %q not satisfied", port.ID)})
				continue
			}
			if len(conns) == 0 && hasParam {
				if err := validateLiteral(port, n.Params[port.ID]); err != nil {
					diags = append(diags, Diagnostic{Kind: DiagBadLiteral, NodeID: n.ID, PortID: port.ID, Message: err.Error()})
				}
			}
		}
	}

	// Cycle detection among non-delay nodes (the catalog never declares a
	// "delay" category opcode that would legitimately close a loop; every
	// opcode here participates in cycle detection).
	if order, err := topoSort(patch, nodesByID, opcodes); err != nil {
		diags = append(diags, err.(*cycleError).diagnostic())
	} else if len(diags) == 0 {
		return render(patch, order, opcodes, connectionsBySink)
	}

	return nil, diags
}

// validateLiteral enforces the conservative character whitelist for numeric
// literals rendered directly into a template, per spec.md §4.4 step 1.
func validateLiteral(port registry.Port, v types.ParamValue) error {
	if port.Rate == types.RateString {
		if v.Kind != types.ParamString {
			return fmt.Errorf("port expects a string literal")
		}
		return nil
	}
	var text string
	switch v.Kind {
	case types.ParamNumber:
		text = strconv.FormatFloat(v.Number, 'g', -1, 64)
	case types.ParamBool:
		if v.Flag {
			text = "1"
		} else {
			text = "0"
		}
	case types.ParamString:
		return fmt.Errorf("string literal not permitted for a non-string port")
	}
	const allowed = "0123456789+-.eE() \t*/"
	for _, r := range text {
		if !strings.ContainsRune(allowed, r) {
			return fmt.Errorf("literal %q contains a disallowed character %q", text, r)
		}
	}
	return nil
}

type cycleError struct {
	nodes []string
}

func (e *cycleError) Error() string { return "cycle detected" }
func (e *cycleError) diagnostic() Diagnostic {
	return Diagnostic{
		Kind:    DiagCycle,
		NodeID:  strings.Join(e.nodes, ","),
		Message: fmt.Sprintf("cycle detected among nodes: %s", strings.Join(e.nodes, ", ")),
	}
}

// topoSort orders nodes by dependency, tie-breaking by creation order for
// determinism, per spec.md §4.4 step 2.
func topoSort(patch types.Patch, nodesByID map[string]types.Node, opcodes map[string]registry.Opcode) ([]types.Node, error) {
	deps := map[string]map[string]bool{}
	for _, n := range patch.Nodes {
		deps[n.ID] = map[string]bool{}
	}
	for _, c := range patch.Connections {
		if _, ok := nodesByID[c.ToNode]; !ok {
			continue
		}
		if _, ok := nodesByID[c.FromNode]; !ok {
			continue
		}
		if c.FromNode == c.ToNode {
			continue // self-loop handled uniformly below
		}
		deps[c.ToNode][c.FromNode] = true
	}

	remaining := map[string]bool{}
	for _, n := range patch.Nodes {
		remaining[n.ID] = true
	}

	var order []types.Node
	for len(remaining) > 0 {
		var ready []types.Node
		for id := range remaining {
			ok := true
			for dep := range deps[id] {
				if remaining[dep] {
					ok = false
					break
				}
			}
			if ok {
				ready = append(ready, nodesByID[id])
			}
		}
		if len(ready) == 0 {
			var stuck []string
			for id := range remaining {
				stuck = append(stuck, id)
			}
			sort.Strings(stuck)
			return nil, &cycleError{nodes: stuck}
		}
		sort.Slice(ready, func(i, j int) bool { return ready[i].CreatedAt < ready[j].CreatedAt })
		order = append(order, ready[0])
		delete(remaining, ready[0].ID)
	}

	// also catch direct self-loops as cycles
	for _, c := range patch.Connections {
		if c.FromNode == c.ToNode {
			return nil, &cycleError{nodes: []string{c.FromNode}}
		}
	}

	return order, nil
}
