package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/schollz/orchestron/internal/formula"
	"github.com/schollz/orchestron/internal/registry"
	"github.com/schollz/orchestron/internal/types"
)

// render performs steps 3-5 of spec.md §4.4 (name, render, score) over an
// already-validated, topologically-ordered node list.
func render(patch types.Patch, order []types.Node, opcodes map[string]registry.Opcode, connectionsBySink map[sinkKey][]types.Connection) (*Program, []Diagnostic) {
	varNames := map[string]string{} // "<nodeID>:<portID>" -> var name
	nextGenTable := 1

	for idx, n := range order {
		op := opcodes[n.ID]
		if op.IsGenTable {
			continue // table handle assigned during score emission below
		}
		for _, out := range op.Outputs {
			varNames[n.ID+":"+out.ID] = fmt.Sprintf("%s%d_%s", ratePrefix(out.Rate), idx, out.ID)
		}
	}

	var scoreLines []string
	for _, n := range order {
		op := opcodes[n.ID]
		if !op.IsGenTable {
			continue
		}
		table := nextGenTable
		nextGenTable++
		fileParam := n.Params["file"]
		scoreLines = append(scoreLines, fmt.Sprintf("f %d 0 0 1 %q 0 0 0", table, fileParam.Text))
		for _, out := range op.Outputs {
			varNames[n.ID+":"+out.ID] = strconv.Itoa(table)
		}
	}
	// Infinite-duration marker: keeps the realtime performance alive well
	// beyond any session's practical lifetime.
	scoreLines = append(scoreLines, "f 0 86400")

	var body strings.Builder
	var diags []Diagnostic

	for _, n := range order {
		op := opcodes[n.ID]
		if op.IsGenTable {
			continue
		}

		subs := map[string]string{}
		for _, in := range op.Inputs {
			conns := connectionsBySink[sinkKey{n.ID, in.ID}]
			text, err := renderInput(n, in, conns, varNames)
			if err != nil {
				diags = append(diags, Diagnostic{Kind: DiagFormulaError, NodeID: n.ID, PortID: in.ID, Message: err.Error()})
				continue
			}
			subs[in.ID] = text
		}
		for _, out := range op.Outputs {
			subs[out.ID] = varNames[n.ID+":"+out.ID]
		}
		if len(op.Outputs) == 1 {
			subs["out"] = varNames[n.ID+":"+op.Outputs[0].ID]
		}

		body.WriteString(substitute(op.Template, subs))
		body.WriteByte('\n')
		for _, extra := range op.Expansion {
			body.WriteString(substitute(extra, subs))
			body.WriteByte('\n')
		}
	}

	if len(diags) > 0 {
		return nil, diags
	}

	return &Program{Body: body.String(), ScoreLines: scoreLines, VarNames: varNames}, nil
}

func renderInput(n types.Node, port registry.Port, conns []types.Connection, varNames map[string]string) (string, error) {
	switch len(conns) {
	case 0:
		if v, ok := n.Params[port.ID]; ok {
			return formatLiteral(v), nil
		}
		return formatLiteral(port.Default), nil
	case 1:
		return varNames[conns[0].FromNode+":"+conns[0].FromPort], nil
	default:
		formulaText := ""
		for _, c := range conns {
			if c.Formula != "" {
				formulaText = c.Formula
				break
			}
		}
		tokens := make([]string, len(conns))
		values := map[string]string{}
		for i, c := range conns {
			tok := fmt.Sprintf("in%d", i+1)
			tokens[i] = tok
			values[tok] = varNames[c.FromNode+":"+c.FromPort]
		}
		if formulaText == "" {
			// Implicit sum, in connection-list order.
			return strings.Join(mapValues(tokens, values), " + "), nil
		}
		ast, err := formula.Parse(formulaText, tokens)
		if err != nil {
			return "", err
		}
		return substituteFormula(ast, values), nil
	}
}

func mapValues(tokens []string, values map[string]string) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = values[t]
	}
	return out
}

// substituteFormula renders a formula AST back to orchestra text, replacing
// each token leaf with its resolved engine variable name rather than the
// formula's symbolic in1/in2 placeholder.
func substituteFormula(n *formula.Node, values map[string]string) string {
	switch n.Kind {
	case formula.NodeNumber:
		return strconv.FormatFloat(n.Number, 'g', -1, 64)
	case formula.NodeToken:
		return values[n.Token]
	case formula.NodeUnary:
		return string(n.Op) + substituteFormula(n.Children[0], values)
	case formula.NodeBinary:
		return "(" + substituteFormula(n.Children[0], values) + " " + string(n.Op) + " " + substituteFormula(n.Children[1], values) + ")"
	case formula.NodeCall:
		parts := make([]string, len(n.Children))
		for i, c := range n.Children {
			parts[i] = substituteFormula(c, values)
		}
		return n.Func + "(" + strings.Join(parts, ", ") + ")"
	}
	return ""
}

func formatLiteral(v types.ParamValue) string {
	switch v.Kind {
	case types.ParamNumber:
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	case types.ParamBool:
		if v.Flag {
			return "1"
		}
		return "0"
	case types.ParamString:
		return strconv.Quote(v.Text)
	}
	return "0"
}

func substitute(template string, subs map[string]string) string {
	var b strings.Builder
	i := 0
	for i < len(template) {
		if template[i] == '{' {
			j := i + 1
			for j < len(template) && template[j] != '}' {
				j++
			}
			if j < len(template) {
				key := template[i+1 : j]
				b.WriteString(subs[key])
				i = j + 1
				continue
			}
		}
		b.WriteByte(template[i])
		i++
	}
	return b.String()
}
