package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/schollz/orchestron/internal/types"
)

// Instrument binds one compiled patch program to a MIDI channel within a
// multi-instrument session document.
type Instrument struct {
	Channel int // 0-based
	Program *Program
}

// EmitSingle wraps one compiled program as a single-channel engine document,
// per spec.md §4.4 step 6 and §6's compile output format. Used for
// standalone patch compiles outside a multi-patch session.
func EmitSingle(cfg types.EngineConfig, prog *Program) string {
	return Emit(cfg, []Instrument{{Channel: 0, Program: prog}})
}

// Emit produces the full engine document: header directives, one instrument
// per MIDI channel, a score block with GEN tables and the infinite-duration
// marker, and a MIDI options line routing every channel to its instrument.
func Emit(cfg types.EngineConfig, instruments []Instrument) string {
	sorted := make([]Instrument, len(instruments))
	copy(sorted, instruments)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Channel < sorted[j].Channel })

	var b strings.Builder
	fmt.Fprintf(&b, "sr = %d\n", cfg.SampleRate)
	fmt.Fprintf(&b, "ksmps = %d\n", cfg.Ksmps())
	fmt.Fprintf(&b, "nchnls = %d\n", cfg.Channels)
	fmt.Fprintf(&b, "0dbfs = %g\n", cfg.ZeroDBFS)
	b.WriteByte('\n')

	scoreLines := map[string]bool{}
	var orderedScore []string
	for _, inst := range sorted {
		instrNum := inst.Channel + 1
		fmt.Fprintf(&b, "instr %d\n", instrNum)
		b.WriteString(inst.Program.Body)
		b.WriteString("endin\n\n")
		for _, line := range inst.Program.ScoreLines {
			if !scoreLines[line] {
				scoreLines[line] = true
				orderedScore = append(orderedScore, line)
			}
		}
	}

	b.WriteString("; score\n")
	for _, line := range orderedScore {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	b.WriteString("; MIDI routing: every channel plays its matching instrument\n")
	for _, inst := range sorted {
		fmt.Fprintf(&b, "massign %d, %d\n", inst.Channel+1, inst.Channel+1)
	}

	return b.String()
}
