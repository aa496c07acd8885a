package compiler

// DiagnosticKind tags the category of a compile failure, per spec.md §4.4.
type DiagnosticKind string

const (
	DiagMissingInput   DiagnosticKind = "missing-input"
	DiagRateMismatch   DiagnosticKind = "rate-mismatch"
	DiagUnknownOpcode  DiagnosticKind = "unknown-opcode"
	DiagCycle          DiagnosticKind = "cycle"
	DiagBadLiteral     DiagnosticKind = "bad-literal"
	DiagFormulaError   DiagnosticKind = "formula-error"
	DiagFanInAmbiguity DiagnosticKind = "fan-in-ambiguity"
)

// Diagnostic carries enough coordinates for a caller to locate the offending
// graph element, per spec.md §7.
type Diagnostic struct {
	Kind    DiagnosticKind
	NodeID  string
	PortID  string
	Message string
}

// sinkKey identifies the (node, port) a connection targets, used to group
// multiple inbound connections onto the same input for fan-in handling.
type sinkKey struct{ node, port string }
