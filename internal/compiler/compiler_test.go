package compiler

import (
	"testing"

	"github.com/schollz/orchestron/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func engineConfig() types.EngineConfig {
	return types.EngineConfig{SampleRate: 44100, ControlRate: 4410, Channels: 2, SoftBuffer: 256, HardBuffer: 1024, ZeroDBFS: 1}
}

// TestCompileThreeNodeGraph implements spec.md §8 scenario 1.
func TestCompileThreeNodeGraph(t *testing.T) {
	patch := types.Patch{
		Engine: engineConfig(),
		Nodes: []types.Node{
			{ID: "n1", OpcodeName: "const_k", Params: map[string]types.ParamValue{"value": types.NumberParam(440)}, CreatedAt: 0},
			{ID: "n2", OpcodeName: "oscili", Params: map[string]types.ParamValue{"amp": types.NumberParam(0.5), "ifn": types.NumberParam(1)}, CreatedAt: 1},
			{ID: "n3", OpcodeName: "outs", CreatedAt: 2},
		},
		Connections: []types.Connection{
			{FromNode: "n1", FromPort: "out", ToNode: "n2", ToPort: "freq"},
			{FromNode: "n2", FromPort: "out", ToNode: "n3", ToPort: "left"},
			{FromNode: "n2", FromPort: "out", ToNode: "n3", ToPort: "right"},
		},
	}

	prog, diags := Compile(patch, DefaultCatalog)
	require.Empty(t, diags)
	require.NotNil(t, prog)
	assert.Contains(t, prog.Body, "oscili")
	assert.Contains(t, prog.Body, "outs")
	assert.Equal(t, 1, strCount(prog.Body, "oscili"))
	assert.Equal(t, 1, strCount(prog.Body, "outs "))
}

// TestRejectRateMismatch implements spec.md §8 scenario 2.
func TestRejectRateMismatch(t *testing.T) {
	patch := types.Patch{
		Engine: engineConfig(),
		Nodes: []types.Node{
			{ID: "n1", OpcodeName: "const_a", Params: map[string]types.ParamValue{"value": types.NumberParam(1)}},
			{ID: "n2", OpcodeName: "iout"},
		},
		Connections: []types.Connection{
			{FromNode: "n1", FromPort: "out", ToNode: "n2", ToPort: "in"},
		},
	}

	prog, diags := Compile(patch, DefaultCatalog)
	require.Nil(t, prog)
	require.Len(t, diags, 1)
	assert.Equal(t, DiagRateMismatch, diags[0].Kind)
	assert.Equal(t, "n2", diags[0].NodeID)
}

// TestFormulaFanIn implements spec.md §8 scenario 5.
func TestFormulaFanIn(t *testing.T) {
	patch := types.Patch{
		Engine: engineConfig(),
		Nodes: []types.Node{
			{ID: "n1", OpcodeName: "const_k", Params: map[string]types.ParamValue{"value": types.NumberParam(10)}, CreatedAt: 0},
			{ID: "n2", OpcodeName: "const_k", Params: map[string]types.ParamValue{"value": types.NumberParam(20)}, CreatedAt: 1},
			{ID: "n3", OpcodeName: "oscili", Params: map[string]types.ParamValue{"amp": types.NumberParam(1), "ifn": types.NumberParam(1)}, CreatedAt: 2},
		},
		Connections: []types.Connection{
			{FromNode: "n1", FromPort: "out", ToNode: "n3", ToPort: "freq", Formula: "in1 + in2 * 2"},
			{FromNode: "n2", FromPort: "out", ToNode: "n3", ToPort: "freq", Formula: "in1 + in2 * 2"},
		},
	}

	prog, diags := Compile(patch, DefaultCatalog)
	require.Empty(t, diags)
	require.NotNil(t, prog)
	assert.Contains(t, prog.Body, "k0_out")
	assert.Contains(t, prog.Body, "k1_out")
}

func TestImplicitSumFanIn(t *testing.T) {
	patch := types.Patch{
		Engine: engineConfig(),
		Nodes: []types.Node{
			{ID: "n1", OpcodeName: "const_k", Params: map[string]types.ParamValue{"value": types.NumberParam(1)}, CreatedAt: 0},
			{ID: "n2", OpcodeName: "const_k", Params: map[string]types.ParamValue{"value": types.NumberParam(2)}, CreatedAt: 1},
			{ID: "n3", OpcodeName: "oscili", Params: map[string]types.ParamValue{"amp": types.NumberParam(1), "ifn": types.NumberParam(1)}, CreatedAt: 2},
		},
		Connections: []types.Connection{
			{FromNode: "n1", FromPort: "out", ToNode: "n3", ToPort: "freq"},
			{FromNode: "n2", FromPort: "out", ToNode: "n3", ToPort: "freq"},
		},
	}
	prog, diags := Compile(patch, DefaultCatalog)
	require.Empty(t, diags)
	assert.Contains(t, prog.Body, "k0_out + k1_out")
}

func TestMissingRequiredInput(t *testing.T) {
	patch := types.Patch{
		Engine: engineConfig(),
		Nodes: []types.Node{
			{ID: "n1", OpcodeName: "oscili", Params: map[string]types.ParamValue{"amp": types.NumberParam(1)}},
		},
	}
	_, diags := Compile(patch, DefaultCatalog)
	require.NotEmpty(t, diags)
	found := false
	for _, d := range diags {
		if d.Kind == DiagMissingInput && d.PortID == "freq" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestUnknownOpcode(t *testing.T) {
	patch := types.Patch{
		Engine: engineConfig(),
		Nodes:  []types.Node{{ID: "n1", OpcodeName: "not-real"}},
	}
	_, diags := Compile(patch, DefaultCatalog)
	require.Len(t, diags, 1)
	assert.Equal(t, DiagUnknownOpcode, diags[0].Kind)
}

// TestSelfLoopCycle implements spec.md §8 boundary behavior: a self-loop
// fails compile with a cycle diagnostic naming the offending node.
func TestSelfLoopCycle(t *testing.T) {
	patch := types.Patch{
		Engine: engineConfig(),
		Nodes: []types.Node{
			{ID: "n1", OpcodeName: "moogladder", Params: map[string]types.ParamValue{"cutoff": types.NumberParam(1000), "resonance": types.NumberParam(0.2)}},
		},
		Connections: []types.Connection{
			{FromNode: "n1", FromPort: "out", ToNode: "n1", ToPort: "ain"},
		},
	}
	_, diags := Compile(patch, DefaultCatalog)
	require.Len(t, diags, 1)
	assert.Equal(t, DiagCycle, diags[0].Kind)
	assert.Contains(t, diags[0].NodeID, "n1")
}

func TestCompileIsDeterministic(t *testing.T) {
	patch := types.Patch{
		Engine: engineConfig(),
		Nodes: []types.Node{
			{ID: "n1", OpcodeName: "const_k", Params: map[string]types.ParamValue{"value": types.NumberParam(440)}, CreatedAt: 0},
			{ID: "n2", OpcodeName: "oscili", Params: map[string]types.ParamValue{"amp": types.NumberParam(0.5), "ifn": types.NumberParam(1)}, CreatedAt: 1},
			{ID: "n3", OpcodeName: "outs", CreatedAt: 2},
		},
		Connections: []types.Connection{
			{FromNode: "n1", FromPort: "out", ToNode: "n2", ToPort: "freq"},
			{FromNode: "n2", FromPort: "out", ToNode: "n3", ToPort: "left"},
			{FromNode: "n2", FromPort: "out", ToNode: "n3", ToPort: "right"},
		},
	}
	p1, d1 := Compile(patch, DefaultCatalog)
	p2, d2 := Compile(patch, DefaultCatalog)
	require.Empty(t, d1)
	require.Empty(t, d2)
	assert.Equal(t, p1.Body, p2.Body)
	assert.Equal(t, EmitSingle(patch.Engine, p1), EmitSingle(patch.Engine, p2))
}

func TestBadLiteralRejected(t *testing.T) {
	patch := types.Patch{
		Engine: engineConfig(),
		Nodes: []types.Node{
			{ID: "n1", OpcodeName: "const_k", Params: map[string]types.ParamValue{"value": types.StringParam("440; system(\"rm -rf\")")}},
		},
	}
	_, diags := Compile(patch, DefaultCatalog)
	require.NotEmpty(t, diags)
	assert.Equal(t, DiagBadLiteral, diags[0].Kind)
}

func TestEmitIncludesMidiRouting(t *testing.T) {
	patch := types.Patch{
		Engine: engineConfig(),
		Nodes: []types.Node{
			{ID: "n1", OpcodeName: "const_k", Params: map[string]types.ParamValue{"value": types.NumberParam(1)}},
		},
	}
	prog, diags := Compile(patch, DefaultCatalog)
	require.Empty(t, diags)
	doc := EmitSingle(patch.Engine, prog)
	assert.Contains(t, doc, "sr = 44100")
	assert.Contains(t, doc, "massign 1, 1")
	assert.Contains(t, doc, "f 0 86400")
}

func strCount(s, substr string) int {
	count := 0
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			count++
		}
	}
	return count
}
