package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eval(t *testing.T, src string, tokens []string, values map[string]float64) float64 {
	t.Helper()
	ast, err := Parse(src, tokens)
	require.NoError(t, err)
	v, err := Eval(ast, values)
	require.NoError(t, err)
	return v
}

func TestFanInFormula(t *testing.T) {
	// spec.md §8 scenario 5: in1 + in2 * 2 with in1=10, in2=20 -> 50
	got := eval(t, "in1 + in2 * 2", []string{"in1", "in2"}, map[string]float64{"in1": 10, "in2": 20})
	assert.Equal(t, 50.0, got)
}

func TestPrecedenceAndParens(t *testing.T) {
	got := eval(t, "(in1 + in2) * 2", []string{"in1", "in2"}, map[string]float64{"in1": 10, "in2": 20})
	assert.Equal(t, 60.0, got)
}

func TestUnaryMinus(t *testing.T) {
	got := eval(t, "-in1", []string{"in1"}, map[string]float64{"in1": 5})
	assert.Equal(t, -5.0, got)
}

func TestWhitelistedFunctions(t *testing.T) {
	got := eval(t, "min(in1, in2)", []string{"in1", "in2"}, map[string]float64{"in1": 3, "in2": 7})
	assert.Equal(t, 3.0, got)

	got = eval(t, "sqrt(in1)", []string{"in1"}, map[string]float64{"in1": 9})
	assert.Equal(t, 3.0, got)
}

func TestEmptyExpressionFails(t *testing.T) {
	_, err := Parse("", nil)
	require.Error(t, err)
	var fe *Error
	assert.ErrorAs(t, err, &fe)
}

func TestUnknownIdentifierFails(t *testing.T) {
	_, err := Parse("in1 + in3", []string{"in1", "in2"})
	require.Error(t, err)
}

func TestUnbalancedParensFails(t *testing.T) {
	_, err := Parse("(in1 + in2", []string{"in1", "in2"})
	require.Error(t, err)
}

func TestStrayCharacterFails(t *testing.T) {
	_, err := Parse("in1 $ in2", []string{"in1", "in2"})
	require.Error(t, err)
}

func TestNonWhitelistedFunctionFails(t *testing.T) {
	_, err := Parse("eval(in1)", []string{"in1"})
	require.Error(t, err)
}

func TestTrailingGarbageFails(t *testing.T) {
	_, err := Parse("in1 + in2)", []string{"in1", "in2"})
	require.Error(t, err)
}

func TestDivisionByZero(t *testing.T) {
	ast, err := Parse("in1 / in2", []string{"in1", "in2"})
	require.NoError(t, err)
	_, err = Eval(ast, map[string]float64{"in1": 1, "in2": 0})
	require.Error(t, err)
}

func TestStringRoundTrip(t *testing.T) {
	ast, err := Parse("in1 + in2 * 2", []string{"in1", "in2"})
	require.NoError(t, err)
	assert.Equal(t, "(in1 + (in2 * 2))", String(ast))
}
