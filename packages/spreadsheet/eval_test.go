package spreadsheet

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEval(t *testing.T, formula string, store CellStore, opts ...EvalOption) float64 {
	t.Helper()
	v, err := EvaluateFormula(formula, store, opts...)
	require.NoError(t, err, formula)
	return v
}

func evalErr(t *testing.T, formula string, store CellStore) error {
	t.Helper()
	_, err := EvaluateFormula(formula, store)
	require.Error(t, err, formula)
	return err
}

func TestEvaluateArithmetic(t *testing.T) {
	tests := []struct {
		formula  string
		expected float64
	}{
		{"1+2*3", 7},
		{"(1+2)*3", 9},
		{"10/4", 2.5},
		{"7-2-1", 4},
		{"8/2/2", 2},
		{"2*3+4*5", 26},
		{"((2))", 2},
		{".5+.25", 0.75},
	}

	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			assert.Equal(t, tt.expected, mustEval(t, tt.formula, MapStore{}))
		})
	}
}

func TestEvaluateDivisionByZeroIsIEEE(t *testing.T) {
	assert.True(t, math.IsInf(mustEval(t, "1/0", MapStore{}), 1))
	assert.True(t, math.IsInf(mustEval(t, "0-1/0", MapStore{}), -1))
	assert.True(t, math.IsNaN(mustEval(t, "0/0", MapStore{})))
}

func TestEvaluateCellReferences(t *testing.T) {
	store := MapStore{
		{Column: 1, Row: 1}: "1",
		{Column: 1, Row: 2}: "2",
		{Column: 1, Row: 3}: "3",
		{Column: 2, Row: 1}: "hello",
		{Column: 2, Row: 2}: "   ",
		{Column: 2, Row: 3}: " 42 ",
		{Column: 3, Row: 1}: "=A1+A2",
		{Column: 3, Row: 2}: "=C1*10",
	}

	tests := []struct {
		formula  string
		expected float64
	}{
		{"A1", 1},
		{"A1+A2*A3", 7},
		{"B1+1", 1},  // text is zero
		{"B2+1", 1},  // whitespace is zero
		{"B3", 42},   // number with surrounding spaces
		{"Z99+1", 1}, // empty is zero
		{"C1", 3},
		{"C2", 30},
		{"c2/a3", 10},
	}

	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			assert.Equal(t, tt.expected, mustEval(t, tt.formula, store))
		})
	}
}

func TestEvaluateFunctions(t *testing.T) {
	store := MapStore{
		{Column: 1, Row: 1}: "1",
		{Column: 1, Row: 2}: "2",
		{Column: 1, Row: 3}: "3",
		{Column: 2, Row: 1}: "10",
		{Column: 2, Row: 2}: "=A3*2",
	}

	tests := []struct {
		formula  string
		expected float64
	}{
		{"SUM(A1:A3)", 6},
		{"AVG(A1:A3)", 2},
		{"AVERAGE(A1:A3)", 2},
		{"MAX(1,9,3)", 9},
		{"MIN(4,2,8)", 2},
		{"MAX(A1:B2)", 10},
		{"SUM(A1:B2)", 1 + 10 + 2 + 6},
		{"SUM(A1:A3, 4, A1)", 11},
		{"sum(1,2)", 3},
		{"Sum(A3:A1)", 6},
		{"SUM()", 0},
		{"AVG()", 0},
		{"MIN()", 0},
		{"MAX()", 0},
		{"SUM(C1:C5)", 0},
		{"AVG(C1:C5)", 0},
		{"SIN(0)", 0},
		{"COS(0)", 1},
		{"COS(0, 5)", 1},
		{"SIN()", 0},
		{"SUM(A1:A3)/COUNT(A1:A3)", 2},
		{"SUM(SUM(1,2),MAX(3,4))", 7},
	}

	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			assert.Equal(t, tt.expected, mustEval(t, tt.formula, store))
		})
	}
}

func TestAggregatesIgnoreWriteOrder(t *testing.T) {
	values := []string{"5", "-2", "9", "0.5"}
	forward := NewWorksheet()
	backward := NewWorksheet()
	for i, v := range values {
		require.NoError(t, forward.Set(Address{Column: 1, Row: i + 1}, v))
	}
	for i := len(values) - 1; i >= 0; i-- {
		require.NoError(t, backward.Set(Address{Column: 1, Row: i + 1}, values[i]))
	}

	for _, fn := range []string{"SUM", "AVG", "MIN", "MAX"} {
		formula := fn + "(A1:A4)"
		assert.Equal(t, mustEval(t, formula, forward), mustEval(t, formula, backward), formula)
	}
	assert.Equal(t, 12.5, mustEval(t, "SUM(A1:A4)", forward))
	assert.Equal(t, 3.125, mustEval(t, "AVG(A1:A4)", forward))
	assert.Equal(t, -2.0, mustEval(t, "MIN(A1:A4)", forward))
	assert.Equal(t, 9.0, mustEval(t, "MAX(A1:A4)", forward))
}

func TestEvaluateCircularReferences(t *testing.T) {
	tests := []struct {
		name  string
		store MapStore
		cell  string
	}{
		{"self", MapStore{{Column: 1, Row: 1}: "=A1"}, "A1"},
		{"pair", MapStore{{Column: 1, Row: 1}: "=B1", {Column: 2, Row: 1}: "=A1"}, "A1"},
		{"through range", MapStore{{Column: 1, Row: 3}: "=SUM(A1:A3)"}, "A3"},
		{"long chain", MapStore{
			{Column: 1, Row: 1}: "=A2+1",
			{Column: 1, Row: 2}: "=A3+1",
			{Column: 1, Row: 3}: "=MAX(0, A1)",
		}, "A1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := ParseAddress(tt.cell)
			require.NoError(t, err)

			ec := NewEvalContext(tt.store)
			_, err = ec.GetCellValue(addr)
			assert.True(t, errors.Is(err, ErrCircularReference), "got %v", err)
			assert.Empty(t, ec.visiting, "visiting-set must be empty after a failed evaluation")
			assert.Zero(t, ec.depth)
		})
	}
}

func TestEvaluateSharedReferenceIsNotACycle(t *testing.T) {
	store := MapStore{
		{Column: 1, Row: 1}: "=B1+B1+SUM(B1:B1)",
		{Column: 2, Row: 1}: "=C1",
		{Column: 3, Row: 1}: "1",
	}
	assert.Equal(t, 3.0, mustEval(t, "A1", store))
}

func TestEvaluateContextIsReusableAfterError(t *testing.T) {
	store := MapStore{
		{Column: 1, Row: 1}: "=B1",
		{Column: 2, Row: 1}: "=1+",
		{Column: 3, Row: 1}: "=A2+5",
	}
	ec := NewEvalContext(store)

	_, err := ec.GetCellValue(Address{Column: 1, Row: 1})
	require.True(t, errors.Is(err, ErrSyntax), "got %v", err)

	var fe *FormulaError
	require.True(t, errors.As(err, &fe))
	require.NotNil(t, fe.Cell)
	assert.Equal(t, "B1", fe.Cell.String(), "error points at the innermost failing cell")

	v, err := ec.GetCellValue(Address{Column: 3, Row: 1})
	require.NoError(t, err)
	assert.Equal(t, 5.0, v)
}

func TestEvaluateErrors(t *testing.T) {
	store := MapStore{
		{Column: 1, Row: 1}: "=A1",
		{Column: 1, Row: 2}: "=FOO(1)",
		{Column: 1, Row: 3}: "=1.2.3",
	}

	tests := []struct {
		formula string
		target  error
	}{
		{"FOO(1)", ErrUnknownFunction},
		{"foo(A1)", ErrUnknownFunction}, // arguments of unknown functions are never evaluated
		{"A2", ErrUnknownFunction},
		{"A1:A3", ErrValue},
		{"A1:A3+1", ErrValue},
		{"SUM(1, A1)", ErrCircularReference},
		{"A3", ErrNumberFormat},
		{"POWER(2)", ErrValue},
	}

	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			err := evalErr(t, tt.formula, store)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
		})
	}
}

func TestEvaluateMaxDepth(t *testing.T) {
	store := MapStore{}
	for row := 1; row < 10; row++ {
		store[Address{Column: 1, Row: row}] = fmt.Sprintf("=A%d", row+1)
	}
	store[Address{Column: 1, Row: 10}] = "1"

	_, err := EvaluateFormula("A1", store, WithMaxDepth(5))
	assert.True(t, errors.Is(err, ErrTooDeep), "got %v", err)

	assert.Equal(t, 1.0, mustEval(t, "A1", store, WithMaxDepth(10)))
}

func TestEvaluateDeepChainWithDefaultDepth(t *testing.T) {
	ws := NewWorksheet()
	const n = 2000
	for row := 1; row < n; row++ {
		require.NoError(t, ws.Set(Address{Column: 1, Row: row}, fmt.Sprintf("=A%d+1", row+1)))
	}
	require.NoError(t, ws.Set(Address{Column: 1, Row: n}, "1"))

	assert.Equal(t, float64(n), mustEval(t, "A1", ws))
}

func TestEvaluateTreeReuse(t *testing.T) {
	tree, err := Parse("A1*2")
	require.NoError(t, err)

	v1, err := Evaluate(tree, MapStore{{Column: 1, Row: 1}: "2"})
	require.NoError(t, err)
	v2, err := Evaluate(tree, MapStore{{Column: 1, Row: 1}: "5"})
	require.NoError(t, err)

	assert.Equal(t, 4.0, v1)
	assert.Equal(t, 10.0, v2)
}

func TestEvaluateWithCustomFunctions(t *testing.T) {
	functions := NewDefaultBuiltInFunctions()
	functions.Register("double", func(values []float64) (float64, error) {
		if len(values) == 0 {
			return 0, nil
		}
		return values[0] * 2, nil
	})

	assert.Equal(t, 8.0, mustEval(t, "DOUBLE(4)", MapStore{}, WithFunctions(functions)))

	_, err := EvaluateFormula("DOUBLE(4)", MapStore{})
	assert.True(t, errors.Is(err, ErrUnknownFunction))
}

func TestEvaluateLogsCycles(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.JSONFormatter{})

	store := MapStore{
		{Column: 1, Row: 1}: "=B1",
		{Column: 2, Row: 1}: "=A1",
	}
	_, err := EvaluateFormula("A1", store, WithLogger(logger))
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, `"msg":"evaluating formula cell"`)
	assert.Contains(t, out, `"msg":"circular reference detected"`)
	assert.Contains(t, out, `"cell":"A1"`)
}
