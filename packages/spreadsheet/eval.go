package spreadsheet

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultMaxDepth bounds how many formula cells may be nested while one
// top-level evaluation is running
const DefaultMaxDepth = 4096

// EvalContext evaluates expression trees against a CellStore. it owns the
// visiting-set for exactly one top-level evaluation, so independent
// evaluations never share state. an EvalContext must not be used from more
// than one goroutine at a time.
type EvalContext struct {
	store     CellStore
	functions *BuiltInFunctions
	logger    logrus.FieldLogger
	maxDepth  int
	parse     func(string) (Node, error)

	visiting map[Address]struct{}
	depth    int
}

// EvalOption configures an EvalContext
type EvalOption func(*EvalContext)

// WithLogger sets the logger used for evaluation tracing
func WithLogger(logger logrus.FieldLogger) EvalOption {
	return func(ec *EvalContext) {
		if logger != nil {
			ec.logger = logger
		}
	}
}

// WithMaxDepth sets the reference depth limit. values < 1 keep the default.
func WithMaxDepth(depth int) EvalOption {
	return func(ec *EvalContext) {
		if depth > 0 {
			ec.maxDepth = depth
		}
	}
}

// WithFunctions replaces the function table
func WithFunctions(functions *BuiltInFunctions) EvalOption {
	return func(ec *EvalContext) {
		if functions != nil {
			ec.functions = functions
		}
	}
}

// WithFormulaCache parses formula cells through cache instead of parsing
// them on every read
func WithFormulaCache(cache *FormulaCache) EvalOption {
	return func(ec *EvalContext) {
		if cache != nil {
			ec.parse = cache.Parse
		}
	}
}

var (
	defaultFunctions = NewDefaultBuiltInFunctions()
	discardLogger    = newDiscardLogger()
)

func newDiscardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return l
}

// NewEvalContext creates an evaluation context over store
func NewEvalContext(store CellStore, opts ...EvalOption) *EvalContext {
	ec := &EvalContext{
		store:     store,
		functions: defaultFunctions,
		logger:    discardLogger,
		maxDepth:  DefaultMaxDepth,
		parse:     Parse,
		visiting:  make(map[Address]struct{}),
	}
	for _, opt := range opts {
		opt(ec)
	}
	return ec
}

// Evaluate evaluates tree against store with a fresh visiting-set
func Evaluate(tree Node, store CellStore, opts ...EvalOption) (float64, error) {
	return NewEvalContext(store, opts...).EvalTree(tree)
}

// EvalTree evaluates a node to a number. binary operands are evaluated
// left before right and use IEEE arithmetic, so 1/0 is +Inf, not an error.
func (ec *EvalContext) EvalTree(node Node) (float64, error) {
	switch n := node.(type) {
	case *NumberNode:
		return n.Value, nil

	case *CellRefNode:
		return ec.GetCellValue(n.Address)

	case *RangeNode:
		return 0, newPositionedError(ErrorKindValue, n.Position.Start,
			"range %s used where a number was expected", n.Range)

	case *BinaryOpNode:
		left, err := ec.EvalTree(n.Left)
		if err != nil {
			return 0, err
		}
		right, err := ec.EvalTree(n.Right)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case BinOpAdd:
			return left + right, nil
		case BinOpSubtract:
			return left - right, nil
		case BinOpMultiply:
			return left * right, nil
		case BinOpDivide:
			return left / right, nil
		}
		return 0, fmt.Errorf("unknown binary operator %d", n.Op)

	case *FunctionCallNode:
		return ec.ApplyFunction(n.Name, n.Args)

	case nil:
		return 0, NewFormulaError(ErrorKindSyntax, "empty expression")
	}

	return 0, fmt.Errorf("unknown node type %T", node)
}

// enter marks addr as being resolved. the returned release func must run
// on every exit path; callers defer it.
func (ec *EvalContext) enter(addr Address) (release func(), err error) {
	if _, ok := ec.visiting[addr]; ok {
		ec.logger.WithField("cell", addr.String()).Warn("circular reference detected")
		return nil, &FormulaError{
			Kind:    ErrorKindCircularReference,
			Message: fmt.Sprintf("circular reference at %s", addr),
			Pos:     -1,
			Cell:    &addr,
		}
	}
	if ec.depth >= ec.maxDepth {
		return nil, &FormulaError{
			Kind:    ErrorKindTooDeep,
			Message: fmt.Sprintf("reference chain deeper than %d cells", ec.maxDepth),
			Pos:     -1,
			Cell:    &addr,
		}
	}

	ec.visiting[addr] = struct{}{}
	ec.depth++
	return func() {
		delete(ec.visiting, addr)
		ec.depth--
	}, nil
}

// GetCellValue resolves the numeric value of a cell. empty and text cells
// count as 0; formula cells are re-parsed and evaluated recursively.
func (ec *EvalContext) GetCellValue(addr Address) (float64, error) {
	release, err := ec.enter(addr)
	if err != nil {
		return 0, err
	}
	defer release()

	raw := ec.store.GetRaw(addr)
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}

	content := ClassifyContent(raw)
	switch content.Type {
	case CellValueTypeFormula:
		ec.logger.WithFields(logrus.Fields{
			"cell":    addr.String(),
			"formula": content.Formula(),
			"depth":   ec.depth,
		}).Debug("evaluating formula cell")

		tree, err := ec.parse(content.Formula())
		if err != nil {
			return 0, attachCell(err, addr)
		}
		value, err := ec.EvalTree(tree)
		if err != nil {
			return 0, attachCell(err, addr)
		}
		return value, nil

	case CellValueTypeNumber:
		return content.Number, nil
	}

	return 0, nil
}

// ApplyFunction flattens args and calls the named function. a range
// argument expands row-major into the value of every cell it covers; any
// other argument is evaluated as a scalar.
func (ec *EvalContext) ApplyFunction(name string, args []Node) (float64, error) {
	if _, ok := ec.functions.Lookup(name); !ok {
		// unknown names fail before any argument is evaluated
		return ec.functions.Call(name, nil)
	}

	values := make([]float64, 0, len(args))
	for _, arg := range args {
		if rn, ok := arg.(*RangeNode); ok {
			for addr := range rn.Range.Addresses() {
				v, err := ec.GetCellValue(addr)
				if err != nil {
					return 0, err
				}
				values = append(values, v)
			}
			continue
		}

		v, err := ec.EvalTree(arg)
		if err != nil {
			return 0, err
		}
		values = append(values, v)
	}

	return ec.functions.Call(name, values)
}

// EvaluateFormula parses and evaluates formula text against store. a
// leading '=' is optional.
func EvaluateFormula(formula string, store CellStore, opts ...EvalOption) (float64, error) {
	tree, err := Parse(strings.TrimPrefix(formula, FormulaPrefix))
	if err != nil {
		return 0, err
	}
	return Evaluate(tree, store, opts...)
}
