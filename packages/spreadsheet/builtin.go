package spreadsheet

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// RandomGenerator interface provides random number generation for testing
type RandomGenerator interface {
	Float64() float64
}

// DefaultRandomGenerator uses the standard library's rand package
type DefaultRandomGenerator struct{}

func (d *DefaultRandomGenerator) Float64() float64 {
	return rand.Float64()
}

// Function receives the flattened argument values of a call
type Function func(values []float64) (float64, error)

// BuiltInFunctions is the function table consulted by the evaluator. names
// are matched case-insensitively.
type BuiltInFunctions struct {
	rng   RandomGenerator
	table map[string]Function
}

// NewDefaultBuiltInFunctions creates the standard function table
func NewDefaultBuiltInFunctions() *BuiltInFunctions {
	return NewBuiltInFunctions(&DefaultRandomGenerator{})
}

// NewBuiltInFunctions creates the standard function table with the given
// random source for RAND
func NewBuiltInFunctions(rng RandomGenerator) *BuiltInFunctions {
	bf := &BuiltInFunctions{rng: rng}
	bf.table = map[string]Function{
		"SUM":     SUM,
		"AVG":     AVERAGE,
		"AVERAGE": AVERAGE,
		"COUNT":   COUNT,
		"MIN":     MIN,
		"MAX":     MAX,
		"MEDIAN":  MEDIAN,
		"PRODUCT": PRODUCT,
		"SIN":     unary(math.Sin),
		"COS":     unary(math.Cos),
		"TAN":     unary(math.Tan),
		"ABS":     unary(math.Abs),
		"SQRT":    unary(math.Sqrt),
		"FLOOR":   unary(math.Floor),
		"CEILING": unary(math.Ceil),
		"ROUND":   ROUND,
		"POWER":   binary("POWER", math.Pow),
		"MOD":     binary("MOD", math.Mod),
		"PI":      PI,
		"RAND":    bf.RAND,
	}
	return bf
}

// Register adds or replaces a function
func (bf *BuiltInFunctions) Register(name string, fn Function) {
	bf.table[strings.ToUpper(name)] = fn
}

// Lookup finds a function by name, ignoring case
func (bf *BuiltInFunctions) Lookup(name string) (Function, bool) {
	fn, ok := bf.table[strings.ToUpper(name)]
	return fn, ok
}

// Names returns the registered function names, sorted
func (bf *BuiltInFunctions) Names() []string {
	names := make([]string, 0, len(bf.table))
	for name := range bf.table {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Call invokes a function by name with already flattened values
func (bf *BuiltInFunctions) Call(name string, values []float64) (float64, error) {
	fn, ok := bf.Lookup(name)
	if !ok {
		msg := fmt.Sprintf("unknown function: %s", name)
		if suggestion := bf.suggest(name); suggestion != "" {
			msg += fmt.Sprintf(" (did you mean %s?)", suggestion)
		}
		return 0, NewFormulaError(ErrorKindUnknownFunction, msg)
	}
	return fn(values)
}

// suggest returns the closest known function name, or ""
func (bf *BuiltInFunctions) suggest(name string) string {
	names := bf.Names()

	ranks := fuzzy.RankFindFold(name, names)
	if len(ranks) > 0 {
		sort.Sort(ranks)
		return ranks[0].Target
	}

	// typed name is longer than the real one, e.g. SUMM
	best, bestDistance := "", 3
	upper := strings.ToUpper(name)
	for _, candidate := range names {
		if d := fuzzy.LevenshteinDistance(upper, candidate); d < bestDistance {
			best, bestDistance = candidate, d
		}
	}
	return best
}

// unary applies fn to the first value only; an empty list yields 0
func unary(fn func(float64) float64) Function {
	return func(values []float64) (float64, error) {
		if len(values) == 0 {
			return 0, nil
		}
		return fn(values[0]), nil
	}
}

// binary applies fn to the first two values
func binary(name string, fn func(float64, float64) float64) Function {
	return func(values []float64) (float64, error) {
		if len(values) != 2 {
			return 0, NewFormulaError(ErrorKindValue,
				fmt.Sprintf("%s expects 2 arguments, got %d", name, len(values)))
		}
		return fn(values[0], values[1]), nil
	}
}

func SUM(values []float64) (float64, error) {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum, nil
}

// AVERAGE is also registered as AVG. an empty list yields 0 rather than a
// division error.
func AVERAGE(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	sum, _ := SUM(values)
	return sum / float64(len(values)), nil
}

func COUNT(values []float64) (float64, error) {
	return float64(len(values)), nil
}

func MIN(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	return slices.Min(values), nil
}

func MAX(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	return slices.Max(values), nil
}

func MEDIAN(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2, nil
	}
	return sorted[mid], nil
}

// PRODUCT of an empty list is 0, matching the other aggregates
func PRODUCT(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	product := 1.0
	for _, v := range values {
		product *= v
	}
	return product, nil
}

// ROUND rounds half away from zero to the given number of digits (0 when
// omitted)
func ROUND(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	digits := 0.0
	if len(values) > 1 {
		digits = math.Trunc(values[1])
	}
	scale := math.Pow(10, digits)
	return math.Round(values[0]*scale) / scale, nil
}

// PI ignores its arguments
func PI(values []float64) (float64, error) {
	return math.Pi, nil
}

func (bf *BuiltInFunctions) RAND(values []float64) (float64, error) {
	return bf.rng.Float64(), nil
}
