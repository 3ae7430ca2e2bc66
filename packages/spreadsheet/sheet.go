package spreadsheet

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// AppErrorCode represents gRPC-style error codes for application-level errors.
// note that we are skipping error codes that don't make sense for our use-case,
// like unauthenticated, or permission denied.
type AppErrorCode int

const (
	// OK indicates the operation completed successfully.
	OK AppErrorCode = 0

	// Unknown error.
	Unknown AppErrorCode = 2

	// InvalidArgument indicates client specified an invalid argument, such
	// as an address or range that does not parse.
	InvalidArgument AppErrorCode = 3

	// NotFound means some requested entity (e.g. a sheet file) was not found.
	NotFound AppErrorCode = 5

	// FailedPrecondition indicates operation was rejected because the
	// system is not in a state required for the operation's execution.
	FailedPrecondition AppErrorCode = 9

	// Internal errors. Means some invariants expected by underlying
	// system has been broken.
	Internal AppErrorCode = 13
)

var appErrorCodeNames = map[AppErrorCode]string{
	OK:                 "OK",
	Unknown:            "Unknown",
	InvalidArgument:    "InvalidArgument",
	NotFound:           "NotFound",
	FailedPrecondition: "FailedPrecondition",
	Internal:           "Internal",
}

func (c AppErrorCode) String() string {
	if name, ok := appErrorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("AppErrorCode(%d)", int(c))
}

// AppError represents errors at the application level (not formula
// errors). Err holds the underlying cause, if any.
type AppError struct {
	Code    AppErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewApplicationError creates a new application error
func NewApplicationError(code AppErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// AppErrorCodeOf returns the code of the first AppError in err's chain, or
// Unknown
func AppErrorCodeOf(err error) AppErrorCode {
	if err == nil {
		return OK
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return Unknown
}

// CellResult is the evaluated value of one cell, or the failure that
// prevented it
type CellResult struct {
	Address Address
	Value   float64
	Err     error
}

// Display renders the result for a value table: the number, or the
// error's short code
func (r CellResult) Display() string {
	if r.Err != nil {
		if kind := KindOf(r.Err); kind != 0 {
			return kind.Code()
		}
		return "#ERROR!"
	}
	return FormatValue(r.Value)
}

// FormatValue prints a number in its shortest exact form ("6", "0.5")
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Spreadsheet combines the worksheet, address codecs and evaluator into a
// single API addressed by text references like "B7"
type Spreadsheet struct {
	worksheet   *Worksheet
	functions   *BuiltInFunctions
	formulas    *FormulaCache
	logger      logrus.FieldLogger
	maxDepth    int
	lenientRefs bool
}

// SheetOption configures a Spreadsheet
type SheetOption func(*Spreadsheet)

// WithSheetLogger sets the logger for the spreadsheet and its evaluations
func WithSheetLogger(logger logrus.FieldLogger) SheetOption {
	return func(s *Spreadsheet) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSheetMaxDepth sets the reference depth limit for evaluations
func WithSheetMaxDepth(depth int) SheetOption {
	return func(s *Spreadsheet) {
		s.maxDepth = depth
	}
}

// WithLenientAddresses makes text references parse with
// ParseAddressLenient instead of ParseAddress
func WithLenientAddresses(lenient bool) SheetOption {
	return func(s *Spreadsheet) {
		s.lenientRefs = lenient
	}
}

// WithSheetFunctions replaces the function table
func WithSheetFunctions(functions *BuiltInFunctions) SheetOption {
	return func(s *Spreadsheet) {
		if functions != nil {
			s.functions = functions
		}
	}
}

// WithFormulaCacheSize shares parsed trees between reads of the same
// formula text, up to size entries. without it every read re-parses; size
// < 1 turns caching off again.
func WithFormulaCacheSize(size int) SheetOption {
	return func(s *Spreadsheet) {
		if size < 1 {
			s.formulas = nil
			return
		}
		s.formulas = NewFormulaCache(size)
	}
}

// NewSpreadsheet creates an empty spreadsheet
func NewSpreadsheet(opts ...SheetOption) *Spreadsheet {
	return NewSpreadsheetFrom(NewWorksheet(), opts...)
}

// NewSpreadsheetFrom wraps an existing worksheet, e.g. one loaded from disk
func NewSpreadsheetFrom(ws *Worksheet, opts ...SheetOption) *Spreadsheet {
	s := &Spreadsheet{
		worksheet: ws,
		functions: defaultFunctions,
		logger:    discardLogger,
		maxDepth:  DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Worksheet returns the underlying store
func (s *Spreadsheet) Worksheet() *Worksheet {
	return s.worksheet
}

// ParseRef parses a text reference with the spreadsheet's address policy
func (s *Spreadsheet) ParseRef(ref string) (Address, error) {
	parse := ParseAddress
	if s.lenientRefs {
		parse = ParseAddressLenient
	}
	addr, err := parse(ref)
	if err != nil {
		return Address{}, &AppError{
			Code:    InvalidArgument,
			Message: fmt.Sprintf("invalid address %q", ref),
			Err:     err,
		}
	}
	return addr, nil
}

// ParseRangeRef parses "<ref>:<ref>" with the spreadsheet's address policy.
// a single reference is accepted as a one-cell range.
func (s *Spreadsheet) ParseRangeRef(ref string) (Range, error) {
	if !s.lenientRefs {
		if r, err := ParseRange(ref); err == nil {
			return r, nil
		}
		if addr, err := ParseAddress(ref); err == nil {
			return NewRange(addr, addr), nil
		}
		return Range{}, &AppError{
			Code:    InvalidArgument,
			Message: fmt.Sprintf("invalid range %q", ref),
			Err:     NewFormulaError(ErrorKindInvalidRange, fmt.Sprintf("invalid range: %q", ref)),
		}
	}

	parts := strings.Split(ref, ":")
	if len(parts) > 2 {
		return Range{}, &AppError{
			Code:    InvalidArgument,
			Message: fmt.Sprintf("invalid range %q", ref),
			Err:     NewFormulaError(ErrorKindInvalidRange, fmt.Sprintf("invalid range: %q", ref)),
		}
	}
	a, err := s.ParseRef(parts[0])
	if err != nil {
		return Range{}, err
	}
	b, err := s.ParseRef(parts[len(parts)-1])
	if err != nil {
		return Range{}, err
	}
	return NewRange(a, b), nil
}

func (s *Spreadsheet) evalContext() *EvalContext {
	return NewEvalContext(s.worksheet,
		WithLogger(s.logger),
		WithMaxDepth(s.maxDepth),
		WithFunctions(s.functions),
		WithFormulaCache(s.formulas),
	)
}

// FormulaCache returns the parsed-formula cache, or nil when caching is
// disabled
func (s *Spreadsheet) FormulaCache() *FormulaCache {
	return s.formulas
}

// Set stores raw text at ref. formulas are not validated here.
func (s *Spreadsheet) Set(ref, raw string) error {
	addr, err := s.ParseRef(ref)
	if err != nil {
		return err
	}
	return s.SetCell(addr, raw)
}

// SetCell stores raw text at addr. "" clears the cell.
func (s *Spreadsheet) SetCell(addr Address, raw string) error {
	if err := s.worksheet.Set(addr, raw); err != nil {
		return &AppError{Code: InvalidArgument, Message: "cannot set cell", Err: err}
	}
	s.logger.WithFields(logrus.Fields{
		"cell": addr.String(),
		"type": ClassifyContent(raw).Type.String(),
	}).Debug("cell set")
	return nil
}

// GetRaw returns the raw text stored at ref
func (s *Spreadsheet) GetRaw(ref string) (string, error) {
	addr, err := s.ParseRef(ref)
	if err != nil {
		return "", err
	}
	return s.worksheet.GetRaw(addr), nil
}

// Get evaluates the cell at ref
func (s *Spreadsheet) Get(ref string) (float64, error) {
	addr, err := s.ParseRef(ref)
	if err != nil {
		return 0, err
	}
	return s.GetCell(addr)
}

// GetCell evaluates the cell at addr with a fresh visiting-set
func (s *Spreadsheet) GetCell(addr Address) (float64, error) {
	return s.evalContext().GetCellValue(addr)
}

// EvaluateFormula evaluates ad-hoc formula text against the sheet. the
// leading '=' is optional.
func (s *Spreadsheet) EvaluateFormula(formula string) (float64, error) {
	tree, err := Parse(strings.TrimPrefix(formula, FormulaPrefix))
	if err != nil {
		return 0, err
	}
	return s.evalContext().EvalTree(tree)
}

// RangeRaw returns the raw text of every cell in the range, one slice per
// row
func (s *Spreadsheet) RangeRaw(ref string) ([][]string, error) {
	r, err := s.ParseRangeRef(ref)
	if err != nil {
		return nil, err
	}
	var rows [][]string
	for line := range r.Rows() {
		row := make([]string, len(line))
		for i, addr := range line {
			row[i] = s.worksheet.GetRaw(addr)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// RangeValues evaluates every cell in the range, one slice per row. a cell
// that fails to evaluate carries its error; the other cells are unaffected.
func (s *Spreadsheet) RangeValues(ref string) ([][]CellResult, error) {
	r, err := s.ParseRangeRef(ref)
	if err != nil {
		return nil, err
	}
	var rows [][]CellResult
	for line := range r.Rows() {
		row := make([]CellResult, len(line))
		for i, addr := range line {
			v, err := s.GetCell(addr)
			row[i] = CellResult{Address: addr, Value: v, Err: err}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// UsedAddresses returns every non-empty address, row-major
func (s *Spreadsheet) UsedAddresses() []Address {
	return s.worksheet.UsedAddresses()
}

// Bounds returns the smallest range covering every non-empty cell
func (s *Spreadsheet) Bounds() (Range, bool) {
	return s.worksheet.Bounds()
}

// DependencyGraph builds a reference graph of the current formulas
func (s *Spreadsheet) DependencyGraph() *DependencyGraph {
	return BuildDependencyGraph(s.worksheet)
}

// CheckReport lists every formula cell that fails to evaluate and every
// reference cycle
type CheckReport struct {
	Failures []CellResult
	Cycles   [][]Address
}

// OK reports whether the sheet has no failing formulas
func (r CheckReport) OK() bool {
	return len(r.Failures) == 0 && len(r.Cycles) == 0
}

// Check evaluates every formula cell, row-major, and reports the failures
func (s *Spreadsheet) Check() CheckReport {
	var report CheckReport
	for _, addr := range s.worksheet.UsedAddresses() {
		if s.worksheet.Content(addr).Type != CellValueTypeFormula {
			continue
		}
		if _, err := s.GetCell(addr); err != nil {
			report.Failures = append(report.Failures, CellResult{Address: addr, Err: err})
		}
	}
	report.Cycles = s.DependencyGraph().FindCycles()

	s.logger.WithFields(logrus.Fields{
		"failures": len(report.Failures),
		"cycles":   len(report.Cycles),
	}).Debug("sheet checked")
	return report
}
