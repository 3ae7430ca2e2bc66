package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vogtb/go-spreadsheet/packages/spreadsheet"
)

func newEvalCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "eval FORMULA",
		Short:   "Evaluate a formula against the sheet",
		Args:    cobra.ExactArgs(1),
		Example: `  spreadsheet eval "SUM(A1:A3)*2" -f budget.s2v`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sheet, err := a.readSheet(cmd.Context())
			if err != nil {
				return err
			}
			v, err := sheet.EvaluateFormula(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), spreadsheet.FormatValue(v))
			return nil
		},
	}
}

func newParseCommand() *cobra.Command {
	var postfix bool

	cmd := &cobra.Command{
		Use:   "parse FORMULA",
		Short: "Print the canonical form of a formula",
		Long:  `Parse a formula without evaluating it and print it fully parenthesized.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formula := strings.TrimPrefix(args[0], spreadsheet.FormulaPrefix)
			tree, err := spreadsheet.Parse(formula)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, tree.ToString())

			if postfix {
				tokens, err := spreadsheet.Postfix(formula)
				if err != nil {
					return err
				}
				parts := make([]string, len(tokens))
				for i, tok := range tokens {
					parts[i] = tok.String()
				}
				fmt.Fprintln(out, strings.Join(parts, " "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&postfix, "postfix", false, "also print the postfix token stream")
	return cmd
}

func newGetCommand(a *app) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "get CELL",
		Short: "Print the value of a cell",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sheet, err := a.readSheet(cmd.Context())
			if err != nil {
				return err
			}
			if raw {
				text, err := sheet.GetRaw(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), quoteIfBlank(text))
				return nil
			}
			v, err := sheet.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), spreadsheet.FormatValue(v))
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "print the stored text instead of the value")
	return cmd
}

// validateRaw rejects formulas that do not parse
func validateRaw(raw string) error {
	content := spreadsheet.ClassifyContent(raw)
	if content.Type != spreadsheet.CellValueTypeFormula {
		return nil
	}
	if _, err := spreadsheet.Parse(content.Formula()); err != nil {
		return fmt.Errorf("invalid formula %q: %w (use --force to store it anyway)", raw, err)
	}
	return nil
}

func newSetCommand(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "set CELL CONTENT",
		Short: "Store content in a cell and save the sheet",
		Long: `Store a number, text or formula ("=A1*2") in a cell and save the sheet.
An empty CONTENT clears the cell. Formulas are parsed first and rejected when
malformed unless --force is given.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, raw := args[0], args[1]
			if !force {
				if err := validateRaw(raw); err != nil {
					return err
				}
			}

			sheet, store, err := a.loadSheet(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			addr, err := sheet.ParseRef(ref)
			if err != nil {
				return err
			}
			if err := sheet.SetCell(addr, raw); err != nil {
				return err
			}
			if err := store.Save(cmd.Context(), sheet.Worksheet()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cell %s updated.\n", addr)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "store formulas without checking that they parse")
	return cmd
}

func newShowCommand(a *app) *cobra.Command {
	var (
		raw    bool
		output string
	)

	cmd := &cobra.Command{
		Use:   "show [RANGE]",
		Short: "Print a range as a table of values",
		Long:  `Print a range (default: every used cell) as a table of evaluated values, or as YAML.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sheet, err := a.readSheet(cmd.Context())
			if err != nil {
				return err
			}
			return show(cmd.OutOrStdout(), sheet, args, raw, output)
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "show stored text instead of values")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table or yaml")
	return cmd
}

// show renders the range in args, or the used cells when args is empty
func show(out io.Writer, sheet *spreadsheet.Spreadsheet, args []string, raw bool, output string) error {
	var ref string
	if len(args) == 1 {
		ref = args[0]
	} else {
		bounds, ok := sheet.Bounds()
		if !ok {
			return nil
		}
		ref = bounds.String()
	}

	r, err := sheet.ParseRangeRef(ref)
	if err != nil {
		return err
	}
	texts, err := sheet.RangeRaw(ref)
	if err != nil {
		return err
	}

	switch output {
	case "table":
		if raw {
			return renderTable(out, r, texts)
		}
		values, err := sheet.RangeValues(ref)
		if err != nil {
			return err
		}
		return renderTable(out, r, displayValues(values))
	case "yaml":
		values, err := sheet.RangeValues(ref)
		if err != nil {
			return err
		}
		return renderYAML(out, texts, values)
	default:
		return fmt.Errorf("unknown output format %q (want table or yaml)", output)
	}
}

func newCheckCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Evaluate every formula and report failures and cycles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sheet, err := a.readSheet(cmd.Context())
			if err != nil {
				return err
			}

			report := sheet.Check()
			out := cmd.OutOrStdout()
			for _, failure := range report.Failures {
				fmt.Fprintf(out, "%s: %s %v\n", failure.Address, failure.Display(), failure.Err)
			}
			for _, cycle := range report.Cycles {
				fmt.Fprintf(out, "cycle: %s\n", formatCycle(cycle))
			}
			if !report.OK() {
				return fmt.Errorf("%d failing cells, %d cycles", len(report.Failures), len(report.Cycles))
			}

			formulas := sheet.Worksheet().CountByType(spreadsheet.CellValueTypeFormula)
			fmt.Fprintf(out, "ok: %d formulas\n", formulas)
			return nil
		},
	}
}
