package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vogtb/go-spreadsheet/packages/spreadsheet"
)

const consoleMenu = `
1) Set cell content
2) View cell content (raw)
3) Save spreadsheet
4) Load spreadsheet
5) Evaluate formula (e.g. 1+2*3 or A1+2)
6) View cell value (evaluated)
7) Show range values as table (evaluated)
0) Exit
`

func newConsoleCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Edit a sheet from an interactive menu",
		Long: `Start the interactive menu. The sheet given with --file (if any) is loaded
first; the menu can save and load other files. Prompts are printed only when
stdin is a terminal, so a script can be piped in.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sheet := a.newSheet(spreadsheet.NewWorksheet())
			if a.file != "" {
				var err error
				if sheet, err = a.readSheet(cmd.Context()); err != nil {
					return err
				}
			}
			c := &console{
				app:         a,
				sheet:       sheet,
				in:          bufio.NewScanner(cmd.InOrStdin()),
				out:         cmd.OutOrStdout(),
				interactive: isTerminal(cmd.InOrStdin()),
			}
			return c.run(cmd.Context())
		},
	}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type console struct {
	app         *app
	sheet       *spreadsheet.Spreadsheet
	in          *bufio.Scanner
	out         io.Writer
	interactive bool
}

// ask prompts for a line. ok is false at end of input.
func (c *console) ask(prompt string) (string, bool) {
	if c.interactive {
		fmt.Fprint(c.out, prompt)
	}
	if !c.in.Scan() {
		return "", false
	}
	return c.in.Text(), true
}

func (c *console) run(ctx context.Context) error {
	if c.interactive {
		fmt.Fprintln(c.out, "=== Spreadsheet Console ===")
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if c.interactive {
			fmt.Fprint(c.out, consoleMenu)
		}
		choice, ok := c.ask("Choose option: ")
		if !ok {
			return c.in.Err()
		}

		done, err := c.dispatch(ctx, strings.TrimSpace(choice))
		if err != nil {
			fmt.Fprintln(c.out, "Error:", err)
		}
		if done {
			return nil
		}
	}
}

// dispatch runs one menu option. done is true when the console should exit;
// running out of input in the middle of an option also ends it.
func (c *console) dispatch(ctx context.Context, choice string) (done bool, err error) {
	switch choice {
	case "1":
		ref, ok := c.ask("Enter cell coordinate (e.g., A1): ")
		if !ok {
			return true, nil
		}
		content, ok := c.ask("Enter cell content: ")
		if !ok {
			return true, nil
		}
		addr, err := c.sheet.ParseRef(strings.TrimSpace(ref))
		if err != nil {
			return false, err
		}
		if err := validateRaw(content); err != nil {
			return false, err
		}
		if err := c.sheet.SetCell(addr, content); err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "Cell %s updated.\n", addr)

	case "2":
		ref, ok := c.ask("Enter cell coordinate (e.g., A1): ")
		if !ok {
			return true, nil
		}
		addr, err := c.sheet.ParseRef(strings.TrimSpace(ref))
		if err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "Cell %s content: %s\n", addr, c.sheet.Worksheet().GetRaw(addr))

	case "3":
		path, ok := c.ask("Enter path to save (e.g., sheet.s2v): ")
		if !ok {
			return true, nil
		}
		return false, c.save(ctx, strings.TrimSpace(path))

	case "4":
		path, ok := c.ask("Enter path to load: ")
		if !ok {
			return true, nil
		}
		return false, c.load(ctx, strings.TrimSpace(path))

	case "5":
		formula, ok := c.ask("Enter formula (e.g., 1+2*3 or A1+2): ")
		if !ok {
			return true, nil
		}
		formula = strings.TrimSpace(formula)
		v, err := c.sheet.EvaluateFormula(formula)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "%s = %s\n", formula, spreadsheet.FormatValue(v))

	case "6":
		ref, ok := c.ask("Enter cell coordinate (e.g., A1): ")
		if !ok {
			return true, nil
		}
		addr, err := c.sheet.ParseRef(strings.TrimSpace(ref))
		if err != nil {
			return false, err
		}
		v, err := c.sheet.GetCell(addr)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "Cell %s value: %s\n", addr, spreadsheet.FormatValue(v))

	case "7":
		ref, ok := c.ask("Enter range (e.g., A1:C3): ")
		if !ok {
			return true, nil
		}
		return false, show(c.out, c.sheet, []string{strings.TrimSpace(ref)}, false, "table")

	case "0":
		fmt.Fprintln(c.out, "Exiting...")
		return true, nil

	case "":
		// blank line, show the menu again

	default:
		fmt.Fprintln(c.out, "Unknown option. Please try again.")
	}
	return false, nil
}

func (c *console) save(ctx context.Context, path string) error {
	store, err := c.app.openAs(ctx, "", path)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Save(ctx, c.sheet.Worksheet()); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Spreadsheet saved to: %s\n", absPath(path))
	return nil
}

func (c *console) load(ctx context.Context, path string) error {
	store, err := c.app.openAs(ctx, "", path)
	if err != nil {
		return err
	}
	defer store.Close()
	ws, err := store.Load(ctx)
	if err != nil {
		return err
	}
	c.sheet = c.app.newSheet(ws)
	fmt.Fprintf(c.out, "Spreadsheet loaded from: %s\n", absPath(path))
	return nil
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
