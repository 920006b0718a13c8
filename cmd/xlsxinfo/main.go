// Package main provides the xlsxinfo CLI: it inspects workbook containers
// and streams their rows without loading whole sheets into memory.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/spf13/cobra"

	excelts "github.com/iuioiua/excelts-sub002"
)

func main() {
	root := &cobra.Command{
		Use:   "xlsxinfo",
		Short: "Inspect spreadsheet workbook containers",
	}
	root.AddCommand(infoCmd(), rowsCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info [workbook.xlsx]",
		Short: "Summarize a workbook's sheets and tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd, args[0])
		},
	}
}

func runInfo(cmd *cobra.Command, path string) error {
	r, err := excelts.OpenFile(path)
	if err != nil {
		return err
	}
	defer r.Close()

	type sheetStat struct{ rows, cells int }
	stats := make(map[string]*sheetStat)
	var order []*excelts.SheetInfo
	var cur *sheetStat
	for {
		ev, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		switch ev.Kind {
		case excelts.EventWorksheet:
			cur = &sheetStat{}
			stats[ev.Sheet.Name] = cur
			order = append(order, ev.Sheet)
		case excelts.EventRow:
			cur.rows++
			cur.cells += len(ev.Row.Cells)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "workbook: %s\n", path)
	system := "1900"
	if r.Date1904() {
		system = "1904"
	}
	fmt.Fprintf(out, "date system: %s\n", system)
	if st := r.SharedStrings(); st != nil {
		fmt.Fprintf(out, "shared strings: %d unique\n", st.Len())
	}
	if st := r.Styles(); st != nil {
		fmt.Fprintf(out, "styles: %d records\n", st.Len())
	}
	fmt.Fprintf(out, "sheets: %d\n", len(order))
	for _, sh := range order {
		st := stats[sh.Name]
		fmt.Fprintf(out, "  %-24s state=%-10s rows=%-6d cells=%d\n", sh.Name, sh.State, st.rows, st.cells)
	}
	return nil
}

func rowsCmd() *cobra.Command {
	var (
		sheetName string
		where     string
		maxRows   int
		ignore    []string
	)
	cmd := &cobra.Command{
		Use:   "rows [workbook.xlsx]",
		Short: "Stream rows as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRows(cmd, args[0], sheetName, where, maxRows, ignore)
		},
	}
	cmd.Flags().StringVar(&sheetName, "sheet", "", "Only rows from the named sheet")
	cmd.Flags().StringVar(&where, "where", "", "Row filter expression, e.g. 'cell.A > 10'")
	cmd.Flags().IntVar(&maxRows, "max-rows", 0, "Fail once a sheet exceeds this many rows")
	cmd.Flags().StringSliceVar(&ignore, "ignore", nil, "Worksheet sections to skip, e.g. dataValidations")
	return cmd
}

func runRows(cmd *cobra.Command, path, sheetName, where string, maxRows int, ignore []string) error {
	var program *vm.Program
	if where != "" {
		p, err := expr.Compile(where, expr.Env(map[string]any{}), expr.AllowUndefinedVariables())
		if err != nil {
			return fmt.Errorf("compile filter %q: %w", where, err)
		}
		program = p
	}

	var opts []excelts.ReaderOption
	if maxRows > 0 {
		opts = append(opts, excelts.WithMaxRows(maxRows))
	}
	if len(ignore) > 0 {
		opts = append(opts, excelts.WithIgnoreNodes(ignore...))
	}
	r, err := excelts.OpenFile(path, opts...)
	if err != nil {
		return err
	}
	defer r.Close()

	enc := json.NewEncoder(cmd.OutOrStdout())
	var curName string
	var skipSheet bool
	for {
		ev, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch ev.Kind {
		case excelts.EventWorksheet:
			curName = ev.Sheet.Name
			skipSheet = sheetName != "" && curName != sheetName
		case excelts.EventRow:
			if skipSheet {
				continue
			}
			line := rowLine(curName, ev.Row)
			if program != nil {
				keep, err := evalFilter(program, line)
				if err != nil {
					return err
				}
				if !keep {
					continue
				}
			}
			if err := enc.Encode(line); err != nil {
				return err
			}
		}
	}
}

// rowLine shapes one row for JSON output and filter evaluation: cell values
// are keyed by column letter.
func rowLine(sheet string, row *excelts.Row) map[string]any {
	cells := make(map[string]any, len(row.Cells))
	for i := range row.Cells {
		c := &row.Cells[i]
		cells[excelts.ColName(c.Col)] = cellValue(c)
	}
	return map[string]any{"sheet": sheet, "row": row.Number, "cell": cells}
}

func cellValue(c *excelts.Cell) any {
	if c.Type == excelts.CellFormula {
		return c.Result
	}
	return c.Value
}

func evalFilter(program *vm.Program, env map[string]any) (bool, error) {
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("filter: %w", err)
	}
	if out == nil {
		return false, nil
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("filter evaluated to %T, expected bool", out)
	}
	return b, nil
}
