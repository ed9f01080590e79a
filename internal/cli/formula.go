package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chrissnell/fragsize/internal/formula"
	"github.com/spf13/cobra"
)

func newFormulaCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "formula [expression]",
		Short: "Evaluate a formula over peak heights",
		Long: `
Evaluate an arithmetic formula (+ - * /, parentheses, unary minus) over named
peak heights. Unnamed heights given with --rfu are called A, B, C, ... in order.
Without an expression the default formula is used: ` + formula.DefaultFormula,
		Example: "  fragsize formula --rfu 1200 --rfu 800\n  fragsize formula 'WT / (WT + MUT)' --var WT=1200 --var MUT=800",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr := formula.DefaultFormula
			if len(args) == 1 {
				expr = args[0]
			}

			vars, err := formulaVariables(
				o.v.GetStringSlice(o.key("formula", "var")),
				o.v.GetStringSlice(o.key("formula", "rfu")),
			)
			if err != nil {
				return err
			}

			result, err := vars.Evaluate(expr)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, v := range vars.List() {
				fmt.Fprintf(out, "%s = %g\n", v.Name, v.RFU)
			}
			fmt.Fprintf(out, "%s = %s\n", expr, formula.FormatResult(result))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringArray("var", nil, "Named peak height as NAME=RFU (repeatable)")
	f.StringArray("rfu", nil, "Unnamed peak height, lettered A, B, ... (repeatable)")
	o.bindFlags("formula", f, "var", "rfu")
	return cmd
}

// formulaVariables builds the variable table from NAME=RFU pairs and unnamed heights
func formulaVariables(named, unnamed []string) (*formula.Variables, error) {
	vars := formula.NewVariables()
	for _, kv := range named {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid variable %q: want NAME=RFU", kv)
		}
		rfu, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid height for %s: %w", name, err)
		}
		if _, err := vars.Set(formula.Variable{Name: name, RFU: rfu}); err != nil {
			return nil, err
		}
	}
	for _, value := range unnamed {
		rfu, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid height %q: %w", value, err)
		}
		vars.Add(formula.Variable{RFU: rfu})
	}
	return vars, nil
}
