package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/chrissnell/fragsize/internal/ladder"
	"github.com/spf13/cobra"
)

func newLaddersCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:     "ladders",
		Short:   "List the known size standards",
		Aliases: []string{"ladder"},
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := o.ladders()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LADDER\tPEAKS\tSIZES (bp)")
			for _, l := range table.All() {
				name := l.Name
				if name == o.cfg.Ladder || (o.cfg.Ladder == "" && name == ladder.Default) {
					name += " *"
				}
				sizes := make([]string, len(l.Sizes))
				for i, s := range l.Sizes {
					sizes[i] = fmt.Sprintf("%g", s)
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\n", name, len(l.Sizes), strings.Join(sizes, " "))
			}
			return tw.Flush()
		},
	}
}
