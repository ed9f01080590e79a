package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/chrissnell/fragsize/internal/session"
	"github.com/spf13/cobra"
)

func newSessionsCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Short:   "Manage the sessions saved in the session database",
		Aliases: []string{"session"},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored sessions, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withStore(func(store *session.Store) error {
				stored, err := store.List()
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tUPDATED\tMARKER\tLADDER\tCALIBRATED")
				for _, s := range stored {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\n",
						s.ID, s.UpdatedAt.Local().Format("2006-01-02 15:04"), s.MarkerChannel, s.Ladder, s.Calibrated, s.Total)
				}
				return tw.Flush()
			})
		},
	}

	export := &cobra.Command{
		Use:     "export [id] [file]",
		Short:   "Write a stored session to a snapshot file",
		Example: "  fragsize sessions export 0b9c... run42.session",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withStore(func(store *session.Store) error {
				snap, err := store.Load(args[0])
				if err != nil {
					return err
				}
				return session.SaveFile(args[1], snap)
			})
		},
	}

	remove := &cobra.Command{
		Use:     "delete [id]",
		Short:   "Delete a stored session",
		Aliases: []string{"rm"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withStore(func(store *session.Store) error {
				return store.Delete(args[0])
			})
		},
	}

	cmd.AddCommand(list, export, remove)
	return cmd
}

func (o *options) withStore(fn func(*session.Store) error) error {
	store, err := session.OpenStore(o.cfg.Storage.SessionDB, o.logger)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}
