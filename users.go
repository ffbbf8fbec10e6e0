package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func buildUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List the users in the loan database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			users, err := a.store.GetUsers(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tEMAIL\tCREDIT SCORE\tINCOME\tJOB")
			for _, u := range users {
				fmt.Fprintf(w, "%d\t%s\t%d\t%.2f\t%s\n", u.UserID, u.Email, u.CreditScore, u.Income, u.JobTitle)
			}
			return w.Flush()
		},
	}
}
