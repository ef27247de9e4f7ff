package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	clansCmd.AddCommand(clansCreateCmd, clansJoinCmd, clansMembersCmd)
	rootCmd.AddCommand(clansCmd)
}

var clansCmd = &cobra.Command{
	Use:   "clans",
	Short: "List clans",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		clans, err := newAPI().Clans(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tMEMBERS\tPENDING")
		for _, c := range clans {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", c.ID, c.Name, len(c.Members), len(c.PendingRequests))
		}
		return w.Flush()
	},
}

var clansCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a clan led by you",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		clan, err := newAPI().CreateClan(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "🏰 Created %s (%s)\n", clan.Name, clan.ID)
		return nil
	},
}

var clansJoinCmd = &cobra.Command{
	Use:   "join [clan-id]",
	Short: "Ask to join a clan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		if err := newAPI().RequestToJoin(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "📨 Request sent")
		return nil
	},
}

var clansMembersCmd = &cobra.Command{
	Use:   "members [clan-id]",
	Short: "Show a clan's roster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		members, err := newAPI().Roster(ctx, args[0])
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tROLE")
		for _, m := range members {
			fmt.Fprintf(w, "%s\t%s\t%s\n", m.ID, m.Name, m.Role)
		}
		return w.Flush()
	},
}
