package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"clanchat/internal/client/notify"

	"github.com/spf13/cobra"
)

func init() {
	notificationsCmd.Flags().Bool("seen", false, "mark everything seen after listing")
	rootCmd.AddCommand(notificationsCmd, acceptCmd, rejectCmd)
}

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"notifs"},
	Short:   "Show your notification feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		markSeen, _ := cmd.Flags().GetBool("seen")
		ctx, cancel := requestContext(cmd)
		defer cancel()

		return withFeed(ctx, func(feed *notify.Feed) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "🔔 %d unseen\n", feed.Unseen())
			for _, n := range feed.Items() {
				mark := " "
				if !n.Seen {
					mark = "•"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", mark, n.CreatedAt.Format("2006-01-02 15:04"), n.Type, n.Content)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if markSeen {
				return feed.MarkAllSeen()
			}
			return nil
		})
	},
}

var acceptCmd = &cobra.Command{
	Use:   "accept [clan-id] [user-id]",
	Short: "Accept a join request",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		return withFeed(ctx, func(feed *notify.Feed) error {
			if err := feed.Accept(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Accepted %s into %s\n", args[1], args[0])
			return nil
		})
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject [clan-id] [user-id]",
	Short: "Reject a join request",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		return withFeed(ctx, func(feed *notify.Feed) error {
			if err := feed.Reject(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "🚫 Rejected %s from %s\n", args[1], args[0])
			return nil
		})
	},
}

func withFeed(ctx context.Context, fn func(*notify.Feed) error) error {
	self, err := whoami()
	if err != nil {
		return err
	}
	client := newAPI()
	m, err := connect(ctx, client, self)
	if err != nil {
		return err
	}
	defer m.Disconnect()

	feed := notify.NewFeed(self.ID, client, m)
	if err := feed.Start(ctx); err != nil {
		return err
	}
	defer feed.Stop()
	return fn(feed)
}
