package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nhle/taskpulse/internal/store"
	"github.com/nhle/taskpulse/internal/theme"
)

func notificationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"inbox"},
		Short:   "List recorded assignments, comments and remote changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			journal, err := e.openJournal()
			if err != nil {
				return err
			}
			defer journal.Close()

			all, _ := cmd.Flags().GetBool("all")
			limit, _ := cmd.Flags().GetInt("limit")
			markRead, _ := cmd.Flags().GetBool("mark-read")

			ctx := cmd.Context()
			list, err := journal.GetNotifications(ctx, store.NotificationFilter{UnreadOnly: !all, Limit: limit})
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing new.")
				return nil
			}

			now := time.Now()
			for _, n := range list {
				when := humanize.RelTime(n.CreatedAt, now, "ago", "from now")
				line := fmt.Sprintf("%-16s #%-6s %s", when, n.TaskID, n.Message)
				if n.Read {
					line = theme.DimmedStyle.Render(line)
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)

				if markRead && !n.Read {
					if err := journal.MarkNotificationRead(ctx, n.ID); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolP("all", "a", false, "include entries already read")
	cmd.Flags().IntP("limit", "n", 50, "maximum entries")
	cmd.Flags().Bool("mark-read", false, "mark the listed entries read")
	return cmd
}
