package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/nhle/taskpulse/internal/api"
	"github.com/nhle/taskpulse/internal/derive"
	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/theme"
)

func tasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Print the task board once",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			if err := e.requireLogin(); err != nil {
				return err
			}

			all, _ := cmd.Flags().GetBool("all")
			query, _ := cmd.Flags().GetString("search")
			withUnread, _ := cmd.Flags().GetBool("unread")

			ctx := cmd.Context()
			tasks, err := e.client.ListTasks(ctx)
			if err != nil {
				return fmt.Errorf("listing tasks: %s", api.UserMessage(err))
			}

			viewer := derive.Viewer{Email: e.session.Email(), Role: e.session.Role(), ShowAll: all}
			var unread func(id model.ID) int
			if withUnread {
				unread = func(id model.ID) int {
					n, err := e.client.CountUnread(ctx, id, viewer.Email)
					if err != nil {
						return 0
					}
					return n
				}
			}
			b := derive.Build(tasks, unread, viewer, query, time.Now())

			if len(b.Rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tasks.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderBoard(b, withUnread))
			return nil
		},
	}

	cmd.Flags().BoolP("all", "a", false, "list every task, not only yours")
	cmd.Flags().StringP("search", "s", "", "filter titles")
	cmd.Flags().Bool("unread", false, "fetch unread comment counts")
	return cmd
}

// renderBoard lays a board out as a table.
func renderBoard(b derive.Board, withUnread bool) string {
	headers := []string{"ID", "STATUS", "PRI", "DUE", "TITLE"}
	if withUnread {
		headers = append(headers, "UNREAD")
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorBorder)).
		Headers(headers...)

	for _, r := range b.Rows {
		due := ""
		if !r.Task.DueDate.IsZero() {
			due = r.Task.DueDate.String()
		}
		if label := r.Urgency.Label(); label != "" {
			due = theme.UrgencyStyle(r.Urgency).Render(fmt.Sprintf("%s %s", due, label))
		}
		title := r.Task.Title
		if r.IsNew {
			title += " " + theme.NewBadgeStyle.Render("NEW")
		}
		row := []string{
			r.Task.ID.String(),
			theme.StatusStyle(r.Task.Status).Render(string(r.Task.Status)),
			theme.PriorityStyle(r.Task.Priority).Render(string(r.Task.Priority)),
			due,
			title,
		}
		if withUnread {
			row = append(row, fmt.Sprint(r.Unread))
		}
		t.Row(row...)
	}
	return t.Render()
}
