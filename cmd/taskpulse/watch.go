package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/taskpulse/internal/event"
	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/realtime"
)

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print task and comment events as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			if err := e.requireLogin(); err != nil {
				return err
			}

			ch := e.newChannel()
			if ch == nil {
				return fmt.Errorf("streaming is disabled in %s", e.configPath)
			}
			defer ch.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			out := cmd.OutOrStdout()
			events := make(chan event.Event, 64)
			handler := func(msg realtime.Message) {
				ev, err := event.Normalize(msg.Topic, msg.Body)
				if err != nil {
					fmt.Fprintf(os.Stderr, "dropping message on %s: %v\n", msg.Topic, err)
					return
				}
				select {
				case events <- ev:
				default:
				}
			}

			topics := append([]string{event.TopicComments}, event.TaskTopics...)
			if taskID, _ := cmd.Flags().GetString("task"); taskID != "" {
				topics = append(topics, event.UnreadTopic(e.session.Email(), model.ID(taskID)))
			}
			for _, topic := range topics {
				ch.Subscribe(topic, handler)
			}

			unwatch := ch.Watch(func(s realtime.State) {
				fmt.Fprintf(os.Stderr, "connection: %s\n", s)
			})
			defer unwatch()
			ch.Connect()

			return printEvents(ctx, out, events)
		},
	}

	cmd.Flags().String("task", "", "also follow your unread count on this task")
	return cmd
}

// printEvents writes one line per event until ctx is done.
func printEvents(ctx context.Context, out io.Writer, events <-chan event.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			fmt.Fprintf(out, "%s  %s\n", time.Now().Format("15:04:05"), describe(ev))
		}
	}
}

// describe is the one-line summary of ev.
func describe(ev event.Event) string {
	switch {
	case ev.Kind == event.TaskDeleted:
		return fmt.Sprintf("%-20s #%s", ev.Kind, ev.Task.ID)
	case ev.Kind.IsTask():
		line := fmt.Sprintf("%-20s #%s", ev.Kind, ev.Task.ID)
		if ev.Task.Title != nil {
			line += " " + *ev.Task.Title
		}
		if ev.Task.Status != nil {
			line += fmt.Sprintf(" [%s]", *ev.Task.Status)
		}
		return line
	case ev.Kind == event.CommentCreated:
		c := ev.Comment
		return fmt.Sprintf("%-20s #%s %s -> %s: %s", ev.Kind, c.TaskID, c.AuthorEmail, c.RecipientEmail, c.Content)
	case ev.Kind == event.UnreadCount:
		return fmt.Sprintf("%-20s #%s %d unread", ev.Kind, ev.Unread.TaskID, ev.Unread.Count)
	default:
		return ev.Kind.String()
	}
}
