package main

import (
	"context"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nhle/taskpulse/internal/app"
	"github.com/nhle/taskpulse/internal/derive"
	"github.com/nhle/taskpulse/internal/realtime"
	appsync "github.com/nhle/taskpulse/internal/sync"
)

// journalKeep is how many journal entries survive startup pruning.
const journalKeep = 500

func tuiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the live task board",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			if err := e.requireLogin(); err != nil {
				return err
			}

			// The terminal belongs to Bubble Tea; verbose logs go to a file.
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				f, err := tea.LogToFile(filepath.Join(filepath.Dir(e.configPath), "taskpulse.log"), "")
				if err != nil {
					return err
				}
				defer f.Close()
				e.logOut = f
			}

			journal, err := e.openJournal()
			if err != nil {
				return err
			}
			defer journal.Close()
			if _, err := journal.PruneNotifications(cmd.Context(), journalKeep); err != nil {
				e.logger("journal").Printf("pruning: %v", err)
			}

			ch := e.newChannel()
			if ch != nil {
				defer ch.Close()
			}

			engine := appsync.New(e.client, ch, e.session, appsync.Options{
				PollInterval: e.cfg.PollInterval(),
				Logger:       e.logger("sync"),
				Journal:      journal,
			})
			connection := func() realtime.State { return engine.Status().Connection }
			derived := derive.NewEngine(engine.Tasks(), engine.Threads(), derive.EngineOptions{
				Viewer:     derive.Viewer{Email: e.session.Email(), Role: e.session.Role()},
				Tick:       e.cfg.TickInterval(),
				Connection: connection,
			})
			if ch != nil {
				unwatch := ch.Watch(func(realtime.State) { derived.Invalidate() })
				defer unwatch()
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			engine.Start()
			defer engine.Stop()
			go derived.Run(ctx)

			m := app.New(app.Deps{
				Engine:    engine,
				Board:     derived,
				Session:   e.session,
				Directory: e.client,
				Journal:   journal,
				Tick:      e.cfg.TickInterval(),
			})
			_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
			return err
		},
	}
}
