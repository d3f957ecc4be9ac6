package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/taskpulse/internal/model"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}

			if write, _ := cmd.Flags().GetBool("write"); write {
				if err := model.SaveConfig(e.configPath, e.cfg); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", e.configPath)
				return nil
			}

			c := e.cfg
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config file     %s\n", e.configPath)
			fmt.Fprintf(out, "api             %s (timeout %s)\n", c.API.BaseURL, c.APITimeout())
			fmt.Fprintf(out, "broker          %s (streaming disabled: %t)\n", c.Realtime.URL, c.Realtime.DisableStreaming)
			fmt.Fprintf(out, "reconnect delay %s\n", c.ReconnectDelay())
			fmt.Fprintf(out, "heartbeat       %s\n", c.Heartbeat())
			fmt.Fprintf(out, "publish retry   %s\n", c.PublishRetry())
			fmt.Fprintf(out, "poll interval   %s\n", c.PollInterval())
			fmt.Fprintf(out, "journal         %s\n", c.Journal.Path)
			if e.session.LoggedIn() {
				fmt.Fprintf(out, "logged in as    %s (%s)\n", e.session.Email(), e.session.Role())
			}
			return nil
		},
	}

	cmd.Flags().Bool("write", false, "write the effective configuration to the config file")
	return cmd
}
