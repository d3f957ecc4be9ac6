package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "taskpulse",
		Short:         "TaskPulse - live task board and comment threads in the terminal",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "config file (default ~/.config/taskpulse/config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log sync and connection activity")

	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(registerCmd())
	rootCmd.AddCommand(roleCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(passwdCmd())
	rootCmd.AddCommand(tasksCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(notificationsCmd())
	rootCmd.AddCommand(tuiCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
