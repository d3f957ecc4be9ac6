package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/taskpulse/internal/api"
	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/session"
)

func profileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Change your display name",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			if err := e.requireLogin(); err != nil {
				return err
			}

			name := e.session.Data().Name
			form := huh.NewForm(huh.NewGroup(
				huh.NewInput().
					Title("Name").
					Description(e.session.Email()).
					Value(&name).
					Validate(required("Name")),
			))
			if err := form.Run(); err != nil {
				return err
			}

			saved, err := updateName(cmd.Context(), e.client, e.session, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Profile updated: %s\n", saved)
			return nil
		},
	}
}

func passwdCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change your password",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			if err := e.requireLogin(); err != nil {
				return err
			}

			var current, next, confirm string
			form := huh.NewForm(huh.NewGroup(
				huh.NewInput().
					Title("Current password").
					EchoMode(huh.EchoModePassword).
					Value(&current),
				huh.NewInput().
					Title("New password").
					EchoMode(huh.EchoModePassword).
					Value(&next),
				huh.NewInput().
					Title("Confirm new password").
					EchoMode(huh.EchoModePassword).
					Value(&confirm).
					Validate(func(s string) error {
						return model.ValidatePasswordChange(current, next, s)
					}),
			))
			if err := form.Run(); err != nil {
				return err
			}

			msg, err := changePassword(cmd.Context(), e.client, e.session.Email(), current, next, confirm)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}

// updateName saves a capitalized display name and keeps the stored
// session in step.
func updateName(ctx context.Context, client *api.Client, sess *session.Session, name string) (string, error) {
	name = model.CapitalizeName(name)
	if name == "" {
		return "", errors.New("name is required")
	}
	if err := client.UpdateProfile(ctx, sess.Email(), name); err != nil {
		return "", fmt.Errorf("updating profile: %s", api.UserMessage(err))
	}

	d := sess.Data()
	d.Name = name
	if err := sess.Set(d); err != nil {
		return "", err
	}
	return name, nil
}

// changePassword validates the new password locally, then asks the
// server to replace it. The server's confirmation is returned.
func changePassword(ctx context.Context, client *api.Client, email, current, next, confirm string) (string, error) {
	if err := model.ValidatePasswordChange(current, next, confirm); err != nil {
		return "", err
	}
	msg, err := client.ChangePassword(ctx, email, current, next)
	if err != nil {
		return "", fmt.Errorf("changing password: %s", api.UserMessage(err))
	}
	if msg == "" {
		msg = "Password changed"
	}
	return msg, nil
}
