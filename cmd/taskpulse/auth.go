package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/taskpulse/internal/api"
	"github.com/nhle/taskpulse/internal/model"
)

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}

			email, _ := cmd.Flags().GetString("email")
			var password string
			form := huh.NewForm(huh.NewGroup(
				huh.NewInput().
					Title("Email").
					Value(&email).
					Validate(required("Email")),
				huh.NewInput().
					Title("Password").
					EchoMode(huh.EchoModePassword).
					Value(&password).
					Validate(required("Password")),
			))
			if err := form.Run(); err != nil {
				return err
			}

			if err := e.session.Login(cmd.Context(), e.client, email, password); err != nil {
				if api.IsAuthError(err) {
					return errors.New("invalid email or password")
				}
				return fmt.Errorf("logging in: %s", api.UserMessage(err))
			}
			d := e.session.Data()
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", d.Email, d.UserRole)
			return nil
		},
	}

	cmd.Flags().String("email", "", "prefill the email field")
	return cmd
}

func registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}

			var name, email, password, confirm string
			form := huh.NewForm(huh.NewGroup(
				huh.NewInput().Title("Name").Value(&name).Validate(required("Name")),
				huh.NewInput().Title("Email").Value(&email).Validate(validateEmail),
				huh.NewInput().
					Title("Password").
					EchoMode(huh.EchoModePassword).
					Value(&password).
					Validate(required("Password")),
				huh.NewInput().
					Title("Confirm password").
					EchoMode(huh.EchoModePassword).
					Value(&confirm).
					Validate(func(s string) error {
						if s != password {
							return errors.New("passwords do not match")
						}
						return nil
					}),
			))
			if err := form.Run(); err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := e.client.Register(ctx, strings.TrimSpace(name), strings.TrimSpace(email), password); err != nil {
				return fmt.Errorf("registering: %s", api.UserMessage(err))
			}
			if err := e.session.Login(ctx, e.client, email, password); err != nil {
				return fmt.Errorf("logging in: %s", api.UserMessage(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s. Run `taskpulse role` to pick your role.\n", strings.TrimSpace(name))
			return nil
		},
	}
}

func roleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "role",
		Short: "Choose whether you manage tasks (ADMIN) or work on them (EMPLOYEE)",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			if err := e.requireLogin(); err != nil {
				return err
			}

			role := e.session.Role()
			form := huh.NewForm(huh.NewGroup(
				huh.NewSelect[model.Role]().
					Title("Role").
					Options(
						huh.NewOption("Admin - create and assign tasks", model.RoleAdmin),
						huh.NewOption("Employee - work on assigned tasks", model.RoleEmployee),
					).
					Value(&role),
			))
			if err := form.Run(); err != nil {
				return err
			}

			if err := e.client.UpdateRole(cmd.Context(), e.session.Email(), role); err != nil {
				return fmt.Errorf("updating role: %s", api.UserMessage(err))
			}
			if err := e.session.SetRole(role); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Role set to %s\n", role)
			return nil
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			if err := e.session.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func validateEmail(s string) error {
	s = strings.TrimSpace(s)
	at := strings.Index(s, "@")
	if at < 1 || at == len(s)-1 {
		return errors.New("enter a valid email address")
	}
	return nil
}
