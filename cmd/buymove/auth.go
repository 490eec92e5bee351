package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/buymove/buymove-client/engine/domain"
)

func newLoginCmd(get func() *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and keep the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			if password == "" {
				password = os.Getenv("BUYMOVE_PASSWORD")
			}
			if err := a.sessions.Login(cmd.Context(), email, password); err != nil {
				var authErr *domain.AuthError
				if errors.As(err, &authErr) {
					return errors.New(authErr.Message)
				}
				return err
			}
			u := a.sessions.Session().User
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", displayName(*u))
			if pending, err := a.favorites.LocalPending(cmd.Context()); err == nil && len(pending) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d favorite(s) saved on this device are not in your account.\n", len(pending))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account e-mail")
	cmd.Flags().StringVar(&password, "password", "", "password (or BUYMOVE_PASSWORD)")
	return cmd
}

func newLogoutCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			get().sessions.Logout()
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := get().sessions.Session()
			if !s.Authenticated() {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> (%s)\n", displayName(*s.User), s.User.Email, s.User.ID)
			return nil
		},
	}
}

func newRegisterCmd(get func() *app) *cobra.Command {
	var req domain.RegisterRequest
	var login bool
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			if req.Password == "" {
				req.Password = os.Getenv("BUYMOVE_PASSWORD")
			}
			u, err := a.sessions.Register(cmd.Context(), req)
			var authErr *domain.AuthError
			if errors.As(err, &authErr) {
				return errors.New(authErr.Message)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account created for %s\n", u.Email)
			if !login {
				return nil
			}
			if err := a.sessions.Login(cmd.Context(), req.Email, req.Password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", displayName(*a.sessions.Session().User))
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "account e-mail")
	cmd.Flags().StringVar(&req.Password, "password", "", "password (or BUYMOVE_PASSWORD)")
	cmd.Flags().StringVar(&req.FullName, "name", "", "full name")
	cmd.Flags().StringVar(&req.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&req.Document, "document", "", "CPF or CNPJ")
	cmd.Flags().BoolVar(&login, "login", true, "log in after creating the account")
	return cmd
}

func displayName(u domain.User) string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Email
}
