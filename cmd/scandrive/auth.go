package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the Google Drive sign-in",
	}
	cmd.AddCommand(newAuthLoginCmd(), newAuthLogoutCmd(), newAuthStatusCmd())
	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in to Google Drive and cache an access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadServices(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			tok, err := s.Tokens.RequestAccessToken(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in. Token valid until %s\n", tok.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the cached token and forget the refresh token",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadServices(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Tokens.SignOut(cmd.Context()); err != nil {
				return err
			}
			if err := s.Auth.ForgetRefreshToken(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether Drive is configured and signed in",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadServices(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "configured:    %v\n", s.Drive.Configured())
			fmt.Fprintf(out, "refresh token: %v\n", s.Auth.HasRefreshToken(cmd.Context()))
			if s.Tokens.IsTokenValid(cmd.Context()) {
				fmt.Fprintf(out, "access token:  valid until %s\n", s.Tokens.Current().ExpiresAt.Format(time.RFC3339))
			} else {
				fmt.Fprintln(out, "access token:  none")
			}
			return nil
		},
	}
}
