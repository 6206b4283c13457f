package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jrsteele09/go-session-client/internal/papers"
	"github.com/jrsteele09/go-session-client/session"
	"github.com/spf13/cobra"
)

var (
	loginEmail    string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and persist the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd.Context(), currentSettings())
		if err != nil {
			return err
		}
		if _, err := c.For(nil).Call(cmd.Context(), papers.AuthDomain, "login", loginEmail, loginPassword); err != nil {
			return err
		}
		s, ok := c.Sessions.Current()
		if !ok {
			return fmt.Errorf("login response did not contain a session")
		}
		return printSession(cmd.OutOrStdout(), s)
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the persisted session",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd.Context(), currentSettings())
		if err != nil {
			return err
		}
		s, ok := c.Sessions.Current()
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Not logged in.")
			return nil
		}
		return printSession(cmd.OutOrStdout(), s)
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Exchange the refresh token for a new token pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd.Context(), currentSettings())
		if err != nil {
			return err
		}
		s, err := c.Refresher.Refresh(cmd.Context())
		if err != nil {
			return err
		}
		return printSession(cmd.OutOrStdout(), s)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the persisted session",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd.Context(), currentSettings())
		if err != nil {
			return err
		}
		if err := c.For(nil).Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Account password")
	_ = loginCmd.MarkFlagRequired("email")
	_ = loginCmd.MarkFlagRequired("password")

	rootCmd.AddCommand(loginCmd, whoamiCmd, refreshCmd, logoutCmd)
}

type sessionView struct {
	UserID        string     `json:"id_user"`
	Name          string     `json:"name,omitempty"`
	Email         string     `json:"email,omitempty"`
	Network       string     `json:"network,omitempty"`
	AccessExpires *time.Time `json:"access_expires,omitempty"`
}

// printSession shows the profile and access token expiry, never the tokens.
func printSession(w io.Writer, s session.Session) error {
	view := sessionView{UserID: s.UserID, Name: s.Name, Email: s.Email, Network: s.Network}
	if exp, ok := s.AccessTokenExpiry(); ok {
		view.AccessExpires = &exp
	}

	if jsonOutput {
		data, err := json.MarshalIndent(view, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	fmt.Fprintf(w, "User:    %s\n", view.UserID)
	if view.Name != "" {
		fmt.Fprintf(w, "Name:    %s\n", view.Name)
	}
	if view.Email != "" {
		fmt.Fprintf(w, "Email:   %s\n", view.Email)
	}
	if view.Network != "" {
		fmt.Fprintf(w, "Network: %s\n", view.Network)
	}
	if view.AccessExpires != nil {
		fmt.Fprintf(w, "Access token expires: %s\n", view.AccessExpires.Local().Format(time.RFC1123))
	}
	return nil
}
