package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"example.com/healthsync/internal/auth"
)

func newTokenCmd(c *cli) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
		scopes  []string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the receiver using JWT_SECRET",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if subject == "" {
				subject = c.cfg.UserID
			}
			token, err := auth.Issue(auth.Config{Secret: c.cfg.JWTSecret, Issuer: c.cfg.JWTIssuer}, subject, scopes, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (defaults to USER_ID)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{auth.ScopeSamplesWrite, auth.ScopeSamplesRead}, "scopes to grant")
	return cmd
}
