package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aryan0dhankhar/queueline/internal/security/auth"
)

// NewTokenCommand manages the bearer token queuectl sends.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint or clear the owner bearer token",
	}
	cmd.AddCommand(newMintCommand(rootOpts))
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.Remove(rootOpts.TokenFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "token cleared")
			return nil
		},
	})
	return cmd
}

func newMintCommand(rootOpts *RootOptions) *cobra.Command {
	var owner, email, secret, issuer string
	var ttl time.Duration
	var printOnly bool

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Sign an owner token with the server's JWT secret and store it",
		Long: `Sign an owner token with the server's JWT secret and store it.

Example:
  JWT_SECRET=... queuectl token mint --owner manager-1 --ttl 12h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("--secret or JWT_SECRET is required")
			}
			tm := auth.NewTokenManager(secret, issuer)
			tok, err := tm.GenerateToken(owner, email, ttl)
			if err != nil {
				return err
			}
			if printOnly {
				fmt.Fprintln(cmd.OutOrStdout(), tok)
				return nil
			}
			if err := saveToken(rootOpts.TokenFile, tok); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token for %s saved to %s (expires in %s)\n", owner, rootOpts.TokenFile, ttl)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner ID to embed")
	cmd.Flags().StringVar(&email, "email", "", "owner email")
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "HMAC secret")
	cmd.Flags().StringVar(&issuer, "issuer", envOr("JWT_ISSUER", "queueline"), "token issuer")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().BoolVar(&printOnly, "print", false, "print instead of storing")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
