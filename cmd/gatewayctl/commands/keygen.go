package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/activitygate/internal/auth"
	"github.com/TimurManjosov/activitygate/internal/webhook"
)

var withSigningSecret bool

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new admin API key",
	Long: `Generate a random admin API key and its bcrypt hash.

Give the key to API callers and set ADMIN_API_KEY on the server to the
hash, so the plain key is never stored server-side. With --signing-secret
a webhook signing secret for SIGNING_SECRET is printed as well.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := auth.NewAdminKey()
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "API key:        %s\n", key.Plain)
		fmt.Fprintf(out, "ADMIN_API_KEY:  %s\n", key.Hash)

		if withSigningSecret {
			secret, err := webhook.GenerateSecret()
			if err != nil {
				return fmt.Errorf("failed to generate signing secret: %w", err)
			}
			fmt.Fprintf(out, "SIGNING_SECRET: %s\n", secret)
		}
		return nil
	},
}

func init() {
	keygenCmd.Flags().BoolVar(&withSigningSecret, "signing-secret", false, "Also generate a webhook signing secret")
	rootCmd.AddCommand(keygenCmd)
}
