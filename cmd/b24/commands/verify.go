package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewVerifyCommand creates the verify command. It probes the portal with the
// cheapest authenticated call and reports whether the webhook URL works.
func NewVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the configured webhook URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := createClient(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			err = client.Verify(cmd.Context())
			if err != nil {
				return fmt.Errorf("webhook verification failed: %w", err)
			}

			fmt.Println("Webhook OK")

			return nil
		},
	}
}
