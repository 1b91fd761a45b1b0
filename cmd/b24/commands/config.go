package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/fivetwenty-io/b24/internal/constants"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
	}

	cmd.AddCommand(newConfigSetWebhookCommand())
	cmd.AddCommand(newConfigShowCommand())

	return cmd
}

func newConfigSetWebhookCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-webhook [URL]",
		Short: "Store the webhook URL in the config file",
		Long: `Store the webhook URL in ~/.b24/config.yml.

The webhook URL is a credential. When no URL argument is given, it is read
from a hidden terminal prompt so it does not land in shell history.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var url string

			if len(args) == 1 {
				url = args[0]
			} else {
				fmt.Print("Webhook URL: ")

				raw, err := term.ReadPassword(int(syscall.Stdin))

				fmt.Println()

				if err != nil {
					return fmt.Errorf("reading webhook URL: %w", err)
				}

				url = strings.TrimSpace(string(raw))
			}

			if url == "" {
				return ErrWebhookURLNotConfigured
			}

			path, err := writeConfigValue("webhook-url", url)
			if err != nil {
				return err
			}

			fmt.Println("Webhook URL saved to", path)

			return nil
		},
	}
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			url := webhookURL()
			if url != "" {
				url = maskWebhookURL(url)
			} else {
				url = "(not set)"
			}

			fmt.Println("webhook-url:", url)
			fmt.Println("output:     ", viper.GetString("output"))
			fmt.Println("verbose:    ", viper.GetBool("verbose"))

			if used := viper.ConfigFileUsed(); used != "" {
				fmt.Println("config file:", used)
			}

			return nil
		},
	}
}

// writeConfigValue persists one key into ~/.b24/config.yml, creating the
// directory and file with restrictive permissions.
func writeConfigValue(key, value string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}

	configDir := filepath.Join(home, ".b24")

	err = os.MkdirAll(configDir, constants.ConfigDirPerm)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", configDir, err)
	}

	configPath := filepath.Join(configDir, "config.yml")
	settings := map[string]any{}

	if data, err := os.ReadFile(configPath); err == nil {
		_ = yaml.Unmarshal(data, &settings)
	}

	settings[key] = value

	data, err := yaml.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}

	err = os.WriteFile(configPath, data, constants.ConfigFilePerm)
	if err != nil {
		return "", fmt.Errorf("writing %s: %w", configPath, err)
	}

	return configPath, nil
}

// maskWebhookURL hides the token path segment of a webhook URL.
func maskWebhookURL(url string) string {
	trimmed := strings.TrimSuffix(url, "/")

	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 || idx == len(trimmed)-1 {
		return "***"
	}

	return trimmed[:idx+1] + "***"
}
