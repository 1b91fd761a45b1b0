// Package b24client provides the main entry point for creating Bitrix24 CRM clients
package b24client

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/fivetwenty-io/b24/internal/client"
	"github.com/fivetwenty-io/b24/pkg/bitrix"
)

// New creates a new Bitrix24 client from the given configuration. The
// webhook URL is normalized ("https://" is assumed when no scheme is given,
// a trailing slash is trimmed) and validated before any call is made.
func New(ctx context.Context, config *bitrix.Config) (bitrix.Client, error) {
	if config == nil {
		return nil, bitrix.ErrConfigRequired
	}

	if config.WebhookURL == "" {
		return nil, bitrix.ErrWebhookURLRequired
	}

	webhookURL, err := normalizeWebhookURL(config.WebhookURL)
	if err != nil {
		return nil, err
	}

	config.WebhookURL = webhookURL

	bitrixClient, err := client.New(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create new client: %w", err)
	}

	return bitrixClient, nil
}

// NewWithWebhook creates a client from a bare webhook URL with default
// settings.
func NewWithWebhook(ctx context.Context, webhookURL string) (bitrix.Client, error) {
	return New(ctx, &bitrix.Config{WebhookURL: webhookURL})
}

// normalizeWebhookURL brings the webhook URL into canonical form and checks
// that it can route a REST call.
func normalizeWebhookURL(raw string) (string, error) {
	webhookURL := strings.TrimSpace(raw)
	if !strings.HasPrefix(webhookURL, "http://") && !strings.HasPrefix(webhookURL, "https://") {
		webhookURL = "https://" + webhookURL
	}

	webhookURL = strings.TrimSuffix(webhookURL, "/")

	parsed, err := url.Parse(webhookURL)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", bitrix.ErrInvalidWebhookURL, raw, err)
	}

	if parsed.Host == "" {
		return "", fmt.Errorf("%w: %q has no host", bitrix.ErrInvalidWebhookURL, raw)
	}

	// A webhook URL carries the auth token in its path ("/rest/<user>/<token>"),
	// so a bare origin cannot be a valid webhook.
	if parsed.Path == "" || parsed.Path == "/" {
		return "", fmt.Errorf("%w: %q has no webhook path", bitrix.ErrInvalidWebhookURL, raw)
	}

	return webhookURL, nil
}
