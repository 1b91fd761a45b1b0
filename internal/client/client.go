package client

import (
	"context"
	"fmt"

	"github.com/fivetwenty-io/b24/internal/http"
	"github.com/fivetwenty-io/b24/pkg/bitrix"
)

// methodProfile identifies the webhook's user; it is the cheapest call that
// exercises both routing and auth.
const methodProfile = "profile"

// Client implements the bitrix.Client interface.
type Client struct {
	httpClient *http.Client
	logger     bitrix.Logger
	cache      bitrix.Cache

	contacts *ContactsClient
	deals    *DealsClient
	registry *bitrix.Registry
}

// New creates a client from the given configuration. The webhook URL must
// already be normalized and validated by the caller (pkg/b24client does
// this for public consumers).
func New(ctx context.Context, config *bitrix.Config) (*Client, error) {
	if config == nil {
		return nil, bitrix.ErrConfigRequired
	}

	if config.WebhookURL == "" {
		return nil, bitrix.ErrWebhookURLRequired
	}

	httpClient := http.NewClient(config.WebhookURL, httpOptions(config)...)

	cache, err := bitrix.NewCacheFromConfig(config.Cache)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	contacts := NewContactsClient(httpClient, cache, config.ValidateWriteFields, config.Logger)
	deals := NewDealsClient(httpClient, cache, config.ValidateWriteFields, config.Logger, contacts)

	registry, err := bitrix.NewRegistry(contacts, deals)
	if err != nil {
		_ = cache.Close()

		return nil, err
	}

	client := &Client{
		httpClient: httpClient,
		logger:     config.Logger,
		cache:      cache,
		contacts:   contacts,
		deals:      deals,
		registry:   registry,
	}

	if config.VerifyOnInit {
		err = client.Verify(ctx)
		if err != nil {
			_ = cache.Close()

			return nil, err
		}
	}

	return client, nil
}

// httpOptions translates the configuration into transport options.
func httpOptions(config *bitrix.Config) []http.Option {
	var opts []http.Option

	if config.Logger != nil {
		opts = append(opts, http.WithLogger(config.Logger))
	}

	if config.Debug {
		opts = append(opts, http.WithDebug(true))
	}

	if config.UserAgent != "" {
		opts = append(opts, http.WithUserAgent(config.UserAgent))
	}

	if config.HTTPTimeout > 0 {
		opts = append(opts, http.WithHTTPTimeout(config.HTTPTimeout))
	}

	if config.RetryMax > 0 || config.RetryWaitMin > 0 || config.RetryWaitMax > 0 {
		opts = append(opts, http.WithRetryConfig(config.RetryMax, config.RetryWaitMin, config.RetryWaitMax))
	}

	return opts
}

// Contacts implements bitrix.Client.
func (c *Client) Contacts() bitrix.ContactsRepository {
	return c.contacts
}

// Deals implements bitrix.Client.
func (c *Client) Deals() bitrix.DealsRepository {
	return c.deals
}

// Registry implements bitrix.Client.
func (c *Client) Registry() *bitrix.Registry {
	return c.registry
}

// Verify probes the portal to confirm the webhook URL routes and
// authenticates.
func (c *Client) Verify(ctx context.Context) error {
	resp, err := c.httpClient.Call(ctx, methodProfile, nil)
	if err != nil {
		return fmt.Errorf("verifying webhook: %w", err)
	}

	if c.logger != nil {
		var profile bitrix.Record
		if decodeErr := decodeRecord(resp.Result, &profile); decodeErr == nil {
			c.logger.Info("webhook verified", map[string]any{
				"user_id": profile.String("ID"),
				"name":    profile.String("NAME"),
			})
		}
	}

	return nil
}

// Close releases held resources.
func (c *Client) Close() error {
	err := c.cache.Close()
	if err != nil {
		return fmt.Errorf("closing cache: %w", err)
	}

	return nil
}
