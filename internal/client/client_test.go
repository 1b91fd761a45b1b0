package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/b24/pkg/bitrix"
)

func newTestClient(t *testing.T, portal *fakePortal) *Client {
	t.Helper()

	client, err := New(context.Background(), &bitrix.Config{
		WebhookURL: portal.webhookURL(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("nil config fails", func(t *testing.T) {
		t.Parallel()

		_, err := New(context.Background(), nil)
		require.ErrorIs(t, err, bitrix.ErrConfigRequired)
	})

	t.Run("empty webhook URL fails", func(t *testing.T) {
		t.Parallel()

		_, err := New(context.Background(), &bitrix.Config{})
		require.ErrorIs(t, err, bitrix.ErrWebhookURLRequired)
	})

	t.Run("verify on init probes the portal", func(t *testing.T) {
		t.Parallel()

		portal := newFakePortal(t)
		portal.respond("profile", map[string]string{"ID": "1", "NAME": "Admin"})

		client, err := New(context.Background(), &bitrix.Config{
			WebhookURL:   portal.webhookURL(),
			VerifyOnInit: true,
		})
		require.NoError(t, err)
		defer func() { _ = client.Close() }()

		assert.Equal(t, 1, portal.callCount("profile"))
	})

	t.Run("verify on init surfaces bad credentials", func(t *testing.T) {
		t.Parallel()

		portal := newFakePortal(t)
		portal.respondError("profile", "INVALID_CREDENTIALS", "Invalid request credentials")

		_, err := New(context.Background(), &bitrix.Config{
			WebhookURL:   portal.webhookURL(),
			VerifyOnInit: true,
		})
		require.Error(t, err)

		apiErr := &bitrix.APIError{}
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "INVALID_CREDENTIALS", apiErr.Code)
	})
}

func TestClientRegistry(t *testing.T) {
	t.Parallel()

	portal := newFakePortal(t)
	client := newTestClient(t, portal)

	t.Run("contacts and deals are registered", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, []string{"contact", "deal"}, client.Registry().EntityTypes())
	})

	t.Run("registry serves the same repositories as the accessors", func(t *testing.T) {
		t.Parallel()

		repo, err := client.Registry().Get("contact")
		require.NoError(t, err)
		assert.Equal(t, client.Contacts().EntityType(), repo.EntityType())
	})

	t.Run("unknown entity type fails", func(t *testing.T) {
		t.Parallel()

		_, err := client.Registry().Get("invoice")
		require.ErrorIs(t, err, bitrix.ErrUnknownEntityType)
	})
}

func TestClientVerify(t *testing.T) {
	t.Parallel()

	portal := newFakePortal(t)
	portal.respond("profile", map[string]string{"ID": "1", "NAME": "Admin"})

	client := newTestClient(t, portal)

	require.NoError(t, client.Verify(context.Background()))
}

var _ bitrix.Client = (*Client)(nil)
