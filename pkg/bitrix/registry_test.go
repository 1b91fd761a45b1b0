package bitrix_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/b24/pkg/bitrix"
)

// stubRepository satisfies bitrix.Repository with canned responses.
type stubRepository struct {
	entityType string
}

func (s *stubRepository) EntityType() string { return s.entityType }

func (s *stubRepository) Get(ctx context.Context, id int) (bitrix.Record, error) {
	return bitrix.Record{"ID": id}, nil
}

func (s *stubRepository) List(ctx context.Context, opts bitrix.ListOptions) (*bitrix.ListResponse, error) {
	return &bitrix.ListResponse{}, nil
}

func (s *stubRepository) ListAll(ctx context.Context, opts bitrix.ListOptions) ([]bitrix.Record, error) {
	return nil, nil
}

func (s *stubRepository) Fields(ctx context.Context) (map[string]any, error) {
	return map[string]any{}, nil
}

func (s *stubRepository) Create(ctx context.Context, fields bitrix.Record) (int, error) {
	return 1, nil
}

func (s *stubRepository) Update(ctx context.Context, id int, fields bitrix.Record) error {
	return nil
}

func (s *stubRepository) Delete(ctx context.Context, id int) error { return nil }

func (s *stubRepository) GetByIDs(ctx context.Context, ids []int) (map[int]bitrix.Record, error) {
	return nil, nil
}

func (s *stubRepository) CreateMany(ctx context.Context, items []bitrix.Record) []bitrix.CreateResult {
	return nil
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	contacts := &stubRepository{entityType: bitrix.EntityTypeContact}
	deals := &stubRepository{entityType: bitrix.EntityTypeDeal}

	registry, err := bitrix.NewRegistry(contacts, deals)
	require.NoError(t, err)

	t.Run("resolves registered types", func(t *testing.T) {
		t.Parallel()

		repo, err := registry.Get("contact")
		require.NoError(t, err)
		assert.Equal(t, "contact", repo.EntityType())
	})

	t.Run("matching is case-insensitive", func(t *testing.T) {
		t.Parallel()

		repo, err := registry.Get("Deal")
		require.NoError(t, err)
		assert.Equal(t, "deal", repo.EntityType())
	})

	t.Run("unregistered type fails", func(t *testing.T) {
		t.Parallel()

		_, err := registry.Get("invoice")
		require.ErrorIs(t, err, bitrix.ErrUnknownEntityType)
		assert.Contains(t, err.Error(), "invoice")
	})

	t.Run("entity types keep registration order", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, []string{"contact", "deal"}, registry.EntityTypes())
	})
}

func TestRegistryDuplicateRegistration(t *testing.T) {
	t.Parallel()

	_, err := bitrix.NewRegistry(
		&stubRepository{entityType: "contact"},
		&stubRepository{entityType: "Contact"},
	)
	require.Error(t, err)
}
