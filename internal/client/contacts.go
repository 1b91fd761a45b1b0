package client

import (
	"context"

	"github.com/fivetwenty-io/b24/internal/http"
	"github.com/fivetwenty-io/b24/pkg/bitrix"
)

// Portal methods for contacts.
const (
	methodContactList      = "crm.contact.list"
	methodContactGet       = "crm.contact.get"
	methodContactAdd       = "crm.contact.add"
	methodContactUpdate    = "crm.contact.update"
	methodContactDelete    = "crm.contact.delete"
	methodContactFields    = "crm.contact.fields"
	methodContactCompanies = "crm.contact.company.items.get"
)

// ContactsClient implements bitrix.ContactsRepository.
type ContactsClient struct {
	*repository
}

// NewContactsClient creates the contact repository.
func NewContactsClient(httpClient *http.Client, cache bitrix.Cache, validate bool, logger bitrix.Logger) *ContactsClient {
	return &ContactsClient{
		repository: newRepository(httpClient, bitrix.EntityTypeContact, methodSet{
			List:   methodContactList,
			Get:    methodContactGet,
			Create: methodContactAdd,
			Update: methodContactUpdate,
			Delete: methodContactDelete,
			Fields: methodContactFields,
		}, cache, validate, logger),
	}
}

// SearchByName finds contacts whose name contains the query.
func (c *ContactsClient) SearchByName(ctx context.Context, name string, limit int) ([]bitrix.Record, error) {
	return c.search(ctx, bitrix.NewFilter().Contains("NAME", name), limit)
}

// SearchByPhone finds contacts by phone number.
func (c *ContactsClient) SearchByPhone(ctx context.Context, phone string, limit int) ([]bitrix.Record, error) {
	return c.search(ctx, bitrix.NewFilter().Equal("PHONE", phone), limit)
}

// SearchByEmail finds contacts by email address.
func (c *ContactsClient) SearchByEmail(ctx context.Context, email string, limit int) ([]bitrix.Record, error) {
	return c.search(ctx, bitrix.NewFilter().Equal("EMAIL", email), limit)
}

// Companies lists the companies linked to a contact.
func (c *ContactsClient) Companies(ctx context.Context, contactID int) ([]bitrix.Record, error) {
	return c.relatedItems(ctx, methodContactCompanies, contactID)
}
