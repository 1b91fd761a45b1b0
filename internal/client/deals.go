package client

import (
	"context"
	"fmt"

	"github.com/fivetwenty-io/b24/internal/http"
	"github.com/fivetwenty-io/b24/pkg/bitrix"
)

// Portal methods for deals and their relationships.
const (
	methodDealList          = "crm.deal.list"
	methodDealGet           = "crm.deal.get"
	methodDealAdd           = "crm.deal.add"
	methodDealUpdate        = "crm.deal.update"
	methodDealDelete        = "crm.deal.delete"
	methodDealFields        = "crm.deal.fields"
	methodDealContactAdd    = "crm.deal.contact.add"
	methodDealContactDelete = "crm.deal.contact.delete"
	methodDealContactItems  = "crm.deal.contact.items.get"
	methodDealCategoryList  = "crm.dealcategory.list"
	methodDealStageList     = "crm.dealcategory.stage.list"
)

// DealsClient implements bitrix.DealsRepository.
type DealsClient struct {
	*repository

	contacts bitrix.ContactsRepository
}

// NewDealsClient creates the deal repository. Linked contacts are resolved
// through the given contact repository.
func NewDealsClient(httpClient *http.Client, cache bitrix.Cache, validate bool, logger bitrix.Logger, contacts bitrix.ContactsRepository) *DealsClient {
	return &DealsClient{
		repository: newRepository(httpClient, bitrix.EntityTypeDeal, methodSet{
			List:   methodDealList,
			Get:    methodDealGet,
			Create: methodDealAdd,
			Update: methodDealUpdate,
			Delete: methodDealDelete,
			Fields: methodDealFields,
		}, cache, validate, logger),
		contacts: contacts,
	}
}

// SearchByTitle finds deals whose title contains the query.
func (c *DealsClient) SearchByTitle(ctx context.Context, title string, limit int) ([]bitrix.Record, error) {
	return c.search(ctx, bitrix.NewFilter().Contains("TITLE", title), limit)
}

// Contacts lists the contact links of a deal.
func (c *DealsClient) Contacts(ctx context.Context, dealID int) ([]bitrix.Record, error) {
	return c.relatedItems(ctx, methodDealContactItems, dealID)
}

// AttachContact links a contact to a deal.
func (c *DealsClient) AttachContact(ctx context.Context, dealID, contactID int) error {
	_, err := c.httpClient.Call(ctx, methodDealContactAdd, map[string]any{
		"id":     dealID,
		"fields": map[string]any{"CONTACT_ID": contactID},
	})
	if err != nil {
		if bitrix.IsNotFound(err) {
			return fmt.Errorf("%w: deal %d", bitrix.ErrNotFound, dealID)
		}

		return fmt.Errorf("attaching contact %d to deal %d: %w", contactID, dealID, err)
	}

	return nil
}

// DetachContact removes a contact link from a deal.
func (c *DealsClient) DetachContact(ctx context.Context, dealID, contactID int) error {
	_, err := c.httpClient.Call(ctx, methodDealContactDelete, map[string]any{
		"id":     dealID,
		"fields": map[string]any{"CONTACT_ID": contactID},
	})
	if err != nil {
		if bitrix.IsNotFound(err) {
			return fmt.Errorf("%w: deal %d", bitrix.ErrNotFound, dealID)
		}

		return fmt.Errorf("detaching contact %d from deal %d: %w", contactID, dealID, err)
	}

	return nil
}

// GetWithContacts fetches a deal and resolves its linked contacts through
// the contact repository. Resolution is best-effort: a contact that cannot
// be resolved appears in the result with its error set, and the deal itself
// is still returned.
func (c *DealsClient) GetWithContacts(ctx context.Context, id int) (bitrix.Record, []bitrix.Related, error) {
	deal, err := c.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	links, err := c.Contacts(ctx, id)
	if err != nil {
		return deal, nil, fmt.Errorf("%w: listing contacts of deal %d: %w", bitrix.ErrRelationshipResolution, id, err)
	}

	related := make([]bitrix.Related, 0, len(links))

	for _, link := range links {
		contactID, err := link.Int("CONTACT_ID")
		if err != nil {
			related = append(related, bitrix.Related{
				Err: fmt.Errorf("%w: deal %d link without CONTACT_ID: %w", bitrix.ErrRelationshipResolution, id, err),
			})

			continue
		}

		contact, err := c.contacts.Get(ctx, contactID)
		if err != nil {
			related = append(related, bitrix.Related{
				Err: fmt.Errorf("%w: contact %d of deal %d: %w", bitrix.ErrRelationshipResolution, contactID, id, err),
			})

			continue
		}

		related = append(related, bitrix.Related{Record: contact})
	}

	return deal, related, nil
}

// Categories lists the portal's deal pipelines.
func (c *DealsClient) Categories(ctx context.Context) ([]bitrix.Record, error) {
	resp, err := c.httpClient.Call(ctx, methodDealCategoryList, nil)
	if err != nil {
		return nil, fmt.Errorf("listing deal categories: %w", err)
	}

	var categories []bitrix.Record

	err = decodeRecords(resp.Result, &categories)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing deal categories: %w", bitrix.ErrUnexpectedResponse, err)
	}

	return categories, nil
}

// Stages lists the stages of one pipeline.
func (c *DealsClient) Stages(ctx context.Context, categoryID int) ([]bitrix.Record, error) {
	resp, err := c.httpClient.Call(ctx, methodDealStageList, map[string]any{"id": categoryID})
	if err != nil {
		return nil, fmt.Errorf("listing stages of category %d: %w", categoryID, err)
	}

	var stages []bitrix.Record

	err = decodeRecords(resp.Result, &stages)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing category %d stages: %w", bitrix.ErrUnexpectedResponse, categoryID, err)
	}

	return stages, nil
}
