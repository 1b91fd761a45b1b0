// Package bitrix provides types, interfaces, and helpers for working with
// the Bitrix24 CRM REST API through an inbound webhook URL.
//
// # Overview
//
// The bitrix package defines the domain surface (Record, Filter, PageRequest,
// BatchRequest) and the capability interfaces repositories implement (Reader,
// Writer, BatchOperator, plus the contact- and deal-specific surfaces). A
// concrete implementation is provided by the b24client package, which wires
// configuration, transport, retries, and the field-schema cache. Most
// consumers should import b24client to construct a client and then work with
// the repository interfaces exposed here.
//
// Getting a client
//
//	import (
//	  "context"
//	  "log"
//
//	  "github.com/fivetwenty-io/b24/pkg/b24client"
//	  "github.com/fivetwenty-io/b24/pkg/bitrix"
//	)
//
//	func example() {
//	  ctx := context.Background()
//	  cli, err := b24client.NewWithWebhook(ctx, "https://example.bitrix24.com/rest/1/abc123xyz")
//	  if err != nil { log.Fatal(err) }
//
//	  contact, err := cli.Contacts().Get(ctx, 42)
//	  if err != nil { log.Fatal(err) }
//	  _ = contact
//	}
//
// # Filters and pagination
//
// Filter expresses list conditions as ordered (field, operator, value)
// triples encoded with the portal's prefix convention. The encoded output
// preserves condition order, so equal filters produce byte-identical
// requests. Listing composes a Filter with a PageRequest; ListAll walks the
// portal's 50-row pages until the data ends:
//
//	filter := bitrix.NewFilter().Equal("STAGE_ID", "NEW")
//	deals, err := cli.Deals().ListAll(ctx, bitrix.ListOptions{Filter: filter})
//
// # Batching
//
// BatchRequest groups up to 50 independent sub-requests, keyed by caller
// correlation keys, into one outbound call. Every key resolves to its own
// outcome; one failing sub-call does not fail its neighbors.
//
// # Errors
//
// Portal errors are represented by APIError; local failures use the static
// sentinel errors (ErrNotFound, ErrValidation, ErrInvalidFilter, ...).
// Helpers such as IsNotFound and IsRateLimited make it easy to branch on
// common cases.
package bitrix
