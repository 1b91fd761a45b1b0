// Package b24client provides the primary entry point for constructing a
// Bitrix24 CRM REST client that implements the bitrix.Client interface.
//
// It layers webhook URL normalization, HTTP transport with retries, and the
// field-schema cache on top of the repository interfaces and types defined in
// the bitrix package. Most applications should import b24client to build a
// client, then use the returned bitrix.Client to access the repositories via
// Contacts(), Deals(), or the entity-type registry.
//
// Quick start
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
//
//	  // Minimal: just the webhook URL.
//	  cli, err := b24client.NewWithWebhook(ctx, "https://example.bitrix24.com/rest/1/abc123xyz")
//	  if err != nil { log.Fatal(err) }
//
//	  // Or with explicit configuration:
//	  cli, err = b24client.New(ctx, &bitrix.Config{
//	    WebhookURL:          "https://example.bitrix24.com/rest/1/abc123xyz",
//	    ValidateWriteFields: true,
//	    VerifyOnInit:        true,
//	  })
//	  if err != nil { log.Fatal(err) }
//
//	  // Use repositories via the bitrix.Client interface
//	  deals, err := cli.Deals().ListAll(ctx, bitrix.ListOptions{
//	    Filter: bitrix.NewFilter().Equal("STAGE_ID", "NEW"),
//	  })
//	  if err != nil { log.Fatal(err) }
//	  _ = deals
//	}
//
// # Authentication
//
// The webhook URL is the whole credential: the portal authenticates on the
// URL's token path segment. There is no token exchange or refresh. Treat the
// URL as a secret and load it from the environment rather than source code.
package b24client
