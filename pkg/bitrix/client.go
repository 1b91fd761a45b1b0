package bitrix

import (
	"context"
	"time"
)

// Entity type tokens accepted by the registry.
const (
	EntityTypeContact = "contact"
	EntityTypeDeal    = "deal"
)

// ListOptions shapes one list call.
type ListOptions struct {
	// Filter narrows the result set. Nil means no filter.
	Filter *Filter

	// Select names the fields to return. Empty means DefaultSelect.
	Select []string

	// Order maps field names to SortAscending/SortDescending.
	Order Order

	// Page addresses the slice of the result set to return.
	Page PageRequest
}

// Reader provides the read operations of one entity type.
type Reader interface {
	// Get fetches one record by identifier. A missing record fails with
	// ErrNotFound.
	Get(ctx context.Context, id int) (Record, error)

	// List fetches one page of records matching the options, in server
	// order.
	List(ctx context.Context, opts ListOptions) (*ListResponse, error)

	// ListAll drains every page matching the options, concatenated in
	// server order. Each call re-issues requests from the start.
	ListAll(ctx context.Context, opts ListOptions) ([]Record, error)

	// Fields describes the entity's field schema, including custom fields.
	Fields(ctx context.Context) (map[string]any, error)
}

// Writer provides the write operations of one entity type.
type Writer interface {
	// Create inserts a record and returns its new identifier. With field
	// validation enabled, an unknown field name fails with ErrValidation.
	Create(ctx context.Context, fields Record) (int, error)

	// Update modifies the named fields of an existing record. Same
	// validation rules as Create. A missing record fails with ErrNotFound.
	Update(ctx context.Context, id int, fields Record) error

	// Delete removes a record. Deleting an ID the portal no longer knows
	// fails with ErrNotFound, so a repeated delete of the same ID fails
	// the second time.
	Delete(ctx context.Context, id int) error
}

// BatchOperator provides multi-record operations that collapse into a single
// outbound batch call.
type BatchOperator interface {
	// GetByIDs fetches several records in one batch call. Records the
	// portal reports missing are absent from the map; other sub-call
	// failures are joined into the returned error alongside the partial
	// result.
	GetByIDs(ctx context.Context, ids []int) (map[int]Record, error)

	// CreateMany inserts several records in one batch call. The result
	// slice is index-aligned with the input; each element carries the new
	// identifier or that sub-call's error.
	CreateMany(ctx context.Context, items []Record) []CreateResult
}

// CreateResult is the per-item outcome of CreateMany.
type CreateResult struct {
	ID  int
	Err error
}

// Repository is the full per-entity surface held by the registry.
type Repository interface {
	Reader
	Writer
	BatchOperator

	// EntityType returns the registry token for this repository.
	EntityType() string
}

// Related is one best-effort relationship resolution: the resolved record or
// the error that prevented resolving it, wrapped in
// ErrRelationshipResolution. A failed resolution never fails the fetch that
// requested it.
type Related struct {
	Record Record
	Err    error
}

// ContactsRepository provides contact-specific operations.
type ContactsRepository interface {
	Repository

	// SearchByName finds contacts whose name contains the query.
	SearchByName(ctx context.Context, name string, limit int) ([]Record, error)

	// SearchByPhone finds contacts by phone number.
	SearchByPhone(ctx context.Context, phone string, limit int) ([]Record, error)

	// SearchByEmail finds contacts by email address.
	SearchByEmail(ctx context.Context, email string, limit int) ([]Record, error)

	// Companies lists the companies linked to a contact.
	Companies(ctx context.Context, contactID int) ([]Record, error)
}

// DealsRepository provides deal-specific operations.
type DealsRepository interface {
	Repository

	// SearchByTitle finds deals whose title contains the query.
	SearchByTitle(ctx context.Context, title string, limit int) ([]Record, error)

	// Contacts lists the contact links of a deal.
	Contacts(ctx context.Context, dealID int) ([]Record, error)

	// AttachContact links a contact to a deal.
	AttachContact(ctx context.Context, dealID, contactID int) error

	// DetachContact removes a contact link from a deal.
	DetachContact(ctx context.Context, dealID, contactID int) error

	// GetWithContacts fetches a deal and resolves its linked contacts
	// through the contact repository. Resolution is best-effort: a
	// contact that cannot be resolved appears as a Related with its
	// error set, and the deal itself is still returned.
	GetWithContacts(ctx context.Context, id int) (Record, []Related, error)

	// Categories lists the portal's deal pipelines.
	Categories(ctx context.Context) ([]Record, error)

	// Stages lists the stages of one pipeline.
	Stages(ctx context.Context, categoryID int) ([]Record, error)
}

// Client is the root of the repository surface.
type Client interface {
	// Contacts returns the contact repository.
	Contacts() ContactsRepository

	// Deals returns the deal repository.
	Deals() DealsRepository

	// Registry returns the entity-type-keyed repository registry.
	Registry() *Registry

	// Verify probes the portal to confirm the webhook URL routes and
	// authenticates.
	Verify(ctx context.Context) error

	// Close releases held resources such as cache connections.
	Close() error
}

// Logger interface for logging.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// Config represents client configuration for building a bitrix.Client.
//
// # Authentication
//
// The webhook URL is the whole credential: the portal routes and
// authenticates on the URL's path segment. No token header exists and no
// token lifecycle is needed — treat the URL as a secret.
//
// # Timeouts and retries
//
// Per-request deadlines come from the context passed to client methods.
// Transient failures (5xx, 429, connection errors) are retried with backoff
// tuned via RetryMax/RetryWaitMin/RetryWaitMax.
type Config struct {
	// WebhookURL: per-account inbound webhook URL
	// (e.g. "https://example.bitrix24.com/rest/1/abc123xyz/"). The
	// constructor normalizes it by trimming a trailing slash and adding
	// "https://" if no scheme is present.
	WebhookURL string

	// HTTPTimeout: optional per-attempt HTTP timeout. Most callers should
	// rely on context deadlines instead.
	HTTPTimeout time.Duration

	// RetryMax: maximum number of retries for transient failures. If 0, a
	// sensible default is used.
	RetryMax int

	// RetryWaitMin: minimum backoff between retries.
	RetryWaitMin time.Duration

	// RetryWaitMax: maximum backoff between retries.
	RetryWaitMax time.Duration

	// Debug: enables verbose request/response logging when a Logger is
	// provided.
	Debug bool

	// Logger: optional structured logger used by the transport and
	// repositories.
	Logger Logger

	// UserAgent: overrides the default User-Agent header.
	UserAgent string

	// ValidateWriteFields: when true, Create and Update check field names
	// against the entity's field schema and fail with ErrValidation on an
	// unknown name. The schema is fetched once and cached.
	ValidateWriteFields bool

	// Cache: backend for the field-schema cache. Nil means the default
	// in-memory cache.
	Cache *CacheConfig

	// VerifyOnInit: when true, the constructor probes the portal before
	// returning.
	VerifyOnInit bool
}
