package constants

import (
	"math"
	"time"
)

// File and directory permissions.
const (
	// ConfigDirPerm is the permission for configuration directories.
	ConfigDirPerm = 0750

	// ConfigFilePerm is the permission for configuration files.
	ConfigFilePerm = 0600
)

// HTTP and network timeouts.
const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// ShortHTTPTimeout is used for quick operations such as the
	// connectivity probe.
	ShortHTTPTimeout = 10 * time.Second
)

// Retry limits.
const (
	// DefaultRetryMax is the default maximum number of retries.
	DefaultRetryMax = 5

	// DefaultRetryWaitMin is the minimum backoff between retries.
	DefaultRetryWaitMin = 1 * time.Second

	// DefaultRetryWaitMax is the maximum wait time between retries.
	DefaultRetryWaitMax = 10 * time.Second

	// ExtendedRetryWaitMax is used for operations that need longer waits.
	ExtendedRetryWaitMax = 30 * time.Second
)

// Pagination limits. The portal serves list methods in fixed pages of 50
// rows and addresses pages by the "start" offset.
const (
	// PortalPageSize is the row count the portal returns per list page.
	PortalPageSize = 50

	// MaxPageSize bounds the page limit a caller may request.
	MaxPageSize = 50

	// DefaultPageSize is the page limit used when the caller passes zero.
	DefaultPageSize = 50

	// MaxPageStart bounds the "start" offset before pagination aborts.
	MaxPageStart = math.MaxInt32
)

// Batching limits.
const (
	// MaxBatchCommands is the portal's documented cap of sub-requests in
	// one batch call.
	MaxBatchCommands = 50
)

// Cache sizing and lifetimes.
const (
	// DefaultCacheSize is the default cache size limit.
	DefaultCacheSize = 1000

	// DefaultCacheTTL is the default cache time-to-live.
	DefaultCacheTTL = 5 * time.Minute

	// FieldSchemaCacheTTL is the TTL for cached entity field schemas. The
	// schema changes only when an administrator edits custom fields, so a
	// longer lifetime is safe.
	FieldSchemaCacheTTL = 10 * time.Minute

	// MaxCacheValueSize is the maximum size for cached values (1MB).
	MaxCacheValueSize = 1024 * 1024
)

// Server defaults.
const (
	// DefaultServerAddr is the listen address for the HTTP facade.
	DefaultServerAddr = ":8484"

	// ServerShutdownTimeout bounds graceful shutdown.
	ServerShutdownTimeout = 10 * time.Second
)

// Output format constants.
const (
	// FormatJSON for JSON output format.
	FormatJSON = "json"

	// FormatYAML for YAML output format.
	FormatYAML = "yaml"

	// FormatTable for tabular output format.
	FormatTable = "table"
)

// Display limits.
const (
	// DefaultSearchLimit is the default result cap for search commands.
	DefaultSearchLimit = 10

	// ValueTruncationLength is the default length for truncating cell values.
	ValueTruncationLength = 60
)
