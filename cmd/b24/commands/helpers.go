package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/fivetwenty-io/b24/internal/constants"
	"github.com/fivetwenty-io/b24/pkg/b24client"
	"github.com/fivetwenty-io/b24/pkg/bitrix"
)

// Output formats.
const (
	OutputFormatJSON = "json"
	OutputFormatYAML = "yaml"
)

// Common static errors used throughout the commands package.
var (
	ErrWebhookURLNotConfigured = errors.New("webhook URL not configured (use --webhook-url, BITRIX_WEBHOOK_URL, or 'b24 config set-webhook')")
	ErrInvalidFieldFormat      = errors.New("invalid field format, expected NAME=value")
	ErrInvalidFilterFormat     = errors.New("invalid filter format, expected FIELD=value with an optional operator prefix")
	ErrRecordIDRequired        = errors.New("record ID is required")
)

// BindEnv wires the B24_ environment prefix into viper. Dashed config keys
// map onto underscored variables, so "webhook-url" reads B24_WEBHOOK_URL.
func BindEnv() {
	viper.SetEnvPrefix("B24")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// webhookURL resolves the webhook URL from flags, config, and environment.
func webhookURL() string {
	if url := viper.GetString("webhook-url"); url != "" {
		return url
	}

	// The conventional variable name, without the viper prefix.
	return os.Getenv("BITRIX_WEBHOOK_URL")
}

// createClient builds a client from the resolved configuration.
func createClient(cmd *cobra.Command) (bitrix.Client, error) {
	url := webhookURL()
	if url == "" {
		return nil, ErrWebhookURLNotConfigured
	}

	config := &bitrix.Config{
		WebhookURL:          url,
		Debug:               viper.GetBool("verbose"),
		Logger:              newSlogAdapter(newLogger()),
		ValidateWriteFields: viper.GetBool("validate-fields"),
	}

	client, err := b24client.New(cmd.Context(), config)
	if err != nil {
		return nil, fmt.Errorf("creating client: %w", err)
	}

	return client, nil
}

// newLogger builds the process logger honoring the log level environment
// variables and --verbose.
func newLogger() *slog.Logger {
	level := parseLogLevel(logLevelName())
	if viper.GetBool("verbose") && level > slog.LevelDebug {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// logLevelName reads B24_LOG_LEVEL, falling back to the unprefixed name.
func logLevelName() string {
	if name := os.Getenv("B24_LOG_LEVEL"); name != "" {
		return name
	}

	return os.Getenv("LOG_LEVEL")
}

// parseLogLevel maps the conventional level names onto slog levels. Unknown
// names fall back to INFO.
func parseLogLevel(name string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO", "":
		return slog.LevelInfo
	case "WARNING", "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	case "CRITICAL":
		return slog.LevelError + 4
	default:
		return slog.LevelInfo
	}
}

// slogAdapter implements bitrix.Logger over *slog.Logger.
type slogAdapter struct {
	logger *slog.Logger
}

func newSlogAdapter(logger *slog.Logger) *slogAdapter {
	return &slogAdapter{logger: logger}
}

func (a *slogAdapter) Debug(msg string, fields map[string]any) { a.log(slog.LevelDebug, msg, fields) }
func (a *slogAdapter) Info(msg string, fields map[string]any)  { a.log(slog.LevelInfo, msg, fields) }
func (a *slogAdapter) Warn(msg string, fields map[string]any)  { a.log(slog.LevelWarn, msg, fields) }
func (a *slogAdapter) Error(msg string, fields map[string]any) { a.log(slog.LevelError, msg, fields) }

func (a *slogAdapter) log(level slog.Level, msg string, fields map[string]any) {
	attrs := make([]any, 0, len(fields)*2)

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		attrs = append(attrs, key, fields[key])
	}

	a.logger.Log(context.Background(), level, msg, attrs...)
}

// outputRecords renders records in the configured output format.
func outputRecords(records []bitrix.Record, columns []string) error {
	output := viper.GetString("output")
	switch output {
	case OutputFormatJSON:
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")

		return encoder.Encode(records)
	case OutputFormatYAML:
		encoder := yaml.NewEncoder(os.Stdout)

		return encoder.Encode(records)
	default:
		renderTable(records, columns)

		return nil
	}
}

// outputRecord renders one record.
func outputRecord(record bitrix.Record) error {
	output := viper.GetString("output")
	switch output {
	case OutputFormatJSON:
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")

		return encoder.Encode(record)
	case OutputFormatYAML:
		encoder := yaml.NewEncoder(os.Stdout)

		return encoder.Encode(record)
	default:
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Field", "Value")

		keys := make([]string, 0, len(record))
		for key := range record {
			keys = append(keys, key)
		}

		sort.Strings(keys)

		for _, key := range keys {
			_ = table.Append([]string{key, truncate(record.String(key))})
		}

		_ = table.Render()

		return nil
	}
}

// outputSchema renders a field schema. Tables show one row per field with
// its type and custom-field flag.
func outputSchema(schema map[string]any) error {
	output := viper.GetString("output")
	switch output {
	case OutputFormatJSON:
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")

		return encoder.Encode(schema)
	case OutputFormatYAML:
		encoder := yaml.NewEncoder(os.Stdout)

		return encoder.Encode(schema)
	default:
		names := make([]string, 0, len(schema))
		for name := range schema {
			names = append(names, name)
		}

		sort.Strings(names)

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Field", "Type", "Custom")

		for _, name := range names {
			fieldType := ""
			custom := ""

			if meta, ok := schema[name].(map[string]any); ok {
				if t, ok := meta["type"].(string); ok {
					fieldType = t
				}

				if d, ok := meta["isDynamic"].(bool); ok && d {
					custom = "yes"
				}
			}

			_ = table.Append([]string{name, fieldType, custom})
		}

		_ = table.Render()

		return nil
	}
}

// renderTable prints the named columns of each record.
func renderTable(records []bitrix.Record, columns []string) {
	if len(records) == 0 {
		fmt.Println("No records found")

		return
	}

	table := tablewriter.NewWriter(os.Stdout)

	header := make([]string, len(columns))
	for i, column := range columns {
		header[i] = column
	}

	table.Header(header)

	for _, record := range records {
		row := make([]string, len(columns))
		for i, column := range columns {
			row[i] = truncate(record.String(column))
		}

		_ = table.Append(row)
	}

	_ = table.Render()
}

func truncate(value string) string {
	if len(value) <= constants.ValueTruncationLength {
		return value
	}

	return value[:constants.ValueTruncationLength] + "..."
}

// parseFields parses NAME=value pairs into a record.
func parseFields(args []string) (bitrix.Record, error) {
	fields := make(bitrix.Record, len(args))

	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidFieldFormat, arg)
		}

		fields[name] = value
	}

	return fields, nil
}

// filterOperatorPrefixes maps command-line filter prefixes to operators,
// longest first so ">=" wins over ">".
var filterOperatorPrefixes = []struct {
	prefix string
	op     bitrix.Operator
}{
	{">=", bitrix.OpGreaterOrEqual},
	{"<=", bitrix.OpLessOrEqual},
	{"!@", bitrix.OpNotIn},
	{">", bitrix.OpGreater},
	{"<", bitrix.OpLess},
	{"!", bitrix.OpNotEqual},
	{"%", bitrix.OpContains},
	{"@", bitrix.OpIn},
}

// parseFilter parses filter expressions of the form [op]FIELD=value, using
// the portal's own prefix convention (">=AMOUNT=100", "%NAME=Ivan").
func parseFilter(args []string) (*bitrix.Filter, error) {
	if len(args) == 0 {
		return nil, nil
	}

	filter := bitrix.NewFilter()

	for _, arg := range args {
		operator := bitrix.OpEqual
		expr := arg

		for _, candidate := range filterOperatorPrefixes {
			if strings.HasPrefix(expr, candidate.prefix) {
				operator = candidate.op
				expr = strings.TrimPrefix(expr, candidate.prefix)

				break
			}
		}

		field, value, ok := strings.Cut(expr, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidFilterFormat, arg)
		}

		if operator == bitrix.OpIn || operator == bitrix.OpNotIn {
			parts := strings.Split(value, ",")
			values := make([]any, len(parts))

			for i, part := range parts {
				values[i] = strings.TrimSpace(part)
			}

			filter.Where(field, operator, values)

			continue
		}

		filter.Where(field, operator, value)
	}

	return filter, nil
}
