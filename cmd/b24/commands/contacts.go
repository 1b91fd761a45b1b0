package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/b24/pkg/bitrix"
)

var contactListColumns = []string{"ID", "NAME", "LAST_NAME", "PHONE", "EMAIL", "COMPANY_ID"}

// NewContactsCommand creates the contacts command group.
func NewContactsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "contacts",
		Aliases: []string{"contact"},
		Short:   "Manage CRM contacts",
	}

	cmd.AddCommand(newContactsListCommand())
	cmd.AddCommand(newContactsGetCommand())
	cmd.AddCommand(newContactsGetManyCommand())
	cmd.AddCommand(newContactsCreateCommand())
	cmd.AddCommand(newContactsUpdateCommand())
	cmd.AddCommand(newContactsDeleteCommand())
	cmd.AddCommand(newContactsSearchCommand())
	cmd.AddCommand(newContactsFieldsCommand())
	cmd.AddCommand(newContactsCompaniesCommand())

	return cmd
}

func newContactsListCommand() *cobra.Command {
	var (
		filterArgs []string
		selectArgs []string
		all        bool
		start      int
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := createClient(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			filter, err := parseFilter(filterArgs)
			if err != nil {
				return err
			}

			opts := bitrix.ListOptions{
				Filter: filter,
				Select: selectArgs,
				Page:   bitrix.PageRequest{Start: start, Limit: limit},
			}

			ctx := cmd.Context()

			if all {
				records, err := client.Contacts().ListAll(ctx, opts)
				if err != nil {
					return err
				}

				return outputRecords(records, contactListColumns)
			}

			page, err := client.Contacts().List(ctx, opts)
			if err != nil {
				return err
			}

			err = outputRecords(page.Result, contactListColumns)
			if err != nil {
				return err
			}

			if page.Next != nil {
				fmt.Fprintf(os.Stderr, "More rows available, continue with --start %d (total %d)\n", *page.Next, page.Total)
			}

			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&filterArgs, "filter", "f", nil, "filter expression, e.g. STAGE_ID=NEW or '>=OPPORTUNITY=1000'")
	cmd.Flags().StringArrayVarP(&selectArgs, "select", "s", nil, "fields to return")
	cmd.Flags().BoolVar(&all, "all", false, "fetch every page")
	cmd.Flags().IntVar(&start, "start", 0, "row offset")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size cap")

	return cmd
}

func newContactsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Get a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("%w: %q", ErrRecordIDRequired, args[0])
			}

			client, err := createClient(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			record, err := client.Contacts().Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			return outputRecord(record)
		},
	}
}

func newContactsGetManyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get-many ID...",
		Short: "Get several contacts in one batch call",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int, len(args))

			for i, arg := range args {
				id, err := strconv.Atoi(arg)
				if err != nil {
					return fmt.Errorf("%w: %q", ErrRecordIDRequired, arg)
				}

				ids[i] = id
			}

			client, err := createClient(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			records, err := client.Contacts().GetByIDs(cmd.Context(), ids)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Some lookups failed: %v\n", err)
			}

			return outputRecords(sortByID(records), contactListColumns)
		},
	}
}

func newContactsCreateCommand() *cobra.Command {
	var fromJSON string

	cmd := &cobra.Command{
		Use:   "create NAME=value...",
		Short: "Create a contact",
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := writeFields(args, fromJSON)
			if err != nil {
				return err
			}

			client, err := createClient(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			id, err := client.Contacts().Create(cmd.Context(), fields)
			if err != nil {
				return err
			}

			fmt.Printf("Created contact %d\n", id)

			return nil
		},
	}

	cmd.Flags().StringVar(&fromJSON, "from-json", "", "read the fields from a JSON file instead of arguments")

	return cmd
}

func newContactsUpdateCommand() *cobra.Command {
	var fromJSON string

	cmd := &cobra.Command{
		Use:   "update ID NAME=value...",
		Short: "Update a contact",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("%w: %q", ErrRecordIDRequired, args[0])
			}

			fields, err := writeFields(args[1:], fromJSON)
			if err != nil {
				return err
			}

			client, err := createClient(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			err = client.Contacts().Update(cmd.Context(), id, fields)
			if err != nil {
				return err
			}

			fmt.Printf("Updated contact %d\n", id)

			return nil
		},
	}

	cmd.Flags().StringVar(&fromJSON, "from-json", "", "read the fields from a JSON file instead of arguments")

	return cmd
}

func newContactsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("%w: %q", ErrRecordIDRequired, args[0])
			}

			client, err := createClient(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			err = client.Contacts().Delete(cmd.Context(), id)
			if err != nil {
				return err
			}

			fmt.Printf("Deleted contact %d\n", id)

			return nil
		},
	}
}

func newContactsSearchCommand() *cobra.Command {
	var (
		phone string
		email string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "search [QUERY]",
		Short: "Search contacts by name, phone, or email",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := createClient(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			ctx := cmd.Context()

			var records []bitrix.Record

			switch {
			case phone != "":
				records, err = client.Contacts().SearchByPhone(ctx, phone, limit)
			case email != "":
				records, err = client.Contacts().SearchByEmail(ctx, email, limit)
			case len(args) == 1:
				records, err = client.Contacts().SearchByName(ctx, args[0], limit)
			default:
				return cmd.Usage()
			}

			if err != nil {
				return err
			}

			return outputRecords(records, contactListColumns)
		},
	}

	cmd.Flags().StringVar(&phone, "phone", "", "search by phone number")
	cmd.Flags().StringVar(&email, "email", "", "search by email address")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of results")

	return cmd
}

func newContactsFieldsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fields",
		Short: "Describe the contact field schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := createClient(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			schema, err := client.Contacts().Fields(cmd.Context())
			if err != nil {
				return err
			}

			return outputSchema(schema)
		},
	}
}

func newContactsCompaniesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "companies CONTACT_ID",
		Short: "List the companies linked to a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("%w: %q", ErrRecordIDRequired, args[0])
			}

			client, err := createClient(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			companies, err := client.Contacts().Companies(cmd.Context(), id)
			if err != nil {
				return err
			}

			return outputRecords(companies, []string{"COMPANY_ID", "SORT", "ROLE_ID", "IS_PRIMARY"})
		},
	}
}

// writeFields merges --from-json content with NAME=value arguments; the
// arguments win on conflict.
func writeFields(args []string, fromJSON string) (bitrix.Record, error) {
	fields := bitrix.Record{}

	if fromJSON != "" {
		data, err := os.ReadFile(fromJSON)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", fromJSON, err)
		}

		err = json.Unmarshal(data, &fields)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", fromJSON, err)
		}
	}

	argFields, err := parseFields(args)
	if err != nil {
		return nil, err
	}

	for name, value := range argFields {
		fields[name] = value
	}

	return fields, nil
}

// sortByID flattens a batch result map into an ID-ordered slice.
func sortByID(records map[int]bitrix.Record) []bitrix.Record {
	ids := make([]int, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	sorted := make([]bitrix.Record, 0, len(ids))
	for _, id := range ids {
		sorted = append(sorted, records[id])
	}

	return sorted
}
