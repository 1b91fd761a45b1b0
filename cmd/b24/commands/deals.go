package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/b24/pkg/bitrix"
)

var dealListColumns = []string{"ID", "TITLE", "STAGE_ID", "OPPORTUNITY", "CURRENCY_ID", "CONTACT_ID"}

// NewDealsCommand creates the deals command group.
func NewDealsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deals",
		Aliases: []string{"deal"},
		Short:   "Manage CRM deals",
	}

	cmd.AddCommand(newDealsListCommand())
	cmd.AddCommand(newDealsGetCommand())
	cmd.AddCommand(newDealsGetManyCommand())
	cmd.AddCommand(newDealsCreateCommand())
	cmd.AddCommand(newDealsUpdateCommand())
	cmd.AddCommand(newDealsDeleteCommand())
	cmd.AddCommand(newDealsSearchCommand())
	cmd.AddCommand(newDealsFieldsCommand())
	cmd.AddCommand(newDealsContactsCommand())
	cmd.AddCommand(newDealsAttachContactCommand())
	cmd.AddCommand(newDealsDetachContactCommand())
	cmd.AddCommand(newDealsCategoriesCommand())
	cmd.AddCommand(newDealsStagesCommand())

	return cmd
}

func newDealsListCommand() *cobra.Command {
	var (
		filterArgs []string
		selectArgs []string
		all        bool
		start      int
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deals",
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
				records, err := client.Deals().ListAll(ctx, opts)
				if err != nil {
					return err
				}

				return outputRecords(records, dealListColumns)
			}

			page, err := client.Deals().List(ctx, opts)
			if err != nil {
				return err
			}

			err = outputRecords(page.Result, dealListColumns)
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

func newDealsGetCommand() *cobra.Command {
	var withContacts bool

	cmd := &cobra.Command{
		Use:   "get ID",
		Short: "Get a deal",
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

			ctx := cmd.Context()

			if !withContacts {
				record, err := client.Deals().Get(ctx, id)
				if err != nil {
					return err
				}

				return outputRecord(record)
			}

			deal, related, err := client.Deals().GetWithContacts(ctx, id)
			if err != nil {
				return err
			}

			err = outputRecord(deal)
			if err != nil {
				return err
			}

			contacts := make([]bitrix.Record, 0, len(related))

			for _, item := range related {
				if item.Err != nil {
					fmt.Fprintf(os.Stderr, "Warning: %v\n", item.Err)

					continue
				}

				contacts = append(contacts, item.Record)
			}

			if len(contacts) > 0 {
				fmt.Println("\nLinked contacts:")

				return outputRecords(contacts, contactListColumns)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&withContacts, "with-contacts", false, "resolve and print the linked contacts")

	return cmd
}

func newDealsGetManyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get-many ID...",
		Short: "Get several deals in one batch call",
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

			records, err := client.Deals().GetByIDs(cmd.Context(), ids)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Some lookups failed: %v\n", err)
			}

			return outputRecords(sortByID(records), dealListColumns)
		},
	}
}

func newDealsCreateCommand() *cobra.Command {
	var fromJSON string

	cmd := &cobra.Command{
		Use:   "create NAME=value...",
		Short: "Create a deal",
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

			id, err := client.Deals().Create(cmd.Context(), fields)
			if err != nil {
				return err
			}

			fmt.Printf("Created deal %d\n", id)

			return nil
		},
	}

	cmd.Flags().StringVar(&fromJSON, "from-json", "", "read the fields from a JSON file instead of arguments")

	return cmd
}

func newDealsUpdateCommand() *cobra.Command {
	var fromJSON string

	cmd := &cobra.Command{
		Use:   "update ID NAME=value...",
		Short: "Update a deal",
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

			err = client.Deals().Update(cmd.Context(), id, fields)
			if err != nil {
				return err
			}

			fmt.Printf("Updated deal %d\n", id)

			return nil
		},
	}

	cmd.Flags().StringVar(&fromJSON, "from-json", "", "read the fields from a JSON file instead of arguments")

	return cmd
}

func newDealsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a deal",
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

			err = client.Deals().Delete(cmd.Context(), id)
			if err != nil {
				return err
			}

			fmt.Printf("Deleted deal %d\n", id)

			return nil
		},
	}
}

func newDealsSearchCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search deals by title",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := createClient(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			records, err := client.Deals().SearchByTitle(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}

			return outputRecords(records, dealListColumns)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of results")

	return cmd
}

func newDealsFieldsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fields",
		Short: "Describe the deal field schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := createClient(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			schema, err := client.Deals().Fields(cmd.Context())
			if err != nil {
				return err
			}

			return outputSchema(schema)
		},
	}
}

func newDealsContactsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "contacts DEAL_ID",
		Short: "List the contact links of a deal",
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

			links, err := client.Deals().Contacts(cmd.Context(), id)
			if err != nil {
				return err
			}

			return outputRecords(links, []string{"CONTACT_ID", "SORT", "ROLE_ID", "IS_PRIMARY"})
		},
	}
}

func newDealsAttachContactCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "attach-contact DEAL_ID CONTACT_ID",
		Short: "Link a contact to a deal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dealID, contactID, err := parseIDPair(args)
			if err != nil {
				return err
			}

			client, err := createClient(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			err = client.Deals().AttachContact(cmd.Context(), dealID, contactID)
			if err != nil {
				return err
			}

			fmt.Printf("Attached contact %d to deal %d\n", contactID, dealID)

			return nil
		},
	}
}

func newDealsDetachContactCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "detach-contact DEAL_ID CONTACT_ID",
		Short: "Remove a contact link from a deal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dealID, contactID, err := parseIDPair(args)
			if err != nil {
				return err
			}

			client, err := createClient(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			err = client.Deals().DetachContact(cmd.Context(), dealID, contactID)
			if err != nil {
				return err
			}

			fmt.Printf("Detached contact %d from deal %d\n", contactID, dealID)

			return nil
		},
	}
}

func newDealsCategoriesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the deal pipelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := createClient(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			categories, err := client.Deals().Categories(cmd.Context())
			if err != nil {
				return err
			}

			return outputRecords(categories, []string{"ID", "NAME", "SORT", "IS_LOCKED"})
		},
	}
}

func newDealsStagesCommand() *cobra.Command {
	var categoryID int

	cmd := &cobra.Command{
		Use:   "stages",
		Short: "List the stages of a pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := createClient(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			stages, err := client.Deals().Stages(cmd.Context(), categoryID)
			if err != nil {
				return err
			}

			return outputRecords(stages, []string{"STATUS_ID", "NAME", "SORT"})
		},
	}

	cmd.Flags().IntVar(&categoryID, "category", 0, "pipeline (deal category) ID")

	return cmd
}

func parseIDPair(args []string) (int, int, error) {
	first, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrRecordIDRequired, args[0])
	}

	second, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrRecordIDRequired, args[1])
	}

	return first, second, nil
}
