package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/fivetwenty-io/b24/internal/constants"
	"github.com/fivetwenty-io/b24/internal/http"
	"github.com/fivetwenty-io/b24/pkg/bitrix"
)

// methodSet names the portal methods backing one entity type.
type methodSet struct {
	List   string
	Get    string
	Create string
	Update string
	Delete string
	Fields string
}

// repository implements bitrix.Reader, bitrix.Writer and bitrix.BatchOperator
// for one entity type. Entity-specific surfaces embed it.
type repository struct {
	httpClient *http.Client
	entityType string
	methods    methodSet
	cache      bitrix.Cache
	validate   bool
	batch      *bitrix.BatchExecutor
	logger     bitrix.Logger
}

func newRepository(httpClient *http.Client, entityType string, methods methodSet, cache bitrix.Cache, validate bool, logger bitrix.Logger) *repository {
	return &repository{
		httpClient: httpClient,
		entityType: entityType,
		methods:    methods,
		cache:      cache,
		validate:   validate,
		batch:      bitrix.NewBatchExecutor(httpClient),
		logger:     logger,
	}
}

// EntityType implements bitrix.Repository.
func (r *repository) EntityType() string {
	return r.entityType
}

// Get implements bitrix.Reader.
func (r *repository) Get(ctx context.Context, id int) (bitrix.Record, error) {
	resp, err := r.httpClient.Call(ctx, r.methods.Get, map[string]any{"id": id})
	if err != nil {
		if bitrix.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s %d", bitrix.ErrNotFound, r.entityType, id)
		}

		return nil, fmt.Errorf("getting %s %d: %w", r.entityType, id, err)
	}

	var record bitrix.Record

	err = json.Unmarshal(resp.Result, &record)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s %d: %w", bitrix.ErrUnexpectedResponse, r.entityType, id, err)
	}

	return record, nil
}

// List implements bitrix.Reader. It issues exactly one list call and trims
// the page to the requested limit.
func (r *repository) List(ctx context.Context, opts bitrix.ListOptions) (*bitrix.ListResponse, error) {
	page, err := opts.Page.Normalize()
	if err != nil {
		return nil, err
	}

	params, err := listParams(opts, page.Start)
	if err != nil {
		return nil, err
	}

	resp, err := r.httpClient.Call(ctx, r.methods.List, params)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", r.entityType, err)
	}

	var records []bitrix.Record

	err = json.Unmarshal(resp.Result, &records)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s list: %w", bitrix.ErrUnexpectedResponse, r.entityType, err)
	}

	if len(records) > page.Limit {
		records = records[:page.Limit]
	}

	return &bitrix.ListResponse{
		Result: records,
		Total:  resp.Total,
		Next:   resp.Next,
	}, nil
}

// ListAll implements bitrix.Reader. It walks the portal's fixed-size pages
// until the data ends.
func (r *repository) ListAll(ctx context.Context, opts bitrix.ListOptions) ([]bitrix.Record, error) {
	if opts.Page.Start < 0 {
		return nil, fmt.Errorf("%w: negative start offset %d", bitrix.ErrPagination, opts.Page.Start)
	}

	pager := bitrix.NewPager(ctx, &listPageFetcher{repo: r, opts: opts}, opts.Page.Start)

	records, err := pager.All()
	if err != nil {
		return nil, fmt.Errorf("listing all %s: %w", r.entityType, err)
	}

	return records, nil
}

// listPageFetcher adapts one list call into the pager's page protocol.
type listPageFetcher struct {
	repo *repository
	opts bitrix.ListOptions
}

func (f *listPageFetcher) FetchPage(ctx context.Context, start int) (*bitrix.ListResponse, error) {
	params, err := listParams(f.opts, start)
	if err != nil {
		return nil, err
	}

	resp, err := f.repo.httpClient.Call(ctx, f.repo.methods.List, params)
	if err != nil {
		return nil, fmt.Errorf("listing %s at offset %d: %w", f.repo.entityType, start, err)
	}

	var records []bitrix.Record

	err = json.Unmarshal(resp.Result, &records)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s list: %w", bitrix.ErrUnexpectedResponse, f.repo.entityType, err)
	}

	return &bitrix.ListResponse{Result: records, Total: resp.Total, Next: resp.Next}, nil
}

// listParams builds the body of one list call.
func listParams(opts bitrix.ListOptions, start int) (map[string]any, error) {
	selectFields := opts.Select
	if len(selectFields) == 0 {
		selectFields = bitrix.DefaultSelect()
	}

	params := map[string]any{
		"select": selectFields,
		"start":  start,
	}

	if opts.Filter != nil && opts.Filter.Len() > 0 {
		filterParams, err := opts.Filter.Build()
		if err != nil {
			return nil, err
		}

		params["filter"] = filterParams
	}

	if len(opts.Order) > 0 {
		params["order"] = opts.Order
	}

	return params, nil
}

// Fields implements bitrix.Reader. The schema is cached between calls.
func (r *repository) Fields(ctx context.Context) (map[string]any, error) {
	cacheKey := "fields:" + r.entityType

	if entry, err := r.cache.Get(ctx, cacheKey); err == nil {
		var schema map[string]any
		if json.Unmarshal(entry.Value, &schema) == nil {
			return schema, nil
		}
	}

	resp, err := r.httpClient.Call(ctx, r.methods.Fields, nil)
	if err != nil {
		return nil, fmt.Errorf("describing %s fields: %w", r.entityType, err)
	}

	var schema map[string]any

	err = json.Unmarshal(resp.Result, &schema)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s field schema: %w", bitrix.ErrUnexpectedResponse, r.entityType, err)
	}

	if encoded, err := json.Marshal(schema); err == nil {
		_ = r.cache.Set(ctx, cacheKey, encoded, constants.FieldSchemaCacheTTL)
	}

	return schema, nil
}

// Create implements bitrix.Writer.
func (r *repository) Create(ctx context.Context, fields bitrix.Record) (int, error) {
	err := r.validateFields(ctx, fields)
	if err != nil {
		return 0, err
	}

	resp, err := r.httpClient.Call(ctx, r.methods.Create, map[string]any{"fields": fields})
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", r.entityType, err)
	}

	id, err := parseID(resp.Result)
	if err != nil {
		return 0, fmt.Errorf("parsing created %s ID: %w", r.entityType, err)
	}

	if r.logger != nil {
		r.logger.Debug("created record", map[string]any{
			"entity_type": r.entityType,
			"id":          id,
		})
	}

	return id, nil
}

// Update implements bitrix.Writer.
func (r *repository) Update(ctx context.Context, id int, fields bitrix.Record) error {
	err := r.validateFields(ctx, fields)
	if err != nil {
		return err
	}

	_, err = r.httpClient.Call(ctx, r.methods.Update, map[string]any{
		"id":     id,
		"fields": fields,
	})
	if err != nil {
		if bitrix.IsNotFound(err) {
			return fmt.Errorf("%w: %s %d", bitrix.ErrNotFound, r.entityType, id)
		}

		return fmt.Errorf("updating %s %d: %w", r.entityType, id, err)
	}

	return nil
}

// Delete implements bitrix.Writer. The portal forgets the ID on the first
// delete, so a repeated delete of the same ID fails with ErrNotFound.
func (r *repository) Delete(ctx context.Context, id int) error {
	_, err := r.httpClient.Call(ctx, r.methods.Delete, map[string]any{"id": id})
	if err != nil {
		if bitrix.IsNotFound(err) {
			return fmt.Errorf("%w: %s %d", bitrix.ErrNotFound, r.entityType, id)
		}

		return fmt.Errorf("deleting %s %d: %w", r.entityType, id, err)
	}

	return nil
}

// validateFields checks field names against the entity's schema when write
// validation is enabled.
func (r *repository) validateFields(ctx context.Context, fields bitrix.Record) error {
	if !r.validate || len(fields) == 0 {
		return nil
	}

	schema, err := r.Fields(ctx)
	if err != nil {
		return fmt.Errorf("loading %s schema for validation: %w", r.entityType, err)
	}

	for name := range fields {
		if _, ok := schema[name]; !ok {
			return fmt.Errorf("%w: unknown %s field %q", bitrix.ErrValidation, r.entityType, name)
		}
	}

	return nil
}

// GetByIDs implements bitrix.BatchOperator. Missing records are simply absent
// from the result map; other sub-call failures are joined into the returned
// error alongside the partial result.
func (r *repository) GetByIDs(ctx context.Context, ids []int) (map[int]bitrix.Record, error) {
	request := bitrix.NewBatchRequest()

	for _, id := range ids {
		err := request.AddGet(fmt.Sprintf("get_%d", id), r.methods.Get, id)
		if err != nil && !errors.Is(err, bitrix.ErrDuplicateBatchKey) {
			return nil, err
		}
	}

	response, err := r.batch.Execute(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("batch-getting %s records: %w", r.entityType, err)
	}

	records := make(map[int]bitrix.Record, len(ids))

	var failures []error

	for _, id := range ids {
		outcome, ok := response.Get(fmt.Sprintf("get_%d", id))
		if !ok {
			continue
		}

		if outcome.Err != nil {
			if bitrix.IsNotFound(outcome.Err) {
				continue
			}

			failures = append(failures, fmt.Errorf("%s %d: %w", r.entityType, id, outcome.Err))

			continue
		}

		var record bitrix.Record

		err = outcome.Decode(&record)
		if err != nil {
			failures = append(failures, fmt.Errorf("%s %d: %w", r.entityType, id, err))

			continue
		}

		records[id] = record
	}

	return records, errors.Join(failures...)
}

// CreateMany implements bitrix.BatchOperator. The result slice is
// index-aligned with items.
func (r *repository) CreateMany(ctx context.Context, items []bitrix.Record) []bitrix.CreateResult {
	if len(items) == 0 {
		return nil
	}

	results := make([]bitrix.CreateResult, len(items))
	request := bitrix.NewBatchRequest()

	for i, item := range items {
		err := request.AddCreate(fmt.Sprintf("cmd%d", i), r.methods.Create, item)
		if err != nil {
			results[i] = bitrix.CreateResult{Err: err}
		}
	}

	response, err := r.batch.Execute(ctx, request)
	if err != nil {
		for i := range results {
			if results[i].Err == nil {
				results[i].Err = err
			}
		}

		return results
	}

	for i := range items {
		if results[i].Err != nil {
			continue
		}

		outcome, _ := response.Get(fmt.Sprintf("cmd%d", i))
		if outcome.Err != nil {
			results[i] = bitrix.CreateResult{Err: outcome.Err}

			continue
		}

		id, err := parseID(outcome.Result)
		if err != nil {
			results[i] = bitrix.CreateResult{Err: err}

			continue
		}

		results[i] = bitrix.CreateResult{ID: id}
	}

	return results
}

// search runs one filtered list call capped at limit rows.
func (r *repository) search(ctx context.Context, filter *bitrix.Filter, limit int) ([]bitrix.Record, error) {
	if limit <= 0 {
		limit = constants.DefaultSearchLimit
	}

	if limit > constants.MaxPageSize {
		limit = constants.MaxPageSize
	}

	resp, err := r.List(ctx, bitrix.ListOptions{
		Filter: filter,
		Page:   bitrix.PageRequest{Limit: limit},
	})
	if err != nil {
		return nil, err
	}

	return resp.Result, nil
}

// relatedItems fetches a relationship list (deal contacts, contact
// companies) for one record.
func (r *repository) relatedItems(ctx context.Context, method string, id int) ([]bitrix.Record, error) {
	resp, err := r.httpClient.Call(ctx, method, map[string]any{"id": id})
	if err != nil {
		if bitrix.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s %d", bitrix.ErrNotFound, r.entityType, id)
		}

		return nil, fmt.Errorf("listing %s for %s %d: %w", method, r.entityType, id, err)
	}

	var items []bitrix.Record

	err = json.Unmarshal(resp.Result, &items)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s items: %w", bitrix.ErrUnexpectedResponse, method, err)
	}

	return items, nil
}

// decodeRecord unmarshals a result payload holding one record.
func decodeRecord(raw json.RawMessage, target *bitrix.Record) error {
	return json.Unmarshal(raw, target)
}

// decodeRecords unmarshals a result payload holding a record slice.
func decodeRecords(raw json.RawMessage, target *[]bitrix.Record) error {
	return json.Unmarshal(raw, target)
}

// parseID reads a create result, which the portal returns as either a number
// or a numeric string.
func parseID(raw json.RawMessage) (int, error) {
	var asInt int
	if json.Unmarshal(raw, &asInt) == nil {
		return asInt, nil
	}

	var asString string
	if json.Unmarshal(raw, &asString) == nil {
		id, err := strconv.Atoi(asString)
		if err != nil {
			return 0, fmt.Errorf("%w: non-numeric ID %q", bitrix.ErrUnexpectedResponse, asString)
		}

		return id, nil
	}

	return 0, fmt.Errorf("%w: ID payload %s", bitrix.ErrUnexpectedResponse, string(raw))
}
