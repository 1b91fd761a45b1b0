package bitrix

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/fivetwenty-io/b24/internal/constants"
)

// BatchCommand is one sub-request of a batch call, addressed by a
// caller-supplied correlation key.
type BatchCommand struct {
	Key    string
	Method string
	Params url.Values
}

// Encode serializes the command into the portal's "method?query" form.
func (c BatchCommand) Encode() string {
	if len(c.Params) == 0 {
		return c.Method
	}

	return c.Method + "?" + c.Params.Encode()
}

// BatchRequest is an ordered sequence of independent sub-requests.
// Correlation keys must be unique within one request.
type BatchRequest struct {
	commands []BatchCommand
	keys     map[string]struct{}
}

// NewBatchRequest creates an empty batch request.
func NewBatchRequest() *BatchRequest {
	return &BatchRequest{
		commands: make([]BatchCommand, 0),
		keys:     make(map[string]struct{}),
	}
}

// Add appends a sub-request. A reused correlation key fails with
// ErrDuplicateBatchKey.
func (b *BatchRequest) Add(key, method string, params url.Values) error {
	if _, exists := b.keys[key]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateBatchKey, key)
	}

	b.keys[key] = struct{}{}
	b.commands = append(b.commands, BatchCommand{Key: key, Method: method, Params: params})

	return nil
}

// AddGet appends a get-by-ID sub-request for the given method.
func (b *BatchRequest) AddGet(key, method string, id int) error {
	return b.Add(key, method, url.Values{"ID": []string{strconv.Itoa(id)}})
}

// AddCreate appends a create sub-request with the fields flattened into the
// portal's bracket convention (fields[NAME]=value).
func (b *BatchRequest) AddCreate(key, method string, fields Record) error {
	params := url.Values{}

	for name, value := range fields {
		switch v := value.(type) {
		case []any:
			for i, item := range v {
				params.Set(fmt.Sprintf("fields[%s][%d]", name, i), fmt.Sprint(item))
			}
		default:
			params.Set(fmt.Sprintf("fields[%s]", name), fmt.Sprint(v))
		}
	}

	return b.Add(key, method, params)
}

// Len returns the number of sub-requests.
func (b *BatchRequest) Len() int {
	return len(b.commands)
}

// Keys returns the correlation keys in insertion order.
func (b *BatchRequest) Keys() []string {
	keys := make([]string, len(b.commands))
	for i, cmd := range b.commands {
		keys[i] = cmd.Key
	}

	return keys
}

// BatchOutcome is the independent result of one sub-request: either a raw
// payload or an error, never both.
type BatchOutcome struct {
	Key    string
	Result json.RawMessage
	Total  int
	Next   *int
	Err    error
}

// Decode unmarshals the outcome payload into target. Fails with the
// outcome's own error if the sub-request failed.
func (o BatchOutcome) Decode(target any) error {
	if o.Err != nil {
		return o.Err
	}

	err := json.Unmarshal(o.Result, target)
	if err != nil {
		return fmt.Errorf("decoding batch result for %q: %w", o.Key, err)
	}

	return nil
}

// BatchResponse maps every correlation key of the request to its outcome.
type BatchResponse struct {
	order    []string
	outcomes map[string]BatchOutcome
}

// Get returns the outcome for a correlation key.
func (r *BatchResponse) Get(key string) (BatchOutcome, bool) {
	outcome, ok := r.outcomes[key]

	return outcome, ok
}

// Outcomes returns all outcomes in request order.
func (r *BatchResponse) Outcomes() []BatchOutcome {
	outcomes := make([]BatchOutcome, len(r.order))
	for i, key := range r.order {
		outcomes[i] = r.outcomes[key]
	}

	return outcomes
}

// Failed returns the outcomes that carry an error, in request order.
func (r *BatchResponse) Failed() []BatchOutcome {
	var failed []BatchOutcome

	for _, outcome := range r.Outcomes() {
		if outcome.Err != nil {
			failed = append(failed, outcome)
		}
	}

	return failed
}

// Len returns the number of outcomes.
func (r *BatchResponse) Len() int {
	return len(r.order)
}

// BatchCaller issues one batch call against the portal. Implemented by the
// transport client.
type BatchCaller interface {
	CallBatch(ctx context.Context, halt bool, commands map[string]string) (*BatchEnvelope, error)
}

// BatchExecutor groups independent sub-requests into single batch calls and
// demultiplexes the portal's response per correlation key. One Execute is
// exactly one outbound call.
type BatchExecutor struct {
	caller      BatchCaller
	maxCommands int
}

// NewBatchExecutor creates an executor bound to the portal's batch size cap.
func NewBatchExecutor(caller BatchCaller) *BatchExecutor {
	return &BatchExecutor{
		caller:      caller,
		maxCommands: constants.MaxBatchCommands,
	}
}

// Execute runs the batch. Sub-request failures do not fail the batch: every
// key resolves to its own outcome and the caller decides what a failure
// means. A key the portal did not answer resolves to ErrBatchIncomplete.
func (e *BatchExecutor) Execute(ctx context.Context, request *BatchRequest) (*BatchResponse, error) {
	if request.Len() > e.maxCommands {
		return nil, fmt.Errorf("%w: %d commands, portal cap is %d",
			ErrBatchSizeExceeded, request.Len(), e.maxCommands)
	}

	commands := make(map[string]string, request.Len())
	for _, cmd := range request.commands {
		commands[cmd.Key] = cmd.Encode()
	}

	envelope, err := e.caller.CallBatch(ctx, false, commands)
	if err != nil {
		return nil, fmt.Errorf("executing batch of %d commands: %w", request.Len(), err)
	}

	response := &BatchResponse{
		order:    request.Keys(),
		outcomes: make(map[string]BatchOutcome, request.Len()),
	}

	for _, cmd := range request.commands {
		response.outcomes[cmd.Key] = demuxOutcome(cmd.Key, envelope)
	}

	return response, nil
}

func demuxOutcome(key string, envelope *BatchEnvelope) BatchOutcome {
	outcome := BatchOutcome{Key: key}

	if apiErr, ok := envelope.ResultError[key]; ok && apiErr != nil {
		outcome.Err = apiErr

		return outcome
	}

	raw, ok := envelope.Result[key]
	if !ok {
		outcome.Err = fmt.Errorf("%w: no result for key %q", ErrBatchIncomplete, key)

		return outcome
	}

	outcome.Result = raw
	outcome.Total = envelope.ResultTotal[key]

	if next, ok := envelope.ResultNext[key]; ok {
		outcome.Next = &next
	}

	return outcome
}
