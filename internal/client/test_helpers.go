package client

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	internalhttp "github.com/fivetwenty-io/b24/internal/http"
	"github.com/fivetwenty-io/b24/pkg/bitrix"
)

// fakePortal serves canned per-method responses the way a Bitrix24 portal
// would: POST <webhook>/<method>.json with a JSON envelope reply.
type fakePortal struct {
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	calls    map[string]int
	requests map[string][]json.RawMessage
	server   *httptest.Server
}

func newFakePortal(t *testing.T) *fakePortal {
	t.Helper()

	portal := &fakePortal{
		handlers: make(map[string]http.HandlerFunc),
		calls:    make(map[string]int),
		requests: make(map[string][]json.RawMessage),
	}

	portal.server = httptest.NewServer(http.HandlerFunc(portal.serve))
	t.Cleanup(portal.server.Close)

	return portal
}

func (p *fakePortal) serve(writer http.ResponseWriter, request *http.Request) {
	method := strings.TrimSuffix(strings.TrimPrefix(request.URL.Path, "/rest/1/token/"), ".json")

	body, _ := io.ReadAll(request.Body)
	request.Body = io.NopCloser(bytes.NewReader(body))

	p.mu.Lock()
	p.calls[method]++
	p.requests[method] = append(p.requests[method], json.RawMessage(body))
	handler, ok := p.handlers[method]
	p.mu.Unlock()

	if !ok {
		writer.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(writer).Encode(map[string]string{
			"error":             "ERROR_METHOD_NOT_FOUND",
			"error_description": "Method not found",
		})

		return
	}

	handler(writer, request)
}

// handle registers a handler for one portal method.
func (p *fakePortal) handle(method string, handler http.HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[method] = handler
}

// respond registers a success envelope for one portal method.
func (p *fakePortal) respond(method string, result any) {
	p.handle(method, func(writer http.ResponseWriter, request *http.Request) {
		_ = json.NewEncoder(writer).Encode(map[string]any{"result": result})
	})
}

// respondError registers a portal error for one method.
func (p *fakePortal) respondError(method, code, description string) {
	p.handle(method, func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(writer).Encode(map[string]string{
			"error":             code,
			"error_description": description,
		})
	})
}

// callCount returns how many times a method was hit.
func (p *fakePortal) callCount(method string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.calls[method]
}

// lastRequest returns the most recent request body of a method.
func (p *fakePortal) lastRequest(t *testing.T, method string) json.RawMessage {
	t.Helper()

	p.mu.Lock()
	defer p.mu.Unlock()

	bodies := p.requests[method]
	if len(bodies) == 0 {
		t.Fatalf("no recorded requests for %s", method)
	}

	return bodies[len(bodies)-1]
}

func (p *fakePortal) webhookURL() string {
	return p.server.URL + "/rest/1/token"
}

// newTestTransport builds a transport client against the fake portal with
// retries disabled.
func newTestTransport(portal *fakePortal) *internalhttp.Client {
	return internalhttp.NewClient(portal.webhookURL(), internalhttp.WithRetryConfig(0, 0, 0))
}

// newTestContacts builds a contact repository over the fake portal.
func newTestContacts(portal *fakePortal, validate bool) *ContactsClient {
	return NewContactsClient(newTestTransport(portal), bitrix.NewMemoryCache(0), validate, nil)
}

// newTestDeals builds a deal repository (and its contact repository) over
// the fake portal.
func newTestDeals(portal *fakePortal, validate bool) *DealsClient {
	transport := newTestTransport(portal)
	cache := bitrix.NewMemoryCache(0)
	contacts := NewContactsClient(transport, cache, validate, nil)

	return NewDealsClient(transport, cache, validate, nil, contacts)
}
