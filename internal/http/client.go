// Package http implements the webhook transport for the Bitrix24 REST API.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/fivetwenty-io/b24/internal/constants"
	"github.com/fivetwenty-io/b24/pkg/bitrix"
)

// Logger interface for logging.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// Response is a decoded portal envelope.
type Response struct {
	StatusCode int
	Body       []byte
	Result     json.RawMessage
	Total      int
	Next       *int
}

// Client sends REST calls through a webhook URL. Auth lives in the URL's
// path segment; no token header is attached.
type Client struct {
	webhookURL string
	httpClient *retryablehttp.Client
	logger     Logger
	debug      bool
	userAgent  string
	chain      *bitrix.InterceptorChain
}

// Option configures the client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDebug enables request/response logging.
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithRetryConfig tunes retry behavior for transient failures.
func WithRetryConfig(retryMax int, retryWaitMin, retryWaitMax time.Duration) Option {
	return func(c *Client) {
		c.httpClient.RetryMax = retryMax
		c.httpClient.RetryWaitMin = retryWaitMin
		c.httpClient.RetryWaitMax = retryWaitMax
	}
}

// WithHTTPTimeout sets the per-attempt timeout.
func WithHTTPTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.HTTPClient.Timeout = timeout
	}
}

// WithInterceptors attaches an interceptor chain run around every call.
func WithInterceptors(chain *bitrix.InterceptorChain) Option {
	return func(c *Client) {
		c.chain = chain
	}
}

// NewClient creates a transport client for the given webhook URL.
func NewClient(webhookURL string, opts ...Option) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = constants.DefaultRetryMax
	retryClient.RetryWaitMin = constants.DefaultRetryWaitMin
	retryClient.RetryWaitMax = constants.DefaultRetryWaitMax
	retryClient.HTTPClient.Timeout = constants.DefaultHTTPTimeout
	retryClient.Logger = nil

	client := &Client{
		webhookURL: strings.TrimSuffix(webhookURL, "/"),
		httpClient: retryClient,
		userAgent:  "b24-client/1.0",
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// callEnvelope is the portal's response wrapper. Success fills result and
// the list metadata; failure fills the error pair instead.
type callEnvelope struct {
	Result           json.RawMessage `json:"result"`
	Total            int             `json:"total"`
	Next             *int            `json:"next"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// Call posts params as JSON to <webhook>/<method>.json and decodes the
// envelope. Portal errors surface as *bitrix.APIError; network failures
// wrap bitrix.ErrTransport.
func (c *Client) Call(ctx context.Context, method string, params any) (*Response, error) {
	if params == nil {
		params = map[string]any{}
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encoding params for %s: %w", method, err)
	}

	interceptReq := &bitrix.Request{Method: method, Body: body}
	if c.chain != nil {
		err = c.chain.ExecuteRequestInterceptors(ctx, interceptReq)
		if err != nil {
			return nil, err
		}
	}

	if c.debug && c.logger != nil {
		c.logger.Debug("portal request", map[string]any{
			"method": method,
			"body":   string(body),
		})
	}

	statusCode, respBody, err := c.post(ctx, method, body)

	if c.chain != nil {
		interceptErr := c.chain.ExecuteResponseInterceptors(ctx, interceptReq, &bitrix.Response{
			StatusCode: statusCode,
			Body:       respBody,
			Err:        err,
		})
		if interceptErr != nil {
			return nil, interceptErr
		}
	}

	if err != nil {
		return nil, err
	}

	return decodeEnvelope(method, statusCode, respBody)
}

// CallBatch issues one batch call bundling the given commands, each encoded
// as "method?query" and keyed by its correlation key.
func (c *Client) CallBatch(ctx context.Context, halt bool, commands map[string]string) (*bitrix.BatchEnvelope, error) {
	haltFlag := 0
	if halt {
		haltFlag = 1
	}

	resp, err := c.Call(ctx, "batch", map[string]any{
		"halt": haltFlag,
		"cmd":  commands,
	})
	if err != nil {
		return nil, err
	}

	var envelope bitrix.BatchEnvelope

	err = json.Unmarshal(resp.Result, &envelope)
	if err != nil {
		return nil, fmt.Errorf("parsing batch envelope: %w", err)
	}

	return &envelope, nil
}

// post performs the HTTP exchange and returns the raw body.
func (c *Client) post(ctx context.Context, method string, body []byte) (int, []byte, error) {
	url := c.webhookURL + "/" + method + ".json"

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request for %s: %w", method, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: calling %s: %w", bitrix.ErrTransport, method, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: reading response for %s: %w", bitrix.ErrTransport, method, err)
	}

	if c.debug && c.logger != nil {
		c.logger.Debug("portal response", map[string]any{
			"method": method,
			"status": resp.StatusCode,
			"body":   string(respBody),
		})
	}

	return resp.StatusCode, respBody, nil
}

// decodeEnvelope splits the portal envelope into a Response or a typed
// error.
func decodeEnvelope(method string, statusCode int, body []byte) (*Response, error) {
	var envelope callEnvelope

	err := json.Unmarshal(body, &envelope)
	if err != nil {
		return nil, fmt.Errorf("parsing response for %s (status %d): %w", method, statusCode, err)
	}

	if envelope.Error != "" || envelope.ErrorDescription != "" {
		return &Response{StatusCode: statusCode, Body: body}, &bitrix.APIError{
			Code:        envelope.Error,
			Description: envelope.ErrorDescription,
		}
	}

	if statusCode >= http.StatusBadRequest {
		return &Response{StatusCode: statusCode, Body: body}, &bitrix.APIError{
			Code:        fmt.Sprintf("HTTP_%d", statusCode),
			Description: http.StatusText(statusCode),
		}
	}

	return &Response{
		StatusCode: statusCode,
		Body:       body,
		Result:     envelope.Result,
		Total:      envelope.Total,
		Next:       envelope.Next,
	}, nil
}
