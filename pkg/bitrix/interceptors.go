package bitrix

import (
	"context"
	"fmt"
	"time"
)

// Request represents an outbound REST call that can be intercepted before it
// is sent. Method is the portal method name ("crm.contact.get"), not an HTTP
// verb.
type Request struct {
	Method   string
	Body     []byte
	Metadata map[string]any
}

// Response represents a portal response that can be intercepted.
type Response struct {
	StatusCode int
	Body       []byte
	Err        error
}

// RequestInterceptor is called before a call is sent.
type RequestInterceptor func(ctx context.Context, req *Request) error

// ResponseInterceptor is called after a response is received.
type ResponseInterceptor func(ctx context.Context, req *Request, resp *Response) error

// InterceptorChain manages a chain of interceptors.
type InterceptorChain struct {
	requestInterceptors  []RequestInterceptor
	responseInterceptors []ResponseInterceptor
}

// NewInterceptorChain creates a new interceptor chain.
func NewInterceptorChain() *InterceptorChain {
	return &InterceptorChain{
		requestInterceptors:  make([]RequestInterceptor, 0),
		responseInterceptors: make([]ResponseInterceptor, 0),
	}
}

// AddRequestInterceptor adds a request interceptor to the chain.
func (c *InterceptorChain) AddRequestInterceptor(interceptor RequestInterceptor) {
	c.requestInterceptors = append(c.requestInterceptors, interceptor)
}

// AddResponseInterceptor adds a response interceptor to the chain.
func (c *InterceptorChain) AddResponseInterceptor(interceptor ResponseInterceptor) {
	c.responseInterceptors = append(c.responseInterceptors, interceptor)
}

// ExecuteRequestInterceptors runs all request interceptors.
func (c *InterceptorChain) ExecuteRequestInterceptors(ctx context.Context, req *Request) error {
	for _, interceptor := range c.requestInterceptors {
		err := interceptor(ctx, req)
		if err != nil {
			return fmt.Errorf("request interceptor failed: %w", err)
		}
	}

	return nil
}

// ExecuteResponseInterceptors runs all response interceptors.
func (c *InterceptorChain) ExecuteResponseInterceptors(ctx context.Context, req *Request, resp *Response) error {
	for _, interceptor := range c.responseInterceptors {
		err := interceptor(ctx, req, resp)
		if err != nil {
			return fmt.Errorf("response interceptor failed: %w", err)
		}
	}

	return nil
}

// LoggingInterceptor logs outbound calls.
func LoggingInterceptor(logger Logger) RequestInterceptor {
	return func(ctx context.Context, req *Request) error {
		logger.Debug("portal call", map[string]any{
			"method": req.Method,
		})

		return nil
	}
}

// LoggingResponseInterceptor logs responses.
func LoggingResponseInterceptor(logger Logger) ResponseInterceptor {
	return func(ctx context.Context, req *Request, resp *Response) error {
		fields := map[string]any{
			"method": req.Method,
			"status": resp.StatusCode,
		}

		if resp.Err != nil {
			fields["error"] = resp.Err.Error()
			logger.Warn("portal call failed", fields)

			return nil
		}

		logger.Debug("portal response", fields)

		return nil
	}
}

// TimingInterceptor records per-call durations through the observe callback.
func TimingInterceptor(observe func(method string, elapsed time.Duration)) (RequestInterceptor, ResponseInterceptor) {
	request := func(ctx context.Context, req *Request) error {
		if req.Metadata == nil {
			req.Metadata = make(map[string]any)
		}

		req.Metadata["started_at"] = time.Now()

		return nil
	}

	response := func(ctx context.Context, req *Request, resp *Response) error {
		started, ok := req.Metadata["started_at"].(time.Time)
		if ok {
			observe(req.Method, time.Since(started))
		}

		return nil
	}

	return request, response
}
