package poller

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseBodySize = 1 << 20 // 1MB

// connection pooling limits; a single workflow only ever talks to one host
const (
	defaultMaxIdleConns        = 10
	defaultMaxIdleConnsPerHost = 4
	defaultMaxConnsPerHost     = 4
	defaultIdleConnTimeout     = 60 * time.Second
)

// Response holds the result of an HTTP request made by [Client].
//
// Response captures all relevant information from an HTTP request including
// the body (limited to 1MB), status code, latency, and any error that occurred.
type Response struct {
	// Body contains the HTTP response body, limited to 1MB.
	Body []byte

	// StatusCode is the HTTP status code (e.g., 200, 404, 500).
	// Zero if the request failed before receiving a response.
	StatusCode int

	// Latency is the total time taken for the request.
	Latency time.Duration

	// Error contains any transport-level error that occurred during the request.
	// nil indicates the request completed (though status may indicate an error).
	Error error
}

// OK reports whether the request completed with a 2xx status code.
func (r Response) OK() bool {
	return r.Error == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Client is an HTTP client wrapper for the submission and status calls of a
// conversion service.
//
// Client uses per-request timeouts via context rather than a global timeout,
// so uploads and status checks can carry different limits. Response bodies
// are limited to 1MB.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new [Client] with a pooled transport.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			// no default timeout - we use per-request timeouts via context
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
	}
}

// Fetch performs a request without a body and returns a structured [Response].
//
// If method is empty, GET is used. A timeout of zero or less means the
// request is bounded only by ctx.
//
// Fetch always returns a Response; errors are captured in the Error field
// rather than returned separately.
func (c *Client) Fetch(ctx context.Context, method, url string, headers map[string]string, timeout time.Duration) Response {
	if method == "" {
		method = http.MethodGet
	}
	return c.do(ctx, method, url, headers, nil, timeout)
}

// Upload posts a multipart body to url, reporting bytes handed to the
// transport through progress as the body is read.
//
// The request carries an exact Content-Length so the receiver sees a
// non-chunked upload, matching what a browser form submission produces.
func (c *Client) Upload(ctx context.Context, url string, headers map[string]string, body *MultipartBody, progress ProgressFunc, timeout time.Duration) Response {
	return c.do(ctx, http.MethodPost, url, headers, &uploadBody{body: body, progress: progress}, timeout)
}

type uploadBody struct {
	body     *MultipartBody
	progress ProgressFunc
}

func (c *Client) do(ctx context.Context, method, url string, headers map[string]string, upload *uploadBody, timeout time.Duration) Response {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()

	var reqBody io.ReadCloser
	if upload != nil {
		// the transport closes the body, including on early responses
		reqBody = upload.body.Reader(upload.progress)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		if reqBody != nil {
			_ = reqBody.Close()
		}
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("failed to create request: %w", err),
		}
	}

	if upload != nil {
		req.ContentLength = upload.body.Size()
		req.Header.Set("Content-Type", upload.body.ContentType())
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("request failed: %w", err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	// read body with size limit
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return Response{
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Error:      fmt.Errorf("failed to read response body: %w", err),
		}
	}

	return Response{
		Body:       body,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times and on a nil receiver. After Close, the client
// remains usable but new connections will be established as needed.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
