package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/juju/ratelimit"

	"farmacia/client/internal/logging"
	"farmacia/client/internal/metrics"
)

const (
	defaultTimeout = 15 * time.Second
	// maxBodySize bounds what the client will buffer from one response.
	maxBodySize = 8 << 20

	HeaderRequestID = "X-Request-ID"
)

// RequestStage runs on every outgoing request before it is sent.
type RequestStage func(req *http.Request) error

// ResponseInspector observes every finished exchange before the caller sees
// the result. It may cause side effects but never alters the outcome.
type ResponseInspector interface {
	Inspect(ex Exchange)
}

// Exchange describes one finished request for inspectors.
type Exchange struct {
	Method           string
	Path             string
	RequestID        string
	Status           int
	SkipAuthRedirect bool
	Err              error
}

// Options overrides client dependencies.
type Options struct {
	HTTPClient *http.Client
	Logger     *logging.Logger
	Metrics    *metrics.Client
	// Throttle, when set, limits outgoing requests client-side.
	Throttle   *ratelimit.Bucket
	Stages     []RequestStage
	Inspectors []ResponseInspector
}

// Client is the single choke point for backend calls.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *logging.Logger
	metrics    *metrics.Client
	throttle   *ratelimit.Bucket
	stages     []RequestStage
	inspectors []ResponseInspector
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("baseURL is empty")
	}
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse baseURL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("baseURL %q must be absolute", baseURL)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    parsed,
		httpClient: client,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		throttle:   opts.Throttle,
		stages:     append([]RequestStage(nil), opts.Stages...),
		inspectors: append([]ResponseInspector(nil), opts.Inspectors...),
	}, nil
}

// BaseURL returns the configured backend address.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Response is a successful backend answer with a well-formed JSON body.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	op     string
}

// Decode unmarshals the body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if r == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &DecodeError{Op: r.op, Err: err}
	}
	return nil
}

// RequestOption adjusts a single call.
type RequestOption func(*requestConfig)

type requestConfig struct {
	skipAuthRedirect bool
	header           http.Header
}

// SkipAuthRedirect keeps a 401 on this request from clearing the session.
func SkipAuthRedirect() RequestOption {
	return func(rc *requestConfig) { rc.skipAuthRedirect = true }
}

// WithHeader adds a header to this request only.
func WithHeader(key, value string) RequestOption {
	return func(rc *requestConfig) {
		if rc.header == nil {
			rc.header = http.Header{}
		}
		rc.header.Add(key, value)
	}
}

// Get performs GET path.
func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil, opts...)
}

// Post performs POST path with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, body, opts...)
}

// Put performs PUT path with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPut, path, body, opts...)
}

// Delete performs DELETE path.
func (c *Client) Delete(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, path, nil, opts...)
}

// Do sends one request through the outbound stages, then runs every inspector
// before returning. Errors are *NetworkError or *DecodeError and are always
// returned to the caller, whatever the inspectors did.
func (c *Client) Do(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Response, error) {
	var rc requestConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&rc)
		}
	}
	op := method + " " + path
	requestID := uuid.NewString()
	start := time.Now()

	resp, status, err := c.send(ctx, method, path, body, requestID, rc)

	c.metrics.ObserveRequest(method, path, status, time.Since(start))
	ex := Exchange{
		Method:           method,
		Path:             path,
		RequestID:        requestID,
		Status:           status,
		SkipAuthRedirect: rc.skipAuthRedirect,
		Err:              err,
	}
	for _, inspector := range c.inspectors {
		inspector.Inspect(ex)
	}
	if err != nil {
		c.logger.Debugf("%s [%s] failed: %v", op, requestID, err)
		return nil, err
	}
	c.logger.Debugf("%s [%s] -> %d in %s", op, requestID, status, time.Since(start).Round(time.Millisecond))
	return resp, nil
}

func (c *Client) send(ctx context.Context, method, path string, body any, requestID string, rc requestConfig) (*Response, int, error) {
	op := method + " " + path
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, 0, &NetworkError{Op: op, Method: method, Path: path, Err: err}
	}
	req.Header.Set(HeaderRequestID, requestID)
	for key, values := range rc.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	for _, stage := range c.stages {
		if err := stage(req); err != nil {
			return nil, 0, &NetworkError{Op: op, Method: method, Path: path, Err: err}
		}
	}
	if err := c.wait(ctx); err != nil {
		return nil, 0, &NetworkError{Op: op, Method: method, Path: path, Err: err}
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &NetworkError{Op: op, Method: method, Path: path, Err: err}
	}
	defer httpResp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		return nil, httpResp.StatusCode, &NetworkError{Op: op, Method: method, Path: path, Status: httpResp.StatusCode, Err: err}
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, httpResp.StatusCode, &NetworkError{
			Op:      op,
			Method:  method,
			Path:    path,
			Status:  httpResp.StatusCode,
			Message: serverMessage(data),
			Body:    data,
			Err:     fmt.Errorf("unexpected status %d", httpResp.StatusCode),
		}
	}
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && !json.Valid(trimmed) {
		return nil, httpResp.StatusCode, &DecodeError{Op: op, Err: fmt.Errorf("response body is not valid JSON (%d bytes)", len(data))}
	}
	return &Response{Status: httpResp.StatusCode, Header: httpResp.Header, Body: data, op: op}, httpResp.StatusCode, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	rel, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	full := *c.baseURL
	full.Path = strings.TrimRight(c.baseURL.Path, "/") + "/" + strings.TrimLeft(rel.Path, "/")
	full.RawQuery = rel.RawQuery

	var reader io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		reader = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, full.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// wait applies the client-side throttle, bounded by the context deadline.
func (c *Client) wait(ctx context.Context) error {
	if c.throttle == nil {
		return nil
	}
	if deadline, ok := ctx.Deadline(); ok {
		if !c.throttle.WaitMaxDuration(1, time.Until(deadline)) {
			return context.DeadlineExceeded
		}
		return nil
	}
	c.throttle.Wait(1)
	return ctx.Err()
}

// NewThrottle builds a bucket allowing rps requests per second with a small
// burst; zero or negative rps disables throttling.
func NewThrottle(rps float64) *ratelimit.Bucket {
	if rps <= 0 {
		return nil
	}
	burst := int64(rps)
	if burst < 1 {
		burst = 1
	}
	return ratelimit.NewBucketWithRate(rps, burst)
}
