// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"runtime"
	"time"

	"github.com/wneessen/mapstate/internal/logger"
)

// DefaultTimeout applies to requests that do not set their own timeout.
const DefaultTimeout = time.Second * 10

var (
	// version is set at build time
	version = "dev"
	// UserAgent is sent with every request. Public geocoding services require an identifying agent.
	UserAgent = fmt.Sprintf("Mozilla/5.0 (%s; %s) mapstate/%s (+https://github.com/wneessen/mapstate/)",
		runtime.GOOS,
		runtime.GOARCH,
		version,
	)

	ErrNonPointerTarget = errors.New("target must be a non-nil pointer")
	ErrUnexpectedStatus = errors.New("unexpected HTTP status code")
)

// StatusError is returned for responses outside the 2xx range. It matches ErrUnexpectedStatus.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d", ErrUnexpectedStatus, e.Code)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}

type request struct {
	query   url.Values
	header  http.Header
	timeout time.Duration
	body    io.Reader
	err     error
}

// RequestOption configures a single request.
type RequestOption func(*request)

// WithQuery sets the URL query of the request.
func WithQuery(query url.Values) RequestOption {
	return func(r *request) {
		r.query = query
	}
}

// WithHeader sets a request header.
func WithHeader(key, value string) RequestOption {
	return func(r *request) {
		r.header.Set(key, value)
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(timeout time.Duration) RequestOption {
	return func(r *request) {
		r.timeout = timeout
	}
}

// WithJSONBody encodes payload as the JSON request body.
func WithJSONBody(payload any) RequestOption {
	return func(r *request) {
		buf := bytes.NewBuffer(nil)
		if err := json.NewEncoder(buf).Encode(payload); err != nil {
			r.err = fmt.Errorf("failed to encode JSON request body: %w", err)
			return
		}
		r.body = buf
		r.header.Set("Content-Type", "application/json")
	}
}

// Client is a http.Client that decodes JSON responses and logs through the shared logger.
type Client struct {
	*http.Client
	logger *logger.Logger
}

// New returns a new HTTP client
func New(logger *logger.Logger) *Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		Proxy:           http.ProxyFromEnvironment,
	}
	return &Client{&http.Client{Timeout: DefaultTimeout, Transport: transport}, logger}
}

// Get performs a GET request and decodes the JSON response into target.
func (h *Client) Get(ctx context.Context, endpoint string, target any, opts ...RequestOption) (int, error) {
	return h.do(ctx, http.MethodGet, endpoint, target, opts)
}

// Post performs a POST request and decodes the JSON response into target.
func (h *Client) Post(ctx context.Context, endpoint string, target any, opts ...RequestOption) (int, error) {
	return h.do(ctx, http.MethodPost, endpoint, target, opts)
}

// do executes the request. Context errors are returned unwrapped so callers can tell
// cancellation apart from failures.
func (h *Client) do(ctx context.Context, method, endpoint string, target any, opts []RequestOption) (int, error) {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return 0, ErrNonPointerTarget
	}

	req := &request{header: make(http.Header), timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(req)
	}
	if req.err != nil {
		return 0, req.err
	}

	reqURL, err := url.Parse(endpoint)
	if err != nil {
		return 0, fmt.Errorf("failed to parse URL: %w", err)
	}
	if len(req.query) > 0 {
		reqURL.RawQuery = req.query.Encode()
	}

	ctx, cancel := context.WithTimeout(ctx, req.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, method, reqURL.String(), req.body)
	if err != nil {
		return 0, fmt.Errorf("failed create new HTTP request with context: %w", err)
	}
	request.Header = req.header
	request.Header.Set("User-Agent", UserAgent)

	response, err := h.Do(request)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	if response == nil {
		return 0, errors.New("nil response received")
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			h.logger.Error("failed to close HTTP response body", logger.Err(err))
		}
	}(response.Body)

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return response.StatusCode, &StatusError{Code: response.StatusCode}
	}
	if err = json.NewDecoder(response.Body).Decode(target); err != nil {
		return response.StatusCode, fmt.Errorf("failed to decode JSON: %w", err)
	}

	return response.StatusCode, nil
}
