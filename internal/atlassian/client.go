package atlassian

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/stellarlinkco/atlastools/internal/config"
)

// Client talks to one Atlassian Cloud product with basic auth. It retries
// rate-limited and server-side failures; everything else fails fast.
type Client struct {
	baseURL    *url.URL
	username   string
	apiToken   string
	maxRetries int

	httpClient *http.Client
	newBackOff func() backoff.BackOff
	log        zerolog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBackOff replaces the retry schedule. The function is called once per
// request.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Client) {
		if fn != nil {
			c.newBackOff = fn
		}
	}
}

// NewClient validates cfg and builds a client. product is the environment
// prefix used in configuration errors ("jira", "confluence").
func NewClient(product string, cfg config.AtlassianConfig, log zerolog.Logger, opts ...Option) (*Client, error) {
	if err := cfg.Validate(product); err != nil {
		return nil, ConfigurationError(err)
	}
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.URL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, ConfigurationError(fmt.Errorf("%s_URL is not a valid URL: %q", strings.ToUpper(product), cfg.URL))
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(config.DefaultTimeout) * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}

	c := &Client{
		baseURL:    base,
		username:   cfg.Username,
		apiToken:   cfg.APIToken,
		maxRetries: retries,
		httpClient: &http.Client{Timeout: timeout},
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		log:        log.With().Str("component", product).Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the configured site root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL.String() }

func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return c.Do(ctx, http.MethodGet, path, query, nil)
}

func (c *Client) Post(ctx context.Context, path string, query url.Values, body any) ([]byte, error) {
	return c.Do(ctx, http.MethodPost, path, query, body)
}

func (c *Client) Put(ctx context.Context, path string, query url.Values, body any) ([]byte, error) {
	return c.Do(ctx, http.MethodPut, path, query, body)
}

func (c *Client) Delete(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return c.Do(ctx, http.MethodDelete, path, query, nil)
}

// Do sends one logical request and returns the response body of the first
// successful attempt. Failures are *Error values.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
	}

	var last error
	op := func() ([]byte, error) {
		data, err := c.once(ctx, method, path, query, payload)
		if err == nil {
			return data, nil
		}
		last = err

		var ae *Error
		if !errors.As(err, &ae) || !retryable(method, ae) {
			return nil, backoff.Permanent(err)
		}
		if ae.RetryAfter > 0 {
			return nil, backoff.RetryAfter(int(ae.RetryAfter.Round(time.Second) / time.Second))
		}
		return nil, err
	}

	data, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warn().Str("method", method).Str("path", path).Dur("retry_in", next).Msgf("request failed: %v", last)
		}),
	)
	if err == nil {
		return data, nil
	}
	var ae *Error
	if ctx.Err() != nil && !errors.As(err, &ae) {
		return nil, transportError(err)
	}
	// The retry loop may end on a RetryAfterError; report the request failure.
	if last != nil {
		return nil, last
	}
	return nil, err
}

// retryable reports whether a failed attempt may be sent again. A POST that
// reached the server may have been applied, so only a 429 is resent.
func retryable(method string, ae *Error) bool {
	if !ae.Retryable() {
		return false
	}
	if method == http.MethodPost {
		return ae.Kind == KindRateLimit
	}
	return true
}

func (c *Client) once(ctx context.Context, method, path string, query url.Values, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.apiToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(err)
	}
	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(started)).
		Msg("request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, responseError(resp, data)
	}
	return data, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	// path arrives with its segments already escaped by PathEscape.
	raw := strings.TrimRight(u.EscapedPath(), "/") + "/" + strings.TrimLeft(path, "/")
	if p, err := url.PathUnescape(raw); err == nil {
		u.Path, u.RawPath = p, raw
	} else {
		u.Path, u.RawPath = raw, ""
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func transportError(err error) *Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Kind: KindTimeout, Message: "Request timed out: " + err.Error(), Err: err}
	}
	return &Error{Kind: KindNetwork, Message: "Connection failed: " + err.Error(), Err: err}
}

// PathEscape escapes one path segment such as an issue key or page id.
func PathEscape(segment string) string { return url.PathEscape(segment) }
