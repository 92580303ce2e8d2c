package services

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

	"github.com/charmbracelet/log"
	"github.com/desertthunder/songmix/internal/session"
	"github.com/desertthunder/songmix/internal/shared"
	"golang.org/x/time/rate"
)

const (
	DefaultAPIURL  = "https://api.spotify.com/v1"
	DefaultTimeout = 10 * time.Second
)

// TokenReader returns the current access token, if any.
type TokenReader interface {
	Read() (session.Snapshot, bool)
}

// ClientOpts configures [NewClient].
type ClientOpts struct {
	BaseURL    string // defaults to [DefaultAPIURL]
	HTTPClient *http.Client
	Tokens     TokenReader
	Timeout    time.Duration // per call, defaults to [DefaultTimeout]
	RateLimit  float64       // requests per second; zero disables client-side limiting
	Logger     *log.Logger
}

// Client performs single authenticated calls against the Web API. It never retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenReader
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     *log.Logger
}

// NewClient returns a Client reading bearer tokens from opts.Tokens.
func NewClient(opts ClientOpts) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultAPIURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: opts.HTTPClient,
		tokens:     opts.Tokens,
		timeout:    opts.Timeout,
		logger:     shared.WithLogger(opts.Logger, "component", "transport"),
	}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return c
}

// BaseURL returns the API origin every path is resolved against.
func (c *Client) BaseURL() string { return c.baseURL }

// CursorPath turns a pagination cursor (an absolute URL) into a path relative to the base URL.
//
// The cursor must share the base URL's scheme and host, and its path must sit under the base path.
func (c *Client) CursorPath(cursor string) (string, error) {
	outside := fmt.Errorf("%w: cursor %q is outside %s", shared.ErrInvalidInput, cursor, c.baseURL)

	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", outside
	}
	next, err := url.Parse(cursor)
	if err != nil || next.Scheme != base.Scheme || !strings.EqualFold(next.Host, base.Host) {
		return "", outside
	}

	path, ok := strings.CutPrefix(next.EscapedPath(), strings.TrimRight(base.EscapedPath(), "/"))
	if !ok || (path != "" && !strings.HasPrefix(path, "/")) {
		return "", outside
	}
	if next.RawQuery != "" {
		path += "?" + next.RawQuery
	}
	return path, nil
}

// Do sends one request. body, if non-nil, is encoded as JSON; a 2xx response is decoded into result when
// result is non-nil and the body is not empty. Failed responses come back as typed failures from [Classify].
func (c *Client) Do(ctx context.Context, method, path string, body, result any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &shared.TransportError{Err: err}
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "method", method, "path", path, "error", err)
		return Classify(nil, nil, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &shared.TransportError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	c.logger.Debug("request", "method", method, "path", path, "status", resp.StatusCode, "took", time.Since(start))

	if err := Classify(resp, data, nil); err != nil {
		return err
	}

	if result == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if snap, ok := c.tokens.Read(); ok {
			req.Header.Set("Authorization", session.TokenTypeBearer+" "+snap.AccessToken)
		}
	}
	return req, nil
}
