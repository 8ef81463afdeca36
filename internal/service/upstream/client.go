// Package upstream issues the single outbound call that answers a prompt.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// PromptParam is the query parameter carrying the user's text.
const PromptParam = "prompt"

const defaultMaxBodyBytes = 1 << 20

// ErrBodyTooLarge is returned when a successful reply exceeds the configured cap.
var ErrBodyTooLarge = errors.New("upstream body too large")

// StatusError reports a non-2xx answer from the inference endpoint.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// Response is a successful upstream answer.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Client queries an endpoint of the form GET <base>?prompt=<text>. The base is
// either the hosted origin or the same-origin relay.
type Client struct {
	baseURL      *url.URL
	httpClient   *http.Client
	maxBodyBytes int64
	logger       zerolog.Logger
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient swaps the transport.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxBodyBytes caps how much of a reply is read.
func WithMaxBodyBytes(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxBodyBytes = n
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient validates baseURL and builds a client.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parse upstream url %q", baseURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.Errorf("upstream url %q must be http or https", baseURL)
	}

	c := &Client{
		baseURL:      parsed,
		httpClient:   &http.Client{},
		maxBodyBytes: defaultMaxBodyBytes,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// URL returns the request URL for prompt.
func (c *Client) URL(prompt string) string {
	u := *c.baseURL
	q := u.Query()
	q.Set(PromptParam, prompt)
	u.RawQuery = q.Encode()
	return u.String()
}

// Do performs the call. A non-2xx status yields *StatusError.
func (c *Client) Do(ctx context.Context, prompt string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(prompt), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build upstream request")
	}
	req.Header.Set("Accept", "application/json, text/plain;q=0.9, */*;q=0.8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "call upstream")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, "read upstream body")
	}
	oversized := int64(len(body)) > c.maxBodyBytes
	if oversized {
		body = body[:c.maxBodyBytes]
	}

	c.logger.Debug().
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Msg("upstream answered")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: body}
	}
	if oversized {
		return nil, errors.Wrapf(ErrBodyTooLarge, "upstream body exceeds %d bytes", c.maxBodyBytes)
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// Fetch returns the raw reply body.
func (c *Client) Fetch(ctx context.Context, prompt string) ([]byte, error) {
	resp, err := c.Do(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
