// Package inspect fetches the on-demand details of a single cell.
//
// A fetch ends in one of four ways: details, a domain error reported by the
// server inside an otherwise successful response, a non-success HTTP status,
// or a transport failure. Each maps to its own user-facing message.
package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/daviddao/cosmoview/internal/universe"
)

// maxResponseBody caps how much of a details response is read (1 MiB).
const maxResponseBody int64 = 1 << 20

// User-facing messages for the failure kinds.
const (
	MsgNetwork = "Network error"
	MsgStatus  = "Failed to fetch cell details"
)

// ErrNetwork marks failures to reach the server or read its answer.
var ErrNetwork = errors.New("inspect: network error")

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inspect: status %d", e.Code)
}

// DomainError is an error the server reported in the "error" field of a 2xx
// response, such as a cell that no longer exists.
type DomainError struct {
	Message string
}

func (e *DomainError) Error() string {
	return "inspect: " + e.Message
}

// UserMessage returns the message to show for a fetch error.
func UserMessage(err error) string {
	var de *DomainError
	var se *StatusError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &de):
		return de.Message
	case errors.As(err, &se):
		return MsgStatus
	}
	return MsgNetwork
}

// Options configure a Client.
type Options struct {
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (o *Options) defaults() {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: o.Timeout}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Client requests cell details from the server's HTTP API.
type Client struct {
	base *url.URL
	http *http.Client
	log  *slog.Logger
}

// New returns a Client for the API rooted at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("inspect: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("inspect: base url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("inspect: base url %q: missing host", baseURL)
	}
	opts.defaults()
	return &Client{base: u, http: opts.HTTPClient, log: opts.Logger.With("component", "inspect")}, nil
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.base.String()
}

type detailsResponse struct {
	universe.CellDetails
	Error string `json:"error"`
}

// Fetch issues GET /api/cell/{id}.
func (c *Client) Fetch(ctx context.Context, id int) (*universe.CellDetails, error) {
	endpoint := c.base.JoinPath("api", "cell", strconv.Itoa(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("inspect: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("fetch failed", "cell", id, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("fetch rejected", "cell", id, "status", resp.StatusCode)
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var body detailsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&body); err != nil {
		c.log.Warn("fetch undecodable", "cell", id, "error", err)
		return nil, fmt.Errorf("%w: decode response: %w", ErrNetwork, err)
	}
	if body.Error != "" {
		return nil, &DomainError{Message: body.Error}
	}
	return &body.CellDetails, nil
}

// Request is one tagged fetch. The tag lets a caller recognise and discard a
// response that arrives after a newer request was issued.
type Request struct {
	Tag    uuid.UUID
	CellID int
}

// NewRequest tags a fetch for cell id.
func NewRequest(id int) Request {
	return Request{Tag: uuid.New(), CellID: id}
}

// Result is the outcome of a Request.
type Result struct {
	Request
	Details *universe.CellDetails
	Err     error
}

// Do performs req and wraps the outcome with its tag.
func (c *Client) Do(ctx context.Context, req Request) Result {
	details, err := c.Fetch(ctx, req.CellID)
	return Result{Request: req, Details: details, Err: err}
}

// Current reports whether res answers req.
func (req Request) Current(res Result) bool {
	return req.Tag != uuid.Nil && req.Tag == res.Tag
}
