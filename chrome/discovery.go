package chrome

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/arismoko/strudelprobe/log"
)

// Page is one inspectable page as reported by the endpoint at list time. It
// is a read-only snapshot; pages may open or close concurrently and nothing
// beyond the single listing call guarantees freshness.
type Page struct {
	ID                   string `json:"id"`
	Title                string `json:"title"`
	Type                 string `json:"type"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

type versionInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Client talks to one debugging endpoint: page discovery over HTTP and, once
// connected, CDP over the browser WebSocket.
type Client struct {
	endpoint   Endpoint
	httpClient *http.Client
	logger     *log.Logger
	conn       *Connection
}

// Option functions enable the flexible configuration of the Client.
type Option func(*Client)

// WithHTTPClient configures the supplied HTTP client to be used for
// discovery requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient returns a newly configured Client. No network traffic happens
// until the first call.
func NewClient(endpoint Endpoint, logger *log.Logger, options ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Endpoint returns the endpoint this client was built for.
func (c *Client) Endpoint() Endpoint { return c.endpoint }

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	rel := &url.URL{Path: path}
	u := c.endpoint.BaseURL().ResolveReference(rel).String()
	c.logger.Debugf("discovery", "GET %s", u)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return &ConnectionError{Endpoint: c.endpoint, Op: "cannot reach devtools endpoint", Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return &DependencyError{
			Endpoint: c.endpoint,
			Reason:   fmt.Sprintf("%s returned status %d", path, res.StatusCode),
		}
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return &ConnectionError{
			Endpoint: c.endpoint,
			Op:       "malformed discovery response from",
			Err:      err,
		}
	}
	return nil
}

// ListPages returns the pages currently inspectable on the endpoint, in the
// order the server reports them. An empty list is a valid result and is
// distinct from a connection failure.
func (c *Client) ListPages(ctx context.Context) ([]Page, error) {
	var targets []Page
	if err := c.get(ctx, "/json/list", &targets); err != nil {
		return nil, err
	}

	pages := make([]Page, 0, len(targets))
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		pages = append(pages, t)
	}
	c.logger.Debugf("discovery", "%d inspectable pages (%d targets)", len(pages), len(targets))
	return pages, nil
}

// browserWSURL asks the endpoint for its browser-level WebSocket URL.
func (c *Client) browserWSURL(ctx context.Context) (string, error) {
	var version versionInfo
	if err := c.get(ctx, "/json/version", &version); err != nil {
		return "", err
	}
	if version.WebSocketDebuggerURL == "" {
		return "", &DependencyError{Endpoint: c.endpoint, Reason: "no webSocketDebuggerUrl in /json/version"}
	}
	c.logger.Debugf("discovery", "browser %q protocol %q ws %s",
		version.Browser, version.ProtocolVersion, version.WebSocketDebuggerURL)
	return version.WebSocketDebuggerURL, nil
}

// Connect dials the browser WebSocket endpoint. It is a no-op when already
// connected.
func (c *Client) Connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	wsURL, err := c.browserWSURL(ctx)
	if err != nil {
		return err
	}
	conn, err := NewConnection(ctx, wsURL, c.logger)
	if err != nil {
		return &ConnectionError{Endpoint: c.endpoint, Op: "cannot open websocket to", Err: err}
	}
	c.conn = conn
	return nil
}

// Attach connects (if necessary) and binds to the given page, returning the
// CDP session created for it.
func (c *Client) Attach(ctx context.Context, p Page) (*Session, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c.conn.Attach(ctx, p)
}

// Close shuts the WebSocket connection down, if one was opened.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
