package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const DefaultEndpoint = "https://overpass-api.de/api/interpreter"

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("overpass: status %d: %s", e.Code, e.Body)
}

type Client struct {
	endpoint  string
	http      *http.Client
	userAgent string
	log       *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithUserAgent(ua string) Option {
	return func(cl *Client) { cl.userAgent = ua }
}

func WithLogger(log *zap.Logger) Option {
	return func(cl *Client) { cl.log = log }
}

func NewClient(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		endpoint:  endpoint,
		http:      &http.Client{Timeout: 60 * time.Second},
		userAgent: "findercafe",
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("overpass")
	return c
}

// Run sends query once as the data parameter of a GET request. There is no retry.
func (c *Client) Run(ctx context.Context, query fmt.Stringer) ([]Element, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("overpass: parse endpoint: %w", err)
	}
	params := u.Query()
	params.Set("data", query.String())
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("overpass: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	t0 := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("overpass: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	var r Response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("overpass: decode response: %w", err)
	}
	if r.Remark != "" {
		// runtime errors and timeouts are reported in-band with a 200
		c.log.Warn("query remark", zap.String("remark", r.Remark))
	}

	c.log.Debug("query done",
		zap.Int("elements", len(r.Elements)),
		zap.Duration("took", time.Since(t0)),
	)
	return r.Elements, nil
}
