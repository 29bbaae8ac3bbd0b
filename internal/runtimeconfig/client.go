package runtimeconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/eugenenazirov/rcloadenv/internal/errs"
	"github.com/eugenenazirov/rcloadenv/internal/transform"
)

const (
	// DefaultEndpoint is the v1beta1 Runtime Configurator API root.
	DefaultEndpoint = "https://runtimeconfig.googleapis.com/v1beta1"
	// Scope grants access to Runtime Configurator resources.
	Scope = "https://www.googleapis.com/auth/cloudruntimeconfig"
	// PageSize is requested for every page. A page holding fewer entries is the last one.
	PageSize = 100
	// DefaultMaxPages bounds the number of pages fetched for a single config.
	DefaultMaxPages = 1000

	maxErrorBody = 4 << 10
)

// Client lists Runtime Configurator variables over HTTP.
type Client struct {
	httpClient *http.Client
	endpoint   string
	maxPages   int
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the API root, primarily for tests and emulators.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = strings.TrimRight(endpoint, "/")
		}
	}
}

// WithMaxPages overrides the page guard.
func WithMaxPages(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// WithLogger attaches a logger for page level debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a Client issuing requests through httpClient, which is
// expected to attach authorization.
func NewClient(httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		httpClient: httpClient,
		endpoint:   DefaultEndpoint,
		maxPages:   DefaultMaxPages,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ParentPath returns the resource name of a config.
func ParentPath(project, config string) string {
	return fmt.Sprintf("projects/%s/configs/%s", project, config)
}

// ListVariables returns every variable of config in project, in the order the
// service returned them. Pages are requested one after another until a page
// holds fewer than PageSize entries. Any failure discards the pages fetched so far.
func (c *Client) ListVariables(ctx context.Context, project, config string) ([]transform.RawVariable, error) {
	target := c.endpoint + "/" + ParentPath(url.PathEscape(project), url.PathEscape(config)) + "/variables"

	var (
		all   []transform.RawVariable
		token string
	)
	for page := 1; ; page++ {
		if page > c.maxPages {
			return nil, fmt.Errorf("%w: list variables: more than %d pages", errs.ErrTransport, c.maxPages)
		}

		resp, err := c.fetchPage(ctx, target, token)
		if err != nil {
			return nil, fmt.Errorf("list variables page %d: %w", page, err)
		}
		all = append(all, resp.Variables...)
		c.logger.Debug("fetched variables page",
			zap.Int("page", page),
			zap.Int("count", len(resp.Variables)),
		)

		if len(resp.Variables) < PageSize {
			return all, nil
		}
		if resp.NextPageToken == "" {
			// a full page with no cursor cannot be continued
			return all, nil
		}
		token = resp.NextPageToken
	}
}

func (c *Client) fetchPage(ctx context.Context, target, token string) (*ListResponse, error) {
	query := url.Values{}
	query.Set("pageSize", strconv.Itoa(PageSize))
	query.Set("returnValues", "true")
	if token != "" {
		query.Set("pageToken", token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", errs.ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, fmt.Errorf("%w: obtain token: %w", errs.ErrAuthentication, err)
		}
		return nil, fmt.Errorf("%w: %w", errs.ErrTransport, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		class := errs.ErrTransport
		if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
			class = errs.ErrAuthentication
		}
		return nil, fmt.Errorf("%w: unexpected status %d: %s", class, res.StatusCode, strings.TrimSpace(string(body)))
	}

	var page ListResponse
	if err := json.NewDecoder(res.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", errs.ErrTransport, err)
	}
	return &page, nil
}
