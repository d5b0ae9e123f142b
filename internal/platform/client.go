// Package platform is a REST client for the remote platform's long-running
// operations API and the export and import tasks submitted through it.
package platform

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"

	"github.com/geetools/exportsched/internal/cmn/backoff"
	"github.com/geetools/exportsched/internal/cmn/logger"
	"github.com/geetools/exportsched/internal/cmn/logger/tag"
	"github.com/geetools/exportsched/internal/core"
)

const (
	defaultBaseURL = "https://earthengine.googleapis.com"
	defaultTimeout = 60 * time.Second
	listPageSize   = 500

	retryInitialInterval = time.Second
	retryMaxInterval     = 30 * time.Second
	defaultMaxRetries    = 5
)

// Config configures a Client.
type Config struct {
	BaseURL         string
	Project         string
	AccessToken     string
	CredentialsFile string
	Timeout         time.Duration
	MaxRetries      int
}

// Client talks to the platform REST API. Requests that fail with 429, a 5xx
// status or a transport error are retried with exponential back-off.
type Client struct {
	http    *resty.Client
	project string
	policy  backoff.Policy
}

// NewClient creates a Client. ctx is used for token refreshes.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Project == "" {
		return nil, ErrNoProject
	}
	ts, err := tokenSource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var rc *resty.Client
	if ts != nil {
		rc = resty.NewWithClient(oauth2.NewClient(ctx, ts))
	} else {
		rc = resty.New()
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rc.SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "exportsched").
		SetError(&errorBody{})

	policy := backoff.NewExponentialPolicy(retryInitialInterval)
	policy.MaxInterval = retryMaxInterval
	policy.MaxRetries = cfg.MaxRetries
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = defaultMaxRetries
	}

	return &Client{http: rc, project: cfg.Project, policy: policy}, nil
}

// Project returns the configured project id.
func (c *Client) Project() string {
	return c.project
}

// do sends one request with retries and decodes a 2xx body into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any, query url.Values) error {
	return backoff.Retry(ctx, func(ctx context.Context) error {
		req := c.http.R().SetContext(ctx)
		if result != nil {
			req.SetResult(result)
		}
		if body != nil {
			req.SetBody(body)
		}
		if query != nil {
			req.SetQueryParamsFromValues(query)
		}
		resp, err := req.Execute(method, path)
		if err != nil {
			return err
		}
		if err := classifyResponse(resp); err != nil {
			logger.Debug(ctx, "Platform request failed",
				tag.URL(path),
				tag.Status(resp.StatusCode()),
				tag.Error(err),
			)
			return err
		}
		return nil
	}, c.policy, isRetriableError)
}

// Submit starts a task of kind with the given request body and returns the
// created operation.
func (c *Client) Submit(ctx context.Context, kind Kind, request map[string]any) (*Operation, error) {
	endpoint, ok := kindEndpoints[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	var op Operation
	path := fmt.Sprintf("/v1/projects/%s/%s", url.PathEscape(c.project), endpoint)
	if err := c.do(ctx, resty.MethodPost, path, request, &op, nil); err != nil {
		return nil, fmt.Errorf("failed to submit %s: %w", kind, err)
	}
	return &op, nil
}

// GetOperation fetches an operation by its full resource name.
func (c *Client) GetOperation(ctx context.Context, name string) (*Operation, error) {
	var op Operation
	if err := c.do(ctx, resty.MethodGet, "/v1/"+name, nil, &op, nil); err != nil {
		return nil, fmt.Errorf("failed to get operation %s: %w", name, err)
	}
	return &op, nil
}

// CancelOperation requests cancellation of an operation.
func (c *Client) CancelOperation(ctx context.Context, name string) error {
	if err := c.do(ctx, resty.MethodPost, "/v1/"+name+":cancel", map[string]any{}, nil, nil); err != nil {
		return fmt.Errorf("failed to cancel operation %s: %w", name, err)
	}
	return nil
}

// ListOperations returns every operation of the project, following pages.
func (c *Client) ListOperations(ctx context.Context) ([]Operation, error) {
	path := fmt.Sprintf("/v1/projects/%s/operations", url.PathEscape(c.project))
	var (
		ops       []Operation
		pageToken string
	)
	for {
		query := url.Values{"pageSize": {fmt.Sprint(listPageSize)}}
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}
		var page listOperationsResponse
		if err := c.do(ctx, resty.MethodGet, path, nil, &page, query); err != nil {
			return nil, fmt.Errorf("failed to list operations: %w", err)
		}
		ops = append(ops, page.Operations...)
		if page.NextPageToken == "" {
			return ops, nil
		}
		pageToken = page.NextPageToken
	}
}

// ListActive returns a task for each operation that is READY or RUNNING.
func (c *Client) ListActive(ctx context.Context) ([]core.RemoteJob, error) {
	ops, err := c.ListOperations(ctx)
	if err != nil {
		return nil, err
	}
	var active []core.RemoteJob
	for i := range ops {
		if ops[i].State().IsActive() {
			active = append(active, Adopt(c, &ops[i]))
		}
	}
	return active, nil
}
