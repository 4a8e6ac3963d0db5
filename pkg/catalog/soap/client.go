// Package soap implements catalog.Service against the ReportService2010 SOAP
// endpoint of a report server.
package soap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/beevik/etree"
	"github.com/cenkalti/backoff/v4"
	"github.com/fulmenhq/reportdeploy/pkg/catalog"
	"github.com/fulmenhq/reportdeploy/pkg/logger"
	"golang.org/x/time/rate"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 64 << 20

// RetryPolicy bounds retries of transient transport failures. Server faults
// are never retried.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Options configures a Client.
type Options struct {
	Endpoint  string
	UserName  string
	Password  string
	Timeout   time.Duration
	RateLimit float64 // requests per second; 0 disables pacing
	RateBurst int
	Retry     RetryPolicy
	UserAgent string
	// Doer replaces the HTTP client, mainly for tests.
	Doer Doer
}

// Client talks to the catalog over SOAP. It is safe for concurrent use, but
// the publisher issues one call at a time.
type Client struct {
	endpoint  string
	username  string
	password  string
	userAgent string
	doer      Doer
	limiter   *rate.Limiter
	retry     RetryPolicy
}

var _ catalog.Service = (*Client)(nil)

// New creates a Client.
func New(opts Options) *Client {
	doer := opts.Doer
	if doer == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 100 * time.Second
		}
		doer = NewHTTPDoer(timeout)
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	retry := opts.Retry
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "reportdeploy"
	}
	return &Client{
		endpoint:  opts.Endpoint,
		username:  opts.UserName,
		password:  opts.Password,
		userAgent: ua,
		doer:      doer,
		limiter:   limiter,
		retry:     retry,
	}
}

func (c *Client) GetItemType(ctx context.Context, path string) (catalog.ItemType, error) {
	req := newRequest(catalog.OpGetItemType)
	req.text("ItemPath", path)
	resp, err := c.call(ctx, req)
	if err != nil {
		return catalog.TypeUnknown, err
	}
	return catalog.ParseItemType(childText(resp, "Type")), nil
}

func (c *Client) CreateFolder(ctx context.Context, name, parent string) (catalog.Item, error) {
	req := newRequest(catalog.OpCreateFolder)
	req.text("Folder", name)
	req.text("Parent", parent)
	resp, err := c.call(ctx, req)
	if err != nil {
		return catalog.Item{}, err
	}
	return itemOrDefault(resp, name, parent, catalog.TypeFolder), nil
}

func (c *Client) CreateDataSource(ctx context.Context, name, parent string, overwrite bool, def catalog.ConnectionDefinition) (catalog.Item, error) {
	req := newRequest(catalog.OpCreateDataSource)
	req.text("DataSource", name)
	req.text("Parent", parent)
	req.text("Overwrite", boolText(overwrite))
	writeDefinition(req.call.CreateElement("Definition"), def)
	resp, err := c.call(ctx, req)
	if err != nil {
		return catalog.Item{}, err
	}
	return itemOrDefault(resp, name, parent, catalog.TypeDataSource), nil
}

func (c *Client) CreateCatalogItem(ctx context.Context, kind catalog.ItemType, name, parent string, overwrite bool, content []byte) (catalog.Item, []catalog.Warning, error) {
	req := newRequest(catalog.OpCreateCatalogItem)
	req.text("ItemType", string(kind))
	req.text("Name", name)
	req.text("Parent", parent)
	req.text("Overwrite", boolText(overwrite))
	req.text("Definition", encodeContent(content))
	resp, err := c.call(ctx, req)
	if err != nil {
		return catalog.Item{}, nil, err
	}
	return itemOrDefault(resp, name, parent, kind), readWarnings(resp), nil
}

func (c *Client) DeleteItem(ctx context.Context, path string) error {
	req := newRequest(catalog.OpDeleteItem)
	req.text("ItemPath", path)
	_, err := c.call(ctx, req)
	return err
}

func (c *Client) ListChildren(ctx context.Context, path string, recursive bool) ([]catalog.Item, error) {
	req := newRequest(catalog.OpListChildren)
	req.text("ItemPath", path)
	req.text("Recursive", boolText(recursive))
	resp, err := c.call(ctx, req)
	if err != nil {
		return nil, err
	}
	return readItems(resp.SelectElement("CatalogItems")), nil
}

func (c *Client) GetItemDataSources(ctx context.Context, path string) ([]catalog.DataSourceBinding, error) {
	req := newRequest(catalog.OpGetItemDataSources)
	req.text("ItemPath", path)
	resp, err := c.call(ctx, req)
	if err != nil {
		return nil, err
	}
	return readBindings(resp), nil
}

func (c *Client) SetItemDataSources(ctx context.Context, path string, bindings []catalog.DataSourceBinding) error {
	req := newRequest(catalog.OpSetItemDataSources)
	req.text("ItemPath", path)
	writeBindings(req.call, bindings)
	_, err := c.call(ctx, req)
	return err
}

// itemOrDefault reads ItemInfo, filling in what the caller already knows when
// the server omits it.
func itemOrDefault(resp *etree.Element, name, parent string, kind catalog.ItemType) catalog.Item {
	item := readItem(resp.SelectElement("ItemInfo"))
	if item.Name == "" {
		item.Name = name
	}
	if item.Path == "" {
		item.Path = catalog.Join(parent, name)
	}
	if !item.TypeName.Exists() {
		item.TypeName = kind
	}
	return item
}

// call sends the request, pacing and retrying as configured.
func (c *Client) call(ctx context.Context, req *request) (*etree.Element, error) {
	payload, err := req.bytes()
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", req.op, err)
	}

	var resp *etree.Element
	attempt := 0
	op := func() error {
		attempt++
		r, err := c.roundTrip(ctx, req.op, payload)
		if err != nil {
			if catalog.IsTransient(err) && ctx.Err() == nil {
				return err
			}
			return backoff.Permanent(err)
		}
		resp = r
		return nil
	}

	if c.retry.MaxAttempts <= 1 {
		err = op()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		return resp, err
	}

	eb := backoff.NewExponentialBackOff()
	if c.retry.InitialInterval > 0 {
		eb.InitialInterval = c.retry.InitialInterval
	}
	if c.retry.MaxInterval > 0 {
		eb.MaxInterval = c.retry.MaxInterval
	}
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.retry.MaxAttempts-1)), ctx)

	err = backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		logger.Warn("Transient catalog failure, retrying",
			logger.String("operation", req.op),
			logger.Int("attempt", attempt),
			logger.String("wait", wait.String()),
			logger.Err(err))
	})
	return resp, err
}

func (c *Client) roundTrip(ctx context.Context, op string, payload []byte) (*etree.Element, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", "text/xml; charset=utf-8")
	httpReq.Header.Set("SOAPAction", `"`+Namespace+"/"+op+`"`)
	httpReq.Header.Set("User-Agent", c.userAgent)
	if c.username != "" {
		httpReq.SetBasicAuth(c.username, c.password)
	}

	start := time.Now()
	httpResp, err := c.doer.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &catalog.TransportError{Operation: op, URL: c.endpoint, Wrapped: err}
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &catalog.TransportError{Operation: op, URL: c.endpoint, Wrapped: fmt.Errorf("read response: %w", err)}
	}

	logger.Trace("SOAP call completed",
		logger.String("operation", op),
		logger.Int("status", httpResp.StatusCode),
		logger.String("elapsed", time.Since(start).String()))

	resp, perr := parseResponse(op, body)
	var fault *catalog.Fault
	if errors.As(perr, &fault) {
		return nil, fault
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, &catalog.TransportError{
			Operation:  op,
			URL:        c.endpoint,
			StatusCode: httpResp.StatusCode,
			Wrapped:    errors.New(http.StatusText(httpResp.StatusCode)),
		}
	}
	if perr != nil {
		return nil, &catalog.TransportError{Operation: op, URL: c.endpoint, StatusCode: httpResp.StatusCode, Wrapped: perr}
	}
	return resp, nil
}
