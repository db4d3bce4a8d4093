package djen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"djenwatch/internal/comm"
	"djenwatch/internal/config"
	"djenwatch/internal/logging"
	"djenwatch/internal/metrics"
	"djenwatch/internal/pacing"
	"djenwatch/internal/services"
)

const (
	// MinPageDelay is the mandatory gap between result pages.
	MinPageDelay = 500 * time.Millisecond
	// MinCaseDelay is the mandatory gap between case-number queries.
	MinCaseDelay = 600 * time.Millisecond
	// ResultCap is the directory's silent limit for broad searches.
	ResultCap = 10000

	defaultPageSize = 100
	defaultTimeout  = 30 * time.Second
	rateLimitWait   = 60 * time.Second
	maxErrorBody    = 512
)

// Config describes the directory connection.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	PageSize  int
	PageDelay time.Duration
	CaseDelay time.Duration
	UserAgent string
}

// ConfigFromApp extracts the [djen] section of the application config.
func ConfigFromApp(cfg *config.Config) Config {
	if cfg == nil {
		return Config{}
	}
	return Config{
		BaseURL:   cfg.DJEN.BaseURL,
		Timeout:   cfg.DJENTimeout(),
		PageSize:  cfg.DJEN.PageSize,
		PageDelay: cfg.PageDelay(),
		CaseDelay: cfg.CaseDelay(),
		UserAgent: cfg.DJEN.UserAgent,
	}
}

// Page is one directory result page.
type Page struct {
	Items []comm.Communication
	Count int
}

// Result aggregates a multi-page or multi-case fetch. Errors counts the
// pages (FetchAll) or case numbers (FetchByCaseNumbers) that failed.
type Result struct {
	Items  []comm.Communication
	Total  int
	Pages  int
	Errors int
	Failed []string
}

// Tribunal is a court known to the directory.
type Tribunal struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	State string `json:"state"`
}

// ProgressFunc receives (current, total) after each page or case number.
type ProgressFunc func(current, total int)

// Client talks to the communication directory.
type Client struct {
	baseURL    string
	pageSize   int
	userAgent  string
	httpClient *http.Client
	pages      *pacing.Pacer
	cases      *pacing.Pacer
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithClock overrides the pacing clock (useful for tests).
func WithClock(clock pacing.Clock) Option {
	return func(c *Client) {
		c.pages.Clock = clock
		c.cases.Clock = clock
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "djen")
	}
}

// WithMetrics attaches metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a directory client. Delays below the mandatory minimums are
// raised to them.
func New(cfg Config, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "djen", "new client", "base url required", nil)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "djen", "new client", "parse base url", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	client := &Client{
		baseURL:    baseURL,
		pageSize:   pageSize,
		userAgent:  strings.TrimSpace(cfg.UserAgent),
		httpClient: &http.Client{Timeout: timeout},
		pages:      pacing.New(max(cfg.PageDelay, MinPageDelay), nil),
		cases:      pacing.New(max(cfg.CaseDelay, MinCaseDelay), nil),
		logger:     logging.NewComponentLogger(nil, "djen"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// FetchPage retrieves a single result page.
func (c *Client) FetchPage(ctx context.Context, filter Filter) (Page, error) {
	if err := filter.Validate(); err != nil {
		return Page{}, err
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = c.pageSize
	}

	var payload apiResponse
	if err := c.getJSON(ctx, "/comunicacao", filter.Query(), &payload); err != nil {
		c.metrics.FetchFailed(err)
		return Page{}, err
	}
	c.metrics.PageFetched()

	page := Page{Count: payload.Count, Items: make([]comm.Communication, 0, len(payload.Items))}
	for _, item := range payload.Items {
		page.Items = append(page.Items, item.toCommunication())
	}
	return page, nil
}

// FetchAll retrieves every page of filter. The first page determines the
// total; later pages are fetched sequentially with the page delay. A failing
// later page is logged and skipped unless it is a rate limit, which stops the
// walk and is returned alongside the partial result.
func (c *Client) FetchAll(ctx context.Context, filter Filter, onProgress ProgressFunc) (Result, error) {
	if err := filter.Validate(); err != nil {
		return Result{}, err
	}
	if filter.PageSize <= 0 {
		filter.PageSize = c.pageSize
	}
	filter.Page = 1
	logger := logging.WithContext(ctx, c.logger)

	first, err := c.FetchPage(ctx, filter)
	if err != nil {
		return Result{}, err
	}
	totalPages := int(math.Ceil(float64(first.Count) / float64(filter.PageSize)))
	if totalPages < 1 {
		totalPages = 1
	}
	if first.Count > ResultCap {
		logging.WarnWithContext(logger, "directory result count exceeds upstream cap",
			"result_cap_exceeded",
			logging.Int("count", first.Count),
			logging.Int("cap", ResultCap),
			logging.String(logging.FieldErrorHint, "narrow the filter by tribunal or date range"),
			logging.String(logging.FieldImpact, "results beyond the cap are not returned by the directory"),
		)
	}

	result := Result{Items: append([]comm.Communication(nil), first.Items...), Total: first.Count, Pages: 1}
	if onProgress != nil {
		onProgress(1, totalPages)
	}
	if totalPages == 1 {
		return result, nil
	}
	sampler := logging.NewProgressSampler(25)

	// Each only waits between its own steps, so page 2 waits here.
	if err := c.pages.Wait(ctx); err != nil {
		return result, err
	}
	err = c.pages.Each(ctx, totalPages-1, func(ctx context.Context, i int) error {
		pageFilter := filter
		pageFilter.Page = i + 2
		page, err := c.FetchPage(ctx, pageFilter)
		if err != nil {
			if errors.Is(err, services.ErrRateLimited) {
				return err
			}
			result.Errors++
			logging.WarnWithContext(logger, "directory page failed; skipping",
				"page_failed",
				logging.Int("page", pageFilter.Page),
				logging.Int("total_pages", totalPages),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, services.Hint(err)),
				logging.String(logging.FieldImpact, "communications on this page are missing from this pass"),
			)
		} else {
			result.Items = append(result.Items, page.Items...)
			result.Pages++
		}
		if onProgress != nil {
			onProgress(pageFilter.Page, totalPages)
		}
		if sampler.ShouldLog("pages", pageFilter.Page, totalPages) {
			logger.Debug("directory pages progress", logging.Int("page", pageFilter.Page), logging.Int("total_pages", totalPages))
		}
		return nil
	})
	if err != nil {
		return result, err
	}
	return result, nil
}

// FetchByCaseNumbers runs FetchAll once per case number, pacing case numbers
// by the case delay. Every case number is validated before any request; a
// failing case number is logged and skipped, and the result carries the
// union of the successful ones. A rate limit is the one exception to skipping:
// it stops the batch and returns the items gathered so far with the
// RateLimitedError, since every later case number would be refused too.
func (c *Client) FetchByCaseNumbers(ctx context.Context, caseNumbers []string, base Filter, onProgress ProgressFunc) (Result, error) {
	normalized := make([]string, 0, len(caseNumbers))
	seen := make(map[string]struct{}, len(caseNumbers))
	for _, raw := range caseNumbers {
		cn, err := comm.NormalizeCaseNumber(raw)
		if err != nil {
			return Result{}, services.Wrap(services.ErrInvalidFilter, "djen", "fetch by case numbers", "", err)
		}
		if _, dup := seen[cn]; dup {
			continue
		}
		seen[cn] = struct{}{}
		normalized = append(normalized, cn)
	}
	logger := logging.WithContext(ctx, c.logger)

	var result Result
	err := c.cases.Each(ctx, len(normalized), func(ctx context.Context, i int) error {
		cn := normalized[i]
		filter := base
		filter.CaseNumber = cn
		caseCtx := services.WithCaseNumber(ctx, cn)
		part, err := c.FetchAll(caseCtx, filter, nil)
		result.Items = append(result.Items, part.Items...)
		result.Total += part.Total
		result.Pages += part.Pages
		if err != nil {
			result.Errors++
			result.Failed = append(result.Failed, cn)
			if errors.Is(err, services.ErrRateLimited) {
				return err
			}
			logging.WarnWithContext(logger, "case number fetch failed; skipping",
				"case_fetch_failed",
				logging.String(logging.FieldCaseNumber, cn),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, services.Hint(err)),
				logging.String(logging.FieldImpact, "new communications for this case are missing from this pass"),
			)
		}
		if onProgress != nil {
			onProgress(i+1, len(normalized))
		}
		return nil
	})
	logger.Info("case number batch fetched",
		logging.Int("case_numbers", len(normalized)),
		logging.Int("found", len(result.Items)),
		logging.Int("errors", result.Errors),
	)
	return result, err
}

// FetchLatest returns the newest communication for caseNumber, or nil when
// the directory has none. Only one item is requested.
func (c *Client) FetchLatest(ctx context.Context, caseNumber string) (*comm.Communication, error) {
	page, err := c.FetchPage(ctx, Filter{CaseNumber: caseNumber, Page: 1, PageSize: 1})
	if err != nil {
		return nil, err
	}
	if len(page.Items) == 0 {
		return nil, nil
	}
	latest := page.Items[0]
	for _, item := range page.Items[1:] {
		if item.AvailabilityDate.After(latest.AvailabilityDate) {
			latest = item
		}
	}
	return &latest, nil
}

// Tribunals lists the courts that publish to the directory, sorted by code.
func (c *Client) Tribunals(ctx context.Context) ([]Tribunal, error) {
	var groups []apiTribunalGroup
	if err := c.getJSON(ctx, "/comunicacao/tribunal", nil, &groups); err != nil {
		c.metrics.FetchFailed(err)
		return nil, err
	}
	var out []Tribunal
	for _, group := range groups {
		for _, inst := range group.Institutions {
			out = append(out, Tribunal{Code: strings.TrimSpace(inst.Code), Name: strings.TrimSpace(inst.Name), State: strings.TrimSpace(group.State)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// CertificateURL returns the publication certificate (certidão) link for hash.
func (c *Client) CertificateURL(hash string) string {
	return c.baseURL + "/comunicacao/" + url.PathEscape(strings.TrimSpace(hash)) + "/certidao"
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &UpstreamError{Message: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &UpstreamError{Message: fmt.Sprintf("execute request (latency=%v)", latency), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitedError{RetryAfter: rateLimitWait}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &UpstreamError{Status: resp.StatusCode, Message: upstreamMessage(body, resp.Status)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UpstreamError{Status: resp.StatusCode, Message: "decode response", Err: err}
	}
	return nil
}

func upstreamMessage(body []byte, fallback string) string {
	var envelope struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && strings.TrimSpace(envelope.Message) != "" {
		return strings.TrimSpace(envelope.Message)
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return fallback
}
