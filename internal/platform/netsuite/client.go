// Package netsuite implements the SuiteQL client: the sole I/O boundary to
// the remote ledger. Every call passes the admission gate, carries an
// explicit timeout, and returns typed errors so callers can distinguish
// rate limiting from hard query failures.
package netsuite

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Row is a single SuiteQL result row. SuiteQL returns most column values as
// strings regardless of the underlying type.
type Row map[string]any

// Str returns the column as a string, empty when absent or null.
func (r Row) Str(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "T"
		}
		return "F"
	default:
		return ""
	}
}

// Float returns the column as a float64, zero when absent, null, or
// unparsable.
func (r Row) Float(key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// Int64 returns the column as an int64, zero when absent or unparsable.
func (r Row) Int64(key string) int64 {
	switch v := r[key].(type) {
	case float64:
		return int64(v)
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// QueryObserver receives a record of every executed query. Used to feed the
// audit log and metrics without coupling the client to either.
type QueryObserver interface {
	ObserveQuery(ctx context.Context, queryHash string, duration time.Duration, rows int, err error)
}

// Config collects client settings. Concurrency is the upstream hard ceiling;
// the gate keeps one permit of headroom below it.
type Config struct {
	AccountID      string
	ConsumerKey    string
	ConsumerSecret string
	TokenID        string
	TokenSecret    string

	Concurrency    int
	PacingInterval time.Duration
	QueryTimeout   time.Duration
	ScanTimeout    time.Duration
	PageSize       int
	MaxPages       int

	// BaseURL overrides the account-derived endpoint, for tests.
	BaseURL string
}

// Client executes SuiteQL queries.
type Client struct {
	cfg      Config
	endpoint string
	http     *http.Client
	signer   *signer
	gate     *gate
	observer QueryObserver
	logger   *slog.Logger
}

// NewClient constructs a client from config.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 30 * time.Second
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = 180 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.suitetalk.api.netsuite.com/services/rest/query/v1/suiteql", cfg.AccountID)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:      cfg,
		endpoint: endpoint,
		http:     &http.Client{},
		signer:   newSigner(cfg.AccountID, cfg.ConsumerKey, cfg.ConsumerSecret, cfg.TokenID, cfg.TokenSecret),
		gate:     newGate(cfg.Concurrency, cfg.PacingInterval),
		logger:   logger,
	}
}

// SetObserver installs a query observer. Not safe to call after the client
// is in use.
func (c *Client) SetObserver(obs QueryObserver) {
	c.observer = obs
}

type queryResponse struct {
	Items        []Row `json:"items"`
	HasMore      bool  `json:"hasMore"`
	Count        int   `json:"count"`
	Offset       int   `json:"offset"`
	TotalResults int   `json:"totalResults"`
}

// Run executes a single query bounded by the default timeout and returns the
// first page of results.
func (c *Client) Run(ctx context.Context, query string) ([]Row, error) {
	resp, err := c.execute(ctx, query, 0, c.cfg.PageSize, c.cfg.QueryTimeout)
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// RunScan executes a single query with the extended timeout used for
// cumulative balance scans.
func (c *Client) RunScan(ctx context.Context, query string) ([]Row, error) {
	resp, err := c.execute(ctx, query, 0, c.cfg.PageSize, c.cfg.ScanTimeout)
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// RunAll pages through the full result set. It keeps fetching while the
// upstream reports more data and stops at the configured page ceiling so a
// miscounting upstream cannot trap the caller in a loop.
func (c *Client) RunAll(ctx context.Context, query string) ([]Row, error) {
	var out []Row
	offset := 0
	for page := 0; ; page++ {
		if page >= c.cfg.MaxPages {
			return out, fmt.Errorf("netsuite: result exceeded %d pages: %w", c.cfg.MaxPages, ErrQueryFailed)
		}
		resp, err := c.execute(ctx, query, offset, c.cfg.PageSize, c.cfg.ScanTimeout)
		if err != nil {
			return nil, err
		}
		out = append(out, resp.Items...)
		if !resp.HasMore || len(resp.Items) < c.cfg.PageSize {
			return out, nil
		}
		offset += len(resp.Items)
	}
}

func (c *Client) execute(ctx context.Context, query string, offset, limit int, timeout time.Duration) (*queryResponse, error) {
	if err := c.gate.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.gate.release()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.post(ctx, query, offset, limit)
	if c.observer != nil {
		rows := 0
		if resp != nil {
			rows = len(resp.Items)
		}
		c.observer.ObserveQuery(ctx, QueryHash(query), time.Since(start), rows, err)
	}
	if err != nil {
		c.logger.Warn("suiteql query failed",
			slog.String("hash", QueryHash(query)),
			slog.Duration("elapsed", time.Since(start)),
			slog.Any("error", err))
		return nil, err
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, query string, offset, limit int) (*queryResponse, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("netsuite: endpoint: %w", err)
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	u.RawQuery = q.Encode()

	body, err := json.Marshal(map[string]string{"q": query})
	if err != nil {
		return nil, fmt.Errorf("netsuite: marshal query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("netsuite: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "transient")
	req.Header.Set("Authorization", c.signer.Authorize(http.MethodPost, u))

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("netsuite: %w: %v", ErrQueryFailed, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, decodeError(res)
	}
	var payload queryResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("netsuite: decode response: %w", err)
	}
	for _, row := range payload.Items {
		delete(row, "links")
	}
	return &payload, nil
}

func decodeError(res *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 8<<10))
	apiErr := &APIError{Status: res.StatusCode}
	var payload struct {
		Title        string `json:"title"`
		ErrorDetails []struct {
			Detail    string `json:"detail"`
			ErrorCode string `json:"o:errorCode"`
		} `json:"o:errorDetails"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		apiErr.Detail = payload.Title
		if len(payload.ErrorDetails) > 0 {
			apiErr.Code = payload.ErrorDetails[0].ErrorCode
			apiErr.Detail = payload.ErrorDetails[0].Detail
		}
	}
	return apiErr
}

// QueryHash returns a short stable identifier for a query text, used for
// audit rows and log correlation.
func QueryHash(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:8])
}
