package erp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Spok95/erp-catalog-bot/internal/domain/catalog"
	"github.com/goccy/go-json"
)

// FetchError сетевой сбой или неуспешный ответ ERP.
type FetchError struct {
	Op     string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("erp %s: http %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("erp %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

type Options struct {
	BaseURL        string
	APIKey         string
	APIKeyHeader   string
	CatalogPath    string
	WarehousesPath string
	Timeout        time.Duration
}

// Client источник каталога и справочника складов (реализует catalog.Source).
type Client struct {
	opt  Options
	http *http.Client
	log  *slog.Logger
}

func New(opt Options, log *slog.Logger) *Client {
	if opt.Timeout <= 0 {
		opt.Timeout = 30 * time.Second
	}
	if opt.APIKeyHeader == "" {
		opt.APIKeyHeader = "Authorization"
	}
	if opt.CatalogPath == "" {
		opt.CatalogPath = "/catalog"
	}
	if opt.WarehousesPath == "" {
		opt.WarehousesPath = "/warehouses"
	}
	opt.BaseURL = strings.TrimRight(opt.BaseURL, "/")
	return &Client{
		opt:  opt,
		http: &http.Client{Timeout: opt.Timeout},
		log:  log.With("component", "erp"),
	}
}

// maxBody потолок ответа; каталог целиком, поэтому с запасом.
const maxBody = 64 << 20

func (c *Client) get(ctx context.Context, op, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opt.BaseURL+path, nil)
	if err != nil {
		return &FetchError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.opt.APIKey != "" {
		req.Header.Set(c.opt.APIKeyHeader, c.opt.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &FetchError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return &FetchError{Op: op, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &FetchError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("%s", snippet(body))}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &FetchError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	c.log.Debug("erp request", "op", op, "bytes", len(body), "took", time.Since(start))
	return nil
}

func (c *Client) FetchCatalog(ctx context.Context) ([]*catalog.Node, error) {
	var roots []*catalog.Node
	if err := c.get(ctx, "catalog", c.opt.CatalogPath, &roots); err != nil {
		return nil, err
	}
	return roots, nil
}

func (c *Client) FetchWarehouses(ctx context.Context) ([]catalog.Warehouse, error) {
	var ws []catalog.Warehouse
	if err := c.get(ctx, "warehouses", c.opt.WarehousesPath, &ws); err != nil {
		return nil, err
	}
	return ws, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "…"
	}
	if s == "" {
		s = "empty body"
	}
	return s
}
