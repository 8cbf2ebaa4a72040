// Package supabase provides the client for Supabase (PostgREST + GoTrue
// + Realtime). It is the only place the application talks to the hosted
// backend; everything above it goes through the port interfaces.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/equipedash/equipe-dash-go/internal/infra/observability"
	"github.com/equipedash/equipe-dash-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("supabase")

// Client wraps HTTP calls to the Supabase PostgREST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	serviceKey string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewClient creates a Supabase client. serviceKey may be empty, in
// which case requests carry the anon key only and are subject to
// row-level security like any frontend client.
func NewClient(httpClient *http.Client, baseURL, apiKey, serviceKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, metrics *observability.Metrics, logger *zap.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		serviceKey: serviceKey,
		cb:         cb,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger,
	}
}

// BaseURL returns the configured Supabase project URL.
func (c *Client) BaseURL() string { return c.baseURL }

// APIKey returns the anon key, needed by the realtime feed handshake.
func (c *Client) APIKey() string { return c.apiKey }

func (c *Client) bearer() string {
	if c.serviceKey != "" {
		return c.serviceKey
	}
	return c.apiKey
}

func (c *Client) setHeaders(req *http.Request, prefer string) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.bearer()))
	req.Header.Set("Content-Type", "application/json")
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
}

// doGet executes a read against PostgREST. A nil body with nil error
// means "no content". Calls pass through the circuit breaker; they are
// not retried here — the invalidate-and-refetch layer decides.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	out, err := c.cb.Execute(func() (any, error) {
		url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		c.setHeaders(req, "")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Error("supabase: GET failed", zap.String("path", path), zap.Error(err))
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
			return []byte(nil), nil
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			c.logger.Warn("supabase: GET non-2xx",
				zap.String("path", path),
				zap.Int("status", resp.StatusCode),
				zap.String("body", string(body)),
			)
			return nil, fmt.Errorf("supabase returned status %d: %s", resp.StatusCode, string(body))
		}

		c.logger.Debug("supabase: GET OK", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return body, nil
	})
	if err != nil {
		c.metrics.IncrRemoteError("postgrest")
		return nil, err
	}
	body, _ := out.([]byte)
	return body, nil
}

// doPost inserts one row and returns the representation including
// server-assigned columns. With upsert=true PostgREST merges on the
// primary key instead of failing the insert.
func (c *Client) doPost(ctx context.Context, table string, data any, upsert bool) ([]byte, error) {
	out, err := c.cb.Execute(func() (any, error) {
		url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, table)
		jsonBody, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
		if err != nil {
			return nil, err
		}
		prefer := "return=representation"
		if upsert {
			prefer = "return=representation,resolution=merge-duplicates"
		}
		c.setHeaders(req, prefer)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Error("supabase: POST failed", zap.String("table", table), zap.Error(err))
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			c.logger.Warn("supabase: POST non-2xx",
				zap.String("table", table),
				zap.Int("status", resp.StatusCode),
				zap.String("body", string(body)),
			)
			return nil, fmt.Errorf("supabase POST %s returned %d: %s", table, resp.StatusCode, string(body))
		}

		c.logger.Debug("supabase: POST OK", zap.String("table", table), zap.Int("status", resp.StatusCode))
		return body, nil
	})
	if err != nil {
		c.metrics.IncrRemoteError("postgrest")
		return nil, err
	}
	body, _ := out.([]byte)
	return body, nil
}

// doPatch updates only the supplied fields of the rows matched by path.
func (c *Client) doPatch(ctx context.Context, path string, data map[string]any) error {
	_, err := c.cb.Execute(func() (any, error) {
		url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)
		jsonBody, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(jsonBody))
		if err != nil {
			return nil, err
		}
		c.setHeaders(req, "return=minimal")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Error("supabase: PATCH failed", zap.String("path", path), zap.Error(err))
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(resp.Body)
			c.logger.Warn("supabase: PATCH non-2xx",
				zap.String("path", path),
				zap.Int("status", resp.StatusCode),
				zap.String("body", string(body)),
			)
			return nil, fmt.Errorf("supabase PATCH returned %d: %s", resp.StatusCode, string(body))
		}

		c.logger.Debug("supabase: PATCH OK", zap.String("path", path))
		return nil, nil
	})
	if err != nil {
		c.metrics.IncrRemoteError("postgrest")
	}
	return err
}

// doDelete removes the rows matched by path.
func (c *Client) doDelete(ctx context.Context, path string) error {
	_, err := c.cb.Execute(func() (any, error) {
		url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)

		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
		if err != nil {
			return nil, err
		}
		c.setHeaders(req, "")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Error("supabase: DELETE failed", zap.String("path", path), zap.Error(err))
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(resp.Body)
			c.logger.Warn("supabase: DELETE non-2xx",
				zap.String("path", path),
				zap.Int("status", resp.StatusCode),
				zap.String("body", string(body)),
			)
			return nil, fmt.Errorf("supabase DELETE returned %d: %s", resp.StatusCode, string(body))
		}

		c.logger.Debug("supabase: DELETE OK", zap.String("path", path))
		return nil, nil
	})
	if err != nil {
		c.metrics.IncrRemoteError("postgrest")
	}
	return err
}

// firstRow decodes a PostgREST representation response, which is an
// array even for single-row inserts, into dst.
func firstRow(body []byte, dst any) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		if len(raw) == 0 {
			return fmt.Errorf("empty representation")
		}
		return json.Unmarshal(raw[0], dst)
	}
	return json.Unmarshal(trimmed, dst)
}
