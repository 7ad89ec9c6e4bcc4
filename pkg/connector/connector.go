// Package connector implements the HTTP client for the EMR bulk-export
// controller that medrag indexes records from.
//
// All fetch endpoints share one shape: a POST with a JSON body carrying a
// search domain, limit, and offset, answered by {"status": "success",
// "data": [...]} or {"status": "error", "message": "..."}. Requests carry a
// Bearer API key.
package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultBaseURL is the default EMR URL.
	DefaultBaseURL = "http://localhost:8069"

	// DefaultTimeout bounds each request to the EMR.
	DefaultTimeout = 30 * time.Second

	basePath = "/api/rag"
)

// Client talks to the EMR bulk-export controller.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Config holds configuration for the EMR client.
type Config struct {
	// BaseURL is the EMR URL (e.g., "http://localhost:8069").
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is sent as a Bearer token on every request.
	APIKey string

	// Timeout bounds each request. Defaults to DefaultTimeout if zero.
	Timeout time.Duration
}

// Domain is a conjunctive list of (field, operator, value) conditions in the
// EMR's native search-domain form.
type Domain [][3]any

// Eq appends an equality condition to the domain.
func (d Domain) Eq(field string, value any) Domain {
	return append(d, [3]any{field, "=", value})
}

// fetchRequest is the request body shared by the fetch_all and list_ids endpoints.
type fetchRequest struct {
	Domain Domain `json:"domain"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// envelope is the response wrapper every endpoint uses.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Count   int             `json:"count,omitempty"`
}

// markSyncedRequest is the request body for the mark_synced endpoint.
type markSyncedRequest struct {
	Model  string  `json:"model"`
	ResIDs []int64 `json:"res_ids"`
}

// NewClient creates an EMR client.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchAll retrieves records of the given kind matching the domain.
// An empty data list is a successful, empty result.
func (c *Client) FetchAll(ctx context.Context, kind string, domain Domain, limit, offset int) ([]Record, error) {
	info, ok := kinds[kind]
	if !ok {
		return nil, fmt.Errorf("unknown source kind: %q", kind)
	}

	env, err := c.post(ctx, basePath+"/"+info.endpoint+"/fetch_all", fetchRequest{
		Domain: domain,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, err
	}

	var records []Record
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &records); err != nil {
			return nil, fmt.Errorf("%w: decoding records: %v", ErrRemote, err)
		}
	}

	return records, nil
}

// FetchUnsynced retrieves records of the given kind that the EMR has not yet
// flagged as indexed. This is the selection used by incremental runs.
func (c *Client) FetchUnsynced(ctx context.Context, kind string, limit int) ([]Record, error) {
	domain := Domain{}.Eq("is_rag_synced", false)
	return c.FetchAll(ctx, kind, domain, limit, 0)
}

// ListIDs returns the ids of records matching the domain.
func (c *Client) ListIDs(ctx context.Context, kind string, domain Domain) ([]int64, error) {
	info, ok := kinds[kind]
	if !ok {
		return nil, fmt.Errorf("unknown source kind: %q", kind)
	}

	env, err := c.post(ctx, basePath+"/"+info.endpoint+"/list_ids", fetchRequest{Domain: domain})
	if err != nil {
		return nil, err
	}

	var ids []int64
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &ids); err != nil {
			return nil, fmt.Errorf("%w: decoding ids: %v", ErrRemote, err)
		}
	}

	return ids, nil
}

// MarkSynced flags the given records as indexed on the EMR side and returns
// the number of records the EMR actually updated. The count may be lower
// than len(ids) when records were deleted remotely.
func (c *Client) MarkSynced(ctx context.Context, kind string, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	model, err := RemoteModel(kind)
	if err != nil {
		return 0, err
	}

	env, err := c.post(ctx, basePath+"/mark_synced", markSyncedRequest{
		Model:  model,
		ResIDs: ids,
	})
	if err != nil {
		return 0, err
	}

	return env.Count, nil
}

// Ping verifies connectivity and the API key.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+basePath+"/ping", nil)
	if err != nil {
		return fmt.Errorf("%w: creating request: %v", ErrRemote, err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: sending request: %v", ErrRemote, err)
	}
	defer resp.Body.Close()

	return c.checkStatus(resp)
}

// post sends a JSON request and decodes the response envelope.
func (c *Client) post(ctx context.Context, path string, body any) (*envelope, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling request: %v", ErrRemote, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", ErrRemote, err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: sending request: %v", ErrRemote, err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrRemote, err)
	}

	if env.Status != "success" {
		return nil, fmt.Errorf("%w: %s", ErrRemote, env.Message)
	}

	return &env, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrAuth, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d: %s", ErrRemote, resp.StatusCode, string(body))
	default:
		return nil
	}
}
