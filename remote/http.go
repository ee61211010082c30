package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPClient talks to a PostgREST-style row API:
//
//	GET    {base}/rest/v1/{table}?col=eq.val&order=col.asc&limit=n
//	POST   {base}/rest/v1/{table}?on_conflict=cols   (upsert, return=representation)
//	DELETE {base}/rest/v1/{table}?col=eq.val
type HTTPClient struct {
	baseURL    string
	apiKey     string
	token      func(ctx context.Context) (string, error)
	httpClient *http.Client
}

// NewHTTPClient creates a REST client. apiKey is sent as the apikey header;
// the bearer token defaults to apiKey until WithToken is used.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithHTTPClient sets a custom http.Client (for testing or custom timeouts).
func (c *HTTPClient) WithHTTPClient(client *http.Client) *HTTPClient {
	c.httpClient = client
	return c
}

// WithToken sets the source of the per-request bearer token (the user's
// access token).
func (c *HTTPClient) WithToken(token func(ctx context.Context) (string, error)) *HTTPClient {
	c.token = token
	return c
}

func (c *HTTPClient) setHeaders(ctx context.Context, req *http.Request) error {
	bearer := c.apiKey
	if c.token != nil {
		tok, err := c.token(ctx)
		if err != nil {
			return err
		}
		if tok != "" {
			bearer = tok
		}
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("User-Agent", "studysync-client/1.0")
	req.Header.Set("Accept", "application/json")
	return nil
}

func newStoreError(op, table string, statusCode int, body []byte) *StoreError {
	msg := ""
	if len(body) > 0 && statusCode >= 400 {
		if len(body) > 200 {
			msg = string(body[:200]) + "..."
		} else {
			msg = string(body)
		}
	}
	return &StoreError{
		Operation:  op,
		Table:      table,
		StatusCode: statusCode,
		Err:        fmt.Errorf("HTTP %d: %s", statusCode, msg),
	}
}

func (c *HTTPClient) tableURL(table string, params url.Values) string {
	u := c.baseURL + "/rest/v1/" + url.PathEscape(table)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func filterParams(params url.Values, f Filter) {
	for k, v := range f {
		params.Set(k, "eq."+stringValue(v))
	}
}

// Ping implements Pinger.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rest/v1/", nil)
	if err != nil {
		return &StoreError{Operation: "ping", Err: err}
	}
	if err := c.setHeaders(ctx, req); err != nil {
		return &StoreError{Operation: "ping", Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &StoreError{Operation: "ping", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		body, _ := io.ReadAll(resp.Body)
		return newStoreError("ping", "", resp.StatusCode, body)
	}
	return nil
}

// Select implements Store.
func (c *HTTPClient) Select(ctx context.Context, table string, q Query) ([]Row, error) {
	params := url.Values{}
	params.Set("select", "*")
	filterParams(params, q.Filter)
	if len(q.Order) > 0 {
		parts := make([]string, len(q.Order))
		for i, o := range q.Order {
			dir := "asc"
			if o.Descending {
				dir = "desc"
			}
			parts[i] = o.Column + "." + dir
		}
		params.Set("order", strings.Join(parts, ","))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.tableURL(table, params), nil)
	if err != nil {
		return nil, &StoreError{Operation: "select", Table: table, Err: err}
	}
	if err := c.setHeaders(ctx, req); err != nil {
		return nil, &StoreError{Operation: "select", Table: table, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &StoreError{Operation: "select", Table: table, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, newStoreError("select", table, resp.StatusCode, body)
	}

	var rows []Row
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, &StoreError{Operation: "select", Table: table, Err: err}
	}
	return rows, nil
}

// Upsert implements Store.
func (c *HTTPClient) Upsert(ctx context.Context, table string, rows []Row, conflictKey string) ([]Row, error) {
	body, err := json.Marshal(rows)
	if err != nil {
		return nil, &StoreError{Operation: "upsert", Table: table, Err: err}
	}

	params := url.Values{}
	params.Set("on_conflict", strings.Join(ConflictColumns(conflictKey), ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tableURL(table, params), bytes.NewReader(body))
	if err != nil {
		return nil, &StoreError{Operation: "upsert", Table: table, Err: err}
	}
	if err := c.setHeaders(ctx, req); err != nil {
		return nil, &StoreError{Operation: "upsert", Table: table, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=representation")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &StoreError{Operation: "upsert", Table: table, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, newStoreError("upsert", table, resp.StatusCode, respBody)
	}

	var stored []Row
	if err := json.NewDecoder(resp.Body).Decode(&stored); err != nil {
		return nil, &StoreError{Operation: "upsert", Table: table, Err: err}
	}
	return stored, nil
}

// Delete implements Store.
func (c *HTTPClient) Delete(ctx context.Context, table string, filter Filter) error {
	if len(filter) == 0 {
		// PostgREST refuses unfiltered deletes; so do we.
		return &StoreError{Operation: "delete", Table: table, Err: fmt.Errorf("refusing unfiltered delete")}
	}

	params := url.Values{}
	filterParams(params, filter)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.tableURL(table, params), nil)
	if err != nil {
		return &StoreError{Operation: "delete", Table: table, Err: err}
	}
	if err := c.setHeaders(ctx, req); err != nil {
		return &StoreError{Operation: "delete", Table: table, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &StoreError{Operation: "delete", Table: table, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(resp.Body)
		return newStoreError("delete", table, resp.StatusCode, respBody)
	}
	return nil
}
