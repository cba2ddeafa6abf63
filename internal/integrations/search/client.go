// Package search synchronizes cleansed entities into the full-text search
// engine and runs term queries against its SQL endpoint.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"collab-backend/internal/storage"
)

const (
	sqlPath            = "/_plugins/_sql"
	defaultQueryLimit  = 25
	defaultHTTPTimeout = 10 * time.Second
)

// HTTPStatusError captures non-2xx engine responses with status-aware
// context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("search: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a focused client for the search engine's document and SQL
// endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Client for the engine at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("search: base URL must not be empty")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) documentURL(index, id string) string {
	return c.baseURL + "/" + url.PathEscape(index) + "/_doc/" + url.PathEscape(id)
}

// IndexDocument upserts a cleansed document keyed by entity id.
func (c *Client) IndexDocument(ctx context.Context, index, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("search: IndexDocument: %w", err)
	}

	u := c.documentURL(index, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("search: IndexDocument: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.do(req, nil); err != nil {
		c.logger.Error("index document failed", "index", index, "id", id, "err", err)
		return fmt.Errorf("search: IndexDocument: %w", err)
	}
	return nil
}

// DeindexDocument deletes a document by entity id. A 404 is treated as
// success so redelivered deletions stay harmless.
func (c *Client) DeindexDocument(ctx context.Context, index, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.documentURL(index, id), nil)
	if err != nil {
		return fmt.Errorf("search: DeindexDocument: %w", err)
	}

	if err := c.do(req, nil); err != nil {
		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil
		}
		c.logger.Error("deindex document failed", "index", index, "id", id, "err", err)
		return fmt.Errorf("search: DeindexDocument: %w", err)
	}
	return nil
}

// sqlRequest is the engine's SQL endpoint request shape.
type sqlRequest struct {
	Query string `json:"query"`
}

// sqlResponse is the engine's tabular response: column schema plus rows.
type sqlResponse struct {
	Schema []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"schema"`
	Datarows [][]any `json:"datarows"`
	Total    int     `json:"total"`
	Size     int     `json:"size"`
}

// searchCursor is the offset state resumed by a continuation token.
type searchCursor struct {
	Offset int `json:"offset"`
}

// QueryParams describes one term query.
type QueryParams struct {
	Index string
	// Term is substring-matched across Fields.
	Term   string
	Fields []string
	// IDFilter, when non-empty, restricts results to the given entity ids.
	IDFilter []string
	Limit    int
	// Cursor resumes a previous page.
	Cursor string
}

// QueryResult is one page of matches. Documents are keyed by the response's
// declared column names. NextCursor is empty on the last page.
type QueryResult struct {
	Documents  []map[string]any
	Total      int
	NextCursor string
}

// QueryBySearchTerm runs a substring query and maps each row by the
// declared column schema; column order is not stable across calls, so rows
// are never read positionally.
//
// Pagination is offset-based and best-effort: concurrent index writes
// between pages can shift the offset, so strict exactly-once enumeration is
// not guaranteed. Callers needing read-your-own-write consistency must read
// the primary store instead.
func (c *Client) QueryBySearchTerm(ctx context.Context, params QueryParams) (*QueryResult, error) {
	if params.Index == "" {
		return nil, errors.New("search: QueryBySearchTerm: index must not be empty")
	}
	if len(params.Fields) == 0 {
		return nil, errors.New("search: QueryBySearchTerm: fields must not be empty")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	offset := 0
	if params.Cursor != "" {
		var cursor searchCursor
		if err := storage.DecodeCursor(params.Cursor, &cursor); err != nil {
			return nil, fmt.Errorf("search: QueryBySearchTerm: %w", err)
		}
		offset = cursor.Offset
	}

	query := buildTermQuery(params.Index, params.Term, params.Fields, params.IDFilter, limit, offset)
	body, err := json.Marshal(sqlRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("search: QueryBySearchTerm: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sqlPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("search: QueryBySearchTerm: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp sqlResponse
	if err := c.do(req, &resp); err != nil {
		c.logger.Error("search query failed", "index", params.Index, "term", params.Term, "err", err)
		return nil, fmt.Errorf("search: QueryBySearchTerm: %w", err)
	}

	docs := make([]map[string]any, 0, len(resp.Datarows))
	for _, row := range resp.Datarows {
		if len(row) != len(resp.Schema) {
			return nil, fmt.Errorf("search: QueryBySearchTerm: row has %d values for %d columns", len(row), len(resp.Schema))
		}
		doc := make(map[string]any, len(row))
		for i, col := range resp.Schema {
			doc[col.Name] = row[i]
		}
		docs = append(docs, doc)
	}

	result := &QueryResult{Documents: docs, Total: resp.Total}
	if viewed := offset + resp.Size; viewed < resp.Total {
		next, err := storage.EncodeCursor(searchCursor{Offset: viewed})
		if err != nil {
			return nil, fmt.Errorf("search: QueryBySearchTerm: %w", err)
		}
		result.NextCursor = next
	}
	return result, nil
}

// buildTermQuery renders the engine's SQL dialect for a substring match
// over the given fields, optionally restricted to an id allow-list.
func buildTermQuery(index, term string, fields, idFilter []string, limit, offset int) string {
	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(index)
	b.WriteString(" WHERE (")
	for i, field := range fields {
		if i > 0 {
			b.WriteString(" OR ")
		}
		b.WriteString(field)
		b.WriteString(" LIKE '%")
		b.WriteString(escapeLiteral(term))
		b.WriteString("%'")
	}
	b.WriteString(")")
	if len(idFilter) > 0 {
		b.WriteString(" AND id IN (")
		for i, id := range idFilter {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("'")
			b.WriteString(escapeLiteral(id))
			b.WriteString("'")
		}
		b.WriteString(")")
	}
	fmt.Fprintf(&b, " LIMIT %d OFFSET %d", limit, offset)
	return b.String()
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// do executes the request, decodes a 2xx JSON response into out when out is
// non-nil, and converts any other status into an HTTPStatusError.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPStatusError{StatusCode: resp.StatusCode, URL: req.URL.String(), Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// UnmarshalDocuments converts schema-mapped documents into typed entities.
func UnmarshalDocuments[T any](docs []map[string]any) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("search: UnmarshalDocuments: %w", err)
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("search: UnmarshalDocuments: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}
