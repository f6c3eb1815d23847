// Package search mirrors completed checkpoint output into an OpenSearch
// cluster so summaries and characters are full-text searchable. Indexing is
// strictly downstream of the pipeline: the store stays the source of truth
// and indexing failures never affect generation.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// ErrUnhealthy is returned when the cluster health check fails.
var ErrUnhealthy = errors.New("search cluster health check failed")

// Index names.
const (
	IndexBooks      = "books"
	IndexSummaries  = "summaries"
	IndexCharacters = "characters"
)

// Client is an OpenSearch HTTP client covering the small surface the
// pipeline needs: index bootstrap and per-document writes.
type Client struct {
	url        string
	username   string
	password   string
	httpClient *http.Client
}

// ClientConfig configures the search client.
type ClientConfig struct {
	URL      string
	Username string
	Password string
	Timeout  time.Duration
}

// NewClient creates a search client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:      strings.TrimSuffix(cfg.URL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// HealthCheck checks cluster health.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.url+"/_cluster/health", nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}
	c.auth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnhealthy, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// WaitForHealthy polls the cluster until it responds or the timeout lapses.
func (c *Client) WaitForHealthy(ctx context.Context, timeout time.Duration) error {
	return retry.Do(
		func() error {
			return c.HealthCheck(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(uint(timeout.Seconds())),
		retry.Delay(1*time.Second),
	)
}

// indexMappings defines the schema for each index the pipeline writes.
var indexMappings = map[string]string{
	IndexBooks: `{
		"mappings": {
			"properties": {
				"id": {"type": "keyword"},
				"title": {"type": "text"},
				"author": {"type": "text"},
				"total_length": {"type": "integer"},
				"version": {"type": "integer"},
				"created_at": {"type": "date"}
			}
		}
	}`,
	IndexSummaries: `{
		"mappings": {
			"properties": {
				"id": {"type": "keyword"},
				"book_id": {"type": "keyword"},
				"version": {"type": "integer"},
				"progress": {"type": "integer"},
				"summary": {"type": "text"},
				"new_characters": {"type": "keyword"},
				"completed_at": {"type": "date"}
			}
		}
	}`,
	IndexCharacters: `{
		"mappings": {
			"properties": {
				"id": {"type": "keyword"},
				"book_id": {"type": "keyword"},
				"version": {"type": "integer"},
				"name": {"type": "text"},
				"aliases": {"type": "text"},
				"first_seen": {"type": "integer"},
				"mention_count": {"type": "integer"}
			}
		}
	}`,
}

// EnsureIndexes creates any missing indexes. Existing indexes are left
// untouched.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	for name, mapping := range indexMappings {
		exists, err := c.indexExists(ctx, name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := c.createIndex(ctx, name, mapping); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) indexExists(ctx context.Context, name string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "HEAD", c.url+"/"+name, nil)
	if err != nil {
		return false, fmt.Errorf("create index check request: %w", err)
	}
	c.auth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("check index %s: %w", name, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

func (c *Client) createIndex(ctx context.Context, name, mapping string) error {
	req, err := http.NewRequestWithContext(ctx, "PUT", c.url+"/"+name, strings.NewReader(mapping))
	if err != nil {
		return fmt.Errorf("create index request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("create index %s: status %d: %s", name, resp.StatusCode, string(body))
	}
	return nil
}

// IndexDocument writes a document under a stable ID, replacing any previous
// version.
func (c *Client) IndexDocument(ctx context.Context, index, docID string, doc any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	url := fmt.Sprintf("%s/%s/_doc/%s", c.url, index, docID)
	req, err := http.NewRequestWithContext(ctx, "PUT", url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create index document request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("index document %s/%s: %w", index, docID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("index document %s/%s: status %d: %s", index, docID, resp.StatusCode, string(body))
	}
	return nil
}

// DeleteBookDocuments removes every indexed document belonging to a book.
func (c *Client) DeleteBookDocuments(ctx context.Context, bookID string) error {
	for _, index := range []string{IndexSummaries, IndexCharacters} {
		query := fmt.Sprintf(`{"query": {"term": {"book_id": %q}}}`, bookID)
		url := c.url + "/" + index + "/_delete_by_query"
		req, err := http.NewRequestWithContext(ctx, "POST", url, strings.NewReader(query))
		if err != nil {
			return fmt.Errorf("create delete request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		c.auth(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("delete from %s: %w", index, err)
		}
		resp.Body.Close()
	}

	req, err := http.NewRequestWithContext(ctx, "DELETE", c.url+"/"+IndexBooks+"/_doc/"+bookID, nil)
	if err != nil {
		return fmt.Errorf("create book delete request: %w", err)
	}
	c.auth(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete book document: %w", err)
	}
	resp.Body.Close()
	return nil
}

func (c *Client) auth(req *http.Request) {
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
}
