package firestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tripplanner/internal/domain"
)

const defaultRequestTimeout = 15 * time.Second

// TokenSource supplies a bearer token for one store request. Tokens are not
// cached here: the source is consulted on every call.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// WriteError reports a non-success response from the document store.
type WriteError struct {
	Status int
	Body   string
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("firestore: write failed: status=%d body=%s", e.Status, e.Body)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	ProjectID  string
	Collection string
	Tokens     TokenSource
	HTTPClient *http.Client
}

// Client issues authenticated document reads and merge-semantics upserts
// against the Firestore REST API.
type Client struct {
	baseURL    string
	projectID  string
	collection string
	tokens     TokenSource
	client     *http.Client
}

// NewClient creates a document store client for one collection.
func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://firestore.googleapis.com/v1"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &Client{
		baseURL:    base,
		projectID:  opts.ProjectID,
		collection: opts.Collection,
		tokens:     opts.Tokens,
		client:     client,
	}
}

// Upsert writes the fields present in record to the job document, leaving
// previously persisted fields untouched. Token acquisition errors propagate
// unchanged; store rejections surface as WriteError.
func (c *Client) Upsert(ctx context.Context, jobID string, record map[string]any) error {
	fields, err := EncodeFields(record)
	if err != nil {
		return err
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return fmt.Errorf("firestore: marshal document: %w", err)
	}

	// updateMask restricts the write to the supplied fields so the store
	// merges instead of replacing the document.
	mask := url.Values{}
	for key := range record {
		mask.Add("updateMask.fieldPaths", key)
	}
	endpoint := c.documentURL(jobID) + "?" + mask.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("firestore: build write request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("firestore: write request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &WriteError{Status: resp.StatusCode, Body: string(detail)}
	}
	return nil
}

// Get reads the job document and returns its decoded fields.
func (c *Client) Get(ctx context.Context, jobID string) (map[string]any, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.documentURL(jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("firestore: build read request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("firestore: read request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, &WriteError{Status: resp.StatusCode, Body: string(detail)}
	}

	var doc struct {
		Fields map[string]Value `json:"fields"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("firestore: decode document: %w", err)
	}
	return DecodeFields(doc.Fields), nil
}

func (c *Client) documentURL(jobID string) string {
	return fmt.Sprintf("%s/projects/%s/databases/(default)/documents/%s/%s",
		c.baseURL, c.projectID, url.PathEscape(c.collection), url.PathEscape(jobID))
}
