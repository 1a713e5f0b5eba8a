// Package search talks to the Elastic search API, either directly or through
// a Kibana proxy that accepts ApiKey authentication.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"kibalert/internal/models"
)

type Kind string

const (
	KindTransport Kind = "transport"
	KindStatus    Kind = "status"
	KindDecode    Kind = "decode"
)

// Error describes a failed search. Status and Body are set for KindStatus.
type Error struct {
	Kind   Kind
	Index  string
	Status int
	Body   string // first 512 bytes
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("search %s: HTTP %d: %s", e.Index, e.Status, e.Body)
	default:
		return fmt.Sprintf("search %s: %s: %v", e.Index, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying client; tests use it to inject a transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type response struct {
	Hits struct {
		Hits []struct {
			ID     string           `json:"_id"`
			Source models.RawRecord `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search posts q to {base}/{index}/_search and returns the _source of every
// hit, with the hit's _id copied in under "_id". An empty index searches all
// indices.
func (c *Client) Search(ctx context.Context, index string, q Query) ([]models.RawRecord, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	u := c.baseURL + "/_search"
	if index != "" {
		u = c.baseURL + "/" + index + "/_search"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindTransport, Index: index, Err: err}
	}
	req.Header.Set("Authorization", "ApiKey "+c.apiKey)
	req.Header.Set("kbn-xsrf", "true")
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Index: index, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, &Error{Kind: KindStatus, Index: index, Status: res.StatusCode, Body: string(b)}
	}

	dec := json.NewDecoder(res.Body)
	dec.UseNumber()
	var out response
	if err := dec.Decode(&out); err != nil {
		return nil, &Error{Kind: KindDecode, Index: index, Err: err}
	}
	records := make([]models.RawRecord, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		if h.Source == nil {
			h.Source = models.RawRecord{}
		}
		if _, ok := h.Source["_id"]; !ok && h.ID != "" {
			h.Source["_id"] = h.ID
		}
		records = append(records, h.Source)
	}
	return records, nil
}
