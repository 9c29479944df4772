package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	userAgent    = "netgraph-ingest/1.0"
	maxBodyBytes = 16 << 20
)

// Client talks to a JSON:API style entity source such as LittleSis
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a source client. Requests are traced through otelhttp.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

type entityResponse struct {
	Data struct {
		ID         ID `json:"id"`
		Attributes struct {
			Name       string `json:"name"`
			PrimaryExt string `json:"primary_ext"`
		} `json:"attributes"`
	} `json:"data"`
}

type relationshipsResponse struct {
	Data []struct {
		ID         ID `json:"id"`
		Attributes struct {
			Description  string `json:"description"`
			Description1 string `json:"description1"`
		} `json:"attributes"`
		Links Links `json:"links"`
	} `json:"data"`
	Meta struct {
		PageCount int `json:"pageCount"`
	} `json:"meta"`
}

// GetEntity fetches a single entity
func (c *Client) GetEntity(ctx context.Context, id int64) (Entity, error) {
	var resp entityResponse
	if err := c.get(ctx, fmt.Sprintf("/entities/%d", id), nil, &resp); err != nil {
		return Entity{}, err
	}

	entityID := id
	if resp.Data.ID != "" {
		parsed, err := resp.Data.ID.Int64()
		if err != nil {
			return Entity{}, fmt.Errorf("%w: entity id %q: %v", ErrSourceUnavailable, resp.Data.ID, err)
		}
		entityID = parsed
	}

	return Entity{
		ID:         entityID,
		Name:       resp.Data.Attributes.Name,
		PrimaryExt: resp.Data.Attributes.PrimaryExt,
	}, nil
}

// GetRelationships fetches one page of an entity's relationships. Pages start at 1.
func (c *Client) GetRelationships(ctx context.Context, id int64, page int) (RelationshipPage, error) {
	query := url.Values{"page": {strconv.Itoa(page)}}

	var resp relationshipsResponse
	if err := c.get(ctx, fmt.Sprintf("/entities/%d/relationships", id), query, &resp); err != nil {
		return RelationshipPage{}, err
	}

	rels := make([]Relationship, 0, len(resp.Data))
	for _, d := range resp.Data {
		rels = append(rels, Relationship{
			ID:           d.ID,
			Description:  d.Attributes.Description,
			Description1: d.Attributes.Description1,
			Links:        d.Links,
		})
	}

	return RelationshipPage{Relationships: rels, PageCount: resp.Meta.PageCount}, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %v", ErrSourceUnavailable, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("source request")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: GET %s", ErrEntityNotFound, path)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: GET %s: status %d", ErrSourceUnavailable, path, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrSourceUnavailable, path, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrSourceUnavailable, path, err)
	}
	return nil
}
