package publish

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
)

// ErrUpstreamUnavailable is returned when the Content Publishing System
// cannot be reached or answers with a server error.
var ErrUpstreamUnavailable = errors.New("content publishing system unavailable")

// ContentClient is the slice of the Content Publishing System the syncer
// needs: list, create, patch, archive, all keyed by collection.
type ContentClient interface {
	ListListings(ctx context.Context, collectionID string) ([]Listing, error)
	CreateListing(ctx context.Context, collectionID string, l Listing) (itemID string, err error)
	PatchListing(ctx context.Context, collectionID, itemID string, fields map[string]string) error
	ArchiveListing(ctx context.Context, collectionID, itemID string) error
}

// Client drives the publishing system's collection-item API with a bearer
// token. The wire shape follows the CMS's v2 item endpoints: items carry a
// flat fieldData object plus an isArchived flag.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient constructs a Client with a standard network timeout.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 20 * time.Second},
	}
}

type wireItem struct {
	ID         string            `json:"id,omitempty"`
	IsArchived bool              `json:"isArchived,omitempty"`
	FieldData  map[string]string `json:"fieldData"`
}

type wireItemList struct {
	Items []wireItem `json:"items"`
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s %s returned %d", ErrUpstreamUnavailable, method, path, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("publish api %s %s (%d): %s", method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

// ListListings fetches every item in a collection.
func (c *Client) ListListings(ctx context.Context, collectionID string) ([]Listing, error) {
	resp, err := c.do(ctx, http.MethodGet, "/collections/"+collectionID+"/items", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var list wireItemList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode item list: %w", err)
	}

	listings := make([]Listing, 0, len(list.Items))
	for _, it := range list.Items {
		listings = append(listings, Listing{
			ItemID:     it.ID,
			ExternalID: it.FieldData["record-id"],
			Archived:   it.IsArchived,
			Fields:     it.FieldData,
		})
	}
	return listings, nil
}

// CreateListing creates a new item and returns its publish-side id.
func (c *Client) CreateListing(ctx context.Context, collectionID string, l Listing) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/collections/"+collectionID+"/items", wireItem{FieldData: l.Fields})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var created wireItem
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode created item: %w", err)
	}
	return created.ID, nil
}

// PatchListing applies a field-level patch to an existing item.
func (c *Client) PatchListing(ctx context.Context, collectionID, itemID string, fields map[string]string) error {
	resp, err := c.do(ctx, http.MethodPatch, "/collections/"+collectionID+"/items/"+itemID, wireItem{FieldData: fields})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// ArchiveListing archives an item. Listings are never hard-deleted; the
// archival preserves the published record's history.
func (c *Client) ArchiveListing(ctx context.Context, collectionID, itemID string) error {
	resp, err := c.do(ctx, http.MethodPatch, "/collections/"+collectionID+"/items/"+itemID,
		wireItem{IsArchived: true, FieldData: map[string]string{}})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
