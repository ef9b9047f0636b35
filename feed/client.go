package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
)

// Resource is a replication feed collection.
type Resource string

const (
	ResourceProperty Resource = "Property"
	ResourceMedia    Resource = "Media"
)

// RawPage is one page of undecoded feed records.
type RawPage struct {
	Resource Resource
	Offset   int
	Limit    int
	Records  []json.RawMessage
}

type odataResponse struct {
	Value    []json.RawMessage `json:"value"`
	NextLink string            `json:"@odata.nextLink"`
}

// Client reads the bulk replication feed. Every request goes through the
// rate limiter first.
type Client struct {
	baseURL  string
	token    string
	http     *http.Client
	limiter  *RateLimiter
	statuses []models.StandardStatus
}

func NewClient(baseURL, token string, httpClient *http.Client, limiter *RateLimiter) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if limiter == nil {
		limiter = NewRateLimiter(DefaultMaxPerSecond, DefaultMaxPerHour, nil)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
		limiter: limiter,
	}
}

// SetStatuses sets which statuses property syncs ask for. Incremental syncs
// need the terminal statuses too, or a listing going Closed would never be seen.
func (c *Client) SetStatuses(statuses []models.StandardStatus) {
	c.statuses = statuses
}

// FetchPage fetches records of resource modified after since.
func (c *Client) FetchPage(ctx context.Context, resource Resource, since time.Time, limit, offset int) (*RawPage, error) {
	var q string
	switch resource {
	case ResourceProperty:
		q = BuildQuery(SearchParams{
			ModifiedSince: since,
			Statuses:      c.statuses,
			Top:           limit,
			Skip:          offset,
		}).Encode()
	case ResourceMedia:
		// Media has no status; only the watermark applies.
		params := BuildQuery(SearchParams{Top: limit, Skip: offset})
		params.Set("$filter", "ModificationTimestamp gt "+since.UTC().Format(time.RFC3339))
		q = params.Encode()
	default:
		return nil, fmt.Errorf("unknown resource %q", resource)
	}

	resp, err := c.get(ctx, c.baseURL+"/"+string(resource)+"?"+q)
	if err != nil {
		return nil, err
	}

	return &RawPage{
		Resource: resource,
		Offset:   offset,
		Limit:    limit,
		Records:  resp.Value,
	}, nil
}

func (c *Client) get(ctx context.Context, endpoint string) (*odataResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return nil, err
	}

	var result odataResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode feed response: %w", err)
	}
	return &result, nil
}

// classifyStatus maps HTTP failures onto the fatal error taxonomy.
func classifyStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrAuthentication, detail)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: upstream %s", ErrRateLimitExceeded, detail)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s", ErrTransient, detail)
	default:
		return errors.New("feed request failed: " + detail)
	}
}
