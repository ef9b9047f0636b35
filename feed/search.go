package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SearchQuery is one saved search against the real-time search API.
type SearchQuery struct {
	Name        string
	Cities      []string
	PostalCodes []string
	MinPrice    float64
	MaxPrice    float64
	MinBeds     int
	Statuses    []string
}

// SearchClient reads the secondary real-time search API. Its responses are
// plain JSON arrays of listing objects.
type SearchClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *RateLimiter
}

func NewSearchClient(baseURL, apiKey string, httpClient *http.Client, limiter *RateLimiter) *SearchClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if limiter == nil {
		limiter = NewRateLimiter(DefaultMaxPerSecond, DefaultMaxPerHour, nil)
	}
	return &SearchClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
		limiter: limiter,
	}
}

// Search fetches one page (1-based) of results for q.
func (c *SearchClient) Search(ctx context.Context, q SearchQuery, page, pageSize int) ([]json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	for _, city := range q.Cities {
		params.Add("city", city)
	}
	for _, zip := range q.PostalCodes {
		params.Add("zip", zip)
	}
	for _, s := range q.Statuses {
		params.Add("status", s)
	}
	if q.MinPrice > 0 {
		params.Set("minPrice", formatNumber(q.MinPrice))
	}
	if q.MaxPrice > 0 {
		params.Set("maxPrice", formatNumber(q.MaxPrice))
	}
	if q.MinBeds > 0 {
		params.Set("minBeds", strconv.Itoa(q.MinBeds))
	}
	params.Set("sortBy", "updatedOnDesc")
	params.Set("pageNum", strconv.Itoa(page))
	params.Set("resultsPerPage", strconv.Itoa(pageSize))

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/listings?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
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

	var listings []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&listings); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return listings, nil
}
