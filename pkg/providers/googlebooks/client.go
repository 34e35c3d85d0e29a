// Package googlebooks is the quota-capped provider client. Callers are
// expected to spend quota through the ledger before invoking it.
package googlebooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/NachosNcheeze/nachoseries-sub000/pkg/models"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/providers"
	"github.com/pkg/errors"
)

const defaultBaseURL = "https://www.googleapis.com/books/v1"

// HTTPDoer is the HTTP client surface, narrowed for tests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	baseURL string
	apiKey  string
	http    HTTPDoer
}

type Options struct {
	BaseURL string
	APIKey  string
	HTTP    HTTPDoer
}

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.HTTP == nil {
		opts.HTTP = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		http:    opts.HTTP,
	}
}

func (c *Client) Name() string {
	return models.ProviderGoogleBooks
}

type volumesResponse struct {
	TotalItems int      `json:"totalItems"`
	Items      []volume `json:"items"`
}

type volume struct {
	ID         string     `json:"id"`
	VolumeInfo volumeInfo `json:"volumeInfo"`
}

type volumeInfo struct {
	Title               string               `json:"title"`
	Authors             []string             `json:"authors"`
	PublishedDate       string               `json:"publishedDate"`
	Description         string               `json:"description"`
	IndustryIdentifiers []industryIdentifier `json:"industryIdentifiers"`
}

type industryIdentifier struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

func (c *Client) FetchSeries(ctx context.Context, name string) (*providers.FetchResult, error) {
	query := url.Values{}
	query.Set("q", `"`+name+`"`)
	query.Set("maxResults", "40")
	query.Set("printType", "books")
	if c.apiKey != "" {
		query.Set("key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/volumes?"+query.Encode(), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, providers.Infra(c.Name(), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return &providers.FetchResult{}, nil
	case providers.RetryableStatus(resp.StatusCode):
		return nil, providers.InfraStatus(c.Name(), resp.StatusCode)
	default:
		return nil, errors.Errorf("googlebooks: unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, providers.Infra(c.Name(), err)
	}

	var volumes volumesResponse
	if err := json.Unmarshal(raw, &volumes); err != nil {
		return nil, errors.Wrap(err, "googlebooks decode")
	}
	if volumes.TotalItems == 0 || len(volumes.Items) == 0 {
		return &providers.FetchResult{Raw: raw}, nil
	}

	primary := volumes.Items[0]
	src := &models.SourceSeries{
		ExternalID:  primary.ID,
		Name:        name,
		Description: primary.VolumeInfo.Description,
	}
	if len(primary.VolumeInfo.Authors) > 0 {
		src.Author = primary.VolumeInfo.Authors[0]
	}

	for _, item := range volumes.Items {
		info := item.VolumeInfo
		book := &models.SourceBook{
			ExternalID:  item.ID,
			Title:       info.Title,
			Description: info.Description,
			ISBN:        isbn13(info.IndustryIdentifiers),
		}
		if len(info.Authors) > 0 {
			book.Author = info.Authors[0]
		}
		if year := publishedYear(info.PublishedDate); year > 0 {
			book.Year = &year
		}
		src.Books = append(src.Books, book)
	}

	return &providers.FetchResult{Series: src, Raw: raw}, nil
}

// isbn13 prefers the 13-digit identifier, falling back to ISBN-10.
func isbn13(ids []industryIdentifier) string {
	fallback := ""
	for _, id := range ids {
		switch id.Type {
		case "ISBN_13":
			return id.Identifier
		case "ISBN_10":
			fallback = id.Identifier
		}
	}
	return fallback
}

// publishedYear extracts the year from "YYYY", "YYYY-MM", or "YYYY-MM-DD".
func publishedYear(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil || year <= 0 {
		return 0
	}
	return year
}
