// Package openlibrary is the quota-free provider client. It resolves a
// series name through the Open Library search API and pulls the matching
// work's description for series-level enrichment.
package openlibrary

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/NachosNcheeze/nachoseries-sub000/pkg/models"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/providers"
	"github.com/pkg/errors"
)

const defaultBaseURL = "https://openlibrary.org"

// HTTPDoer is the HTTP client surface, narrowed for tests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	baseURL string
	http    HTTPDoer
}

type Options struct {
	BaseURL string
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
		http:    opts.HTTP,
	}
}

func (c *Client) Name() string {
	return models.ProviderOpenLibrary
}

type searchResponse struct {
	NumFound int         `json:"numFound"`
	Docs     []searchDoc `json:"docs"`
}

type searchDoc struct {
	Key              string   `json:"key"`
	Title            string   `json:"title"`
	AuthorName       []string `json:"author_name"`
	FirstPublishYear int      `json:"first_publish_year"`
	ISBN             []string `json:"isbn"`
	EbookAccess      string   `json:"ebook_access"`
}

type workResponse struct {
	Description json.RawMessage `json:"description"`
}

func (c *Client) FetchSeries(ctx context.Context, name string) (*providers.FetchResult, error) {
	query := url.Values{}
	query.Set("title", name)
	query.Set("fields", "key,title,author_name,first_publish_year,isbn,ebook_access")
	query.Set("limit", "40")

	raw, err := c.get(ctx, "/search.json?"+query.Encode())
	if err != nil {
		if errors.Is(err, errNotFound) {
			return &providers.FetchResult{}, nil
		}
		return nil, err
	}

	var search searchResponse
	if err := json.Unmarshal(raw, &search); err != nil {
		return nil, errors.Wrap(err, "openlibrary search decode")
	}
	if search.NumFound == 0 || len(search.Docs) == 0 {
		return &providers.FetchResult{Raw: raw}, nil
	}

	primary := search.Docs[0]
	src := &models.SourceSeries{
		ExternalID: strings.TrimPrefix(primary.Key, "/works/"),
		Name:       name,
	}
	if len(primary.AuthorName) > 0 {
		src.Author = primary.AuthorName[0]
	}

	for _, doc := range search.Docs {
		book := &models.SourceBook{
			ExternalID: strings.TrimPrefix(doc.Key, "/works/"),
			Title:      doc.Title,
			HasEbook:   doc.EbookAccess == "public" || doc.EbookAccess == "borrowable",
		}
		if len(doc.AuthorName) > 0 {
			book.Author = doc.AuthorName[0]
		}
		if doc.FirstPublishYear > 0 {
			year := doc.FirstPublishYear
			book.Year = &year
		}
		if len(doc.ISBN) > 0 {
			book.ISBN = doc.ISBN[0]
		}
		src.Books = append(src.Books, book)
	}

	if desc, err := c.fetchDescription(ctx, primary.Key); err == nil {
		src.Description = desc
	}

	return &providers.FetchResult{Series: src, Raw: raw}, nil
}

// fetchDescription pulls the work record for its description. The field is
// either a plain string or a {"type", "value"} object.
func (c *Client) fetchDescription(ctx context.Context, workKey string) (string, error) {
	if !strings.HasPrefix(workKey, "/works/") {
		return "", nil
	}

	raw, err := c.get(ctx, workKey+".json")
	if err != nil {
		return "", err
	}

	var work workResponse
	if err := json.Unmarshal(raw, &work); err != nil {
		return "", errors.Wrap(err, "openlibrary work decode")
	}
	if len(work.Description) == 0 {
		return "", nil
	}

	var plain string
	if err := json.Unmarshal(work.Description, &plain); err == nil {
		return plain, nil
	}
	var typed struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(work.Description, &typed); err == nil {
		return typed.Value, nil
	}
	return "", nil
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
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
		return nil, errNotFound
	case providers.RetryableStatus(resp.StatusCode):
		return nil, providers.InfraStatus(c.Name(), resp.StatusCode)
	default:
		return nil, errors.Errorf("openlibrary: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, providers.Infra(c.Name(), err)
	}
	return body, nil
}

var errNotFound = fmt.Errorf("openlibrary: not found")
