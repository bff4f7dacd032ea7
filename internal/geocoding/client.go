// Package geocoding searches for loft locations with the Mapbox forward
// geocoding API.
package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/saviobatista/pigeon-post/internal/types"
)

const (
	DefaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"
	MinQueryLength = 3
	resultLimit    = 6
	placeTypes     = "place,locality,region,address"
	timeout        = 10 * time.Second
)

// ErrMissingToken is returned when no Mapbox access token is configured
var ErrMissingToken = errors.New("geocoding: missing Mapbox token")

// StatusError is returned for a non-200 response
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("geocoding: Mapbox request failed (%d)", e.StatusCode)
}

// Cache stores search results per query
type Cache interface {
	GetLocations(ctx context.Context, query string) ([]types.LocationSelection, bool, error)
	StoreLocations(ctx context.Context, query string, results []types.LocationSelection) error
}

// Client is a Mapbox forward geocoding client
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	cache      Cache
}

// NewClient creates a new client. An empty baseURL selects the public API.
// cache may be nil.
func NewClient(token, baseURL string, cache Cache) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache: cache,
	}
}

type featureContext struct {
	ID         string `json:"id"`
	ShortCode  string `json:"short_code"`
	Properties struct {
		ShortCode string `json:"short_code"`
	} `json:"properties"`
}

type feature struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	PlaceName  string    `json:"place_name"`
	Center     []float64 `json:"center"`
	Properties struct {
		ShortCode string `json:"short_code"`
	} `json:"properties"`
	Context []featureContext `json:"context"`
}

type searchResponse struct {
	Features []feature `json:"features"`
}

// doRequest performs a GET request and decodes the JSON response
func (c *Client) doRequest(ctx context.Context, path string, params url.Values, dest any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("geocoding: creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("geocoding: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("geocoding: decoding response: %w", err)
	}
	return nil
}

// Search returns up to six candidate locations for a free-text query.
// Queries shorter than MinQueryLength after trimming return no results.
func (c *Client) Search(ctx context.Context, query string) ([]types.LocationSelection, error) {
	trimmed := strings.TrimSpace(query)
	if len([]rune(trimmed)) < MinQueryLength {
		return []types.LocationSelection{}, nil
	}

	if c.token == "" {
		return nil, ErrMissingToken
	}

	if c.cache != nil {
		cached, found, err := c.cache.GetLocations(ctx, trimmed)
		if err != nil {
			log.Printf("Warning: Failed to read cached locations: %v", err)
		} else if found {
			return cached, nil
		}
	}

	params := url.Values{
		"access_token": {c.token},
		"limit":        {fmt.Sprint(resultLimit)},
		"types":        {placeTypes},
	}
	var resp searchResponse
	if err := c.doRequest(ctx, "/"+url.PathEscape(trimmed)+".json", params, &resp); err != nil {
		return nil, err
	}

	results := make([]types.LocationSelection, 0, len(resp.Features))
	for _, f := range resp.Features {
		if len(f.Center) != 2 {
			continue
		}
		results = append(results, toSelection(f, trimmed))
	}

	if c.cache != nil {
		if err := c.cache.StoreLocations(ctx, trimmed, results); err != nil {
			log.Printf("Warning: Failed to cache locations: %v", err)
		}
	}

	return results, nil
}

func toSelection(f feature, query string) types.LocationSelection {
	lon, lat := f.Center[0], f.Center[1]

	label := firstNonEmpty(f.Text, f.PlaceName, query)
	placeID := f.ID
	if placeID == "" {
		placeID = fmt.Sprintf("%v,%v", lat, lon)
	}

	return types.LocationSelection{
		PlaceID:     placeID,
		Label:       label,
		Description: firstNonEmpty(f.PlaceName, label),
		Latitude:    lat,
		Longitude:   lon,
		CountryCode: countryCode(f),
	}
}

// countryCode prefers the country context entry over the feature's own short code
func countryCode(f feature) string {
	for _, c := range f.Context {
		if !strings.HasPrefix(c.ID, "country") {
			continue
		}
		if code := firstNonEmpty(c.ShortCode, c.Properties.ShortCode); code != "" {
			return strings.ToUpper(code)
		}
	}
	return strings.ToUpper(f.Properties.ShortCode)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
