package image

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"codeberg.org/snonux/virtualtourist/internal/geo"
)

const (
	flickrTimeout          = 30 * time.Second
	flickrMaxResponseBytes = 8 * 1024 * 1024

	opPageDiscovery = "page discovery"
	opPageFetch     = "page fetch"
)

// FlickrConfig holds the configuration for the Flickr photo search client
type FlickrConfig struct {
	BaseURL           string         // REST endpoint, defaults to the public API
	Options           *SearchOptions // Query settings, APIKey is required
	Timeout           time.Duration  // Per-request timeout
	RequestsPerSecond float64        // Client-side rate limit, 0 disables it
	Burst             int            // Rate limiter burst
	BreakerThreshold  uint32         // Consecutive network failures before the breaker opens
	BreakerCooldown   time.Duration  // How long the breaker stays open
	HTTPClient        *http.Client   // Optional, overrides Timeout
	Intn              func(n int) int
	Logger            zerolog.Logger
}

// FlickrClient implements PhotoSearcher against the Flickr REST API
type FlickrClient struct {
	baseURL    string
	opts       *SearchOptions
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	intn       func(n int) int
	logger     zerolog.Logger
}

// flickrResponse is the JSON envelope of every flickr.photos.search response
type flickrResponse struct {
	Stat    string        `json:"stat"`
	Code    int           `json:"code"`
	Message string        `json:"message"`
	Photos  *flickrPhotos `json:"photos"`
}

// flickrPhotos holds paging info and the photos of one page
type flickrPhotos struct {
	Page    json.RawMessage `json:"page"`
	Pages   json.RawMessage `json:"pages"`
	PerPage json.RawMessage `json:"perpage"`
	Total   json.RawMessage `json:"total"`
	Photo   []flickrPhoto   `json:"photo"`
}

// flickrPhoto is a single photo entry, extra fields are ignored
type flickrPhoto struct {
	ID    flexString `json:"id"`
	Title string     `json:"title"`
	URLM  string     `json:"url_m"`
}

// flexString decodes either a JSON string or a JSON number
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// NewFlickrClient creates a new Flickr API client
func NewFlickrClient(config *FlickrConfig) (*FlickrClient, error) {
	if config == nil || config.Options == nil || config.Options.APIKey == "" {
		return nil, fmt.Errorf("Flickr API key is required")
	}

	opts := *config.Options
	if opts.Method == "" {
		opts.Method = flickrSearchMethod
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = flickrAPIURL
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = flickrTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}

	intn := config.Intn
	if intn == nil {
		intn = rand.Intn
	}

	c := &FlickrClient{
		baseURL:    baseURL,
		opts:       &opts,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
		intn:       intn,
		logger:     config.Logger,
	}
	c.breaker = newBreaker(config.BreakerThreshold, config.BreakerCooldown, c.logger)

	return c, nil
}

func newBreaker(threshold uint32, cooldown time.Duration, logger zerolog.Logger) *gobreaker.CircuitBreaker {
	if threshold == 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "flickr",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Only network errors count against the breaker.
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var netErr *NetworkError
			return !errors.As(err, &netErr)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
}

// Name returns the name of the search provider
func (c *FlickrClient) Name() string {
	return "flickr"
}

// Search discovers how many pages exist around loc, picks one at random
// within the upper page limit and returns its photos. No retry is attempted.
func (c *FlickrClient) Search(ctx context.Context, loc geo.Location) ([]PhotoRecord, error) {
	if err := loc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid location: %w", err)
	}

	totalPages, err := c.discoverPages(ctx, loc)
	if err != nil {
		return nil, err
	}

	page := SelectPage(totalPages, c.opts.UpperPageLimit, c.intn)
	c.logger.Debug().Str("location", loc.String()).Int("total_pages", totalPages).Int("page", page).Msg("selected result page")

	photos, err := c.fetchPage(ctx, loc, page)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().Str("location", loc.String()).Int("page", page).Int("photos", len(photos)).Msg("photo search complete")
	return photos, nil
}

// discoverPages requests the search without a page and returns photos.pages
func (c *FlickrClient) discoverPages(ctx context.Context, loc geo.Location) (int, error) {
	resp, err := c.call(ctx, opPageDiscovery, BuildQuery(c.opts, loc, 0))
	if err != nil {
		return 0, err
	}
	if resp.Photos == nil {
		return 0, &APIFormatError{Field: "photos"}
	}
	return parsePageCount(resp.Photos.Pages)
}

// fetchPage requests one page and maps photos.photo to records
func (c *FlickrClient) fetchPage(ctx context.Context, loc geo.Location, page int) ([]PhotoRecord, error) {
	resp, err := c.call(ctx, opPageFetch, BuildQuery(c.opts, loc, page))
	if err != nil {
		return nil, err
	}
	if resp.Photos == nil {
		return nil, &APIFormatError{Field: "photos"}
	}
	if resp.Photos.Photo == nil {
		return nil, &APIFormatError{Field: "photos.photo"}
	}

	records := make([]PhotoRecord, 0, len(resp.Photos.Photo))
	for i, photo := range resp.Photos.Photo {
		id := string(photo.ID)
		if id == "" {
			return nil, &APIFormatError{Field: fmt.Sprintf("photos.photo[%d].id", i)}
		}
		records = append(records, PhotoRecord{
			ID:       id,
			Title:    photo.Title,
			ImageURL: photo.URLM,
		})
	}
	return records, nil
}

// call issues one GET through the rate limiter and the circuit breaker
func (c *FlickrClient) call(ctx context.Context, op string, params url.Values) (*flickrResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &NetworkError{Op: op, URL: c.baseURL, Err: err}
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, op, c.baseURL+"?"+params.Encode())
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &NetworkError{Op: op, URL: c.baseURL, Err: err}
		}
		return nil, err
	}

	return result.(*flickrResponse), nil
}

func (c *FlickrClient) do(ctx context.Context, op, reqURL string) (*flickrResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The request URL carries the API key, report the endpoint only.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, &NetworkError{Op: op, URL: c.baseURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &NetworkError{
			Op:         op,
			URL:        c.baseURL,
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(string(body))),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, flickrMaxResponseBytes))
	if err != nil {
		return nil, &NetworkError{Op: op, URL: c.baseURL, Err: err}
	}

	var parsed flickrResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &APIFormatError{Err: err}
	}

	if parsed.Stat == "fail" {
		return nil, &APIFormatError{
			Field:   "stat",
			Message: fmt.Sprintf("code %d: %s", parsed.Code, parsed.Message),
		}
	}

	return &parsed, nil
}

// parsePageCount accepts a JSON number or a numeric string
func parsePageCount(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, &APIFormatError{Field: "photos.pages"}
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, &APIFormatError{Field: "photos.pages", Err: err}
	}

	if v, err := n.Int64(); err == nil {
		return int(v), nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, &APIFormatError{Field: "photos.pages", Err: err}
	}
	return int(f), nil
}
