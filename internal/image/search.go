package image

import (
	"context"
	"errors"
	"fmt"

	"codeberg.org/snonux/virtualtourist/internal/geo"
)

// PhotoRecord is the metadata of one photo returned by a search
type PhotoRecord struct {
	ID       string // API-assigned identifier, also the cache key
	Title    string // Photo title, may be empty
	ImageURL string // Medium-size image URL, empty when the API returned none
}

// HasImage reports whether the record points to a downloadable image
func (r PhotoRecord) HasImage() bool {
	return r.ImageURL != ""
}

// SearchOptions configures the photo search
type SearchOptions struct {
	APIKey         string  // Photo API key
	Method         string  // API method name
	PerPage        int     // Results per page, sent in both phases
	UpperPageLimit int     // Highest page ever requested
	Accuracy       int     // Geo accuracy level (1 world .. 16 street), 0 omits it
	SafeSearch     string  // Safe search level
	HalfWidth      float64 // Lower longitude extent of the bounding box
	HalfHeight     float64 // Extent used for the other three bounds
}

// DefaultSearchOptions returns the settings the album has always used
func DefaultSearchOptions(apiKey string) *SearchOptions {
	return &SearchOptions{
		APIKey:         apiKey,
		Method:         flickrSearchMethod,
		PerPage:        DefaultPerPage,
		UpperPageLimit: DefaultUpperPageLimit,
		Accuracy:       16,
		SafeSearch:     "1",
		HalfWidth:      1.0,
		HalfHeight:     1.0,
	}
}

// PhotoSearcher finds photos taken around a location
type PhotoSearcher interface {
	// Search runs the page discovery and page fetch and returns one page of photos
	Search(ctx context.Context, loc geo.Location) ([]PhotoRecord, error)

	// Name returns the name of the search provider
	Name() string
}

var (
	// ErrCanceled is returned by a canceled download task
	ErrCanceled = errors.New("download canceled")

	// ErrEmptyBody marks a download that completed without any bytes
	ErrEmptyBody = errors.New("empty response body")
)

// NetworkError is a transport failure, timeout or non-success HTTP status
type NetworkError struct {
	Op         string // "page discovery" or "page fetch"
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// APIFormatError means the response body did not have the expected shape
type APIFormatError struct {
	Field   string // JSON path that was missing or malformed
	Message string // API-provided failure message, if any
	Err     error
}

func (e *APIFormatError) Error() string {
	msg := "unexpected response format"
	if e.Field != "" {
		msg += " at " + e.Field
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIFormatError) Unwrap() error {
	return e.Err
}

// DownloadError folds every image download failure into one kind
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s failed with status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("download %s failed: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}
