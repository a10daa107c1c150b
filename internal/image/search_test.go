package image

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestDefaultSearchOptions(t *testing.T) {
	opts := DefaultSearchOptions("test-key")

	if opts.APIKey != "test-key" {
		t.Errorf("Expected API key 'test-key', got '%s'", opts.APIKey)
	}

	if opts.Method != "flickr.photos.search" {
		t.Errorf("Expected method 'flickr.photos.search', got '%s'", opts.Method)
	}

	if opts.PerPage != DefaultPerPage {
		t.Errorf("Expected PerPage %d, got %d", DefaultPerPage, opts.PerPage)
	}

	if opts.UpperPageLimit != 112 {
		t.Errorf("Expected UpperPageLimit 112, got %d", opts.UpperPageLimit)
	}

	if opts.HalfWidth != 1.0 || opts.HalfHeight != 1.0 {
		t.Errorf("Expected 1.0 half extents, got %v/%v", opts.HalfWidth, opts.HalfHeight)
	}
}

func TestPhotoRecordHasImage(t *testing.T) {
	if (PhotoRecord{ID: "1"}).HasImage() {
		t.Error("Expected record without URL to have no image")
	}
	if !(PhotoRecord{ID: "1", ImageURL: "https://example.com/1.jpg"}).HasImage() {
		t.Error("Expected record with URL to have an image")
	}
}

func TestNetworkError(t *testing.T) {
	err := &NetworkError{Op: "page fetch", StatusCode: 503}
	expected := "page fetch: unexpected status 503"
	if err.Error() != expected {
		t.Errorf("Expected error '%s', got '%s'", expected, err.Error())
	}

	wrapped := &NetworkError{Op: "page discovery", Err: context.DeadlineExceeded}
	if !errors.Is(wrapped, context.DeadlineExceeded) {
		t.Error("Expected NetworkError to unwrap to the transport error")
	}
}

func TestAPIFormatError(t *testing.T) {
	err := &APIFormatError{Field: "stat", Message: "code 100: Invalid API Key"}
	if !strings.Contains(err.Error(), "stat") || !strings.Contains(err.Error(), "Invalid API Key") {
		t.Errorf("Unexpected error text: %s", err.Error())
	}
}

func TestDownloadError(t *testing.T) {
	err := &DownloadError{URL: "https://example.com/a.jpg", Err: ErrEmptyBody}
	if !errors.Is(err, ErrEmptyBody) {
		t.Error("Expected DownloadError to unwrap to ErrEmptyBody")
	}

	status := &DownloadError{URL: "https://example.com/a.jpg", StatusCode: 404}
	expected := "download https://example.com/a.jpg failed with status 404"
	if status.Error() != expected {
		t.Errorf("Expected error '%s', got '%s'", expected, status.Error())
	}
}
