package image

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/sony/gobreaker"

	"codeberg.org/snonux/virtualtourist/internal/geo"
	"codeberg.org/snonux/virtualtourist/internal/testutil"
)

var sanFrancisco = geo.Location{Latitude: 37.7749, Longitude: -122.4194}

// recordingIntn returns fixed draws and remembers the bounds it was asked for
type recordingIntn struct {
	mu     sync.Mutex
	result int
	bounds []int
}

func (r *recordingIntn) intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bounds = append(r.bounds, n)
	if r.result >= n {
		return n - 1
	}
	return r.result
}

func newTestClient(t *testing.T, baseURL string, upperLimit int, intn func(int) int) *FlickrClient {
	t.Helper()

	opts := DefaultSearchOptions("test-key")
	opts.UpperPageLimit = upperLimit

	client, err := NewFlickrClient(&FlickrConfig{
		BaseURL:          baseURL,
		Options:          opts,
		BreakerThreshold: 100,
		Intn:             intn,
	})
	if err != nil {
		t.Fatalf("NewFlickrClient() failed: %v", err)
	}
	return client
}

func TestNewFlickrClient_RequiresKey(t *testing.T) {
	if _, err := NewFlickrClient(&FlickrConfig{Options: DefaultSearchOptions("")}); err == nil {
		t.Error("Expected error without API key")
	}
	if _, err := NewFlickrClient(nil); err == nil {
		t.Error("Expected error for nil config")
	}
}

func TestFlickrClient_Search(t *testing.T) {
	api := testutil.NewFakePhotoAPI(t)
	api.SetPages("5")
	api.SetPhotos(
		testutil.FakePhoto{ID: "101", Title: "Golden Gate", URLM: "https://example.com/101.jpg"},
		testutil.FakePhoto{ID: "102", Title: "no image"},
	)

	draws := &recordingIntn{result: 2}
	client := newTestClient(t, api.URL(), 112, draws.intn)

	photos, err := client.Search(context.Background(), sanFrancisco)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}

	if len(photos) != 2 {
		t.Fatalf("Expected 2 photos, got %d", len(photos))
	}
	if photos[0] != (PhotoRecord{ID: "101", Title: "Golden Gate", ImageURL: "https://example.com/101.jpg"}) {
		t.Errorf("Unexpected first photo: %+v", photos[0])
	}
	if photos[1].HasImage() {
		t.Errorf("Expected second photo without image, got %+v", photos[1])
	}

	calls := api.SearchCalls()
	if len(calls) != 2 {
		t.Fatalf("Expected 2 API calls, got %d", len(calls))
	}

	if calls[0].Has("page") {
		t.Errorf("Expected discovery request without page, got %q", calls[0].Get("page"))
	}
	if calls[1].Get("page") != "3" {
		t.Errorf("Expected page 3 for draw 2, got %q", calls[1].Get("page"))
	}

	for i, call := range calls {
		if call.Get("api_key") != "test-key" || call.Get("extras") != "url_m" || call.Get("per_page") != "36" {
			t.Errorf("call %d missing fixed parameters: %v", i, call)
		}
		if call.Get("bbox") != "-123.4194,36.7749,-121.4194,38.7749" {
			t.Errorf("call %d has bbox %q", i, call.Get("bbox"))
		}
	}

	if len(draws.bounds) != 1 || draws.bounds[0] != 5 {
		t.Errorf("Expected one draw over 5 pages, got %v", draws.bounds)
	}
}

func TestFlickrClient_PageSelectionBounds(t *testing.T) {
	api := testutil.NewFakePhotoAPI(t)
	rng := rand.New(rand.NewSource(7))
	var mu sync.Mutex
	intn := func(n int) int {
		mu.Lock()
		defer mu.Unlock()
		return rng.Intn(n)
	}
	client := newTestClient(t, api.URL(), 112, intn)

	tests := []struct {
		pages   string
		maxPage int
	}{
		{"5", 5},
		{"500", 112},
		{"1", 1},
		{"0", 1},
	}

	for _, tt := range tests {
		t.Run("pages="+tt.pages, func(t *testing.T) {
			api.SetPages(tt.pages)
			before := len(api.SearchCalls())

			for i := 0; i < 25; i++ {
				if _, err := client.Search(context.Background(), sanFrancisco); err != nil {
					t.Fatalf("Search() failed: %v", err)
				}
			}

			calls := api.SearchCalls()[before:]
			for i := 1; i < len(calls); i += 2 {
				page, err := strconv.Atoi(calls[i].Get("page"))
				if err != nil {
					t.Fatalf("page fetch without numeric page: %v", calls[i])
				}
				if page < 1 || page > tt.maxPage {
					t.Errorf("page %d outside [1, %d]", page, tt.maxPage)
				}
			}
		})
	}
}

func TestFlickrClient_PagesAsString(t *testing.T) {
	api := testutil.NewFakePhotoAPI(t)
	api.SetPages(`"7"`)

	draws := &recordingIntn{result: 100}
	client := newTestClient(t, api.URL(), 112, draws.intn)

	if _, err := client.Search(context.Background(), sanFrancisco); err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(draws.bounds) != 1 || draws.bounds[0] != 7 {
		t.Errorf("Expected draw over 7 pages, got %v", draws.bounds)
	}
}

func TestFlickrClient_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantFormat bool
		wantStatus int
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "boom", wantStatus: 500},
		{name: "not json", status: http.StatusOK, body: "<html>", wantFormat: true},
		{name: "missing photos", status: http.StatusOK, body: `{"stat":"ok"}`, wantFormat: true},
		{name: "missing pages", status: http.StatusOK, body: `{"photos":{"photo":[]},"stat":"ok"}`, wantFormat: true},
		{name: "non numeric pages", status: http.StatusOK, body: `{"photos":{"pages":"many"},"stat":"ok"}`, wantFormat: true},
		{name: "api failure", status: http.StatusOK, body: `{"stat":"fail","code":100,"message":"Invalid API Key"}`, wantFormat: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := testutil.NewFakePhotoAPI(t)
			api.SetResponse(tt.status, tt.body)
			client := newTestClient(t, api.URL(), 112, nil)

			photos, err := client.Search(context.Background(), sanFrancisco)
			if err == nil {
				t.Fatalf("Expected error, got %d photos", len(photos))
			}

			var formatErr *APIFormatError
			var netErr *NetworkError
			switch {
			case tt.wantFormat:
				if !errors.As(err, &formatErr) {
					t.Errorf("Expected APIFormatError, got %T: %v", err, err)
				}
			default:
				if !errors.As(err, &netErr) {
					t.Fatalf("Expected NetworkError, got %T: %v", err, err)
				}
				if netErr.StatusCode != tt.wantStatus {
					t.Errorf("Expected status %d, got %d", tt.wantStatus, netErr.StatusCode)
				}
			}

			// Phase 1 failed, phase 2 must not run
			if n := len(api.SearchCalls()); n != 1 {
				t.Errorf("Expected 1 API call, got %d", n)
			}
		})
	}
}

func TestFlickrClient_MissingPhotoArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "" {
			fmt.Fprint(w, `{"photos":{"pages":3,"photo":[]},"stat":"ok"}`)
			return
		}
		fmt.Fprint(w, `{"photos":{"pages":3},"stat":"ok"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 112, nil)

	_, err := client.Search(context.Background(), sanFrancisco)
	var formatErr *APIFormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("Expected APIFormatError, got %T: %v", err, err)
	}
	if formatErr.Field != "photos.photo" {
		t.Errorf("Expected field photos.photo, got %s", formatErr.Field)
	}
}

func TestFlickrClient_NumericPhotoIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"photos":{"pages":1,"photo":[{"id":12345,"title":"t","url_m":"u","owner":"x"}]},"stat":"ok","extra":true}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 112, nil)

	photos, err := client.Search(context.Background(), sanFrancisco)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(photos) != 1 || photos[0].ID != "12345" {
		t.Errorf("Unexpected photos: %+v", photos)
	}
}

func TestFlickrClient_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	client := newTestClient(t, baseURL, 112, nil)

	_, err := client.Search(context.Background(), sanFrancisco)
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("Expected NetworkError, got %T: %v", err, err)
	}
	if netErr.Op != "page discovery" {
		t.Errorf("Expected failure in page discovery, got %s", netErr.Op)
	}
}

func TestFlickrClient_InvalidLocation(t *testing.T) {
	api := testutil.NewFakePhotoAPI(t)
	client := newTestClient(t, api.URL(), 112, nil)

	if _, err := client.Search(context.Background(), geo.Location{Latitude: 91}); err == nil {
		t.Error("Expected error for invalid location")
	}
	if n := len(api.SearchCalls()); n != 0 {
		t.Errorf("Expected no API calls, got %d", n)
	}
}

func TestFlickrClient_BreakerOpens(t *testing.T) {
	api := testutil.NewFakePhotoAPI(t)
	api.SetResponse(http.StatusServiceUnavailable, "down")

	client, err := NewFlickrClient(&FlickrConfig{
		BaseURL:          api.URL(),
		Options:          DefaultSearchOptions("test-key"),
		BreakerThreshold: 2,
	})
	if err != nil {
		t.Fatalf("NewFlickrClient() failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := client.Search(context.Background(), sanFrancisco); err == nil {
			t.Fatal("Expected error from failing API")
		}
	}

	_, err = client.Search(context.Background(), sanFrancisco)
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("Expected NetworkError from open breaker, got %T: %v", err, err)
	}
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Expected open breaker, got %v", err)
	}
	if n := len(api.SearchCalls()); n != 2 {
		t.Errorf("Expected the open breaker to stop calls at 2, got %d", n)
	}
}

func TestFlickrClient_CanceledContext(t *testing.T) {
	api := testutil.NewFakePhotoAPI(t)
	client := newTestClient(t, api.URL(), 112, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.Search(ctx, sanFrancisco); err == nil {
		t.Error("Expected error for canceled context")
	}
}
