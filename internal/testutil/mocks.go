package testutil

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// FakePhoto is one photo entry served by FakePhotoAPI
type FakePhoto struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URLM  string `json:"url_m,omitempty"`
}

// FakePhotoAPI mocks the photo search REST endpoint and an image host
type FakePhotoAPI struct {
	Server *httptest.Server

	mu            sync.Mutex
	pages         json.RawMessage
	photos        []FakePhoto
	status        int
	body          string
	images        map[string][]byte
	searchCalls   []url.Values
	imageRequests map[string]int
}

// NewFakePhotoAPI starts a fake API that reports one page and no photos
func NewFakePhotoAPI(t *testing.T) *FakePhotoAPI {
	t.Helper()

	f := &FakePhotoAPI{
		pages:         json.RawMessage("1"),
		photos:        []FakePhoto{},
		images:        make(map[string][]byte),
		imageRequests: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/services/rest/", f.handleSearch)
	mux.HandleFunc("/images/", f.handleImage)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)

	return f
}

// URL returns the search endpoint
func (f *FakePhotoAPI) URL() string {
	return f.Server.URL + "/services/rest/"
}

// ImageURL returns the URL under which SetImage serves name
func (f *FakePhotoAPI) ImageURL(name string) string {
	return f.Server.URL + "/images/" + name
}

// SetPages sets the raw JSON value of photos.pages, e.g. "5" or `"abc"`
func (f *FakePhotoAPI) SetPages(raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages = json.RawMessage(raw)
}

// SetPhotos sets the photos returned for any page
func (f *FakePhotoAPI) SetPhotos(photos ...FakePhoto) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photos = append([]FakePhoto{}, photos...)
}

// SetResponse overrides every search response with a fixed status and body
func (f *FakePhotoAPI) SetResponse(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
	f.body = body
}

// SetImage serves data under ImageURL(name)
func (f *FakePhotoAPI) SetImage(name string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[name] = data
}

// SearchCalls returns the query of every search request received
func (f *FakePhotoAPI) SearchCalls() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values{}, f.searchCalls...)
}

// ImageRequests returns how many times name was downloaded
func (f *FakePhotoAPI) ImageRequests(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.imageRequests[name]
}

func (f *FakePhotoAPI) handleSearch(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.searchCalls = append(f.searchCalls, r.URL.Query())

	if f.status != 0 || f.body != "" {
		status := f.status
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		w.Write([]byte(f.body))
		return
	}

	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		page = 1
	}

	resp := map[string]interface{}{
		"photos": map[string]interface{}{
			"page":    page,
			"pages":   f.pages,
			"perpage": 36,
			"total":   len(f.photos),
			"photo":   f.photos,
		},
		"stat": "ok",
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (f *FakePhotoAPI) handleImage(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/images/")

	f.mu.Lock()
	f.imageRequests[name]++
	data, ok := f.images[name]
	f.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Write(data)
}

// PNG returns a small valid PNG image
func PNG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 10), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode test PNG: %v", err)
	}
	return buf.Bytes()
}
