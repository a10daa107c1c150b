package image

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"codeberg.org/snonux/virtualtourist/internal/testutil"
)

func TestDefaultDownloadOptions(t *testing.T) {
	opts := DefaultDownloadOptions()

	if opts.Timeout != 30*time.Second {
		t.Errorf("Expected 30s timeout, got %v", opts.Timeout)
	}
	if opts.MaxSizeBytes != 10*1024*1024 {
		t.Errorf("Expected 10MB limit, got %d", opts.MaxSizeBytes)
	}
}

func TestFetcherDownload(t *testing.T) {
	api := testutil.NewFakePhotoAPI(t)
	png := testutil.PNG(t, 4, 3)
	api.SetImage("ok.png", png)
	api.SetImage("empty.png", []byte{})
	api.SetImage("big.png", bytes.Repeat([]byte{1}, 64))

	fetcher := NewFetcher(&DownloadOptions{Timeout: 5 * time.Second, MaxSizeBytes: 32}, zerolog.Nop())
	unlimited := NewFetcher(nil, zerolog.Nop())

	data, err := unlimited.Download(context.Background(), api.ImageURL("ok.png"))
	if err != nil {
		t.Fatalf("Download() failed: %v", err)
	}
	if !bytes.Equal(data, png) {
		t.Error("Downloaded bytes differ from served image")
	}

	tests := []struct {
		name       string
		url        string
		wantStatus int
		wantErr    error
	}{
		{name: "not found", url: api.ImageURL("missing.png"), wantStatus: 404},
		{name: "empty body", url: api.ImageURL("empty.png"), wantErr: ErrEmptyBody},
		{name: "too large", url: api.ImageURL("big.png")},
		{name: "bad url", url: "://nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fetcher.Download(context.Background(), tt.url)

			var dlErr *DownloadError
			if !errors.As(err, &dlErr) {
				t.Fatalf("Expected DownloadError, got %T: %v", err, err)
			}
			if dlErr.StatusCode != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, dlErr.StatusCode)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestFetcherFetch(t *testing.T) {
	api := testutil.NewFakePhotoAPI(t)
	api.SetImage("a.png", []byte("image bytes"))

	fetcher := NewFetcher(nil, zerolog.Nop())
	task := fetcher.Fetch(context.Background(), api.ImageURL("a.png"))

	if task.URL() != api.ImageURL("a.png") {
		t.Errorf("Unexpected task URL %s", task.URL())
	}

	data, err := task.Result()
	if err != nil {
		t.Fatalf("Result() failed: %v", err)
	}
	if string(data) != "image bytes" {
		t.Errorf("Unexpected data %q", data)
	}

	if task.Cancel() {
		t.Error("Expected Cancel after completion to lose the race")
	}
	if data, err := task.Result(); err != nil || string(data) != "image bytes" {
		t.Error("Expected late Cancel to leave the result untouched")
	}
}

func TestTaskCancelBeforeCompletion(t *testing.T) {
	started := make(chan struct{})
	task := NewTask(context.Background(), "u", func(ctx context.Context, url string) ([]byte, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	<-started
	if !task.Cancel() {
		t.Fatal("Expected Cancel to win before completion")
	}
	if task.Cancel() {
		t.Error("Expected second Cancel to be a no-op")
	}

	select {
	case <-task.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("canceled task never finished")
	}

	data, err := task.Result()
	if !errors.Is(err, ErrCanceled) || data != nil {
		t.Errorf("Expected ErrCanceled and no data, got %q, %v", data, err)
	}
	if !task.Canceled() {
		t.Error("Expected Canceled() to be true")
	}
}

func TestTaskCancelRacesLateBytes(t *testing.T) {
	release := make(chan struct{})
	task := NewTask(context.Background(), "u", func(ctx context.Context, url string) ([]byte, error) {
		<-release
		// bytes arrive even though the context was canceled
		return []byte("late"), nil
	})

	if !task.Cancel() {
		t.Fatal("Expected Cancel to win")
	}
	close(release)

	data, err := task.Result()
	if !errors.Is(err, ErrCanceled) || data != nil {
		t.Errorf("Expected late bytes to be dropped, got %q, %v", data, err)
	}
}

func TestTaskParentContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	task := NewFetcher(nil, zerolog.Nop()).Fetch(ctx, server.URL)
	cancel()

	_, err := task.Result()
	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("Expected DownloadError when the parent context ends, got %T: %v", err, err)
	}
}
