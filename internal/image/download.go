package image

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DownloadOptions configures image download behavior
type DownloadOptions struct {
	Timeout      time.Duration // Per-download timeout
	MaxSizeBytes int64         // Maximum image size to accept (0 = no limit)
}

// DefaultDownloadOptions returns sensible defaults for image downloads
func DefaultDownloadOptions() *DownloadOptions {
	return &DownloadOptions{
		Timeout:      30 * time.Second,
		MaxSizeBytes: 10 * 1024 * 1024, // 10MB
	}
}

// Fetcher downloads raw image bytes for photo URLs
type Fetcher struct {
	httpClient *http.Client
	options    *DownloadOptions
	logger     zerolog.Logger
}

// NewFetcher creates a new image fetcher
func NewFetcher(options *DownloadOptions, logger zerolog.Logger) *Fetcher {
	if options == nil {
		options = DefaultDownloadOptions()
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: options.Timeout},
		options:    options,
		logger:     logger,
	}
}

// Download fetches the image at imageURL and blocks until it is complete.
// Every failure is reported as a *DownloadError.
func (f *Fetcher) Download(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, &DownloadError{URL: imageURL, Err: err}
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &DownloadError{URL: imageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &DownloadError{URL: imageURL, StatusCode: resp.StatusCode}
	}

	var reader io.Reader = resp.Body
	if f.options.MaxSizeBytes > 0 {
		// One extra byte tells an exact-size image from an oversized one
		reader = io.LimitReader(resp.Body, f.options.MaxSizeBytes+1)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, &DownloadError{URL: imageURL, Err: err}
	}
	if f.options.MaxSizeBytes > 0 && int64(len(data)) > f.options.MaxSizeBytes {
		return nil, &DownloadError{
			URL: imageURL,
			Err: fmt.Errorf("image exceeds maximum size of %d bytes", f.options.MaxSizeBytes),
		}
	}
	if len(data) == 0 {
		return nil, &DownloadError{URL: imageURL, Err: ErrEmptyBody}
	}

	f.logger.Debug().Str("url", imageURL).Int("bytes", len(data)).Msg("image downloaded")
	return data, nil
}

// Fetch starts downloading imageURL in the background
func (f *Fetcher) Fetch(ctx context.Context, imageURL string) *Task {
	return NewTask(ctx, imageURL, f.Download)
}

const (
	taskRunning int32 = iota
	taskCompleted
	taskCanceled
)

// Task is a cancelable, in-flight download. Whichever of completion and
// Cancel happens first wins; the other is a no-op.
type Task struct {
	url    string
	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}

	// written once by the task goroutine before done is closed
	data []byte
	err  error
}

// NewTask runs download for url in its own goroutine
func NewTask(ctx context.Context, url string, download func(ctx context.Context, url string) ([]byte, error)) *Task {
	taskCtx, cancel := context.WithCancel(ctx)
	t := &Task{
		url:    url,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(t.done)
		defer cancel()

		data, err := download(taskCtx, url)
		if t.state.CompareAndSwap(taskRunning, taskCompleted) {
			t.data, t.err = data, err
			return
		}
		t.err = ErrCanceled
	}()

	return t
}

// URL returns the URL being downloaded
func (t *Task) URL() string {
	return t.url
}

// Done is closed once the task finished or was canceled
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Result waits for the task and returns its outcome. A canceled task
// returns ErrCanceled and no data, even if the bytes had arrived.
func (t *Task) Result() ([]byte, error) {
	<-t.done
	return t.data, t.err
}

// Cancel aborts the download. It reports whether the cancellation won the
// race against completion.
func (t *Task) Cancel() bool {
	if t.state.CompareAndSwap(taskRunning, taskCanceled) {
		t.cancel()
		return true
	}
	return false
}

// Canceled reports whether Cancel won the race
func (t *Task) Canceled() bool {
	return t.state.Load() == taskCanceled
}
