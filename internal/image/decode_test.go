package image

import (
	"errors"
	"testing"

	"codeberg.org/snonux/virtualtourist/internal/testutil"
)

func TestDecode(t *testing.T) {
	data := testutil.PNG(t, 5, 3)

	img, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}

	if img.Format != "png" {
		t.Errorf("Expected format png, got %s", img.Format)
	}
	if img.Width != 5 || img.Height != 3 {
		t.Errorf("Expected 5x3, got %dx%d", img.Width, img.Height)
	}
	if img.Size() != len(data) {
		t.Errorf("Expected size %d, got %d", len(data), img.Size())
	}
	if img.ContentType() != "image/png" || img.Extension() != ".png" {
		t.Errorf("Unexpected content type %s / extension %s", img.ContentType(), img.Extension())
	}
}

func TestDecode_Invalid(t *testing.T) {
	if _, err := Decode([]byte("definitely not an image")); err == nil {
		t.Error("Expected error for garbage data")
	}

	if _, err := Decode(nil); !errors.Is(err, ErrEmptyBody) {
		t.Errorf("Expected ErrEmptyBody, got %v", err)
	}
}

func TestImageExtension(t *testing.T) {
	tests := map[string]string{
		"jpeg": ".jpg",
		"gif":  ".gif",
		"webp": ".webp",
		"":     ".img",
	}
	for format, want := range tests {
		if got := (&Image{Format: format}).Extension(); got != want {
			t.Errorf("Extension(%q) = %s, want %s", format, got, want)
		}
	}
}
