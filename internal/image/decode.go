package image

import (
	"bytes"
	"fmt"
	stdimage "image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// Image is a downloaded photo whose header decoded successfully.
// Values handed out by the Cache are shared and must not be modified.
type Image struct {
	Data   []byte
	Format string // "jpeg", "png", "gif" or "webp"
	Width  int
	Height int
}

// Decode checks that data is a supported image and reads its dimensions
func Decode(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyBody
	}

	cfg, format, err := stdimage.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	return &Image{
		Data:   data,
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}

// Size returns the number of bytes held by the image
func (i *Image) Size() int {
	return len(i.Data)
}

// ContentType returns the MIME type matching Format
func (i *Image) ContentType() string {
	return "image/" + i.Format
}

// Extension returns the file extension matching Format
func (i *Image) Extension() string {
	switch i.Format {
	case "jpeg":
		return ".jpg"
	case "":
		return ".img"
	default:
		return "." + i.Format
	}
}
