// Package assets probes the puzzle picture and serves it to clients.
package assets

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"os"
	"strings"
)

var ErrEmptyImage = errors.New("assets: image has zero size")

// Image is the decoded header of the puzzle picture.
type Image struct {
	Width  int
	Height int
	Format string
}

func (i Image) AspectRatio() float64 { return float64(i.Width) / float64(i.Height) }

// Probe reads only the image header at path.
func Probe(path string) (Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return Image{}, fmt.Errorf("assets: open %s: %w", path, err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return Image{}, fmt.Errorf("assets: decode %s: %w", path, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return Image{}, fmt.Errorf("%w: %s", ErrEmptyImage, path)
	}
	return Image{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// Handler serves files from dir. Directory listings are refused.
func Handler(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	})
}
