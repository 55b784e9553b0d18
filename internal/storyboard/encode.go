package storyboard

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"sync"

	"github.com/HugoSmits86/nativewebp"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// pageLayout places each sheet centered on an A4 page.
const pageLayout = "f:A4, pos:c, sc:0.95"

var pdfConfigOnce sync.Once

func encodeImage(w io.Writer, img image.Image, f Format) error {
	switch f {
	case FormatWebP:
		if err := nativewebp.Encode(w, img, nil); err != nil {
			return fmt.Errorf("failed to encode webp: %w", err)
		}
	default:
		enc := png.Encoder{CompressionLevel: png.BestSpeed}
		if err := enc.Encode(w, img); err != nil {
			return fmt.Errorf("failed to encode png: %w", err)
		}
	}
	return nil
}

// encodePDF writes one page per image, cover first. progress reports sheets
// prepared out of len(sheets).
func encodePDF(cover *image.RGBA, sheets []*image.RGBA, progress func(done, total int)) ([]byte, error) {
	// Keep pdfcpu from creating a config directory under the user's home.
	pdfConfigOnce.Do(api.DisableConfigDir)

	pages := make([]io.Reader, 0, len(sheets)+1)
	for i, img := range append([]*image.RGBA{cover}, sheets...) {
		var buf bytes.Buffer
		if err := encodeImage(&buf, img, FormatPNG); err != nil {
			return nil, err
		}
		pages = append(pages, &buf)
		if i > 0 && progress != nil {
			progress(i, len(sheets))
		}
	}

	imp, err := api.Import(pageLayout, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("invalid page layout: %w", err)
	}
	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, pages, imp, model.NewDefaultConfiguration()); err != nil {
		return nil, fmt.Errorf("failed to build pdf: %w", err)
	}
	return out.Bytes(), nil
}
