package capture

import (
	"context"
	"fmt"
	"image"
)

// Encoder turns canvas samples into container bytes.
type Encoder interface {
	// WriteFrame encodes one sample. version identifies the canvas state, so
	// repeated samples of an unchanged canvas can reuse earlier work.
	WriteFrame(img *image.RGBA, version uint64) error
	// Flush returns the bytes produced since the previous Flush.
	Flush() ([]byte, error)
	// Close finalizes the stream and returns the remaining bytes.
	Close() ([]byte, error)
	// Abort releases resources without finalizing.
	Abort()
}

// EncoderOptions configures an encoder.
type EncoderOptions struct {
	Width, Height int
	FrameRate     int
	// Quality is 1-100, used for JPEG and mapped to CRF for ffmpeg.
	Quality int
	TempDir string
}

// EncoderFactory builds the encoder for a selection.
type EncoderFactory func(ctx context.Context, sel Selection, opts EncoderOptions) (Encoder, error)

// NewEncoder is the default factory.
func NewEncoder(ctx context.Context, sel Selection, opts EncoderOptions) (Encoder, error) {
	switch sel.Codec.ID {
	case "avi/mjpeg":
		return newMJPEGEncoder(opts)
	case "gif":
		return newGIFEncoder(opts), nil
	}
	if sel.Codec.Backend == BackendFFmpeg {
		return newFFmpegEncoder(ctx, sel, opts)
	}
	return nil, fmt.Errorf("no encoder for codec %s", sel.Codec.ID)
}
