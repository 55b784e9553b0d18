package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"

	"github.com/icza/mjpeg"
)

// mjpegEncoder writes a Motion JPEG AVI. The AVI index is only written on
// close, so all bytes arrive at Close.
type mjpegEncoder struct {
	path    string
	writer  mjpeg.AviWriter
	quality int

	lastVersion uint64
	lastJPEG    []byte
	frames      int
}

func newMJPEGEncoder(opts EncoderOptions) (*mjpegEncoder, error) {
	f, err := os.CreateTemp(opts.TempDir, "moodboard-*.avi")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	f.Close()

	writer, err := mjpeg.New(path, int32(opts.Width), int32(opts.Height), int32(opts.FrameRate))
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to create video writer: %w", err)
	}
	return &mjpegEncoder{path: path, writer: writer, quality: opts.Quality}, nil
}

func (e *mjpegEncoder) WriteFrame(img *image.RGBA, version uint64) error {
	if e.lastJPEG == nil || version != e.lastVersion {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
			return fmt.Errorf("failed to encode frame %d as JPEG: %w", e.frames, err)
		}
		e.lastJPEG = buf.Bytes()
		e.lastVersion = version
	}
	if err := e.writer.AddFrame(e.lastJPEG); err != nil {
		return fmt.Errorf("failed to add frame %d: %w", e.frames, err)
	}
	e.frames++
	return nil
}

func (e *mjpegEncoder) Flush() ([]byte, error) { return nil, nil }

func (e *mjpegEncoder) Close() ([]byte, error) {
	defer os.Remove(e.path)
	if err := e.writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize AVI: %w", err)
	}
	data, err := os.ReadFile(e.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read AVI: %w", err)
	}
	return data, nil
}

func (e *mjpegEncoder) Abort() {
	e.writer.Close()
	os.Remove(e.path)
}
