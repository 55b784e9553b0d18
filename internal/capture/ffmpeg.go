package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"sync"
)

// ffmpegEncoder pipes raw RGBA frames into an ffmpeg process and collects the
// container bytes it streams to stdout.
type ffmpegEncoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer
	frame  int

	mu       sync.Mutex
	out      bytes.Buffer
	readDone chan error
}

// FFmpegArgs builds the command line for a selection.
func FFmpegArgs(sel Selection, opts EncoderOptions) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-r", strconv.Itoa(opts.FrameRate),
		"-i", "pipe:0",
		"-an",
		"-c:v", sel.FFmpegEncoder,
	}
	switch sel.Codec.Container {
	case "mp4":
		crf := 51 - (opts.Quality * 51 / 100)
		args = append(args,
			"-pix_fmt", "yuv420p",
			"-crf", strconv.Itoa(clampInt(crf, 0, 51)),
			"-movflags", "frag_keyframe+empty_moov+default_base_moof",
			"-f", "mp4",
		)
		if sel.FFmpegEncoder == "libx264" {
			args = append(args, "-preset", "veryfast")
		}
	case "webm":
		args = append(args, "-pix_fmt", "yuv420p", "-deadline", "realtime", "-cpu-used", "8")
		if sel.Codec.ID == "webm/vp9" {
			crf := 63 - (opts.Quality * 63 / 100)
			args = append(args, "-b:v", "0", "-crf", strconv.Itoa(clampInt(crf, 4, 63)))
		} else {
			args = append(args, "-b:v", "5M")
		}
		args = append(args, "-f", "webm")
	}
	return append(args, "pipe:1")
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func newFFmpegEncoder(ctx context.Context, sel Selection, opts EncoderOptions) (*ffmpegEncoder, error) {
	if sel.FFmpegPath == "" {
		return nil, fmt.Errorf("ffmpeg is required for %s", sel.Codec.ID)
	}
	e := &ffmpegEncoder{readDone: make(chan error, 1)}
	e.cmd = exec.CommandContext(ctx, sel.FFmpegPath, FFmpegArgs(sel, opts)...)
	e.cmd.Stderr = &e.stderr

	stdin, err := e.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open ffmpeg stdin: %w", err)
	}
	stdout, err := e.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}
	e.stdin = stdin

	if err := e.cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start FFmpeg: %w", err)
	}
	go func() {
		buf := make([]byte, 64<<10)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				e.mu.Lock()
				e.out.Write(buf[:n])
				e.mu.Unlock()
			}
			if err != nil {
				if err == io.EOF {
					err = nil
				}
				e.readDone <- err
				return
			}
		}
	}()
	return e, nil
}

func (e *ffmpegEncoder) WriteFrame(img *image.RGBA, _ uint64) error {
	if _, err := e.stdin.Write(img.Pix); err != nil {
		return fmt.Errorf("failed to write frame %d to FFmpeg: %w (stderr: %s)", e.frame, err, e.stderr.String())
	}
	e.frame++
	return nil
}

func (e *ffmpegEncoder) Flush() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.out.Len() == 0 {
		return nil, nil
	}
	chunk := append([]byte(nil), e.out.Bytes()...)
	e.out.Reset()
	return chunk, nil
}

func (e *ffmpegEncoder) Close() ([]byte, error) {
	if err := e.stdin.Close(); err != nil {
		return nil, fmt.Errorf("failed to close FFmpeg stdin: %w", err)
	}
	readErr := <-e.readDone
	if err := e.cmd.Wait(); err != nil {
		return nil, fmt.Errorf("FFmpeg encoding failed: %w\nStderr: %s", err, e.stderr.String())
	}
	if readErr != nil {
		return nil, fmt.Errorf("failed to read FFmpeg output: %w", readErr)
	}
	return e.Flush()
}

func (e *ffmpegEncoder) Abort() {
	e.stdin.Close()
	if e.cmd.Process != nil {
		e.cmd.Process.Kill()
	}
	e.cmd.Wait()
}
