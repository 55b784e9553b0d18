// Package capture samples a canvas at a fixed frame rate, encodes the samples
// into a video container and publishes the finished file as an object URL.
package capture

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNoSupportedEncoding is returned when no codec in the table is usable.
var ErrNoSupportedEncoding = errors.New("no supported video encoding")

// Backend is what produces a codec's bytes.
type Backend string

const (
	BackendFFmpeg Backend = "ffmpeg"
	BackendNative Backend = "native"
)

// Codec is one entry of the ranked codec table.
type Codec struct {
	ID        string // e.g. "mp4/h264"
	Container string // "mp4", "webm", "avi", "gif"
	MIME      string
	Ext       string
	Priority  int // higher wins
	Backend   Backend
	// FFmpegEncoders lists acceptable ffmpeg encoder names, preferred first.
	FFmpegEncoders []string
}

func (c Codec) String() string { return c.ID }

// CodecTable lists every codec the capturer can produce, best first.
var CodecTable = []Codec{
	{ID: "mp4/h264", Container: "mp4", MIME: "video/mp4", Ext: "mp4", Priority: 50, Backend: BackendFFmpeg,
		FFmpegEncoders: []string{"libx264", "libopenh264", "h264_videotoolbox"}},
	{ID: "webm/vp9", Container: "webm", MIME: "video/webm;codecs=vp9", Ext: "webm", Priority: 40, Backend: BackendFFmpeg,
		FFmpegEncoders: []string{"libvpx-vp9"}},
	{ID: "webm/vp8", Container: "webm", MIME: "video/webm;codecs=vp8", Ext: "webm", Priority: 30, Backend: BackendFFmpeg,
		FFmpegEncoders: []string{"libvpx"}},
	{ID: "avi/mjpeg", Container: "avi", MIME: "video/x-msvideo", Ext: "avi", Priority: 20, Backend: BackendNative},
	{ID: "gif", Container: "gif", MIME: "image/gif", Ext: "gif", Priority: 10, Backend: BackendNative},
}

// Capabilities describes what the running environment can encode.
type Capabilities struct {
	// FFmpegPath is empty when ffmpeg was not found.
	FFmpegPath string
	// Encoders is the set of ffmpeg encoder names ffmpeg reported.
	Encoders map[string]bool
	// NoNative disables the pure-Go encoders.
	NoNative bool
}

// EncoderFor returns the ffmpeg encoder name to use for c, or "" for native
// codecs. ok is false when c cannot be encoded.
func (caps Capabilities) EncoderFor(c Codec) (name string, ok bool) {
	if c.Backend == BackendNative {
		return "", !caps.NoNative
	}
	if caps.FFmpegPath == "" {
		return "", false
	}
	for _, enc := range c.FFmpegEncoders {
		if caps.Encoders[enc] {
			return enc, true
		}
	}
	return "", false
}

// Selection is a chosen codec and the ffmpeg encoder that will produce it.
type Selection struct {
	Codec         Codec
	FFmpegPath    string
	FFmpegEncoder string
}

// SelectCodec picks the best usable codec. When allowed lists containers,
// only those are considered, in the listed order; otherwise the table ranks.
func SelectCodec(table []Codec, caps Capabilities, allowed []string) (Selection, error) {
	ranked := append([]Codec(nil), table...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Priority > ranked[j].Priority })

	if len(allowed) == 0 {
		for _, c := range ranked {
			if enc, ok := caps.EncoderFor(c); ok {
				return Selection{Codec: c, FFmpegPath: caps.FFmpegPath, FFmpegEncoder: enc}, nil
			}
		}
		return Selection{}, ErrNoSupportedEncoding
	}

	for _, container := range allowed {
		for _, c := range ranked {
			if c.Container != container {
				continue
			}
			if enc, ok := caps.EncoderFor(c); ok {
				return Selection{Codec: c, FFmpegPath: caps.FFmpegPath, FFmpegEncoder: enc}, nil
			}
		}
	}
	return Selection{}, fmt.Errorf("%w among %v", ErrNoSupportedEncoding, allowed)
}
