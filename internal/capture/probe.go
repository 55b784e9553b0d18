package capture

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// FindFFmpeg locates an ffmpeg binary: the configured path first, then one
// bundled next to the executable, then PATH, then common install locations.
func FindFFmpeg(configured string) (string, bool) {
	if configured != "" {
		if _, err := os.Stat(configured); err == nil {
			return configured, true
		}
		if path, err := exec.LookPath(configured); err == nil {
			return path, true
		}
		return "", false
	}

	if bundled := bundledFFmpegPath(); bundled != "" {
		return bundled, true
	}

	names := []string{"ffmpeg"}
	if runtime.GOOS == "windows" {
		names = []string{"ffmpeg.exe", "ffmpeg"}
	}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path, true
		}
	}

	var commonPaths []string
	switch runtime.GOOS {
	case "darwin":
		commonPaths = []string{
			"/usr/local/bin/ffmpeg",
			"/opt/homebrew/bin/ffmpeg",
			"/opt/local/bin/ffmpeg",
		}
	case "linux":
		commonPaths = []string{
			"/usr/bin/ffmpeg",
			"/usr/local/bin/ffmpeg",
		}
	case "windows":
		commonPaths = []string{
			"C:\\ffmpeg\\bin\\ffmpeg.exe",
			"C:\\Program Files\\ffmpeg\\bin\\ffmpeg.exe",
		}
	}
	for _, path := range commonPaths {
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

func bundledFFmpegPath() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	name := "ffmpeg"
	if runtime.GOOS == "windows" {
		name = "ffmpeg.exe"
	}
	for _, p := range []string{
		filepath.Join(execDir, name),
		filepath.Join(execDir, "lib", name),
		filepath.Join(execDir, "ffmpeg", name),
	} {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// Probe reports the encoding capabilities of this machine. A missing or
// broken ffmpeg leaves only the native codecs.
func Probe(ctx context.Context, configuredFFmpeg string) Capabilities {
	path, ok := FindFFmpeg(configuredFFmpeg)
	if !ok {
		return Capabilities{}
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "-hide_banner", "-encoders").Output()
	if err != nil {
		return Capabilities{}
	}
	return Capabilities{FFmpegPath: path, Encoders: ParseEncoders(string(out))}
}

// ParseEncoders extracts video encoder names from `ffmpeg -encoders` output.
// Encoder lines start with a six-character flag field whose first flag is
// the media type.
func ParseEncoders(out string) map[string]bool {
	encoders := make(map[string]bool)
	sc := bufio.NewScanner(strings.NewReader(out))
	pastHeader := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "------") {
			pastHeader = true
			continue
		}
		if !pastHeader {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields[0]) != 6 || fields[0][0] != 'V' {
			continue
		}
		encoders[fields[1]] = true
	}
	return encoders
}

// Describe summarises caps for logs.
func (caps Capabilities) Describe() string {
	var usable []string
	for _, c := range CodecTable {
		if _, ok := caps.EncoderFor(c); ok {
			usable = append(usable, c.ID)
		}
	}
	if caps.FFmpegPath == "" {
		return fmt.Sprintf("ffmpeg not found; usable: %s", strings.Join(usable, ", "))
	}
	return fmt.Sprintf("ffmpeg %s; usable: %s", caps.FFmpegPath, strings.Join(usable, ", "))
}
