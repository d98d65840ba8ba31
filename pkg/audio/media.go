package audio

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
)

// ResolvePath maps a tour media reference onto the media root. Absolute refs like
// "/audio/x.mp3" are served from the root, not the filesystem root.
func ResolvePath(root, ref string) string {
	ref = strings.TrimLeft(filepath.FromSlash(ref), `/\`)
	if root == "" {
		return ref
	}
	return filepath.Join(root, ref)
}

// DecodeMedia opens and decodes an MP3 or WAV file.
func DecodeMedia(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	// Try MP3 first
	streamer, format, err := mp3.Decode(f)
	if err == nil {
		return streamer, format, nil
	}

	// Reopen file for WAV attempt (MP3 decode failure might leave file state uncertain)
	f.Close()
	f, err = os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	streamer, format, err = wav.Decode(f)
	if err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("unsupported audio format: %w", err)
	}
	return streamer, format, nil
}

// GetDuration returns the duration of the audio file at the given path.
func GetDuration(path string) (time.Duration, error) {
	streamer, format, err := DecodeMedia(path)
	if err != nil {
		return 0, err
	}
	defer streamer.Close()

	return format.SampleRate.D(streamer.Len()), nil
}

// CheckMedia logs every media reference of a tour that cannot be decoded and returns how many failed.
func CheckMedia(root string, refs []string) int {
	failed := 0
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		path := ResolvePath(root, ref)
		d, err := GetDuration(path)
		if err != nil {
			slog.Warn("Audio: Media not playable", "ref", ref, "path", path, "error", err)
			failed++
			continue
		}
		slog.Debug("Audio: Media ok", "ref", ref, "duration", d)
	}
	return failed
}
