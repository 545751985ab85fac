// Package audio implements AudioChunker (C3): probing a video's duration and
// extracting fixed-format PCM slices from it via an external ffprobe/ffmpeg
// pair, the way the teacher repo shells out to its own media tooling.
package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"mkvmatch/internal/apperr"
	"mkvmatch/internal/logging"
)

const (
	// minValidBytes is the smallest extracted file size that isn't treated
	// as a truncated/failed extraction.
	minValidBytes = 1024
	// sampleRate and channel count the matcher's ASR provider expects.
	sampleRate = 16000
	channels   = 1
)

// runner abstracts process execution so extraction logic can be tested
// without shelling out to real ffprobe/ffmpeg binaries.
type runner interface {
	Run(ctx context.Context, name string, args []string) ([]byte, []byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args []string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Chunker extracts fixed-duration audio slices from video files.
type Chunker struct {
	logger *slog.Logger
	run    runner

	ffprobePath string
	ffmpegPath  string

	probeTimeout   time.Duration
	extractTimeout time.Duration
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithBinaries overrides the ffprobe/ffmpeg binary paths (defaults resolve
// via PATH lookup).
func WithBinaries(ffprobePath, ffmpegPath string) Option {
	return func(c *Chunker) {
		if ffprobePath != "" {
			c.ffprobePath = ffprobePath
		}
		if ffmpegPath != "" {
			c.ffmpegPath = ffmpegPath
		}
	}
}

// WithTimeouts overrides the default probe (10s) and extract (30s) timeouts.
func WithTimeouts(probe, extract time.Duration) Option {
	return func(c *Chunker) {
		if probe > 0 {
			c.probeTimeout = probe
		}
		if extract > 0 {
			c.extractTimeout = extract
		}
	}
}

// NewChunker constructs a Chunker, resolving ffprobe/ffmpeg from PATH.
func NewChunker(logger *slog.Logger, opts ...Option) *Chunker {
	c := &Chunker{
		logger:         logging.NewComponentLogger(logger, "audio_chunker"),
		run:            execRunner{},
		ffprobePath:    "ffprobe",
		ffmpegPath:     "ffmpeg",
		probeTimeout:   10 * time.Second,
		extractTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Duration probes video's length in seconds.
func (c *Chunker) Duration(ctx context.Context, video string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		video,
	}
	stdout, stderr, err := c.run.Run(ctx, c.ffprobePath, args)
	if err != nil {
		return 0, apperr.Wrap(apperr.ErrExtract, "audio_chunker", "probe", video, fmt.Errorf("%s: %w", strings.TrimSpace(string(stderr)), err))
	}
	return parseDuration(stdout)
}

func parseDuration(stdout []byte) (float64, error) {
	value := strings.TrimSpace(string(stdout))
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil || seconds < 0 {
		return 0, apperr.Wrap(apperr.ErrExtract, "audio_chunker", "probe", "", fmt.Errorf("unparseable duration %q", value))
	}
	return seconds, nil
}

// ChunkFileName builds a collision-free temp filename for a chunk extracted
// from video at startTime: the video stem and start time make it readable
// in logs, the uuid suffix guarantees no two concurrent runs collide.
func ChunkFileName(video string, startTime float64) string {
	stem := strings.TrimSuffix(filepath.Base(video), filepath.Ext(video))
	stem = sanitizeStem(stem)
	return fmt.Sprintf("%s_%06d_%s.wav", stem, int(startTime*1000), uuid.NewString())
}

func sanitizeStem(stem string) string {
	var b strings.Builder
	for _, r := range stem {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "chunk"
	}
	return b.String()
}

// Extract pulls a duration-second slice of video starting at start (seconds)
// into outDir, returning the extracted file's path. The output is always
// 16kHz mono PCM S16LE WAV with no video/subtitle/data streams. On any
// failure the partial output file is removed before returning.
func (c *Chunker) Extract(ctx context.Context, video string, start, dur float64, outDir string) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", apperr.Wrap(apperr.ErrExtract, "audio_chunker", "extract", video, err)
	}
	outPath := filepath.Join(outDir, ChunkFileName(video, start))

	ctx, cancel := context.WithTimeout(ctx, c.extractTimeout)
	defer cancel()

	args := []string{
		"-loglevel", "error",
		"-y",
		"-ss", formatSeconds(start),
		"-t", formatSeconds(dur),
		"-i", video,
		"-vn", "-sn", "-dn",
		"-ac", strconv.Itoa(channels),
		"-ar", strconv.Itoa(sampleRate),
		"-sample_fmt", "s16",
		"-f", "wav",
		outPath,
	}

	_, stderr, err := c.run.Run(ctx, c.ffmpegPath, args)
	if err != nil {
		removeQuietly(outPath)
		return "", apperr.Wrap(apperr.ErrExtract, "audio_chunker", "extract", video, fmt.Errorf("%s: %w", strings.TrimSpace(string(stderr)), err))
	}

	info, statErr := os.Stat(outPath)
	if statErr != nil || info.Size() < minValidBytes {
		removeQuietly(outPath)
		return "", apperr.Wrap(apperr.ErrExtract, "audio_chunker", "extract", video, fmt.Errorf("truncated"))
	}

	return outPath, nil
}

// Release deletes a chunk file, logging a warning on failure rather than
// propagating it — cleanup is best-effort on every exit path.
func (c *Chunker) Release(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logging.WarnWithContext(c.logger, "failed to remove chunk file", "chunk_cleanup_failed",
			logging.String(logging.FieldVideo, path), logging.Error(err))
	}
}

func removeQuietly(path string) {
	_ = os.Remove(path)
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}
