package asr

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"mkvmatch/internal/apperr"
	"mkvmatch/internal/logging"
	"mkvmatch/internal/model"
	"mkvmatch/internal/subtitle"
)

const transcribeTimeout = 60 * time.Second

// commandRunner abstracts process execution for testability, mirroring the
// teacher's whisperx service command-runner override.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func defaultRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// WhisperProvider shells out to a whisper-compatible CLI that writes JSON
// segment output, the way the teacher's WhisperX service invokes its
// transcription binary via uvx.
type WhisperProvider struct {
	logger *slog.Logger

	binary   string
	model    string
	device   string
	language string

	run commandRunner

	loadOnce sync.Once
	loadErr  error
}

// NewWhisperProvider constructs a local CLI-backed provider. binary defaults
// to "whisper-cli" when empty.
func NewWhisperProvider(logger *slog.Logger, binary, modelName, device, language string) *WhisperProvider {
	if binary == "" {
		binary = "whisper-cli"
	}
	return &WhisperProvider{
		logger:   logging.NewComponentLogger(logger, "asr_whisper"),
		binary:   binary,
		model:    modelName,
		device:   device,
		language: language,
		run:      defaultRunner,
	}
}

// Load verifies the backend binary resolves on PATH. Idempotent.
func (p *WhisperProvider) Load(ctx context.Context) error {
	p.loadOnce.Do(func() {
		if _, err := exec.LookPath(p.binary); err != nil {
			p.loadErr = apperr.Wrap(apperr.ErrASRUnavailable, "asr_whisper", "load", p.binary, err)
		}
	})
	return p.loadErr
}

// whisperSegment mirrors one JSON segment entry the CLI writes.
type whisperSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type whisperPayload struct {
	Language string           `json:"language"`
	Segments []whisperSegment `json:"segments"`
}

// Transcribe runs the backend against audioPath and parses its JSON output.
// Any failure — launch, timeout, malformed JSON — yields an empty
// Transcript rather than an error, per the provider contract.
func (p *WhisperProvider) Transcribe(ctx context.Context, audioPath string) model.Transcript {
	ctx, cancel := context.WithTimeout(ctx, transcribeTimeout)
	defer cancel()

	outDir := filepath.Dir(audioPath)
	stem := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	jsonPath := filepath.Join(outDir, stem+".json")
	defer removeQuietly(jsonPath)

	args := []string{
		audioPath,
		"--model", p.model,
		"--device", p.device,
		"--output_dir", outDir,
		"--output_format", "json",
	}
	if p.language != "" {
		args = append(args, "--language", p.language)
	}

	if _, err := p.run(ctx, p.binary, args...); err != nil {
		logging.WarnWithContext(p.logger, "transcription failed", "asr_transcribe_failed", logging.Error(err))
		return model.Transcript{}
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		logging.WarnWithContext(p.logger, "transcription output missing", "asr_transcribe_failed", logging.Error(err))
		return model.Transcript{}
	}

	var payload whisperPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		logging.WarnWithContext(p.logger, "transcription output malformed", "asr_transcribe_failed", logging.Error(err))
		return model.Transcript{}
	}

	var raw strings.Builder
	segments := make([]model.TranscriptSegment, 0, len(payload.Segments))
	for _, seg := range payload.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if raw.Len() > 0 {
			raw.WriteByte(' ')
		}
		raw.WriteString(text)
		segments = append(segments, model.TranscriptSegment{Start: seg.Start, End: seg.End, Text: text})
	}

	return model.Transcript{
		Text:     subtitle.Normalize(raw.String()),
		RawText:  raw.String(),
		Segments: segments,
		Language: payload.Language,
	}
}

// Score delegates to the package's default scorer.
func (p *WhisperProvider) Score(transcript, reference string) float64 {
	return Score(transcript, reference)
}

func removeQuietly(path string) {
	_ = os.Remove(path)
}
