package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"mkvmatch/internal/apperr"
	"mkvmatch/internal/logging"
	"mkvmatch/internal/model"
	"mkvmatch/internal/retry"
	"mkvmatch/internal/subtitle"
)

const httpTranscribeTimeout = 30 * time.Second

// HTTPProvider transcribes via a remote ASR HTTP endpoint, retrying
// transient failures with the shared backoff policy.
type HTTPProvider struct {
	logger *slog.Logger

	client   *http.Client
	baseURL  string
	apiKey   string
	model    string
	language string
	policy   retry.Policy
}

// NewHTTPProvider constructs a remote ASR provider.
func NewHTTPProvider(logger *slog.Logger, baseURL, apiKey, modelName, language string) *HTTPProvider {
	return &HTTPProvider{
		logger:   logging.NewComponentLogger(logger, "asr_http"),
		client:   &http.Client{Timeout: httpTranscribeTimeout},
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		model:    modelName,
		language: language,
		policy:   retry.Default(),
	}
}

// Load is a no-op for the HTTP provider: there's no local model to warm up.
func (p *HTTPProvider) Load(context.Context) error { return nil }

type httpTranscribeResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe posts audioPath's bytes to the remote endpoint, retrying
// transient network failures. Any failure yields an empty Transcript.
func (p *HTTPProvider) Transcribe(ctx context.Context, audioPath string) model.Transcript {
	result, err := retry.Do(ctx, p.policy, retry.IsTransient, func(attempt int, err error) {
		logging.WarnWithContext(p.logger, "retrying remote transcription", "asr_retry",
			logging.Int("attempt", attempt), logging.Error(err))
	}, func(ctx context.Context) (httpTranscribeResponse, error) {
		return p.transcribeOnce(ctx, audioPath)
	})
	if err != nil {
		logging.WarnWithContext(p.logger, "remote transcription failed", "asr_transcribe_failed", logging.Error(err))
		return model.Transcript{}
	}

	var raw strings.Builder
	segments := make([]model.TranscriptSegment, 0, len(result.Segments))
	for _, seg := range result.Segments {
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
	if raw.Len() == 0 {
		raw.WriteString(result.Text)
	}

	return model.Transcript{
		Text:     subtitle.Normalize(raw.String()),
		RawText:  raw.String(),
		Segments: segments,
		Language: result.Language,
	}
}

func (p *HTTPProvider) transcribeOnce(ctx context.Context, audioPath string) (httpTranscribeResponse, error) {
	var out httpTranscribeResponse

	file, err := os.Open(audioPath)
	if err != nil {
		return out, apperr.Wrap(apperr.ErrTranscribe, "asr_http", "open_audio", audioPath, err)
	}
	defer file.Close()

	var body bytes.Buffer
	if _, err := io.Copy(&body, file); err != nil {
		return out, apperr.Wrap(apperr.ErrTranscribe, "asr_http", "read_audio", audioPath, err)
	}

	url := fmt.Sprintf("%s/v1/transcribe?model=%s&language=%s", p.baseURL, p.model, p.language)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return out, apperr.Wrap(apperr.ErrTranscribe, "asr_http", "build_request", audioPath, err)
	}
	req.Header.Set("Content-Type", "audio/wav")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return out, apperr.Wrap(apperr.ErrTranscribe, "asr_http", "request", audioPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return out, apperr.Wrap(apperr.ErrTranscribe, "asr_http", "request", audioPath,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, apperr.Wrap(apperr.ErrTranscribe, "asr_http", "decode", audioPath, err)
	}
	return out, nil
}

// Score delegates to the package's default scorer.
func (p *HTTPProvider) Score(transcript, reference string) float64 {
	return Score(transcript, reference)
}
