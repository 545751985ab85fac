package asr

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeWhisperOutput(t *testing.T, audioPath string, payload whisperPayload) {
	t.Helper()
	outDir := filepath.Dir(audioPath)
	stem := audioPath[:len(audioPath)-len(filepath.Ext(audioPath))]
	jsonPath := filepath.Join(outDir, filepath.Base(stem)+".json")
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(jsonPath, data, 0o644))
}

func TestWhisperProviderTranscribeParsesSegments(t *testing.T) {
	dir := t.TempDir()
	audioPath := filepath.Join(dir, "chunk.wav")
	require.NoError(t, os.WriteFile(audioPath, []byte("pcm"), 0o644))

	p := NewWhisperProvider(nil, "whisper-cli", "base", "cpu", "en")
	p.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		writeWhisperOutput(t, audioPath, whisperPayload{
			Language: "en",
			Segments: []whisperSegment{
				{Text: "Hello there", Start: 0, End: 1},
				{Text: "", Start: 1, End: 1.2},
				{Text: "General Kenobi", Start: 1.2, End: 2.5},
			},
		})
		return nil, nil
	}

	transcript := p.Transcribe(context.Background(), audioPath)
	require.Equal(t, "Hello there General Kenobi", transcript.RawText)
	require.Len(t, transcript.Segments, 2)
	require.Equal(t, "en", transcript.Language)
}

func TestWhisperProviderTranscribeReturnsEmptyWhenRunnerFails(t *testing.T) {
	dir := t.TempDir()
	audioPath := filepath.Join(dir, "chunk.wav")
	require.NoError(t, os.WriteFile(audioPath, []byte("pcm"), 0o644))

	p := NewWhisperProvider(nil, "whisper-cli", "base", "cpu", "en")
	p.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, context.DeadlineExceeded
	}

	transcript := p.Transcribe(context.Background(), audioPath)
	require.True(t, transcript.Empty())
}

func TestWhisperProviderTranscribeReturnsEmptyForMissingOutput(t *testing.T) {
	dir := t.TempDir()
	audioPath := filepath.Join(dir, "chunk.wav")
	require.NoError(t, os.WriteFile(audioPath, []byte("pcm"), 0o644))

	p := NewWhisperProvider(nil, "whisper-cli", "base", "cpu", "en")
	p.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, nil
	}

	transcript := p.Transcribe(context.Background(), audioPath)
	require.True(t, transcript.Empty())
}

func TestWhisperProviderLoadFailsWhenBinaryMissing(t *testing.T) {
	p := NewWhisperProvider(nil, "mkvmatch-definitely-not-a-real-binary", "base", "cpu", "en")
	err := p.Load(context.Background())
	require.Error(t, err)

	// Load is idempotent: the cached error is returned without re-probing.
	err2 := p.Load(context.Background())
	require.Equal(t, err, err2)
}

func TestNewWhisperProviderDefaultsBinaryName(t *testing.T) {
	p := NewWhisperProvider(nil, "", "base", "cpu", "en")
	require.Equal(t, "whisper-cli", p.binary)
}
