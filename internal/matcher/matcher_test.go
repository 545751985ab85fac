package matcher

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"mkvmatch/internal/model"
)

type fakeChunker struct {
	duration     float64
	durationErr  error
	extractErr   map[int]bool // checkpoint index -> fail extraction
	extractCalls int
	released     []string
}

func (f *fakeChunker) Duration(context.Context, string) (float64, error) {
	return f.duration, f.durationErr
}

func (f *fakeChunker) Extract(_ context.Context, _ string, start, _ float64, _ string) (string, error) {
	idx := f.extractCalls
	f.extractCalls++
	if f.extractErr != nil && f.extractErr[idx] {
		return "", errors.New("ffmpeg exit 1")
	}
	return fmt.Sprintf("/tmp/chunk-%d-%.0f.wav", idx, start), nil
}

func (f *fakeChunker) Release(path string) {
	f.released = append(f.released, path)
}

// fakeASR returns a fixed transcript per chunk path and a score function
// driven by a lookup table keyed on (transcript, reference) pairs.
type fakeASR struct {
	transcriptFor map[string]string // chunk path -> transcript text
	scoreFor      map[[2]string]float64
}

func (f *fakeASR) Transcribe(_ context.Context, audioPath string) model.Transcript {
	text := f.transcriptFor[audioPath]
	return model.Transcript{Text: text}
}

func (f *fakeASR) Score(transcript, reference string) float64 {
	if s, ok := f.scoreFor[[2]string{transcript, reference}]; ok {
		return s
	}
	return 0
}

type fakeReader struct {
	content map[string]string
}

func (f *fakeReader) Read(path string) (string, error) {
	if c, ok := f.content[path]; ok {
		return c, nil
	}
	return "", errors.New("not found")
}

// wholeVideoCue wraps text in a single SRT cue spanning the whole video, so
// Slice returns it for every checkpoint window regardless of start time —
// keeping test fixtures independent of the scheduler's exact offsets.
func wholeVideoCue(text string) string {
	return "1\n00:00:00,000 --> 00:16:40,000\n" + text + "\n"
}

func refFile(series string, season, episode int, path, text string) model.SubtitleFile {
	sf := model.SubtitleFile{
		Path:        path,
		Language:    "en",
		EpisodeInfo: model.EpisodeInfo{SeriesName: series, Season: season, Episode: episode},
	}
	sf.SetContent(wholeVideoCue(text))
	return sf
}

func TestMatchReturnsNilBelowMinDuration(t *testing.T) {
	chunker := &fakeChunker{duration: 30}
	m := NewMatcher(nil, chunker, &fakeASR{}, &fakeReader{}, t.TempDir())

	result, err := m.Match(context.Background(), "video.mkv", nil)
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestMatchReturnsErrorWhenDurationProbeFails(t *testing.T) {
	chunker := &fakeChunker{durationErr: errors.New("ffprobe failed")}
	m := NewMatcher(nil, chunker, &fakeASR{}, &fakeReader{}, t.TempDir())

	_, err := m.Match(context.Background(), "video.mkv", nil)
	require.Error(t, err)
}

func TestMatchReturnsNilWhenNoCandidatesAccumulate(t *testing.T) {
	chunker := &fakeChunker{duration: 1000}
	asr := &fakeASR{transcriptFor: map[string]string{}}
	refs := []model.SubtitleFile{refFile("Show", 1, 1, "/refs/e01.srt", "")}
	m := NewMatcher(nil, chunker, asr, &fakeReader{}, t.TempDir())

	result, err := m.Match(context.Background(), "video.mkv", refs)
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestMatchEarlyExitsOnDecisiveNonFirstCheckpoint(t *testing.T) {
	chunker := &fakeChunker{duration: 1000}
	asr := &fakeASR{
		transcriptFor: map[string]string{
			"/tmp/chunk-0-150.wav": "intro music theme song",
			"/tmp/chunk-1-500.wav": "decisive unique dialogue line here",
		},
		scoreFor: map[[2]string]float64{
			{"intro music theme song", "intro music theme song window"}: 0.5,
			{"decisive unique dialogue line here", "decisive unique dialogue line here window"}: 0.95,
		},
	}
	content := "1\n00:02:30,000 --> 00:03:20,000\nintro music theme song window\n\n" +
		"2\n00:08:20,000 --> 00:09:10,000\ndecisive unique dialogue line here window\n"
	ref := model.SubtitleFile{
		Path:        "/refs/e01.srt",
		Language:    "en",
		EpisodeInfo: model.EpisodeInfo{SeriesName: "Show", Season: 1, Episode: 1},
	}
	ref.SetContent(content)
	refs := []model.SubtitleFile{ref}
	m := NewMatcher(nil, chunker, asr, &fakeReader{}, t.TempDir())

	result, err := m.Match(context.Background(), "video.mkv", refs)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, 1, result.ChunkIndex)
	require.Equal(t, 1, result.EpisodeInfo.Episode)
}

func TestMatchFallsBackToVoteWhenNoEarlyExit(t *testing.T) {
	chunker := &fakeChunker{duration: 1000}
	asr := &fakeASR{
		transcriptFor: map[string]string{
			"/tmp/chunk-0-150.wav": "line a dialogue",
			"/tmp/chunk-1-500.wav": "line a dialogue",
			"/tmp/chunk-2-850.wav": "line a dialogue",
		},
		scoreFor: map[[2]string]float64{
			{"line a dialogue", "window a"}: 0.7,
			{"line a dialogue", "window b"}: 0.65,
		},
	}
	refs := []model.SubtitleFile{
		refFile("Show", 1, 1, "/refs/e01.srt", "window a"),
		refFile("Show", 1, 2, "/refs/e02.srt", "window b"),
	}
	m := NewMatcher(nil, chunker, asr, &fakeReader{}, t.TempDir())

	result, err := m.Match(context.Background(), "video.mkv", refs)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, -1, result.ChunkIndex)
	require.Equal(t, "consensus", result.ModelName)
	require.Equal(t, 1, result.EpisodeInfo.Episode)
}

func TestMatchExtractFailureMarksSegmentEmptyAndContinues(t *testing.T) {
	chunker := &fakeChunker{duration: 1000, extractErr: map[int]bool{0: true}}
	asr := &fakeASR{
		transcriptFor: map[string]string{
			"/tmp/chunk-1-500.wav": "line a dialogue",
		},
		scoreFor: map[[2]string]float64{
			{"line a dialogue", "window a"}: 0.7,
		},
	}
	refs := []model.SubtitleFile{refFile("Show", 1, 1, "/refs/e01.srt", "window a")}
	m := NewMatcher(nil, chunker, asr, &fakeReader{}, t.TempDir())

	result, err := m.Match(context.Background(), "video.mkv", refs)
	require.NoError(t, err)
	require.NotNil(t, result)
}
