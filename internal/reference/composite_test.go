package reference

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"mkvmatch/internal/model"
)

type fakeRemote struct {
	results []model.SubtitleFile
	called  bool
}

func (f *fakeRemote) Get(ctx context.Context, series string, season int) []model.SubtitleFile {
	f.called = true
	return f.results
}

func subtitleAt(series string, season, episode int, path string) model.SubtitleFile {
	return model.SubtitleFile{
		Path:        path,
		Language:    "en",
		EpisodeInfo: model.EpisodeInfo{SeriesName: series, Season: season, Episode: episode},
	}
}

func TestCompositeShortCircuitsWhenLocalHasThreeOrMore(t *testing.T) {
	cacheDir := t.TempDir()
	dir := filepath.Join(cacheDir, "data", "Show")
	writeSrt(t, dir, "Show - S01E01.srt")
	writeSrt(t, dir, "Show - S01E02.srt")
	writeSrt(t, dir, "Show - S01E03.srt")

	remote := &fakeRemote{}
	c := NewCompositeProvider(NewLocalProvider(nil, cacheDir), remote)

	got := c.Get(context.Background(), "Show", 1)
	require.Len(t, got, 3)
	require.False(t, remote.called)
}

func TestCompositeFallsThroughToRemoteWhenLocalIsSparse(t *testing.T) {
	cacheDir := t.TempDir()
	dir := filepath.Join(cacheDir, "data", "Show")
	writeSrt(t, dir, "Show - S01E01.srt")

	remote := &fakeRemote{results: []model.SubtitleFile{
		subtitleAt("Show", 1, 1, "/remote/e01.srt"),
		subtitleAt("Show", 1, 2, "/remote/e02.srt"),
	}}
	c := NewCompositeProvider(NewLocalProvider(nil, cacheDir), remote)

	got := c.Get(context.Background(), "Show", 1)
	require.True(t, remote.called)
	require.Len(t, got, 2)

	for _, sub := range got {
		if sub.EpisodeInfo.Episode == 1 {
			require.Contains(t, sub.Path, cacheDir, "local copy of episode 1 must win over remote")
		}
	}
}

func TestCompositeWithNilRemoteReturnsLocalOnly(t *testing.T) {
	cacheDir := t.TempDir()
	dir := filepath.Join(cacheDir, "data", "Show")
	writeSrt(t, dir, "Show - S01E01.srt")

	c := NewCompositeProvider(NewLocalProvider(nil, cacheDir), nil)
	got := c.Get(context.Background(), "Show", 1)
	require.Len(t, got, 1)
}
