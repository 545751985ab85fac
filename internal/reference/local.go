// Package reference implements SubtitleProvider (C5): a local-disk reader,
// a remote-service fetcher, and a composite that prefers local results,
// the way the teacher's subtitle stage prefers an already-downloaded file
// over a fresh OpenSubtitles lookup.
package reference

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"mkvmatch/internal/logging"
	"mkvmatch/internal/model"
)

var (
	seXXeYYRe = regexp.MustCompile(`(?i)s(\d{1,2})e(\d{1,2})`)
	xByXRe    = regexp.MustCompile(`(?i)(\d{1,2})x(\d{1,2})`)
)

// LocalProvider reads reference subtitles already present under
// {cache_dir}/data/{series}/.
type LocalProvider struct {
	logger   *slog.Logger
	cacheDir string
}

// NewLocalProvider constructs a LocalProvider rooted at cacheDir.
func NewLocalProvider(logger *slog.Logger, cacheDir string) *LocalProvider {
	return &LocalProvider{logger: logging.NewComponentLogger(logger, "subtitle_local"), cacheDir: cacheDir}
}

// Get globs {cache_dir}/data/{series}/*.srt case-insensitively, parses
// (season, episode) from each filename, filters by season, and deduplicates
// by path.
func (p *LocalProvider) Get(series string, season int) []model.SubtitleFile {
	dir := filepath.Join(p.cacheDir, "data", series)
	matches := globCaseInsensitive(dir, ".srt")

	seen := make(map[string]bool, len(matches))
	out := make([]model.SubtitleFile, 0, len(matches))
	for _, path := range matches {
		if seen[path] {
			continue
		}
		s, e, ok := parseSeasonEpisode(filepath.Base(path))
		if !ok || s != season {
			continue
		}
		seen[path] = true
		out = append(out, model.SubtitleFile{
			Path:     path,
			Language: "en",
			EpisodeInfo: model.EpisodeInfo{
				SeriesName: series,
				Season:     s,
				Episode:    e,
			},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EpisodeInfo.Episode < out[j].EpisodeInfo.Episode })
	return out
}

// parseSeasonEpisode tries S{s}E{e} then {s}x{e}, both case-insensitive,
// 1-2 digits each.
func parseSeasonEpisode(name string) (season, episode int, ok bool) {
	if m := seXXeYYRe.FindStringSubmatch(name); m != nil {
		return atoiMust(m[1]), atoiMust(m[2]), true
	}
	if m := xByXRe.FindStringSubmatch(name); m != nil {
		return atoiMust(m[1]), atoiMust(m[2]), true
	}
	return 0, 0, false
}

func atoiMust(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

// globCaseInsensitive lists files in dir whose extension matches ext
// case-insensitively; dir not existing yields an empty slice.
func globCaseInsensitive(dir, ext string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ext) {
			out = append(out, filepath.Join(dir, entry.Name()))
		}
	}
	return out
}

// CanonicalFileName builds the canonical reference filename for (series,
// season, episode), matching the persisted layout the remote provider
// writes and the local provider also accepts.
func CanonicalFileName(series string, season, episode int) string {
	return fmt.Sprintf("%s - S%02dE%02d.srt", series, season, episode)
}
