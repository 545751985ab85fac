// Package engine implements MatchEngine (C9): scanning a path for videos,
// grouping them by detected series/season, acquiring reference subtitles
// once per group, invoking the matcher per video, and finalizing accepted
// matches through the renamer — the orchestration layer the way the
// teacher's workflow package sequences a disc through its processing
// stages.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"mkvmatch/internal/filenamectx"
	"mkvmatch/internal/logging"
	"mkvmatch/internal/model"
)

// videoMatcher is the MultiSegmentMatcher surface the engine needs.
type videoMatcher interface {
	Match(ctx context.Context, videoPath string, references []model.SubtitleFile) (*model.MatchResult, error)
}

// subtitleProvider is the composite SubtitleProvider surface the engine
// needs.
type subtitleProvider interface {
	Get(ctx context.Context, series string, season int) []model.SubtitleFile
}

// videoRenamer is the Renamer surface the engine needs.
type videoRenamer interface {
	Apply(result *model.MatchResult, series, outputDir string) (string, error)
}

// ProgressFunc fires after each video is processed, success or failure.
type ProgressFunc func(current, total int, filename string)

// PhaseFunc fires at major transitions ("scan", "match", "rename", ...).
type PhaseFunc func(phase, message string)

// Options configures one Process call.
type Options struct {
	SeasonOverride *int
	Recursive      bool
	DryRun         bool
	OutputDir      string
	MinConfidence  *float64
	ShowDir        string
	ProgressCB     ProgressFunc
	PhaseCB        PhaseFunc
}

// Engine orchestrates the full scan-group-match-rename pipeline.
type Engine struct {
	logger        *slog.Logger
	subtitles     subtitleProvider
	matcher       videoMatcher
	renamer       videoRenamer
	minConfidence float64
}

// New constructs an Engine. defaultMinConfidence is used when an Options
// value does not override it.
func New(logger *slog.Logger, subtitles subtitleProvider, matcher videoMatcher, renamer videoRenamer, defaultMinConfidence float64) *Engine {
	return &Engine{
		logger:        logging.NewComponentLogger(logger, "engine"),
		subtitles:     subtitles,
		matcher:       matcher,
		renamer:       renamer,
		minConfidence: defaultMinConfidence,
	}
}

type groupKey struct {
	series string
	season int
}

// Process scans path for videos, groups them, acquires references once
// per group, matches each video, and renames accepted matches when
// DryRun is false.
func (e *Engine) Process(ctx context.Context, path string, opts Options) ([]model.MatchResult, []model.FailedMatch) {
	start := time.Now()
	e.firePhase(opts, "scan", "scanning for video files")
	videos, err := scan(path, opts.Recursive)
	if err != nil {
		e.firePhase(opts, "scan", fmt.Sprintf("scan failed: %v", err))
		return nil, nil
	}

	minConfidence := e.minConfidence
	if opts.MinConfidence != nil {
		minConfidence = *opts.MinConfidence
	}

	e.firePhase(opts, "group", "grouping videos by series and season")
	groups, failures := e.group(videos, opts)

	var results []model.MatchResult
	total := len(videos)
	current := 0
	for _, f := range failures {
		current++
		e.fireProgress(opts, current, total, f.OriginalFile)
	}

	e.firePhase(opts, "acquire_subs", "acquiring reference subtitles")
	references := e.acquireReferences(ctx, groups)

	e.firePhase(opts, "match", "matching videos against references")
	keys := sortedGroupKeys(groups)
	for _, key := range keys {
		group := groups[key]
		refs := references[key]
		if len(refs) == 0 {
			for _, v := range group {
				current++
				failures = append(failures, model.FailedMatch{
					OriginalFile: v,
					Reason:       fmt.Sprintf("no subtitles for S%02d", key.season),
					SeriesName:   key.series,
					Season:       key.season,
					HasSeason:    true,
				})
				e.fireProgress(opts, current, total, v)
			}
			continue
		}
		for _, v := range group {
			current++
			result, failure := e.matchOne(ctx, v, key, refs, minConfidence)
			if failure != nil {
				failures = append(failures, *failure)
				e.fireProgress(opts, current, total, v)
				continue
			}
			results = append(results, *result)
			e.fireProgress(opts, current, total, v)
		}
	}

	if !opts.DryRun {
		e.firePhase(opts, "rename", "renaming matched files")
		for i := range results {
			if _, err := e.renamer.Apply(&results[i], results[i].EpisodeInfo.SeriesName, opts.OutputDir); err != nil {
				logging.WarnWithContext(e.logger, "rename failed", "rename_failed",
					logging.String(logging.FieldVideo, results[i].OriginalFile), logging.Error(err))
			}
		}
	}

	e.logger.Info("processing finished", logging.Args(
		logging.Int("matched", len(results)),
		logging.Int("failed", len(failures)),
		logging.String("elapsed", humanize.RelTime(start, time.Now(), "", "")),
	)...)
	return results, failures
}

func (e *Engine) matchOne(ctx context.Context, video string, key groupKey, refs []model.SubtitleFile, minConfidence float64) (*model.MatchResult, *model.FailedMatch) {
	result, err := e.matcher.Match(ctx, video, refs)
	if err != nil {
		attrs := append(logging.DecisionAttrs("episode_match", "rejected", "match_error"), logging.String(logging.FieldVideo, video))
		e.logger.Info("match rejected", logging.Args(attrs...)...)
		return nil, &model.FailedMatch{
			OriginalFile: video,
			Reason:       fmt.Sprintf("match error: %v", err),
			SeriesName:   key.series,
			Season:       key.season,
			HasSeason:    true,
		}
	}
	if result == nil {
		attrs := append(logging.DecisionAttrs("episode_match", "rejected", "no_confident_match"), logging.String(logging.FieldVideo, video))
		e.logger.Info("match rejected", logging.Args(attrs...)...)
		return nil, &model.FailedMatch{
			OriginalFile: video,
			Reason:       "no confident match",
			SeriesName:   key.series,
			Season:       key.season,
			HasSeason:    true,
		}
	}
	if result.Confidence < minConfidence {
		attrs := append(logging.DecisionAttrs("episode_match", "rejected", "below_confidence_floor"),
			logging.String(logging.FieldVideo, video), logging.Float64("confidence", result.Confidence))
		e.logger.Info("match rejected", logging.Args(attrs...)...)
		return nil, &model.FailedMatch{
			OriginalFile: video,
			Reason:       "low confidence",
			Confidence:   result.Confidence,
			SeriesName:   key.series,
			Season:       key.season,
			HasSeason:    true,
		}
	}

	attrs := append(logging.DecisionAttrs("episode_match", "accepted", result.EpisodeInfo.SEFormat()),
		logging.String(logging.FieldVideo, video), logging.Float64("confidence", result.Confidence))
	e.logger.Info("match accepted", logging.Args(attrs...)...)
	return result, nil
}

// group applies is_processed filtering, context detection, and the season
// override, bucketing surviving videos by (series, season).
func (e *Engine) group(videos []string, opts Options) (map[groupKey][]string, []model.FailedMatch) {
	groups := make(map[groupKey][]string)
	var failures []model.FailedMatch

	for _, v := range videos {
		if filenamectx.IsProcessed(v) {
			continue
		}
		fc := filenamectx.Detect(v, opts.ShowDir)
		if opts.SeasonOverride != nil {
			fc.Season, fc.HasSeason = *opts.SeasonOverride, true
		}
		if !fc.HasSeries || !fc.HasSeason {
			failures = append(failures, model.FailedMatch{OriginalFile: v, Reason: "no context"})
			continue
		}
		key := groupKey{series: fc.Series, season: fc.Season}
		groups[key] = append(groups[key], v)
	}
	return groups, failures
}

// acquireReferences consults the subtitle provider exactly once per group
// key, memoizing the result.
func (e *Engine) acquireReferences(ctx context.Context, groups map[groupKey][]string) map[groupKey][]model.SubtitleFile {
	out := make(map[groupKey][]model.SubtitleFile, len(groups))
	for key := range groups {
		out[key] = e.subtitles.Get(ctx, key.series, key.season)
	}
	return out
}

func sortedGroupKeys(groups map[groupKey][]string) []groupKey {
	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].series != keys[j].series {
			return keys[i].series < keys[j].series
		}
		return keys[i].season < keys[j].season
	})
	return keys
}

// scan walks path for .mkv files, recursing when recursive is set, else
// descending exactly one level for a directory.
func scan(path string, recursive bool) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if isMkv(path) {
			return []string{path}, nil
		}
		return nil, nil
	}

	var out []string
	if recursive {
		err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isMkv(p) {
				out = append(out, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		full := filepath.Join(path, entry.Name())
		if isMkv(full) {
			out = append(out, full)
		}
	}
	return out, nil
}

func isMkv(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".mkv")
}

func (e *Engine) firePhase(opts Options, phase, message string) {
	if opts.PhaseCB != nil {
		opts.PhaseCB(phase, message)
	}
}

func (e *Engine) fireProgress(opts Options, current, total int, filename string) {
	if opts.ProgressCB != nil {
		opts.ProgressCB(current, total, filename)
	}
}
