// Package matcher implements MultiSegmentMatcher (C8): a checkpoint walk
// over a single video that extracts short audio chunks, transcribes them,
// scores them against time-aligned reference windows, and resolves a
// winner either by early exit or by cross-checkpoint vote.
package matcher

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"mkvmatch/internal/logging"
	"mkvmatch/internal/model"
	"mkvmatch/internal/scheduler"
	"mkvmatch/internal/subtitle"
)

// chunkExtractor is the audio-extraction surface the matcher needs —
// satisfied by *audio.Chunker, substitutable in tests.
type chunkExtractor interface {
	Duration(ctx context.Context, video string) (float64, error)
	Extract(ctx context.Context, video string, start, dur float64, outDir string) (string, error)
	Release(path string)
}

// asrProvider is the ASRProvider surface the matcher needs.
type asrProvider interface {
	Transcribe(ctx context.Context, audioPath string) model.Transcript
	Score(transcript, reference string) float64
}

// subtitleReader is the SubtitleReader surface the matcher needs.
type subtitleReader interface {
	Read(path string) (string, error)
}

// Matcher walks a video's checkpoints and resolves an episode match.
type Matcher struct {
	logger  *slog.Logger
	chunker chunkExtractor
	asr     asrProvider
	reader  subtitleReader
	tmpDir  string
	policy  Policy
}

// Option configures a Matcher at construction.
type Option func(*Matcher)

// WithPolicy overrides the default scoring thresholds.
func WithPolicy(p Policy) Option {
	return func(m *Matcher) { m.policy = p.normalized() }
}

// NewMatcher constructs a Matcher. tmpDir is where extracted chunks are
// written; the chunker creates it when it is missing.
func NewMatcher(logger *slog.Logger, chunker chunkExtractor, asr asrProvider, reader subtitleReader, tmpDir string, opts ...Option) *Matcher {
	m := &Matcher{
		logger:  logging.NewComponentLogger(logger, "matcher"),
		chunker: chunker,
		asr:     asr,
		reader:  reader,
		tmpDir:  tmpDir,
		policy:  DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match runs the checkpoint walk for one video against its candidate
// reference subtitles. It returns (nil, nil) when the video is too short
// to evaluate, or when scheduling produced no usable candidates at all —
// the caller decides how to report that as a failed match.
func (m *Matcher) Match(ctx context.Context, videoPath string, references []model.SubtitleFile) (*model.MatchResult, error) {
	duration, err := m.chunker.Duration(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	if duration < m.policy.MinVideoDuration {
		return nil, nil
	}

	contents := m.loadReferenceContents(references)
	checkpoints := scheduler.Checkpoints(duration)
	primaryCount := scheduler.PrimaryCount(duration)

	var candidates []model.MatchCandidate
	successfulSegments := 0
	emptySegments := 0

	for i, t := range checkpoints {
		segCandidates := m.processCheckpoint(ctx, videoPath, i, t, references, contents)
		if len(segCandidates) == 0 {
			emptySegments++
		} else {
			successfulSegments++
			candidates = append(candidates, segCandidates...)
			if result, exit := m.earlyExit(i, segCandidates, videoPath); exit {
				return result, nil
			}
		}

		if i+1 > primaryCount && successfulSegments >= 1 {
			break
		}
	}

	if len(candidates) == 0 {
		return nil, nil
	}
	m.logger.Info("resolving checkpoint votes", logging.Args(
		logging.String(logging.FieldVideo, videoPath),
		logging.Int("successful_segments", successfulSegments),
		logging.Int("empty_segments", emptySegments),
	)...)
	return m.vote(candidates, videoPath), nil
}

// processCheckpoint extracts, transcribes, and scores one checkpoint. A
// nil/empty result means the segment is empty — an extract failure, a
// too-short transcript, or no reference scoring above the floor all count.
func (m *Matcher) processCheckpoint(ctx context.Context, videoPath string, index int, start float64, references []model.SubtitleFile, contents map[string]string) []model.MatchCandidate {
	chunkPath, err := m.chunker.Extract(ctx, videoPath, start, scheduler.ChunkDuration, m.tmpDir)
	if err != nil {
		logging.WarnWithContext(m.logger, "chunk extraction failed, marking segment empty", "checkpoint_extract_failed",
			logging.String(logging.FieldVideo, videoPath), logging.Int(logging.FieldCheckpoint, index), logging.Error(err))
		return nil
	}
	defer m.chunker.Release(chunkPath)

	transcript := m.asr.Transcribe(ctx, chunkPath)
	text := subtitle.Normalize(transcript.Text)
	if len(text) < m.policy.MinTranscriptChars {
		return nil
	}

	var candidates []model.MatchCandidate
	for refIdx := range references {
		ref := references[refIdx]
		content, ok := contents[ref.Path]
		if !ok || content == "" {
			continue
		}
		window := strings.Join(subtitle.Slice(content, start, start+scheduler.ChunkDuration), " ")
		window = subtitle.Normalize(window)
		if window == "" {
			continue
		}
		score := m.asr.Score(text, window)
		if score > m.policy.ScoreFloor {
			candidates = append(candidates, model.MatchCandidate{
				EpisodeInfo: ref.EpisodeInfo,
				Confidence:  score,
				Reference:   &ref,
			})
		}
	}
	return candidates
}

// earlyExit implements the never-trust-the-first-checkpoint rule: past
// checkpoint 0, a decisive top score with no close runner-up resolves the
// match immediately.
func (m *Matcher) earlyExit(index int, candidates []model.MatchCandidate, videoPath string) (*model.MatchResult, bool) {
	if index == 0 || len(candidates) == 0 {
		return nil, false
	}
	sorted := append([]model.MatchCandidate(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Confidence > sorted[j].Confidence })

	top := sorted[0]
	if top.Confidence <= m.policy.EarlyExitTop {
		return nil, false
	}
	if len(sorted) > 1 && sorted[1].Confidence > m.policy.EarlyExitRunnerUp {
		attrs := append(logging.DecisionAttrs("early_exit", "suppressed", "runner-up too close"),
			logging.String(logging.FieldVideo, videoPath), logging.Int(logging.FieldCheckpoint, index))
		m.logger.Info("early exit suppressed", logging.Args(attrs...)...)
		return nil, false
	}

	attrs := append(logging.DecisionAttrs("early_exit", "accepted", top.EpisodeInfo.SEFormat()),
		logging.String(logging.FieldVideo, videoPath), logging.Int(logging.FieldCheckpoint, index))
	m.logger.Info("early exit", logging.Args(attrs...)...)
	return &model.MatchResult{
		EpisodeInfo:  top.EpisodeInfo,
		Confidence:   top.Confidence,
		MatchedTime:  0,
		ChunkIndex:   index,
		OriginalFile: videoPath,
	}, true
}

// voteKey tracks one s_e_format group's accumulated votes.
type voteKey struct {
	count       int
	confSum     float64
	maxConf     float64
	bestEpisode model.EpisodeInfo
}

// vote groups every accumulated candidate by episode_info.SEFormat and
// resolves the winner by vote count, then summed confidence, then
// first-appearance order.
func (m *Matcher) vote(candidates []model.MatchCandidate, videoPath string) *model.MatchResult {
	order := make([]string, 0)
	tally := make(map[string]*voteKey)

	for _, c := range candidates {
		key := c.EpisodeInfo.SEFormat() + "|" + c.EpisodeInfo.SeriesName
		entry, ok := tally[key]
		if !ok {
			entry = &voteKey{}
			tally[key] = entry
			order = append(order, key)
		}
		entry.count++
		entry.confSum += c.Confidence
		if c.Confidence > entry.maxConf {
			entry.maxConf = c.Confidence
			entry.bestEpisode = c.EpisodeInfo
		}
	}

	winnerKey := order[0]
	for _, key := range order[1:] {
		w, cur := tally[winnerKey], tally[key]
		if cur.count > w.count || (cur.count == w.count && cur.confSum > w.confSum) {
			winnerKey = key
		}
	}

	winner := tally[winnerKey]
	voteAttrs := append(logging.DecisionAttrs("vote", "accepted", winnerKey),
		logging.String(logging.FieldVideo, videoPath), logging.Int("votes", winner.count))
	m.logger.Info("vote decided", logging.Args(voteAttrs...)...)
	return &model.MatchResult{
		EpisodeInfo:  winner.bestEpisode,
		Confidence:   winner.maxConf,
		MatchedTime:  0,
		ChunkIndex:   -1,
		ModelName:    "consensus",
		OriginalFile: videoPath,
	}
}

// loadReferenceContents reads every reference's subtitle body once, up
// front, so repeated checkpoints reuse the decoded text instead of
// re-reading from disk.
func (m *Matcher) loadReferenceContents(references []model.SubtitleFile) map[string]string {
	contents := make(map[string]string, len(references))
	for _, ref := range references {
		if ref.HasContent() {
			contents[ref.Path] = ref.Content
			continue
		}
		content, err := m.reader.Read(ref.Path)
		if err != nil {
			logging.WarnWithContext(m.logger, "reference subtitle decode failed, skipping", "reference_decode_failed",
				logging.String("path", ref.Path), logging.Error(err))
			continue
		}
		contents[ref.Path] = content
	}
	return contents
}
