// Package model defines the value types shared across the match engine:
// episode identity, subtitle references, audio chunks, and the results the
// engine returns to its caller.
package model

import "fmt"

// EpisodeInfo identifies a single episode of a series. Two EpisodeInfo
// values are equal iff SeriesName, Season and Episode match; Title is
// decorative and does not participate in equality.
type EpisodeInfo struct {
	SeriesName string
	Season     int
	Episode    int
	Title      string
}

// Equal reports whether two EpisodeInfo values identify the same episode,
// ignoring Title.
func (e EpisodeInfo) Equal(other EpisodeInfo) bool {
	return e.SeriesName == other.SeriesName && e.Season == other.Season && e.Episode == other.Episode
}

// SEFormat renders the canonical "S{season:02}E{episode:02}" tag.
func (e EpisodeInfo) SEFormat() string {
	return fmt.Sprintf("S%02dE%02d", e.Season, e.Episode)
}

// SubtitleFile is a reference subtitle believed to belong to a given
// episode. EpisodeInfo is always populated when a SubtitleProvider emits
// one. Content is lazily loaded and, once set, treated as immutable for the
// lifetime of the value.
type SubtitleFile struct {
	Path        string
	Language    string
	EpisodeInfo EpisodeInfo
	Content     string
	hasContent  bool
}

// SetContent records the decoded subtitle body and marks it loaded.
func (s *SubtitleFile) SetContent(content string) {
	s.Content = content
	s.hasContent = true
}

// HasContent reports whether Content has been populated.
func (s *SubtitleFile) HasContent() bool {
	return s.hasContent
}

// AudioChunk is a temporary extracted audio slice. Owned by the matcher
// that created it; callers must remove Path on every exit path.
type AudioChunk struct {
	Path      string
	StartTime float64
	Duration  float64
}

// MatchCandidate is one (episode, score) pair produced by scoring a single
// checkpoint's transcript against a single reference's time-aligned window.
type MatchCandidate struct {
	EpisodeInfo EpisodeInfo
	Confidence  float64
	Reference   *SubtitleFile
}

// MatchResult is a confirmed identification for one video.
// ChunkIndex == -1 signals a vote-based consensus result rather than a
// single decisive checkpoint.
type MatchResult struct {
	EpisodeInfo  EpisodeInfo
	Confidence   float64
	MatchedFile  string
	MatchedTime  float64
	ChunkIndex   int
	ModelName    string
	OriginalFile string
}

// FailedMatch records one input video that did not produce a usable match.
type FailedMatch struct {
	OriginalFile string
	Reason       string
	Confidence   float64
	SeriesName   string
	Season       int
	HasSeason    bool
}

// Transcript is what an ASRProvider returns for one audio chunk.
type Transcript struct {
	Text     string
	RawText  string
	Segments []TranscriptSegment
	Language string
}

// TranscriptSegment is one timed span within a Transcript.
type TranscriptSegment struct {
	Start float64
	End   float64
	Text  string
}

// Empty reports whether the transcript carries no usable text.
func (t Transcript) Empty() bool {
	return t.Text == ""
}
