package reference

import (
	"context"

	"mkvmatch/internal/model"
)

// remoteGetter is the subset of RemoteProvider's surface the composite
// needs, so tests can substitute a fake without a network stack.
type remoteGetter interface {
	Get(ctx context.Context, series string, season int) []model.SubtitleFile
}

// localShortcut is the number of local results that short-circuits a
// remote lookup entirely.
const localShortcut = 3

// CompositeProvider tries LocalProvider first; if it finds at least
// localShortcut subtitles it returns those alone, otherwise it falls
// through to remote and merges, local results winning on conflict.
type CompositeProvider struct {
	local  *LocalProvider
	remote remoteGetter
}

// NewCompositeProvider builds a CompositeProvider. remote may be nil, in
// which case only local results are ever returned.
func NewCompositeProvider(local *LocalProvider, remote remoteGetter) *CompositeProvider {
	return &CompositeProvider{local: local, remote: remote}
}

// Get returns reference subtitles for (series, season), deduplicated by
// (season, episode) with local results taking priority over remote ones.
func (p *CompositeProvider) Get(ctx context.Context, series string, season int) []model.SubtitleFile {
	localResults := p.local.Get(series, season)
	if len(localResults) >= localShortcut || p.remote == nil {
		return mergeLocalWins(localResults, nil)
	}

	remoteResults := p.remote.Get(ctx, series, season)
	return mergeLocalWins(localResults, remoteResults)
}

type episodeKey struct {
	season  int
	episode int
}

func mergeLocalWins(local, remote []model.SubtitleFile) []model.SubtitleFile {
	out := make([]model.SubtitleFile, 0, len(local)+len(remote))
	seen := make(map[episodeKey]bool, len(local)+len(remote))
	for _, sub := range local {
		key := episodeKey{sub.EpisodeInfo.Season, sub.EpisodeInfo.Episode}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, sub)
	}
	for _, sub := range remote {
		key := episodeKey{sub.EpisodeInfo.Season, sub.EpisodeInfo.Episode}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, sub)
	}
	return out
}
