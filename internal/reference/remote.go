package reference

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"mkvmatch/internal/apperr"
	"mkvmatch/internal/logging"
	"mkvmatch/internal/model"
	"mkvmatch/internal/retry"
)

const networkTimeout = 30 * time.Second

// subtitleMeta mirrors one search-result entry from the remote service.
type subtitleMeta struct {
	Filename      string `json:"filename"`
	DownloadURL   string `json:"download_url"`
	SeasonNumber  *int   `json:"season_number"`
	EpisodeNumber *int   `json:"episode_number"`
}

type searchResponse struct {
	Results []subtitleMeta `json:"results"`
}

// RemoteProvider queries an external subtitle service and caches downloads
// under the canonical local path, guarding concurrent writers with an
// on-disk lock and consulting an optional ledger before re-downloading.
type RemoteProvider struct {
	logger *slog.Logger

	client    *http.Client
	baseURL   string
	apiKey    string
	userAgent string
	languages []string

	cacheDir       string
	ledger         *Ledger
	searchPolicy   retry.Policy
	downloadPolicy retry.Policy
}

// NewRemoteProvider constructs a RemoteProvider. ledger may be nil.
func NewRemoteProvider(logger *slog.Logger, baseURL, apiKey, userAgent string, languages []string, cacheDir string, ledger *Ledger) *RemoteProvider {
	search := retry.Default()
	download := retry.Default()
	download.MaxAttempts = 5
	return &RemoteProvider{
		logger:         logging.NewComponentLogger(logger, "subtitle_remote"),
		client:         &http.Client{Timeout: networkTimeout},
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		userAgent:      userAgent,
		languages:      languages,
		cacheDir:       cacheDir,
		ledger:         ledger,
		searchPolicy:   search,
		downloadPolicy: download,
	}
}

// Get searches for (series, season) episode subtitles and downloads one per
// distinct episode number found. The episode number comes from the API's
// episode_number when present, otherwise from the filename. Every returned
// file carries the requested season; the season numbers in the search
// results are not checked.
func (p *RemoteProvider) Get(ctx context.Context, series string, season int) []model.SubtitleFile {
	results, err := retry.Do(ctx, p.searchPolicy, retry.IsTransient, p.retryLog("search"), func(ctx context.Context) ([]subtitleMeta, error) {
		return p.search(ctx, series, season)
	})
	if err != nil {
		logging.WarnWithContext(p.logger, "remote subtitle search failed", "subtitle_search_failed",
			logging.String(logging.FieldSeries, series), logging.Int(logging.FieldSeason, season), logging.Error(err))
		return nil
	}

	seen := make(map[int]bool)
	out := make([]model.SubtitleFile, 0, len(results))
	for _, meta := range results {
		episode, ok := episodeNumber(meta)
		if !ok || seen[episode] {
			continue
		}
		path, err := p.downloadWithGuard(ctx, series, season, episode, meta)
		if err != nil {
			logging.WarnWithContext(p.logger, "remote subtitle download failed", "subtitle_download_failed",
				logging.String(logging.FieldSeries, series), logging.Int(logging.FieldEpisode, episode), logging.Error(err))
			continue
		}
		seen[episode] = true
		out = append(out, model.SubtitleFile{
			Path:     path,
			Language: firstOr(p.languages, "en"),
			EpisodeInfo: model.EpisodeInfo{
				SeriesName: series,
				Season:     season,
				Episode:    episode,
			},
		})
	}
	return out
}

func episodeNumber(meta subtitleMeta) (int, bool) {
	if meta.EpisodeNumber != nil {
		return *meta.EpisodeNumber, true
	}
	s, e, ok := parseSeasonEpisode(meta.Filename)
	_ = s
	return e, ok
}

func (p *RemoteProvider) retryLog(op string) retry.OnRetry {
	return func(attempt int, err error) {
		logging.WarnWithContext(p.logger, "retrying remote subtitle "+op, "subtitle_retry",
			logging.Int("attempt", attempt), logging.Error(err))
	}
}

func (p *RemoteProvider) search(ctx context.Context, series string, season int) ([]subtitleMeta, error) {
	url := fmt.Sprintf("%s/subtitles?query=%s&season_number=%d&type=episode", p.baseURL, series, season)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrTimeout, "subtitle_remote", "search", series, err)
	}
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrTimeout, "subtitle_remote", "search", series, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Wrap(apperr.ErrTimeout, "subtitle_remote", "search", series, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperr.Wrap(apperr.ErrTimeout, "subtitle_remote", "search", series, err)
	}
	return payload.Results, nil
}

// downloadWithGuard consults the ledger, then locks the destination path
// before downloading — so two concurrent engine runs never race writing
// the same canonical file.
func (p *RemoteProvider) downloadWithGuard(ctx context.Context, series string, season, episode int, meta subtitleMeta) (string, error) {
	if existing, ok := p.ledger.Lookup(ctx, series, season, episode); ok {
		if _, err := os.Stat(existing); err == nil {
			return existing, nil
		}
	}

	dir := filepath.Join(p.cacheDir, "data", series)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperr.Wrap(apperr.ErrTimeout, "subtitle_remote", "download", meta.Filename, err)
	}
	dest := filepath.Join(dir, CanonicalFileName(series, season, episode))

	lock := flock.New(dest + ".lock")
	if err := lock.Lock(); err != nil {
		return "", apperr.Wrap(apperr.ErrTimeout, "subtitle_remote", "download", meta.Filename, err)
	}
	defer lock.Unlock()

	if _, err := os.Stat(dest); err == nil {
		_ = p.ledger.Record(ctx, series, season, episode, dest)
		return dest, nil
	}

	_, err := retry.Do(ctx, p.downloadPolicy, retry.IsTransient, p.retryLog("download"), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.downloadOnce(ctx, meta, dest)
	})
	if err != nil {
		return "", err
	}

	_ = p.ledger.Record(ctx, series, season, episode, dest)
	return dest, nil
}

func (p *RemoteProvider) downloadOnce(ctx context.Context, meta subtitleMeta, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.DownloadURL, nil)
	if err != nil {
		return apperr.Wrap(apperr.ErrTimeout, "subtitle_remote", "download", meta.Filename, err)
	}
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.ErrTimeout, "subtitle_remote", "download", meta.Filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperr.Wrap(apperr.ErrTimeout, "subtitle_remote", "download", meta.Filename, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return apperr.Wrap(apperr.ErrTimeout, "subtitle_remote", "download", meta.Filename, err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return apperr.Wrap(apperr.ErrTimeout, "subtitle_remote", "download", meta.Filename, err)
	}
	out.Close()
	return os.Rename(tmp, dest)
}

func (p *RemoteProvider) authorize(req *http.Request) {
	if p.apiKey != "" {
		req.Header.Set("Api-Key", p.apiKey)
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
}

func firstOr(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	return values[0]
}
