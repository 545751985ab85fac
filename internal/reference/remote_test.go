package reference

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestRemoteProvider(t *testing.T, server *httptest.Server, ledger *Ledger) *RemoteProvider {
	t.Helper()
	cacheDir := t.TempDir()
	p := NewRemoteProvider(nil, server.URL, "test-key", "mkvmatch-test", []string{"en"}, cacheDir, ledger)
	return p
}

func TestRemoteProviderDownloadsOneSubtitlePerDistinctEpisode(t *testing.T) {
	episode1 := 1
	season1 := 1
	episode2 := 2

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/subtitles":
			fmt.Fprintf(w, `{"results": [
				{"filename": "Show - S01E01.srt", "download_url": "%[1]s/download/1", "season_number": %[2]d, "episode_number": %[3]d},
				{"filename": "Show - S01E02.srt", "download_url": "%[1]s/download/2", "season_number": %[4]d, "episode_number": %[5]d}
			]}`, server.URL, season1, episode1, season1, episode2)
		case "/download/1":
			fmt.Fprint(w, "episode one body")
		case "/download/2":
			fmt.Fprint(w, "episode two body")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	p := newTestRemoteProvider(t, server, nil)
	got := p.Get(context.TODO(), "Show", 1)

	require.Len(t, got, 2)
	for _, sub := range got {
		body, err := os.ReadFile(sub.Path)
		require.NoError(t, err)
		require.NotEmpty(t, body)
	}
}

func TestRemoteProviderConsultsLedgerBeforeRedownloading(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	ledger, err := OpenLedger(dbPath)
	require.NoError(t, err)
	defer ledger.Close()

	existing := filepath.Join(t.TempDir(), "Show - S01E01.srt")
	require.NoError(t, os.WriteFile(existing, []byte("already here"), 0o644))
	require.NoError(t, ledger.Record(context.TODO(), "Show", 1, 1, existing))

	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, `{"results": [{"filename": "Show - S01E01.srt", "download_url": "http://unused", "season_number": 1, "episode_number": 1}]}`)
	}))
	defer server.Close()

	p := newTestRemoteProvider(t, server, ledger)
	got := p.Get(context.TODO(), "Show", 1)

	require.Len(t, got, 1)
	require.Equal(t, existing, got[0].Path)
}

func TestRemoteProviderSkipsEntriesWithoutResolvableEpisode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results": [{"filename": "unparsable.srt", "download_url": "http://unused"}]}`)
	}))
	defer server.Close()

	p := newTestRemoteProvider(t, server, nil)
	got := p.Get(context.TODO(), "Show", 1)
	require.Empty(t, got)
}
