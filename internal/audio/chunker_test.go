package audio

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"mkvmatch/internal/apperr"
)

type fakeRunner struct {
	stdout   []byte
	stderr   []byte
	err      error
	onRun    func(name string, args []string)
	writeOut string // path to write writeLen bytes to, if set
	writeLen int
}

func (f *fakeRunner) Run(_ context.Context, name string, args []string) ([]byte, []byte, error) {
	if f.onRun != nil {
		f.onRun(name, args)
	}
	if f.writeOut != "" {
		data := make([]byte, f.writeLen)
		_ = os.WriteFile(f.writeOut, data, 0o644)
	}
	return f.stdout, f.stderr, f.err
}

func TestDurationParsesFfprobeOutput(t *testing.T) {
	c := NewChunker(nil)
	c.run = &fakeRunner{stdout: []byte("1423.456\n")}

	d, err := c.Duration(context.Background(), "video.mkv")
	require.NoError(t, err)
	require.InDelta(t, 1423.456, d, 0.001)
}

func TestDurationWrapsExtractErrorOnToolFailure(t *testing.T) {
	c := NewChunker(nil)
	c.run = &fakeRunner{err: errFake{}, stderr: []byte("boom")}

	_, err := c.Duration(context.Background(), "video.mkv")
	require.Error(t, err)
	require.ErrorIs(t, err, apperr.ErrExtract)
}

func TestDurationRejectsUnparsableOutput(t *testing.T) {
	c := NewChunker(nil)
	c.run = &fakeRunner{stdout: []byte("N/A")}

	_, err := c.Duration(context.Background(), "video.mkv")
	require.Error(t, err)
	require.ErrorIs(t, err, apperr.ErrExtract)
}

func TestExtractRemovesTruncatedOutput(t *testing.T) {
	dir := t.TempDir()
	c := NewChunker(nil)
	fr := &fakeRunner{}
	c.run = fr
	fr.onRun = func(name string, args []string) {
		out := args[len(args)-1]
		fr.writeOut = out
		fr.writeLen = 10 // below minValidBytes
	}

	_, err := c.Extract(context.Background(), "video.mkv", 10, 30, dir)
	require.Error(t, err)
	require.ErrorIs(t, err, apperr.ErrExtract)

	entries, _ := os.ReadDir(dir)
	require.Empty(t, entries)
}

func TestExtractReturnsPathOnSuccess(t *testing.T) {
	dir := t.TempDir()
	c := NewChunker(nil)
	fr := &fakeRunner{}
	c.run = fr
	fr.onRun = func(name string, args []string) {
		out := args[len(args)-1]
		fr.writeOut = out
		fr.writeLen = minValidBytes + 1
	}

	path, err := c.Extract(context.Background(), "My Show.mkv", 10, 30, dir)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, dir, filepath.Dir(path))
}

func TestExtractRemovesOutputOnToolFailure(t *testing.T) {
	dir := t.TempDir()
	c := NewChunker(nil)
	fr := &fakeRunner{err: errFake{}}
	c.run = fr
	fr.onRun = func(name string, args []string) {
		out := args[len(args)-1]
		fr.writeOut = out
		fr.writeLen = minValidBytes + 1
	}

	_, err := c.Extract(context.Background(), "video.mkv", 0, 30, dir)
	require.Error(t, err)
	entries, _ := os.ReadDir(dir)
	require.Empty(t, entries)
}

func TestChunkFileNameIsCollisionFreeAcrossCalls(t *testing.T) {
	a := ChunkFileName("Breaking Bad - S01E01.mkv", 270)
	b := ChunkFileName("Breaking Bad - S01E01.mkv", 270)
	require.NotEqual(t, a, b)
}

func TestReleaseIsNoopOnMissingFile(t *testing.T) {
	c := NewChunker(nil)
	c.Release(filepath.Join(t.TempDir(), "absent.wav"))
}

type errFake struct{}

func (errFake) Error() string { return "exit status 1" }
