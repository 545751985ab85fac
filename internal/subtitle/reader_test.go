package subtitle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleSRT = "1\n00:00:01,000 --> 00:00:03,500\nHello there\n\n" +
	"2\n00:00:05,000 --> 00:00:07,250\nGeneral Kenobi\n\n" +
	"3\n00:00:10,000 --> 00:00:12,000\nYou are a bold one\n"

func TestReadDecodesUTF8File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.srt")
	require.NoError(t, os.WriteFile(path, []byte(sampleSRT), 0o644))

	r := NewReader(nil)
	content, err := r.Read(path)
	require.NoError(t, err)
	require.Contains(t, content, "General Kenobi")
}

func TestReadDecodesLatin1FallbackFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latin1.srt")
	// 0xE9 is "é" in Latin-1/CP1252 but invalid as a standalone UTF-8 byte.
	raw := []byte("1\n00:00:01,000 --> 00:00:02,000\nCaf\xE9\n")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	r := NewReader(nil)
	content, err := r.Read(path)
	require.NoError(t, err)
	require.Contains(t, content, "Café")
}

func TestReadReturnsErrorForMissingFile(t *testing.T) {
	r := NewReader(nil)
	_, err := r.Read(filepath.Join(t.TempDir(), "absent.srt"))
	require.Error(t, err)
}

func TestParseCuesSkipsMalformedBlocks(t *testing.T) {
	content := "1\n00:00:01,000 --> 00:00:02,000\nGood cue\n\n" +
		"not a cue at all\n\n" +
		"3\nmissing arrow\nbad timing\n"
	cues := ParseCues(content)
	require.Len(t, cues, 1)
	require.Equal(t, "Good cue", cues[0].Text)
}

func TestParseCuesJoinsMultilineText(t *testing.T) {
	content := "1\n00:00:01,000 --> 00:00:02,000\nLine one\nLine two\n"
	cues := ParseCues(content)
	require.Len(t, cues, 1)
	require.Equal(t, "Line one Line two", cues[0].Text)
}

func TestParseTimestampAcceptsCommaAndDotSeparators(t *testing.T) {
	seconds, err := ParseTimestamp("00:01:02,500")
	require.NoError(t, err)
	require.InDelta(t, 62.5, seconds, 1e-9)

	seconds, err = ParseTimestamp("00:01:02.500")
	require.NoError(t, err)
	require.InDelta(t, 62.5, seconds, 1e-9)
}

func TestParseTimestampRejectsMalformedValue(t *testing.T) {
	_, err := ParseTimestamp("not-a-timestamp")
	require.Error(t, err)
}

func TestSliceReturnsCuesOverlappingWindow(t *testing.T) {
	got := Slice(sampleSRT, 4, 8)
	require.Equal(t, []string{"General Kenobi"}, got)
}

func TestSliceReturnsEmptyForPlainTextContent(t *testing.T) {
	got := Slice("just some plain text, no cues here", 0, 10)
	require.Empty(t, got)
}

func TestSliceIncludesCuesPartiallyOverlappingWindowEdges(t *testing.T) {
	got := Slice(sampleSRT, 0, 2)
	require.Equal(t, []string{"Hello there"}, got)
}
