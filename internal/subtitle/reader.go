// Package subtitle implements SubtitleReader (C1) and TextNormalizer (C2):
// layered-encoding SRT decoding, cue parsing, time-window slicing, and the
// text normalization both sides of scoring share.
package subtitle

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"

	"mkvmatch/internal/apperr"
	"mkvmatch/internal/logging"
)

// Cue is one parsed SRT block.
type Cue struct {
	Index int
	Start float64
	End   float64
	Text  string
}

// Reader decodes SRT files with an encoding fallback chain and slices their
// cues into time windows.
type Reader struct {
	logger *slog.Logger
}

// NewReader constructs a Reader. A nil logger is replaced with a no-op one.
func NewReader(logger *slog.Logger) *Reader {
	return &Reader{logger: logging.NewComponentLogger(logger, "subtitle_reader")}
}

// Read decodes path's contents to a UTF-8 string using a layered strategy:
// detect an encoding from a prefix sample, then try detected, UTF-8,
// Latin-1, CP1252, ISO-8859-1 in order. Returns ErrDecode only if every
// candidate fails.
func (r *Reader) Read(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrDecode, "subtitle_reader", "read", path, err)
	}

	candidates := r.candidateEncodings(raw)
	var lastErr error
	for _, enc := range candidates {
		if enc == nil {
			if isValidUTF8(raw) {
				return string(raw), nil
			}
			lastErr = fmt.Errorf("invalid utf-8")
			continue
		}
		decoded, err := enc.NewDecoder().String(string(raw))
		if err == nil {
			return decoded, nil
		}
		lastErr = err
	}
	return "", apperr.Wrap(apperr.ErrDecode, "subtitle_reader", "decode", path, lastErr)
}

// candidateEncodings returns decoders in the order the contract specifies:
// detected, UTF-8 (nil sentinel handled by isValidUTF8), Latin-1, CP1252,
// ISO-8859-1.
func (r *Reader) candidateEncodings(sample []byte) []encoding.Encoding {
	ordered := []encoding.Encoding{nil} // UTF-8 handled specially
	if detected, err := htmlindex.Get(detectEncodingName(sample)); err == nil && detected != nil {
		ordered = append([]encoding.Encoding{detected}, ordered...)
	}
	ordered = append(ordered, charmap.ISO8859_1, charmap.Windows1252, charmap.ISO8859_1)
	return ordered
}

// detectEncodingName applies a cheap BOM/prefix heuristic. It returns ""
// when no BOM is present; htmlindex.Get rejects that label, so no detected
// candidate is tried and the UTF-8 check comes first.
func detectEncodingName(sample []byte) string {
	switch {
	case len(sample) >= 3 && sample[0] == 0xEF && sample[1] == 0xBB && sample[2] == 0xBF:
		return "utf-8"
	case len(sample) >= 2 && sample[0] == 0xFF && sample[1] == 0xFE:
		return "utf-16le"
	case len(sample) >= 2 && sample[0] == 0xFE && sample[1] == 0xFF:
		return "utf-16be"
	default:
		return ""
	}
}

func isValidUTF8(b []byte) bool {
	return utf8.Valid(b)
}

var timestampLineRe = regexp.MustCompile(`-->`)

// ParseCues splits SRT content into its constituent cues. A block is valid
// iff it has at least 3 lines and its second line contains "-->"; malformed
// blocks are skipped silently.
func ParseCues(content string) []Cue {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	blocks := strings.Split(content, "\n\n")
	cues := make([]Cue, 0, len(blocks))
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		if len(lines) < 3 || !timestampLineRe.MatchString(lines[1]) {
			continue
		}
		index, err := strconv.Atoi(strings.TrimSpace(lines[0]))
		if err != nil {
			index = -1
		}
		start, end, err := parseTimingLine(lines[1])
		if err != nil {
			continue
		}
		text := strings.Join(lines[2:], " ")
		cues = append(cues, Cue{Index: index, Start: start, End: end, Text: strings.TrimSpace(text)})
	}
	return cues
}

func parseTimingLine(line string) (float64, float64, error) {
	parts := strings.SplitN(line, "-->", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid timing line %q", line)
	}
	start, err := ParseTimestamp(parts[0])
	if err != nil {
		return 0, 0, err
	}
	endFields := strings.Fields(parts[1])
	if len(endFields) == 0 {
		return 0, 0, fmt.Errorf("invalid timing line %q", line)
	}
	end, err := ParseTimestamp(endFields[0])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// ParseTimestamp parses "HH:MM:SS,mmm" (or with "." as the millisecond
// separator) into seconds.
func ParseTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	value = strings.ReplaceAll(value, ".", ",")
	parts := strings.SplitN(value, ",", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(parts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(parts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000, nil
}

// Slice returns, in SRT order, the joined text of every cue whose time span
// overlaps [t0, t1]: e >= t0 && s <= t1.
func Slice(content string, t0, t1 float64) []string {
	cues := ParseCues(content)
	out := make([]string, 0, len(cues))
	for _, c := range cues {
		if c.End >= t0 && c.Start <= t1 {
			out = append(out, c.Text)
		}
	}
	return out
}
