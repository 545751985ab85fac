package asr

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Score is the default similarity scorer: 0.7·token_sort_ratio +
// 0.3·partial_ratio, each ratio scaled to [0,1]. Both inputs are expected to
// already be normalized (see internal/subtitle.Normalize) — Score itself
// does no further canonicalization.
func Score(transcript, reference string) float64 {
	if transcript == "" && reference == "" {
		return 1
	}
	if transcript == "" || reference == "" {
		return 0
	}
	return 0.7*tokenSortRatio(transcript, reference) + 0.3*partialRatio(transcript, reference)
}

// tokenSortRatio sorts each string's whitespace-delimited tokens
// alphabetically before comparing, so word order differences don't depress
// the score.
func tokenSortRatio(a, b string) float64 {
	return ratio(sortedTokens(a), sortedTokens(b))
}

func sortedTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// ratio turns a Levenshtein edit distance into a [0,1] similarity score.
func ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	score := 1 - float64(dist)/float64(maxLen)
	if score < 0 {
		return 0
	}
	return score
}

// partialRatio finds the best alignment of the shorter string against a
// same-length window of the longer string, sliding one character at a time.
// This tolerates a transcript being a substring of a longer reference slice
// (or vice versa) — common when a checkpoint lands mid-sentence.
func partialRatio(a, b string) float64 {
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		return 1
	}
	if len(short) == len(long) {
		return ratio(short, long)
	}

	best := 0.0
	for offset := 0; offset+len(short) <= len(long); offset++ {
		window := long[offset : offset+len(short)]
		if r := ratio(short, window); r > best {
			best = r
		}
		if best == 1 {
			break
		}
	}
	return best
}
