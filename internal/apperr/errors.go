// Package apperr provides the error taxonomy used across the match engine.
// Every component wraps its failures with Wrap/WrapHint so the engine can
// classify a failure by Kind without string-matching error messages.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfig marks a fatal configuration problem.
	ErrConfig = errors.New("configuration error")
	// ErrDecode marks a subtitle decode failure (SubtitleReader).
	ErrDecode = errors.New("decode error")
	// ErrExtract marks an audio extraction failure (AudioChunker).
	ErrExtract = errors.New("extract error")
	// ErrASRUnavailable marks a fatal ASR backend load failure.
	ErrASRUnavailable = errors.New("asr unavailable")
	// ErrTranscribe marks an ASR transcription failure.
	ErrTranscribe = errors.New("transcribe error")
	// ErrNoContext marks a video for which series/season could not be
	// determined from its path.
	ErrNoContext = errors.New("no context")
	// ErrNoSubtitles marks a group with zero reference subtitles.
	ErrNoSubtitles = errors.New("no subtitles")
	// ErrLowConfidence marks a match below the configured floor.
	ErrLowConfidence = errors.New("low confidence")
	// ErrRenameCollision marks a rename target that already exists.
	ErrRenameCollision = errors.New("rename collision")
	// ErrTimeout marks any external call that exceeded its deadline.
	ErrTimeout = errors.New("timeout")
)

// Kind captures the error taxonomy used for engine-level policy decisions.
type Kind string

const (
	KindConfig          Kind = "config"
	KindDecode          Kind = "decode"
	KindExtract         Kind = "extract"
	KindASRUnavailable  Kind = "asr_unavailable"
	KindTranscribe      Kind = "transcribe"
	KindNoContext       Kind = "no_context"
	KindNoSubtitles     Kind = "no_subtitles"
	KindLowConfidence   Kind = "low_confidence"
	KindRenameCollision Kind = "rename_collision"
	KindTimeout         Kind = "timeout"
	KindTransient       Kind = "transient"
)

// MatchError carries structured context for a match-engine failure: which
// component raised it, what operation it was performing, and why.
type MatchError struct {
	Marker    error
	Kind      Kind
	Component string
	Operation string
	Message   string
	Hint      string
	Cause     error
}

func (e *MatchError) Error() string {
	if e == nil {
		return ""
	}
	detail := joinNonEmpty(": ", e.Component, e.Operation, e.Message)
	if detail == "" {
		detail = "match engine failure"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", detail, e.Cause)
	}
	return detail
}

func (e *MatchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func (e *MatchError) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	if e.Marker != nil && errors.Is(e.Marker, target) {
		return true
	}
	return errors.Is(e.Cause, target)
}

// Details is a flattened snapshot of a MatchError, suitable for structured
// logging without an errors.As call at every use site.
type Details struct {
	Kind      Kind
	Component string
	Operation string
	Message   string
	Hint      string
	Cause     error
}

// Describe extracts structured error information when available, falling
// back to a transient/unknown classification for plain errors.
func Describe(err error) Details {
	var matchErr *MatchError
	if errors.As(err, &matchErr) && matchErr != nil {
		return Details{
			Kind:      matchErr.Kind,
			Component: matchErr.Component,
			Operation: matchErr.Operation,
			Message:   strings.TrimSpace(matchErr.Message),
			Hint:      strings.TrimSpace(matchErr.Hint),
			Cause:     matchErr.Cause,
		}
	}
	if err == nil {
		return Details{}
	}
	return Details{Kind: KindTransient, Message: err.Error(), Cause: err}
}

// Wrap builds a MatchError tagged with the given marker for later
// classification via errors.Is.
func Wrap(marker error, component, operation, message string, cause error) error {
	return WrapHint(marker, component, operation, message, "", cause)
}

// WrapHint is Wrap plus a short recovery hint surfaced in logs.
func WrapHint(marker error, component, operation, message, hint string, cause error) error {
	if marker == nil {
		marker = ErrTimeout
	}
	return &MatchError{
		Marker:    marker,
		Kind:      classify(marker),
		Component: strings.TrimSpace(component),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Hint:      strings.TrimSpace(hint),
		Cause:     cause,
	}
}

func classify(marker error) Kind {
	switch {
	case errors.Is(marker, ErrConfig):
		return KindConfig
	case errors.Is(marker, ErrDecode):
		return KindDecode
	case errors.Is(marker, ErrExtract):
		return KindExtract
	case errors.Is(marker, ErrASRUnavailable):
		return KindASRUnavailable
	case errors.Is(marker, ErrTranscribe):
		return KindTranscribe
	case errors.Is(marker, ErrNoContext):
		return KindNoContext
	case errors.Is(marker, ErrNoSubtitles):
		return KindNoSubtitles
	case errors.Is(marker, ErrLowConfidence):
		return KindLowConfidence
	case errors.Is(marker, ErrRenameCollision):
		return KindRenameCollision
	case errors.Is(marker, ErrTimeout):
		return KindTimeout
	default:
		return KindTransient
	}
}

func joinNonEmpty(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
