package logging

// Standardized structured logging keys shared across components. Every
// decision/warning line in the engine uses these rather than ad-hoc key
// names, so log lines stay greppable across components.
const (
	// FieldComponent names the emitting component (e.g. "matcher", "asr").
	FieldComponent = "component"
	// FieldVideo identifies the video file a log line is about.
	FieldVideo = "video"
	// FieldSeries/FieldSeason/FieldEpisode identify the episode context.
	FieldSeries  = "series"
	FieldSeason  = "season"
	FieldEpisode = "episode"
	// FieldCheckpoint is the checkpoint index within a matcher run.
	FieldCheckpoint = "checkpoint"
	// FieldEventType categorizes lifecycle events (phase_start, phase_complete, skip, etc.).
	FieldEventType = "event_type"
	// FieldDecisionType/FieldDecisionResult/FieldDecisionReason back DecisionAttrs.
	FieldDecisionType   = "decision_type"
	FieldDecisionResult = "decision_result"
	FieldDecisionReason = "decision_reason"
	// FieldErrorKind captures the apperr taxonomy kind.
	FieldErrorKind = "error_kind"
	// FieldErrorHint provides a short hint for recovery.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)
