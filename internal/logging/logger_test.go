package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewJSONFormatWritesComponentField(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "info", Format: "json", Writer: &buf})
	require.NoError(t, err)

	comp := NewComponentLogger(logger, "matcher")
	comp.Info("checkpoint scored", Args(Float64("score", 0.92))...)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, "matcher", record[FieldComponent])
	require.Equal(t, "checkpoint scored", record["msg"])
}

func TestConsoleHandlerRendersComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "info", Format: "console", Writer: &buf})
	require.NoError(t, err)

	NewComponentLogger(logger, "matcher").Info("vote decided", Args(DecisionAttrs("vote", "accepted", "highest count")...)...)

	out := buf.String()
	require.True(t, strings.Contains(out, "[matcher]"))
	require.True(t, strings.Contains(out, "vote decided"))
	require.True(t, strings.Contains(out, "decision_result=accepted"))
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(Options{Format: "xml"})
	require.Error(t, err)
}
