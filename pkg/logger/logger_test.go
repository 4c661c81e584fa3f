package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuffered(level Level) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return New(Options{Output: buf, Level: level, Format: FormatJSON}), buf
}

func TestLogger_WritesFields(t *testing.T) {
	log, buf := newBuffered(LevelInfo)

	log.With(ScopeID("guild-1")).Info("submission recorded", StepCount(5000), Err(errors.New("boom")))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "submission recorded", entry["message"])
	assert.Equal(t, "guild-1", entry["scope_id"])
	assert.Equal(t, float64(5000), entry["step_count"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLogger_RespectsLevel(t *testing.T) {
	log, buf := newBuffered(LevelWarn)

	log.Info("hidden")
	assert.Zero(t, buf.Len())

	log.Warn("shown")
	assert.NotZero(t, buf.Len())

	buf.Reset()
	log.WithLevel(LevelDebug).Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestLogger_NilErrorFieldIsSkipped(t *testing.T) {
	log, buf := newBuffered(LevelInfo)

	log.Info("ok", Err(nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	_, has := entry["error"]
	assert.False(t, has)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}

func TestContextRoundTrip(t *testing.T) {
	log, _ := newBuffered(LevelInfo)
	ctx := WithContext(context.Background(), log)

	assert.Same(t, log, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}
