package monitoring

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_ForExtensionTagsLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.DebugLevel)

	child := l.ForExtension("ext-a")
	child.Info().Msg("activated")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ext-a", line["extension_id"])
	assert.Equal(t, "activated", line["message"])
}

func TestLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.WarnLevel)

	l.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	l.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestLogger_ForComponentTagsLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.InfoLevel)

	cl := l.ForComponent("bridge")
	cl.Info().Msg("listening")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "bridge", line["component"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, parseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("loud"))
	assert.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
}

func TestUseConsole(t *testing.T) {
	var buf bytes.Buffer
	assert.True(t, useConsole("console", &buf))
	assert.False(t, useConsole("json", &buf))
	assert.False(t, useConsole("", &buf), "auto picks JSON for non-terminal writers")
}

func TestNew_FileOutputIsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host.log")
	l := New(LoggerConfig{Level: "info", Output: path})
	l.Info().Str("k", "v").Msg("written")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var line map[string]any
	require.NoError(t, json.Unmarshal(data, &line))
	assert.Equal(t, "v", line["k"])
}

func TestOpenOutput_FallsBackToStderr(t *testing.T) {
	assert.Equal(t, os.Stderr, openOutput(filepath.Join(t.TempDir(), "missing", "dir", "x.log")))
	assert.Equal(t, os.Stdout, openOutput("stdout"))
}

func TestMetricsCollector_Stats(t *testing.T) {
	mc := NewMetricsCollector()
	mc.RecordPipelineRun(false)
	mc.RecordPipelineRun(true)
	mc.RecordHookFailure()
	mc.RecordHelperCall(true)
	mc.RecordHelperCall(false)
	mc.RecordExtensionLoaded()
	mc.RecordExtensionUnloaded()

	stats := mc.Stats()
	assert.Equal(t, int64(2), stats["pipeline_runs"])
	assert.Equal(t, int64(1), stats["cancellations"])
	assert.Equal(t, int64(1), stats["hook_failures"])
	assert.Equal(t, int64(2), stats["helper_calls"])
	assert.Equal(t, int64(1), stats["helper_misses"])
	assert.Equal(t, int64(1), stats["extensions_loaded"])
	assert.Equal(t, int64(1), stats["extensions_unloaded"])
}
