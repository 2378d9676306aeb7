package util

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultLogConfig()
	cfg.Output = &buf

	require.NoError(t, InitLogger(cfg))
	logger := ComponentLogger("listener")
	logger.Info().Msg("hello from test")

	assert.Contains(t, buf.String(), "hello from test")
	assert.Contains(t, buf.String(), "listener")
}

func TestInitLoggerWritesFile(t *testing.T) {
	dir := t.TempDir()
	cfg := LogConfig{Level: "debug", Directory: dir, MaxBackups: 2, File: true}

	require.NoError(t, InitLogger(cfg))
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	log.Info().Msg("to file")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"to file"`)
}

func TestInitLoggerUnknownLevelFallsBackToInfo(t *testing.T) {
	cfg := DefaultLogConfig()
	cfg.Level = "chatty"
	cfg.Output = &bytes.Buffer{}

	require.NoError(t, InitLogger(cfg))
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestCleanOldLogsKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"war_2026-01-01.log", "war_2026-01-02.log", "war_2026-01-03.log"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}

	cleanOldLogs(dir, 2)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"war_2026-01-02.log", "war_2026-01-03.log"}, names)
}
