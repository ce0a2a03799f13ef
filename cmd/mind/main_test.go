package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/420247jake/the-mind/internal/domain"
	"github.com/420247jake/the-mind/internal/ingest"
)

func run(t *testing.T, args ...string) []byte {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(append([]string{"--config-dir", t.TempDir()}, args...))
	require.NoError(t, cmd.Execute())
	return out.Bytes()
}

func TestWriteCommands(t *testing.T) {
	t.Setenv("MIND_ENV", "development")
	t.Setenv("MIND_STORE_DRIVER", "sqlite")
	t.Setenv("MIND_SQLITE_PATH", filepath.Join(t.TempDir(), "mind.db"))
	t.Setenv("MIND_LOG_LEVEL", "error")

	var logged ingest.LogThoughtResult
	require.NoError(t, json.Unmarshal(run(t, "log", "the", "version", "token", "--category", "technical"), &logged))
	assert.Equal(t, "the version token", logged.Thought.Content)
	assert.Equal(t, domain.CategoryTechnical, logged.Thought.Category)

	run(t, "log", "poll every half second", "--category", "technical")

	var conn domain.Connection
	require.NoError(t, json.Unmarshal(run(t, "connect", "version token", "half second", "--reason", "same loop"), &conn))
	assert.Equal(t, logged.Thought.ID, conn.From)

	var recalled []domain.Thought
	require.NoError(t, json.Unmarshal(run(t, "recall", "token"), &recalled))
	require.Len(t, recalled, 1)
	assert.Equal(t, logged.Thought.ID, recalled[0].ID)

	var session domain.Session
	require.NoError(t, json.Unmarshal(run(t, "summarize", "wired the loader", "--title", "day one"), &session))
	assert.Equal(t, "day one", session.Title)

	var sessions []domain.Session
	require.NoError(t, json.Unmarshal(run(t, "sessions"), &sessions))
	assert.Len(t, sessions, 1)
}

func TestSummarizeRequiresTitle(t *testing.T) {
	t.Setenv("MIND_STORE_DRIVER", "memory")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config-dir", t.TempDir(), "summarize", "no title"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--title")
}

func TestUnknownEnvironmentFailsConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config-dir", t.TempDir(), "--env", "qa", "clusters"})
	require.Error(t, cmd.Execute())
}
