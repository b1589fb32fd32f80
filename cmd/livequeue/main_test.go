package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	livechat "github.com/roboricindustries/raycon-livequeue/pkg/schemas/livechat/v1"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	_, err := newLogger("debug", "json")
	require.NoError(t, err)
	_, err = newLogger("loud", "text")
	require.ErrorContains(t, err, "log level")
	_, err = newLogger("info", "xml")
	require.ErrorContains(t, err, "unknown log format")
}

func TestPublishRecord(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	r := publishFlags{id: "i1", department: "d1", status: "queued", defaultAgent: "u1"}.record(now)
	require.Equal(t, "i1", r.ID)
	require.Equal(t, livechat.StatusQueued, r.Status)
	require.Equal(t, "u1", r.DefaultAgent.AgentID)
	require.Equal(t, now, r.UpdatedAt)
}

func TestPublishDryRun(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "livequeue.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("queue:\n  transport: memory\n"), 0o600))

	root := newRootCommand()
	root.SetArgs([]string{"--config", cfgPath, "--env-file", filepath.Join(dir, "none.env"),
		"publish", "--dry-run", "--id", "i1", "--department", "d1"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	root = newRootCommand()
	root.SetArgs([]string{"--config", cfgPath, "publish", "--id", "i1", "--type", "moved"})
	require.ErrorContains(t, root.ExecuteContext(context.Background()), "unknown inquiry event type")
}

func TestWatchRequiresAgent(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "livequeue.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("queue:\n  transport: memory\n"), 0o600))

	root := newRootCommand()
	root.SetArgs([]string{"--config", cfgPath, "--env-file", filepath.Join(dir, "none.env"), "watch"})
	require.ErrorContains(t, root.ExecuteContext(context.Background()), "--agent or api.user_id is required")
}

func TestPublishRejectsReceiveOnlyTransports(t *testing.T) {
	for name, yaml := range map[string]string{
		"memory": "queue:\n  transport: memory\n",
		"ws":     "queue:\n  transport: ws\nwebsocket:\n  url: ws://127.0.0.1:1/stream\n",
	} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			cfgPath := filepath.Join(dir, "livequeue.yaml")
			require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o600))

			root := newRootCommand()
			root.SetArgs([]string{"--config", cfgPath, "--env-file", filepath.Join(dir, "none.env"),
				"publish", "--id", "i1", "--department", "d1"})
			require.ErrorContains(t, root.ExecuteContext(context.Background()), "cannot publish")
		})
	}
}
