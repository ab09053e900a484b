package log

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTagsAreAttached(t *testing.T) {
	buf := &bytes.Buffer{}
	prev := slog.Default()
	defer slog.SetDefault(prev)
	Setup(buf, "debug", "text")

	ctx := AddTags(context.Background(), "task", "t1")
	ctx = AddTags(ctx, "node", "0")
	Infow(ctx, "split added", "rows", 3)
	Debugf(ctx, "pulled %d batches", 2)

	out := buf.String()
	require.Contains(t, out, "split added")
	require.Contains(t, out, "rows=3")
	require.Contains(t, out, "task=t1")
	require.Contains(t, out, "node=0")
	require.Contains(t, out, "pulled 2 batches")
}

func TestLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	prev := slog.Default()
	defer slog.SetDefault(prev)
	Setup(buf, "warn", "json")

	Infof(context.Background(), "hidden")
	Warnf(context.Background(), "shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
}

func TestAddTagsOddArgsPanics(t *testing.T) {
	require.Panics(t, func() {
		AddTags(context.Background(), "only-key")
	})
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}
