package recorder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-harness/loom/internal/provider"
)

func TestKeyHashIsStableAcrossEqualKeys(t *testing.T) {
	k1 := Key{Provider: "anthropic", Model: "claude-sonnet", Prompt: "plan the release"}
	k2 := Key{Provider: "anthropic", Model: "claude-sonnet", Prompt: "plan the release"}

	h1, err := k1.Hash()
	require.NoError(t, err)
	h2, err := k2.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestKeyHashDiffersOnPromptChange(t *testing.T) {
	k1 := Key{Provider: "anthropic", Prompt: "plan the release"}
	k2 := Key{Provider: "anthropic", Prompt: "plan the rollback"}

	h1, _ := k1.Hash()
	h2, _ := k2.Hash()
	assert.NotEqual(t, h1, h2)
}

func TestFileRecorderLoadMissesBeforeFinalize(t *testing.T) {
	ctx := context.Background()
	r := NewFileRecorder(t.TempDir())

	require.NoError(t, r.StartRecording(ctx, "hash1"))
	require.NoError(t, r.AppendEvent(ctx, "hash1", provider.StreamEvent{Kind: provider.KindTextDelta, Text: "hel"}))

	_, ok, err := r.Load(ctx, "hash1")
	require.NoError(t, err)
	assert.False(t, ok, "an in-progress recording must not be loadable (invariant R3)")
}

func TestFileRecorderLoadAfterFinalizeReturnsEventsInOrder(t *testing.T) {
	ctx := context.Background()
	r := NewFileRecorder(t.TempDir())

	require.NoError(t, r.StartRecording(ctx, "hash1"))
	require.NoError(t, r.AppendEvent(ctx, "hash1", provider.StreamEvent{Kind: provider.KindTextDelta, Text: "hel"}))
	require.NoError(t, r.AppendEvent(ctx, "hash1", provider.StreamEvent{Kind: provider.KindTextDelta, Text: "lo"}))
	require.NoError(t, r.AppendEvent(ctx, "hash1", provider.StreamEvent{Kind: provider.KindStop, StopReason: "end_turn"}))
	require.NoError(t, r.FinalizeRecording(ctx, "hash1"))

	entry, ok, err := r.Load(ctx, "hash1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, entry.Events, 3)
	assert.Equal(t, "hel", entry.Events[0].Text)
	assert.Equal(t, "lo", entry.Events[1].Text)
	assert.Equal(t, provider.KindStop, entry.Events[2].Kind)
}

func TestFileRecorderStartRecordingDiscardsPriorIncomplete(t *testing.T) {
	ctx := context.Background()
	r := NewFileRecorder(t.TempDir())

	require.NoError(t, r.StartRecording(ctx, "hash1"))
	require.NoError(t, r.AppendEvent(ctx, "hash1", provider.StreamEvent{Kind: provider.KindTextDelta, Text: "stale"}))

	// Restart before finalizing: invariant R1 says the stale partial row
	// must not survive into the new recording.
	require.NoError(t, r.StartRecording(ctx, "hash1"))
	require.NoError(t, r.AppendEvent(ctx, "hash1", provider.StreamEvent{Kind: provider.KindStop}))
	require.NoError(t, r.FinalizeRecording(ctx, "hash1"))

	entry, ok, err := r.Load(ctx, "hash1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, entry.Events, 1)
	assert.Equal(t, provider.KindStop, entry.Events[0].Kind)
}

func TestFileRecorderListOnlyReturnsComplete(t *testing.T) {
	ctx := context.Background()
	r := NewFileRecorder(t.TempDir())

	require.NoError(t, r.StartRecording(ctx, "complete-hash"))
	require.NoError(t, r.FinalizeRecording(ctx, "complete-hash"))

	require.NoError(t, r.StartRecording(ctx, "incomplete-hash"))

	hashes, err := r.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"complete-hash"}, hashes)
}

func TestFileRecorderDeleteRemovesRecording(t *testing.T) {
	ctx := context.Background()
	r := NewFileRecorder(t.TempDir())

	require.NoError(t, r.StartRecording(ctx, "hash1"))
	require.NoError(t, r.FinalizeRecording(ctx, "hash1"))
	require.NoError(t, r.Delete(ctx, "hash1"))

	_, ok, err := r.Load(ctx, "hash1")
	require.NoError(t, err)
	assert.False(t, ok)
}
