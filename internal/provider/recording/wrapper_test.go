package recording

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-harness/loom/internal/provider"
	"github.com/open-harness/loom/internal/recorder"
)

type fakeLiveProvider struct {
	events []provider.StreamEvent
}

func (f *fakeLiveProvider) Name() string { return "fake" }

func (f *fakeLiveProvider) Stream(ctx context.Context, opts provider.StreamOptions) (<-chan provider.StreamEvent, error) {
	out := make(chan provider.StreamEvent, len(f.events))
	for _, e := range f.events {
		out <- e
	}
	close(out)
	return out, nil
}

func drain(ch <-chan provider.StreamEvent) []provider.StreamEvent {
	var out []provider.StreamEvent
	for e := range ch {
		out = append(out, e)
	}
	return out
}

func TestWrapperLiveModeRecordsAndReturnsEvents(t *testing.T) {
	ctx := context.Background()
	rec := recorder.NewFileRecorder(t.TempDir())
	live := &fakeLiveProvider{events: []provider.StreamEvent{
		{Kind: provider.KindTextDelta, Text: "hi"},
		{Kind: provider.KindStop, StopReason: "end_turn"},
	}}

	w := NewWrapper(ModeLive, live, rec)
	ch, err := w.Stream(ctx, provider.StreamOptions{Provider: "fake", Prompt: "hello"})
	require.NoError(t, err)

	got := drain(ch)
	require.Len(t, got, 2)
	assert.Equal(t, "hi", got[0].Text)

	key := recorder.Key{Provider: "fake", Prompt: "hello"}
	hash, _ := key.Hash()
	entry, ok, err := rec.Load(ctx, hash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, entry.Events, 2)
}

func TestWrapperPlaybackModeReplaysRecordedEvents(t *testing.T) {
	ctx := context.Background()
	rec := recorder.NewFileRecorder(t.TempDir())

	key := recorder.Key{Provider: "fake", Prompt: "hello"}
	hash, _ := key.Hash()
	require.NoError(t, rec.StartRecording(ctx, hash))
	require.NoError(t, rec.AppendEvent(ctx, hash, provider.StreamEvent{Kind: provider.KindTextDelta, Text: "hi"}))
	require.NoError(t, rec.FinalizeRecording(ctx, hash))

	w := NewWrapper(ModePlayback, nil, rec)
	ch, err := w.Stream(ctx, provider.StreamOptions{Provider: "fake", Prompt: "hello"})
	require.NoError(t, err)

	got := drain(ch)
	require.Len(t, got, 1)
	assert.Equal(t, "hi", got[0].Text)
}

func TestWrapperPlaybackModeErrorsWithoutRecording(t *testing.T) {
	ctx := context.Background()
	rec := recorder.NewFileRecorder(t.TempDir())

	w := NewWrapper(ModePlayback, nil, rec)
	_, err := w.Stream(ctx, provider.StreamOptions{Provider: "fake", Prompt: "never recorded"})
	assert.Error(t, err)
}
