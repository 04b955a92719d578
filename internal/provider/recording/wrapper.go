// Package recording selects between a live Provider and deterministic
// playback from a recorder.Recorder, the way a Scaffold's process-scoped
// mode decides once (spec invariant S1) whether every agent step this
// process runs streams live or replays a prior recording.
package recording

import (
	"context"
	"fmt"

	"github.com/open-harness/loom/internal/apperrors"
	"github.com/open-harness/loom/internal/provider"
	"github.com/open-harness/loom/internal/recorder"
)

// Mode is the process-wide live/playback selector (spec invariant S1: set
// once per Scaffold, never switched mid-process).
type Mode string

const (
	ModeLive     Mode = "live"
	ModePlayback Mode = "playback"
)

// Wrapper wraps a live Provider so every Stream call is transparently
// recorded (ModeLive) or replayed (ModePlayback) through a recorder.Recorder,
// keyed by the deterministic hash of the request.
type Wrapper struct {
	mode     Mode
	live     provider.Provider
	recorder recorder.Recorder
}

// NewWrapper builds a mode-selected Provider. In ModePlayback, live may be
// nil: playback never calls through to a live provider.
func NewWrapper(mode Mode, live provider.Provider, rec recorder.Recorder) *Wrapper {
	return &Wrapper{mode: mode, live: live, recorder: rec}
}

func (w *Wrapper) Name() string {
	if w.live != nil {
		return w.live.Name()
	}
	return "recorded"
}

func (w *Wrapper) Stream(ctx context.Context, opts provider.StreamOptions) (<-chan provider.StreamEvent, error) {
	key := recorder.Key{
		Provider:       opts.Provider,
		Model:          opts.Model,
		Prompt:         opts.Prompt,
		Tools:          opts.Tools,
		OutputSchema:   opts.OutputSchema,
		ProviderConfig: opts.ProviderConfig,
	}
	hash, err := key.Hash()
	if err != nil {
		return nil, fmt.Errorf("recording: hash request: %w", err)
	}

	switch w.mode {
	case ModePlayback:
		return w.playback(ctx, hash, opts.Prompt)
	default:
		return w.recordLive(ctx, hash, opts)
	}
}

func (w *Wrapper) playback(ctx context.Context, hash, prompt string) (<-chan provider.StreamEvent, error) {
	entry, ok, err := w.recorder.Load(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("recording: load %s: %w", hash, err)
	}
	if !ok {
		return nil, apperrors.NewRecordingNotFound(hash, promptHead(prompt))
	}

	out := make(chan provider.StreamEvent, len(entry.Events))
	go func() {
		defer close(out)
		for _, e := range entry.Events {
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (w *Wrapper) recordLive(ctx context.Context, hash string, opts provider.StreamOptions) (<-chan provider.StreamEvent, error) {
	if w.live == nil {
		return nil, fmt.Errorf("recording: no live provider configured")
	}

	live, err := w.live.Stream(ctx, opts)
	if err != nil {
		return nil, err
	}

	if err := w.recorder.StartRecording(ctx, hash); err != nil {
		return nil, fmt.Errorf("recording: start %s: %w", hash, err)
	}

	out := make(chan provider.StreamEvent, 16)
	go func() {
		defer close(out)
		recordFailed := false
		for e := range live {
			if err := w.recorder.AppendEvent(ctx, hash, e); err != nil {
				// Recording failure must never break a live turn in
				// progress; the agent step still completes, it just
				// won't be replayable.
				recordFailed = true
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
				continue
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
		if !recordFailed {
			_ = w.recorder.FinalizeRecording(ctx, hash)
		}
	}()
	return out, nil
}

// promptHead returns a short prefix of prompt for a RecordingNotFound
// error's diagnostic context, since prompts can run to many kilobytes.
func promptHead(prompt string) string {
	const maxLen = 80
	if len(prompt) <= maxLen {
		return prompt
	}
	return prompt[:maxLen]
}

var _ provider.Provider = (*Wrapper)(nil)
