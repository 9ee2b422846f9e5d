package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingEngine struct {
	TransferEngine
	err   error
	calls int
}

func (f *failingEngine) Add(ctx context.Context, src Source, opts AddOptions) (*AddResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &AddResult{EngineID: "x"}, nil
}

func (f *failingEngine) Action(ctx context.Context, id string, a Action) error {
	f.calls++
	return f.err
}

func newTestGuard(inner TransferEngine, threshold int) (*Guarded, *time.Time) {
	now := time.UnixMilli(1_700_000_000_000)
	g := NewGuarded(inner, threshold, 30*time.Second)
	g.now = func() time.Time { return now }
	return g, &now
}

func TestGuarded_OpensAfterThreshold(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantOpen bool
	}{
		{"engine failures open", errors.New("session closed"), true},
		{"file exists is ignored", errors.New("file exists"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &failingEngine{err: tt.err}
			g, _ := newTestGuard(inner, 2)
			ctx := context.Background()

			_, err := g.Add(ctx, Source{Magnet: "m"}, AddOptions{})
			assert.Equal(t, tt.err, err)
			assert.Equal(t, tt.err, g.Action(ctx, "x", Action{Kind: ActionStart}))

			_, err = g.Add(ctx, Source{Magnet: "m"}, AddOptions{})
			if tt.wantOpen {
				assert.ErrorIs(t, err, ErrEngineUnavailable)
				assert.Contains(t, err.Error(), "session closed")
				assert.Equal(t, 2, inner.calls)
				assert.Equal(t, GuardOpen, g.Status().State)
				return
			}
			assert.Equal(t, tt.err, err)
			assert.Equal(t, 3, inner.calls)
			assert.Equal(t, GuardClosed, g.Status().State)
		})
	}
}

func TestGuarded_SuccessResetsCount(t *testing.T) {
	inner := &failingEngine{err: errors.New("boom")}
	g, _ := newTestGuard(inner, 2)
	ctx := context.Background()

	g.Action(ctx, "x", Action{Kind: ActionStart})
	inner.err = nil
	require.NoError(t, g.Action(ctx, "x", Action{Kind: ActionStart}))
	inner.err = errors.New("boom")
	g.Action(ctx, "x", Action{Kind: ActionStart})

	st := g.Status()
	assert.Equal(t, GuardClosed, st.State)
	assert.Equal(t, 1, st.ConsecutiveFailures)
	assert.Equal(t, "boom", st.LastError)
	require.NotNil(t, st.LastFailureMs)
	assert.Nil(t, st.RetryAtMs)
}

func TestGuarded_ProbeAfterCooldown(t *testing.T) {
	inner := &failingEngine{err: errors.New("boom")}
	g, now := newTestGuard(inner, 1)
	ctx := context.Background()

	g.Action(ctx, "x", Action{Kind: ActionStart})
	st := g.Status()
	require.Equal(t, GuardOpen, st.State)
	require.NotNil(t, st.RetryAtMs)
	assert.Equal(t, now.Add(30*time.Second).UnixMilli(), *st.RetryAtMs)

	assert.ErrorIs(t, g.Action(ctx, "x", Action{Kind: ActionStart}), ErrEngineUnavailable)
	assert.Equal(t, 1, inner.calls)

	// A failed probe re-opens for a full cooldown.
	*now = now.Add(31 * time.Second)
	assert.EqualError(t, g.Action(ctx, "x", Action{Kind: ActionStart}), "boom")
	assert.Equal(t, 2, inner.calls)
	assert.ErrorIs(t, g.Action(ctx, "x", Action{Kind: ActionStart}), ErrEngineUnavailable)

	// A successful probe closes.
	*now = now.Add(31 * time.Second)
	inner.err = nil
	require.NoError(t, g.Action(ctx, "x", Action{Kind: ActionStart}))
	assert.Equal(t, GuardClosed, g.Status().State)
	assert.Zero(t, g.Status().ConsecutiveFailures)
}

func TestGuarded_OneProbeAtATime(t *testing.T) {
	inner := &failingEngine{err: errors.New("boom")}
	g, now := newTestGuard(inner, 1)
	ctx := context.Background()

	g.Action(ctx, "x", Action{Kind: ActionStart})
	*now = now.Add(31 * time.Second)

	probe, err := g.acquire()
	require.NoError(t, err)
	require.True(t, probe)
	assert.Equal(t, GuardProbing, g.Status().State)

	_, err = g.acquire()
	assert.ErrorIs(t, err, ErrEngineUnavailable)

	g.release(ctx, true, nil)
	assert.Equal(t, GuardClosed, g.Status().State)
}

func TestGuarded_IgnoresCancellation(t *testing.T) {
	inner := &failingEngine{err: context.Canceled}
	g, _ := newTestGuard(inner, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Add(ctx, Source{}, AddOptions{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, GuardClosed, g.Status().State)
	assert.Empty(t, g.Status().LastError)
}
